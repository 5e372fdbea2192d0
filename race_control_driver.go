package livetiming

import (
	"fmt"
	"time"

	"justapengu.in/livetiming/internal/timing"
)

// Leaderboard is the classification of a session as shown to operators and
// viewers, with lap times already formatted.
type Leaderboard struct {
	Session *timing.Session `json:"session"`
	State   string          `json:"state"`

	// ElapsedMS is the race clock, nil until the race has started.
	ElapsedMS *int64 `json:"elapsed_ms"`

	// AllowedTransitions are the race control actions offered from the
	// current state. They are hints; every transition is still accepted.
	AllowedTransitions []timing.Transition `json:"allowed_transitions"`

	Lines []LeaderboardLine `json:"lines"`

	// Classification is the unformatted ordering the lines were built from.
	Classification []*timing.ClassificationLine `json:"classification"`
}

type LeaderboardLine struct {
	Position    int     `json:"position"`
	DriverID    string  `json:"driver_id"`
	Number      int     `json:"number"`
	Name        string  `json:"name"`
	TeamID      *string `json:"team_id"`
	NumLaps     int     `json:"num_laps"`
	GapToLeader int     `json:"gap_to_leader"`
	Split       string  `json:"split"`
	BestLap     string  `json:"best_lap"`
	LastLap     string  `json:"last_lap"`

	LastLapCompletedTime *time.Time `json:"last_lap_completed_time"`
}

func NewLeaderboard(session *timing.Session, classification []*timing.ClassificationLine, now time.Time) *Leaderboard {
	leaderboard := &Leaderboard{
		Session:            session,
		AllowedTransitions: []timing.Transition{},
		Lines:              make([]LeaderboardLine, 0, len(classification)),
		Classification:     classification,
	}

	if session != nil {
		leaderboard.State = session.State.Label()
		leaderboard.AllowedTransitions = timing.AllowedTransitions(session.State)

		if session.HasStarted() {
			elapsed := timing.EpochMS(now) - *session.RaceStartEpochMS

			if elapsed < 0 {
				elapsed = 0
			}

			leaderboard.ElapsedMS = &elapsed
		}
	}

	for _, cl := range classification {
		line := LeaderboardLine{
			Position:    cl.Position,
			DriverID:    cl.Driver.ID,
			Number:      cl.Driver.Number,
			Name:        cl.Driver.Name,
			TeamID:      cl.Driver.TeamID,
			NumLaps:     cl.NumLaps,
			GapToLeader: cl.GapToLeader,
			Split:       split(classification[0], cl),
			BestLap:     timing.FormatLap(cl.BestLap),
			LastLap:     timing.FormatLap(cl.LastLap),
		}

		if cl.LastLap != nil && !cl.LastLap.CreatedAt.IsZero() {
			completed := cl.LastLap.CreatedAt
			line.LastLapCompletedTime = &completed
		}

		leaderboard.Lines = append(leaderboard.Lines, line)
	}

	return leaderboard
}

// split is the gap from the leader: whole laps when a driver is a lap or
// more down, otherwise the time behind the leader at the same lap.
func split(leader, line *timing.ClassificationLine) string {
	if line == leader || line.NumLaps == 0 {
		return ""
	}

	switch {
	case line.GapToLeader == 1:
		return "+1 lap"
	case line.GapToLeader > 1:
		return fmt.Sprintf("+%d laps", line.GapToLeader)
	}

	for _, lap := range leader.Laps {
		if lap.LapIndex == line.LastLap.LapIndex {
			gap := line.LastLap.AbsoluteMS - lap.AbsoluteMS

			if gap < 0 {
				gap = 0
			}

			return "+" + timing.FormatDuration(gap)
		}
	}

	return ""
}
