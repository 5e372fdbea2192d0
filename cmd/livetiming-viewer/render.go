package main

import (
	"encoding/json"
	"fmt"
	"io"
	"strconv"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/fatih/color"
	"github.com/hako/durafmt"
	"github.com/olekukonko/tablewriter"

	"justapengu.in/livetiming"
	"justapengu.in/livetiming/internal/timing"
)

const (
	clearScreen = "\033[H\033[2J"
	numEvents   = 5
)

var (
	bold   = color.New(color.Bold).SprintFunc()
	faint  = color.New(color.Faint).SprintFunc()
	purple = color.New(color.FgMagenta, color.Bold).SprintFunc()
)

func stateColour(state timing.SessionState) func(a ...interface{}) string {
	switch state {
	case timing.StateGreen:
		return color.New(color.FgGreen, color.Bold).SprintFunc()
	case timing.StateFinalCall, timing.StateStarting:
		return color.New(color.FgYellow, color.Bold).SprintFunc()
	case timing.StateFinished:
		return color.New(color.FgWhite, color.Bold).SprintFunc()
	default:
		return color.New(color.FgCyan).SprintFunc()
	}
}

func render(w io.Writer, view *timing.View, now time.Time) error {
	leaderboard := livetiming.NewLeaderboard(view.Session(), view.Classification(), now)

	if _, err := fmt.Fprint(w, clearScreen); err != nil {
		return err
	}

	if leaderboard.Session == nil {
		_, err := fmt.Fprintln(w, faint("Waiting for a session..."))
		return err
	}

	session := leaderboard.Session

	header := fmt.Sprintf("%s  %s  %s", bold(session.Title), session.Kind.String(), stateColour(session.State)(leaderboard.State))

	if leaderboard.ElapsedMS != nil {
		header += "  " + durafmt.Parse((time.Duration(*leaderboard.ElapsedMS) * time.Millisecond).Truncate(time.Second)).String()
	}

	if session.TargetLaps > 0 {
		header += fmt.Sprintf("  (%d laps)", session.TargetLaps)
	}

	if _, err := fmt.Fprintf(w, "%s\n\n", header); err != nil {
		return err
	}

	writeLeaderboard(w, leaderboard)

	events := view.Events()

	if len(events) > numEvents {
		events = events[len(events)-numEvents:]
	}

	if len(events) > 0 {
		if _, err := fmt.Fprintln(w); err != nil {
			return err
		}
	}

	for i := len(events) - 1; i >= 0; i-- {
		event := events[i]

		if _, err := fmt.Fprintf(w, "%s %s\n", faint(humanize.RelTime(event.CreatedAt, now, "ago", "from now")), describeEvent(event, view)); err != nil {
			return err
		}
	}

	return nil
}

func writeLeaderboard(w io.Writer, leaderboard *livetiming.Leaderboard) {
	table := tablewriter.NewWriter(w)
	table.SetHeader([]string{"Pos", "No", "Driver", "Laps", "Gap", "Best", "Last"})
	table.SetBorder(false)
	table.SetAutoWrapText(false)
	table.SetAlignment(tablewriter.ALIGN_LEFT)

	var fastest string
	var fastestMS int64 = -1

	for _, cl := range leaderboard.Classification {
		if cl.BestLap != nil && (fastestMS < 0 || cl.BestLap.LapMS < fastestMS) {
			fastestMS = cl.BestLap.LapMS
			fastest = cl.Driver.ID
		}
	}

	for _, line := range leaderboard.Lines {
		best := line.BestLap

		if line.DriverID == fastest {
			best = purple(best)
		}

		table.Append([]string{
			strconv.Itoa(line.Position),
			strconv.Itoa(line.Number),
			line.Name,
			strconv.Itoa(line.NumLaps),
			line.Split,
			best,
			line.LastLap,
		})
	}

	table.Render()
}

func describeEvent(event timing.Event, view *timing.View) string {
	switch event.Type {
	case timing.EventFinalCall:
		return "Final call"
	case timing.EventRaceStart:
		return "Race started"
	case timing.EventResetSession:
		return "Session reset"
	case timing.EventFlagChange:
		var payload timing.FlagChangePayload

		if err := json.Unmarshal(event.Payload, &payload); err == nil {
			return "Flag: " + payload.State.Label()
		}
	case timing.EventUndo:
		var payload timing.UndoPayload

		if err := json.Unmarshal(event.Payload, &payload); err == nil {
			return fmt.Sprintf("Lap %d undone for %s", payload.LapIndex, driverName(view, payload.DriverID))
		}
	}

	return string(event.Type)
}

func driverName(view *timing.View, driverID string) string {
	for _, driver := range view.Drivers() {
		if driver.ID == driverID {
			return fmt.Sprintf("#%d %s", driver.Number, driver.Name)
		}
	}

	return driverID
}
