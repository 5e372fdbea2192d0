package timing

import (
	"encoding/json"
	"time"
)

type SessionKind string

const (
	SessionKindPractice   SessionKind = "Practice"
	SessionKindQualifying SessionKind = "Quali"
	SessionKindRace       SessionKind = "Race"
)

func (k SessionKind) IsValid() bool {
	return k == SessionKindPractice || k == SessionKindQualifying || k == SessionKindRace
}

func (k SessionKind) String() string {
	switch k {
	case SessionKindQualifying:
		return "Qualifying"
	default:
		return string(k)
	}
}

type SessionState string

const (
	StatePrep      SessionState = "PREP"
	StateFinalCall SessionState = "FINAL_CALL"
	// StateStarting is part of the session lifecycle but no transition targets it.
	StateStarting SessionState = "STARTING"
	StateGreen    SessionState = "GREEN"
	StateFinished SessionState = "FINISHED"
)

func (s SessionState) IsValid() bool {
	switch s {
	case StatePrep, StateFinalCall, StateStarting, StateGreen, StateFinished:
		return true
	}

	return false
}

func (s SessionState) Label() string {
	switch s {
	case StatePrep:
		return "Prep"
	case StateFinalCall:
		return "Final Call"
	case StateStarting:
		return "Starting"
	case StateGreen:
		return "Green"
	case StateFinished:
		return "Finished"
	default:
		return string(s)
	}
}

type Session struct {
	ID               string                 `json:"id"`
	Kind             SessionKind            `json:"type"`
	Title            string                 `json:"title"`
	TargetLaps       int                    `json:"target_laps"`
	State            SessionState           `json:"state"`
	RaceStartEpochMS *int64                 `json:"race_start_epoch_ms"`
	Meta             map[string]interface{} `json:"meta"`
}

// HasStarted reports whether the race clock is running.
func (s *Session) HasStarted() bool {
	return s != nil && s.RaceStartEpochMS != nil
}

func (s *Session) Copy() *Session {
	if s == nil {
		return nil
	}

	c := *s

	if s.RaceStartEpochMS != nil {
		start := *s.RaceStartEpochMS
		c.RaceStartEpochMS = &start
	}

	if s.Meta != nil {
		c.Meta = make(map[string]interface{}, len(s.Meta))

		for k, v := range s.Meta {
			c.Meta[k] = v
		}
	}

	return &c
}

type Driver struct {
	ID     string  `json:"id"`
	Number int     `json:"number"`
	Name   string  `json:"name"`
	TeamID *string `json:"team_id"`
	Active bool    `json:"active"`
}

type Lap struct {
	ID         string    `json:"id"`
	SessionID  string    `json:"session_id"`
	DriverID   string    `json:"driver_id"`
	LapIndex   int       `json:"lap_index"`
	LapMS      int64     `json:"lap_ms"`
	AbsoluteMS int64     `json:"absolute_ms"`
	Valid      bool      `json:"valid"`
	CreatedAt  time.Time `json:"created_at"`
}

type EventType string

const (
	EventFinalCall    EventType = "FINAL_CALL"
	EventRaceStart    EventType = "RACE_START"
	EventFlagChange   EventType = "FLAG_CHANGE"
	EventResetSession EventType = "RESET_SESSION"
	EventUndo         EventType = "UNDO"
)

// Event is an audit log entry. Events are never modified once written.
type Event struct {
	ID        string          `json:"id"`
	SessionID string          `json:"session_id"`
	Type      EventType       `json:"type"`
	Payload   json.RawMessage `json:"payload"`
	CreatedAt time.Time       `json:"created_at"`
}

type RaceStartPayload struct {
	StartEpochMS int64 `json:"start_epoch_ms"`
}

type FlagChangePayload struct {
	State SessionState `json:"state"`
}

type UndoPayload struct {
	DriverID string `json:"driver_id"`
	LapIndex int    `json:"lap_index"`
}

// NewEvent builds an unsaved event. A nil payload is stored as JSON null.
func NewEvent(sessionID string, eventType EventType, payload interface{}) (Event, error) {
	event := Event{
		SessionID: sessionID,
		Type:      eventType,
	}

	if payload != nil {
		b, err := json.Marshal(payload)

		if err != nil {
			return Event{}, err
		}

		event.Payload = b
	}

	return event, nil
}
