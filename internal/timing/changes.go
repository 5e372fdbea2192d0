package timing

import (
	"encoding/json"
	"fmt"
)

type Table string

const (
	TableSessions Table = "sessions"
	TableDrivers  Table = "drivers"
	TableLaps     Table = "laps"
	TableEvents   Table = "events"
)

type ChangeKind string

const (
	ChangeInsert ChangeKind = "INSERT"
	ChangeUpdate ChangeKind = "UPDATE"
	ChangeDelete ChangeKind = "DELETE"
)

func (k ChangeKind) IsValid() bool {
	return k == ChangeInsert || k == ChangeUpdate || k == ChangeDelete
}

// Notification is the wire form of an entity change, as published by the
// store and carried by the feed. New is absent for deletes; Old is only
// required for deletes.
type Notification struct {
	Table     Table           `json:"table"`
	Kind      ChangeKind      `json:"kind"`
	SessionID string          `json:"session_id,omitempty"`
	New       json.RawMessage `json:"new,omitempty"`
	Old       json.RawMessage `json:"old,omitempty"`
}

// NewNotification encodes row images into a Notification. Either image may be nil.
func NewNotification(table Table, kind ChangeKind, sessionID string, newRow, oldRow interface{}) (Notification, error) {
	n := Notification{
		Table:     table,
		Kind:      kind,
		SessionID: sessionID,
	}

	if newRow != nil {
		b, err := json.Marshal(newRow)

		if err != nil {
			return Notification{}, err
		}

		n.New = b
	}

	if oldRow != nil {
		b, err := json.Marshal(oldRow)

		if err != nil {
			return Notification{}, err
		}

		n.Old = b
	}

	return n, nil
}

// Change is a validated, strongly typed entity change. The set of
// implementations is closed: SessionChange, DriverChange, LapChange and
// EventChange.
type Change interface {
	Table() Table
	Kind() ChangeKind

	isChange()
}

// SessionChange replaces the session wholesale. Session is nil for deletes.
type SessionChange struct {
	ChangeKind ChangeKind
	Session    *Session
}

func (SessionChange) Table() Table       { return TableSessions }
func (c SessionChange) Kind() ChangeKind { return c.ChangeKind }
func (SessionChange) isChange()          {}

// DriverChange carries the new driver row, or for deletes the old row (of
// which only the ID is meaningful).
type DriverChange struct {
	ChangeKind ChangeKind
	Driver     Driver
}

func (DriverChange) Table() Table       { return TableDrivers }
func (c DriverChange) Kind() ChangeKind { return c.ChangeKind }
func (DriverChange) isChange()          {}

type LapChange struct {
	ChangeKind ChangeKind
	Lap        Lap
}

func (LapChange) Table() Table       { return TableLaps }
func (c LapChange) Kind() ChangeKind { return c.ChangeKind }
func (LapChange) isChange()          {}

type EventChange struct {
	ChangeKind ChangeKind
	Event      Event
}

func (EventChange) Table() Table       { return TableEvents }
func (c EventChange) Kind() ChangeKind { return c.ChangeKind }
func (EventChange) isChange()          {}

var (
	sessionColumns = []string{"id", "type", "title", "target_laps", "state", "race_start_epoch_ms"}
	driverColumns  = []string{"id"}
	lapColumns     = []string{"id", "driver_id", "lap_index"}
	eventColumns   = []string{"id", "type"}
)

// DecodeNotification validates a Notification and converts it into a Change.
//
// Session images must be complete: a session row missing any column is
// rejected with ErrPartialRow, since merging it would risk resurrecting a
// stale race start time.
func DecodeNotification(n Notification) (Change, error) {
	if !n.Kind.IsValid() {
		return nil, fmt.Errorf("%w: %q", ErrUnknownChange, n.Kind)
	}

	image := n.New

	if n.Kind == ChangeDelete {
		image = n.Old
	}

	if len(image) == 0 || string(image) == "null" {
		if n.Table == TableSessions && n.Kind == ChangeDelete {
			return SessionChange{ChangeKind: ChangeDelete}, nil
		}

		return nil, fmt.Errorf("%w: %s %s", ErrMissingRowImage, n.Kind, n.Table)
	}

	switch n.Table {
	case TableSessions:
		if n.Kind == ChangeDelete {
			return SessionChange{ChangeKind: ChangeDelete}, nil
		}

		var session Session

		if err := decodeRow(image, sessionColumns, &session); err != nil {
			return nil, err
		}

		if !session.State.IsValid() {
			return nil, fmt.Errorf("timing: session %s has invalid state %q", session.ID, session.State)
		}

		return SessionChange{ChangeKind: n.Kind, Session: &session}, nil
	case TableDrivers:
		var driver Driver

		if err := decodeRow(image, driverColumns, &driver); err != nil {
			return nil, err
		}

		return DriverChange{ChangeKind: n.Kind, Driver: driver}, nil
	case TableLaps:
		var lap Lap

		columns := lapColumns

		if n.Kind == ChangeDelete {
			columns = driverColumns
		}

		if err := decodeRow(image, columns, &lap); err != nil {
			return nil, err
		}

		return LapChange{ChangeKind: n.Kind, Lap: lap}, nil
	case TableEvents:
		var event Event

		columns := eventColumns

		if n.Kind == ChangeDelete {
			columns = driverColumns
		}

		if err := decodeRow(image, columns, &event); err != nil {
			return nil, err
		}

		return EventChange{ChangeKind: n.Kind, Event: event}, nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownTable, n.Table)
	}
}

func decodeRow(image json.RawMessage, required []string, into interface{}) error {
	var columns map[string]json.RawMessage

	if err := json.Unmarshal(image, &columns); err != nil {
		return err
	}

	for _, column := range required {
		if _, ok := columns[column]; !ok {
			return fmt.Errorf("%w: missing column %q", ErrPartialRow, column)
		}
	}

	if id := columns["id"]; string(id) == "null" || string(id) == `""` {
		return fmt.Errorf("%w: empty id", ErrPartialRow)
	}

	return json.Unmarshal(image, into)
}
