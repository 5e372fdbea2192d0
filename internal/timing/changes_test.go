package timing

import (
	"encoding/json"
	"errors"
	"testing"
)

func TestDecodeNotification(t *testing.T) {
	type decodeTest struct {
		name         string
		notification Notification
		expectedErr  error
		check        func(t *testing.T, change Change)
	}

	fullSession := `{"id":"s1","type":"Race","title":"Sprint","target_laps":10,"state":"GREEN","race_start_epoch_ms":1000}`

	decodeTests := []decodeTest{
		{
			name:         "Full session update",
			notification: Notification{Table: TableSessions, Kind: ChangeUpdate, New: json.RawMessage(fullSession)},
			check: func(t *testing.T, change Change) {
				c := change.(SessionChange)

				if c.Session.State != StateGreen || c.Session.RaceStartEpochMS == nil || *c.Session.RaceStartEpochMS != 1000 {
					t.Errorf("Unexpected session: %+v", c.Session)
				}
			},
		},
		{
			name:         "Session reset with explicit null race start",
			notification: Notification{Table: TableSessions, Kind: ChangeUpdate, New: json.RawMessage(`{"id":"s1","type":"Race","title":"Sprint","target_laps":10,"state":"PREP","race_start_epoch_ms":null}`)},
			check: func(t *testing.T, change Change) {
				if c := change.(SessionChange); c.Session.RaceStartEpochMS != nil {
					t.Errorf("Expected race start to be cleared, got: %d", *c.Session.RaceStartEpochMS)
				}
			},
		},
		{
			name:         "Partial session is rejected",
			notification: Notification{Table: TableSessions, Kind: ChangeUpdate, New: json.RawMessage(`{"id":"s1","state":"PREP"}`)},
			expectedErr:  ErrPartialRow,
		},
		{
			name:         "Session with unknown state",
			notification: Notification{Table: TableSessions, Kind: ChangeUpdate, New: json.RawMessage(`{"id":"s1","type":"Race","title":"Sprint","target_laps":10,"state":"RED","race_start_epoch_ms":null}`)},
			expectedErr:  errAny,
		},
		{
			name:         "Session delete without image",
			notification: Notification{Table: TableSessions, Kind: ChangeDelete},
			check: func(t *testing.T, change Change) {
				if c := change.(SessionChange); c.Session != nil || c.Kind() != ChangeDelete {
					t.Errorf("Unexpected session delete: %+v", c)
				}
			},
		},
		{
			name:         "Lap insert",
			notification: Notification{Table: TableLaps, Kind: ChangeInsert, New: json.RawMessage(`{"id":"l1","session_id":"s1","driver_id":"d1","lap_index":2,"lap_ms":61000,"absolute_ms":122000,"valid":true}`)},
			check: func(t *testing.T, change Change) {
				c := change.(LapChange)

				if c.Lap.ID != "l1" || c.Lap.LapIndex != 2 || c.Lap.AbsoluteMS != 122000 {
					t.Errorf("Unexpected lap: %+v", c.Lap)
				}
			},
		},
		{
			name:         "Lap insert without lap index",
			notification: Notification{Table: TableLaps, Kind: ChangeInsert, New: json.RawMessage(`{"id":"l1","driver_id":"d1"}`)},
			expectedErr:  ErrPartialRow,
		},
		{
			name:         "Lap delete carries only the id",
			notification: Notification{Table: TableLaps, Kind: ChangeDelete, Old: json.RawMessage(`{"id":"l1"}`)},
			check: func(t *testing.T, change Change) {
				if c := change.(LapChange); c.Lap.ID != "l1" || c.Kind() != ChangeDelete {
					t.Errorf("Unexpected lap delete: %+v", c)
				}
			},
		},
		{
			name:         "Lap delete without old image",
			notification: Notification{Table: TableLaps, Kind: ChangeDelete},
			expectedErr:  ErrMissingRowImage,
		},
		{
			name:         "Driver with empty id",
			notification: Notification{Table: TableDrivers, Kind: ChangeInsert, New: json.RawMessage(`{"id":"","number":4}`)},
			expectedErr:  ErrPartialRow,
		},
		{
			name:         "Driver update",
			notification: Notification{Table: TableDrivers, Kind: ChangeUpdate, New: json.RawMessage(`{"id":"d1","number":4,"name":"Four","active":false}`)},
			check: func(t *testing.T, change Change) {
				if c := change.(DriverChange); c.Driver.Number != 4 || c.Driver.Active {
					t.Errorf("Unexpected driver: %+v", c.Driver)
				}
			},
		},
		{
			name:         "Event insert",
			notification: Notification{Table: TableEvents, Kind: ChangeInsert, New: json.RawMessage(`{"id":"e1","session_id":"s1","type":"UNDO","payload":{"driver_id":"d1","lap_index":3}}`)},
			check: func(t *testing.T, change Change) {
				c := change.(EventChange)

				if c.Event.Type != EventUndo || c.Table() != TableEvents {
					t.Errorf("Unexpected event: %+v", c.Event)
				}
			},
		},
		{
			name:         "Unknown table",
			notification: Notification{Table: "teams", Kind: ChangeInsert, New: json.RawMessage(`{"id":"t1"}`)},
			expectedErr:  ErrUnknownTable,
		},
		{
			name:         "Unknown kind",
			notification: Notification{Table: TableLaps, Kind: "TRUNCATE"},
			expectedErr:  ErrUnknownChange,
		},
		{
			name:         "Malformed image",
			notification: Notification{Table: TableLaps, Kind: ChangeInsert, New: json.RawMessage(`[1, 2, 3]`)},
			expectedErr:  errAny,
		},
	}

	for _, test := range decodeTests {
		t.Run(test.name, func(t *testing.T) {
			change, err := DecodeNotification(test.notification)

			switch {
			case test.expectedErr == errAny:
				if err == nil {
					t.Errorf("Expected an error, got change: %+v", change)
				}
			case test.expectedErr != nil:
				if !errors.Is(err, test.expectedErr) {
					t.Errorf("Expected %v, got: %v", test.expectedErr, err)
				}
			default:
				if err != nil {
					t.Fatal(err)
				}

				if change.Table() != test.notification.Table || change.Kind() != test.notification.Kind {
					t.Errorf("Change %s %s does not match notification", change.Kind(), change.Table())
				}

				test.check(t, change)
			}
		})
	}
}

var errAny = errors.New("any error")

func TestNewNotificationRoundTrip(t *testing.T) {
	lap := Lap{ID: "l1", SessionID: "s1", DriverID: "d1", LapIndex: 1, LapMS: 60000, AbsoluteMS: 60000, Valid: true}

	n, err := NewNotification(TableLaps, ChangeDelete, "s1", nil, lap)

	if err != nil {
		t.Fatal(err)
	}

	if n.New != nil {
		t.Errorf("Expected no new image, got: %s", n.New)
	}

	change, err := DecodeNotification(n)

	if err != nil {
		t.Fatal(err)
	}

	if c := change.(LapChange); c.Lap != lap {
		t.Errorf("Expected %+v, got: %+v", lap, c.Lap)
	}
}
