package livetiming

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/sirupsen/logrus"
	"github.com/sirupsen/logrus/hooks/test"

	"justapengu.in/livetiming/internal/timing"
)

func TestRaceControlAdapter(t *testing.T) {
	logger, hook := test.NewNullLogger()
	logger.SetLevel(logrus.DebugLevel)

	view := timing.NewView(0)
	view.SetDrivers([]timing.Driver{{ID: "d1", Number: 44, Name: "Lewis", Active: true}})

	metrics := NewMetrics()
	adapter := NewRaceControlAdapter(view, metrics, logger)

	undo, err := timing.NewEvent("s1", timing.EventUndo, timing.UndoPayload{DriverID: "d1", LapIndex: 3})

	if err != nil {
		t.Fatal(err)
	}

	adapter.OnChange(timing.LapChange{ChangeKind: timing.ChangeInsert, Lap: timing.Lap{ID: "l1", DriverID: "d1", LapIndex: 3, LapMS: 83456, AbsoluteMS: 250000}})
	adapter.OnChange(timing.EventChange{ChangeKind: timing.ChangeInsert, Event: undo})
	adapter.OnChange(timing.LapChange{ChangeKind: timing.ChangeDelete, Lap: timing.Lap{ID: "l1"}})
	adapter.OnChange(timing.DriverChange{ChangeKind: timing.ChangeUpdate, Driver: timing.Driver{ID: "d2", Number: 16, Name: "Charles", Active: false}})
	adapter.OnChange(timing.DriverChange{ChangeKind: timing.ChangeDelete, Driver: timing.Driver{ID: "d2"}})

	expected := []string{
		"Lap 3 completed by #44 Lewis: 1:23.456 (elapsed 4:10.000)",
		"Lap 3 for #44 Lewis was undone",
		"Lap l1 was removed",
		"Driver #16 Charles left the grid",
		"Driver d2 was removed",
	}

	entries := hook.AllEntries()

	if len(entries) != len(expected) {
		t.Fatalf("Expected %d log entries, got %d", len(expected), len(entries))
	}

	for i, e := range expected {
		if entries[i].Message != e {
			t.Errorf("Entry %d: expected %q, got %q", i, e, entries[i].Message)
		}
	}

	if got := testutil.ToFloat64(metrics.changes.WithLabelValues("laps", "INSERT")); got != 1 {
		t.Errorf("Expected one lap insert to be counted, got %v", got)
	}

	if got := testutil.ToFloat64(metrics.changes.WithLabelValues("laps", "DELETE")); got != 1 {
		t.Errorf("Expected one lap delete to be counted, got %v", got)
	}
}
