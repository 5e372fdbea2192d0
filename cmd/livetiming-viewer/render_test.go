package main

import (
	"bytes"
	"strings"
	"testing"
	"time"

	"github.com/fatih/color"

	"justapengu.in/livetiming/internal/timing"
)

func init() {
	color.NoColor = true
}

func TestRender(t *testing.T) {
	now := time.Date(2020, 6, 1, 12, 0, 0, 0, time.UTC)
	start := timing.EpochMS(now.Add(-90 * time.Second))

	view := timing.NewView(0)
	view.SetSession(&timing.Session{ID: "s1", Kind: timing.SessionKindRace, Title: "Sprint", State: timing.StateGreen, RaceStartEpochMS: &start, TargetLaps: 10})
	view.SetDrivers([]timing.Driver{
		{ID: "d1", Number: 44, Name: "Lewis", Active: true},
		{ID: "d2", Number: 33, Name: "Max", Active: true},
	})
	view.SetLaps([]timing.Lap{
		{ID: "l1", SessionID: "s1", DriverID: "d2", LapIndex: 1, LapMS: 61000, AbsoluteMS: 61000},
	})

	undo, err := timing.NewEvent("s1", timing.EventUndo, timing.UndoPayload{DriverID: "d1", LapIndex: 1})

	if err != nil {
		t.Fatal(err)
	}

	undo.ID = "e1"
	undo.CreatedAt = now.Add(-time.Minute)

	view.SetEvents([]timing.Event{undo})

	var buf bytes.Buffer

	if err := render(&buf, view, now); err != nil {
		t.Fatal(err)
	}

	out := buf.String()

	for _, want := range []string{"Sprint", "Green", "1 minute 30 seconds", "Max", "1:01.000", timing.LapTimePlaceholder, "Lap 1 undone for #44 Lewis", "1 minute ago"} {
		if !strings.Contains(out, want) {
			t.Errorf("Expected output to contain %q, got:\n%s", want, out)
		}
	}

	if strings.Index(out, "Max") > strings.Index(out, "Lewis") {
		t.Errorf("Expected the driver with a lap to lead, got:\n%s", out)
	}
}

func TestRenderWithoutSession(t *testing.T) {
	var buf bytes.Buffer

	if err := render(&buf, timing.NewView(0), time.Now()); err != nil {
		t.Fatal(err)
	}

	if !strings.Contains(buf.String(), "Waiting for a session") {
		t.Errorf("Unexpected output: %q", buf.String())
	}
}
