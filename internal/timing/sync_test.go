package timing

import (
	"context"
	"encoding/json"
	"testing"
	"time"
)

func lapNotification(t *testing.T, kind ChangeKind, lap Lap) Notification {
	t.Helper()

	var n Notification
	var err error

	if kind == ChangeDelete {
		n, err = NewNotification(TableLaps, kind, lap.SessionID, nil, lap)
	} else {
		n, err = NewNotification(TableLaps, kind, lap.SessionID, lap, nil)
	}

	if err != nil {
		t.Fatal(err)
	}

	return n
}

func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()

	deadline := time.Now().Add(5 * time.Second)

	for !cond() {
		if time.Now().After(deadline) {
			t.Fatalf("Timed out waiting for %s", what)
		}

		time.Sleep(10 * time.Millisecond)
	}
}

func TestSessionSyncStartAndMerge(t *testing.T) {
	store := newFakeStore()
	store.drivers = []Driver{{ID: "d1", Number: 1, Active: true}}

	if _, err := store.CommitLap(context.Background(), "s1", "d1", 60000); err != nil {
		t.Fatal(err)
	}

	feed := &fakeFeed{}
	view := NewView(DefaultCaptureDebounce)

	changes := make(chan Change, 10)

	sessionSync := NewSessionSync(store, feed, view, testLogger())
	sessionSync.OnChange = func(change Change) {
		changes <- change
	}

	handle, err := sessionSync.Start(context.Background())

	if err != nil {
		t.Fatal(err)
	}

	defer handle.Close()

	if handle.SessionID() != "s1" {
		t.Errorf("Expected session s1, got: %s", handle.SessionID())
	}

	if len(view.Drivers()) != 1 || len(view.Laps()) != 1 || view.Session() == nil {
		t.Fatal("Expected snapshot to be loaded into the view")
	}

	sub := feed.latest()

	if sub == nil || sub.sessionID != "s1" {
		t.Fatal("Expected a subscription to s1")
	}

	sub.push(lapNotification(t, ChangeInsert, Lap{ID: "l-new", SessionID: "s1", DriverID: "d1", LapIndex: 2, LapMS: 61000, AbsoluteMS: 121000}))

	// undecodable notifications are dropped and do not stop the loop
	sub.push(Notification{Table: TableSessions, Kind: ChangeUpdate, New: json.RawMessage(`{"id":"s1"}`)})

	sub.push(lapNotification(t, ChangeDelete, Lap{ID: "l-new", SessionID: "s1"}))

	for i := 0; i < 2; i++ {
		select {
		case <-changes:
		case <-time.After(5 * time.Second):
			t.Fatal("Timed out waiting for change")
		}
	}

	if laps := view.Laps(); len(laps) != 1 {
		t.Errorf("Expected the inserted lap to be deleted again, got: %d laps", len(laps))
	}

	if session := view.Session(); session.State != StatePrep {
		t.Errorf("Partial session image should not have been merged, got: %s", session.State)
	}
}

func TestSessionSyncNoSession(t *testing.T) {
	store := newFakeStore()
	store.session = nil

	feed := &fakeFeed{}

	_, err := NewSessionSync(store, feed, NewView(DefaultCaptureDebounce), testLogger()).Start(context.Background())

	if err != ErrNoSession {
		t.Errorf("Expected ErrNoSession, got: %v", err)
	}

	if feed.numSubscriptions() != 0 {
		t.Error("Expected no subscription without a session")
	}
}

func TestSessionSyncCloseDropsLateChanges(t *testing.T) {
	store := newFakeStore()
	feed := &fakeFeed{}
	view := NewView(DefaultCaptureDebounce)

	handle, err := NewSessionSync(store, feed, view, testLogger()).Start(context.Background())

	if err != nil {
		t.Fatal(err)
	}

	if err := handle.Close(); err != nil {
		t.Fatal(err)
	}

	select {
	case <-handle.Done():
	default:
		t.Error("Expected the merge loop to have exited after Close")
	}

	if feed.latest().push(lapNotification(t, ChangeInsert, Lap{ID: "l1", SessionID: "s1", DriverID: "d1", LapIndex: 1})) {
		t.Error("Expected the subscription to be closed")
	}

	if len(view.Laps()) != 0 {
		t.Error("Expected no laps to be merged after Close")
	}

	if err := handle.Close(); err != nil {
		t.Errorf("Expected a second Close to be a no-op, got: %v", err)
	}
}

func TestSessionSyncResyncsWhenFeedIsLost(t *testing.T) {
	store := newFakeStore()
	feed := &fakeFeed{}
	view := NewView(DefaultCaptureDebounce)

	handle, err := NewSessionSync(store, feed, view, testLogger()).Start(context.Background())

	if err != nil {
		t.Fatal(err)
	}

	defer handle.Close()

	// a newer session is created while the feed is down
	store.mutex.Lock()
	store.session = &Session{ID: "s2", Kind: SessionKindRace, Title: "Feature", TargetLaps: 20, State: StatePrep}
	store.mutex.Unlock()

	lost := feed.latest()
	lost.end(errRemote)

	waitFor(t, "resubscription", func() bool {
		return feed.numSubscriptions() == 2
	})

	if calls := lost.numCloseCalls(); calls != 1 {
		t.Errorf("Expected the ended subscription to be closed once, got %d calls", calls)
	}

	waitFor(t, "session switch", func() bool {
		return handle.SessionID() == "s2"
	})

	if session := view.Session(); session == nil || session.ID != "s2" {
		t.Errorf("Expected the view to follow the new session, got: %+v", session)
	}

	sub := feed.latest()

	if sub.sessionID != "s2" {
		t.Errorf("Expected the new subscription to be for s2, got: %s", sub.sessionID)
	}

	sub.push(lapNotification(t, ChangeInsert, Lap{ID: "l1", SessionID: "s2", DriverID: "d1", LapIndex: 1, LapMS: 60000, AbsoluteMS: 60000}))

	waitFor(t, "merge on the new subscription", func() bool {
		return len(view.Laps()) == 1
	})
}
