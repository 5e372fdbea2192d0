package timing

import (
	"context"
	"errors"
	"fmt"
	"io/ioutil"
	"sort"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
)

var errRemote = errors.New("remote: permission denied")

func testLogger() Logger {
	logger := logrus.New()
	logger.SetOutput(ioutil.Discard)

	return logger
}

func int64Ptr(i int64) *int64 {
	return &i
}

// fakeStore is an in-memory SessionStore, LapStore and SnapshotSource which
// records every call made to it.
type fakeStore struct {
	mutex sync.Mutex

	session *Session
	drivers []Driver
	laps    map[string]Lap
	events  []Event

	calls []string

	updateErr error
	eventErr  error
	commitErr error
	deleteErr error

	// if set, CommitLap signals commitStarted and waits on commitGate
	commitStarted chan struct{}
	commitGate    chan struct{}

	nextID int
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		session: &Session{ID: "s1", Kind: SessionKindRace, Title: "Sprint", TargetLaps: 10, State: StatePrep},
		laps:    make(map[string]Lap),
	}
}

func (f *fakeStore) id(prefix string) string {
	f.nextID++
	return fmt.Sprintf("%s%d", prefix, f.nextID)
}

func (f *fakeStore) callLog() []string {
	f.mutex.Lock()
	defer f.mutex.Unlock()

	return append([]string(nil), f.calls...)
}

func (f *fakeStore) UpdateSession(_ context.Context, sessionID string, patch SessionPatch) error {
	f.mutex.Lock()
	defer f.mutex.Unlock()

	f.calls = append(f.calls, "UpdateSession")

	if f.updateErr != nil {
		return f.updateErr
	}

	f.session.State = patch.State

	if patch.SetRaceStart {
		f.session.RaceStartEpochMS = patch.RaceStartEpochMS
	}

	return nil
}

func (f *fakeStore) InsertEvent(_ context.Context, event Event) (*Event, error) {
	f.mutex.Lock()
	defer f.mutex.Unlock()

	f.calls = append(f.calls, "InsertEvent")

	if f.eventErr != nil {
		return nil, f.eventErr
	}

	event.ID = f.id("e")
	event.CreatedAt = time.Unix(0, 0).Add(time.Duration(len(f.events)) * time.Second)
	f.events = append(f.events, event)

	return &event, nil
}

func (f *fakeStore) CommitLap(_ context.Context, sessionID, driverID string, absoluteMS int64) (*Lap, error) {
	if f.commitGate != nil {
		f.commitStarted <- struct{}{}
		<-f.commitGate
	}

	f.mutex.Lock()
	defer f.mutex.Unlock()

	f.calls = append(f.calls, "CommitLap")

	if f.commitErr != nil {
		return nil, f.commitErr
	}

	var previous Lap

	for _, lap := range f.laps {
		if lap.DriverID == driverID && lap.LapIndex > previous.LapIndex {
			previous = lap
		}
	}

	lap := Lap{
		ID:         f.id("l"),
		SessionID:  sessionID,
		DriverID:   driverID,
		LapIndex:   previous.LapIndex + 1,
		LapMS:      absoluteMS - previous.AbsoluteMS,
		AbsoluteMS: absoluteMS,
		Valid:      true,
	}

	f.laps[lap.ID] = lap

	return &lap, nil
}

func (f *fakeStore) DeleteLap(_ context.Context, lapID string) error {
	f.mutex.Lock()
	defer f.mutex.Unlock()

	f.calls = append(f.calls, "DeleteLap")

	if f.deleteErr != nil {
		return f.deleteErr
	}

	delete(f.laps, lapID)

	return nil
}

func (f *fakeStore) LatestSession(context.Context) (*Session, error) {
	f.mutex.Lock()
	defer f.mutex.Unlock()

	return f.session.Copy(), nil
}

func (f *fakeStore) ActiveDrivers(context.Context) ([]Driver, error) {
	f.mutex.Lock()
	defer f.mutex.Unlock()

	return append([]Driver(nil), f.drivers...), nil
}

func (f *fakeStore) SessionLaps(context.Context, string) ([]Lap, error) {
	f.mutex.Lock()
	defer f.mutex.Unlock()

	var laps []Lap

	for _, lap := range f.laps {
		laps = append(laps, lap)
	}

	sort.Slice(laps, func(i, j int) bool {
		return laps[i].ID < laps[j].ID
	})

	return laps, nil
}

func (f *fakeStore) SessionEvents(context.Context, string) ([]Event, error) {
	f.mutex.Lock()
	defer f.mutex.Unlock()

	return append([]Event(nil), f.events...), nil
}

// fakeFeed hands out subscriptions whose notifications are pushed by the test.
type fakeFeed struct {
	mutex sync.Mutex
	subs  []*fakeSubscription
}

func (f *fakeFeed) Subscribe(_ context.Context, sessionID string) (Subscription, error) {
	f.mutex.Lock()
	defer f.mutex.Unlock()

	sub := &fakeSubscription{
		sessionID: sessionID,
		ch:        make(chan Notification, 64),
	}

	f.subs = append(f.subs, sub)

	return sub, nil
}

func (f *fakeFeed) latest() *fakeSubscription {
	f.mutex.Lock()
	defer f.mutex.Unlock()

	if len(f.subs) == 0 {
		return nil
	}

	return f.subs[len(f.subs)-1]
}

func (f *fakeFeed) numSubscriptions() int {
	f.mutex.Lock()
	defer f.mutex.Unlock()

	return len(f.subs)
}

type fakeSubscription struct {
	sessionID string
	ch        chan Notification

	mutex      sync.Mutex
	closed     bool
	closeCalls int
	err        error
}

func (s *fakeSubscription) Notifications() <-chan Notification {
	return s.ch
}

func (s *fakeSubscription) Err() error {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	return s.err
}

func (s *fakeSubscription) Close() error {
	s.mutex.Lock()
	s.closeCalls++
	s.mutex.Unlock()

	s.end(nil)
	return nil
}

func (s *fakeSubscription) numCloseCalls() int {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	return s.closeCalls
}

func (s *fakeSubscription) end(err error) {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	if s.closed {
		return
	}

	s.closed = true
	s.err = err
	close(s.ch)
}

func (s *fakeSubscription) push(n Notification) bool {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	if s.closed {
		return false
	}

	s.ch <- n

	return true
}
