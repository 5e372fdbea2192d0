package timing

import (
	"context"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"
)

const (
	resyncMinBackoff = 500 * time.Millisecond
	resyncMaxBackoff = 30 * time.Second
)

// SessionSync keeps a View current: it loads a snapshot of the latest session,
// subscribes to that session's change feed and merges every notification into
// the View. Operator and viewer processes use it the same way.
type SessionSync struct {
	source SnapshotSource
	feed   Feed
	view   *View
	logger Logger

	// OnChange, if set, is called after each merged change.
	OnChange func(Change)
}

func NewSessionSync(source SnapshotSource, feed Feed, view *View, logger Logger) *SessionSync {
	return &SessionSync{
		source: source,
		feed:   feed,
		view:   view,
		logger: logger,
	}
}

// SyncHandle controls a running SessionSync. Close stops further merges;
// anything that arrives after Close is dropped.
type SyncHandle struct {
	sessionID string

	ctx context.Context
	cfn context.CancelFunc

	mutex    sync.Mutex
	disposed bool
	sub      Subscription

	done chan struct{}
}

// SessionID is the session being followed. It changes if a resync finds a
// newer session.
func (h *SyncHandle) SessionID() string {
	h.mutex.Lock()
	defer h.mutex.Unlock()

	return h.sessionID
}

// Done is closed once the merge loop has exited.
func (h *SyncHandle) Done() <-chan struct{} {
	return h.done
}

func (h *SyncHandle) Close() error {
	h.mutex.Lock()

	if h.disposed {
		h.mutex.Unlock()
		return nil
	}

	h.disposed = true
	sub := h.sub
	h.mutex.Unlock()

	h.cfn()

	var err error

	if sub != nil {
		err = sub.Close()
	}

	<-h.done

	return err
}

func (h *SyncHandle) isDisposed() bool {
	h.mutex.Lock()
	defer h.mutex.Unlock()

	return h.disposed
}

func (h *SyncHandle) setSubscription(sessionID string, sub Subscription) bool {
	h.mutex.Lock()
	defer h.mutex.Unlock()

	if h.disposed {
		return false
	}

	h.sessionID = sessionID
	h.sub = sub

	return true
}

// Start loads the initial snapshot and begins merging notifications. It fails
// with ErrNoSession if the store has no session.
func (s *SessionSync) Start(ctx context.Context) (*SyncHandle, error) {
	session, sub, err := s.load(ctx)

	if err != nil {
		return nil, err
	}

	handleCtx, cfn := context.WithCancel(context.Background())

	handle := &SyncHandle{
		sessionID: session.ID,
		ctx:       handleCtx,
		cfn:       cfn,
		sub:       sub,
		done:      make(chan struct{}),
	}

	go s.loop(handle)

	return handle, nil
}

// load subscribes before reading the collections, so a change made while
// the snapshot is being read is still delivered afterwards.
func (s *SessionSync) load(ctx context.Context) (*Session, Subscription, error) {
	session, err := s.source.LatestSession(ctx)

	if err != nil {
		return nil, nil, err
	}

	if session == nil {
		return nil, nil, ErrNoSession
	}

	sub, err := s.feed.Subscribe(ctx, session.ID)

	if err != nil {
		return nil, nil, err
	}

	var drivers []Driver
	var laps []Lap
	var events []Event

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() (err error) {
		drivers, err = s.source.ActiveDrivers(gctx)
		return err
	})

	g.Go(func() (err error) {
		laps, err = s.source.SessionLaps(gctx, session.ID)
		return err
	})

	g.Go(func() (err error) {
		events, err = s.source.SessionEvents(gctx, session.ID)
		return err
	})

	if err := g.Wait(); err != nil {
		_ = sub.Close()
		return nil, nil, err
	}

	s.view.SetSession(session)
	s.view.SetDrivers(drivers)
	s.view.SetLaps(laps)
	s.view.SetEvents(events)

	s.logger.Infof("Loaded session %s (%s): %d drivers, %d laps, %d events", session.ID, session.Title, len(drivers), len(laps), len(events))

	return session, sub, nil
}

func (s *SessionSync) loop(handle *SyncHandle) {
	defer close(handle.done)

	backoff := resyncMinBackoff

	for {
		handle.mutex.Lock()
		sub := handle.sub
		handle.mutex.Unlock()

		for n := range sub.Notifications() {
			s.merge(handle, n)
		}

		if handle.isDisposed() || handle.ctx.Err() != nil {
			return
		}

		previousSessionID := handle.SessionID()

		s.logger.WithError(sub.Err()).Warnf("Change feed for session %s ended, resyncing", previousSessionID)

		if err := sub.Close(); err != nil {
			s.logger.WithError(err).Debug("Could not close ended change feed")
		}

		for {
			select {
			case <-handle.ctx.Done():
				return
			case <-time.After(backoff):
			}

			session, newSub, err := s.load(handle.ctx)

			if err == nil {
				if !handle.setSubscription(session.ID, newSub) {
					_ = newSub.Close()
					return
				}

				if session.ID != previousSessionID {
					s.logger.Infof("Active session changed from %s to %s", previousSessionID, session.ID)
				}

				backoff = resyncMinBackoff
				break
			}

			s.logger.WithError(err).Errorf("Could not resync session, retrying in %s", backoff)

			backoff *= 2

			if backoff > resyncMaxBackoff {
				backoff = resyncMaxBackoff
			}
		}
	}
}

func (s *SessionSync) merge(handle *SyncHandle, n Notification) {
	if handle.isDisposed() {
		return
	}

	change, err := DecodeNotification(n)

	if err != nil {
		s.logger.WithError(err).Warnf("Dropping %s notification for %s", n.Kind, n.Table)
		return
	}

	if err := s.view.Apply(change); err != nil {
		s.logger.WithError(err).Errorf("Could not apply %s change to %s", change.Kind(), change.Table())
		return
	}

	if s.OnChange != nil {
		s.OnChange(change)
	}
}
