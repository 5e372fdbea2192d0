package timing

import (
	"context"

	"github.com/sirupsen/logrus"
)

type Logger = logrus.FieldLogger

// SessionPatch is a conditional update of a session row. RaceStartEpochMS is
// only written when SetRaceStart is true, in which case nil clears it.
type SessionPatch struct {
	State            SessionState
	SetRaceStart     bool
	RaceStartEpochMS *int64
}

// SessionStore persists session transitions and their audit events.
type SessionStore interface {
	UpdateSession(ctx context.Context, sessionID string, patch SessionPatch) error
	InsertEvent(ctx context.Context, event Event) (*Event, error)
}

// LapStore is the remote side of a lap capture.
//
// CommitLap must assign the lap index and lap duration atomically so that two
// concurrent commits for the same driver never share a lap index.
type LapStore interface {
	CommitLap(ctx context.Context, sessionID, driverID string, absoluteMS int64) (*Lap, error)
	DeleteLap(ctx context.Context, lapID string) error
	InsertEvent(ctx context.Context, event Event) (*Event, error)
}

// SnapshotSource provides the full collections used to (re)initialise a View.
// LatestSession returns a nil session and no error when none exists.
type SnapshotSource interface {
	LatestSession(ctx context.Context) (*Session, error)
	ActiveDrivers(ctx context.Context) ([]Driver, error)
	SessionLaps(ctx context.Context, sessionID string) ([]Lap, error)
	SessionEvents(ctx context.Context, sessionID string) ([]Event, error)
}

// Feed delivers change notifications for a single session. Delivery is at
// least once and may be out of order.
type Feed interface {
	Subscribe(ctx context.Context, sessionID string) (Subscription, error)
}

type Subscription interface {
	// Notifications is closed when the subscription ends, either by Close or
	// because the feed dropped it, in which case Err is non-nil.
	Notifications() <-chan Notification
	Err() error
	Close() error
}
