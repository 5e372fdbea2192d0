package store

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"go.etcd.io/bbolt"

	"justapengu.in/livetiming/internal/timing"
)

type sessionRecord struct {
	timing.Session

	CreatedAt time.Time `json:"created_at"`
}

func loadSession(tx *bbolt.Tx, sessionID string) (*sessionRecord, error) {
	data := tx.Bucket(sessionsBucket).Get([]byte(sessionID))

	if data == nil {
		return nil, errors.Wrapf(ErrSessionNotFound, "id %s", sessionID)
	}

	var record sessionRecord

	if err := decode(data, &record); err != nil {
		return nil, errors.Wrapf(err, "store: could not decode session %s", sessionID)
	}

	return &record, nil
}

// CreateSession stores a new session in PREP with no race start. An empty ID
// is assigned.
func (bs *BoltStore) CreateSession(ctx context.Context, session timing.Session) (*timing.Session, error) {
	if err := checkContext(ctx); err != nil {
		return nil, err
	}

	if session.ID == "" {
		session.ID = uuid.New().String()
	}

	if session.State == "" {
		session.State = timing.StatePrep
	}

	if !session.State.IsValid() {
		return nil, errors.Wrapf(ErrInvalidSession, "state %q", session.State)
	}

	if session.Kind == "" {
		session.Kind = timing.SessionKindRace
	}

	if !session.Kind.IsValid() {
		return nil, errors.Wrapf(ErrInvalidSession, "type %q", session.Kind)
	}

	record := sessionRecord{
		Session:   *session.Copy(),
		CreatedAt: bs.now(),
	}

	err := bs.db.Update(func(tx *bbolt.Tx) error {
		bucket := tx.Bucket(sessionsBucket)

		if bucket.Get([]byte(session.ID)) != nil {
			return errors.Wrapf(ErrInvalidSession, "session %s already exists", session.ID)
		}

		return encode(bucket, []byte(session.ID), record)
	})

	if err != nil {
		return nil, errors.Wrap(err, "store: could not create session")
	}

	bs.publish(timing.TableSessions, timing.ChangeInsert, session.ID, record.Session, nil)

	return record.Session.Copy(), nil
}

// LatestSession returns the most recently created session, or nil if there
// are none.
func (bs *BoltStore) LatestSession(ctx context.Context) (*timing.Session, error) {
	if err := checkContext(ctx); err != nil {
		return nil, err
	}

	var latest *sessionRecord

	err := bs.db.View(func(tx *bbolt.Tx) error {
		return tx.Bucket(sessionsBucket).ForEach(func(k, v []byte) error {
			var record sessionRecord

			if err := decode(v, &record); err != nil {
				return errors.Wrapf(err, "store: could not decode session %s", k)
			}

			if latest == nil || record.CreatedAt.After(latest.CreatedAt) || (record.CreatedAt.Equal(latest.CreatedAt) && record.ID > latest.ID) {
				latest = &record
			}

			return nil
		})
	})

	if err != nil {
		return nil, err
	}

	if latest == nil {
		return nil, nil
	}

	return latest.Session.Copy(), nil
}

// Session loads a single session by ID.
func (bs *BoltStore) Session(ctx context.Context, sessionID string) (*timing.Session, error) {
	if err := checkContext(ctx); err != nil {
		return nil, err
	}

	var session *timing.Session

	err := bs.db.View(func(tx *bbolt.Tx) error {
		record, err := loadSession(tx, sessionID)

		if err != nil {
			return err
		}

		session = record.Session.Copy()

		return nil
	})

	return session, err
}

// UpdateSession applies patch to the session and publishes the full new and
// old session images.
func (bs *BoltStore) UpdateSession(ctx context.Context, sessionID string, patch timing.SessionPatch) error {
	if err := checkContext(ctx); err != nil {
		return err
	}

	if !patch.State.IsValid() {
		return errors.Wrapf(ErrInvalidSession, "state %q", patch.State)
	}

	var oldSession, newSession timing.Session

	err := bs.db.Update(func(tx *bbolt.Tx) error {
		record, err := loadSession(tx, sessionID)

		if err != nil {
			return err
		}

		oldSession = *record.Session.Copy()

		record.State = patch.State

		if patch.SetRaceStart {
			record.RaceStartEpochMS = nil

			if patch.RaceStartEpochMS != nil {
				start := *patch.RaceStartEpochMS
				record.RaceStartEpochMS = &start
			}
		}

		newSession = *record.Session.Copy()

		return encode(tx.Bucket(sessionsBucket), []byte(sessionID), record)
	})

	if err != nil {
		return errors.Wrapf(err, "store: could not update session %s", sessionID)
	}

	bs.logger.Debugf("Session %s: %s -> %s", sessionID, oldSession.State, newSession.State)

	bs.publish(timing.TableSessions, timing.ChangeUpdate, sessionID, newSession, oldSession)

	return nil
}
