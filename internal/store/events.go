package store

import (
	"context"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"go.etcd.io/bbolt"

	"justapengu.in/livetiming/internal/timing"
)

// InsertEvent appends an event to its session's audit log. Events are keyed
// by sequence so that they read back in insertion order.
func (bs *BoltStore) InsertEvent(ctx context.Context, event timing.Event) (*timing.Event, error) {
	if err := checkContext(ctx); err != nil {
		return nil, err
	}

	event.ID = uuid.New().String()
	event.CreatedAt = bs.now()

	err := bs.db.Update(func(tx *bbolt.Tx) error {
		if _, err := loadSession(tx, event.SessionID); err != nil {
			return err
		}

		bucket, err := sessionBucket(tx, eventsBucket, event.SessionID, true)

		if err != nil {
			return err
		}

		seq, err := bucket.NextSequence()

		if err != nil {
			return err
		}

		return encode(bucket, itob(seq), event)
	})

	if err != nil {
		return nil, errors.Wrapf(err, "store: could not insert %s event", event.Type)
	}

	bs.publish(timing.TableEvents, timing.ChangeInsert, event.SessionID, event, nil)

	return &event, nil
}

// SessionEvents returns the audit log of a session, oldest first.
func (bs *BoltStore) SessionEvents(ctx context.Context, sessionID string) ([]timing.Event, error) {
	if err := checkContext(ctx); err != nil {
		return nil, err
	}

	var events []timing.Event

	err := bs.db.View(func(tx *bbolt.Tx) error {
		bucket, err := sessionBucket(tx, eventsBucket, sessionID, false)

		if err != nil || bucket == nil {
			return err
		}

		return bucket.ForEach(func(k, v []byte) error {
			var event timing.Event

			if err := decode(v, &event); err != nil {
				return errors.Wrapf(err, "store: could not decode event %x", k)
			}

			events = append(events, event)

			return nil
		})
	})

	if err != nil {
		return nil, err
	}

	return events, nil
}
