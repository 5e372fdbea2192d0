package store

import (
	"context"
	"sort"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"go.etcd.io/bbolt"

	"justapengu.in/livetiming/internal/timing"
)

// CommitLap records a lap for driverID completed absoluteMS after the race
// start. The lap index and lap duration are derived from the driver's
// previous lap inside a single write transaction, so concurrent commits for
// the same driver never share a lap index.
func (bs *BoltStore) CommitLap(ctx context.Context, sessionID, driverID string, absoluteMS int64) (*timing.Lap, error) {
	if err := checkContext(ctx); err != nil {
		return nil, err
	}

	if absoluteMS < 0 {
		return nil, errors.Wrapf(ErrInvalidElapsed, "%dms is before the race start", absoluteMS)
	}

	var lap timing.Lap

	err := bs.db.Update(func(tx *bbolt.Tx) error {
		if _, err := loadSession(tx, sessionID); err != nil {
			return err
		}

		if _, err := loadDriver(tx, driverID); err != nil {
			return err
		}

		bucket, err := sessionBucket(tx, lapsBucket, sessionID, true)

		if err != nil {
			return err
		}

		var previous timing.Lap

		err = bucket.ForEach(func(k, v []byte) error {
			var existing timing.Lap

			if err := decode(v, &existing); err != nil {
				return errors.Wrapf(err, "store: could not decode lap %s", k)
			}

			if existing.DriverID == driverID && existing.LapIndex > previous.LapIndex {
				previous = existing
			}

			return nil
		})

		if err != nil {
			return err
		}

		if absoluteMS < previous.AbsoluteMS {
			return errors.Wrapf(ErrInvalidElapsed, "%dms is before the previous lap at %dms", absoluteMS, previous.AbsoluteMS)
		}

		lap = timing.Lap{
			ID:         uuid.New().String(),
			SessionID:  sessionID,
			DriverID:   driverID,
			LapIndex:   previous.LapIndex + 1,
			LapMS:      absoluteMS - previous.AbsoluteMS,
			AbsoluteMS: absoluteMS,
			Valid:      true,
			CreatedAt:  bs.now(),
		}

		return encode(bucket, []byte(lap.ID), lap)
	})

	if err != nil {
		return nil, errors.Wrapf(err, "store: could not commit lap for driver %s", driverID)
	}

	bs.publish(timing.TableLaps, timing.ChangeInsert, sessionID, lap, nil)

	return &lap, nil
}

// DeleteLap removes a lap from whichever session it belongs to.
func (bs *BoltStore) DeleteLap(ctx context.Context, lapID string) error {
	if err := checkContext(ctx); err != nil {
		return err
	}

	var deleted *timing.Lap

	err := bs.db.Update(func(tx *bbolt.Tx) error {
		root := tx.Bucket(lapsBucket)

		return root.ForEach(func(sessionID, v []byte) error {
			if v != nil || deleted != nil {
				// not a nested bucket, or already found
				return nil
			}

			bucket := root.Bucket(sessionID)
			data := bucket.Get([]byte(lapID))

			if data == nil {
				return nil
			}

			var lap timing.Lap

			if err := decode(data, &lap); err != nil {
				return errors.Wrapf(err, "store: could not decode lap %s", lapID)
			}

			deleted = &lap

			return bucket.Delete([]byte(lapID))
		})
	})

	if err != nil {
		return errors.Wrapf(err, "store: could not delete lap %s", lapID)
	}

	if deleted == nil {
		return errors.Wrapf(ErrLapNotFound, "id %s", lapID)
	}

	bs.publish(timing.TableLaps, timing.ChangeDelete, deleted.SessionID, nil, *deleted)

	return nil
}

// SessionLaps returns the laps of a session by lap index, then driver.
func (bs *BoltStore) SessionLaps(ctx context.Context, sessionID string) ([]timing.Lap, error) {
	if err := checkContext(ctx); err != nil {
		return nil, err
	}

	var laps []timing.Lap

	err := bs.db.View(func(tx *bbolt.Tx) error {
		bucket, err := sessionBucket(tx, lapsBucket, sessionID, false)

		if err != nil || bucket == nil {
			return err
		}

		return bucket.ForEach(func(k, v []byte) error {
			var lap timing.Lap

			if err := decode(v, &lap); err != nil {
				return errors.Wrapf(err, "store: could not decode lap %s", k)
			}

			laps = append(laps, lap)

			return nil
		})
	})

	if err != nil {
		return nil, err
	}

	sort.Slice(laps, func(i, j int) bool {
		if laps[i].LapIndex != laps[j].LapIndex {
			return laps[i].LapIndex < laps[j].LapIndex
		}

		if laps[i].DriverID != laps[j].DriverID {
			return laps[i].DriverID < laps[j].DriverID
		}

		return laps[i].ID < laps[j].ID
	})

	return laps, nil
}
