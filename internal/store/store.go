package store

import (
	"context"
	"encoding/binary"
	"encoding/json"
	"time"

	"github.com/pkg/errors"
	"go.etcd.io/bbolt"

	"justapengu.in/livetiming/internal/timing"
)

var (
	ErrSessionNotFound = errors.New("store: session not found")
	ErrDriverNotFound  = errors.New("store: driver not found")
	ErrLapNotFound     = errors.New("store: lap not found")
	ErrInvalidElapsed  = errors.New("store: invalid elapsed time")
	ErrInvalidDriver   = errors.New("store: invalid driver")
	ErrInvalidSession  = errors.New("store: invalid session")
)

var (
	sessionsBucket = []byte("sessions")
	driversBucket  = []byte("drivers")
	lapsBucket     = []byte("laps")
	eventsBucket   = []byte("events")
)

var (
	_ timing.SessionStore   = (*BoltStore)(nil)
	_ timing.LapStore       = (*BoltStore)(nil)
	_ timing.SnapshotSource = (*BoltStore)(nil)
)

// Publisher receives a notification for every committed write.
type Publisher interface {
	Publish(n timing.Notification)
}

// BoltStore is the durable store for sessions, drivers, laps and events.
// Laps and events are kept in one nested bucket per session.
type BoltStore struct {
	db        *bbolt.DB
	publisher Publisher
	logger    timing.Logger

	now func() time.Time
}

// Open opens (or creates) the bolt database at path.
func Open(path string, publisher Publisher, logger timing.Logger) (*BoltStore, error) {
	db, err := bbolt.Open(path, 0644, &bbolt.Options{Timeout: 5 * time.Second})

	if err != nil {
		return nil, errors.Wrapf(err, "store: could not open database at %s", path)
	}

	bs, err := NewBoltStore(db, publisher, logger)

	if err != nil {
		_ = db.Close()
		return nil, err
	}

	return bs, nil
}

func NewBoltStore(db *bbolt.DB, publisher Publisher, logger timing.Logger) (*BoltStore, error) {
	err := db.Update(func(tx *bbolt.Tx) error {
		for _, bucket := range [][]byte{sessionsBucket, driversBucket, lapsBucket, eventsBucket} {
			if _, err := tx.CreateBucketIfNotExists(bucket); err != nil {
				return err
			}
		}

		return nil
	})

	if err != nil {
		return nil, errors.Wrap(err, "store: could not create buckets")
	}

	return &BoltStore{
		db:        db,
		publisher: publisher,
		logger:    logger,
		now:       time.Now,
	}, nil
}

func (bs *BoltStore) Close() error {
	return bs.db.Close()
}

// Path is the location of the database file.
func (bs *BoltStore) Path() string {
	return bs.db.Path()
}

func (bs *BoltStore) publish(table timing.Table, kind timing.ChangeKind, sessionID string, newRow, oldRow interface{}) {
	if bs.publisher == nil {
		return
	}

	n, err := timing.NewNotification(table, kind, sessionID, newRow, oldRow)

	if err != nil {
		bs.logger.WithError(err).Errorf("Could not encode %s notification for %s", kind, table)
		return
	}

	bs.publisher.Publish(n)
}

func encode(bucket *bbolt.Bucket, key []byte, data interface{}) error {
	b, err := json.Marshal(data)

	if err != nil {
		return err
	}

	return bucket.Put(key, b)
}

func decode(data []byte, into interface{}) error {
	return json.Unmarshal(data, into)
}

func itob(v uint64) []byte {
	b := make([]byte, 8)
	binary.BigEndian.PutUint64(b, v)

	return b
}

// sessionBucket returns the nested bucket for sessionID under parent,
// creating it if create is set. It returns nil if it does not exist.
func sessionBucket(tx *bbolt.Tx, parent []byte, sessionID string, create bool) (*bbolt.Bucket, error) {
	root := tx.Bucket(parent)

	if create {
		return root.CreateBucketIfNotExists([]byte(sessionID))
	}

	return root.Bucket([]byte(sessionID)), nil
}

func checkContext(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return errors.Wrap(err, "store")
	}

	return nil
}
