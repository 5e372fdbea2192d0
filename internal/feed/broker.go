package feed

import (
	"context"
	"errors"
	"sync"

	"justapengu.in/livetiming/internal/timing"
)

var (
	// ErrLagged ends a subscription whose buffer filled up. The subscriber
	// has missed notifications and must reload its snapshot.
	ErrLagged = errors.New("feed: subscriber fell behind")

	ErrClosed = errors.New("feed: broker closed")

	// ErrSessionChanged ends subscriptions when a newer session is created.
	ErrSessionChanged = errors.New("feed: a new session has been created")
)

const DefaultBufferSize = 256

// Broker fans out store notifications to subscribers in-process. Session
// scoped notifications go to subscribers of that session; notifications
// without a session (drivers) go to every subscriber.
type Broker struct {
	mutex       sync.Mutex
	subscribers map[*subscription]struct{}
	closed      bool

	bufferSize int
	logger     timing.Logger

	// OnLagged, if set, is called when a subscriber is dropped for lagging.
	OnLagged func(sessionID string)
}

var _ timing.Feed = (*Broker)(nil)

func NewBroker(bufferSize int, logger timing.Logger) *Broker {
	if bufferSize <= 0 {
		bufferSize = DefaultBufferSize
	}

	return &Broker{
		subscribers: make(map[*subscription]struct{}),
		bufferSize:  bufferSize,
		logger:      logger,
	}
}

// Subscribe registers a subscriber for sessionID. ctx only bounds the
// registration; the subscription lasts until it is closed.
func (b *Broker) Subscribe(ctx context.Context, sessionID string) (timing.Subscription, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	b.mutex.Lock()
	defer b.mutex.Unlock()

	if b.closed {
		return nil, ErrClosed
	}

	sub := &subscription{
		broker:    b,
		sessionID: sessionID,
		ch:        make(chan timing.Notification, b.bufferSize),
	}

	b.subscribers[sub] = struct{}{}

	b.logger.Debugf("Subscribed to session %s (%d subscribers)", sessionID, len(b.subscribers))

	return sub, nil
}

// Publish delivers n to every interested subscriber without blocking.
func (b *Broker) Publish(n timing.Notification) {
	var lagged []string

	b.mutex.Lock()

	for sub := range b.subscribers {
		if n.SessionID != "" && n.SessionID != sub.sessionID {
			continue
		}

		select {
		case sub.ch <- n:
		default:
			b.remove(sub, ErrLagged)
			lagged = append(lagged, sub.sessionID)
		}
	}

	b.mutex.Unlock()

	for _, sessionID := range lagged {
		b.logger.Warnf("Dropped lagging subscriber to session %s", sessionID)

		if b.OnLagged != nil {
			b.OnLagged(sessionID)
		}
	}
}

// NumSubscribers is the number of open subscriptions.
func (b *Broker) NumSubscribers() int {
	b.mutex.Lock()
	defer b.mutex.Unlock()

	return len(b.subscribers)
}

// Disconnect ends every current subscription with err. Unlike Close, the
// broker keeps accepting new subscriptions.
func (b *Broker) Disconnect(err error) {
	b.mutex.Lock()
	defer b.mutex.Unlock()

	for sub := range b.subscribers {
		b.remove(sub, err)
	}
}

// Close ends every subscription with ErrClosed and rejects new ones.
func (b *Broker) Close() error {
	b.mutex.Lock()
	defer b.mutex.Unlock()

	b.closed = true

	for sub := range b.subscribers {
		b.remove(sub, ErrClosed)
	}

	return nil
}

// remove must be called with the mutex held.
func (b *Broker) remove(sub *subscription, err error) {
	if _, ok := b.subscribers[sub]; !ok {
		return
	}

	delete(b.subscribers, sub)

	sub.err = err
	close(sub.ch)
}

type subscription struct {
	broker    *Broker
	sessionID string
	ch        chan timing.Notification

	// err is written under the broker's mutex.
	err error
}

func (s *subscription) Notifications() <-chan timing.Notification {
	return s.ch
}

func (s *subscription) Err() error {
	s.broker.mutex.Lock()
	defer s.broker.mutex.Unlock()

	return s.err
}

func (s *subscription) Close() error {
	s.broker.mutex.Lock()
	defer s.broker.mutex.Unlock()

	s.broker.remove(s, nil)

	return nil
}
