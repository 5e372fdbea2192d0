package remote

import (
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/pkg/errors"

	"justapengu.in/livetiming/internal/timing"
)

const (
	// PongWait is how long a live connection may go without a ping from the
	// server before it is considered dead.
	PongWait = 60 * time.Second

	// CloseLagged is the websocket close code the server sends when a
	// subscriber fell behind.
	CloseLagged = 4000
)

var ErrLagged = errors.New("remote: subscription fell behind")

type subscription struct {
	conn   *websocket.Conn
	ch     chan timing.Notification
	done   chan struct{}
	logger timing.Logger

	mutex  sync.Mutex
	closed bool
	err    error
}

func newSubscription(conn *websocket.Conn, logger timing.Logger) *subscription {
	return &subscription{
		conn:   conn,
		ch:     make(chan timing.Notification, 64),
		done:   make(chan struct{}),
		logger: logger,
	}
}

func (s *subscription) read() {
	defer close(s.ch)

	_ = s.conn.SetReadDeadline(time.Now().Add(PongWait))

	s.conn.SetPingHandler(func(data string) error {
		_ = s.conn.SetReadDeadline(time.Now().Add(PongWait))

		err := s.conn.WriteControl(websocket.PongMessage, []byte(data), time.Now().Add(time.Second))

		if err == websocket.ErrCloseSent {
			return nil
		}

		return err
	})

	for {
		var n timing.Notification

		if err := s.conn.ReadJSON(&n); err != nil {
			s.fail(err)
			return
		}

		select {
		case s.ch <- n:
		case <-s.done:
			return
		}
	}
}

// fail ends the subscription after a read error and drops the connection.
func (s *subscription) fail(err error) {
	s.mutex.Lock()

	if s.closed {
		s.mutex.Unlock()
		return
	}

	if websocket.IsCloseError(err, CloseLagged) {
		err = ErrLagged
	}

	s.logger.WithError(err).Warn("Live feed disconnected")

	s.err = errors.Wrap(err, "remote: live feed")
	s.closed = true
	close(s.done)
	s.mutex.Unlock()

	_ = s.conn.Close()
}

func (s *subscription) Notifications() <-chan timing.Notification {
	return s.ch
}

func (s *subscription) Err() error {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	return s.err
}

func (s *subscription) Close() error {
	s.mutex.Lock()

	if s.closed {
		s.mutex.Unlock()
		return nil
	}

	s.closed = true
	close(s.done)
	s.mutex.Unlock()

	_ = s.conn.WriteControl(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), time.Now().Add(time.Second))

	return s.conn.Close()
}
