package livetiming

import (
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/gorilla/websocket"

	"justapengu.in/livetiming/internal/feed"
	"justapengu.in/livetiming/internal/remote"
)

const (
	liveWriteWait  = 10 * time.Second
	livePingPeriod = 30 * time.Second
)

func (s *Server) upgrader() *websocket.Upgrader {
	return &websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin:     s.checkOrigin,
	}
}

// checkOrigin allows requests without an Origin header, same-origin requests
// and any configured origin.
func (s *Server) checkOrigin(r *http.Request) bool {
	origin := r.Header.Get("Origin")

	if origin == "" {
		return true
	}

	u, err := url.Parse(origin)

	if err != nil {
		return false
	}

	if strings.EqualFold(u.Host, r.Host) {
		return true
	}

	for _, allowed := range s.config.HTTP.AllowedOrigins {
		if allowed == "*" || strings.EqualFold(allowed, origin) {
			return true
		}
	}

	return false
}

// closeMessageFor tells a live client why its feed ended.
func closeMessageFor(err error) []byte {
	switch err {
	case feed.ErrLagged:
		return websocket.FormatCloseMessage(remote.CloseLagged, "subscriber fell behind")
	case feed.ErrSessionChanged:
		return websocket.FormatCloseMessage(websocket.CloseServiceRestart, "session changed")
	case feed.ErrClosed:
		return websocket.FormatCloseMessage(websocket.CloseGoingAway, "server shutting down")
	default:
		return websocket.FormatCloseMessage(websocket.CloseNormalClosure, "")
	}
}

// liveHandler streams change notifications for a session over a websocket,
// one JSON notification per message.
func (s *Server) liveHandler(w http.ResponseWriter, r *http.Request) {
	sessionID := r.URL.Query().Get("sessionId")

	if sessionID == "" {
		session, err := s.activeSession()

		if err != nil {
			s.handleError(w, r, err, "Could not open live feed")
			return
		}

		sessionID = session.ID
	}

	sub, err := s.broker.Subscribe(r.Context(), sessionID)

	if err != nil {
		s.handleError(w, r, err, "Could not open live feed")
		return
	}

	defer sub.Close()

	conn, err := s.upgrader().Upgrade(w, r, nil)

	if err != nil {
		s.logger.WithError(err).Debug("Could not upgrade live feed connection")
		return
	}

	defer conn.Close()

	s.metrics.liveConnections.Inc()
	defer s.metrics.liveConnections.Dec()

	s.logger.Debugf("Live feed opened for session %s from %s", sessionID, r.RemoteAddr)

	readerDone := make(chan struct{})

	// clients never send anything, but reading is how close frames and
	// dropped connections are noticed.
	go func() {
		defer close(readerDone)

		for {
			if _, _, err := conn.NextReader(); err != nil {
				return
			}
		}
	}()

	ticker := time.NewTicker(livePingPeriod)
	defer ticker.Stop()

	for {
		select {
		case n, ok := <-sub.Notifications():
			if !ok {
				_ = conn.WriteControl(websocket.CloseMessage, closeMessageFor(sub.Err()), time.Now().Add(liveWriteWait))
				return
			}

			_ = conn.SetWriteDeadline(time.Now().Add(liveWriteWait))

			if err := conn.WriteJSON(n); err != nil {
				s.logger.WithError(err).Debugf("Live feed for session %s closed", sessionID)
				return
			}
		case <-ticker.C:
			if err := conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(liveWriteWait)); err != nil {
				return
			}
		case <-readerDone:
			return
		}
	}
}
