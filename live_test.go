package livetiming

import (
	"context"
	"net/http"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/prometheus/client_golang/prometheus/testutil"

	"justapengu.in/livetiming/internal/feed"
	"justapengu.in/livetiming/internal/remote"
	"justapengu.in/livetiming/internal/timing"
)

func nextNotification(t *testing.T, sub timing.Subscription) (timing.Notification, bool) {
	t.Helper()

	select {
	case n, ok := <-sub.Notifications():
		return n, ok
	case <-time.After(5 * time.Second):
		t.Fatal("Timed out waiting for a notification")
		return timing.Notification{}, false
	}
}

func TestLiveFeed(t *testing.T) {
	ts := newTestServer(t, testConfig(t))
	session := ts.View().Session()

	client, err := remote.NewClient(ts.url, testLogger())

	if err != nil {
		t.Fatal(err)
	}

	sub, err := client.Subscribe(context.Background(), session.ID)

	if err != nil {
		t.Fatal(err)
	}

	defer sub.Close()

	waitFor(t, "the live connection to subscribe", func() bool {
		return ts.broker.NumSubscribers() == 2
	})

	resp := ts.do(http.MethodPost, "/api/session/final-call", "operator", nil)
	ts.expectStatus(resp, http.StatusOK, "")

	n, ok := nextNotification(t, sub)

	if !ok || n.Table != timing.TableSessions || n.Kind != timing.ChangeUpdate {
		t.Fatalf("Expected a session update, got: %+v (open: %t)", n, ok)
	}

	change, err := timing.DecodeNotification(n)

	if err != nil {
		t.Fatal(err)
	}

	if change.(timing.SessionChange).Session.State != timing.StateFinalCall {
		t.Errorf("Unexpected session change: %+v", change)
	}

	n, ok = nextNotification(t, sub)

	if !ok || n.Table != timing.TableEvents || n.Kind != timing.ChangeInsert {
		t.Errorf("Expected the final call event, got: %+v", n)
	}

	// a new session ends every live feed
	resp = ts.do(http.MethodPost, "/api/sessions", "admin", createSessionRequest{Title: "Heat 2"})
	ts.expectStatus(resp, http.StatusCreated, "")

	for {
		if _, ok := nextNotification(t, sub); !ok {
			break
		}
	}

	if sub.Err() == nil {
		t.Error("Expected the live feed to end with an error")
	}
}

func TestLiveFeedLagged(t *testing.T) {
	conf := testConfig(t)
	conf.Timing.FeedBufferSize = 1

	ts := newTestServer(t, conf)

	// a session of its own, so that flooding it leaves the server's sync alone
	u := "ws" + strings.TrimPrefix(ts.url, "http") + "/api/live?sessionId=flooded"

	conn, _, err := websocket.DefaultDialer.Dial(u, nil)

	if err != nil {
		t.Fatal(err)
	}

	defer conn.Close()

	waitFor(t, "the live connection to subscribe", func() bool {
		return ts.broker.NumSubscribers() == 2
	})

	// flood the feed without reading
	for i := 0; i < 100000 && ts.broker.NumSubscribers() == 2; i++ {
		ts.broker.Publish(timing.Notification{Table: timing.TableLaps, Kind: timing.ChangeInsert, SessionID: "flooded"})
	}

	if ts.broker.NumSubscribers() != 1 {
		t.Fatal("Expected the live connection to fall behind")
	}

	if lagged := testutil.ToFloat64(ts.metrics.laggedFeeds); lagged != 1 {
		t.Errorf("Expected one lagged feed to be counted, got %v", lagged)
	}

	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			if !websocket.IsCloseError(err, remote.CloseLagged) {
				t.Errorf("Expected close code %d, got: %v", remote.CloseLagged, err)
			}

			break
		}
	}
}

func TestCloseMessageFor(t *testing.T) {
	testCases := []struct {
		err  error
		code int
	}{
		{feed.ErrLagged, remote.CloseLagged},
		{feed.ErrSessionChanged, websocket.CloseServiceRestart},
		{feed.ErrClosed, websocket.CloseGoingAway},
		{nil, websocket.CloseNormalClosure},
	}

	for _, tc := range testCases {
		msg := closeMessageFor(tc.err)

		if code := int(msg[0])<<8 | int(msg[1]); code != tc.code {
			t.Errorf("Expected close code %d for %v, got %d", tc.code, tc.err, code)
		}
	}
}

func TestCheckOrigin(t *testing.T) {
	ts := newTestServer(t, testConfig(t))
	ts.config.HTTP.AllowedOrigins = []string{"https://timing.example.com"}

	testCases := []struct {
		origin  string
		allowed bool
	}{
		{"", true},
		{"http://livetiming.local:8772", true},
		{"https://timing.example.com", true},
		{"https://evil.example.com", false},
	}

	for _, tc := range testCases {
		r, err := http.NewRequest(http.MethodGet, "http://livetiming.local:8772/api/live", nil)

		if err != nil {
			t.Fatal(err)
		}

		if tc.origin != "" {
			r.Header.Set("Origin", tc.origin)
		}

		if got := ts.checkOrigin(r); got != tc.allowed {
			t.Errorf("Origin %q: expected %t, got %t", tc.origin, tc.allowed, got)
		}
	}
}
