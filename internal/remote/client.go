package remote

import (
	"context"
	"encoding/json"
	"fmt"
	"io/ioutil"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/gorilla/websocket"
	"github.com/pkg/errors"

	"justapengu.in/livetiming/internal/timing"
)

// ErrStatus is returned for any non-2xx response.
var ErrStatus = errors.New("remote: unexpected status")

// Client reads snapshots from, and follows the live change feed of, a
// livetiming server.
type Client struct {
	baseURL    *url.URL
	httpClient *http.Client
	dialer     *websocket.Dialer
	logger     timing.Logger
}

var (
	_ timing.SnapshotSource = (*Client)(nil)
	_ timing.Feed           = (*Client)(nil)
)

func NewClient(baseURL string, logger timing.Logger) (*Client, error) {
	u, err := url.Parse(strings.TrimSuffix(baseURL, "/"))

	if err != nil {
		return nil, errors.Wrapf(err, "remote: invalid server url %q", baseURL)
	}

	if u.Scheme != "http" && u.Scheme != "https" {
		return nil, errors.Errorf("remote: unsupported scheme %q", u.Scheme)
	}

	return &Client{
		baseURL:    u,
		httpClient: &http.Client{Timeout: 15 * time.Second},
		dialer: &websocket.Dialer{
			Proxy:            http.ProxyFromEnvironment,
			HandshakeTimeout: 10 * time.Second,
		},
		logger: logger,
	}, nil
}

func (c *Client) url(path string, query url.Values) string {
	u := *c.baseURL
	u.Path += path
	u.RawQuery = query.Encode()

	return u.String()
}

// get decodes the JSON body at path into out. It reports whether the
// resource was found.
func (c *Client) get(ctx context.Context, path string, out interface{}) (bool, error) {
	req, err := http.NewRequest(http.MethodGet, c.url(path, nil), nil)

	if err != nil {
		return false, err
	}

	resp, err := c.httpClient.Do(req.WithContext(ctx))

	if err != nil {
		return false, errors.Wrapf(err, "remote: GET %s", path)
	}

	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return false, nil
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		body, _ := ioutil.ReadAll(resp.Body)

		return false, errors.Wrapf(ErrStatus, "GET %s: %d %s", path, resp.StatusCode, strings.TrimSpace(string(body)))
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return false, errors.Wrapf(err, "remote: could not decode %s", path)
	}

	return true, nil
}

func (c *Client) LatestSession(ctx context.Context) (*timing.Session, error) {
	var session timing.Session

	found, err := c.get(ctx, "/api/sessions/latest", &session)

	if err != nil || !found {
		return nil, err
	}

	return &session, nil
}

func (c *Client) ActiveDrivers(ctx context.Context) ([]timing.Driver, error) {
	var drivers []timing.Driver

	_, err := c.get(ctx, "/api/drivers", &drivers)

	return drivers, err
}

func (c *Client) SessionLaps(ctx context.Context, sessionID string) ([]timing.Lap, error) {
	var laps []timing.Lap

	_, err := c.get(ctx, fmt.Sprintf("/api/sessions/%s/laps", url.PathEscape(sessionID)), &laps)

	return laps, err
}

func (c *Client) SessionEvents(ctx context.Context, sessionID string) ([]timing.Event, error) {
	var events []timing.Event

	_, err := c.get(ctx, fmt.Sprintf("/api/sessions/%s/events", url.PathEscape(sessionID)), &events)

	return events, err
}

// Subscribe opens a websocket to the server's live feed for sessionID.
func (c *Client) Subscribe(ctx context.Context, sessionID string) (timing.Subscription, error) {
	u := *c.baseURL
	u.Path += "/api/live"
	u.RawQuery = url.Values{"sessionId": {sessionID}}.Encode()

	if u.Scheme == "https" {
		u.Scheme = "wss"
	} else {
		u.Scheme = "ws"
	}

	conn, resp, err := c.dialer.DialContext(ctx, u.String(), nil)

	if err != nil {
		if resp != nil {
			return nil, errors.Wrapf(err, "remote: could not subscribe to session %s (status %d)", sessionID, resp.StatusCode)
		}

		return nil, errors.Wrapf(err, "remote: could not subscribe to session %s", sessionID)
	}

	sub := newSubscription(conn, c.logger)

	go sub.read()

	return sub, nil
}
