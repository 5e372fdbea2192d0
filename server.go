package livetiming

import (
	"context"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/pkg/errors"
	"golang.org/x/net/netutil"

	"justapengu.in/livetiming/internal/feed"
	"justapengu.in/livetiming/internal/store"
	"justapengu.in/livetiming/internal/timing"
)

// Server owns the durable store, the change feed and the server's own
// reconciled view of the active session, and serves them over HTTP.
type Server struct {
	config *Config
	logger Logger
	logs   *LogBuffer

	store   *store.BoltStore
	broker  *feed.Broker
	view    *timing.View
	metrics *Metrics
	auth    *Authenticator
	adapter *RaceControlAdapter

	sessionSync  *timing.SessionSync
	stateMachine *timing.StateMachine
	capture      *timing.LapCapture

	syncMutex  sync.Mutex
	syncHandle *timing.SyncHandle

	http *http.Server

	ctx context.Context
	cfn context.CancelFunc

	stopped chan error
}

// NewServer opens the store at config.Store.Path. logs may be nil.
func NewServer(config *Config, logger Logger, logs *LogBuffer) (*Server, error) {
	broker := feed.NewBroker(config.Timing.FeedBufferSize, logger)

	boltStore, err := store.Open(config.Store.Path, broker, logger)

	if err != nil {
		return nil, err
	}

	return newServer(config, boltStore, broker, logger, logs), nil
}

func newServer(config *Config, boltStore *store.BoltStore, broker *feed.Broker, logger Logger, logs *LogBuffer) *Server {
	if logs == nil {
		logs = NewLogBuffer(MaxLogSizeBytes)
	}

	view := timing.NewView(config.Timing.CaptureDebounce)
	metrics := NewMetrics()

	ctx, cfn := context.WithCancel(context.Background())

	s := &Server{
		config:       config,
		logger:       logger,
		logs:         logs,
		store:        boltStore,
		broker:       broker,
		view:         view,
		metrics:      metrics,
		auth:         NewAuthenticator(config.Accounts, logger),
		stateMachine: timing.NewStateMachine(boltStore, time.Now, logger),
		capture:      timing.NewLapCapture(boltStore, view.CaptureGuard(), logger),
		ctx:          ctx,
		cfn:          cfn,
		stopped:      make(chan error, 1),
	}

	s.adapter = NewRaceControlAdapter(view, metrics, logger)
	s.sessionSync = timing.NewSessionSync(boltStore, broker, view, logger)
	s.sessionSync.OnChange = s.adapter.OnChange

	broker.OnLagged = func(string) {
		metrics.laggedFeeds.Inc()
	}

	metrics.RegisterGauge("feed_subscribers", "Open change feed subscriptions.", func() float64 {
		return float64(broker.NumSubscribers())
	})

	return s
}

// View is the server's reconciled view of the active session.
func (s *Server) View() *timing.View {
	return s.view
}

func (s *Server) Start() error {
	if err := s.bootstrap(s.ctx); err != nil {
		return err
	}

	if err := s.follow(s.ctx); err != nil {
		return err
	}

	listener, err := net.Listen("tcp", s.config.HTTP.Addr)

	if err != nil {
		return errors.Wrapf(err, "could not listen on %s", s.config.HTTP.Addr)
	}

	if s.config.HTTP.MaxConnections > 0 {
		listener = netutil.LimitListener(listener, s.config.HTTP.MaxConnections)
	}

	s.http = &http.Server{
		Addr:    s.config.HTTP.Addr,
		Handler: s.Router(),
	}

	s.logger.Infof("HTTP server listening on: %s", listener.Addr())

	go func() {
		err := s.http.Serve(listener)

		if err == http.ErrServerClosed {
			return
		} else if err != nil {
			s.logger.WithError(err).Error("Could not start HTTP server")
			s.stopped <- err
		}
	}()

	return nil
}

func (s *Server) Stop() (err error) {
	s.logger.Infof("Shutting down live timing server")

	defer func() {
		select {
		case s.stopped <- err:
		default:
		}
	}()

	s.cfn()

	if s.http != nil {
		ctx, cfn := context.WithTimeout(context.Background(), 10*time.Second)
		defer cfn()

		if err = s.http.Shutdown(ctx); err != nil {
			return err
		}
	}

	s.syncMutex.Lock()
	handle := s.syncHandle
	s.syncMutex.Unlock()

	if handle != nil {
		if err = handle.Close(); err != nil {
			return err
		}
	}

	if err = s.broker.Close(); err != nil {
		return err
	}

	return s.store.Close()
}

func (s *Server) Run() error {
	if err := s.Start(); err != nil {
		return err
	}

	return <-s.stopped
}

// bootstrap seeds an empty store from the config.
func (s *Server) bootstrap(ctx context.Context) error {
	drivers, err := s.store.Drivers(ctx)

	if err != nil {
		return err
	}

	if len(drivers) == 0 {
		for _, d := range s.config.Bootstrap.Drivers {
			driver, err := s.store.UpsertDriver(ctx, timing.Driver{
				Number: d.Number,
				Name:   d.Name,
				TeamID: d.TeamID,
				Active: true,
			})

			if err != nil {
				return errors.Wrapf(err, "could not bootstrap driver #%d", d.Number)
			}

			s.logger.Infof("Added driver #%d %s", driver.Number, driver.Name)
		}
	}

	latest, err := s.store.LatestSession(ctx)

	if err != nil {
		return err
	}

	if latest == nil && s.config.Bootstrap.Session != nil {
		bs := s.config.Bootstrap.Session

		session, err := s.store.CreateSession(ctx, timing.Session{
			Kind:       bs.Kind,
			Title:      bs.Title,
			TargetLaps: bs.TargetLaps,
			Meta:       bs.Meta,
		})

		if err != nil {
			return errors.Wrap(err, "could not bootstrap session")
		}

		s.logger.Infof("Created session %s (%s)", session.ID, session.Title)
	}

	return nil
}

// follow starts the server's session sync if it is not already running.
// A store without sessions is not an error; the sync starts once one is
// created.
func (s *Server) follow(ctx context.Context) error {
	s.syncMutex.Lock()
	defer s.syncMutex.Unlock()

	if s.syncHandle != nil {
		return nil
	}

	handle, err := s.sessionSync.Start(ctx)

	if err == timing.ErrNoSession {
		s.logger.Warn("No session exists yet, waiting for one to be created")
		return nil
	} else if err != nil {
		return err
	}

	s.syncHandle = handle

	return nil
}

// CreateSession creates a new session and moves every follower, this
// server included, over to it.
func (s *Server) CreateSession(ctx context.Context, session timing.Session) (*timing.Session, error) {
	created, err := s.store.CreateSession(ctx, session)

	if err != nil {
		return nil, err
	}

	s.logger.Infof("Created session %s (%s), moving followers over", created.ID, created.Title)

	s.broker.Disconnect(feed.ErrSessionChanged)

	if err := s.follow(s.ctx); err != nil {
		s.logger.WithError(err).Error("Could not follow new session")
	}

	return created, nil
}
