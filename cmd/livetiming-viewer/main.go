package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/sirupsen/logrus"

	"justapengu.in/livetiming/internal/remote"
	"justapengu.in/livetiming/internal/timing"
)

var (
	serverURL   string
	refreshRate time.Duration
	logLevel    string
)

func init() {
	flag.StringVar(&serverURL, "server", "http://127.0.0.1:8772", "live timing server url")
	flag.DurationVar(&refreshRate, "refresh", time.Second, "how often the race clock is redrawn")
	flag.StringVar(&logLevel, "log-level", "warn", "log level, logs are written to stderr")
}

func main() {
	flag.Parse()

	logger := logrus.New()
	logger.SetFormatter(&logrus.TextFormatter{
		FullTimestamp: true,
	})
	logger.SetOutput(os.Stderr)

	level, err := logrus.ParseLevel(logLevel)

	if err != nil {
		logger.WithError(err).Fatal("Invalid log level")
	}

	logger.SetLevel(level)

	client, err := remote.NewClient(serverURL, logger)

	if err != nil {
		logger.WithError(err).Fatal("Could not create client")
	}

	ctx, cfn := context.WithCancel(context.Background())
	defer cfn()

	c := make(chan os.Signal, 1)
	signal.Notify(c, os.Interrupt, syscall.SIGTERM)

	go func() {
		<-c
		cfn()
	}()

	view := timing.NewView(0)
	changed := make(chan struct{}, 1)

	sessionSync := timing.NewSessionSync(client, client, view, logger)
	sessionSync.OnChange = func(timing.Change) {
		select {
		case changed <- struct{}{}:
		default:
		}
	}

	handle, err := start(ctx, sessionSync, logger)

	if err != nil {
		if ctx.Err() != nil {
			return
		}

		logger.WithError(err).Fatal("Could not follow session")
	}

	defer handle.Close()

	ticker := time.NewTicker(refreshRate)
	defer ticker.Stop()

	for {
		if err := render(os.Stdout, view, time.Now()); err != nil {
			logger.WithError(err).Error("Could not render leaderboard")
		}

		select {
		case <-ctx.Done():
			return
		case <-handle.Done():
			return
		case <-changed:
		case <-ticker.C:
		}
	}
}

// start waits for the server to have a session to follow.
func start(ctx context.Context, sessionSync *timing.SessionSync, logger logrus.FieldLogger) (*timing.SyncHandle, error) {
	for {
		handle, err := sessionSync.Start(ctx)

		if err == nil {
			return handle, nil
		}

		logger.WithError(err).Warn("Could not load session, retrying")

		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(2 * time.Second):
		}
	}
}
