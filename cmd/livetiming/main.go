package main

import (
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/sirupsen/logrus"

	"justapengu.in/livetiming"
)

var (
	configPath   string
	hashPassword string
)

func init() {
	flag.StringVar(&configPath, "c", "./config.yml", "config path")
	flag.StringVar(&hashPassword, "hash-password", "", "print a password_hash for the given password and exit")
	flag.Parse()
}

func main() {
	if hashPassword != "" {
		hash, err := livetiming.HashPassword(hashPassword)

		if err != nil {
			logrus.WithError(err).Fatal("Could not hash password")
		}

		fmt.Println(hash)
		return
	}

	config, err := livetiming.ReadConfig(configPath)

	if err != nil {
		logrus.WithError(err).Fatalf("Could not read config at %s", configPath)
	}

	logger, logs, err := livetiming.NewLogger(config.Log.Level)

	if err != nil {
		logrus.WithError(err).Fatal("Could not set up logging")
	}

	logger.Infof("Starting live timing server")

	server, err := livetiming.NewServer(config, logger, logs)

	if err != nil {
		logger.WithError(err).Fatal("Could not initialise server")
	}

	c := make(chan os.Signal, 1)
	signal.Notify(c, os.Interrupt, syscall.SIGTERM)

	go func() {
		for range c {
			if err := server.Stop(); err != nil {
				logger.WithError(err).Fatal("Could not stop server")
			}

			os.Exit(0)
		}
	}()

	err = server.Run()

	if err != nil {
		logger.WithError(err).Fatal("could not run server")
	}

	logger.Infof("Server stopped. Exiting")
}
