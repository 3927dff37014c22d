package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/sirupsen/logrus"
	"github.com/spf13/pflag"

	"github.com/stv0g/pion-edge-signaling/pkg/config"
	"github.com/stv0g/pion-edge-signaling/pkg/relay"
)

var (
	configFile   = pflag.StringP("config", "c", "", "Path to YAML configuration file")
	addr         = pflag.String("addr", ":8080", "http service address")
	streamPort   = pflag.Uint32("signaling-stream-port", relay.DefaultSignalingStreamPort, "Port announced for the signaling stream")
	authUsername = pflag.String("api-username", "admin", "Username for API endpoint")
	authPassword = pflag.String("api-password", "", "Password for API endpoint")
	authToken    = pflag.String("api-token", "", "Bearer token for authentication")
	logLevel     = pflag.String("log-level", "info", "Log level")
)

func loadConfig() (*config.RelayConfig, error) {
	cfg, err := config.LoadRelay(*configFile)
	if err != nil {
		return nil, err
	}

	flags := pflag.CommandLine
	if flags.Changed("addr") {
		cfg.Listen = *addr
	}
	if flags.Changed("signaling-stream-port") {
		cfg.SignalingStreamPort = *streamPort
	}
	if flags.Changed("api-username") {
		cfg.API.Username = *authUsername
	}
	if flags.Changed("api-password") {
		cfg.API.Password = *authPassword
	}
	if flags.Changed("api-token") {
		cfg.API.Token = *authToken
	}
	if flags.Changed("log-level") {
		cfg.LogLevel = *logLevel
	}

	return cfg, cfg.Validate()
}

func handleSignals(signals chan os.Signal, r *relay.Relay, server *http.Server) {
	for range signals {
		r.Close()

		if err := server.Shutdown(context.Background()); err != nil {
			logrus.Panicf("Failed to shutdown HTTP server: %s", err)
		}
	}
}

func main() {
	pflag.Parse()

	cfg, err := loadConfig()
	if err != nil {
		logrus.Fatalf("Invalid configuration: %s", err)
	}

	level, _ := logrus.ParseLevel(cfg.LogLevel)
	logrus.SetLevel(level)

	r := relay.New(cfg.Relay())

	server := &http.Server{
		Addr:    cfg.Listen,
		Handler: r.Handler(),
	}

	signals := make(chan os.Signal, 10)
	signal.Notify(signals, syscall.SIGINT, syscall.SIGTERM)

	go handleSignals(signals, r, server)

	logrus.Infof("Listening on: %s", cfg.Listen)
	if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		logrus.Errorf("Failed to listen and serve: %s", err)
	}
}
