package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/pion/webrtc/v3"
	"github.com/sirupsen/logrus"
	"github.com/spf13/pflag"

	"github.com/stv0g/pion-edge-signaling/pkg/config"
	"github.com/stv0g/pion-edge-signaling/pkg/session"
	"github.com/stv0g/pion-edge-signaling/pkg/transport"
)

var (
	configFile       = pflag.StringP("config", "c", "", "Path to YAML configuration file")
	signalingURL     = pflag.String("url", "ws://localhost:8080/sessions/session", "Signaling URL")
	kind             = pflag.String("kind", "client", "Endpoint kind: client or device")
	handshakeTimeout = pflag.Duration("handshake-timeout", session.DefaultHandshakeTimeout, "Timeout for the turn handshake")
	answerTimeout    = pflag.Duration("answer-timeout", session.DefaultAnswerTimeout, "Timeout for answers to local offers")
	dataChannel      = pflag.String("data-channel", "test", "Label of the data channel to open, empty to disable")
	logLevel         = pflag.String("log-level", "info", "Log level")
)

func loadConfig() (*config.ClientConfig, error) {
	cfg, err := config.LoadClient(*configFile)
	if err != nil {
		return nil, err
	}

	flags := pflag.CommandLine
	if flags.Changed("url") {
		cfg.URL = *signalingURL
	}
	if flags.Changed("kind") {
		cfg.Kind = *kind
	}
	if flags.Changed("handshake-timeout") {
		cfg.HandshakeTimeout = *handshakeTimeout
	}
	if flags.Changed("answer-timeout") {
		cfg.AnswerTimeout = *answerTimeout
	}
	if flags.Changed("data-channel") {
		cfg.DataChannel = *dataChannel
	}
	if flags.Changed("log-level") {
		cfg.LogLevel = *logLevel
	}

	return cfg, cfg.Validate()
}

func handleDataChannel(dc *webrtc.DataChannel, done <-chan struct{}) {
	dc.OnOpen(func() {
		logrus.Infof("Datachannel opened: %s", dc.Label())

		go func() {
			ticker := time.NewTicker(time.Second)
			defer ticker.Stop()

			for i := 0; ; i++ {
				select {
				case <-done:
					return
				case <-ticker.C:
				}

				msg := fmt.Sprintf("Hello %d", i)
				logrus.Infof("Send: %s", msg)

				if err := dc.SendText(msg); err != nil {
					logrus.Errorf("Failed to send: %s", err)
					return
				}
			}
		}()
	})

	dc.OnMessage(func(msg webrtc.DataChannelMessage) {
		logrus.Infof("Received: %s", msg.Data)
	})
}

func main() {
	pflag.Parse()

	cfg, err := loadConfig()
	if err != nil {
		logrus.Fatalf("Invalid configuration: %s", err)
	}

	level, _ := logrus.ParseLevel(cfg.LogLevel)
	logrus.SetLevel(level)

	conn, err := transport.NewWebSocketConn(cfg.URL, nil)
	if err != nil {
		logrus.Fatalf("Failed to create connection: %s", err)
	}

	s := session.New(conn, cfg.SessionOptions())

	signals := make(chan os.Signal, 10)
	signal.Notify(signals, syscall.SIGINT, syscall.SIGTERM)

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		<-signals
		cancel()
		s.Close()
	}()

	s.OnTrack(func(t session.Track) {
		switch t := t.(type) {
		case *session.VideoTrack:
			logrus.Infof("New video track: mid=%s, id=%s", t.Mid, t.TrackID)
		case *session.AudioTrack:
			logrus.Infof("New audio track: mid=%s, id=%s", t.Mid, t.TrackID)
		}
	})

	s.OnDataChannel(func(dc *webrtc.DataChannel) {
		handleDataChannel(dc, s.Done())
	})

	s.OnClosed(func() {
		logrus.Info("Peer connection closed")
	})

	if err := s.Connect(ctx); err != nil {
		logrus.Fatalf("Failed to connect: %s", err)
	}

	if cfg.DataChannel != "" {
		dc, err := s.CreateDataChannel(cfg.DataChannel, nil)
		if err != nil {
			logrus.Fatalf("Failed to create datachannel: %s", err)
		}

		handleDataChannel(dc, s.Done())
	}

	for {
		select {
		case err := <-s.Errors():
			logrus.Errorf("Session error: %s", err)

		case <-s.Done():
			return
		}
	}
}
