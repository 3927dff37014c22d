// Package config loads the YAML configuration of the client and relay
// commands.
//
// A configuration file is optional. Values missing from the file keep their
// defaults; command line flags are applied on top by the commands.
package config

import (
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/pion/webrtc/v3"
	"github.com/sirupsen/logrus"
	"gopkg.in/yaml.v3"

	"github.com/stv0g/pion-edge-signaling/pkg"
	"github.com/stv0g/pion-edge-signaling/pkg/negotiator"
	"github.com/stv0g/pion-edge-signaling/pkg/relay"
	"github.com/stv0g/pion-edge-signaling/pkg/session"
)

type ICEServer struct {
	URLs       []string `yaml:"urls"`
	Username   string   `yaml:"username,omitempty"`
	Credential string   `yaml:"credential,omitempty"`
}

type ClientConfig struct {
	// URL is the base URL of the remote endpoint, e.g.
	// ws://localhost:8080/sessions/test.
	URL string `yaml:"url"`

	// Kind is either "client" or "device".
	Kind string `yaml:"kind"`

	HandshakeTimeout time.Duration `yaml:"handshake_timeout"`
	AnswerTimeout    time.Duration `yaml:"answer_timeout"`

	ICEServers []ICEServer `yaml:"ice_servers"`

	// DataChannel is the label of the data channel opened after connecting.
	// Empty disables it.
	DataChannel string `yaml:"data_channel"`

	LogLevel string `yaml:"log_level"`
}

type APIConfig struct {
	Username string `yaml:"username"`
	Password string `yaml:"password"`
	Token    string `yaml:"token"`
}

type RelayConfig struct {
	Listen string `yaml:"listen"`

	SignalingStreamPort uint32 `yaml:"signaling_stream_port"`

	ICEServers  []ICEServer      `yaml:"ice_servers"`
	TurnServers []pkg.TurnServer `yaml:"turn_servers"`

	API APIConfig `yaml:"api"`

	LogLevel string `yaml:"log_level"`
}

func DefaultClient() *ClientConfig {
	return &ClientConfig{
		URL:              "ws://localhost:8080/sessions/session",
		Kind:             string(negotiator.EndpointClient),
		HandshakeTimeout: session.DefaultHandshakeTimeout,
		AnswerTimeout:    session.DefaultAnswerTimeout,
		ICEServers: []ICEServer{
			{URLs: []string{"stun:stun.l.google.com:19302"}},
		},
		DataChannel: "test",
		LogLevel:    "info",
	}
}

func DefaultRelay() *RelayConfig {
	return &RelayConfig{
		Listen:              ":8080",
		SignalingStreamPort: relay.DefaultSignalingStreamPort,
		ICEServers: []ICEServer{
			{URLs: []string{"stun:stun.l.google.com:19302"}},
		},
		API: APIConfig{
			Username: "admin",
		},
		LogLevel: "info",
	}
}

// LoadClient reads a client configuration. An empty path yields the
// defaults.
func LoadClient(path string) (*ClientConfig, error) {
	cfg := DefaultClient()

	if err := loadFile(path, cfg); err != nil {
		return nil, err
	}

	return cfg, nil
}

// LoadRelay reads a relay configuration. An empty path yields the defaults.
func LoadRelay(path string) (*RelayConfig, error) {
	cfg := DefaultRelay()

	if err := loadFile(path, cfg); err != nil {
		return nil, err
	}

	return cfg, nil
}

func loadFile(path string, cfg interface{}) error {
	if path == "" {
		return nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read config: %w", err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return fmt.Errorf("failed to parse %s: %w", path, err)
	}

	return nil
}

func (c *ClientConfig) Validate() error {
	var errs []error

	if c.URL == "" {
		errs = append(errs, errors.New("url is required"))
	}

	if _, err := negotiator.ParseEndpointKind(c.Kind); err != nil {
		errs = append(errs, err)
	}

	// AnswerTimeout may be negative, which disables the check.
	if c.HandshakeTimeout < 0 {
		errs = append(errs, errors.New("handshake timeout must not be negative"))
	}

	if _, err := logrus.ParseLevel(c.LogLevel); err != nil {
		errs = append(errs, err)
	}

	return errors.Join(errs...)
}

func (c *RelayConfig) Validate() error {
	var errs []error

	if c.Listen == "" {
		errs = append(errs, errors.New("listen address is required"))
	}

	if c.SignalingStreamPort == 0 {
		errs = append(errs, errors.New("signaling_stream_port must not be zero"))
	}

	if _, err := logrus.ParseLevel(c.LogLevel); err != nil {
		errs = append(errs, err)
	}

	return errors.Join(errs...)
}

// SessionOptions converts the configuration for session.New. It assumes a
// validated configuration.
func (c *ClientConfig) SessionOptions() session.Options {
	kind, _ := negotiator.ParseEndpointKind(c.Kind)

	servers := []webrtc.ICEServer{}
	for _, s := range c.ICEServers {
		srv := webrtc.ICEServer{
			URLs:     s.URLs,
			Username: s.Username,
		}
		if s.Credential != "" {
			srv.Credential = s.Credential
			srv.CredentialType = webrtc.ICECredentialTypePassword
		}
		servers = append(servers, srv)
	}

	return session.Options{
		Kind:             kind,
		ICEServers:       servers,
		HandshakeTimeout: c.HandshakeTimeout,
		AnswerTimeout:    c.AnswerTimeout,
	}
}

func (c *RelayConfig) Relay() relay.Config {
	servers := []pkg.IceServer{}
	for _, s := range c.ICEServers {
		servers = append(servers, pkg.IceServer{
			URLs:       s.URLs,
			Username:   s.Username,
			Credential: s.Credential,
		})
	}

	return relay.Config{
		SignalingStreamPort: c.SignalingStreamPort,
		TurnServers:         c.TurnServers,
		ICEServers:          servers,
		API: relay.APIConfig{
			Username: c.API.Username,
			Password: c.API.Password,
			Token:    c.API.Token,
		},
	}
}
