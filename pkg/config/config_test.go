package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/pion/webrtc/v3"

	"github.com/stv0g/pion-edge-signaling/pkg/negotiator"
	"github.com/stv0g/pion-edge-signaling/pkg/session"
)

func writeFile(t *testing.T, content string) string {
	t.Helper()

	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatalf("WriteFile: %s", err)
	}

	return path
}

func TestLoadClientDefaults(t *testing.T) {
	cfg, err := LoadClient("")
	if err != nil {
		t.Fatalf("LoadClient: %s", err)
	}

	if err := cfg.Validate(); err != nil {
		t.Fatalf("Validate: %s", err)
	}

	if cfg.HandshakeTimeout != session.DefaultHandshakeTimeout || cfg.AnswerTimeout != session.DefaultAnswerTimeout {
		t.Errorf("timeouts = %s / %s", cfg.HandshakeTimeout, cfg.AnswerTimeout)
	}
}

func TestLoadClient(t *testing.T) {
	path := writeFile(t, `
url: wss://edge.example.com/sessions/cam
kind: device
handshake_timeout: 5s
ice_servers:
  - urls: ["turn:turn.example.com:3478"]
    username: user
    credential: pass
`)

	cfg, err := LoadClient(path)
	if err != nil {
		t.Fatalf("LoadClient: %s", err)
	}
	if err := cfg.Validate(); err != nil {
		t.Fatalf("Validate: %s", err)
	}

	if cfg.HandshakeTimeout != 5*time.Second {
		t.Errorf("handshake timeout = %s", cfg.HandshakeTimeout)
	}

	// Keys missing from the file keep their defaults.
	if cfg.AnswerTimeout != session.DefaultAnswerTimeout || cfg.DataChannel != "test" {
		t.Errorf("defaults lost: %+v", cfg)
	}

	opts := cfg.SessionOptions()
	if opts.Kind != negotiator.EndpointDevice {
		t.Errorf("kind = %s", opts.Kind)
	}
	if len(opts.ICEServers) != 1 {
		t.Fatalf("ice servers = %+v", opts.ICEServers)
	}

	srv := opts.ICEServers[0]
	if srv.Credential != "pass" || srv.CredentialType != webrtc.ICECredentialTypePassword || srv.Username != "user" {
		t.Errorf("ice server = %+v", srv)
	}
}

func TestClientValidate(t *testing.T) {
	cfg := DefaultClient()
	cfg.URL = ""
	cfg.Kind = "camera"
	cfg.LogLevel = "loud"

	if err := cfg.Validate(); err == nil {
		t.Fatal("expected validation error")
	}

	// A negative answer timeout disables the check.
	cfg = DefaultClient()
	cfg.URL = "ws://localhost:8080/sessions/test"
	cfg.AnswerTimeout = -1

	if err := cfg.Validate(); err != nil {
		t.Fatalf("Validate: %s", err)
	}
	if opts := cfg.SessionOptions(); opts.AnswerTimeout >= 0 {
		t.Errorf("answer timeout = %s", opts.AnswerTimeout)
	}

	cfg.HandshakeTimeout = -1
	if err := cfg.Validate(); err == nil {
		t.Fatal("negative handshake timeout accepted")
	}
}

func TestLoadRelay(t *testing.T) {
	path := writeFile(t, `
listen: 127.0.0.1:9000
turn_servers:
  - hostname: turn:turn.example.com
    port: 3478
    username: u
    password: p
api:
  password: secret
`)

	cfg, err := LoadRelay(path)
	if err != nil {
		t.Fatalf("LoadRelay: %s", err)
	}
	if err := cfg.Validate(); err != nil {
		t.Fatalf("Validate: %s", err)
	}

	rc := cfg.Relay()
	if rc.SignalingStreamPort != 6503 {
		t.Errorf("port = %d", rc.SignalingStreamPort)
	}
	if len(rc.TurnServers) != 1 || rc.TurnServers[0].Password != "p" || rc.TurnServers[0].Port != 3478 {
		t.Errorf("turn servers = %+v", rc.TurnServers)
	}
	if len(rc.ICEServers) != 1 {
		t.Errorf("ice servers = %+v", rc.ICEServers)
	}
	if rc.API.Username != "admin" || rc.API.Password != "secret" {
		t.Errorf("api = %+v", rc.API)
	}
}

func TestLoadErrors(t *testing.T) {
	if _, err := LoadRelay(filepath.Join(t.TempDir(), "missing.yaml")); err == nil {
		t.Error("expected error for missing file")
	}

	if _, err := LoadClient(writeFile(t, "url: [")); err == nil {
		t.Error("expected error for invalid YAML")
	}
}
