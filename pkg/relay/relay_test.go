package relay

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stv0g/pion-edge-signaling/pkg"
	"github.com/stv0g/pion-edge-signaling/pkg/signaling"
	"github.com/stv0g/pion-edge-signaling/pkg/transport"
)

func newServer(t *testing.T, cfg Config) (*Relay, *httptest.Server) {
	t.Helper()

	r := New(cfg)
	srv := httptest.NewServer(r.Handler())

	t.Cleanup(func() {
		r.Close()
		srv.Close()
	})

	return r, srv
}

func dial(t *testing.T, srv *httptest.Server, session string) *signaling.Channel {
	t.Helper()

	conn, err := transport.NewWebSocketConn(srv.URL+"/sessions/"+session, nil)
	if err != nil {
		t.Fatalf("NewWebSocketConn: %s", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	ch, err := signaling.Dial(ctx, conn)
	if err != nil {
		t.Fatalf("Dial: %s", err)
	}
	t.Cleanup(func() { ch.Close() })

	// The turn round trip guarantees the relay has registered the connection.
	if _, err := ch.RequestTurn(ctx); err != nil {
		t.Fatalf("RequestTurn: %s", err)
	}

	return ch
}

func TestInfo(t *testing.T) {
	_, srv := newServer(t, Config{SignalingStreamPort: 4242})

	for _, tc := range []struct {
		accept string
		format transport.ContentFormat
	}{
		{"", transport.ContentFormatJSON},
		{"application/json", transport.ContentFormatJSON},
		{"application/cbor", transport.ContentFormatCBOR},
		{"application/cbor, application/json;q=0.9", transport.ContentFormatCBOR},
		{"application/cbor;q=0, application/json", transport.ContentFormatJSON},
	} {
		req, _ := http.NewRequest(http.MethodGet, srv.URL+"/sessions/a/p2p/webrtc-info", nil)
		if tc.accept != "" {
			req.Header.Set("Accept", tc.accept)
		}

		resp, err := http.DefaultClient.Do(req)
		if err != nil {
			t.Fatalf("GET: %s", err)
		}
		body, _ := io.ReadAll(resp.Body)
		resp.Body.Close()

		var format transport.ContentFormat
		switch resp.Header.Get("Content-Type") {
		case transport.MimeTypeJSON:
			format = transport.ContentFormatJSON
		case transport.MimeTypeCBOR:
			format = transport.ContentFormatCBOR
		}

		if format != tc.format {
			t.Errorf("Accept %q: format %d, want %d", tc.accept, format, tc.format)
			continue
		}

		info, err := signaling.DecodeInfo(format, body)
		if err != nil {
			t.Errorf("Accept %q: %s", tc.accept, err)
			continue
		}
		if info.SignalingStreamPort != 4242 {
			t.Errorf("Accept %q: port %d", tc.accept, info.SignalingStreamPort)
		}
	}
}

func TestTurnResponse(t *testing.T) {
	_, srv := newServer(t, Config{
		TurnServers: []pkg.TurnServer{
			{Hostname: "turn:turn.example.com", Port: 3478, Username: "u", Password: "p"},
		},
		ICEServers: []pkg.IceServer{
			{URLs: []string{"stun:stun.example.com"}},
		},
	})

	conn, _ := transport.NewWebSocketConn(srv.URL+"/sessions/turn", nil)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	ch, err := signaling.Dial(ctx, conn)
	if err != nil {
		t.Fatalf("Dial: %s", err)
	}
	defer ch.Close()

	servers, err := ch.RequestTurn(ctx)
	if err != nil {
		t.Fatalf("RequestTurn: %s", err)
	}

	if len(servers) != 2 {
		t.Fatalf("servers = %+v", servers)
	}
	if servers[0].URLs[0] != "turn:turn.example.com" || servers[0].Username != "u" {
		t.Errorf("legacy server = %+v", servers[0])
	}
	if servers[1].URLs[0] != "stun:stun.example.com" {
		t.Errorf("ice server = %+v", servers[1])
	}
}

func TestForward(t *testing.T) {
	_, srv := newServer(t, Config{})

	a := dial(t, srv, "room")
	b := dial(t, srv, "room")

	offer := &pkg.SignalMessage{
		Type: pkg.TypeOffer,
		Data: `{"type":"offer","sdp":"v=0"}`,
		Metadata: &pkg.Metadata{
			Tracks: []pkg.MetadataTrack{{Mid: "0", TrackID: "cam1"}},
		},
	}
	a.Send(offer)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	msg, err := b.Recv(ctx)
	if err != nil {
		t.Fatalf("Recv: %s", err)
	}
	if msg.Type != pkg.TypeOffer || msg.Data != offer.Data || msg.Metadata.Tracks[0].TrackID != "cam1" {
		t.Errorf("forwarded message = %s", msg)
	}

	b.Send(&pkg.SignalMessage{Type: pkg.TypeAnswer, Data: `{"type":"answer","sdp":"v=0"}`})

	msg, err = a.Recv(ctx)
	if err != nil {
		t.Fatalf("Recv: %s", err)
	}
	if msg.Type != pkg.TypeAnswer {
		t.Errorf("forwarded message = %s", msg)
	}
}

func TestSessionsIsolated(t *testing.T) {
	_, srv := newServer(t, Config{})

	a := dial(t, srv, "one")
	b := dial(t, srv, "two")
	c := dial(t, srv, "two")

	a.Send(&pkg.SignalMessage{Type: pkg.TypeIceCandidate, Data: `{"candidate":"candidate:1","sdpMid":"0"}`})
	b.Send(&pkg.SignalMessage{Type: pkg.TypeIceCandidate, Data: `{"candidate":"candidate:2","sdpMid":"0"}`})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	msg, err := c.Recv(ctx)
	if err != nil {
		t.Fatalf("Recv: %s", err)
	}

	cand, err := msg.Candidate()
	if err != nil {
		t.Fatalf("Candidate: %s", err)
	}
	if cand.Candidate != "candidate:2" {
		t.Errorf("received candidate from another session: %s", cand.Candidate)
	}
}

func TestSessionRemovedAfterLastConnection(t *testing.T) {
	r, srv := newServer(t, Config{})

	a := dial(t, srv, "gone")
	b := dial(t, srv, "gone")

	if ss := r.Sessions(); len(ss) != 1 || len(ss[0].Connections()) != 2 {
		t.Fatalf("sessions = %v", ss)
	}

	a.Close()
	b.Close()

	deadline := time.Now().Add(5 * time.Second)
	for len(r.Sessions()) > 0 {
		if time.Now().After(deadline) {
			t.Fatal("session not removed")
		}
		time.Sleep(10 * time.Millisecond)
	}
}

func TestStreamWrongPort(t *testing.T) {
	_, srv := newServer(t, Config{})

	resp, err := http.Get(srv.URL + "/sessions/a/streams/1")
	if err != nil {
		t.Fatalf("GET: %s", err)
	}
	resp.Body.Close()

	if resp.StatusCode != http.StatusNotFound {
		t.Errorf("status = %d", resp.StatusCode)
	}
}

func TestAPI(t *testing.T) {
	_, srv := newServer(t, Config{
		API: APIConfig{Username: "admin", Password: "secret"},
	})

	dial(t, srv, "listed")

	resp, err := http.Get(srv.URL + "/api/v1/sessions")
	if err != nil {
		t.Fatalf("GET: %s", err)
	}
	resp.Body.Close()

	if resp.StatusCode != http.StatusUnauthorized {
		t.Fatalf("unauthenticated status = %d", resp.StatusCode)
	}

	req, _ := http.NewRequest(http.MethodGet, srv.URL+"/api/v1/sessions", nil)
	req.SetBasicAuth("admin", "secret")

	resp, err = http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("GET: %s", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d", resp.StatusCode)
	}

	var body apiResponse
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		t.Fatalf("decode: %s", err)
	}

	if len(body.Sessions) != 1 || body.Sessions[0].Name != "listed" || len(body.Sessions[0].Connections) != 1 {
		t.Errorf("sessions = %+v", body.Sessions)
	}
}

func TestAuthorized(t *testing.T) {
	for _, tc := range []struct {
		name   string
		cfg    APIConfig
		header string
		want   bool
	}{
		{"open", APIConfig{}, "", true},
		{"token", APIConfig{Token: "t0k"}, "Bearer t0k", true},
		{"wrong token", APIConfig{Token: "t0k"}, "Bearer nope", false},
		{"wrong scheme", APIConfig{Token: "t0k"}, "Token t0k", false},
		{"missing token", APIConfig{Token: "t0k"}, "", false},
		{"missing password", APIConfig{Username: "admin", Password: "pw"}, "", false},
	} {
		req := httptest.NewRequest(http.MethodGet, "/api/v1/sessions", nil)
		if tc.header != "" {
			req.Header.Set("Authorization", tc.header)
		}

		if got := tc.cfg.authorized(req); got != tc.want {
			t.Errorf("%s: authorized = %t, want %t", tc.name, got, tc.want)
		}
	}
}

func TestHealthz(t *testing.T) {
	_, srv := newServer(t, Config{})

	resp, err := http.Get(srv.URL + "/healthz")
	if err != nil {
		t.Fatalf("GET: %s", err)
	}
	defer resp.Body.Close()

	body, _ := io.ReadAll(resp.Body)
	if resp.StatusCode != http.StatusOK || string(body) != "OK" {
		t.Errorf("healthz = %d %q", resp.StatusCode, body)
	}
}
