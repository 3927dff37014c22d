package transport

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
)

func TestNewWebSocketConnSchemes(t *testing.T) {
	for base, ok := range map[string]bool{
		"ws://localhost:8080/sessions/a": true,
		"wss://localhost/sessions/a":     true,
		"http://localhost:8080":          true,
		"https://localhost":              true,
		"coap://localhost":               false,
		"://missing-scheme":              false,
	} {
		_, err := NewWebSocketConn(base, nil)
		if (err == nil) != ok {
			t.Errorf("%s: err = %v", base, err)
		}
	}
}

func TestRequest(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !strings.Contains(r.Header.Get("Accept"), MimeTypeCBOR) {
			t.Errorf("Accept = %q", r.Header.Get("Accept"))
		}

		switch r.URL.Path {
		case "/sessions/a/p2p/webrtc-info":
			w.Header().Set("Content-Type", MimeTypeJSON+"; charset=utf-8")
			w.Write([]byte(`{"SignalingStreamPort":1}`)) //nolint:errcheck
		case "/sessions/a/cbor":
			w.Header().Set("Content-Type", MimeTypeCBOR)
			w.Write([]byte{0xa0}) //nolint:errcheck
		default:
			http.NotFound(w, r)
		}
	}))
	defer srv.Close()

	conn, err := NewWebSocketConn(srv.URL+"/sessions/a", nil)
	if err != nil {
		t.Fatalf("NewWebSocketConn: %s", err)
	}

	ctx := context.Background()

	resp, err := conn.Request(ctx, http.MethodGet, "/p2p/webrtc-info")
	if err != nil {
		t.Fatalf("Request: %s", err)
	}
	if resp.Status != StatusContent || resp.ContentFormat != ContentFormatJSON || string(resp.Payload) != `{"SignalingStreamPort":1}` {
		t.Errorf("response = %+v", resp)
	}

	resp, err = conn.Request(ctx, http.MethodGet, "/cbor")
	if err != nil {
		t.Fatalf("Request: %s", err)
	}
	if resp.ContentFormat != ContentFormatCBOR {
		t.Errorf("format = %d", resp.ContentFormat)
	}

	resp, err = conn.Request(ctx, http.MethodGet, "/missing")
	if err != nil {
		t.Fatalf("Request: %s", err)
	}
	if resp.Status != http.StatusNotFound {
		t.Errorf("status = %d", resp.Status)
	}
}

func TestWebSocketStream(t *testing.T) {
	upgrader := websocket.Upgrader{}
	received := make(chan []byte, 1)

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/base/streams/42" {
			http.NotFound(w, r)
			return
		}

		c, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		s := NewWebSocketStream(c)
		defer s.Close()

		// One frame split over two messages, with a text message in between
		// that must be skipped.
		c.WriteMessage(websocket.BinaryMessage, []byte("hel"))   //nolint:errcheck
		c.WriteMessage(websocket.TextMessage, []byte("ignored")) //nolint:errcheck
		c.WriteMessage(websocket.BinaryMessage, []byte("lo"))    //nolint:errcheck

		mt, data, err := c.ReadMessage()
		if err == nil && mt == websocket.BinaryMessage {
			received <- data
		}
	}))
	defer srv.Close()

	conn, err := NewWebSocketConn(srv.URL+"/base", nil)
	if err != nil {
		t.Fatalf("NewWebSocketConn: %s", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	s, err := conn.OpenStream(ctx, 42)
	if err != nil {
		t.Fatalf("OpenStream: %s", err)
	}
	defer s.Close()

	buf := make([]byte, 5)
	if _, err := io.ReadFull(s, buf); err != nil {
		t.Fatalf("ReadFull: %s", err)
	}
	if string(buf) != "hello" {
		t.Errorf("read %q", buf)
	}

	if _, err := s.Write([]byte("frame")); err != nil {
		t.Fatalf("Write: %s", err)
	}

	select {
	case data := <-received:
		if string(data) != "frame" {
			t.Errorf("server received %q", data)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("write not received")
	}

	// The server closes normally after reading.
	if _, err := s.Read(buf); err != io.EOF {
		t.Errorf("Read after close = %v", err)
	}

	if err := s.Close(); err != nil {
		t.Errorf("Close: %s", err)
	}
	if err := s.Close(); err != nil {
		t.Errorf("second Close: %s", err)
	}
}

func TestOpenStreamFails(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	defer srv.Close()

	conn, _ := NewWebSocketConn(srv.URL, nil)

	if _, err := conn.OpenStream(context.Background(), 1); err == nil {
		t.Fatal("expected dial error")
	}
}
