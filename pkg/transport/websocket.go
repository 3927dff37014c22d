package transport

import (
	"context"
	"errors"
	"fmt"
	"io"
	"mime"
	"net/http"
	"net/url"
	"path"
	"strconv"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

const (
	// Time allowed to write a message to the peer.
	writeWait = 10 * time.Second

	MimeTypeJSON = "application/json"
	MimeTypeCBOR = "application/cbor"
)

// Compile-time interface checks.
var (
	_ Conn   = (*WebSocketConn)(nil)
	_ Stream = (*WebSocketStream)(nil)
)

// WebSocketConn reaches a device through an HTTP endpoint. Discovery
// requests are plain HTTP requests below the base URL, streams are WebSocket
// connections to <base>/streams/<port>.
type WebSocketConn struct {
	base   *url.URL
	client *http.Client
	dialer *websocket.Dialer
	header http.Header
}

// NewWebSocketConn prepares a connection to base, which may use any of the
// http, https, ws or wss schemes.
func NewWebSocketConn(base string, header http.Header) (*WebSocketConn, error) {
	u, err := url.Parse(base)
	if err != nil {
		return nil, fmt.Errorf("invalid url %s: %w", base, err)
	}

	switch u.Scheme {
	case "ws":
		u.Scheme = "http"
	case "wss":
		u.Scheme = "https"
	case "http", "https":
	default:
		return nil, fmt.Errorf("unsupported scheme %q", u.Scheme)
	}

	return &WebSocketConn{
		base:   u,
		client: http.DefaultClient,
		dialer: websocket.DefaultDialer,
		header: header,
	}, nil
}

func (c *WebSocketConn) resolve(p string) *url.URL {
	u := *c.base
	u.Path = path.Join(u.Path, p)
	return &u
}

func (c *WebSocketConn) Request(ctx context.Context, method, p string) (*Response, error) {
	req, err := http.NewRequestWithContext(ctx, method, c.resolve(p).String(), nil)
	if err != nil {
		return nil, err
	}

	for k, v := range c.header {
		req.Header[k] = v
	}
	req.Header.Set("Accept", MimeTypeCBOR+", "+MimeTypeJSON+";q=0.9")

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to %s %s: %w", method, p, err)
	}
	defer resp.Body.Close()

	payload, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response: %w", err)
	}

	r := &Response{
		Status:  resp.StatusCode,
		Payload: payload,
	}

	if resp.StatusCode == http.StatusOK {
		r.Status = StatusContent
	}

	if mt, _, err := mime.ParseMediaType(resp.Header.Get("Content-Type")); err == nil {
		switch mt {
		case MimeTypeJSON:
			r.ContentFormat = ContentFormatJSON
		case MimeTypeCBOR:
			r.ContentFormat = ContentFormatCBOR
		}
	}

	return r, nil
}

func (c *WebSocketConn) OpenStream(ctx context.Context, port uint32) (Stream, error) {
	u := c.resolve("streams/" + strconv.FormatUint(uint64(port), 10))
	switch u.Scheme {
	case "http":
		u.Scheme = "ws"
	case "https":
		u.Scheme = "wss"
	}

	conn, _, err := c.dialer.DialContext(ctx, u.String(), c.header)
	if err != nil {
		return nil, fmt.Errorf("failed to dial %s: %w", u, err)
	}

	return NewWebSocketStream(conn), nil
}

// WebSocketStream presents a WebSocket connection as a byte stream. Every
// Write is sent as one binary message; reads concatenate binary messages.
type WebSocketStream struct {
	conn *websocket.Conn

	readMu sync.Mutex
	reader io.Reader

	writeMu sync.Mutex

	closeOnce sync.Once
	closeErr  error
}

func NewWebSocketStream(conn *websocket.Conn) *WebSocketStream {
	return &WebSocketStream{
		conn: conn,
	}
}

func (s *WebSocketStream) Conn() *websocket.Conn {
	return s.conn
}

func (s *WebSocketStream) Read(p []byte) (int, error) {
	s.readMu.Lock()
	defer s.readMu.Unlock()

	for {
		if s.reader == nil {
			mt, r, err := s.conn.NextReader()
			if err != nil {
				return 0, mapCloseError(err)
			}
			if mt != websocket.BinaryMessage {
				continue
			}
			s.reader = r
		}

		n, err := s.reader.Read(p)
		if errors.Is(err, io.EOF) {
			s.reader = nil
			if n > 0 {
				return n, nil
			}
			continue
		}

		return n, mapCloseError(err)
	}
}

func (s *WebSocketStream) Write(p []byte) (int, error) {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	if err := s.conn.SetWriteDeadline(time.Now().Add(writeWait)); err != nil {
		return 0, err
	}

	if err := s.conn.WriteMessage(websocket.BinaryMessage, p); err != nil {
		return 0, err
	}

	return len(p), nil
}

// Close sends a close frame and releases the connection. It is idempotent.
func (s *WebSocketStream) Close() error {
	s.closeOnce.Do(func() {
		msg := websocket.FormatCloseMessage(websocket.CloseNormalClosure, "")
		// The peer may already be gone.
		_ = s.conn.WriteControl(websocket.CloseMessage, msg, time.Now().Add(writeWait))

		s.closeErr = s.conn.Close()
	})

	return s.closeErr
}

func mapCloseError(err error) error {
	if err == nil {
		return nil
	}

	if websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
		return io.EOF
	}

	return err
}
