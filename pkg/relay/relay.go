// Package relay serves the edge signaling protocol over HTTP and WebSocket.
//
// Endpoints that join the same session name reach each other through the
// relay: it answers discovery and turn requests itself and forwards all
// other signal messages to the other connections of the session.
package relay

import (
	"encoding/json"
	"mime"
	"net/http"
	"strconv"
	"strings"
	"sync"

	"github.com/fxamacker/cbor/v2"
	"github.com/gorilla/websocket"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/sirupsen/logrus"

	"github.com/stv0g/pion-edge-signaling/pkg"
	"github.com/stv0g/pion-edge-signaling/pkg/signaling"
	"github.com/stv0g/pion-edge-signaling/pkg/transport"
)

const DefaultSignalingStreamPort = 6503

type Config struct {
	SignalingStreamPort uint32

	// Handed out in response to turn requests.
	TurnServers []pkg.TurnServer
	ICEServers  []pkg.IceServer

	API APIConfig

	Logger *logrus.Entry
}

type Relay struct {
	config   Config
	logger   *logrus.Entry
	upgrader websocket.Upgrader

	sessions      map[string]*Session
	sessionsMutex sync.Mutex
}

func New(cfg Config) *Relay {
	if cfg.SignalingStreamPort == 0 {
		cfg.SignalingStreamPort = DefaultSignalingStreamPort
	}

	if cfg.Logger == nil {
		cfg.Logger = logrus.WithField("component", "relay")
	}

	return &Relay{
		config: cfg,
		logger: cfg.Logger,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     func(r *http.Request) bool { return true },
		},
		sessions: map[string]*Session{},
	}
}

// Handler returns the HTTP handler serving all relay endpoints.
func (r *Relay) Handler() http.Handler {
	mux := http.NewServeMux()

	instrument := func(h http.HandlerFunc) http.Handler {
		return promhttp.InstrumentHandlerDuration(metricHttpRequestDuration,
			promhttp.InstrumentHandlerCounter(metricHttpRequestsTotal, h),
		)
	}

	mux.Handle("GET /sessions/{name}"+signaling.InfoPath, instrument(r.handleInfo))
	mux.Handle("GET /sessions/{name}/streams/{port}", instrument(r.handleStream))
	mux.HandleFunc("GET /api/v1/sessions", basicAuth(r.config.API, r.handleAPI))
	mux.Handle("GET /metrics", promhttp.Handler())
	mux.HandleFunc("GET /healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.Write([]byte("OK")) //nolint:errcheck
	})

	return mux
}

func (r *Relay) handleInfo(w http.ResponseWriter, req *http.Request) {
	info := signaling.Info{
		SignalingStreamPort: r.config.SignalingStreamPort,
	}

	var (
		body []byte
		err  error
	)

	contentType := transport.MimeTypeJSON
	if acceptsCBOR(req.Header.Get("Accept")) {
		contentType = transport.MimeTypeCBOR
		body, err = cbor.Marshal(info)
	} else {
		body, err = json.Marshal(info)
	}
	if err != nil {
		r.logger.Errorf("Failed to encode info: %s", err)
		http.Error(w, "Internal server error", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", contentType)
	w.Write(body) //nolint:errcheck
}

func acceptsCBOR(accept string) bool {
	for _, part := range strings.Split(accept, ",") {
		mt, params, err := mime.ParseMediaType(strings.TrimSpace(part))
		if err != nil || mt != transport.MimeTypeCBOR {
			continue
		}

		if q, ok := params["q"]; ok {
			if v, err := strconv.ParseFloat(q, 64); err == nil && v == 0 {
				return false
			}
		}

		return true
	}

	return false
}

func (r *Relay) handleStream(w http.ResponseWriter, req *http.Request) {
	port, err := strconv.ParseUint(req.PathValue("port"), 10, 32)
	if err != nil || uint32(port) != r.config.SignalingStreamPort {
		http.Error(w, "Not found", http.StatusNotFound)
		return
	}

	conn, err := r.upgrader.Upgrade(w, req, nil)
	if err != nil {
		r.logger.Errorf("Failed to upgrade: %s", err)
		return
	}

	c := r.addConnection(req.PathValue("name"), conn)

	c.logger.Infof("Connection opened: id=%d", c.ID)

	go c.run()
}

func (r *Relay) addConnection(name string, conn *websocket.Conn) *Connection {
	r.sessionsMutex.Lock()
	defer r.sessionsMutex.Unlock()

	s, ok := r.sessions[name]
	if !ok {
		s = newSession(name, r.logger)
		r.sessions[name] = s
	}

	c := newConnection(r, s, conn)
	s.addConnection(c)

	return c
}

func (r *Relay) removeConnection(c *Connection) {
	r.sessionsMutex.Lock()
	defer r.sessionsMutex.Unlock()

	s := c.session
	if s.removeConnection(c) > 0 {
		return
	}

	if r.sessions[s.Name] == s {
		delete(r.sessions, s.Name)
	}

	metricActiveSessions.Dec()

	r.logger.Infof("Session closed: %s", s.Name)
}

func (r *Relay) turnResponse() *pkg.SignalMessage {
	return &pkg.SignalMessage{
		Type:       pkg.TypeTurnResponse,
		Servers:    r.config.TurnServers,
		IceServers: r.config.ICEServers,
	}
}

// Sessions returns a snapshot of the active sessions.
func (r *Relay) Sessions() []*Session {
	r.sessionsMutex.Lock()
	defer r.sessionsMutex.Unlock()

	ss := make([]*Session, 0, len(r.sessions))
	for _, s := range r.sessions {
		ss = append(ss, s)
	}

	return ss
}

// Close closes every connection of every session.
func (r *Relay) Close() {
	for _, s := range r.Sessions() {
		s.close()
	}
}
