package relay

import (
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/stv0g/pion-edge-signaling/pkg"
)

// Session groups the connections that share a name. Every message received
// on one connection is forwarded to all others.
type Session struct {
	Name    string
	Created time.Time

	connections      map[*Connection]struct{}
	connectionsMutex sync.RWMutex

	lastConnectionID int

	logger *logrus.Entry
}

func newSession(name string, logger *logrus.Entry) *Session {
	logger.Infof("Session opened: %s", name)

	metricSessionsCreated.Inc()
	metricActiveSessions.Inc()

	return &Session{
		Name:        name,
		Created:     time.Now(),
		connections: map[*Connection]struct{}{},
		logger:      logger.WithField("session", name),
	}
}

func (s *Session) String() string {
	return s.Name
}

func (s *Session) addConnection(c *Connection) {
	s.connectionsMutex.Lock()
	defer s.connectionsMutex.Unlock()

	c.ID = s.lastConnectionID
	s.lastConnectionID++

	s.connections[c] = struct{}{}
}

// removeConnection returns the number of remaining connections.
func (s *Session) removeConnection(c *Connection) int {
	s.connectionsMutex.Lock()
	defer s.connectionsMutex.Unlock()

	delete(s.connections, c)

	return len(s.connections)
}

func (s *Session) Connections() []*Connection {
	s.connectionsMutex.RLock()
	defer s.connectionsMutex.RUnlock()

	conns := make([]*Connection, 0, len(s.connections))
	for c := range s.connections {
		conns = append(conns, c)
	}

	return conns
}

func (s *Session) forward(sender *Connection, msg *pkg.SignalMessage) {
	metricMessagesReceived.WithLabelValues(msg.Type.String()).Inc()

	s.connectionsMutex.RLock()
	defer s.connectionsMutex.RUnlock()

	for c := range s.connections {
		if c != sender {
			c.channel.Send(msg)
		}
	}
}

func (s *Session) close() {
	for _, c := range s.Connections() {
		c.Close()
	}
}
