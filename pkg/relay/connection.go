package relay

import (
	"context"
	"time"

	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"

	"github.com/stv0g/pion-edge-signaling/pkg"
	"github.com/stv0g/pion-edge-signaling/pkg/signaling"
	"github.com/stv0g/pion-edge-signaling/pkg/transport"
)

const (
	// Time allowed to write a control message to the peer.
	writeWait = 10 * time.Second

	// Time allowed to read the next pong message from the peer.
	pongWait = 60 * time.Second

	// Send pings to peer with this period. Must be less than pongWait.
	pingPeriod = (pongWait * 9) / 10
)

// Connection is one signaling stream attached to a session.
type Connection struct {
	ID      int
	Remote  string
	Created time.Time

	relay   *Relay
	session *Session
	conn    *websocket.Conn
	channel *signaling.Channel
	logger  *logrus.Entry
}

func newConnection(r *Relay, s *Session, conn *websocket.Conn) *Connection {
	c := &Connection{
		Remote:  conn.RemoteAddr().String(),
		Created: time.Now(),
		relay:   r,
		session: s,
		conn:    conn,
	}

	c.logger = s.logger.WithField("remote", c.Remote)
	c.channel = signaling.NewChannel(transport.NewWebSocketStream(conn), signaling.WithLogger(c.logger))

	metricConnectionsCreated.Inc()
	metricActiveConnections.Inc()

	return c
}

func (c *Connection) String() string {
	return c.Remote
}

func (c *Connection) Close() error {
	return c.channel.Close()
}

func (c *Connection) run() {
	defer func() {
		c.logger.Info("Connection closing")

		c.Close()
		c.relay.removeConnection(c)

		metricActiveConnections.Dec()
	}()

	c.conn.SetReadLimit(pkg.HeaderSize + pkg.MaxMessageSize)
	c.conn.SetReadDeadline(time.Now().Add(pongWait)) //nolint:errcheck
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	go c.ping()

	for {
		msg, err := c.channel.Recv(context.Background())
		if err != nil {
			if pkg.KindOf(err) == pkg.KindMalformedMessage {
				c.logger.Warnf("Dropping malformed message: %s", err)
				continue
			}

			select {
			case <-c.channel.Done():
				if err := c.channel.Err(); err != nil {
					c.logger.Debugf("Signaling stream ended: %s", err)
				}
			default:
				c.logger.Errorf("Failed to read: %s", err)
			}
			return
		}

		switch msg.Type {
		case pkg.TypeTurnRequest:
			metricTurnRequests.Inc()
			c.channel.Send(c.relay.turnResponse())

		default:
			c.session.forward(c, msg)
		}
	}
}

func (c *Connection) ping() {
	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()

	for {
		select {
		case <-c.channel.Done():
			return

		case <-ticker.C:
			c.logger.Debug("Ping")
			if err := c.conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(writeWait)); err != nil {
				c.logger.Errorf("Failed to ping: %s", err)
			}
		}
	}
}
