// Package signaling carries framed signal messages over a transport stream.
//
// A Channel owns one stream. Outgoing messages are queued and written by a
// single writer goroutine in the order Send was called. Incoming messages are
// read on demand by Recv.
package signaling

import (
	"context"
	"errors"
	"io"
	"sync"

	"github.com/sirupsen/logrus"

	"github.com/stv0g/pion-edge-signaling/pkg"
	"github.com/stv0g/pion-edge-signaling/pkg/queue"
)

var ErrClosed = errors.New("signaling channel closed")

type Option func(*Channel)

// WithLogger replaces the default component logger.
func WithLogger(l *logrus.Entry) Option {
	return func(c *Channel) {
		c.logger = l
	}
}

type Channel struct {
	stream io.ReadWriteCloser
	logger *logrus.Entry

	outgoing *queue.Queue[*pkg.SignalMessage]

	// recvMu serializes readers so frames are never interleaved.
	recvMu sync.Mutex

	closed    chan struct{}
	closeOnce sync.Once
	closeErr  error

	errMu sync.Mutex
	err   error

	writerDone chan struct{}
}

func NewChannel(stream io.ReadWriteCloser, opts ...Option) *Channel {
	c := &Channel{
		stream:     stream,
		logger:     logrus.WithField("component", "signaling"),
		outgoing:   queue.New[*pkg.SignalMessage](),
		closed:     make(chan struct{}),
		writerDone: make(chan struct{}),
	}

	for _, opt := range opts {
		opt(c)
	}

	go c.write()

	return c
}

// Send queues msg for transmission and returns immediately. Messages sent
// after Close are dropped.
func (c *Channel) Send(msg *pkg.SignalMessage) {
	if !c.outgoing.Push(msg) {
		c.logger.Debugf("Dropping %s message on closed channel", msg.Type)
	}
}

// Recv blocks until the next message arrives.
//
// Cancelling ctx while a read is in progress closes the channel: a partially
// consumed frame cannot be recovered.
func (c *Channel) Recv(ctx context.Context) (*pkg.SignalMessage, error) {
	c.recvMu.Lock()
	defer c.recvMu.Unlock()

	select {
	case <-c.closed:
		return nil, c.closedErr()
	default:
	}

	if err := ctx.Err(); err != nil {
		return nil, err
	}

	stop := context.AfterFunc(ctx, func() {
		c.logger.Warn("Receive cancelled, closing signaling channel")
		c.closeWithError(ctx.Err())
	})

	msg, err := pkg.ReadMessage(c.stream)

	// The channel is already closed once the cancel callback has started,
	// even if the read itself succeeded.
	if !stop() && err == nil {
		return nil, ctx.Err()
	}

	if err != nil {
		select {
		case <-c.closed:
			if ctxErr := ctx.Err(); ctxErr != nil {
				return nil, ctxErr
			}
			return nil, c.closedErr()
		default:
		}

		if pkg.KindOf(err) == pkg.KindMalformedMessage {
			return nil, err
		}

		c.closeWithError(err)
		return nil, err
	}

	c.logger.Debugf("Received message: %s", msg)

	return msg, nil
}

// Done is closed once the channel is closed.
func (c *Channel) Done() <-chan struct{} {
	return c.closed
}

// Err returns the error that closed the channel, if any.
func (c *Channel) Err() error {
	c.errMu.Lock()
	defer c.errMu.Unlock()

	return c.err
}

// Close stops the writer, fails pending receives and closes the stream.
func (c *Channel) Close() error {
	c.closeWithError(nil)
	<-c.writerDone
	return c.closeErr
}

func (c *Channel) closedErr() error {
	if err := c.Err(); err != nil {
		return err
	}
	return ErrClosed
}

func (c *Channel) closeWithError(err error) {
	c.closeOnce.Do(func() {
		c.logger.Info("Closing signaling channel")

		c.errMu.Lock()
		c.err = err
		c.errMu.Unlock()

		close(c.closed)
		c.outgoing.Close()

		c.closeErr = c.stream.Close()
	})
}

func (c *Channel) write() {
	defer close(c.writerDone)

	for {
		msg, ok := c.outgoing.Pop(c.closed)
		if !ok {
			return
		}

		c.logger.Debugf("Sending message: %s", msg)

		if err := pkg.WriteMessage(c.stream, msg); err != nil {
			select {
			case <-c.closed:
			default:
				c.logger.Errorf("Failed to send %s message: %s", msg.Type, err)
				c.closeWithError(err)
			}
			return
		}
	}
}
