package transport

import (
	"context"
	"fmt"
	"net"
	"sync"
)

// Compile-time interface check.
var _ Conn = (*MemoryConn)(nil)

// MemoryConn is an in-process Conn. It answers every request with a fixed
// response and hands out pre-registered streams. Tests use it to drive a
// signaling channel without any network.
type MemoryConn struct {
	mu       sync.Mutex
	response *Response
	streams  map[uint32][]Stream
	requests []string
	opened   []uint32
}

func NewMemoryConn(resp *Response) *MemoryConn {
	return &MemoryConn{
		response: resp,
		streams:  map[uint32][]Stream{},
	}
}

// AddStream registers a stream to be returned by the next OpenStream on port.
func (c *MemoryConn) AddStream(port uint32, s Stream) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.streams[port] = append(c.streams[port], s)
}

func (c *MemoryConn) Request(ctx context.Context, method, path string) (*Response, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	c.requests = append(c.requests, method+" "+path)

	if c.response == nil {
		return nil, fmt.Errorf("no handler for %s %s", method, path)
	}

	return c.response, nil
}

func (c *MemoryConn) OpenStream(ctx context.Context, port uint32) (Stream, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	c.opened = append(c.opened, port)

	pending := c.streams[port]
	if len(pending) == 0 {
		return nil, fmt.Errorf("no stream listening on port %d", port)
	}
	c.streams[port] = pending[1:]

	return pending[0], nil
}

// Requests returns the requests issued so far as "METHOD path" strings.
func (c *MemoryConn) Requests() []string {
	c.mu.Lock()
	defer c.mu.Unlock()

	return append([]string(nil), c.requests...)
}

// Opened returns the ports passed to OpenStream so far.
func (c *MemoryConn) Opened() []uint32 {
	c.mu.Lock()
	defer c.mu.Unlock()

	return append([]uint32(nil), c.opened...)
}

// Pipe returns two connected in-memory streams.
func Pipe() (Stream, Stream) {
	return net.Pipe()
}
