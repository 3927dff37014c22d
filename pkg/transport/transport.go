// Package transport defines the connection a signaling channel is built on:
// a request/response primitive used for discovery plus reliable ordered
// byte streams addressed by a numeric port.
package transport

import (
	"context"
	"io"
)

// ContentFormat identifies the encoding of a Response payload. Values follow
// the CoAP content-format registry.
type ContentFormat int

const (
	ContentFormatJSON ContentFormat = 50
	ContentFormatCBOR ContentFormat = 60
)

// StatusContent is the CoAP 2.05 Content response code.
const StatusContent = 205

type Response struct {
	Status        int
	ContentFormat ContentFormat
	Payload       []byte
}

// Stream is a reliable ordered byte stream.
type Stream interface {
	io.ReadWriteCloser
}

// Conn is a connection to a remote endpoint.
type Conn interface {
	// Request issues a request against the remote endpoint.
	Request(ctx context.Context, method, path string) (*Response, error)

	// OpenStream opens a new stream on the given port.
	OpenStream(ctx context.Context, port uint32) (Stream, error)
}
