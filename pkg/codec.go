package pkg

import (
	"encoding/binary"
	"encoding/json"
	"errors"
	"fmt"
	"io"
)

const (
	// HeaderSize is the length prefix of each frame.
	HeaderSize = 4

	// MaxMessageSize bounds the body length accepted from the wire.
	MaxMessageSize = 16 << 20
)

// Encode serializes msg into a single length-prefixed frame.
func Encode(msg *SignalMessage) ([]byte, error) {
	body, err := json.Marshal(msg)
	if err != nil {
		return nil, fmt.Errorf("failed to encode %s message: %w", msg.Type, err)
	}

	if len(body) > MaxMessageSize {
		return nil, NewError(KindFraming, nil, "message of %d bytes exceeds limit", len(body))
	}

	buf := make([]byte, HeaderSize+len(body))
	binary.LittleEndian.PutUint32(buf[:HeaderSize], uint32(len(body)))
	copy(buf[HeaderSize:], body)

	return buf, nil
}

// WriteMessage writes msg as one frame with a single call to w.Write.
func WriteMessage(w io.Writer, msg *SignalMessage) error {
	buf, err := Encode(msg)
	if err != nil {
		return err
	}

	_, err = w.Write(buf)
	return err
}

// ReadMessage reads the next frame from r.
//
// io.EOF is returned as is when the stream ends on a frame boundary. A frame
// cut short yields a KindFraming error. A complete frame whose body is not a
// valid message yields KindMalformedMessage; the stream stays in sync.
func ReadMessage(r io.Reader) (*SignalMessage, error) {
	var hdr [HeaderSize]byte
	if _, err := io.ReadFull(r, hdr[:]); err != nil {
		if errors.Is(err, io.EOF) {
			return nil, io.EOF
		}
		return nil, NewError(KindFraming, err, "short length prefix")
	}

	length := binary.LittleEndian.Uint32(hdr[:])
	if length > MaxMessageSize {
		return nil, NewError(KindFraming, nil, "frame length %d exceeds limit", length)
	}

	body := make([]byte, length)
	if _, err := io.ReadFull(r, body); err != nil {
		if errors.Is(err, io.EOF) {
			err = io.ErrUnexpectedEOF
		}
		return nil, NewError(KindFraming, err, "short body, expected %d bytes", length)
	}

	msg := &SignalMessage{}
	if err := json.Unmarshal(body, msg); err != nil {
		return nil, NewError(KindMalformedMessage, err, "invalid frame body")
	}

	if !msg.Type.Valid() {
		return nil, NewError(KindMalformedMessage, nil, "unknown message type %d", int(msg.Type))
	}

	return msg, nil
}
