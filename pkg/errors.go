package pkg

import (
	"errors"
	"fmt"
)

type ErrorKind int

const (
	KindDiscoveryFailed ErrorKind = iota + 1
	KindStreamOpenFailed
	KindFraming
	KindMalformedMessage
	KindUnexpectedMessageType
	KindHandshakeTimeout
	KindPeerConnectionCreationFailed
	KindLocalOfferFailed
	KindRemoteDescriptionRejected
	KindLocalAnswerFailed
	KindIceCandidateRejected
	KindNegotiationTimeout
	KindSignalingClosed
)

var kindNames = map[ErrorKind]string{
	KindDiscoveryFailed:              "discovery failed",
	KindStreamOpenFailed:             "stream open failed",
	KindFraming:                      "framing error",
	KindMalformedMessage:             "malformed message",
	KindUnexpectedMessageType:        "unexpected message type",
	KindHandshakeTimeout:             "handshake timeout",
	KindPeerConnectionCreationFailed: "peer connection creation failed",
	KindLocalOfferFailed:             "local offer failed",
	KindRemoteDescriptionRejected:    "remote description rejected",
	KindLocalAnswerFailed:            "local answer failed",
	KindIceCandidateRejected:         "ice candidate rejected",
	KindNegotiationTimeout:           "negotiation timeout",
	KindSignalingClosed:              "signaling closed",
}

func (k ErrorKind) String() string {
	if n, ok := kindNames[k]; ok {
		return n
	}
	return fmt.Sprintf("error kind %d", int(k))
}

// Error is the typed failure reported by every component of a session.
type Error struct {
	Kind   ErrorKind
	Detail string
	Err    error
}

func NewError(kind ErrorKind, err error, format string, args ...interface{}) *Error {
	return &Error{
		Kind:   kind,
		Detail: fmt.Sprintf(format, args...),
		Err:    err,
	}
}

func (e *Error) Error() string {
	msg := e.Kind.String()
	if e.Detail != "" {
		msg += ": " + e.Detail
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Is matches any *Error of the same kind, so the sentinels below work with
// errors.Is regardless of detail.
func (e *Error) Is(target error) bool {
	var t *Error
	if !errors.As(target, &t) {
		return false
	}
	return t.Kind == e.Kind
}

var (
	ErrDiscoveryFailed              = &Error{Kind: KindDiscoveryFailed}
	ErrStreamOpenFailed             = &Error{Kind: KindStreamOpenFailed}
	ErrFraming                      = &Error{Kind: KindFraming}
	ErrMalformedMessage             = &Error{Kind: KindMalformedMessage}
	ErrUnexpectedMessageType        = &Error{Kind: KindUnexpectedMessageType}
	ErrHandshakeTimeout             = &Error{Kind: KindHandshakeTimeout}
	ErrPeerConnectionCreationFailed = &Error{Kind: KindPeerConnectionCreationFailed}
	ErrLocalOfferFailed             = &Error{Kind: KindLocalOfferFailed}
	ErrRemoteDescriptionRejected    = &Error{Kind: KindRemoteDescriptionRejected}
	ErrLocalAnswerFailed            = &Error{Kind: KindLocalAnswerFailed}
	ErrIceCandidateRejected         = &Error{Kind: KindIceCandidateRejected}
	ErrNegotiationTimeout           = &Error{Kind: KindNegotiationTimeout}
	ErrSignalingClosed              = &Error{Kind: KindSignalingClosed}
)

// KindOf returns the kind of the first *Error in err's chain, or 0.
func KindOf(err error) ErrorKind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return 0
}
