package session

import (
	"time"

	"github.com/pion/logging"
	"github.com/pion/transport/vnet"
	"github.com/pion/webrtc/v3"
	"github.com/sirupsen/logrus"

	"github.com/stv0g/pion-edge-signaling/pkg/negotiator"
)

const (
	DefaultHandshakeTimeout = 30 * time.Second
	DefaultAnswerTimeout    = 30 * time.Second
)

// DefaultICEServers are used in addition to the servers provisioned by the
// remote endpoint.
var DefaultICEServers = []webrtc.ICEServer{
	{
		URLs: []string{"stun:stun.l.google.com:19302"},
	},
}

type Options struct {
	// Kind selects the negotiation role: clients are polite, devices are
	// impolite.
	Kind negotiator.EndpointKind

	// ICEServers are combined with the servers of the turn handshake.
	ICEServers []webrtc.ICEServer

	HandshakeTimeout time.Duration

	// AnswerTimeout bounds the wait for an answer to a local offer. Zero
	// selects DefaultAnswerTimeout, a negative value disables the check.
	AnswerTimeout time.Duration

	Logger        *logrus.Entry
	LoggerFactory logging.LoggerFactory

	// VNet runs the peer connection on a virtual network.
	VNet *vnet.Net
}

func (o *Options) setDefaults() {
	if o.Kind == "" {
		o.Kind = negotiator.EndpointClient
	}

	if o.HandshakeTimeout == 0 {
		o.HandshakeTimeout = DefaultHandshakeTimeout
	}

	if o.AnswerTimeout == 0 {
		o.AnswerTimeout = DefaultAnswerTimeout
	}

	if o.Logger == nil {
		o.Logger = logrus.WithField("component", "session")
	}
}
