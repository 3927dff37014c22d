// Package session connects a local pion peer connection to a remote
// endpoint: it discovers and opens the signaling stream, provisions ICE
// servers and runs perfect negotiation until it is closed.
package session

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/pion/ice/v2"
	"github.com/pion/interceptor"
	"github.com/pion/webrtc/v3"
	"github.com/sirupsen/logrus"

	"github.com/stv0g/pion-edge-signaling/pkg"
	"github.com/stv0g/pion-edge-signaling/pkg/negotiator"
	"github.com/stv0g/pion-edge-signaling/pkg/pionlog"
	"github.com/stv0g/pion-edge-signaling/pkg/signaling"
	"github.com/stv0g/pion-edge-signaling/pkg/transport"
)

var (
	ErrClosed       = errors.New("session closed")
	ErrNotConnected = errors.New("session not connected")
	ErrConnected    = errors.New("session already connected")
)

const errorBacklog = 32

type Session struct {
	conn   transport.Conn
	opts   Options
	logger *logrus.Entry

	mu         sync.Mutex
	connecting bool
	channel    *signaling.Channel
	pc         *webrtc.PeerConnection
	negotiator *negotiator.Negotiator
	reading    bool

	handlersMu    sync.Mutex
	onTrack       []func(Track)
	onDataChannel []func(*webrtc.DataChannel)
	onClosed      []func()

	errors chan error

	closing    chan struct{}
	closeOnce  sync.Once
	closeErr   error
	readerDone chan struct{}
	done       chan struct{}
}

func New(conn transport.Conn, opts Options) *Session {
	opts.setDefaults()

	return &Session{
		conn:       conn,
		opts:       opts,
		logger:     opts.Logger.WithField("kind", opts.Kind),
		errors:     make(chan error, errorBacklog),
		closing:    make(chan struct{}),
		readerDone: make(chan struct{}),
		done:       make(chan struct{}),
	}
}

// Connect opens the signaling channel, performs the turn handshake and
// creates the peer connection. Negotiation then runs in the background until
// Close is called.
//
// A session can only be connected once. If Connect fails the session is
// closed.
func (s *Session) Connect(ctx context.Context) error {
	s.mu.Lock()
	if s.connecting {
		s.mu.Unlock()
		return ErrConnected
	}
	s.connecting = true
	s.mu.Unlock()

	if err := s.connect(ctx); err != nil {
		s.Close()
		return err
	}

	return nil
}

func (s *Session) connect(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	go func() {
		select {
		case <-s.closing:
			cancel()
		case <-ctx.Done():
		}
	}()

	ch, err := signaling.Dial(ctx, s.conn, signaling.WithLogger(s.logger.WithField("component", "signaling")))
	if err != nil {
		if s.isClosing() {
			return ErrClosed
		}
		return err
	}

	s.mu.Lock()
	if s.isClosing() {
		s.mu.Unlock()
		ch.Close()
		return ErrClosed
	}
	s.channel = ch
	s.mu.Unlock()

	hctx, hcancel := context.WithTimeout(ctx, s.opts.HandshakeTimeout)
	defer hcancel()

	servers, err := ch.RequestTurn(hctx)
	if err != nil {
		if s.isClosing() {
			return ErrClosed
		}
		return err
	}

	pc, err := s.newPeerConnection(servers)
	if err != nil {
		return pkg.NewError(pkg.KindPeerConnectionCreationFailed, err, "")
	}

	neg := negotiator.New(negotiator.Wrap(pc), ch, negotiator.Config{
		Role:          negotiator.RoleFor(s.opts.Kind),
		AnswerTimeout: s.opts.AnswerTimeout,
		OnError:       s.report,
		Logger:        s.logger.WithField("component", "negotiator"),
	})

	s.mu.Lock()
	if s.isClosing() {
		s.mu.Unlock()
		neg.Close()
		if err := pc.Close(); err != nil {
			s.logger.Errorf("Failed to close peer connection: %s", err)
		}
		return ErrClosed
	}
	s.pc = pc
	s.negotiator = neg
	s.reading = true
	s.mu.Unlock()

	s.wire(pc, neg)

	go s.read(ch, neg)

	s.logger.Infof("Connected as %s endpoint", negotiator.RoleFor(s.opts.Kind))

	return nil
}

func (s *Session) newPeerConnection(provisioned []webrtc.ICEServer) (*webrtc.PeerConnection, error) {
	m := &webrtc.MediaEngine{}
	if err := m.RegisterDefaultCodecs(); err != nil {
		return nil, fmt.Errorf("failed to register codecs: %w", err)
	}

	i := &interceptor.Registry{}
	if err := webrtc.RegisterDefaultInterceptors(m, i); err != nil {
		return nil, fmt.Errorf("failed to register interceptors: %w", err)
	}

	se := webrtc.SettingEngine{
		LoggerFactory: s.opts.LoggerFactory,
	}
	if se.LoggerFactory == nil {
		se.LoggerFactory = pionlog.NewFactory(s.opts.Logger.Logger)
	}
	if s.opts.VNet != nil {
		se.SetVNet(s.opts.VNet)
		se.SetICEMulticastDNSMode(ice.MulticastDNSModeDisabled)
	}

	api := webrtc.NewAPI(
		webrtc.WithMediaEngine(m),
		webrtc.WithInterceptorRegistry(i),
		webrtc.WithSettingEngine(se),
	)

	servers := []webrtc.ICEServer{}
	servers = append(servers, s.opts.ICEServers...)
	servers = append(servers, provisioned...)

	return api.NewPeerConnection(webrtc.Configuration{
		ICEServers: servers,
	})
}

func (s *Session) wire(pc *webrtc.PeerConnection, neg *negotiator.Negotiator) {
	pc.OnNegotiationNeeded(neg.NegotiationNeeded)
	pc.OnICECandidate(neg.LocalCandidate)
	pc.OnTrack(s.handleTrack)

	pc.OnDataChannel(func(dc *webrtc.DataChannel) {
		s.logger.Infof("Received data channel: %s", dc.Label())

		s.handlersMu.Lock()
		handlers := append([]func(*webrtc.DataChannel){}, s.onDataChannel...)
		s.handlersMu.Unlock()

		for _, h := range handlers {
			h(dc)
		}
	})

	pc.OnICEConnectionStateChange(func(state webrtc.ICEConnectionState) {
		neg.ICEConnectionStateChange(state)

		if state == webrtc.ICEConnectionStateClosed {
			s.handlersMu.Lock()
			handlers := append([]func(){}, s.onClosed...)
			s.handlersMu.Unlock()

			for _, h := range handlers {
				h()
			}
		}
	})

	pc.OnConnectionStateChange(func(pcs webrtc.PeerConnectionState) {
		s.logger.Infof("Connection State has changed: %s", pcs)
	})

	pc.OnSignalingStateChange(func(ss webrtc.SignalingState) {
		s.logger.Infof("Signaling State has changed: %s", ss)
	})
}

func (s *Session) read(ch *signaling.Channel, neg *negotiator.Negotiator) {
	defer close(s.readerDone)

	for {
		msg, err := ch.Recv(context.Background())
		if err != nil {
			if pkg.KindOf(err) == pkg.KindMalformedMessage {
				s.logger.Warnf("Skipping malformed message: %s", err)
				s.report(err)
				continue
			}

			if !s.isClosing() {
				s.report(pkg.NewError(pkg.KindSignalingClosed, err, "signaling stream"))
			}
			return
		}

		neg.HandleMessage(msg)
	}
}

func (s *Session) handleTrack(remote *webrtc.TrackRemote, receiver *webrtc.RTPReceiver) {
	s.mu.Lock()
	pc, neg := s.pc, s.negotiator
	s.mu.Unlock()

	rt := RemoteTrack{
		Remote:   remote,
		Receiver: receiver,
	}

	if pc != nil {
		for _, tr := range pc.GetTransceivers() {
			if tr.Receiver() == receiver {
				rt.Mid = tr.Mid()
				break
			}
		}
	}

	if neg != nil && rt.Mid != "" {
		rt.TrackID, _ = neg.Tracks().Resolve(rt.Mid)
	}

	track, ok := newTrack(remote.Kind(), rt)
	if !ok {
		s.logger.Warnf("Ignoring remote track of kind %s", remote.Kind())
		return
	}

	s.logger.Infof("Received %s track: mid=%s, id=%s", remote.Kind(), rt.Mid, rt.TrackID)

	s.handlersMu.Lock()
	handlers := append([]func(Track){}, s.onTrack...)
	s.handlersMu.Unlock()

	for _, h := range handlers {
		h(track)
	}
}

// report delivers err to the error channel without blocking.
func (s *Session) report(err error) {
	select {
	case s.errors <- err:
	default:
		s.logger.Warnf("Error backlog full, dropping: %s", err)
	}
}

func (s *Session) isClosing() bool {
	select {
	case <-s.closing:
		return true
	default:
		return false
	}
}

// Errors delivers asynchronous failures as *pkg.Error values. The channel is
// buffered; errors are dropped when nobody reads it.
func (s *Session) Errors() <-chan error {
	return s.errors
}

// Done is closed after Close has released all resources.
func (s *Session) Done() <-chan struct{} {
	return s.done
}

// OnTrack registers a handler for remote tracks.
func (s *Session) OnTrack(h func(Track)) {
	s.handlersMu.Lock()
	defer s.handlersMu.Unlock()

	s.onTrack = append(s.onTrack, h)
}

// OnDataChannel registers a handler for data channels opened by the remote
// endpoint. Register it before Connect to see channels of the first offer.
func (s *Session) OnDataChannel(h func(*webrtc.DataChannel)) {
	s.handlersMu.Lock()
	defer s.handlersMu.Unlock()

	s.onDataChannel = append(s.onDataChannel, h)
}

// OnClosed registers a handler invoked when the ICE connection is closed.
func (s *Session) OnClosed(h func()) {
	s.handlersMu.Lock()
	defer s.handlersMu.Unlock()

	s.onClosed = append(s.onClosed, h)
}

func (s *Session) Kind() negotiator.EndpointKind {
	return s.opts.Kind
}

func (s *Session) PeerConnection() *webrtc.PeerConnection {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.pc
}

func (s *Session) CreateDataChannel(label string, init *webrtc.DataChannelInit) (*webrtc.DataChannel, error) {
	pc := s.PeerConnection()
	if pc == nil {
		return nil, ErrNotConnected
	}

	return pc.CreateDataChannel(label, init)
}

func (s *Session) AddTrack(track webrtc.TrackLocal) (*webrtc.RTPSender, error) {
	pc := s.PeerConnection()
	if pc == nil {
		return nil, ErrNotConnected
	}

	return pc.AddTrack(track)
}

// Close stops negotiation and releases the signaling channel and the peer
// connection. It is safe to call concurrently with Connect and more than
// once.
func (s *Session) Close() error {
	s.closeOnce.Do(func() {
		close(s.closing)

		s.mu.Lock()
		ch, pc, neg, reading := s.channel, s.pc, s.negotiator, s.reading
		s.mu.Unlock()

		if ch != nil {
			if err := ch.Close(); err != nil {
				s.logger.Debugf("Failed to close signaling stream: %s", err)
			}
		}

		if reading {
			<-s.readerDone
		}

		if neg != nil {
			neg.Close()
		}

		if pc != nil {
			if err := pc.Close(); err != nil {
				s.closeErr = fmt.Errorf("failed to close peer connection: %w", err)
			}
		}

		s.logger.Info("Session closed")

		close(s.done)
	})

	<-s.done

	return s.closeErr
}
