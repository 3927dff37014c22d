// Package negotiator implements perfect negotiation on top of a pion peer
// connection: offers, answers and candidates are exchanged over a signaling
// channel and simultaneous offers are resolved by fixed polite/impolite
// roles.
package negotiator

import (
	"sync"
	"time"

	"github.com/pion/webrtc/v3"
	"github.com/sirupsen/logrus"

	"github.com/stv0g/pion-edge-signaling/pkg"
	"github.com/stv0g/pion-edge-signaling/pkg/queue"
)

// Signaler delivers messages to the remote endpoint.
type Signaler interface {
	Send(msg *pkg.SignalMessage)
}

type Config struct {
	Role Role

	// AnswerTimeout bounds the wait for an answer to a local offer.
	// Zero or a negative value disables the check.
	AnswerTimeout time.Duration

	// OnError receives every failure. Failures never stop the negotiator.
	OnError func(err error)

	Logger *logrus.Entry
}

// Negotiator serializes all negotiation steps on a single goroutine. Its
// public methods only post events and never block on the media engine.
type Negotiator struct {
	pc       PeerConnection
	signaler Signaler
	tracks   *Tracks

	role          Role
	answerTimeout time.Duration
	onError       func(error)
	logger        *logrus.Entry

	// Owned by the run goroutine.
	makingOffer bool
	ignoreOffer bool
	offerSeq    uint64
	answerTimer *time.Timer

	// offerRestart marks the outstanding local offer as an ICE restart.
	// renegotiate and restartICE describe an offer that is due once the
	// signaling state is stable again.
	offerRestart bool
	renegotiate  bool
	restartICE   bool

	events    *queue.Queue[func()]
	closed    chan struct{}
	closeOnce sync.Once
	done      chan struct{}
}

func New(pc PeerConnection, signaler Signaler, cfg Config) *Negotiator {
	n := &Negotiator{
		pc:            pc,
		signaler:      signaler,
		tracks:        NewTracks(),
		role:          cfg.Role,
		answerTimeout: cfg.AnswerTimeout,
		onError:       cfg.OnError,
		logger:        cfg.Logger,
		events:        queue.New[func()](),
		closed:        make(chan struct{}),
		done:          make(chan struct{}),
	}

	if n.logger == nil {
		n.logger = logrus.WithField("component", "negotiator")
	}
	n.logger = n.logger.WithField("role", n.role)

	go n.run()

	return n
}

func (n *Negotiator) Role() Role {
	return n.role
}

func (n *Negotiator) Tracks() *Tracks {
	return n.tracks
}

// NegotiationNeeded starts a new offer. Wire it to OnNegotiationNeeded.
func (n *Negotiator) NegotiationNeeded() {
	n.post(func() {
		n.logger.Info("Negotiation needed")
		n.makeOffer(false)
	})
}

// RestartICE sends a new offer with fresh ICE credentials.
func (n *Negotiator) RestartICE() {
	n.post(func() {
		n.logger.Info("Restarting ICE")
		n.makeOffer(true)
	})
}

// ICEConnectionStateChange restarts ICE once the connection has failed.
func (n *Negotiator) ICEConnectionStateChange(state webrtc.ICEConnectionState) {
	n.logger.Infof("ICE Connection State has changed: %s", state)

	if state == webrtc.ICEConnectionStateFailed {
		n.RestartICE()
	}
}

// LocalCandidate forwards a gathered candidate. A nil candidate marks the end
// of gathering and is not signaled.
func (n *Negotiator) LocalCandidate(c *webrtc.ICECandidate) {
	if c == nil {
		n.logger.Info("Candidate gathering concluded")
		return
	}

	init := c.ToJSON()

	n.post(func() {
		msg, err := pkg.NewCandidateMessage(init)
		if err != nil {
			n.report(pkg.NewError(pkg.KindMalformedMessage, err, "local candidate"))
			return
		}

		n.logger.Debugf("Found new candidate: %s", init.Candidate)
		n.signaler.Send(msg)
	})
}

// HandleMessage processes a message received from the remote endpoint.
func (n *Negotiator) HandleMessage(msg *pkg.SignalMessage) {
	n.post(func() {
		n.handleMessage(msg)
	})
}

// Close stops the negotiator. Pending events are dropped.
func (n *Negotiator) Close() {
	n.closeOnce.Do(func() {
		n.events.Close()
		close(n.closed)
	})

	<-n.done
}

func (n *Negotiator) post(ev func()) {
	if !n.events.Push(ev) {
		n.logger.Debug("Dropping event on closed negotiator")
	}
}

// flush waits until all events posted before it have been processed.
func (n *Negotiator) flush() {
	processed := make(chan struct{})
	n.post(func() { close(processed) })

	select {
	case <-processed:
	case <-n.done:
	}
}

func (n *Negotiator) run() {
	defer close(n.done)
	defer func() {
		if n.answerTimer != nil {
			n.answerTimer.Stop()
		}
	}()

	for {
		ev, ok := n.events.Pop(n.closed)
		if !ok {
			return
		}

		ev()
	}
}

func (n *Negotiator) report(err *pkg.Error) {
	n.logger.Error(err)

	if n.onError != nil {
		n.onError(err)
	}
}

func (n *Negotiator) makeOffer(iceRestart bool) {
	if state := n.pc.SignalingState(); state != webrtc.SignalingStateStable {
		n.logger.Infof("Deferring offer in signaling state %s", state)
		n.renegotiate = true
		n.restartICE = n.restartICE || iceRestart
		return
	}

	n.makingOffer = true
	defer func() { n.makingOffer = false }()

	var opts *webrtc.OfferOptions
	if iceRestart {
		opts = &webrtc.OfferOptions{ICERestart: true}
	}

	offer, err := n.pc.CreateOffer(opts)
	if err != nil {
		n.report(pkg.NewError(pkg.KindLocalOfferFailed, err, "create offer"))
		return
	}

	if err := n.pc.SetLocalDescription(offer); err != nil {
		n.report(pkg.NewError(pkg.KindLocalOfferFailed, err, "set local description"))
		return
	}
	n.offerRestart = iceRestart

	if err := n.sendDescription(offer); err != nil {
		n.report(pkg.NewError(pkg.KindLocalOfferFailed, err, "send offer"))

		if err := n.pc.SetLocalDescription(webrtc.SessionDescription{Type: webrtc.SDPTypeRollback}); err != nil {
			n.logger.Warnf("Failed to roll back unsent offer: %s", err)
		}
		return
	}

	n.armAnswerTimer()
}

func (n *Negotiator) sendDescription(desc webrtc.SessionDescription) error {
	msg, err := pkg.NewDescriptionMessage(desc, n.tracks.Outgoing(n.pc.Mids()))
	if err != nil {
		return err
	}

	n.logger.Infof("Sending %s", msg.Type)
	n.signaler.Send(msg)

	return nil
}

func (n *Negotiator) armAnswerTimer() {
	n.offerSeq++

	if n.answerTimeout <= 0 {
		return
	}

	if n.answerTimer != nil {
		n.answerTimer.Stop()
	}

	seq := n.offerSeq
	n.answerTimer = time.AfterFunc(n.answerTimeout, func() {
		n.post(func() {
			if seq != n.offerSeq || n.pc.SignalingState() != webrtc.SignalingStateHaveLocalOffer {
				return
			}
			n.report(pkg.NewError(pkg.KindNegotiationTimeout, nil, "no answer within %s", n.answerTimeout))
		})
	})
}

func (n *Negotiator) handleMessage(msg *pkg.SignalMessage) {
	switch msg.Type {
	case pkg.TypeOffer, pkg.TypeAnswer:
		desc, err := msg.Description()
		if err != nil {
			n.report(pkg.NewError(pkg.KindMalformedMessage, err, "%s", msg.Type))
			return
		}
		n.handleDescription(desc, msg.Metadata)

	case pkg.TypeIceCandidate:
		n.handleCandidate(msg)

	case pkg.TypeTurnRequest, pkg.TypeTurnResponse:
		n.report(pkg.NewError(pkg.KindUnexpectedMessageType, nil, "%s after handshake", msg.Type))

	default:
		n.report(pkg.NewError(pkg.KindMalformedMessage, nil, "unknown message type %d", int(msg.Type)))
	}
}

func (n *Negotiator) handleDescription(desc webrtc.SessionDescription, md *pkg.Metadata) {
	state := n.pc.SignalingState()
	offerCollision := desc.Type == webrtc.SDPTypeOffer &&
		(n.makingOffer || state != webrtc.SignalingStateStable)

	n.ignoreOffer = n.role == Impolite && offerCollision
	if n.ignoreOffer {
		n.logger.Info("Ignoring colliding offer")
		return
	}

	// Our own offer is rolled back by the remote one and has to be sent
	// again after answering.
	if offerCollision && state == webrtc.SignalingStateHaveLocalOffer {
		n.logger.Info("Rolling back local offer")
		n.renegotiate = true
		n.restartICE = n.restartICE || n.offerRestart
	}

	for _, track := range n.tracks.Merge(md) {
		n.logger.Errorf("Remote reported %s:%s failed with error: %s", track.Mid, track.TrackID, track.Error)
	}

	if err := n.pc.SetRemoteDescription(desc); err != nil {
		n.report(pkg.NewError(pkg.KindRemoteDescriptionRejected, err, "%s", desc.Type))
		return
	}

	switch desc.Type {
	case webrtc.SDPTypeOffer:
		answer, err := n.pc.CreateAnswer(nil)
		if err != nil {
			n.report(pkg.NewError(pkg.KindLocalAnswerFailed, err, "create answer"))
			return
		}

		if err := n.pc.SetLocalDescription(answer); err != nil {
			n.report(pkg.NewError(pkg.KindLocalAnswerFailed, err, "set local description"))
			return
		}

		if err := n.sendDescription(answer); err != nil {
			n.report(pkg.NewError(pkg.KindLocalAnswerFailed, err, "send answer"))
			return
		}

	case webrtc.SDPTypeAnswer:
		n.offerSeq++
	}

	n.resumeNegotiation()
}

// resumeNegotiation sends an offer which was deferred while the signaling
// state was not stable.
func (n *Negotiator) resumeNegotiation() {
	if !n.renegotiate || n.pc.SignalingState() != webrtc.SignalingStateStable {
		return
	}

	iceRestart := n.restartICE
	n.renegotiate, n.restartICE = false, false

	n.logger.Info("Resuming deferred negotiation")
	n.makeOffer(iceRestart)
}

func (n *Negotiator) handleCandidate(msg *pkg.SignalMessage) {
	cand, err := msg.Candidate()
	if err != nil {
		n.report(pkg.NewError(pkg.KindMalformedMessage, err, "candidate"))
		return
	}

	if err := n.pc.AddICECandidate(cand); err != nil {
		if n.ignoreOffer {
			n.logger.Debugf("Ignoring candidate of ignored offer: %s", err)
			return
		}
		n.report(pkg.NewError(pkg.KindIceCandidateRejected, err, "%s", cand.Candidate))
	}
}
