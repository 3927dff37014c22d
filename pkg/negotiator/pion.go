package negotiator

import (
	"fmt"

	"github.com/pion/webrtc/v3"
)

// PeerConnection is the part of the media engine the negotiator drives.
type PeerConnection interface {
	CreateOffer(options *webrtc.OfferOptions) (webrtc.SessionDescription, error)
	CreateAnswer(options *webrtc.AnswerOptions) (webrtc.SessionDescription, error)
	SetLocalDescription(desc webrtc.SessionDescription) error
	SetRemoteDescription(desc webrtc.SessionDescription) error
	AddICECandidate(candidate webrtc.ICECandidateInit) error
	SignalingState() webrtc.SignalingState

	// Mids lists the media-line ids of all negotiated transceivers.
	Mids() []string
}

// Compile-time interface checks.
var (
	_ PeerConnection = (*pionPeerConnection)(nil)
	_ PeerConnection = (*deferredOffer)(nil)
)

type pionPeerConnection struct {
	*webrtc.PeerConnection
}

// Wrap adapts a pion peer connection. The result supports implicit rollback
// of a local offer, see deferOffers.
func Wrap(pc *webrtc.PeerConnection) PeerConnection {
	return deferOffers(&pionPeerConnection{pc})
}

func (p *pionPeerConnection) Mids() []string {
	mids := []string{}
	for _, tr := range p.GetTransceivers() {
		if mid := tr.Mid(); mid != "" {
			mids = append(mids, mid)
		}
	}
	return mids
}

// deferredOffer keeps a local offer away from the underlying peer connection
// until its answer arrives.
//
// pion has no have-local-offer -> stable transition, so an offer which was
// applied can never be rolled back. An offer which is only held here can be
// dropped when a remote offer collides with it. ICE gathering for a local
// offer starts once the answer has been received.
//
// Not safe for concurrent use. The negotiator goroutine owns it.
type deferredOffer struct {
	PeerConnection

	pending *webrtc.SessionDescription
}

func deferOffers(pc PeerConnection) *deferredOffer {
	return &deferredOffer{PeerConnection: pc}
}

// SignalingState reports have-local-offer while an offer is held back.
func (d *deferredOffer) SignalingState() webrtc.SignalingState {
	if d.pending != nil {
		return webrtc.SignalingStateHaveLocalOffer
	}
	return d.PeerConnection.SignalingState()
}

func (d *deferredOffer) SetLocalDescription(desc webrtc.SessionDescription) error {
	switch {
	case desc.Type == webrtc.SDPTypeRollback && d.pending != nil:
		d.pending = nil
		return nil

	case desc.Type == webrtc.SDPTypeOffer && d.pending == nil &&
		d.PeerConnection.SignalingState() == webrtc.SignalingStateStable:
		d.pending = &desc
		return nil
	}

	return d.PeerConnection.SetLocalDescription(desc)
}

// SetRemoteDescription applies a held offer before its answer, and drops it
// when a remote offer arrives instead.
func (d *deferredOffer) SetRemoteDescription(desc webrtc.SessionDescription) error {
	offer := d.pending
	d.pending = nil

	if offer != nil && desc.Type == webrtc.SDPTypeAnswer {
		if err := d.PeerConnection.SetLocalDescription(*offer); err != nil {
			return fmt.Errorf("failed to apply local offer: %w", err)
		}
	}

	return d.PeerConnection.SetRemoteDescription(desc)
}
