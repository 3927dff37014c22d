package pkg

import (
	"encoding/json"
	"fmt"

	"github.com/pion/webrtc/v3"
)

type SignalMessageType int

const (
	TypeOffer SignalMessageType = iota
	TypeAnswer
	TypeIceCandidate
	TypeTurnRequest
	TypeTurnResponse
)

func (t SignalMessageType) String() string {
	switch t {
	case TypeOffer:
		return "offer"
	case TypeAnswer:
		return "answer"
	case TypeIceCandidate:
		return "candidate"
	case TypeTurnRequest:
		return "turn-request"
	case TypeTurnResponse:
		return "turn-response"
	default:
		return fmt.Sprintf("unknown(%d)", int(t))
	}
}

// Valid reports whether t is one of the defined message types.
func (t SignalMessageType) Valid() bool {
	return t >= TypeOffer && t <= TypeTurnResponse
}

const (
	StatusOK     = "OK"
	StatusFailed = "FAILED"
)

// TurnServer is the legacy TURN server entry of a TurnResponse.
// Hostname holds a complete ICE URL, e.g. "turn:turn.example.net:3478".
type TurnServer struct {
	Hostname string `json:"hostname"`
	Port     int    `json:"port"`
	Username string `json:"username"`
	Password string `json:"password"`
}

type IceServer struct {
	URLs       []string `json:"urls"`
	Username   string   `json:"username,omitempty"`
	Credential string   `json:"credential,omitempty"`
}

type IceCandidate struct {
	Candidate     string  `json:"candidate"`
	SdpMid        string  `json:"sdpMid"`
	SdpMLineIndex *uint16 `json:"sdpMLineIndex,omitempty"`
}

type MetadataTrack struct {
	Mid     string `json:"mid"`
	TrackID string `json:"trackId"`
	Error   string `json:"error,omitempty"`
}

// Failed reports whether the remote side flagged this track with an error.
func (t MetadataTrack) Failed() bool {
	return t.Error != "" && t.Error != StatusOK
}

type Metadata struct {
	Tracks    []MetadataTrack `json:"tracks"`
	NoTrickle *bool           `json:"noTrickle,omitempty"`
	Status    string          `json:"status,omitempty"`
}

type SignalMessage struct {
	Type       SignalMessageType `json:"type"`
	Data       string            `json:"data,omitempty"`
	Servers    []TurnServer      `json:"servers,omitempty"`
	IceServers []IceServer       `json:"iceServers,omitempty"`
	Metadata   *Metadata         `json:"metadata,omitempty"`
}

func (m *SignalMessage) String() string {
	return fmt.Sprintf("%s(data=%d bytes, servers=%d, iceServers=%d, metadata=%t)",
		m.Type, len(m.Data), len(m.Servers), len(m.IceServers), m.Metadata != nil)
}

// NewDescriptionMessage wraps a local session description into an offer or
// answer message.
func NewDescriptionMessage(desc webrtc.SessionDescription, md *Metadata) (*SignalMessage, error) {
	var typ SignalMessageType
	switch desc.Type {
	case webrtc.SDPTypeOffer:
		typ = TypeOffer
	case webrtc.SDPTypeAnswer:
		typ = TypeAnswer
	default:
		return nil, fmt.Errorf("cannot signal description of type %s", desc.Type)
	}

	data, err := json.Marshal(struct {
		Type string `json:"type"`
		SDP  string `json:"sdp"`
	}{desc.Type.String(), desc.SDP})
	if err != nil {
		return nil, err
	}

	return &SignalMessage{
		Type:     typ,
		Data:     string(data),
		Metadata: md,
	}, nil
}

// Description decodes the session description carried by an offer or answer.
// The description type is taken from the message type.
func (m *SignalMessage) Description() (webrtc.SessionDescription, error) {
	var desc webrtc.SessionDescription

	switch m.Type {
	case TypeOffer:
		desc.Type = webrtc.SDPTypeOffer
	case TypeAnswer:
		desc.Type = webrtc.SDPTypeAnswer
	default:
		return desc, fmt.Errorf("message of type %s carries no description", m.Type)
	}

	if m.Data == "" {
		return desc, fmt.Errorf("%s message without data", m.Type)
	}

	var sdp struct {
		SDP string `json:"sdp"`
	}
	if err := json.Unmarshal([]byte(m.Data), &sdp); err != nil {
		return desc, fmt.Errorf("failed to decode description: %w", err)
	}

	desc.SDP = sdp.SDP

	return desc, nil
}

func NewCandidateMessage(c webrtc.ICECandidateInit) (*SignalMessage, error) {
	cand := IceCandidate{
		Candidate:     c.Candidate,
		SdpMLineIndex: c.SDPMLineIndex,
	}
	if c.SDPMid != nil {
		cand.SdpMid = *c.SDPMid
	}

	data, err := json.Marshal(cand)
	if err != nil {
		return nil, err
	}

	return &SignalMessage{
		Type: TypeIceCandidate,
		Data: string(data),
	}, nil
}

// Candidate decodes the ICE candidate carried by a candidate message.
func (m *SignalMessage) Candidate() (webrtc.ICECandidateInit, error) {
	if m.Type != TypeIceCandidate {
		return webrtc.ICECandidateInit{}, fmt.Errorf("message of type %s carries no candidate", m.Type)
	}

	if m.Data == "" {
		return webrtc.ICECandidateInit{}, fmt.Errorf("candidate message without data")
	}

	var cand IceCandidate
	if err := json.Unmarshal([]byte(m.Data), &cand); err != nil {
		return webrtc.ICECandidateInit{}, fmt.Errorf("failed to decode candidate: %w", err)
	}

	mid := cand.SdpMid

	return webrtc.ICECandidateInit{
		Candidate:     cand.Candidate,
		SDPMid:        &mid,
		SDPMLineIndex: cand.SdpMLineIndex,
	}, nil
}
