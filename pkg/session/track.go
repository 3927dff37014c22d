package session

import (
	"github.com/pion/webrtc/v3"
)

// Track is a remote media track, either a VideoTrack or an AudioTrack.
type Track interface {
	Info() *RemoteTrack
}

// RemoteTrack describes a track received from the remote endpoint.
type RemoteTrack struct {
	Mid string

	// TrackID is the application track id announced in the negotiation
	// metadata. It is empty if the remote side did not announce the mid.
	TrackID string

	Remote   *webrtc.TrackRemote
	Receiver *webrtc.RTPReceiver
}

type VideoTrack struct {
	RemoteTrack
}

type AudioTrack struct {
	RemoteTrack
}

func (t *VideoTrack) Info() *RemoteTrack { return &t.RemoteTrack }
func (t *AudioTrack) Info() *RemoteTrack { return &t.RemoteTrack }

// newTrack picks the track variant from the codec kind.
func newTrack(kind webrtc.RTPCodecType, rt RemoteTrack) (Track, bool) {
	switch kind {
	case webrtc.RTPCodecTypeVideo:
		return &VideoTrack{rt}, true
	case webrtc.RTPCodecTypeAudio:
		return &AudioTrack{rt}, true
	default:
		return nil, false
	}
}
