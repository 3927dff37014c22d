package negotiator

import (
	"sync"

	"github.com/stv0g/pion-edge-signaling/pkg"
)

// Tracks maps media-line ids to the application track metadata announced by
// the remote side. Entries are only added or overwritten.
type Tracks struct {
	mu      sync.RWMutex
	entries map[string]pkg.MetadataTrack
}

func NewTracks() *Tracks {
	return &Tracks{
		entries: map[string]pkg.MetadataTrack{},
	}
}

// Merge stores every entry of md, overwriting entries with the same mid.
// If md carries status FAILED, the entries flagged with an error are
// returned.
func (t *Tracks) Merge(md *pkg.Metadata) []pkg.MetadataTrack {
	if md == nil {
		return nil
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	var failed []pkg.MetadataTrack
	for _, track := range md.Tracks {
		t.entries[track.Mid] = track

		if md.Status == pkg.StatusFailed && track.Failed() {
			failed = append(failed, track)
		}
	}

	return failed
}

// Outgoing builds the metadata attached to a local description. mids are the
// active media lines of the local peer connection.
func (t *Tracks) Outgoing(mids []string) *pkg.Metadata {
	t.mu.RLock()
	defer t.mu.RUnlock()

	noTrickle := false
	md := &pkg.Metadata{
		Tracks:    []pkg.MetadataTrack{},
		NoTrickle: &noTrickle,
		Status:    pkg.StatusOK,
	}

	for _, mid := range mids {
		track, ok := t.entries[mid]
		if !ok {
			continue
		}

		md.Tracks = append(md.Tracks, track)
		if track.Failed() {
			md.Status = pkg.StatusFailed
		}
	}

	return md
}

// Resolve returns the application track id announced for mid.
func (t *Tracks) Resolve(mid string) (string, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()

	track, ok := t.entries[mid]
	if !ok {
		return "", false
	}

	return track.TrackID, true
}

func (t *Tracks) Len() int {
	t.mu.RLock()
	defer t.mu.RUnlock()

	return len(t.entries)
}
