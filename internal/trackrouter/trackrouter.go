// Package trackrouter classifies inbound media tracks as camera or
// screen-share and maintains the stable per-peer remote stream described
// in spec.md §4.6.
//
// pion's webrtc.TrackRemote exposes codec and kind but not the
// getUserMedia-style label, displaySurface hint, or decoded resolution the
// spec's classification rule reasons about — those belong to the sender's
// capture layer, not the RTP stream. TrackMeta carries them across the
// signaling channel (as a separate track-meta signal sent alongside the
// offer/answer exchange) so Classify can apply the spec's rule without
// decoding video.
package trackrouter

import (
	"strings"
	"sync"

	"github.com/pion/webrtc/v4"
)

// Kind is the classification of a video track.
type Kind int

const (
	KindCamera Kind = iota
	KindScreenShare
)

// TrackMeta is the out-of-band description of a track needed to classify
// it, supplied by the sender alongside the negotiation.
type TrackMeta struct {
	Label          string
	DisplaySurface bool
	Width, Height  int
}

// screenShareMarkers are the label substrings spec.md §4.6 lists, checked
// case-insensitively.
var screenShareMarkers = []string{"screen", "window", "tab", "display"}

// Classify applies spec.md §4.6's priority-ordered rule.
func Classify(m TrackMeta) Kind {
	lower := strings.ToLower(m.Label)
	for _, marker := range screenShareMarkers {
		if strings.Contains(lower, marker) {
			return KindScreenShare
		}
	}
	if m.DisplaySurface {
		return KindScreenShare
	}
	if m.Width > 1000 && m.Height > 700 {
		return KindScreenShare
	}
	return KindCamera
}

// RemoteStream holds the stable set of tracks received from one peer: at
// most one audio track, one camera track, one screen-share track. Newly
// arrived tracks replace the existing track of the same kind, per
// spec.md §4.6's routing rules.
type RemoteStream struct {
	mu sync.Mutex

	Audio  *webrtc.TrackRemote
	Camera *webrtc.TrackRemote
	Screen *webrtc.TrackRemote

	enabled map[string]bool
}

// NewRemoteStream creates an empty stream for one peer.
func NewRemoteStream() *RemoteStream {
	return &RemoteStream{enabled: make(map[string]bool)}
}

// AddTrack routes an inbound track per its kind, replacing whatever
// previously held that slot, and marks it enabled on arrival. pion invokes
// OnTrack from its own goroutines, possibly concurrently for simultaneous
// tracks, so this is guarded independently of the peer table's own lock.
func (rs *RemoteStream) AddTrack(t *webrtc.TrackRemote, meta TrackMeta) {
	rs.mu.Lock()
	defer rs.mu.Unlock()

	rs.enabled[t.ID()] = true

	if t.Kind() == webrtc.RTPCodecTypeAudio {
		rs.Audio = t
		return
	}

	switch Classify(meta) {
	case KindScreenShare:
		rs.Screen = t
	default:
		rs.Camera = t
	}
}

// Enabled reports whether a track is currently marked enabled.
func (rs *RemoteStream) Enabled(trackID string) bool {
	rs.mu.Lock()
	defer rs.mu.Unlock()
	return rs.enabled[trackID]
}

// Snapshot returns the three current track slots under lock, for tests and
// diagnostics.
func (rs *RemoteStream) Snapshot() (audio, camera, screen *webrtc.TrackRemote) {
	rs.mu.Lock()
	defer rs.mu.Unlock()
	return rs.Audio, rs.Camera, rs.Screen
}
