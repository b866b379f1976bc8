package negotiate

import (
	"encoding/json"
	"fmt"

	"github.com/pion/webrtc/v4"
)

// signalKind is the `type` discriminator inside the opaque `signal` payload
// carried by wireproto.SignalPayload — it is never interpreted by the
// server, only by the two negotiation actors on either end.
type signalKind string

const (
	signalOffer     signalKind = "offer"
	signalAnswer    signalKind = "answer"
	signalCandidate signalKind = "candidate"
	signalTrackMeta signalKind = "track-meta"
)

// wireSignal mirrors the teacher's signaling.Message shape (type/sdp/
// candidate), with an added iceRestart flag for spec.md §4.5's restart path
// and a track-meta variant carrying the out-of-band label/displaySurface/
// resolution hint spec.md §4.6 classifies on (see internal/trackrouter).
type wireSignal struct {
	Type       signalKind               `json:"type"`
	SDP        string                   `json:"sdp,omitempty"`
	Candidate  *webrtc.ICECandidateInit `json:"candidate,omitempty"`
	ICERestart bool                     `json:"iceRestart,omitempty"`

	TrackID        string `json:"trackId,omitempty"`
	Label          string `json:"label,omitempty"`
	DisplaySurface bool   `json:"displaySurface,omitempty"`
	Width          int    `json:"width,omitempty"`
	Height         int    `json:"height,omitempty"`
}

func encodeDescription(kind signalKind, sdp string, iceRestart bool) []byte {
	raw, _ := json.Marshal(wireSignal{Type: kind, SDP: sdp, ICERestart: iceRestart})
	return raw
}

func encodeCandidate(c webrtc.ICECandidateInit) []byte {
	raw, _ := json.Marshal(wireSignal{Type: signalCandidate, Candidate: &c})
	return raw
}

func encodeTrackMeta(trackID, label string, displaySurface bool, width, height int) []byte {
	raw, _ := json.Marshal(wireSignal{
		Type: signalTrackMeta, TrackID: trackID, Label: label,
		DisplaySurface: displaySurface, Width: width, Height: height,
	})
	return raw
}

func decodeSignal(data []byte) (wireSignal, error) {
	var sig wireSignal
	if err := json.Unmarshal(data, &sig); err != nil {
		return wireSignal{}, fmt.Errorf("decode signal: %w", err)
	}
	return sig, nil
}
