// Package webrtcx provides the one helper every peer connection is built
// through: a configured pion/webrtc API surface. Nothing domain-specific
// lives here — peer lifecycle and negotiation belong to internal/peerconn
// and internal/negotiate respectively.
package webrtcx

import (
	"github.com/pion/webrtc/v4"
)

// NewPeerConnection creates a PeerConnection configured with the given STUN
// server list. No TURN servers — the service targets direct P2P
// connectivity between mesh participants, same as the teacher's
// zero-infrastructure design.
func NewPeerConnection(stunServers []string) (*webrtc.PeerConnection, error) {
	cfg := webrtc.Configuration{
		ICEServers: []webrtc.ICEServer{
			{URLs: stunServers},
		},
	}
	return webrtc.NewPeerConnection(cfg)
}
