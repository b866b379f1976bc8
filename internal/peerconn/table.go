// Package peerconn owns the client-side PeerTable: creation, capacity
// eviction, GC, and the reconnect policy from spec.md §4.4. Actual SDP/ICE
// mechanics live in internal/negotiate; track classification lives in
// internal/trackrouter. This package wires the three together per peer.
package peerconn

import (
	"sync"
	"time"

	"github.com/pion/webrtc/v4"

	"github.com/rendezvous-rtc/meshsignal/internal/negotiate"
	"github.com/rendezvous-rtc/meshsignal/internal/trackrouter"
	"github.com/rendezvous-rtc/meshsignal/internal/wireproto"
)

// PeerConnection is one entry in the PeerTable: a live RTC connection to a
// single remote user, its negotiation actor, and its classified remote
// stream.
type PeerConnection struct {
	RemoteUser wireproto.UserID
	PC         *webrtc.PeerConnection
	Actor      *negotiate.Actor
	Remote     *trackrouter.RemoteStream
	CreatedAt  time.Time

	// generation lets delayed callbacks (the disconnect-grace timer, the
	// reconnect path, track-meta delivery) detect that this entry was
	// replaced or removed since they were scheduled, per design notes §9.
	generation uint64

	metaMu sync.Mutex
	meta   map[string]trackrouter.TrackMeta
}

// pendingMeta records a track-meta hint announced before (or after) the
// matching RTP track arrives.
func (p *PeerConnection) pendingMeta(trackID string, meta trackrouter.TrackMeta) {
	p.metaMu.Lock()
	defer p.metaMu.Unlock()
	if p.meta == nil {
		p.meta = make(map[string]trackrouter.TrackMeta)
	}
	p.meta[trackID] = meta
}

// takeMeta returns the hint recorded for trackID, or a label-only fallback
// built from the track ID itself if no hint arrived.
func (p *PeerConnection) takeMeta(trackID string) trackrouter.TrackMeta {
	p.metaMu.Lock()
	defer p.metaMu.Unlock()
	if m, ok := p.meta[trackID]; ok {
		return m
	}
	return trackrouter.TrackMeta{Label: trackID}
}
