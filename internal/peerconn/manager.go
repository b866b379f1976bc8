package peerconn

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/bep/debounce"
	"github.com/pion/webrtc/v4"
	"golang.org/x/exp/maps"

	"github.com/rendezvous-rtc/meshsignal/internal/config"
	"github.com/rendezvous-rtc/meshsignal/internal/negotiate"
	"github.com/rendezvous-rtc/meshsignal/internal/trackrouter"
	"github.com/rendezvous-rtc/meshsignal/internal/util"
	"github.com/rendezvous-rtc/meshsignal/internal/webrtcx"
	"github.com/rendezvous-rtc/meshsignal/internal/wireproto"
)

// LocalTrack is one track the manager attaches to every newly created
// peer, paired with the metadata needed for the remote side's
// trackrouter classification.
type LocalTrack struct {
	Track webrtc.TrackLocal
	Meta  trackrouter.TrackMeta
}

// Manager owns the client-side PeerTable and implements spec.md §4.4: peer
// lifecycle, capacity eviction, the periodic GC sweep, and the per-peer
// reconnect policy. One Manager exists per local session.
type Manager struct {
	self        wireproto.UserID
	stunServers []string
	sender      negotiate.Sender

	mu      sync.Mutex
	table   map[wireproto.UserID]*PeerConnection
	pending map[wireproto.UserID]bool
	genSeq  atomic.Uint64

	localTracks []LocalTrack

	swapDebounce func(func())
}

// NewManager creates a Manager bound to self's identity. sender delivers
// outgoing signal payloads (offers/answers/candidates/track-meta) to
// remote peers — the production client and the test client both satisfy
// negotiate.Sender.
func NewManager(self wireproto.UserID, stunServers []string, sender negotiate.Sender) *Manager {
	return &Manager{
		self:         self,
		stunServers:  stunServers,
		sender:       sender,
		table:        make(map[wireproto.UserID]*PeerConnection),
		pending:      make(map[wireproto.UserID]bool),
		swapDebounce: debounce.New(config.StreamSwapDelay),
	}
}

// Snapshot returns the current peers, for diagnostics and tests.
func (m *Manager) Snapshot() []*PeerConnection {
	m.mu.Lock()
	defer m.mu.Unlock()
	return maps.Values(m.table)
}

// Pending reports whether remote is currently queued for a retried connect.
func (m *Manager) Pending(remote wireproto.UserID) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.pending[remote]
}

// Initiate ensures a PeerConnection exists for remote. If initiator is
// true, it explicitly drives an offer (spec.md §4.4's "if current role is
// initiator, drive an offer"); otherwise it only attaches the current
// local tracks and lets pion's own negotiation-needed callback do it.
func (m *Manager) Initiate(remote wireproto.UserID, initiator bool) (*PeerConnection, error) {
	m.mu.Lock()
	p, ok := m.table[remote]
	m.mu.Unlock()

	if !ok {
		var err error
		p, err = m.createPeer(remote)
		if err != nil {
			return nil, fmt.Errorf("initiate %s: %w", remote, err)
		}
	}

	if initiator {
		p.Actor.Initiate()
	}
	return p, nil
}

// IngestSignal routes an inbound signal to remote's state machine, creating
// the peer if it does not exist yet (spec.md §4.4's "ingest-signal").
func (m *Manager) IngestSignal(remote wireproto.UserID, signal []byte) {
	m.mu.Lock()
	p, ok := m.table[remote]
	m.mu.Unlock()

	if !ok {
		var err error
		p, err = m.createPeer(remote)
		if err != nil {
			util.LogError("peerconn: ingest-signal: create peer for %s: %v", remote, err)
			return
		}
	}
	p.Actor.HandleSignal(signal)
}

// createPeer builds a new PeerConnection for remote, evicting the oldest
// entry first if the table is already at capacity, and wires reconnect
// monitoring on it.
func (m *Manager) createPeer(remote wireproto.UserID) (*PeerConnection, error) {
	m.mu.Lock()
	if len(m.table) >= config.MaxPeerConnections {
		m.evictOldestLocked()
	}
	m.mu.Unlock()

	pc, err := webrtcx.NewPeerConnection(m.stunServers)
	if err != nil {
		return nil, err
	}

	p := &PeerConnection{
		RemoteUser: remote,
		PC:         pc,
		Remote:     trackrouter.NewRemoteStream(),
		CreatedAt:  time.Now(),
		generation: m.genSeq.Add(1),
	}

	actor := negotiate.NewActor(m.self, remote, pc, m.sender, config.NegotiationDebounce)
	actor.OnTrackMeta = func(trackID, label string, displaySurface bool, width, height int) {
		m.mu.Lock()
		cur, ok := m.table[remote]
		m.mu.Unlock()
		if !ok || cur.generation != p.generation {
			return
		}
		cur.pendingMeta(trackID, trackrouter.TrackMeta{Label: label, DisplaySurface: displaySurface, Width: width, Height: height})
	}
	p.Actor = actor

	for _, lt := range m.localTracks {
		if _, err := pc.AddTrack(lt.Track); err != nil {
			util.LogError("peerconn: AddTrack for %s: %v", remote, err)
			continue
		}
		actor.SendTrackMeta(lt.Track.ID(), lt.Meta.Label, lt.Meta.DisplaySurface, lt.Meta.Width, lt.Meta.Height)
	}

	pc.OnTrack(func(t *webrtc.TrackRemote, _ *webrtc.RTPReceiver) {
		p.Remote.AddTrack(t, p.takeMeta(t.ID()))
	})

	pc.OnConnectionStateChange(func(s webrtc.PeerConnectionState) {
		m.onConnectionStateChange(remote, p.generation, s)
	})

	m.mu.Lock()
	m.table[remote] = p
	delete(m.pending, remote)
	m.mu.Unlock()

	return p, nil
}

// evictOldestLocked removes the oldest-by-CreatedAt peer and queues its
// user for retry, per spec.md §4.4's capacity policy. Caller holds m.mu.
func (m *Manager) evictOldestLocked() {
	if len(m.table) == 0 {
		return
	}
	users := maps.Keys(m.table)
	sort.Slice(users, func(i, j int) bool {
		return m.table[users[i]].CreatedAt.Before(m.table[users[j]].CreatedAt)
	})

	oldest := users[0]
	p := m.table[oldest]
	delete(m.table, oldest)
	m.pending[oldest] = true

	p.Actor.Close()
	p.PC.Close()
	util.Stats.AddPeerEvicted()
}

// Remove closes the transport for remote, deletes it from the table, and
// drops its pending_ice with it (spec.md §4.4's "remove").
func (m *Manager) Remove(remote wireproto.UserID) {
	m.mu.Lock()
	p, ok := m.table[remote]
	delete(m.table, remote)
	delete(m.pending, remote)
	m.mu.Unlock()

	if !ok {
		return
	}
	p.Actor.Close()
	if err := p.PC.Close(); err != nil {
		util.LogWarning("peerconn: close %s: %v", remote, err)
	}
}

// CloseAll idempotently tears down every peer.
func (m *Manager) CloseAll() {
	m.mu.Lock()
	users := maps.Keys(m.table)
	m.mu.Unlock()

	for _, u := range users {
		m.Remove(u)
	}
}

// SwapLocalStream implements spec.md §4.4's tear-down-and-rebuild policy:
// every peer is closed immediately, then after StreamSwapDelay every
// previously-connected remote (plus anything already pending) is
// re-initiated against the new tracks.
func (m *Manager) SwapLocalStream(tracks []LocalTrack) {
	m.mu.Lock()
	remotes := append(maps.Keys(m.table), maps.Keys(m.pending)...)
	m.localTracks = tracks
	m.mu.Unlock()

	m.CloseAll()

	m.swapDebounce(func() {
		for _, u := range remotes {
			if _, err := m.Initiate(u, true); err != nil {
				util.LogError("peerconn: re-initiate %s after stream swap: %v", u, err)
			}
		}
	})
}

// onConnectionStateChange implements spec.md §4.4's reconnect policy. gen
// must still match the table entry's generation when each delayed action
// fires, or the peer was replaced/removed in the meantime and the action
// is dropped (design notes §9).
func (m *Manager) onConnectionStateChange(remote wireproto.UserID, gen uint64, state webrtc.PeerConnectionState) {
	util.LogDebug("peerconn: %s state=%s", remote, state)

	switch state {
	case webrtc.PeerConnectionStateDisconnected:
		time.AfterFunc(config.DisconnectGrace, func() {
			m.mu.Lock()
			p, ok := m.table[remote]
			m.mu.Unlock()
			if !ok || p.generation != gen {
				return
			}
			cur := p.PC.ConnectionState()
			if cur != webrtc.PeerConnectionStateDisconnected && cur != webrtc.PeerConnectionStateFailed {
				return
			}
			m.removeAndScheduleRetry(remote, gen)
		})

	case webrtc.PeerConnectionStateFailed:
		m.removeAndScheduleRetry(remote, gen)
	}
}

func (m *Manager) removeAndScheduleRetry(remote wireproto.UserID, gen uint64) {
	m.mu.Lock()
	p, ok := m.table[remote]
	if ok && p.generation == gen {
		delete(m.table, remote)
		m.pending[remote] = true
	}
	m.mu.Unlock()
	if !ok || p.generation != gen {
		return
	}

	p.Actor.Close()
	if err := p.PC.Close(); err != nil {
		util.LogWarning("peerconn: close %s during reconnect: %v", remote, err)
	}
	util.Stats.AddPeerEvicted()

	time.AfterFunc(config.ReconnectDelay, func() {
		m.mu.Lock()
		stillPending := m.pending[remote]
		m.mu.Unlock()
		if !stillPending {
			return
		}
		if _, err := m.Initiate(remote, true); err != nil {
			util.LogError("peerconn: retry initiate for %s: %v", remote, err)
		} else {
			util.Stats.AddPeerReconnected()
		}
	})
}

// RunGC sweeps the table every CleanupInterval, removing any peer older
// than StaleThreshold whose transport is disconnected or failed, per
// spec.md §4.4. It runs until ctx is cancelled.
func (m *Manager) RunGC(ctx context.Context) {
	ticker := time.NewTicker(config.CleanupInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			m.sweep()
		case <-ctx.Done():
			return
		}
	}
}

func (m *Manager) sweep() {
	now := time.Now()

	m.mu.Lock()
	var stale []wireproto.UserID
	for u, p := range m.table {
		if now.Sub(p.CreatedAt) <= config.StaleThreshold {
			continue
		}
		switch p.PC.ConnectionState() {
		case webrtc.PeerConnectionStateDisconnected, webrtc.PeerConnectionStateFailed:
			stale = append(stale, u)
		}
	}
	m.mu.Unlock()

	for _, u := range stale {
		m.Remove(u)
	}
}
