package peerconn

import (
	"testing"
	"time"

	"github.com/pion/webrtc/v4"

	"github.com/rendezvous-rtc/meshsignal/internal/config"
	"github.com/rendezvous-rtc/meshsignal/internal/trackrouter"
	"github.com/rendezvous-rtc/meshsignal/internal/wireproto"
)

type fakeSender struct{}

func (fakeSender) Signal(to, from string, signal []byte) error { return nil }

// TestEvictOldestOnCapacity exercises spec.md §4.4's capacity policy: once
// the table is full, the oldest peer is evicted and marked pending for
// retry, never the newest.
func TestEvictOldestOnCapacity(t *testing.T) {
	orig := config.MaxPeerConnections
	config.MaxPeerConnections = 2
	defer func() { config.MaxPeerConnections = orig }()

	m := NewManager("self", config.DefaultSTUNServers, fakeSender{})
	defer m.CloseAll()

	for _, u := range []wireproto.UserID{"p1", "p2", "p3"} {
		if _, err := m.Initiate(u, false); err != nil {
			t.Fatalf("initiate %s: %v", u, err)
		}
		time.Sleep(2 * time.Millisecond)
	}

	remaining := map[wireproto.UserID]bool{}
	for _, p := range m.Snapshot() {
		remaining[p.RemoteUser] = true
	}

	if remaining["p1"] {
		t.Fatal("p1 was the oldest peer and should have been evicted")
	}
	if !remaining["p2"] || !remaining["p3"] {
		t.Fatalf("expected p2 and p3 to remain, got %+v", remaining)
	}
	if !m.Pending("p1") {
		t.Fatal("evicted peer p1 should be marked pending for retry")
	}
}

// TestSwapLocalStreamTearsDownAndRebuilds reproduces spec.md §8 scenario
// 6: swapping the local stream tears down every peer immediately, then
// rebuilds fresh connections to the same remotes after the debounce.
func TestSwapLocalStreamTearsDownAndRebuilds(t *testing.T) {
	origDelay := config.StreamSwapDelay
	config.StreamSwapDelay = 20 * time.Millisecond
	defer func() { config.StreamSwapDelay = origDelay }()

	m := NewManager("u1", config.DefaultSTUNServers, fakeSender{})
	defer m.CloseAll()

	if _, err := m.Initiate("u2", true); err != nil {
		t.Fatalf("initiate u2: %v", err)
	}
	if _, err := m.Initiate("u3", true); err != nil {
		t.Fatalf("initiate u3: %v", err)
	}

	before := map[wireproto.UserID]uint64{}
	for _, p := range m.Snapshot() {
		before[p.RemoteUser] = p.generation
	}
	if len(before) != 2 {
		t.Fatalf("expected 2 peers before swap, got %d", len(before))
	}

	track, err := webrtc.NewTrackLocalStaticSample(webrtc.RTPCodecCapability{MimeType: webrtc.MimeTypeVP8}, "screen", "u1-screen")
	if err != nil {
		t.Fatalf("NewTrackLocalStaticSample: %v", err)
	}

	m.SwapLocalStream([]LocalTrack{{Track: track, Meta: trackrouter.TrackMeta{Label: "screen-share-1"}}})

	if got := len(m.Snapshot()); got != 0 {
		t.Fatalf("peers should be torn down immediately on swap, got %d still present", got)
	}

	var after []*PeerConnection
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		after = m.Snapshot()
		if len(after) == 2 {
			break
		}
		time.Sleep(10 * time.Millisecond)
	}

	if len(after) != 2 {
		t.Fatalf("expected 2 rebuilt peers after the swap debounce, got %d", len(after))
	}
	for _, p := range after {
		gen, ok := before[p.RemoteUser]
		if !ok {
			t.Fatalf("unexpected remote %s after rebuild", p.RemoteUser)
		}
		if p.generation == gen {
			t.Fatalf("remote %s reused its pre-swap generation, expected a fresh PeerConnection", p.RemoteUser)
		}
	}
}
