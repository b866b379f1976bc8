package negotiate

import (
	"sync"
	"testing"
	"time"

	"github.com/pion/webrtc/v4"
)

// relaySender forwards every signal it's asked to send straight to the
// other side's Actor.HandleSignal, simulating the signaling server's
// relay without any of the registry/router/transport machinery. It also
// records what was sent, so tests can inspect which offer "won".
type relaySender struct {
	mu     sync.Mutex
	target *Actor
	sent   []wireSignal
}

func (r *relaySender) Signal(to, from string, signal []byte) error {
	sig, err := decodeSignal(signal)
	if err != nil {
		return err
	}
	r.mu.Lock()
	r.sent = append(r.sent, sig)
	r.mu.Unlock()
	r.target.HandleSignal(signal)
	return nil
}

func (r *relaySender) firstOffer(t *testing.T) string {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, s := range r.sent {
		if s.Type == signalOffer {
			return s.SDP
		}
	}
	t.Fatal("no offer recorded")
	return ""
}

// newDataChannelPeer builds a real pion PeerConnection with one data
// channel, solely so CreateOffer/CreateAnswer produce a non-empty SDP with
// real ICE/DTLS parameters to exchange — no network connectivity is
// exercised, only the signaling state machine.
func newDataChannelPeer(t *testing.T) *webrtc.PeerConnection {
	pc, err := webrtc.NewPeerConnection(webrtc.Configuration{})
	if err != nil {
		t.Fatalf("NewPeerConnection: %v", err)
	}
	if _, err := pc.CreateDataChannel("probe", nil); err != nil {
		t.Fatalf("CreateDataChannel: %v", err)
	}
	return pc
}

// TestGlareResolutionFinalOfferIsImpolitePeers reproduces spec.md §8
// scenario 5: u1 ("u1" < "u2", polite) and u2 (impolite) both fire an
// offer at the same time. u1 must roll back and accept u2's offer; u2
// must ignore u1's offer and wait for u1's answer. Both sides settle on
// the session derived from u2's offer.
func TestGlareResolutionFinalOfferIsImpolitePeers(t *testing.T) {
	pcA := newDataChannelPeer(t)
	pcB := newDataChannelPeer(t)
	defer pcA.Close()
	defer pcB.Close()

	relayToB := &relaySender{}
	relayToA := &relaySender{}

	actorA := NewActor("u1", "u2", pcA, relayToB, time.Hour)
	actorB := NewActor("u2", "u1", pcB, relayToA, time.Hour)
	relayToB.target = actorB
	relayToA.target = actorA
	defer actorA.Close()
	defer actorB.Close()

	if !actorA.Polite() {
		t.Fatal("u1 should be polite (\"u1\" < \"u2\")")
	}
	if actorB.Polite() {
		t.Fatal("u2 should be impolite")
	}

	actorA.Initiate()
	actorB.Initiate()

	// Both peers start out stable, so also wait for each side to hold a
	// remote description, i.e. for the offer/answer exchange to finish.
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if pcA.SignalingState() == webrtc.SignalingStateStable && pcB.SignalingState() == webrtc.SignalingStateStable &&
			pcA.RemoteDescription() != nil && pcB.RemoteDescription() != nil {
			break
		}
		time.Sleep(10 * time.Millisecond)
	}

	if pcA.SignalingState() != webrtc.SignalingStateStable {
		t.Fatalf("u1 signaling state = %s, want stable", pcA.SignalingState())
	}
	if pcB.SignalingState() != webrtc.SignalingStateStable {
		t.Fatalf("u2 signaling state = %s, want stable", pcB.SignalingState())
	}

	bOffer := relayToA.firstOffer(t)
	if pcA.RemoteDescription() == nil || pcA.RemoteDescription().SDP != bOffer {
		t.Fatal("u1's accepted remote description is not u2's offer, glare resolution did not favor the impolite peer")
	}
}

// noopSender never delivers anything; used where a test only cares about
// an actor's own state transitions.
type noopSender struct{}

func (noopSender) Signal(to, from string, signal []byte) error { return nil }

// TestCandidateQueuedUntilRemoteDescription exercises onCandidate and
// drainPendingICE directly: a candidate arriving before any remote
// description exists must queue, then drain exactly once the description
// is set, per spec.md §8's negotiation invariant.
func TestCandidateQueuedUntilRemoteDescription(t *testing.T) {
	self := newDataChannelPeer(t)
	defer self.Close()
	peer := newDataChannelPeer(t)
	defer peer.Close()

	offer, err := peer.CreateOffer(nil)
	if err != nil {
		t.Fatalf("CreateOffer: %v", err)
	}
	if err := peer.SetLocalDescription(offer); err != nil {
		t.Fatalf("SetLocalDescription: %v", err)
	}

	a := &Actor{self: "self", remote: "peer", polite: true, pc: self, sender: noopSender{}}

	mid := "0"
	idx := uint16(0)
	cand := webrtc.ICECandidateInit{
		Candidate:     "candidate:1 1 udp 2130706431 127.0.0.1 9 typ host",
		SDPMid:        &mid,
		SDPMLineIndex: &idx,
	}

	a.onCandidate(wireSignal{Type: signalCandidate, Candidate: &cand})
	if len(a.pendingICE) != 1 {
		t.Fatalf("pendingICE = %d, want 1 before remote description is set", len(a.pendingICE))
	}

	a.onOffer(wireSignal{Type: signalOffer, SDP: offer.SDP})

	if self.RemoteDescription() == nil {
		t.Fatal("onOffer did not set a remote description")
	}
	if len(a.pendingICE) != 0 {
		t.Fatalf("pendingICE = %d, want 0 after remote description is set (should drain)", len(a.pendingICE))
	}
}
