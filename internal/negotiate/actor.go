// Package negotiate implements the Perfect Negotiation state machine from
// spec.md §4.5: one actor goroutine per remote peer, consuming a serial
// queue of offer/answer/ICE/negotiation-needed events so that making_offer
// and pending_ice are only ever touched by their owning goroutine — the
// per-peer concurrency model described in design notes §9.
package negotiate

import (
	"time"

	"github.com/bep/debounce"
	"github.com/pion/webrtc/v4"

	"github.com/rendezvous-rtc/meshsignal/internal/util"
	"github.com/rendezvous-rtc/meshsignal/internal/wireproto"
)

// Sender delivers an opaque signal payload to a remote peer through the
// signaling channel. Both the production client (internal/app) and the
// test client satisfy it.
type Sender interface {
	Signal(to, from string, signal []byte) error
}

type eventKind int

const (
	evNegotiationNeeded eventKind = iota
	evMakeOffer
	evOffer
	evAnswer
	evCandidate
	evICERestart
	evTrackMeta
)

type actorEvent struct {
	kind   eventKind
	signal wireSignal
}

// Actor drives Perfect Negotiation for exactly one remote peer. Create one
// per entry in a peerconn.PeerTable; Close it when the peer is removed.
type Actor struct {
	self, remote wireproto.UserID
	polite       bool

	pc     *webrtc.PeerConnection
	sender Sender

	debounce func(func())
	events   chan actorEvent
	done     chan struct{}

	makingOffer bool
	pendingICE  []webrtc.ICECandidateInit

	// OnTrackMeta is invoked on the actor's own goroutine whenever the
	// remote side announces a track-meta hint, so internal/peerconn can
	// feed it to internal/trackrouter before (or after) the track itself
	// arrives over the RTP connection. Set before the first HandleSignal.
	OnTrackMeta func(trackID, label string, displaySurface bool, width, height int)
}

// NewActor creates and starts an Actor for the (self, remote) pair, wiring
// the usual pion callbacks (negotiation-needed, trickled ICE, ICE failure)
// into the actor's own event queue so nothing touches actor state from
// outside its goroutine. The polite/impolite role is the lexicographic
// compare from spec.md §4.5: the smaller UserId yields on glare.
func NewActor(self, remote wireproto.UserID, pc *webrtc.PeerConnection, sender Sender, debounceDelay time.Duration) *Actor {
	a := &Actor{
		self:     self,
		remote:   remote,
		polite:   self < remote,
		pc:       pc,
		sender:   sender,
		debounce: debounce.New(debounceDelay),
		events:   make(chan actorEvent, 32),
		done:     make(chan struct{}),
	}

	pc.OnNegotiationNeeded(func() {
		a.enqueue(actorEvent{kind: evNegotiationNeeded})
	})
	pc.OnICECandidate(func(c *webrtc.ICECandidate) {
		if c == nil {
			return
		}
		if err := sender.Signal(string(remote), string(self), encodeCandidate(c.ToJSON())); err != nil {
			util.LogError("negotiate: send candidate to %s: %v", remote, err)
		}
	})
	pc.OnICEConnectionStateChange(func(s webrtc.ICEConnectionState) {
		if s == webrtc.ICEConnectionStateFailed {
			a.enqueue(actorEvent{kind: evICERestart})
		}
	})

	go a.run()
	return a
}

// Polite reports whether this side yields on glare against remote.
func (a *Actor) Polite() bool { return a.polite }

// HandleSignal decodes an inbound opaque signal and enqueues the matching
// event. Unknown or malformed signals are logged and dropped, never fatal.
func (a *Actor) HandleSignal(raw []byte) {
	sig, err := decodeSignal(raw)
	if err != nil {
		util.LogWarning("negotiate: %s: %v", a.remote, err)
		return
	}
	switch sig.Type {
	case signalOffer:
		a.enqueue(actorEvent{kind: evOffer, signal: sig})
	case signalAnswer:
		a.enqueue(actorEvent{kind: evAnswer, signal: sig})
	case signalCandidate:
		a.enqueue(actorEvent{kind: evCandidate, signal: sig})
	case signalTrackMeta:
		a.enqueue(actorEvent{kind: evTrackMeta, signal: sig})
	default:
		util.LogWarning("negotiate: %s: unknown signal type %q", a.remote, sig.Type)
	}
}

// Initiate explicitly drives an offer, for the side that owns the decision
// to connect first (spec.md §4.4's "if current role is initiator").
func (a *Actor) Initiate() {
	a.enqueue(actorEvent{kind: evMakeOffer})
}

// Close stops the actor's event loop. pending_ice is dropped with it —
// nothing outside the actor ever held a reference to the slice.
func (a *Actor) Close() {
	select {
	case <-a.done:
	default:
		close(a.done)
	}
}

func (a *Actor) enqueue(e actorEvent) {
	select {
	case a.events <- e:
	case <-a.done:
	}
}

func (a *Actor) run() {
	for {
		select {
		case e := <-a.events:
			a.handle(e)
		case <-a.done:
			return
		}
	}
}

func (a *Actor) handle(e actorEvent) {
	switch e.kind {
	case evNegotiationNeeded:
		a.onNegotiationNeeded()
	case evMakeOffer:
		a.onMakeOffer()
	case evOffer:
		a.onOffer(e.signal)
	case evAnswer:
		a.onAnswer(e.signal)
	case evCandidate:
		a.onCandidate(e.signal)
	case evICERestart:
		a.onICERestart()
	case evTrackMeta:
		if a.OnTrackMeta != nil {
			a.OnTrackMeta(e.signal.TrackID, e.signal.Label, e.signal.DisplaySurface, e.signal.Width, e.signal.Height)
		}
	}
}

// onNegotiationNeeded implements spec.md §4.5 steps 1-2: skip if an offer
// is already in flight, otherwise debounce before attempting one. The
// debounce timer fires on its own goroutine, so it re-enters the actor's
// serial queue via evMakeOffer rather than touching state directly.
func (a *Actor) onNegotiationNeeded() {
	if a.makingOffer {
		return
	}
	a.debounce(func() {
		a.enqueue(actorEvent{kind: evMakeOffer})
	})
}

// onMakeOffer implements spec.md §4.5 steps 3-5.
func (a *Actor) onMakeOffer() {
	if a.makingOffer || a.pc.SignalingState() != webrtc.SignalingStateStable {
		return
	}

	a.makingOffer = true
	defer func() { a.makingOffer = false }()

	offer, err := a.pc.CreateOffer(nil)
	if err != nil {
		util.LogError("negotiate: CreateOffer for %s: %v", a.remote, err)
		return
	}
	if a.pc.SignalingState() != webrtc.SignalingStateStable {
		return
	}
	if err := a.pc.SetLocalDescription(offer); err != nil {
		util.LogError("negotiate: SetLocalDescription(offer) for %s: %v", a.remote, err)
		return
	}
	a.sendDescription(signalOffer, offer.SDP, false)
}

// onOffer implements spec.md §4.5's collision handling and offer/answer
// exchange.
func (a *Actor) onOffer(sig wireSignal) {
	collision := a.makingOffer || a.pc.SignalingState() != webrtc.SignalingStateStable
	if collision && !a.polite {
		if !a.makingOffer {
			a.onMakeOffer()
		}
		return
	}
	if collision && a.polite {
		if err := a.pc.SetLocalDescription(webrtc.SessionDescription{Type: webrtc.SDPTypeRollback}); err != nil {
			util.LogError("negotiate: rollback against %s: %v", a.remote, err)
			return
		}
	}

	if err := a.pc.SetRemoteDescription(webrtc.SessionDescription{Type: webrtc.SDPTypeOffer, SDP: sig.SDP}); err != nil {
		util.LogError("negotiate: SetRemoteDescription(offer) from %s: %v", a.remote, err)
		return
	}
	a.drainPendingICE()

	answer, err := a.pc.CreateAnswer(nil)
	if err != nil {
		util.LogError("negotiate: CreateAnswer for %s: %v", a.remote, err)
		return
	}
	if err := a.pc.SetLocalDescription(answer); err != nil {
		util.LogError("negotiate: SetLocalDescription(answer) for %s: %v", a.remote, err)
		return
	}
	a.sendDescription(signalAnswer, answer.SDP, false)
}

// onAnswer implements spec.md §4.5's "receiving an answer".
func (a *Actor) onAnswer(sig wireSignal) {
	if a.pc.SignalingState() != webrtc.SignalingStateHaveLocalOffer {
		return
	}
	if err := a.pc.SetRemoteDescription(webrtc.SessionDescription{Type: webrtc.SDPTypeAnswer, SDP: sig.SDP}); err != nil {
		util.LogError("negotiate: SetRemoteDescription(answer) from %s: %v", a.remote, err)
		return
	}
	a.drainPendingICE()
	a.makingOffer = false
}

// onCandidate implements spec.md §4.5's "receiving an ICE candidate".
func (a *Actor) onCandidate(sig wireSignal) {
	if sig.Candidate == nil {
		return
	}
	if a.pc.RemoteDescription() == nil {
		a.pendingICE = append(a.pendingICE, *sig.Candidate)
		return
	}
	if err := a.pc.AddICECandidate(*sig.Candidate); err != nil {
		util.LogError("negotiate: AddICECandidate from %s: %v", a.remote, err)
	}
}

// onICERestart implements spec.md §4.5's ICE restart path. If it can't even
// start a fresh offer, the peer-level reconnect policy in internal/peerconn
// takes over on its own observation of connection state.
func (a *Actor) onICERestart() {
	if a.makingOffer {
		return
	}
	a.makingOffer = true
	defer func() { a.makingOffer = false }()

	offer, err := a.pc.CreateOffer(&webrtc.OfferOptions{ICERestart: true})
	if err != nil {
		util.LogError("negotiate: ICE restart CreateOffer for %s: %v", a.remote, err)
		return
	}
	if err := a.pc.SetLocalDescription(offer); err != nil {
		util.LogError("negotiate: ICE restart SetLocalDescription for %s: %v", a.remote, err)
		return
	}
	a.sendDescription(signalOffer, offer.SDP, true)
}

func (a *Actor) drainPendingICE() {
	pending := a.pendingICE
	a.pendingICE = nil
	for _, c := range pending {
		if err := a.pc.AddICECandidate(c); err != nil {
			util.LogError("negotiate: drain pending candidate for %s: %v", a.remote, err)
		}
	}
}

func (a *Actor) sendDescription(kind signalKind, sdp string, iceRestart bool) {
	if err := a.sender.Signal(string(a.remote), string(a.self), encodeDescription(kind, sdp, iceRestart)); err != nil {
		util.LogError("negotiate: send %s to %s: %v", kind, a.remote, err)
	}
}

// SendTrackMeta announces the label/displaySurface/resolution hint for a
// locally-sourced track so the remote side's trackrouter can classify it
// without decoding media.
func (a *Actor) SendTrackMeta(trackID, label string, displaySurface bool, width, height int) {
	if err := a.sender.Signal(string(a.remote), string(a.self), encodeTrackMeta(trackID, label, displaySurface, width, height)); err != nil {
		util.LogError("negotiate: send track-meta to %s: %v", a.remote, err)
	}
}
