package app

import (
	"context"
	"fmt"
	"sync"

	"github.com/rendezvous-rtc/meshsignal/internal/config"
	"github.com/rendezvous-rtc/meshsignal/internal/peerconn"
	"github.com/rendezvous-rtc/meshsignal/internal/util"
	"github.com/rendezvous-rtc/meshsignal/internal/wireproto"
)

// NicknameMap tracks the display name of every participant this client has
// seen announced in its room, per spec.md §3. It is read by the CLI's
// joined/rejoined/left log lines; chat lines use the sender nickname
// carried in each message, and negotiation itself only needs UserID.
type NicknameMap struct {
	mu    sync.Mutex
	names map[wireproto.UserID]string
}

func newNicknameMap() *NicknameMap {
	return &NicknameMap{names: make(map[wireproto.UserID]string)}
}

func (n *NicknameMap) set(id wireproto.UserID, nickname string) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.names[id] = nickname
}

func (n *NicknameMap) delete(id wireproto.UserID) {
	n.mu.Lock()
	defer n.mu.Unlock()
	delete(n.names, id)
}

// Get returns the nickname for id, or id itself if unknown.
func (n *NicknameMap) Get(id wireproto.UserID) string {
	n.mu.Lock()
	defer n.mu.Unlock()
	if name, ok := n.names[id]; ok {
		return name
	}
	return string(id)
}

// RunClient orchestrates the full client lifecycle described in spec.md
// §4.4/§4.5: join the room, drive negotiation against every existing
// participant, react to membership and signal events as they arrive, and
// tear everything down when ctx is cancelled.
//
// This module has no camera or microphone to capture, so it carries no
// local tracks — it plays the signaling/negotiation half of "the browser
// client's WebRTC negotiation engine" (SPEC_FULL.md §1) without producing
// media of its own. The Manager stays internal to RunClient and its
// SwapLocalStream is never called here, so no peer carries local tracks.
func RunClient(ctx context.Context, cfg config.ClientConfig) error {
	client, err := dial(ctx, cfg.ServerURL)
	if err != nil {
		return err
	}
	defer client.Close()

	self := wireproto.UserID(cfg.UserID)
	manager := peerconn.NewManager(self, cfg.STUNServers, client)
	nicknames := newNicknameMap()
	nicknames.set(self, cfg.Nickname)

	if err := client.JoinRoom(cfg.RoomID, cfg.UserID, cfg.Nickname); err != nil {
		return fmt.Errorf("join room %s: %w", cfg.RoomID, err)
	}
	util.LogInfo("joined room %s as %s (%s)", cfg.RoomID, cfg.Nickname, cfg.UserID)

	gcCtx, cancelGC := context.WithCancel(ctx)
	defer cancelGC()
	go manager.RunGC(gcCtx)

	defer func() {
		manager.CloseAll()
		if err := client.LeaveRoom(cfg.RoomID, cfg.UserID); err != nil {
			util.LogWarning("leave room: %v", err)
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return nil

		case err, ok := <-client.errs:
			if !ok {
				return nil
			}
			return fmt.Errorf("signaling connection lost: %w", err)

		case msg, ok := <-client.Received:
			if !ok {
				return nil
			}
			dispatchServerMessage(msg, self, manager, nicknames)
		}
	}
}

// dispatchServerMessage applies one inbound server frame to the client's
// local state, per spec.md §4.4's "on existing-participants" / "on
// userJoined" / "on signal" / "on userLeft" handlers.
func dispatchServerMessage(msg wireproto.ServerMessage, self wireproto.UserID, manager *peerconn.Manager, nicknames *NicknameMap) {
	switch msg.Event {
	case wireproto.EventExistingParticipants:
		for _, p := range msg.ExistingParticipants {
			if p.UserID == self {
				continue
			}
			nicknames.set(p.UserID, p.Nickname)
			// The joiner initiates toward every participant already in the
			// room, per spec.md §4.4.
			if _, err := manager.Initiate(p.UserID, true); err != nil {
				util.LogError("initiate %s: %v", p.UserID, err)
			}
		}

	case wireproto.EventUserJoined:
		p := msg.UserJoined
		if p.UserID == self {
			return
		}
		nicknames.set(p.UserID, p.Nickname)
		util.LogInfo("%s joined", nicknames.Get(p.UserID))
		// The newcomer initiates toward us; we stay reactive until their
		// offer arrives over "signal".

	case wireproto.EventUserRejoined:
		p := msg.UserRejoined
		nicknames.set(p.UserID, p.Nickname)
		util.LogInfo("%s rejoined", nicknames.Get(p.UserID))

	case wireproto.EventUserLeft:
		user := msg.UserLeft.UserID
		util.LogInfo("%s left", nicknames.Get(user))
		manager.Remove(user)
		nicknames.delete(user)

	case wireproto.EventParticipantCount:
		util.LogDebug("participant-count: %d", int(*msg.ParticipantCount))

	case wireproto.EventSignal:
		manager.IngestSignal(msg.Signal.From, msg.Signal.Signal)

	case wireproto.EventReceiveMessage:
		m := msg.ReceiveMessage
		util.LogInfo("%s: %s", m.SenderNickname, m.Content)
	}
}
