package wsserver

import (
	"github.com/rendezvous-rtc/meshsignal/internal/chatrelay"
	"github.com/rendezvous-rtc/meshsignal/internal/registry"
	"github.com/rendezvous-rtc/meshsignal/internal/router"
	"github.com/rendezvous-rtc/meshsignal/internal/wireproto"
)

// dispatch turns one decoded client message into registry/router/relay
// calls and the resulting outgoing frames. It always runs on the hub's
// single goroutine, so registry operations from different sockets never
// race here even though the registry is independently safe for concurrent
// callers.
func (h *Hub) dispatch(c *Client, msg wireproto.ClientMessage) {
	switch {
	case msg.JoinRoom != nil:
		h.handleJoin(c, msg.JoinRoom)
	case msg.LeaveRoom != nil:
		h.handleLeave(c, msg.LeaveRoom)
	case msg.RequestParticipants != nil:
		h.handleRequestParticipants(c, msg.RequestParticipants)
	case msg.Signal != nil:
		h.handleSignal(msg.Signal)
	case msg.ChatMessage != nil:
		h.handleChatMessage(msg.ChatMessage)
	}
}

func toParticipants(members []registry.Member) wireproto.ExistingParticipantsPayload {
	out := make(wireproto.ExistingParticipantsPayload, 0, len(members))
	for _, m := range members {
		out = append(out, wireproto.Participant{UserID: m.UserID, SocketID: m.SocketID, Nickname: m.Nickname})
	}
	return out
}

func (h *Hub) handleJoin(c *Client, p *wireproto.JoinRoomPayload) {
	out := h.reg.Join(p.RoomID, p.UserID, p.Nickname, c.id)

	h.sendTo(c.id, wireproto.EventExistingParticipants, toParticipants(out.Members))

	event := wireproto.EventUserJoined
	if out.Rejoin {
		event = wireproto.EventUserRejoined
	}
	joined := wireproto.Participant{UserID: p.UserID, SocketID: c.id, Nickname: p.Nickname}
	for _, m := range out.Members {
		if m.UserID == p.UserID {
			continue
		}
		h.sendTo(m.SocketID, event, joined)
	}

	count := wireproto.ParticipantCountPayload(out.MemberCount)
	for _, m := range out.Members {
		h.sendTo(m.SocketID, wireproto.EventParticipantCount, count)
	}
}

func (h *Hub) handleLeave(c *Client, p *wireproto.LeaveRoomPayload) {
	out := h.reg.Leave(p.RoomID, p.UserID, c.id)
	if !out.Existed {
		return
	}
	h.broadcastLeave(p.UserID, out.RemainingMembers, out.MemberCount, out.RoomDestroyed)
}

func (h *Hub) handleRequestParticipants(c *Client, p *wireproto.RequestParticipantsPayload) {
	members := h.reg.RequestMembers(p.RoomID)
	h.sendTo(c.id, wireproto.EventExistingParticipants, toParticipants(members))
}

func (h *Hub) handleSignal(p *wireproto.SignalPayload) {
	route := router.Resolve(h.reg, p.To, p.From, p.Signal)
	if !route.Found {
		return
	}
	h.sendTo(route.Target, wireproto.EventSignal, wireproto.SignalRelayPayload{From: p.From, Signal: p.Signal})
}

func (h *Hub) handleChatMessage(p *wireproto.ChatMessagePayload) {
	recipients := chatrelay.Recipients(h.reg, p.RoomID, p.SenderID)
	payload := wireproto.ReceiveMessagePayload{
		ID:             p.ID,
		SenderID:       p.SenderID,
		SenderNickname: p.SenderNickname,
		Content:        p.Content,
		Timestamp:      p.Timestamp,
	}
	for _, sock := range recipients {
		h.sendTo(sock, wireproto.EventReceiveMessage, payload)
	}
}
