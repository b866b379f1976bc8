// Package wsserver is the WebSocket signaling hub: it accepts client
// sockets, decodes wire frames into typed events, drives the registry /
// router / chat relay, and fans outgoing frames back out. Hub.Run is the
// single serialization point for join/leave/signal/chat handling, so the
// registry's own per-room locking is never contended by the hub itself —
// only by operations reached through other entry points (in this service,
// the read-only snapshots taken by internal/httpapi's handlers).
package wsserver

import (
	"context"
	"sync"

	"github.com/rendezvous-rtc/meshsignal/internal/registry"
	"github.com/rendezvous-rtc/meshsignal/internal/util"
	"github.com/rendezvous-rtc/meshsignal/internal/wireproto"
)

type inboundMsg struct {
	client *Client
	msg    wireproto.ClientMessage
}

// Hub owns the live socket set and the registry they mutate.
type Hub struct {
	reg *registry.Registry

	register   chan *Client
	unregister chan *Client
	inbound    chan inboundMsg
	done       chan struct{}

	clientsMu sync.RWMutex
	clients   map[registry.SocketID]*Client
}

// NewHub creates a Hub bound to reg. Call Run in its own goroutine before
// serving any connections.
func NewHub(reg *registry.Registry) *Hub {
	return &Hub{
		reg:        reg,
		register:   make(chan *Client),
		unregister: make(chan *Client),
		inbound:    make(chan inboundMsg, 256),
		done:       make(chan struct{}),
		clients:    make(map[registry.SocketID]*Client),
	}
}

// Run is the hub's event loop. It exits when ctx is cancelled, after which
// every registered socket is closed.
func (h *Hub) Run(ctx context.Context) {
	defer close(h.done)

	for {
		select {
		case c := <-h.register:
			h.clientsMu.Lock()
			h.clients[c.id] = c
			h.clientsMu.Unlock()

		case c := <-h.unregister:
			h.clientsMu.Lock()
			_, stillPresent := h.clients[c.id]
			delete(h.clients, c.id)
			h.clientsMu.Unlock()
			if !stillPresent {
				continue
			}
			close(c.send)

			for _, out := range h.reg.Disconnect(c.id) {
				h.broadcastLeave(out.User, out.RemainingMembers, out.MemberCount, out.RoomDestroyed)
			}

		case m := <-h.inbound:
			h.dispatch(m.client, m.msg)

		case <-ctx.Done():
			h.clientsMu.Lock()
			for _, c := range h.clients {
				close(c.send)
				c.conn.Close()
			}
			h.clients = nil
			h.clientsMu.Unlock()
			return
		}
	}
}

// sendTo enqueues event/payload for delivery to socket id, dropping it if
// the socket is unknown or its outbound buffer is full rather than
// blocking the hub loop.
func (h *Hub) sendTo(id registry.SocketID, event string, payload any) {
	h.clientsMu.RLock()
	c, ok := h.clients[id]
	h.clientsMu.RUnlock()
	if !ok {
		return
	}

	data, err := wireproto.Encode(event, payload)
	if err != nil {
		util.LogError("encode %s: %v", event, err)
		return
	}

	select {
	case c.send <- data:
	default:
		util.LogWarning("socket %s: outbound buffer full, dropping %s", id, event)
	}
}

// broadcastLeave sends userLeft to every remaining member, then the
// updated participant count if the room still exists.
func (h *Hub) broadcastLeave(user wireproto.UserID, remaining []registry.Member, count int, destroyed bool) {
	for _, m := range remaining {
		h.sendTo(m.SocketID, wireproto.EventUserLeft, wireproto.UserLeftPayload{UserID: user})
	}
	if !destroyed {
		cnt := wireproto.ParticipantCountPayload(count)
		for _, m := range remaining {
			h.sendTo(m.SocketID, wireproto.EventParticipantCount, cnt)
		}
	}
}
