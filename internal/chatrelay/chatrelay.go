// Package chatrelay implements fan-out of chat messages to every member of
// a room except the sender. See spec section 4.3.
package chatrelay

import (
	"github.com/rendezvous-rtc/meshsignal/internal/registry"
	"github.com/rendezvous-rtc/meshsignal/internal/util"
	"github.com/rendezvous-rtc/meshsignal/internal/wireproto"
)

// Recipients returns the sockets that should receive a chat message sent
// by sender in room: every current member's socket except the sender's.
// No persistence and no cross-sender ordering guarantee; ordering from a
// single sender is preserved by the caller's per-socket write queue.
func Recipients(reg *registry.Registry, room wireproto.RoomID, sender wireproto.UserID) []registry.SocketID {
	members := reg.RequestMembers(room)
	out := make([]registry.SocketID, 0, len(members))
	for _, m := range members {
		if m.UserID == sender {
			continue
		}
		out = append(out, m.SocketID)
	}
	util.Stats.AddChatRelayed()
	return out
}
