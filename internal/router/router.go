// Package router implements the signal router: forwarding opaque
// SDP/ICE signaling payloads between two named users within a room. See
// spec section 4.2.
package router

import (
	"encoding/json"

	"github.com/rendezvous-rtc/meshsignal/internal/registry"
	"github.com/rendezvous-rtc/meshsignal/internal/util"
	"github.com/rendezvous-rtc/meshsignal/internal/wireproto"
)

// Route is the result of Resolve: the socket to forward to, and whether
// one was found.
type Route struct {
	Target registry.SocketID
	Found  bool
}

// Resolve looks up to in reg's global index. It never inspects signal. The
// from-is-in-some-room check is informational only — the lookup proceeds
// regardless of its result, since there is no authentication to gate on.
// The caller performs the actual send.
func Resolve(reg *registry.Registry, to, from wireproto.UserID, signal json.RawMessage) Route {
	if !reg.InAnyRoom(from) {
		util.LogDebug("signal from %s: sender not currently in any room", from)
	}

	sock, ok := reg.LookupSocket(to)
	if !ok {
		util.Stats.AddSignalDropped()
		util.LogDebug("signal to %s: no socket in global index, dropping", to)
		return Route{Found: false}
	}

	util.Stats.AddSignalRouted()
	return Route{Target: sock, Found: true}
}
