package wsserver

import (
	"net/http"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/rendezvous-rtc/meshsignal/internal/registry"
	"github.com/rendezvous-rtc/meshsignal/internal/util"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  4096,
	WriteBufferSize: 4096,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

// ServeWS upgrades the HTTP request to a WebSocket, assigns it a fresh
// SocketID, and registers it with the hub. SocketIDs change on every
// reconnect by construction — they are minted here, never supplied by the
// client.
func (h *Hub) ServeWS(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		util.LogError("ws upgrade failed: %v", err)
		return
	}

	c := &Client{
		id:   registry.SocketID(uuid.NewString()),
		conn: conn,
		send: make(chan []byte, sendBufferSize),
	}

	h.register <- c
	go c.writePump()
	go c.readPump(h)
}
