package wsserver

import (
	"time"

	"github.com/gorilla/websocket"

	"github.com/rendezvous-rtc/meshsignal/internal/config"
	"github.com/rendezvous-rtc/meshsignal/internal/registry"
	"github.com/rendezvous-rtc/meshsignal/internal/util"
	"github.com/rendezvous-rtc/meshsignal/internal/wireproto"
)

const (
	sendBufferSize = 64
	maxMessageSize = 1 << 16
)

// Client wraps one transport socket: a WebSocket connection, its assigned
// SocketID, and a buffered outbound queue drained by a single writer
// goroutine. Joins and chat messages from the same sender are written in
// the order they were enqueued, satisfying the per-sender ordering
// requirement in the concurrency model.
type Client struct {
	id   registry.SocketID
	conn *websocket.Conn
	send chan []byte
}

func (c *Client) readPump(hub *Hub) {
	defer func() {
		hub.unregister <- c
		c.conn.Close()
	}()

	c.conn.SetReadLimit(maxMessageSize)
	c.conn.SetReadDeadline(time.Now().Add(config.PingTimeout))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(config.PingTimeout))
		return nil
	})

	for {
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			return
		}

		msg, err := wireproto.DecodeClientMessage(data)
		if err != nil {
			// Malformed or unknown event: log and drop, never fatal.
			util.LogWarning("socket %s: dropping frame: %v", c.id, err)
			continue
		}

		select {
		case hub.inbound <- inboundMsg{client: c, msg: msg}:
		case <-hub.done:
			return
		}
	}
}

func (c *Client) writePump() {
	ticker := time.NewTicker(config.PingInterval)
	defer ticker.Stop()
	defer c.conn.Close()

	for {
		select {
		case data, ok := <-c.send:
			if !ok {
				_ = c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			c.conn.SetWriteDeadline(time.Now().Add(config.PingTimeout))
			if err := c.conn.WriteMessage(websocket.TextMessage, data); err != nil {
				return
			}

		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(config.PingTimeout))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
