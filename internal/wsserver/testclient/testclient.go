// Package testclient is a minimal Go client for the wire protocol, used to
// drive end-to-end scenarios against a wsserver.Hub in tests without a
// browser.
package testclient

import (
	"context"
	"fmt"
	"sync"

	"github.com/gorilla/websocket"

	"github.com/rendezvous-rtc/meshsignal/internal/wireproto"
)

// Client is a bare-bones signaling client: it can send any client event
// and exposes every decoded server frame on a channel.
type Client struct {
	conn *websocket.Conn

	mu sync.Mutex

	Received chan wireproto.ServerMessage
	errs     chan error
}

// Connect dials addr (e.g. "ws://127.0.0.1:PORT/ws") and starts a
// background reader that decodes every frame into Received.
func Connect(ctx context.Context, addr string) (*Client, error) {
	conn, _, err := websocket.DefaultDialer.DialContext(ctx, addr, nil)
	if err != nil {
		return nil, fmt.Errorf("dial %s: %w", addr, err)
	}

	c := &Client{
		conn:     conn,
		Received: make(chan wireproto.ServerMessage, 32),
		errs:     make(chan error, 1),
	}
	go c.readLoop()
	return c, nil
}

func (c *Client) readLoop() {
	for {
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			c.errs <- err
			close(c.Received)
			return
		}
		msg, err := wireproto.DecodeServerMessage(data)
		if err != nil {
			continue
		}
		c.Received <- msg
	}
}

func (c *Client) send(event string, payload any) error {
	data, err := wireproto.Encode(event, payload)
	if err != nil {
		return err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.conn.WriteMessage(websocket.TextMessage, data)
}

func (c *Client) JoinRoom(room, user, nickname string) error {
	return c.send(wireproto.EventJoinRoom, wireproto.JoinRoomPayload{
		RoomID: wireproto.RoomID(room), UserID: wireproto.UserID(user), Nickname: nickname,
	})
}

func (c *Client) LeaveRoom(room, user string) error {
	return c.send(wireproto.EventLeaveRoom, wireproto.LeaveRoomPayload{
		RoomID: wireproto.RoomID(room), UserID: wireproto.UserID(user),
	})
}

func (c *Client) RequestParticipants(room string) error {
	return c.send(wireproto.EventRequestParticipants, wireproto.RequestParticipantsPayload{
		RoomID: wireproto.RoomID(room),
	})
}

func (c *Client) Signal(to, from string, signal []byte) error {
	return c.send(wireproto.EventSignal, wireproto.SignalPayload{
		To: wireproto.UserID(to), From: wireproto.UserID(from), Signal: signal,
	})
}

func (c *Client) ChatMessage(room, id, senderID, senderNickname, content string, timestamp int64) error {
	return c.send(wireproto.EventChatMessage, wireproto.ChatMessagePayload{
		RoomID: wireproto.RoomID(room), ID: wireproto.MessageID(id),
		SenderID: wireproto.UserID(senderID), SenderNickname: senderNickname,
		Content: content, Timestamp: timestamp,
	})
}

// Close closes the underlying connection.
func (c *Client) Close() error {
	return c.conn.Close()
}
