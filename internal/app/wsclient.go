package app

import (
	"context"
	"fmt"
	"sync"

	"github.com/gorilla/websocket"

	"github.com/rendezvous-rtc/meshsignal/internal/wireproto"
)

// signalingClient is the production counterpart of wsserver/testclient: a
// thin WS dialer that encodes typed client events and decodes typed server
// frames onto a channel, grounded on the teacher's doClientSignaling/
// doHostSignaling read-loop shape in internal/app/client.go and host.go.
type signalingClient struct {
	conn *websocket.Conn

	mu sync.Mutex

	Received chan wireproto.ServerMessage
	errs     chan error
}

func dial(ctx context.Context, addr string) (*signalingClient, error) {
	conn, _, err := websocket.DefaultDialer.DialContext(ctx, addr, nil)
	if err != nil {
		return nil, fmt.Errorf("dial %s: %w", addr, err)
	}

	c := &signalingClient{
		conn:     conn,
		Received: make(chan wireproto.ServerMessage, 64),
		errs:     make(chan error, 1),
	}
	go c.readLoop()
	return c, nil
}

func (c *signalingClient) readLoop() {
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

func (c *signalingClient) send(event string, payload any) error {
	data, err := wireproto.Encode(event, payload)
	if err != nil {
		return err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.conn.WriteMessage(websocket.TextMessage, data)
}

func (c *signalingClient) JoinRoom(room, user, nickname string) error {
	return c.send(wireproto.EventJoinRoom, wireproto.JoinRoomPayload{
		RoomID: wireproto.RoomID(room), UserID: wireproto.UserID(user), Nickname: nickname,
	})
}

func (c *signalingClient) LeaveRoom(room, user string) error {
	return c.send(wireproto.EventLeaveRoom, wireproto.LeaveRoomPayload{
		RoomID: wireproto.RoomID(room), UserID: wireproto.UserID(user),
	})
}

func (c *signalingClient) RequestParticipants(room string) error {
	return c.send(wireproto.EventRequestParticipants, wireproto.RequestParticipantsPayload{
		RoomID: wireproto.RoomID(room),
	})
}

// Signal satisfies negotiate.Sender, so *signalingClient can be handed
// straight to peerconn.NewManager.
func (c *signalingClient) Signal(to, from string, signal []byte) error {
	return c.send(wireproto.EventSignal, wireproto.SignalPayload{
		To: wireproto.UserID(to), From: wireproto.UserID(from), Signal: signal,
	})
}

func (c *signalingClient) ChatMessage(room, id, senderID, senderNickname, content string, timestamp int64) error {
	return c.send(wireproto.EventChatMessage, wireproto.ChatMessagePayload{
		RoomID: wireproto.RoomID(room), ID: wireproto.MessageID(id),
		SenderID: wireproto.UserID(senderID), SenderNickname: senderNickname,
		Content: content, Timestamp: timestamp,
	})
}

func (c *signalingClient) Close() error {
	return c.conn.Close()
}
