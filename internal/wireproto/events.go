// Package wireproto defines the JSON wire protocol exchanged between the
// signaling server and its clients, translating the transport's
// string-keyed event names into a tagged Go type at the boundary. Nothing
// outside this package touches a raw event name or an untyped payload.
package wireproto

import "encoding/json"

// UserID, SocketID, RoomID, MessageID are opaque identifiers per the data
// model. They are distinct string types so the compiler catches accidental
// mixing (e.g. passing a RoomID where a UserID is expected).
type UserID string
type SocketID string
type RoomID string
type MessageID string

// Client -> server event names.
const (
	EventJoinRoom            = "join-room"
	EventLeaveRoom           = "leave-room"
	EventRequestParticipants = "request-participants"
	EventSignal              = "signal"
	EventChatMessage         = "chat-message"
)

// Server -> client event names.
const (
	EventExistingParticipants = "existing-participants"
	EventUserJoined           = "userJoined"
	EventUserRejoined         = "userRejoined"
	EventUserLeft             = "userLeft"
	EventParticipantCount     = "participant-count"
	EventReceiveMessage       = "receiveMessage"
)

// envelope is the wire shape for every frame: a named event plus a raw
// payload, decoded into a typed payload only once the event name is known.
type envelope struct {
	Event   string          `json:"event"`
	Payload json.RawMessage `json:"payload"`
}

// ---------------------------------------------------------------------------
// Client -> server payloads
// ---------------------------------------------------------------------------

type JoinRoomPayload struct {
	RoomID   RoomID `json:"roomId"`
	UserID   UserID `json:"userId"`
	Nickname string `json:"nickname"`
}

type LeaveRoomPayload struct {
	RoomID RoomID `json:"roomId"`
	UserID UserID `json:"userId"`
}

type RequestParticipantsPayload struct {
	RoomID RoomID `json:"roomId"`
}

// SignalPayload carries an opaque SDP/ICE signal between two named users.
// The signal field is never interpreted by the server.
type SignalPayload struct {
	To     UserID          `json:"to"`
	From   UserID          `json:"from"`
	Signal json.RawMessage `json:"signal"`
}

type ChatMessagePayload struct {
	RoomID         RoomID    `json:"roomId"`
	ID             MessageID `json:"id"`
	SenderID       UserID    `json:"senderId"`
	SenderNickname string    `json:"senderNickname"`
	Content        string    `json:"content"`
	Timestamp      int64     `json:"timestamp"`
}

// ---------------------------------------------------------------------------
// Server -> client payloads
// ---------------------------------------------------------------------------

type Participant struct {
	UserID   UserID   `json:"userId"`
	SocketID SocketID `json:"socketId"`
	Nickname string   `json:"nickname"`
}

type ExistingParticipantsPayload []Participant

type UserJoinedPayload Participant
type UserRejoinedPayload Participant

type UserLeftPayload struct {
	UserID UserID `json:"userId"`
}

type ParticipantCountPayload int

// SignalRelayPayload is what the target socket receives: the signal minus
// the `to` field, since it is implicit in who receives the frame.
type SignalRelayPayload struct {
	From   UserID          `json:"from"`
	Signal json.RawMessage `json:"signal"`
}

type ReceiveMessagePayload struct {
	ID             MessageID `json:"id"`
	SenderID       UserID    `json:"senderId"`
	SenderNickname string    `json:"senderNickname"`
	Content        string    `json:"content"`
	Timestamp      int64     `json:"timestamp"`
}
