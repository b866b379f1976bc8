package wireproto

import (
	"encoding/json"
	"fmt"
)

// Encode marshals an event name and a typed payload into a single wire
// frame ready to hand to the transport.
func Encode(event string, payload any) ([]byte, error) {
	raw, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("encode %s payload: %w", event, err)
	}
	return json.Marshal(envelope{Event: event, Payload: raw})
}

// ClientMessage is the tagged variant produced by Decode for every frame
// the server receives. Exactly one of the payload fields is populated,
// selected by Event.
type ClientMessage struct {
	Event               string
	JoinRoom            *JoinRoomPayload
	LeaveRoom           *LeaveRoomPayload
	RequestParticipants *RequestParticipantsPayload
	Signal              *SignalPayload
	ChatMessage         *ChatMessagePayload
}

// DecodeClientMessage parses a raw frame from a client into a tagged
// ClientMessage. An unknown event name or malformed payload is reported as
// an error; callers are expected to log and drop per the spec's error
// handling policy, never to treat this as fatal.
func DecodeClientMessage(data []byte) (ClientMessage, error) {
	var env envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return ClientMessage{}, fmt.Errorf("decode envelope: %w", err)
	}

	msg := ClientMessage{Event: env.Event}
	switch env.Event {
	case EventJoinRoom:
		var p JoinRoomPayload
		if err := json.Unmarshal(env.Payload, &p); err != nil {
			return ClientMessage{}, fmt.Errorf("decode %s: %w", env.Event, err)
		}
		msg.JoinRoom = &p
	case EventLeaveRoom:
		var p LeaveRoomPayload
		if err := json.Unmarshal(env.Payload, &p); err != nil {
			return ClientMessage{}, fmt.Errorf("decode %s: %w", env.Event, err)
		}
		msg.LeaveRoom = &p
	case EventRequestParticipants:
		var p RequestParticipantsPayload
		if err := json.Unmarshal(env.Payload, &p); err != nil {
			return ClientMessage{}, fmt.Errorf("decode %s: %w", env.Event, err)
		}
		msg.RequestParticipants = &p
	case EventSignal:
		var p SignalPayload
		if err := json.Unmarshal(env.Payload, &p); err != nil {
			return ClientMessage{}, fmt.Errorf("decode %s: %w", env.Event, err)
		}
		msg.Signal = &p
	case EventChatMessage:
		var p ChatMessagePayload
		if err := json.Unmarshal(env.Payload, &p); err != nil {
			return ClientMessage{}, fmt.Errorf("decode %s: %w", env.Event, err)
		}
		msg.ChatMessage = &p
	default:
		return ClientMessage{}, fmt.Errorf("unknown event %q", env.Event)
	}

	return msg, nil
}

// ServerMessage is the tagged variant DecodeServerMessage produces for
// every frame a client receives from the server. The server itself encodes
// its typed payloads directly with Encode.
type ServerMessage struct {
	Event               string
	ExistingParticipants ExistingParticipantsPayload
	UserJoined          *UserJoinedPayload
	UserRejoined        *UserRejoinedPayload
	UserLeft            *UserLeftPayload
	ParticipantCount    *ParticipantCountPayload
	Signal              *SignalRelayPayload
	ReceiveMessage      *ReceiveMessagePayload
}

// DecodeServerMessage parses a raw frame from the server. Used by the test
// client and any Go-side consumer of the protocol.
func DecodeServerMessage(data []byte) (ServerMessage, error) {
	var env envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return ServerMessage{}, fmt.Errorf("decode envelope: %w", err)
	}

	msg := ServerMessage{Event: env.Event}
	switch env.Event {
	case EventExistingParticipants:
		var p ExistingParticipantsPayload
		if err := json.Unmarshal(env.Payload, &p); err != nil {
			return ServerMessage{}, fmt.Errorf("decode %s: %w", env.Event, err)
		}
		msg.ExistingParticipants = p
	case EventUserJoined:
		var p UserJoinedPayload
		if err := json.Unmarshal(env.Payload, &p); err != nil {
			return ServerMessage{}, fmt.Errorf("decode %s: %w", env.Event, err)
		}
		msg.UserJoined = &p
	case EventUserRejoined:
		var p UserRejoinedPayload
		if err := json.Unmarshal(env.Payload, &p); err != nil {
			return ServerMessage{}, fmt.Errorf("decode %s: %w", env.Event, err)
		}
		msg.UserRejoined = &p
	case EventUserLeft:
		var p UserLeftPayload
		if err := json.Unmarshal(env.Payload, &p); err != nil {
			return ServerMessage{}, fmt.Errorf("decode %s: %w", env.Event, err)
		}
		msg.UserLeft = &p
	case EventParticipantCount:
		var p ParticipantCountPayload
		if err := json.Unmarshal(env.Payload, &p); err != nil {
			return ServerMessage{}, fmt.Errorf("decode %s: %w", env.Event, err)
		}
		msg.ParticipantCount = &p
	case EventSignal:
		var p SignalRelayPayload
		if err := json.Unmarshal(env.Payload, &p); err != nil {
			return ServerMessage{}, fmt.Errorf("decode %s: %w", env.Event, err)
		}
		msg.Signal = &p
	case EventReceiveMessage:
		var p ReceiveMessagePayload
		if err := json.Unmarshal(env.Payload, &p); err != nil {
			return ServerMessage{}, fmt.Errorf("decode %s: %w", env.Event, err)
		}
		msg.ReceiveMessage = &p
	default:
		return ServerMessage{}, fmt.Errorf("unknown event %q", env.Event)
	}

	return msg, nil
}
