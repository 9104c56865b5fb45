package proto

import (
	"encoding/json"
	"time"
)

// Inbound is the envelope for messages coming from the client.
type Inbound struct {
	Type string `json:"type"`
	// ID correlates the acknowledgement with the request; echoed verbatim.
	ID   json.RawMessage `json:"id,omitempty"`
	Data json.RawMessage `json:"data"`
}

const (
	InboundTypeRoomCreate = "room:create"
	InboundTypeRoomJoin   = "room:join"
	InboundTypeChatSend   = "chat:send"

	OutboundTypeAck   = "ack"
	OutboundTypeEvent = "event"
	OutboundTypeError = "error"

	EventParticipantJoined = "room:participant-joined"
	EventParticipantLeft   = "room:participant-left"
	EventChatMessage       = "chat:message"
)

// JoinData requests to join a room by code.
type JoinData struct {
	Code     string `json:"code"`
	Nickname string `json:"nickname,omitempty"`
}

// SendData is a chat message from the client.
type SendData struct {
	RoomCode string `json:"roomCode"`
	Sender   string `json:"sender"`
	Content  string `json:"content"`
}

// Outbound is the envelope for messages sent to the client.
type Outbound struct {
	Type  string          `json:"type"`
	ID    json.RawMessage `json:"id,omitempty"`
	Event string          `json:"event,omitempty"`
	Data  any             `json:"data,omitempty"`
	Error *Error          `json:"error,omitempty"`
}

// Ack is the acknowledgement payload for a request.
type Ack struct {
	OK      bool         `json:"ok"`
	Room    *Room        `json:"room,omitempty"`
	Message *ChatMessage `json:"message,omitempty"`
	Error   string       `json:"error,omitempty"`
	Code    string       `json:"code,omitempty"`
}

// Room is the public view of a room.
type Room struct {
	ID        int64     `json:"id"`
	Code      string    `json:"code"`
	CreatedAt time.Time `json:"createdAt"`
}

// ChatMessage is emitted to every member of a room, sender included.
type ChatMessage struct {
	ID        int64     `json:"id"`
	RoomID    int64     `json:"roomId"`
	RoomCode  string    `json:"roomCode"`
	Sender    string    `json:"sender"`
	Content   string    `json:"content"`
	CreatedAt time.Time `json:"createdAt"`
}

// Participant is the payload of presence events.
type Participant struct {
	RoomCode string  `json:"roomCode"`
	Nickname *string `json:"nickname"`
}

// Error describes a protocol-level error response.
type Error struct {
	Code string `json:"code"`
	Msg  string `json:"msg"`
}
