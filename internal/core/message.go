package core

import (
	"time"

	"github.com/vovakirdan/roomrelay/internal/proto"
	"github.com/vovakirdan/roomrelay/internal/store"
)

// Message is the canonical record of a persisted chat message.
type Message struct {
	ID        int64
	RoomID    int64
	RoomCode  string
	Sender    string
	Content   string
	CreatedAt time.Time
}

// Proto converts the message to its wire form.
func (m *Message) Proto() proto.ChatMessage {
	return proto.ChatMessage{
		ID:        m.ID,
		RoomID:    m.RoomID,
		RoomCode:  m.RoomCode,
		Sender:    m.Sender,
		Content:   m.Content,
		CreatedAt: m.CreatedAt,
	}
}

func messageFromRecord(rec *store.Message, roomCode string) *Message {
	return &Message{
		ID:        rec.ID,
		RoomID:    rec.RoomID,
		RoomCode:  roomCode,
		Sender:    rec.Sender,
		Content:   rec.Content,
		CreatedAt: rec.CreatedAt,
	}
}

func messageFromProto(m proto.ChatMessage) *Message {
	return &Message{
		ID:        m.ID,
		RoomID:    m.RoomID,
		RoomCode:  m.RoomCode,
		Sender:    m.Sender,
		Content:   m.Content,
		CreatedAt: m.CreatedAt,
	}
}
