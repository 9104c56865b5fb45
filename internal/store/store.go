//go:generate go run go.uber.org/mock/mockgen -source=store.go -destination=mocks/mock_store.go -package=mocks
package store

import (
	"context"
	"errors"
	"time"
)

// ErrCodeTaken is returned by RoomStore.CreateRoom when the code violates the
// unique constraint on rooms.code.
var ErrCodeTaken = errors.New("room code already taken")

// Room represents a chat room addressed by its short code.
type Room struct {
	ID        int64
	Code      string
	CreatedAt time.Time
}

// Message represents a persisted chat message.
type Message struct {
	ID        int64
	RoomID    int64
	Sender    string
	Content   string
	CreatedAt time.Time
}

// RoomStore handles room persistence.
type RoomStore interface {
	// CreateRoom inserts a room with the given code.
	// Returns ErrCodeTaken if the code already exists.
	CreateRoom(ctx context.Context, code string) (*Room, error)

	// GetRoomByCode retrieves a room by code.
	// Returns nil and no error when the room does not exist.
	GetRoomByCode(ctx context.Context, code string) (*Room, error)
}

// MessageStore handles message persistence.
type MessageStore interface {
	// SaveMessage persists a message and assigns its ID and CreatedAt.
	SaveMessage(ctx context.Context, msg *Message) error

	// ListMessages retrieves messages from a room, newest first.
	// If beforeID is provided, returns messages older than that ID.
	// Limit determines max number of messages to return.
	ListMessages(ctx context.Context, roomID int64, limit int, beforeID *int64) ([]*Message, error)
}

// Store aggregates all storage interfaces.
type Store interface {
	RoomStore
	MessageStore

	// Close closes the underlying database connection.
	Close() error
}
