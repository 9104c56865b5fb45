package core

import "github.com/vovakirdan/roomrelay/internal/store"

// CommandKind describes what the client wants to do.
type CommandKind int

const (
	// CommandCreateRoom creates a room and binds the client to it.
	CommandCreateRoom CommandKind = iota
	// CommandJoinRoom binds the client to an existing room.
	CommandJoinRoom
	// CommandSendMessage persists a chat message and broadcasts it to the room.
	CommandSendMessage
)

// Command represents an action requested by a client.
type Command struct {
	Kind     CommandKind
	Room     string
	Nickname string
	Message  SendRequest
	// Ack receives the outcome once the command has been handled. Optional.
	Ack func(Result)
}

// Result is the tagged outcome of a command: Err is nil on success.
type Result struct {
	Room    *store.Room
	Message *Message
	Err     *CoreError
}

// OK reports whether the command succeeded.
func (r Result) OK() bool {
	return r.Err == nil
}
