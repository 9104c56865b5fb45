package core

import "github.com/vovakirdan/roomrelay/internal/proto"

// EventKind is a notification the core emits to clients.
type EventKind int

const (
	// EventChatMessage carries a persisted message to every member of a room.
	EventChatMessage EventKind = iota
	// EventParticipantJoined tells existing members that someone joined.
	EventParticipantJoined
	// EventParticipantLeft tells remaining members that someone left.
	EventParticipantLeft
)

// Event is sent to clients to describe what happened in a room.
type Event struct {
	Kind EventKind
	Room string
	// Except is a client id that must not receive the event.
	Except   string
	Nickname string
	Message  *Message
}

// Name returns the wire name of the event.
func (e *Event) Name() string {
	switch e.Kind {
	case EventChatMessage:
		return proto.EventChatMessage
	case EventParticipantJoined:
		return proto.EventParticipantJoined
	case EventParticipantLeft:
		return proto.EventParticipantLeft
	default:
		return ""
	}
}

// Payload returns the wire payload of the event.
func (e *Event) Payload() any {
	switch e.Kind {
	case EventChatMessage:
		if e.Message == nil {
			return nil
		}
		return e.Message.Proto()
	case EventParticipantJoined, EventParticipantLeft:
		p := proto.Participant{RoomCode: e.Room}
		if e.Nickname != "" {
			nickname := e.Nickname
			p.Nickname = &nickname
		}
		return p
	default:
		return nil
	}
}

func eventKindFromName(name string) (EventKind, bool) {
	switch name {
	case proto.EventChatMessage:
		return EventChatMessage, true
	case proto.EventParticipantJoined:
		return EventParticipantJoined, true
	case proto.EventParticipantLeft:
		return EventParticipantLeft, true
	default:
		return 0, false
	}
}
