package core

// Room groups the local clients bound to one room code.
// It is owned by the hub loop and must not be touched from other goroutines.
type Room struct {
	Code    string
	clients map[string]*Client
}

// NewRoom constructs a room with no clients.
func NewRoom(code string) *Room {
	return &Room{
		Code:    code,
		clients: make(map[string]*Client),
	}
}

// AddClient inserts a client into the room. Returns true if newly added.
func (r *Room) AddClient(c *Client) bool {
	if _, exists := r.clients[c.ID]; exists {
		return false
	}
	r.clients[c.ID] = c
	return true
}

// RemoveClient deletes a client from the room. Returns true if removed.
func (r *Room) RemoveClient(c *Client) bool {
	if _, exists := r.clients[c.ID]; !exists {
		return false
	}
	delete(r.clients, c.ID)
	return true
}

// Broadcast sends an event to all clients in the room except event.Except.
// It returns the number of clients the event was dropped for.
func (r *Room) Broadcast(event *Event) int {
	dropped := 0
	for id, client := range r.clients {
		if id == event.Except {
			continue
		}
		select {
		case client.Events <- event:
		default:
			// Drop if slow consumer.
			dropped++
		}
	}
	return dropped
}

// Len returns the number of clients in the room.
func (r *Room) Len() int {
	return len(r.clients)
}

// Empty returns true if no clients are in the room.
func (r *Room) Empty() bool {
	return len(r.clients) == 0
}
