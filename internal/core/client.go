package core

import "sync"

// State is the lifecycle position of a connection.
type State int

const (
	// StateConnected is the initial state: no room membership.
	StateConnected State = iota
	// StateInRoom means the connection is bound to exactly one room.
	StateInRoom
	// StateDisconnected is terminal.
	StateDisconnected
)

func (s State) String() string {
	switch s {
	case StateConnected:
		return "connected"
	case StateInRoom:
		return "in_room"
	case StateDisconnected:
		return "disconnected"
	default:
		return "unknown"
	}
}

// Client is one connection as seen by the core layer.
// Membership is written only by the hub loop.
type Client struct {
	ID       string
	Commands chan *Command
	Events   chan *Event

	mu       sync.RWMutex
	state    State
	room     string
	nickname string
}

// NewClient constructs a client with initialized channels.
func NewClient(id string) *Client {
	return &Client{
		ID:       id,
		Commands: make(chan *Command, 16),
		Events:   make(chan *Event, 64),
	}
}

// Room returns the code of the bound room.
func (c *Client) Room() (string, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.room, c.state == StateInRoom
}

// Nickname returns the stored nickname or "".
func (c *Client) Nickname() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.nickname
}

// State returns the current lifecycle state.
func (c *Client) State() State {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.state
}

func (c *Client) setRoom(code string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.room = code
	c.state = StateInRoom
}

func (c *Client) setNickname(nickname string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.nickname = nickname
}

func (c *Client) disconnect() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.room = ""
	c.nickname = ""
	c.state = StateDisconnected
}
