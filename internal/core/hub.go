package core

import (
	"context"
	"errors"
	"strings"
	"unicode/utf8"

	"github.com/rs/zerolog"

	"github.com/vovakirdan/roomrelay/internal/fanout"
	"github.com/vovakirdan/roomrelay/internal/store"
	"github.com/vovakirdan/roomrelay/internal/utils"
)

// ErrHubClosed is returned when registering with a hub that stopped running.
var ErrHubClosed = errors.New("hub closed")

// Options tune a Hub.
type Options struct {
	// InstanceID identifies this process on the fanout bridge. Generated when empty.
	InstanceID string
	// AnnounceLeave publishes room:participant-left on disconnect and room switch.
	AnnounceLeave bool
	Logger        *zerolog.Logger
}

// Hub tracks the connections of this instance and their room membership.
// A single loop goroutine owns the membership table; store I/O happens on
// each connection's own goroutine in Serve.
type Hub struct {
	registry      *Registry
	pipeline      *Pipeline
	bridge        fanout.Bridge
	instanceID    string
	announceLeave bool
	logger        *zerolog.Logger
	locks         *keyedMutex

	clients map[string]*Client
	rooms   map[string]*Room

	register   chan registerRequest
	unregister chan unregisterRequest
	bind       chan bindRequest
	deliver    chan *Event
	done       chan struct{}
}

type registerRequest struct {
	client *Client
	reply  chan struct{}
}

type unregisterRequest struct {
	client *Client
	reply  chan membership
}

type bindRequest struct {
	client *Client
	room   string
	reply  chan bindResult
}

// membership is a snapshot of where a client was.
type membership struct {
	room     string
	nickname string
	inRoom   bool
}

type bindResult struct {
	previous membership
	err      error
}

// NewHub constructs a hub. A nil bridge keeps fanout within this process.
func NewHub(registry *Registry, pipeline *Pipeline, bridge fanout.Bridge, opts Options) *Hub {
	if bridge == nil {
		bridge = fanout.NewLocal(nil)
	}
	if opts.InstanceID == "" {
		opts.InstanceID = utils.NewID()
	}
	logger := opts.Logger
	if logger == nil {
		nop := zerolog.Nop()
		logger = &nop
	}
	l := logger.With().Str("instance_id", opts.InstanceID).Logger()

	return &Hub{
		registry:      registry,
		pipeline:      pipeline,
		bridge:        bridge,
		instanceID:    opts.InstanceID,
		announceLeave: opts.AnnounceLeave,
		logger:        &l,
		locks:         newKeyedMutex(),
		clients:       make(map[string]*Client),
		rooms:         make(map[string]*Room),
		register:      make(chan registerRequest),
		unregister:    make(chan unregisterRequest),
		bind:          make(chan bindRequest),
		deliver:       make(chan *Event, 256),
		done:          make(chan struct{}),
	}
}

// InstanceID returns the id this hub publishes under.
func (h *Hub) InstanceID() string {
	return h.instanceID
}

// Run subscribes to the bridge and processes membership changes until ctx is
// canceled. It returns an error only if the subscription cannot be made.
func (h *Hub) Run(ctx context.Context) error {
	defer close(h.done)

	sub, err := h.bridge.Subscribe(ctx, h.receive)
	if err != nil {
		h.logger.Error().Err(err).Msg("fanout subscribe")
		return err
	}
	defer sub.Close()

	h.logger.Info().Msg("hub started")
	for {
		select {
		case <-ctx.Done():
			h.shutdown()
			h.logger.Info().Msg("hub stopped")
			return nil
		case req := <-h.register:
			h.clients[req.client.ID] = req.client
			h.logger.Debug().Str("client_id", req.client.ID).Int("clients", len(h.clients)).Msg("client registered")
			close(req.reply)
		case req := <-h.unregister:
			req.reply <- h.handleUnregister(req.client)
		case req := <-h.bind:
			req.reply <- h.handleBind(req.client, req.room)
		case ev := <-h.deliver:
			h.handleDeliver(ev)
		}
	}
}

// RegisterClient adds a connection to the instance table.
func (h *Hub) RegisterClient(c *Client) error {
	reply := make(chan struct{})
	select {
	case h.register <- registerRequest{client: c, reply: reply}:
	case <-h.done:
		return ErrHubClosed
	}
	select {
	case <-reply:
		return nil
	case <-h.done:
		return ErrHubClosed
	}
}

// UnregisterClient drops the connection and closes its event stream.
func (h *Hub) UnregisterClient(c *Client) {
	reply := make(chan membership, 1)
	select {
	case h.unregister <- unregisterRequest{client: c, reply: reply}:
	case <-h.done:
		return
	}

	var prev membership
	select {
	case prev = <-reply:
	case <-h.done:
		return
	}

	h.logger.Debug().Str("client_id", c.ID).Str("room", prev.room).Msg("client unregistered")
	if h.announceLeave && prev.inRoom {
		h.publish(context.Background(), &Event{
			Kind:     EventParticipantLeft,
			Room:     prev.room,
			Nickname: prev.nickname,
		})
	}
}

// Serve executes the connection's commands in order until ctx is done or
// the Commands channel is closed.
func (h *Hub) Serve(ctx context.Context, c *Client) {
	for {
		select {
		case <-ctx.Done():
			return
		case <-h.done:
			return
		case cmd, ok := <-c.Commands:
			if !ok {
				return
			}
			res := h.execute(ctx, c, cmd)
			if cmd.Ack != nil {
				cmd.Ack(res)
			}
		}
	}
}

func (h *Hub) execute(ctx context.Context, c *Client, cmd *Command) Result {
	switch cmd.Kind {
	case CommandCreateRoom:
		room, err := h.CreateRoom(ctx, c)
		return Result{Room: room, Err: AsCoreError(err)}
	case CommandJoinRoom:
		room, err := h.JoinRoom(ctx, c, cmd.Room, cmd.Nickname)
		return Result{Room: room, Err: AsCoreError(err)}
	case CommandSendMessage:
		msg, err := h.SendMessage(ctx, c, cmd.Message)
		return Result{Message: msg, Err: AsCoreError(err)}
	default:
		return Result{Err: coreError(ErrCodeInvalidRequest, "Unknown command")}
	}
}

// CreateRoom creates a room and binds c to it. The creator is not announced.
func (h *Hub) CreateRoom(ctx context.Context, c *Client) (*store.Room, error) {
	room, err := h.registry.CreateRoom(ctx)
	if err != nil {
		return nil, err
	}
	prev, err := h.bindClient(c, room.Code)
	if err != nil {
		return nil, err
	}
	h.announceLeft(ctx, prev, room.Code)
	return room, nil
}

// JoinRoom binds c to the room with code and announces it to the other members.
func (h *Hub) JoinRoom(ctx context.Context, c *Client, code, nickname string) (*store.Room, error) {
	code = strings.TrimSpace(code)
	if code == "" {
		return nil, coreError(ErrCodeInvalidRequest, msgRoomCodeRequired)
	}
	nickname = strings.TrimSpace(nickname)
	if utf8.RuneCountInString(nickname) > MaxNicknameLength {
		return nil, coreError(ErrCodeValidation, "nickname must be at most 64 characters")
	}

	room, err := h.registry.ResolveRoom(ctx, code)
	if err != nil {
		return nil, err
	}

	prev, err := h.bindClient(c, room.Code)
	if err != nil {
		return nil, err
	}
	h.announceLeft(ctx, prev, room.Code)

	if nickname != "" {
		c.setNickname(nickname)
	}
	h.logger.Info().Str("client_id", c.ID).Str("room", room.Code).Msg("client joined room")

	h.publish(ctx, &Event{
		Kind:     EventParticipantJoined,
		Room:     room.Code,
		Except:   c.ID,
		Nickname: c.Nickname(),
	})
	return room, nil
}

// SendMessage persists a message to a room c is bound to and broadcasts it to
// the room, sender included.
func (h *Hub) SendMessage(ctx context.Context, c *Client, req SendRequest) (*Message, error) {
	if err := h.pipeline.Validate(req); err != nil {
		return nil, err
	}
	room, err := h.registry.ResolveRoom(ctx, req.RoomCode)
	if err != nil {
		return nil, err
	}
	if current, ok := c.Room(); !ok || current != room.Code {
		return nil, coreError(ErrCodeInvalidRequest, msgNotInRoom)
	}
	return h.persistAndPublish(ctx, room, req)
}

// Post sends a message on behalf of a caller without a connection.
func (h *Hub) Post(ctx context.Context, req SendRequest) (*Message, error) {
	if err := h.pipeline.Validate(req); err != nil {
		return nil, err
	}
	room, err := h.registry.ResolveRoom(ctx, req.RoomCode)
	if err != nil {
		return nil, err
	}
	return h.persistAndPublish(ctx, room, req)
}

// persistAndPublish holds the room lock until the message is queued for local
// delivery, so local delivery follows id order. The bridge publish runs after
// the lock is released.
func (h *Hub) persistAndPublish(ctx context.Context, room *store.Room, req SendRequest) (*Message, error) {
	unlock := h.locks.Lock(room.Code)
	msg, err := h.pipeline.Persist(ctx, room, req)
	if err != nil {
		unlock()
		return nil, err
	}
	h.logger.Debug().Str("room", room.Code).Int64("message_id", msg.ID).Msg("message persisted")

	ev := &Event{Kind: EventChatMessage, Room: room.Code, Message: msg}
	queued := h.deliverLocal(ev)
	unlock()

	if queued {
		h.publishRemote(ctx, ev)
	}
	return msg, nil
}

func (h *Hub) bindClient(c *Client, code string) (membership, error) {
	reply := make(chan bindResult, 1)
	select {
	case h.bind <- bindRequest{client: c, room: code, reply: reply}:
	case <-h.done:
		return membership{}, wrapError(ErrCodeTransport, msgInternal, ErrHubClosed)
	}
	select {
	case res := <-reply:
		return res.previous, res.err
	case <-h.done:
		return membership{}, wrapError(ErrCodeTransport, msgInternal, ErrHubClosed)
	}
}

// announceLeft publishes participant-left for a room c was moved out of.
func (h *Hub) announceLeft(ctx context.Context, prev membership, next string) {
	if !h.announceLeave || !prev.inRoom || prev.room == next {
		return
	}
	h.publish(ctx, &Event{
		Kind:     EventParticipantLeft,
		Room:     prev.room,
		Nickname: prev.nickname,
	})
}

// The handlers below run on the hub loop only.

func (h *Hub) handleUnregister(c *Client) membership {
	prev := snapshot(c)
	if _, ok := h.clients[c.ID]; !ok {
		return membership{}
	}
	if prev.inRoom {
		h.leaveRoom(c, prev.room)
	}
	delete(h.clients, c.ID)
	c.disconnect()
	close(c.Events)
	return prev
}

func (h *Hub) handleBind(c *Client, code string) bindResult {
	if _, ok := h.clients[c.ID]; !ok {
		return bindResult{err: coreError(ErrCodeInvalidRequest, "Not connected")}
	}
	prev := snapshot(c)
	if prev.inRoom && prev.room != code {
		h.leaveRoom(c, prev.room)
	}

	room, ok := h.rooms[code]
	if !ok {
		room = NewRoom(code)
		h.rooms[code] = room
	}
	room.AddClient(c)
	c.setRoom(code)
	return bindResult{previous: prev}
}

func (h *Hub) handleDeliver(ev *Event) {
	room, ok := h.rooms[ev.Room]
	if !ok {
		return
	}
	if dropped := room.Broadcast(ev); dropped > 0 {
		h.logger.Warn().Str("room", ev.Room).Str("event", ev.Name()).Int("dropped", dropped).Msg("slow consumers")
	}
}

func (h *Hub) leaveRoom(c *Client, code string) {
	room, ok := h.rooms[code]
	if !ok {
		return
	}
	room.RemoveClient(c)
	if room.Empty() {
		delete(h.rooms, code)
	}
}

func (h *Hub) shutdown() {
	for id, c := range h.clients {
		c.disconnect()
		close(c.Events)
		delete(h.clients, id)
	}
	clear(h.rooms)
}

func snapshot(c *Client) membership {
	room, inRoom := c.Room()
	return membership{room: room, nickname: c.Nickname(), inRoom: inRoom}
}
