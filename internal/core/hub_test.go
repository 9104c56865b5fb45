package core

import (
	"context"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/vovakirdan/roomrelay/internal/fanout"
	"github.com/vovakirdan/roomrelay/internal/proto"
)

func TestHubCreateJoinAndChat(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	hub := newTestHub(t, ctx, newTestStore(t), nil, Options{})
	alice := connect(t, ctx, hub, "a")
	bob := connect(t, ctx, hub, "b")

	created := mustOK(t, do(t, alice, &Command{Kind: CommandCreateRoom}))
	require.NotNil(t, created.Room)
	require.Len(t, created.Room.Code, DefaultCodeLength)
	code := created.Room.Code
	room, ok := alice.Room()
	require.True(t, ok)
	require.Equal(t, code, room)

	joined := mustOK(t, do(t, bob, &Command{Kind: CommandJoinRoom, Room: code, Nickname: "  bob  "}))
	require.Equal(t, created.Room.ID, joined.Room.ID)

	joinEv := mustEvent(t, alice.Events, EventParticipantJoined)
	require.Equal(t, code, joinEv.Room)
	require.Equal(t, "bob", joinEv.Nickname)
	// The joiner is not told about itself.
	mustNoEvent(t, bob.Events, 100*time.Millisecond)

	sent := mustOK(t, do(t, alice, &Command{
		Kind:    CommandSendMessage,
		Message: SendRequest{RoomCode: code, Sender: "alice", Content: "hi"},
	}))
	require.NotNil(t, sent.Message)
	require.NotZero(t, sent.Message.ID)
	require.Equal(t, code, sent.Message.RoomCode)

	for name, c := range map[string]*Client{"alice": alice, "bob": bob} {
		ev := mustEvent(t, c.Events, EventChatMessage)
		require.Equal(t, sent.Message.ID, ev.Message.ID, name)
		require.Equal(t, "hi", ev.Message.Content, name)
		require.Equal(t, "alice", ev.Message.Sender, name)
	}
}

func TestHubJoinUnknownRoom(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()

	hub := newTestHub(t, ctx, newTestStore(t), nil, Options{})
	carol := connect(t, ctx, hub, "c")

	res := do(t, carol, &Command{Kind: CommandJoinRoom, Room: "nope42"})
	require.NotNil(t, res.Err)
	require.Equal(t, ErrCodeRoomNotFound, res.Err.Code)
	require.Equal(t, "Room not found", res.Err.Message)
	require.ErrorIs(t, res.Err, ErrRoomNotFound)
	require.Equal(t, StateConnected, carol.State())
}

func TestHubJoinRequiresCode(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()

	hub := newTestHub(t, ctx, newTestStore(t), nil, Options{})
	c := connect(t, ctx, hub, "c")

	res := do(t, c, &Command{Kind: CommandJoinRoom, Room: "   "})
	require.NotNil(t, res.Err)
	require.Equal(t, ErrCodeInvalidRequest, res.Err.Code)
	require.Equal(t, "Room code is required", res.Err.Message)
}

func TestHubJoinRejectsLongNickname(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()

	hub := newTestHub(t, ctx, newTestStore(t), nil, Options{})
	alice := connect(t, ctx, hub, "a")
	code := mustOK(t, do(t, alice, &Command{Kind: CommandCreateRoom})).Room.Code

	bob := connect(t, ctx, hub, "b")
	res := do(t, bob, &Command{Kind: CommandJoinRoom, Room: code, Nickname: strings.Repeat("é", 65)})
	require.NotNil(t, res.Err)
	require.Equal(t, ErrCodeValidation, res.Err.Code)
	_, ok := bob.Room()
	require.False(t, ok, "bob should not be bound after a rejected join")
}

func TestHubSendRequiresMembership(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()

	hub := newTestHub(t, ctx, newTestStore(t), nil, Options{})
	alice := connect(t, ctx, hub, "a")
	mallory := connect(t, ctx, hub, "m")
	code := mustOK(t, do(t, alice, &Command{Kind: CommandCreateRoom})).Room.Code

	res := do(t, mallory, &Command{
		Kind:    CommandSendMessage,
		Message: SendRequest{RoomCode: code, Sender: "m", Content: "hi"},
	})
	require.NotNil(t, res.Err)
	require.Equal(t, ErrCodeInvalidRequest, res.Err.Code)
	require.Equal(t, "Not in room", res.Err.Message)
	mustNoEvent(t, alice.Events, 100*time.Millisecond)
}

func TestHubSendUnknownRoom(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()

	hub := newTestHub(t, ctx, newTestStore(t), nil, Options{})
	alice := connect(t, ctx, hub, "a")
	mustOK(t, do(t, alice, &Command{Kind: CommandCreateRoom}))

	res := do(t, alice, &Command{
		Kind:    CommandSendMessage,
		Message: SendRequest{RoomCode: "ghost1", Sender: "alice", Content: "hi"},
	})
	require.NotNil(t, res.Err)
	require.Equal(t, ErrCodeRoomNotFound, res.Err.Code)
	mustNoEvent(t, alice.Events, 100*time.Millisecond)
}

func TestHubInvalidMessageIsNotBroadcast(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()

	st := newTestStore(t)
	hub := newTestHub(t, ctx, st, nil, Options{})
	alice := connect(t, ctx, hub, "a")
	room := mustOK(t, do(t, alice, &Command{Kind: CommandCreateRoom})).Room

	res := do(t, alice, &Command{
		Kind:    CommandSendMessage,
		Message: SendRequest{RoomCode: room.Code, Sender: "", Content: "hi"},
	})
	require.NotNil(t, res.Err)
	require.Equal(t, ErrCodeValidation, res.Err.Code)
	require.Equal(t, "sender must be between 1 and 64 characters", res.Err.Message)
	mustNoEvent(t, alice.Events, 100*time.Millisecond)

	msgs, err := st.ListMessages(ctx, room.ID, 10, nil)
	require.NoError(t, err)
	require.Empty(t, msgs, "invalid message was persisted")
}

func TestHubSwitchingRoomsStopsDelivery(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	hub := newTestHub(t, ctx, newTestStore(t), nil, Options{})
	alice := connect(t, ctx, hub, "a")
	bob := connect(t, ctx, hub, "b")

	first := mustOK(t, do(t, alice, &Command{Kind: CommandCreateRoom})).Room.Code
	mustOK(t, do(t, bob, &Command{Kind: CommandJoinRoom, Room: first}))
	mustEvent(t, alice.Events, EventParticipantJoined)

	second := mustOK(t, do(t, bob, &Command{Kind: CommandCreateRoom})).Room.Code
	room, _ := bob.Room()
	require.Equal(t, second, room)
	// Leaving is silent unless announcements are enabled.
	mustNoEvent(t, alice.Events, 100*time.Millisecond)

	mustOK(t, do(t, alice, &Command{
		Kind:    CommandSendMessage,
		Message: SendRequest{RoomCode: first, Sender: "alice", Content: "anyone?"},
	}))
	mustEvent(t, alice.Events, EventChatMessage)
	mustNoEvent(t, bob.Events, 150*time.Millisecond)
}

func TestHubRejoinReannounces(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()

	hub := newTestHub(t, ctx, newTestStore(t), nil, Options{})
	alice := connect(t, ctx, hub, "a")
	bob := connect(t, ctx, hub, "b")
	code := mustOK(t, do(t, alice, &Command{Kind: CommandCreateRoom})).Room.Code

	mustOK(t, do(t, bob, &Command{Kind: CommandJoinRoom, Room: code, Nickname: "bob"}))
	mustEvent(t, alice.Events, EventParticipantJoined)

	mustOK(t, do(t, bob, &Command{Kind: CommandJoinRoom, Room: code}))
	ev := mustEvent(t, alice.Events, EventParticipantJoined)
	require.Equal(t, "bob", ev.Nickname, "stored nickname is reused")
}

func TestHubDisconnectIsSilentByDefault(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()

	hub := newTestHub(t, ctx, newTestStore(t), nil, Options{})
	alice := connect(t, ctx, hub, "a")
	bob := connect(t, ctx, hub, "b")
	code := mustOK(t, do(t, alice, &Command{Kind: CommandCreateRoom})).Room.Code
	mustOK(t, do(t, bob, &Command{Kind: CommandJoinRoom, Room: code}))
	mustEvent(t, alice.Events, EventParticipantJoined)

	hub.UnregisterClient(bob)
	require.Equal(t, StateDisconnected, bob.State())
	_, ok := <-bob.Events
	require.False(t, ok, "bob's event stream should be closed")
	mustNoEvent(t, alice.Events, 100*time.Millisecond)

	// A second unregister is a no-op.
	hub.UnregisterClient(bob)
}

func TestHubAnnounceLeave(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	hub := newTestHub(t, ctx, newTestStore(t), nil, Options{AnnounceLeave: true})
	alice := connect(t, ctx, hub, "a")
	bob := connect(t, ctx, hub, "b")
	carol := connect(t, ctx, hub, "c")
	code := mustOK(t, do(t, alice, &Command{Kind: CommandCreateRoom})).Room.Code

	mustOK(t, do(t, bob, &Command{Kind: CommandJoinRoom, Room: code, Nickname: "bob"}))
	mustOK(t, do(t, carol, &Command{Kind: CommandJoinRoom, Room: code}))

	// Switching rooms announces the departure.
	mustOK(t, do(t, bob, &Command{Kind: CommandCreateRoom}))
	left := mustEvent(t, alice.Events, EventParticipantLeft)
	require.Equal(t, code, left.Room)
	require.Equal(t, "bob", left.Nickname)

	hub.UnregisterClient(carol)
	left = mustEvent(t, alice.Events, EventParticipantLeft)
	require.Equal(t, code, left.Room)
	require.Empty(t, left.Nickname)
}

func TestHubPost(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()

	hub := newTestHub(t, ctx, newTestStore(t), nil, Options{})
	alice := connect(t, ctx, hub, "a")
	code := mustOK(t, do(t, alice, &Command{Kind: CommandCreateRoom})).Room.Code

	msg, err := hub.Post(ctx, SendRequest{RoomCode: code, Sender: "api", Content: "from http"})
	require.NoError(t, err)
	ev := mustEvent(t, alice.Events, EventChatMessage)
	require.Equal(t, msg.ID, ev.Message.ID)

	_, err = hub.Post(ctx, SendRequest{RoomCode: "zzzzzz", Sender: "api", Content: "x"})
	require.ErrorIs(t, err, ErrRoomNotFound)
}

func TestHubLocalOrderMatchesPersistence(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	hub := newTestHub(t, ctx, newTestStore(t), nil, Options{})
	alice := connect(t, ctx, hub, "a")
	bob := connect(t, ctx, hub, "b")
	watcher := connect(t, ctx, hub, "w")
	code := mustOK(t, do(t, alice, &Command{Kind: CommandCreateRoom})).Room.Code
	mustOK(t, do(t, bob, &Command{Kind: CommandJoinRoom, Room: code}))
	mustOK(t, do(t, watcher, &Command{Kind: CommandJoinRoom, Room: code}))

	const perSender = 10
	errs := make(chan error, 2)
	for _, c := range []*Client{alice, bob} {
		go func(c *Client) {
			for i := range perSender {
				ack := make(chan Result, 1)
				c.Commands <- &Command{
					Kind:    CommandSendMessage,
					Message: SendRequest{RoomCode: code, Sender: c.ID, Content: fmt.Sprintf("%d", i)},
					Ack:     func(r Result) { ack <- r },
				}
				if res := <-ack; res.Err != nil {
					errs <- res.Err
					return
				}
			}
			errs <- nil
		}(c)
	}
	for range 2 {
		require.NoError(t, <-errs)
	}

	var last int64
	for range 2 * perSender {
		ev := mustEvent(t, watcher.Events, EventChatMessage)
		require.Greater(t, ev.Message.ID, last, "delivered out of order")
		last = ev.Message.ID
	}
}

// stalledBridge holds chat publications until release is closed.
type stalledBridge struct {
	fanout.Bridge
	release chan struct{}
}

func (b *stalledBridge) Publish(ctx context.Context, env fanout.Envelope) error {
	if env.Event == proto.EventChatMessage {
		select {
		case <-b.release:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	return b.Bridge.Publish(ctx, env)
}

func TestHubSlowBridgeDoesNotBlockRoom(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	bridge := &stalledBridge{Bridge: fanout.NewLocal(nil), release: make(chan struct{})}
	defer close(bridge.release)

	hub := newTestHub(t, ctx, newTestStore(t), bridge, Options{})
	alice := connect(t, ctx, hub, "a")
	bob := connect(t, ctx, hub, "b")
	code := mustOK(t, do(t, alice, &Command{Kind: CommandCreateRoom})).Room.Code
	mustOK(t, do(t, bob, &Command{Kind: CommandJoinRoom, Room: code}))

	// Alice's send stays inside the bridge publish.
	alice.Commands <- &Command{
		Kind:    CommandSendMessage,
		Message: SendRequest{RoomCode: code, Sender: "alice", Content: "stuck"},
	}
	first := mustEvent(t, bob.Events, EventChatMessage)
	require.Equal(t, "stuck", first.Message.Content)

	// Bob's send to the same room is acknowledged while alice's publish is pending.
	sent := mustOK(t, do(t, bob, &Command{
		Kind:    CommandSendMessage,
		Message: SendRequest{RoomCode: code, Sender: "bob", Content: "through"},
	}))
	require.Greater(t, sent.Message.ID, first.Message.ID)
}

func TestHubsShareBus(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	st := newTestStore(t)
	bus := fanout.NewBus(0)
	defer bus.Close()

	hubA := newTestHub(t, ctx, st, fanout.NewLocal(bus), Options{InstanceID: "a"})
	hubB := newTestHub(t, ctx, st, fanout.NewLocal(bus), Options{InstanceID: "b"})

	alice := connect(t, ctx, hubA, "alice")
	bob := connect(t, ctx, hubB, "bob")

	code := mustOK(t, do(t, alice, &Command{Kind: CommandCreateRoom})).Room.Code
	mustOK(t, do(t, bob, &Command{Kind: CommandJoinRoom, Room: code, Nickname: "bob"}))

	joinEv := mustEvent(t, alice.Events, EventParticipantJoined)
	require.Equal(t, "bob", joinEv.Nickname)

	sent := mustOK(t, do(t, bob, &Command{
		Kind:    CommandSendMessage,
		Message: SendRequest{RoomCode: code, Sender: "bob", Content: "across"},
	})).Message

	for name, c := range map[string]*Client{"alice": alice, "bob": bob} {
		ev := mustEvent(t, c.Events, EventChatMessage)
		require.Equal(t, sent.ID, ev.Message.ID, name)
		require.Equal(t, "across", ev.Message.Content, name)
	}
	// Each instance delivers its own publication once.
	mustNoEvent(t, bob.Events, 150*time.Millisecond)
}

func TestHubStopsOnContextCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())

	hub := newTestHub(t, ctx, newTestStore(t), nil, Options{})
	c := connect(t, ctx, hub, "a")
	cancel()

	select {
	case _, ok := <-c.Events:
		require.False(t, ok, "unexpected event after shutdown")
	case <-time.After(2 * time.Second):
		require.FailNow(t, "event stream not closed on shutdown")
	}

	require.ErrorIs(t, hub.RegisterClient(NewClient("late")), ErrHubClosed)
}
