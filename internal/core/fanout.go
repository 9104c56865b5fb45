package core

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/vovakirdan/roomrelay/internal/fanout"
	"github.com/vovakirdan/roomrelay/internal/proto"
)

const publishTimeout = 5 * time.Second

func encodeEnvelope(origin string, ev *Event) (fanout.Envelope, error) {
	data, err := json.Marshal(ev.Payload())
	if err != nil {
		return fanout.Envelope{}, fmt.Errorf("encode %s payload: %w", ev.Name(), err)
	}
	return fanout.Envelope{
		Origin: origin,
		Room:   ev.Room,
		Event:  ev.Name(),
		Except: ev.Except,
		Data:   data,
	}, nil
}

func decodeEnvelope(env fanout.Envelope) (*Event, error) {
	kind, ok := eventKindFromName(env.Event)
	if !ok {
		return nil, fmt.Errorf("unknown event %q", env.Event)
	}
	ev := &Event{Kind: kind, Room: env.Room, Except: env.Except}

	switch kind {
	case EventChatMessage:
		var m proto.ChatMessage
		if err := json.Unmarshal(env.Data, &m); err != nil {
			return nil, fmt.Errorf("decode %s payload: %w", env.Event, err)
		}
		ev.Message = messageFromProto(m)
	case EventParticipantJoined, EventParticipantLeft:
		var p proto.Participant
		if err := json.Unmarshal(env.Data, &p); err != nil {
			return nil, fmt.Errorf("decode %s payload: %w", env.Event, err)
		}
		if p.Nickname != nil {
			ev.Nickname = *p.Nickname
		}
	}
	return ev, nil
}

// receive handles an envelope from the bridge. Envelopes published by this
// instance were already delivered locally.
func (h *Hub) receive(env fanout.Envelope) {
	if env.Origin == h.instanceID {
		return
	}
	ev, err := decodeEnvelope(env)
	if err != nil {
		h.logger.Warn().Err(err).Str("origin", env.Origin).Str("room", env.Room).Msg("drop envelope")
		return
	}
	select {
	case h.deliver <- ev:
	case <-h.done:
	}
}

// publish delivers ev to local members and then to every other instance.
func (h *Hub) publish(ctx context.Context, ev *Event) {
	if h.deliverLocal(ev) {
		h.publishRemote(ctx, ev)
	}
}

// deliverLocal queues ev for the hub loop. It reports false once the hub stopped.
func (h *Hub) deliverLocal(ev *Event) bool {
	select {
	case h.deliver <- ev:
		return true
	case <-h.done:
		return false
	}
}

// publishRemote hands ev to the bridge. Failures are logged; local delivery
// has already happened.
func (h *Hub) publishRemote(ctx context.Context, ev *Event) {
	env, err := encodeEnvelope(h.instanceID, ev)
	if err != nil {
		h.logger.Error().Err(err).Str("room", ev.Room).Msg("encode envelope")
		return
	}

	pubCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), publishTimeout)
	defer cancel()
	if err := h.bridge.Publish(pubCtx, env); err != nil {
		h.logger.Warn().Err(err).Str("room", ev.Room).Str("event", env.Event).Msg("fanout publish failed")
	}
}
