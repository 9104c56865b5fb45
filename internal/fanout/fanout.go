// Package fanout relays room-scoped events between server instances.
// A Bridge is best-effort: it neither persists nor deduplicates envelopes.
package fanout

import (
	"context"
	"encoding/json"
	"io"
)

// Envelope is the wire record carried by a Bridge.
type Envelope struct {
	// Origin is the instance id of the publisher.
	Origin string `json:"origin"`
	Room   string `json:"room"`
	Event  string `json:"event"`
	// Except is a connection id that must not receive the event.
	Except string          `json:"except,omitempty"`
	Data   json.RawMessage `json:"data,omitempty"`
}

// Handler receives envelopes from a subscription.
type Handler func(Envelope)

// Bridge is the shared publish/subscribe channel between instances.
type Bridge interface {
	// Publish sends the envelope to every subscriber, including the publisher's own.
	Publish(ctx context.Context, env Envelope) error

	// Subscribe registers handler for all room traffic. It returns once the
	// subscription is active; delivery stops when ctx is done or the closer is closed.
	Subscribe(ctx context.Context, handler Handler) (io.Closer, error)

	// Close releases the underlying connection.
	Close() error
}

type closerFunc func() error

func (f closerFunc) Close() error { return f() }
