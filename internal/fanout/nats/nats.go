// Package nats implements fanout.Bridge on NATS core subjects.
package nats

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"time"

	natsgo "github.com/nats-io/nats.go"
	"github.com/rs/zerolog"

	"github.com/vovakirdan/roomrelay/internal/fanout"
)

// Bridge publishes each room on <prefix>.room.<code> and subscribes to <prefix>.room.*.
type Bridge struct {
	nc     *natsgo.Conn
	prefix string
	owned  bool
	log    *zerolog.Logger
}

// Dial connects to the NATS server at url with unlimited reconnects.
func Dial(url, name, prefix string, logger *zerolog.Logger) (*Bridge, error) {
	if logger == nil {
		nop := zerolog.Nop()
		logger = &nop
	}

	nc, err := natsgo.Connect(url,
		natsgo.Name(name),
		natsgo.MaxReconnects(-1),
		natsgo.ReconnectWait(2*time.Second),
		natsgo.DisconnectErrHandler(func(_ *natsgo.Conn, err error) {
			logger.Warn().Err(err).Msg("nats disconnected")
		}),
		natsgo.ReconnectHandler(func(nc *natsgo.Conn) {
			logger.Info().Str("url", nc.ConnectedUrl()).Msg("nats reconnected")
		}),
	)
	if err != nil {
		return nil, fmt.Errorf("connect nats: %w", err)
	}

	b := New(nc, prefix, logger)
	b.owned = true
	return b, nil
}

// New wraps an existing connection. The caller keeps ownership of nc.
func New(nc *natsgo.Conn, prefix string, logger *zerolog.Logger) *Bridge {
	if logger == nil {
		nop := zerolog.Nop()
		logger = &nop
	}
	return &Bridge{nc: nc, prefix: prefix, log: logger}
}

func (b *Bridge) subject(room string) string {
	return b.prefix + ".room." + room
}

// Publish implements fanout.Bridge.
func (b *Bridge) Publish(ctx context.Context, env fanout.Envelope) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	data, err := json.Marshal(env)
	if err != nil {
		return fmt.Errorf("marshal envelope: %w", err)
	}
	if err := b.nc.Publish(b.subject(env.Room), data); err != nil {
		return fmt.Errorf("nats publish: %w", err)
	}
	return nil
}

// Subscribe implements fanout.Bridge.
func (b *Bridge) Subscribe(ctx context.Context, handler fanout.Handler) (io.Closer, error) {
	sub, err := b.nc.Subscribe(b.subject("*"), func(msg *natsgo.Msg) {
		var env fanout.Envelope
		if err := json.Unmarshal(msg.Data, &env); err != nil {
			b.log.Warn().Err(err).Str("subject", msg.Subject).Msg("drop malformed fanout envelope")
			return
		}
		handler(env)
	})
	if err != nil {
		return nil, fmt.Errorf("nats subscribe: %w", err)
	}
	if err := b.nc.Flush(); err != nil {
		_ = sub.Unsubscribe()
		return nil, fmt.Errorf("nats flush: %w", err)
	}

	stop := context.AfterFunc(ctx, func() { _ = sub.Unsubscribe() })
	return closerFunc(func() error {
		stop()
		if !sub.IsValid() {
			return nil
		}
		return sub.Unsubscribe()
	}), nil
}

// Close drains the connection if it was created by Dial.
func (b *Bridge) Close() error {
	if !b.owned {
		return nil
	}
	return b.nc.Drain()
}

type closerFunc func() error

func (f closerFunc) Close() error { return f() }
