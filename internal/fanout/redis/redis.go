// Package redis implements fanout.Bridge on Redis pub/sub.
package redis

import (
	"context"
	"encoding/json"
	"fmt"
	"io"

	goredis "github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/vovakirdan/roomrelay/internal/fanout"
)

// Options configures Dial.
type Options struct {
	Addr     string
	Password string
	DB       int
	// Prefix namespaces the channels, e.g. "roomrelay".
	Prefix string
}

// Bridge publishes each room on its own channel and pattern-subscribes to all rooms.
type Bridge struct {
	rdb    *goredis.Client
	prefix string
	owned  bool
	log    *zerolog.Logger
}

// Dial connects to Redis and verifies the connection.
func Dial(ctx context.Context, opts Options, logger *zerolog.Logger) (*Bridge, error) {
	rdb := goredis.NewClient(&goredis.Options{
		Addr:     opts.Addr,
		Password: opts.Password,
		DB:       opts.DB,
	})
	if err := rdb.Ping(ctx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("ping redis: %w", err)
	}

	b := New(rdb, opts.Prefix, logger)
	b.owned = true
	return b, nil
}

// New wraps an existing client. The caller keeps ownership of rdb.
func New(rdb *goredis.Client, prefix string, logger *zerolog.Logger) *Bridge {
	if logger == nil {
		nop := zerolog.Nop()
		logger = &nop
	}
	return &Bridge{rdb: rdb, prefix: prefix, log: logger}
}

func (b *Bridge) channel(room string) string {
	return b.prefix + ":room:" + room
}

// Publish implements fanout.Bridge.
func (b *Bridge) Publish(ctx context.Context, env fanout.Envelope) error {
	data, err := json.Marshal(env)
	if err != nil {
		return fmt.Errorf("marshal envelope: %w", err)
	}
	if err := b.rdb.Publish(ctx, b.channel(env.Room), data).Err(); err != nil {
		return fmt.Errorf("redis publish: %w", err)
	}
	return nil
}

// Subscribe implements fanout.Bridge.
func (b *Bridge) Subscribe(ctx context.Context, handler fanout.Handler) (io.Closer, error) {
	ps := b.rdb.PSubscribe(ctx, b.channel("*"))
	if _, err := ps.Receive(ctx); err != nil {
		_ = ps.Close()
		return nil, fmt.Errorf("redis psubscribe: %w", err)
	}

	ch := ps.Channel()
	go func() {
		for {
			select {
			case <-ctx.Done():
				_ = ps.Close()
				return
			case msg, ok := <-ch:
				if !ok {
					return
				}
				var env fanout.Envelope
				if err := json.Unmarshal([]byte(msg.Payload), &env); err != nil {
					b.log.Warn().Err(err).Str("channel", msg.Channel).Msg("drop malformed fanout envelope")
					continue
				}
				handler(env)
			}
		}
	}()

	return ps, nil
}

// Close closes the client if it was created by Dial.
func (b *Bridge) Close() error {
	if !b.owned {
		return nil
	}
	return b.rdb.Close()
}
