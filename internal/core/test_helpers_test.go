package core

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/vovakirdan/roomrelay/internal/fanout"
	"github.com/vovakirdan/roomrelay/internal/store"
	"github.com/vovakirdan/roomrelay/internal/store/sqlite"
)

func newTestStore(t testing.TB) store.Store {
	t.Helper()

	st, err := sqlite.New(":memory:")
	require.NoError(t, err, "open store")
	t.Cleanup(func() { st.Close() })
	return st
}

func newTestHub(t testing.TB, ctx context.Context, st store.Store, bridge fanout.Bridge, opts Options) *Hub {
	t.Helper()

	registry := NewRegistry(st, nil, 0, nil)
	pipeline := NewPipeline(registry, st, HistoryLimits{}, nil)
	hub := NewHub(registry, pipeline, bridge, opts)
	go hub.Run(ctx)
	return hub
}

func connect(t testing.TB, ctx context.Context, hub *Hub, id string) *Client {
	t.Helper()

	c := NewClient(id)
	require.NoError(t, hub.RegisterClient(c), "register %s", id)
	go hub.Serve(ctx, c)
	return c
}

func do(t testing.TB, c *Client, cmd *Command) Result {
	t.Helper()

	ch := make(chan Result, 1)
	cmd.Ack = func(res Result) { ch <- res }
	c.Commands <- cmd

	select {
	case res := <-ch:
		return res
	case <-time.After(2 * time.Second):
		require.Failf(t, "no ack", "command kind %v from %s", cmd.Kind, c.ID)
		return Result{}
	}
}

func mustOK(t testing.TB, res Result) Result {
	t.Helper()
	require.Nil(t, res.Err, "unexpected error")
	return res
}

func mustEvent(t testing.TB, ch <-chan *Event, kind EventKind) *Event {
	t.Helper()

	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		select {
		case ev := <-ch:
			if ev == nil {
				continue
			}
			if ev.Kind == kind {
				return ev
			}
		default:
			time.Sleep(10 * time.Millisecond)
		}
	}
	require.Failf(t, "missing event", "expected event kind %v not received", kind)
	return nil
}

func mustNoEvent(t testing.TB, ch <-chan *Event, wait time.Duration) {
	t.Helper()

	select {
	case ev, ok := <-ch:
		if ok {
			require.Failf(t, "unexpected event", "%s in %s", ev.Name(), ev.Room)
		}
	case <-time.After(wait):
	}
}
