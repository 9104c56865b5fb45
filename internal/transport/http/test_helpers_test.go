package http

import (
	"context"
	"encoding/json"
	"net/http/httptest"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"github.com/vovakirdan/roomrelay/internal/config"
	"github.com/vovakirdan/roomrelay/internal/core"
	"github.com/vovakirdan/roomrelay/internal/proto"
	"github.com/vovakirdan/roomrelay/internal/store"
	"github.com/vovakirdan/roomrelay/internal/store/sqlite"
)

type testEnv struct {
	ts       *httptest.Server
	hub      *core.Hub
	registry *core.Registry
	store    store.Store
}

func startTestServer(t *testing.T) *testEnv {
	t.Helper()

	st, err := sqlite.New(":memory:")
	require.NoError(t, err, "failed to create test store")
	t.Cleanup(func() { st.Close() })

	registry := core.NewRegistry(st, nil, 0, nil)
	pipeline := core.NewPipeline(registry, st, core.HistoryLimits{}, nil)
	hub := core.NewHub(registry, pipeline, nil, core.Options{})

	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	go hub.Run(ctx)

	cfg := config.Default()
	cfg.Addr = ":0"
	cfg.ReadHeaderTimeout = time.Second
	disabledLogger := zerolog.Nop()

	server := NewServer(hub, registry, pipeline, &cfg, &disabledLogger)
	ts := httptest.NewServer(server.Handler)
	t.Cleanup(ts.Close)

	return &testEnv{ts: ts, hub: hub, registry: registry, store: st}
}

// frame is a decoded outbound message as seen by a client.
type frame struct {
	Type  string          `json:"type"`
	ID    json.RawMessage `json:"id"`
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data"`
	Error *proto.Error    `json:"error"`
}

// wsClient buffers frames that arrive before the one a test waits for.
type wsClient struct {
	t       *testing.T
	ctx     context.Context
	conn    *websocket.Conn
	pending []frame
	nextID  int
}

func dial(t *testing.T, ctx context.Context, env *testEnv) *wsClient {
	t.Helper()

	wsURL := strings.Replace(env.ts.URL, "http", "ws", 1) + "/ws"
	conn, _, err := websocket.Dial(ctx, wsURL, nil)
	require.NoError(t, err, "dial")
	t.Cleanup(func() { conn.Close(websocket.StatusNormalClosure, "done") })
	return &wsClient{t: t, ctx: ctx, conn: conn}
}

// request sends a frame with a fresh ack id and waits for its ack.
func (c *wsClient) request(typ string, data any) proto.Ack {
	c.t.Helper()

	c.nextID++
	id := json.RawMessage(strconv.Itoa(c.nextID))
	in := proto.Inbound{Type: typ, ID: id}
	if data != nil {
		in.Data = mustJSON(c.t, data)
	}
	require.NoError(c.t, wsjson.Write(c.ctx, c.conn, in), "write %s", typ)

	f := c.next(func(f frame) bool { return f.Type == proto.OutboundTypeAck && string(f.ID) == string(id) })
	var ack proto.Ack
	require.NoError(c.t, json.Unmarshal(f.Data, &ack), "decode ack")
	return ack
}

func (c *wsClient) event(name string) frame {
	c.t.Helper()
	return c.next(func(f frame) bool { return f.Type == proto.OutboundTypeEvent && f.Event == name })
}

func (c *wsClient) next(match func(frame) bool) frame {
	c.t.Helper()

	for i, f := range c.pending {
		if match(f) {
			c.pending = append(c.pending[:i], c.pending[i+1:]...)
			return f
		}
	}
	for {
		var f frame
		require.NoError(c.t, wsjson.Read(c.ctx, c.conn, &f), "read frame")
		if match(f) {
			return f
		}
		c.pending = append(c.pending, f)
	}
}

// quiet asserts that no event called name arrives within wait.
// The expiring read closes the connection, so it must be the last call.
func (c *wsClient) quiet(name string, wait time.Duration) {
	c.t.Helper()

	for _, f := range c.pending {
		require.NotEqual(c.t, name, f.Event, "unexpected event")
	}
	ctx, cancel := context.WithTimeout(c.ctx, wait)
	defer cancel()
	for {
		var f frame
		if err := wsjson.Read(ctx, c.conn, &f); err != nil {
			return
		}
		require.NotEqual(c.t, name, f.Event, "unexpected event: %s", f.Data)
		c.pending = append(c.pending, f)
	}
}

func mustJSON(t *testing.T, v any) []byte {
	t.Helper()
	data, err := json.Marshal(v)
	require.NoError(t, err, "marshal")
	return data
}
