package http

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	stdhttp "net/http"
	"time"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"
	"github.com/rs/zerolog"

	"github.com/vovakirdan/roomrelay/internal/config"
	"github.com/vovakirdan/roomrelay/internal/core"
	"github.com/vovakirdan/roomrelay/internal/proto"
	"github.com/vovakirdan/roomrelay/internal/utils"
)

const writeTimeout = 10 * time.Second

// WSHandler upgrades HTTP connections and bridges them to core.Client.
type WSHandler struct {
	hub ChatHub
	cfg *config.Config
	log *zerolog.Logger
}

// NewWSHandler builds a new WebSocket handler.
func NewWSHandler(hub ChatHub, cfg *config.Config, logger *zerolog.Logger) stdhttp.Handler {
	return &WSHandler{hub: hub, cfg: cfg, log: logger}
}

func (h *WSHandler) ServeHTTP(w stdhttp.ResponseWriter, r *stdhttp.Request) {
	opts := &websocket.AcceptOptions{}
	if len(h.cfg.AllowedOrigins) > 0 {
		opts.OriginPatterns = h.cfg.AllowedOrigins
	} else {
		opts.InsecureSkipVerify = true
	}

	conn, err := websocket.Accept(w, r, opts)
	if err != nil {
		h.log.Error().Err(err).Msg("ws accept error")
		return
	}
	defer conn.Close(websocket.StatusInternalError, "internal error")

	if h.cfg.MaxMessageBytes > 0 {
		conn.SetReadLimit(h.cfg.MaxMessageBytes)
	}

	client := core.NewClient(utils.NewID())
	logger := h.log.With().Str("client_id", client.ID).Logger()

	if err := h.hub.RegisterClient(client); err != nil {
		logger.Warn().Err(err).Msg("register client")
		_ = wsjson.Write(r.Context(), conn, proto.Outbound{
			Type:  proto.OutboundTypeError,
			Error: &proto.Error{Code: core.ErrCodeTransport, Msg: "server is shutting down"},
		})
		conn.Close(websocket.StatusTryAgainLater, "shutting down")
		return
	}
	defer h.hub.UnregisterClient(client)
	logger.Debug().Msg("ws connected")

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()

	go h.hub.Serve(ctx, client)

	acks := make(chan proto.Outbound, cap(client.Commands))
	errCh := make(chan error, 2)
	go func() {
		errCh <- h.readLoop(ctx, conn, client, acks, &logger)
	}()
	go func() {
		errCh <- h.writeLoop(ctx, conn, client, acks, &logger)
	}()

	err = <-errCh
	cancel() // stop the other goroutine
	<-errCh

	status := websocket.StatusNormalClosure
	reason := "closing"
	if err != nil && !errors.Is(err, context.Canceled) {
		if errors.Is(err, io.EOF) {
			err = nil
		}
		if s := websocket.CloseStatus(err); s != -1 {
			status = s
		}
		if status == websocket.StatusNormalClosure || status == websocket.StatusGoingAway {
			err = nil
		}
		if err != nil {
			if status == websocket.StatusNormalClosure {
				status = websocket.StatusInternalError
			}
			reason = err.Error()
			logger.Warn().Err(err).Msg("ws connection closed with error")
		}
	}

	logger.Debug().Msg("ws disconnected")
	conn.Close(status, reason)
}

// readLoop is the only writer of client.Commands and closes it on return.
func (h *WSHandler) readLoop(ctx context.Context, conn *websocket.Conn, client *core.Client, acks chan<- proto.Outbound, logger *zerolog.Logger) error {
	defer close(client.Commands)

	reply := func(out proto.Outbound) {
		select {
		case acks <- out:
		case <-ctx.Done():
		}
	}

	for {
		_, data, err := conn.Read(ctx)
		if err != nil {
			return err
		}

		var inbound proto.Inbound
		if err := json.Unmarshal(data, &inbound); err != nil {
			logger.Debug().Err(err).Msg("malformed frame")
			reply(ackFromError(nil, &proto.Error{Code: core.ErrCodeInvalidRequest, Msg: "malformed frame"}))
			continue
		}

		cmd, protoErr := inboundToCommand(inbound)
		if protoErr != nil {
			logger.Debug().Str("type", inbound.Type).Str("error", protoErr.Msg).Msg("rejected frame")
			reply(ackFromError(inbound.ID, protoErr))
			continue
		}

		id := inbound.ID
		cmd.Ack = func(res core.Result) {
			reply(ackFromResult(id, res))
		}

		select {
		case client.Commands <- cmd:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

// writeLoop is the only goroutine writing to conn after the upgrade.
func (h *WSHandler) writeLoop(ctx context.Context, conn *websocket.Conn, client *core.Client, acks <-chan proto.Outbound, logger *zerolog.Logger) error {
	for {
		var out proto.Outbound
		select {
		case event, ok := <-client.Events:
			if !ok {
				return nil
			}
			out = outboundFromEvent(event)
		case out = <-acks:
		case <-ctx.Done():
			return ctx.Err()
		}

		if err := write(ctx, conn, out); err != nil {
			logger.Error().Err(err).Str("type", out.Type).Msg("write ws frame")
			return err
		}
	}
}

func write(ctx context.Context, conn *websocket.Conn, out proto.Outbound) error {
	ctx, cancel := context.WithTimeout(ctx, writeTimeout)
	defer cancel()
	return wsjson.Write(ctx, conn, out)
}
