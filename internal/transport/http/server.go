package http

import (
	"context"
	stdhttp "net/http"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"github.com/vovakirdan/roomrelay/internal/config"
	"github.com/vovakirdan/roomrelay/internal/core"
	"github.com/vovakirdan/roomrelay/internal/store"
)

// ChatHub is the connection manager the transport drives.
type ChatHub interface {
	RegisterClient(c *core.Client) error
	UnregisterClient(c *core.Client)
	Serve(ctx context.Context, c *core.Client)
	Post(ctx context.Context, req core.SendRequest) (*core.Message, error)
}

// RoomService creates and resolves rooms.
type RoomService interface {
	CreateRoom(ctx context.Context) (*store.Room, error)
	ResolveRoom(ctx context.Context, code string) (*store.Room, error)
}

// HistoryService reads persisted messages.
type HistoryService interface {
	History(ctx context.Context, code string, limit int, beforeID *int64) ([]*core.Message, error)
}

// NewServer builds an HTTP server with the WebSocket endpoint and the REST API.
func NewServer(hub ChatHub, rooms RoomService, history HistoryService, cfg *config.Config, logger *zerolog.Logger) *stdhttp.Server {
	gin.SetMode(gin.ReleaseMode)
	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(LoggerMiddleware(logger))

	router.GET("/health", healthHandler)

	api := router.Group("/api")
	api.GET("/health", apiHealthHandler)

	roomHandlers := NewRoomHandlers(hub, rooms, history, logger)
	api.POST("/rooms", roomHandlers.CreateRoom)
	api.GET("/rooms/:code", roomHandlers.GetRoom)
	api.GET("/rooms/:code/messages", roomHandlers.ListMessages)
	api.POST("/rooms/:code/messages", roomHandlers.PostMessage)

	// The socket endpoint bypasses gin so Accept can hijack the connection.
	mux := stdhttp.NewServeMux()
	mux.Handle("/ws", NewWSHandler(hub, cfg, logger))
	mux.Handle("/", router)

	return &stdhttp.Server{
		Addr:              cfg.Addr,
		Handler:           mux,
		ReadHeaderTimeout: cfg.ReadHeaderTimeout,
	}
}

func healthHandler(c *gin.Context) {
	c.String(stdhttp.StatusOK, "ok")
}

func apiHealthHandler(c *gin.Context) {
	c.JSON(stdhttp.StatusOK, gin.H{"status": "ok"})
}
