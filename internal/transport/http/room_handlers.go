package http

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
	"github.com/samber/lo"

	"github.com/vovakirdan/roomrelay/internal/core"
	"github.com/vovakirdan/roomrelay/internal/proto"
)

// RoomHandlers provides HTTP handlers for rooms and their history.
type RoomHandlers struct {
	hub     ChatHub
	rooms   RoomService
	history HistoryService
	log     *zerolog.Logger
}

// NewRoomHandlers creates a new room handlers instance.
func NewRoomHandlers(hub ChatHub, rooms RoomService, history HistoryService, logger *zerolog.Logger) *RoomHandlers {
	return &RoomHandlers{
		hub:     hub,
		rooms:   rooms,
		history: history,
		log:     logger,
	}
}

// HistoryQuery holds the pagination parameters of a history read.
type HistoryQuery struct {
	Limit    int    `form:"limit" binding:"omitempty,min=1"`
	BeforeID *int64 `form:"beforeId" binding:"omitempty,min=1"`
}

// PostMessageRequest represents the post message request body.
type PostMessageRequest struct {
	Sender  string `json:"sender"`
	Content string `json:"content"`
}

// CreateRoom handles room creation.
// POST /api/rooms
func (h *RoomHandlers) CreateRoom(c *gin.Context) {
	room, err := h.rooms.CreateRoom(c.Request.Context())
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusCreated, roomToProto(room))
}

// GetRoom looks a room up by code.
// GET /api/rooms/:code
func (h *RoomHandlers) GetRoom(c *gin.Context) {
	room, err := h.rooms.ResolveRoom(c.Request.Context(), c.Param("code"))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, roomToProto(room))
}

// ListMessages returns the room's messages, newest first.
// GET /api/rooms/:code/messages?limit=&beforeId=
func (h *RoomHandlers) ListMessages(c *gin.Context) {
	var q HistoryQuery
	if err := c.ShouldBindQuery(&q); err != nil {
		h.log.Debug().Err(err).Msg("invalid history query")
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: "invalid query parameters", Code: core.ErrCodeInvalidRequest})
		return
	}

	msgs, err := h.history.History(c.Request.Context(), c.Param("code"), q.Limit, q.BeforeID)
	if err != nil {
		writeError(c, err)
		return
	}

	c.JSON(http.StatusOK, lo.Map(msgs, func(m *core.Message, _ int) proto.ChatMessage {
		return m.Proto()
	}))
}

// PostMessage persists a message and broadcasts it to the room.
// POST /api/rooms/:code/messages
func (h *RoomHandlers) PostMessage(c *gin.Context) {
	var req PostMessageRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.log.Debug().Err(err).Msg("invalid post message request")
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: "invalid request body", Code: core.ErrCodeInvalidRequest})
		return
	}

	msg, err := h.hub.Post(c.Request.Context(), core.SendRequest{
		RoomCode: strings.TrimSpace(c.Param("code")),
		Sender:   req.Sender,
		Content:  req.Content,
	})
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusCreated, msg.Proto())
}
