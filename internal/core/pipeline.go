package core

import (
	"context"
	"errors"
	"fmt"
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/rs/zerolog"
	"github.com/samber/lo"

	"github.com/vovakirdan/roomrelay/internal/store"
)

const (
	MaxSenderLength   = 64
	MaxContentLength  = 5000
	MaxNicknameLength = 64
)

// HistoryLimits bound the page size of history reads.
type HistoryLimits struct {
	Default int
	Max     int
}

// DefaultHistoryLimits returns the default page sizes.
func DefaultHistoryLimits() HistoryLimits {
	return HistoryLimits{Default: 50, Max: 200}
}

// SendRequest is an inbound chat message before validation.
type SendRequest struct {
	RoomCode string `json:"roomCode" validate:"required,max=64"`
	Sender   string `json:"sender" validate:"required,max=64"`
	Content  string `json:"content" validate:"required,max=5000"`
}

// Pipeline validates and persists chat messages and serves history.
type Pipeline struct {
	registry *Registry
	messages store.MessageStore
	limits   HistoryLimits
	validate *validator.Validate
	logger   *zerolog.Logger
}

// NewPipeline builds a pipeline. Zero limits fall back to DefaultHistoryLimits.
func NewPipeline(registry *Registry, messages store.MessageStore, limits HistoryLimits, logger *zerolog.Logger) *Pipeline {
	defaults := DefaultHistoryLimits()
	if limits.Max <= 0 {
		limits.Max = defaults.Max
	}
	if limits.Default <= 0 {
		limits.Default = defaults.Default
	}
	limits.Default = min(limits.Default, limits.Max)
	if logger == nil {
		nop := zerolog.Nop()
		logger = &nop
	}

	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name, _, _ := strings.Cut(fld.Tag.Get("json"), ",")
		if name == "" || name == "-" {
			return fld.Name
		}
		return name
	})

	return &Pipeline{
		registry: registry,
		messages: messages,
		limits:   limits,
		validate: v,
		logger:   logger,
	}
}

// Validate checks a send request. The first violation is reported.
func (p *Pipeline) Validate(req SendRequest) error {
	err := p.validate.Struct(req)
	if err == nil {
		return nil
	}
	var fieldErrs validator.ValidationErrors
	if !errors.As(err, &fieldErrs) || len(fieldErrs) == 0 {
		return wrapError(ErrCodeValidation, "invalid message", err)
	}
	return wrapError(ErrCodeValidation, fieldMessage(fieldErrs[0]), err)
}

func fieldMessage(fe validator.FieldError) string {
	switch fe.Field() {
	case "roomCode":
		if fe.Tag() == "required" {
			return msgRoomCodeRequired
		}
		return "roomCode must be at most 64 characters"
	case "sender":
		return fmt.Sprintf("sender must be between 1 and %d characters", MaxSenderLength)
	case "content":
		return fmt.Sprintf("content must be between 1 and %d characters", MaxContentLength)
	default:
		return fmt.Sprintf("%s is invalid", fe.Field())
	}
}

// Persist stores a validated request in room and returns the canonical record.
func (p *Pipeline) Persist(ctx context.Context, room *store.Room, req SendRequest) (*Message, error) {
	rec := &store.Message{
		RoomID:  room.ID,
		Sender:  req.Sender,
		Content: req.Content,
	}
	if err := p.messages.SaveMessage(ctx, rec); err != nil {
		p.logger.Error().Err(err).Str("room", room.Code).Msg("save message")
		return nil, wrapError(ErrCodeTransport, msgInternal, err)
	}
	return messageFromRecord(rec, room.Code), nil
}

// SendMessage validates, resolves the room and persists. It does not broadcast.
func (p *Pipeline) SendMessage(ctx context.Context, req SendRequest) (*Message, error) {
	if err := p.Validate(req); err != nil {
		return nil, err
	}
	room, err := p.registry.ResolveRoom(ctx, req.RoomCode)
	if err != nil {
		return nil, err
	}
	return p.Persist(ctx, room, req)
}

// History returns up to limit messages of the room, newest first. A
// non-positive limit uses the default page size; larger ones are capped.
func (p *Pipeline) History(ctx context.Context, code string, limit int, beforeID *int64) ([]*Message, error) {
	room, err := p.registry.ResolveRoom(ctx, code)
	if err != nil {
		return nil, err
	}
	if limit <= 0 {
		limit = p.limits.Default
	}
	limit = min(limit, p.limits.Max)

	recs, err := p.messages.ListMessages(ctx, room.ID, limit, beforeID)
	if err != nil {
		p.logger.Error().Err(err).Str("room", room.Code).Msg("list messages")
		return nil, wrapError(ErrCodeTransport, msgInternal, err)
	}
	return lo.Map(recs, func(rec *store.Message, _ int) *Message {
		return messageFromRecord(rec, room.Code)
	}), nil
}

// Limits returns the effective history page sizes.
func (p *Pipeline) Limits() HistoryLimits {
	return p.limits
}
