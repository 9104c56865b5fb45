package core

import (
	"context"
	"errors"
	"strings"

	"github.com/rs/zerolog"

	"github.com/vovakirdan/roomrelay/internal/store"
)

// DefaultMaxAttempts bounds code generation retries on collision.
const DefaultMaxAttempts = 5

// Registry creates rooms with unique short codes and looks them up.
type Registry struct {
	rooms    store.RoomStore
	codes    CodeGenerator
	attempts int
	logger   *zerolog.Logger
}

// NewRegistry builds a registry. A nil generator uses DefaultCodeLength and a
// non-positive attempts uses DefaultMaxAttempts.
func NewRegistry(rooms store.RoomStore, codes CodeGenerator, attempts int, logger *zerolog.Logger) *Registry {
	if codes == nil {
		codes = NewCodeGenerator(DefaultCodeLength)
	}
	if attempts <= 0 {
		attempts = DefaultMaxAttempts
	}
	if logger == nil {
		nop := zerolog.Nop()
		logger = &nop
	}
	return &Registry{
		rooms:    rooms,
		codes:    codes,
		attempts: attempts,
		logger:   logger,
	}
}

// CreateRoom inserts a room under a freshly generated code, regenerating the
// code when it is already taken.
func (r *Registry) CreateRoom(ctx context.Context) (*store.Room, error) {
	var room *store.Room
	err := retryOn(r.attempts, isCodeTaken, func(attempt int) error {
		code := r.codes()
		created, err := r.rooms.CreateRoom(ctx, code)
		if err != nil {
			if isCodeTaken(err) {
				r.logger.Debug().Str("room", code).Int("attempt", attempt).Msg("room code collision")
			}
			return err
		}
		room = created
		return nil
	})
	if err != nil {
		if errors.Is(err, errRetriesExhausted) {
			r.logger.Warn().Int("attempts", r.attempts).Msg("room creation exhausted")
			return nil, wrapError(ErrCodeRoomCreationExhausted, msgRoomCreationExhausted, err)
		}
		r.logger.Error().Err(err).Msg("create room")
		return nil, wrapError(ErrCodeTransport, msgInternal, err)
	}

	r.logger.Info().Str("room", room.Code).Int64("room_id", room.ID).Msg("room created")
	return room, nil
}

// FindRoomByCode returns the room with the exact code, or nil when absent.
func (r *Registry) FindRoomByCode(ctx context.Context, code string) (*store.Room, error) {
	room, err := r.rooms.GetRoomByCode(ctx, code)
	if err != nil {
		r.logger.Error().Err(err).Str("room", code).Msg("lookup room")
		return nil, wrapError(ErrCodeTransport, msgInternal, err)
	}
	return room, nil
}

// ResolveRoom is FindRoomByCode with absence reported as not_found.
func (r *Registry) ResolveRoom(ctx context.Context, code string) (*store.Room, error) {
	code = strings.TrimSpace(code)
	if code == "" {
		return nil, coreError(ErrCodeInvalidRequest, msgRoomCodeRequired)
	}
	room, err := r.FindRoomByCode(ctx, code)
	if err != nil {
		return nil, err
	}
	if room == nil {
		return nil, coreError(ErrCodeRoomNotFound, msgRoomNotFound)
	}
	return room, nil
}

func isCodeTaken(err error) bool {
	return errors.Is(err, store.ErrCodeTaken)
}
