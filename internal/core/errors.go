package core

import "errors"

// Error codes for domain errors.
const (
	ErrCodeValidation            = "validation_error"
	ErrCodeInvalidRequest        = "invalid_request"
	ErrCodeRoomNotFound          = "not_found"
	ErrCodeRoomCreationExhausted = "room_creation_exhausted"
	ErrCodeTransport             = "transport_failure"
)

const (
	msgRoomNotFound          = "Room not found"
	msgRoomCreationExhausted = "Unable to create room"
	msgInternal              = "Internal server error"
	msgRoomCodeRequired      = "Room code is required"
	msgNotInRoom             = "Not in room"
)

var (
	ErrValidation            = errors.New("validation error")
	ErrInvalidRequest        = errors.New("invalid request")
	ErrRoomNotFound          = errors.New("room not found")
	ErrRoomCreationExhausted = errors.New("room creation exhausted")
	ErrTransport             = errors.New("transport failure")
)

var sentinels = map[string]error{
	ErrCodeValidation:            ErrValidation,
	ErrCodeInvalidRequest:        ErrInvalidRequest,
	ErrCodeRoomNotFound:          ErrRoomNotFound,
	ErrCodeRoomCreationExhausted: ErrRoomCreationExhausted,
	ErrCodeTransport:             ErrTransport,
}

// CoreError wraps a code and a message that is safe to show to clients.
// Err keeps the underlying cause for logs and errors.Is.
type CoreError struct {
	Code    string
	Message string
	Err     error
}

func (e *CoreError) Error() string {
	return e.Message
}

// Unwrap exposes the sentinel for Code and the cause.
func (e *CoreError) Unwrap() []error {
	errs := make([]error, 0, 2)
	if sentinel, ok := sentinels[e.Code]; ok {
		errs = append(errs, sentinel)
	}
	if e.Err != nil {
		errs = append(errs, e.Err)
	}
	return errs
}

func coreError(code, msg string) *CoreError {
	return &CoreError{Code: code, Message: msg}
}

func wrapError(code, msg string, cause error) *CoreError {
	return &CoreError{Code: code, Message: msg, Err: cause}
}

// AsCoreError returns err as a CoreError. Anything that is not already one
// becomes a transport failure with a generic message.
func AsCoreError(err error) *CoreError {
	if err == nil {
		return nil
	}
	var ce *CoreError
	if errors.As(err, &ce) {
		return ce
	}
	return wrapError(ErrCodeTransport, msgInternal, err)
}
