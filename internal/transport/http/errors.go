package http

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/vovakirdan/roomrelay/internal/core"
)

// ErrorResponse represents an error response body.
type ErrorResponse struct {
	Error string `json:"error"`
	Code  string `json:"code,omitempty"`
}

func statusFor(ce *core.CoreError) int {
	switch ce.Code {
	case core.ErrCodeValidation, core.ErrCodeInvalidRequest:
		return http.StatusBadRequest
	case core.ErrCodeRoomNotFound:
		return http.StatusNotFound
	case core.ErrCodeRoomCreationExhausted:
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

func writeError(c *gin.Context, err error) {
	ce := core.AsCoreError(err)
	c.JSON(statusFor(ce), ErrorResponse{Error: ce.Message, Code: ce.Code})
}
