package utils

import "github.com/google/uuid"

// NewID returns a random UUID string used for connection and instance ids.
func NewID() string {
	return uuid.NewString()
}
