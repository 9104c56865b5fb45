package core

import (
	"errors"
	"fmt"
)

var errRetriesExhausted = errors.New("retries exhausted")

// retryOn calls fn up to attempts times while it fails with a retryable error.
// A non-retryable error is returned as is. When every attempt fails the
// result wraps both errRetriesExhausted and the last error.
func retryOn(attempts int, retryable func(error) bool, fn func(attempt int) error) error {
	if attempts < 1 {
		attempts = 1
	}
	var err error
	for attempt := 1; attempt <= attempts; attempt++ {
		if err = fn(attempt); err == nil || !retryable(err) {
			return err
		}
	}
	return fmt.Errorf("%w after %d attempts: %w", errRetriesExhausted, attempts, err)
}
