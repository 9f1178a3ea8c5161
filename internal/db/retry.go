package db

import (
	"context"
	"errors"
	"time"

	"spadesk/internal/model"
)

// DefaultRetryAttempts bounds retries of serialization conflicts.
const DefaultRetryAttempts = 3

// Retry calls fn until it succeeds, fails with something other than
// model.ErrConcurrentModification, or attempts run out. The wait doubles each time.
func Retry(ctx context.Context, attempts int, fn func() error) error {
	if attempts <= 0 {
		attempts = DefaultRetryAttempts
	}
	wait := 20 * time.Millisecond

	var err error
	for i := 0; i < attempts; i++ {
		if err = fn(); err == nil || !errors.Is(err, model.ErrConcurrentModification) {
			return err
		}
		if i == attempts-1 {
			break
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(wait):
		}
		wait *= 2
	}
	return err
}
