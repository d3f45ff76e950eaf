package service

import (
	"context"
	"errors"
	"time"

	"github.com/grupoimpulso/seat-sales/internal/core/domain"
)

const (
	readAttempts  = 3
	readBaseDelay = 25 * time.Millisecond

	// transitionAttempts bounds how often a lost compare-and-set is re-evaluated.
	transitionAttempts = 3
)

// readWithRetry retries an idempotent read on transient store errors with
// exponential backoff. Domain errors are returned at once.
func readWithRetry[T any](ctx context.Context, read func(context.Context) (T, error)) (T, error) {
	var (
		out T
		err error
	)
	delay := readBaseDelay
	for attempt := 1; ; attempt++ {
		out, err = read(ctx)
		if err == nil || !retryable(err) || attempt == readAttempts {
			return out, err
		}

		select {
		case <-ctx.Done():
			return out, ctx.Err()
		case <-time.After(delay):
		}
		delay *= 2
	}
}

func retryable(err error) bool {
	switch {
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return false
	case errors.Is(err, domain.ErrNotFound):
		return false
	}
	return true
}
