package errors

import (
	"context"
	"errors"
	"fmt"

	redis "github.com/redis/go-redis/v9"
)

var (
	ErrTimeout          = errors.New("timeout")
	ErrConnectionClosed = errors.New("connection closed")
	// ErrStoreUnavailable reports a store round trip that failed for any other
	// reason. The outcome of the operation is unknown to the caller.
	ErrStoreUnavailable = errors.New("store unavailable")
)

// Classify maps a Redis client error to one of the sentinels above. It
// returns nil for a nil error and passes context cancellation through.
func Classify(err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, context.DeadlineExceeded):
		return ErrTimeout
	case errors.Is(err, context.Canceled):
		return err
	case errors.Is(err, redis.ErrClosed):
		return ErrConnectionClosed
	default:
		return fmt.Errorf("%w: %w", ErrStoreUnavailable, err)
	}
}
