package lock

import (
	"context"
	"log/slog"
	"time"

	"github.com/mirkobrombin/go-seckill/v1/metrics"
)

// Do runs fn while holding l. It returns ErrNotAcquired without running fn
// when the lock is contended. The lock is released on every exit path of fn,
// including a panic. A failed release is logged and left to the TTL.
func Do(ctx context.Context, l Locker, ttl time.Duration, fn func(ctx context.Context) error) error {
	ok, err := l.TryLock(ctx, ttl)
	if err != nil {
		return err
	}
	if !ok {
		return ErrNotAcquired
	}
	start := time.Now()
	defer func() {
		metrics.LockHeldHistogram.Observe(time.Since(start).Seconds())
		if err := l.Unlock(context.WithoutCancel(ctx)); err != nil {
			slog.Warn("lock: release failed, record left to expire", "lock", l.Name(), "error", err)
		}
	}()
	return fn(ctx)
}
