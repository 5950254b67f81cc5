package cache

import (
	"context"
	"log/slog"
	"time"

	"golang.org/x/sync/singleflight"
)

// DefaultLoadTimeout bounds a shared load. The load is detached from the
// caller that started it, so it outlives that caller's cancellation.
const DefaultLoadTimeout = 5 * time.Second

// LoadFunc fetches the value for key from the source of truth. The boolean
// reports whether the value exists; missing values are not cached.
type LoadFunc[T any] func(ctx context.Context, key string) (T, bool, error)

// Loader is a read-through front for a Cache.
type Loader[T any] struct {
	cache Cache[T]
	load  LoadFunc[T]
	ttl   time.Duration
	group singleflight.Group
}

type loadResult[T any] struct {
	value T
	found bool
}

// NewLoader returns a Loader that fills c from load, keeping entries for ttl.
func NewLoader[T any](c Cache[T], ttl time.Duration, load LoadFunc[T]) *Loader[T] {
	return &Loader[T]{cache: c, load: load, ttl: ttl}
}

// Get returns the cached value for key, loading it on a miss. Concurrent
// misses for the same key share one call to the load function.
func (l *Loader[T]) Get(ctx context.Context, key string) (T, bool, error) {
	if v, ok, err := l.cache.Get(ctx, key); err == nil && ok {
		return v, true, nil
	}
	ch := l.group.DoChan(key, func() (any, error) {
		lctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), DefaultLoadTimeout)
		defer cancel()
		v, ok, err := l.load(lctx, key)
		if err != nil {
			return nil, err
		}
		if ok {
			if err := l.cache.Set(lctx, key, v, l.ttl); err != nil {
				slog.Debug("cache: store loaded value failed", "key", key, "error", err)
			}
		}
		return loadResult[T]{value: v, found: ok}, nil
	})
	var zero T
	select {
	case <-ctx.Done():
		return zero, false, ctx.Err()
	case res := <-ch:
		if res.Err != nil {
			return zero, false, res.Err
		}
		r := res.Val.(loadResult[T])
		return r.value, r.found, nil
	}
}

// Invalidate drops key so the next Get reloads it.
func (l *Loader[T]) Invalidate(ctx context.Context, key string) error {
	l.group.Forget(key)
	return l.cache.Invalidate(ctx, key)
}
