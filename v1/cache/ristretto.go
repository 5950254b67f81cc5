package cache

import (
	"context"
	"time"

	"github.com/dgraph-io/ristretto"
)

// RistrettoCache implements Cache using dgraph-io/ristretto. Every entry has
// a cost of one, so MaxCost bounds the number of entries.
type RistrettoCache[T any] struct {
	c *ristretto.Cache
}

// RistrettoOption configures the underlying ristretto cache.
type RistrettoOption func(*ristretto.Config)

// WithMaxEntries bounds the number of cached entries.
func WithMaxEntries(n int64) RistrettoOption {
	return func(c *ristretto.Config) {
		c.MaxCost = n
		c.NumCounters = n * 10
	}
}

// NewRistretto returns a Cache backed by ristretto.
func NewRistretto[T any](opts ...RistrettoOption) (*RistrettoCache[T], error) {
	cfg := &ristretto.Config{
		NumCounters: 1e5, // ten times the expected number of entries.
		MaxCost:     1e4,
		BufferItems: 64,
	}
	for _, opt := range opts {
		opt(cfg)
	}
	rc, err := ristretto.NewCache(cfg)
	if err != nil {
		return nil, err
	}
	return &RistrettoCache[T]{c: rc}, nil
}

// Get implements Cache.Get.
func (r *RistrettoCache[T]) Get(ctx context.Context, key string) (T, bool, error) {
	var zero T
	if err := ctx.Err(); err != nil {
		return zero, false, err
	}
	v, ok := r.c.Get(key)
	if !ok {
		return zero, false, nil
	}
	val, ok := v.(T)
	return val, ok, nil
}

// Set implements Cache.Set.
func (r *RistrettoCache[T]) Set(ctx context.Context, key string, value T, ttl time.Duration) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	r.c.SetWithTTL(key, value, 1, ttl)
	r.c.Wait()
	return nil
}

// Invalidate implements Cache.Invalidate.
func (r *RistrettoCache[T]) Invalidate(ctx context.Context, key string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	r.c.Del(key)
	r.c.Wait()
	return nil
}

// Close releases resources held by the cache.
func (r *RistrettoCache[T]) Close() {
	r.c.Close()
}
