package cache

import (
	"context"
	"errors"
	"testing"
	"time"
)

// newRistrettoCache returns a Ristretto-backed cache for testing.
func newRistrettoCache[T any](t *testing.T) (*RistrettoCache[T], context.Context) {
	t.Helper()
	c, err := NewRistretto[T]()
	if err != nil {
		t.Fatalf("NewRistretto: %v", err)
	}
	t.Cleanup(func() { c.Close() })
	return c, context.Background()
}

func TestRistrettoCacheGetSetInvalidate(t *testing.T) {
	c, ctx := newRistrettoCache[string](t)

	if err := c.Set(ctx, "foo", "bar", time.Minute); err != nil {
		t.Fatalf("Set: %v", err)
	}
	if v, ok, err := c.Get(ctx, "foo"); err != nil || !ok || v != "bar" {
		t.Fatalf("Get: expected bar, got %v err %v", v, err)
	}
	if err := c.Invalidate(ctx, "foo"); err != nil {
		t.Fatalf("Invalidate: %v", err)
	}
	if _, ok, err := c.Get(ctx, "foo"); ok || err != nil {
		t.Fatalf("expected miss after invalidate")
	}
}

func TestRistrettoCacheExpiration(t *testing.T) {
	c, ctx := newRistrettoCache[string](t)

	if err := c.Set(ctx, "foo", "bar", 10*time.Millisecond); err != nil {
		t.Fatalf("Set: %v", err)
	}
	time.Sleep(20 * time.Millisecond)
	if _, ok, err := c.Get(ctx, "foo"); ok || err != nil {
		t.Fatalf("expected key to expire")
	}
}

func TestRistrettoCacheContext(t *testing.T) {
	c, _ := newRistrettoCache[string](t)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if err := c.Set(ctx, "a", "b", time.Minute); !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context canceled error, got %v", err)
	}
	if _, ok, err := c.Get(context.Background(), "a"); ok || err != nil {
		t.Fatalf("item should not be stored when context is canceled")
	}
}
