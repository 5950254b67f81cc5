package lock

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/prometheus/client_golang/prometheus/testutil"
	redis "github.com/redis/go-redis/v9"
	"golang.org/x/sync/errgroup"

	seckillerrors "github.com/mirkobrombin/go-seckill/v1/errors"
	"github.com/mirkobrombin/go-seckill/v1/metrics"
)

func newRedisClient(t *testing.T) (*miniredis.Miniredis, *redis.Client) {
	t.Helper()
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("miniredis run: %v", err)
	}
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() {
		_ = client.Close()
		mr.Close()
	})
	return mr, client
}

func TestRedisTryLockWritesRecord(t *testing.T) {
	mr, client := newRedisClient(t)
	ctx := WithCaller(context.Background(), "7")
	l := NewRedis("order:42", client)

	ok, err := l.TryLock(ctx, 10*time.Second)
	if err != nil || !ok {
		t.Fatalf("trylock: %v ok %v", err, ok)
	}
	if l.Key() != "lock:order:42" {
		t.Fatalf("unexpected key %q", l.Key())
	}
	got, err := mr.Get("lock:order:42")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got != InstanceID()+"-7" {
		t.Fatalf("unexpected holder %q", got)
	}
	if ttl := mr.TTL("lock:order:42"); ttl != 10*time.Second {
		t.Fatalf("unexpected ttl %v", ttl)
	}
}

func TestRedisContentionThenHandover(t *testing.T) {
	_, client := newRedisClient(t)
	a := NewCaller(context.Background())
	b := NewCaller(context.Background())
	la := NewRedis("order:42", client)
	lb := NewRedis("order:42", client)

	if ok, err := la.TryLock(a, 10*time.Second); err != nil || !ok {
		t.Fatalf("a trylock: %v ok %v", err, ok)
	}
	if ok, err := lb.TryLock(b, 10*time.Second); err != nil || ok {
		t.Fatalf("b should be contended, ok %v err %v", ok, err)
	}
	if err := la.Unlock(a); err != nil {
		t.Fatalf("a unlock: %v", err)
	}
	if ok, err := lb.TryLock(b, 10*time.Second); err != nil || !ok {
		t.Fatalf("b should acquire after release, ok %v err %v", ok, err)
	}
}

func TestRedisMutualExclusion(t *testing.T) {
	_, client := newRedisClient(t)
	var winners atomic.Int32
	var g errgroup.Group
	for i := 0; i < 50; i++ {
		g.Go(func() error {
			ctx := NewCaller(context.Background())
			ok, err := NewRedis("order:42", client).TryLock(ctx, 10*time.Second)
			if ok {
				winners.Add(1)
			}
			return err
		})
	}
	if err := g.Wait(); err != nil {
		t.Fatalf("trylock: %v", err)
	}
	if n := winners.Load(); n != 1 {
		t.Fatalf("expected exactly one winner, got %d", n)
	}
}

func TestRedisForeignUnlockIsNoop(t *testing.T) {
	mr, client := newRedisClient(t)
	owner := NewCaller(context.Background())
	other := NewCaller(context.Background())
	l := NewRedis("k", client)

	if ok, _ := l.TryLock(owner, time.Minute); !ok {
		t.Fatal("trylock failed")
	}
	before := testutil.ToFloat64(metrics.LockReleaseCounter.WithLabelValues(metrics.ResultNoop))
	if err := l.Unlock(other); err != nil {
		t.Fatalf("foreign unlock must not fail: %v", err)
	}
	if got, _ := mr.Get("lock:k"); got != mustIdentity(t, owner) {
		t.Fatalf("record changed by foreign release: %q", got)
	}
	if after := testutil.ToFloat64(metrics.LockReleaseCounter.WithLabelValues(metrics.ResultNoop)); after != before+1 {
		t.Fatalf("expected noop release to be counted, %v -> %v", before, after)
	}
}

func TestRedisIdempotentUnlockAndReacquire(t *testing.T) {
	mr, client := newRedisClient(t)
	ctx := NewCaller(context.Background())
	l := NewRedis("k", client)

	if ok, _ := l.TryLock(ctx, time.Minute); !ok {
		t.Fatal("trylock failed")
	}
	if err := l.Unlock(ctx); err != nil {
		t.Fatalf("unlock: %v", err)
	}
	if err := l.Unlock(ctx); err != nil {
		t.Fatalf("second unlock: %v", err)
	}
	if mr.Exists("lock:k") {
		t.Fatal("record should be gone")
	}
	if ok, err := l.TryLock(ctx, time.Minute); err != nil || !ok {
		t.Fatalf("reacquire: %v ok %v", err, ok)
	}
}

func TestRedisTTLExpiry(t *testing.T) {
	mr, client := newRedisClient(t)
	a := NewCaller(context.Background())
	b := NewCaller(context.Background())
	l := NewRedis("X", client)

	if ok, _ := l.TryLock(a, time.Second); !ok {
		t.Fatal("a trylock failed")
	}
	mr.FastForward(500 * time.Millisecond)
	if ok, _ := l.TryLock(b, time.Second); ok {
		t.Fatal("b must not acquire before expiry")
	}
	mr.FastForward(time.Second)
	if ok, err := l.TryLock(b, time.Second); err != nil || !ok {
		t.Fatalf("b should acquire after expiry, ok %v err %v", ok, err)
	}
	// a wakes up late and releases: b's record must survive.
	if err := l.Unlock(a); err != nil {
		t.Fatalf("late unlock: %v", err)
	}
	if got, _ := mr.Get("lock:X"); got != mustIdentity(t, b) {
		t.Fatalf("late release removed b's lock, holder %q", got)
	}
}

func TestRedisInvalidInput(t *testing.T) {
	_, client := newRedisClient(t)
	l := NewRedis("k", client)
	if _, err := l.TryLock(NewCaller(context.Background()), 0); !errors.Is(err, ErrInvalidTTL) {
		t.Fatalf("expected ErrInvalidTTL, got %v", err)
	}
	if _, err := l.TryLock(context.Background(), time.Second); !errors.Is(err, ErrNoCaller) {
		t.Fatalf("expected ErrNoCaller, got %v", err)
	}
	if err := l.Unlock(context.Background()); !errors.Is(err, ErrNoCaller) {
		t.Fatalf("expected ErrNoCaller, got %v", err)
	}
}

func TestRedisCustomPrefix(t *testing.T) {
	mr, client := newRedisClient(t)
	l := NewRedis("k", client, WithPrefix("seckill:lock:"))
	if ok, _ := l.TryLock(NewCaller(context.Background()), time.Minute); !ok {
		t.Fatal("trylock failed")
	}
	if !mr.Exists("seckill:lock:k") {
		t.Fatal("expected prefixed key")
	}
}

func TestRedisStoreUnreachable(t *testing.T) {
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("miniredis run: %v", err)
	}
	client := redis.NewClient(&redis.Options{Addr: mr.Addr(), MaxRetries: -1})
	defer client.Close()
	mr.Close()

	ctx := NewCaller(context.Background())
	l := NewRedis("k", client, WithTimeout(time.Second))
	ok, err := l.TryLock(ctx, time.Second)
	if ok {
		t.Fatal("unreachable store must never report acquired")
	}
	if !errors.Is(err, seckillerrors.ErrStoreUnavailable) {
		t.Fatalf("expected ErrStoreUnavailable, got %v", err)
	}
	if err := l.Unlock(ctx); !errors.Is(err, seckillerrors.ErrStoreUnavailable) {
		t.Fatalf("expected ErrStoreUnavailable on release, got %v", err)
	}
}

func TestRedisClosedClient(t *testing.T) {
	_, client := newRedisClient(t)
	l := NewRedis("k", client)
	_ = client.Close()
	if _, err := l.TryLock(NewCaller(context.Background()), time.Second); !errors.Is(err, seckillerrors.ErrConnectionClosed) {
		t.Fatalf("expected ErrConnectionClosed, got %v", err)
	}
}

func TestDoWithRedis(t *testing.T) {
	mr, client := newRedisClient(t)
	ctx := NewCaller(context.Background())
	l := NewRedis("order:1", client)
	err := Do(ctx, l, 10*time.Second, func(ctx context.Context) error {
		if !mr.Exists("lock:order:1") {
			t.Error("lock record missing inside critical section")
		}
		return nil
	})
	if err != nil {
		t.Fatalf("do: %v", err)
	}
	if mr.Exists("lock:order:1") {
		t.Fatal("lock record left after Do")
	}
}
