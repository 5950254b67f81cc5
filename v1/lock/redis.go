package lock

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	redis "github.com/redis/go-redis/v9"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	seckillerrors "github.com/mirkobrombin/go-seckill/v1/errors"
	"github.com/mirkobrombin/go-seckill/v1/metrics"
)

const defaultRedisOpTimeout = 5 * time.Second

var tracer = otel.Tracer("github.com/mirkobrombin/go-seckill/v1/lock")

// unlockScript deletes KEYS[1] only while it still holds ARGV[1].
var unlockScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
    return redis.call("DEL", KEYS[1])
else
    return 0
end
`)

// Redis implements Locker using a Redis backend.
type Redis struct {
	client  redis.UniversalClient
	name    string
	key     string
	timeout time.Duration
}

// Option configures a Redis locker.
type Option func(*options)

type options struct {
	prefix  string
	timeout time.Duration
}

// WithPrefix overrides the key prefix of the lock record.
func WithPrefix(prefix string) Option {
	return func(o *options) {
		o.prefix = prefix
	}
}

// WithTimeout sets the upper bound of a single Redis round trip.
func WithTimeout(d time.Duration) Option {
	return func(o *options) {
		o.timeout = d
	}
}

// NewRedis returns a locker guarding name on the provided client.
func NewRedis(name string, client redis.UniversalClient, opts ...Option) *Redis {
	o := options{prefix: DefaultPrefix, timeout: defaultRedisOpTimeout}
	for _, opt := range opts {
		opt(&o)
	}
	return &Redis{client: client, name: name, key: o.prefix + name, timeout: o.timeout}
}

// Name implements Locker.Name.
func (r *Redis) Name() string { return r.name }

// Key returns the store key of the lock record.
func (r *Redis) Key() string { return r.key }

// TryLock implements Locker.TryLock with SET NX and an expiry.
func (r *Redis) TryLock(ctx context.Context, ttl time.Duration) (bool, error) {
	ctx, span := tracer.Start(ctx, "Redis.TryLock", trace.WithAttributes(attribute.String("lock.key", r.key)))
	defer span.End()

	if ttl <= 0 {
		return false, ErrInvalidTTL
	}
	id, err := Identity(ctx)
	if err != nil {
		return false, err
	}
	cctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()
	ok, err := r.client.SetNX(cctx, r.key, id, ttl).Result()
	if err != nil {
		metrics.LockAcquireCounter.WithLabelValues(metrics.ResultError).Inc()
		span.RecordError(err)
		span.SetStatus(codes.Error, "set nx failed")
		return false, fmt.Errorf("lock: acquire %q: %w", r.name, seckillerrors.Classify(err))
	}
	span.SetAttributes(attribute.Bool("lock.acquired", ok))
	if !ok {
		metrics.LockAcquireCounter.WithLabelValues(metrics.ResultContended).Inc()
		return false, nil
	}
	metrics.LockAcquireCounter.WithLabelValues(metrics.ResultAcquired).Inc()
	return true, nil
}

// Unlock implements Locker.Unlock with an atomic compare-and-delete script.
func (r *Redis) Unlock(ctx context.Context) error {
	ctx, span := tracer.Start(ctx, "Redis.Unlock", trace.WithAttributes(attribute.String("lock.key", r.key)))
	defer span.End()

	id, err := Identity(ctx)
	if err != nil {
		return err
	}
	cctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()
	n, err := unlockScript.Run(cctx, r.client, []string{r.key}, id).Int64()
	if err == redis.Nil {
		err = nil
	}
	if err != nil {
		metrics.LockReleaseCounter.WithLabelValues(metrics.ResultError).Inc()
		span.RecordError(err)
		span.SetStatus(codes.Error, "unlock script failed")
		return fmt.Errorf("lock: release %q: %w", r.name, seckillerrors.Classify(err))
	}
	if n == 0 {
		metrics.LockReleaseCounter.WithLabelValues(metrics.ResultNoop).Inc()
		slog.Debug("lock: release was a no-op", "key", r.key)
		return nil
	}
	metrics.LockReleaseCounter.WithLabelValues(metrics.ResultReleased).Inc()
	return nil
}
