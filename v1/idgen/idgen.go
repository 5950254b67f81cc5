// Package idgen hands out globally unique, roughly time-ordered int64 ids.
//
// An id is the number of seconds since Epoch shifted left by SeqBits, ORed
// with a per-day sequence kept in Redis under "icr:<prefix>:<yyyy:MM:dd>".
package idgen

import (
	"context"
	"fmt"
	"time"

	redis "github.com/redis/go-redis/v9"

	seckillerrors "github.com/mirkobrombin/go-seckill/v1/errors"
)

// Epoch is the zero point of the timestamp part, 2022-01-01T00:00:00Z.
var Epoch = time.Date(2022, time.January, 1, 0, 0, 0, 0, time.UTC)

// SeqBits is the width of the sequence part.
const SeqBits = 32

const defaultRedisOpTimeout = 5 * time.Second

// Generator produces ids for a business prefix.
type Generator interface {
	NextID(ctx context.Context, prefix string) (int64, error)
}

// Redis implements Generator with INCR on a daily counter.
type Redis struct {
	client  redis.UniversalClient
	now     func() time.Time
	timeout time.Duration
}

// Option configures a Redis generator.
type Option func(*Redis)

// WithClock replaces time.Now.
func WithClock(now func() time.Time) Option {
	return func(r *Redis) {
		r.now = now
	}
}

// WithTimeout sets the upper bound of the INCR round trip.
func WithTimeout(d time.Duration) Option {
	return func(r *Redis) {
		r.timeout = d
	}
}

// NewRedis returns a generator backed by client.
func NewRedis(client redis.UniversalClient, opts ...Option) *Redis {
	r := &Redis{client: client, now: time.Now, timeout: defaultRedisOpTimeout}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// NextID implements Generator.NextID.
func (r *Redis) NextID(ctx context.Context, prefix string) (int64, error) {
	now := r.now().UTC()
	ts := now.Unix() - Epoch.Unix()
	key := "icr:" + prefix + ":" + now.Format("2006:01:02")

	cctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()
	seq, err := r.client.Incr(cctx, key).Result()
	if err != nil {
		return 0, fmt.Errorf("idgen: incr %q: %w", key, seckillerrors.Classify(err))
	}
	return ts<<SeqBits | seq, nil
}

// Split returns the creation time and the sequence encoded in id.
func Split(id int64) (time.Time, int64) {
	ts := id >> SeqBits
	seq := id & (1<<SeqBits - 1)
	return time.Unix(Epoch.Unix()+ts, 0).UTC(), seq
}
