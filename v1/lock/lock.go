package lock

import (
	"context"
	"errors"
	"strconv"
	"strings"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
)

var (
	// ErrInvalidTTL is returned when a non-positive TTL is provided.
	ErrInvalidTTL = errors.New("lock: ttl must be positive")
	// ErrNoCaller is returned when the context carries no caller identity.
	ErrNoCaller = errors.New("lock: no caller in context")
	// ErrNotAcquired is returned by Do when the lock is held by someone else.
	ErrNotAcquired = errors.New("lock: not acquired")
)

// DefaultPrefix namespaces lock records in the shared store.
const DefaultPrefix = "lock:"

// Locker is a named, non-reentrant mutex shared through an external store.
type Locker interface {
	// TryLock makes a single attempt to take the lock for ttl. It returns
	// false without error when another holder owns it.
	TryLock(ctx context.Context, ttl time.Duration) (bool, error)
	// Unlock releases the lock if it is still held by the caller in ctx.
	// Releasing a lock owned by someone else, or an expired one, is a no-op.
	Unlock(ctx context.Context) error
	// Name returns the logical resource name of the lock.
	Name() string
}

// instanceID identifies this process among all lock clients.
var instanceID = strings.ReplaceAll(uuid.NewString(), "-", "")

// InstanceID returns the process-wide identity prefix.
func InstanceID() string { return instanceID }

type callerKey struct{}

var callerSeq atomic.Uint64

// WithCaller returns a copy of ctx carrying id as the caller identity. The id
// must be unique among the callers concurrently active in this process.
func WithCaller(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, callerKey{}, id)
}

// NewCaller returns a copy of ctx carrying a fresh caller identity drawn from
// a process-wide sequence.
func NewCaller(ctx context.Context) context.Context {
	return WithCaller(ctx, strconv.FormatUint(callerSeq.Add(1), 10))
}

// CallerFrom returns the caller identity stored in ctx.
func CallerFrom(ctx context.Context) (string, bool) {
	id, ok := ctx.Value(callerKey{}).(string)
	return id, ok && id != ""
}

// Identity returns the holder identity for the caller in ctx.
func Identity(ctx context.Context) (string, error) {
	id, ok := CallerFrom(ctx)
	if !ok {
		return "", ErrNoCaller
	}
	return instanceID + "-" + id, nil
}
