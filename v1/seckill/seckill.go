// Package seckill places flash-sale voucher orders. The per-user order path is
// serialized across processes with a distributed lock so that a user can never
// obtain more than one order for the same voucher.
package seckill

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/mirkobrombin/go-seckill/v1/adapter"
	"github.com/mirkobrombin/go-seckill/v1/cache"
	"github.com/mirkobrombin/go-seckill/v1/idgen"
	"github.com/mirkobrombin/go-seckill/v1/lock"
	"github.com/mirkobrombin/go-seckill/v1/metrics"
)

var tracer = otel.Tracer("github.com/mirkobrombin/go-seckill/v1/seckill")

// Errors returned by Seckill. Lock and store failures are passed through.
var (
	ErrVoucherNotFound  = errors.New("seckill: voucher not found")
	ErrNotStarted       = errors.New("seckill: sale has not started")
	ErrEnded            = errors.New("seckill: sale has ended")
	ErrOutOfStock       = errors.New("seckill: out of stock")
	ErrDuplicateRequest = errors.New("seckill: an order for this user is already in progress")
	ErrAlreadyOrdered   = errors.New("seckill: user already ordered this voucher")
)

const (
	// DefaultLockTTL bounds how long the per-user order lock may be held.
	DefaultLockTTL = 10 * time.Second
	// OrderIDPrefix is the id generator namespace for orders.
	OrderIDPrefix = "order"
)

// LockFactory returns the locker guarding name.
type LockFactory func(name string) lock.Locker

// Service creates voucher orders.
type Service struct {
	store    adapter.Store
	locks    LockFactory
	ids      idgen.Generator
	vouchers *cache.Loader[adapter.Voucher]
	lockTTL  time.Duration
	now      func() time.Time
}

// Option configures a Service.
type Option func(*Service)

// WithLockTTL overrides DefaultLockTTL.
func WithLockTTL(d time.Duration) Option {
	return func(s *Service) {
		s.lockTTL = d
	}
}

// WithVoucherCache puts c in front of the store for voucher lookups.
func WithVoucherCache(c cache.Cache[adapter.Voucher], ttl time.Duration) Option {
	return func(s *Service) {
		s.vouchers = cache.NewLoader(c, ttl, s.loadVoucher)
	}
}

// WithClock replaces time.Now.
func WithClock(now func() time.Time) Option {
	return func(s *Service) {
		s.now = now
	}
}

// NewService returns a Service. Without WithVoucherCache every lookup goes to
// the store.
func NewService(store adapter.Store, locks LockFactory, ids idgen.Generator, opts ...Option) *Service {
	s := &Service{
		store:   store,
		locks:   locks,
		ids:     ids,
		lockTTL: DefaultLockTTL,
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// LockName returns the name of the lock serializing userID's orders.
func LockName(userID int64) string {
	return "order:" + strconv.FormatInt(userID, 10)
}

func (s *Service) loadVoucher(ctx context.Context, key string) (adapter.Voucher, bool, error) {
	id, err := strconv.ParseInt(key, 10, 64)
	if err != nil {
		return adapter.Voucher{}, false, err
	}
	return s.store.Voucher(ctx, id)
}

func (s *Service) voucher(ctx context.Context, id int64) (adapter.Voucher, bool, error) {
	if s.vouchers != nil {
		return s.vouchers.Get(ctx, strconv.FormatInt(id, 10))
	}
	return s.store.Voucher(ctx, id)
}

// Seckill places an order of voucherID for userID and returns its id.
//
// The sale window and a stock hint are checked first, outside the lock. The
// duplicate-order check and the order creation run while holding the lock
// named by LockName(userID). If ctx carries no lock caller a fresh one is
// attached.
func (s *Service) Seckill(ctx context.Context, userID, voucherID int64) (orderID int64, err error) {
	ctx, span := tracer.Start(ctx, "Service.Seckill", trace.WithAttributes(
		attribute.Int64("seckill.user_id", userID),
		attribute.Int64("seckill.voucher_id", voucherID),
	))
	defer func() {
		metrics.OrderCounter.WithLabelValues(outcome(err)).Inc()
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		}
		span.End()
	}()

	v, ok, err := s.voucher(ctx, voucherID)
	if err != nil {
		return 0, fmt.Errorf("seckill: load voucher %d: %w", voucherID, err)
	}
	if !ok {
		return 0, ErrVoucherNotFound
	}
	now := s.now()
	if now.Before(v.BeginTime) {
		return 0, ErrNotStarted
	}
	if now.After(v.EndTime) {
		return 0, ErrEnded
	}
	if v.Stock < 1 {
		return 0, ErrOutOfStock
	}

	if _, ok := lock.CallerFrom(ctx); !ok {
		ctx = lock.NewCaller(ctx)
	}
	err = lock.Do(ctx, s.locks(LockName(userID)), s.lockTTL, func(ctx context.Context) error {
		id, err := s.createOrder(ctx, userID, voucherID)
		orderID = id
		return err
	})
	if errors.Is(err, lock.ErrNotAcquired) {
		return 0, ErrDuplicateRequest
	}
	if err != nil {
		return 0, err
	}
	if s.vouchers != nil {
		if err := s.vouchers.Invalidate(ctx, strconv.FormatInt(voucherID, 10)); err != nil {
			slog.Warn("seckill: voucher cache invalidate failed", "voucher", voucherID, "error", err)
		}
	}
	slog.Info("seckill: order created", "order", orderID, "user", userID, "voucher", voucherID)
	return orderID, nil
}

// createOrder runs inside the per-user critical section.
func (s *Service) createOrder(ctx context.Context, userID, voucherID int64) (int64, error) {
	n, err := s.store.CountOrders(ctx, userID, voucherID)
	if err != nil {
		return 0, fmt.Errorf("seckill: count orders: %w", err)
	}
	if n > 0 {
		return 0, ErrAlreadyOrdered
	}
	id, err := s.ids.NextID(ctx, OrderIDPrefix)
	if err != nil {
		return 0, err
	}
	err = s.store.CreateOrder(ctx, adapter.Order{
		ID:        id,
		UserID:    userID,
		VoucherID: voucherID,
		Status:    adapter.OrderUnpaid,
	})
	switch {
	case errors.Is(err, adapter.ErrOutOfStock):
		return 0, ErrOutOfStock
	case errors.Is(err, adapter.ErrVoucherNotFound):
		return 0, ErrVoucherNotFound
	case err != nil:
		return 0, fmt.Errorf("seckill: create order: %w", err)
	}
	return id, nil
}

func outcome(err error) string {
	switch {
	case err == nil:
		return "created"
	case errors.Is(err, ErrVoucherNotFound):
		return "not_found"
	case errors.Is(err, ErrNotStarted), errors.Is(err, ErrEnded):
		return "closed"
	case errors.Is(err, ErrOutOfStock):
		return "out_of_stock"
	case errors.Is(err, ErrDuplicateRequest):
		return "busy"
	case errors.Is(err, ErrAlreadyOrdered):
		return "duplicate"
	default:
		return "error"
	}
}
