package adapter

import (
	"context"
	"errors"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	seckillerrors "github.com/mirkobrombin/go-seckill/v1/errors"
)

const defaultGormOpTimeout = 5 * time.Second

// GormStore implements Store using a GORM backend.
type GormStore struct {
	db      *gorm.DB
	timeout time.Duration
}

// GormOption configures a GormStore.
type GormOption func(*gormStoreOptions)

type gormStoreOptions struct {
	timeout time.Duration
}

// WithGormTimeout sets the operation timeout for GORM calls.
func WithGormTimeout(d time.Duration) GormOption {
	return func(o *gormStoreOptions) {
		o.timeout = d
	}
}

// NewGormStore returns a new GormStore using the provided GORM DB connection.
// The voucher and order tables are migrated on construction.
func NewGormStore(db *gorm.DB, opts ...GormOption) (*GormStore, error) {
	o := gormStoreOptions{timeout: defaultGormOpTimeout}
	for _, opt := range opts {
		opt(&o)
	}
	if err := db.AutoMigrate(&Voucher{}, &Order{}); err != nil {
		return nil, err
	}
	return &GormStore{db: db, timeout: o.timeout}, nil
}

func gormErr(err error) error {
	if errors.Is(err, context.DeadlineExceeded) {
		return seckillerrors.ErrTimeout
	}
	return err
}

// Voucher implements Store.Voucher.
func (s *GormStore) Voucher(ctx context.Context, id int64) (Voucher, bool, error) {
	if err := ctx.Err(); err != nil {
		return Voucher{}, false, gormErr(err)
	}
	cctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	var v Voucher
	err := s.db.WithContext(cctx).First(&v, "voucher_id = ?", id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return Voucher{}, false, nil
	}
	if err != nil {
		return Voucher{}, false, gormErr(err)
	}
	return v, true, nil
}

// SaveVoucher implements Store.SaveVoucher.
func (s *GormStore) SaveVoucher(ctx context.Context, v Voucher) error {
	if err := ctx.Err(); err != nil {
		return gormErr(err)
	}
	cctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	err := s.db.WithContext(cctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "voucher_id"}},
		DoUpdates: clause.AssignmentColumns([]string{"stock", "begin_time", "end_time", "update_time"}),
	}).Create(&v).Error
	return gormErr(err)
}

// CountOrders implements Store.CountOrders.
func (s *GormStore) CountOrders(ctx context.Context, userID, voucherID int64) (int64, error) {
	if err := ctx.Err(); err != nil {
		return 0, gormErr(err)
	}
	cctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	var n int64
	err := s.db.WithContext(cctx).Model(&Order{}).
		Where("user_id = ? AND voucher_id = ?", userID, voucherID).
		Count(&n).Error
	if err != nil {
		return 0, gormErr(err)
	}
	return n, nil
}

// CreateOrder implements Store.CreateOrder. The stock is decremented with a
// conditional update so concurrent orders can never drive it below zero.
func (s *GormStore) CreateOrder(ctx context.Context, o Order) error {
	if err := ctx.Err(); err != nil {
		return gormErr(err)
	}
	cctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	err := s.db.WithContext(cctx).Transaction(func(tx *gorm.DB) error {
		res := tx.Model(&Voucher{}).
			Where("voucher_id = ? AND stock > 0", o.VoucherID).
			Updates(map[string]any{
				"stock":       gorm.Expr("stock - ?", 1),
				"update_time": time.Now(),
			})
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			var n int64
			if err := tx.Model(&Voucher{}).Where("voucher_id = ?", o.VoucherID).Count(&n).Error; err != nil {
				return err
			}
			if n == 0 {
				return ErrVoucherNotFound
			}
			return ErrOutOfStock
		}
		return tx.Create(&o).Error
	})
	return gormErr(err)
}
