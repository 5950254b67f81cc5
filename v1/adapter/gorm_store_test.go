package adapter_test

import (
	"context"
	"errors"
	"strings"
	"testing"

	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/mirkobrombin/go-seckill/v1/adapter"
	seckillerrors "github.com/mirkobrombin/go-seckill/v1/errors"
)

func newGormStore(t *testing.T) *adapter.GormStore {
	t.Helper()
	dsn := "file:" + strings.ReplaceAll(t.Name(), "/", "_") + "?mode=memory&cache=shared"
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		t.Fatalf("failed to connect database: %v", err)
	}
	sqlDB, err := db.DB()
	if err != nil {
		t.Fatalf("sql db: %v", err)
	}
	// sqlite serializes writers; a single connection avoids SQLITE_BUSY.
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = sqlDB.Close() })

	s, err := adapter.NewGormStore(db)
	if err != nil {
		t.Fatalf("NewGormStore: %v", err)
	}
	return s
}

func TestGormStoreTablesMigrated(t *testing.T) {
	s := newGormStore(t)
	seedVoucher(t, s, 3, 1)
	if n, err := s.CountOrders(context.Background(), 1, 3); err != nil || n != 0 {
		t.Fatalf("CountOrders on empty table: %d err %v", n, err)
	}
}

func TestGormStoreContextExpired(t *testing.T) {
	s := newGormStore(t)
	ctx, cancel := context.WithTimeout(context.Background(), 0)
	defer cancel()
	<-ctx.Done()
	if _, _, err := s.Voucher(ctx, 1); !errors.Is(err, seckillerrors.ErrTimeout) {
		t.Fatalf("expected ErrTimeout, got %v", err)
	}
	if err := s.CreateOrder(ctx, adapter.Order{ID: 1, VoucherID: 1}); !errors.Is(err, seckillerrors.ErrTimeout) {
		t.Fatalf("expected ErrTimeout, got %v", err)
	}
}

func TestGormStoreOrderRolledBackOnDuplicateID(t *testing.T) {
	s := newGormStore(t)
	ctx := context.Background()
	seedVoucher(t, s, 1, 5)
	if err := s.CreateOrder(ctx, adapter.Order{ID: 1, UserID: 1, VoucherID: 1}); err != nil {
		t.Fatalf("CreateOrder: %v", err)
	}
	if err := s.CreateOrder(ctx, adapter.Order{ID: 1, UserID: 2, VoucherID: 1}); err == nil {
		t.Fatal("expected primary key violation")
	}
	v, _, _ := s.Voucher(ctx, 1)
	if v.Stock != 4 {
		t.Fatalf("stock decrement must roll back with the failed insert, got %d", v.Stock)
	}
}

