package adapter

import (
	"context"
	"errors"
	"sync"
	"time"
)

// ErrOutOfStock is returned by CreateOrder when the voucher has no stock left.
var ErrOutOfStock = errors.New("adapter: voucher out of stock")

// ErrVoucherNotFound is returned by CreateOrder when the voucher does not exist.
var ErrVoucherNotFound = errors.New("adapter: voucher not found")

// Voucher is a flash-sale voucher with a limited stock and a sale window.
type Voucher struct {
	VoucherID  int64     `gorm:"primaryKey;autoIncrement:false;column:voucher_id" json:"voucherId"`
	Stock      int       `gorm:"column:stock" json:"stock"`
	BeginTime  time.Time `gorm:"column:begin_time" json:"beginTime"`
	EndTime    time.Time `gorm:"column:end_time" json:"endTime"`
	CreateTime time.Time `gorm:"column:create_time;autoCreateTime" json:"createTime"`
	UpdateTime time.Time `gorm:"column:update_time;autoUpdateTime" json:"updateTime"`
}

// TableName implements gorm's Tabler.
func (Voucher) TableName() string { return "tb_seckill_voucher" }

// Order is a voucher order placed during a flash sale.
type Order struct {
	ID         int64     `gorm:"primaryKey;autoIncrement:false;column:id" json:"id"`
	UserID     int64     `gorm:"column:user_id;index:idx_user_voucher" json:"userId"`
	VoucherID  int64     `gorm:"column:voucher_id;index:idx_user_voucher" json:"voucherId"`
	PayType    int       `gorm:"column:pay_type" json:"payType"`
	Status     int       `gorm:"column:status" json:"status"`
	CreateTime time.Time `gorm:"column:create_time;autoCreateTime" json:"createTime"`
}

// TableName implements gorm's Tabler.
func (Order) TableName() string { return "tb_voucher_order" }

// Order statuses.
const (
	OrderUnpaid = 1
	OrderPaid   = 2
)

// Store abstracts the persistence of vouchers and orders.
type Store interface {
	// Voucher retrieves a voucher. The boolean reports whether it exists.
	Voucher(ctx context.Context, id int64) (Voucher, bool, error)
	// SaveVoucher inserts or replaces a voucher.
	SaveVoucher(ctx context.Context, v Voucher) error
	// CountOrders returns how many orders user placed for voucher.
	CountOrders(ctx context.Context, userID, voucherID int64) (int64, error)
	// CreateOrder decrements the voucher stock and stores o atomically.
	CreateOrder(ctx context.Context, o Order) error
}

// InMemoryStore is a simple Store implementation backed by maps.
type InMemoryStore struct {
	mu       sync.RWMutex
	vouchers map[int64]Voucher
	orders   map[int64]Order
}

// NewInMemoryStore returns a new InMemoryStore.
func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{vouchers: make(map[int64]Voucher), orders: make(map[int64]Order)}
}

// Voucher implements Store.Voucher.
func (s *InMemoryStore) Voucher(ctx context.Context, id int64) (Voucher, bool, error) {
	s.mu.RLock()
	v, ok := s.vouchers[id]
	s.mu.RUnlock()
	return v, ok, nil
}

// SaveVoucher implements Store.SaveVoucher.
func (s *InMemoryStore) SaveVoucher(ctx context.Context, v Voucher) error {
	now := time.Now()
	s.mu.Lock()
	if old, ok := s.vouchers[v.VoucherID]; ok {
		v.CreateTime = old.CreateTime
	} else {
		v.CreateTime = now
	}
	v.UpdateTime = now
	s.vouchers[v.VoucherID] = v
	s.mu.Unlock()
	return nil
}

// CountOrders implements Store.CountOrders.
func (s *InMemoryStore) CountOrders(ctx context.Context, userID, voucherID int64) (int64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var n int64
	for _, o := range s.orders {
		if o.UserID == userID && o.VoucherID == voucherID {
			n++
		}
	}
	return n, nil
}

// CreateOrder implements Store.CreateOrder.
func (s *InMemoryStore) CreateOrder(ctx context.Context, o Order) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	v, ok := s.vouchers[o.VoucherID]
	if !ok {
		return ErrVoucherNotFound
	}
	if v.Stock < 1 {
		return ErrOutOfStock
	}
	v.Stock--
	v.UpdateTime = time.Now()
	s.vouchers[o.VoucherID] = v
	if o.CreateTime.IsZero() {
		o.CreateTime = time.Now()
	}
	s.orders[o.ID] = o
	return nil
}

// Orders returns a snapshot of all stored orders.
func (s *InMemoryStore) Orders() []Order {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]Order, 0, len(s.orders))
	for _, o := range s.orders {
		out = append(out, o)
	}
	return out
}
