package lock

import (
	"context"
	"sync"
	"time"

	"github.com/mirkobrombin/go-seckill/v1/metrics"
)

type record struct {
	holder string
	timer  *time.Timer
}

// Table is an in-process stand-in for the shared store. Every InMemory locker
// built on the same Table coordinates with the others.
type Table struct {
	mu      sync.Mutex
	records map[string]*record
}

// NewTable returns an empty lock table.
func NewTable() *Table {
	return &Table{records: make(map[string]*record)}
}

// setNX stores holder under key unless the key is present. The record is
// dropped after ttl.
func (t *Table) setNX(key, holder string, ttl time.Duration) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	if _, ok := t.records[key]; ok {
		return false
	}
	rec := &record{holder: holder}
	rec.timer = time.AfterFunc(ttl, func() {
		t.mu.Lock()
		if t.records[key] == rec {
			delete(t.records, key)
		}
		t.mu.Unlock()
	})
	t.records[key] = rec
	return true
}

// compareAndDelete removes key only while it holds holder.
func (t *Table) compareAndDelete(key, holder string) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	rec, ok := t.records[key]
	if !ok || rec.holder != holder {
		return false
	}
	rec.timer.Stop()
	delete(t.records, key)
	return true
}

// Holder returns the identity currently stored under key.
func (t *Table) Holder(key string) (string, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	rec, ok := t.records[key]
	if !ok {
		return "", false
	}
	return rec.holder, true
}

// InMemory implements Locker on top of a Table.
type InMemory struct {
	table *Table
	name  string
	key   string
}

// NewInMemory returns a locker guarding name in table. A nil table gets a
// private one.
func NewInMemory(name string, table *Table) *InMemory {
	if table == nil {
		table = NewTable()
	}
	return &InMemory{table: table, name: name, key: DefaultPrefix + name}
}

// Name implements Locker.Name.
func (l *InMemory) Name() string { return l.name }

// TryLock implements Locker.TryLock.
func (l *InMemory) TryLock(ctx context.Context, ttl time.Duration) (bool, error) {
	if ttl <= 0 {
		return false, ErrInvalidTTL
	}
	id, err := Identity(ctx)
	if err != nil {
		return false, err
	}
	if !l.table.setNX(l.key, id, ttl) {
		metrics.LockAcquireCounter.WithLabelValues(metrics.ResultContended).Inc()
		return false, nil
	}
	metrics.LockAcquireCounter.WithLabelValues(metrics.ResultAcquired).Inc()
	return true, nil
}

// Unlock implements Locker.Unlock.
func (l *InMemory) Unlock(ctx context.Context) error {
	id, err := Identity(ctx)
	if err != nil {
		return err
	}
	if l.table.compareAndDelete(l.key, id) {
		metrics.LockReleaseCounter.WithLabelValues(metrics.ResultReleased).Inc()
	} else {
		metrics.LockReleaseCounter.WithLabelValues(metrics.ResultNoop).Inc()
	}
	return nil
}
