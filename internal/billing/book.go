package billing

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/dasarishourya007-oss/vArogra-sub000/domain"
)

// Book keeps the open bills of all terminals, keyed by bill id.
type Book struct {
	items   Items
	taxRate decimal.Decimal
	now     func() time.Time

	mu    sync.RWMutex
	bills map[string]*Bill
}

func NewBook(items Items, taxRate decimal.Decimal) *Book {
	return &Book{items: items, taxRate: taxRate, now: time.Now, bills: make(map[string]*Bill)}
}

// Open starts a new bill for a pharmacy.
func (bk *Book) Open(pharmacyID string, flow domain.Flow, createdBy *string) *Bill {
	b := NewBill(bk.items, pharmacyID, flow, bk.taxRate, createdBy)
	b.now = bk.now
	b.touched = bk.now()
	bk.mu.Lock()
	bk.bills[b.id] = b
	bk.mu.Unlock()
	return b
}

// Get returns an open bill. Bills of other pharmacies are reported as not found.
func (bk *Book) Get(pharmacyID, id string) (*Bill, error) {
	bk.mu.RLock()
	b, ok := bk.bills[id]
	bk.mu.RUnlock()
	if !ok || b.pharmacyID != pharmacyID {
		return nil, fmt.Errorf("bill %s: %w", id, domain.ErrNotFound)
	}
	return b, nil
}

// Close forgets a bill.
func (bk *Book) Close(pharmacyID, id string) error {
	bk.mu.Lock()
	defer bk.mu.Unlock()
	b, ok := bk.bills[id]
	if !ok || b.pharmacyID != pharmacyID {
		return fmt.Errorf("bill %s: %w", id, domain.ErrNotFound)
	}
	delete(bk.bills, id)
	return nil
}

// Prune forgets bills untouched for longer than idle and returns how many
// were dropped. Bills frozen for checkout are kept.
func (bk *Book) Prune(idle time.Duration) int {
	cutoff := bk.now().Add(-idle)
	bk.mu.Lock()
	defer bk.mu.Unlock()
	n := 0
	for id, b := range bk.bills {
		touched, free := b.idleSince()
		if free && touched.Before(cutoff) {
			delete(bk.bills, id)
			n++
		}
	}
	return n
}

// RunPruner calls Prune every interval until ctx is done.
func (bk *Book) RunPruner(ctx context.Context, interval, idle time.Duration, logger *zap.Logger) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if n := bk.Prune(idle); n > 0 {
				logger.Info("dropped idle bills", zap.Int("count", n), zap.Duration("idle", idle))
			}
		}
	}
}
