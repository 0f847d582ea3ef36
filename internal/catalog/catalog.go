// Package catalog owns the sellable medicines of each pharmacy and every
// change to their stock.
package catalog

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/dasarishourya007-oss/vArogra-sub000/domain"
	"github.com/dasarishourya007-oss/vArogra-sub000/internal/events"
	"github.com/dasarishourya007-oss/vArogra-sub000/internal/store"
)

const defaultExpiryWindow = 30

type Catalog struct {
	store  store.Store
	hub    *events.Hub
	logger *zap.Logger
	now    func() time.Time
}

func New(st store.Store, hub *events.Hub, logger *zap.Logger) *Catalog {
	return &Catalog{store: st, hub: hub, logger: logger, now: func() time.Time { return time.Now().UTC() }}
}

// Search returns the items of a pharmacy whose brand name, generic name or
// composition contains query, ignoring case, in creation order. A blank
// query matches nothing.
func (c *Catalog) Search(ctx context.Context, pharmacyID, query string) ([]domain.Medicine, error) {
	q := strings.ToLower(strings.TrimSpace(query))
	if q == "" {
		return []domain.Medicine{}, nil
	}
	all, err := c.store.ListMedicines(ctx, pharmacyID)
	if err != nil {
		return nil, err
	}
	out := []domain.Medicine{}
	for _, m := range all {
		if strings.Contains(strings.ToLower(m.BrandName), q) ||
			strings.Contains(strings.ToLower(m.GenericName), q) ||
			strings.Contains(strings.ToLower(m.Composition), q) {
			out = append(out, m)
		}
	}
	return out, nil
}

func (c *Catalog) Get(ctx context.Context, id string) (domain.Medicine, error) {
	return c.store.Medicine(ctx, id)
}

// List returns every item of a pharmacy in creation order.
func (c *Catalog) List(ctx context.Context, pharmacyID string) ([]domain.Medicine, error) {
	return c.store.ListMedicines(ctx, pharmacyID)
}

// Upsert validates and stores an item. New items get an id and their
// opening stock. For existing items the stored stock is kept; stock only
// moves through AdjustStock.
func (c *Catalog) Upsert(ctx context.Context, m domain.Medicine) (domain.Medicine, error) {
	if err := validate(&m); err != nil {
		return domain.Medicine{}, err
	}
	now := c.now()
	m.UpdatedAt = now

	if m.ID == "" {
		m.ID = uuid.New().String()
		m.CreatedAt = now
	} else {
		existing, err := c.store.Medicine(ctx, m.ID)
		switch {
		case err == nil:
			if existing.PharmacyID != m.PharmacyID {
				return domain.Medicine{}, fmt.Errorf("medicine %s: %w", m.ID, domain.ErrNotFound)
			}
			m.CreatedAt = existing.CreatedAt
			m.Stock = existing.Stock
		case errors.Is(err, domain.ErrNotFound):
			m.CreatedAt = now
		default:
			return domain.Medicine{}, err
		}
	}

	if err := c.store.SaveMedicine(ctx, m); err != nil {
		return domain.Medicine{}, err
	}
	return m, nil
}

func validate(m *domain.Medicine) error {
	m.BrandName = strings.TrimSpace(m.BrandName)
	if m.PharmacyID == "" {
		return domain.Validationf("pharmacy_id is required")
	}
	if m.BrandName == "" {
		return domain.Validationf("brand_name is required")
	}
	form, ok := domain.ParseForm(string(m.Form))
	if !ok {
		return domain.Validationf("unknown form %q", m.Form)
	}
	m.Form = form
	if m.PackSize < 1 {
		return domain.Validationf("pack_size must be at least 1")
	}
	if m.PackPrice.IsNegative() {
		return domain.Validationf("pack_price must not be negative")
	}
	if m.Stock.IsNegative() {
		return domain.Validationf("stock must not be negative")
	}
	m.Stock = m.Stock.Round(2)
	return nil
}

// Remove deletes an item. Open bills that still reference it fail at
// checkout with domain.ErrNotFound.
func (c *Catalog) Remove(ctx context.Context, id string) error {
	return c.store.DeleteMedicine(ctx, id)
}

// Adjustment is a signed stock change in packs.
type Adjustment struct {
	ItemID    string
	Delta     decimal.Decimal
	Reason    string
	Reference *string
	By        *string
}

// AdjustStock applies a whole-pack adjustment in its own transaction.
func (c *Catalog) AdjustStock(ctx context.Context, adj Adjustment) (domain.Medicine, error) {
	if !adj.Delta.IsInteger() || adj.Delta.IsZero() {
		return domain.Medicine{}, domain.Validationf("stock adjustment must be a non-zero whole number of packs")
	}
	if adj.Reason == "" {
		adj.Reason = domain.MovementAdjustment
		if adj.Delta.IsPositive() {
			adj.Reason = domain.MovementRestock
		}
	}

	var mv domain.StockMovement
	err := c.store.Atomic(ctx, func(tx store.Tx) error {
		var err error
		mv, err = c.AdjustStockTx(ctx, tx, adj)
		return err
	})
	if err != nil {
		return domain.Medicine{}, err
	}
	c.Notify(ctx, mv)
	return c.store.Medicine(ctx, adj.ItemID)
}

// AdjustStockTx applies adj inside the caller's transaction. The new stock
// is rounded to two decimals and may not go below zero.
func (c *Catalog) AdjustStockTx(ctx context.Context, tx store.Tx, adj Adjustment) (domain.StockMovement, error) {
	m, err := tx.MedicineForUpdate(ctx, adj.ItemID)
	if err != nil {
		return domain.StockMovement{}, err
	}
	before := m.Stock
	after := before.Add(adj.Delta).Round(2)
	if after.IsNegative() {
		return domain.StockMovement{}, &domain.InsufficientStockError{
			ItemID:    m.ID,
			Requested: adj.Delta.Neg(),
			Available: before,
		}
	}

	now := c.now()
	if err := tx.SetStock(ctx, m.ID, after, now); err != nil {
		return domain.StockMovement{}, err
	}
	mv := domain.StockMovement{
		ID:          uuid.New().String(),
		ItemID:      m.ID,
		PharmacyID:  m.PharmacyID,
		Change:      after.Sub(before),
		StockBefore: before,
		StockAfter:  after,
		Reason:      adj.Reason,
		Reference:   adj.Reference,
		CreatedBy:   adj.By,
		CreatedAt:   now,
	}
	if err := tx.LogMovement(ctx, mv); err != nil {
		return domain.StockMovement{}, err
	}
	return mv, nil
}

// Movements returns the stock audit trail of an item, oldest first.
func (c *Catalog) Movements(ctx context.Context, itemID string) ([]domain.StockMovement, error) {
	return c.store.ListMovements(ctx, itemID)
}

// ExpiringWithin lists in-stock items that expire within days, earliest
// first. days <= 0 uses a 30 day window.
func (c *Catalog) ExpiringWithin(ctx context.Context, pharmacyID string, days int) ([]domain.Medicine, error) {
	if days <= 0 {
		days = defaultExpiryWindow
	}
	all, err := c.store.ListMedicines(ctx, pharmacyID)
	if err != nil {
		return nil, err
	}
	limit := c.now().AddDate(0, 0, days)
	out := []domain.Medicine{}
	for _, m := range all {
		if m.ExpiryDate == nil || !m.Stock.IsPositive() || m.ExpiryDate.After(limit) {
			continue
		}
		out = append(out, m)
	}
	slices.SortStableFunc(out, func(a, b domain.Medicine) int {
		return a.ExpiryDate.Compare(*b.ExpiryDate)
	})
	return out, nil
}

// Notify publishes committed stock movements to subscribers.
func (c *Catalog) Notify(ctx context.Context, movements ...domain.StockMovement) {
	if c.hub == nil {
		return
	}
	for _, mv := range movements {
		e, err := events.New(events.StockChanged, mv.PharmacyID, derefOr(mv.Reference), mv)
		if err == nil {
			err = c.hub.Publish(ctx, e)
		}
		if err != nil {
			c.logger.Warn("failed to publish stock change", zap.String("item_id", mv.ItemID), zap.Error(err))
		}
	}
}

// Subscribe calls fn with every committed stock movement until the
// returned function is called.
func (c *Catalog) Subscribe(fn func(domain.StockMovement)) (unsubscribe func()) {
	if c.hub == nil {
		return func() {}
	}
	return c.hub.Subscribe(func(e events.Event) {
		if e.Type != events.StockChanged {
			return
		}
		var mv domain.StockMovement
		if err := e.Decode(&mv); err != nil {
			c.logger.Warn("undecodable stock event", zap.String("event_id", e.ID), zap.Error(err))
			return
		}
		fn(mv)
	})
}

func derefOr(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
