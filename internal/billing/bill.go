// Package billing builds bills line by line before checkout. Bills live in
// memory only; nothing here touches stock.
package billing

import (
	"context"
	"fmt"
	"math"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/dasarishourya007-oss/vArogra-sub000/domain"
)

// Items resolves catalog items for new lines.
type Items interface {
	Get(ctx context.Context, id string) (domain.Medicine, error)
}

// Customer is the buyer attached to a bill. ID is set only when the buyer
// is a registered customer.
type Customer struct {
	ID    *string `json:"id,omitempty"`
	Name  string  `json:"name"`
	Phone string  `json:"phone"`
}

// Snapshot is a consistent copy of a bill.
type Snapshot struct {
	ID         string            `json:"id"`
	PharmacyID string            `json:"pharmacy_id"`
	Flow       domain.Flow       `json:"flow"`
	CreatedBy  *string           `json:"created_by,omitempty"`
	Lines      []domain.SaleLine `json:"lines"`
	Customer   Customer          `json:"customer"`
	Totals     domain.Totals     `json:"totals"`
}

// Bill is an open sale. All methods are safe for concurrent use and apply
// in call order. While frozen for checkout, mutations fail with
// domain.ErrCheckoutInProgress.
type Bill struct {
	mu         sync.Mutex
	id         string
	pharmacyID string
	flow       domain.Flow
	createdBy  *string
	taxRate    decimal.Decimal
	items      Items
	now        func() time.Time

	lines    []domain.SaleLine
	customer Customer
	frozen   bool
	touched  time.Time
}

// NewBill opens an empty bill for a pharmacy.
func NewBill(items Items, pharmacyID string, flow domain.Flow, taxRate decimal.Decimal, createdBy *string) *Bill {
	if flow == "" {
		flow = domain.FlowPOS
	}
	b := &Bill{
		id:         uuid.New().String(),
		pharmacyID: pharmacyID,
		flow:       flow,
		createdBy:  createdBy,
		taxRate:    taxRate,
		items:      items,
		now:        time.Now,
	}
	b.touched = b.now()
	return b
}

func (b *Bill) ID() string { return b.id }

func (b *Bill) PharmacyID() string { return b.pharmacyID }

// AddLine adds quantity of an item at the given unit. A line for the same
// item and unit is merged by summing quantities and keeps its original
// price. A merge that would overflow the quantity fails with
// domain.ErrInvalidQuantity. A rejected call leaves the bill unchanged.
func (b *Bill) AddLine(ctx context.Context, itemID string, unit domain.SaleUnit, quantity int) (domain.SaleLine, error) {
	if !unit.Valid() {
		return domain.SaleLine{}, fmt.Errorf("%w: %q", domain.ErrInvalidSaleUnit, unit)
	}
	if quantity < 1 {
		return domain.SaleLine{}, domain.ErrInvalidQuantity
	}

	item, err := b.items.Get(ctx, itemID)
	if err != nil {
		return domain.SaleLine{}, err
	}
	if item.PharmacyID != b.pharmacyID {
		return domain.SaleLine{}, fmt.Errorf("medicine %s: %w", itemID, domain.ErrNotFound)
	}
	if unit == domain.UnitSubUnit && !item.Form.Divisible() {
		return domain.SaleLine{}, &domain.InvalidSaleUnitError{ItemID: item.ID, Form: item.Form}
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	if b.frozen {
		return domain.SaleLine{}, domain.ErrCheckoutInProgress
	}

	for i := range b.lines {
		if b.lines[i].ItemID == item.ID && b.lines[i].Unit == unit {
			if quantity > math.MaxInt-b.lines[i].Quantity {
				return domain.SaleLine{}, domain.ErrInvalidQuantity
			}
			b.lines[i].Quantity += quantity
			b.touched = b.now()
			return b.lines[i], nil
		}
	}

	price := item.PackPrice
	if unit == domain.UnitSubUnit {
		price = item.SubUnitPrice()
	}
	line := domain.SaleLine{
		ID:        uuid.New().String(),
		ItemID:    item.ID,
		ItemName:  item.BrandName,
		Unit:      unit,
		Quantity:  quantity,
		UnitPrice: price,
		PackSize:  item.PackSize,
	}
	b.lines = append(b.lines, line)
	b.touched = b.now()
	return line, nil
}

// UpdateQuantity sets a line's quantity. Values below one are clamped to one.
func (b *Bill) UpdateQuantity(lineID string, quantity int) (domain.SaleLine, error) {
	if quantity < 1 {
		quantity = 1
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.frozen {
		return domain.SaleLine{}, domain.ErrCheckoutInProgress
	}
	i := b.indexOf(lineID)
	if i < 0 {
		return domain.SaleLine{}, domain.ErrLineNotFound
	}
	b.lines[i].Quantity = quantity
	b.touched = b.now()
	return b.lines[i], nil
}

func (b *Bill) RemoveLine(lineID string) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.frozen {
		return domain.ErrCheckoutInProgress
	}
	i := b.indexOf(lineID)
	if i < 0 {
		return domain.ErrLineNotFound
	}
	b.lines = append(b.lines[:i], b.lines[i+1:]...)
	b.touched = b.now()
	return nil
}

func (b *Bill) indexOf(lineID string) int {
	for i, l := range b.lines {
		if l.ID == lineID {
			return i
		}
	}
	return -1
}

// Lines returns a copy of the bill lines in insertion order.
func (b *Bill) Lines() []domain.SaleLine {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]domain.SaleLine{}, b.lines...)
}

// Totals recomputes subtotal, tax and total from the current lines.
func (b *Bill) Totals() domain.Totals {
	b.mu.Lock()
	defer b.mu.Unlock()
	return domain.ComputeTotals(b.lines, b.taxRate)
}

// SetCustomer attaches an unregistered buyer.
func (b *Bill) SetCustomer(name, phone string) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.frozen {
		return domain.ErrCheckoutInProgress
	}
	b.customer = Customer{Name: strings.TrimSpace(name), Phone: strings.TrimSpace(phone)}
	b.touched = b.now()
	return nil
}

// LinkCustomer attaches a registered customer; checkout appends the sale to
// their history.
func (b *Bill) LinkCustomer(c domain.Customer) error {
	if c.PharmacyID != b.pharmacyID {
		return fmt.Errorf("customer %s: %w", c.ID, domain.ErrNotFound)
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.frozen {
		return domain.ErrCheckoutInProgress
	}
	id := c.ID
	b.customer = Customer{ID: &id, Name: c.Name, Phone: c.Phone}
	b.touched = b.now()
	return nil
}

// Discard clears lines and customer.
func (b *Bill) Discard() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.frozen {
		return domain.ErrCheckoutInProgress
	}
	b.lines = nil
	b.customer = Customer{}
	b.touched = b.now()
	return nil
}

// Snapshot returns a copy of the bill and its totals.
func (b *Bill) Snapshot() Snapshot {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.snapshotLocked()
}

func (b *Bill) snapshotLocked() Snapshot {
	c := b.customer
	if c.ID != nil {
		id := *c.ID
		c.ID = &id
	}
	return Snapshot{
		ID:         b.id,
		PharmacyID: b.pharmacyID,
		Flow:       b.flow,
		CreatedBy:  b.createdBy,
		Lines:      append([]domain.SaleLine{}, b.lines...),
		Customer:   c,
		Totals:     domain.ComputeTotals(b.lines, b.taxRate),
	}
}

// Freeze blocks mutations and returns the state to check out. It fails
// with domain.ErrCheckoutInProgress if the bill is already frozen.
func (b *Bill) Freeze() (Snapshot, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.frozen {
		return Snapshot{}, domain.ErrCheckoutInProgress
	}
	b.frozen = true
	return b.snapshotLocked(), nil
}

// Thaw re-enables mutations without changing the bill.
func (b *Bill) Thaw() {
	b.mu.Lock()
	b.frozen = false
	b.mu.Unlock()
}

// Settle empties a frozen bill after a committed checkout and thaws it.
func (b *Bill) Settle() {
	b.mu.Lock()
	b.lines = nil
	b.customer = Customer{}
	b.frozen = false
	b.touched = b.now()
	b.mu.Unlock()
}

// idleSince reports when the bill was last changed and whether it is free
// to be dropped. Frozen bills are never idle.
func (b *Bill) idleSince() (time.Time, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.touched, !b.frozen
}
