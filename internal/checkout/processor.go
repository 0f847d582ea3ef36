// Package checkout turns a bill into a committed order and takes the sold
// quantities out of stock in one transaction.
package checkout

import (
	"cmp"
	"context"
	"errors"
	"fmt"
	"slices"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/dasarishourya007-oss/vArogra-sub000/domain"
	"github.com/dasarishourya007-oss/vArogra-sub000/internal/alert"
	"github.com/dasarishourya007-oss/vArogra-sub000/internal/billing"
	"github.com/dasarishourya007-oss/vArogra-sub000/internal/catalog"
	"github.com/dasarishourya007-oss/vArogra-sub000/internal/customer"
	"github.com/dasarishourya007-oss/vArogra-sub000/internal/events"
	"github.com/dasarishourya007-oss/vArogra-sub000/internal/lock"
	"github.com/dasarishourya007-oss/vArogra-sub000/internal/store"
)

// State is the phase a checkout attempt reached.
type State string

const (
	StateIdle       State = "idle"
	StateValidating State = "validating"
	StateCommitting State = "committing"
	StateCommitted  State = "committed"
	StateRejected   State = "rejected"
)

// Result is the outcome of one checkout attempt. Order is set only when
// State is StateCommitted.
type Result struct {
	State State         `json:"state"`
	Order *domain.Order `json:"order,omitempty"`
}

type Deps struct {
	Store     store.Store
	Catalog   *catalog.Catalog
	Customers *customer.Registry
	Locker    lock.Locker
	Publisher events.Publisher
	Alerter   alert.Alerter
	Logger    *zap.Logger
}

type Processor struct {
	store     store.Store
	catalog   *catalog.Catalog
	customers *customer.Registry
	locker    lock.Locker
	publisher events.Publisher
	alerter   alert.Alerter
	logger    *zap.Logger
	now       func() time.Time

	// in-flight attempts by bill id
	states sync.Map
}

func NewProcessor(d Deps) *Processor {
	if d.Locker == nil {
		d.Locker = lock.NewMemory()
	}
	if d.Publisher == nil {
		d.Publisher = events.Discard{}
	}
	if d.Alerter == nil {
		d.Alerter = alert.NewLog(d.Logger)
	}
	return &Processor{
		store:     d.Store,
		catalog:   d.Catalog,
		customers: d.Customers,
		locker:    d.Locker,
		publisher: d.Publisher,
		alerter:   d.Alerter,
		logger:    d.Logger,
		now:       func() time.Time { return time.Now().UTC() },
	}
}

// State returns the phase of the running attempt for a bill, or StateIdle.
func (p *Processor) State(billID string) State {
	if s, ok := p.states.Load(billID); ok {
		return s.(State)
	}
	return StateIdle
}

// requirement is the stock one item needs across all lines of a bill.
type requirement struct {
	itemID string
	packs  decimal.Decimal
}

// Checkout validates b against current stock and commits it. On any
// rejection the bill and the catalog are left unchanged. A second attempt
// on the same bill while one is running fails with
// domain.ErrCheckoutInProgress.
func (p *Processor) Checkout(ctx context.Context, b *billing.Bill) (Result, error) {
	rejected := Result{State: StateRejected}

	release, err := p.locker.Acquire(ctx, b.ID())
	if errors.Is(err, lock.ErrHeld) {
		return rejected, domain.ErrCheckoutInProgress
	}
	if err != nil {
		return rejected, err
	}
	defer release()

	snap, err := b.Freeze()
	if err != nil {
		return rejected, err
	}
	committed := false
	defer func() {
		p.states.Delete(snap.ID)
		if !committed {
			b.Thaw()
		}
	}()

	log := p.logger.With(zap.String("bill_id", snap.ID), zap.String("pharmacy_id", snap.PharmacyID))

	p.states.Store(snap.ID, StateValidating)
	needs, err := p.validate(ctx, snap)
	if err != nil {
		log.Info("checkout rejected", zap.Error(err))
		return rejected, err
	}
	if err := ctx.Err(); err != nil {
		return rejected, err
	}

	// rows are locked in item id order on every terminal
	slices.SortFunc(needs, func(a, b requirement) int { return cmp.Compare(a.itemID, b.itemID) })

	p.states.Store(snap.ID, StateCommitting)
	order := p.buildOrder(snap)
	var movements []domain.StockMovement
	err = p.store.Atomic(ctx, func(tx store.Tx) error {
		movements = movements[:0]
		if err := tx.InsertOrder(ctx, order); err != nil {
			return err
		}
		for _, n := range needs {
			mv, err := p.catalog.AdjustStockTx(ctx, tx, catalog.Adjustment{
				ItemID:    n.itemID,
				Delta:     n.packs.Neg(),
				Reason:    domain.MovementSale,
				Reference: &order.ID,
				By:        snap.CreatedBy,
			})
			if err != nil {
				return err
			}
			movements = append(movements, mv)
		}
		if order.CustomerID != nil {
			if err := p.customers.AppendHistoryTx(ctx, tx, *order.CustomerID, order); err != nil {
				return fmt.Errorf("append customer history: %w", err)
			}
		}
		return nil
	})
	if err != nil {
		var partial *domain.PartialCommitError
		if errors.As(err, &partial) {
			p.alerter.Alert(ctx, "sale commit outcome unknown, reconcile stock and orders", err, map[string]string{
				"order_id":    order.ID,
				"bill_id":     snap.ID,
				"pharmacy_id": snap.PharmacyID,
			})
		} else {
			log.Info("checkout rejected during commit", zap.Error(err))
		}
		return rejected, err
	}

	committed = true
	b.Settle()
	log.Info("checkout committed", zap.String("order_id", order.ID), zap.String("total", order.Total.StringFixed(2)))

	p.catalog.Notify(ctx, movements...)
	p.publish(ctx, order)

	out := order.Clone()
	return Result{State: StateCommitted, Order: &out}, nil
}

// validate sums the required packs per item, so an item sold both by pack
// and by sub-unit is checked once against its total.
func (p *Processor) validate(ctx context.Context, snap billing.Snapshot) ([]requirement, error) {
	if len(snap.Lines) == 0 {
		return nil, domain.ErrEmptyBill
	}

	var needs []requirement
	index := make(map[string]int)
	for _, l := range snap.Lines {
		if l.Quantity < 1 {
			return nil, fmt.Errorf("line %s: %w", l.ID, domain.ErrInvalidQuantity)
		}
		i, ok := index[l.ItemID]
		if !ok {
			i = len(needs)
			index[l.ItemID] = i
			needs = append(needs, requirement{itemID: l.ItemID, packs: decimal.Zero})
		}
		needs[i].packs = needs[i].packs.Add(l.BaseStock())
	}

	for _, n := range needs {
		item, err := p.catalog.Get(ctx, n.itemID)
		if err != nil {
			return nil, err
		}
		if item.PharmacyID != snap.PharmacyID {
			return nil, fmt.Errorf("medicine %s: %w", n.itemID, domain.ErrNotFound)
		}
		if item.Stock.LessThan(n.packs) {
			return nil, &domain.InsufficientStockError{ItemID: n.itemID, Requested: n.packs, Available: item.Stock}
		}
	}
	return needs, nil
}

func (p *Processor) buildOrder(snap billing.Snapshot) domain.Order {
	id := uuid.New().String()
	o := domain.Order{
		ID:            id,
		PharmacyID:    snap.PharmacyID,
		CustomerName:  snap.Customer.Name,
		CustomerPhone: snap.Customer.Phone,
		Subtotal:      snap.Totals.Subtotal,
		Tax:           snap.Totals.Tax,
		Total:         snap.Totals.Total,
		Status:        snap.Flow.InitialStatus(),
		Flow:          snap.Flow,
		CreatedAt:     p.now(),
		Items:         make([]domain.OrderItem, len(snap.Lines)),
	}
	if snap.Customer.ID != nil {
		cid := *snap.Customer.ID
		o.CustomerID = &cid
	}
	if snap.CreatedBy != nil {
		by := *snap.CreatedBy
		o.CreatedBy = &by
	}
	for i, l := range snap.Lines {
		o.Items[i] = domain.OrderItem{
			OrderID:   id,
			Position:  i + 1,
			ItemID:    l.ItemID,
			Name:      l.ItemName,
			Unit:      l.Unit,
			Quantity:  l.Quantity,
			UnitPrice: l.UnitPrice,
			LineTotal: l.Total(),
		}
	}
	return o
}

func (p *Processor) publish(ctx context.Context, o domain.Order) {
	e, err := events.New(events.OrderCreated, o.PharmacyID, o.ID, o)
	if err == nil {
		err = p.publisher.Publish(ctx, e)
	}
	if err != nil {
		p.logger.Warn("failed to publish order event", zap.String("order_id", o.ID), zap.Error(err))
	}
}
