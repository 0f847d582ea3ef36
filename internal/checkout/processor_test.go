package checkout

import (
	"context"
	"errors"
	"math"
	"slices"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/dasarishourya007-oss/vArogra-sub000/domain"
	"github.com/dasarishourya007-oss/vArogra-sub000/internal/billing"
	"github.com/dasarishourya007-oss/vArogra-sub000/internal/catalog"
	"github.com/dasarishourya007-oss/vArogra-sub000/internal/customer"
	"github.com/dasarishourya007-oss/vArogra-sub000/internal/events"
	"github.com/dasarishourya007-oss/vArogra-sub000/internal/lock"
	"github.com/dasarishourya007-oss/vArogra-sub000/internal/store"
)

type recordingAlerter struct {
	mu     sync.Mutex
	alerts []map[string]string
}

func (r *recordingAlerter) Alert(_ context.Context, _ string, _ error, tags map[string]string) {
	r.mu.Lock()
	r.alerts = append(r.alerts, tags)
	r.mu.Unlock()
}

var errForcedRollback = errors.New("forced rollback")

// unknownCommitStore runs the transaction body and then rolls back while
// reporting an unknown commit outcome.
type unknownCommitStore struct {
	*store.Memory
}

func (s unknownCommitStore) Atomic(ctx context.Context, fn func(tx store.Tx) error) error {
	err := s.Memory.Atomic(ctx, func(tx store.Tx) error {
		if err := fn(tx); err != nil {
			return err
		}
		return errForcedRollback
	})
	if errors.Is(err, errForcedRollback) {
		return &domain.PartialCommitError{Err: errors.New("connection reset during commit")}
	}
	return err
}

// lockOrderTx records the items locked inside a transaction.
type lockOrderTx struct {
	store.Tx
	locked *[]string
}

func (t lockOrderTx) MedicineForUpdate(ctx context.Context, id string) (domain.Medicine, error) {
	*t.locked = append(*t.locked, id)
	return t.Tx.MedicineForUpdate(ctx, id)
}

type lockOrderStore struct {
	*store.Memory
	locked []string
}

func (s *lockOrderStore) Atomic(ctx context.Context, fn func(tx store.Tx) error) error {
	return s.Memory.Atomic(ctx, func(tx store.Tx) error {
		return fn(lockOrderTx{Tx: tx, locked: &s.locked})
	})
}

// racingStore lets another sale take an item's stock after validation and
// before the checkout transaction starts.
type racingStore struct {
	*store.Memory
	itemID string
	stock  decimal.Decimal
	raced  bool
}

func (s *racingStore) Atomic(ctx context.Context, fn func(tx store.Tx) error) error {
	if !s.raced {
		s.raced = true
		err := s.Memory.Atomic(ctx, func(tx store.Tx) error {
			return tx.SetStock(ctx, s.itemID, s.stock, time.Now().UTC())
		})
		if err != nil {
			return err
		}
	}
	return s.Memory.Atomic(ctx, fn)
}

type fixture struct {
	store     store.Store
	catalog   *catalog.Catalog
	customers *customer.Registry
	hub       *events.Hub
	alerter   *recordingAlerter
	proc      *Processor
	book      *billing.Book
}

func newFixture(t *testing.T, st store.Store) *fixture {
	t.Helper()
	logger := zap.NewNop()
	hub := events.NewHub()
	cat := catalog.New(st, hub, logger)
	customers := customer.NewRegistry(st, logger)
	alerter := &recordingAlerter{}
	return &fixture{
		store:     st,
		catalog:   cat,
		customers: customers,
		hub:       hub,
		alerter:   alerter,
		proc: NewProcessor(Deps{
			Store:     st,
			Catalog:   cat,
			Customers: customers,
			Locker:    lock.NewMemory(),
			Publisher: hub,
			Alerter:   alerter,
			Logger:    logger,
		}),
		book: billing.NewBook(cat, decimal.RequireFromString("0.05")),
	}
}

func (f *fixture) item(t *testing.T, brand string, form domain.Form, price string, packSize int, stock string) domain.Medicine {
	t.Helper()
	m, err := f.catalog.Upsert(context.Background(), domain.Medicine{
		PharmacyID: "ph-1",
		BrandName:  brand,
		Form:       form,
		PackPrice:  decimal.RequireFromString(price),
		PackSize:   packSize,
		Stock:      decimal.RequireFromString(stock),
	})
	require.NoError(t, err)
	return m
}

func (f *fixture) stock(t *testing.T, id string) string {
	t.Helper()
	m, err := f.catalog.Get(context.Background(), id)
	require.NoError(t, err)
	return m.Stock.StringFixed(2)
}

func TestCheckoutCommitsOrderAndStock(t *testing.T) {
	f := newFixture(t, store.NewMemory())
	ctx := context.Background()
	napa := f.item(t, "Napa", domain.FormTablet, "100.00", 10, "5")

	var published []events.Event
	f.hub.Subscribe(func(e events.Event) { published = append(published, e) })

	b := f.book.Open("ph-1", domain.FlowPOS, nil)
	_, err := b.AddLine(ctx, napa.ID, domain.UnitPack, 2)
	require.NoError(t, err)
	_, err = b.AddLine(ctx, napa.ID, domain.UnitSubUnit, 1)
	require.NoError(t, err)
	require.NoError(t, b.SetCustomer("Walk-in", "017"))

	res, err := f.proc.Checkout(ctx, b)
	require.NoError(t, err)
	assert.Equal(t, StateCommitted, res.State)
	require.NotNil(t, res.Order)
	assert.Equal(t, domain.OrderStatusDelivered, res.Order.Status)
	assert.Equal(t, "210.00", res.Order.Subtotal.StringFixed(2))
	assert.Equal(t, "220.50", res.Order.Total.StringFixed(2))
	assert.Equal(t, "Walk-in", res.Order.CustomerName)
	require.Len(t, res.Order.Items, 2)

	assert.Equal(t, "2.90", f.stock(t, napa.ID))
	assert.Empty(t, b.Lines())
	assert.Equal(t, StateIdle, f.proc.State(b.ID()))

	stored, err := f.store.Order(ctx, res.Order.ID)
	require.NoError(t, err)
	assert.True(t, stored.Total.Equal(res.Order.Total))

	var types []string
	for _, e := range published {
		types = append(types, e.Type)
	}
	assert.Contains(t, types, events.OrderCreated)
	assert.Contains(t, types, events.StockChanged)

	// the returned order is a copy
	res.Order.Items[0].Quantity = 99
	stored, err = f.store.Order(ctx, res.Order.ID)
	require.NoError(t, err)
	assert.Equal(t, 2, stored.Items[0].Quantity)
}

func TestCheckoutDeliveryFlowStartsConfirmed(t *testing.T) {
	f := newFixture(t, store.NewMemory())
	ctx := context.Background()
	syrup := f.item(t, "Tusca", domain.FormSyrup, "85.00", 1, "3")

	b := f.book.Open("ph-1", domain.FlowDelivery, nil)
	_, err := b.AddLine(ctx, syrup.ID, domain.UnitPack, 1)
	require.NoError(t, err)

	res, err := f.proc.Checkout(ctx, b)
	require.NoError(t, err)
	assert.Equal(t, domain.OrderStatusConfirmed, res.Order.Status)
}

func TestSubUnitSaleConvertsToPackFraction(t *testing.T) {
	f := newFixture(t, store.NewMemory())
	ctx := context.Background()
	item := f.item(t, "Seclo", domain.FormCapsule, "100", 10, "4")

	b := f.book.Open("ph-1", domain.FlowPOS, nil)
	line, err := b.AddLine(ctx, item.ID, domain.UnitSubUnit, 1)
	require.NoError(t, err)
	assert.Equal(t, "10.00", line.Total().StringFixed(2))

	_, err = f.proc.Checkout(ctx, b)
	require.NoError(t, err)
	assert.Equal(t, "3.90", f.stock(t, item.ID))
}

func TestCheckoutIsAllOrNothing(t *testing.T) {
	f := newFixture(t, store.NewMemory())
	ctx := context.Background()
	a := f.item(t, "A", domain.FormTablet, "10", 10, "5")
	bItem := f.item(t, "B", domain.FormTablet, "10", 10, "2")

	b := f.book.Open("ph-1", domain.FlowPOS, nil)
	_, err := b.AddLine(ctx, a.ID, domain.UnitPack, 3)
	require.NoError(t, err)
	_, err = b.AddLine(ctx, bItem.ID, domain.UnitPack, 10)
	require.NoError(t, err)
	before := b.Lines()

	res, err := f.proc.Checkout(ctx, b)
	assert.Equal(t, StateRejected, res.State)
	assert.Nil(t, res.Order)
	var stockErr *domain.InsufficientStockError
	require.ErrorAs(t, err, &stockErr)
	assert.Equal(t, bItem.ID, stockErr.ItemID)

	assert.Equal(t, "5.00", f.stock(t, a.ID))
	assert.Equal(t, "2.00", f.stock(t, bItem.ID))
	assert.Equal(t, before, b.Lines())

	orders, err := f.store.ListOrders(ctx, store.OrderFilter{PharmacyID: "ph-1"})
	require.NoError(t, err)
	assert.Empty(t, orders)

	// the bill is usable again after a rejection
	_, err = b.UpdateQuantity(before[1].ID, 2)
	require.NoError(t, err)
	res, err = f.proc.Checkout(ctx, b)
	require.NoError(t, err)
	assert.Equal(t, StateCommitted, res.State)
}

func TestValidationSumsLinesOfSameItem(t *testing.T) {
	f := newFixture(t, store.NewMemory())
	ctx := context.Background()
	item := f.item(t, "Napa", domain.FormTablet, "10", 10, "1")

	b := f.book.Open("ph-1", domain.FlowPOS, nil)
	_, err := b.AddLine(ctx, item.ID, domain.UnitPack, 1)
	require.NoError(t, err)
	_, err = b.AddLine(ctx, item.ID, domain.UnitSubUnit, 1)
	require.NoError(t, err)

	_, err = f.proc.Checkout(ctx, b)
	assert.ErrorIs(t, err, domain.ErrInsufficientStock)
	assert.Equal(t, "1.00", f.stock(t, item.ID))
}

func TestCheckoutEmptyBill(t *testing.T) {
	f := newFixture(t, store.NewMemory())
	b := f.book.Open("ph-1", domain.FlowPOS, nil)

	res, err := f.proc.Checkout(context.Background(), b)
	assert.ErrorIs(t, err, domain.ErrEmptyBill)
	assert.Equal(t, StateRejected, res.State)
}

func TestCheckoutRemovedItem(t *testing.T) {
	f := newFixture(t, store.NewMemory())
	ctx := context.Background()
	item := f.item(t, "Napa", domain.FormTablet, "10", 10, "1")

	b := f.book.Open("ph-1", domain.FlowPOS, nil)
	_, err := b.AddLine(ctx, item.ID, domain.UnitPack, 1)
	require.NoError(t, err)
	require.NoError(t, f.catalog.Remove(ctx, item.ID))

	_, err = f.proc.Checkout(ctx, b)
	assert.ErrorIs(t, err, domain.ErrNotFound)
	assert.Len(t, b.Lines(), 1)
}

func TestCheckoutAppendsCustomerHistory(t *testing.T) {
	f := newFixture(t, store.NewMemory())
	ctx := context.Background()
	item := f.item(t, "Napa", domain.FormTablet, "10", 10, "3")
	c, err := f.customers.Register(ctx, "ph-1", "Rahim", "01711000001", nil, nil)
	require.NoError(t, err)

	b := f.book.Open("ph-1", domain.FlowPOS, nil)
	_, err = b.AddLine(ctx, item.ID, domain.UnitPack, 2)
	require.NoError(t, err)
	require.NoError(t, b.LinkCustomer(c))

	res, err := f.proc.Checkout(ctx, b)
	require.NoError(t, err)
	require.NotNil(t, res.Order.CustomerID)
	assert.Equal(t, c.ID, *res.Order.CustomerID)

	history, err := f.customers.History(ctx, c.ID)
	require.NoError(t, err)
	require.Len(t, history, 1)
	assert.Equal(t, res.Order.ID, history[0].OrderID)
	assert.True(t, history[0].Total.Equal(res.Order.Total))
}

func TestConcurrentCheckoutsOfLastPack(t *testing.T) {
	f := newFixture(t, store.NewMemory())
	ctx := context.Background()
	item := f.item(t, "Napa", domain.FormTablet, "10", 10, "1")

	bills := []*billing.Bill{f.book.Open("ph-1", domain.FlowPOS, nil), f.book.Open("ph-1", domain.FlowPOS, nil)}
	for _, b := range bills {
		_, err := b.AddLine(ctx, item.ID, domain.UnitPack, 1)
		require.NoError(t, err)
	}

	var (
		wg      sync.WaitGroup
		results = make([]Result, len(bills))
		errs    = make([]error, len(bills))
	)
	for i, b := range bills {
		wg.Add(1)
		go func(i int, b *billing.Bill) {
			defer wg.Done()
			results[i], errs[i] = f.proc.Checkout(ctx, b)
		}(i, b)
	}
	wg.Wait()

	committed, rejected := 0, 0
	for i := range bills {
		switch results[i].State {
		case StateCommitted:
			committed++
			assert.NoError(t, errs[i])
		case StateRejected:
			rejected++
			assert.ErrorIs(t, errs[i], domain.ErrInsufficientStock)
		}
	}
	assert.Equal(t, 1, committed)
	assert.Equal(t, 1, rejected)
	assert.Equal(t, "0.00", f.stock(t, item.ID))
}

func TestCheckoutReentrancyGuard(t *testing.T) {
	f := newFixture(t, store.NewMemory())
	ctx := context.Background()
	item := f.item(t, "Napa", domain.FormTablet, "10", 10, "3")

	b := f.book.Open("ph-1", domain.FlowPOS, nil)
	_, err := b.AddLine(ctx, item.ID, domain.UnitPack, 1)
	require.NoError(t, err)

	// simulate an attempt already holding the bill
	_, err = b.Freeze()
	require.NoError(t, err)

	res, err := f.proc.Checkout(ctx, b)
	assert.ErrorIs(t, err, domain.ErrCheckoutInProgress)
	assert.Equal(t, StateRejected, res.State)
	assert.Equal(t, "3.00", f.stock(t, item.ID))
}

func TestCheckoutLockHeldElsewhere(t *testing.T) {
	f := newFixture(t, store.NewMemory())
	ctx := context.Background()
	item := f.item(t, "Napa", domain.FormTablet, "10", 10, "3")
	locker := lock.NewMemory()
	f.proc.locker = locker

	b := f.book.Open("ph-1", domain.FlowPOS, nil)
	_, err := b.AddLine(ctx, item.ID, domain.UnitPack, 1)
	require.NoError(t, err)

	release, err := locker.Acquire(ctx, b.ID())
	require.NoError(t, err)
	_, err = f.proc.Checkout(ctx, b)
	assert.ErrorIs(t, err, domain.ErrCheckoutInProgress)

	release()
	_, err = f.proc.Checkout(ctx, b)
	assert.NoError(t, err)
}

func TestCheckoutUnknownCommitOutcomeAlerts(t *testing.T) {
	f := newFixture(t, unknownCommitStore{store.NewMemory()})
	ctx := context.Background()
	item := f.item(t, "Napa", domain.FormTablet, "10", 10, "3")

	b := f.book.Open("ph-1", domain.FlowPOS, nil)
	_, err := b.AddLine(ctx, item.ID, domain.UnitPack, 1)
	require.NoError(t, err)

	res, err := f.proc.Checkout(ctx, b)
	assert.ErrorIs(t, err, domain.ErrPartialCommit)
	assert.Equal(t, StateRejected, res.State)
	assert.Nil(t, res.Order)
	assert.Len(t, b.Lines(), 1)

	require.Len(t, f.alerter.alerts, 1)
	assert.Equal(t, b.ID(), f.alerter.alerts[0]["bill_id"])
	assert.NotEmpty(t, f.alerter.alerts[0]["order_id"])
}

func TestCheckoutCanceledContext(t *testing.T) {
	f := newFixture(t, store.NewMemory())
	item := f.item(t, "Napa", domain.FormTablet, "10", 10, "3")

	b := f.book.Open("ph-1", domain.FlowPOS, nil)
	_, err := b.AddLine(context.Background(), item.ID, domain.UnitPack, 1)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = f.proc.Checkout(ctx, b)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Len(t, b.Lines(), 1)
	assert.Equal(t, "3.00", f.stock(t, item.ID))
}

func TestCheckoutRejectsOverflowingQuantity(t *testing.T) {
	f := newFixture(t, store.NewMemory())
	ctx := context.Background()
	item := f.item(t, "Napa", domain.FormTablet, "10", 10, "5")

	b := f.book.Open("ph-1", domain.FlowPOS, nil)
	_, err := b.AddLine(ctx, item.ID, domain.UnitPack, math.MaxInt)
	require.NoError(t, err)
	_, err = b.AddLine(ctx, item.ID, domain.UnitPack, 1)
	require.ErrorIs(t, err, domain.ErrInvalidQuantity)

	res, err := f.proc.Checkout(ctx, b)
	assert.ErrorIs(t, err, domain.ErrInsufficientStock)
	assert.Equal(t, StateRejected, res.State)
	assert.Equal(t, "5.00", f.stock(t, item.ID))

	orders, err := f.store.ListOrders(ctx, store.OrderFilter{PharmacyID: "ph-1"})
	require.NoError(t, err)
	assert.Empty(t, orders)
}

func TestCheckoutLocksItemsInIDOrder(t *testing.T) {
	st := &lockOrderStore{Memory: store.NewMemory()}
	f := newFixture(t, st)
	ctx := context.Background()

	var ids []string
	for _, name := range []string{"A", "B", "C", "D"} {
		ids = append(ids, f.item(t, name, domain.FormTablet, "10", 10, "5").ID)
	}
	sorted := slices.Clone(ids)
	slices.Sort(sorted)

	b := f.book.Open("ph-1", domain.FlowPOS, nil)
	for i := len(sorted) - 1; i >= 0; i-- {
		_, err := b.AddLine(ctx, sorted[i], domain.UnitPack, 1)
		require.NoError(t, err)
	}
	st.locked = nil

	_, err := f.proc.Checkout(ctx, b)
	require.NoError(t, err)
	assert.Equal(t, sorted, st.locked)
}

func TestCheckoutLosesRaceInsideTransaction(t *testing.T) {
	st := &racingStore{Memory: store.NewMemory()}
	f := newFixture(t, st)
	ctx := context.Background()
	item := f.item(t, "Napa", domain.FormTablet, "10", 10, "2")
	st.itemID = item.ID
	st.stock = decimal.NewFromInt(1)

	b := f.book.Open("ph-1", domain.FlowPOS, nil)
	_, err := b.AddLine(ctx, item.ID, domain.UnitPack, 2)
	require.NoError(t, err)

	res, err := f.proc.Checkout(ctx, b)
	var stockErr *domain.InsufficientStockError
	require.ErrorAs(t, err, &stockErr)
	assert.Equal(t, item.ID, stockErr.ItemID)
	assert.Equal(t, "1", stockErr.Available.String())
	assert.Equal(t, StateRejected, res.State)
	assert.Nil(t, res.Order)
	assert.True(t, st.raced)

	assert.Equal(t, "1.00", f.stock(t, item.ID))
	assert.Len(t, b.Lines(), 1)
	orders, err := f.store.ListOrders(ctx, store.OrderFilter{PharmacyID: "ph-1"})
	require.NoError(t, err)
	assert.Empty(t, orders)
}
