package store

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"github.com/dasarishourya007-oss/vArogra-sub000/domain"
)

// Memory is an in-process Store. Atomic holds a single lock for the whole
// transaction and applies staged writes only when fn succeeds.
type Memory struct {
	mu sync.RWMutex

	medicines     map[string]domain.Medicine
	medicineOrder []string
	movements     []domain.StockMovement
	customers     map[string]domain.Customer
	customerOrder []string
	history       []domain.HistoryEntry
	orders        map[string]domain.Order
	orderSeq      []string
	users         map[string]domain.User
	pharmacies    map[string]domain.Pharmacy
	pharmacyOrder []string
}

func NewMemory() *Memory {
	return &Memory{
		medicines:  make(map[string]domain.Medicine),
		customers:  make(map[string]domain.Customer),
		orders:     make(map[string]domain.Order),
		users:      make(map[string]domain.User),
		pharmacies: make(map[string]domain.Pharmacy),
	}
}

func (m *Memory) Medicine(ctx context.Context, id string) (domain.Medicine, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	med, ok := m.medicines[id]
	if !ok {
		return domain.Medicine{}, fmt.Errorf("medicine %s: %w", id, domain.ErrNotFound)
	}
	return med, nil
}

func (m *Memory) ListMedicines(ctx context.Context, pharmacyID string) ([]domain.Medicine, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]domain.Medicine, 0, len(m.medicineOrder))
	for _, id := range m.medicineOrder {
		med := m.medicines[id]
		if pharmacyID == "" || med.PharmacyID == pharmacyID {
			out = append(out, med)
		}
	}
	return out, nil
}

func (m *Memory) SaveMedicine(ctx context.Context, med domain.Medicine) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, exists := m.medicines[med.ID]; !exists {
		m.medicineOrder = append(m.medicineOrder, med.ID)
	}
	m.medicines[med.ID] = med
	return nil
}

func (m *Memory) DeleteMedicine(ctx context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.medicines[id]; !ok {
		return fmt.Errorf("medicine %s: %w", id, domain.ErrNotFound)
	}
	delete(m.medicines, id)
	m.medicineOrder = removeID(m.medicineOrder, id)
	return nil
}

func (m *Memory) ListMovements(ctx context.Context, itemID string) ([]domain.StockMovement, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []domain.StockMovement
	for _, mv := range m.movements {
		if mv.ItemID == itemID {
			out = append(out, mv)
		}
	}
	return out, nil
}

func (m *Memory) CreateCustomer(ctx context.Context, c domain.Customer) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, existing := range m.customers {
		if existing.PharmacyID == c.PharmacyID && existing.Phone == c.Phone {
			return domain.ErrDuplicatePhone
		}
	}
	m.customers[c.ID] = c
	m.customerOrder = append(m.customerOrder, c.ID)
	return nil
}

func (m *Memory) Customer(ctx context.Context, id string) (domain.Customer, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	c, ok := m.customers[id]
	if !ok {
		return domain.Customer{}, fmt.Errorf("customer %s: %w", id, domain.ErrNotFound)
	}
	return c, nil
}

func (m *Memory) ListCustomers(ctx context.Context, pharmacyID string) ([]domain.Customer, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]domain.Customer, 0, len(m.customerOrder))
	for _, id := range m.customerOrder {
		c := m.customers[id]
		if pharmacyID == "" || c.PharmacyID == pharmacyID {
			out = append(out, c)
		}
	}
	return out, nil
}

func (m *Memory) History(ctx context.Context, customerID string) ([]domain.HistoryEntry, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []domain.HistoryEntry
	for _, h := range m.history {
		if h.CustomerID == customerID {
			out = append(out, h)
		}
	}
	return out, nil
}

func (m *Memory) Order(ctx context.Context, id string) (domain.Order, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	o, ok := m.orders[id]
	if !ok {
		return domain.Order{}, fmt.Errorf("order %s: %w", id, domain.ErrNotFound)
	}
	return o.Clone(), nil
}

func (m *Memory) ListOrders(ctx context.Context, f OrderFilter) ([]domain.Order, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []domain.Order
	// newest first
	for i := len(m.orderSeq) - 1; i >= 0; i-- {
		o := m.orders[m.orderSeq[i]]
		if !f.match(o) {
			continue
		}
		out = append(out, o.Clone())
		if f.Limit > 0 && len(out) == f.Limit {
			break
		}
	}
	return out, nil
}

func (m *Memory) UpdateOrderStatus(ctx context.Context, id string, from, to domain.OrderStatus) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	o, ok := m.orders[id]
	if !ok {
		return fmt.Errorf("order %s: %w", id, domain.ErrNotFound)
	}
	if o.Status != from {
		return fmt.Errorf("order %s is %s: %w", id, o.Status, domain.ErrInvalidStatusTransition)
	}
	o.Status = to
	m.orders[id] = o
	return nil
}

func (m *Memory) UserByEmail(ctx context.Context, email string) (domain.User, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	for _, u := range m.users {
		if strings.EqualFold(u.Email, email) {
			return u, nil
		}
	}
	return domain.User{}, fmt.Errorf("user %s: %w", email, domain.ErrNotFound)
}

func (m *Memory) UpdatePassword(ctx context.Context, userID, hash string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	u, ok := m.users[userID]
	if !ok {
		return fmt.Errorf("user %s: %w", userID, domain.ErrNotFound)
	}
	u.Password = hash
	m.users[userID] = u
	return nil
}

func (m *Memory) Pharmacy(ctx context.Context, id string) (domain.Pharmacy, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	p, ok := m.pharmacies[id]
	if !ok {
		return domain.Pharmacy{}, fmt.Errorf("pharmacy %s: %w", id, domain.ErrNotFound)
	}
	return p, nil
}

func (m *Memory) ListPharmacies(ctx context.Context) ([]domain.Pharmacy, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]domain.Pharmacy, 0, len(m.pharmacyOrder))
	for _, id := range m.pharmacyOrder {
		out = append(out, m.pharmacies[id])
	}
	return out, nil
}

func (m *Memory) UpdatePharmacy(ctx context.Context, p domain.Pharmacy) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	existing, ok := m.pharmacies[p.ID]
	if !ok {
		return fmt.Errorf("pharmacy %s: %w", p.ID, domain.ErrNotFound)
	}
	existing.Name, existing.Address, existing.Location = p.Name, p.Address, p.Location
	m.pharmacies[p.ID] = existing
	return nil
}

func (m *Memory) Atomic(ctx context.Context, fn func(tx Tx) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	tx := &memTx{m: m, medicines: make(map[string]domain.Medicine)}
	if err := fn(tx); err != nil {
		return err
	}
	tx.apply()
	return nil
}

// memTx stages writes; reads see staged values first. The parent lock is
// held by Atomic for the lifetime of the transaction.
type memTx struct {
	m          *Memory
	medicines  map[string]domain.Medicine
	movements  []domain.StockMovement
	orders     []domain.Order
	history    []domain.HistoryEntry
	users      []domain.User
	pharmacies []domain.Pharmacy
}

func (t *memTx) MedicineForUpdate(ctx context.Context, id string) (domain.Medicine, error) {
	if med, ok := t.medicines[id]; ok {
		return med, nil
	}
	med, ok := t.m.medicines[id]
	if !ok {
		return domain.Medicine{}, fmt.Errorf("medicine %s: %w", id, domain.ErrNotFound)
	}
	return med, nil
}

func (t *memTx) SetStock(ctx context.Context, id string, stock decimal.Decimal, at time.Time) error {
	med, err := t.MedicineForUpdate(ctx, id)
	if err != nil {
		return err
	}
	med.Stock = stock
	med.UpdatedAt = at
	t.medicines[id] = med
	return nil
}

func (t *memTx) LogMovement(ctx context.Context, mv domain.StockMovement) error {
	t.movements = append(t.movements, mv)
	return nil
}

func (t *memTx) InsertOrder(ctx context.Context, o domain.Order) error {
	if _, exists := t.m.orders[o.ID]; exists {
		return fmt.Errorf("order %s already exists", o.ID)
	}
	t.orders = append(t.orders, o.Clone())
	return nil
}

func (t *memTx) AppendHistory(ctx context.Context, e domain.HistoryEntry) error {
	if _, ok := t.m.customers[e.CustomerID]; !ok {
		return fmt.Errorf("customer %s: %w", e.CustomerID, domain.ErrNotFound)
	}
	t.history = append(t.history, e)
	return nil
}

func (t *memTx) InsertUser(ctx context.Context, u domain.User) error {
	for _, existing := range t.m.users {
		if strings.EqualFold(existing.Email, u.Email) {
			return fmt.Errorf("email %s: %w", u.Email, ErrConflict)
		}
	}
	t.users = append(t.users, u)
	return nil
}

func (t *memTx) InsertPharmacy(ctx context.Context, p domain.Pharmacy) error {
	t.pharmacies = append(t.pharmacies, p)
	return nil
}

func (t *memTx) apply() {
	m := t.m
	for id, med := range t.medicines {
		m.medicines[id] = med
	}
	m.movements = append(m.movements, t.movements...)
	for _, o := range t.orders {
		m.orders[o.ID] = o
		m.orderSeq = append(m.orderSeq, o.ID)
	}
	m.history = append(m.history, t.history...)
	for _, u := range t.users {
		m.users[u.ID] = u
	}
	for _, p := range t.pharmacies {
		m.pharmacies[p.ID] = p
		m.pharmacyOrder = append(m.pharmacyOrder, p.ID)
	}
}

func removeID(ids []string, id string) []string {
	out := ids[:0]
	for _, v := range ids {
		if v != id {
			out = append(out, v)
		}
	}
	return out
}
