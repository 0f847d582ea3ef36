// Package store persists catalog items, customers, orders and staff
// accounts. Every multi-row write goes through Atomic so that a sale either
// lands completely or not at all.
package store

import (
	"context"
	"errors"
	"time"

	"github.com/shopspring/decimal"

	"github.com/dasarishourya007-oss/vArogra-sub000/domain"
)

// ErrConflict reports a unique constraint violation.
var ErrConflict = errors.New("conflict")

// Store is the repository used by the services. Memory and SQL implement it.
type Store interface {
	Medicine(ctx context.Context, id string) (domain.Medicine, error)
	ListMedicines(ctx context.Context, pharmacyID string) ([]domain.Medicine, error)
	SaveMedicine(ctx context.Context, m domain.Medicine) error
	DeleteMedicine(ctx context.Context, id string) error
	ListMovements(ctx context.Context, itemID string) ([]domain.StockMovement, error)

	CreateCustomer(ctx context.Context, c domain.Customer) error
	Customer(ctx context.Context, id string) (domain.Customer, error)
	ListCustomers(ctx context.Context, pharmacyID string) ([]domain.Customer, error)
	History(ctx context.Context, customerID string) ([]domain.HistoryEntry, error)

	Order(ctx context.Context, id string) (domain.Order, error)
	ListOrders(ctx context.Context, f OrderFilter) ([]domain.Order, error)
	UpdateOrderStatus(ctx context.Context, id string, from, to domain.OrderStatus) error

	UserByEmail(ctx context.Context, email string) (domain.User, error)
	UpdatePassword(ctx context.Context, userID, hash string) error
	Pharmacy(ctx context.Context, id string) (domain.Pharmacy, error)
	ListPharmacies(ctx context.Context) ([]domain.Pharmacy, error)
	UpdatePharmacy(ctx context.Context, p domain.Pharmacy) error

	// Atomic runs fn in a single transaction. Any error from fn rolls back
	// every write made through tx.
	Atomic(ctx context.Context, fn func(tx Tx) error) error
}

// Tx is the write side available inside Atomic.
type Tx interface {
	// MedicineForUpdate reads an item and holds it until the transaction ends.
	MedicineForUpdate(ctx context.Context, id string) (domain.Medicine, error)
	SetStock(ctx context.Context, id string, stock decimal.Decimal, at time.Time) error
	LogMovement(ctx context.Context, m domain.StockMovement) error
	InsertOrder(ctx context.Context, o domain.Order) error
	AppendHistory(ctx context.Context, e domain.HistoryEntry) error
	InsertUser(ctx context.Context, u domain.User) error
	InsertPharmacy(ctx context.Context, p domain.Pharmacy) error
}

// OrderFilter narrows ListOrders. Zero values mean no restriction.
type OrderFilter struct {
	PharmacyID string
	CustomerID string
	From       time.Time
	To         time.Time
	Limit      int
}

func (f OrderFilter) match(o domain.Order) bool {
	if f.PharmacyID != "" && o.PharmacyID != f.PharmacyID {
		return false
	}
	if f.CustomerID != "" && (o.CustomerID == nil || *o.CustomerID != f.CustomerID) {
		return false
	}
	if !f.From.IsZero() && o.CreatedAt.Before(f.From) {
		return false
	}
	if !f.To.IsZero() && !o.CreatedAt.Before(f.To) {
		return false
	}
	return true
}
