// Package customer keeps the registered customers of each pharmacy and
// their purchase history.
package customer

import (
	"context"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/dasarishourya007-oss/vArogra-sub000/domain"
	"github.com/dasarishourya007-oss/vArogra-sub000/internal/store"
)

type Registry struct {
	store  store.Store
	logger *zap.Logger
	now    func() time.Time
}

func NewRegistry(st store.Store, logger *zap.Logger) *Registry {
	return &Registry{store: st, logger: logger, now: func() time.Time { return time.Now().UTC() }}
}

// NormalizePhone keeps digits and a leading plus sign.
func NormalizePhone(phone string) string {
	phone = strings.TrimSpace(phone)
	var b strings.Builder
	for i, r := range phone {
		switch {
		case r >= '0' && r <= '9':
			b.WriteRune(r)
		case r == '+' && i == 0:
			b.WriteRune(r)
		}
	}
	return b.String()
}

// Register creates a customer. The phone number is required and unique
// within the pharmacy.
func (r *Registry) Register(ctx context.Context, pharmacyID, name, phone string, age *int, gender *string) (domain.Customer, error) {
	if pharmacyID == "" {
		return domain.Customer{}, domain.Validationf("pharmacy_id is required")
	}
	phone = NormalizePhone(phone)
	if strings.TrimPrefix(phone, "+") == "" {
		return domain.Customer{}, domain.Validationf("phone is required")
	}
	if age != nil && (*age < 0 || *age > 150) {
		return domain.Customer{}, domain.Validationf("age must be between 0 and 150")
	}
	if gender != nil {
		g := strings.TrimSpace(*gender)
		if g == "" {
			gender = nil
		} else {
			gender = &g
		}
	}

	c := domain.Customer{
		ID:         uuid.New().String(),
		PharmacyID: pharmacyID,
		Name:       strings.TrimSpace(name),
		Phone:      phone,
		Age:        age,
		Gender:     gender,
		CreatedAt:  r.now(),
	}
	if err := r.store.CreateCustomer(ctx, c); err != nil {
		return domain.Customer{}, err
	}
	r.logger.Info("customer registered", zap.String("customer_id", c.ID), zap.String("pharmacy_id", pharmacyID))
	return c, nil
}

// Find matches query against name, ignoring case, or against phone. A blank
// query lists every customer of the pharmacy.
func (r *Registry) Find(ctx context.Context, pharmacyID, query string) ([]domain.Customer, error) {
	all, err := r.store.ListCustomers(ctx, pharmacyID)
	if err != nil {
		return nil, err
	}
	q := strings.ToLower(strings.TrimSpace(query))
	if q == "" {
		return all, nil
	}
	digits := strings.TrimPrefix(NormalizePhone(q), "+")

	out := []domain.Customer{}
	for _, c := range all {
		if strings.Contains(strings.ToLower(c.Name), q) ||
			strings.Contains(c.Phone, q) ||
			(digits != "" && strings.Contains(c.Phone, digits)) {
			out = append(out, c)
		}
	}
	return out, nil
}

func (r *Registry) Get(ctx context.Context, id string) (domain.Customer, error) {
	return r.store.Customer(ctx, id)
}

// History returns the customer's completed sales, oldest first.
func (r *Registry) History(ctx context.Context, id string) ([]domain.HistoryEntry, error) {
	if _, err := r.store.Customer(ctx, id); err != nil {
		return nil, err
	}
	return r.store.History(ctx, id)
}

// AppendHistoryTx records a committed order against a customer inside the
// checkout transaction.
func (r *Registry) AppendHistoryTx(ctx context.Context, tx store.Tx, customerID string, o domain.Order) error {
	return tx.AppendHistory(ctx, domain.HistoryEntry{
		CustomerID: customerID,
		OrderID:    o.ID,
		Total:      o.Total,
		CreatedAt:  o.CreatedAt,
	})
}
