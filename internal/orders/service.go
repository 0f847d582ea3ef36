// Package orders serves committed orders: lookup, status progression and
// sales reporting.
package orders

import (
	"context"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/dasarishourya007-oss/vArogra-sub000/domain"
	"github.com/dasarishourya007-oss/vArogra-sub000/internal/events"
	"github.com/dasarishourya007-oss/vArogra-sub000/internal/store"
)

type Service struct {
	store     store.Store
	publisher events.Publisher
	logger    *zap.Logger
}

func NewService(st store.Store, pub events.Publisher, logger *zap.Logger) *Service {
	if pub == nil {
		pub = events.Discard{}
	}
	return &Service{store: st, publisher: pub, logger: logger}
}

// Get returns an order of the given pharmacy.
func (s *Service) Get(ctx context.Context, pharmacyID, id string) (domain.Order, error) {
	o, err := s.store.Order(ctx, id)
	if err != nil {
		return domain.Order{}, err
	}
	if o.PharmacyID != pharmacyID {
		return domain.Order{}, fmt.Errorf("order %s: %w", id, domain.ErrNotFound)
	}
	return o, nil
}

// List returns orders newest first.
func (s *Service) List(ctx context.Context, f store.OrderFilter) ([]domain.Order, error) {
	return s.store.ListOrders(ctx, f)
}

// AdvanceStatus moves an order forward in its lifecycle. Going backwards or
// staying put fails with domain.ErrInvalidStatusTransition.
func (s *Service) AdvanceStatus(ctx context.Context, pharmacyID, id string, next domain.OrderStatus) (domain.Order, error) {
	o, err := s.Get(ctx, pharmacyID, id)
	if err != nil {
		return domain.Order{}, err
	}
	if !o.Status.CanAdvanceTo(next) {
		return domain.Order{}, fmt.Errorf("%s -> %s: %w", o.Status, next, domain.ErrInvalidStatusTransition)
	}
	if err := s.store.UpdateOrderStatus(ctx, id, o.Status, next); err != nil {
		return domain.Order{}, err
	}
	prev := o.Status
	o.Status = next

	e, err := events.New(events.OrderStatusChanged, o.PharmacyID, o.ID, map[string]domain.OrderStatus{
		"from": prev,
		"to":   next,
	})
	if err == nil {
		err = s.publisher.Publish(ctx, e)
	}
	if err != nil {
		s.logger.Warn("failed to publish status change", zap.String("order_id", o.ID), zap.Error(err))
	}
	return o, nil
}

// Summary aggregates revenue over a set of orders.
type Summary struct {
	Revenue    decimal.Decimal `json:"revenue"`
	Tax        decimal.Decimal `json:"tax"`
	SalesCount int             `json:"sales_count"`
}

func summarize(orders []domain.Order) Summary {
	sum := Summary{Revenue: decimal.Zero, Tax: decimal.Zero}
	for _, o := range orders {
		sum.Revenue = sum.Revenue.Add(o.Total)
		sum.Tax = sum.Tax.Add(o.Tax)
		sum.SalesCount++
	}
	return sum
}

// Report is the set of orders in [From, To) with their summary.
type Report struct {
	PharmacyID string         `json:"pharmacy_id"`
	From       time.Time      `json:"from"`
	To         time.Time      `json:"to"`
	Summary    Summary        `json:"summary"`
	Orders     []domain.Order `json:"orders"`
}

// SalesReport lists orders created in [from, to). A zero bound is open.
func (s *Service) SalesReport(ctx context.Context, pharmacyID string, from, to time.Time) (Report, error) {
	orders, err := s.store.ListOrders(ctx, store.OrderFilter{PharmacyID: pharmacyID, From: from, To: to})
	if err != nil {
		return Report{}, err
	}
	if orders == nil {
		orders = []domain.Order{}
	}
	return Report{PharmacyID: pharmacyID, From: from, To: to, Summary: summarize(orders), Orders: orders}, nil
}

// Daily summarises the calendar day containing day, in day's location.
func (s *Service) Daily(ctx context.Context, pharmacyID string, day time.Time) (Summary, error) {
	from := time.Date(day.Year(), day.Month(), day.Day(), 0, 0, 0, 0, day.Location())
	r, err := s.SalesReport(ctx, pharmacyID, from, from.AddDate(0, 0, 1))
	return r.Summary, err
}

// Monthly summarises the calendar month containing day.
func (s *Service) Monthly(ctx context.Context, pharmacyID string, day time.Time) (Summary, error) {
	from := time.Date(day.Year(), day.Month(), 1, 0, 0, 0, 0, day.Location())
	r, err := s.SalesReport(ctx, pharmacyID, from, from.AddDate(0, 1, 0))
	return r.Summary, err
}
