package orders

import (
	"bytes"
	"context"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tealeg/xlsx"
	"go.uber.org/zap"

	"github.com/dasarishourya007-oss/vArogra-sub000/domain"
	"github.com/dasarishourya007-oss/vArogra-sub000/internal/events"
	"github.com/dasarishourya007-oss/vArogra-sub000/internal/store"
)

func insertOrder(t *testing.T, st store.Store, id string, flow domain.Flow, total string, at time.Time) domain.Order {
	t.Helper()
	amount := decimal.RequireFromString(total)
	o := domain.Order{
		ID:         id,
		PharmacyID: "ph-1",
		Subtotal:   amount,
		Tax:        decimal.Zero,
		Total:      amount,
		Status:     flow.InitialStatus(),
		Flow:       flow,
		CreatedAt:  at,
		Items: []domain.OrderItem{{
			OrderID: id, Position: 1, ItemID: "napa", Name: "Napa", Unit: domain.UnitPack,
			Quantity: 1, UnitPrice: amount, LineTotal: amount,
		}},
	}
	require.NoError(t, st.Atomic(context.Background(), func(tx store.Tx) error {
		return tx.InsertOrder(context.Background(), o)
	}))
	return o
}

func TestAdvanceStatus(t *testing.T) {
	st := store.NewMemory()
	hub := events.NewHub()
	svc := NewService(st, hub, zap.NewNop())
	ctx := context.Background()
	insertOrder(t, st, "ord-1", domain.FlowDelivery, "50", time.Now().UTC())

	var changes []events.Event
	hub.Subscribe(func(e events.Event) { changes = append(changes, e) })

	o, err := svc.AdvanceStatus(ctx, "ph-1", "ord-1", domain.OrderStatusPreparing)
	require.NoError(t, err)
	assert.Equal(t, domain.OrderStatusPreparing, o.Status)

	_, err = svc.AdvanceStatus(ctx, "ph-1", "ord-1", domain.OrderStatusConfirmed)
	assert.ErrorIs(t, err, domain.ErrInvalidStatusTransition)
	_, err = svc.AdvanceStatus(ctx, "ph-1", "ord-1", domain.OrderStatusPreparing)
	assert.ErrorIs(t, err, domain.ErrInvalidStatusTransition)

	o, err = svc.AdvanceStatus(ctx, "ph-1", "ord-1", domain.OrderStatusDelivered)
	require.NoError(t, err)
	assert.Equal(t, domain.OrderStatusDelivered, o.Status)

	_, err = svc.AdvanceStatus(ctx, "ph-2", "ord-1", domain.OrderStatusDelivered)
	assert.ErrorIs(t, err, domain.ErrNotFound)

	require.Len(t, changes, 2)
	var payload map[string]string
	require.NoError(t, changes[1].Decode(&payload))
	assert.Equal(t, "preparing", payload["from"])
	assert.Equal(t, "delivered", payload["to"])
}

func TestPOSOrdersCannotAdvance(t *testing.T) {
	st := store.NewMemory()
	svc := NewService(st, nil, zap.NewNop())
	insertOrder(t, st, "ord-1", domain.FlowPOS, "10", time.Now().UTC())

	_, err := svc.AdvanceStatus(context.Background(), "ph-1", "ord-1", domain.OrderStatusDelivered)
	assert.ErrorIs(t, err, domain.ErrInvalidStatusTransition)
}

func TestDailyAndMonthly(t *testing.T) {
	st := store.NewMemory()
	svc := NewService(st, nil, zap.NewNop())
	ctx := context.Background()
	day := time.Date(2026, 3, 14, 10, 0, 0, 0, time.UTC)

	insertOrder(t, st, "ord-1", domain.FlowPOS, "10.50", day.Add(-2*time.Hour))
	insertOrder(t, st, "ord-2", domain.FlowPOS, "4.50", day.Add(5*time.Hour))
	insertOrder(t, st, "ord-3", domain.FlowPOS, "100", day.AddDate(0, 0, -3))
	insertOrder(t, st, "ord-4", domain.FlowPOS, "7", day.AddDate(0, -1, 0))

	daily, err := svc.Daily(ctx, "ph-1", day)
	require.NoError(t, err)
	assert.Equal(t, 2, daily.SalesCount)
	assert.Equal(t, "15.00", daily.Revenue.StringFixed(2))

	monthly, err := svc.Monthly(ctx, "ph-1", day)
	require.NoError(t, err)
	assert.Equal(t, 3, monthly.SalesCount)
	assert.Equal(t, "115.00", monthly.Revenue.StringFixed(2))

	other, err := svc.Daily(ctx, "ph-2", day)
	require.NoError(t, err)
	assert.Zero(t, other.SalesCount)
}

func TestExportXLSX(t *testing.T) {
	st := store.NewMemory()
	svc := NewService(st, nil, zap.NewNop())
	ctx := context.Background()
	insertOrder(t, st, "ord-1", domain.FlowPOS, "12.25", time.Now().UTC())

	report, err := svc.SalesReport(ctx, "ph-1", time.Time{}, time.Time{})
	require.NoError(t, err)
	require.Len(t, report.Orders, 1)

	var buf bytes.Buffer
	require.NoError(t, ExportXLSX(&buf, report))

	file, err := xlsx.OpenBinary(buf.Bytes())
	require.NoError(t, err)
	require.Len(t, file.Sheets, 1)
	rows := file.Sheets[0].Rows
	require.Len(t, rows, 3)
	assert.Equal(t, "Order ID", rows[0].Cells[0].Value)
	assert.Equal(t, "ord-1", rows[1].Cells[0].Value)
	assert.Equal(t, "Napa", rows[1].Cells[6].Value)
	assert.Equal(t, "12.25", rows[2].Cells[2].Value)
}
