package customer

import (
	"context"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/dasarishourya007-oss/vArogra-sub000/domain"
	"github.com/dasarishourya007-oss/vArogra-sub000/internal/store"
)

func TestNormalizePhone(t *testing.T) {
	cases := map[string]string{
		"+880 1711-000000": "+8801711000000",
		" 01711 000 000 ":  "01711000000",
		"017+11":           "01711",
		"abc":              "",
	}
	for in, want := range cases {
		assert.Equal(t, want, NormalizePhone(in), in)
	}
}

func TestRegister(t *testing.T) {
	r := NewRegistry(store.NewMemory(), zap.NewNop())
	ctx := context.Background()
	age := 34

	c, err := r.Register(ctx, "ph-1", " Rahima Khatun ", "+880 1711-000000", &age, nil)
	require.NoError(t, err)
	assert.NotEmpty(t, c.ID)
	assert.Equal(t, "Rahima Khatun", c.Name)
	assert.Equal(t, "+8801711000000", c.Phone)

	_, err = r.Register(ctx, "ph-1", "Someone Else", "+8801711000000", nil, nil)
	assert.ErrorIs(t, err, domain.ErrDuplicatePhone)

	_, err = r.Register(ctx, "ph-2", "Same Phone Other Shop", "+8801711000000", nil, nil)
	assert.NoError(t, err)

	_, err = r.Register(ctx, "ph-1", "No Phone", " - ", nil, nil)
	assert.ErrorIs(t, err, domain.ErrValidation)

	bad := -1
	_, err = r.Register(ctx, "ph-1", "Bad Age", "0199", &bad, nil)
	assert.ErrorIs(t, err, domain.ErrValidation)
}

func TestFind(t *testing.T) {
	r := NewRegistry(store.NewMemory(), zap.NewNop())
	ctx := context.Background()
	rahim, err := r.Register(ctx, "ph-1", "Rahim", "01711000001", nil, nil)
	require.NoError(t, err)
	karim, err := r.Register(ctx, "ph-1", "Karim", "01811000002", nil, nil)
	require.NoError(t, err)

	got, err := r.Find(ctx, "ph-1", "RIM")
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, karim.ID, got[0].ID)

	got, err = r.Find(ctx, "ph-1", "0171")
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, rahim.ID, got[0].ID)

	got, err = r.Find(ctx, "ph-1", "")
	require.NoError(t, err)
	assert.Len(t, got, 2)

	got, err = r.Find(ctx, "ph-9", "rahim")
	require.NoError(t, err)
	assert.Empty(t, got)
}

func TestAppendHistoryTx(t *testing.T) {
	st := store.NewMemory()
	r := NewRegistry(st, zap.NewNop())
	ctx := context.Background()
	c, err := r.Register(ctx, "ph-1", "Rahim", "01711000001", nil, nil)
	require.NoError(t, err)

	order := domain.Order{ID: "ord-1", PharmacyID: "ph-1", Total: decimal.RequireFromString("52.50"), CreatedAt: time.Now().UTC()}
	require.NoError(t, st.Atomic(ctx, func(tx store.Tx) error {
		return r.AppendHistoryTx(ctx, tx, c.ID, order)
	}))

	history, err := r.History(ctx, c.ID)
	require.NoError(t, err)
	require.Len(t, history, 1)
	assert.Equal(t, "ord-1", history[0].OrderID)
	assert.True(t, history[0].Total.Equal(order.Total))

	_, err = r.History(ctx, "missing")
	assert.ErrorIs(t, err, domain.ErrNotFound)
}
