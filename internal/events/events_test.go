package events

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type failingPublisher struct{ err error }

func (f failingPublisher) Publish(context.Context, Event) error { return f.err }

func TestHubDeliversInSubscriptionOrder(t *testing.T) {
	hub := NewHub()
	var got []string
	hub.Subscribe(func(e Event) { got = append(got, "a:"+e.Type) })
	hub.Subscribe(func(e Event) { got = append(got, "b:"+e.Type) })

	e, err := New(OrderCreated, "ph-1", "ord-1", map[string]string{"total": "10.00"})
	require.NoError(t, err)
	require.NoError(t, hub.Publish(context.Background(), e))

	assert.Equal(t, []string{"a:order.created", "b:order.created"}, got)
}

func TestHubUnsubscribe(t *testing.T) {
	hub := NewHub()
	calls := 0
	unsubscribe := hub.Subscribe(func(Event) { calls++ })
	require.Equal(t, 1, hub.Len())

	unsubscribe()
	unsubscribe()
	assert.Equal(t, 0, hub.Len())

	require.NoError(t, hub.Publish(context.Background(), Event{Type: StockChanged}))
	assert.Zero(t, calls)
}

func TestEventDecode(t *testing.T) {
	e, err := New(OrderStatusChanged, "ph-1", "ord-9", map[string]string{"status": "preparing"})
	require.NoError(t, err)
	assert.NotEmpty(t, e.ID)
	assert.False(t, e.Timestamp.IsZero())

	var payload map[string]string
	require.NoError(t, e.Decode(&payload))
	assert.Equal(t, "preparing", payload["status"])
}

func TestMultiJoinsErrors(t *testing.T) {
	hub := NewHub()
	delivered := false
	hub.Subscribe(func(Event) { delivered = true })
	boom := errors.New("broker down")

	err := Multi{failingPublisher{err: boom}, hub, Discard{}}.Publish(context.Background(), Event{Type: OrderCreated})
	require.Error(t, err)
	assert.ErrorIs(t, err, boom)
	assert.True(t, delivered, "later publishers still receive the event")
}
