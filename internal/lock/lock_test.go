package lock

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemoryAcquireIsExclusive(t *testing.T) {
	l := NewMemory()
	ctx := context.Background()

	release, err := l.Acquire(ctx, "bill-1")
	require.NoError(t, err)

	_, err = l.Acquire(ctx, "bill-1")
	assert.ErrorIs(t, err, ErrHeld)

	other, err := l.Acquire(ctx, "bill-2")
	require.NoError(t, err)
	other()

	release()
	release()

	again, err := l.Acquire(ctx, "bill-1")
	require.NoError(t, err)
	again()
}

func TestMemoryAcquireCanceled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := NewMemory().Acquire(ctx, "bill-1")
	assert.ErrorIs(t, err, context.Canceled)
}
