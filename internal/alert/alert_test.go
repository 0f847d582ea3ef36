package alert

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"
)

func TestLogAlert(t *testing.T) {
	core, logs := observer.New(zap.ErrorLevel)
	a := NewLog(zap.New(core))

	a.Alert(context.Background(), "sale commit outcome unknown", errors.New("connection reset"), map[string]string{"order_id": "ord-1"})

	entries := logs.All()
	require.Len(t, entries, 1)
	assert.Equal(t, "sale commit outcome unknown", entries[0].Message)
	ctx := entries[0].ContextMap()
	assert.Equal(t, "ord-1", ctx["order_id"])
	assert.Equal(t, "connection reset", ctx["error"])
}

func TestSentryWithoutDSN(t *testing.T) {
	core, logs := observer.New(zap.ErrorLevel)
	s, err := NewSentry("", "test", zap.New(core))
	require.NoError(t, err)

	s.Alert(context.Background(), "sale commit outcome unknown", errors.New("boom"), nil)
	assert.Equal(t, 1, logs.Len())
	s.Flush(0)
}
