// Package alert raises operator alerts for conditions that need a human,
// such as a sale whose commit outcome is unknown.
package alert

import (
	"context"
	"fmt"
	"time"

	"github.com/getsentry/sentry-go"
	"go.uber.org/zap"
)

type Alerter interface {
	Alert(ctx context.Context, message string, err error, tags map[string]string)
}

// Log writes alerts at error level.
type Log struct {
	logger *zap.Logger
}

func NewLog(logger *zap.Logger) *Log {
	return &Log{logger: logger}
}

func (l *Log) Alert(_ context.Context, message string, err error, tags map[string]string) {
	fields := make([]zap.Field, 0, len(tags)+1)
	fields = append(fields, zap.Error(err))
	for k, v := range tags {
		fields = append(fields, zap.String(k, v))
	}
	l.logger.Error(message, fields...)
}

// Sentry reports alerts to Sentry and logs them.
type Sentry struct {
	hub *sentry.Hub
	log *Log
}

// NewSentry initialises a dedicated Sentry client for dsn.
func NewSentry(dsn, environment string, logger *zap.Logger) (*Sentry, error) {
	client, err := sentry.NewClient(sentry.ClientOptions{
		Dsn:         dsn,
		Environment: environment,
	})
	if err != nil {
		return nil, fmt.Errorf("sentry init: %w", err)
	}
	return &Sentry{hub: sentry.NewHub(client, sentry.NewScope()), log: NewLog(logger)}, nil
}

func (s *Sentry) Alert(ctx context.Context, message string, err error, tags map[string]string) {
	s.log.Alert(ctx, message, err, tags)
	s.hub.WithScope(func(scope *sentry.Scope) {
		scope.SetTags(tags)
		scope.SetExtra("message", message)
		s.hub.CaptureException(err)
	})
}

// Flush waits for buffered events to be sent.
func (s *Sentry) Flush(timeout time.Duration) bool {
	return s.hub.Flush(timeout)
}
