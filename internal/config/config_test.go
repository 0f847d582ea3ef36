package config

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
)

func TestLoadDefaults(t *testing.T) {
	t.Setenv("DATABASE_DSN", "")
	t.Setenv("KAFKA_BROKERS", "")
	t.Setenv("CORS_ALLOWED_ORIGINS", "")
	t.Setenv("APP_ENV", "development")
	t.Setenv("HTTP_PORT", "8080")
	t.Setenv("DATABASE_DRIVER", "sqlite")
	t.Setenv("TAX_RATE", "0.05")

	cfg := Load()
	assert.True(t, cfg.Development())
	assert.Equal(t, "8080", cfg.HTTPPort)
	assert.Equal(t, "sqlite", cfg.Database.Driver)
	assert.Contains(t, cfg.Database.DSN, "varogra.db")
	assert.True(t, decimal.RequireFromString("0.05").Equal(cfg.Billing.TaxRate))
	assert.Equal(t, 12*time.Hour, cfg.Billing.IdleTTL)
	assert.Empty(t, cfg.Kafka.Brokers)
	assert.Equal(t, []string{"*"}, cfg.Origins)
	assert.Empty(t, cfg.Warnings)
}

func TestLoadPostgresDSN(t *testing.T) {
	t.Setenv("DATABASE_DRIVER", "postgres")
	t.Setenv("DATABASE_DSN", "")
	t.Setenv("POSTGRES_USER", "pos")
	t.Setenv("POSTGRES_PASSWORD", "pw")
	t.Setenv("POSTGRES_HOST", "db")
	t.Setenv("POSTGRES_PORT", "5433")
	t.Setenv("POSTGRES_DB", "shop")

	cfg := Load()
	assert.Equal(t, "postgres://pos:pw@db:5433/shop?sslmode=disable", cfg.Database.DSN)
}

func TestLoadInvalidValuesFallBack(t *testing.T) {
	t.Setenv("HTTP_PORT", "eighty")
	t.Setenv("TAX_RATE", "1.5")
	t.Setenv("ASSISTANT_MAX_RETRIES", "many")
	t.Setenv("CHECKOUT_LOCK_TTL", "soon")

	cfg := Load()
	assert.Equal(t, "8080", cfg.HTTPPort)
	assert.True(t, decimal.RequireFromString("0.05").Equal(cfg.Billing.TaxRate))
	assert.Equal(t, 3, cfg.Assistant.MaxRetries)
	assert.Equal(t, 30*time.Second, cfg.Redis.LockTTL)
	assert.Len(t, cfg.Warnings, 4)
}

func TestLoadLists(t *testing.T) {
	t.Setenv("KAFKA_BROKERS", "k1:9092, k2:9092,,")
	t.Setenv("CORS_ALLOWED_ORIGINS", "https://pos.example.com")

	cfg := Load()
	assert.Equal(t, []string{"k1:9092", "k2:9092"}, cfg.Kafka.Brokers)
	assert.Equal(t, []string{"https://pos.example.com"}, cfg.Origins)
}
