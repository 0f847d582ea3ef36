package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// Config holds application configuration values.
type Config struct {
	AppEnv    string
	Secret    string
	HTTPPort  string
	Origins   []string
	Database  DatabaseConfig
	Logger    LoggerConfig
	Billing   BillingConfig
	Redis     RedisConfig
	Kafka     KafkaConfig
	Mongo     MongoConfig
	Sentry    SentryConfig
	Assistant AssistantConfig

	// Warnings collects values that were invalid and replaced by defaults.
	// They are logged once the logger exists.
	Warnings []string
}

type DatabaseConfig struct {
	Driver          string
	DSN             string
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
	SeedCSV         string
	SeedPharmacyID  string
}

type LoggerConfig struct {
	Level    string
	Encoding string
}

type BillingConfig struct {
	TaxRate decimal.Decimal
	// IdleTTL is how long an untouched open bill is kept in memory.
	IdleTTL time.Duration
}

type RedisConfig struct {
	Addr     string
	Password string
	DB       int
	LockTTL  time.Duration
}

type KafkaConfig struct {
	Brokers []string
	Topic   string
}

type MongoConfig struct {
	URI        string
	Database   string
	Collection string
}

type SentryConfig struct {
	DSN string
}

type AssistantConfig struct {
	Endpoint     string
	APIKey       string
	Model        string
	Timeout      time.Duration
	InitialDelay time.Duration
	MaxRetries   int
}

// Load reads configuration from environment variables with reasonable defaults.
func Load() Config {
	cfg := Config{
		AppEnv: getEnv("APP_ENV", "development"),
		Secret: getEnv("SECRET", "dev_secret"),
	}

	port := getEnv("HTTP_PORT", "8080")
	if _, err := strconv.Atoi(port); err != nil {
		cfg.warn("invalid HTTP_PORT value %q, defaulting to 8080", port)
		port = "8080"
	}
	cfg.HTTPPort = port
	cfg.Origins = getEnvSlice("CORS_ALLOWED_ORIGINS", []string{"*"})

	driver := getEnv("DATABASE_DRIVER", "sqlite")
	dsn := os.Getenv("DATABASE_DSN")
	if dsn == "" {
		if driver == "postgres" {
			dsn = fmt.Sprintf("postgres://%s:%s@%s:%s/%s?sslmode=disable",
				getEnv("POSTGRES_USER", "postgres"),
				getEnv("POSTGRES_PASSWORD", ""),
				getEnv("POSTGRES_HOST", "localhost"),
				getEnv("POSTGRES_PORT", "5432"),
				getEnv("POSTGRES_DB", "varogra"))
		} else {
			dsn = "file:varogra.db?_pragma=foreign_keys(1)&_pragma=busy_timeout(5000)"
		}
	}
	cfg.Database = DatabaseConfig{
		Driver:          driver,
		DSN:             dsn,
		MaxOpenConns:    cfg.getEnvInt("DATABASE_MAX_OPEN_CONNS", 10),
		MaxIdleConns:    cfg.getEnvInt("DATABASE_MAX_IDLE_CONNS", 5),
		ConnMaxLifetime: cfg.getEnvDuration("DATABASE_CONN_MAX_LIFETIME", 5*time.Minute),
		SeedCSV:         getEnv("SEED_CSV", "assets/medicine.csv"),
		SeedPharmacyID:  getEnv("SEED_PHARMACY_ID", ""),
	}

	cfg.Logger = LoggerConfig{
		Level:    getEnv("LOGGER_LEVEL", ""),
		Encoding: getEnv("LOGGER_ENCODING", ""),
	}

	taxRate, err := decimal.NewFromString(getEnv("TAX_RATE", "0.05"))
	if err != nil || taxRate.IsNegative() || taxRate.GreaterThan(decimal.NewFromInt(1)) {
		cfg.warn("invalid TAX_RATE value %q, defaulting to 0.05", os.Getenv("TAX_RATE"))
		taxRate = decimal.RequireFromString("0.05")
	}
	cfg.Billing = BillingConfig{
		TaxRate: taxRate,
		IdleTTL: cfg.getEnvDuration("BILL_IDLE_TTL", 12*time.Hour),
	}

	cfg.Redis = RedisConfig{
		Addr:     getEnv("REDIS_ADDR", ""),
		Password: getEnv("REDIS_PASSWORD", ""),
		DB:       cfg.getEnvInt("REDIS_DB", 0),
		LockTTL:  cfg.getEnvDuration("CHECKOUT_LOCK_TTL", 30*time.Second),
	}

	cfg.Kafka = KafkaConfig{
		Brokers: getEnvSlice("KAFKA_BROKERS", nil),
		Topic:   getEnv("KAFKA_TOPIC_ORDERS", "orders.events"),
	}

	cfg.Mongo = MongoConfig{
		URI:        getEnv("MONGODB_URI", ""),
		Database:   getEnv("MONGODB_DATABASE", "varogra"),
		Collection: getEnv("MONGODB_COLLECTION", "orders"),
	}

	cfg.Sentry = SentryConfig{DSN: getEnv("SENTRY_DSN", "")}

	cfg.Assistant = AssistantConfig{
		Endpoint:     getEnv("ASSISTANT_ENDPOINT", "https://generativelanguage.googleapis.com/v1beta"),
		APIKey:       getEnv("ASSISTANT_API_KEY", ""),
		Model:        getEnv("ASSISTANT_MODEL", "gemini-1.5-flash"),
		Timeout:      cfg.getEnvDuration("ASSISTANT_TIMEOUT", 60*time.Second),
		InitialDelay: cfg.getEnvDuration("ASSISTANT_RETRY_DELAY", 2*time.Second),
		MaxRetries:   cfg.getEnvInt("ASSISTANT_MAX_RETRIES", 3),
	}

	return cfg
}

// Development reports whether the service runs in a local environment.
func (c Config) Development() bool {
	return c.AppEnv == "development" || c.AppEnv == "dev"
}

func (c *Config) warn(format string, args ...any) {
	c.Warnings = append(c.Warnings, fmt.Sprintf(format, args...))
}

func getEnv(key, fallback string) string {
	if value, ok := os.LookupEnv(key); ok {
		return value
	}
	return fallback
}

func (c *Config) getEnvInt(key string, fallback int) int {
	value, ok := os.LookupEnv(key)
	if !ok {
		return fallback
	}
	i, err := strconv.Atoi(value)
	if err != nil {
		c.warn("invalid %s value %q, defaulting to %d", key, value, fallback)
		return fallback
	}
	return i
}

func (c *Config) getEnvDuration(key string, fallback time.Duration) time.Duration {
	value, ok := os.LookupEnv(key)
	if !ok {
		return fallback
	}
	d, err := time.ParseDuration(value)
	if err != nil {
		c.warn("invalid %s value %q, defaulting to %s", key, value, fallback)
		return fallback
	}
	return d
}

func getEnvSlice(key string, fallback []string) []string {
	value, ok := os.LookupEnv(key)
	if !ok || strings.TrimSpace(value) == "" {
		return fallback
	}
	parts := strings.Split(value, ",")
	out := parts[:0]
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}
