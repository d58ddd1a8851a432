// Package config loads runtime configuration from the environment.
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

const (
	ServiceName    = "stockroom"
	ServiceVersion = "0.1.0"
)

const (
	StoreMySQL  = "mysql"
	StoreMemory = "memory"
)

type Config struct {
	HTTPAddr        string
	GRPCAddr        string
	ShutdownTimeout time.Duration
	LogLevel        string

	StoreDriver          string
	MySQLDSN             string
	MySQLMaxOpenConns    int
	MySQLMaxIdleConns    int
	MySQLConnMaxLifetime time.Duration
	StoreTimeout         time.Duration

	RedisAddr      string
	IdempotencyTTL time.Duration

	KafkaBrokers []string
	KafkaTopic   string

	OtelEndpoint string
}

// Load reads configuration from the environment, falling back to defaults.
// Malformed values are reported rather than silently replaced.
func Load() (Config, error) {
	l := loader{}
	cfg := Config{
		HTTPAddr:        getenv("HTTP_ADDR", ":3000"),
		GRPCAddr:        getenv("GRPC_ADDR", ":50051"),
		ShutdownTimeout: l.duration("SHUTDOWN_TIMEOUT", 10*time.Second),
		LogLevel:        getenv("LOG_LEVEL", "info"),

		StoreDriver:          strings.ToLower(getenv("STORE_DRIVER", StoreMySQL)),
		MySQLDSN:             getenv("MYSQL_DSN", "root:root@tcp(localhost:3306)/stockroom?parseTime=true"),
		MySQLMaxOpenConns:    l.integer("MYSQL_MAX_OPEN_CONNS", 50),
		MySQLMaxIdleConns:    l.integer("MYSQL_MAX_IDLE_CONNS", 25),
		MySQLConnMaxLifetime: l.duration("MYSQL_CONN_MAX_LIFETIME", 5*time.Minute),
		StoreTimeout:         l.duration("STORE_TIMEOUT", 5*time.Second),

		RedisAddr:      os.Getenv("REDIS_ADDR"),
		IdempotencyTTL: l.duration("IDEMPOTENCY_TTL", 24*time.Hour),

		KafkaBrokers: splitList(os.Getenv("KAFKA_BROKERS")),
		KafkaTopic:   getenv("KAFKA_TOPIC", "orders.created"),

		OtelEndpoint: os.Getenv("OTEL_ENDPOINT"),
	}
	if l.err != nil {
		return Config{}, l.err
	}
	if err := cfg.validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c Config) validate() error {
	switch c.StoreDriver {
	case StoreMySQL:
		if c.MySQLDSN == "" {
			return errors.New("MYSQL_DSN is required when STORE_DRIVER=mysql")
		}
	case StoreMemory:
	default:
		return fmt.Errorf("STORE_DRIVER must be %q or %q, got %q", StoreMySQL, StoreMemory, c.StoreDriver)
	}
	if c.MySQLMaxOpenConns <= 0 {
		return errors.New("MYSQL_MAX_OPEN_CONNS must be positive")
	}
	if c.StoreTimeout <= 0 {
		return errors.New("STORE_TIMEOUT must be positive")
	}
	return nil
}

func getenv(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func splitList(v string) []string {
	var out []string
	for _, part := range strings.Split(v, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

// loader keeps the first parse error so Load can report it once.
type loader struct {
	err error
}

func (l *loader) integer(key string, def int) int {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		l.fail(fmt.Errorf("%s: %q is not an integer", key, v))
		return def
	}
	return n
}

// duration accepts Go duration strings ("5s", "250ms").
func (l *loader) duration(key string, def time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		l.fail(fmt.Errorf("%s: %q is not a duration", key, v))
		return def
	}
	return d
}

func (l *loader) fail(err error) {
	if l.err == nil {
		l.err = err
	}
}
