package config

import (
	"os"
	"strconv"
	"time"
)

// Server captures process-level configuration for the engine.
type Server struct {
	Addr string

	// Redis backs the counter store and the rule write-through cache.
	// Empty URL means in-memory fallback (single-process deployments, tests).
	Redis RedisConfig

	// CounterTimeout bounds every counter store round trip. Calls that do
	// not complete in time fall back to the fail-open path.
	CounterTimeout time.Duration

	// ViolationBufferSize caps the in-memory violation ring buffer.
	ViolationBufferSize int

	// AuditBufferSize is the async audit publisher channel capacity.
	AuditBufferSize int
}

// RedisConfig holds Redis connection settings.
type RedisConfig struct {
	URL          string
	PoolSize     int
	MinIdleConns int
	DialTimeout  time.Duration
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
}

// FromEnv builds a Server config from environment variables so main stays lean.
func FromEnv() Server {
	addr := os.Getenv("FAREGATE_ADDR")
	if addr == "" {
		addr = ":8080"
	}

	return Server{
		Addr: addr,
		Redis: RedisConfig{
			URL:          os.Getenv("FAREGATE_REDIS_URL"),
			PoolSize:     envInt("FAREGATE_REDIS_POOL_SIZE", 10),
			MinIdleConns: envInt("FAREGATE_REDIS_MIN_IDLE_CONNS", 2),
			DialTimeout:  envDuration("FAREGATE_REDIS_DIAL_TIMEOUT", 5*time.Second),
			ReadTimeout:  envDuration("FAREGATE_REDIS_READ_TIMEOUT", 500*time.Millisecond),
			WriteTimeout: envDuration("FAREGATE_REDIS_WRITE_TIMEOUT", 500*time.Millisecond),
		},
		CounterTimeout:      envDuration("FAREGATE_COUNTER_TIMEOUT", 250*time.Millisecond),
		ViolationBufferSize: envInt("FAREGATE_VIOLATION_BUFFER_SIZE", 10000),
		AuditBufferSize:     envInt("FAREGATE_AUDIT_BUFFER_SIZE", 1024),
	}
}

func envInt(key string, fallback int) int {
	if raw := os.Getenv(key); raw != "" {
		if v, err := strconv.Atoi(raw); err == nil && v > 0 {
			return v
		}
	}
	return fallback
}

func envDuration(key string, fallback time.Duration) time.Duration {
	if raw := os.Getenv(key); raw != "" {
		if d, err := time.ParseDuration(raw); err == nil && d > 0 {
			return d
		}
	}
	return fallback
}
