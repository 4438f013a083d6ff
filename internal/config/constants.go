package config

import "time"

// Database connection pool settings
const (
	DBMaxOpenConns    = 25
	DBMaxIdleConns    = 5
	DBConnMaxLifetime = 5 * time.Minute
)

// HTTP server timeouts
const (
	ServerRequestTimeout  = 60 * time.Second
	ServerReadTimeout     = 15 * time.Second
	ServerIdleTimeout     = 120 * time.Second
	ServerShutdownTimeout = 30 * time.Second
)

// Database and redis ping timeout for startup checks
const DBPingTimeout = 5 * time.Second

// Background job settings
const (
	JobRunTimeout    = 30 * time.Second
	ReaperLockTTL    = 5 * time.Minute
	MigrationTimeout = time.Minute
	DBStatsInterval  = 15 * time.Second
)

// Per-driver session lock settings
const (
	SessionLockTimeout = 10 * time.Second
	SessionLockTTL     = 15 * time.Second
	SessionLockRetry   = 25 * time.Millisecond
)

// Kafka redelivery backoff for transient store failures
const (
	KafkaRetryBaseDelay = 200 * time.Millisecond
	KafkaRetryMaxDelay  = 10 * time.Second
)

// Request body cap. A detection event with a full metadata map stays well
// under this size.
const DefaultMaxBodyBytes = 64 << 10

// Default rate limiting
const DefaultRateLimitPerMin = 600
