package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
	"github.com/rs/zerolog/log"
)

const (
	StoreDriverPostgres = "postgres"
	StoreDriverMemory   = "memory"

	LockBackendLocal = "local"
	LockBackendRedis = "redis"
)

type Config struct {
	Port                   int           `env:"PORT" envDefault:"8080"`
	StoreDriver            string        `env:"STORE_DRIVER" envDefault:"postgres"`
	DatabaseURL            string        `env:"DATABASE_URL"`
	AutoMigrate            bool          `env:"AUTO_MIGRATE" envDefault:"true"`
	RedisURL               string        `env:"REDIS_URL"`
	LockBackend            string        `env:"LOCK_BACKEND" envDefault:"local"`
	KafkaBrokers           []string      `env:"KAFKA_BROKERS" envSeparator:","`
	KafkaTopic             string        `env:"KAFKA_TOPIC" envDefault:"driver-state-events"`
	KafkaGroupID           string        `env:"KAFKA_GROUP_ID" envDefault:"fatigue-core"`
	StaleSessionHours      int           `env:"STALE_SESSION_HOURS" envDefault:"12"`
	EventRetentionDays     int           `env:"EVENT_RETENTION_DAYS" envDefault:"30"`
	StaleSweepInterval     time.Duration `env:"STALE_SWEEP_INTERVAL" envDefault:"1h"`
	RetentionPurgeInterval time.Duration `env:"RETENTION_PURGE_INTERVAL" envDefault:"24h"`
	FeatureWindowMinutes   int           `env:"FEATURE_WINDOW_MINUTES" envDefault:"30"`
	Timezone               string        `env:"TIMEZONE" envDefault:"Local"`
	IngestRateLimitPerMin  int           `env:"INGEST_RATE_LIMIT_PER_MIN" envDefault:"600"`
	MaxBodyBytes           int64         `env:"MAX_BODY_BYTES" envDefault:"65536"`
	LogLevel               string        `env:"LOG_LEVEL" envDefault:"info"`
	Production             bool          `env:"PRODUCTION" envDefault:"false"`
}

func (c *Config) StaleSessionAfter() time.Duration {
	return time.Duration(c.StaleSessionHours) * time.Hour
}

func (c *Config) EventRetention() time.Duration {
	return time.Duration(c.EventRetentionDays) * 24 * time.Hour
}

func (c *Config) FeatureWindow() time.Duration {
	return time.Duration(c.FeatureWindowMinutes) * time.Minute
}

func (c *Config) KafkaEnabled() bool {
	return len(c.KafkaBrokers) > 0
}

func (c *Config) Addr() string {
	return fmt.Sprintf(":%d", c.Port)
}

// Location resolves the zone used for wall-clock features such as time of day.
func (c *Config) Location() (*time.Location, error) {
	if c.Timezone == "" || c.Timezone == "Local" {
		return time.Local, nil
	}
	loc, err := time.LoadLocation(c.Timezone)
	if err != nil {
		return nil, fmt.Errorf("load timezone %q: %w", c.Timezone, err)
	}
	return loc, nil
}

func (c *Config) Validate() error {
	switch c.StoreDriver {
	case StoreDriverPostgres:
		if c.DatabaseURL == "" {
			return fmt.Errorf("DATABASE_URL is required when STORE_DRIVER=%s", StoreDriverPostgres)
		}
	case StoreDriverMemory:
		log.Warn().Msg("STORE_DRIVER=memory: sessions and events are lost on restart")
	default:
		return fmt.Errorf("STORE_DRIVER must be %q or %q, got %q", StoreDriverPostgres, StoreDriverMemory, c.StoreDriver)
	}

	switch c.LockBackend {
	case LockBackendLocal:
	case LockBackendRedis:
		if c.RedisURL == "" {
			return fmt.Errorf("REDIS_URL is required when LOCK_BACKEND=%s", LockBackendRedis)
		}
	default:
		return fmt.Errorf("LOCK_BACKEND must be %q or %q, got %q", LockBackendLocal, LockBackendRedis, c.LockBackend)
	}

	if c.StaleSessionHours <= 0 {
		return fmt.Errorf("STALE_SESSION_HOURS must be positive")
	}
	if c.EventRetentionDays <= 0 {
		return fmt.Errorf("EVENT_RETENTION_DAYS must be positive")
	}
	if c.StaleSweepInterval <= 0 || c.RetentionPurgeInterval <= 0 {
		return fmt.Errorf("reaper intervals must be positive")
	}
	if c.FeatureWindowMinutes <= 0 {
		return fmt.Errorf("FEATURE_WINDOW_MINUTES must be positive")
	}
	if c.MaxBodyBytes <= 0 {
		return fmt.Errorf("MAX_BODY_BYTES must be positive")
	}
	if _, err := c.Location(); err != nil {
		return err
	}

	if c.LockBackend == LockBackendRedis && strings.HasPrefix(c.RedisURL, "redis://") {
		log.Warn().Msg("REDIS_URL uses redis:// (not TLS): session locks travel unencrypted")
	}

	return nil
}

// Load reads an optional .env file and then parses the environment.
func Load() (*Config, error) {
	_ = godotenv.Load()

	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}
	return &cfg, nil
}
