// Package config loads service configuration from the environment.
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog"
)

// Store drivers.
const (
	DriverMongo  = "mongo"
	DriverMemory = "memory"
)

// Config is the full service configuration.
type Config struct {
	Port     string
	AppURL   string
	LogLevel zerolog.Level

	StoreDriver   string
	MongoURI      string
	MongoDatabase string

	RedisAddr     string
	RedisPassword string
	RedisDB       int

	EncryptionKey    string
	ShopifyAPIKey    string
	ShopifyAPISecret string
	ShopifyScopes    []string
	InviteSigningKey string

	WorkerCount         int
	ItemConcurrency     int
	SyncSchedule        string
	JobLeaseTTL         time.Duration
	JobLivenessTimeout  time.Duration
	MaxItemAttempts     int
	MaxJobAttempts      int
	RetryBaseDelay      time.Duration
	RetryMaxDelay       time.Duration
	PartialFailureRatio float64
	HealthErrorRatio    float64
	PreviewLimit        int
	InviteTTL           time.Duration
	LogRetention        time.Duration
	HandshakeTTL        time.Duration
	APIRatePerSecond    float64
}

// Load reads .env when present, then the environment. Every invalid value
// is reported together.
func Load() (*Config, error) {
	_ = godotenv.Load()
	return FromLookup(os.LookupEnv)
}

// FromLookup builds a Config from lookup.
func FromLookup(lookup func(string) (string, bool)) (*Config, error) {
	p := parser{lookup: lookup}
	cfg := &Config{
		Port:          p.str("PORT", "8080"),
		AppURL:        strings.TrimSuffix(p.str("APP_URL", "http://localhost:8080"), "/"),
		LogLevel:      p.level("LOG_LEVEL", zerolog.InfoLevel),
		StoreDriver:   p.str("STORE_DRIVER", DriverMongo),
		MongoURI:      p.str("MONGODB_URI", "mongodb://localhost:27017"),
		MongoDatabase: p.str("MONGODB_DATABASE", "sync_layer"),
		RedisAddr:     p.str("REDIS_ADDR", ""),
		RedisPassword: p.str("REDIS_PASSWORD", ""),
		RedisDB:       p.int("REDIS_DB", 0),

		EncryptionKey:    p.required("ENCRYPTION_KEY"),
		ShopifyAPIKey:    p.str("SHOPIFY_API_KEY", ""),
		ShopifyAPISecret: p.required("SHOPIFY_API_SECRET"),
		ShopifyScopes:    p.list("SHOPIFY_SCOPES", []string{"read_products", "write_products", "read_inventory", "write_inventory", "read_locations"}),
		InviteSigningKey: p.str("INVITE_SIGNING_KEY", ""),

		WorkerCount:         p.int("WORKER_COUNT", 4),
		ItemConcurrency:     p.int("ITEM_CONCURRENCY", 4),
		SyncSchedule:        p.str("SYNC_SCHEDULE", ""),
		JobLeaseTTL:         p.duration("JOB_LEASE_TTL", 2*time.Minute),
		JobLivenessTimeout:  p.duration("JOB_LIVENESS_TIMEOUT", 10*time.Minute),
		MaxItemAttempts:     p.int("MAX_ITEM_ATTEMPTS", 5),
		MaxJobAttempts:      p.int("MAX_JOB_ATTEMPTS", 3),
		RetryBaseDelay:      p.duration("RETRY_BASE_DELAY", 500*time.Millisecond),
		RetryMaxDelay:       p.duration("RETRY_MAX_DELAY", 30*time.Second),
		PartialFailureRatio: p.float("PARTIAL_FAILURE_RATIO", 0.5),
		HealthErrorRatio:    p.float("HEALTH_ERROR_RATIO", 0.2),
		PreviewLimit:        p.int("PREVIEW_LIMIT", 50),
		InviteTTL:           p.duration("INVITE_TTL", 7*24*time.Hour),
		LogRetention:        p.duration("LOG_RETENTION", 30*24*time.Hour),
		HandshakeTTL:        p.duration("HANDSHAKE_TTL", 10*time.Minute),
		APIRatePerSecond:    p.float("API_RATE_PER_SECOND", 2),
	}

	if cfg.StoreDriver != DriverMongo && cfg.StoreDriver != DriverMemory {
		p.fail("STORE_DRIVER", "must be mongo or memory")
	}
	if cfg.WorkerCount < 1 {
		p.fail("WORKER_COUNT", "must be at least 1")
	}
	if cfg.ItemConcurrency < 1 {
		p.fail("ITEM_CONCURRENCY", "must be at least 1")
	}
	if cfg.JobLivenessTimeout <= cfg.JobLeaseTTL {
		p.fail("JOB_LIVENESS_TIMEOUT", "must exceed JOB_LEASE_TTL")
	}
	if cfg.PartialFailureRatio <= 0 || cfg.PartialFailureRatio > 1 {
		p.fail("PARTIAL_FAILURE_RATIO", "must be in (0, 1]")
	}
	if cfg.InviteSigningKey == "" {
		cfg.InviteSigningKey = cfg.ShopifyAPISecret
	}
	if len(p.errs) > 0 {
		return nil, fmt.Errorf("invalid configuration: %w", errors.Join(p.errs...))
	}
	return cfg, nil
}

type parser struct {
	lookup func(string) (string, bool)
	errs   []error
}

func (p *parser) fail(key, msg string) {
	p.errs = append(p.errs, fmt.Errorf("%s %s", key, msg))
}

func (p *parser) raw(key string) (string, bool) {
	v, ok := p.lookup(key)
	v = strings.TrimSpace(v)
	return v, ok && v != ""
}

func (p *parser) str(key, def string) string {
	if v, ok := p.raw(key); ok {
		return v
	}
	return def
}

func (p *parser) required(key string) string {
	v, ok := p.raw(key)
	if !ok {
		p.fail(key, "is required")
	}
	return v
}

func (p *parser) int(key string, def int) int {
	v, ok := p.raw(key)
	if !ok {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		p.fail(key, "must be an integer")
		return def
	}
	return n
}

func (p *parser) float(key string, def float64) float64 {
	v, ok := p.raw(key)
	if !ok {
		return def
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		p.fail(key, "must be a number")
		return def
	}
	return f
}

func (p *parser) duration(key string, def time.Duration) time.Duration {
	v, ok := p.raw(key)
	if !ok {
		return def
	}
	d, err := time.ParseDuration(v)
	if err != nil || d <= 0 {
		p.fail(key, "must be a positive duration")
		return def
	}
	return d
}

func (p *parser) list(key string, def []string) []string {
	v, ok := p.raw(key)
	if !ok {
		return def
	}
	var out []string
	for _, s := range strings.Split(v, ",") {
		if s = strings.TrimSpace(s); s != "" {
			out = append(out, s)
		}
	}
	return out
}

func (p *parser) level(key string, def zerolog.Level) zerolog.Level {
	v, ok := p.raw(key)
	if !ok {
		return def
	}
	lvl, err := zerolog.ParseLevel(strings.ToLower(v))
	if err != nil {
		p.fail(key, "must be debug, info, warn or error")
		return def
	}
	return lvl
}
