package cache

import (
	"time"

	"github.com/yungbote/playhub-backend/internal/platform/envutil"
)

const DefaultVersion = "v1"

type Config struct {
	Version string

	LocalSize int
	LocalTTL  time.Duration
	RemoteTTL time.Duration

	// CompressThreshold is the encoded size in bytes from which remote values are zstd-compressed.
	CompressThreshold int

	// per-call budget for a single remote operation; pattern deletes get PatternTimeout
	OpTimeout      time.Duration
	PatternTimeout time.Duration

	// consecutive remote failures that open the breaker, and how long it stays open
	BreakerFailures uint32
	BreakerCooldown time.Duration

	InvalidationChannel string
}

func DefaultConfig() Config {
	return Config{
		Version:             DefaultVersion,
		LocalSize:           1000,
		LocalTTL:            30 * time.Second,
		RemoteTTL:           10 * time.Minute,
		CompressThreshold:   1024,
		OpTimeout:           150 * time.Millisecond,
		PatternTimeout:      2 * time.Second,
		BreakerFailures:     5,
		BreakerCooldown:     30 * time.Second,
		InvalidationChannel: "cache:invalidate",
	}
}

func ConfigFromEnv() Config {
	def := DefaultConfig()
	cfg := Config{
		Version:             envutil.String("CACHE_VERSION", def.Version),
		LocalSize:           envutil.Int("CACHE_LOCAL_SIZE", def.LocalSize),
		LocalTTL:            envutil.Duration("CACHE_LOCAL_TTL", def.LocalTTL),
		RemoteTTL:           envutil.Duration("CACHE_REMOTE_TTL", def.RemoteTTL),
		CompressThreshold:   envutil.Int("CACHE_COMPRESS_THRESHOLD", def.CompressThreshold),
		OpTimeout:           envutil.Duration("CACHE_BREAKER_TIMEOUT", def.OpTimeout),
		PatternTimeout:      envutil.Duration("CACHE_PATTERN_TIMEOUT", def.PatternTimeout),
		BreakerFailures:     uint32(envutil.Int("CACHE_BREAKER_FAILURES", int(def.BreakerFailures))),
		BreakerCooldown:     envutil.Duration("CACHE_BREAKER_COOLDOWN", def.BreakerCooldown),
		InvalidationChannel: envutil.String("CACHE_INVALIDATION_CHANNEL", def.InvalidationChannel),
	}
	return cfg.withDefaults()
}

func (c Config) withDefaults() Config {
	def := DefaultConfig()
	if c.Version == "" {
		c.Version = def.Version
	}
	if c.LocalSize <= 0 {
		c.LocalSize = def.LocalSize
	}
	if c.LocalTTL <= 0 {
		c.LocalTTL = def.LocalTTL
	}
	if c.RemoteTTL <= 0 {
		c.RemoteTTL = def.RemoteTTL
	}
	if c.OpTimeout <= 0 {
		c.OpTimeout = def.OpTimeout
	}
	if c.PatternTimeout <= 0 {
		c.PatternTimeout = def.PatternTimeout
	}
	if c.BreakerFailures == 0 {
		c.BreakerFailures = def.BreakerFailures
	}
	if c.BreakerCooldown <= 0 {
		c.BreakerCooldown = def.BreakerCooldown
	}
	if c.InvalidationChannel == "" {
		c.InvalidationChannel = def.InvalidationChannel
	}
	return c
}
