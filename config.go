package carta

import (
	"fmt"
	"strings"

	"carta/ds"

	"go.uber.org/zap"
)

// DefaultBucketCount is the bucket count used when none is configured.
const DefaultBucketCount = ds.DefaultBucketCount

// PoisonPolicy selects what an interrupted write leaves behind in its bucket.
type PoisonPolicy = ds.PoisonPolicy

const (
	// PoisonFail keeps the bucket poisoned; every later operation on a key that
	// resolves to it returns an error wrapping ErrPoisoned.
	PoisonFail = ds.PoisonFail
	// PoisonReset empties the bucket and keeps serving it.
	PoisonReset = ds.PoisonReset
)

type Config struct {
	BucketCount  int          // Fixed number of buckets, never changed after New.
	PoisonPolicy PoisonPolicy // default PoisonFail
	Logger       *zap.Logger  // default zap.NewNop()
}

func DefaultConfig() Config {
	return Config{
		BucketCount:  DefaultBucketCount,
		PoisonPolicy: PoisonFail,
		Logger:       zap.NewNop(),
	}
}

// Option adjusts a Config.
type Option func(*Config)

// WithBucketCount sets the number of buckets.
func WithBucketCount(n int) Option {
	return func(c *Config) {
		c.BucketCount = n
	}
}

// WithPoisonPolicy sets the poison policy.
func WithPoisonPolicy(p PoisonPolicy) Option {
	return func(c *Config) {
		c.PoisonPolicy = p
	}
}

// WithLogger sets the logger used for construction and poisoning events.
func WithLogger(l *zap.Logger) Option {
	return func(c *Config) {
		c.Logger = l
	}
}

// ParsePoisonPolicy parses "fail" or "reset".
func ParsePoisonPolicy(s string) (PoisonPolicy, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "fail":
		return PoisonFail, nil
	case "reset":
		return PoisonReset, nil
	default:
		return PoisonFail, fmt.Errorf("%w: poison policy %q", ErrInvalidParam, s)
	}
}
