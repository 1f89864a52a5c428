package workload

import (
	"fmt"
	"time"

	"carta"
	"carta/hashing"
)

const (
	defaultWorkers  = 8
	defaultKeys     = 100000
	defaultDuration = 5 * time.Second
)

type LogConfig struct {
	Level  string `koanf:"level"`  // debug, info, warn, error
	Format string `koanf:"format"` // json or console
}

type MetricsConfig struct {
	Addr string `koanf:"addr"` // serve /metrics here when set
}

type Config struct {
	Buckets  int           `koanf:"buckets"`
	Workers  int           `koanf:"workers"`
	Keys     int           `koanf:"keys"`     // distinct keys inserted before the mixed phase
	Duration time.Duration `koanf:"duration"` // length of the mixed phase
	Hasher   string        `koanf:"hasher"`   // one of hashing.Names
	KeyGen   string        `koanf:"keygen"`   // seq or snowflake
	Poison   string        `koanf:"poison"`   // fail or reset
	Log      LogConfig     `koanf:"log"`
	Metrics  MetricsConfig `koanf:"metrics"`
}

func DefaultConfig() Config {
	return Config{
		Buckets:  carta.DefaultBucketCount,
		Workers:  defaultWorkers,
		Keys:     defaultKeys,
		Duration: defaultDuration,
		Hasher:   "murmur3",
		KeyGen:   KeyGenSeq,
		Poison:   "fail",
		Log:      LogConfig{Level: "info", Format: "console"},
	}
}

// Validate checks the values a Runner cannot recover from.
func (c Config) Validate() error {
	if c.Buckets <= 0 {
		return fmt.Errorf("%w: buckets must be positive, got %d", carta.ErrInvalidParam, c.Buckets)
	}
	if c.Workers <= 0 {
		return fmt.Errorf("%w: workers must be positive, got %d", carta.ErrInvalidParam, c.Workers)
	}
	if c.Keys < 0 {
		return fmt.Errorf("%w: keys must not be negative, got %d", carta.ErrInvalidParam, c.Keys)
	}
	if c.Duration < 0 {
		return fmt.Errorf("%w: duration must not be negative, got %s", carta.ErrInvalidParam, c.Duration)
	}
	if _, err := hashing.Lookup(c.Hasher); err != nil {
		return err
	}
	if _, err := carta.ParsePoisonPolicy(c.Poison); err != nil {
		return err
	}
	switch c.KeyGen {
	case KeyGenSeq, KeyGenSnowflake:
	default:
		return fmt.Errorf("%w: keygen %q", carta.ErrInvalidParam, c.KeyGen)
	}
	return nil
}
