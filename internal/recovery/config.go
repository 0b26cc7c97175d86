package recovery

import (
	"time"

	"github.com/smallbiznis/partnerpay/internal/config"
)

// Config controls the webhook replay sweep.
type Config struct {
	Enabled     bool
	Interval    time.Duration
	Threshold   time.Duration
	MaxAttempts int
	BatchSize   int
	LockTTL     time.Duration
}

func DefaultConfig() Config {
	return Config{
		Enabled:     true,
		Interval:    time.Minute,
		Threshold:   5 * time.Minute,
		MaxAttempts: 10,
		BatchSize:   25,
		LockTTL:     2 * time.Minute,
	}
}

func ProvideConfig(cfg config.Config) Config {
	return Config{
		Enabled:     cfg.Recovery.Enabled,
		Interval:    cfg.Recovery.Interval,
		Threshold:   cfg.Recovery.Threshold,
		MaxAttempts: cfg.Recovery.MaxAttempts,
		BatchSize:   cfg.Recovery.BatchSize,
	}.withDefaults()
}

func (c Config) withDefaults() Config {
	defaults := DefaultConfig()
	if c.Interval <= 0 {
		c.Interval = defaults.Interval
	}
	if c.Threshold <= 0 {
		c.Threshold = defaults.Threshold
	}
	if c.MaxAttempts <= 0 {
		c.MaxAttempts = defaults.MaxAttempts
	}
	if c.BatchSize <= 0 {
		c.BatchSize = defaults.BatchSize
	}
	if c.LockTTL <= 0 {
		c.LockTTL = 2 * c.Interval
	}
	return c
}
