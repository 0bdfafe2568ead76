package scheduler

import (
	"time"

	"github.com/smallbiznis/hireboard/internal/config"
)

// Config controls scheduler intervals and batch sizes.
type Config struct {
	Enabled      bool
	RunInterval  time.Duration
	BatchSize    int
	PendingAfter time.Duration
	LockTTL      time.Duration
	EnabledJobs  []string
}

func DefaultConfig() Config {
	return Config{
		Enabled:      true,
		RunInterval:  10 * time.Minute,
		BatchSize:    200,
		PendingAfter: 24 * time.Hour,
		LockTTL:      5 * time.Minute,
	}
}

func ProvideConfig(cfg config.Config) Config {
	return Config{
		Enabled:      cfg.Sweep.Enabled,
		RunInterval:  cfg.Sweep.Interval,
		BatchSize:    cfg.Sweep.BatchSize,
		PendingAfter: cfg.Sweep.PendingAfter,
		LockTTL:      cfg.Sweep.LockTTL,
	}.withDefaults()
}

func (c Config) withDefaults() Config {
	defaults := DefaultConfig()
	if c.RunInterval <= 0 {
		c.RunInterval = defaults.RunInterval
	}
	if c.BatchSize <= 0 {
		c.BatchSize = defaults.BatchSize
	}
	if c.PendingAfter <= 0 {
		c.PendingAfter = defaults.PendingAfter
	}
	if c.LockTTL <= 0 {
		c.LockTTL = defaults.LockTTL
	}
	return c
}
