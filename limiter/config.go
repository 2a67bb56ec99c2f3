package limiter

import (
	"fmt"
	"time"
)

// Defaults applied by NewConfig when a field is left at its zero value.
const (
	DefaultWindowSize         = 60 * time.Second
	DefaultBurstSize          = 10
	DefaultRefillRate         = 1.0
	DefaultPriority           = 1
	DefaultQuotaResetInterval = time.Hour
)

// Config is the immutable configuration for one admission check. It is
// built per request from caller parameters; limiters copy the fields
// they need and never retain the struct.
type Config struct {
	// Limit is the capacity unit: tokens for bucket algorithms, the
	// request count threshold for window algorithms. Must be positive.
	Limit int

	// WindowSize applies to the window-based algorithms.
	WindowSize time.Duration

	// BurstSize is the extra allowance granted by burst operations.
	BurstSize int

	// RefillRate is units per second added (token bucket) or drained
	// (leaky bucket). Fractional rates are supported.
	RefillRate float64

	Algorithm   Algorithm
	EnableBurst bool

	// Priority scales the effective limit for priority operations.
	Priority int

	// QuotaResetInterval is reported by the quota view; it does not
	// drive any algorithm.
	QuotaResetInterval time.Duration
}

// NewConfig fills in defaults for unset fields and returns the result.
func NewConfig(c Config) Config {
	if c.WindowSize == 0 {
		c.WindowSize = DefaultWindowSize
	}
	if c.BurstSize == 0 {
		c.BurstSize = DefaultBurstSize
	}
	if c.RefillRate == 0 {
		c.RefillRate = DefaultRefillRate
	}
	if c.Algorithm == "" {
		c.Algorithm = TokenBucket
	}
	if c.Priority == 0 {
		c.Priority = DefaultPriority
	}
	if c.QuotaResetInterval == 0 {
		c.QuotaResetInterval = DefaultQuotaResetInterval
	}
	return c
}

// Validate reports whether the configuration can drive a limiter.
func (c Config) Validate() error {
	if c.Limit <= 0 {
		return fmt.Errorf("limit must be positive, got %d", c.Limit)
	}
	if c.WindowSize <= 0 {
		return fmt.Errorf("window size must be positive, got %s", c.WindowSize)
	}
	if c.RefillRate <= 0 {
		return fmt.Errorf("refill rate must be positive, got %v", c.RefillRate)
	}
	if _, ok := ParseAlgorithm(string(c.Algorithm)); !ok {
		return fmt.Errorf("unknown algorithm %q", c.Algorithm)
	}
	return nil
}
