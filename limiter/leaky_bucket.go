package limiter

import (
	"math"
	"sync"
	"time"
)

var _ Limiter = &leakyBucket{}

type leakyBucket struct {
	mu sync.Mutex

	limit    int
	leakRate float64
	now      Clock

	level    float64
	lastLeak time.Time
}

// NewLeakyBucket creates a leaky bucket limiter starting empty. The
// configured refill rate is the drain rate in units per second.
func NewLeakyBucket(cfg Config, now Clock) Limiter {
	if now == nil {
		now = time.Now
	}
	return &leakyBucket{
		limit:    cfg.Limit,
		leakRate: cfg.RefillRate,
		now:      now,
		lastLeak: now(),
	}
}

func (b *leakyBucket) Allow(weight int) Result {
	b.mu.Lock()
	defer b.mu.Unlock()

	now := b.now()
	b.leak(now)

	res := Result{
		Limit:     b.limit,
		Algorithm: LeakyBucket,
		Metadata:  map[string]any{"leak_rate": b.leakRate},
	}

	if b.level+float64(weight) <= float64(b.limit) {
		b.level += float64(weight)
		res.Allowed = true
	} else {
		overflow := b.level + float64(weight) - float64(b.limit)
		res.RetryAfter = clampRetry(seconds(overflow / b.leakRate))
	}

	// Usage reflects the level after leaking, including this request on
	// the allow path only.
	res.CurrentUsage = int(math.Ceil(b.level))
	res.Remaining = b.limit - res.CurrentUsage
	if res.Remaining < 0 {
		res.Remaining = 0
	}
	res.ResetTime = now.Add(seconds(b.level / b.leakRate))
	return res
}

// leak drains elapsed*rate units, flooring the level at zero. Caller
// holds the lock.
func (b *leakyBucket) leak(now time.Time) {
	elapsed := now.Sub(b.lastLeak).Seconds()
	if elapsed < 0 {
		elapsed = 0
	}
	b.level = math.Max(0, b.level-elapsed*b.leakRate)
	b.lastLeak = now
}

func (b *leakyBucket) Status() Status {
	b.mu.Lock()
	defer b.mu.Unlock()

	elapsed := b.now().Sub(b.lastLeak).Seconds()
	if elapsed < 0 {
		elapsed = 0
	}
	level := math.Max(0, b.level-elapsed*b.leakRate)
	used := int(math.Ceil(level))

	return Status{
		Algorithm: LeakyBucket,
		Limit:     b.limit,
		Used:      used,
		Remaining: b.limit - used,
		Details: map[string]any{
			"level":     level,
			"leak_rate": b.leakRate,
		},
	}
}

func (b *leakyBucket) Reset() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.level = 0
	b.lastLeak = b.now()
}
