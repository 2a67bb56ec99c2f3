package limiter

import (
	"math"
	"sync"
	"time"
)

var _ Limiter = &tokenBucket{}

type tokenBucket struct {
	mu sync.Mutex

	limit      int
	refillRate float64
	now        Clock

	tokens     float64
	lastRefill time.Time
}

// NewTokenBucket creates a token bucket limiter starting full.
func NewTokenBucket(cfg Config, now Clock) Limiter {
	return newTokenBucket(cfg, now)
}

func newTokenBucket(cfg Config, now Clock) *tokenBucket {
	if now == nil {
		now = time.Now
	}
	return &tokenBucket{
		limit:      cfg.Limit,
		refillRate: cfg.RefillRate,
		now:        now,
		tokens:     float64(cfg.Limit),
		lastRefill: now(),
	}
}

func (b *tokenBucket) Allow(weight int) Result {
	return b.admit(weight, b.limit, b.refillRate)
}

// admit runs one refill-then-consume cycle against the given effective
// limit and rate. The adaptive limiter calls this with scaled values
// while the accumulated token state stays shared.
func (b *tokenBucket) admit(weight, limit int, rate float64) Result {
	b.mu.Lock()
	defer b.mu.Unlock()

	now := b.now()
	b.refill(now, limit, rate)

	res := Result{
		Limit:     limit,
		Algorithm: TokenBucket,
		Metadata:  map[string]any{"refill_rate": rate},
	}

	if b.tokens >= float64(weight) {
		b.tokens -= float64(weight)
		res.Allowed = true
	} else {
		res.RetryAfter = clampRetry(seconds((float64(weight) - b.tokens) / rate))
	}

	res.Remaining = int(math.Floor(b.tokens))
	res.CurrentUsage = limit - res.Remaining
	res.ResetTime = now.Add(seconds((float64(limit) - b.tokens) / rate))
	return res
}

// refill adds elapsed*rate tokens capped at limit. Caller holds the lock.
func (b *tokenBucket) refill(now time.Time, limit int, rate float64) {
	elapsed := now.Sub(b.lastRefill).Seconds()
	if elapsed < 0 {
		elapsed = 0
	}
	b.tokens = math.Min(float64(limit), b.tokens+elapsed*rate)
	b.lastRefill = now
}

func (b *tokenBucket) Status() Status {
	return b.statusAt(b.limit, b.refillRate)
}

// statusAt reports state against an effective limit without mutating
// the stored token balance.
func (b *tokenBucket) statusAt(limit int, rate float64) Status {
	b.mu.Lock()
	defer b.mu.Unlock()

	now := b.now()
	elapsed := now.Sub(b.lastRefill).Seconds()
	if elapsed < 0 {
		elapsed = 0
	}
	tokens := math.Min(float64(limit), b.tokens+elapsed*rate)
	remaining := int(math.Floor(tokens))

	return Status{
		Algorithm: TokenBucket,
		Limit:     limit,
		Used:      limit - remaining,
		Remaining: remaining,
		Details: map[string]any{
			"tokens":      tokens,
			"refill_rate": rate,
		},
	}
}

func (b *tokenBucket) Reset() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.tokens = float64(b.limit)
	b.lastRefill = b.now()
}

// seconds converts a float second count to a duration.
func seconds(s float64) time.Duration {
	return time.Duration(s * float64(time.Second))
}
