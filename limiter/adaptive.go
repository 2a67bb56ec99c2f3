package limiter

import (
	"math"
	"math/rand"
	"sync"
	"time"
)

// Load factor bounds and the minimum interval between adjustments.
const (
	minLoadFactor  = 0.1
	maxLoadFactor  = 2.0
	adjustInterval = 60 * time.Second
)

// LoadSource supplies the load feedback driving the adaptive limiter.
// Sample returns the adjustment to apply to the current load factor;
// the limiter clamps the result into [0.1, 2.0]. Inject a deterministic
// implementation to test adaptive behavior.
type LoadSource interface {
	Sample() float64
}

// randomWalkSource reproduces the default behavior: a bounded random
// nudge standing in for a real load signal.
type randomWalkSource struct{}

func (randomWalkSource) Sample() float64 {
	return (rand.Float64() - 0.5) * 0.2
}

var _ Limiter = &adaptiveLimiter{}

// adaptiveLimiter scales a token bucket's effective limit and refill
// rate by a periodically adjusted load factor. The token balance is
// shared across adjustments: only the ceiling moves.
type adaptiveLimiter struct {
	mu sync.Mutex

	bucket    *tokenBucket
	baseLimit int
	baseRate  float64
	now       Clock
	source    LoadSource

	loadFactor     float64
	lastAdjustment time.Time
}

// NewAdaptive creates an adaptive limiter around persistent token
// bucket state. A nil source falls back to the bounded random walk.
func NewAdaptive(cfg Config, now Clock, source LoadSource) Limiter {
	if now == nil {
		now = time.Now
	}
	if source == nil {
		source = randomWalkSource{}
	}
	return &adaptiveLimiter{
		bucket:         newTokenBucket(cfg, now),
		baseLimit:      cfg.Limit,
		baseRate:       cfg.RefillRate,
		now:            now,
		source:         source,
		loadFactor:     1.0,
		lastAdjustment: now(),
	}
}

func (a *adaptiveLimiter) Allow(weight int) Result {
	limit, rate, factor := a.effective()

	res := a.bucket.admit(weight, limit, rate)
	res.Algorithm = Adaptive
	res.Metadata["load_factor"] = factor
	res.Metadata["original_limit"] = a.baseLimit
	return res
}

// effective recomputes the load factor at most once per interval and
// returns the scaled limit and rate.
func (a *adaptiveLimiter) effective() (int, float64, float64) {
	a.mu.Lock()
	defer a.mu.Unlock()

	now := a.now()
	if now.Sub(a.lastAdjustment) >= adjustInterval {
		a.loadFactor = clampFactor(a.loadFactor + a.source.Sample())
		a.lastAdjustment = now
	}

	limit := int(float64(a.baseLimit) * a.loadFactor)
	if limit < 1 {
		limit = 1
	}
	return limit, a.baseRate * a.loadFactor, a.loadFactor
}

func clampFactor(f float64) float64 {
	return math.Min(maxLoadFactor, math.Max(minLoadFactor, f))
}

func (a *adaptiveLimiter) Status() Status {
	limit, rate, factor := a.effective()

	st := a.bucket.statusAt(limit, rate)
	st.Algorithm = Adaptive
	st.Details["load_factor"] = factor
	st.Details["original_limit"] = a.baseLimit
	return st
}

func (a *adaptiveLimiter) Reset() {
	a.mu.Lock()
	a.loadFactor = 1.0
	a.lastAdjustment = a.now()
	a.mu.Unlock()

	a.bucket.Reset()
}
