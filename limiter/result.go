package limiter

import "time"

// Result is the outcome of a single admission check. A denied check is
// not an error: RetryAfter tells the caller how long to wait.
type Result struct {
	Allowed bool

	// Remaining is the capacity left after this decision. Never negative.
	Remaining int

	// ResetTime is when capacity is next expected to be available.
	ResetTime time.Time

	// RetryAfter is zero when allowed.
	RetryAfter time.Duration

	// CurrentUsage is the capacity consumed at the time of the decision.
	CurrentUsage int

	// Limit echoes the effective limit applied, which may differ from
	// the configured limit under adaptive or priority scaling.
	Limit int

	Algorithm Algorithm

	// Metadata carries algorithm-specific extras such as refill_rate
	// or load_factor.
	Metadata map[string]any
}

// clampRetry floors a retry duration at zero. Negative values can fall
// out of clock arithmetic at window edges and must not reach callers.
func clampRetry(d time.Duration) time.Duration {
	if d < 0 {
		return 0
	}
	return d
}
