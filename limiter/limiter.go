package limiter

import "time"

// Algorithm identifies an admission-control algorithm.
type Algorithm string

const (
	TokenBucket   Algorithm = "token_bucket"
	LeakyBucket   Algorithm = "leaky_bucket"
	SlidingWindow Algorithm = "sliding_window"
	FixedWindow   Algorithm = "fixed_window"
	Adaptive      Algorithm = "adaptive"
)

// ParseAlgorithm maps a request string onto an Algorithm, falling back
// to TokenBucket for empty input.
func ParseAlgorithm(s string) (Algorithm, bool) {
	switch Algorithm(s) {
	case "":
		return TokenBucket, true
	case TokenBucket, LeakyBucket, SlidingWindow, FixedWindow, Adaptive:
		return Algorithm(s), true
	default:
		return "", false
	}
}

// String returns the wire name of the algorithm.
func (a Algorithm) String() string {
	return string(a)
}

// Status is a non-mutating view of a limiter's internal state. Used and
// Remaining are measured against the effective limit at the time of the
// call; Details carries algorithm-specific fields.
type Status struct {
	Algorithm Algorithm
	Limit     int
	Used      int
	Remaining int
	Details   map[string]any
}

// Limiter is a single admission controller scoped to one identifier.
// Implementations own their synchronization: Allow decisions for the
// same instance are serialized, and no call performs I/O.
type Limiter interface {
	// Allow runs one admission check consuming the given weight.
	Allow(weight int) Result

	// Status reports current state without consuming capacity.
	Status() Status

	// Reset restores the limiter to its freshly created state.
	Reset()
}

// Clock is the time source injected into every limiter so tests can run
// against a fixed clock.
type Clock func() time.Time
