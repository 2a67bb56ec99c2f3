package limiter

import (
	"fmt"
	"sync"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"
)

// DefaultMaxEntries bounds the registry when no cap is given. The
// original design kept every identifier forever; bounding it is an
// explicit policy here, sized for the expected identifier cardinality.
const DefaultMaxEntries = 16384

// Registry owns the live limiter instances, keyed by identifier and
// algorithm. The same identifier under two algorithms is two
// independent limiters with independent state.
//
// Entries are evicted least-recently-used once the cap is reached; an
// evicted identifier that reappears starts with fresh capacity.
type Registry struct {
	mu       sync.Mutex
	limiters *lru.Cache[string, Limiter]
	now      Clock
	source   LoadSource
}

// RegistryOption configures a Registry.
type RegistryOption func(*Registry)

// WithClock injects the time source handed to every created limiter.
func WithClock(now Clock) RegistryOption {
	return func(r *Registry) { r.now = now }
}

// WithLoadSource injects the load feedback for adaptive limiters.
func WithLoadSource(source LoadSource) RegistryOption {
	return func(r *Registry) { r.source = source }
}

// NewRegistry creates a registry bounded to maxEntries live limiters.
// A non-positive maxEntries selects DefaultMaxEntries.
func NewRegistry(maxEntries int, opts ...RegistryOption) *Registry {
	if maxEntries <= 0 {
		maxEntries = DefaultMaxEntries
	}
	cache, err := lru.New[string, Limiter](maxEntries)
	if err != nil {
		// lru.New only fails on a non-positive size.
		panic(err)
	}
	r := &Registry{
		limiters: cache,
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Key builds the registry key for an identifier and algorithm.
func Key(identifier string, algorithm Algorithm) string {
	return identifier + "_" + string(algorithm)
}

// GetOrCreate returns the limiter for the identifier and configured
// algorithm, creating it on first use. Concurrent first use for the
// same key yields a single instance.
func (r *Registry) GetOrCreate(identifier string, cfg Config) (Limiter, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	key := Key(identifier, cfg.Algorithm)

	r.mu.Lock()
	defer r.mu.Unlock()

	if lim, ok := r.limiters.Get(key); ok {
		return lim, nil
	}

	lim, err := r.build(cfg)
	if err != nil {
		return nil, err
	}
	r.limiters.Add(key, lim)
	return lim, nil
}

func (r *Registry) build(cfg Config) (Limiter, error) {
	switch cfg.Algorithm {
	case TokenBucket:
		return NewTokenBucket(cfg, r.now), nil
	case LeakyBucket:
		return NewLeakyBucket(cfg, r.now), nil
	case SlidingWindow:
		return NewSlidingWindow(cfg, r.now), nil
	case FixedWindow:
		return NewFixedWindow(cfg, r.now), nil
	case Adaptive:
		return NewAdaptive(cfg, r.now, r.source), nil
	default:
		return nil, fmt.Errorf("unknown algorithm %q", cfg.Algorithm)
	}
}

// Lookup returns the limiter for the key if it already exists, without
// creating one or refreshing its recency.
func (r *Registry) Lookup(identifier string, algorithm Algorithm) (Limiter, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.limiters.Peek(Key(identifier, algorithm))
}

// Remove drops the limiter for the key, reporting whether it existed.
func (r *Registry) Remove(identifier string, algorithm Algorithm) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.limiters.Remove(Key(identifier, algorithm))
}

// Len reports the number of live limiters.
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.limiters.Len()
}
