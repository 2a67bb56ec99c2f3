package limiter

import (
	"sync"
	"time"
)

var _ Limiter = &fixedWindow{}

type fixedWindow struct {
	mu sync.Mutex

	limit  int
	window time.Duration
	now    Clock

	count       int
	windowStart int64
}

// NewFixedWindow creates a fixed window counter limiter. Windows are
// discrete buckets of floor(now/window); the counter resets exactly
// when the bucket changes.
func NewFixedWindow(cfg Config, now Clock) Limiter {
	if now == nil {
		now = time.Now
	}
	f := &fixedWindow{
		limit:  cfg.Limit,
		window: cfg.WindowSize,
		now:    now,
	}
	f.windowStart = f.bucket(now())
	return f
}

func (f *fixedWindow) bucket(t time.Time) int64 {
	return t.UnixNano() / int64(f.window)
}

func (f *fixedWindow) Allow(weight int) Result {
	f.mu.Lock()
	defer f.mu.Unlock()

	now := f.now()
	current := f.bucket(now)
	if current != f.windowStart {
		f.count = 0
		f.windowStart = current
	}

	resetTime := time.Unix(0, (current+1)*int64(f.window))
	res := Result{
		Limit:     f.limit,
		Algorithm: FixedWindow,
		ResetTime: resetTime,
		Metadata:  map[string]any{"window_seconds": f.window.Seconds()},
	}

	if f.count+weight <= f.limit {
		f.count += weight
		res.Allowed = true
	} else {
		res.RetryAfter = clampRetry(resetTime.Sub(now))
	}

	res.CurrentUsage = f.count
	res.Remaining = f.limit - f.count
	return res
}

func (f *fixedWindow) Status() Status {
	f.mu.Lock()
	defer f.mu.Unlock()

	count := f.count
	if f.bucket(f.now()) != f.windowStart {
		count = 0
	}
	return Status{
		Algorithm: FixedWindow,
		Limit:     f.limit,
		Used:      count,
		Remaining: f.limit - count,
		Details: map[string]any{
			"window_seconds": f.window.Seconds(),
			"window_start":   f.windowStart,
		},
	}
}

func (f *fixedWindow) Reset() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.count = 0
	f.windowStart = f.bucket(f.now())
}
