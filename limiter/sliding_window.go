package limiter

import (
	"sync"
	"time"
)

var _ Limiter = &slidingWindow{}

// slidingWindow keeps a log of admission timestamps and admits while
// the log holds fewer than limit entries inside the window ending now.
//
// Each admitted call occupies exactly one slot: the weight parameter is
// accepted for interface symmetry but does not change window occupancy.
type slidingWindow struct {
	mu sync.Mutex

	limit  int
	window time.Duration
	now    Clock

	// timestamps is append-only in call order and pruned from the front,
	// so entries stay sorted.
	timestamps []time.Time
}

// NewSlidingWindow creates a sliding window log limiter.
func NewSlidingWindow(cfg Config, now Clock) Limiter {
	if now == nil {
		now = time.Now
	}
	return &slidingWindow{
		limit:  cfg.Limit,
		window: cfg.WindowSize,
		now:    now,
	}
}

func (w *slidingWindow) Allow(weight int) Result {
	w.mu.Lock()
	defer w.mu.Unlock()

	now := w.now()
	w.prune(now)

	res := Result{
		Limit:     w.limit,
		Algorithm: SlidingWindow,
		Metadata:  map[string]any{"window_seconds": w.window.Seconds()},
	}

	count := len(w.timestamps)
	if count < w.limit {
		w.timestamps = append(w.timestamps, now)
		res.Allowed = true
		res.Remaining = w.limit - count - 1
		res.ResetTime = w.timestamps[0].Add(w.window)
	} else {
		oldest := w.timestamps[0]
		res.ResetTime = oldest.Add(w.window)
		res.RetryAfter = clampRetry(oldest.Add(w.window).Sub(now))
	}

	res.CurrentUsage = len(w.timestamps)
	return res
}

// prune drops entries at or before now-window. Caller holds the lock.
func (w *slidingWindow) prune(now time.Time) {
	cutoff := now.Add(-w.window)
	i := 0
	for i < len(w.timestamps) && !w.timestamps[i].After(cutoff) {
		i++
	}
	if i > 0 {
		w.timestamps = append(w.timestamps[:0], w.timestamps[i:]...)
	}
}

func (w *slidingWindow) Status() Status {
	w.mu.Lock()
	defer w.mu.Unlock()

	cutoff := w.now().Add(-w.window)
	used := 0
	for _, ts := range w.timestamps {
		if ts.After(cutoff) {
			used++
		}
	}
	remaining := w.limit - used
	if remaining < 0 {
		remaining = 0
	}

	return Status{
		Algorithm: SlidingWindow,
		Limit:     w.limit,
		Used:      used,
		Remaining: remaining,
		Details: map[string]any{
			"window_seconds": w.window.Seconds(),
			"tracked_calls":  len(w.timestamps),
		},
	}
}

func (w *slidingWindow) Reset() {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.timestamps = nil
}
