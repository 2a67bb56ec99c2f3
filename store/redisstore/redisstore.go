// Package redisstore backs the admission contract with shared redis
// state. It is the extension point for limiting across processes: the
// in-process operations stay single-node, and hosts that need one
// global budget per identifier point this store at a shared redis.
package redisstore

import (
	"context"
	"errors"
	"fmt"
	"math"
	"strconv"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/mkarlsen/throttle/limiter"
)

const (
	sortedSetMax = "+inf"
	sortedSetMin = "-inf"
)

type bucketRecord struct {
	Tokens     float64 `redis:"tokens"`
	LastRefill int64   `redis:"last_refill"`
}

// Store evaluates admission checks against redis-held state.
type Store struct {
	mu        sync.Mutex
	client    *redis.Client
	keyPrefix string
	now       func() time.Time
}

// Option configures a Store.
type Option func(*Store)

// WithPrefix overrides the key prefix.
func WithPrefix(prefix string) Option {
	return func(s *Store) { s.keyPrefix = prefix }
}

// WithClock injects the time source.
func WithClock(now func() time.Time) Option {
	return func(s *Store) { s.now = now }
}

// New creates a Store around an existing redis client.
func New(client *redis.Client, opts ...Option) *Store {
	s := &Store{
		client:    client,
		keyPrefix: "throttle:",
		now:       time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *Store) key(kind, identifier string) string {
	return s.keyPrefix + kind + ":" + identifier
}

// AllowTokenBucket runs a token bucket check against a redis hash
// holding the shared token balance and refill timestamp.
func (s *Store) AllowTokenBucket(ctx context.Context, identifier string, cfg limiter.Config, weight int) (limiter.Result, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	key := s.key("token_bucket", identifier)
	now := s.now()

	var rec bucketRecord
	err := s.client.HGetAll(ctx, key).Scan(&rec)
	if err != nil && !errors.Is(err, redis.Nil) {
		return limiter.Result{}, fmt.Errorf("read bucket %s: %w", key, err)
	}
	if rec.LastRefill == 0 {
		rec.Tokens = float64(cfg.Limit)
	} else {
		elapsed := float64(now.Unix() - rec.LastRefill)
		if elapsed < 0 {
			elapsed = 0
		}
		rec.Tokens = math.Min(float64(cfg.Limit), rec.Tokens+elapsed*cfg.RefillRate)
	}
	rec.LastRefill = now.Unix()

	res := limiter.Result{
		Limit:     cfg.Limit,
		Algorithm: limiter.TokenBucket,
		Metadata:  map[string]any{"refill_rate": cfg.RefillRate, "backend": "redis"},
	}

	if rec.Tokens >= float64(weight) {
		rec.Tokens -= float64(weight)
		res.Allowed = true
	} else {
		wait := (float64(weight) - rec.Tokens) / cfg.RefillRate
		res.RetryAfter = time.Duration(wait * float64(time.Second))
	}
	res.Remaining = int(math.Floor(rec.Tokens))
	res.CurrentUsage = cfg.Limit - res.Remaining
	res.ResetTime = now.Add(time.Duration((float64(cfg.Limit) - rec.Tokens) / cfg.RefillRate * float64(time.Second)))

	p := s.client.Pipeline()
	p.HSet(ctx, key, map[string]interface{}{
		"tokens":      rec.Tokens,
		"last_refill": rec.LastRefill,
	})
	p.Expire(ctx, key, cfg.QuotaResetInterval)
	if _, err := p.Exec(ctx); err != nil {
		return limiter.Result{}, fmt.Errorf("write bucket %s: %w", key, err)
	}
	return res, nil
}

// AllowSlidingWindow runs a sliding window check against a redis sorted
// set of request ids scored by milliseconds. Each admitted call
// occupies one slot, matching the in-process sliding window.
func (s *Store) AllowSlidingWindow(ctx context.Context, identifier string, cfg limiter.Config) (limiter.Result, error) {
	key := s.key("sliding_window", identifier)
	now := s.now()
	minimum := now.Add(-cfg.WindowSize)

	res := limiter.Result{
		Limit:     cfg.Limit,
		Algorithm: limiter.SlidingWindow,
		Metadata:  map[string]any{"window_seconds": cfg.WindowSize.Seconds(), "backend": "redis"},
	}

	count, err := s.client.ZCount(ctx, key, strconv.FormatInt(minimum.UnixMilli(), 10), sortedSetMax).Result()
	if err != nil {
		return limiter.Result{}, fmt.Errorf("count window %s: %w", key, err)
	}
	if int(count) >= cfg.Limit {
		return s.denySlidingWindow(ctx, key, cfg, now, res, int(count))
	}

	p := s.client.Pipeline()
	p.ZRemRangeByScore(ctx, key, "0", strconv.FormatInt(minimum.UnixMilli(), 10))
	add := p.ZAdd(ctx, key, redis.Z{
		Score:  float64(now.UnixMilli()),
		Member: uuid.New().String(),
	})
	total := p.ZCount(ctx, key, sortedSetMin, sortedSetMax)
	p.Expire(ctx, key, cfg.WindowSize)
	if _, err := p.Exec(ctx); err != nil {
		return limiter.Result{}, fmt.Errorf("window pipeline for %s: %w", key, err)
	}
	if err := add.Err(); err != nil {
		return limiter.Result{}, fmt.Errorf("record request for %s: %w", key, err)
	}

	occupied, err := total.Result()
	if err != nil {
		return limiter.Result{}, fmt.Errorf("count window %s: %w", key, err)
	}

	res.Allowed = true
	res.CurrentUsage = int(occupied)
	res.Remaining = cfg.Limit - int(occupied)
	if res.Remaining < 0 {
		res.Remaining = 0
	}
	res.ResetTime = now.Add(cfg.WindowSize)
	return res, nil
}

// denySlidingWindow fills in retry timing from the oldest tracked entry.
func (s *Store) denySlidingWindow(ctx context.Context, key string, cfg limiter.Config, now time.Time, res limiter.Result, count int) (limiter.Result, error) {
	res.CurrentUsage = count
	res.ResetTime = now.Add(cfg.WindowSize)

	oldest, err := s.client.ZRangeWithScores(ctx, key, 0, 0).Result()
	if err == nil && len(oldest) > 0 {
		at := time.UnixMilli(int64(oldest[0].Score)).Add(cfg.WindowSize)
		res.ResetTime = at
		if wait := at.Sub(now); wait > 0 {
			res.RetryAfter = wait
		}
	}
	return res, nil
}
