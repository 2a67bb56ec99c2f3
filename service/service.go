// Package service exposes the rate limiting core behind a single
// operation-dispatch entry point. Callers name an operation, pass a
// parameter map, and receive a structured response envelope; failures
// never escape as panics.
package service

import (
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/mkarlsen/throttle/internal/log"
	"github.com/mkarlsen/throttle/limiter"
)

// Response is the envelope returned by every Execute call.
type Response struct {
	Status    string         `json:"status"`
	Operation string         `json:"operation"`
	Result    map[string]any `json:"result"`
	Error     string         `json:"error,omitempty"`
}

const (
	statusSuccess = "success"
	statusError   = "error"
)

// Service dispatches rate limit operations onto the limiter registry.
type Service struct {
	registry *limiter.Registry
	logger   *zap.Logger
}

// Option configures a Service.
type Option func(*Service)

// WithRegistry supplies a pre-built registry, letting hosts control the
// eviction cap, clock, and adaptive load source.
func WithRegistry(r *limiter.Registry) Option {
	return func(s *Service) { s.registry = r }
}

// WithLogger overrides the default process logger.
func WithLogger(l *zap.Logger) Option {
	return func(s *Service) { s.logger = l }
}

// New creates a Service with a default bounded registry.
func New(opts ...Option) *Service {
	s := &Service{}
	for _, opt := range opts {
		opt(s)
	}
	if s.registry == nil {
		s.registry = limiter.NewRegistry(limiter.DefaultMaxEntries)
	}
	if s.logger == nil {
		s.logger = log.Logger()
	}
	return s
}

// Execute validates the request, routes it to the named operation, and
// wraps the outcome in a response envelope. A denied admission check is
// a success response; only validation and dispatch failures are errors.
func (s *Service) Execute(operation string, params Params) (resp Response) {
	defer func() {
		if r := recover(); r != nil {
			s.logger.Error("operation panicked",
				zap.String("operation", operation),
				zap.Any("panic", r))
			resp = s.failure(operation, fmt.Errorf("internal error: %v", r))
		}
	}()

	if params == nil {
		params = Params{}
	}

	result, err := s.dispatch(operation, params)
	if err != nil {
		return s.failure(operation, err)
	}
	return Response{Status: statusSuccess, Operation: operation, Result: result}
}

func (s *Service) dispatch(operation string, params Params) (map[string]any, error) {
	identifier, err := params.identifier()
	if err != nil {
		return nil, err
	}

	switch operation {
	case "token_bucket", "distributed_rate_limit":
		return s.check(identifier, params, limiter.TokenBucket, nil)
	case "leaky_bucket":
		return s.check(identifier, params, limiter.LeakyBucket, nil)
	case "sliding_window", "sliding_window_counter":
		return s.check(identifier, params, limiter.SlidingWindow, nil)
	case "fixed_window":
		return s.check(identifier, params, limiter.FixedWindow, nil)
	case "adaptive_rate_limit":
		return s.check(identifier, params, limiter.Adaptive, nil)
	case "hierarchical_rate_limit", "rate_limit_priority":
		return s.priorityCheck(identifier, params)
	case "rate_limit_burst":
		return s.burstCheck(identifier, params)
	case "quota_management":
		return s.quota(identifier, params)
	case "rate_limit_config":
		return s.configEcho(identifier, params)
	case "rate_limit_status":
		return s.status(identifier, params)
	case "rate_limit_reset":
		return s.reset(identifier, params)
	case "rate_limit_analyze":
		return s.analyze(identifier, params)
	default:
		return nil, fmt.Errorf("unsupported operation: %s", operation)
	}
}

// check runs one admission check. A non-empty algorithm pins the
// operation to that algorithm; mutate, when set, adjusts the resolved
// configuration before the limiter is obtained.
func (s *Service) check(identifier string, params Params, algorithm limiter.Algorithm, mutate func(*limiter.Config)) (map[string]any, error) {
	cfg, err := params.config(algorithm)
	if err != nil {
		return nil, err
	}
	if mutate != nil {
		mutate(&cfg)
	}
	weight, err := params.weight()
	if err != nil {
		return nil, err
	}

	lim, err := s.registry.GetOrCreate(identifier, cfg)
	if err != nil {
		return nil, err
	}
	return resultMap(lim.Allow(weight)), nil
}

func (s *Service) priorityCheck(identifier string, params Params) (map[string]any, error) {
	priority, err := params.intVal("priority", limiter.DefaultPriority)
	if err != nil {
		return nil, err
	}
	result, err := s.check(identifier, params, limiter.TokenBucket, func(cfg *limiter.Config) {
		cfg.Limit = int(float64(cfg.Limit) * (1 + float64(priority)*0.1))
	})
	if err != nil {
		return nil, err
	}
	result["priority"] = priority
	return result, nil
}

func (s *Service) burstCheck(identifier string, params Params) (map[string]any, error) {
	result, err := s.check(identifier, params, "", func(cfg *limiter.Config) {
		cfg.Limit += cfg.BurstSize
		cfg.EnableBurst = true
	})
	if err != nil {
		return nil, err
	}
	result["burst_enabled"] = true
	return result, nil
}

func (s *Service) quota(identifier string, params Params) (map[string]any, error) {
	cfg, err := params.config("")
	if err != nil {
		return nil, err
	}
	lim, err := s.registry.GetOrCreate(identifier, cfg)
	if err != nil {
		return nil, err
	}
	st := lim.Status()
	return map[string]any{
		"identifier":      identifier,
		"quota_used":      st.Used,
		"quota_limit":     st.Limit,
		"quota_remaining": st.Remaining,
		"reset_interval":  cfg.QuotaResetInterval.Seconds(),
	}, nil
}

// configEcho reports the resolved configuration without touching any
// limiter state.
func (s *Service) configEcho(identifier string, params Params) (map[string]any, error) {
	cfg, err := params.config("")
	if err != nil {
		return nil, err
	}
	return map[string]any{
		"identifier":           identifier,
		"limit":                cfg.Limit,
		"window_size":          cfg.WindowSize.Seconds(),
		"burst_size":           cfg.BurstSize,
		"refill_rate":          cfg.RefillRate,
		"algorithm":            cfg.Algorithm.String(),
		"enable_burst":         cfg.EnableBurst,
		"priority":             cfg.Priority,
		"quota_reset_interval": cfg.QuotaResetInterval.Seconds(),
	}, nil
}

func (s *Service) status(identifier string, params Params) (map[string]any, error) {
	cfg, err := params.config("")
	if err != nil {
		return nil, err
	}
	lim, err := s.registry.GetOrCreate(identifier, cfg)
	if err != nil {
		return nil, err
	}
	st := lim.Status()
	return map[string]any{
		"identifier": identifier,
		"algorithm":  st.Algorithm.String(),
		"limit":      st.Limit,
		"used":       st.Used,
		"remaining":  st.Remaining,
		"details":    st.Details,
	}, nil
}

func (s *Service) reset(identifier string, params Params) (map[string]any, error) {
	cfg, err := params.config("")
	if err != nil {
		return nil, err
	}
	lim, ok := s.registry.Lookup(identifier, cfg.Algorithm)
	if ok {
		lim.Reset()
	}
	return map[string]any{
		"identifier": identifier,
		"reset":      ok,
	}, nil
}

func (s *Service) analyze(identifier string, params Params) (map[string]any, error) {
	cfg, err := params.config("")
	if err != nil {
		return nil, err
	}
	lim, err := s.registry.GetOrCreate(identifier, cfg)
	if err != nil {
		return nil, err
	}
	st := lim.Status()

	usage := 0.0
	if st.Limit > 0 {
		usage = float64(st.Used) / float64(st.Limit) * 100
	}

	action := "normal"
	switch {
	case usage > 90:
		action = "increase_limit"
	case usage > 80:
		action = "monitor_closely"
	case usage < 20:
		action = "consider_reducing_limit"
	}

	return map[string]any{
		"identifier":           identifier,
		"algorithm":            st.Algorithm.String(),
		"current_count":        st.Used,
		"limit":                st.Limit,
		"usage_percentage":     usage,
		"is_approaching_limit": usage > 80,
		"is_at_limit":          usage >= 100,
		"recommended_action":   action,
	}, nil
}

func (s *Service) failure(operation string, err error) Response {
	return Response{
		Status:    statusError,
		Operation: operation,
		Error:     err.Error(),
	}
}

// resultMap flattens an admission result into the wire shape shared by
// all check operations. Timestamps are epoch seconds; durations are
// fractional seconds.
func resultMap(res limiter.Result) map[string]any {
	return map[string]any{
		"allowed":       res.Allowed,
		"remaining":     res.Remaining,
		"reset_time":    epochSeconds(res.ResetTime),
		"retry_after":   res.RetryAfter.Seconds(),
		"current_usage": res.CurrentUsage,
		"limit":         res.Limit,
		"algorithm":     res.Algorithm.String(),
		"metadata":      res.Metadata,
	}
}

func epochSeconds(t time.Time) float64 {
	return float64(t.UnixNano()) / float64(time.Second)
}
