package service

import (
	"fmt"
	"time"

	"github.com/mkarlsen/throttle/limiter"
)

// DefaultLimit applies when the caller omits the limit parameter.
const DefaultLimit = 100

// Params is the free-form parameter map supplied with every operation.
// Numeric values may arrive as any Go numeric type (JSON decoding
// produces float64); the getters below normalize them.
type Params map[string]any

func (p Params) str(key string) (string, bool) {
	v, ok := p[key]
	if !ok {
		return "", false
	}
	s, ok := v.(string)
	return s, ok
}

func (p Params) intVal(key string, def int) (int, error) {
	v, ok := p[key]
	if !ok {
		return def, nil
	}
	switch n := v.(type) {
	case int:
		return n, nil
	case int32:
		return int(n), nil
	case int64:
		return int(n), nil
	case float64:
		return int(n), nil
	case float32:
		return int(n), nil
	default:
		return 0, fmt.Errorf("parameter %q must be a number", key)
	}
}

func (p Params) floatVal(key string, def float64) (float64, error) {
	v, ok := p[key]
	if !ok {
		return def, nil
	}
	switch n := v.(type) {
	case float64:
		return n, nil
	case float32:
		return float64(n), nil
	case int:
		return float64(n), nil
	case int32:
		return float64(n), nil
	case int64:
		return float64(n), nil
	default:
		return 0, fmt.Errorf("parameter %q must be a number", key)
	}
}

func (p Params) boolVal(key string, def bool) (bool, error) {
	v, ok := p[key]
	if !ok {
		return def, nil
	}
	b, ok := v.(bool)
	if !ok {
		return false, fmt.Errorf("parameter %q must be a boolean", key)
	}
	return b, nil
}

// secondsVal reads a duration expressed in seconds.
func (p Params) secondsVal(key string, def time.Duration) (time.Duration, error) {
	v, err := p.floatVal(key, def.Seconds())
	if err != nil {
		return 0, err
	}
	return time.Duration(v * float64(time.Second)), nil
}

// identifier returns the required identifier parameter.
func (p Params) identifier() (string, error) {
	id, ok := p.str("identifier")
	if !ok || id == "" {
		return "", fmt.Errorf("identifier is required")
	}
	return id, nil
}

// weight returns the request weight, defaulting to 1.
func (p Params) weight() (int, error) {
	w, err := p.intVal("request_weight", 1)
	if err != nil {
		return 0, err
	}
	if w <= 0 {
		return 0, fmt.Errorf("request_weight must be positive, got %d", w)
	}
	return w, nil
}

// config builds a limiter configuration from the request parameters.
// The algorithm argument, when non-empty, overrides whatever the caller
// passed; operations named after an algorithm always run it.
func (p Params) config(algorithm limiter.Algorithm) (limiter.Config, error) {
	var zero limiter.Config

	lim, err := p.intVal("limit", DefaultLimit)
	if err != nil {
		return zero, err
	}
	window, err := p.secondsVal("window_size", limiter.DefaultWindowSize)
	if err != nil {
		return zero, err
	}
	burst, err := p.intVal("burst_size", limiter.DefaultBurstSize)
	if err != nil {
		return zero, err
	}
	rate, err := p.floatVal("refill_rate", limiter.DefaultRefillRate)
	if err != nil {
		return zero, err
	}
	priority, err := p.intVal("priority", limiter.DefaultPriority)
	if err != nil {
		return zero, err
	}
	enableBurst, err := p.boolVal("enable_burst", false)
	if err != nil {
		return zero, err
	}
	quotaReset, err := p.secondsVal("quota_reset_interval", limiter.DefaultQuotaResetInterval)
	if err != nil {
		return zero, err
	}

	if algorithm == "" {
		name, _ := p.str("algorithm")
		parsed, ok := limiter.ParseAlgorithm(name)
		if !ok {
			return zero, fmt.Errorf("unknown algorithm %q", name)
		}
		algorithm = parsed
	}

	cfg := limiter.NewConfig(limiter.Config{
		Limit:              lim,
		WindowSize:         window,
		BurstSize:          burst,
		RefillRate:         rate,
		Algorithm:          algorithm,
		EnableBurst:        enableBurst,
		Priority:           priority,
		QuotaResetInterval: quotaReset,
	})
	if err := cfg.Validate(); err != nil {
		return zero, err
	}
	return cfg, nil
}
