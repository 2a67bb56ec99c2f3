package service

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/mkarlsen/throttle/limiter"
)

type stubSource struct {
	delta float64
}

func (s stubSource) Sample() float64 { return s.delta }

// newTestService builds a service on a registry with a controllable
// clock. Advance the returned time pointer to move the clock.
func newTestService(start time.Time, opts ...limiter.RegistryOption) (*Service, *time.Time, *limiter.Registry) {
	now := start
	clock := func() time.Time { return now }
	opts = append([]limiter.RegistryOption{limiter.WithClock(clock)}, opts...)
	registry := limiter.NewRegistry(0, opts...)
	svc := New(WithRegistry(registry), WithLogger(zap.NewNop()))
	return svc, &now, registry
}

var testStart = time.Date(2024, time.March, 1, 12, 0, 0, 0, time.UTC)

func TestExecute_MissingIdentifier(t *testing.T) {
	svc, _, _ := newTestService(testStart)

	resp := svc.Execute("token_bucket", Params{})
	assert.Equal(t, "error", resp.Status)
	assert.Equal(t, "token_bucket", resp.Operation)
	assert.Contains(t, resp.Error, "identifier")
	assert.Nil(t, resp.Result)
}

func TestExecute_UnknownOperation(t *testing.T) {
	svc, _, _ := newTestService(testStart)

	resp := svc.Execute("quantum_entangle", Params{"identifier": "u1"})
	assert.Equal(t, "error", resp.Status)
	assert.Equal(t, "quantum_entangle", resp.Operation)
	assert.Contains(t, resp.Error, "quantum_entangle")
}

func TestExecute_ValidationFailureTouchesNoState(t *testing.T) {
	svc, _, registry := newTestService(testStart)

	resp := svc.Execute("token_bucket", Params{"identifier": "u1", "limit": -5})
	assert.Equal(t, "error", resp.Status)
	assert.Contains(t, resp.Error, "limit")

	resp = svc.Execute("token_bucket", Params{"identifier": "u1", "window_size": -1})
	assert.Equal(t, "error", resp.Status)

	resp = svc.Execute("token_bucket", Params{"identifier": "u1", "request_weight": 0})
	assert.Equal(t, "error", resp.Status)

	assert.Equal(t, 0, registry.Len())
}

func TestExecute_TokenBucketScenario(t *testing.T) {
	svc, now, _ := newTestService(testStart)
	params := Params{"identifier": "u1", "limit": 10, "refill_rate": 1.0}

	params["request_weight"] = 5
	resp := svc.Execute("token_bucket", params)
	require.Equal(t, "success", resp.Status)
	assert.Equal(t, true, resp.Result["allowed"])
	assert.Equal(t, 5, resp.Result["remaining"])
	assert.Equal(t, 0.0, resp.Result["retry_after"])

	params["request_weight"] = 6
	resp = svc.Execute("token_bucket", params)
	require.Equal(t, "success", resp.Status)
	assert.Equal(t, false, resp.Result["allowed"])
	assert.InDelta(t, 1.0, resp.Result["retry_after"].(float64), 0.001)

	*now = now.Add(2 * time.Second)
	params["request_weight"] = 5
	resp = svc.Execute("token_bucket", params)
	require.Equal(t, "success", resp.Status)
	assert.Equal(t, true, resp.Result["allowed"])
	assert.Equal(t, 2, resp.Result["remaining"])
}

func TestExecute_RejectedCheckIsSuccess(t *testing.T) {
	svc, _, _ := newTestService(testStart)
	params := Params{"identifier": "u1", "limit": 1, "request_weight": 5}

	resp := svc.Execute("token_bucket", params)
	assert.Equal(t, "success", resp.Status)
	assert.Equal(t, false, resp.Result["allowed"])
	assert.Empty(t, resp.Error)
}

func TestExecute_FixedWindowScenarioWithQuota(t *testing.T) {
	svc, now, _ := newTestService(time.Unix(1200, 0).UTC())
	params := Params{"identifier": "u1", "limit": 3, "window_size": 60}

	for i := 0; i < 3; i++ {
		resp := svc.Execute("fixed_window", params)
		require.Equal(t, "success", resp.Status)
		assert.Equal(t, true, resp.Result["allowed"], "call %d", i)
		assert.Equal(t, i+1, resp.Result["current_usage"])
		*now = now.Add(time.Second)
	}

	quota := svc.Execute("quota_management", Params{
		"identifier": "u1", "limit": 3, "window_size": 60, "algorithm": "fixed_window",
	})
	require.Equal(t, "success", quota.Status)
	assert.Equal(t, 3, quota.Result["quota_used"])
	assert.Equal(t, 3, quota.Result["quota_limit"])
	assert.Equal(t, 0, quota.Result["quota_remaining"])
	assert.Equal(t, 3600.0, quota.Result["reset_interval"])

	*now = time.Unix(1205, 0).UTC()
	resp := svc.Execute("fixed_window", params)
	require.Equal(t, "success", resp.Status)
	assert.Equal(t, false, resp.Result["allowed"])
	assert.InDelta(t, 55.0, resp.Result["retry_after"].(float64), 0.001)

	*now = time.Unix(1261, 0).UTC()
	resp = svc.Execute("fixed_window", params)
	require.Equal(t, "success", resp.Status)
	assert.Equal(t, true, resp.Result["allowed"])
	assert.Equal(t, 1, resp.Result["current_usage"])
}

func TestExecute_SlidingWindowScenario(t *testing.T) {
	svc, now, _ := newTestService(testStart)
	params := Params{"identifier": "u1", "limit": 2, "window_size": 10}

	resp := svc.Execute("sliding_window", params)
	require.Equal(t, "success", resp.Status)
	assert.Equal(t, true, resp.Result["allowed"])

	*now = now.Add(5 * time.Second)
	resp = svc.Execute("sliding_window", params)
	assert.Equal(t, true, resp.Result["allowed"])

	*now = now.Add(3 * time.Second)
	resp = svc.Execute("sliding_window", params)
	assert.Equal(t, false, resp.Result["allowed"])
	assert.InDelta(t, 2.0, resp.Result["retry_after"].(float64), 0.001)

	*now = now.Add(3 * time.Second)
	resp = svc.Execute("sliding_window", params)
	assert.Equal(t, true, resp.Result["allowed"])
}

func TestExecute_Aliases(t *testing.T) {
	svc, _, _ := newTestService(testStart)

	resp := svc.Execute("sliding_window_counter", Params{"identifier": "u1", "limit": 5})
	require.Equal(t, "success", resp.Status)
	assert.Equal(t, "sliding_window", resp.Result["algorithm"])

	resp = svc.Execute("distributed_rate_limit", Params{"identifier": "u2", "limit": 5})
	require.Equal(t, "success", resp.Status)
	assert.Equal(t, "token_bucket", resp.Result["algorithm"])
}

func TestExecute_PriorityScaling(t *testing.T) {
	for _, op := range []string{"hierarchical_rate_limit", "rate_limit_priority"} {
		t.Run(op, func(t *testing.T) {
			svc, _, _ := newTestService(testStart)

			resp := svc.Execute(op, Params{"identifier": "u1", "limit": 100, "priority": 5})
			require.Equal(t, "success", resp.Status)
			assert.Equal(t, 150, resp.Result["limit"])
			assert.Equal(t, 5, resp.Result["priority"])
			assert.Equal(t, "token_bucket", resp.Result["algorithm"])
		})
	}
}

func TestExecute_Burst(t *testing.T) {
	svc, _, _ := newTestService(testStart)

	resp := svc.Execute("rate_limit_burst", Params{
		"identifier": "u1", "limit": 10, "burst_size": 15,
	})
	require.Equal(t, "success", resp.Status)
	assert.Equal(t, 25, resp.Result["limit"])
	assert.Equal(t, true, resp.Result["burst_enabled"])
}

func TestExecute_ConfigEchoTouchesNoState(t *testing.T) {
	svc, _, registry := newTestService(testStart)

	resp := svc.Execute("rate_limit_config", Params{
		"identifier":  "u1",
		"limit":       42,
		"window_size": 30,
		"refill_rate": 2.5,
		"algorithm":   "leaky_bucket",
		"priority":    3,
	})
	require.Equal(t, "success", resp.Status)
	assert.Equal(t, 42, resp.Result["limit"])
	assert.Equal(t, 30.0, resp.Result["window_size"])
	assert.Equal(t, 2.5, resp.Result["refill_rate"])
	assert.Equal(t, "leaky_bucket", resp.Result["algorithm"])
	assert.Equal(t, 3, resp.Result["priority"])
	assert.Equal(t, 10, resp.Result["burst_size"])
	assert.Equal(t, 0, registry.Len())
}

func TestExecute_Status(t *testing.T) {
	svc, _, _ := newTestService(testStart)
	params := Params{"identifier": "u1", "limit": 10, "request_weight": 4}

	svc.Execute("token_bucket", params)

	resp := svc.Execute("rate_limit_status", Params{"identifier": "u1", "limit": 10})
	require.Equal(t, "success", resp.Status)
	assert.Equal(t, "token_bucket", resp.Result["algorithm"])
	assert.Equal(t, 4, resp.Result["used"])
	assert.Equal(t, 6, resp.Result["remaining"])
	assert.NotNil(t, resp.Result["details"])
}

func TestExecute_ResetLifecycle(t *testing.T) {
	svc, _, _ := newTestService(testStart)

	// reset before any check reports absence
	resp := svc.Execute("rate_limit_reset", Params{"identifier": "u1"})
	require.Equal(t, "success", resp.Status)
	assert.Equal(t, false, resp.Result["reset"])

	params := Params{"identifier": "u1", "limit": 5, "request_weight": 5}
	check := svc.Execute("token_bucket", params)
	assert.Equal(t, true, check.Result["allowed"])
	check = svc.Execute("token_bucket", Params{"identifier": "u1", "limit": 5, "request_weight": 1})
	assert.Equal(t, false, check.Result["allowed"])

	resp = svc.Execute("rate_limit_reset", Params{"identifier": "u1"})
	assert.Equal(t, true, resp.Result["reset"])

	// resetting again is consistent
	resp = svc.Execute("rate_limit_reset", Params{"identifier": "u1"})
	assert.Equal(t, true, resp.Result["reset"])

	// full capacity is back
	check = svc.Execute("token_bucket", params)
	assert.Equal(t, true, check.Result["allowed"])
	assert.Equal(t, 0, check.Result["remaining"])
}

func TestExecute_Analyze(t *testing.T) {
	svc, _, _ := newTestService(testStart)

	consume := func(id string, weight int) {
		resp := svc.Execute("token_bucket", Params{
			"identifier": id, "limit": 100, "refill_rate": 0.0001, "request_weight": weight,
		})
		require.Equal(t, "success", resp.Status)
	}
	analyze := func(id string) map[string]any {
		resp := svc.Execute("rate_limit_analyze", Params{
			"identifier": id, "limit": 100, "refill_rate": 0.0001,
		})
		require.Equal(t, "success", resp.Status)
		return resp.Result
	}

	// untouched identifier sits far below 20%
	result := analyze("idle")
	assert.Equal(t, "consider_reducing_limit", result["recommended_action"])
	assert.Equal(t, false, result["is_approaching_limit"])

	consume("mid", 50)
	result = analyze("mid")
	assert.Equal(t, "normal", result["recommended_action"])

	consume("hot", 85)
	result = analyze("hot")
	assert.Equal(t, "monitor_closely", result["recommended_action"])
	assert.Equal(t, true, result["is_approaching_limit"])
	assert.Equal(t, false, result["is_at_limit"])

	consume("hot", 10)
	result = analyze("hot")
	assert.Equal(t, "increase_limit", result["recommended_action"])

	consume("hot", 5)
	result = analyze("hot")
	assert.Equal(t, true, result["is_at_limit"])
	assert.InDelta(t, 100.0, result["usage_percentage"].(float64), 0.001)
}

func TestExecute_AdaptiveOperation(t *testing.T) {
	svc, now, _ := newTestService(testStart, limiter.WithLoadSource(stubSource{delta: 0.5}))
	params := Params{"identifier": "u1", "limit": 10, "refill_rate": 1.0}

	resp := svc.Execute("adaptive_rate_limit", params)
	require.Equal(t, "success", resp.Status)
	assert.Equal(t, "adaptive", resp.Result["algorithm"])
	assert.Equal(t, 10, resp.Result["limit"])

	metadata := resp.Result["metadata"].(map[string]any)
	assert.Equal(t, 1.0, metadata["load_factor"])
	assert.Equal(t, 10, metadata["original_limit"])

	*now = now.Add(61 * time.Second)
	resp = svc.Execute("adaptive_rate_limit", params)
	require.Equal(t, "success", resp.Status)
	assert.Equal(t, 15, resp.Result["limit"])
}

func TestExecute_NonNumericParameter(t *testing.T) {
	svc, _, registry := newTestService(testStart)

	resp := svc.Execute("token_bucket", Params{"identifier": "u1", "limit": "lots"})
	assert.Equal(t, "error", resp.Status)
	assert.Contains(t, resp.Error, "limit")
	assert.Equal(t, 0, registry.Len())
}

func TestExecute_NilParams(t *testing.T) {
	svc, _, _ := newTestService(testStart)

	resp := svc.Execute("token_bucket", nil)
	assert.Equal(t, "error", resp.Status)
	assert.Contains(t, resp.Error, "identifier")
}

func TestExecute_JSONNumericCoercion(t *testing.T) {
	svc, _, _ := newTestService(testStart)

	// decoded JSON delivers every number as float64
	resp := svc.Execute("token_bucket", Params{
		"identifier":     "u1",
		"limit":          float64(10),
		"window_size":    float64(60),
		"refill_rate":    float64(1),
		"request_weight": float64(5),
	})
	require.Equal(t, "success", resp.Status)
	assert.Equal(t, true, resp.Result["allowed"])
	assert.Equal(t, 5, resp.Result["remaining"])
}
