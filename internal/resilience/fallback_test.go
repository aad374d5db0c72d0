package resilience

import (
	"errors"
	"testing"
	"time"
)

// newStringGroup builds a two-backend group over plain strings, which is
// enough to observe routing decisions.
func newStringGroup(cbCfg CircuitBreakerConfig) *FallbackGroup[string] {
	fg := NewFallbackGroup("primary", "primary", FallbackConfig{CircuitBreaker: cbCfg})
	fg.AddFallback("secondary", "secondary")
	return fg
}

func TestFallbackGroup_PrefersPrimary(t *testing.T) {
	t.Parallel()

	fg := newStringGroup(CircuitBreakerConfig{MaxFailures: 3})

	var called string
	if err := fg.Execute(func(v string) error { called = v; return nil }); err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if called != "primary" {
		t.Fatalf("routed to %q, want primary", called)
	}
}

func TestFallbackGroup_FailsOverInOrder(t *testing.T) {
	t.Parallel()

	fg := newStringGroup(CircuitBreakerConfig{MaxFailures: 3})

	var called string
	err := fg.Execute(func(v string) error {
		if v == "primary" {
			return errBackend
		}
		called = v
		return nil
	})
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if called != "secondary" {
		t.Fatalf("routed to %q, want secondary", called)
	}
}

func TestFallbackGroup_AllFail(t *testing.T) {
	t.Parallel()

	fg := newStringGroup(CircuitBreakerConfig{MaxFailures: 3})

	err := fg.Execute(func(string) error { return errBackend })
	if !errors.Is(err, ErrAllFailed) {
		t.Fatalf("Execute = %v, want ErrAllFailed", err)
	}
}

func TestFallbackGroup_OpenBreakerIsSkipped(t *testing.T) {
	t.Parallel()

	fg := newStringGroup(CircuitBreakerConfig{
		MaxFailures:  2,
		ResetTimeout: time.Hour,
	})

	// Trip the primary's breaker; the secondary keeps succeeding so the
	// group call itself never fails.
	for i := 0; i < 2; i++ {
		_ = fg.Execute(func(v string) error {
			if v == "primary" {
				return errBackend
			}
			return nil
		})
	}

	var calls []string
	if err := fg.Execute(func(v string) error { calls = append(calls, v); return nil }); err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if len(calls) != 1 || calls[0] != "secondary" {
		t.Fatalf("calls = %v, want the open primary skipped entirely", calls)
	}
}

func TestExecuteWithResult_ReturnsFirstHealthyValue(t *testing.T) {
	t.Parallel()

	fg := NewFallbackGroup(1, "one", FallbackConfig{
		CircuitBreaker: CircuitBreakerConfig{MaxFailures: 3},
	})
	fg.AddFallback("two", 2)

	got, err := ExecuteWithResult(fg, func(v int) (string, error) {
		if v == 1 {
			return "", errBackend
		}
		return "answer-from-two", nil
	})
	if err != nil {
		t.Fatalf("ExecuteWithResult: %v", err)
	}
	if got != "answer-from-two" {
		t.Fatalf("result = %q, want answer-from-two", got)
	}
}

func TestExecuteWithResult_AllFail(t *testing.T) {
	t.Parallel()

	fg := NewFallbackGroup(1, "one", FallbackConfig{
		CircuitBreaker: CircuitBreakerConfig{MaxFailures: 3},
	})

	_, err := ExecuteWithResult(fg, func(int) (string, error) {
		return "", errBackend
	})
	if !errors.Is(err, ErrAllFailed) {
		t.Fatalf("ExecuteWithResult = %v, want ErrAllFailed", err)
	}
}
