package resilience

import (
	"errors"
	"testing"
	"time"
)

var errBackend = errors.New("backend unavailable")

func tripBreaker(cb *CircuitBreaker, failures int) {
	for i := 0; i < failures; i++ {
		_ = cb.Execute(func() error { return errBackend })
	}
}

func TestCircuitBreaker_StartsClosedAndForwards(t *testing.T) {
	t.Parallel()

	cb := NewCircuitBreaker(CircuitBreakerConfig{Name: "tts"})
	if got := cb.State(); got != StateClosed {
		t.Fatalf("initial State() = %v, want closed", got)
	}

	called := false
	if err := cb.Execute(func() error { called = true; return nil }); err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if !called {
		t.Fatal("fn was not called in the closed state")
	}
}

func TestCircuitBreaker_OpensAfterConsecutiveFailures(t *testing.T) {
	t.Parallel()

	cb := NewCircuitBreaker(CircuitBreakerConfig{
		Name:         "llm",
		MaxFailures:  3,
		ResetTimeout: time.Hour,
	})
	tripBreaker(cb, 3)

	if got := cb.State(); got != StateOpen {
		t.Fatalf("State() = %v, want open after 3 failures", got)
	}

	called := false
	err := cb.Execute(func() error { called = true; return nil })
	if !errors.Is(err, ErrCircuitOpen) {
		t.Fatalf("Execute while open = %v, want ErrCircuitOpen", err)
	}
	if called {
		t.Fatal("fn was called while the breaker was open")
	}
}

func TestCircuitBreaker_SuccessClearsFailureStreak(t *testing.T) {
	t.Parallel()

	cb := NewCircuitBreaker(CircuitBreakerConfig{Name: "llm", MaxFailures: 3})

	tripBreaker(cb, 2)
	_ = cb.Execute(func() error { return nil })
	tripBreaker(cb, 2)

	if got := cb.State(); got != StateClosed {
		t.Fatalf("State() = %v, want closed: the success in between resets the streak", got)
	}
}

func TestCircuitBreaker_ProbesAfterResetTimeout(t *testing.T) {
	t.Parallel()

	cb := NewCircuitBreaker(CircuitBreakerConfig{
		Name:         "tts",
		MaxFailures:  2,
		ResetTimeout: 10 * time.Millisecond,
		HalfOpenMax:  2,
	})
	tripBreaker(cb, 2)

	time.Sleep(15 * time.Millisecond)
	if got := cb.State(); got != StateHalfOpen {
		t.Fatalf("State() = %v, want half-open after the reset timeout", got)
	}

	// Two successful probes close the breaker again.
	for i := 0; i < 2; i++ {
		if err := cb.Execute(func() error { return nil }); err != nil {
			t.Fatalf("probe %d: %v", i, err)
		}
	}
	if got := cb.State(); got != StateClosed {
		t.Fatalf("State() = %v, want closed after successful probes", got)
	}
}

func TestCircuitBreaker_FailedProbeReopens(t *testing.T) {
	t.Parallel()

	cb := NewCircuitBreaker(CircuitBreakerConfig{
		Name:         "tts",
		MaxFailures:  2,
		ResetTimeout: 10 * time.Millisecond,
		HalfOpenMax:  3,
	})
	tripBreaker(cb, 2)

	time.Sleep(15 * time.Millisecond)
	if err := cb.Execute(func() error { return errBackend }); !errors.Is(err, errBackend) {
		t.Fatalf("probe error = %v, want errBackend", err)
	}

	// The failed probe just re-armed the reset timer, so the breaker rejects
	// immediately again.
	if err := cb.Execute(func() error { return nil }); !errors.Is(err, ErrCircuitOpen) {
		t.Fatalf("Execute after failed probe = %v, want ErrCircuitOpen", err)
	}
}

func TestCircuitBreaker_ManualReset(t *testing.T) {
	t.Parallel()

	cb := NewCircuitBreaker(CircuitBreakerConfig{
		Name:         "llm",
		MaxFailures:  2,
		ResetTimeout: time.Hour,
	})
	tripBreaker(cb, 2)

	cb.Reset()
	if got := cb.State(); got != StateClosed {
		t.Fatalf("State() after Reset = %v, want closed", got)
	}
	if err := cb.Execute(func() error { return nil }); err != nil {
		t.Fatalf("Execute after Reset: %v", err)
	}
}

func TestState_String(t *testing.T) {
	t.Parallel()

	for _, tt := range []struct {
		state State
		want  string
	}{
		{StateClosed, "closed"},
		{StateOpen, "open"},
		{StateHalfOpen, "half-open"},
		{State(42), "unknown"},
	} {
		if got := tt.state.String(); got != tt.want {
			t.Errorf("State(%d).String() = %q, want %q", tt.state, got, tt.want)
		}
	}
}
