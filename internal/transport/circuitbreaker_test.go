package transport

import (
	"errors"
	"testing"
	"time"
)

func TestCircuitBreakerOpensAfterThreshold(t *testing.T) {
	cb := NewCircuitBreaker(CircuitBreakerConfig{
		FailureThreshold:    3,
		RecoveryTimeout:     30 * time.Second,
		HalfOpenMaxRequests: 1,
	})
	testErr := errors.New("test error")

	cb.RecordFailure("example.com", testErr)
	cb.RecordFailure("example.com", testErr)
	if cb.GetState("example.com") != CircuitClosed {
		t.Error("circuit should still be closed after 2 failures")
	}

	cb.RecordFailure("example.com", testErr)
	if cb.GetState("example.com") != CircuitOpen {
		t.Error("circuit should be open after 3 failures")
	}
	if err := cb.Allow("example.com"); !errors.Is(err, ErrCircuitOpen) {
		t.Errorf("Allow() = %v, want ErrCircuitOpen", err)
	}
}

func TestCircuitBreakerHalfOpenRecovery(t *testing.T) {
	cb := NewCircuitBreaker(CircuitBreakerConfig{
		FailureThreshold:    1,
		RecoveryTimeout:     20 * time.Millisecond,
		HalfOpenMaxRequests: 1,
	})

	cb.RecordFailure("example.com", errors.New("boom"))
	time.Sleep(30 * time.Millisecond)

	if got := cb.GetState("example.com"); got != CircuitHalfOpen {
		t.Fatalf("state after recovery timeout = %v, want half-open", got)
	}
	if err := cb.Allow("example.com"); err != nil {
		t.Fatalf("first half-open Allow() = %v, want nil", err)
	}
	if err := cb.Allow("example.com"); !errors.Is(err, ErrCircuitOpen) {
		t.Errorf("second half-open Allow() = %v, want ErrCircuitOpen", err)
	}

	cb.RecordSuccess("example.com")
	if got := cb.GetState("example.com"); got != CircuitClosed {
		t.Errorf("state after half-open success = %v, want closed", got)
	}
}

func TestCircuitBreakerReopensOnFailureInHalfOpen(t *testing.T) {
	cb := NewCircuitBreaker(CircuitBreakerConfig{
		FailureThreshold: 1,
		RecoveryTimeout:  20 * time.Millisecond,
	})

	cb.RecordFailure("example.com", errors.New("boom"))
	time.Sleep(30 * time.Millisecond)
	if err := cb.Allow("example.com"); err != nil {
		t.Fatalf("half-open Allow() = %v", err)
	}

	cb.RecordFailure("example.com", errors.New("again"))
	if got := cb.GetState("example.com"); got != CircuitOpen {
		t.Errorf("state = %v, want open", got)
	}
}

func TestCircuitBreakerIgnoresPermanentErrors(t *testing.T) {
	cb := NewCircuitBreaker(CircuitBreakerConfig{
		FailureThreshold: 1,
		IsTransientError: IsTransientHTTPError,
	})

	cb.RecordFailure("example.com", &HTTPError{StatusCode: 404})
	if got := cb.GetState("example.com"); got != CircuitClosed {
		t.Errorf("state after 404 = %v, want closed", got)
	}

	cb.RecordFailure("example.com", &HTTPError{StatusCode: 502})
	if got := cb.GetState("example.com"); got != CircuitOpen {
		t.Errorf("state after 502 = %v, want open", got)
	}
}

func TestCircuitBreakerPerHostIsolation(t *testing.T) {
	cb := NewCircuitBreaker(CircuitBreakerConfig{FailureThreshold: 1})

	cb.RecordFailure("a.example", errors.New("boom"))
	if err := cb.Allow("b.example"); err != nil {
		t.Errorf("Allow(b) = %v, want nil", err)
	}

	if err := cb.Allow("a.example"); !errors.Is(err, ErrCircuitOpen) {
		t.Errorf("Allow(a) = %v, want ErrCircuitOpen", err)
	}
}

func TestCircuitBreakerTrialSlotsFollowClock(t *testing.T) {
	now := time.Unix(1700000000, 0)
	cb := NewCircuitBreaker(CircuitBreakerConfig{
		FailureThreshold:    2,
		RecoveryTimeout:     time.Minute,
		HalfOpenMaxRequests: 2,
	})
	cb.now = func() time.Time { return now }

	cb.RecordFailure("example.com", errors.New("boom"))
	cb.RecordSuccess("example.com")
	cb.RecordFailure("example.com", errors.New("boom"))
	if got := cb.GetState("example.com"); got != CircuitClosed {
		t.Fatalf("success did not clear the failure count, state = %v", got)
	}
	cb.RecordFailure("example.com", errors.New("boom"))
	if got := cb.GetState("example.com"); got != CircuitOpen {
		t.Fatalf("state = %v, want open", got)
	}

	now = now.Add(59 * time.Second)
	if err := cb.Allow("example.com"); !errors.Is(err, ErrCircuitOpen) {
		t.Fatalf("Allow() before recovery = %v, want ErrCircuitOpen", err)
	}

	now = now.Add(time.Second)
	for i := 0; i < 2; i++ {
		if err := cb.Allow("example.com"); err != nil {
			t.Fatalf("trial %d Allow() = %v, want nil", i+1, err)
		}
	}
	if err := cb.Allow("example.com"); !errors.Is(err, ErrCircuitOpen) {
		t.Errorf("Allow() past trial slots = %v, want ErrCircuitOpen", err)
	}

	cb.RecordFailure("example.com", errors.New("again"))
	now = now.Add(30 * time.Second)
	if got := cb.GetState("example.com"); got != CircuitOpen {
		t.Errorf("failed trial should restart the open period, state = %v", got)
	}
}

func TestCircuitBreakerNilSafety(t *testing.T) {
	var cb *CircuitBreaker
	if err := cb.Allow("x"); err != nil {
		t.Errorf("nil Allow() = %v", err)
	}
	cb.RecordSuccess("x")
	cb.RecordFailure("x", errors.New("y"))
	if cb.GetState("x") != CircuitClosed {
		t.Error("nil breaker should report closed")
	}
}

func TestCircuitStateString(t *testing.T) {
	tests := map[CircuitState]string{
		CircuitClosed:    "closed",
		CircuitOpen:      "open",
		CircuitHalfOpen:  "half-open",
		CircuitState(99): "unknown",
	}
	for state, want := range tests {
		if got := state.String(); got != want {
			t.Errorf("CircuitState(%d).String() = %q, want %q", state, got, want)
		}
	}
}

func TestIsTransientHTTPError(t *testing.T) {
	tests := []struct {
		err  error
		want bool
	}{
		{nil, false},
		{&RateLimitError{StatusCode: 429}, true},
		{&HTTPError{StatusCode: 500}, true},
		{&HTTPError{StatusCode: 429}, true},
		{&HTTPError{StatusCode: 404}, false},
		{errors.New("connection reset"), true},
	}
	for _, tt := range tests {
		if got := IsTransientHTTPError(tt.err); got != tt.want {
			t.Errorf("IsTransientHTTPError(%v) = %v, want %v", tt.err, got, tt.want)
		}
	}
}
