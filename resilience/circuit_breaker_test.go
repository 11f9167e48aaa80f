package resilience

import (
	"context"
	"errors"
	"testing"
	"time"
)

func TestCircuitBreaker_InitialState(t *testing.T) {
	cb := NewCircuitBreaker(DefaultCircuitBreakerConfig())

	if cb.State() != StateClosed {
		t.Errorf("Expected initial state to be CLOSED, got %v", cb.State())
	}

	if cb.Failures() != 0 {
		t.Errorf("Expected initial failures to be 0, got %d", cb.Failures())
	}
}

func TestCircuitBreaker_SuccessfulExecution(t *testing.T) {
	cb := NewCircuitBreaker(DefaultCircuitBreakerConfig())

	called := false
	err := cb.Execute(context.Background(), func(ctx context.Context) error {
		called = true
		return nil
	})

	if err != nil {
		t.Errorf("Expected no error, got %v", err)
	}

	if !called {
		t.Error("Expected function to be called")
	}

	if cb.State() != StateClosed {
		t.Errorf("Expected state to remain CLOSED, got %v", cb.State())
	}

	if cb.Failures() != 0 {
		t.Errorf("Expected failures to remain 0, got %d", cb.Failures())
	}
}

func TestCircuitBreaker_FailuresLeadToOpen(t *testing.T) {
	config := CircuitBreakerConfig{
		MaxFailures:           3,
		Timeout:               100 * time.Millisecond,
		MaxConcurrentRequests: 1,
		SuccessThreshold:      2,
		RequestTimeout:        10 * time.Millisecond,
	}

	cb := NewCircuitBreaker(config)

	// Execute failures up to the threshold
	for i := 0; i < config.MaxFailures; i++ {
		err := cb.Execute(context.Background(), func(ctx context.Context) error {
			return errors.New("test error")
		})

		if err == nil {
			t.Errorf("Expected error for failure %d", i)
		}

		if i < config.MaxFailures-1 && cb.State() != StateClosed {
			t.Errorf("Expected state to be CLOSED after %d failures, got %v", i+1, cb.State())
		}
	}

	// Circuit should now be open
	if cb.State() != StateOpen {
		t.Errorf("Expected state to be OPEN after %d failures, got %v", config.MaxFailures, cb.State())
	}

	// Next call should fail immediately
	err := cb.Execute(context.Background(), func(ctx context.Context) error {
		t.Error("Function should not be called when circuit is open")
		return nil
	})

	if err != ErrCircuitBreakerOpen {
		t.Errorf("Expected ErrCircuitBreakerOpen, got %v", err)
	}
}

func TestCircuitBreaker_OpenToHalfOpenTransition(t *testing.T) {
	config := CircuitBreakerConfig{
		MaxFailures:           2,
		Timeout:               50 * time.Millisecond,
		MaxConcurrentRequests: 1,
		SuccessThreshold:      2,
		RequestTimeout:        10 * time.Millisecond,
	}

	cb := NewCircuitBreaker(config)

	// Trigger circuit to open
	for i := 0; i < config.MaxFailures; i++ {
		cb.Execute(context.Background(), func(ctx context.Context) error {
			return errors.New("test error")
		})
	}

	if cb.State() != StateOpen {
		t.Errorf("Expected state to be OPEN, got %v", cb.State())
	}

	// Wait for timeout
	time.Sleep(config.Timeout + 10*time.Millisecond)

	// Next call should transition to half-open
	called := false
	err := cb.Execute(context.Background(), func(ctx context.Context) error {
		called = true
		return nil
	})

	if err != nil {
		t.Errorf("Expected no error, got %v", err)
	}

	if !called {
		t.Error("Expected function to be called")
	}

	if cb.State() != StateHalfOpen {
		t.Errorf("Expected state to be HALF_OPEN, got %v", cb.State())
	}
}

func TestCircuitBreaker_HalfOpenToClosed(t *testing.T) {
	config := CircuitBreakerConfig{
		MaxFailures:           2,
		Timeout:               10 * time.Millisecond,
		MaxConcurrentRequests: 1,
		SuccessThreshold:      2,
		RequestTimeout:        10 * time.Millisecond,
	}

	cb := NewCircuitBreaker(config)

	// Trigger circuit to open
	for i := 0; i < config.MaxFailures; i++ {
		cb.Execute(context.Background(), func(ctx context.Context) error {
			return errors.New("test error")
		})
	}

	// Wait for timeout and transition to half-open
	time.Sleep(config.Timeout + 5*time.Millisecond)

	// Execute successful calls to reach success threshold
	for i := 0; i < config.SuccessThreshold; i++ {
		err := cb.Execute(context.Background(), func(ctx context.Context) error {
			return nil
		})

		if err != nil {
			t.Errorf("Expected no error for success %d, got %v", i, err)
		}
	}

	// Circuit should now be closed
	if cb.State() != StateClosed {
		t.Errorf("Expected state to be CLOSED after %d successes, got %v", config.SuccessThreshold, cb.State())
	}
}

func TestCircuitBreaker_HalfOpenToOpen(t *testing.T) {
	config := CircuitBreakerConfig{
		MaxFailures:           2,
		Timeout:               10 * time.Millisecond,
		MaxConcurrentRequests: 1,
		SuccessThreshold:      2,
		RequestTimeout:        10 * time.Millisecond,
	}

	cb := NewCircuitBreaker(config)

	// Trigger circuit to open
	for i := 0; i < config.MaxFailures; i++ {
		cb.Execute(context.Background(), func(ctx context.Context) error {
			return errors.New("test error")
		})
	}

	// Wait for timeout and transition to half-open
	time.Sleep(config.Timeout + 5*time.Millisecond)

	// One success
	cb.Execute(context.Background(), func(ctx context.Context) error {
		return nil
	})

	if cb.State() != StateHalfOpen {
		t.Errorf("Expected state to be HALF_OPEN, got %v", cb.State())
	}

	// One failure should trigger open again
	err := cb.Execute(context.Background(), func(ctx context.Context) error {
		return errors.New("test error")
	})

	if err == nil {
		t.Error("Expected error")
	}

	if cb.State() != StateOpen {
		t.Errorf("Expected state to be OPEN after failure in half-open, got %v", cb.State())
	}
}

func TestCircuitBreaker_RequestTimeout(t *testing.T) {
	config := CircuitBreakerConfig{
		MaxFailures:           3,
		Timeout:               100 * time.Millisecond,
		MaxConcurrentRequests: 1,
		SuccessThreshold:      2,
		RequestTimeout:        20 * time.Millisecond,
	}

	cb := NewCircuitBreaker(config)

	start := time.Now()
	err := cb.Execute(context.Background(), func(ctx context.Context) error {
		time.Sleep(50 * time.Millisecond) // Longer than timeout
		return nil
	})
	duration := time.Since(start)

	if err != ErrCircuitBreakerTimeout {
		t.Errorf("Expected ErrCircuitBreakerTimeout, got %v", err)
	}

	// Should not wait the full 50ms
	if duration > 30*time.Millisecond {
		t.Errorf("Expected timeout around 20ms, got %v", duration)
	}

	// Failure should be recorded
	if cb.Failures() != 1 {
		t.Errorf("Expected 1 failure, got %d", cb.Failures())
	}
}

func TestCircuitBreaker_MaxConcurrentRequests(t *testing.T) {
	config := CircuitBreakerConfig{
		MaxFailures:           2,
		Timeout:               10 * time.Millisecond,
		MaxConcurrentRequests: 1,
		SuccessThreshold:      5, // Need more successes to transition to closed
		RequestTimeout:        100 * time.Millisecond,
	}

	cb := NewCircuitBreaker(config)

	// Trigger circuit to open
	for i := 0; i < config.MaxFailures; i++ {
		cb.Execute(context.Background(), func(ctx context.Context) error {
			return errors.New("test error")
		})
	}

	if cb.State() != StateOpen {
		t.Errorf("Expected state to be OPEN, got %v", cb.State())
	}

	// Wait for timeout
	time.Sleep(config.Timeout + 5*time.Millisecond)

	// Manually transition to half-open to avoid race condition
	cb.TransitionToHalfOpen()

	if cb.State() != StateHalfOpen {
		t.Errorf("Expected state to be HALF_OPEN, got %v", cb.State())
	}

	// Manually increment requests counter to simulate active request
	halfOpen, _ := cb.beforeRequest() // This should increment requests to 1

	stats := cb.Stats()
	t.Logf("After beforeRequest: State=%v, Requests=%d", stats.State, stats.Requests)

	// Now try a second request - should be rejected
	err := cb.Execute(context.Background(), func(ctx context.Context) error {
		t.Error("Second concurrent request should not execute")
		return nil
	})

	if err != ErrCircuitBreakerOpen {
		t.Errorf("Expected ErrCircuitBreakerOpen for concurrent request, got %v", err)
	}

	// Clean up by calling afterRequest to decrement counter
	cb.afterRequest(halfOpen)
}

func TestCircuitBreaker_Reset(t *testing.T) {
	config := CircuitBreakerConfig{
		MaxFailures:           2,
		Timeout:               100 * time.Millisecond,
		MaxConcurrentRequests: 1,
		SuccessThreshold:      2,
		RequestTimeout:        10 * time.Millisecond,
	}

	cb := NewCircuitBreaker(config)

	// Trigger circuit to open
	for i := 0; i < config.MaxFailures; i++ {
		cb.Execute(context.Background(), func(ctx context.Context) error {
			return errors.New("test error")
		})
	}

	if cb.State() != StateOpen {
		t.Errorf("Expected state to be OPEN, got %v", cb.State())
	}

	// Reset the circuit breaker
	cb.Reset()

	if cb.State() != StateClosed {
		t.Errorf("Expected state to be CLOSED after reset, got %v", cb.State())
	}

	if cb.Failures() != 0 {
		t.Errorf("Expected failures to be 0 after reset, got %d", cb.Failures())
	}
}

func TestCircuitBreaker_Stats(t *testing.T) {
	config := CircuitBreakerConfig{
		MaxFailures:           3,
		Timeout:               100 * time.Millisecond,
		MaxConcurrentRequests: 1,
		SuccessThreshold:      2,
		RequestTimeout:        10 * time.Millisecond,
	}

	cb := NewCircuitBreaker(config)

	// Initial stats
	stats := cb.Stats()
	if stats.State != StateClosed {
		t.Errorf("Expected initial state CLOSED, got %v", stats.State)
	}
	if stats.Failures != 0 {
		t.Errorf("Expected initial failures 0, got %d", stats.Failures)
	}

	// Execute some failures
	for i := 0; i < 2; i++ {
		cb.Execute(context.Background(), func(ctx context.Context) error {
			return errors.New("test error")
		})
	}

	stats = cb.Stats()
	if stats.Failures != 2 {
		t.Errorf("Expected 2 failures, got %d", stats.Failures)
	}

	// One more failure to trigger open
	cb.Execute(context.Background(), func(ctx context.Context) error {
		return errors.New("test error")
	})

	stats = cb.Stats()
	if stats.State != StateOpen {
		t.Errorf("Expected state OPEN, got %v", stats.State)
	}
}

func TestCircuitBreaker_IsFailureFilter(t *testing.T) {
	errIgnored := errors.New("not the dependency's fault")
	config := CircuitBreakerConfig{
		MaxFailures:           1,
		Timeout:               time.Minute,
		MaxConcurrentRequests: 1,
		SuccessThreshold:      1,
		IsFailure: func(err error) bool {
			return !errors.Is(err, errIgnored)
		},
	}

	cb := NewCircuitBreaker(config)

	for i := 0; i < 3; i++ {
		err := cb.Execute(context.Background(), func(ctx context.Context) error {
			return errIgnored
		})
		if !errors.Is(err, errIgnored) {
			t.Errorf("Expected the ignored error to be returned, got %v", err)
		}
	}

	if cb.State() != StateClosed {
		t.Errorf("Expected state to remain CLOSED, got %v", cb.State())
	}

	cb.Execute(context.Background(), func(ctx context.Context) error {
		return errors.New("dependency down")
	})

	if cb.State() != StateOpen {
		t.Errorf("Expected state to be OPEN, got %v", cb.State())
	}
}

func TestCall_ReturnsValue(t *testing.T) {
	cb := NewCircuitBreaker(DefaultCircuitBreakerConfig())

	val, err := Call(context.Background(), cb, func(ctx context.Context) (string, error) {
		return "hello", nil
	})

	if err != nil {
		t.Errorf("Expected no error, got %v", err)
	}
	if val != "hello" {
		t.Errorf("Expected hello, got %q", val)
	}
}

func TestCall_OpenSkipsFunction(t *testing.T) {
	config := DefaultCircuitBreakerConfig()
	config.MaxFailures = 1
	config.RequestTimeout = 0
	cb := NewCircuitBreaker(config)

	Call(context.Background(), cb, func(ctx context.Context) (int, error) {
		return 0, errors.New("boom")
	})

	val, err := Call(context.Background(), cb, func(ctx context.Context) (int, error) {
		t.Error("Function should not run while the circuit is open")
		return 1, nil
	})

	if err != ErrCircuitBreakerOpen {
		t.Errorf("Expected ErrCircuitBreakerOpen, got %v", err)
	}
	if val != 0 {
		t.Errorf("Expected zero value, got %d", val)
	}
}

func TestCall_CallerCancellationIsNotAFailure(t *testing.T) {
	config := DefaultCircuitBreakerConfig()
	config.RequestTimeout = time.Second
	cb := NewCircuitBreaker(config)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := Call(ctx, cb, func(ctx context.Context) (int, error) {
		<-ctx.Done()
		return 0, ctx.Err()
	})

	if !errors.Is(err, context.Canceled) {
		t.Errorf("Expected context.Canceled, got %v", err)
	}
	if cb.Failures() != 0 {
		t.Errorf("Expected no failures, got %d", cb.Failures())
	}
}
