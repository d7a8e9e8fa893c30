package resilience

import (
	"errors"
	"testing"
	"time"
)

func TestBreakerTripsAfterConsecutiveFailures(t *testing.T) {
	b := New("test", Settings{
		ReadyToTrip: func(c Counts) bool { return c.ConsecutiveFailures >= 3 },
	})

	fail := func() (interface{}, error) { return nil, errors.New("boom") }

	for i := 0; i < 3; i++ {
		if _, err := b.Execute(fail); err == nil {
			t.Fatal("expected failure")
		}
	}

	if b.State() != StateOpen {
		t.Errorf("expected open breaker, got %s", b.State())
	}

	if _, err := b.Execute(fail); !errors.Is(err, ErrCircuitOpen) {
		t.Errorf("expected ErrCircuitOpen, got %v", err)
	}
}

func TestBreakerRecoversThroughHalfOpen(t *testing.T) {
	b := New("test", Settings{
		MaxRequests: 1,
		Timeout:     10 * time.Millisecond,
		ReadyToTrip: func(c Counts) bool { return c.ConsecutiveFailures >= 1 },
	})

	b.Execute(func() (interface{}, error) { return nil, errors.New("boom") })
	if b.State() != StateOpen {
		t.Fatalf("expected open, got %s", b.State())
	}

	time.Sleep(20 * time.Millisecond)

	if b.State() != StateHalfOpen {
		t.Fatalf("expected half-open, got %s", b.State())
	}

	if _, err := b.Execute(func() (interface{}, error) { return "ok", nil }); err != nil {
		t.Fatalf("half-open probe failed: %v", err)
	}

	if b.State() != StateClosed {
		t.Errorf("expected closed after successful probe, got %s", b.State())
	}
}

func TestBreakerPassesThroughResults(t *testing.T) {
	b := New("test", Settings{})

	got, err := b.Execute(func() (interface{}, error) { return 42, nil })
	if err != nil {
		t.Fatalf("Execute() error = %v", err)
	}
	if got.(int) != 42 {
		t.Errorf("expected 42, got %v", got)
	}
}
