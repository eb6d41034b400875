package worker

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/castellan/foreman/internal/executor"
	"github.com/castellan/foreman/internal/scheduler"
)

func TestCircuitBreakerRegistryReusesBreakers(t *testing.T) {
	reg := NewCircuitBreakerRegistry()
	a := reg.Get("generation")
	b := reg.Get("generation")
	c := reg.Get("evaluation")

	if a != b {
		t.Error("same type should share one breaker")
	}
	if a == c {
		t.Error("different types should get distinct breakers")
	}
}

func TestRunWithRetryRecoversFromTransientFailure(t *testing.T) {
	exec := newFlakyExec()
	exec.failFirst("T1", 2)
	req := executor.Request{Task: &scheduler.Task{ID: "T1"}, WorkDir: t.TempDir()}

	cfg := RetryConfig{
		InitialInterval:     time.Millisecond,
		MaxInterval:         time.Millisecond,
		MaxElapsedTime:      time.Second,
		Multiplier:          1.0,
		RandomizationFactor: 0,
	}
	cb := NewCircuitBreakerRegistry().Get("generation")
	result, err := runWithRetry(context.Background(), exec, req, cb, cfg)
	if err != nil {
		t.Fatalf("runWithRetry failed: %v", err)
	}
	if result.Output != "done T1" {
		t.Errorf("output = %q", result.Output)
	}
	if got := exec.attemptCount("T1"); got != 3 {
		t.Errorf("attempts = %d, want 3", got)
	}
}

func TestRunWithRetryGivesUp(t *testing.T) {
	exec := newFlakyExec()
	exec.failFirst("T1", 1000)
	req := executor.Request{Task: &scheduler.Task{ID: "T1"}, WorkDir: t.TempDir()}

	cb := NewCircuitBreakerRegistry().Get("generation")
	_, err := runWithRetry(context.Background(), exec, req, cb, fastRetry())
	if err == nil {
		t.Fatal("exhausted retries should fail")
	}
}

func TestRunWithRetryRespectsMaxAttempts(t *testing.T) {
	exec := newFlakyExec()
	exec.failFirst("T1", 1000)
	req := executor.Request{Task: &scheduler.Task{ID: "T1"}, WorkDir: t.TempDir()}

	cfg := RetryConfig{
		InitialInterval:     time.Millisecond,
		MaxInterval:         time.Millisecond,
		MaxElapsedTime:      time.Minute,
		Multiplier:          1.0,
		RandomizationFactor: 0,
		MaxAttempts:         2,
	}
	cb := NewCircuitBreakerRegistry().Get("generation")
	if _, err := runWithRetry(context.Background(), exec, req, cb, cfg); err == nil {
		t.Fatal("capped retries should fail")
	}
	if got := exec.attemptCount("T1"); got != 2 {
		t.Errorf("attempts = %d, want 2", got)
	}
}

func TestRunWithRetryHonorsCancellation(t *testing.T) {
	exec := newFlakyExec()
	exec.failFirst("T1", 1000)
	req := executor.Request{Task: &scheduler.Task{ID: "T1"}, WorkDir: t.TempDir()}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	cb := NewCircuitBreakerRegistry().Get("generation")
	_, err := runWithRetry(ctx, exec, req, cb, DefaultRetryConfig())
	if !errors.Is(err, context.Canceled) {
		t.Errorf("error = %v, want context.Canceled", err)
	}
}
