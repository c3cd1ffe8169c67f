package retry

import (
	"context"
	"errors"
	"testing"
	"time"
)

func TestDoSucceedsAfterTransientFailures(t *testing.T) {
	policy := Policy{MaxAttempts: 3, BaseDelay: time.Millisecond}

	calls := 0
	attempts, err := policy.Do(context.Background(), "flaky op", func() error {
		calls++
		if calls < 3 {
			return errors.New("transient")
		}
		return nil
	})
	if err != nil {
		t.Fatalf("Expected success, got %v", err)
	}
	if attempts != 3 || calls != 3 {
		t.Errorf("Expected 3 attempts, got attempts=%d calls=%d", attempts, calls)
	}
}

func TestDoExhaustsAttempts(t *testing.T) {
	policy := Policy{MaxAttempts: 4, BaseDelay: time.Millisecond}

	wantErr := errors.New("still broken")
	calls := 0
	attempts, err := policy.Do(context.Background(), "broken op", func() error {
		calls++
		return wantErr
	})
	if !errors.Is(err, wantErr) {
		t.Fatalf("Expected the last error back, got %v", err)
	}
	if attempts != 4 || calls != 4 {
		t.Errorf("Expected 4 bounded attempts, got attempts=%d calls=%d", attempts, calls)
	}
}

func TestDoZeroAttemptsRunsOnce(t *testing.T) {
	var policy Policy

	calls := 0
	attempts, err := policy.Do(context.Background(), "default op", func() error {
		calls++
		return nil
	})
	if err != nil || attempts != 1 || calls != 1 {
		t.Errorf("Expected exactly one attempt, got attempts=%d calls=%d err=%v", attempts, calls, err)
	}
}

func TestDoHonorsCancellation(t *testing.T) {
	policy := Policy{MaxAttempts: 10, BaseDelay: time.Hour}

	ctx, cancel := context.WithCancel(context.Background())
	calls := 0
	done := make(chan struct{})
	go func() {
		defer close(done)
		_, err := policy.Do(ctx, "slow op", func() error {
			calls++
			return errors.New("keep retrying")
		})
		if !errors.Is(err, context.Canceled) {
			t.Errorf("Expected context.Canceled, got %v", err)
		}
	}()

	// Give the first attempt time to fail, then cancel the pending sleep.
	time.Sleep(20 * time.Millisecond)
	cancel()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Do did not return after cancellation")
	}
	if calls != 1 {
		t.Errorf("Expected 1 call before cancellation, got %d", calls)
	}
}

func TestDelayForCapsAtMaxDelay(t *testing.T) {
	policy := Policy{MaxAttempts: 5, BaseDelay: 100 * time.Millisecond, MaxDelay: 150 * time.Millisecond}

	for retries := 1; retries <= 4; retries++ {
		if d := policy.delayFor(retries); d > policy.MaxDelay {
			t.Errorf("delayFor(%d) = %s exceeds max %s", retries, d, policy.MaxDelay)
		}
	}
}
