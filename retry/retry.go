package retry

import (
	"context"
	"fmt"
	"math/rand"
	"time"

	"github.com/mezonai/mmn-replay/logx"
)

// Policy bounds a retried operation: attempts, exponential delay growth and
// a jitter fraction so concurrent retries spread out.
type Policy struct {
	MaxAttempts int
	BaseDelay   time.Duration
	MaxDelay    time.Duration
	Jitter      float64
}

func DefaultPolicy() Policy {
	return Policy{
		MaxAttempts: 3,
		BaseDelay:   200 * time.Millisecond,
		MaxDelay:    5 * time.Second,
		Jitter:      0.2,
	}
}

// Do runs fn up to MaxAttempts times, sleeping between attempts. Returns the
// number of attempts made and the last error. Cancellation wins over a
// pending sleep.
func (p Policy) Do(ctx context.Context, op string, fn func() error) (int, error) {
	attempts := p.MaxAttempts
	if attempts <= 0 {
		attempts = 1
	}

	var lastErr error
	for attempt := 1; attempt <= attempts; attempt++ {
		if err := ctx.Err(); err != nil {
			return attempt - 1, err
		}
		if attempt > 1 {
			delay := p.delayFor(attempt - 1)
			logx.Warn("RETRY", fmt.Sprintf("%s failed, retrying (attempt %d/%d) in %s: %v", op, attempt, attempts, delay, lastErr))
			select {
			case <-ctx.Done():
				return attempt - 1, ctx.Err()
			case <-time.After(delay):
			}
		}

		if lastErr = fn(); lastErr == nil {
			return attempt, nil
		}
	}
	return attempts, lastErr
}

func (p Policy) delayFor(retries int) time.Duration {
	base := p.BaseDelay
	if base <= 0 {
		base = 100 * time.Millisecond
	}
	delay := base << uint(retries-1)
	if p.MaxDelay > 0 && delay > p.MaxDelay {
		delay = p.MaxDelay
	}
	if p.Jitter > 0 {
		spread := float64(delay) * p.Jitter
		delay += time.Duration(rand.Float64() * spread)
	}
	return delay
}
