// Package retry provides a generic resilient-call wrapper with exponential
// backoff and a circuit breaker for upstream AI services.
package retry

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/rand"
	"time"
)

// ErrExhaustedRetries indicates retry attempts were exhausted.
var ErrExhaustedRetries = errors.New("retry attempts exhausted")

// Policy configures the backoff schedule for a wrapped call.
// Policies are plain values; callers pick one per call site.
type Policy struct {
	MaxAttempts int
	MinWait     time.Duration
	MaxWait     time.Duration
	Multiplier  float64
	Jitter      float64
}

// DefaultPolicy suits short generation and embedding calls.
func DefaultPolicy() Policy {
	return Policy{
		MaxAttempts: 6,
		MinWait:     1 * time.Second,
		MaxWait:     30 * time.Second,
		Multiplier:  2.0,
		Jitter:      0.1,
	}
}

// SlowPolicy suits long-running calls such as transcript topic extraction,
// where the upstream service needs more room to recover.
func SlowPolicy() Policy {
	return Policy{
		MaxAttempts: 6,
		MinWait:     5 * time.Second,
		MaxWait:     90 * time.Second,
		Multiplier:  1.5,
		Jitter:      0.1,
	}
}

// Do executes fn under the policy's backoff schedule. Each failed attempt
// waits the current interval (with random jitter) before the next one, the
// interval growing by the multiplier up to MaxWait. Context cancellation and
// an open circuit breaker abandon the schedule immediately. The last
// underlying error is wrapped in ErrExhaustedRetries.
func Do[T any](ctx context.Context, logger *slog.Logger, policy Policy, op string, fn func(context.Context) (T, error)) (T, error) {
	var zero T
	var lastErr error

	if policy.MaxAttempts <= 0 {
		policy.MaxAttempts = 1
	}

	interval := policy.MinWait
	rnd := rand.New(rand.NewSource(time.Now().UnixNano()))

	for attempt := 1; attempt <= policy.MaxAttempts; attempt++ {
		result, err := fn(ctx)
		if err == nil {
			return result, nil
		}

		lastErr = err

		if ctx.Err() != nil {
			return zero, fmt.Errorf("%s abandoned: %w", op, ctx.Err())
		}

		// An open breaker means the upstream is down; waiting won't help.
		if errors.Is(err, ErrCircuitOpen) {
			return zero, fmt.Errorf("%s: %w", op, err)
		}

		if attempt < policy.MaxAttempts {
			jitter := 1.0 + (policy.Jitter * (2*rnd.Float64() - 1))
			wait := time.Duration(float64(interval) * jitter)
			if wait > policy.MaxWait {
				wait = policy.MaxWait
			}
			if wait < 0 {
				wait = 0
			}

			if logger != nil {
				logger.DebugContext(ctx, "Operation failed, retrying",
					"op", op,
					"attempt", attempt,
					"max_attempts", policy.MaxAttempts,
					"next_wait", wait,
					"error", err,
				)
			}

			timer := time.NewTimer(wait)
			select {
			case <-ctx.Done():
				timer.Stop()
				return zero, fmt.Errorf("%s abandoned: %w", op, ctx.Err())
			case <-timer.C:
			}

			interval = time.Duration(float64(interval) * policy.Multiplier)
			if interval > policy.MaxWait {
				interval = policy.MaxWait
			}
		}
	}

	return zero, fmt.Errorf("%s: %w after %d attempts: %w", op, ErrExhaustedRetries, policy.MaxAttempts, lastErr)
}
