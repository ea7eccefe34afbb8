package resilience

import (
	"context"
	"errors"
	"time"

	"github.com/kirillkom/doc-summarizer/internal/core/domain"
)

// ErrPollExhausted is returned when every attempt finished without a ready result.
var ErrPollExhausted = errors.New("poll attempts exhausted")

type SleepFunc func(ctx context.Context, d time.Duration) error

// SleepContext waits for d or until ctx is done.
func SleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// AttemptFunc performs one attempt. ready=false with a nil error means "not yet".
type AttemptFunc[T any] func(ctx context.Context, attempt int) (value T, ready bool, err error)

// Poller repeats an attempt until it reports ready or the policy budget runs out.
type Poller struct {
	Sleep SleepFunc
	// OnAttempt, when set, observes every finished attempt.
	OnAttempt func(attempt int, ready bool, err error)
}

func NewPoller() *Poller {
	return &Poller{Sleep: SleepContext}
}

// Poll waits policy.InitialDelay once, then calls try up to policy.MaxAttempts
// times with policy.Interval between attempts. An attempt error is treated as
// "not ready" except on the final attempt, where it is returned as is.
func Poll[T any](ctx context.Context, p *Poller, policy domain.PollPolicy, try AttemptFunc[T]) (T, int, error) {
	var zero T
	if p == nil {
		p = NewPoller()
	}
	sleep := p.Sleep
	if sleep == nil {
		sleep = SleepContext
	}
	maxAttempts := policy.MaxAttempts
	if maxAttempts <= 0 {
		maxAttempts = 1
	}

	if err := sleep(ctx, policy.InitialDelay); err != nil {
		return zero, 0, err
	}

	for attempt := 1; attempt <= maxAttempts; attempt++ {
		value, ready, err := try(ctx, attempt)
		if p.OnAttempt != nil {
			p.OnAttempt(attempt, ready, err)
		}
		if err == nil && ready {
			return value, attempt, nil
		}
		if ctxErr := ctx.Err(); ctxErr != nil {
			return zero, attempt, ctxErr
		}
		if attempt == maxAttempts {
			if err != nil {
				return zero, attempt, err
			}
			break
		}
		if err := sleep(ctx, policy.Interval); err != nil {
			return zero, attempt, err
		}
	}

	return zero, maxAttempts, ErrPollExhausted
}
