package resilience

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"

	"github.com/sony/gobreaker/v2"
)

// Breaker states reported to Hooks.OnBreakerChange.
const (
	BreakerClosed   = "closed"
	BreakerHalfOpen = "half_open"
	BreakerOpen     = "open"
)

// Hooks observe the executor per operation name. Both are optional.
type Hooks struct {
	OnRetry         func(operation string, attempt int, err error)
	OnBreakerChange func(operation string, state string)
}

// Executor guards calls to the document store, the summarizer and the broker.
// Each operation name gets its own breaker, so a failing OCR endpoint does not
// block uploads.
type Executor struct {
	cfg    Config
	hooks  Hooks
	logger *slog.Logger
	sleep  SleepFunc

	mu       sync.Mutex
	breakers map[string]*gobreaker.CircuitBreaker[struct{}]
}

func NewExecutor(cfg Config) *Executor {
	return &Executor{
		cfg:      cfg.normalize(),
		logger:   slog.Default(),
		sleep:    SleepContext,
		breakers: make(map[string]*gobreaker.CircuitBreaker[struct{}]),
	}
}

// WithLogger returns e with its log output redirected.
func (e *Executor) WithLogger(logger *slog.Logger) *Executor {
	if logger != nil {
		e.logger = logger
	}
	return e
}

// WithHooks installs observers. Call it before the executor is shared.
func (e *Executor) WithHooks(hooks Hooks) *Executor {
	e.hooks = hooks
	return e
}

// Execute runs fn under the operation's breaker, retrying it while the
// classifier reports the failure as retryable.
func (e *Executor) Execute(ctx context.Context, operation string, fn func(context.Context) error, classifier ErrorClassifier) error {
	if fn == nil {
		return fmt.Errorf("resilience: operation callback is nil")
	}
	op := strings.TrimSpace(operation)
	if op == "" {
		op = "unknown"
	}
	if classifier == nil {
		classifier = defaultClassifier
	}

	if !e.cfg.Breaker.Enabled {
		return e.retry(ctx, op, fn, classifier)
	}
	_, err := e.breaker(op, classifier).Execute(func() (struct{}, error) {
		return struct{}{}, e.retry(ctx, op, fn, classifier)
	})
	return err
}

// BreakerState reports the current state of the operation's breaker;
// operations never executed are closed.
func (e *Executor) BreakerState(operation string) string {
	e.mu.Lock()
	cb, ok := e.breakers[operation]
	e.mu.Unlock()
	if !ok {
		return BreakerClosed
	}
	return breakerStateName(cb.State())
}

func (e *Executor) retry(ctx context.Context, operation string, fn func(context.Context) error, classifier ErrorClassifier) error {
	policy := e.cfg.Retry

	var err error
	for attempt := 1; attempt <= policy.MaxAttempts; attempt++ {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}
		if err = fn(ctx); err == nil {
			return nil
		}
		if !classifier(err).Retryable || attempt == policy.MaxAttempts {
			return err
		}

		wait := policy.Backoff(attempt)
		e.logger.Warn("provider_call_retry",
			"operation", operation,
			"attempt", attempt,
			"max_attempts", policy.MaxAttempts,
			"backoff", wait.String(),
			"error", err,
		)
		if e.hooks.OnRetry != nil {
			e.hooks.OnRetry(operation, attempt, err)
		}
		if e.sleep(ctx, wait) != nil {
			return err
		}
	}
	return err
}

func (e *Executor) breaker(operation string, classifier ErrorClassifier) *gobreaker.CircuitBreaker[struct{}] {
	e.mu.Lock()
	defer e.mu.Unlock()

	if cb, ok := e.breakers[operation]; ok {
		return cb
	}

	policy := e.cfg.Breaker
	cb := gobreaker.NewCircuitBreaker[struct{}](gobreaker.Settings{
		Name:        operation,
		MaxRequests: policy.HalfOpenMaxCalls,
		Timeout:     policy.OpenTimeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			if counts.Requests < policy.MinRequests {
				return false
			}
			return float64(counts.TotalFailures)/float64(counts.Requests) >= policy.FailureRatio
		},
		IsSuccessful: func(err error) bool {
			return err == nil || !classifier(err).RecordFailure
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			e.logger.Warn("circuit_breaker_state_change",
				"operation", name,
				"from", breakerStateName(from),
				"to", breakerStateName(to),
			)
			if e.hooks.OnBreakerChange != nil {
				e.hooks.OnBreakerChange(name, breakerStateName(to))
			}
		},
	})
	e.breakers[operation] = cb
	return cb
}

func breakerStateName(state gobreaker.State) string {
	switch state {
	case gobreaker.StateOpen:
		return BreakerOpen
	case gobreaker.StateHalfOpen:
		return BreakerHalfOpen
	default:
		return BreakerClosed
	}
}

func IsCircuitOpen(err error) bool {
	return errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests)
}
