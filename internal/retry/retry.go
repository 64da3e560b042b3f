// Package retry runs fallible operations with a bounded number of attempts
// and exponential backoff between them.
package retry

import (
	"context"
	"fmt"
	"time"

	"k8s.io/apimachinery/pkg/util/wait"
	"k8s.io/utils/clock"
)

const (
	DefaultMaxAttempts  = 3
	DefaultInitialDelay = 1 * time.Second
	DefaultMaxDelay     = 30 * time.Second
)

// ExhaustedError is returned once all attempts failed. It wraps the error of
// the last attempt.
type ExhaustedError struct {
	Attempts int
	Err      error
}

func (e *ExhaustedError) Error() string {
	return fmt.Sprintf("giving up after %d attempt(s): %v", e.Attempts, e.Err)
}

func (e *ExhaustedError) Unwrap() error {
	return e.Err
}

// Observer is notified of every failed attempt that will be retried.
// attempt starts at 1.
type Observer func(attempt int, err error)

type Policy struct {
	MaxAttempts  int
	InitialDelay time.Duration
	MaxDelay     time.Duration
	OnRetryError Observer
	Clock        clock.Clock
}

// RegistryPolicy is used for all registry pulls and pushes.
func RegistryPolicy(observer Observer) Policy {
	return Policy{
		MaxAttempts:  DefaultMaxAttempts,
		InitialDelay: DefaultInitialDelay,
		MaxDelay:     DefaultMaxDelay,
		OnRetryError: observer,
	}
}

func (p *Policy) Default() {
	if p.MaxAttempts < 1 {
		p.MaxAttempts = 1
	}
	if p.InitialDelay <= 0 {
		p.InitialDelay = DefaultInitialDelay
	}
	if p.MaxDelay < p.InitialDelay {
		p.MaxDelay = p.InitialDelay
	}
	if p.Clock == nil {
		p.Clock = clock.RealClock{}
	}
}

func (p Policy) backoff() wait.Backoff {
	return wait.Backoff{
		Duration: p.InitialDelay,
		Factor:   2,
		Steps:    p.MaxAttempts,
		Cap:      p.MaxDelay,
	}
}

// Do runs op until it succeeds or MaxAttempts attempts failed. The context is
// checked before every attempt; a running attempt is never interrupted.
func Do[T any](ctx context.Context, policy Policy, op func(ctx context.Context) (T, error)) (T, error) {
	policy.Default()

	var (
		zero    T
		lastErr error
		backoff = policy.backoff()
	)

	for attempt := 1; attempt <= policy.MaxAttempts; attempt++ {
		if err := ctx.Err(); err != nil {
			if lastErr != nil {
				return zero, &ExhaustedError{Attempts: attempt - 1, Err: lastErr}
			}
			return zero, err
		}

		res, err := op(ctx)
		if err == nil {
			return res, nil
		}
		lastErr = err

		if attempt == policy.MaxAttempts {
			break
		}
		if policy.OnRetryError != nil {
			policy.OnRetryError(attempt, err)
		}
		policy.Clock.Sleep(backoff.Step())
	}

	return zero, &ExhaustedError{Attempts: policy.MaxAttempts, Err: lastErr}
}

// Run is Do for operations without a result.
func Run(ctx context.Context, policy Policy, op func(ctx context.Context) error) error {
	_, err := Do(ctx, policy, func(ctx context.Context) (struct{}, error) {
		return struct{}{}, op(ctx)
	})

	return err
}
