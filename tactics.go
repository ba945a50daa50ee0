package logincapture

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// Tactic is one independent way of producing a T. Timeout bounds a single
// attempt; zero means the attempt only inherits the parent deadline.
type Tactic[T any] struct {
	Name    string
	Timeout time.Duration
	Try     func(ctx context.Context) (T, error)
}

// Attempt describes the result of one tactic for observers.
type Attempt struct {
	Index   int
	Name    string
	Err     error
	Elapsed time.Duration
}

// FirstSuccess runs tactics in declared order and returns the first result
// that succeeds together with its index. Later tactics are never invoked once
// one succeeds. When all fail the attempt errors are joined.
func FirstSuccess[T any](ctx context.Context, tactics []Tactic[T], observe func(Attempt)) (T, int, error) {
	var zero T
	if len(tactics) == 0 {
		return zero, -1, errors.New("no tactics configured")
	}

	errs := make([]error, 0, len(tactics))
	for i, t := range tactics {
		if err := ctx.Err(); err != nil {
			errs = append(errs, err)
			return zero, -1, errors.Join(errs...)
		}

		attemptCtx, cancel := ctx, context.CancelFunc(func() {})
		if t.Timeout > 0 {
			attemptCtx, cancel = context.WithTimeout(ctx, t.Timeout)
		}
		start := time.Now()
		v, err := runTactic(attemptCtx, t)
		cancel()

		if observe != nil {
			observe(Attempt{Index: i, Name: t.Name, Err: err, Elapsed: time.Since(start)})
		}
		if err == nil {
			return v, i, nil
		}
		errs = append(errs, fmt.Errorf("%s: %w", t.Name, err))
	}
	return zero, -1, errors.Join(errs...)
}

// runTactic converts a panicking tactic into an ordinary failure.
func runTactic[T any](ctx context.Context, t Tactic[T]) (v T, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("tactic panicked: %v", r)
		}
	}()
	if t.Try == nil {
		return v, errors.New("tactic has no implementation")
	}
	return t.Try(ctx)
}
