// Package retry provides the bounded retry policy used for external service
// calls, backing-store reconnection and per-scene sub-item processing.
//
// Delays grow as Base^attempt × Unit, where attempt counts failures from zero,
// so the default policy waits 1s then 2s between three attempts. Errors whose
// kind is not retryable (validation, configuration) are returned immediately.
package retry

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"time"

	goretry "github.com/sethvargo/go-retry"

	"github.com/phrazzld/reelchain/internal/domain"
)

// Default values for a Policy.
const (
	DefaultMaxAttempts = 3
	DefaultBase        = 2.0
	DefaultUnit        = time.Second
)

// Policy describes how an operation is retried.
type Policy struct {
	// MaxAttempts is the total number of calls, including the first one.
	MaxAttempts int

	// Base is raised to the failure index to compute each delay.
	Base float64

	// Unit scales the computed delay.
	Unit time.Duration

	// Logger receives one record per failed attempt. Defaults to slog.Default.
	Logger *slog.Logger

	// OnFailure, when set, is called after every failed attempt.
	OnFailure func(op string, attempt int, kind domain.Kind)
}

// Default returns the standard policy: three attempts, delays of 1s and 2s.
func Default() Policy {
	return Policy{
		MaxAttempts: DefaultMaxAttempts,
		Base:        DefaultBase,
		Unit:        DefaultUnit,
	}
}

// WithLogger returns a copy of the policy that logs to logger.
func (p Policy) WithLogger(logger *slog.Logger) Policy {
	p.Logger = logger
	return p
}

// Delay returns the wait after the failure with the given zero-based index.
func (p Policy) Delay(failure int) time.Duration {
	base := p.Base
	if base <= 0 {
		base = DefaultBase
	}
	unit := p.Unit
	if unit <= 0 {
		unit = DefaultUnit
	}
	return time.Duration(math.Pow(base, float64(failure)) * float64(unit))
}

func (p Policy) attempts() int {
	if p.MaxAttempts <= 0 {
		return DefaultMaxAttempts
	}
	return p.MaxAttempts
}

func (p Policy) logger() *slog.Logger {
	if p.Logger == nil {
		return slog.Default()
	}
	return p.Logger
}

// powBackoff implements goretry.Backoff with Base^n growth.
type powBackoff struct {
	policy   Policy
	failures int
}

func (b *powBackoff) Next() (time.Duration, bool) {
	d := b.policy.Delay(b.failures)
	b.failures++
	return d, false
}

// Do calls fn until it succeeds, returns a non-retryable error, or the
// attempts are exhausted. After exhaustion the last error is returned as is.
// If ctx ends while waiting, the returned error wraps both ctx.Err() and the
// last attempt's error.
func (p Policy) Do(ctx context.Context, op string, fn func(ctx context.Context) error) error {
	maxAttempts := p.attempts()
	backoff := goretry.WithMaxRetries(uint64(maxAttempts-1), &powBackoff{policy: p})
	log := p.logger().With("operation", op)

	attempt := 0
	var lastErr error
	err := goretry.Do(ctx, backoff, func(ctx context.Context) error {
		attempt++
		err := fn(ctx)
		if err == nil {
			return nil
		}
		lastErr = err
		kind := domain.KindOf(err)

		if p.OnFailure != nil {
			p.OnFailure(op, attempt, kind)
		}

		if ctx.Err() != nil {
			return err
		}

		if !kind.Retryable() {
			log.DebugContext(ctx, "attempt failed with non-retryable error",
				"attempt", attempt,
				"error_kind", kind.String(),
				"error", err)
			return err
		}

		if kind == domain.KindTimeout {
			log.WarnContext(ctx, "attempt timed out",
				"attempt", attempt,
				"max_attempts", maxAttempts,
				"error", err)
		} else {
			log.WarnContext(ctx, "attempt failed",
				"attempt", attempt,
				"max_attempts", maxAttempts,
				"error_kind", kind.String(),
				"error", err)
		}

		if attempt >= maxAttempts {
			log.ErrorContext(ctx, "all attempts failed",
				"attempts", attempt,
				"error_kind", kind.String(),
				"error", err)
		}
		return goretry.RetryableError(err)
	})

	if err != nil && lastErr != nil && ctxErr(err) && !errors.Is(lastErr, err) {
		return fmt.Errorf("%w: last attempt: %w", err, lastErr)
	}
	return err
}

func ctxErr(err error) bool {
	return errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded)
}

// DoValue is Do for operations that produce a value.
func DoValue[T any](ctx context.Context, p Policy, op string, fn func(ctx context.Context) (T, error)) (T, error) {
	var out T
	err := p.Do(ctx, op, func(ctx context.Context) error {
		v, err := fn(ctx)
		if err != nil {
			return err
		}
		out = v
		return nil
	})
	return out, err
}
