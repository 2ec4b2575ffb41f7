// Package waitfor is the single bounded-retry primitive of the module: wait
// for a predicate to hold, polling at an interval, up to a timeout or an
// attempt budget. Element lookups, click postconditions, endpoint health
// checks and export-status polling all go through Until.
package waitfor

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/avast/retry-go/v4"
	"github.com/livingpark/ppmi-downloader/internal/ports"
)

var (
	ErrTimeout   = errors.New("wait timed out")
	ErrExhausted = errors.New("wait attempts exhausted")
)

var errNotYet = errors.New("condition not met yet")

const defaultInterval = time.Second

type Policy struct {
	Interval    time.Duration
	MaxInterval time.Duration
	// Backoff doubles the interval after each unmet check, capped by MaxInterval.
	Backoff bool
	// Timeout bounds wall-clock time since Start, or since the first check
	// when Start is zero. Zero disables it.
	Timeout time.Duration
	Start   time.Time
	// Attempts bounds the number of checks. Zero means unbounded.
	Attempts uint
	Clock    ports.Clock
	OnRetry  func(attempt uint, err error)
}

// Condition reports whether the awaited state holds. Returning an error that
// wraps ports.ErrElementNotFound counts as "not yet"; any other error aborts.
type Condition func(ctx context.Context) (bool, error)

func (p Policy) clock() ports.Clock {
	if p.Clock == nil {
		return ports.SystemClock{}
	}
	return p.Clock
}

// Until polls cond until it holds. It returns ErrTimeout when Timeout
// elapses, ErrExhausted (wrapping the last transient error, if any) when the
// attempt budget runs out, ctx.Err() on cancellation, or cond's own error.
// The timeout is checked before each call to cond, never after it.
func Until(ctx context.Context, p Policy, cond Condition) error {
	clock := p.clock()
	start := p.Start
	if start.IsZero() {
		start = clock.Now()
	}
	var lastTransient error

	err := retry.Do(
		func() error {
			if p.Timeout > 0 && clock.Now().Sub(start) >= p.Timeout {
				return ErrTimeout
			}

			ok, err := cond(ctx)
			if err != nil {
				if errors.Is(err, ports.ErrElementNotFound) {
					lastTransient = err
					return errNotYet
				}
				return err
			}
			if !ok {
				return errNotYet
			}
			return nil
		},
		p.options(ctx, clock)...,
	)

	switch {
	case err == nil:
		return nil
	case errors.Is(err, errNotYet):
		if lastTransient != nil {
			return fmt.Errorf("%w after %d attempts: %w", ErrExhausted, p.Attempts, lastTransient)
		}
		return fmt.Errorf("%w after %d attempts", ErrExhausted, p.Attempts)
	default:
		return err
	}
}

func (p Policy) options(ctx context.Context, clock ports.Clock) []retry.Option {
	interval := p.Interval
	if interval <= 0 {
		interval = defaultInterval
	}

	delayType := retry.FixedDelay
	if p.Backoff {
		delayType = doubling(interval, p.MaxInterval)
	}

	opts := []retry.Option{
		retry.Context(ctx),
		retry.Attempts(p.Attempts),
		retry.Delay(interval),
		retry.DelayType(delayType),
		retry.LastErrorOnly(true),
		retry.WithTimer(clock),
		retry.RetryIf(func(err error) bool {
			return errors.Is(err, errNotYet)
		}),
	}
	if p.MaxInterval > 0 {
		opts = append(opts, retry.MaxDelay(p.MaxInterval))
	}
	if p.OnRetry != nil {
		opts = append(opts, retry.OnRetry(p.OnRetry))
	}

	return opts
}

// doubling yields interval, 2*interval, 4*interval... per wait, capped by
// max when set. It counts its own calls so the first wait is always interval.
func doubling(interval, max time.Duration) retry.DelayTypeFunc {
	next := interval
	return func(_ uint, _ error, _ *retry.Config) time.Duration {
		current := next
		if max <= 0 || next < max {
			next *= 2
		}
		if max > 0 && current > max {
			current = max
		}
		return current
	}
}
