package application

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/livingpark/ppmi-downloader/internal/domain"
	"github.com/livingpark/ppmi-downloader/internal/ports"
	"github.com/livingpark/ppmi-downloader/internal/waitfor"
	"github.com/rs/zerolog"
)

// ActionPolicy bounds how long a single plan step may wait for its element
// or postcondition.
type ActionPolicy struct {
	Timeout  time.Duration
	Interval time.Duration
}

func (p ActionPolicy) waitPolicy(clock ports.Clock) waitfor.Policy {
	timeout := p.Timeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return waitfor.Policy{Interval: p.Interval, Timeout: timeout, Clock: clock}
}

// actionRunner executes plan steps against one browser session, each step
// wrapped in waitfor.Until.
type actionRunner struct {
	browser ports.BrowserSession
	policy  waitfor.Policy
	logger  zerolog.Logger
}

func (r actionRunner) runAll(ctx context.Context, steps []domain.Action) error {
	for i, step := range steps {
		if err := r.run(ctx, step); err != nil {
			return fmt.Errorf("step %d/%d: %w", i+1, len(steps), err)
		}
	}
	return nil
}

func (r actionRunner) run(ctx context.Context, step domain.Action) error {
	r.logger.Debug().Stringer("action", step).Msg("run action")

	policy := r.stepPolicy(step)
	var err error
	switch step.Op {
	case domain.OpNavigate:
		err = r.browser.Navigate(ctx, step.URL)
		if err != nil {
			err = fmt.Errorf("navigate %s: %w", step.URL, err)
		}
	case domain.OpClick, domain.OpTrigger:
		err = waitfor.Until(ctx, policy, func(ctx context.Context) (bool, error) {
			if err := r.browser.Click(ctx, step.Target); err != nil {
				return false, err
			}
			if step.Until == nil {
				return true, nil
			}
			return r.holds(ctx, *step.Until)
		})
	case domain.OpCheck:
		err = waitfor.Until(ctx, policy, func(ctx context.Context) (bool, error) {
			return true, r.browser.Check(ctx, step.Target)
		})
	case domain.OpFill:
		err = waitfor.Until(ctx, policy, func(ctx context.Context) (bool, error) {
			return true, r.browser.Fill(ctx, step.Target, step.Value)
		})
	default:
		return domain.NewJobError(domain.ErrUnknownRequest, step.String(), fmt.Errorf("unsupported action op %q", step.Op))
	}

	if err == nil {
		return nil
	}
	if ctxErr := ctx.Err(); ctxErr != nil {
		return ctxErr
	}
	if step.Optional && isWaitFailure(err) {
		r.logger.Debug().Stringer("action", step).Err(err).Msg("optional action skipped")
		return nil
	}
	return domain.NewJobError(domain.ErrNavigation, step.String(), err)
}

// stepPolicy logs every unmet check of step before the next one.
func (r actionRunner) stepPolicy(step domain.Action) waitfor.Policy {
	policy := r.policy
	policy.OnRetry = func(attempt uint, err error) {
		r.logger.Debug().Stringer("action", step).Uint("attempt", attempt+1).Err(err).Msg("action not ready, retrying")
	}
	return policy
}

// holds evaluates a postcondition once. A missing element is "not yet".
func (r actionRunner) holds(ctx context.Context, cond domain.Condition) (bool, error) {
	switch cond.Kind {
	case domain.ConditionElementPresent:
		return r.present(ctx, cond.Element)
	case domain.ConditionURLPrefix:
		current, err := r.browser.CurrentURL(ctx)
		if err != nil {
			return false, err
		}
		return strings.HasPrefix(current, cond.Prefix), nil
	case domain.ConditionURLQuery:
		current, err := r.browser.CurrentURL(ctx)
		if err != nil {
			return false, err
		}
		return queryMatches(current, cond.Query), nil
	default:
		return false, fmt.Errorf("unsupported condition %q", cond.Kind)
	}
}

func (r actionRunner) present(ctx context.Context, target domain.Locator) (bool, error) {
	elements, err := r.browser.FindAll(ctx, target)
	if err != nil {
		if errors.Is(err, ports.ErrElementNotFound) {
			return false, nil
		}
		return false, err
	}
	return len(elements) > 0, nil
}

func queryMatches(raw string, want map[string]string) bool {
	parsed, err := url.Parse(raw)
	if err != nil {
		return false
	}
	query := parsed.Query()
	for key, value := range want {
		if query.Get(key) != value {
			return false
		}
	}
	return true
}

func isWaitFailure(err error) bool {
	return errors.Is(err, waitfor.ErrTimeout) || errors.Is(err, waitfor.ErrExhausted)
}
