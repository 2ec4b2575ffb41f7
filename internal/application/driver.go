package application

import (
	"context"
	"fmt"
	"strings"

	"github.com/livingpark/ppmi-downloader/internal/domain"
	"github.com/livingpark/ppmi-downloader/internal/ports"
	"github.com/livingpark/ppmi-downloader/internal/waitfor"
	"github.com/rs/zerolog"
)

// Driver executes an action plan on a session and reads back the handle of
// the export job the plan triggered.
type Driver struct {
	policy ActionPolicy
	clock  ports.Clock
	logger zerolog.Logger
}

func NewDriver(policy ActionPolicy, clock ports.Clock, logger zerolog.Logger) *Driver {
	if clock == nil {
		clock = ports.SystemClock{}
	}
	return &Driver{policy: policy, clock: clock, logger: logger.With().Str("component", "driver").Logger()}
}

// Submit runs the plan steps in order; the first failing step aborts the plan.
func (d *Driver) Submit(ctx context.Context, session *Session, plan domain.ActionPlan) (*domain.ExportJob, error) {
	release, err := session.acquire()
	if err != nil {
		return nil, err
	}
	defer release()

	logger := d.logger.With().Str("kind", string(plan.Kind)).Str("label", plan.Label).Logger()
	runner := session.runner(d.policy.waitPolicy(d.clock))
	runner.logger = logger

	logger.Info().Int("steps", len(plan.Steps)).Msg("submitting export")
	if err := runner.runAll(ctx, plan.Steps); err != nil {
		return nil, err
	}

	handle, err := d.readHandle(ctx, runner, session.site.Exports.Handle)
	if err != nil {
		return nil, err
	}

	job := domain.NewExportJob(handle, plan, d.clock.Now())
	logger.Info().Str("job", job.Handle).Msg("export submitted")
	return job, nil
}

func (d *Driver) readHandle(ctx context.Context, runner actionRunner, target domain.Locator) (string, error) {
	var handle string
	err := waitfor.Until(ctx, runner.policy, func(ctx context.Context) (bool, error) {
		text, err := runner.browser.Text(ctx, target)
		if err != nil {
			return false, err
		}
		handle = strings.TrimSpace(text)
		return handle != "", nil
	})
	if err == nil {
		return handle, nil
	}
	if ctxErr := ctx.Err(); ctxErr != nil {
		return "", ctxErr
	}
	return "", domain.NewJobError(domain.ErrSubmission, "read job handle", fmt.Errorf("status area %s: %w", target, err))
}
