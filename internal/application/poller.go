package application

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/livingpark/ppmi-downloader/internal/domain"
	"github.com/livingpark/ppmi-downloader/internal/portal"
	"github.com/livingpark/ppmi-downloader/internal/ports"
	"github.com/livingpark/ppmi-downloader/internal/waitfor"
	"github.com/rs/zerolog"
)

type PollOptions struct {
	MaxWait     time.Duration
	Interval    time.Duration
	MaxInterval time.Duration
	Backoff     bool
}

// Poller watches the export-status page until a job leaves PENDING.
type Poller struct {
	clock  ports.Clock
	logger zerolog.Logger
}

func NewPoller(clock ports.Clock, logger zerolog.Logger) *Poller {
	if clock == nil {
		clock = ports.SystemClock{}
	}
	return &Poller{clock: clock, logger: logger.With().Str("component", "poller").Logger()}
}

// Wait polls until the job is READY, FAILED or TIMED_OUT, updating it in
// place. Elapsed time counts from the job's submission, and the check runs
// before each status read, so a job past MaxWait is never read again. An expired ctx deadline counts
// as TIMED_OUT.
func (p *Poller) Wait(ctx context.Context, session *Session, job *domain.ExportJob, opts PollOptions) (*domain.ExportJob, error) {
	if job == nil {
		return nil, fmt.Errorf("%w: no export job", domain.ErrPrecondition)
	}
	if job.Status.Terminal() {
		return job, nil
	}
	if opts.MaxWait <= 0 {
		return job, fmt.Errorf("%w: poll max wait must be positive", domain.ErrPrecondition)
	}

	release, err := session.acquire()
	if err != nil {
		return job, err
	}
	defer release()

	logger := p.logger.With().Str("job", job.Handle).Logger()
	exports := session.site.Exports
	statusTarget := exports.Status.WithHandle(job.Handle)
	start := job.SubmittedAt
	if start.IsZero() {
		start = p.clock.Now()
	}

	err = waitfor.Until(ctx, waitfor.Policy{
		Interval:    opts.Interval,
		MaxInterval: opts.MaxInterval,
		Backoff:     opts.Backoff,
		Timeout:     opts.MaxWait,
		Start:       start,
		Clock:       p.clock,
	}, func(ctx context.Context) (bool, error) {
		if err := session.browser.Navigate(ctx, session.site.ExportsURL); err != nil {
			return false, fmt.Errorf("open export status page: %w", err)
		}
		job.Polls++

		text, err := session.browser.Text(ctx, statusTarget)
		if err != nil {
			if errors.Is(err, ports.ErrElementNotFound) {
				logger.Debug().Int("poll", job.Polls).Msg("job not listed yet")
				return false, nil
			}
			return false, err
		}

		job.LastObserved = strings.TrimSpace(text)
		job.Status = Classify(exports, job.LastObserved)
		logger.Debug().Int("poll", job.Polls).Str("status", job.LastObserved).Msg("polled export")
		return job.Status.Terminal(), nil
	})

	elapsed := p.clock.Now().Sub(start)
	switch {
	case err == nil && job.Status == domain.JobFailed:
		return job, &domain.JobError{Kind: domain.ErrExportFailed, Op: "wait", Handle: job.Handle, Elapsed: elapsed, LastStatus: job.LastObserved}
	case err == nil:
		logger.Info().Dur("elapsed", elapsed).Int("polls", job.Polls).Msg("export ready")
		return job, nil
	case errors.Is(err, waitfor.ErrTimeout), errors.Is(err, context.DeadlineExceeded):
		job.Status = domain.JobTimedOut
		logger.Warn().Dur("elapsed", elapsed).Str("status", job.LastObserved).Msg("export timed out")
		jobErr := &domain.JobError{Kind: domain.ErrPollTimeout, Op: "wait", Handle: job.Handle, Elapsed: elapsed, LastStatus: job.LastObserved}
		if errors.Is(err, context.DeadlineExceeded) {
			jobErr.Err = err
		}
		return job, jobErr
	case errors.Is(err, context.Canceled):
		return job, err
	default:
		return job, &domain.JobError{Kind: domain.ErrNavigation, Op: "wait", Handle: job.Handle, Elapsed: elapsed, LastStatus: job.LastObserved, Err: err}
	}
}

// Classify maps status text to a job status. Failure words win over ready
// words; anything unrecognised is still PENDING.
func Classify(page portal.ExportsPage, text string) domain.JobStatus {
	lower := strings.ToLower(text)
	switch {
	case containsAny(lower, page.FailedWords):
		return domain.JobFailed
	case containsAny(lower, page.ReadyWords):
		return domain.JobReady
	default:
		return domain.JobPending
	}
}

func containsAny(text string, words []string) bool {
	for _, word := range words {
		if word != "" && strings.Contains(text, strings.ToLower(word)) {
			return true
		}
	}
	return false
}
