package domain

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

var (
	ErrConnection         = errors.New("browser endpoint unreachable")
	ErrAuthentication     = errors.New("portal login rejected")
	ErrUnknownRequest     = errors.New("unknown request")
	ErrNavigation         = errors.New("page element never appeared")
	ErrSubmission         = errors.New("no export job handle after trigger")
	ErrPollTimeout        = errors.New("export job did not finish in time")
	ErrExportFailed       = errors.New("export job failed on the portal")
	ErrIncompleteDownload = errors.New("incomplete download")
	ErrPrecondition       = errors.New("precondition failed")

	ErrSessionClosed  = errors.New("session is closed")
	ErrSessionBusy    = errors.New("session is running another operation")
	ErrCatalogMissing = errors.New("catalog file not found")
)

// JobError reports a workflow failure with the context needed to diagnose it.
// errors.Is matches both Kind and the wrapped cause.
type JobError struct {
	Kind       error
	Op         string
	Handle     string
	Elapsed    time.Duration
	LastStatus string
	Err        error
}

func (e *JobError) Error() string {
	var b strings.Builder
	if e.Op != "" {
		b.WriteString(e.Op)
		b.WriteString(": ")
	}
	b.WriteString(e.Kind.Error())

	details := make([]string, 0, 3)
	if e.Handle != "" {
		details = append(details, fmt.Sprintf("job=%s", e.Handle))
	}
	if e.Elapsed > 0 {
		details = append(details, fmt.Sprintf("elapsed=%s", e.Elapsed.Round(time.Millisecond)))
	}
	if e.LastStatus != "" {
		details = append(details, fmt.Sprintf("last_status=%q", e.LastStatus))
	}
	if len(details) > 0 {
		b.WriteString(" (")
		b.WriteString(strings.Join(details, " "))
		b.WriteString(")")
	}
	if e.Err != nil {
		b.WriteString(": ")
		b.WriteString(e.Err.Error())
	}

	return b.String()
}

func (e *JobError) Unwrap() []error {
	if e.Err == nil {
		return []error{e.Kind}
	}
	return []error{e.Kind, e.Err}
}

func NewJobError(kind error, op string, err error) *JobError {
	return &JobError{Kind: kind, Op: op, Err: err}
}
