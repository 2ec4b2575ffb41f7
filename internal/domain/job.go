package domain

import (
	"path/filepath"
	"regexp"
	"strings"
	"time"
)

type JobStatus string

const (
	JobPending  JobStatus = "PENDING"
	JobReady    JobStatus = "READY"
	JobFailed   JobStatus = "FAILED"
	JobTimedOut JobStatus = "TIMED_OUT"
)

func (s JobStatus) Terminal() bool {
	switch s {
	case JobReady, JobFailed, JobTimedOut:
		return true
	default:
		return false
	}
}

type ExportJob struct {
	Handle       string
	Kind         RequestKind
	SubmittedAt  time.Time
	Status       JobStatus
	LastObserved string
	Polls        int
	Artifact     ArtifactSpec
	Subjects     []int
	Tables       []CatalogEntry
}

func NewExportJob(handle string, plan ActionPlan, submittedAt time.Time) *ExportJob {
	return &ExportJob{
		Handle:      handle,
		Kind:        plan.Kind,
		SubmittedAt: submittedAt,
		Status:      JobPending,
		Artifact:    plan.Artifact,
		Subjects:    append([]int(nil), plan.Subjects...),
		Tables:      append([]CatalogEntry(nil), plan.Tables...),
	}
}

var unsafeFileChars = regexp.MustCompile(`[^A-Za-z0-9._-]+`)

// FileStem is the deterministic, filesystem-safe base name derived from the handle.
func (j *ExportJob) FileStem() string {
	stem := strings.TrimSuffix(j.Handle, filepath.Ext(j.Handle))
	stem = unsafeFileChars.ReplaceAllString(stem, "_")
	stem = strings.Trim(stem, "._")
	if stem == "" {
		return "export"
	}
	return stem
}
