package domain

import "sort"

// Artifact is a file retrieved for a READY export job.
type Artifact struct {
	Path      string
	Size      int64
	JobHandle string
	Part      int
	SourceURL string
}

type PartResult struct {
	Index    int
	URL      string
	Artifact *Artifact
	Err      error
}

type FetchReport struct {
	JobHandle string
	Parts     []PartResult
}

func (r *FetchReport) Succeeded() []Artifact {
	artifacts := make([]Artifact, 0, len(r.Parts))
	for _, part := range r.Parts {
		if part.Err == nil && part.Artifact != nil {
			artifacts = append(artifacts, *part.Artifact)
		}
	}
	return artifacts
}

func (r *FetchReport) Failed() []PartResult {
	failed := make([]PartResult, 0)
	for _, part := range r.Parts {
		if part.Err != nil {
			failed = append(failed, part)
		}
	}
	return failed
}

func (r *FetchReport) Paths() []string {
	succeeded := r.Succeeded()
	paths := make([]string, 0, len(succeeded))
	for _, artifact := range succeeded {
		paths = append(paths, artifact.Path)
	}
	return paths
}

// ImagingResult is the partial-success report of an imaging download.
type ImagingResult struct {
	Archives []string
	Covered  []int
	Missing  []int
	Failed   []PartResult
}

func (r *ImagingResult) Complete() bool {
	return len(r.Missing) == 0 && len(r.Failed) == 0
}

// SubjectCoverage splits requested into the IDs present in covered and the rest.
func SubjectCoverage(requested []int, covered map[int]struct{}) ([]int, []int) {
	have := make([]int, 0, len(requested))
	missing := make([]int, 0)
	for _, id := range requested {
		if _, ok := covered[id]; ok {
			have = append(have, id)
			continue
		}
		missing = append(missing, id)
	}
	sort.Ints(have)
	sort.Ints(missing)
	return have, missing
}
