package models

import (
	"math"
	"strings"
)

// JobKind routes a job to its status endpoint, poll profile and result parser.
type JobKind string

const (
	JobKindMerge        JobKind = "merge"
	JobKindExtract      JobKind = "extract"
	JobKindPitchShift   JobKind = "pitch-shift"
	JobKindTrim         JobKind = "trim"
	JobKindVideoCreate  JobKind = "video-create"
	JobKindImageProcess JobKind = "image-process"
	JobKindAnalyze      JobKind = "analyze"
	// JobKindUpload marks synchronous upload stages. They never reach the poller.
	JobKindUpload JobKind = "upload"
)

func (k JobKind) Valid() bool {
	switch k {
	case JobKindMerge, JobKindExtract, JobKindPitchShift, JobKindTrim,
		JobKindVideoCreate, JobKindImageProcess, JobKindAnalyze, JobKindUpload:
		return true
	}
	return false
}

type JobState string

const (
	JobStatePending   JobState = "pending"
	JobStateRunning   JobState = "running"
	JobStateCompleted JobState = "completed"
	JobStateFailed    JobState = "failed"
)

// ParseJobState normalises the state names used across studio endpoints.
// Unknown names are treated as running so the poll budget decides.
func ParseJobState(raw string) JobState {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "pending", "queued":
		return JobStatePending
	case "completed":
		return JobStateCompleted
	case "error", "failed":
		return JobStateFailed
	default:
		return JobStateRunning
	}
}

func (s JobState) Terminal() bool {
	return s == JobStateCompleted || s == JobStateFailed
}

// JobHandle identifies one unit of remote work. Inline is set when the
// submission response already carried the final result.
type JobHandle struct {
	ID     string     `json:"id"`
	Kind   JobKind    `json:"kind"`
	Inline *JobResult `json:"inline,omitempty"`
}

func (h *JobHandle) Completed() bool {
	return h != nil && h.Inline != nil
}

// JobStatus is one snapshot of a job fetched from a status endpoint.
type JobStatus struct {
	State           JobState   `json:"state"`
	ProgressPercent float64    `json:"progress_percent"`
	Message         string     `json:"message"`
	Result          *JobResult `json:"result,omitempty"`
	ErrorMessage    *string    `json:"error_message,omitempty"`
}

// CheckTerminal reports whether a terminal status carries the payload its state requires.
func (s *JobStatus) CheckTerminal() bool {
	switch s.State {
	case JobStateCompleted:
		return s.Result != nil
	case JobStateFailed:
		return s.ErrorMessage != nil && *s.ErrorMessage != ""
	}
	return true
}

func ClampProgress(p float64) float64 {
	if math.IsNaN(p) || p < 0 {
		return 0
	}
	if p > 100 {
		return 100
	}
	return p
}
