package models

import "context"

// SubmitFunc starts one stage. prior is the last successful stage result, nil for the first stage.
type SubmitFunc func(ctx context.Context, prior *JobResult) (*JobHandle, error)

type PipelineStage struct {
	Name     string
	Kind     JobKind
	Required bool
	Submit   SubmitFunc
}

type StageResult struct {
	Index  int        `json:"index"`
	Name   string     `json:"name"`
	Kind   JobKind    `json:"kind"`
	Result *JobResult `json:"result"`
}

type StagePhase string

const (
	StagePhaseSubmitted StagePhase = "submitted"
	StagePhaseProgress  StagePhase = "progress"
	StagePhaseCompleted StagePhase = "completed"
	StagePhaseSkipped   StagePhase = "skipped"
	StagePhaseFailed    StagePhase = "failed"
)

type StageProgress struct {
	Index   int        `json:"index"`
	Total   int        `json:"total"`
	Name    string     `json:"name"`
	Kind    JobKind    `json:"kind"`
	Phase   StagePhase `json:"phase"`
	Percent float64    `json:"percent"`
	Message string     `json:"message"`
}

// Overall folds stage progress into a single 0-100 figure across the run.
func (p StageProgress) Overall() float64 {
	if p.Total <= 0 {
		return 0
	}
	stage := p.Percent
	switch p.Phase {
	case StagePhaseCompleted, StagePhaseSkipped, StagePhaseFailed:
		stage = 100
	case StagePhaseSubmitted:
		stage = 0
	}
	return ClampProgress((float64(p.Index)*100 + stage) / float64(p.Total))
}
