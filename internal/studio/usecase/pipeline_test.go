package usecase

import (
	"context"
	"errors"
	"testing"

	"github.com/amankumarsingh77/studio-orchestrator/internal/models"
	"github.com/amankumarsingh77/studio-orchestrator/internal/studio"
	"github.com/amankumarsingh77/studio-orchestrator/pkg/logger"
)

// asyncStage submits a job whose id is name and records the prior filename it saw.
func asyncStage(name string, kind models.JobKind, required bool, seen *[]string) models.PipelineStage {
	return models.PipelineStage{
		Name:     name,
		Kind:     kind,
		Required: required,
		Submit: func(ctx context.Context, prior *models.JobResult) (*models.JobHandle, error) {
			if seen != nil {
				p := ""
				if prior != nil {
					p = prior.Filename
				}
				*seen = append(*seen, p)
			}
			return &models.JobHandle{ID: name, Kind: kind}, nil
		},
	}
}

func TestPipelineRunsStagesInOrder(t *testing.T) {
	poller := &fakePoller{}
	runner := NewPipelineRunner(poller, studio.DefaultRoutes(), logger.NewNopLogger())

	var seen []string
	stages := []models.PipelineStage{
		asyncStage("extract", models.JobKindExtract, true, &seen),
		asyncStage("pitch", models.JobKindPitchShift, true, &seen),
		asyncStage("trim", models.JobKindTrim, true, &seen),
	}
	results, err := runner.Run(context.Background(), stages, nil)
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if len(results) != 3 {
		t.Fatalf("results = %d, want 3", len(results))
	}
	want := []string{"", "extract.out", "pitch.out"}
	for i := range want {
		if seen[i] != want[i] {
			t.Fatalf("stage %d saw prior %q, want %q", i, seen[i], want[i])
		}
	}
	if got := poller.calls; len(got) != 3 || got[0] != "extract" || got[2] != "trim" {
		t.Fatalf("poll order = %v", got)
	}
}

// TestPipelineStopsAtRequiredFailure checks later stages are never submitted.
func TestPipelineStopsAtRequiredFailure(t *testing.T) {
	poller := &fakePoller{
		poll: func(h *models.JobHandle) (*models.JobResult, error) {
			if h.ID == "pitch" {
				return nil, &studio.Error{Kind: studio.KindJobFailed, JobKind: models.JobKindPitchShift, Message: "ffmpeg crashed"}
			}
			return &models.JobResult{Filename: h.ID + ".out"}, nil
		},
	}
	runner := NewPipelineRunner(poller, studio.DefaultRoutes(), logger.NewNopLogger())

	var seen []string
	stages := []models.PipelineStage{
		asyncStage("extract", models.JobKindExtract, true, &seen),
		asyncStage("pitch", models.JobKindPitchShift, true, &seen),
		asyncStage("trim", models.JobKindTrim, true, &seen),
	}
	results, err := runner.Run(context.Background(), stages, nil)

	var stageErr *studio.StageError
	if !errors.As(err, &stageErr) {
		t.Fatalf("err = %v, want StageError", err)
	}
	if stageErr.Index != 1 || stageErr.Name != "pitch" {
		t.Fatalf("stage error = %+v", stageErr)
	}
	if !errors.Is(err, studio.ErrJobFailed) {
		t.Fatalf("err = %v, want job failed underneath", err)
	}
	if len(seen) != 2 {
		t.Fatalf("submitted %d stages, want 2", len(seen))
	}
	if len(results) != 1 || results[0].Result.Filename != "extract.out" {
		t.Fatalf("partial results = %+v", results)
	}
}

func TestPipelineFirstStageFailureSubmitsNothingElse(t *testing.T) {
	poller := &fakePoller{
		poll: func(h *models.JobHandle) (*models.JobResult, error) {
			return nil, &studio.Error{Kind: studio.KindJobFailed, Message: "bad url"}
		},
	}
	runner := NewPipelineRunner(poller, studio.DefaultRoutes(), logger.NewNopLogger())

	var seen []string
	stages := []models.PipelineStage{
		asyncStage("extract", models.JobKindExtract, true, &seen),
		asyncStage("pitch", models.JobKindPitchShift, false, &seen),
		asyncStage("trim", models.JobKindTrim, true, &seen),
	}
	results, err := runner.Run(context.Background(), stages, nil)

	var stageErr *studio.StageError
	if !errors.As(err, &stageErr) || stageErr.Index != 0 {
		t.Fatalf("err = %v, want StageError at index 0", err)
	}
	if len(seen) != 1 || len(poller.calls) != 1 || len(results) != 0 {
		t.Fatalf("submits = %d, polls = %d, results = %d", len(seen), len(poller.calls), len(results))
	}
}

// TestPipelineOptionalFailurePassesPriorThrough checks a skipped stage hands its input on.
func TestPipelineOptionalFailurePassesPriorThrough(t *testing.T) {
	poller := &fakePoller{
		poll: func(h *models.JobHandle) (*models.JobResult, error) {
			if h.ID == "pitch" {
				return nil, &studio.Error{Kind: studio.KindTimedOut, JobKind: models.JobKindPitchShift}
			}
			return &models.JobResult{Filename: h.ID + ".out"}, nil
		},
	}
	runner := NewPipelineRunner(poller, studio.DefaultRoutes(), logger.NewNopLogger())

	var seen []string
	var phases []models.StagePhase
	stages := []models.PipelineStage{
		asyncStage("extract", models.JobKindExtract, true, &seen),
		asyncStage("pitch", models.JobKindPitchShift, false, &seen),
		asyncStage("trim", models.JobKindTrim, false, &seen),
	}
	results, err := runner.Run(context.Background(), stages, func(u models.StageProgress) {
		if u.Index == 1 {
			phases = append(phases, u.Phase)
		}
	})
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if seen[2] != "extract.out" {
		t.Fatalf("trim saw prior %q, want extract.out", seen[2])
	}
	if len(results) != 2 || results[1].Name != "trim" || results[1].Index != 2 {
		t.Fatalf("results = %+v", results)
	}
	if last := phases[len(phases)-1]; last != models.StagePhaseSkipped {
		t.Fatalf("pitch final phase = %q, want skipped", last)
	}
}

// TestPipelineInlineCompletionSkipsPolling checks a stage answered inline is never polled.
func TestPipelineInlineCompletionSkipsPolling(t *testing.T) {
	poller := &fakePoller{}
	runner := NewPipelineRunner(poller, studio.DefaultRoutes(), logger.NewNopLogger())

	var nextPrior string
	stages := []models.PipelineStage{
		{
			Name:     "process-image",
			Kind:     models.JobKindImageProcess,
			Required: true,
			Submit: func(ctx context.Context, _ *models.JobResult) (*models.JobHandle, error) {
				return &models.JobHandle{Kind: models.JobKindImageProcess, Inline: &models.JobResult{Filename: "logo_cover.png"}}, nil
			},
		},
		{
			Name:     "create-video",
			Kind:     models.JobKindVideoCreate,
			Required: true,
			Submit: func(ctx context.Context, prior *models.JobResult) (*models.JobHandle, error) {
				nextPrior = prior.Filename
				return &models.JobHandle{ID: "video", Kind: models.JobKindVideoCreate}, nil
			},
		},
	}
	results, err := runner.Run(context.Background(), stages, nil)
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if len(poller.calls) != 1 || poller.calls[0] != "video" {
		t.Fatalf("poll calls = %v, want only video", poller.calls)
	}
	if nextPrior != "logo_cover.png" {
		t.Fatalf("create-video saw %q", nextPrior)
	}
	if results[0].Result.Filename != "logo_cover.png" {
		t.Fatalf("inline result = %+v", results[0].Result)
	}
}

func TestPipelineAbortOnOptionalStageStopsRun(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	poller := &fakePoller{
		poll: func(h *models.JobHandle) (*models.JobResult, error) {
			if h.ID == "pitch" {
				cancel()
				return nil, &studio.Error{Kind: studio.KindAborted, Err: context.Canceled}
			}
			return &models.JobResult{Filename: h.ID + ".out"}, nil
		},
	}
	runner := NewPipelineRunner(poller, studio.DefaultRoutes(), logger.NewNopLogger())

	var seen []string
	stages := []models.PipelineStage{
		asyncStage("extract", models.JobKindExtract, true, &seen),
		asyncStage("pitch", models.JobKindPitchShift, false, &seen),
		asyncStage("trim", models.JobKindTrim, false, &seen),
	}
	_, err := runner.Run(ctx, stages, nil)
	if !errors.Is(err, studio.ErrAborted) {
		t.Fatalf("err = %v, want aborted", err)
	}
	if len(seen) != 2 {
		t.Fatalf("submitted %d stages, want 2", len(seen))
	}
}

func TestPipelineSubmitErrorOnRequiredStage(t *testing.T) {
	poller := &fakePoller{}
	runner := NewPipelineRunner(poller, studio.DefaultRoutes(), logger.NewNopLogger())

	stages := []models.PipelineStage{{
		Name:     "merge",
		Kind:     models.JobKindMerge,
		Required: true,
		Submit: func(ctx context.Context, _ *models.JobResult) (*models.JobHandle, error) {
			return nil, &studio.Error{Kind: studio.KindSubmission, Message: "no files"}
		},
	}}
	_, err := runner.Run(context.Background(), stages, nil)
	if !errors.Is(err, studio.ErrSubmission) {
		t.Fatalf("err = %v, want submission", err)
	}
	if len(poller.calls) != 0 {
		t.Fatalf("poller called %d times", len(poller.calls))
	}
}

// TestPipelineRoutesByKind checks the long-running profile and status route are chosen per kind.
func TestPipelineRoutesByKind(t *testing.T) {
	var endpoints []string
	var budgets []int
	poller := pollerFunc(func(h *models.JobHandle, ep string, opts studio.PollOptions) (*models.JobResult, error) {
		endpoints = append(endpoints, ep)
		budgets = append(budgets, opts.MaxAttempts)
		return &models.JobResult{Filename: "f"}, nil
	})
	runner := NewPipelineRunner(poller, studio.DefaultRoutes(), logger.NewNopLogger())

	stages := []models.PipelineStage{
		asyncStage("extract", models.JobKindExtract, true, nil),
		asyncStage("video", models.JobKindVideoCreate, true, nil),
	}
	if _, err := runner.Run(context.Background(), stages, nil); err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if endpoints[0] != "/extract_status" || endpoints[1] != "/process/status" {
		t.Fatalf("endpoints = %v", endpoints)
	}
	if budgets[0] != studio.DefaultMaxAttempts || budgets[1] != studio.DefaultLongRunningMaxAttempts {
		t.Fatalf("budgets = %v", budgets)
	}
}

func TestPipelineProgressEvents(t *testing.T) {
	runner := NewPipelineRunner(&fakePoller{}, studio.DefaultRoutes(), logger.NewNopLogger())
	var updates []models.StageProgress
	stages := []models.PipelineStage{
		asyncStage("a", models.JobKindMerge, true, nil),
		asyncStage("b", models.JobKindTrim, true, nil),
	}
	if _, err := runner.Run(context.Background(), stages, func(u models.StageProgress) {
		updates = append(updates, u)
	}); err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	want := []models.StagePhase{
		models.StagePhaseSubmitted, models.StagePhaseProgress, models.StagePhaseCompleted,
		models.StagePhaseSubmitted, models.StagePhaseProgress, models.StagePhaseCompleted,
	}
	if len(updates) != len(want) {
		t.Fatalf("updates = %d, want %d", len(updates), len(want))
	}
	for i, u := range updates {
		if u.Phase != want[i] || u.Total != 2 {
			t.Fatalf("update %d = %+v", i, u)
		}
	}
	if got := updates[len(updates)-1].Overall(); got != 100 {
		t.Fatalf("final overall = %v, want 100", got)
	}
}

type pollerFunc func(h *models.JobHandle, ep string, opts studio.PollOptions) (*models.JobResult, error)

func (f pollerFunc) Poll(ctx context.Context, h *models.JobHandle, ep string, _ studio.ProgressFunc, opts studio.PollOptions) (*models.JobResult, error) {
	return f(h, ep, opts)
}
