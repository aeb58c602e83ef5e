package usecase

import (
	"context"

	"github.com/amankumarsingh77/studio-orchestrator/internal/models"
	"github.com/amankumarsingh77/studio-orchestrator/internal/studio"
	"github.com/amankumarsingh77/studio-orchestrator/pkg/logger"
)

type pipelineRunner struct {
	poller studio.Poller
	routes studio.Routes
	logger logger.Logger
}

func NewPipelineRunner(poller studio.Poller, routes studio.Routes, logger logger.Logger) studio.PipelineRunner {
	return &pipelineRunner{poller: poller, routes: routes, logger: logger}
}

func (r *pipelineRunner) Run(ctx context.Context, stages []models.PipelineStage, onStageProgress studio.StageProgressFunc) ([]models.StageResult, error) {
	emit := func(i int, st models.PipelineStage, phase models.StagePhase, percent float64, msg string) {
		if onStageProgress == nil {
			return
		}
		onStageProgress(models.StageProgress{
			Index:   i,
			Total:   len(stages),
			Name:    st.Name,
			Kind:    st.Kind,
			Phase:   phase,
			Percent: percent,
			Message: msg,
		})
	}

	results := make([]models.StageResult, 0, len(stages))
	var prior *models.JobResult

	for i, st := range stages {
		if err := ctx.Err(); err != nil {
			return results, &studio.StageError{Index: i, Name: st.Name, Kind: st.Kind, Err: &studio.Error{Kind: studio.KindAborted, JobKind: st.Kind, Err: err}}
		}

		res, err := r.runStage(ctx, i, st, prior, emit)
		if err != nil {
			stageErr := &studio.StageError{Index: i, Name: st.Name, Kind: st.Kind, Err: err}
			if st.Required || studio.KindOf(err) == studio.KindAborted {
				emit(i, st, models.StagePhaseFailed, 0, err.Error())
				r.logger.Errorf("PipelineRunner.Run - %v", stageErr)
				return results, stageErr
			}
			emit(i, st, models.StagePhaseSkipped, 0, err.Error())
			r.logger.Warnf("PipelineRunner.Run - optional %v, passing prior result through", stageErr)
			continue
		}

		results = append(results, models.StageResult{Index: i, Name: st.Name, Kind: st.Kind, Result: res})
		prior = res
		emit(i, st, models.StagePhaseCompleted, 100, "")
	}
	return results, nil
}

func (r *pipelineRunner) runStage(
	ctx context.Context,
	i int,
	st models.PipelineStage,
	prior *models.JobResult,
	emit func(int, models.PipelineStage, models.StagePhase, float64, string),
) (*models.JobResult, error) {
	if st.Submit == nil {
		return nil, studio.Validationf("stage %q has no submit function", st.Name)
	}

	handle, err := st.Submit(ctx, prior)
	if err != nil {
		return nil, err
	}
	if handle == nil {
		return nil, &studio.Error{Kind: studio.KindProtocol, JobKind: st.Kind, Message: "submit returned no handle"}
	}
	if handle.Completed() {
		return handle.Inline, nil
	}
	emit(i, st, models.StagePhaseSubmitted, 0, handle.ID)

	kind := handle.Kind
	if kind == "" {
		kind = st.Kind
	}
	onProgress := func(percent float64, msg string) {
		emit(i, st, models.StagePhaseProgress, percent, msg)
	}
	return r.poller.Poll(ctx, handle, r.routes.StatusEndpoint(kind), onProgress, r.routes.ProfileFor(kind))
}
