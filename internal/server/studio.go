package server

import (
	"github.com/amankumarsingh77/studio-orchestrator/internal/config"
	"github.com/amankumarsingh77/studio-orchestrator/internal/studio"
	studioUsecase "github.com/amankumarsingh77/studio-orchestrator/internal/studio/usecase"
	"github.com/amankumarsingh77/studio-orchestrator/pkg/logger"
)

// NewStudioPipeline assembles the workflow builder and pipeline runner over one studio client.
// The API server, the worker and studioctl all build their pipelines here.
func NewStudioPipeline(client studio.Client, cfg config.StudioConfig, log logger.Logger) (studio.Workflows, studio.PipelineRunner) {
	audioPolicy := studioUsecase.NewUploadPolicy(cfg.AudioUpload)
	imagePolicy := studioUsecase.NewUploadPolicy(cfg.ImageUpload)
	if len(cfg.AudioUpload.Extensions) == 0 {
		audioPolicy = studioUsecase.DefaultAudioPolicy()
	}
	if len(cfg.ImageUpload.Extensions) == 0 {
		imagePolicy = studioUsecase.DefaultImagePolicy()
	}

	workflows := studioUsecase.NewWorkflows(
		client,
		studioUsecase.NewUploadStager(client, audioPolicy, log),
		studioUsecase.NewUploadStager(client, imagePolicy, log),
		imagePolicy,
		log,
	)
	poller := studioUsecase.NewJobPoller(client, log)
	runner := studioUsecase.NewPipelineRunner(poller, studio.RoutesFromConfig(cfg), log)
	return workflows, runner
}
