package studio

import (
	"context"
	"time"

	"github.com/amankumarsingh77/studio-orchestrator/internal/models"
)

type ProgressFunc func(percent float64, message string)

type StageProgressFunc func(update models.StageProgress)

type PollOptions struct {
	MaxAttempts int
	Interval    time.Duration
}

type Poller interface {
	Poll(ctx context.Context, handle *models.JobHandle, statusEndpoint string, onProgress ProgressFunc, opts PollOptions) (*models.JobResult, error)
}

type PipelineRunner interface {
	Run(ctx context.Context, stages []models.PipelineStage, onStageProgress StageProgressFunc) ([]models.StageResult, error)
}

type UploadStager interface {
	StageFiles(ctx context.Context, endpoint string, files []models.NamedFile, extraFields map[string]string) ([]models.UploadedFileInfo, error)
}

// Workflows turns a run request into the ordered stages that execute it.
type Workflows interface {
	Build(ctx context.Context, req *models.RunRequest) ([]models.PipelineStage, error)
}
