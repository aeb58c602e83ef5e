package runs

import (
	"context"
	"errors"

	"github.com/amankumarsingh77/studio-orchestrator/internal/models"
	"github.com/amankumarsingh77/studio-orchestrator/pkg/utils"
	"github.com/google/uuid"
)

var (
	ErrRunNotFound = errors.New("run not found")
	ErrForbidden   = errors.New("run belongs to another user")
)

type UseCase interface {
	Create(ctx context.Context, req *models.RunRequest) (*models.Run, error)
	GetByID(ctx context.Context, runID uuid.UUID) (*models.Run, error)
	List(ctx context.Context, pq *utils.Pagination) (*models.RunList, error)
	// UploadInputs copies local input files to the input bucket so a queued run can reach them.
	UploadInputs(ctx context.Context, req *models.RunRequest) error
	Execute(ctx context.Context, runID uuid.UUID) (*models.Run, error)
}
