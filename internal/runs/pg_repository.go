package runs

import (
	"context"

	"github.com/amankumarsingh77/studio-orchestrator/internal/models"
	"github.com/amankumarsingh77/studio-orchestrator/pkg/utils"
	"github.com/google/uuid"
)

// Repository is the durable run history.
type Repository interface {
	Create(ctx context.Context, run *models.Run) (*models.Run, error)
	GetByID(ctx context.Context, runID uuid.UUID) (*models.Run, error)
	List(ctx context.Context, userID uuid.UUID, pq *utils.Pagination) (*models.RunList, error)
	Update(ctx context.Context, run *models.Run) error
}
