package runs

import (
	"context"
	"time"

	"github.com/amankumarsingh77/studio-orchestrator/internal/models"
	"github.com/google/uuid"
)

// RedisRepository holds the run queue and the live progress of running runs.
type RedisRepository interface {
	Enqueue(ctx context.Context, runID uuid.UUID) error
	// Dequeue blocks up to timeout and returns uuid.Nil when the queue stayed empty.
	Dequeue(ctx context.Context, timeout time.Duration) (uuid.UUID, error)
	SetProgress(ctx context.Context, runID uuid.UUID, progress models.RunProgress) error
	GetProgress(ctx context.Context, runID uuid.UUID) (*models.RunProgress, error)
}
