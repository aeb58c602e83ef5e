package repository

import (
	"context"
	"strconv"
	"time"

	"github.com/amankumarsingh77/studio-orchestrator/internal/models"
	"github.com/amankumarsingh77/studio-orchestrator/internal/runs"
	"github.com/go-redis/redis/v8"
	"github.com/google/uuid"
	"github.com/pkg/errors"
)

type runsRedisRepo struct {
	redisClient    *redis.Client
	queueKey       string
	progressPrefix string
	progressTTL    time.Duration
}

func NewRunsRedisRepo(redisClient *redis.Client, queueKey, progressPrefix string, progressTTL time.Duration) runs.RedisRepository {
	return &runsRedisRepo{
		redisClient:    redisClient,
		queueKey:       queueKey,
		progressPrefix: progressPrefix,
		progressTTL:    progressTTL,
	}
}

func (r *runsRedisRepo) Enqueue(ctx context.Context, runID uuid.UUID) error {
	if err := r.redisClient.LPush(ctx, r.queueKey, runID.String()).Err(); err != nil {
		return errors.Wrap(err, "runsRedisRepo.Enqueue.LPush")
	}
	return nil
}

func (r *runsRedisRepo) Dequeue(ctx context.Context, timeout time.Duration) (uuid.UUID, error) {
	res, err := r.redisClient.BRPop(ctx, timeout, r.queueKey).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return uuid.Nil, nil
		}
		return uuid.Nil, errors.Wrap(err, "runsRedisRepo.Dequeue.BRPop")
	}
	runID, err := uuid.Parse(res[1])
	if err != nil {
		return uuid.Nil, errors.Wrapf(err, "runsRedisRepo.Dequeue bad run id %q", res[1])
	}
	return runID, nil
}

func (r *runsRedisRepo) SetProgress(ctx context.Context, runID uuid.UUID, p models.RunProgress) error {
	key := r.progressPrefix + runID.String()
	pipe := r.redisClient.TxPipeline()
	pipe.HSet(ctx, key, map[string]interface{}{
		"status":        string(p.Status),
		"current_stage": p.CurrentStage,
		"progress":      strconv.FormatFloat(p.Progress, 'f', 2, 64),
		"message":       p.Message,
		"error_message": p.ErrorMessage,
		"updated_at":    p.UpdatedAt.UTC().Format(time.RFC3339Nano),
	})
	if r.progressTTL > 0 {
		pipe.Expire(ctx, key, r.progressTTL)
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return errors.Wrap(err, "runsRedisRepo.SetProgress.Exec")
	}
	return nil
}

func (r *runsRedisRepo) GetProgress(ctx context.Context, runID uuid.UUID) (*models.RunProgress, error) {
	fields, err := r.redisClient.HGetAll(ctx, r.progressPrefix+runID.String()).Result()
	if err != nil {
		return nil, errors.Wrap(err, "runsRedisRepo.GetProgress.HGetAll")
	}
	if len(fields) == 0 {
		return nil, nil
	}
	progress, _ := strconv.ParseFloat(fields["progress"], 64)
	updatedAt, _ := time.Parse(time.RFC3339Nano, fields["updated_at"])
	return &models.RunProgress{
		Status:       models.RunStatus(fields["status"]),
		CurrentStage: fields["current_stage"],
		Progress:     progress,
		Message:      fields["message"],
		ErrorMessage: fields["error_message"],
		UpdatedAt:    updatedAt,
	}, nil
}
