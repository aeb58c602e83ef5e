package worker

import (
	"context"
	"sync"
	"time"

	"github.com/amankumarsingh77/studio-orchestrator/internal/config"
	"github.com/amankumarsingh77/studio-orchestrator/internal/runs"
	"github.com/amankumarsingh77/studio-orchestrator/pkg/logger"
	"github.com/amankumarsingh77/studio-orchestrator/pkg/utils"
	"github.com/google/uuid"
)

// Worker drains the run queue with a fixed number of goroutines.
// A goroutine only takes a run while CPU usage is under the configured ceiling.
type Worker struct {
	cfg       *config.Config
	logger    logger.Logger
	redisRepo runs.RedisRepository
	runsUC    runs.UseCase
	cpuCheck  func() (bool, float64)
	wg        sync.WaitGroup
}

func NewWorker(cfg *config.Config, logger logger.Logger, redisRepo runs.RedisRepository, runsUC runs.UseCase) *Worker {
	return &Worker{
		cfg:       cfg,
		logger:    logger,
		redisRepo: redisRepo,
		runsUC:    runsUC,
		cpuCheck: func() (bool, float64) {
			return utils.CheckCPUUsage(cfg.Worker.MaxCPUUsage)
		},
	}
}

// Start launches the goroutines. They exit once ctx is cancelled; Wait blocks until they have.
func (w *Worker) Start(ctx context.Context) {
	count := w.cfg.Worker.WorkerCount
	if count <= 0 {
		count = 1
	}
	w.logger.Infof("Starting %d workers", count)
	for i := 0; i < count; i++ {
		w.wg.Add(1)
		go w.loop(ctx, i)
	}
}

func (w *Worker) Wait() {
	w.wg.Wait()
}

func (w *Worker) loop(ctx context.Context, id int) {
	defer w.wg.Done()
	for ctx.Err() == nil {
		if ok, usage := w.cpuCheck(); !ok {
			w.logger.Infof("worker %d: CPU usage %.2f%% too high, backing off", id, usage)
			if !sleepCtx(ctx, w.backoff()) {
				return
			}
			continue
		}
		w.processNext(ctx, id)
	}
}

// processNext takes at most one run off the queue and executes it.
func (w *Worker) processNext(ctx context.Context, id int) {
	runID, err := w.redisRepo.Dequeue(ctx, w.dequeueTimeout())
	if err != nil {
		if ctx.Err() != nil {
			return
		}
		w.logger.Errorf("worker %d: dequeue: %v", id, err)
		sleepCtx(ctx, w.backoff())
		return
	}
	if runID == uuid.Nil {
		return
	}

	w.logger.Infof("worker %d: executing run %s", id, runID)
	run, err := w.runsUC.Execute(ctx, runID)
	if err != nil {
		w.logger.Errorf("worker %d: run %s failed: %v", id, runID, err)
		return
	}
	w.logger.Infof("worker %d: run %s finished with status %s", id, runID, run.Status)
}

func (w *Worker) dequeueTimeout() time.Duration {
	if w.cfg.Worker.DequeueTimeout <= 0 {
		return 5 * time.Second
	}
	return time.Duration(w.cfg.Worker.DequeueTimeout) * time.Second
}

func (w *Worker) backoff() time.Duration {
	if w.cfg.Worker.CPUBackoff <= 0 {
		return 10 * time.Second
	}
	return time.Duration(w.cfg.Worker.CPUBackoff) * time.Second
}

func sleepCtx(ctx context.Context, d time.Duration) bool {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}
