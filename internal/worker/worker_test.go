package worker

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/amankumarsingh77/studio-orchestrator/internal/config"
	"github.com/amankumarsingh77/studio-orchestrator/internal/models"
	"github.com/amankumarsingh77/studio-orchestrator/pkg/logger"
	"github.com/amankumarsingh77/studio-orchestrator/pkg/utils"
	"github.com/google/uuid"
)

type fakeQueue struct {
	mu       sync.Mutex
	ids      []uuid.UUID
	dequeues int
}

func (q *fakeQueue) Enqueue(ctx context.Context, runID uuid.UUID) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.ids = append(q.ids, runID)
	return nil
}

func (q *fakeQueue) Dequeue(ctx context.Context, timeout time.Duration) (uuid.UUID, error) {
	q.mu.Lock()
	q.dequeues++
	if len(q.ids) > 0 {
		id := q.ids[0]
		q.ids = q.ids[1:]
		q.mu.Unlock()
		return id, nil
	}
	q.mu.Unlock()
	select {
	case <-ctx.Done():
		return uuid.Nil, ctx.Err()
	case <-time.After(time.Millisecond):
		return uuid.Nil, nil
	}
}

func (q *fakeQueue) SetProgress(ctx context.Context, runID uuid.UUID, progress models.RunProgress) error {
	return nil
}

func (q *fakeQueue) GetProgress(ctx context.Context, runID uuid.UUID) (*models.RunProgress, error) {
	return nil, nil
}

type fakeRunsUC struct {
	mu       sync.Mutex
	executed []uuid.UUID
	failing  uuid.UUID
	done     chan struct{}
	want     int
}

func (f *fakeRunsUC) Create(ctx context.Context, req *models.RunRequest) (*models.Run, error) {
	return nil, errors.New("not used")
}

func (f *fakeRunsUC) GetByID(ctx context.Context, runID uuid.UUID) (*models.Run, error) {
	return nil, errors.New("not used")
}

func (f *fakeRunsUC) List(ctx context.Context, pq *utils.Pagination) (*models.RunList, error) {
	return nil, errors.New("not used")
}

func (f *fakeRunsUC) UploadInputs(ctx context.Context, req *models.RunRequest) error {
	return errors.New("not used")
}

func (f *fakeRunsUC) Execute(ctx context.Context, runID uuid.UUID) (*models.Run, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.executed = append(f.executed, runID)
	if len(f.executed) == f.want {
		close(f.done)
	}
	if runID == f.failing {
		return nil, errors.New("studio unreachable")
	}
	return &models.Run{RunID: runID, Status: models.RunStatusCompleted}, nil
}

func testConfig(workers int) *config.Config {
	return &config.Config{Worker: config.WorkerConfig{WorkerCount: workers, DequeueTimeout: 1, CPUBackoff: 60}}
}

// TestWorkerDrainsQueueAndSurvivesFailures checks a failed run does not stop the pool.
func TestWorkerDrainsQueueAndSurvivesFailures(t *testing.T) {
	ids := []uuid.UUID{uuid.New(), uuid.New(), uuid.New(), uuid.New()}
	queue := &fakeQueue{ids: append([]uuid.UUID(nil), ids...)}
	uc := &fakeRunsUC{failing: ids[1], done: make(chan struct{}), want: len(ids)}

	w := NewWorker(testConfig(2), logger.NewNopLogger(), queue, uc)
	w.cpuCheck = func() (bool, float64) { return true, 1 }

	ctx, cancel := context.WithCancel(context.Background())
	w.Start(ctx)
	select {
	case <-uc.done:
	case <-time.After(5 * time.Second):
		t.Fatal("runs were not executed")
	}
	cancel()
	w.Wait()

	seen := make(map[uuid.UUID]int)
	for _, id := range uc.executed {
		seen[id]++
	}
	for _, id := range ids {
		if seen[id] != 1 {
			t.Fatalf("run %s executed %d times", id, seen[id])
		}
	}
}

func TestWorkerHoldsOffWhileCPUBusy(t *testing.T) {
	queue := &fakeQueue{ids: []uuid.UUID{uuid.New()}}
	uc := &fakeRunsUC{done: make(chan struct{}), want: 1}

	w := NewWorker(testConfig(1), logger.NewNopLogger(), queue, uc)
	checked := make(chan struct{}, 1)
	w.cpuCheck = func() (bool, float64) {
		select {
		case checked <- struct{}{}:
		default:
		}
		return false, 99
	}

	ctx, cancel := context.WithCancel(context.Background())
	w.Start(ctx)
	select {
	case <-checked:
	case <-time.After(5 * time.Second):
		t.Fatal("cpu was never checked")
	}
	cancel()
	w.Wait()

	if queue.dequeues != 0 || len(uc.executed) != 0 {
		t.Fatalf("dequeues = %d, executed = %d; want none while busy", queue.dequeues, len(uc.executed))
	}
}
