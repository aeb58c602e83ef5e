package usecase

import (
	"context"
	"sync"
	"time"

	"github.com/amankumarsingh77/studio-orchestrator/internal/models"
	"github.com/amankumarsingh77/studio-orchestrator/internal/studio"
)

// fakeClient delegates to injected behavior and records calls.
type fakeClient struct {
	mu          sync.Mutex
	submit      func(ctx context.Context, kind models.JobKind, endpoint string, payload models.Payload) (*models.JobHandle, error)
	fetchStatus func(ctx context.Context, handle *models.JobHandle, statusEndpoint string) (*models.JobStatus, error)

	submits      []string
	statusChecks int
}

func (f *fakeClient) Submit(ctx context.Context, kind models.JobKind, endpoint string, payload models.Payload) (*models.JobHandle, error) {
	f.mu.Lock()
	f.submits = append(f.submits, endpoint)
	f.mu.Unlock()
	if f.submit == nil {
		return &models.JobHandle{ID: "job", Kind: kind}, nil
	}
	return f.submit(ctx, kind, endpoint, payload)
}

func (f *fakeClient) FetchStatus(ctx context.Context, handle *models.JobHandle, statusEndpoint string) (*models.JobStatus, error) {
	f.mu.Lock()
	f.statusChecks++
	f.mu.Unlock()
	if f.fetchStatus == nil {
		return running(0), nil
	}
	return f.fetchStatus(ctx, handle, statusEndpoint)
}

func (f *fakeClient) Download(ctx context.Context, filename string, mp3 *bool) (*studio.Download, error) {
	return nil, studio.NewError(studio.KindSubmission, "not supported by fake")
}

// fakeClock records waits instead of sleeping.
type fakeClock struct {
	waits []time.Duration
}

func (c *fakeClock) Sleep(ctx context.Context, d time.Duration) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	c.waits = append(c.waits, d)
	return nil
}

// fakePoller resolves handles through an injected function and counts calls.
type fakePoller struct {
	calls []string
	poll  func(handle *models.JobHandle) (*models.JobResult, error)
}

func (p *fakePoller) Poll(ctx context.Context, handle *models.JobHandle, statusEndpoint string, onProgress studio.ProgressFunc, opts studio.PollOptions) (*models.JobResult, error) {
	p.calls = append(p.calls, handle.ID)
	if onProgress != nil {
		onProgress(50, "halfway")
	}
	if p.poll == nil {
		return &models.JobResult{Filename: handle.ID + ".out"}, nil
	}
	return p.poll(handle)
}

func running(progress float64) *models.JobStatus {
	return &models.JobStatus{State: models.JobStateRunning, ProgressPercent: progress}
}

func completed(filename string) *models.JobStatus {
	return &models.JobStatus{State: models.JobStateCompleted, ProgressPercent: 100, Result: &models.JobResult{Filename: filename}}
}

func failed(msg string) *models.JobStatus {
	return &models.JobStatus{State: models.JobStateFailed, ErrorMessage: &msg}
}
