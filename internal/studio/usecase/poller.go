package usecase

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/amankumarsingh77/studio-orchestrator/internal/models"
	"github.com/amankumarsingh77/studio-orchestrator/internal/studio"
	"github.com/amankumarsingh77/studio-orchestrator/pkg/logger"
)

// SleepFunc waits for d or until ctx is done.
type SleepFunc func(ctx context.Context, d time.Duration) error

func sleepContext(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

type jobPoller struct {
	client studio.Client
	logger logger.Logger
	sleep  SleepFunc
}

func NewJobPoller(client studio.Client, logger logger.Logger) studio.Poller {
	return NewJobPollerWithSleep(client, logger, sleepContext)
}

func NewJobPollerWithSleep(client studio.Client, logger logger.Logger, sleep SleepFunc) studio.Poller {
	return &jobPoller{client: client, logger: logger, sleep: sleep}
}

func (p *jobPoller) Poll(ctx context.Context, handle *models.JobHandle, statusEndpoint string, onProgress studio.ProgressFunc, opts studio.PollOptions) (*models.JobResult, error) {
	if handle == nil {
		return nil, studio.Validationf("poll: nil job handle")
	}
	if handle.Completed() {
		return handle.Inline, nil
	}
	if handle.ID == "" {
		return nil, &studio.Error{Kind: studio.KindProtocol, JobKind: handle.Kind, Message: "job handle has no id"}
	}
	if statusEndpoint == "" {
		return nil, &studio.Error{Kind: studio.KindValidation, JobKind: handle.Kind, JobID: handle.ID, Message: "no status endpoint for job kind"}
	}
	if opts.MaxAttempts <= 0 {
		opts.MaxAttempts = studio.DefaultMaxAttempts
	}
	if opts.Interval <= 0 {
		opts.Interval = studio.DefaultPollInterval
	}

	var lastErr error
	for attempt := 1; attempt <= opts.MaxAttempts; attempt++ {
		if err := ctx.Err(); err != nil {
			return nil, p.aborted(handle, err)
		}

		status, err := p.client.FetchStatus(ctx, handle, statusEndpoint)
		switch {
		case err == nil:
			if done, res, terr := p.settle(handle, status); done {
				return res, terr
			}
			if onProgress != nil {
				onProgress(models.ClampProgress(status.ProgressPercent), status.Message)
			}
		case studio.KindOf(err) == studio.KindAborted || ctx.Err() != nil:
			return nil, p.aborted(handle, err)
		case studio.IsTransient(err):
			lastErr = err
			p.logger.Warnf("JobPoller.Poll - %s job %s attempt %d/%d: %v", handle.Kind, handle.ID, attempt, opts.MaxAttempts, err)
		default:
			return nil, err
		}

		if attempt == opts.MaxAttempts {
			break
		}
		if err := p.sleep(ctx, opts.Interval); err != nil {
			return nil, p.aborted(handle, err)
		}
	}

	return nil, &studio.Error{
		Kind:     studio.KindTimedOut,
		JobKind:  handle.Kind,
		JobID:    handle.ID,
		Endpoint: statusEndpoint,
		Message:  fmt.Sprintf("still processing after %d status checks", opts.MaxAttempts),
		Err:      lastErr,
	}
}

// settle reports whether status is terminal and, if so, what Poll returns.
func (p *jobPoller) settle(handle *models.JobHandle, status *models.JobStatus) (bool, *models.JobResult, error) {
	if status == nil {
		return true, nil, &studio.Error{Kind: studio.KindProtocol, JobKind: handle.Kind, JobID: handle.ID, Message: "empty status"}
	}
	if !status.State.Terminal() {
		return false, nil, nil
	}
	if !status.CheckTerminal() {
		return true, nil, &studio.Error{
			Kind:    studio.KindProtocol,
			JobKind: handle.Kind,
			JobID:   handle.ID,
			Message: fmt.Sprintf("terminal state %q without its payload", status.State),
		}
	}
	if status.State == models.JobStateFailed {
		return true, nil, &studio.Error{Kind: studio.KindJobFailed, JobKind: handle.Kind, JobID: handle.ID, Message: *status.ErrorMessage}
	}
	return true, status.Result, nil
}

func (p *jobPoller) aborted(handle *models.JobHandle, cause error) error {
	var e *studio.Error
	if errors.As(cause, &e) && e.Kind == studio.KindAborted {
		return e
	}
	return &studio.Error{Kind: studio.KindAborted, JobKind: handle.Kind, JobID: handle.ID, Message: "polling stopped", Err: cause}
}
