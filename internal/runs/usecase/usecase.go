package usecase

import (
	"context"
	"fmt"
	"io"
	"mime"
	"os"
	"path"
	"path/filepath"
	"strings"
	"time"

	"github.com/amankumarsingh77/studio-orchestrator/internal/config"
	"github.com/amankumarsingh77/studio-orchestrator/internal/models"
	"github.com/amankumarsingh77/studio-orchestrator/internal/runs"
	"github.com/amankumarsingh77/studio-orchestrator/internal/studio"
	"github.com/amankumarsingh77/studio-orchestrator/pkg/logger"
	"github.com/amankumarsingh77/studio-orchestrator/pkg/utils"
	"github.com/google/uuid"
)

const finalSaveTimeout = 10 * time.Second

type runsUC struct {
	cfg       *config.Config
	repo      runs.Repository
	redisRepo runs.RedisRepository
	awsRepo   runs.AWSRepository
	client    studio.Client
	workflows studio.Workflows
	runner    studio.PipelineRunner
	logger    logger.Logger
}

func NewRunsUseCase(
	cfg *config.Config,
	repo runs.Repository,
	redisRepo runs.RedisRepository,
	awsRepo runs.AWSRepository,
	client studio.Client,
	workflows studio.Workflows,
	runner studio.PipelineRunner,
	log logger.Logger,
) runs.UseCase {
	return &runsUC{
		cfg:       cfg,
		repo:      repo,
		redisRepo: redisRepo,
		awsRepo:   awsRepo,
		client:    client,
		workflows: workflows,
		runner:    runner,
		logger:    log,
	}
}

func (u *runsUC) Create(ctx context.Context, req *models.RunRequest) (*models.Run, error) {
	caller, err := utils.GetCallerFromCtx(ctx)
	if err != nil {
		return nil, err
	}
	if err := u.validate(ctx, req); err != nil {
		u.logger.Warnf("RunsUC.Create - invalid request from %s: %v", caller.UserID, err)
		return nil, err
	}

	now := time.Now().UTC()
	run := &models.Run{
		RunID:     uuid.New(),
		UserID:    caller.UserID,
		Workflow:  req.Workflow,
		Status:    models.RunStatusQueued,
		Message:   "queued",
		Request:   *req,
		CreatedAt: now,
		UpdatedAt: now,
	}
	created, err := u.repo.Create(ctx, run)
	if err != nil {
		u.logger.Errorf("RunsUC.Create - repo.Create: %v", err)
		return nil, fmt.Errorf("create run: %w", err)
	}
	if err := u.redisRepo.SetProgress(ctx, created.RunID, created.Snapshot()); err != nil {
		u.logger.Warnf("RunsUC.Create - SetProgress %s: %v", created.RunID, err)
	}
	if err := u.redisRepo.Enqueue(ctx, created.RunID); err != nil {
		u.logger.Errorf("RunsUC.Create - Enqueue %s: %v", created.RunID, err)
		u.finish(ctx, created, models.RunStatusFailed, "could not queue run")
		return nil, fmt.Errorf("enqueue run %s: %w", created.RunID, err)
	}

	u.logger.Infof("RunsUC.Create - queued %s run %s for %s", created.Workflow, created.RunID, caller.UserID)
	return created, nil
}

// validate checks the request shape without touching any input. Local paths are
// refused because the worker cannot read the caller's filesystem.
func (u *runsUC) validate(ctx context.Context, req *models.RunRequest) error {
	if req == nil {
		return studio.Validationf("empty run request")
	}
	if err := utils.ValidateStruct(ctx, req); err != nil {
		return &studio.Error{Kind: studio.KindValidation, Message: "invalid run request", Err: err}
	}

	probe := *req
	probe.Files = make([]models.InputFile, len(req.Files))
	copy(probe.Files, req.Files)
	for i := range probe.Files {
		if err := placeholderPath(&probe.Files[i]); err != nil {
			return err
		}
	}
	if req.Image != nil {
		img := *req.Image
		if err := placeholderPath(&img); err != nil {
			return err
		}
		probe.Image = &img
	}
	_, err := u.workflows.Build(ctx, &probe)
	return err
}

func placeholderPath(f *models.InputFile) error {
	if f.Path != "" {
		return studio.Validationf("input %q is a local path; upload it to storage first", f.Path)
	}
	if f.S3Key != "" {
		f.Path = "s3://" + f.S3Key
	}
	return nil
}

func (u *runsUC) GetByID(ctx context.Context, runID uuid.UUID) (*models.Run, error) {
	caller, err := utils.GetCallerFromCtx(ctx)
	if err != nil {
		return nil, err
	}
	run, err := u.repo.GetByID(ctx, runID)
	if err != nil {
		return nil, fmt.Errorf("get run %s: %w", runID, err)
	}
	if !caller.CanAccess(run) {
		return nil, runs.ErrForbidden
	}

	if !run.Status.Finished() {
		live, err := u.redisRepo.GetProgress(ctx, runID)
		if err != nil {
			u.logger.Warnf("RunsUC.GetByID - GetProgress %s: %v", runID, err)
		} else if live != nil {
			run.Apply(*live)
		}
	}
	u.presign(ctx, run)
	return run, nil
}

func (u *runsUC) presign(ctx context.Context, run *models.Run) {
	ttl := time.Duration(u.cfg.S3.PresignMinutes) * time.Minute
	if ttl <= 0 {
		ttl = time.Hour
	}
	for i := range run.Artifacts {
		a := &run.Artifacts[i]
		if a.S3Key == "" {
			continue
		}
		url, err := u.awsRepo.PresignGetObject(ctx, u.cfg.S3.OutputBucket, a.S3Key, ttl)
		if err != nil {
			u.logger.Warnf("RunsUC.presign - %s: %v", a.S3Key, err)
			continue
		}
		a.DownloadURL = url
	}
}

func (u *runsUC) List(ctx context.Context, pq *utils.Pagination) (*models.RunList, error) {
	caller, err := utils.GetCallerFromCtx(ctx)
	if err != nil {
		return nil, err
	}
	list, err := u.repo.List(ctx, caller.UserID, pq)
	if err != nil {
		return nil, fmt.Errorf("list runs: %w", err)
	}
	return list, nil
}

func (u *runsUC) UploadInputs(ctx context.Context, req *models.RunRequest) error {
	caller, err := utils.GetCallerFromCtx(ctx)
	if err != nil {
		return err
	}
	prefix := fmt.Sprintf("inputs/%s/%s", caller.UserID, uuid.NewString())
	for i := range req.Files {
		if err := u.uploadInput(ctx, prefix, &req.Files[i]); err != nil {
			return err
		}
	}
	if req.Image != nil {
		return u.uploadInput(ctx, prefix, req.Image)
	}
	return nil
}

func (u *runsUC) uploadInput(ctx context.Context, prefix string, f *models.InputFile) error {
	if f.Path == "" {
		return nil
	}
	fh, err := os.Open(f.Path)
	if err != nil {
		return studio.Validationf("cannot open %s: %v", f.Path, err)
	}
	defer fh.Close()
	info, err := fh.Stat()
	if err != nil {
		return fmt.Errorf("stat %s: %w", f.Path, err)
	}

	name := f.Name
	if name == "" {
		name = filepath.Base(f.Path)
	}
	contentType := f.ContentType
	if contentType == "" {
		contentType = mime.TypeByExtension(strings.ToLower(filepath.Ext(name)))
	}
	key := prefix + "/" + name
	if err := u.awsRepo.PutObject(ctx, u.cfg.S3.InputBucket, key, contentType, fh, info.Size()); err != nil {
		return fmt.Errorf("upload %s: %w", f.Path, err)
	}
	u.logger.Debugf("RunsUC.UploadInputs - %s -> %s", f.Path, key)

	f.Name = name
	f.ContentType = contentType
	f.S3Key = key
	f.Path = ""
	return nil
}

func (u *runsUC) Execute(ctx context.Context, runID uuid.UUID) (*models.Run, error) {
	run, err := u.repo.GetByID(ctx, runID)
	if err != nil {
		return nil, fmt.Errorf("load run %s: %w", runID, err)
	}
	if run.Status.Finished() {
		u.logger.Warnf("RunsUC.Execute - run %s already %s, skipping", runID, run.Status)
		return run, nil
	}

	run.Status = models.RunStatusRunning
	run.Message = "starting"
	run.UpdatedAt = time.Now().UTC()
	if err := u.repo.Update(ctx, run); err != nil {
		return nil, fmt.Errorf("mark run %s running: %w", runID, err)
	}
	u.publish(ctx, run)

	if err := os.MkdirAll(u.cfg.Worker.TempDir, 0o755); err != nil {
		return u.fail(ctx, run, fmt.Errorf("create temp dir: %w", err))
	}
	workDir, err := os.MkdirTemp(u.cfg.Worker.TempDir, "run-"+runID.String()+"-")
	if err != nil {
		return u.fail(ctx, run, fmt.Errorf("create work dir: %w", err))
	}
	defer os.RemoveAll(workDir)

	req := run.Request
	req.Files = make([]models.InputFile, len(run.Request.Files))
	copy(req.Files, run.Request.Files)
	if run.Request.Image != nil {
		img := *run.Request.Image
		req.Image = &img
	}
	if err := u.fetchInputs(ctx, &req, workDir); err != nil {
		return u.fail(ctx, run, err)
	}

	stages, err := u.workflows.Build(ctx, &req)
	if err != nil {
		return u.fail(ctx, run, err)
	}

	results, err := u.runner.Run(ctx, stages, func(p models.StageProgress) {
		run.CurrentStage = p.Name
		run.Progress = p.Overall()
		run.Message = p.Message
		if run.Message == "" {
			run.Message = fmt.Sprintf("%s %s", p.Name, p.Phase)
		}
		run.UpdatedAt = time.Now().UTC()
		u.publish(ctx, run)
	})
	run.Results = results
	if err != nil {
		return u.fail(ctx, run, err)
	}

	if req.Archive {
		artifacts, err := u.archive(ctx, run.RunID, results, workDir)
		run.Artifacts = artifacts
		if err != nil {
			return u.fail(ctx, run, err)
		}
	}

	run.Progress = 100
	u.finish(ctx, run, models.RunStatusCompleted, "completed")
	u.logger.Infof("RunsUC.Execute - run %s completed with %d stage results", runID, len(results))
	return run, nil
}

// fetchInputs downloads storage-backed inputs into workDir and points them at the local copy.
func (u *runsUC) fetchInputs(ctx context.Context, req *models.RunRequest, workDir string) error {
	for i := range req.Files {
		if err := u.fetchInput(ctx, &req.Files[i], filepath.Join(workDir, fmt.Sprintf("%02d", i))); err != nil {
			return err
		}
	}
	if req.Image != nil {
		return u.fetchInput(ctx, req.Image, filepath.Join(workDir, "image"))
	}
	return nil
}

func (u *runsUC) fetchInput(ctx context.Context, f *models.InputFile, dir string) error {
	if f.S3Key == "" {
		return nil
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create input dir: %w", err)
	}
	if f.Name == "" {
		f.Name = path.Base(f.S3Key)
	}
	local := filepath.Join(dir, filepath.Base(f.Name))
	fh, err := os.Create(local)
	if err != nil {
		return fmt.Errorf("create %s: %w", local, err)
	}
	defer fh.Close()

	n, err := u.awsRepo.GetObject(ctx, u.cfg.S3.InputBucket, f.S3Key, fh)
	if err != nil {
		return fmt.Errorf("fetch input %s: %w", f.S3Key, err)
	}
	u.logger.Debugf("RunsUC.fetchInput - %s (%d bytes) -> %s", f.S3Key, n, local)
	f.Path = local
	return nil
}

// archive copies every produced file from the studio server into the output bucket.
func (u *runsUC) archive(ctx context.Context, runID uuid.UUID, results []models.StageResult, workDir string) ([]models.Artifact, error) {
	var artifacts []models.Artifact
	for _, r := range results {
		if r.Kind == models.JobKindUpload || r.Result == nil || r.Result.Filename == "" {
			continue
		}
		a, err := u.archiveOne(ctx, runID, r, workDir)
		if err != nil {
			return artifacts, err
		}
		artifacts = append(artifacts, *a)
	}
	return artifacts, nil
}

func (u *runsUC) archiveOne(ctx context.Context, runID uuid.UUID, r models.StageResult, workDir string) (*models.Artifact, error) {
	filename := r.Result.Filename
	dl, err := u.client.Download(ctx, filename, nil)
	if err != nil {
		return nil, fmt.Errorf("download %s: %w", filename, err)
	}
	defer dl.Body.Close()

	// S3 needs a seekable body, so the download is spooled to disk first.
	spool, err := os.CreateTemp(workDir, "artifact-*")
	if err != nil {
		return nil, fmt.Errorf("spool %s: %w", filename, err)
	}
	defer spool.Close()
	size, err := io.Copy(spool, dl.Body)
	if err != nil {
		return nil, fmt.Errorf("download %s: %w", filename, err)
	}
	if _, err := spool.Seek(0, io.SeekStart); err != nil {
		return nil, fmt.Errorf("rewind %s: %w", filename, err)
	}

	key := fmt.Sprintf("runs/%s/%02d_%s", runID, r.Index, path.Base(filename))
	if err := u.awsRepo.PutObject(ctx, u.cfg.S3.OutputBucket, key, dl.ContentType, spool, size); err != nil {
		return nil, fmt.Errorf("archive %s: %w", filename, err)
	}
	return &models.Artifact{Stage: r.Name, Filename: filename, S3Key: key, SizeBytes: size}, nil
}

func (u *runsUC) fail(ctx context.Context, run *models.Run, err error) (*models.Run, error) {
	run.ErrorMessage = err.Error()
	u.finish(ctx, run, models.RunStatusFailed, "failed")
	u.logger.Errorf("RunsUC.Execute - run %s failed: %v", run.RunID, err)
	return run, err
}

// finish records a terminal state. It survives cancellation of ctx so an aborted run is
// still written down as failed.
func (u *runsUC) finish(ctx context.Context, run *models.Run, status models.RunStatus, msg string) {
	saveCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), finalSaveTimeout)
	defer cancel()

	now := time.Now().UTC()
	run.Status = status
	run.Message = msg
	run.UpdatedAt = now
	run.CompletedAt = &now
	if err := u.repo.Update(saveCtx, run); err != nil {
		u.logger.Errorf("RunsUC.finish - Update %s: %v", run.RunID, err)
	}
	u.publish(saveCtx, run)
}

func (u *runsUC) publish(ctx context.Context, run *models.Run) {
	if err := u.redisRepo.SetProgress(ctx, run.RunID, run.Snapshot()); err != nil {
		u.logger.Warnf("RunsUC.publish - SetProgress %s: %v", run.RunID, err)
	}
}
