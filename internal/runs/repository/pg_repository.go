package repository

import (
	"context"
	"database/sql"
	"encoding/json"

	"github.com/amankumarsingh77/studio-orchestrator/internal/models"
	"github.com/amankumarsingh77/studio-orchestrator/internal/runs"
	"github.com/amankumarsingh77/studio-orchestrator/pkg/utils"
	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/pkg/errors"
)

type runsRepo struct {
	db *sqlx.DB
}

func NewRunsRepo(db *sqlx.DB) runs.Repository {
	return &runsRepo{db: db}
}

// runRow adds the JSONB columns that models.Run keeps as typed fields.
type runRow struct {
	models.Run
	RequestJSON   []byte `db:"request"`
	ResultsJSON   []byte `db:"results"`
	ArtifactsJSON []byte `db:"artifacts"`
}

func (r *runRow) decode() (*models.Run, error) {
	run := r.Run
	if err := json.Unmarshal(r.RequestJSON, &run.Request); err != nil {
		return nil, errors.Wrap(err, "decode request")
	}
	if len(r.ResultsJSON) > 0 {
		if err := json.Unmarshal(r.ResultsJSON, &run.Results); err != nil {
			return nil, errors.Wrap(err, "decode results")
		}
	}
	if len(r.ArtifactsJSON) > 0 {
		if err := json.Unmarshal(r.ArtifactsJSON, &run.Artifacts); err != nil {
			return nil, errors.Wrap(err, "decode artifacts")
		}
	}
	return &run, nil
}

func (r *runsRepo) Create(ctx context.Context, run *models.Run) (*models.Run, error) {
	request, err := json.Marshal(run.Request)
	if err != nil {
		return nil, errors.Wrap(err, "runsRepo.Create.Marshal")
	}
	row := &runRow{}
	if err := r.db.QueryRowxContext(
		ctx,
		createRunQuery,
		run.RunID,
		run.UserID,
		string(run.Workflow),
		string(run.Status),
		run.CurrentStage,
		run.Progress,
		run.Message,
		request,
	).StructScan(row); err != nil {
		return nil, errors.Wrap(err, "runsRepo.Create.StructScan")
	}
	return row.decode()
}

func (r *runsRepo) GetByID(ctx context.Context, runID uuid.UUID) (*models.Run, error) {
	row := &runRow{}
	if err := r.db.QueryRowxContext(ctx, getRunByIDQuery, runID).StructScan(row); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, runs.ErrRunNotFound
		}
		return nil, errors.Wrap(err, "runsRepo.GetByID.StructScan")
	}
	return row.decode()
}

func (r *runsRepo) List(ctx context.Context, userID uuid.UUID, pq *utils.Pagination) (*models.RunList, error) {
	var totalCount int
	if err := r.db.GetContext(ctx, &totalCount, getTotalRunsByUserIDQuery, userID); err != nil {
		return nil, errors.Wrap(err, "runsRepo.List.GetContext.totalCount")
	}
	if totalCount == 0 {
		return &models.RunList{
			Runs:     make([]*models.Run, 0),
			Page:     pq.GetPage(),
			PageSize: pq.GetSize(),
		}, nil
	}

	rows, err := r.db.QueryxContext(ctx, getRunsByUserIDQuery, userID, pq.GetOffset(), pq.GetLimit())
	if err != nil {
		return nil, errors.Wrap(err, "runsRepo.List.QueryxContext")
	}
	defer rows.Close()

	list := make([]*models.Run, 0, pq.GetSize())
	for rows.Next() {
		row := &runRow{}
		if err = rows.StructScan(row); err != nil {
			return nil, errors.Wrap(err, "runsRepo.List.StructScan")
		}
		run, err := row.decode()
		if err != nil {
			return nil, errors.Wrapf(err, "runsRepo.List run %s", row.RunID)
		}
		list = append(list, run)
	}
	if err = rows.Err(); err != nil {
		return nil, errors.Wrap(err, "runsRepo.List.rows.Err")
	}

	return &models.RunList{
		Runs:       list,
		TotalCount: totalCount,
		TotalPages: utils.GetTotalPages(totalCount, pq.GetSize()),
		Page:       pq.GetPage(),
		PageSize:   pq.GetSize(),
		HasMore:    utils.GetHasMore(pq.GetPage(), totalCount, pq.GetSize()),
	}, nil
}

func (r *runsRepo) Update(ctx context.Context, run *models.Run) error {
	results, err := json.Marshal(nonNilResults(run.Results))
	if err != nil {
		return errors.Wrap(err, "runsRepo.Update.Marshal.results")
	}
	artifacts, err := json.Marshal(nonNilArtifacts(run.Artifacts))
	if err != nil {
		return errors.Wrap(err, "runsRepo.Update.Marshal.artifacts")
	}
	res, err := r.db.ExecContext(
		ctx,
		updateRunQuery,
		run.RunID,
		string(run.Status),
		run.CurrentStage,
		run.Progress,
		run.Message,
		results,
		artifacts,
		run.ErrorMessage,
		run.CompletedAt,
	)
	if err != nil {
		return errors.Wrap(err, "runsRepo.Update.ExecContext")
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return runs.ErrRunNotFound
	}
	return nil
}

func nonNilResults(v []models.StageResult) []models.StageResult {
	if v == nil {
		return []models.StageResult{}
	}
	return v
}

func nonNilArtifacts(v []models.Artifact) []models.Artifact {
	if v == nil {
		return []models.Artifact{}
	}
	return v
}
