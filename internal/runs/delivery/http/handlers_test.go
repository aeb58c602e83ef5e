package http

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/amankumarsingh77/studio-orchestrator/internal/models"
	"github.com/amankumarsingh77/studio-orchestrator/internal/runs"
	"github.com/amankumarsingh77/studio-orchestrator/internal/studio"
	"github.com/amankumarsingh77/studio-orchestrator/pkg/logger"
	"github.com/amankumarsingh77/studio-orchestrator/pkg/utils"
	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
)

type fakeUC struct {
	created *models.RunRequest
	runs    map[uuid.UUID]*models.Run
	listErr error
}

func (f *fakeUC) Create(ctx context.Context, req *models.RunRequest) (*models.Run, error) {
	if req.Workflow == "" {
		return nil, studio.Validationf("workflow is required")
	}
	f.created = req
	return &models.Run{RunID: uuid.New(), Workflow: req.Workflow, Status: models.RunStatusQueued}, nil
}

func (f *fakeUC) GetByID(ctx context.Context, runID uuid.UUID) (*models.Run, error) {
	run, ok := f.runs[runID]
	if !ok {
		return nil, runs.ErrRunNotFound
	}
	if run.UserID != uuid.Nil {
		return nil, runs.ErrForbidden
	}
	return run, nil
}

func (f *fakeUC) List(ctx context.Context, pq *utils.Pagination) (*models.RunList, error) {
	if f.listErr != nil {
		return nil, f.listErr
	}
	return &models.RunList{Runs: []*models.Run{}, Page: pq.GetPage(), PageSize: pq.GetSize()}, nil
}

func (f *fakeUC) UploadInputs(ctx context.Context, req *models.RunRequest) error { return nil }

func (f *fakeUC) Execute(ctx context.Context, runID uuid.UUID) (*models.Run, error) {
	return nil, errors.New("not used")
}

func serve(h echo.HandlerFunc, method, target, body string, params ...string) *httptest.ResponseRecorder {
	e := echo.New()
	req := httptest.NewRequest(method, target, strings.NewReader(body))
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)
	if len(params) == 2 {
		c.SetParamNames(params[0])
		c.SetParamValues(params[1])
	}
	_ = h(c)
	return rec
}

func TestCreateHandler(t *testing.T) {
	uc := &fakeUC{}
	h := NewRunsHandler(uc, logger.NewNopLogger())

	rec := serve(h.Create(), http.MethodPost, "/api/v1/runs", `{"workflow":"extract-edit","url":"https://youtu.be/x","semitones":0}`)
	if rec.Code != http.StatusAccepted {
		t.Fatalf("status = %d, body = %s", rec.Code, rec.Body)
	}
	var run models.Run
	if err := json.Unmarshal(rec.Body.Bytes(), &run); err != nil || run.Status != models.RunStatusQueued {
		t.Fatalf("body = %s", rec.Body)
	}
	if uc.created.Semitones == nil || *uc.created.Semitones != 0 {
		t.Fatalf("semitones not passed through: %v", uc.created.Semitones)
	}

	rec = serve(h.Create(), http.MethodPost, "/api/v1/runs", `{}`)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("validation status = %d", rec.Code)
	}
	rec = serve(h.Create(), http.MethodPost, "/api/v1/runs", `{not json`)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("bad json status = %d", rec.Code)
	}
}

func TestGetByIDHandler(t *testing.T) {
	mine, theirs := uuid.New(), uuid.New()
	uc := &fakeUC{runs: map[uuid.UUID]*models.Run{
		mine:   {RunID: mine, Status: models.RunStatusRunning},
		theirs: {RunID: theirs, UserID: uuid.New()},
	}}
	h := NewRunsHandler(uc, logger.NewNopLogger())

	cases := []struct {
		id     string
		status int
	}{
		{mine.String(), http.StatusOK},
		{theirs.String(), http.StatusForbidden},
		{uuid.NewString(), http.StatusNotFound},
		{"not-a-uuid", http.StatusBadRequest},
	}
	for _, tc := range cases {
		rec := serve(h.GetByID(), http.MethodGet, "/api/v1/runs/"+tc.id, "", "run_id", tc.id)
		if rec.Code != tc.status {
			t.Errorf("%s: status = %d, want %d", tc.id, rec.Code, tc.status)
		}
	}
}

func TestListHandler(t *testing.T) {
	uc := &fakeUC{}
	h := NewRunsHandler(uc, logger.NewNopLogger())

	rec := serve(h.List(), http.MethodGet, "/api/v1/runs?page=2&size=5", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	var list models.RunList
	if err := json.Unmarshal(rec.Body.Bytes(), &list); err != nil || list.Page != 2 || list.PageSize != 5 {
		t.Fatalf("body = %s", rec.Body)
	}

	if rec := serve(h.List(), http.MethodGet, "/api/v1/runs?size=abc", ""); rec.Code != http.StatusBadRequest {
		t.Fatalf("bad size status = %d", rec.Code)
	}

	uc.listErr = errors.New("db down")
	rec = serve(h.List(), http.MethodGet, "/api/v1/runs", "")
	if rec.Code != http.StatusInternalServerError || strings.Contains(rec.Body.String(), "db down") {
		t.Fatalf("status = %d body = %s", rec.Code, rec.Body)
	}

	uc.listErr = utils.ErrNoCaller
	if rec := serve(h.List(), http.MethodGet, "/api/v1/runs", ""); rec.Code != http.StatusUnauthorized {
		t.Fatalf("no caller status = %d", rec.Code)
	}
}
