package http

import (
	"errors"
	"net/http"

	"github.com/amankumarsingh77/studio-orchestrator/internal/models"
	"github.com/amankumarsingh77/studio-orchestrator/internal/runs"
	"github.com/amankumarsingh77/studio-orchestrator/internal/studio"
	"github.com/amankumarsingh77/studio-orchestrator/pkg/logger"
	"github.com/amankumarsingh77/studio-orchestrator/pkg/utils"
	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
)

type runsHandler struct {
	runsUC runs.UseCase
	logger logger.Logger
}

func NewRunsHandler(runsUC runs.UseCase, logger logger.Logger) runs.Handler {
	return &runsHandler{runsUC: runsUC, logger: logger}
}

func (h *runsHandler) Create() echo.HandlerFunc {
	return func(c echo.Context) error {
		req := &models.RunRequest{}
		if err := c.Bind(req); err != nil {
			return c.JSON(http.StatusBadRequest, map[string]string{"error": "Invalid request payload"})
		}
		run, err := h.runsUC.Create(c.Request().Context(), req)
		if err != nil {
			return h.errorResponse(c, err)
		}
		return c.JSON(http.StatusAccepted, run)
	}
}

func (h *runsHandler) GetByID() echo.HandlerFunc {
	return func(c echo.Context) error {
		runID, err := uuid.Parse(c.Param("run_id"))
		if err != nil {
			return c.JSON(http.StatusBadRequest, map[string]string{"error": "Invalid run id"})
		}
		run, err := h.runsUC.GetByID(c.Request().Context(), runID)
		if err != nil {
			return h.errorResponse(c, err)
		}
		return c.JSON(http.StatusOK, run)
	}
}

func (h *runsHandler) List() echo.HandlerFunc {
	return func(c echo.Context) error {
		pagination, err := utils.GetPaginationFromCtx(c)
		if err != nil {
			return c.JSON(http.StatusBadRequest, map[string]string{"error": err.Error()})
		}
		list, err := h.runsUC.List(c.Request().Context(), pagination)
		if err != nil {
			return h.errorResponse(c, err)
		}
		return c.JSON(http.StatusOK, list)
	}
}

func (h *runsHandler) errorResponse(c echo.Context, err error) error {
	status := statusFor(err)
	if status >= http.StatusInternalServerError {
		h.logger.Errorf("RequestID: %s, Error: %v", utils.GetRequestID(c), err)
		return c.JSON(status, map[string]string{"error": "Internal server error"})
	}
	return c.JSON(status, map[string]string{"error": err.Error()})
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, studio.ErrValidation):
		return http.StatusBadRequest
	case errors.Is(err, runs.ErrRunNotFound):
		return http.StatusNotFound
	case errors.Is(err, runs.ErrForbidden):
		return http.StatusForbidden
	case errors.Is(err, utils.ErrNoCaller):
		return http.StatusUnauthorized
	default:
		return http.StatusInternalServerError
	}
}
