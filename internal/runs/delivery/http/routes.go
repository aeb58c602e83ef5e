package http

import (
	"github.com/amankumarsingh77/studio-orchestrator/internal/middleware"
	"github.com/amankumarsingh77/studio-orchestrator/internal/runs"
	"github.com/labstack/echo/v4"
)

func MapRunsRoutes(runsGroup *echo.Group, h runs.Handler, mw *middleware.MiddlewareManager) {
	runsGroup.Use(mw.AuthJWTMiddleware())
	runsGroup.POST("", h.Create())
	runsGroup.GET("", h.List())
	runsGroup.GET("/:run_id", h.GetByID())
}
