package server

import (
	"errors"
	"net/http"
	"time"

	"github.com/amankumarsingh77/studio-orchestrator/internal/middleware"
	runsHttp "github.com/amankumarsingh77/studio-orchestrator/internal/runs/delivery/http"
	runsRepository "github.com/amankumarsingh77/studio-orchestrator/internal/runs/repository"
	runsUsecase "github.com/amankumarsingh77/studio-orchestrator/internal/runs/usecase"
	studioRepository "github.com/amankumarsingh77/studio-orchestrator/internal/studio/repository"
	"github.com/amankumarsingh77/studio-orchestrator/pkg/utils"
	"github.com/labstack/echo/v4"
	echoMiddleware "github.com/labstack/echo/v4/middleware"
)

func (s *Server) MapHandlers(e *echo.Echo) error {
	if s.cfg.Server.JwtSecretKey == "" {
		return errors.New("server.jwtSecretKey must be set")
	}
	runsRepo := runsRepository.NewRunsRepo(s.db)
	runsRedisRepo := runsRepository.NewRunsRedisRepo(
		s.redisClient,
		s.cfg.Redis.RunQueueKey,
		s.cfg.Redis.ProgressKeyPrefix,
		time.Duration(s.cfg.Redis.ProgressTTL)*time.Second,
	)
	runsAWSRepo := runsRepository.NewAwsRepository(s.s3Client, s.preSignClient)

	studioClient := studioRepository.NewStudioClient(s.cfg, s.logger)
	workflows, runner := NewStudioPipeline(studioClient, s.cfg.Studio, s.logger)
	runsUC := runsUsecase.NewRunsUseCase(s.cfg, runsRepo, runsRedisRepo, runsAWSRepo, studioClient, workflows, runner, s.logger)
	runsHandlers := runsHttp.NewRunsHandler(runsUC, s.logger)

	mw := middleware.NewMiddlewareManager(s.cfg, s.cfg.Server.CORSOrigins, s.logger)

	e.Use(echoMiddleware.RequestID())
	e.Use(mw.RequestLoggerMiddleware)
	e.Use(mw.CORS())
	e.Use(echoMiddleware.RecoverWithConfig(echoMiddleware.RecoverConfig{
		StackSize:         1 << 10,
		DisablePrintStack: true,
	}))
	e.Use(echoMiddleware.BodyLimit("2M"))

	v1 := e.Group("/api/v1")
	health := v1.Group("/health")
	runsGroup := v1.Group("/runs")

	runsHttp.MapRunsRoutes(runsGroup, runsHandlers, mw)
	health.GET("", func(c echo.Context) error {
		s.logger.Infof("Health check RequestID: %s", utils.GetRequestID(c))
		return c.JSON(http.StatusOK, map[string]string{"status": "OK"})
	})
	return nil
}
