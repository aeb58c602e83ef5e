package middleware

import (
	"net/http"
	"time"

	"github.com/amankumarsingh77/studio-orchestrator/internal/config"
	"github.com/amankumarsingh77/studio-orchestrator/pkg/logger"
	"github.com/amankumarsingh77/studio-orchestrator/pkg/utils"
	"github.com/labstack/echo/v4"
	echoMiddleware "github.com/labstack/echo/v4/middleware"
)

type MiddlewareManager struct {
	cfg     *config.Config
	origins []string
	logger  logger.Logger
}

// Middleware manager constructor
func NewMiddlewareManager(cfg *config.Config, origins []string, logger logger.Logger) *MiddlewareManager {
	return &MiddlewareManager{cfg: cfg, origins: origins, logger: logger}
}

// RequestLoggerMiddleware logs one line per request once the handler has returned.
func (mw *MiddlewareManager) RequestLoggerMiddleware(next echo.HandlerFunc) echo.HandlerFunc {
	return func(c echo.Context) error {
		start := time.Now()
		err := next(c)

		req := c.Request()
		res := c.Response()
		mw.logger.Infof("RequestID: %s, Method: %s, URI: %s, Status: %v, Time: %s, IP: %s",
			utils.GetRequestID(c),
			req.Method,
			req.URL.String(),
			res.Status,
			time.Since(start),
			utils.GetIPAddress(c),
		)
		return err
	}
}

func (mw *MiddlewareManager) CORS() echo.MiddlewareFunc {
	return echoMiddleware.CORSWithConfig(echoMiddleware.CORSConfig{
		AllowOrigins:     mw.origins,
		AllowMethods:     []string{http.MethodGet, http.MethodPost, http.MethodOptions},
		AllowHeaders:     []string{echo.HeaderContentType, echo.HeaderAuthorization},
		AllowCredentials: true,
		MaxAge:           300,
	})
}
