package utils

import (
	"context"
	"errors"

	"github.com/amankumarsingh77/studio-orchestrator/internal/models"
	"github.com/labstack/echo/v4"
)

type CallerCtxKey struct{}

var ErrNoCaller = errors.New("caller not found in context")

func WithCaller(ctx context.Context, caller *models.Caller) context.Context {
	return context.WithValue(ctx, CallerCtxKey{}, caller)
}

func GetCallerFromCtx(ctx context.Context) (*models.Caller, error) {
	caller, ok := ctx.Value(CallerCtxKey{}).(*models.Caller)
	if !ok || caller == nil {
		return nil, ErrNoCaller
	}
	return caller, nil
}

func GetRequestID(c echo.Context) string {
	return c.Response().Header().Get(echo.HeaderXRequestID)
}

func GetIPAddress(c echo.Context) string {
	return c.RealIP()
}
