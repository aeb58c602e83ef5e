package middleware

import (
	"fmt"
	"net/http"
	"strings"

	"github.com/amankumarsingh77/studio-orchestrator/pkg/utils"
	"github.com/labstack/echo/v4"
)

const tokenCookieName = "jwt-token"

// AuthJWTMiddleware accepts a bearer token or the jwt-token cookie and stores the
// verified caller on the request context.
func (mw *MiddlewareManager) AuthJWTMiddleware() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			tokenString, err := tokenFromRequest(c)
			if err != nil {
				mw.logger.Warnf("AuthJWTMiddleware RequestID: %s, Error: %v", utils.GetRequestID(c), err)
				return c.JSON(http.StatusUnauthorized, map[string]string{"error": "Unauthorized"})
			}

			claims, err := utils.ValidateToken(tokenString, mw.cfg.Server.JwtSecretKey)
			if err != nil {
				mw.logger.Warnf("AuthJWTMiddleware RequestID: %s, ValidateToken: %v", utils.GetRequestID(c), err)
				return c.JSON(http.StatusUnauthorized, map[string]string{"error": "Unauthorized"})
			}
			caller, err := claims.Caller()
			if err != nil {
				mw.logger.Warnf("AuthJWTMiddleware RequestID: %s, claims: %v", utils.GetRequestID(c), err)
				return c.JSON(http.StatusUnauthorized, map[string]string{"error": "Unauthorized"})
			}

			c.Set("caller", caller)
			c.SetRequest(c.Request().WithContext(utils.WithCaller(c.Request().Context(), caller)))
			return next(c)
		}
	}
}

func tokenFromRequest(c echo.Context) (string, error) {
	if header := c.Request().Header.Get(echo.HeaderAuthorization); header != "" {
		parts := strings.Fields(header)
		if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
			return "", fmt.Errorf("malformed authorization header")
		}
		return parts[1], nil
	}
	cookie, err := c.Cookie(tokenCookieName)
	if err != nil || cookie.Value == "" {
		return "", fmt.Errorf("no token in header or cookie")
	}
	return cookie.Value, nil
}
