package middleware

import (
	"net/http"
	"strings"

	"github.com/casadesoftware/GeoMun/internal/authz"
	"github.com/casadesoftware/GeoMun/pkg/jwtutil"
	"github.com/casadesoftware/GeoMun/pkg/logger"
	"github.com/casadesoftware/GeoMun/prometheus"
	"github.com/labstack/echo/v4"
	"go.uber.org/zap"
)

// ClaimsKey is the context key under which the validated claims are stored
const ClaimsKey = "claims"

// AuthMiddleware validates the JWT token from the Authorization header
func AuthMiddleware(next echo.HandlerFunc) echo.HandlerFunc {
	return func(c echo.Context) error {
		log := logger.FromContext(c)

		// Get the Authorization header
		authHeader := c.Request().Header.Get("Authorization")
		if authHeader == "" {
			log.Error("Missing Authorization header")
			prometheus.RecordAuthError("missing_token")
			return c.JSON(http.StatusUnauthorized, echo.Map{"error": "missing authorization token"})
		}

		// Check if it's a Bearer token
		parts := strings.Split(authHeader, " ")
		if len(parts) != 2 || strings.ToLower(parts[0]) != "bearer" {
			log.Error("Invalid Authorization header format")
			prometheus.RecordAuthError("invalid_auth_format")
			return c.JSON(http.StatusUnauthorized, echo.Map{"error": "invalid authorization format, expected Bearer token"})
		}

		// Validate the token
		claims, err := jwtutil.ValidateToken(parts[1])
		if err != nil {
			log.Error("Invalid JWT token", zap.Error(err))
			prometheus.RecordAuthError("invalid_token")
			return c.JSON(http.StatusUnauthorized, echo.Map{"error": "invalid or expired token"})
		}

		// Store caller identity in context for later use
		c.Set(ClaimsKey, claims)
		c.Set("user_id", claims.UserID())
		c.Set("role", claims.Role)
		if claims.TenantID != nil {
			c.Set("tenant_id", *claims.TenantID)
		}

		return next(c)
	}
}

// Authorize returns a middleware enforcing the declarative permission table
// for the given action. It must run after AuthMiddleware.
func Authorize(action string) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			claims, ok := c.Get(ClaimsKey).(*jwtutil.UserClaims)
			if !ok {
				logger.FromContext(c).Error("Missing claims in context", zap.String("action", action))
				prometheus.RecordAuthError("missing_claims")
				return c.JSON(http.StatusUnauthorized, echo.Map{"error": "authentication required"})
			}

			if !authz.Allowed(action, claims.Role) {
				logger.FromContext(c).Warn("Role denied for action",
					zap.String("action", action),
					zap.String("role", claims.Role),
					zap.String("user_id", claims.UserID()))
				prometheus.RecordAuthError("role_denied")
				return c.JSON(http.StatusForbidden, echo.Map{"error": "insufficient permissions"})
			}

			return next(c)
		}
	}
}

// ClaimsFrom extracts the validated claims stored by AuthMiddleware
func ClaimsFrom(c echo.Context) (*jwtutil.UserClaims, bool) {
	claims, ok := c.Get(ClaimsKey).(*jwtutil.UserClaims)
	return claims, ok
}
