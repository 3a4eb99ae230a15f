package handler

import (
	"errors"
	"net/http"

	"github.com/casadesoftware/GeoMun/internal/middleware"
	"github.com/casadesoftware/GeoMun/internal/plan"
	"github.com/casadesoftware/GeoMun/pkg/jwtutil"
	"github.com/casadesoftware/GeoMun/prometheus"
	"github.com/labstack/echo/v4"
)

// currentClaims extracts the authenticated caller set by the auth middleware
func currentClaims(c echo.Context) (*jwtutil.UserClaims, bool) {
	return middleware.ClaimsFrom(c)
}

// planErrorResponse maps a plan-guard rejection to the right HTTP response,
// or returns false when the error is not a plan rejection
func planErrorResponse(c echo.Context, err error, resource plan.Resource) (error, bool) {
	var limitErr *plan.LimitError
	if errors.As(err, &limitErr) {
		prometheus.RecordPlanLimitRejection(string(resource))
		return c.JSON(http.StatusForbidden, echo.Map{"error": limitErr.Error()}), true
	}
	if errors.Is(err, plan.ErrNoTenant) || errors.Is(err, plan.ErrTenantNotFound) {
		return c.JSON(http.StatusForbidden, echo.Map{"error": err.Error()}), true
	}
	return nil, false
}
