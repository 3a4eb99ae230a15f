package handler

import (
	"net/http"
	"strconv"
	"time"

	"github.com/casadesoftware/GeoMun/internal/authz"
	"github.com/casadesoftware/GeoMun/internal/model"
	"github.com/casadesoftware/GeoMun/pkg/database"
	"github.com/casadesoftware/GeoMun/pkg/logger"
	"github.com/casadesoftware/GeoMun/prometheus"
	"github.com/labstack/echo/v4"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// ListAuditLog returns the audit trail newest first, scoped to the caller's
// tenant. Supports paging plus entity and action filters.
func ListAuditLog(c echo.Context) error {
	log := logger.FromContext(c)

	claims, ok := currentClaims(c)
	if !ok {
		prometheus.RecordAuthError("missing_claims")
		return c.JSON(http.StatusUnauthorized, echo.Map{"error": "authentication required"})
	}

	page, _ := strconv.Atoi(c.QueryParam("page"))
	if page < 1 {
		page = 1
	}
	limit, _ := strconv.Atoi(c.QueryParam("limit"))
	if limit < 1 || limit > 100 {
		limit = 20
	}

	query := database.GetDB().
		Model(&model.AuditLog{}).
		Scopes(authz.TenantScope(claims))

	if entity := c.QueryParam("entity"); entity != "" {
		query = query.Where("entity = ?", entity)
	}
	if action := c.QueryParam("action"); action != "" {
		query = query.Where("action = ?", action)
	}

	defer prometheus.TrackDBOperation("query")(time.Now())
	var total int64
	if err := query.Session(&gorm.Session{}).Count(&total).Error; err != nil {
		log.Error("Failed to count audit entries", zap.Error(err))
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "failed to list audit log"})
	}

	var entries []model.AuditLog
	if err := query.Session(&gorm.Session{}).
		Preload("User").
		Order("created_at DESC").
		Offset((page - 1) * limit).
		Limit(limit).
		Find(&entries).Error; err != nil {
		log.Error("Failed to list audit entries", zap.Error(err))
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "failed to list audit log"})
	}

	return c.JSON(http.StatusOK, echo.Map{
		"entries": entries,
		"total":   total,
		"page":    page,
		"limit":   limit,
	})
}
