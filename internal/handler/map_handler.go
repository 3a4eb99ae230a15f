package handler

import (
	"net/http"
	"time"

	"github.com/casadesoftware/GeoMun/internal/authz"
	"github.com/casadesoftware/GeoMun/internal/model"
	"github.com/casadesoftware/GeoMun/internal/plan"
	"github.com/casadesoftware/GeoMun/pkg/database"
	"github.com/casadesoftware/GeoMun/pkg/logger"
	"github.com/casadesoftware/GeoMun/pkg/slugify"
	"github.com/casadesoftware/GeoMun/prometheus"
	"github.com/labstack/echo/v4"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// CreateMap creates a map inside the caller's tenant. The slug is derived
// from the name with a uniqueness suffix; the plan guard runs in the insert
// transaction.
func CreateMap(c echo.Context) error {
	log := logger.FromContext(c)

	claims, ok := currentClaims(c)
	if !ok {
		prometheus.RecordAuthError("missing_claims")
		return c.JSON(http.StatusUnauthorized, echo.Map{"error": "authentication required"})
	}
	if claims.TenantID == nil {
		return c.JSON(http.StatusForbidden, echo.Map{"error": "no tenant assigned"})
	}

	// Parse request
	var req struct {
		Name        string `json:"name"`
		Description string `json:"description,omitempty"`
		Theme       string `json:"theme,omitempty"`
	}

	if err := c.Bind(&req); err != nil {
		log.Error("Failed to parse create map request", zap.Error(err))
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid request"})
	}

	if req.Name == "" {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "name is required"})
	}

	m := model.Map{
		TenantID:    *claims.TenantID,
		Name:        req.Name,
		Slug:        slugify.MakeUnique(req.Name),
		Description: req.Description,
		Theme:       req.Theme,
		IsPublic:    false,
		CreatedBy:   claims.UserID(),
	}

	defer prometheus.TrackDBOperation("insert")(time.Now())
	err := database.GetDB().Transaction(func(tx *gorm.DB) error {
		if err := plan.Reserve(tx, claims, plan.ResourceMaps); err != nil {
			return err
		}
		return tx.Create(&m).Error
	})
	if err != nil {
		if resp, handled := planErrorResponse(c, err, plan.ResourceMaps); handled {
			log.Warn("Map creation rejected by plan guard", zap.Error(err))
			return resp
		}
		log.Error("Failed to create map", zap.Error(err))
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "map creation failed"})
	}

	recordAudit(c, "create", "map", m.ID, map[string]interface{}{"name": m.Name, "slug": m.Slug})
	log.Info("Map created", zap.String("id", m.ID), zap.String("slug", m.Slug))

	return c.JSON(http.StatusCreated, m)
}

// ListMaps returns the maps of the caller's tenant
func ListMaps(c echo.Context) error {
	log := logger.FromContext(c)

	claims, ok := currentClaims(c)
	if !ok {
		prometheus.RecordAuthError("missing_claims")
		return c.JSON(http.StatusUnauthorized, echo.Map{"error": "authentication required"})
	}

	defer prometheus.TrackDBOperation("query")(time.Now())
	var maps []model.Map
	result := database.GetDB().
		Scopes(authz.TenantScope(claims)).
		Order("created_at DESC").
		Find(&maps)
	if result.Error != nil {
		log.Error("Failed to list maps", zap.Error(result.Error))
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "failed to list maps"})
	}

	return c.JSON(http.StatusOK, maps)
}

// GetMap returns a single map with its layers
func GetMap(c echo.Context) error {
	log := logger.FromContext(c)

	claims, ok := currentClaims(c)
	if !ok {
		prometheus.RecordAuthError("missing_claims")
		return c.JSON(http.StatusUnauthorized, echo.Map{"error": "authentication required"})
	}

	defer prometheus.TrackDBOperation("query")(time.Now())
	var m model.Map
	result := database.GetDB().
		Scopes(authz.TenantScope(claims)).
		Preload("Layers").
		First(&m, "maps.id = ?", c.Param("id"))
	if result.Error != nil {
		log.Warn("Map not found", zap.String("id", c.Param("id")))
		return c.JSON(http.StatusNotFound, echo.Map{"error": "map not found"})
	}

	return c.JSON(http.StatusOK, m)
}

// UpdateMap updates map attributes. Publishing or unpublishing (the is_public
// flag) is reserved to ADMIN and SUPERADMIN; the slug never changes after
// creation.
func UpdateMap(c echo.Context) error {
	log := logger.FromContext(c)

	claims, ok := currentClaims(c)
	if !ok {
		prometheus.RecordAuthError("missing_claims")
		return c.JSON(http.StatusUnauthorized, echo.Map{"error": "authentication required"})
	}

	var req struct {
		Name        *string `json:"name,omitempty"`
		Description *string `json:"description,omitempty"`
		Theme       *string `json:"theme,omitempty"`
		IsPublic    *bool   `json:"is_public,omitempty"`
	}

	if err := c.Bind(&req); err != nil {
		log.Error("Failed to parse update map request", zap.Error(err))
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid request"})
	}

	if req.IsPublic != nil && claims.Role != model.RoleAdmin && claims.Role != model.RoleSuperAdmin {
		return c.JSON(http.StatusForbidden, echo.Map{"error": "only admins can change map visibility"})
	}

	defer prometheus.TrackDBOperation("query")(time.Now())
	var m model.Map
	result := database.GetDB().
		Scopes(authz.TenantScope(claims)).
		First(&m, "maps.id = ?", c.Param("id"))
	if result.Error != nil {
		log.Warn("Map not found", zap.String("id", c.Param("id")))
		return c.JSON(http.StatusNotFound, echo.Map{"error": "map not found"})
	}

	updates := map[string]interface{}{}
	if req.Name != nil {
		updates["name"] = *req.Name
	}
	if req.Description != nil {
		updates["description"] = *req.Description
	}
	if req.Theme != nil {
		updates["theme"] = *req.Theme
	}
	if req.IsPublic != nil {
		updates["is_public"] = *req.IsPublic
	}

	defer prometheus.TrackDBOperation("update")(time.Now())
	if err := database.GetDB().Model(&m).Updates(updates).Error; err != nil {
		log.Error("Failed to update map", zap.Error(err))
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "update failed"})
	}

	recordAudit(c, "update", "map", m.ID, updates)
	log.Info("Map updated", zap.String("id", m.ID))

	return c.JSON(http.StatusOK, m)
}

// DeleteMap soft-deletes a map and everything underneath it
func DeleteMap(c echo.Context) error {
	log := logger.FromContext(c)

	claims, ok := currentClaims(c)
	if !ok {
		prometheus.RecordAuthError("missing_claims")
		return c.JSON(http.StatusUnauthorized, echo.Map{"error": "authentication required"})
	}

	defer prometheus.TrackDBOperation("query")(time.Now())
	var m model.Map
	result := database.GetDB().
		Scopes(authz.TenantScope(claims)).
		First(&m, "maps.id = ?", c.Param("id"))
	if result.Error != nil {
		log.Warn("Map not found", zap.String("id", c.Param("id")))
		return c.JSON(http.StatusNotFound, echo.Map{"error": "map not found"})
	}

	// Soft-delete features and layers along with the map so listings stay
	// consistent even before the DB cascade runs
	defer prometheus.TrackDBOperation("delete")(time.Now())
	err := database.GetDB().Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("layer_id IN (?)",
			tx.Session(&gorm.Session{NewDB: true}).Model(&model.Layer{}).Select("id").Where("map_id = ?", m.ID),
		).Delete(&model.Feature{}).Error; err != nil {
			return err
		}
		if err := tx.Where("map_id = ?", m.ID).Delete(&model.Layer{}).Error; err != nil {
			return err
		}
		return tx.Delete(&m).Error
	})
	if err != nil {
		log.Error("Failed to delete map", zap.Error(err))
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "delete failed"})
	}

	recordAudit(c, "delete", "map", m.ID, map[string]interface{}{"name": m.Name})
	log.Info("Map deleted", zap.String("id", m.ID))

	return c.JSON(http.StatusOK, echo.Map{"message": "map deleted"})
}

// ListPublicMaps returns published maps without authentication. Only catalog
// fields are exposed; layers and features come through GetPublicMapBySlug.
func ListPublicMaps(c echo.Context) error {
	log := logger.FromContext(c)

	defer prometheus.TrackDBOperation("query")(time.Now())
	query := database.GetDB().
		Model(&model.Map{}).
		Where("is_public = ?", true).
		Order("theme ASC, created_at DESC")

	if theme := c.QueryParam("theme"); theme != "" {
		query = query.Where("LOWER(theme) = LOWER(?)", theme)
	}

	var maps []model.Map
	if err := query.Find(&maps).Error; err != nil {
		log.Error("Failed to list public maps", zap.Error(err))
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "failed to list maps"})
	}

	return c.JSON(http.StatusOK, publicCatalog(maps))
}

// ListPublicMapsByTheme returns the published maps of one theme, matched
// case-insensitively
func ListPublicMapsByTheme(c echo.Context) error {
	log := logger.FromContext(c)

	defer prometheus.TrackDBOperation("query")(time.Now())
	var maps []model.Map
	result := database.GetDB().
		Where("is_public = ? AND LOWER(theme) = LOWER(?)", true, c.Param("theme")).
		Order("created_at DESC").
		Find(&maps)
	if result.Error != nil {
		log.Error("Failed to list public maps by theme", zap.Error(result.Error))
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "failed to list maps"})
	}

	return c.JSON(http.StatusOK, publicCatalog(maps))
}

// publicCatalog shapes maps into catalog entries with their public layer count
func publicCatalog(maps []model.Map) []map[string]interface{} {
	out := make([]map[string]interface{}, 0, len(maps))
	for _, m := range maps {
		var layerCount int64
		database.GetDB().Model(&model.Layer{}).
			Where("map_id = ? AND is_public = ?", m.ID, true).
			Count(&layerCount)
		out = append(out, map[string]interface{}{
			"name":        m.Name,
			"slug":        m.Slug,
			"description": m.Description,
			"theme":       m.Theme,
			"layer_count": layerCount,
		})
	}
	return out
}

// GetPublicMapBySlug serves a published map with its public layers and their
// features. Private maps and private layers are invisible here.
func GetPublicMapBySlug(c echo.Context) error {
	log := logger.FromContext(c)

	defer prometheus.TrackDBOperation("query")(time.Now())
	var m model.Map
	result := database.GetDB().
		Where("slug = ? AND is_public = ?", c.Param("slug"), true).
		Preload("Layers", "is_public = ?", true).
		Preload("Layers.Features").
		First(&m)
	if result.Error != nil {
		log.Warn("Public map not found", zap.String("slug", c.Param("slug")))
		return c.JSON(http.StatusNotFound, echo.Map{"error": "map not found"})
	}

	return c.JSON(http.StatusOK, m)
}
