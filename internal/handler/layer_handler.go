package handler

import (
	"net/http"
	"time"

	"github.com/casadesoftware/GeoMun/internal/authz"
	"github.com/casadesoftware/GeoMun/internal/model"
	"github.com/casadesoftware/GeoMun/internal/plan"
	"github.com/casadesoftware/GeoMun/pkg/database"
	"github.com/casadesoftware/GeoMun/pkg/logger"
	"github.com/casadesoftware/GeoMun/prometheus"
	"github.com/labstack/echo/v4"
	"go.uber.org/zap"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// CreateLayer adds a layer to a map of the caller's tenant, subject to the
// tenant's layer quota
func CreateLayer(c echo.Context) error {
	log := logger.FromContext(c)

	claims, ok := currentClaims(c)
	if !ok {
		prometheus.RecordAuthError("missing_claims")
		return c.JSON(http.StatusUnauthorized, echo.Map{"error": "authentication required"})
	}

	// Layers are always created private; publishing goes through the update
	// path where the admin check lives
	var req struct {
		Name   string         `json:"name"`
		Style  datatypes.JSON `json:"style,omitempty"`
		Fields datatypes.JSON `json:"fields,omitempty"`
	}

	if err := c.Bind(&req); err != nil {
		log.Error("Failed to parse create layer request", zap.Error(err))
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid request"})
	}

	if req.Name == "" {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "name is required"})
	}

	// The owning map must belong to the caller's tenant
	defer prometheus.TrackDBOperation("query")(time.Now())
	var m model.Map
	result := database.GetDB().
		Scopes(authz.TenantScope(claims)).
		First(&m, "maps.id = ?", c.Param("mapId"))
	if result.Error != nil {
		log.Warn("Map not found", zap.String("map_id", c.Param("mapId")))
		return c.JSON(http.StatusNotFound, echo.Map{"error": "map not found"})
	}

	layer := model.Layer{
		MapID:     m.ID,
		Name:      req.Name,
		Style:     req.Style,
		Fields:    req.Fields,
		CreatedBy: claims.UserID(),
	}

	defer prometheus.TrackDBOperation("insert")(time.Now())
	err := database.GetDB().Transaction(func(tx *gorm.DB) error {
		if err := plan.Reserve(tx, claims, plan.ResourceLayers); err != nil {
			return err
		}
		return tx.Create(&layer).Error
	})
	if err != nil {
		if resp, handled := planErrorResponse(c, err, plan.ResourceLayers); handled {
			log.Warn("Layer creation rejected by plan guard", zap.Error(err))
			return resp
		}
		log.Error("Failed to create layer", zap.Error(err))
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "layer creation failed"})
	}

	recordAudit(c, "create", "layer", layer.ID, map[string]interface{}{"name": layer.Name, "map_id": m.ID})
	log.Info("Layer created", zap.String("id", layer.ID), zap.String("map_id", m.ID))

	return c.JSON(http.StatusCreated, layer)
}

// ListLayers returns the layers of a map in the caller's tenant
func ListLayers(c echo.Context) error {
	log := logger.FromContext(c)

	claims, ok := currentClaims(c)
	if !ok {
		prometheus.RecordAuthError("missing_claims")
		return c.JSON(http.StatusUnauthorized, echo.Map{"error": "authentication required"})
	}

	defer prometheus.TrackDBOperation("query")(time.Now())
	var layers []model.Layer
	result := database.GetDB().
		Scopes(authz.LayerScope(claims)).
		Where("layers.map_id = ?", c.Param("mapId")).
		Order("layers.created_at ASC").
		Find(&layers)
	if result.Error != nil {
		log.Error("Failed to list layers", zap.Error(result.Error))
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "failed to list layers"})
	}

	return c.JSON(http.StatusOK, layers)
}

// GetLayer returns a single layer with its features
func GetLayer(c echo.Context) error {
	log := logger.FromContext(c)

	claims, ok := currentClaims(c)
	if !ok {
		prometheus.RecordAuthError("missing_claims")
		return c.JSON(http.StatusUnauthorized, echo.Map{"error": "authentication required"})
	}

	defer prometheus.TrackDBOperation("query")(time.Now())
	var layer model.Layer
	result := database.GetDB().
		Scopes(authz.LayerScope(claims)).
		Preload("Features").
		First(&layer, "layers.id = ?", c.Param("id"))
	if result.Error != nil {
		log.Warn("Layer not found", zap.String("id", c.Param("id")))
		return c.JSON(http.StatusNotFound, echo.Map{"error": "layer not found"})
	}

	return c.JSON(http.StatusOK, layer)
}

// UpdateLayer updates layer attributes, style and field schema. Publishing or
// unpublishing (the is_public flag) is reserved to ADMIN and SUPERADMIN.
func UpdateLayer(c echo.Context) error {
	log := logger.FromContext(c)

	claims, ok := currentClaims(c)
	if !ok {
		prometheus.RecordAuthError("missing_claims")
		return c.JSON(http.StatusUnauthorized, echo.Map{"error": "authentication required"})
	}

	var req struct {
		Name     *string        `json:"name,omitempty"`
		IsPublic *bool          `json:"is_public,omitempty"`
		Style    datatypes.JSON `json:"style,omitempty"`
		Fields   datatypes.JSON `json:"fields,omitempty"`
	}

	if err := c.Bind(&req); err != nil {
		log.Error("Failed to parse update layer request", zap.Error(err))
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid request"})
	}

	if req.IsPublic != nil && claims.Role != model.RoleAdmin && claims.Role != model.RoleSuperAdmin {
		return c.JSON(http.StatusForbidden, echo.Map{"error": "only admins can change layer visibility"})
	}

	defer prometheus.TrackDBOperation("query")(time.Now())
	var layer model.Layer
	result := database.GetDB().
		Scopes(authz.LayerScope(claims)).
		First(&layer, "layers.id = ?", c.Param("id"))
	if result.Error != nil {
		log.Warn("Layer not found", zap.String("id", c.Param("id")))
		return c.JSON(http.StatusNotFound, echo.Map{"error": "layer not found"})
	}

	updates := map[string]interface{}{}
	if req.Name != nil {
		updates["name"] = *req.Name
	}
	if req.IsPublic != nil {
		updates["is_public"] = *req.IsPublic
	}
	if req.Style != nil {
		updates["style"] = req.Style
	}
	if req.Fields != nil {
		updates["fields"] = req.Fields
	}

	defer prometheus.TrackDBOperation("update")(time.Now())
	if err := database.GetDB().Model(&layer).Updates(updates).Error; err != nil {
		log.Error("Failed to update layer", zap.Error(err))
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "update failed"})
	}

	recordAudit(c, "update", "layer", layer.ID, nil)
	log.Info("Layer updated", zap.String("id", layer.ID))

	return c.JSON(http.StatusOK, layer)
}

// DeleteLayer soft-deletes a layer and its features
func DeleteLayer(c echo.Context) error {
	log := logger.FromContext(c)

	claims, ok := currentClaims(c)
	if !ok {
		prometheus.RecordAuthError("missing_claims")
		return c.JSON(http.StatusUnauthorized, echo.Map{"error": "authentication required"})
	}

	defer prometheus.TrackDBOperation("query")(time.Now())
	var layer model.Layer
	result := database.GetDB().
		Scopes(authz.LayerScope(claims)).
		First(&layer, "layers.id = ?", c.Param("id"))
	if result.Error != nil {
		log.Warn("Layer not found", zap.String("id", c.Param("id")))
		return c.JSON(http.StatusNotFound, echo.Map{"error": "layer not found"})
	}

	defer prometheus.TrackDBOperation("delete")(time.Now())
	err := database.GetDB().Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("layer_id = ?", layer.ID).Delete(&model.Feature{}).Error; err != nil {
			return err
		}
		return tx.Delete(&layer).Error
	})
	if err != nil {
		log.Error("Failed to delete layer", zap.Error(err))
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "delete failed"})
	}

	recordAudit(c, "delete", "layer", layer.ID, map[string]interface{}{"name": layer.Name})
	log.Info("Layer deleted", zap.String("id", layer.ID))

	return c.JSON(http.StatusOK, echo.Map{"message": "layer deleted"})
}

// CreateFeature adds a feature to a layer of the caller's tenant. Features
// are not quota-limited but the geometry type must be one of the supported
// GeoJSON kinds.
func CreateFeature(c echo.Context) error {
	log := logger.FromContext(c)

	claims, ok := currentClaims(c)
	if !ok {
		prometheus.RecordAuthError("missing_claims")
		return c.JSON(http.StatusUnauthorized, echo.Map{"error": "authentication required"})
	}

	var req struct {
		Name         string         `json:"name,omitempty"`
		GeometryType string         `json:"geometry_type"`
		Geometry     datatypes.JSON `json:"geometry"`
		Properties   datatypes.JSON `json:"properties,omitempty"`
	}

	if err := c.Bind(&req); err != nil {
		log.Error("Failed to parse create feature request", zap.Error(err))
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid request"})
	}

	if !model.ValidGeometryType(req.GeometryType) {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "geometry_type must be Point, LineString or Polygon"})
	}
	if len(req.Geometry) == 0 {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "geometry is required"})
	}

	defer prometheus.TrackDBOperation("query")(time.Now())
	var layer model.Layer
	result := database.GetDB().
		Scopes(authz.LayerScope(claims)).
		First(&layer, "layers.id = ?", c.Param("layerId"))
	if result.Error != nil {
		log.Warn("Layer not found", zap.String("layer_id", c.Param("layerId")))
		return c.JSON(http.StatusNotFound, echo.Map{"error": "layer not found"})
	}

	feature := model.Feature{
		LayerID:      layer.ID,
		Name:         req.Name,
		GeometryType: req.GeometryType,
		Geometry:     req.Geometry,
		Properties:   req.Properties,
	}

	defer prometheus.TrackDBOperation("insert")(time.Now())
	if err := database.GetDB().Create(&feature).Error; err != nil {
		log.Error("Failed to create feature", zap.Error(err))
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "feature creation failed"})
	}

	recordAudit(c, "create", "feature", feature.ID, map[string]interface{}{"layer_id": layer.ID})
	log.Info("Feature created", zap.String("id", feature.ID), zap.String("layer_id", layer.ID))

	return c.JSON(http.StatusCreated, feature)
}

// ListFeatures returns the features of a layer in the caller's tenant
func ListFeatures(c echo.Context) error {
	log := logger.FromContext(c)

	claims, ok := currentClaims(c)
	if !ok {
		prometheus.RecordAuthError("missing_claims")
		return c.JSON(http.StatusUnauthorized, echo.Map{"error": "authentication required"})
	}

	defer prometheus.TrackDBOperation("query")(time.Now())
	var features []model.Feature
	result := database.GetDB().
		Scopes(authz.FeatureScope(claims)).
		Where("features.layer_id = ?", c.Param("layerId")).
		Order("features.created_at ASC").
		Find(&features)
	if result.Error != nil {
		log.Error("Failed to list features", zap.Error(result.Error))
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "failed to list features"})
	}

	return c.JSON(http.StatusOK, features)
}

// UpdateFeature updates a feature's attributes and geometry
func UpdateFeature(c echo.Context) error {
	log := logger.FromContext(c)

	claims, ok := currentClaims(c)
	if !ok {
		prometheus.RecordAuthError("missing_claims")
		return c.JSON(http.StatusUnauthorized, echo.Map{"error": "authentication required"})
	}

	var req struct {
		Name         *string        `json:"name,omitempty"`
		GeometryType *string        `json:"geometry_type,omitempty"`
		Geometry     datatypes.JSON `json:"geometry,omitempty"`
		Properties   datatypes.JSON `json:"properties,omitempty"`
	}

	if err := c.Bind(&req); err != nil {
		log.Error("Failed to parse update feature request", zap.Error(err))
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid request"})
	}

	if req.GeometryType != nil && !model.ValidGeometryType(*req.GeometryType) {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "geometry_type must be Point, LineString or Polygon"})
	}

	defer prometheus.TrackDBOperation("query")(time.Now())
	var feature model.Feature
	result := database.GetDB().
		Scopes(authz.FeatureScope(claims)).
		First(&feature, "features.id = ?", c.Param("id"))
	if result.Error != nil {
		log.Warn("Feature not found", zap.String("id", c.Param("id")))
		return c.JSON(http.StatusNotFound, echo.Map{"error": "feature not found"})
	}

	updates := map[string]interface{}{}
	if req.Name != nil {
		updates["name"] = *req.Name
	}
	if req.GeometryType != nil {
		updates["geometry_type"] = *req.GeometryType
	}
	if req.Geometry != nil {
		updates["geometry"] = req.Geometry
	}
	if req.Properties != nil {
		updates["properties"] = req.Properties
	}

	defer prometheus.TrackDBOperation("update")(time.Now())
	if err := database.GetDB().Model(&feature).Updates(updates).Error; err != nil {
		log.Error("Failed to update feature", zap.Error(err))
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "update failed"})
	}

	recordAudit(c, "update", "feature", feature.ID, nil)

	return c.JSON(http.StatusOK, feature)
}

// DeleteFeature soft-deletes a feature
func DeleteFeature(c echo.Context) error {
	log := logger.FromContext(c)

	claims, ok := currentClaims(c)
	if !ok {
		prometheus.RecordAuthError("missing_claims")
		return c.JSON(http.StatusUnauthorized, echo.Map{"error": "authentication required"})
	}

	defer prometheus.TrackDBOperation("query")(time.Now())
	var feature model.Feature
	result := database.GetDB().
		Scopes(authz.FeatureScope(claims)).
		First(&feature, "features.id = ?", c.Param("id"))
	if result.Error != nil {
		log.Warn("Feature not found", zap.String("id", c.Param("id")))
		return c.JSON(http.StatusNotFound, echo.Map{"error": "feature not found"})
	}

	defer prometheus.TrackDBOperation("delete")(time.Now())
	if err := database.GetDB().Delete(&feature).Error; err != nil {
		log.Error("Failed to delete feature", zap.Error(err))
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "delete failed"})
	}

	recordAudit(c, "delete", "feature", feature.ID, map[string]interface{}{"layer_id": feature.LayerID})

	return c.JSON(http.StatusOK, echo.Map{"message": "feature deleted"})
}
