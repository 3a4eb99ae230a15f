package handler

import (
	"net/http"
	"time"

	"github.com/casadesoftware/GeoMun/internal/billing"
	"github.com/casadesoftware/GeoMun/internal/model"
	"github.com/casadesoftware/GeoMun/pkg/database"
	"github.com/casadesoftware/GeoMun/pkg/logger"
	"github.com/casadesoftware/GeoMun/pkg/slugify"
	"github.com/casadesoftware/GeoMun/prometheus"
	"github.com/labstack/echo/v4"
	"go.uber.org/zap"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// Tenant management is platform administration; every route here sits behind
// an authorization rule that only SUPERADMIN satisfies.

// CreateTenant provisions a tenant directly, already active and verified.
// Used for tenants onboarded by the platform operator rather than through
// self-service registration.
func CreateTenant(c echo.Context) error {
	log := logger.FromContext(c)

	var req struct {
		Name string `json:"name"`
		Slug string `json:"slug,omitempty"`
		Plan string `json:"plan,omitempty"`
	}

	if err := c.Bind(&req); err != nil {
		log.Error("Failed to parse create tenant request", zap.Error(err))
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid request"})
	}

	if req.Name == "" {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "name is required"})
	}

	plan := req.Plan
	if plan == "" {
		plan = model.PlanFree
	}
	limits, ok := billing.PlanLimits[plan]
	if !ok {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "plan must be FREE, BASIC or PRO"})
	}

	slug := req.Slug
	if slug == "" {
		slug = slugify.Make(req.Name)
	}
	if slug == "" {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "name must contain letters or digits"})
	}

	defer prometheus.TrackDBOperation("query")(time.Now())
	var existing model.Tenant
	if result := database.GetDB().Where("slug = ?", slug).First(&existing); result.Error == nil {
		log.Warn("Tenant slug already exists", zap.String("slug", slug))
		return c.JSON(http.StatusConflict, echo.Map{"error": "tenant already exists"})
	}

	tenant := model.Tenant{
		Name:          req.Name,
		Slug:          slug,
		Plan:          plan,
		MaxUsers:      limits.MaxUsers,
		MaxMaps:       limits.MaxMaps,
		MaxLayers:     limits.MaxLayers,
		Active:        true,
		EmailVerified: true,
	}

	defer prometheus.TrackDBOperation("insert")(time.Now())
	if err := database.GetDB().Create(&tenant).Error; err != nil {
		log.Error("Failed to create tenant", zap.Error(err))
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "tenant creation failed"})
	}

	prometheus.ActiveTenantsGauge.Inc()
	recordAudit(c, "create", "tenant", tenant.ID, map[string]interface{}{"name": tenant.Name, "plan": tenant.Plan})
	log.Info("Tenant created", zap.String("id", tenant.ID), zap.String("slug", tenant.Slug))

	return c.JSON(http.StatusCreated, tenant)
}

// ListTenants returns all tenants with their user and map counts
func ListTenants(c echo.Context) error {
	log := logger.FromContext(c)

	defer prometheus.TrackDBOperation("query")(time.Now())
	var tenants []model.Tenant
	if err := database.GetDB().Order("created_at DESC").Find(&tenants).Error; err != nil {
		log.Error("Failed to list tenants", zap.Error(err))
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "failed to list tenants"})
	}

	out := make([]map[string]interface{}, 0, len(tenants))
	for _, t := range tenants {
		var userCount, mapCount int64
		database.GetDB().Model(&model.User{}).Where("tenant_id = ?", t.ID).Count(&userCount)
		database.GetDB().Model(&model.Map{}).Where("tenant_id = ?", t.ID).Count(&mapCount)
		out = append(out, map[string]interface{}{
			"tenant":     t,
			"user_count": userCount,
			"map_count":  mapCount,
		})
	}

	return c.JSON(http.StatusOK, out)
}

// GetTenant returns a single tenant with its usage counts
func GetTenant(c echo.Context) error {
	log := logger.FromContext(c)

	defer prometheus.TrackDBOperation("query")(time.Now())
	var tenant model.Tenant
	if result := database.GetDB().First(&tenant, "id = ?", c.Param("id")); result.Error != nil {
		log.Warn("Tenant not found", zap.String("id", c.Param("id")))
		return c.JSON(http.StatusNotFound, echo.Map{"error": "tenant not found"})
	}

	var userCount, mapCount, layerCount int64
	database.GetDB().Model(&model.User{}).Where("tenant_id = ?", tenant.ID).Count(&userCount)
	database.GetDB().Model(&model.Map{}).Where("tenant_id = ?", tenant.ID).Count(&mapCount)
	database.GetDB().Model(&model.Layer{}).
		Joins("JOIN maps ON maps.id = layers.map_id").
		Where("maps.tenant_id = ?", tenant.ID).
		Count(&layerCount)

	return c.JSON(http.StatusOK, echo.Map{
		"tenant":      tenant,
		"user_count":  userCount,
		"map_count":   mapCount,
		"layer_count": layerCount,
	})
}

// UpdateTenant updates tenant attributes. A plan change here reapplies the
// plan's limits, the same path the billing webhook takes.
func UpdateTenant(c echo.Context) error {
	log := logger.FromContext(c)

	var req struct {
		Name   *string        `json:"name,omitempty"`
		Plan   *string        `json:"plan,omitempty"`
		Active *bool          `json:"active,omitempty"`
		Config datatypes.JSON `json:"config,omitempty"`
	}

	if err := c.Bind(&req); err != nil {
		log.Error("Failed to parse update tenant request", zap.Error(err))
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid request"})
	}

	defer prometheus.TrackDBOperation("query")(time.Now())
	var tenant model.Tenant
	if result := database.GetDB().First(&tenant, "id = ?", c.Param("id")); result.Error != nil {
		log.Warn("Tenant not found", zap.String("id", c.Param("id")))
		return c.JSON(http.StatusNotFound, echo.Map{"error": "tenant not found"})
	}

	if req.Plan != nil {
		if _, ok := billing.PlanLimits[*req.Plan]; !ok {
			return c.JSON(http.StatusBadRequest, echo.Map{"error": "plan must be FREE, BASIC or PRO"})
		}
	}

	defer prometheus.TrackDBOperation("update")(time.Now())
	err := database.GetDB().Transaction(func(tx *gorm.DB) error {
		updates := map[string]interface{}{}
		if req.Name != nil {
			updates["name"] = *req.Name
		}
		if req.Active != nil {
			updates["active"] = *req.Active
		}
		if req.Config != nil {
			updates["config"] = req.Config
		}
		if len(updates) > 0 {
			if err := tx.Model(&tenant).Updates(updates).Error; err != nil {
				return err
			}
		}
		if req.Plan != nil {
			return billing.ApplyPlan(tx, tenant.ID, *req.Plan, tenant.StripeSubscriptionID)
		}
		return nil
	})
	if err != nil {
		log.Error("Failed to update tenant", zap.Error(err))
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "update failed"})
	}

	// Reload so the response carries the applied plan limits
	if err := database.GetDB().First(&tenant, "id = ?", tenant.ID).Error; err != nil {
		log.Error("Failed to reload tenant", zap.Error(err))
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "update failed"})
	}

	recordAudit(c, "update", "tenant", tenant.ID, nil)
	log.Info("Tenant updated", zap.String("id", tenant.ID))

	return c.JSON(http.StatusOK, tenant)
}

// DeleteTenant deactivates a tenant and all of its users. Rows are kept so
// the tenant can be reactivated and its history stays intact.
func DeleteTenant(c echo.Context) error {
	log := logger.FromContext(c)

	defer prometheus.TrackDBOperation("query")(time.Now())
	var tenant model.Tenant
	if result := database.GetDB().First(&tenant, "id = ?", c.Param("id")); result.Error != nil {
		log.Warn("Tenant not found", zap.String("id", c.Param("id")))
		return c.JSON(http.StatusNotFound, echo.Map{"error": "tenant not found"})
	}

	defer prometheus.TrackDBOperation("update")(time.Now())
	err := database.GetDB().Transaction(func(tx *gorm.DB) error {
		if err := tx.Model(&tenant).Update("active", false).Error; err != nil {
			return err
		}
		return tx.Model(&model.User{}).
			Where("tenant_id = ?", tenant.ID).
			Update("active", false).Error
	})
	if err != nil {
		log.Error("Failed to deactivate tenant", zap.Error(err))
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "delete failed"})
	}

	prometheus.ActiveTenantsGauge.Dec()
	recordAudit(c, "delete", "tenant", tenant.ID, map[string]interface{}{"slug": tenant.Slug})
	log.Info("Tenant deactivated", zap.String("id", tenant.ID))

	return c.JSON(http.StatusOK, echo.Map{"message": "tenant deactivated"})
}
