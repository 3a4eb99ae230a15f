package audit

import (
	"encoding/json"

	"github.com/casadesoftware/GeoMun/internal/model"
	"go.uber.org/zap"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// Record appends an audit entry for a mutating action. Failures are logged
// and never fail the request that triggered them.
func Record(db *gorm.DB, userID string, tenantID *string, action, entity, entityID string, details map[string]interface{}) {
	entry := model.AuditLog{
		UserID:   userID,
		TenantID: tenantID,
		Action:   action,
		Entity:   entity,
		EntityID: entityID,
	}

	if details != nil {
		raw, err := json.Marshal(details)
		if err == nil {
			entry.Details = datatypes.JSON(raw)
		}
	}

	if err := db.Create(&entry).Error; err != nil {
		zap.L().Error("Failed to write audit log entry",
			zap.String("action", action),
			zap.String("entity", entity),
			zap.Error(err))
	}
}
