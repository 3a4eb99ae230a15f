package authz

import (
	"github.com/casadesoftware/GeoMun/internal/model"
	"github.com/casadesoftware/GeoMun/pkg/jwtutil"
	"gorm.io/gorm"
)

// TenantScope injects the caller's tenant filter into queries against tables
// carrying a tenant_id column. SUPERADMIN sees all rows; everyone else only
// their own tenant's. A non-SUPERADMIN caller without a tenant matches nothing.
func TenantScope(claims *jwtutil.UserClaims) func(*gorm.DB) *gorm.DB {
	return func(db *gorm.DB) *gorm.DB {
		if claims.Role == model.RoleSuperAdmin {
			return db
		}
		if claims.TenantID == nil {
			return db.Where("1 = 0")
		}
		return db.Where("tenant_id = ?", *claims.TenantID)
	}
}

// LayerScope scopes layer queries to the caller's tenant through the owning map
func LayerScope(claims *jwtutil.UserClaims) func(*gorm.DB) *gorm.DB {
	return func(db *gorm.DB) *gorm.DB {
		if claims.Role == model.RoleSuperAdmin {
			return db
		}
		if claims.TenantID == nil {
			return db.Where("1 = 0")
		}
		return db.Joins("JOIN maps ON maps.id = layers.map_id").
			Where("maps.tenant_id = ?", *claims.TenantID)
	}
}

// FeatureScope scopes feature queries to the caller's tenant through the
// owning layer and map
func FeatureScope(claims *jwtutil.UserClaims) func(*gorm.DB) *gorm.DB {
	return func(db *gorm.DB) *gorm.DB {
		if claims.Role == model.RoleSuperAdmin {
			return db
		}
		if claims.TenantID == nil {
			return db.Where("1 = 0")
		}
		return db.Joins("JOIN layers ON layers.id = features.layer_id").
			Joins("JOIN maps ON maps.id = layers.map_id").
			Where("maps.tenant_id = ?", *claims.TenantID)
	}
}
