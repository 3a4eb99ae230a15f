package plan

import (
	"errors"
	"fmt"

	"github.com/casadesoftware/GeoMun/internal/model"
	"github.com/casadesoftware/GeoMun/pkg/jwtutil"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// Resource is a quota-limited resource kind
type Resource string

const (
	ResourceUsers  Resource = "users"
	ResourceMaps   Resource = "maps"
	ResourceLayers Resource = "layers"
)

// Unlimited is the sentinel limit value meaning no quota applies
const Unlimited = -1

var (
	// ErrNoTenant is returned when a non-SUPERADMIN caller has no tenant assigned
	ErrNoTenant = errors.New("no tenant assigned")
	// ErrTenantNotFound is returned when the caller's tenant row is missing
	ErrTenantNotFound = errors.New("tenant not found")
)

// LimitError reports a create request rejected because the tenant's plan
// quota is exhausted
type LimitError struct {
	Plan     string
	Max      int
	Resource Resource
}

func (e *LimitError) Error() string {
	return fmt.Sprintf("%s plan limit reached: maximum %d %s, upgrade your plan", e.Plan, e.Max, e.Resource)
}

// Reserve checks that the caller's tenant may create one more resource of the
// given kind. It must run inside the same transaction as the create so the
// count and the insert are atomic; on postgres the tenant row is locked FOR
// UPDATE, serializing concurrent creates for the same tenant.
//
// SUPERADMIN bypasses quotas entirely. A limit of -1 means unlimited.
func Reserve(tx *gorm.DB, claims *jwtutil.UserClaims, resource Resource) error {
	if claims.Role == model.RoleSuperAdmin {
		return nil
	}
	if claims.TenantID == nil {
		return ErrNoTenant
	}

	q := tx
	if tx.Dialector.Name() == "postgres" {
		q = tx.Clauses(clause.Locking{Strength: "UPDATE"})
	}

	var tenant model.Tenant
	if err := q.First(&tenant, "id = ?", *claims.TenantID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return ErrTenantNotFound
		}
		return err
	}

	var max int
	var count int64
	switch resource {
	case ResourceUsers:
		max = tenant.MaxUsers
		if max == Unlimited {
			return nil
		}
		if err := tx.Model(&model.User{}).
			Where("tenant_id = ? AND active = ?", tenant.ID, true).
			Count(&count).Error; err != nil {
			return err
		}
	case ResourceMaps:
		max = tenant.MaxMaps
		if max == Unlimited {
			return nil
		}
		if err := tx.Model(&model.Map{}).
			Where("tenant_id = ?", tenant.ID).
			Count(&count).Error; err != nil {
			return err
		}
	case ResourceLayers:
		max = tenant.MaxLayers
		if max == Unlimited {
			return nil
		}
		if err := tx.Model(&model.Layer{}).
			Joins("JOIN maps ON maps.id = layers.map_id").
			Where("maps.tenant_id = ?", tenant.ID).
			Count(&count).Error; err != nil {
			return err
		}
	default:
		return nil
	}

	if count >= int64(max) {
		return &LimitError{Plan: tenant.Plan, Max: max, Resource: resource}
	}
	return nil
}
