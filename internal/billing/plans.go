package billing

import (
	"time"

	"github.com/casadesoftware/GeoMun/internal/model"
	"gorm.io/gorm"
)

// Limits are the per-plan resource quotas; -1 means unlimited
type Limits struct {
	MaxUsers  int
	MaxMaps   int
	MaxLayers int
}

// PlanLimits maps each plan tier to its quotas. The payment provider is the
// source of truth for which plan a tenant is on; this table only translates
// the tier into limits.
var PlanLimits = map[string]Limits{
	model.PlanFree:  {MaxUsers: 2, MaxMaps: 1, MaxLayers: 3},
	model.PlanBasic: {MaxUsers: 10, MaxMaps: 5, MaxLayers: 15},
	model.PlanPro:   {MaxUsers: -1, MaxMaps: -1, MaxLayers: -1},
}

// ValidPaidPlan reports whether the plan name is a purchasable tier
func ValidPaidPlan(plan string) bool {
	return plan == model.PlanBasic || plan == model.PlanPro
}

// ApplyPlan writes a plan's limits onto the tenant. Paid plans get a 30-day
// expiry stamp; FREE clears it. Last event processed wins.
func ApplyPlan(db *gorm.DB, tenantID, plan string, subscriptionID *string) error {
	limits, ok := PlanLimits[plan]
	if !ok {
		limits = PlanLimits[model.PlanFree]
		plan = model.PlanFree
	}

	var expiresAt *time.Time
	if plan != model.PlanFree {
		t := time.Now().Add(30 * 24 * time.Hour)
		expiresAt = &t
	}

	return db.Model(&model.Tenant{}).
		Where("id = ?", tenantID).
		Updates(map[string]interface{}{
			"plan":                   plan,
			"max_users":              limits.MaxUsers,
			"max_maps":               limits.MaxMaps,
			"max_layers":             limits.MaxLayers,
			"stripe_subscription_id": subscriptionID,
			"plan_expires_at":        expiresAt,
		}).Error
}
