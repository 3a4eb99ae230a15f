package model

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// Plan tiers determining a tenant's resource quotas
const (
	PlanFree  = "FREE"
	PlanBasic = "BASIC"
	PlanPro   = "PRO"
)

// Tenant represents an organization owning its own users, maps and layers.
// This is the core of the multi-tenant architecture: every tenant-scoped row
// is reachable from exactly one tenant.
type Tenant struct {
	ID                   string         `json:"id" gorm:"type:varchar(36);primaryKey"`
	Name                 string         `json:"name" gorm:"type:varchar(100);not null"`
	Slug                 string         `json:"slug" gorm:"type:varchar(100);uniqueIndex;not null"`
	Plan                 string         `json:"plan" gorm:"type:varchar(10);not null;default:'FREE'"`
	MaxUsers             int            `json:"max_users" gorm:"not null;default:2"`
	MaxMaps              int            `json:"max_maps" gorm:"not null;default:1"`
	MaxLayers            int            `json:"max_layers" gorm:"not null;default:3"`
	Active               bool           `json:"active" gorm:"default:false"`
	EmailVerified        bool           `json:"email_verified" gorm:"default:false"`
	VerifyToken          *string        `json:"-" gorm:"type:varchar(36);index"`
	VerifyTokenExpiresAt *time.Time     `json:"-"`
	StripeCustomerID     *string        `json:"-" gorm:"type:varchar(100)"`
	StripeSubscriptionID *string        `json:"-" gorm:"type:varchar(100);index"`
	PlanExpiresAt        *time.Time     `json:"plan_expires_at,omitempty"`
	Config               datatypes.JSON `json:"config,omitempty" gorm:"type:jsonb"`
	CreatedAt            time.Time      `json:"created_at"`
	UpdatedAt            time.Time      `json:"updated_at"`
	DeletedAt            gorm.DeletedAt `json:"-" gorm:"index"`
}

func (t *Tenant) BeforeCreate(tx *gorm.DB) error {
	if t.ID == "" {
		t.ID = uuid.NewString()
	}
	return nil
}
