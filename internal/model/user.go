package model

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// User roles. SUPERADMIN is the single cross-tenant operator role;
// ADMIN and EDITOR always belong to exactly one tenant.
const (
	RoleSuperAdmin = "SUPERADMIN"
	RoleAdmin      = "ADMIN"
	RoleEditor     = "EDITOR"
)

// User represents the user model stored in the database
type User struct {
	ID        string         `json:"id" gorm:"type:varchar(36);primaryKey"`
	Email     string         `json:"email" gorm:"type:varchar(100);uniqueIndex;not null"`
	Password  string         `json:"-" gorm:"type:varchar(255);not null"`
	Name      string         `json:"name" gorm:"type:varchar(100)"`
	Role      string         `json:"role" gorm:"type:varchar(20);not null;default:'EDITOR'"`
	TenantID  *string        `json:"tenant_id,omitempty" gorm:"type:varchar(36);index"`
	Active    bool           `json:"active" gorm:"default:true"`
	CreatedAt time.Time      `json:"created_at"`
	UpdatedAt time.Time      `json:"updated_at"`
	DeletedAt gorm.DeletedAt `json:"-" gorm:"index"`

	Tenant *Tenant `json:"tenant,omitempty" gorm:"foreignKey:TenantID"`
}

func (u *User) BeforeCreate(tx *gorm.DB) error {
	if u.ID == "" {
		u.ID = uuid.NewString()
	}
	return nil
}
