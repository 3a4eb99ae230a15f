package model

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// Map represents a published or draft web map owned by a tenant.
// The slug is derived from the name at creation time and is globally
// unique; public maps are served by slug without authentication.
type Map struct {
	ID          string         `json:"id" gorm:"type:varchar(36);primaryKey"`
	TenantID    string         `json:"tenant_id" gorm:"type:varchar(36);index;not null"`
	Name        string         `json:"name" gorm:"type:varchar(100);not null"`
	Slug        string         `json:"slug" gorm:"type:varchar(120);uniqueIndex;not null"`
	Description string         `json:"description,omitempty" gorm:"type:text"`
	Theme       string         `json:"theme,omitempty" gorm:"type:varchar(50);index"`
	IsPublic    bool           `json:"is_public" gorm:"default:false"`
	CreatedBy   string         `json:"created_by" gorm:"type:varchar(36);index"`
	CreatedAt   time.Time      `json:"created_at"`
	UpdatedAt   time.Time      `json:"updated_at"`
	DeletedAt   gorm.DeletedAt `json:"-" gorm:"index"`

	Layers []Layer `json:"layers,omitempty" gorm:"foreignKey:MapID;constraint:OnDelete:CASCADE"`
}

func (m *Map) BeforeCreate(tx *gorm.DB) error {
	if m.ID == "" {
		m.ID = uuid.NewString()
	}
	return nil
}
