package model

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// AuditLog is an append-only record of a mutating action. Entries are never
// updated or deleted.
type AuditLog struct {
	ID        string         `json:"id" gorm:"type:varchar(36);primaryKey"`
	UserID    string         `json:"user_id" gorm:"type:varchar(36);index;not null"`
	TenantID  *string        `json:"tenant_id,omitempty" gorm:"type:varchar(36);index"`
	Action    string         `json:"action" gorm:"type:varchar(50);not null"`
	Entity    string         `json:"entity" gorm:"type:varchar(50);not null"`
	EntityID  string         `json:"entity_id,omitempty" gorm:"type:varchar(36);index"`
	Details   datatypes.JSON `json:"details,omitempty" gorm:"type:jsonb"`
	CreatedAt time.Time      `json:"created_at"`

	User *User `json:"user,omitempty" gorm:"foreignKey:UserID"`
}

func (a *AuditLog) BeforeCreate(tx *gorm.DB) error {
	if a.ID == "" {
		a.ID = uuid.NewString()
	}
	return nil
}
