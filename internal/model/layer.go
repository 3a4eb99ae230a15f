package model

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// Layer is a vector layer inside a map. Style and Fields are free-form
// JSON documents maintained by the map editor.
type Layer struct {
	ID        string         `json:"id" gorm:"type:varchar(36);primaryKey"`
	MapID     string         `json:"map_id" gorm:"type:varchar(36);index;not null"`
	Name      string         `json:"name" gorm:"type:varchar(100);not null"`
	IsPublic  bool           `json:"is_public" gorm:"default:false"`
	Style     datatypes.JSON `json:"style,omitempty" gorm:"type:jsonb"`
	Fields    datatypes.JSON `json:"fields,omitempty" gorm:"type:jsonb"`
	CreatedBy string         `json:"created_by" gorm:"type:varchar(36);index"`
	CreatedAt time.Time      `json:"created_at"`
	UpdatedAt time.Time      `json:"updated_at"`
	DeletedAt gorm.DeletedAt `json:"-" gorm:"index"`

	Features []Feature `json:"features,omitempty" gorm:"foreignKey:LayerID;constraint:OnDelete:CASCADE"`
}

func (l *Layer) BeforeCreate(tx *gorm.DB) error {
	if l.ID == "" {
		l.ID = uuid.NewString()
	}
	return nil
}
