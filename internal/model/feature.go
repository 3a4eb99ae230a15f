package model

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// Supported feature geometry types (GeoJSON subset)
const (
	GeometryPoint      = "Point"
	GeometryLineString = "LineString"
	GeometryPolygon    = "Polygon"
)

// ValidGeometryType reports whether t is one of the supported geometry types
func ValidGeometryType(t string) bool {
	return t == GeometryPoint || t == GeometryLineString || t == GeometryPolygon
}

// Feature is a single geometric element with attributes, belonging to a layer.
// Geometry holds the GeoJSON geometry object; Properties the attribute values
// matching the layer's field schema.
type Feature struct {
	ID           string         `json:"id" gorm:"type:varchar(36);primaryKey"`
	LayerID      string         `json:"layer_id" gorm:"type:varchar(36);index;not null"`
	Name         string         `json:"name" gorm:"type:varchar(100)"`
	GeometryType string         `json:"geometry_type" gorm:"type:varchar(20);not null"`
	Geometry     datatypes.JSON `json:"geometry" gorm:"type:jsonb;not null"`
	Properties   datatypes.JSON `json:"properties,omitempty" gorm:"type:jsonb"`
	CreatedAt    time.Time      `json:"created_at"`
	UpdatedAt    time.Time      `json:"updated_at"`
	DeletedAt    gorm.DeletedAt `json:"-" gorm:"index"`
}

func (f *Feature) BeforeCreate(tx *gorm.DB) error {
	if f.ID == "" {
		f.ID = uuid.NewString()
	}
	return nil
}
