package models

import (
	"time"

	"gorm.io/gorm"
)

// Form is a tenant-owned form definition.
type Form struct {
	ID        string         `json:"id" gorm:"primaryKey"`
	TenantID  string         `json:"tenant_id" gorm:"index;not null"`
	Name      string         `json:"name" gorm:"not null"`
	Version   int            `json:"version" gorm:"not null;default:1"`
	CreatedBy string         `json:"created_by"`
	Fields    []FormField    `json:"fields" gorm:"foreignKey:FormID"`
	CreatedAt time.Time      `json:"created_at"`
	UpdatedAt time.Time      `json:"updated_at"`
	DeletedAt gorm.DeletedAt `json:"-" gorm:"index"`
}

// FormField is one typed column of a form's schema. Options and numeric
// constraints are serialized inline so schema reads stay one query.
type FormField struct {
	ID        string   `json:"id" gorm:"primaryKey"`
	FormID    string   `json:"form_id" gorm:"index;not null"`
	Label     string   `json:"label" gorm:"not null"`
	Type      string   `json:"type" gorm:"not null"`
	Required  bool     `json:"required"`
	Position  int      `json:"position"`
	Options   []string `json:"options,omitempty" gorm:"serializer:json"`
	Min       *float64 `json:"min,omitempty"`
	Max       *float64 `json:"max,omitempty"`
	MinLength *int     `json:"min_length,omitempty"`
	MaxLength *int     `json:"max_length,omitempty"`
	MaxRating int      `json:"max_rating,omitempty"`
}

// Record is one submitted or imported row of a form. Access is scoped to the
// owning tenant; ImportJobID records provenance for imported rows.
type Record struct {
	ID          string        `json:"id" gorm:"primaryKey"`
	TenantID    string        `json:"tenant_id" gorm:"index;not null"`
	FormID      string        `json:"form_id" gorm:"index;not null"`
	CreatedBy   string        `json:"created_by"`
	ImportJobID *string       `json:"import_job_id,omitempty" gorm:"index"`
	RowNumber   int           `json:"row_number,omitempty"`
	Values      []RecordValue `json:"values" gorm:"foreignKey:RecordID"`
	CreatedAt   time.Time     `json:"created_at"`
	UpdatedAt   time.Time     `json:"updated_at"`
}

// RecordValue is one field's canonical value within a record, stored as JSON.
type RecordValue struct {
	ID       uint   `json:"-" gorm:"primaryKey;autoIncrement"`
	RecordID string `json:"-" gorm:"index;not null"`
	FieldID  string `json:"field_id" gorm:"index;not null"`
	Value    string `json:"value"`
}
