package models

import (
	"time"

	"gorm.io/datatypes"
	"gorm.io/gorm"
)

type MaterialType string

const (
	MaterialSyllabus  MaterialType = "SYLLABUS"
	MaterialOldPaper  MaterialType = "OLD_PAPER"
	MaterialReference MaterialType = "REFERENCE"
)

type CourseMaterial struct {
	ID          uint         `json:"id" gorm:"primaryKey"`
	CourseID    uint         `json:"course_id" gorm:"not null;index"`
	Title       string       `json:"title" gorm:"not null;size:200" validate:"required,min=1,max=200"`
	Description *string      `json:"description" gorm:"type:text" validate:"omitempty,max=1000"`
	Type        MaterialType `json:"type" gorm:"not null;index;size:20" validate:"required,oneof=SYLLABUS OLD_PAPER REFERENCE"`

	// Extracted plain text; the vector index holds a derived projection of it
	Content string `json:"content" gorm:"type:text"`

	Year       *int           `json:"year" validate:"omitempty,min=1900,max=2100"`
	Weightings datatypes.JSON `json:"weightings" gorm:"type:jsonb"` // topic -> marks weight
	StyleNotes *string        `json:"style_notes" gorm:"type:text"`

	// Object storage key of the original upload
	FileKey string `json:"file_key" gorm:"size:255"`

	// Nil until chunks for the current content are present in the vector
	// index; reconcile re-indexes materials left pending.
	IndexedAt *time.Time `json:"indexed_at"`

	CreatedBy string         `json:"created_by" gorm:"not null;index;size:255"`
	CreatedAt time.Time      `json:"created_at"`
	UpdatedAt time.Time      `json:"updated_at"`
	DeletedAt gorm.DeletedAt `json:"-" gorm:"index"`

	// Relations
	Course Course `json:"course,omitempty" gorm:"foreignKey:CourseID"`
}

func (CourseMaterial) TableName() string {
	return "course_materials"
}
