package models

import (
	"time"

	"gorm.io/datatypes"
	"gorm.io/gorm"
)

type PaperRequestStatus string

const (
	PaperPending   PaperRequestStatus = "PENDING"
	PaperGenerated PaperRequestStatus = "GENERATED"
	PaperFailed    PaperRequestStatus = "FAILED"
)

type PaperRequest struct {
	ID       uint   `json:"id" gorm:"primaryKey"`
	CourseID uint   `json:"course_id" gorm:"not null;index"`
	UserID   string `json:"user_id" gorm:"not null;index;size:255"`

	ExamType   string `json:"exam_type" gorm:"not null;size:50" validate:"required,min=2,max=50"`
	TotalMarks int    `json:"total_marks" gorm:"not null" validate:"required,min=5,max=500"`
	Duration   int    `json:"duration" gorm:"not null" validate:"required,min=5,max=360"` // minutes

	TopicsInclude datatypes.JSON `json:"topics_include" gorm:"type:jsonb"`
	TopicsExclude datatypes.JSON `json:"topics_exclude" gorm:"type:jsonb"`
	DifficultyMix datatypes.JSON `json:"difficulty_mix" gorm:"type:jsonb"` // easy/medium/hard percentages by marks
	StyleOverride *string        `json:"style_override" gorm:"type:text" validate:"omitempty,max=1000"`

	// Reproducibility seed; generated when the caller does not supply one
	Seed int64 `json:"seed"`

	Status      PaperRequestStatus `json:"status" gorm:"default:PENDING;index"`
	FailureCode *string            `json:"failure_code" gorm:"size:50"`

	CreatedAt time.Time      `json:"created_at"`
	UpdatedAt time.Time      `json:"updated_at"`
	DeletedAt gorm.DeletedAt `json:"-" gorm:"index"`

	// Relations
	Course   Course         `json:"course,omitempty" gorm:"foreignKey:CourseID"`
	Variants []PaperVariant `json:"variants,omitempty" gorm:"foreignKey:RequestID"`
}

// PaperVariant is one concrete generated paper. Immutable once created;
// re-generation creates new variants under a new request.
type PaperVariant struct {
	ID            uint `json:"id" gorm:"primaryKey"`
	RequestID     uint `json:"request_id" gorm:"not null;index"`
	VariantNumber int  `json:"variant_number" gorm:"not null"`

	// Structured paper: sections -> questions (id/type/text/marks/difficulty/tags/citations)
	Body datatypes.JSON `json:"body" gorm:"type:jsonb;not null"`

	// Per-question answer key, rubric and max marks
	MarkingScheme datatypes.JSON `json:"marking_scheme" gorm:"type:jsonb;not null"`

	CreatedAt time.Time `json:"created_at"`

	// Relations
	Request PaperRequest `json:"request,omitempty" gorm:"foreignKey:RequestID"`
}

func (PaperRequest) TableName() string {
	return "paper_requests"
}

func (PaperVariant) TableName() string {
	return "paper_variants"
}
