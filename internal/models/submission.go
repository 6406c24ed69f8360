package models

import (
	"time"

	"gorm.io/datatypes"
	"gorm.io/gorm"
)

type SubmissionStatus string

const (
	SubmissionSubmitted SubmissionStatus = "SUBMITTED"
	SubmissionGraded    SubmissionStatus = "GRADED"
)

type PaperSubmission struct {
	ID        uint   `json:"id" gorm:"primaryKey"`
	VariantID uint   `json:"variant_id" gorm:"not null;index"`
	StudentID string `json:"student_id" gorm:"not null;index;size:255"`

	FileKey string `json:"file_key" gorm:"not null;size:255"`

	// question id -> extracted answer text ("No answer found" when absent)
	ExtractedAnswers datatypes.JSON `json:"extracted_answers" gorm:"type:jsonb"`

	Status   SubmissionStatus `json:"status" gorm:"default:SUBMITTED;index"`
	GradedAt *time.Time       `json:"graded_at"`

	CreatedAt time.Time      `json:"created_at"`
	UpdatedAt time.Time      `json:"updated_at"`
	DeletedAt gorm.DeletedAt `json:"-" gorm:"index"`

	// Relations
	Variant PaperVariant   `json:"variant,omitempty" gorm:"foreignKey:VariantID"`
	Result  *GradingResult `json:"result,omitempty" gorm:"foreignKey:SubmissionID"`
}

// GradingResult is one-to-one with a submission and immutable once created.
// Re-grading creates a new submission with its own result.
type GradingResult struct {
	ID           uint `json:"id" gorm:"primaryKey"`
	SubmissionID uint `json:"submission_id" gorm:"not null;uniqueIndex"`

	TotalScore  float64 `json:"total_score" gorm:"not null"`
	MaxScore    float64 `json:"max_score" gorm:"not null"`
	Percentage  float64 `json:"percentage" gorm:"not null"`
	LetterGrade string  `json:"letter_grade" gorm:"size:5"`

	// question id -> awarded marks, max marks, comment
	Breakdown datatypes.JSON `json:"breakdown" gorm:"type:jsonb;not null"`
	Feedback  string         `json:"feedback" gorm:"type:text"`

	CreatedAt time.Time `json:"created_at"`
}

func (PaperSubmission) TableName() string {
	return "paper_submissions"
}

func (GradingResult) TableName() string {
	return "grading_results"
}
