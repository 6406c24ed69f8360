package validator

import (
	"github.com/examforge/papergen-service/internal/models"
)

// CourseCreateRequest represents the request structure for creating courses
type CourseCreateRequest struct {
	Code          string         `json:"code" validate:"required,min=2,max=20"`
	Title         string         `json:"title" validate:"required,min=1,max=200"`
	Language      string         `json:"language" validate:"omitempty,max=10"`
	GradingScale  map[string]int `json:"grading_scale" validate:"omitempty"`
	PassThreshold int            `json:"pass_threshold" validate:"omitempty,min=0,max=100"`
	PartialCredit bool           `json:"partial_credit"`
}

// MaterialCreateRequest carries the metadata side of a multipart upload
type MaterialCreateRequest struct {
	CourseID    uint                `json:"course_id" validate:"required"`
	Title       string              `json:"title" validate:"required,min=1,max=200"`
	Description *string             `json:"description" validate:"omitempty,max=1000"`
	Type        models.MaterialType `json:"type" validate:"required,material_type"`
	Year        *int                `json:"year" validate:"omitempty,min=1900,max=2100"`
	Weightings  map[string]int      `json:"weightings" validate:"omitempty"`
	StyleNotes  *string             `json:"style_notes" validate:"omitempty,max=2000"`
}

// MaterialUpdateRequest updates material metadata; content changes re-index
type MaterialUpdateRequest struct {
	Title       *string        `json:"title" validate:"omitempty,min=1,max=200"`
	Description *string        `json:"description" validate:"omitempty,max=1000"`
	Year        *int           `json:"year" validate:"omitempty,min=1900,max=2100"`
	Weightings  map[string]int `json:"weightings" validate:"omitempty"`
	StyleNotes  *string        `json:"style_notes" validate:"omitempty,max=2000"`
}

// PaperGenerateRequest represents the request structure for generating papers
type PaperGenerateRequest struct {
	CourseID      uint           `json:"course_id" validate:"required"`
	ExamType      string         `json:"exam_type" validate:"required,exam_type"`
	TotalMarks    int            `json:"total_marks" validate:"required,total_marks"`
	Duration      int            `json:"duration" validate:"required,paper_duration"`
	Variants      int            `json:"variants" validate:"omitempty,min=1,max=26"`
	TopicsInclude []string       `json:"topics_include" validate:"omitempty,max=20,dive,min=1,max=100"`
	TopicsExclude []string       `json:"topics_exclude" validate:"omitempty,max=20,dive,min=1,max=100"`
	DifficultyMix map[string]int `json:"difficulty_mix" validate:"omitempty"`
	StyleOverride *string        `json:"style_override" validate:"omitempty,max=2000"`
	Seed          *int64         `json:"seed"`
}

// GradeSubmissionRequest carries the metadata side of a submission upload
type GradeSubmissionRequest struct {
	VariantID uint   `json:"variant_id" validate:"required"`
	StudentID string `json:"student_id" validate:"required,min=1,max=255"`
}
