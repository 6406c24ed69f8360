package repositories

import (
	"time"

	"github.com/examforge/papergen-service/internal/models"
)

// ===== SHARED FILTER STRUCTS =====

type MaterialFilters struct {
	Type      *models.MaterialType `json:"type"`
	CreatedBy *string              `json:"created_by"`
	Year      *int                 `json:"year"`
	Limit     int                  `json:"limit"`
	Offset    int                  `json:"offset"`
	SortBy    string               `json:"sort_by"`    // "created_at", "title", "year"
	SortOrder string               `json:"sort_order"` // "asc", "desc"
}

type PaperRequestFilters struct {
	Status   *models.PaperRequestStatus `json:"status"`
	CourseID *uint                      `json:"course_id"`
	UserID   *string                    `json:"user_id"`
	DateFrom *time.Time                 `json:"date_from"`
	DateTo   *time.Time                 `json:"date_to"`
	Limit    int                        `json:"limit"`
	Offset   int                        `json:"offset"`
	SortBy   string                     `json:"sort_by"`
	SortOrder string                    `json:"sort_order"`
}

type SubmissionFilters struct {
	Status    *models.SubmissionStatus `json:"status"`
	VariantID *uint                    `json:"variant_id"`
	StudentID *string                  `json:"student_id"`
	Limit     int                      `json:"limit"`
	Offset    int                      `json:"offset"`
}

// ===== SHARED STATISTICS STRUCTS =====

type CourseIndexStats struct {
	MaterialCount int `json:"material_count"`
	IndexedCount  int `json:"indexed_count"`
	PendingCount  int `json:"pending_count"`
}

type GenerationStats struct {
	TotalRequests  int     `json:"total_requests"`
	Generated      int     `json:"generated"`
	Failed         int     `json:"failed"`
	VariantCount   int     `json:"variant_count"`
	AveragePercent float64 `json:"average_percent"` // across graded submissions
}
