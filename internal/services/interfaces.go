package services

import (
	"context"
	"time"

	"github.com/examforge/papergen-service/internal/models"
	"github.com/examforge/papergen-service/internal/repositories"
	"github.com/examforge/papergen-service/internal/validator"
)

// ===== REQUEST/RESPONSE DTOs =====

// Use business validator types
type CreateMaterialRequest = validator.MaterialCreateRequest
type UpdateMaterialRequest = validator.MaterialUpdateRequest
type GeneratePaperRequest = validator.PaperGenerateRequest
type SubmitPaperRequest = validator.GradeSubmissionRequest

// UploadedFile is the binary side of a multipart upload.
type UploadedFile struct {
	Filename string
	Data     []byte
}

type MaterialResponse struct {
	*models.CourseMaterial
	Indexed bool `json:"indexed"`
}

type MaterialListResponse struct {
	Materials []*MaterialResponse `json:"materials"`
	Total     int64               `json:"total"`
}

// ReconcileResponse reports one diff-and-repair pass over a course's index.
type ReconcileResponse struct {
	CourseID       uint   `json:"course_id"`
	OrphansDeleted []uint `json:"orphans_deleted"`
	Reindexed      []uint `json:"reindexed"`
	StillPending   []uint `json:"still_pending"`
}

// Excerpt is one retrieved chunk with its provenance, the unit the
// generation prompt cites.
type Excerpt struct {
	ID           string              `json:"id"`
	MaterialID   uint                `json:"material_id"`
	MaterialType models.MaterialType `json:"material_type"`
	Title        string              `json:"title"`
	Year         *int                `json:"year,omitempty"`
	Weightings   map[string]int      `json:"weightings,omitempty"`
	StyleNotes   string              `json:"style_notes,omitempty"`
	Text         string              `json:"text"`
	Score        float64             `json:"score"`
}

type PaperResponse struct {
	*models.PaperRequest
	Remaining *QuotaSnapshot `json:"quota,omitempty"`
}

type VariantResponse struct {
	ID            uint                 `json:"id"`
	VariantNumber int                  `json:"variant_number"`
	Body          models.PaperBody     `json:"body"`
	MarkingScheme models.MarkingScheme `json:"marking_scheme"`
	CreatedAt     time.Time            `json:"created_at"`
}

// QuotaSnapshot is the computed monthly allowance state.
type QuotaSnapshot struct {
	Limit     int       `json:"limit"` // models.UnlimitedPapers = no cap
	Used      int64     `json:"used"`
	Remaining int64     `json:"remaining"` // -1 when unlimited
	ResetsAt  time.Time `json:"resets_at"`
}

// Unlimited reports whether the plan has no monthly cap.
func (q *QuotaSnapshot) Unlimited() bool {
	return q.Limit == models.UnlimitedPapers
}

type SubmissionResponse struct {
	*models.PaperSubmission
	Result *GradingResultResponse `json:"result,omitempty"`
}

type GradingResultResponse struct {
	SubmissionID uint                    `json:"submission_id"`
	TotalScore   float64                 `json:"total_score"`
	MaxScore     float64                 `json:"max_score"`
	Percentage   float64                 `json:"percentage"`
	LetterGrade  string                  `json:"letter_grade"`
	Passed       bool                    `json:"passed"`
	Breakdown    models.GradingBreakdown `json:"breakdown"`
	Feedback     string                  `json:"feedback"`
}

// ===== SERVICE INTERFACES =====

type MaterialService interface {
	Upload(ctx context.Context, req *CreateMaterialRequest, file *UploadedFile, userID string) (*MaterialResponse, error)
	GetByID(ctx context.Context, id uint, userID string) (*MaterialResponse, error)
	Update(ctx context.Context, id uint, req *UpdateMaterialRequest, userID string) (*MaterialResponse, error)
	Delete(ctx context.Context, id uint, userID string) error

	ListByCourse(ctx context.Context, courseID uint, filters repositories.MaterialFilters, userID string) (*MaterialListResponse, error)

	// Reconcile diffs the vector index against the materials table for one
	// course, removes orphaned points and re-indexes pending materials.
	Reconcile(ctx context.Context, courseID uint, userID string) (*ReconcileResponse, error)
}

// RetrievalService is read-only: no writes, no index mutations.
type RetrievalService interface {
	Retrieve(ctx context.Context, courseID uint, examType string, topics []string, topK int) ([]Excerpt, error)
}

type QuotaService interface {
	Remaining(ctx context.Context, userID string, now time.Time) (*QuotaSnapshot, error)
}

type GenerationService interface {
	Generate(ctx context.Context, req *GeneratePaperRequest, userID string) (*PaperResponse, error)
	GetRequest(ctx context.Context, id uint, userID string) (*PaperResponse, error)
	GetVariants(ctx context.Context, requestID uint, userID string) ([]*VariantResponse, error)
}

type GradingService interface {
	// SubmitAndGrade stores the uploaded answer document and runs the full
	// grading pipeline synchronously.
	SubmitAndGrade(ctx context.Context, req *SubmitPaperRequest, file *UploadedFile, userID string) (*SubmissionResponse, error)
	GetSubmission(ctx context.Context, id uint, userID string) (*SubmissionResponse, error)
	GetResult(ctx context.Context, submissionID uint, userID string) (*GradingResultResponse, error)
}

type ExportService interface {
	// ExportGradingResults renders all graded submissions of a paper request
	// as an xlsx workbook.
	ExportGradingResults(ctx context.Context, requestID uint, userID string) ([]byte, error)
}

// AnswerExtractor maps raw submission text onto the paper's question ids.
type AnswerExtractor interface {
	Extract(body models.PaperBody, rawText string) models.ExtractedAnswers
}

// ===== SERVICE MANAGER =====

type ServiceManager interface {
	Material() MaterialService
	Retrieval() RetrievalService
	Quota() QuotaService
	Generation() GenerationService
	Grading() GradingService
	Export() ExportService

	Initialize(ctx context.Context) error
	HealthCheck(ctx context.Context) error
	Shutdown(ctx context.Context) error
}
