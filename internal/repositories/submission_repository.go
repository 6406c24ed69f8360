package repositories

import (
	"context"

	"github.com/examforge/papergen-service/internal/models"
	"gorm.io/gorm"
)

type SubmissionRepository interface {
	Create(ctx context.Context, tx *gorm.DB, submission *models.PaperSubmission) error
	GetByID(ctx context.Context, tx *gorm.DB, id uint) (*models.PaperSubmission, error)
	GetByIDWithResult(ctx context.Context, tx *gorm.DB, id uint) (*models.PaperSubmission, error)
	Update(ctx context.Context, tx *gorm.DB, submission *models.PaperSubmission) error

	GetByVariant(ctx context.Context, tx *gorm.DB, variantID uint, filters SubmissionFilters) ([]*models.PaperSubmission, int64, error)
}

type GradingResultRepository interface {
	Create(ctx context.Context, tx *gorm.DB, result *models.GradingResult) error
	GetBySubmission(ctx context.Context, tx *gorm.DB, submissionID uint) (*models.GradingResult, error)
}

// UserRepository is read-mostly; user administration lives elsewhere.
type UserRepository interface {
	GetByID(ctx context.Context, tx *gorm.DB, id string) (*models.User, error)
	GetByIDWithPlan(ctx context.Context, tx *gorm.DB, id string) (*models.User, error)
}

type PlanRepository interface {
	GetByID(ctx context.Context, tx *gorm.DB, id uint) (*models.Plan, error)
}
