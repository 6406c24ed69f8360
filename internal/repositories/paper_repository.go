package repositories

import (
	"context"
	"time"

	"github.com/examforge/papergen-service/internal/models"
	"gorm.io/gorm"
)

type PaperRequestRepository interface {
	Create(ctx context.Context, tx *gorm.DB, request *models.PaperRequest) error
	GetByID(ctx context.Context, tx *gorm.DB, id uint) (*models.PaperRequest, error)
	GetByIDWithVariants(ctx context.Context, tx *gorm.DB, id uint) (*models.PaperRequest, error)
	Update(ctx context.Context, tx *gorm.DB, request *models.PaperRequest) error

	List(ctx context.Context, tx *gorm.DB, filters PaperRequestFilters) ([]*models.PaperRequest, int64, error)

	// CountInPeriod counts a user's requests created in [from, to). The quota
	// ledger is computed from this, never stored.
	CountInPeriod(ctx context.Context, tx *gorm.DB, userID string, from, to time.Time) (int64, error)

	GetGenerationStats(ctx context.Context, tx *gorm.DB, courseID uint) (*GenerationStats, error)
}

type PaperVariantRepository interface {
	CreateBatch(ctx context.Context, tx *gorm.DB, variants []*models.PaperVariant) error
	GetByID(ctx context.Context, tx *gorm.DB, id uint) (*models.PaperVariant, error)
	GetByRequest(ctx context.Context, tx *gorm.DB, requestID uint) ([]*models.PaperVariant, error)
}
