package postgres

import (
	"context"
	"time"

	"gorm.io/gorm"

	"github.com/examforge/papergen-service/internal/models"
	"github.com/examforge/papergen-service/internal/repositories"
)

type PaperRequestPostgreSQL struct {
	db *gorm.DB
}

func NewPaperRequestPostgreSQL(db *gorm.DB) repositories.PaperRequestRepository {
	return &PaperRequestPostgreSQL{db: db}
}

func (r *PaperRequestPostgreSQL) Create(ctx context.Context, tx *gorm.DB, request *models.PaperRequest) error {
	return dbOrTx(r.db, tx).WithContext(ctx).Create(request).Error
}

func (r *PaperRequestPostgreSQL) GetByID(ctx context.Context, tx *gorm.DB, id uint) (*models.PaperRequest, error) {
	var request models.PaperRequest
	err := dbOrTx(r.db, tx).WithContext(ctx).First(&request, id).Error
	if err != nil {
		return nil, err
	}
	return &request, nil
}

func (r *PaperRequestPostgreSQL) GetByIDWithVariants(ctx context.Context, tx *gorm.DB, id uint) (*models.PaperRequest, error) {
	var request models.PaperRequest
	err := dbOrTx(r.db, tx).WithContext(ctx).
		Preload("Variants").
		First(&request, id).Error
	if err != nil {
		return nil, err
	}
	return &request, nil
}

func (r *PaperRequestPostgreSQL) Update(ctx context.Context, tx *gorm.DB, request *models.PaperRequest) error {
	return dbOrTx(r.db, tx).WithContext(ctx).Save(request).Error
}

func (r *PaperRequestPostgreSQL) List(ctx context.Context, tx *gorm.DB, filters repositories.PaperRequestFilters) ([]*models.PaperRequest, int64, error) {
	db := dbOrTx(r.db, tx).WithContext(ctx)

	query := db.Model(&models.PaperRequest{})
	query = applyPaperRequestFilters(query, filters)

	var total int64
	if err := query.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	var requests []*models.PaperRequest
	query = applyPaginationAndSort(query, filters.SortBy, filters.SortOrder, filters.Limit, filters.Offset)
	if err := query.Find(&requests).Error; err != nil {
		return nil, 0, err
	}

	return requests, total, nil
}

// CountInPeriod counts requests created in [from, to) regardless of status.
func (r *PaperRequestPostgreSQL) CountInPeriod(ctx context.Context, tx *gorm.DB, userID string, from, to time.Time) (int64, error) {
	var count int64
	err := dbOrTx(r.db, tx).WithContext(ctx).
		Model(&models.PaperRequest{}).
		Where("user_id = ? AND created_at >= ? AND created_at < ?", userID, from, to).
		Count(&count).Error
	return count, err
}

func (r *PaperRequestPostgreSQL) GetGenerationStats(ctx context.Context, tx *gorm.DB, courseID uint) (*repositories.GenerationStats, error) {
	db := dbOrTx(r.db, tx).WithContext(ctx)
	stats := &repositories.GenerationStats{}

	var total, generated, failed, variants int64
	base := db.Model(&models.PaperRequest{}).Where("course_id = ?", courseID)
	if err := base.Session(&gorm.Session{}).Count(&total).Error; err != nil {
		return nil, err
	}
	if err := base.Session(&gorm.Session{}).Where("status = ?", models.PaperGenerated).Count(&generated).Error; err != nil {
		return nil, err
	}
	if err := base.Session(&gorm.Session{}).Where("status = ?", models.PaperFailed).Count(&failed).Error; err != nil {
		return nil, err
	}
	if err := db.Model(&models.PaperVariant{}).
		Joins("JOIN paper_requests ON paper_requests.id = paper_variants.request_id").
		Where("paper_requests.course_id = ?", courseID).
		Count(&variants).Error; err != nil {
		return nil, err
	}

	stats.TotalRequests = int(total)
	stats.Generated = int(generated)
	stats.Failed = int(failed)
	stats.VariantCount = int(variants)
	return stats, nil
}

type PaperVariantPostgreSQL struct {
	db *gorm.DB
}

func NewPaperVariantPostgreSQL(db *gorm.DB) repositories.PaperVariantRepository {
	return &PaperVariantPostgreSQL{db: db}
}

func (r *PaperVariantPostgreSQL) CreateBatch(ctx context.Context, tx *gorm.DB, variants []*models.PaperVariant) error {
	if len(variants) == 0 {
		return nil
	}
	return dbOrTx(r.db, tx).WithContext(ctx).Create(variants).Error
}

func (r *PaperVariantPostgreSQL) GetByID(ctx context.Context, tx *gorm.DB, id uint) (*models.PaperVariant, error) {
	var variant models.PaperVariant
	err := dbOrTx(r.db, tx).WithContext(ctx).First(&variant, id).Error
	if err != nil {
		return nil, err
	}
	return &variant, nil
}

func (r *PaperVariantPostgreSQL) GetByRequest(ctx context.Context, tx *gorm.DB, requestID uint) ([]*models.PaperVariant, error) {
	var variants []*models.PaperVariant
	err := dbOrTx(r.db, tx).WithContext(ctx).
		Where("request_id = ?", requestID).
		Order("variant_number ASC").
		Find(&variants).Error
	return variants, err
}
