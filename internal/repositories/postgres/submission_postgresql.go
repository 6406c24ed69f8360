package postgres

import (
	"context"

	"gorm.io/gorm"

	"github.com/examforge/papergen-service/internal/models"
	"github.com/examforge/papergen-service/internal/repositories"
)

type SubmissionPostgreSQL struct {
	db *gorm.DB
}

func NewSubmissionPostgreSQL(db *gorm.DB) repositories.SubmissionRepository {
	return &SubmissionPostgreSQL{db: db}
}

func (r *SubmissionPostgreSQL) Create(ctx context.Context, tx *gorm.DB, submission *models.PaperSubmission) error {
	return dbOrTx(r.db, tx).WithContext(ctx).Create(submission).Error
}

func (r *SubmissionPostgreSQL) GetByID(ctx context.Context, tx *gorm.DB, id uint) (*models.PaperSubmission, error) {
	var submission models.PaperSubmission
	err := dbOrTx(r.db, tx).WithContext(ctx).First(&submission, id).Error
	if err != nil {
		return nil, err
	}
	return &submission, nil
}

func (r *SubmissionPostgreSQL) GetByIDWithResult(ctx context.Context, tx *gorm.DB, id uint) (*models.PaperSubmission, error) {
	var submission models.PaperSubmission
	err := dbOrTx(r.db, tx).WithContext(ctx).
		Preload("Result").
		First(&submission, id).Error
	if err != nil {
		return nil, err
	}
	return &submission, nil
}

func (r *SubmissionPostgreSQL) Update(ctx context.Context, tx *gorm.DB, submission *models.PaperSubmission) error {
	return dbOrTx(r.db, tx).WithContext(ctx).Save(submission).Error
}

func (r *SubmissionPostgreSQL) GetByVariant(ctx context.Context, tx *gorm.DB, variantID uint, filters repositories.SubmissionFilters) ([]*models.PaperSubmission, int64, error) {
	db := dbOrTx(r.db, tx).WithContext(ctx)

	query := db.Model(&models.PaperSubmission{}).Where("variant_id = ?", variantID)
	query = applySubmissionFilters(query, filters)

	var total int64
	if err := query.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	var submissions []*models.PaperSubmission
	query = applyPaginationAndSort(query, "", "", filters.Limit, filters.Offset)
	if err := query.Find(&submissions).Error; err != nil {
		return nil, 0, err
	}

	return submissions, total, nil
}

type GradingResultPostgreSQL struct {
	db *gorm.DB
}

func NewGradingResultPostgreSQL(db *gorm.DB) repositories.GradingResultRepository {
	return &GradingResultPostgreSQL{db: db}
}

func (r *GradingResultPostgreSQL) Create(ctx context.Context, tx *gorm.DB, result *models.GradingResult) error {
	return dbOrTx(r.db, tx).WithContext(ctx).Create(result).Error
}

func (r *GradingResultPostgreSQL) GetBySubmission(ctx context.Context, tx *gorm.DB, submissionID uint) (*models.GradingResult, error) {
	var result models.GradingResult
	err := dbOrTx(r.db, tx).WithContext(ctx).
		Where("submission_id = ?", submissionID).
		First(&result).Error
	if err != nil {
		return nil, err
	}
	return &result, nil
}

type UserPostgreSQL struct {
	db *gorm.DB
}

func NewUserPostgreSQL(db *gorm.DB) repositories.UserRepository {
	return &UserPostgreSQL{db: db}
}

func (r *UserPostgreSQL) GetByID(ctx context.Context, tx *gorm.DB, id string) (*models.User, error) {
	var user models.User
	err := dbOrTx(r.db, tx).WithContext(ctx).First(&user, "id = ?", id).Error
	if err != nil {
		return nil, err
	}
	return &user, nil
}

func (r *UserPostgreSQL) GetByIDWithPlan(ctx context.Context, tx *gorm.DB, id string) (*models.User, error) {
	var user models.User
	err := dbOrTx(r.db, tx).WithContext(ctx).
		Preload("Plan").
		First(&user, "id = ?", id).Error
	if err != nil {
		return nil, err
	}
	return &user, nil
}

type PlanPostgreSQL struct {
	db *gorm.DB
}

func NewPlanPostgreSQL(db *gorm.DB) repositories.PlanRepository {
	return &PlanPostgreSQL{db: db}
}

func (r *PlanPostgreSQL) GetByID(ctx context.Context, tx *gorm.DB, id uint) (*models.Plan, error) {
	var plan models.Plan
	err := dbOrTx(r.db, tx).WithContext(ctx).First(&plan, id).Error
	if err != nil {
		return nil, err
	}
	return &plan, nil
}
