package postgres

import (
	"context"
	"time"

	"gorm.io/gorm"

	"github.com/examforge/papergen-service/internal/models"
	"github.com/examforge/papergen-service/internal/repositories"
)

type CoursePostgreSQL struct {
	db *gorm.DB
}

func NewCoursePostgreSQL(db *gorm.DB) repositories.CourseRepository {
	return &CoursePostgreSQL{db: db}
}

func (r *CoursePostgreSQL) GetByID(ctx context.Context, tx *gorm.DB, id uint) (*models.Course, error) {
	var course models.Course
	err := dbOrTx(r.db, tx).WithContext(ctx).First(&course, id).Error
	if err != nil {
		return nil, err
	}
	return &course, nil
}

func (r *CoursePostgreSQL) Create(ctx context.Context, tx *gorm.DB, course *models.Course) error {
	return dbOrTx(r.db, tx).WithContext(ctx).Create(course).Error
}

type MaterialPostgreSQL struct {
	db *gorm.DB
}

func NewMaterialPostgreSQL(db *gorm.DB) repositories.MaterialRepository {
	return &MaterialPostgreSQL{db: db}
}

func (r *MaterialPostgreSQL) Create(ctx context.Context, tx *gorm.DB, material *models.CourseMaterial) error {
	return dbOrTx(r.db, tx).WithContext(ctx).Create(material).Error
}

func (r *MaterialPostgreSQL) GetByID(ctx context.Context, tx *gorm.DB, id uint) (*models.CourseMaterial, error) {
	var material models.CourseMaterial
	err := dbOrTx(r.db, tx).WithContext(ctx).First(&material, id).Error
	if err != nil {
		return nil, err
	}
	return &material, nil
}

func (r *MaterialPostgreSQL) Update(ctx context.Context, tx *gorm.DB, material *models.CourseMaterial) error {
	return dbOrTx(r.db, tx).WithContext(ctx).Save(material).Error
}

func (r *MaterialPostgreSQL) Delete(ctx context.Context, tx *gorm.DB, id uint) error {
	return dbOrTx(r.db, tx).WithContext(ctx).Delete(&models.CourseMaterial{}, id).Error
}

func (r *MaterialPostgreSQL) GetByCourse(ctx context.Context, tx *gorm.DB, courseID uint, filters repositories.MaterialFilters) ([]*models.CourseMaterial, int64, error) {
	db := dbOrTx(r.db, tx).WithContext(ctx)

	query := db.Model(&models.CourseMaterial{}).Where("course_id = ?", courseID)
	query = applyMaterialFilters(query, filters)

	var total int64
	if err := query.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	var materials []*models.CourseMaterial
	query = applyPaginationAndSort(query, filters.SortBy, filters.SortOrder, filters.Limit, filters.Offset)
	if err := query.Find(&materials).Error; err != nil {
		return nil, 0, err
	}

	return materials, total, nil
}

func (r *MaterialPostgreSQL) GetPendingIndex(ctx context.Context, tx *gorm.DB, courseID uint) ([]*models.CourseMaterial, error) {
	var materials []*models.CourseMaterial
	err := dbOrTx(r.db, tx).WithContext(ctx).
		Where("course_id = ? AND indexed_at IS NULL AND content <> ''", courseID).
		Find(&materials).Error
	return materials, err
}

func (r *MaterialPostgreSQL) MarkIndexed(ctx context.Context, tx *gorm.DB, id uint, indexedAt *time.Time) error {
	return dbOrTx(r.db, tx).WithContext(ctx).
		Model(&models.CourseMaterial{}).
		Where("id = ?", id).
		Update("indexed_at", indexedAt).Error
}

func (r *MaterialPostgreSQL) GetIndexStats(ctx context.Context, tx *gorm.DB, courseID uint) (*repositories.CourseIndexStats, error) {
	db := dbOrTx(r.db, tx).WithContext(ctx)
	stats := &repositories.CourseIndexStats{}

	var total, indexed int64
	if err := db.Model(&models.CourseMaterial{}).
		Where("course_id = ?", courseID).
		Count(&total).Error; err != nil {
		return nil, err
	}
	if err := db.Model(&models.CourseMaterial{}).
		Where("course_id = ? AND indexed_at IS NOT NULL", courseID).
		Count(&indexed).Error; err != nil {
		return nil, err
	}

	stats.MaterialCount = int(total)
	stats.IndexedCount = int(indexed)
	stats.PendingCount = int(total - indexed)
	return stats, nil
}
