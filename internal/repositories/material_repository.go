package repositories

import (
	"context"
	"time"

	"github.com/examforge/papergen-service/internal/models"
	"gorm.io/gorm"
)

// CourseRepository provides read access to courses; course CRUD screens are
// administered outside this service.
type CourseRepository interface {
	GetByID(ctx context.Context, tx *gorm.DB, id uint) (*models.Course, error)
	Create(ctx context.Context, tx *gorm.DB, course *models.Course) error
}

// MaterialRepository covers the system-of-record side of course materials.
// The vector index holds a derived projection reconciled against this store.
type MaterialRepository interface {
	Create(ctx context.Context, tx *gorm.DB, material *models.CourseMaterial) error
	GetByID(ctx context.Context, tx *gorm.DB, id uint) (*models.CourseMaterial, error)
	Update(ctx context.Context, tx *gorm.DB, material *models.CourseMaterial) error
	Delete(ctx context.Context, tx *gorm.DB, id uint) error

	GetByCourse(ctx context.Context, tx *gorm.DB, courseID uint, filters MaterialFilters) ([]*models.CourseMaterial, int64, error)
	GetPendingIndex(ctx context.Context, tx *gorm.DB, courseID uint) ([]*models.CourseMaterial, error)

	// MarkIndexed records that the material's chunks are present in the
	// vector index; a nil indexedAt flags it for reconcile.
	MarkIndexed(ctx context.Context, tx *gorm.DB, id uint, indexedAt *time.Time) error

	GetIndexStats(ctx context.Context, tx *gorm.DB, courseID uint) (*CourseIndexStats, error)
}
