package vector

import (
	"context"

	"github.com/examforge/papergen-service/internal/models"
)

// noopIndex is wired when indexing is disabled by configuration. Writes are
// dropped, searches return nothing, and reconcile reports every material as
// missing so the pending markers stay honest.
type noopIndex struct{}

func NewNoopIndex() Index {
	return &noopIndex{}
}

func (n *noopIndex) Enabled() bool { return false }

func (n *noopIndex) Upsert(ctx context.Context, material *models.CourseMaterial, chunks []Chunk, vectors [][]float32) error {
	return nil
}

func (n *noopIndex) Search(ctx context.Context, courseID uint, queryVector []float32, topK int, typeFilter *models.MaterialType) ([]ScoredChunk, error) {
	return nil, nil
}

func (n *noopIndex) DeleteMaterial(ctx context.Context, materialID uint) error { return nil }

func (n *noopIndex) DeleteCourse(ctx context.Context, courseID uint) error { return nil }

func (n *noopIndex) Reconcile(ctx context.Context, courseID uint, authoritative map[uint]bool) (*ReconcileReport, error) {
	report := &ReconcileReport{}
	for id := range authoritative {
		report.MissingFromIdx = append(report.MissingFromIdx, id)
	}
	return report, nil
}
