package vector

import (
	"context"
	"log/slog"
	"os"
	"testing"

	"github.com/examforge/papergen-service/internal/clients/qdrant"
	"github.com/examforge/papergen-service/internal/models"
)

// fakeQdrant keeps points in memory and answers exact-match filters the way
// the real API does, which is all the index uses.
type fakeQdrant struct {
	collections map[string]int
	points      map[string]qdrant.Point
}

func newFakeQdrant() *fakeQdrant {
	return &fakeQdrant{
		collections: make(map[string]int),
		points:      make(map[string]qdrant.Point),
	}
}

func (f *fakeQdrant) EnsureCollection(ctx context.Context, name string, dimensions int) error {
	f.collections[name] = dimensions
	return nil
}

func (f *fakeQdrant) UpsertPoints(ctx context.Context, collection string, points []qdrant.Point) error {
	for _, p := range points {
		f.points[p.ID] = p
	}
	return nil
}

func (f *fakeQdrant) DeletePoints(ctx context.Context, collection string, filter qdrant.Filter) error {
	for id, p := range f.points {
		if matchesFilter(p.Payload, filter) {
			delete(f.points, id)
		}
	}
	return nil
}

func (f *fakeQdrant) Search(ctx context.Context, collection string, req qdrant.SearchRequest) ([]qdrant.ScoredPoint, error) {
	var out []qdrant.ScoredPoint
	for id, p := range f.points {
		if req.Filter != nil && !matchesFilter(p.Payload, *req.Filter) {
			continue
		}
		out = append(out, qdrant.ScoredPoint{ID: id, Score: 0.9, Payload: p.Payload})
		if len(out) >= req.Limit {
			break
		}
	}
	return out, nil
}

func (f *fakeQdrant) Scroll(ctx context.Context, collection string, req qdrant.ScrollRequest) (*qdrant.ScrollResult, error) {
	result := &qdrant.ScrollResult{}
	for id, p := range f.points {
		if req.Filter != nil && !matchesFilter(p.Payload, *req.Filter) {
			continue
		}
		result.Points = append(result.Points, qdrant.ScoredPoint{ID: id, Payload: p.Payload})
	}
	return result, nil
}

func matchesFilter(payload map[string]any, filter qdrant.Filter) bool {
	for _, cond := range filter.Must {
		want := normalize(cond.Match.Value)
		got, ok := payload[cond.Key]
		if !ok || normalize(got) != want {
			return false
		}
	}
	return true
}

func normalize(v any) any {
	switch n := v.(type) {
	case uint:
		return float64(n)
	case int:
		return float64(n)
	case float64:
		return n
	default:
		return v
	}
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))
}

func testIndex(t *testing.T) (Index, *fakeQdrant) {
	t.Helper()
	fake := newFakeQdrant()
	ix, err := NewQdrantIndex(context.Background(), testLogger(), fake, IndexConfig{
		Collection: "course_materials",
		Dimensions: 3,
	})
	if err != nil {
		t.Fatalf("NewQdrantIndex failed: %v", err)
	}
	return ix, fake
}

func material(id, courseID uint, typ models.MaterialType) *models.CourseMaterial {
	return &models.CourseMaterial{
		ID:       id,
		CourseID: courseID,
		Type:     typ,
	}
}

func TestUpsertIsIdempotent(t *testing.T) {
	ix, fake := testIndex(t)
	ctx := context.Background()

	m := material(1, 10, models.MaterialSyllabus)
	chunks := []Chunk{{Index: 0, Text: "first"}, {Index: 1, Text: "second"}}
	vectors := [][]float32{{1, 0, 0}, {0, 1, 0}}

	if err := ix.Upsert(ctx, m, chunks, vectors); err != nil {
		t.Fatalf("Upsert failed: %v", err)
	}
	if err := ix.Upsert(ctx, m, chunks, vectors); err != nil {
		t.Fatalf("Second upsert failed: %v", err)
	}

	if len(fake.points) != 2 {
		t.Errorf("Expected 2 points after re-index, got %d", len(fake.points))
	}
}

func TestUpsertReplacesStaleChunks(t *testing.T) {
	ix, fake := testIndex(t)
	ctx := context.Background()

	m := material(1, 10, models.MaterialSyllabus)
	if err := ix.Upsert(ctx, m,
		[]Chunk{{Index: 0, Text: "a"}, {Index: 1, Text: "b"}, {Index: 2, Text: "c"}},
		[][]float32{{1, 0, 0}, {0, 1, 0}, {0, 0, 1}}); err != nil {
		t.Fatalf("Upsert failed: %v", err)
	}

	// Shorter content on re-index must not leave chunk 2 behind.
	if err := ix.Upsert(ctx, m,
		[]Chunk{{Index: 0, Text: "a2"}},
		[][]float32{{1, 1, 0}}); err != nil {
		t.Fatalf("Re-upsert failed: %v", err)
	}

	if len(fake.points) != 1 {
		t.Errorf("Expected 1 point after shrinking re-index, got %d", len(fake.points))
	}
}

func TestUpsertRejectsMismatchedVectors(t *testing.T) {
	ix, _ := testIndex(t)
	ctx := context.Background()

	m := material(1, 10, models.MaterialSyllabus)

	err := ix.Upsert(ctx, m, []Chunk{{Index: 0, Text: "a"}}, [][]float32{})
	if err == nil {
		t.Error("Expected error for chunk/vector count mismatch")
	}

	err = ix.Upsert(ctx, m, []Chunk{{Index: 0, Text: "a"}}, [][]float32{{1, 0}})
	if err == nil {
		t.Error("Expected error for wrong dimensionality")
	}
}

func TestSearchScopedToCourse(t *testing.T) {
	ix, _ := testIndex(t)
	ctx := context.Background()

	if err := ix.Upsert(ctx, material(1, 10, models.MaterialSyllabus),
		[]Chunk{{Index: 0, Text: "course ten"}}, [][]float32{{1, 0, 0}}); err != nil {
		t.Fatalf("Upsert failed: %v", err)
	}
	if err := ix.Upsert(ctx, material(2, 20, models.MaterialOldPaper),
		[]Chunk{{Index: 0, Text: "course twenty"}}, [][]float32{{0, 1, 0}}); err != nil {
		t.Fatalf("Upsert failed: %v", err)
	}

	hits, err := ix.Search(ctx, 10, []float32{1, 0, 0}, 5, nil)
	if err != nil {
		t.Fatalf("Search failed: %v", err)
	}
	if len(hits) != 1 {
		t.Fatalf("Expected 1 hit for course 10, got %d", len(hits))
	}
	if hits[0].CourseID != 10 || hits[0].MaterialID != 1 {
		t.Errorf("Hit leaked across courses: %+v", hits[0].Payload)
	}
	if hits[0].Text != "course ten" {
		t.Errorf("Expected chunk text in payload, got %q", hits[0].Text)
	}
}

func TestSearchTypeFilter(t *testing.T) {
	ix, _ := testIndex(t)
	ctx := context.Background()

	if err := ix.Upsert(ctx, material(1, 10, models.MaterialSyllabus),
		[]Chunk{{Index: 0, Text: "syllabus"}}, [][]float32{{1, 0, 0}}); err != nil {
		t.Fatalf("Upsert failed: %v", err)
	}
	if err := ix.Upsert(ctx, material(2, 10, models.MaterialOldPaper),
		[]Chunk{{Index: 0, Text: "old paper"}}, [][]float32{{0, 1, 0}}); err != nil {
		t.Fatalf("Upsert failed: %v", err)
	}

	typ := models.MaterialOldPaper
	hits, err := ix.Search(ctx, 10, []float32{0, 1, 0}, 5, &typ)
	if err != nil {
		t.Fatalf("Search failed: %v", err)
	}
	if len(hits) != 1 {
		t.Fatalf("Expected 1 hit with type filter, got %d", len(hits))
	}
	if hits[0].Type != models.MaterialOldPaper {
		t.Errorf("Expected OLD_PAPER hit, got %s", hits[0].Type)
	}
}

func TestDeleteMaterialAndCourse(t *testing.T) {
	ix, fake := testIndex(t)
	ctx := context.Background()

	for i := uint(1); i <= 3; i++ {
		if err := ix.Upsert(ctx, material(i, 10, models.MaterialReference),
			[]Chunk{{Index: 0, Text: "x"}}, [][]float32{{1, 0, 0}}); err != nil {
			t.Fatalf("Upsert failed: %v", err)
		}
	}

	if err := ix.DeleteMaterial(ctx, 2); err != nil {
		t.Fatalf("DeleteMaterial failed: %v", err)
	}
	if len(fake.points) != 2 {
		t.Errorf("Expected 2 points after material delete, got %d", len(fake.points))
	}

	// Deleting something absent is a no-op, not an error.
	if err := ix.DeleteMaterial(ctx, 99); err != nil {
		t.Errorf("Delete of missing material should be a no-op, got %v", err)
	}

	if err := ix.DeleteCourse(ctx, 10); err != nil {
		t.Fatalf("DeleteCourse failed: %v", err)
	}
	if len(fake.points) != 0 {
		t.Errorf("Expected empty index after course delete, got %d points", len(fake.points))
	}
}

func TestReconcileRepairsDrift(t *testing.T) {
	ix, fake := testIndex(t)
	ctx := context.Background()

	if err := ix.Upsert(ctx, material(1, 10, models.MaterialSyllabus),
		[]Chunk{{Index: 0, Text: "keep"}}, [][]float32{{1, 0, 0}}); err != nil {
		t.Fatalf("Upsert failed: %v", err)
	}
	if err := ix.Upsert(ctx, material(2, 10, models.MaterialSyllabus),
		[]Chunk{{Index: 0, Text: "orphan"}}, [][]float32{{0, 1, 0}}); err != nil {
		t.Fatalf("Upsert failed: %v", err)
	}

	// Record set says: 1 exists, 2 was deleted, 3 was never indexed.
	report, err := ix.Reconcile(ctx, 10, map[uint]bool{1: true, 3: true})
	if err != nil {
		t.Fatalf("Reconcile failed: %v", err)
	}

	if len(report.OrphansDeleted) != 1 || report.OrphansDeleted[0] != 2 {
		t.Errorf("Expected orphan [2], got %v", report.OrphansDeleted)
	}
	if len(report.MissingFromIdx) != 1 || report.MissingFromIdx[0] != 3 {
		t.Errorf("Expected missing [3], got %v", report.MissingFromIdx)
	}
	if len(fake.points) != 1 {
		t.Errorf("Expected orphan points removed, %d points remain", len(fake.points))
	}

	// A second pass over a repaired index reports nothing to do.
	report, err = ix.Reconcile(ctx, 10, map[uint]bool{1: true})
	if err != nil {
		t.Fatalf("Second reconcile failed: %v", err)
	}
	if len(report.OrphansDeleted) != 0 || len(report.MissingFromIdx) != 0 {
		t.Errorf("Expected clean report, got %+v", report)
	}
}

func TestPointIDDeterministic(t *testing.T) {
	if pointID(1, 0) != pointID(1, 0) {
		t.Error("Point id must be stable for the same material and chunk")
	}
	if pointID(1, 0) == pointID(1, 1) || pointID(1, 0) == pointID(2, 0) {
		t.Error("Point ids must differ across materials and chunks")
	}
}

func TestNoopIndex(t *testing.T) {
	ix := NewNoopIndex()
	ctx := context.Background()

	if ix.Enabled() {
		t.Error("Noop index should report disabled")
	}
	if err := ix.Upsert(ctx, material(1, 10, models.MaterialSyllabus), nil, nil); err != nil {
		t.Errorf("Noop upsert failed: %v", err)
	}
	hits, err := ix.Search(ctx, 10, []float32{1}, 5, nil)
	if err != nil || len(hits) != 0 {
		t.Errorf("Noop search should return nothing, got %d hits, err %v", len(hits), err)
	}
	report, err := ix.Reconcile(ctx, 10, map[uint]bool{7: true})
	if err != nil {
		t.Fatalf("Noop reconcile failed: %v", err)
	}
	if len(report.MissingFromIdx) != 1 || report.MissingFromIdx[0] != 7 {
		t.Errorf("Noop reconcile should report all materials missing, got %v", report.MissingFromIdx)
	}
}
