package vector

import (
	"context"
	"fmt"
	"log/slog"
	"sort"

	"github.com/google/uuid"

	"github.com/examforge/papergen-service/internal/clients/qdrant"
	"github.com/examforge/papergen-service/internal/models"
)

// Payload is the metadata stored alongside each indexed chunk vector. The
// vector index is a derived projection; the relational store stays the
// system of record.
type Payload struct {
	MaterialID uint
	CourseID   uint
	Type       models.MaterialType
	ChunkIndex int
	Text       string
	Start      int
	End        int
}

// ScoredChunk is one search hit.
type ScoredChunk struct {
	Payload
	Score   float64
	PointID string
}

// ReconcileReport summarises a diff-and-repair pass.
type ReconcileReport struct {
	OrphansDeleted []uint // present in the index, absent from the record set
	MissingFromIdx []uint // present in the record set, absent from the index
}

// Index stores chunk vectors partitioned by course.
//
// Upsert replaces all points for a material (delete-then-insert, idempotent,
// last-writer-wins). Search is always scoped to one course; cross-course
// leakage is a correctness violation. Delete of a missing scope is a no-op.
type Index interface {
	Upsert(ctx context.Context, material *models.CourseMaterial, chunks []Chunk, vectors [][]float32) error
	Search(ctx context.Context, courseID uint, queryVector []float32, topK int, typeFilter *models.MaterialType) ([]ScoredChunk, error)
	DeleteMaterial(ctx context.Context, materialID uint) error
	DeleteCourse(ctx context.Context, courseID uint) error

	// Reconcile diffs index contents against the authoritative material id
	// set, deletes orphaned points, and reports materials that still need
	// indexing. Idempotent and safe to re-trigger.
	Reconcile(ctx context.Context, courseID uint, authoritative map[uint]bool) (*ReconcileReport, error)

	Enabled() bool
}

// pointNamespace makes point ids deterministic per (material, chunk), which
// keeps Upsert idempotent at the storage layer too.
var pointNamespace = uuid.MustParse("8f3c6f44-2b1d-4f53-9a91-5f6f7f1f2ab0")

func pointID(materialID uint, chunkIndex int) string {
	name := fmt.Sprintf("material:%d:chunk:%d", materialID, chunkIndex)
	return uuid.NewSHA1(pointNamespace, []byte(name)).String()
}

type qdrantIndex struct {
	log        *slog.Logger
	client     qdrant.Client
	collection string
	dimensions int
}

type IndexConfig struct {
	Collection string
	Dimensions int
}

func NewQdrantIndex(ctx context.Context, log *slog.Logger, client qdrant.Client, cfg IndexConfig) (Index, error) {
	if log == nil {
		return nil, fmt.Errorf("logger required")
	}
	if client == nil {
		return nil, fmt.Errorf("qdrant client required")
	}
	if cfg.Collection == "" {
		cfg.Collection = "course_materials"
	}
	if cfg.Dimensions <= 0 {
		return nil, fmt.Errorf("vector dimensions required")
	}

	if err := client.EnsureCollection(ctx, cfg.Collection, cfg.Dimensions); err != nil {
		return nil, fmt.Errorf("ensure collection: %w", err)
	}

	return &qdrantIndex{
		log:        log.With("component", "VectorIndex"),
		client:     client,
		collection: cfg.Collection,
		dimensions: cfg.Dimensions,
	}, nil
}

func (ix *qdrantIndex) Enabled() bool { return true }

func (ix *qdrantIndex) Upsert(ctx context.Context, material *models.CourseMaterial, chunks []Chunk, vectors [][]float32) error {
	if len(chunks) != len(vectors) {
		return fmt.Errorf("chunk/vector count mismatch: %d vs %d", len(chunks), len(vectors))
	}

	// Old points go first so re-index never patches, it regenerates. If we
	// are interrupted between delete and insert, reconcile repairs it.
	if err := ix.DeleteMaterial(ctx, material.ID); err != nil {
		return fmt.Errorf("delete existing points: %w", err)
	}

	points := make([]qdrant.Point, 0, len(chunks))
	for i, chunk := range chunks {
		if len(vectors[i]) != ix.dimensions {
			return fmt.Errorf("vector %d has %d dimensions, collection expects %d", i, len(vectors[i]), ix.dimensions)
		}
		points = append(points, qdrant.Point{
			ID:     pointID(material.ID, chunk.Index),
			Vector: vectors[i],
			Payload: map[string]any{
				"material_id": material.ID,
				"course_id":   material.CourseID,
				"type":        string(material.Type),
				"chunk_index": chunk.Index,
				"text":        chunk.Text,
				"start":       chunk.Start,
				"end":         chunk.End,
			},
		})
	}

	if err := ix.client.UpsertPoints(ctx, ix.collection, points); err != nil {
		return fmt.Errorf("upsert points: %w", err)
	}

	ix.log.Debug("Indexed material chunks",
		"material_id", material.ID,
		"course_id", material.CourseID,
		"points", len(points))
	return nil
}

func (ix *qdrantIndex) Search(ctx context.Context, courseID uint, queryVector []float32, topK int, typeFilter *models.MaterialType) ([]ScoredChunk, error) {
	if topK <= 0 {
		topK = 10
	}

	filter := qdrant.Filter{
		Must: []qdrant.Condition{qdrant.MatchField("course_id", courseID)},
	}
	if typeFilter != nil {
		filter.Must = append(filter.Must, qdrant.MatchField("type", string(*typeFilter)))
	}

	hits, err := ix.client.Search(ctx, ix.collection, qdrant.SearchRequest{
		Vector:      queryVector,
		Limit:       topK,
		Filter:      &filter,
		WithPayload: true,
	})
	if err != nil {
		return nil, fmt.Errorf("vector search: %w", err)
	}

	out := make([]ScoredChunk, 0, len(hits))
	for _, hit := range hits {
		out = append(out, ScoredChunk{
			Payload: payloadFromMap(hit.Payload),
			Score:   hit.Score,
			PointID: hit.ID,
		})
	}
	return out, nil
}

func (ix *qdrantIndex) DeleteMaterial(ctx context.Context, materialID uint) error {
	filter := qdrant.Filter{
		Must: []qdrant.Condition{qdrant.MatchField("material_id", materialID)},
	}
	return ix.client.DeletePoints(ctx, ix.collection, filter)
}

func (ix *qdrantIndex) DeleteCourse(ctx context.Context, courseID uint) error {
	filter := qdrant.Filter{
		Must: []qdrant.Condition{qdrant.MatchField("course_id", courseID)},
	}
	return ix.client.DeletePoints(ctx, ix.collection, filter)
}

func (ix *qdrantIndex) Reconcile(ctx context.Context, courseID uint, authoritative map[uint]bool) (*ReconcileReport, error) {
	indexed, err := ix.listMaterialIDs(ctx, courseID)
	if err != nil {
		return nil, fmt.Errorf("scroll index: %w", err)
	}

	report := &ReconcileReport{}

	for id := range indexed {
		if !authoritative[id] {
			if err := ix.DeleteMaterial(ctx, id); err != nil {
				return nil, fmt.Errorf("delete orphan %d: %w", id, err)
			}
			report.OrphansDeleted = append(report.OrphansDeleted, id)
		}
	}
	for id := range authoritative {
		if !indexed[id] {
			report.MissingFromIdx = append(report.MissingFromIdx, id)
		}
	}

	sort.Slice(report.OrphansDeleted, func(i, j int) bool { return report.OrphansDeleted[i] < report.OrphansDeleted[j] })
	sort.Slice(report.MissingFromIdx, func(i, j int) bool { return report.MissingFromIdx[i] < report.MissingFromIdx[j] })

	ix.log.Info("Reconciled vector index",
		"course_id", courseID,
		"orphans_deleted", len(report.OrphansDeleted),
		"missing_from_index", len(report.MissingFromIdx))
	return report, nil
}

func (ix *qdrantIndex) listMaterialIDs(ctx context.Context, courseID uint) (map[uint]bool, error) {
	filter := qdrant.Filter{
		Must: []qdrant.Condition{qdrant.MatchField("course_id", courseID)},
	}

	ids := make(map[uint]bool)
	var offset *string
	for {
		page, err := ix.client.Scroll(ctx, ix.collection, qdrant.ScrollRequest{
			Filter:      &filter,
			Limit:       256,
			Offset:      offset,
			WithPayload: true,
		})
		if err != nil {
			return nil, err
		}
		for _, p := range page.Points {
			payload := payloadFromMap(p.Payload)
			if payload.MaterialID != 0 {
				ids[payload.MaterialID] = true
			}
		}
		if page.NextOffset == nil || len(page.Points) == 0 {
			break
		}
		offset = page.NextOffset
	}
	return ids, nil
}

// payloadFromMap tolerates JSON number decoding (float64) for integral
// fields.
func payloadFromMap(m map[string]any) Payload {
	p := Payload{}
	p.MaterialID = uint(asFloat(m["material_id"]))
	p.CourseID = uint(asFloat(m["course_id"]))
	p.ChunkIndex = int(asFloat(m["chunk_index"]))
	p.Start = int(asFloat(m["start"]))
	p.End = int(asFloat(m["end"]))
	if s, ok := m["type"].(string); ok {
		p.Type = models.MaterialType(s)
	}
	if s, ok := m["text"].(string); ok {
		p.Text = s
	}
	return p
}

func asFloat(v any) float64 {
	switch n := v.(type) {
	case float64:
		return n
	case float32:
		return float64(n)
	case int:
		return float64(n)
	case int64:
		return float64(n)
	case uint:
		return float64(n)
	default:
		return 0
	}
}
