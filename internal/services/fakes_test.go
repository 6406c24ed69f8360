package services

import (
	"context"
	"crypto/sha256"
	"encoding/binary"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"time"

	"gorm.io/gorm"

	"github.com/examforge/papergen-service/internal/clients/embedding"
	"github.com/examforge/papergen-service/internal/clients/llm"
	"github.com/examforge/papergen-service/internal/models"
	"github.com/examforge/papergen-service/internal/repositories"
	"github.com/examforge/papergen-service/internal/vector"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// ===== in-memory repository =====

type fakeRepo struct {
	mu sync.Mutex

	courses     map[uint]*models.Course
	materials   map[uint]*models.CourseMaterial
	requests    map[uint]*models.PaperRequest
	variants    map[uint]*models.PaperVariant
	submissions map[uint]*models.PaperSubmission
	results     map[uint]*models.GradingResult
	users       map[string]*models.User
	plans       map[uint]*models.Plan

	nextID uint
}

func newFakeRepo() *fakeRepo {
	return &fakeRepo{
		courses:     map[uint]*models.Course{},
		materials:   map[uint]*models.CourseMaterial{},
		requests:    map[uint]*models.PaperRequest{},
		variants:    map[uint]*models.PaperVariant{},
		submissions: map[uint]*models.PaperSubmission{},
		results:     map[uint]*models.GradingResult{},
		users:       map[string]*models.User{},
		plans:       map[uint]*models.Plan{},
	}
}

func (r *fakeRepo) id() uint {
	r.nextID++
	return r.nextID
}

func (r *fakeRepo) addUser(id string, plan models.Plan) *models.User {
	r.mu.Lock()
	defer r.mu.Unlock()
	if plan.ID == 0 {
		plan.ID = r.id()
	}
	r.plans[plan.ID] = &plan
	u := &models.User{ID: id, FullName: "Test Teacher", Email: id + "@example.edu", Role: models.RoleTeacher, PlanID: plan.ID, Plan: plan}
	r.users[id] = u
	return u
}

func (r *fakeRepo) addCourse(c models.Course) *models.Course {
	r.mu.Lock()
	defer r.mu.Unlock()
	if c.ID == 0 {
		c.ID = r.id()
	}
	if c.Language == "" {
		c.Language = "English"
	}
	r.courses[c.ID] = &c
	return &c
}

func (r *fakeRepo) Course() repositories.CourseRepository               { return (*fakeCourseRepo)(r) }
func (r *fakeRepo) Material() repositories.MaterialRepository           { return (*fakeMaterialRepo)(r) }
func (r *fakeRepo) PaperRequest() repositories.PaperRequestRepository   { return (*fakeRequestRepo)(r) }
func (r *fakeRepo) PaperVariant() repositories.PaperVariantRepository   { return (*fakeVariantRepo)(r) }
func (r *fakeRepo) Submission() repositories.SubmissionRepository       { return (*fakeSubmissionRepo)(r) }
func (r *fakeRepo) GradingResult() repositories.GradingResultRepository { return (*fakeResultRepo)(r) }
func (r *fakeRepo) User() repositories.UserRepository                   { return (*fakeUserRepo)(r) }
func (r *fakeRepo) Plan() repositories.PlanRepository                   { return (*fakePlanRepo)(r) }

func (r *fakeRepo) WithTransaction(ctx context.Context, fn func(tx *gorm.DB) error) error {
	return fn(nil)
}
func (r *fakeRepo) Ping(ctx context.Context) error { return nil }
func (r *fakeRepo) Close() error                   { return nil }

type fakeCourseRepo fakeRepo

func (r *fakeCourseRepo) GetByID(ctx context.Context, tx *gorm.DB, id uint) (*models.Course, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if c, ok := r.courses[id]; ok {
		cp := *c
		return &cp, nil
	}
	return nil, gorm.ErrRecordNotFound
}

func (r *fakeCourseRepo) Create(ctx context.Context, tx *gorm.DB, course *models.Course) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if course.ID == 0 {
		course.ID = (*fakeRepo)(r).id()
	}
	cp := *course
	r.courses[course.ID] = &cp
	return nil
}

type fakeMaterialRepo fakeRepo

func (r *fakeMaterialRepo) Create(ctx context.Context, tx *gorm.DB, m *models.CourseMaterial) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if m.ID == 0 {
		m.ID = (*fakeRepo)(r).id()
	}
	m.CreatedAt = time.Now().UTC()
	cp := *m
	r.materials[m.ID] = &cp
	return nil
}

func (r *fakeMaterialRepo) GetByID(ctx context.Context, tx *gorm.DB, id uint) (*models.CourseMaterial, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if m, ok := r.materials[id]; ok {
		cp := *m
		return &cp, nil
	}
	return nil, gorm.ErrRecordNotFound
}

func (r *fakeMaterialRepo) Update(ctx context.Context, tx *gorm.DB, m *models.CourseMaterial) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.materials[m.ID]; !ok {
		return gorm.ErrRecordNotFound
	}
	cp := *m
	r.materials[m.ID] = &cp
	return nil
}

func (r *fakeMaterialRepo) Delete(ctx context.Context, tx *gorm.DB, id uint) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.materials, id)
	return nil
}

func (r *fakeMaterialRepo) GetByCourse(ctx context.Context, tx *gorm.DB, courseID uint, filters repositories.MaterialFilters) ([]*models.CourseMaterial, int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*models.CourseMaterial
	for _, m := range r.materials {
		if m.CourseID != courseID {
			continue
		}
		if filters.Type != nil && m.Type != *filters.Type {
			continue
		}
		cp := *m
		out = append(out, &cp)
	}
	return out, int64(len(out)), nil
}

func (r *fakeMaterialRepo) GetPendingIndex(ctx context.Context, tx *gorm.DB, courseID uint) ([]*models.CourseMaterial, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*models.CourseMaterial
	for _, m := range r.materials {
		if m.CourseID == courseID && m.IndexedAt == nil {
			cp := *m
			out = append(out, &cp)
		}
	}
	return out, nil
}

func (r *fakeMaterialRepo) MarkIndexed(ctx context.Context, tx *gorm.DB, id uint, indexedAt *time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	m, ok := r.materials[id]
	if !ok {
		return gorm.ErrRecordNotFound
	}
	m.IndexedAt = indexedAt
	return nil
}

func (r *fakeMaterialRepo) GetIndexStats(ctx context.Context, tx *gorm.DB, courseID uint) (*repositories.CourseIndexStats, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	stats := &repositories.CourseIndexStats{}
	for _, m := range r.materials {
		if m.CourseID != courseID {
			continue
		}
		stats.MaterialCount++
		if m.IndexedAt != nil {
			stats.IndexedCount++
		} else {
			stats.PendingCount++
		}
	}
	return stats, nil
}

type fakeRequestRepo fakeRepo

func (r *fakeRequestRepo) Create(ctx context.Context, tx *gorm.DB, req *models.PaperRequest) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if req.ID == 0 {
		req.ID = (*fakeRepo)(r).id()
	}
	if req.CreatedAt.IsZero() {
		req.CreatedAt = time.Now().UTC()
	}
	cp := *req
	r.requests[req.ID] = &cp
	return nil
}

func (r *fakeRequestRepo) GetByID(ctx context.Context, tx *gorm.DB, id uint) (*models.PaperRequest, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if req, ok := r.requests[id]; ok {
		cp := *req
		return &cp, nil
	}
	return nil, gorm.ErrRecordNotFound
}

func (r *fakeRequestRepo) GetByIDWithVariants(ctx context.Context, tx *gorm.DB, id uint) (*models.PaperRequest, error) {
	req, err := r.GetByID(ctx, tx, id)
	if err != nil {
		return nil, err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, v := range r.variants {
		if v.RequestID == id {
			req.Variants = append(req.Variants, *v)
		}
	}
	return req, nil
}

func (r *fakeRequestRepo) Update(ctx context.Context, tx *gorm.DB, req *models.PaperRequest) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.requests[req.ID]; !ok {
		return gorm.ErrRecordNotFound
	}
	cp := *req
	r.requests[req.ID] = &cp
	return nil
}

func (r *fakeRequestRepo) List(ctx context.Context, tx *gorm.DB, filters repositories.PaperRequestFilters) ([]*models.PaperRequest, int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*models.PaperRequest
	for _, req := range r.requests {
		if filters.UserID != nil && req.UserID != *filters.UserID {
			continue
		}
		if filters.CourseID != nil && req.CourseID != *filters.CourseID {
			continue
		}
		if filters.Status != nil && req.Status != *filters.Status {
			continue
		}
		cp := *req
		out = append(out, &cp)
	}
	return out, int64(len(out)), nil
}

func (r *fakeRequestRepo) CountInPeriod(ctx context.Context, tx *gorm.DB, userID string, from, to time.Time) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var n int64
	for _, req := range r.requests {
		if req.UserID != userID {
			continue
		}
		if !req.CreatedAt.Before(from) && req.CreatedAt.Before(to) {
			n++
		}
	}
	return n, nil
}

func (r *fakeRequestRepo) GetGenerationStats(ctx context.Context, tx *gorm.DB, courseID uint) (*repositories.GenerationStats, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	stats := &repositories.GenerationStats{}
	for _, req := range r.requests {
		if req.CourseID != courseID {
			continue
		}
		stats.TotalRequests++
		switch req.Status {
		case models.PaperGenerated:
			stats.Generated++
		case models.PaperFailed:
			stats.Failed++
		}
	}
	return stats, nil
}

type fakeVariantRepo fakeRepo

func (r *fakeVariantRepo) CreateBatch(ctx context.Context, tx *gorm.DB, variants []*models.PaperVariant) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, v := range variants {
		if v.ID == 0 {
			v.ID = (*fakeRepo)(r).id()
		}
		v.CreatedAt = time.Now().UTC()
		cp := *v
		r.variants[v.ID] = &cp
	}
	return nil
}

func (r *fakeVariantRepo) GetByID(ctx context.Context, tx *gorm.DB, id uint) (*models.PaperVariant, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if v, ok := r.variants[id]; ok {
		cp := *v
		return &cp, nil
	}
	return nil, gorm.ErrRecordNotFound
}

func (r *fakeVariantRepo) GetByRequest(ctx context.Context, tx *gorm.DB, requestID uint) ([]*models.PaperVariant, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*models.PaperVariant
	for _, v := range r.variants {
		if v.RequestID == requestID {
			cp := *v
			out = append(out, &cp)
		}
	}
	return out, nil
}

type fakeSubmissionRepo fakeRepo

func (r *fakeSubmissionRepo) Create(ctx context.Context, tx *gorm.DB, s *models.PaperSubmission) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if s.ID == 0 {
		s.ID = (*fakeRepo)(r).id()
	}
	s.CreatedAt = time.Now().UTC()
	cp := *s
	r.submissions[s.ID] = &cp
	return nil
}

func (r *fakeSubmissionRepo) GetByID(ctx context.Context, tx *gorm.DB, id uint) (*models.PaperSubmission, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if s, ok := r.submissions[id]; ok {
		cp := *s
		return &cp, nil
	}
	return nil, gorm.ErrRecordNotFound
}

func (r *fakeSubmissionRepo) GetByIDWithResult(ctx context.Context, tx *gorm.DB, id uint) (*models.PaperSubmission, error) {
	s, err := r.GetByID(ctx, tx, id)
	if err != nil {
		return nil, err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, res := range r.results {
		if res.SubmissionID == id {
			cp := *res
			s.Result = &cp
			break
		}
	}
	return s, nil
}

func (r *fakeSubmissionRepo) Update(ctx context.Context, tx *gorm.DB, s *models.PaperSubmission) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.submissions[s.ID]; !ok {
		return gorm.ErrRecordNotFound
	}
	cp := *s
	r.submissions[s.ID] = &cp
	return nil
}

func (r *fakeSubmissionRepo) GetByVariant(ctx context.Context, tx *gorm.DB, variantID uint, filters repositories.SubmissionFilters) ([]*models.PaperSubmission, int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*models.PaperSubmission
	for _, s := range r.submissions {
		if s.VariantID != variantID {
			continue
		}
		if filters.Status != nil && s.Status != *filters.Status {
			continue
		}
		if filters.StudentID != nil && s.StudentID != *filters.StudentID {
			continue
		}
		cp := *s
		out = append(out, &cp)
	}
	return out, int64(len(out)), nil
}

type fakeResultRepo fakeRepo

func (r *fakeResultRepo) Create(ctx context.Context, tx *gorm.DB, res *models.GradingResult) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if res.ID == 0 {
		res.ID = (*fakeRepo)(r).id()
	}
	res.CreatedAt = time.Now().UTC()
	cp := *res
	r.results[res.ID] = &cp
	return nil
}

func (r *fakeResultRepo) GetBySubmission(ctx context.Context, tx *gorm.DB, submissionID uint) (*models.GradingResult, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, res := range r.results {
		if res.SubmissionID == submissionID {
			cp := *res
			return &cp, nil
		}
	}
	return nil, gorm.ErrRecordNotFound
}

type fakeUserRepo fakeRepo

func (r *fakeUserRepo) GetByID(ctx context.Context, tx *gorm.DB, id string) (*models.User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if u, ok := r.users[id]; ok {
		cp := *u
		return &cp, nil
	}
	return nil, gorm.ErrRecordNotFound
}

func (r *fakeUserRepo) GetByIDWithPlan(ctx context.Context, tx *gorm.DB, id string) (*models.User, error) {
	u, err := r.GetByID(ctx, tx, id)
	if err != nil {
		return nil, err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if p, ok := r.plans[u.PlanID]; ok {
		u.Plan = *p
	}
	return u, nil
}

type fakePlanRepo fakeRepo

func (r *fakePlanRepo) GetByID(ctx context.Context, tx *gorm.DB, id uint) (*models.Plan, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if p, ok := r.plans[id]; ok {
		cp := *p
		return &cp, nil
	}
	return nil, gorm.ErrRecordNotFound
}

// ===== deterministic embedder =====

type fakeEmbedder struct {
	dims int
}

func newFakeEmbedder(dims int) *fakeEmbedder {
	return &fakeEmbedder{dims: dims}
}

func (e *fakeEmbedder) Dimensions() int { return e.dims }

// Embed hashes the text into a repeatable pseudo-vector, so identical inputs
// always land on identical points.
func (e *fakeEmbedder) Embed(ctx context.Context, texts []string, mode embedding.Mode) ([][]float32, error) {
	out := make([][]float32, len(texts))
	for i, t := range texts {
		sum := sha256.Sum256([]byte(string(mode) + ":" + t))
		vec := make([]float32, e.dims)
		for d := 0; d < e.dims; d++ {
			b := binary.BigEndian.Uint32(sum[(d*4)%28 : (d*4)%28+4])
			vec[d] = float32(b%1000)/1000.0 - 0.5
		}
		out[i] = vec
	}
	return out, nil
}

// ===== scripted model client =====

type fakeModel struct {
	mu        sync.Mutex
	responses []json.RawMessage
	err       error
	requests  []llm.Request
}

func newFakeModel(responses ...string) *fakeModel {
	m := &fakeModel{}
	for _, r := range responses {
		m.responses = append(m.responses, json.RawMessage(r))
	}
	return m
}

func (m *fakeModel) GenerateJSON(ctx context.Context, req llm.Request) (json.RawMessage, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.requests = append(m.requests, req)
	if m.err != nil {
		return nil, m.err
	}
	if len(m.responses) == 0 {
		return nil, fmt.Errorf("no scripted response left")
	}
	resp := m.responses[0]
	if len(m.responses) > 1 {
		m.responses = m.responses[1:]
	}
	return resp, nil
}

// ===== in-memory vector index =====

type memIndexEntry struct {
	material models.CourseMaterial
	chunks   []vector.Chunk
}

type memIndex struct {
	mu      sync.Mutex
	entries map[uint]*memIndexEntry
}

func newMemIndex() *memIndex {
	return &memIndex{entries: map[uint]*memIndexEntry{}}
}

func (ix *memIndex) Enabled() bool { return true }

func (ix *memIndex) Upsert(ctx context.Context, material *models.CourseMaterial, chunks []vector.Chunk, vectors [][]float32) error {
	if len(chunks) != len(vectors) {
		return fmt.Errorf("chunk/vector count mismatch")
	}
	ix.mu.Lock()
	defer ix.mu.Unlock()
	ix.entries[material.ID] = &memIndexEntry{material: *material, chunks: chunks}
	return nil
}

func (ix *memIndex) Search(ctx context.Context, courseID uint, queryVector []float32, topK int, typeFilter *models.MaterialType) ([]vector.ScoredChunk, error) {
	ix.mu.Lock()
	defer ix.mu.Unlock()
	var out []vector.ScoredChunk
	for _, e := range ix.entries {
		if e.material.CourseID != courseID {
			continue
		}
		if typeFilter != nil && e.material.Type != *typeFilter {
			continue
		}
		for _, c := range e.chunks {
			out = append(out, vector.ScoredChunk{
				Payload: vector.Payload{
					MaterialID: e.material.ID,
					CourseID:   e.material.CourseID,
					Type:       e.material.Type,
					ChunkIndex: c.Index,
					Text:       c.Text,
					Start:      c.Start,
					End:        c.End,
				},
				Score: 1.0 - float64(len(out))*0.01,
			})
		}
	}
	if topK > 0 && len(out) > topK {
		out = out[:topK]
	}
	return out, nil
}

func (ix *memIndex) DeleteMaterial(ctx context.Context, materialID uint) error {
	ix.mu.Lock()
	defer ix.mu.Unlock()
	delete(ix.entries, materialID)
	return nil
}

func (ix *memIndex) DeleteCourse(ctx context.Context, courseID uint) error {
	ix.mu.Lock()
	defer ix.mu.Unlock()
	for id, e := range ix.entries {
		if e.material.CourseID == courseID {
			delete(ix.entries, id)
		}
	}
	return nil
}

func (ix *memIndex) Reconcile(ctx context.Context, courseID uint, authoritative map[uint]bool) (*vector.ReconcileReport, error) {
	ix.mu.Lock()
	defer ix.mu.Unlock()
	report := &vector.ReconcileReport{}
	for id, e := range ix.entries {
		if e.material.CourseID != courseID {
			continue
		}
		if !authoritative[id] {
			delete(ix.entries, id)
			report.OrphansDeleted = append(report.OrphansDeleted, id)
		}
	}
	for id := range authoritative {
		if _, ok := ix.entries[id]; !ok {
			report.MissingFromIdx = append(report.MissingFromIdx, id)
		}
	}
	return report, nil
}

func (ix *memIndex) has(materialID uint) bool {
	ix.mu.Lock()
	defer ix.mu.Unlock()
	_, ok := ix.entries[materialID]
	return ok
}
