package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"time"

	"gorm.io/datatypes"

	"github.com/examforge/papergen-service/internal/cache"
	"github.com/examforge/papergen-service/internal/clients/embedding"
	"github.com/examforge/papergen-service/internal/docparse"
	"github.com/examforge/papergen-service/internal/events"
	"github.com/examforge/papergen-service/internal/models"
	"github.com/examforge/papergen-service/internal/repositories"
	"github.com/examforge/papergen-service/internal/storage"
	"github.com/examforge/papergen-service/internal/validator"
	"github.com/examforge/papergen-service/internal/vector"
)

const materialKeyPrefix = "materials"

type materialService struct {
	repo      repositories.Repository
	validator *validator.Validator
	store     storage.FileStore
	embedder  embedding.Client
	index     vector.Index
	cache     *cache.CacheManager
	events    events.EventPublisher
	logger    *slog.Logger

	chunkSize    int
	chunkOverlap int
}

func NewMaterialService(
	repo repositories.Repository,
	v *validator.Validator,
	store storage.FileStore,
	embedder embedding.Client,
	index vector.Index,
	cacheManager *cache.CacheManager,
	publisher events.EventPublisher,
	logger *slog.Logger,
	chunkSize, chunkOverlap int,
) MaterialService {
	if chunkSize <= 0 {
		chunkSize = vector.DefaultChunkSize
	}
	if chunkOverlap < 0 {
		chunkOverlap = vector.DefaultOverlap
	}
	return &materialService{
		repo:         repo,
		validator:    v,
		store:        store,
		embedder:     embedder,
		index:        index,
		cache:        cacheManager,
		events:       publisher,
		logger:       logger,
		chunkSize:    chunkSize,
		chunkOverlap: chunkOverlap,
	}
}

func (s *materialService) Upload(ctx context.Context, req *CreateMaterialRequest, file *UploadedFile, userID string) (*MaterialResponse, error) {
	if errs := s.validator.ValidateMaterialCreate(req); errs.HasErrors() {
		return nil, NewValidationError("material validation failed", errs)
	}
	if file == nil || file.Filename == "" {
		return nil, NewValidationError("file is required", nil)
	}
	if !docparse.SupportedExtension(file.Filename) {
		return nil, NewUnsupportedFileError(file.Filename)
	}

	course, err := s.authorizeCourse(ctx, req.CourseID, userID)
	if err != nil {
		return nil, err
	}

	user, err := s.repo.User().GetByIDWithPlan(ctx, nil, userID)
	if err != nil {
		if repositories.IsNotFoundError(err) {
			return nil, &ServiceError{Code: CodeNotFound, Message: fmt.Sprintf("user %s not found", userID)}
		}
		return nil, fmt.Errorf("load user: %w", err)
	}
	if limit := user.Plan.MaxUploadBytes; limit > 0 && int64(len(file.Data)) > limit {
		return nil, NewFileTooLargeError(int64(len(file.Data)), limit)
	}

	content, err := docparse.Extract(file.Filename, file.Data)
	if err != nil {
		switch {
		case errors.Is(err, docparse.ErrUnsupportedFile):
			return nil, NewUnsupportedFileError(file.Filename)
		case errors.Is(err, docparse.ErrNoExtractableText):
			return nil, NewNoExtractableTextError(file.Filename, err)
		default:
			return nil, NewNoExtractableTextError(file.Filename, err)
		}
	}

	fileKey := storage.GenerateKey(materialKeyPrefix, file.Filename)
	if err := s.store.Put(ctx, fileKey, file.Data, storage.ContentType(file.Filename)); err != nil {
		return nil, NewUpstreamError("file storage", err)
	}

	material := &models.CourseMaterial{
		CourseID:    course.ID,
		Title:       req.Title,
		Description: req.Description,
		Type:        req.Type,
		Content:     content,
		Year:        req.Year,
		StyleNotes:  req.StyleNotes,
		FileKey:     fileKey,
		CreatedBy:   userID,
	}
	if len(req.Weightings) > 0 {
		raw, err := json.Marshal(req.Weightings)
		if err != nil {
			return nil, fmt.Errorf("marshal weightings: %w", err)
		}
		material.Weightings = datatypes.JSON(raw)
	}

	if err := s.repo.Material().Create(ctx, nil, material); err != nil {
		return nil, fmt.Errorf("create material: %w", err)
	}

	// Indexing failure is not fatal: the material stays pending and reconcile
	// picks it up later.
	chunks := s.indexMaterial(ctx, material)

	cache.InvalidateCourseCache(ctx, s.cache, course.ID)

	if material.IndexedAt != nil {
		event := events.NewEvent(events.TopicMaterialIndexed, events.MaterialIndexedEvent{
			MaterialID: material.ID,
			CourseID:   course.ID,
			Chunks:     chunks,
			UploadedBy: userID,
		})
		if err := s.events.Publish(ctx, events.TopicMaterialIndexed, event); err != nil {
			s.logger.Warn("Failed to publish material indexed event",
				"error", err, "material_id", material.ID)
		}
	}

	s.logger.Info("Material uploaded",
		"material_id", material.ID,
		"course_id", course.ID,
		"type", material.Type,
		"indexed", material.IndexedAt != nil)

	return &MaterialResponse{CourseMaterial: material, Indexed: material.IndexedAt != nil}, nil
}

// indexMaterial chunks, embeds and upserts the material's content, then marks
// it indexed. On any failure it leaves IndexedAt nil and returns 0.
func (s *materialService) indexMaterial(ctx context.Context, material *models.CourseMaterial) int {
	if !s.index.Enabled() || s.embedder == nil {
		return 0
	}

	chunks := vector.SplitIntoChunks(material.Content, s.chunkSize, s.chunkOverlap)
	if len(chunks) == 0 {
		return 0
	}

	texts := make([]string, len(chunks))
	for i, c := range chunks {
		texts[i] = c.Text
	}

	vectors, err := s.embedder.Embed(ctx, texts, embedding.ModePassage)
	if err != nil {
		s.logger.Warn("Embedding failed, material left pending index",
			"error", err, "material_id", material.ID)
		return 0
	}

	if err := s.index.Upsert(ctx, material, chunks, vectors); err != nil {
		s.logger.Warn("Index upsert failed, material left pending index",
			"error", err, "material_id", material.ID)
		return 0
	}

	now := time.Now().UTC()
	if err := s.repo.Material().MarkIndexed(ctx, nil, material.ID, &now); err != nil {
		s.logger.Error("Failed to mark material indexed",
			"error", err, "material_id", material.ID)
		return 0
	}
	material.IndexedAt = &now

	return len(chunks)
}

func (s *materialService) GetByID(ctx context.Context, id uint, userID string) (*MaterialResponse, error) {
	material, err := s.getAuthorized(ctx, id, userID)
	if err != nil {
		return nil, err
	}
	return &MaterialResponse{CourseMaterial: material, Indexed: material.IndexedAt != nil}, nil
}

func (s *materialService) Update(ctx context.Context, id uint, req *UpdateMaterialRequest, userID string) (*MaterialResponse, error) {
	if errs := s.validator.Validate(req); errs.HasErrors() {
		return nil, NewValidationError("material validation failed", errs)
	}

	material, err := s.getAuthorized(ctx, id, userID)
	if err != nil {
		return nil, err
	}

	if req.Title != nil {
		material.Title = *req.Title
	}
	if req.Description != nil {
		material.Description = req.Description
	}
	if req.Year != nil {
		material.Year = req.Year
	}
	if req.StyleNotes != nil {
		material.StyleNotes = req.StyleNotes
	}

	// Metadata lives in the index payload too, so any change re-indexes.
	if req.Weightings != nil {
		raw, err := json.Marshal(req.Weightings)
		if err != nil {
			return nil, fmt.Errorf("marshal weightings: %w", err)
		}
		material.Weightings = datatypes.JSON(raw)
	}

	material.IndexedAt = nil
	if err := s.repo.Material().Update(ctx, nil, material); err != nil {
		return nil, fmt.Errorf("update material: %w", err)
	}

	s.indexMaterial(ctx, material)
	cache.InvalidateCourseCache(ctx, s.cache, material.CourseID)

	return &MaterialResponse{CourseMaterial: material, Indexed: material.IndexedAt != nil}, nil
}

func (s *materialService) Delete(ctx context.Context, id uint, userID string) error {
	material, err := s.getAuthorized(ctx, id, userID)
	if err != nil {
		return err
	}

	// Index points first: a leftover record is repairable by reconcile, a
	// leftover point serving deleted content is not acceptable.
	if s.index.Enabled() {
		if err := s.index.DeleteMaterial(ctx, material.ID); err != nil {
			return NewUpstreamError("vector index", err)
		}
	}

	if err := s.repo.Material().Delete(ctx, nil, material.ID); err != nil {
		return fmt.Errorf("delete material: %w", err)
	}

	if material.FileKey != "" {
		if err := s.store.Delete(ctx, material.FileKey); err != nil {
			s.logger.Warn("Failed to delete stored file",
				"error", err, "file_key", material.FileKey)
		}
	}

	cache.InvalidateCourseCache(ctx, s.cache, material.CourseID)

	s.logger.Info("Material deleted", "material_id", material.ID, "course_id", material.CourseID)
	return nil
}

func (s *materialService) ListByCourse(ctx context.Context, courseID uint, filters repositories.MaterialFilters, userID string) (*MaterialListResponse, error) {
	if _, err := s.authorizeCourse(ctx, courseID, userID); err != nil {
		return nil, err
	}

	materials, total, err := s.repo.Material().GetByCourse(ctx, nil, courseID, filters)
	if err != nil {
		return nil, fmt.Errorf("list materials: %w", err)
	}

	out := make([]*MaterialResponse, 0, len(materials))
	for _, m := range materials {
		out = append(out, &MaterialResponse{CourseMaterial: m, Indexed: m.IndexedAt != nil})
	}
	return &MaterialListResponse{Materials: out, Total: total}, nil
}

func (s *materialService) Reconcile(ctx context.Context, courseID uint, userID string) (*ReconcileResponse, error) {
	if _, err := s.authorizeCourse(ctx, courseID, userID); err != nil {
		return nil, err
	}
	if !s.index.Enabled() {
		return nil, NewUpstreamError("vector index", fmt.Errorf("indexing disabled"))
	}

	materials, _, err := s.repo.Material().GetByCourse(ctx, nil, courseID, repositories.MaterialFilters{})
	if err != nil {
		return nil, fmt.Errorf("list materials: %w", err)
	}

	authoritative := make(map[uint]bool, len(materials))
	byID := make(map[uint]*models.CourseMaterial, len(materials))
	for _, m := range materials {
		authoritative[m.ID] = true
		byID[m.ID] = m
	}

	report, err := s.index.Reconcile(ctx, courseID, authoritative)
	if err != nil {
		return nil, NewUpstreamError("vector index", err)
	}

	resp := &ReconcileResponse{
		CourseID:       courseID,
		OrphansDeleted: report.OrphansDeleted,
	}

	// Re-index everything the diff found missing plus anything still flagged
	// pending in the record store.
	toIndex := make(map[uint]bool, len(report.MissingFromIdx))
	for _, id := range report.MissingFromIdx {
		toIndex[id] = true
	}
	for _, m := range materials {
		if m.IndexedAt == nil {
			toIndex[m.ID] = true
		}
	}

	for id := range toIndex {
		m := byID[id]
		if m == nil {
			continue
		}
		if s.indexMaterial(ctx, m) > 0 || m.IndexedAt != nil {
			resp.Reindexed = append(resp.Reindexed, id)
		} else {
			resp.StillPending = append(resp.StillPending, id)
		}
	}
	sortUints(resp.OrphansDeleted)
	sortUints(resp.Reindexed)
	sortUints(resp.StillPending)

	cache.InvalidateCourseCache(ctx, s.cache, courseID)

	event := events.NewEvent(events.TopicIndexReconciled, events.IndexReconciledEvent{
		CourseID:       courseID,
		OrphansDeleted: len(resp.OrphansDeleted),
		Reindexed:      len(resp.Reindexed),
	})
	if err := s.events.Publish(ctx, events.TopicIndexReconciled, event); err != nil {
		s.logger.Warn("Failed to publish reconcile event", "error", err, "course_id", courseID)
	}

	return resp, nil
}

// authorizeCourse loads the course and checks the caller owns it.
func (s *materialService) authorizeCourse(ctx context.Context, courseID uint, userID string) (*models.Course, error) {
	course, err := s.repo.Course().GetByID(ctx, nil, courseID)
	if err != nil {
		if repositories.IsNotFoundError(err) {
			return nil, NewNotFoundError("course", courseID)
		}
		return nil, fmt.Errorf("load course: %w", err)
	}
	if course.CreatedBy != userID {
		return nil, NewPermissionError(userID, "course", courseID, "not the course owner")
	}
	return course, nil
}

func (s *materialService) getAuthorized(ctx context.Context, id uint, userID string) (*models.CourseMaterial, error) {
	material, err := s.repo.Material().GetByID(ctx, nil, id)
	if err != nil {
		if repositories.IsNotFoundError(err) {
			return nil, NewNotFoundError("material", id)
		}
		return nil, fmt.Errorf("load material: %w", err)
	}
	if _, err := s.authorizeCourse(ctx, material.CourseID, userID); err != nil {
		return nil, err
	}
	return material, nil
}

func sortUints(s []uint) {
	sort.Slice(s, func(i, j int) bool { return s[i] < s[j] })
}
