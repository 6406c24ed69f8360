package services

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"

	"github.com/examforge/papergen-service/internal/cache"
	"github.com/examforge/papergen-service/internal/clients/embedding"
	"github.com/examforge/papergen-service/internal/models"
	"github.com/examforge/papergen-service/internal/repositories"
	"github.com/examforge/papergen-service/internal/vector"
)

const (
	// DefaultTopK bounds how many excerpts feed the generation prompt.
	DefaultTopK = 12

	// maxExcerptChars bounds each excerpt so a handful of long chunks cannot
	// crowd the prompt.
	maxExcerptChars = 900
)

type retrievalService struct {
	repo     repositories.Repository
	embedder embedding.Client
	index    vector.Index
	cache    *cache.CacheManager
	logger   *slog.Logger
}

func NewRetrievalService(repo repositories.Repository, embedder embedding.Client, index vector.Index, cacheManager *cache.CacheManager, logger *slog.Logger) RetrievalService {
	return &retrievalService{
		repo:     repo,
		embedder: embedder,
		index:    index,
		cache:    cacheManager,
		logger:   logger,
	}
}

func (s *retrievalService) Retrieve(ctx context.Context, courseID uint, examType string, topics []string, topK int) ([]Excerpt, error) {
	if topK <= 0 {
		topK = DefaultTopK
	}
	if s.embedder == nil || !s.index.Enabled() {
		return nil, NewUpstreamError("vector index", fmt.Errorf("indexing disabled"))
	}

	query := buildRetrievalQuery(examType, topics)
	cacheKey := retrievalCacheKey(courseID, query, topK)

	var cached []Excerpt
	if err := s.cache.Retrieval.Get(ctx, cacheKey, &cached); err == nil {
		return cached, nil
	}

	vectors, err := s.embedder.Embed(ctx, []string{query}, embedding.ModeQuery)
	if err != nil {
		return nil, NewUpstreamError("embedding service", err)
	}

	hits, err := s.index.Search(ctx, courseID, vectors[0], topK, nil)
	if err != nil {
		return nil, NewUpstreamError("vector index", err)
	}

	excerpts, err := s.buildExcerpts(ctx, hits)
	if err != nil {
		return nil, err
	}

	if err := s.cache.Retrieval.Set(ctx, cacheKey, excerpts, cache.RetrievalCacheConfig.TTL); err != nil {
		s.logger.Warn("Failed to cache retrieval results", "error", err, "course_id", courseID)
	}

	return excerpts, nil
}

// buildExcerpts joins hits with material metadata so every excerpt carries
// provenance the prompt can cite.
func (s *retrievalService) buildExcerpts(ctx context.Context, hits []vector.ScoredChunk) ([]Excerpt, error) {
	materials := make(map[uint]*models.CourseMaterial)

	out := make([]Excerpt, 0, len(hits))
	for _, hit := range hits {
		material, ok := materials[hit.MaterialID]
		if !ok {
			var err error
			material, err = s.repo.Material().GetByID(ctx, nil, hit.MaterialID)
			if err != nil {
				if repositories.IsNotFoundError(err) {
					// Orphaned point; reconcile will clean it up.
					s.logger.Warn("Search hit references deleted material",
						"material_id", hit.MaterialID)
					continue
				}
				return nil, fmt.Errorf("load material %d: %w", hit.MaterialID, err)
			}
			materials[hit.MaterialID] = material
		}

		text := hit.Text
		if len([]rune(text)) > maxExcerptChars {
			text = string([]rune(text)[:maxExcerptChars])
		}

		excerpt := Excerpt{
			ID:           fmt.Sprintf("m%d-c%d", hit.MaterialID, hit.ChunkIndex),
			MaterialID:   hit.MaterialID,
			MaterialType: material.Type,
			Title:        material.Title,
			Year:         material.Year,
			Text:         text,
			Score:        hit.Score,
		}
		if material.StyleNotes != nil {
			excerpt.StyleNotes = *material.StyleNotes
		}
		if len(material.Weightings) > 0 {
			var w map[string]int
			if err := json.Unmarshal(material.Weightings, &w); err == nil {
				excerpt.Weightings = w
			}
		}

		out = append(out, excerpt)
	}

	return out, nil
}

func buildRetrievalQuery(examType string, topics []string) string {
	parts := []string{strings.ToLower(examType) + " exam"}
	for _, t := range topics {
		if t = strings.TrimSpace(t); t != "" {
			parts = append(parts, t)
		}
	}
	return strings.Join(parts, ", ")
}

func retrievalCacheKey(courseID uint, query string, topK int) string {
	sum := sha256.Sum256([]byte(query))
	return fmt.Sprintf("course:%d:%s:%d", courseID, hex.EncodeToString(sum[:8]), topK)
}
