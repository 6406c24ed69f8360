package services

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/examforge/papergen-service/internal/cache"
	"github.com/examforge/papergen-service/internal/clients/embedding"
	"github.com/examforge/papergen-service/internal/clients/llm"
	"github.com/examforge/papergen-service/internal/events"
	"github.com/examforge/papergen-service/internal/repositories"
	"github.com/examforge/papergen-service/internal/storage"
	"github.com/examforge/papergen-service/internal/validator"
	"github.com/examforge/papergen-service/internal/vector"
)

// Dependencies carries everything the services need. The manager owns only
// wiring; each dependency is constructed and configured by the caller.
type Dependencies struct {
	Repository repositories.Repository
	Validator  *validator.Validator
	Cache      *cache.CacheManager
	Events     events.EventPublisher
	Store      storage.FileStore
	Index      vector.Index
	Embedder   embedding.Client
	Model      llm.Client
	Logger     *slog.Logger

	ChunkSize     int
	ChunkOverlap  int
	RetrievalTopK int
}

type serviceManager struct {
	deps Dependencies

	material   MaterialService
	retrieval  RetrievalService
	quota      QuotaService
	generation GenerationService
	grading    GradingService
	export     ExportService
}

func NewServiceManager(deps Dependencies) (ServiceManager, error) {
	if deps.Repository == nil {
		return nil, fmt.Errorf("repository required")
	}
	if deps.Validator == nil {
		return nil, fmt.Errorf("validator required")
	}
	if deps.Logger == nil {
		return nil, fmt.Errorf("logger required")
	}
	if deps.Index == nil {
		deps.Index = vector.NewNoopIndex()
	}
	if deps.Cache == nil {
		deps.Cache = cache.NewCacheManager(nil)
	}
	if deps.Events == nil {
		deps.Events = events.NewNoopEventPublisher()
	}
	if deps.Store == nil {
		deps.Store = storage.NewMemoryStore()
	}
	return &serviceManager{deps: deps}, nil
}

func (m *serviceManager) Initialize(ctx context.Context) error {
	log := m.deps.Logger

	m.quota = NewQuotaService(m.deps.Repository, log)
	m.retrieval = NewRetrievalService(m.deps.Repository, m.deps.Embedder, m.deps.Index, m.deps.Cache, log)
	m.material = NewMaterialService(
		m.deps.Repository,
		m.deps.Validator,
		m.deps.Store,
		m.deps.Embedder,
		m.deps.Index,
		m.deps.Cache,
		m.deps.Events,
		log,
		m.deps.ChunkSize,
		m.deps.ChunkOverlap,
	)
	m.generation = NewGenerationService(
		m.deps.Repository,
		m.deps.Validator,
		m.retrieval,
		m.quota,
		m.deps.Model,
		m.deps.Cache,
		m.deps.Events,
		log,
		m.deps.RetrievalTopK,
	)
	m.grading = NewGradingService(
		m.deps.Repository,
		m.deps.Validator,
		m.deps.Store,
		NewAnswerExtractor(),
		m.deps.Model,
		m.deps.Events,
		log,
	)
	m.export = NewExportService(m.deps.Repository, log)

	log.Info("Services initialized",
		"indexing_enabled", m.deps.Index.Enabled())
	return nil
}

func (m *serviceManager) Material() MaterialService     { return m.material }
func (m *serviceManager) Retrieval() RetrievalService   { return m.retrieval }
func (m *serviceManager) Quota() QuotaService           { return m.quota }
func (m *serviceManager) Generation() GenerationService { return m.generation }
func (m *serviceManager) Grading() GradingService       { return m.grading }
func (m *serviceManager) Export() ExportService         { return m.export }

func (m *serviceManager) HealthCheck(ctx context.Context) error {
	if err := m.deps.Repository.Ping(ctx); err != nil {
		return fmt.Errorf("database: %w", err)
	}
	// Cache is optional; report but do not fail
	if err := m.deps.Cache.HealthCheck(ctx); err != nil && err != cache.ErrCacheNotAvailable {
		m.deps.Logger.Warn("Cache health check failed", "error", err)
	}
	return nil
}

func (m *serviceManager) Shutdown(ctx context.Context) error {
	if err := m.deps.Events.Close(); err != nil {
		m.deps.Logger.Warn("Event publisher close failed", "error", err)
	}
	return m.deps.Repository.Close()
}
