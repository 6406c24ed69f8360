package services

import (
	"context"
	"crypto/rand"
	"encoding/binary"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"gorm.io/datatypes"
	"gorm.io/gorm"

	"github.com/examforge/papergen-service/internal/cache"
	"github.com/examforge/papergen-service/internal/clients/llm"
	"github.com/examforge/papergen-service/internal/events"
	"github.com/examforge/papergen-service/internal/models"
	"github.com/examforge/papergen-service/internal/repositories"
	"github.com/examforge/papergen-service/internal/validator"
)

type generationService struct {
	repo      repositories.Repository
	validator *validator.Validator
	retrieval RetrievalService
	quota     QuotaService
	model     llm.Client
	cache     *cache.CacheManager
	events    events.EventPublisher
	logger    *slog.Logger

	retrievalTopK int
}

func NewGenerationService(
	repo repositories.Repository,
	v *validator.Validator,
	retrieval RetrievalService,
	quota QuotaService,
	model llm.Client,
	cacheManager *cache.CacheManager,
	publisher events.EventPublisher,
	logger *slog.Logger,
	retrievalTopK int,
) GenerationService {
	if retrievalTopK <= 0 {
		retrievalTopK = DefaultTopK
	}
	return &generationService{
		repo:          repo,
		validator:     v,
		retrieval:     retrieval,
		quota:         quota,
		model:         model,
		cache:         cacheManager,
		events:        publisher,
		logger:        logger,
		retrievalTopK: retrievalTopK,
	}
}

func (s *generationService) Generate(ctx context.Context, req *GeneratePaperRequest, userID string) (*PaperResponse, error) {
	if errs := s.validator.ValidatePaperGenerate(req); errs.HasErrors() {
		return nil, NewValidationError("paper request validation failed", errs)
	}

	course, err := s.repo.Course().GetByID(ctx, nil, req.CourseID)
	if err != nil {
		if repositories.IsNotFoundError(err) {
			return nil, NewNotFoundError("course", req.CourseID)
		}
		return nil, fmt.Errorf("load course: %w", err)
	}
	if course.CreatedBy != userID {
		return nil, NewPermissionError(userID, "course", course.ID, "not the course owner")
	}

	now := time.Now().UTC()
	plan, _, err := checkQuota(ctx, s.repo, userID, now)
	if err != nil {
		return nil, err
	}

	variants := req.Variants
	if variants <= 0 {
		variants = 1
	}
	if plan.MaxVariants > 0 && variants > plan.MaxVariants {
		s.logger.Info("Clamping variant count to plan limit",
			"requested", variants, "limit", plan.MaxVariants, "user_id", userID)
		variants = plan.MaxVariants
	}

	seed := int64(0)
	if req.Seed != nil {
		seed = *req.Seed
	} else {
		seed = randomSeed()
	}

	request, err := s.createRequestRecord(ctx, req, userID, seed)
	if err != nil {
		return nil, err
	}
	// The attempt is recorded; whatever happens next, quota moved.
	cache.InvalidateQuotaCache(ctx, s.cache, userID)

	built, genErr := s.generateVariants(ctx, course, req, seed, variants)
	if genErr != nil {
		s.failRequest(ctx, request, genErr)
		s.publishFailed(ctx, request, userID)
		return nil, genErr
	}

	for _, v := range built {
		v.RequestID = request.ID
	}

	err = s.repo.WithTransaction(ctx, func(tx *gorm.DB) error {
		request.Status = models.PaperGenerated
		if err := s.repo.PaperRequest().Update(ctx, tx, request); err != nil {
			return fmt.Errorf("update request: %w", err)
		}
		if err := s.repo.PaperVariant().CreateBatch(ctx, tx, built); err != nil {
			return fmt.Errorf("create variants: %w", err)
		}
		return nil
	})
	if err != nil {
		persistErr := fmt.Errorf("persist generated paper: %w", err)
		s.failRequest(ctx, request, persistErr)
		s.publishFailed(ctx, request, userID)
		return nil, persistErr
	}

	event := events.NewEvent(events.TopicPaperGenerated, events.PaperGeneratedEvent{
		RequestID:  request.ID,
		CourseID:   course.ID,
		TeacherID:  userID,
		Variants:   len(built),
		TotalMarks: req.TotalMarks,
	})
	if err := s.events.Publish(ctx, events.TopicPaperGenerated, event); err != nil {
		s.logger.Warn("Failed to publish paper generated event",
			"error", err, "request_id", request.ID)
	}

	snapshot, err := s.quota.Remaining(ctx, userID, now)
	if err != nil {
		s.logger.Warn("Failed to compute quota snapshot", "error", err, "user_id", userID)
		snapshot = nil
	}

	s.logger.Info("Paper generated",
		"request_id", request.ID,
		"course_id", course.ID,
		"variants", len(built),
		"seed", seed)

	return &PaperResponse{PaperRequest: request, Remaining: snapshot}, nil
}

func (s *generationService) createRequestRecord(ctx context.Context, req *GeneratePaperRequest, userID string, seed int64) (*models.PaperRequest, error) {
	request := &models.PaperRequest{
		CourseID:      req.CourseID,
		UserID:        userID,
		ExamType:      req.ExamType,
		TotalMarks:    req.TotalMarks,
		Duration:      req.Duration,
		StyleOverride: req.StyleOverride,
		Seed:          seed,
		Status:        models.PaperPending,
	}

	var err error
	if request.TopicsInclude, err = marshalJSONB(req.TopicsInclude); err != nil {
		return nil, err
	}
	if request.TopicsExclude, err = marshalJSONB(req.TopicsExclude); err != nil {
		return nil, err
	}
	mix := req.DifficultyMix
	if len(mix) == 0 {
		mix = defaultDifficultyMix
	}
	if request.DifficultyMix, err = marshalJSONB(mix); err != nil {
		return nil, err
	}

	if err := s.repo.PaperRequest().Create(ctx, nil, request); err != nil {
		return nil, fmt.Errorf("create paper request: %w", err)
	}
	return request, nil
}

func (s *generationService) generateVariants(ctx context.Context, course *models.Course, req *GeneratePaperRequest, seed int64, count int) ([]*models.PaperVariant, error) {
	excerpts, err := s.retrieval.Retrieve(ctx, course.ID, req.ExamType, req.TopicsInclude, s.retrievalTopK)
	if err != nil {
		return nil, err
	}
	if len(excerpts) == 0 {
		return nil, NewValidationError("course has no indexed materials to generate from", nil)
	}

	excerptIDs := make(map[string]bool, len(excerpts))
	for _, ex := range excerpts {
		excerptIDs[ex.ID] = true
	}

	mix := req.DifficultyMix
	if len(mix) == 0 {
		mix = defaultDifficultyMix
	}

	out := make([]*models.PaperVariant, 0, count)
	for n := 1; n <= count; n++ {
		// Each variant gets its own derived seed so variants differ while the
		// whole request stays reproducible from the recorded seed.
		variantSeed := seed + int64(n)
		prompt := buildPaperPrompt(promptInput{
			Course:        course,
			Request:       req,
			Excerpts:      excerpts,
			DifficultyMix: mix,
			VariantNumber: n,
		})

		raw, err := s.model.GenerateJSON(ctx, llm.Request{
			System:      paperSystemPrompt,
			User:        prompt,
			Temperature: generationTemperature,
			Seed:        &variantSeed,
		})
		if err != nil {
			return nil, NewUpstreamError("generation model", err)
		}

		body, scheme, err := parseGeneratedPaper(raw, req, excerptIDs)
		if err != nil {
			return nil, err
		}

		bodyJSON, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("marshal paper body: %w", err)
		}
		schemeJSON, err := json.Marshal(scheme)
		if err != nil {
			return nil, fmt.Errorf("marshal marking scheme: %w", err)
		}

		out = append(out, &models.PaperVariant{
			VariantNumber: n,
			Body:          datatypes.JSON(bodyJSON),
			MarkingScheme: datatypes.JSON(schemeJSON),
		})
	}
	return out, nil
}

// failRequest moves the request to FAILED with a stable failure code. It must
// never stay PENDING after an attempt finished.
func (s *generationService) failRequest(ctx context.Context, request *models.PaperRequest, cause error) {
	code := CodeOf(cause)
	if code == "" {
		code = CodeUpstreamUnavailable
	}
	request.Status = models.PaperFailed
	request.FailureCode = &code

	if err := s.repo.PaperRequest().Update(ctx, nil, request); err != nil {
		s.logger.Error("Failed to record paper request failure",
			"error", err, "request_id", request.ID, "failure_code", code)
	}
}

func (s *generationService) publishFailed(ctx context.Context, request *models.PaperRequest, userID string) {
	code := ""
	if request.FailureCode != nil {
		code = *request.FailureCode
	}
	event := events.NewEvent(events.TopicPaperFailed, events.PaperFailedEvent{
		RequestID:   request.ID,
		CourseID:    request.CourseID,
		TeacherID:   userID,
		FailureCode: code,
	})
	if err := s.events.Publish(ctx, events.TopicPaperFailed, event); err != nil {
		s.logger.Warn("Failed to publish paper failed event",
			"error", err, "request_id", request.ID)
	}
}

func (s *generationService) GetRequest(ctx context.Context, id uint, userID string) (*PaperResponse, error) {
	request, err := s.repo.PaperRequest().GetByID(ctx, nil, id)
	if err != nil {
		if repositories.IsNotFoundError(err) {
			return nil, NewNotFoundError("paper request", id)
		}
		return nil, fmt.Errorf("load paper request: %w", err)
	}
	if request.UserID != userID {
		return nil, NewPermissionError(userID, "paper request", id, "not the requesting teacher")
	}
	return &PaperResponse{PaperRequest: request}, nil
}

func (s *generationService) GetVariants(ctx context.Context, requestID uint, userID string) ([]*VariantResponse, error) {
	request, err := s.repo.PaperRequest().GetByID(ctx, nil, requestID)
	if err != nil {
		if repositories.IsNotFoundError(err) {
			return nil, NewNotFoundError("paper request", requestID)
		}
		return nil, fmt.Errorf("load paper request: %w", err)
	}
	if request.UserID != userID {
		return nil, NewPermissionError(userID, "paper request", requestID, "not the requesting teacher")
	}

	variants, err := s.repo.PaperVariant().GetByRequest(ctx, nil, requestID)
	if err != nil {
		return nil, fmt.Errorf("load variants: %w", err)
	}

	out := make([]*VariantResponse, 0, len(variants))
	for _, v := range variants {
		var body models.PaperBody
		if err := json.Unmarshal(v.Body, &body); err != nil {
			return nil, fmt.Errorf("decode variant %d body: %w", v.ID, err)
		}
		var scheme models.MarkingScheme
		if err := json.Unmarshal(v.MarkingScheme, &scheme); err != nil {
			return nil, fmt.Errorf("decode variant %d marking scheme: %w", v.ID, err)
		}
		out = append(out, &VariantResponse{
			ID:            v.ID,
			VariantNumber: v.VariantNumber,
			Body:          body,
			MarkingScheme: scheme,
			CreatedAt:     v.CreatedAt,
		})
	}
	return out, nil
}

func marshalJSONB(v interface{}) (datatypes.JSON, error) {
	if v == nil {
		return nil, nil
	}
	raw, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("marshal jsonb: %w", err)
	}
	return datatypes.JSON(raw), nil
}

// randomSeed draws a non-negative seed from the OS entropy pool; the value is
// stored on the request so the paper can be regenerated bit-for-bit.
func randomSeed() int64 {
	var buf [8]byte
	if _, err := rand.Read(buf[:]); err != nil {
		return time.Now().UnixNano()
	}
	n := int64(binary.BigEndian.Uint64(buf[:]) >> 1)
	return n
}
