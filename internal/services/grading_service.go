package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"gorm.io/datatypes"
	"gorm.io/gorm"

	"github.com/examforge/papergen-service/internal/clients/llm"
	"github.com/examforge/papergen-service/internal/docparse"
	"github.com/examforge/papergen-service/internal/events"
	"github.com/examforge/papergen-service/internal/models"
	"github.com/examforge/papergen-service/internal/repositories"
	"github.com/examforge/papergen-service/internal/storage"
	"github.com/examforge/papergen-service/internal/validator"
)

const submissionKeyPrefix = "submissions"

type gradingService struct {
	repo      repositories.Repository
	validator *validator.Validator
	store     storage.FileStore
	extractor AnswerExtractor
	model     llm.Client
	events    events.EventPublisher
	logger    *slog.Logger
}

func NewGradingService(
	repo repositories.Repository,
	v *validator.Validator,
	store storage.FileStore,
	extractor AnswerExtractor,
	model llm.Client,
	publisher events.EventPublisher,
	logger *slog.Logger,
) GradingService {
	return &gradingService{
		repo:      repo,
		validator: v,
		store:     store,
		extractor: extractor,
		model:     model,
		events:    publisher,
		logger:    logger,
	}
}

func (s *gradingService) SubmitAndGrade(ctx context.Context, req *SubmitPaperRequest, file *UploadedFile, userID string) (*SubmissionResponse, error) {
	if errs := s.validator.ValidateGradeSubmission(req); errs.HasErrors() {
		return nil, NewValidationError("submission validation failed", errs)
	}
	if file == nil || file.Filename == "" {
		return nil, NewValidationError("file is required", nil)
	}
	if !docparse.SupportedExtension(file.Filename) {
		return nil, NewUnsupportedFileError(file.Filename)
	}

	variant, course, err := s.authorizeVariant(ctx, req.VariantID, userID)
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

	rawText, err := docparse.Extract(file.Filename, file.Data)
	if err != nil {
		switch {
		case errors.Is(err, docparse.ErrUnsupportedFile):
			return nil, NewUnsupportedFileError(file.Filename)
		default:
			return nil, NewNoExtractableTextError(file.Filename, err)
		}
	}

	var body models.PaperBody
	if err := json.Unmarshal(variant.Body, &body); err != nil {
		return nil, fmt.Errorf("decode variant body: %w", err)
	}
	var scheme models.MarkingScheme
	if err := json.Unmarshal(variant.MarkingScheme, &scheme); err != nil {
		return nil, fmt.Errorf("decode marking scheme: %w", err)
	}

	fileKey := storage.GenerateKey(submissionKeyPrefix, file.Filename)
	if err := s.store.Put(ctx, fileKey, file.Data, storage.ContentType(file.Filename)); err != nil {
		return nil, NewUpstreamError("file storage", err)
	}

	answers := s.extractor.Extract(body, rawText)
	answersJSON, err := json.Marshal(answers)
	if err != nil {
		return nil, fmt.Errorf("marshal extracted answers: %w", err)
	}

	submission := &models.PaperSubmission{
		VariantID:        variant.ID,
		StudentID:        req.StudentID,
		FileKey:          fileKey,
		ExtractedAnswers: datatypes.JSON(answersJSON),
		Status:           models.SubmissionSubmitted,
	}
	if err := s.repo.Submission().Create(ctx, nil, submission); err != nil {
		return nil, fmt.Errorf("create submission: %w", err)
	}

	// Grading failure leaves the submission SUBMITTED; the stored answers let
	// a later retry skip extraction.
	result, err := s.grade(ctx, submission, course, body, scheme, answers)
	if err != nil {
		s.logger.Warn("Grading failed, submission left ungraded",
			"error", err, "submission_id", submission.ID)
		return nil, err
	}

	event := events.NewEvent(events.TopicSubmissionGraded, events.SubmissionGradedEvent{
		SubmissionID: submission.ID,
		VariantID:    variant.ID,
		StudentID:    req.StudentID,
		Percentage:   result.Percentage,
		LetterGrade:  result.LetterGrade,
	})
	if err := s.events.Publish(ctx, events.TopicSubmissionGraded, event); err != nil {
		s.logger.Warn("Failed to publish submission graded event",
			"error", err, "submission_id", submission.ID)
	}

	s.logger.Info("Submission graded",
		"submission_id", submission.ID,
		"variant_id", variant.ID,
		"student_id", req.StudentID,
		"percentage", result.Percentage,
		"letter_grade", result.LetterGrade)

	return &SubmissionResponse{PaperSubmission: submission, Result: result}, nil
}

func (s *gradingService) grade(ctx context.Context, submission *models.PaperSubmission, course *models.Course, body models.PaperBody, scheme models.MarkingScheme, answers models.ExtractedAnswers) (*GradingResultResponse, error) {
	raw, err := s.model.GenerateJSON(ctx, llm.Request{
		System:      gradingSystem(course),
		User:        buildGradingPrompt(course, body, scheme, answers),
		Temperature: gradingTemperature,
	})
	if err != nil {
		return nil, NewUpstreamError("grading model", err)
	}

	breakdown, feedback, total, max, err := parseGradedResponse(raw, body, scheme, course.PartialCredit)
	if err != nil {
		return nil, err
	}

	percentage := 0.0
	if max > 0 {
		percentage = total / max * 100
	}
	letter := letterGrade(course, percentage)
	passed := percentage >= float64(course.PassThreshold)

	breakdownJSON, err := json.Marshal(breakdown)
	if err != nil {
		return nil, fmt.Errorf("marshal breakdown: %w", err)
	}

	record := &models.GradingResult{
		SubmissionID: submission.ID,
		TotalScore:   total,
		MaxScore:     max,
		Percentage:   percentage,
		LetterGrade:  letter,
		Breakdown:    datatypes.JSON(breakdownJSON),
		Feedback:     feedback,
	}

	now := time.Now().UTC()
	err = s.repo.WithTransaction(ctx, func(tx *gorm.DB) error {
		if err := s.repo.GradingResult().Create(ctx, tx, record); err != nil {
			return fmt.Errorf("create grading result: %w", err)
		}
		submission.Status = models.SubmissionGraded
		submission.GradedAt = &now
		if err := s.repo.Submission().Update(ctx, tx, submission); err != nil {
			return fmt.Errorf("update submission: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	return &GradingResultResponse{
		SubmissionID: submission.ID,
		TotalScore:   total,
		MaxScore:     max,
		Percentage:   percentage,
		LetterGrade:  letter,
		Passed:       passed,
		Breakdown:    breakdown,
		Feedback:     feedback,
	}, nil
}

func (s *gradingService) GetSubmission(ctx context.Context, id uint, userID string) (*SubmissionResponse, error) {
	submission, err := s.repo.Submission().GetByIDWithResult(ctx, nil, id)
	if err != nil {
		if repositories.IsNotFoundError(err) {
			return nil, NewNotFoundError("submission", id)
		}
		return nil, fmt.Errorf("load submission: %w", err)
	}

	if err := s.authorizeSubmission(ctx, submission, userID); err != nil {
		return nil, err
	}

	resp := &SubmissionResponse{PaperSubmission: submission}
	if submission.Result != nil {
		result, err := s.resultResponse(ctx, submission.Result, submission)
		if err != nil {
			return nil, err
		}
		resp.Result = result
	}
	return resp, nil
}

func (s *gradingService) GetResult(ctx context.Context, submissionID uint, userID string) (*GradingResultResponse, error) {
	submission, err := s.repo.Submission().GetByID(ctx, nil, submissionID)
	if err != nil {
		if repositories.IsNotFoundError(err) {
			return nil, NewNotFoundError("submission", submissionID)
		}
		return nil, fmt.Errorf("load submission: %w", err)
	}
	if err := s.authorizeSubmission(ctx, submission, userID); err != nil {
		return nil, err
	}

	record, err := s.repo.GradingResult().GetBySubmission(ctx, nil, submissionID)
	if err != nil {
		if repositories.IsNotFoundError(err) {
			return nil, NewNotFoundError("grading result", submissionID)
		}
		return nil, fmt.Errorf("load grading result: %w", err)
	}

	return s.resultResponse(ctx, record, submission)
}

func (s *gradingService) resultResponse(ctx context.Context, record *models.GradingResult, submission *models.PaperSubmission) (*GradingResultResponse, error) {
	var breakdown models.GradingBreakdown
	if err := json.Unmarshal(record.Breakdown, &breakdown); err != nil {
		return nil, fmt.Errorf("decode breakdown: %w", err)
	}

	course, err := s.courseOfSubmission(ctx, submission)
	if err != nil {
		return nil, err
	}

	return &GradingResultResponse{
		SubmissionID: record.SubmissionID,
		TotalScore:   record.TotalScore,
		MaxScore:     record.MaxScore,
		Percentage:   record.Percentage,
		LetterGrade:  record.LetterGrade,
		Passed:       record.Percentage >= float64(course.PassThreshold),
		Breakdown:    breakdown,
		Feedback:     record.Feedback,
	}, nil
}

// authorizeVariant checks the caller owns the variant's parent request and
// loads the course whose grading policy applies.
func (s *gradingService) authorizeVariant(ctx context.Context, variantID uint, userID string) (*models.PaperVariant, *models.Course, error) {
	variant, err := s.repo.PaperVariant().GetByID(ctx, nil, variantID)
	if err != nil {
		if repositories.IsNotFoundError(err) {
			return nil, nil, NewNotFoundError("paper variant", variantID)
		}
		return nil, nil, fmt.Errorf("load variant: %w", err)
	}

	request, err := s.repo.PaperRequest().GetByID(ctx, nil, variant.RequestID)
	if err != nil {
		return nil, nil, fmt.Errorf("load paper request: %w", err)
	}
	if request.UserID != userID {
		return nil, nil, NewPermissionError(userID, "paper variant", variantID, "not the requesting teacher")
	}

	course, err := s.repo.Course().GetByID(ctx, nil, request.CourseID)
	if err != nil {
		return nil, nil, fmt.Errorf("load course: %w", err)
	}

	return variant, course, nil
}

// authorizeSubmission allows the owning teacher and the student it belongs to.
func (s *gradingService) authorizeSubmission(ctx context.Context, submission *models.PaperSubmission, userID string) error {
	if submission.StudentID == userID {
		return nil
	}

	variant, err := s.repo.PaperVariant().GetByID(ctx, nil, submission.VariantID)
	if err != nil {
		return fmt.Errorf("load variant: %w", err)
	}
	request, err := s.repo.PaperRequest().GetByID(ctx, nil, variant.RequestID)
	if err != nil {
		return fmt.Errorf("load paper request: %w", err)
	}
	if request.UserID != userID {
		return NewPermissionError(userID, "submission", submission.ID, "neither the student nor the requesting teacher")
	}
	return nil
}

func (s *gradingService) courseOfSubmission(ctx context.Context, submission *models.PaperSubmission) (*models.Course, error) {
	variant, err := s.repo.PaperVariant().GetByID(ctx, nil, submission.VariantID)
	if err != nil {
		return nil, fmt.Errorf("load variant: %w", err)
	}
	request, err := s.repo.PaperRequest().GetByID(ctx, nil, variant.RequestID)
	if err != nil {
		return nil, fmt.Errorf("load paper request: %w", err)
	}
	course, err := s.repo.Course().GetByID(ctx, nil, request.CourseID)
	if err != nil {
		return nil, fmt.Errorf("load course: %w", err)
	}
	return course, nil
}
