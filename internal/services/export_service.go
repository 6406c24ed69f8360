package services

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sort"

	"github.com/xuri/excelize/v2"

	"github.com/examforge/papergen-service/internal/models"
	"github.com/examforge/papergen-service/internal/repositories"
)

type exportService struct {
	repo   repositories.Repository
	logger *slog.Logger
}

func NewExportService(repo repositories.Repository, logger *slog.Logger) ExportService {
	return &exportService{
		repo:   repo,
		logger: logger,
	}
}

const (
	summarySheet   = "Summary"
	breakdownSheet = "Breakdown"
)

// ExportGradingResults renders every graded submission under a paper request
// into an xlsx workbook: one summary row per submission plus a per-question
// breakdown sheet.
func (s *exportService) ExportGradingResults(ctx context.Context, requestID uint, userID string) ([]byte, error) {
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

	f := excelize.NewFile()
	defer f.Close()

	f.SetSheetName("Sheet1", summarySheet)
	if _, err := f.NewSheet(breakdownSheet); err != nil {
		return nil, fmt.Errorf("create breakdown sheet: %w", err)
	}

	summaryHeader := []interface{}{"Submission ID", "Variant", "Student ID", "Total Score", "Max Score", "Percentage", "Letter Grade", "Graded At"}
	if err := f.SetSheetRow(summarySheet, "A1", &summaryHeader); err != nil {
		return nil, fmt.Errorf("write summary header: %w", err)
	}
	breakdownHeader := []interface{}{"Submission ID", "Variant", "Student ID", "Question", "Marks", "Max Marks", "Comment"}
	if err := f.SetSheetRow(breakdownSheet, "A1", &breakdownHeader); err != nil {
		return nil, fmt.Errorf("write breakdown header: %w", err)
	}

	summaryRow := 2
	breakdownRow := 2
	graded := models.SubmissionGraded

	for _, variant := range variants {
		submissions, _, err := s.repo.Submission().GetByVariant(ctx, nil, variant.ID, repositories.SubmissionFilters{Status: &graded})
		if err != nil {
			return nil, fmt.Errorf("load submissions for variant %d: %w", variant.ID, err)
		}

		for _, sub := range submissions {
			result, err := s.repo.GradingResult().GetBySubmission(ctx, nil, sub.ID)
			if err != nil {
				if repositories.IsNotFoundError(err) {
					continue
				}
				return nil, fmt.Errorf("load result for submission %d: %w", sub.ID, err)
			}

			gradedAt := ""
			if sub.GradedAt != nil {
				gradedAt = sub.GradedAt.Format("2006-01-02 15:04:05")
			}
			row := []interface{}{
				sub.ID,
				variant.VariantNumber,
				sub.StudentID,
				result.TotalScore,
				result.MaxScore,
				result.Percentage,
				result.LetterGrade,
				gradedAt,
			}
			if err := f.SetSheetRow(summarySheet, fmt.Sprintf("A%d", summaryRow), &row); err != nil {
				return nil, fmt.Errorf("write summary row: %w", err)
			}
			summaryRow++

			var breakdown models.GradingBreakdown
			if err := json.Unmarshal(result.Breakdown, &breakdown); err != nil {
				return nil, fmt.Errorf("decode breakdown for submission %d: %w", sub.ID, err)
			}

			qids := make([]string, 0, len(breakdown))
			for id := range breakdown {
				qids = append(qids, id)
			}
			sort.Strings(qids)

			for _, qid := range qids {
				entry := breakdown[qid]
				row := []interface{}{
					sub.ID,
					variant.VariantNumber,
					sub.StudentID,
					qid,
					entry.Marks,
					entry.MaxMarks,
					entry.Comment,
				}
				if err := f.SetSheetRow(breakdownSheet, fmt.Sprintf("A%d", breakdownRow), &row); err != nil {
					return nil, fmt.Errorf("write breakdown row: %w", err)
				}
				breakdownRow++
			}
		}
	}

	buf, err := f.WriteToBuffer()
	if err != nil {
		return nil, fmt.Errorf("render workbook: %w", err)
	}

	s.logger.Info("Exported grading results",
		"request_id", requestID,
		"submissions", summaryRow-2)
	return buf.Bytes(), nil
}
