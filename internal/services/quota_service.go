package services

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/examforge/papergen-service/internal/models"
	"github.com/examforge/papergen-service/internal/repositories"
)

type quotaService struct {
	repo   repositories.Repository
	logger *slog.Logger
}

func NewQuotaService(repo repositories.Repository, logger *slog.Logger) QuotaService {
	return &quotaService{
		repo:   repo,
		logger: logger,
	}
}

// monthWindow returns [start, nextStart) of the calendar month containing now,
// in UTC. Requests created exactly at nextStart belong to the next period.
func monthWindow(now time.Time) (time.Time, time.Time) {
	now = now.UTC()
	start := time.Date(now.Year(), now.Month(), 1, 0, 0, 0, 0, time.UTC)
	return start, start.AddDate(0, 1, 0)
}

func (s *quotaService) Remaining(ctx context.Context, userID string, now time.Time) (*QuotaSnapshot, error) {
	user, err := s.repo.User().GetByIDWithPlan(ctx, nil, userID)
	if err != nil {
		if repositories.IsNotFoundError(err) {
			return nil, &ServiceError{Code: CodeNotFound, Message: fmt.Sprintf("user %s not found", userID)}
		}
		return nil, fmt.Errorf("load user: %w", err)
	}

	start, next := monthWindow(now)
	snapshot := &QuotaSnapshot{
		Limit:    user.Plan.MaxPapersPerMonth,
		ResetsAt: next,
	}

	if snapshot.Unlimited() {
		snapshot.Remaining = -1
		return snapshot, nil
	}

	// The ledger is computed, never stored: every PaperRequest row in the
	// window counts, FAILED ones included, since each consumed an attempt.
	used, err := s.repo.PaperRequest().CountInPeriod(ctx, nil, userID, start, next)
	if err != nil {
		return nil, fmt.Errorf("count paper requests: %w", err)
	}

	snapshot.Used = used
	snapshot.Remaining = int64(snapshot.Limit) - used
	if snapshot.Remaining < 0 {
		snapshot.Remaining = 0
	}
	return snapshot, nil
}

// checkQuota is the generation-time precondition; it loads the plan too so
// the caller can clamp variants without a second lookup.
func checkQuota(ctx context.Context, repo repositories.Repository, userID string, now time.Time) (*models.Plan, *QuotaSnapshot, error) {
	user, err := repo.User().GetByIDWithPlan(ctx, nil, userID)
	if err != nil {
		if repositories.IsNotFoundError(err) {
			return nil, nil, &ServiceError{Code: CodeNotFound, Message: fmt.Sprintf("user %s not found", userID)}
		}
		return nil, nil, fmt.Errorf("load user: %w", err)
	}

	start, next := monthWindow(now)
	snapshot := &QuotaSnapshot{
		Limit:    user.Plan.MaxPapersPerMonth,
		ResetsAt: next,
	}

	if snapshot.Unlimited() {
		snapshot.Remaining = -1
		return &user.Plan, snapshot, nil
	}

	used, err := repo.PaperRequest().CountInPeriod(ctx, nil, userID, start, next)
	if err != nil {
		return nil, nil, fmt.Errorf("count paper requests: %w", err)
	}

	snapshot.Used = used
	snapshot.Remaining = int64(snapshot.Limit) - used
	if snapshot.Remaining <= 0 {
		snapshot.Remaining = 0
		return nil, snapshot, NewQuotaExhaustedError(userID, used, snapshot.Limit)
	}

	return &user.Plan, snapshot, nil
}
