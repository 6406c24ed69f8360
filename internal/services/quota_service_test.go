package services

import (
	"context"
	"testing"
	"time"

	"github.com/examforge/papergen-service/internal/models"
)

func TestMonthWindow(t *testing.T) {
	now := time.Date(2026, time.March, 15, 22, 30, 0, 0, time.FixedZone("UTC+5", 5*3600))
	start, next := monthWindow(now)

	if !start.Equal(time.Date(2026, time.March, 1, 0, 0, 0, 0, time.UTC)) {
		t.Errorf("start = %v", start)
	}
	if !next.Equal(time.Date(2026, time.April, 1, 0, 0, 0, 0, time.UTC)) {
		t.Errorf("next = %v", next)
	}
}

func TestQuotaRemaining(t *testing.T) {
	repo := newFakeRepo()
	repo.addUser("t1", models.Plan{Name: "basic", MaxPapersPerMonth: 3})
	svc := NewQuotaService(repo, testLogger())

	now := time.Date(2026, time.May, 10, 12, 0, 0, 0, time.UTC)

	snap, err := svc.Remaining(context.Background(), "t1", now)
	if err != nil {
		t.Fatalf("Remaining: %v", err)
	}
	if snap.Limit != 3 || snap.Used != 0 || snap.Remaining != 3 {
		t.Errorf("snapshot = %+v", snap)
	}
	if !snap.ResetsAt.Equal(time.Date(2026, time.June, 1, 0, 0, 0, 0, time.UTC)) {
		t.Errorf("ResetsAt = %v", snap.ResetsAt)
	}

	// Failed requests count too: each row in the window is a consumed attempt.
	mk := func(status models.PaperRequestStatus, created time.Time) {
		req := &models.PaperRequest{UserID: "t1", CourseID: 1, ExamType: "FINAL", TotalMarks: 100, Duration: 120, Status: status, CreatedAt: created}
		if err := repo.PaperRequest().Create(context.Background(), nil, req); err != nil {
			t.Fatal(err)
		}
	}
	mk(models.PaperGenerated, now)
	mk(models.PaperFailed, now.Add(time.Hour))
	mk(models.PaperGenerated, now.AddDate(0, -1, 0)) // previous month, excluded

	snap, err = svc.Remaining(context.Background(), "t1", now)
	if err != nil {
		t.Fatalf("Remaining: %v", err)
	}
	if snap.Used != 2 || snap.Remaining != 1 {
		t.Errorf("used = %d remaining = %d", snap.Used, snap.Remaining)
	}
}

func TestQuotaRemainingFloorsAtZero(t *testing.T) {
	repo := newFakeRepo()
	repo.addUser("t1", models.Plan{Name: "basic", MaxPapersPerMonth: 1})
	svc := NewQuotaService(repo, testLogger())

	now := time.Now().UTC()
	for i := 0; i < 3; i++ {
		req := &models.PaperRequest{UserID: "t1", CourseID: 1, ExamType: "QUIZ", TotalMarks: 20, Duration: 30, Status: models.PaperGenerated, CreatedAt: now}
		if err := repo.PaperRequest().Create(context.Background(), nil, req); err != nil {
			t.Fatal(err)
		}
	}

	snap, err := svc.Remaining(context.Background(), "t1", now)
	if err != nil {
		t.Fatalf("Remaining: %v", err)
	}
	if snap.Remaining != 0 {
		t.Errorf("Remaining = %d, want 0", snap.Remaining)
	}
}

func TestQuotaUnlimitedPlan(t *testing.T) {
	repo := newFakeRepo()
	repo.addUser("t1", models.Plan{Name: "unlimited", MaxPapersPerMonth: models.UnlimitedPapers})
	svc := NewQuotaService(repo, testLogger())

	snap, err := svc.Remaining(context.Background(), "t1", time.Now().UTC())
	if err != nil {
		t.Fatalf("Remaining: %v", err)
	}
	if !snap.Unlimited() || snap.Remaining != -1 {
		t.Errorf("snapshot = %+v", snap)
	}
}

func TestCheckQuotaExhausted(t *testing.T) {
	repo := newFakeRepo()
	repo.addUser("t1", models.Plan{Name: "basic", MaxPapersPerMonth: 1, MaxVariants: 2})

	now := time.Now().UTC()
	req := &models.PaperRequest{UserID: "t1", CourseID: 1, ExamType: "FINAL", TotalMarks: 100, Duration: 120, Status: models.PaperFailed, CreatedAt: now}
	if err := repo.PaperRequest().Create(context.Background(), nil, req); err != nil {
		t.Fatal(err)
	}

	_, _, err := checkQuota(context.Background(), repo, "t1", now)
	if CodeOf(err) != CodeQuotaExhausted {
		t.Fatalf("error = %v, want %s", err, CodeQuotaExhausted)
	}
}

func TestCheckQuotaReturnsPlan(t *testing.T) {
	repo := newFakeRepo()
	repo.addUser("t1", models.Plan{Name: "pro", MaxPapersPerMonth: 10, MaxVariants: 5})

	plan, snap, err := checkQuota(context.Background(), repo, "t1", time.Now().UTC())
	if err != nil {
		t.Fatalf("checkQuota: %v", err)
	}
	if plan.MaxVariants != 5 {
		t.Errorf("MaxVariants = %d", plan.MaxVariants)
	}
	if snap.Remaining != 10 {
		t.Errorf("Remaining = %d", snap.Remaining)
	}
}

func TestQuotaUnknownUser(t *testing.T) {
	repo := newFakeRepo()
	svc := NewQuotaService(repo, testLogger())

	_, err := svc.Remaining(context.Background(), "ghost", time.Now().UTC())
	if CodeOf(err) != CodeNotFound {
		t.Fatalf("error = %v, want %s", err, CodeNotFound)
	}
}
