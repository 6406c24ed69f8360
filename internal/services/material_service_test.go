package services

import (
	"context"
	"strings"
	"testing"

	"github.com/examforge/papergen-service/internal/cache"
	"github.com/examforge/papergen-service/internal/events"
	"github.com/examforge/papergen-service/internal/models"
	"github.com/examforge/papergen-service/internal/repositories"
	"github.com/examforge/papergen-service/internal/storage"
	"github.com/examforge/papergen-service/internal/validator"
)

type materialFixture struct {
	repo   *fakeRepo
	store  *storage.MemoryStore
	index  *memIndex
	events *events.MockEventPublisher
	svc    MaterialService
	course *models.Course
}

func newMaterialFixture(t *testing.T) *materialFixture {
	t.Helper()

	repo := newFakeRepo()
	repo.addUser("teacher-1", models.Plan{Name: "basic", MaxPapersPerMonth: 5, MaxVariants: 2, MaxUploadBytes: 1 << 20})
	course := repo.addCourse(models.Course{Code: "CS101", Title: "Intro to Computing", CreatedBy: "teacher-1"})

	store := storage.NewMemoryStore()
	index := newMemIndex()
	publisher := events.NewMockEventPublisher(testLogger())

	svc := NewMaterialService(
		repo,
		validator.New(),
		store,
		newFakeEmbedder(8),
		index,
		cache.NewCacheManager(nil),
		publisher,
		testLogger(),
		0, 0,
	)

	return &materialFixture{repo: repo, store: store, index: index, events: publisher, svc: svc, course: course}
}

func textUpload(name, content string) *UploadedFile {
	return &UploadedFile{Filename: name, Data: []byte(content)}
}

const lectureNotes = "Operating systems schedule processes using priority queues. " +
	"Virtual memory maps pages onto frames and page faults trigger eviction."

func TestUploadIndexesMaterial(t *testing.T) {
	fx := newMaterialFixture(t)

	resp, err := fx.svc.Upload(context.Background(), &CreateMaterialRequest{
		CourseID: fx.course.ID,
		Title:    "Week 3 notes",
		Type:     models.MaterialReference,
	}, textUpload("notes.txt", lectureNotes), "teacher-1")
	if err != nil {
		t.Fatalf("Upload: %v", err)
	}

	if !resp.Indexed || resp.IndexedAt == nil {
		t.Error("material should be indexed")
	}
	if !fx.index.has(resp.ID) {
		t.Error("index has no points for the material")
	}
	if resp.FileKey == "" {
		t.Fatal("file key not recorded")
	}
	if _, err := fx.store.Get(context.Background(), resp.FileKey); err != nil {
		t.Errorf("stored file missing: %v", err)
	}

	published := fx.events.GetPublishedEvents()
	if len(published) != 1 || published[0].Type != events.TopicMaterialIndexed {
		t.Errorf("events = %+v", published)
	}
}

func TestUploadRejectsUnsupportedExtension(t *testing.T) {
	fx := newMaterialFixture(t)

	_, err := fx.svc.Upload(context.Background(), &CreateMaterialRequest{
		CourseID: fx.course.ID,
		Title:    "Slides",
		Type:     models.MaterialReference,
	}, textUpload("slides.pptx", lectureNotes), "teacher-1")

	if CodeOf(err) != CodeUnsupportedFile {
		t.Fatalf("error = %v, want %s", err, CodeUnsupportedFile)
	}
}

func TestUploadRejectsOversizeFile(t *testing.T) {
	fx := newMaterialFixture(t)

	big := strings.Repeat("a", (1<<20)+1)
	_, err := fx.svc.Upload(context.Background(), &CreateMaterialRequest{
		CourseID: fx.course.ID,
		Title:    "Huge",
		Type:     models.MaterialReference,
	}, textUpload("huge.txt", big), "teacher-1")

	if CodeOf(err) != CodeFileTooLarge {
		t.Fatalf("error = %v, want %s", err, CodeFileTooLarge)
	}
}

func TestUploadRejectsEmptyText(t *testing.T) {
	fx := newMaterialFixture(t)

	_, err := fx.svc.Upload(context.Background(), &CreateMaterialRequest{
		CourseID: fx.course.ID,
		Title:    "Blank",
		Type:     models.MaterialReference,
	}, textUpload("blank.txt", "   "), "teacher-1")

	if CodeOf(err) != CodeNoExtractableText {
		t.Fatalf("error = %v, want %s", err, CodeNoExtractableText)
	}
}

func TestUploadRequiresYearForOldPapers(t *testing.T) {
	fx := newMaterialFixture(t)

	_, err := fx.svc.Upload(context.Background(), &CreateMaterialRequest{
		CourseID: fx.course.ID,
		Title:    "2019 final",
		Type:     models.MaterialOldPaper,
	}, textUpload("final.txt", lectureNotes), "teacher-1")

	if CodeOf(err) != CodeValidationFailed {
		t.Fatalf("error = %v, want %s", err, CodeValidationFailed)
	}
}

func TestUploadDeniedForNonOwner(t *testing.T) {
	fx := newMaterialFixture(t)
	fx.repo.addUser("intruder", models.Plan{Name: "basic", MaxUploadBytes: 1 << 20})

	_, err := fx.svc.Upload(context.Background(), &CreateMaterialRequest{
		CourseID: fx.course.ID,
		Title:    "Sneaky",
		Type:     models.MaterialReference,
	}, textUpload("notes.txt", lectureNotes), "intruder")

	if CodeOf(err) != CodePermissionDenied {
		t.Fatalf("error = %v, want %s", err, CodePermissionDenied)
	}
}

func TestUpdateReindexesMaterial(t *testing.T) {
	fx := newMaterialFixture(t)

	resp, err := fx.svc.Upload(context.Background(), &CreateMaterialRequest{
		CourseID: fx.course.ID,
		Title:    "Old title",
		Type:     models.MaterialReference,
	}, textUpload("notes.txt", lectureNotes), "teacher-1")
	if err != nil {
		t.Fatalf("Upload: %v", err)
	}

	title := "New title"
	updated, err := fx.svc.Update(context.Background(), resp.ID, &UpdateMaterialRequest{Title: &title}, "teacher-1")
	if err != nil {
		t.Fatalf("Update: %v", err)
	}
	if updated.Title != "New title" {
		t.Errorf("Title = %q", updated.Title)
	}
	if !updated.Indexed {
		t.Error("material should be re-indexed after update")
	}
}

func TestDeleteRemovesPointsAndFile(t *testing.T) {
	fx := newMaterialFixture(t)

	resp, err := fx.svc.Upload(context.Background(), &CreateMaterialRequest{
		CourseID: fx.course.ID,
		Title:    "Doomed",
		Type:     models.MaterialReference,
	}, textUpload("notes.txt", lectureNotes), "teacher-1")
	if err != nil {
		t.Fatalf("Upload: %v", err)
	}

	if err := fx.svc.Delete(context.Background(), resp.ID, "teacher-1"); err != nil {
		t.Fatalf("Delete: %v", err)
	}

	if fx.index.has(resp.ID) {
		t.Error("index still holds points for deleted material")
	}
	if _, err := fx.svc.GetByID(context.Background(), resp.ID, "teacher-1"); CodeOf(err) != CodeNotFound {
		t.Errorf("GetByID after delete = %v", err)
	}
	if _, err := fx.store.Get(context.Background(), resp.FileKey); err == nil {
		t.Error("stored file still present after delete")
	}
}

func TestReconcileRepairsDrift(t *testing.T) {
	fx := newMaterialFixture(t)
	ctx := context.Background()

	resp, err := fx.svc.Upload(ctx, &CreateMaterialRequest{
		CourseID: fx.course.ID,
		Title:    "Notes",
		Type:     models.MaterialReference,
	}, textUpload("notes.txt", lectureNotes), "teacher-1")
	if err != nil {
		t.Fatalf("Upload: %v", err)
	}

	// Simulate a crash between index write and the record update: points are
	// gone and the material is flagged pending.
	if err := fx.index.DeleteMaterial(ctx, resp.ID); err != nil {
		t.Fatal(err)
	}
	if err := fx.repo.Material().MarkIndexed(ctx, nil, resp.ID, nil); err != nil {
		t.Fatal(err)
	}

	report, err := fx.svc.Reconcile(ctx, fx.course.ID, "teacher-1")
	if err != nil {
		t.Fatalf("Reconcile: %v", err)
	}
	if len(report.Reindexed) != 1 || report.Reindexed[0] != resp.ID {
		t.Errorf("Reindexed = %v", report.Reindexed)
	}
	if !fx.index.has(resp.ID) {
		t.Error("material not re-indexed")
	}

	var sawReconcile bool
	for _, e := range fx.events.GetPublishedEvents() {
		if e.Type == events.TopicIndexReconciled {
			sawReconcile = true
		}
	}
	if !sawReconcile {
		t.Error("reconcile event not published")
	}
}

func TestListByCourse(t *testing.T) {
	fx := newMaterialFixture(t)
	ctx := context.Background()

	for _, title := range []string{"One", "Two"} {
		if _, err := fx.svc.Upload(ctx, &CreateMaterialRequest{
			CourseID: fx.course.ID,
			Title:    title,
			Type:     models.MaterialReference,
		}, textUpload("notes.txt", lectureNotes), "teacher-1"); err != nil {
			t.Fatalf("Upload: %v", err)
		}
	}

	list, err := fx.svc.ListByCourse(ctx, fx.course.ID, repositories.MaterialFilters{}, "teacher-1")
	if err != nil {
		t.Fatalf("ListByCourse: %v", err)
	}
	if list.Total != 2 || len(list.Materials) != 2 {
		t.Errorf("list = %+v", list)
	}
}
