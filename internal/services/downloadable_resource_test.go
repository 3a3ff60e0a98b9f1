package services

import (
	"context"
	"strings"
	"testing"

	"github.com/google/uuid"

	"github.com/yungbote/coursesync-backend/internal/data/repos"
	"github.com/yungbote/coursesync-backend/internal/data/repos/testutil"
	types "github.com/yungbote/coursesync-backend/internal/domain"
	"github.com/yungbote/coursesync-backend/internal/domain/learning"
	"github.com/yungbote/coursesync-backend/internal/platform/apierr"
	"github.com/yungbote/coursesync-backend/internal/platform/gcp"
	"github.com/yungbote/coursesync-backend/internal/realtime"
)

type fakeBucket struct {
	objects  map[string]int64
	prefixes map[string]int64
}

func (b *fakeBucket) KeyFromURL(rawURL string) (string, bool) {
	return strings.CutPrefix(rawURL, "gs://course-resources/")
}

func (b *fakeBucket) GetObjectAttrs(_ context.Context, key string) (*gcp.ObjectAttrs, error) {
	size, ok := b.objects[key]
	if !ok {
		return nil, gcp.ErrObjectNotFound
	}
	return &gcp.ObjectAttrs{Size: size}, nil
}

func (b *fakeBucket) PrefixSize(_ context.Context, prefix string) (int64, error) {
	return b.prefixes[prefix], nil
}

type resourceHarness struct {
	svc     DownloadableResourceService
	emit    *recordingEmitter
	courses repos.CourseRepo
}

func newResourceHarness(t *testing.T, bucket gcp.ResourceBucket) (*resourceHarness, *types.Course) {
	t.Helper()
	db := testutil.DB(t)
	log := testutil.Logger(t)
	h := &resourceHarness{
		emit:    &recordingEmitter{},
		courses: repos.NewCourseRepo(db, log),
	}
	h.svc = NewDownloadableResourceService(db, log, h.courses, repos.NewDownloadableResourceRepo(db, log), bucket, h.emit)
	c := testutil.SeedCourse(t, context.Background(), db, testutil.CourseOpts{Title: "Kubernetes Basics"})
	return h, c
}

func (h *resourceHarness) accessible(t *testing.T, id uuid.UUID) bool {
	t.Helper()
	c, err := h.courses.GetByID(context.Background(), nil, id)
	if err != nil || c == nil {
		t.Fatalf("load course: %v", err)
	}
	return c.IsOfflineAccessible
}

func TestAddResourceFillsSizeFromBucket(t *testing.T) {
	bucket := &fakeBucket{
		objects:  map[string]int64{"videos/intro.mp4": 7340032},
		prefixes: map[string]int64{"slides/": 4096},
	}
	h, c := newResourceHarness(t, bucket)
	ctx := context.Background()

	video, err := h.svc.AddResource(ctx, AddResourceInput{CourseID: c.ID, Name: "Intro", URL: "gs://course-resources/videos/intro.mp4", Type: learning.ResourceTypeVideo})
	if err != nil {
		t.Fatalf("AddResource: %v", err)
	}
	if video.Size == nil || *video.Size != 7340032 {
		t.Fatalf("expected size from object attrs, got %v", video.Size)
	}

	slides, err := h.svc.AddResource(ctx, AddResourceInput{CourseID: c.ID, Name: "Slides", URL: "gs://course-resources/slides/", Type: learning.ResourceTypeDocument})
	if err != nil {
		t.Fatalf("AddResource: %v", err)
	}
	if slides.Size == nil || *slides.Size != 4096 {
		t.Fatalf("expected size from prefix, got %v", slides.Size)
	}

	missing, err := h.svc.AddResource(ctx, AddResourceInput{CourseID: c.ID, Name: "Gone", URL: "gs://course-resources/nope.pdf", Type: learning.ResourceTypePDF})
	if err != nil {
		t.Fatalf("AddResource: %v", err)
	}
	if missing.Size != nil {
		t.Fatalf("missing object should leave size unset")
	}

	declared, err := h.svc.AddResource(ctx, AddResourceInput{CourseID: c.ID, Name: "Notes", URL: "gs://course-resources/videos/intro.mp4", Type: learning.ResourceTypeText, Size: testutil.PtrInt64(12)})
	if err != nil {
		t.Fatalf("AddResource: %v", err)
	}
	if *declared.Size != 12 {
		t.Fatalf("declared size must win, got %d", *declared.Size)
	}

	if !h.accessible(t, c.ID) {
		t.Fatalf("adding a resource should make the course offline accessible")
	}
	if got := h.emit.Events(); len(got) != 4 || got[0] != realtime.SSEEventResourceAdded {
		t.Fatalf("unexpected events %v", got)
	}
}

func TestAddResourceValidation(t *testing.T) {
	h, c := newResourceHarness(t, nil)
	ctx := context.Background()

	if _, err := h.svc.AddResource(ctx, AddResourceInput{CourseID: c.ID, Name: "x", URL: "https://cdn.example.com/x", Type: "SPREADSHEET"}); !apierr.IsBadRequest(err) {
		t.Fatalf("expected BadRequest for bad type, got %v", err)
	}
	if _, err := h.svc.AddResource(ctx, AddResourceInput{CourseID: c.ID, Name: "", URL: "https://cdn.example.com/x", Type: learning.ResourceTypePDF}); !apierr.IsBadRequest(err) {
		t.Fatalf("expected BadRequest for empty name, got %v", err)
	}
	if _, err := h.svc.AddResource(ctx, AddResourceInput{CourseID: uuid.New(), Name: "x", URL: "https://cdn.example.com/x", Type: learning.ResourceTypePDF}); !apierr.IsNotFound(err) {
		t.Fatalf("expected NotFound for unknown course, got %v", err)
	}
	if h.accessible(t, c.ID) {
		t.Fatalf("failed adds must not change the course")
	}
}

func TestUpdateAndDeleteResource(t *testing.T) {
	bucket := &fakeBucket{objects: map[string]int64{"v2.pdf": 2048}}
	h, c := newResourceHarness(t, bucket)
	ctx := context.Background()

	res, err := h.svc.AddResource(ctx, AddResourceInput{CourseID: c.ID, Name: "Handout", URL: "https://cdn.example.com/v1.pdf", Type: learning.ResourceTypePDF})
	if err != nil {
		t.Fatalf("AddResource: %v", err)
	}
	before := res.LastModified

	name := "Handout v2"
	url := "gs://course-resources/v2.pdf"
	updated, err := h.svc.UpdateResource(ctx, res.ID, UpdateResourceInput{Name: &name, URL: &url})
	if err != nil {
		t.Fatalf("UpdateResource: %v", err)
	}
	if updated.Name != name || updated.URL != url {
		t.Fatalf("fields not applied: %+v", updated)
	}
	if updated.Size == nil || *updated.Size != 2048 {
		t.Fatalf("size should follow the new url, got %v", updated.Size)
	}
	if updated.LastModified.Before(before) {
		t.Fatalf("LastModified should move forward")
	}

	if _, err := h.svc.UpdateResource(ctx, uuid.New(), UpdateResourceInput{Name: &name}); !apierr.IsNotFound(err) {
		t.Fatalf("expected NotFound, got %v", err)
	}

	if err := h.svc.DeleteResource(ctx, res.ID); err != nil {
		t.Fatalf("DeleteResource: %v", err)
	}
	if h.accessible(t, c.ID) {
		t.Fatalf("course without resources should not be offline accessible")
	}
	if err := h.svc.DeleteResource(ctx, res.ID); !apierr.IsNotFound(err) {
		t.Fatalf("expected NotFound on second delete, got %v", err)
	}
	rows, err := h.svc.ListResources(ctx, c.ID)
	if err != nil || len(rows) != 0 {
		t.Fatalf("ListResources: rows=%d err=%v", len(rows), err)
	}
}

func TestToggleOfflineAccess(t *testing.T) {
	h, c := newResourceHarness(t, nil)
	ctx := context.Background()

	on, err := h.svc.ToggleOfflineAccess(ctx, c.ID)
	if err != nil {
		t.Fatalf("ToggleOfflineAccess: %v", err)
	}
	if !on.IsOfflineAccessible || on.Message != "Kubernetes Basics is open to be downloaded" {
		t.Fatalf("unexpected result %+v", on)
	}
	off, err := h.svc.ToggleOfflineAccess(ctx, c.ID)
	if err != nil {
		t.Fatalf("ToggleOfflineAccess: %v", err)
	}
	if off.IsOfflineAccessible || off.Message != "Kubernetes Basics is offline inaccessible, and cannot be downloaded" {
		t.Fatalf("unexpected result %+v", off)
	}

	msg, ok := h.emit.Last()
	if !ok || msg.Event != realtime.SSEEventCourseDownloadStatus || msg.Channel != realtime.BroadcastChannel {
		t.Fatalf("unexpected event %+v", msg)
	}

	if _, err := h.svc.ToggleOfflineAccess(ctx, uuid.Nil); !apierr.IsBadRequest(err) {
		t.Fatalf("expected BadRequest, got %v", err)
	}
	if _, err := h.svc.ToggleOfflineAccess(ctx, uuid.New()); !apierr.IsNotFound(err) {
		t.Fatalf("expected NotFound, got %v", err)
	}
}
