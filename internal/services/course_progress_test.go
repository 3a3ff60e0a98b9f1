package services

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/yungbote/coursesync-backend/internal/data/repos"
	"github.com/yungbote/coursesync-backend/internal/data/repos/testutil"
	types "github.com/yungbote/coursesync-backend/internal/domain"
	"github.com/yungbote/coursesync-backend/internal/modules/offline/sizing"
	"github.com/yungbote/coursesync-backend/internal/platform/apierr"
	"github.com/yungbote/coursesync-backend/internal/platform/keylock"
	"github.com/yungbote/coursesync-backend/internal/realtime"
)

type progressHarness struct {
	db       *gorm.DB
	svc      *courseProgressService
	sink     *recordingSink
	emit     *recordingEmitter
	courses  repos.CourseRepo
	progress repos.CourseProgressRepo
}

// steppingClock advances one second per reading so that download and sync
// stamps are distinguishable.
func steppingClock(start time.Time) func() time.Time {
	var mu sync.Mutex
	cur := start
	return func() time.Time {
		mu.Lock()
		defer mu.Unlock()
		cur = cur.Add(time.Second)
		return cur
	}
}

func newProgressHarness(t *testing.T) *progressHarness {
	t.Helper()
	db := testutil.DB(t)
	log := testutil.Logger(t)

	h := &progressHarness{
		db:       db,
		sink:     &recordingSink{},
		emit:     &recordingEmitter{},
		courses:  repos.NewCourseRepo(db, log),
		progress: repos.NewCourseProgressRepo(db, log),
	}
	svc := NewCourseProgressService(
		db,
		log,
		h.courses,
		repos.NewUserRepo(db, log),
		h.progress,
		sizing.NewEstimator(sizing.DefaultConfig()),
		h.sink,
		h.emit,
		keylock.NewLocal(),
	)
	h.svc = svc.(*courseProgressService)
	h.svc.now = steppingClock(time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC))
	return h
}

func (h *progressHarness) seedUser(t *testing.T) *types.User {
	t.Helper()
	return testutil.SeedUser(t, context.Background(), h.db, uuid.NewString()+"@example.com")
}

func (h *progressHarness) seedCourse(t *testing.T, opts testutil.CourseOpts) *types.Course {
	t.Helper()
	return testutil.SeedCourse(t, context.Background(), h.db, opts)
}

func (h *progressHarness) seedProgress(t *testing.T, userID, courseID uuid.UUID, pct float64, completed bool) {
	t.Helper()
	testutil.SeedProgress(t, context.Background(), h.db, &types.CourseProgress{
		UserID:             userID,
		CourseID:           courseID,
		ProgressPercentage: pct,
		IsCompleted:        completed,
	})
}

func (h *progressHarness) load(t *testing.T, userID, courseID uuid.UUID) *types.CourseProgress {
	t.Helper()
	p, err := h.progress.GetByUserAndCourse(context.Background(), nil, userID, courseID)
	if err != nil {
		t.Fatalf("load progress: %v", err)
	}
	return p
}

func (h *progressHarness) course(t *testing.T, id uuid.UUID) *types.Course {
	t.Helper()
	c, err := h.courses.GetByID(context.Background(), nil, id)
	if err != nil || c == nil {
		t.Fatalf("load course: c=%v err=%v", c, err)
	}
	return c
}

func TestUpdateProgressUpsertsSingleRecord(t *testing.T) {
	h := newProgressHarness(t)
	ctx := context.Background()
	u := h.seedUser(t)
	c := h.seedCourse(t, testutil.CourseOpts{})

	if _, err := h.svc.UpdateProgress(ctx, UpdateProgressInput{
		UserID: u.ID, CourseID: c.ID, ProgressPercentage: 10, LastPosition: testutil.PtrFloat(42.5),
	}); err != nil {
		t.Fatalf("first update: %v", err)
	}
	got, err := h.svc.UpdateProgress(ctx, UpdateProgressInput{
		UserID: u.ID, CourseID: c.ID, ProgressPercentage: 20,
	})
	if err != nil {
		t.Fatalf("second update: %v", err)
	}
	if got.ProgressPercentage != 20 {
		t.Fatalf("ProgressPercentage = %v, want 20", got.ProgressPercentage)
	}
	if got.LastPosition == nil || *got.LastPosition != 42.5 {
		t.Fatalf("LastPosition should survive an update without one, got %v", got.LastPosition)
	}

	rows, err := h.svc.GetUserCourseProgress(ctx, u.ID)
	if err != nil {
		t.Fatalf("GetUserCourseProgress: %v", err)
	}
	if len(rows) != 1 {
		t.Fatalf("expected exactly one progress row, got %d", len(rows))
	}
	if rows[0].Course == nil || rows[0].Course.ID != c.ID {
		t.Fatalf("expected course to be preloaded")
	}
}

func TestUpdateProgressAllowsRegression(t *testing.T) {
	h := newProgressHarness(t)
	u := h.seedUser(t)
	c := h.seedCourse(t, testutil.CourseOpts{})
	h.seedProgress(t, u.ID, c.ID, 90, false)

	got, err := h.svc.UpdateProgress(context.Background(), UpdateProgressInput{UserID: u.ID, CourseID: c.ID, ProgressPercentage: 30})
	if err != nil {
		t.Fatalf("UpdateProgress: %v", err)
	}
	if got.ProgressPercentage != 30 {
		t.Fatalf("ProgressPercentage = %v, want 30", got.ProgressPercentage)
	}
	if n := len(h.sink.Calls()); n != 0 {
		t.Fatalf("regression should not notify, got %d notifications", n)
	}
}

func TestUpdateProgressMilestones(t *testing.T) {
	tests := []struct {
		name string
		prev float64
		next float64
		want []string
	}{
		{name: "crosses 50", prev: 40, next: 55, want: []string{"50%"}},
		{name: "crosses both in one jump", prev: 40, next: 80, want: []string{"75%"}},
		{name: "lands exactly on 50", prev: 0, next: 50, want: []string{"50%"}},
		{name: "crosses 75 only", prev: 60, next: 75, want: []string{"75%"}},
		{name: "stays between", prev: 55, next: 60},
		{name: "already past", prev: 80, next: 95},
		{name: "goes down", prev: 76, next: 40},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := newProgressHarness(t)
			u := h.seedUser(t)
			c := h.seedCourse(t, testutil.CourseOpts{Title: "Distributed Systems"})
			h.seedProgress(t, u.ID, c.ID, tt.prev, false)

			if _, err := h.svc.UpdateProgress(context.Background(), UpdateProgressInput{
				UserID: u.ID, CourseID: c.ID, ProgressPercentage: tt.next,
			}); err != nil {
				t.Fatalf("UpdateProgress: %v", err)
			}

			var got []string
			for _, call := range h.sink.Calls() {
				got = append(got, call.Metadata["milestone"].(string))
			}
			if diff := cmp.Diff(tt.want, got); diff != "" {
				t.Fatalf("milestones mismatch (-want +got):\n%s", diff)
			}
			for _, call := range h.sink.Calls() {
				if call.RecipientID != u.ID || call.PhoneNumber != u.PhoneNumber {
					t.Fatalf("unexpected recipient %+v", call)
				}
				if !strings.Contains(call.Content, `"Distributed Systems"`) {
					t.Fatalf("content should name the course: %q", call.Content)
				}
			}
		})
	}
}

func TestUpdateProgressCompletionExcludesMilestone(t *testing.T) {
	h := newProgressHarness(t)
	u := h.seedUser(t)
	c := h.seedCourse(t, testutil.CourseOpts{Title: "Go Concurrency"})
	h.seedProgress(t, u.ID, c.ID, 40, false)

	got, err := h.svc.UpdateProgress(context.Background(), UpdateProgressInput{
		UserID: u.ID, CourseID: c.ID, ProgressPercentage: 100, IsCompleted: testutil.PtrBool(true),
	})
	if err != nil {
		t.Fatalf("UpdateProgress: %v", err)
	}
	if !got.IsCompleted {
		t.Fatalf("expected completed")
	}

	calls := h.sink.Calls()
	if len(calls) != 1 {
		t.Fatalf("expected one notification, got %d", len(calls))
	}
	if calls[0].Title != "Course Completed! 🎉" {
		t.Fatalf("title = %q", calls[0].Title)
	}
	want := `Congratulations Ada! You've completed the course "Go Concurrency". Keep up the great work!`
	if calls[0].Content != want {
		t.Fatalf("content = %q, want %q", calls[0].Content, want)
	}
	if _, ok := calls[0].Metadata["milestone"]; ok {
		t.Fatalf("completion must not carry a milestone")
	}
	if calls[0].Metadata["courseName"] != "Go Concurrency" {
		t.Fatalf("metadata = %v", calls[0].Metadata)
	}
}

func TestUpdateProgressAlreadyCompletedFallsBackToMilestone(t *testing.T) {
	h := newProgressHarness(t)
	u := h.seedUser(t)
	c := h.seedCourse(t, testutil.CourseOpts{})
	h.seedProgress(t, u.ID, c.ID, 40, true)

	if _, err := h.svc.UpdateProgress(context.Background(), UpdateProgressInput{
		UserID: u.ID, CourseID: c.ID, ProgressPercentage: 55, IsCompleted: testutil.PtrBool(true),
	}); err != nil {
		t.Fatalf("UpdateProgress: %v", err)
	}
	calls := h.sink.Calls()
	if len(calls) != 1 || calls[0].Metadata["milestone"] != "50%" {
		t.Fatalf("expected a single 50%% milestone, got %+v", calls)
	}
}

func TestUpdateProgressEmitsEvent(t *testing.T) {
	h := newProgressHarness(t)
	u := h.seedUser(t)
	c := h.seedCourse(t, testutil.CourseOpts{})

	if _, err := h.svc.UpdateProgress(context.Background(), UpdateProgressInput{
		UserID: u.ID, CourseID: c.ID, ProgressPercentage: 12.5,
	}); err != nil {
		t.Fatalf("UpdateProgress: %v", err)
	}
	msg, ok := h.emit.Last()
	if !ok {
		t.Fatalf("expected an event")
	}
	if msg.Event != realtime.SSEEventProgressUpdated || msg.Channel != realtime.UserChannel(u.ID) {
		t.Fatalf("unexpected event %+v", msg)
	}
	data := msg.Data.(map[string]any)
	if data["progressPercentage"] != 12.5 || data["isCompleted"] != false {
		t.Fatalf("unexpected payload %v", data)
	}
}

func TestUpdateProgressFailures(t *testing.T) {
	t.Run("course missing", func(t *testing.T) {
		h := newProgressHarness(t)
		u := h.seedUser(t)
		courseID := uuid.New()
		_, err := h.svc.UpdateProgress(context.Background(), UpdateProgressInput{UserID: u.ID, CourseID: courseID, ProgressPercentage: 10})
		if !apierr.IsNotFound(err) {
			t.Fatalf("expected NotFound, got %v", err)
		}
		if p := h.load(t, u.ID, courseID); p != nil {
			t.Fatalf("no progress should be created")
		}
	})

	t.Run("user missing when notifying", func(t *testing.T) {
		h := newProgressHarness(t)
		c := h.seedCourse(t, testutil.CourseOpts{})
		ghost := uuid.New()
		_, err := h.svc.UpdateProgress(context.Background(), UpdateProgressInput{UserID: ghost, CourseID: c.ID, ProgressPercentage: 60})
		if !apierr.IsNotFound(err) {
			t.Fatalf("expected NotFound, got %v", err)
		}
		// persistence commits before the notification step
		if p := h.load(t, ghost, c.ID); p == nil || p.ProgressPercentage != 60 {
			t.Fatalf("expected committed progress, got %+v", p)
		}
		if len(h.emit.Events()) != 0 {
			t.Fatalf("no event after a failed notification")
		}
	})

	t.Run("missing user id when notifying", func(t *testing.T) {
		h := newProgressHarness(t)
		c := h.seedCourse(t, testutil.CourseOpts{})
		_, err := h.svc.UpdateProgress(context.Background(), UpdateProgressInput{
			UserID: uuid.Nil, CourseID: c.ID, ProgressPercentage: 100, IsCompleted: testutil.PtrBool(true),
		})
		if !apierr.IsConflict(err) {
			t.Fatalf("expected Conflict, got %v", err)
		}
	})

	t.Run("sink failure propagates", func(t *testing.T) {
		h := newProgressHarness(t)
		h.sink.err = errors.New("sms gateway down")
		u := h.seedUser(t)
		c := h.seedCourse(t, testutil.CourseOpts{})
		_, err := h.svc.UpdateProgress(context.Background(), UpdateProgressInput{UserID: u.ID, CourseID: c.ID, ProgressPercentage: 50})
		if err == nil || !strings.Contains(err.Error(), "sms gateway down") {
			t.Fatalf("expected sink error, got %v", err)
		}
	})
}

func TestDownloadCourse(t *testing.T) {
	h := newProgressHarness(t)
	ctx := context.Background()
	u := h.seedUser(t)
	c := h.seedCourse(t, testutil.CourseOpts{Title: "Offline Go", Duration: "00:05:00", IsOfflineAccessible: true, Quizzes: 1})
	device := types.DeviceInfo{Platform: "ios", Browser: "safari", OS: "17.2"}

	res, err := h.svc.DownloadCourse(ctx, DownloadCourseInput{UserID: u.ID, CourseID: c.ID, DeviceInfo: device})
	if err != nil {
		t.Fatalf("DownloadCourse: %v", err)
	}

	wantInfo := StorageInfo{
		EstimatedSize:          52_582_400,
		EstimatedSizeFormatted: "50.15 MB",
		HasEnoughStorage:       true,
	}
	if diff := cmp.Diff(wantInfo, res.StorageInfo); diff != "" {
		t.Fatalf("storage info mismatch (-want +got):\n%s", diff)
	}
	if res.Course.DownloadCount != 1 || h.course(t, c.ID).DownloadCount != 1 {
		t.Fatalf("expected download count 1")
	}

	p := h.load(t, u.ID, c.ID)
	if !p.IsDownloadedOffline {
		t.Fatalf("expected IsDownloadedOffline")
	}
	if len(p.OfflineAccessHistory) != 1 {
		t.Fatalf("history len = %d, want 1", len(p.OfflineAccessHistory))
	}
	ev := p.OfflineAccessHistory[0]
	if ev.SyncedAt != nil || ev.DeviceInfo != device {
		t.Fatalf("unexpected history entry %+v", ev)
	}

	calls := h.sink.Calls()
	if len(calls) != 1 || calls[0].Title != "Course Downloaded Successfully" {
		t.Fatalf("expected one download notification, got %+v", calls)
	}
	if calls[0].Metadata["estimatedSize"] != "50.15 MB" {
		t.Fatalf("metadata = %v", calls[0].Metadata)
	}
}

func TestDownloadCourseEchoesClientStorage(t *testing.T) {
	h := newProgressHarness(t)
	u := h.seedUser(t)
	c := h.seedCourse(t, testutil.CourseOpts{IsOfflineAccessible: true})

	res, err := h.svc.DownloadCourse(context.Background(), DownloadCourseInput{
		UserID:     u.ID,
		CourseID:   c.ID,
		DeviceInfo: types.DeviceInfo{Browser: "chrome"},
		ClientStorageInfo: &ClientStorageInfo{
			TotalStorageUsed:  1 << 30,
			MaxStorageAllowed: 4 << 30,
			HasEnoughStorage:  testutil.PtrBool(true),
		},
	})
	if err != nil {
		t.Fatalf("DownloadCourse: %v", err)
	}
	if res.StorageInfo.TotalStorageUsed != 1<<30 || res.StorageInfo.MaxStorageAllowed != 4<<30 || !res.StorageInfo.HasEnoughStorage {
		t.Fatalf("unexpected storage info %+v", res.StorageInfo)
	}
}

func TestDownloadCourseIsNotIdempotent(t *testing.T) {
	h := newProgressHarness(t)
	ctx := context.Background()
	u := h.seedUser(t)
	c := h.seedCourse(t, testutil.CourseOpts{IsOfflineAccessible: true})

	for i := 0; i < 3; i++ {
		if _, err := h.svc.DownloadCourse(ctx, DownloadCourseInput{UserID: u.ID, CourseID: c.ID, DeviceInfo: types.DeviceInfo{Browser: "firefox"}}); err != nil {
			t.Fatalf("download %d: %v", i, err)
		}
	}
	if got := h.course(t, c.ID).DownloadCount; got != 3 {
		t.Fatalf("DownloadCount = %d, want 3", got)
	}
	if got := len(h.load(t, u.ID, c.ID).OfflineAccessHistory); got != 3 {
		t.Fatalf("history len = %d, want 3", got)
	}
	rows, _ := h.svc.GetUserCourseProgress(ctx, u.ID)
	if len(rows) != 1 {
		t.Fatalf("expected one progress row, got %d", len(rows))
	}
}

func TestDownloadCourseGatingDoesNotMutate(t *testing.T) {
	tests := []struct {
		name       string
		accessible bool
		user       func(h *progressHarness, t *testing.T) uuid.UUID
		storage    *ClientStorageInfo
		check      func(error) bool
	}{
		{
			name:       "not offline accessible",
			accessible: false,
			user:       func(h *progressHarness, t *testing.T) uuid.UUID { return h.seedUser(t).ID },
			check:      apierr.IsBadRequest,
		},
		{
			name:       "client out of storage",
			accessible: true,
			user:       func(h *progressHarness, t *testing.T) uuid.UUID { return h.seedUser(t).ID },
			storage:    &ClientStorageInfo{HasEnoughStorage: testutil.PtrBool(false)},
			check:      apierr.IsBadRequest,
		},
		{
			name:       "unknown user",
			accessible: true,
			user:       func(*progressHarness, *testing.T) uuid.UUID { return uuid.New() },
			check:      apierr.IsNotFound,
		},
		{
			name:       "missing user id",
			accessible: true,
			user:       func(*progressHarness, *testing.T) uuid.UUID { return uuid.Nil },
			check:      apierr.IsConflict,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := newProgressHarness(t)
			c := h.seedCourse(t, testutil.CourseOpts{IsOfflineAccessible: tt.accessible})
			userID := tt.user(h, t)

			_, err := h.svc.DownloadCourse(context.Background(), DownloadCourseInput{
				UserID: userID, CourseID: c.ID, DeviceInfo: types.DeviceInfo{Browser: "edge"}, ClientStorageInfo: tt.storage,
			})
			if !tt.check(err) {
				t.Fatalf("unexpected error %v", err)
			}
			if got := h.course(t, c.ID).DownloadCount; got != 0 {
				t.Fatalf("DownloadCount = %d, want 0", got)
			}
			if p := h.load(t, userID, c.ID); p != nil {
				t.Fatalf("no progress should be created, got %+v", p)
			}
			if n := len(h.sink.Calls()); n != 0 {
				t.Fatalf("no notification expected, got %d", n)
			}
		})
	}
}

func TestDownloadCourseErrorWrapping(t *testing.T) {
	t.Run("unknown errors are wrapped", func(t *testing.T) {
		h := newProgressHarness(t)
		h.sink.err = errors.New("twilio down")
		u := h.seedUser(t)
		c := h.seedCourse(t, testutil.CourseOpts{IsOfflineAccessible: true})

		_, err := h.svc.DownloadCourse(context.Background(), DownloadCourseInput{UserID: u.ID, CourseID: c.ID})
		if err == nil || err.Error() != "failed to download course: twilio down" {
			t.Fatalf("unexpected error %v", err)
		}
		if !errors.Is(err, h.sink.err) {
			t.Fatalf("original error should stay in the chain")
		}
	})

	t.Run("domain errors pass through", func(t *testing.T) {
		h := newProgressHarness(t)
		notFound := apierr.NotFound("recipient gone")
		h.sink.err = notFound
		u := h.seedUser(t)
		c := h.seedCourse(t, testutil.CourseOpts{IsOfflineAccessible: true})

		_, err := h.svc.DownloadCourse(context.Background(), DownloadCourseInput{UserID: u.ID, CourseID: c.ID})
		if err != notFound {
			t.Fatalf("expected the sink's error verbatim, got %v", err)
		}
	})

	t.Run("conflict passes through", func(t *testing.T) {
		h := newProgressHarness(t)
		c := h.seedCourse(t, testutil.CourseOpts{IsOfflineAccessible: true})
		_, err := h.svc.DownloadCourse(context.Background(), DownloadCourseInput{UserID: uuid.Nil, CourseID: c.ID})
		if !apierr.IsConflict(err) || strings.HasPrefix(err.Error(), "failed to download course") {
			t.Fatalf("expected an unwrapped Conflict, got %v", err)
		}
	})

	t.Run("course missing", func(t *testing.T) {
		h := newProgressHarness(t)
		u := h.seedUser(t)
		_, err := h.svc.DownloadCourse(context.Background(), DownloadCourseInput{UserID: u.ID, CourseID: uuid.New()})
		if !apierr.IsNotFound(err) || strings.HasPrefix(err.Error(), "failed to download course") {
			t.Fatalf("unexpected error %v", err)
		}
	})
}

func TestDownloadCourseConcurrent(t *testing.T) {
	h := newProgressHarness(t)
	u := h.seedUser(t)
	c := h.seedCourse(t, testutil.CourseOpts{IsOfflineAccessible: true})

	const n = 8
	var wg sync.WaitGroup
	errs := make(chan error, n)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := h.svc.DownloadCourse(context.Background(), DownloadCourseInput{UserID: u.ID, CourseID: c.ID, DeviceInfo: types.DeviceInfo{Browser: "chrome"}})
			errs <- err
		}()
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		if err != nil {
			t.Fatalf("DownloadCourse: %v", err)
		}
	}

	if got := h.course(t, c.ID).DownloadCount; got != n {
		t.Fatalf("DownloadCount = %d, want %d", got, n)
	}
	if got := len(h.load(t, u.ID, c.ID).OfflineAccessHistory); got != n {
		t.Fatalf("history len = %d, want %d", got, n)
	}
}

func TestEstimateCourseSize(t *testing.T) {
	h := newProgressHarness(t)
	c := h.seedCourse(t, testutil.CourseOpts{Duration: "01:30:00", ResourceSizes: []*int64{testutil.PtrInt64(2048), nil}})

	info, err := h.svc.EstimateCourseSize(context.Background(), c.ID)
	if err != nil {
		t.Fatalf("EstimateCourseSize: %v", err)
	}
	want := int64(100*sizing.KiB + 90*10*sizing.MiB + 2048 + sizing.MiB)
	if info.EstimatedSize != want {
		t.Fatalf("EstimatedSize = %d, want %d", info.EstimatedSize, want)
	}
	if info.TotalStorageUsed != 0 || info.MaxStorageAllowed != 0 || !info.HasEnoughStorage {
		t.Fatalf("client fields should default, got %+v", info)
	}

	if _, err := h.svc.EstimateCourseSize(context.Background(), uuid.New()); !apierr.IsNotFound(err) {
		t.Fatalf("expected NotFound, got %v", err)
	}
}

func TestEstimateCourseSizeWrapsEstimatorFailure(t *testing.T) {
	h := newProgressHarness(t)
	c := h.seedCourse(t, testutil.CourseOpts{})
	h.svc.estimator = estimatorFunc(func(course *types.Course) (int64, error) {
		return 0, &sizing.EstimationError{CourseID: course.ID.String(), Reason: "negative resource size"}
	})

	_, err := h.svc.EstimateCourseSize(context.Background(), c.ID)
	if err == nil || !strings.HasPrefix(err.Error(), "failed to estimate course size: ") {
		t.Fatalf("unexpected error %v", err)
	}
	var estErr *sizing.EstimationError
	if !errors.As(err, &estErr) {
		t.Fatalf("expected EstimationError in chain")
	}
	if apierr.StatusOf(err) != 500 {
		t.Fatalf("estimator failures are internal errors")
	}
}

// gatedCourseRepo holds GetByIDWithContents until release is closed.
type gatedCourseRepo struct {
	repos.CourseRepo
	once    sync.Once
	entered chan struct{}
	release chan struct{}
}

func (g *gatedCourseRepo) GetByIDWithContents(ctx context.Context, tx *gorm.DB, id uuid.UUID) (*types.Course, error) {
	g.once.Do(func() { close(g.entered) })
	<-g.release
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return g.CourseRepo.GetByIDWithContents(ctx, tx, id)
}

func TestEstimateCourseSizeSurvivesCancelledPeer(t *testing.T) {
	h := newProgressHarness(t)
	c := h.seedCourse(t, testutil.CourseOpts{Duration: "00:05:00", Quizzes: 1})
	gate := &gatedCourseRepo{CourseRepo: h.courses, entered: make(chan struct{}), release: make(chan struct{})}
	h.svc.courseRepo = gate

	ctxA, cancelA := context.WithCancel(context.Background())
	errA := make(chan error, 1)
	go func() {
		_, err := h.svc.EstimateCourseSize(ctxA, c.ID)
		errA <- err
	}()
	<-gate.entered

	type result struct {
		info *StorageInfo
		err  error
	}
	resB := make(chan result, 1)
	go func() {
		info, err := h.svc.EstimateCourseSize(context.Background(), c.ID)
		resB <- result{info, err}
	}()
	// let the second caller join the in-flight load
	time.Sleep(50 * time.Millisecond)

	cancelA()
	if err := <-errA; !errors.Is(err, context.Canceled) {
		t.Fatalf("cancelled caller: expected context.Canceled, got %v", err)
	}
	close(gate.release)

	select {
	case got := <-resB:
		if got.err != nil {
			t.Fatalf("live caller failed: %v", got.err)
		}
		if got.info.EstimatedSize != 52_582_400 {
			t.Fatalf("EstimatedSize = %d, want 52582400", got.info.EstimatedSize)
		}
	case <-time.After(5 * time.Second):
		t.Fatalf("live caller did not return")
	}
}

func TestSyncOfflineProgressTouchesOnlyTail(t *testing.T) {
	h := newProgressHarness(t)
	ctx := context.Background()
	u := h.seedUser(t)
	c := h.seedCourse(t, testutil.CourseOpts{Title: "Sync Me", IsOfflineAccessible: true})

	for _, browser := range []string{"safari", "chrome"} {
		if _, err := h.svc.DownloadCourse(ctx, DownloadCourseInput{UserID: u.ID, CourseID: c.ID, DeviceInfo: types.DeviceInfo{Platform: "web", Browser: browser}}); err != nil {
			t.Fatalf("DownloadCourse: %v", err)
		}
	}
	before := h.load(t, u.ID, c.ID)

	device := types.DeviceInfo{Platform: "android", Browser: "webview", Model: "Pixel 8"}
	got, err := h.svc.SyncOfflineProgress(ctx, SyncOfflineProgressInput{
		UpdateProgressInput: UpdateProgressInput{UserID: u.ID, CourseID: c.ID, ProgressPercentage: 30, LastPosition: testutil.PtrFloat(812)},
		DeviceInfo:          device,
		LastModifiedOffline: time.Date(2026, 2, 28, 8, 0, 0, 0, time.UTC),
	})
	if err != nil {
		t.Fatalf("SyncOfflineProgress: %v", err)
	}

	after := h.load(t, u.ID, c.ID)
	if len(after.OfflineAccessHistory) != len(before.OfflineAccessHistory) {
		t.Fatalf("sync changed history length: %d -> %d", len(before.OfflineAccessHistory), len(after.OfflineAccessHistory))
	}
	if diff := cmp.Diff(before.OfflineAccessHistory[0], after.OfflineAccessHistory[0]); diff != "" {
		t.Fatalf("earlier history entry changed (-before +after):\n%s", diff)
	}
	last := after.OfflineAccessHistory[1]
	if last.SyncedAt == nil || last.DeviceInfo != device {
		t.Fatalf("tail not touched: %+v", last)
	}
	if !last.DownloadedAt.Equal(before.OfflineAccessHistory[1].DownloadedAt) {
		t.Fatalf("DownloadedAt must not change")
	}
	if got.ProgressPercentage != 30 || after.LastPosition == nil || *after.LastPosition != 812 {
		t.Fatalf("client values not applied: %+v", after)
	}
	if h.course(t, c.ID).LastSyncedAt == nil {
		t.Fatalf("course LastSyncedAt should be set")
	}

	calls := h.sink.Calls()
	syncCall := calls[len(calls)-1]
	want := `Hi Ada, your progress for "Sync Me" has been successfully synced. You're at 30% completion.`
	if syncCall.Title != "Course Progress Synced" || syncCall.Content != want {
		t.Fatalf("unexpected sync notification %+v", syncCall)
	}
	msg, _ := h.emit.Last()
	if msg.Event != realtime.SSEEventProgressSynced {
		t.Fatalf("expected progress-synced, got %s", msg.Event)
	}
	if msg.Data.(map[string]any)["deviceInfo"] != device {
		t.Fatalf("event should carry device info")
	}
}

func TestSyncOfflineProgressRequiresExistingRecord(t *testing.T) {
	h := newProgressHarness(t)
	u := h.seedUser(t)
	c := h.seedCourse(t, testutil.CourseOpts{})

	_, err := h.svc.SyncOfflineProgress(context.Background(), SyncOfflineProgressInput{
		UpdateProgressInput: UpdateProgressInput{UserID: u.ID, CourseID: c.ID, ProgressPercentage: 50},
		DeviceInfo:          types.DeviceInfo{Browser: "chrome"},
	})
	if !apierr.IsNotFound(err) {
		t.Fatalf("expected NotFound, got %v", err)
	}
	if p := h.load(t, u.ID, c.ID); p != nil {
		t.Fatalf("sync must not create progress")
	}
	if h.course(t, c.ID).LastSyncedAt != nil {
		t.Fatalf("sync failure must not touch the course")
	}
	if len(h.sink.Calls()) != 0 || len(h.emit.Events()) != 0 {
		t.Fatalf("no side effects expected")
	}
}

func TestSyncOfflineProgressAcceptsClientValuesUnconditionally(t *testing.T) {
	h := newProgressHarness(t)
	u := h.seedUser(t)
	c := h.seedCourse(t, testutil.CourseOpts{})
	h.seedProgress(t, u.ID, c.ID, 90, true)

	got, err := h.svc.SyncOfflineProgress(context.Background(), SyncOfflineProgressInput{
		UpdateProgressInput: UpdateProgressInput{UserID: u.ID, CourseID: c.ID, ProgressPercentage: 20, IsCompleted: testutil.PtrBool(false)},
		DeviceInfo:          types.DeviceInfo{Browser: "chrome"},
		LastModifiedOffline: time.Now().Add(-365 * 24 * time.Hour),
	})
	if err != nil {
		t.Fatalf("SyncOfflineProgress: %v", err)
	}
	if got.ProgressPercentage != 20 || got.IsCompleted {
		t.Fatalf("stale offline values should still win, got %+v", got)
	}
	if len(got.OfflineAccessHistory) != 0 {
		t.Fatalf("sync without history must not append")
	}
}

func TestGetCourseProgressByUserAndCourse(t *testing.T) {
	h := newProgressHarness(t)
	u := h.seedUser(t)
	c := h.seedCourse(t, testutil.CourseOpts{})

	if _, err := h.svc.GetCourseProgressByUserAndCourse(context.Background(), u.ID, c.ID); !apierr.IsNotFound(err) {
		t.Fatalf("expected NotFound, got %v", err)
	}
	h.seedProgress(t, u.ID, c.ID, 5, false)
	p, err := h.svc.GetCourseProgressByUserAndCourse(context.Background(), u.ID, c.ID)
	if err != nil || p.ProgressPercentage != 5 {
		t.Fatalf("unexpected result p=%+v err=%v", p, err)
	}
}

func TestCrossedMilestone(t *testing.T) {
	tests := []struct {
		prev, next float64
		want       string
		ok         bool
	}{
		{49.9, 50, "50%", true},
		{50, 74.99, "", false},
		{74.99, 75, "75%", true},
		{0, 100, "75%", true},
		{100, 0, "", false},
	}
	for _, tt := range tests {
		got, ok := crossedMilestone(tt.prev, tt.next)
		if got != tt.want || ok != tt.ok {
			t.Fatalf("crossedMilestone(%v, %v) = %q, %v; want %q, %v", tt.prev, tt.next, got, ok, tt.want, tt.ok)
		}
	}
}
