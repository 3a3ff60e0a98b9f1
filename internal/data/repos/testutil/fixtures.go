package testutil

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	types "github.com/yungbote/coursesync-backend/internal/domain"
	"github.com/yungbote/coursesync-backend/internal/domain/learning"
)

func SeedUser(tb testing.TB, ctx context.Context, tx *gorm.DB, email string) *types.User {
	tb.Helper()
	u := &types.User{
		ID:          uuid.New(),
		Email:       email,
		FirstName:   "Ada",
		LastName:    "Lovelace",
		PhoneNumber: "+15550001111",
	}
	if err := tx.WithContext(ctx).Create(u).Error; err != nil {
		tb.Fatalf("seed user: %v", err)
	}
	return u
}

type CourseOpts struct {
	Title               string
	Duration            string
	IsOfflineAccessible bool
	ResourceSizes       []*int64
	Quizzes             int
}

func SeedCourse(tb testing.TB, ctx context.Context, tx *gorm.DB, opts CourseOpts) *types.Course {
	tb.Helper()
	title := opts.Title
	if title == "" {
		title = "Intro to Go"
	}
	c := &types.Course{
		ID:                  uuid.New(),
		Title:               title,
		Duration:            opts.Duration,
		IsOfflineAccessible: opts.IsOfflineAccessible,
	}
	if err := tx.WithContext(ctx).Create(c).Error; err != nil {
		tb.Fatalf("seed course: %v", err)
	}
	// The flag has a column default; write it explicitly so false sticks.
	if err := tx.WithContext(ctx).Model(c).Update("is_offline_accessible", opts.IsOfflineAccessible).Error; err != nil {
		tb.Fatalf("seed course flag: %v", err)
	}
	for i, size := range opts.ResourceSizes {
		r := &types.AdditionalResource{
			CourseID: c.ID,
			Title:    "resource",
			Type:     learning.ResourceTypePDF,
			URL:      "https://example.com/r.pdf",
			FileSize: size,
		}
		if err := tx.WithContext(ctx).Create(r).Error; err != nil {
			tb.Fatalf("seed resource %d: %v", i, err)
		}
	}
	for i := 0; i < opts.Quizzes; i++ {
		q := &types.Quiz{CourseID: c.ID, Title: "quiz"}
		if err := tx.WithContext(ctx).Create(q).Error; err != nil {
			tb.Fatalf("seed quiz %d: %v", i, err)
		}
	}
	return c
}

func SeedProgress(tb testing.TB, ctx context.Context, tx *gorm.DB, p *types.CourseProgress) *types.CourseProgress {
	tb.Helper()
	if err := tx.WithContext(ctx).Create(p).Error; err != nil {
		tb.Fatalf("seed progress: %v", err)
	}
	return p
}

func PtrInt64(v int64) *int64 { return &v }

func PtrFloat(v float64) *float64 { return &v }

func PtrBool(v bool) *bool { return &v }

func PtrTime(v time.Time) *time.Time { return &v }
