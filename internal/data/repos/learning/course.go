package learning

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	types "github.com/yungbote/coursesync-backend/internal/domain"
	"github.com/yungbote/coursesync-backend/internal/platform/logger"
)

type CourseRepo interface {
	Create(ctx context.Context, tx *gorm.DB, courses []*types.Course) ([]*types.Course, error)
	GetByID(ctx context.Context, tx *gorm.DB, courseID uuid.UUID) (*types.Course, error)
	GetByIDWithContents(ctx context.Context, tx *gorm.DB, courseID uuid.UUID) (*types.Course, error)
	Save(ctx context.Context, tx *gorm.DB, course *types.Course) error
	IncrementDownloadCount(ctx context.Context, tx *gorm.DB, courseID uuid.UUID) error
	SetLastSyncedAt(ctx context.Context, tx *gorm.DB, courseID uuid.UUID, at time.Time) error
	SetOfflineAccessible(ctx context.Context, tx *gorm.DB, courseID uuid.UUID, accessible bool) error
	// ToggleOfflineAccessible flips the flag in place and returns the new value.
	ToggleOfflineAccessible(ctx context.Context, tx *gorm.DB, courseID uuid.UUID) (bool, error)
}

type courseRepo struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewCourseRepo(db *gorm.DB, baseLog *logger.Logger) CourseRepo {
	repoLog := baseLog.With("repo", "CourseRepo")
	return &courseRepo{db: db, log: repoLog}
}

func (r *courseRepo) Create(ctx context.Context, tx *gorm.DB, courses []*types.Course) ([]*types.Course, error) {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}

	if len(courses) == 0 {
		return []*types.Course{}, nil
	}

	if err := transaction.WithContext(ctx).Create(&courses).Error; err != nil {
		return nil, err
	}
	return courses, nil
}

// GetByID returns nil, nil when the course does not exist.
func (r *courseRepo) GetByID(ctx context.Context, tx *gorm.DB, courseID uuid.UUID) (*types.Course, error) {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}

	var c types.Course
	if err := transaction.WithContext(ctx).
		Where("id = ?", courseID).
		First(&c).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &c, nil
}

// GetByIDWithContents loads the additional resources and quizzes used for sizing.
func (r *courseRepo) GetByIDWithContents(ctx context.Context, tx *gorm.DB, courseID uuid.UUID) (*types.Course, error) {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}

	var c types.Course
	if err := transaction.WithContext(ctx).
		Preload("AdditionalResources").
		Preload("Quizzes").
		Preload("DownloadableResources").
		Where("id = ?", courseID).
		First(&c).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &c, nil
}

func (r *courseRepo) Save(ctx context.Context, tx *gorm.DB, course *types.Course) error {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}
	if course == nil {
		return nil
	}
	return transaction.WithContext(ctx).
		Omit("AdditionalResources", "Quizzes", "DownloadableResources").
		Save(course).Error
}

func (r *courseRepo) IncrementDownloadCount(ctx context.Context, tx *gorm.DB, courseID uuid.UUID) error {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}

	res := transaction.WithContext(ctx).
		Model(&types.Course{}).
		Where("id = ?", courseID).
		Update("download_count", gorm.Expr("download_count + ?", 1))
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return gorm.ErrRecordNotFound
	}
	return nil
}

func (r *courseRepo) SetLastSyncedAt(ctx context.Context, tx *gorm.DB, courseID uuid.UUID, at time.Time) error {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}

	res := transaction.WithContext(ctx).
		Model(&types.Course{}).
		Where("id = ?", courseID).
		Update("last_synced_at", at)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return gorm.ErrRecordNotFound
	}
	return nil
}

func (r *courseRepo) SetOfflineAccessible(ctx context.Context, tx *gorm.DB, courseID uuid.UUID, accessible bool) error {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}

	res := transaction.WithContext(ctx).
		Model(&types.Course{}).
		Where("id = ?", courseID).
		Update("is_offline_accessible", accessible)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return gorm.ErrRecordNotFound
	}
	return nil
}

func (r *courseRepo) ToggleOfflineAccessible(ctx context.Context, tx *gorm.DB, courseID uuid.UUID) (bool, error) {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}

	res := transaction.WithContext(ctx).
		Model(&types.Course{}).
		Where("id = ?", courseID).
		Update("is_offline_accessible", gorm.Expr("NOT is_offline_accessible"))
	if res.Error != nil {
		return false, res.Error
	}
	if res.RowsAffected == 0 {
		return false, gorm.ErrRecordNotFound
	}

	var accessible bool
	if err := transaction.WithContext(ctx).
		Model(&types.Course{}).
		Where("id = ?", courseID).
		Pluck("is_offline_accessible", &accessible).Error; err != nil {
		return false, err
	}
	return accessible, nil
}
