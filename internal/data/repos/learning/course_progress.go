package learning

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	types "github.com/yungbote/coursesync-backend/internal/domain"
	"github.com/yungbote/coursesync-backend/internal/platform/logger"
)

type CourseProgressRepo interface {
	GetByUserAndCourse(ctx context.Context, tx *gorm.DB, userID, courseID uuid.UUID) (*types.CourseProgress, error)
	GetOrCreate(ctx context.Context, tx *gorm.DB, userID, courseID uuid.UUID) (*types.CourseProgress, error)
	Save(ctx context.Context, tx *gorm.DB, progress *types.CourseProgress) error
	ListByUser(ctx context.Context, tx *gorm.DB, userID uuid.UUID) ([]*types.CourseProgress, error)
}

type courseProgressRepo struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewCourseProgressRepo(db *gorm.DB, baseLog *logger.Logger) CourseProgressRepo {
	repoLog := baseLog.With("repo", "CourseProgressRepo")
	return &courseProgressRepo{db: db, log: repoLog}
}

// GetByUserAndCourse returns nil, nil when no row exists.
func (r *courseProgressRepo) GetByUserAndCourse(ctx context.Context, tx *gorm.DB, userID, courseID uuid.UUID) (*types.CourseProgress, error) {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}

	var p types.CourseProgress
	if err := transaction.WithContext(ctx).
		Where("user_id = ? AND course_id = ?", userID, courseID).
		First(&p).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &p, nil
}

// GetOrCreate inserts an empty row for the pair unless one exists, then reads
// it back. Concurrent callers converge on the same row through the unique index.
func (r *courseProgressRepo) GetOrCreate(ctx context.Context, tx *gorm.DB, userID, courseID uuid.UUID) (*types.CourseProgress, error) {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}

	row := &types.CourseProgress{
		UserID:   userID,
		CourseID: courseID,
	}
	if err := transaction.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "user_id"}, {Name: "course_id"}},
			DoNothing: true,
		}).
		Create(row).Error; err != nil {
		return nil, err
	}

	p, err := r.GetByUserAndCourse(ctx, transaction, userID, courseID)
	if err != nil {
		return nil, err
	}
	if p == nil {
		return nil, gorm.ErrRecordNotFound
	}
	return p, nil
}

func (r *courseProgressRepo) Save(ctx context.Context, tx *gorm.DB, progress *types.CourseProgress) error {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}
	if progress == nil {
		return nil
	}
	return transaction.WithContext(ctx).Omit(clause.Associations).Save(progress).Error
}

func (r *courseProgressRepo) ListByUser(ctx context.Context, tx *gorm.DB, userID uuid.UUID) ([]*types.CourseProgress, error) {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}

	var results []*types.CourseProgress
	if err := transaction.WithContext(ctx).
		Preload("Course").
		Where("user_id = ?", userID).
		Order("updated_at DESC").
		Find(&results).Error; err != nil {
		return nil, err
	}
	return results, nil
}
