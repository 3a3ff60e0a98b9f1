package learning

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"gorm.io/gorm"

	types "github.com/yungbote/coursesync-backend/internal/domain"
	"github.com/yungbote/coursesync-backend/internal/platform/logger"
)

type DownloadableResourceRepo interface {
	Create(ctx context.Context, tx *gorm.DB, res *types.DownloadableResource) (*types.DownloadableResource, error)
	GetByID(ctx context.Context, tx *gorm.DB, id uuid.UUID) (*types.DownloadableResource, error)
	ListByCourse(ctx context.Context, tx *gorm.DB, courseID uuid.UUID) ([]*types.DownloadableResource, error)
	Save(ctx context.Context, tx *gorm.DB, res *types.DownloadableResource) error
	DeleteByID(ctx context.Context, tx *gorm.DB, id uuid.UUID) error
}

type downloadableResourceRepo struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewDownloadableResourceRepo(db *gorm.DB, baseLog *logger.Logger) DownloadableResourceRepo {
	repoLog := baseLog.With("repo", "DownloadableResourceRepo")
	return &downloadableResourceRepo{db: db, log: repoLog}
}

func (r *downloadableResourceRepo) Create(ctx context.Context, tx *gorm.DB, res *types.DownloadableResource) (*types.DownloadableResource, error) {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}
	if err := transaction.WithContext(ctx).Create(res).Error; err != nil {
		return nil, err
	}
	return res, nil
}

func (r *downloadableResourceRepo) GetByID(ctx context.Context, tx *gorm.DB, id uuid.UUID) (*types.DownloadableResource, error) {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}

	var out types.DownloadableResource
	if err := transaction.WithContext(ctx).Where("id = ?", id).First(&out).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &out, nil
}

func (r *downloadableResourceRepo) ListByCourse(ctx context.Context, tx *gorm.DB, courseID uuid.UUID) ([]*types.DownloadableResource, error) {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}

	var results []*types.DownloadableResource
	if err := transaction.WithContext(ctx).
		Where("course_id = ?", courseID).
		Order("created_at ASC").
		Find(&results).Error; err != nil {
		return nil, err
	}
	return results, nil
}

func (r *downloadableResourceRepo) Save(ctx context.Context, tx *gorm.DB, res *types.DownloadableResource) error {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}
	return transaction.WithContext(ctx).Save(res).Error
}

func (r *downloadableResourceRepo) DeleteByID(ctx context.Context, tx *gorm.DB, id uuid.UUID) error {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}

	res := transaction.WithContext(ctx).Where("id = ?", id).Delete(&types.DownloadableResource{})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return gorm.ErrRecordNotFound
	}
	return nil
}
