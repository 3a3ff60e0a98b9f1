package notification

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"

	types "github.com/yungbote/coursesync-backend/internal/domain"
	"github.com/yungbote/coursesync-backend/internal/platform/logger"
)

type NotificationRepo interface {
	Create(ctx context.Context, tx *gorm.DB, n *types.Notification) (*types.Notification, error)
	GetByID(ctx context.Context, tx *gorm.DB, id uuid.UUID) (*types.Notification, error)
	UpdateDelivery(ctx context.Context, tx *gorm.DB, id uuid.UUID, status types.NotificationStatus, metadata datatypes.JSONMap, sentAt *time.Time) error
	// ListByRecipient filters on is_read when isRead is non-nil.
	ListByRecipient(ctx context.Context, tx *gorm.DB, recipientID uuid.UUID, isRead *bool, limit int) ([]*types.Notification, error)
	MarkRead(ctx context.Context, tx *gorm.DB, id, recipientID uuid.UUID, at time.Time) (int64, error)
	MarkAllRead(ctx context.Context, tx *gorm.DB, recipientID uuid.UUID, at time.Time) (int64, error)
	DeleteByID(ctx context.Context, tx *gorm.DB, id, recipientID uuid.UUID) (int64, error)
	DeleteByRecipient(ctx context.Context, tx *gorm.DB, recipientID uuid.UUID, isRead *bool) (int64, error)
}

type notificationRepo struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewNotificationRepo(db *gorm.DB, baseLog *logger.Logger) NotificationRepo {
	repoLog := baseLog.With("repo", "NotificationRepo")
	return &notificationRepo{db: db, log: repoLog}
}

func (r *notificationRepo) Create(ctx context.Context, tx *gorm.DB, n *types.Notification) (*types.Notification, error) {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}
	if err := transaction.WithContext(ctx).Create(n).Error; err != nil {
		return nil, err
	}
	return n, nil
}

func (r *notificationRepo) GetByID(ctx context.Context, tx *gorm.DB, id uuid.UUID) (*types.Notification, error) {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}

	var n types.Notification
	if err := transaction.WithContext(ctx).Where("id = ?", id).First(&n).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &n, nil
}

func (r *notificationRepo) UpdateDelivery(ctx context.Context, tx *gorm.DB, id uuid.UUID, status types.NotificationStatus, metadata datatypes.JSONMap, sentAt *time.Time) error {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}

	updates := map[string]interface{}{
		"status":     status,
		"updated_at": time.Now().UTC(),
	}
	if metadata != nil {
		updates["metadata"] = metadata
	}
	if sentAt != nil {
		updates["sent_at"] = *sentAt
	}
	return transaction.WithContext(ctx).
		Model(&types.Notification{}).
		Where("id = ?", id).
		Updates(updates).Error
}

func (r *notificationRepo) ListByRecipient(ctx context.Context, tx *gorm.DB, recipientID uuid.UUID, isRead *bool, limit int) ([]*types.Notification, error) {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}
	if limit <= 0 || limit > 200 {
		limit = 50
	}

	q := transaction.WithContext(ctx).Where("recipient_id = ?", recipientID)
	if isRead != nil {
		q = q.Where("is_read = ?", *isRead)
	}
	var results []*types.Notification
	if err := q.
		Order("created_at DESC").
		Limit(limit).
		Find(&results).Error; err != nil {
		return nil, err
	}
	return results, nil
}

func (r *notificationRepo) MarkRead(ctx context.Context, tx *gorm.DB, id, recipientID uuid.UUID, at time.Time) (int64, error) {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}
	res := transaction.WithContext(ctx).
		Model(&types.Notification{}).
		Where("id = ? AND recipient_id = ?", id, recipientID).
		Updates(map[string]interface{}{"is_read": true, "read_at": at, "updated_at": time.Now().UTC()})
	return res.RowsAffected, res.Error
}

func (r *notificationRepo) MarkAllRead(ctx context.Context, tx *gorm.DB, recipientID uuid.UUID, at time.Time) (int64, error) {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}
	res := transaction.WithContext(ctx).
		Model(&types.Notification{}).
		Where("recipient_id = ? AND is_read = ?", recipientID, false).
		Updates(map[string]interface{}{"is_read": true, "read_at": at, "updated_at": time.Now().UTC()})
	return res.RowsAffected, res.Error
}

func (r *notificationRepo) DeleteByID(ctx context.Context, tx *gorm.DB, id, recipientID uuid.UUID) (int64, error) {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}
	res := transaction.WithContext(ctx).
		Where("id = ? AND recipient_id = ?", id, recipientID).
		Delete(&types.Notification{})
	return res.RowsAffected, res.Error
}

func (r *notificationRepo) DeleteByRecipient(ctx context.Context, tx *gorm.DB, recipientID uuid.UUID, isRead *bool) (int64, error) {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}
	q := transaction.WithContext(ctx).Where("recipient_id = ?", recipientID)
	if isRead != nil {
		q = q.Where("is_read = ?", *isRead)
	}
	res := q.Delete(&types.Notification{})
	return res.RowsAffected, res.Error
}
