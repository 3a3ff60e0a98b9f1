package services

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"

	"github.com/yungbote/coursesync-backend/internal/data/repos"
	types "github.com/yungbote/coursesync-backend/internal/domain"
	"github.com/yungbote/coursesync-backend/internal/observability"
	"github.com/yungbote/coursesync-backend/internal/platform/apierr"
	"github.com/yungbote/coursesync-backend/internal/platform/logger"
	"github.com/yungbote/coursesync-backend/internal/platform/sendgrid"
	"github.com/yungbote/coursesync-backend/internal/platform/twilio"
	"github.com/yungbote/coursesync-backend/internal/realtime"
)

type CreateNotificationParams struct {
	RecipientID uuid.UUID
	Type        types.NotificationType
	Title       string
	Content     string
	PhoneNumber string
	Metadata    map[string]any
}

// NotificationSink is what the progress flows need from notifications. Create
// blocks until delivery was attempted and returns the delivery error, if any.
type NotificationSink interface {
	Create(ctx context.Context, params CreateNotificationParams) (*types.Notification, error)
}

type NotificationFilter string

const (
	NotificationFilterAll    NotificationFilter = ""
	NotificationFilterRead   NotificationFilter = "read"
	NotificationFilterUnread NotificationFilter = "unread"
)

func ParseNotificationFilter(s string) (NotificationFilter, error) {
	switch NotificationFilter(strings.ToLower(strings.TrimSpace(s))) {
	case NotificationFilterAll, "all":
		return NotificationFilterAll, nil
	case NotificationFilterRead:
		return NotificationFilterRead, nil
	case NotificationFilterUnread:
		return NotificationFilterUnread, nil
	default:
		return "", apierr.BadRequest("unknown notification filter %q", s)
	}
}

func (f NotificationFilter) isRead() *bool {
	switch f {
	case NotificationFilterRead:
		v := true
		return &v
	case NotificationFilterUnread:
		v := false
		return &v
	default:
		return nil
	}
}

type NotificationService interface {
	NotificationSink
	ListForUser(ctx context.Context, userID uuid.UUID, filter NotificationFilter, limit int) ([]*types.Notification, error)
	MarkAsRead(ctx context.Context, id, userID uuid.UUID) (*types.Notification, error)
	MarkAllAsRead(ctx context.Context, userID uuid.UUID) error
	Delete(ctx context.Context, id, userID uuid.UUID) error
	DeleteAll(ctx context.Context, userID uuid.UUID, filter NotificationFilter) error
}

type notificationService struct {
	db               *gorm.DB
	log              *logger.Logger
	userRepo         repos.UserRepo
	notificationRepo repos.NotificationRepo
	sms              twilio.Client
	email            sendgrid.Client
	emit             SSEEmitter
	now              func() time.Time
}

// NewNotificationService wires delivery channels. sms and email may be nil;
// notifications of that type are then kept in-app only.
func NewNotificationService(
	db *gorm.DB,
	baseLog *logger.Logger,
	userRepo repos.UserRepo,
	notificationRepo repos.NotificationRepo,
	sms twilio.Client,
	email sendgrid.Client,
	emit SSEEmitter,
) NotificationService {
	if emit == nil {
		emit = noopEmitter{}
	}
	return &notificationService{
		db:               db,
		log:              baseLog.With("service", "NotificationService"),
		userRepo:         userRepo,
		notificationRepo: notificationRepo,
		sms:              sms,
		email:            email,
		emit:             emit,
		now:              func() time.Time { return time.Now().UTC() },
	}
}

func (s *notificationService) Create(ctx context.Context, params CreateNotificationParams) (*types.Notification, error) {
	recipient, err := s.userRepo.GetByID(ctx, s.db, params.RecipientID)
	if err != nil {
		return nil, fmt.Errorf("load recipient: %w", err)
	}
	if recipient == nil {
		return nil, apierr.NotFound("recipient %s not found", params.RecipientID)
	}

	kind := params.Type
	if kind == "" {
		kind = types.NotificationTypeSystem
	}
	meta := datatypes.JSONMap{}
	for k, v := range params.Metadata {
		meta[k] = v
	}
	if kind == types.NotificationTypeSMS && s.sms == nil {
		s.log.Warn("SMS provider not configured; keeping notification in-app", "recipient_id", recipient.ID)
		meta["requestedType"] = string(kind)
		kind = types.NotificationTypeSystem
	}
	if kind == types.NotificationTypeEmail && s.email == nil {
		s.log.Warn("email provider not configured; keeping notification in-app", "recipient_id", recipient.ID)
		meta["requestedType"] = string(kind)
		kind = types.NotificationTypeSystem
	}

	phone := strings.TrimSpace(params.PhoneNumber)
	if phone == "" && kind == types.NotificationTypeSMS {
		phone = recipient.PhoneNumber
	}

	n, err := s.notificationRepo.Create(ctx, s.db, &types.Notification{
		RecipientID: recipient.ID,
		Type:        kind,
		Title:       params.Title,
		Content:     params.Content,
		Status:      types.NotificationStatusPending,
		PhoneNumber: phone,
		Metadata:    meta,
	})
	if err != nil {
		return nil, fmt.Errorf("create notification: %w", err)
	}

	deliveryMeta, sendErr := s.deliver(ctx, n, recipient)
	for k, v := range deliveryMeta {
		n.Metadata[k] = v
	}
	if sendErr != nil {
		n.Status = types.NotificationStatusFailed
		n.Metadata["error"] = sendErr.Error()
		if err := s.notificationRepo.UpdateDelivery(ctx, s.db, n.ID, n.Status, n.Metadata, nil); err != nil {
			s.log.Error("failed to record notification failure", "notification_id", n.ID, "error", err)
		}
		observability.Current().IncNotification(string(n.Type), string(n.Status))
		s.log.Error("notification delivery failed", "notification_id", n.ID, "type", n.Type, "error", sendErr)
		return nil, sendErr
	}

	sentAt := s.now()
	n.Status = types.NotificationStatusSent
	n.SentAt = &sentAt
	if err := s.notificationRepo.UpdateDelivery(ctx, s.db, n.ID, n.Status, n.Metadata, &sentAt); err != nil {
		return nil, fmt.Errorf("update notification: %w", err)
	}
	observability.Current().IncNotification(string(n.Type), string(n.Status))

	s.emit.Emit(ctx, realtime.SSEMessage{
		Channel: realtime.UserChannel(recipient.ID),
		Event:   realtime.SSEEventNotificationCreated,
		Data:    map[string]any{"notification": n},
	})
	return n, nil
}

func (s *notificationService) deliver(ctx context.Context, n *types.Notification, recipient *types.User) (map[string]any, error) {
	switch n.Type {
	case types.NotificationTypeSMS:
		if n.PhoneNumber == "" {
			return nil, fmt.Errorf("phone number is required for SMS notifications")
		}
		msg, err := s.sms.SendSMS(ctx, n.PhoneNumber, n.Content)
		if err != nil {
			return nil, fmt.Errorf("send sms: %w", err)
		}
		s.log.Info("SMS sent", "notification_id", n.ID, "phone_number", n.PhoneNumber)
		return map[string]any{"twilioMessageId": msg.SID, "twilioStatus": msg.Status}, nil

	case types.NotificationTypeEmail:
		if strings.TrimSpace(recipient.Email) == "" {
			return nil, fmt.Errorf("email address is required for email notifications")
		}
		res, err := s.email.Send(ctx, sendgrid.SendEmailRequest{
			To:         []sendgrid.EmailAddress{{Email: recipient.Email, Name: strings.TrimSpace(recipient.FirstName + " " + recipient.LastName)}},
			Subject:    n.Title,
			Text:       n.Content,
			Categories: []string{"coursesync"},
			CustomArgs: map[string]string{"notification_id": n.ID.String()},
		})
		if err != nil {
			return nil, fmt.Errorf("send email: %w", err)
		}
		return map[string]any{"sendgridMessageId": res.MessageID, "sendgridStatus": res.StatusCode}, nil

	default:
		return nil, nil
	}
}

func (s *notificationService) ListForUser(ctx context.Context, userID uuid.UUID, filter NotificationFilter, limit int) ([]*types.Notification, error) {
	rows, err := s.notificationRepo.ListByRecipient(ctx, s.db, userID, filter.isRead(), limit)
	if err != nil {
		return nil, fmt.Errorf("list notifications: %w", err)
	}
	return rows, nil
}

func (s *notificationService) MarkAsRead(ctx context.Context, id, userID uuid.UUID) (*types.Notification, error) {
	affected, err := s.notificationRepo.MarkRead(ctx, s.db, id, userID, s.now())
	if err != nil {
		return nil, fmt.Errorf("mark notification read: %w", err)
	}
	if affected == 0 {
		return nil, apierr.NotFound("notification %s not found", id)
	}
	n, err := s.notificationRepo.GetByID(ctx, s.db, id)
	if err != nil {
		return nil, fmt.Errorf("load notification: %w", err)
	}
	if n == nil {
		return nil, apierr.NotFound("notification %s not found", id)
	}
	return n, nil
}

func (s *notificationService) MarkAllAsRead(ctx context.Context, userID uuid.UUID) error {
	if _, err := s.notificationRepo.MarkAllRead(ctx, s.db, userID, s.now()); err != nil {
		return fmt.Errorf("mark notifications read: %w", err)
	}
	return nil
}

func (s *notificationService) Delete(ctx context.Context, id, userID uuid.UUID) error {
	affected, err := s.notificationRepo.DeleteByID(ctx, s.db, id, userID)
	if err != nil {
		return fmt.Errorf("delete notification: %w", err)
	}
	if affected == 0 {
		return apierr.NotFound("notification %s not found", id)
	}
	return nil
}

func (s *notificationService) DeleteAll(ctx context.Context, userID uuid.UUID, filter NotificationFilter) error {
	n, err := s.notificationRepo.DeleteByRecipient(ctx, s.db, userID, filter.isRead())
	if err != nil {
		return fmt.Errorf("delete notifications: %w", err)
	}
	s.log.Info("deleted notifications", "user_id", userID, "filter", string(filter), "count", n)
	return nil
}
