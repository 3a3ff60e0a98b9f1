package domain

import (
	"github.com/yungbote/coursesync-backend/internal/domain/learning"
	"github.com/yungbote/coursesync-backend/internal/domain/notification"
	"github.com/yungbote/coursesync-backend/internal/domain/user"
)

type User = user.User

type Course = learning.Course
type Quiz = learning.Quiz
type ResourceType = learning.ResourceType
type AdditionalResource = learning.AdditionalResource
type DownloadableResource = learning.DownloadableResource
type CourseProgress = learning.CourseProgress
type OfflineAccessEvent = learning.OfflineAccessEvent
type DeviceInfo = learning.DeviceInfo

type Notification = notification.Notification
type NotificationType = notification.Type
type NotificationStatus = notification.Status

const (
	NotificationTypeSMS    = notification.TypeSMS
	NotificationTypeEmail  = notification.TypeEmail
	NotificationTypeSystem = notification.TypeSystem

	NotificationStatusPending = notification.StatusPending
	NotificationStatusSent    = notification.StatusSent
	NotificationStatusFailed  = notification.StatusFailed
)

// AllModels lists every table owned by this service, in migration order.
func AllModels() []any {
	return []any{
		&User{},
		&Course{},
		&Quiz{},
		&AdditionalResource{},
		&DownloadableResource{},
		&CourseProgress{},
		&Notification{},
	}
}
