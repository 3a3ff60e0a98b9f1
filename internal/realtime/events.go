package realtime

import "github.com/google/uuid"

type SSEEvent string

const (
	SSEEventProgressUpdated      SSEEvent = "progress-updated"
	SSEEventProgressSynced       SSEEvent = "progress-synced"
	SSEEventCourseDownloadStatus SSEEvent = "course-download-status"
	SSEEventNotificationCreated  SSEEvent = "notification-created"
	SSEEventResourceAdded        SSEEvent = "resource-added"
	SSEEventResourceUpdated      SSEEvent = "resource-updated"
	SSEEventResourceDeleted      SSEEvent = "resource-deleted"
)

type SSEMessage struct {
	Channel string   `json:"channel"`
	Event   SSEEvent `json:"event"`
	Data    any      `json:"data,omitempty"`
}

// BroadcastChannel receives events that are not addressed to a single user.
const BroadcastChannel = "broadcast"

// UserChannel is the channel a user's stream subscribes to.
func UserChannel(userID uuid.UUID) string {
	return "user:" + userID.String()
}
