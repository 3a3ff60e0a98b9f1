package handlers

import (
	"fmt"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/yungbote/coursesync-backend/internal/http/response"
	"github.com/yungbote/coursesync-backend/internal/platform/logger"
	"github.com/yungbote/coursesync-backend/internal/services"
)

const maxNotificationPage = 200

type NotificationHandler struct {
	log           *logger.Logger
	notifications services.NotificationService
}

func NewNotificationHandler(log *logger.Logger, notifications services.NotificationService) *NotificationHandler {
	return &NotificationHandler{
		log:           log.With("handler", "NotificationHandler"),
		notifications: notifications,
	}
}

// GET /api/notifications/user/:userId?filter=read|unread&limit=50
func (h *NotificationHandler) ListForUser(c *gin.Context) {
	userID, err := uuid.Parse(c.Param("userId"))
	if err != nil {
		response.RespondBadRequest(c, fmt.Errorf("invalid user id"))
		return
	}
	filter, err := services.ParseNotificationFilter(c.Query("filter"))
	if err != nil {
		response.RespondServiceError(c, err)
		return
	}
	limit := 50
	if raw := c.Query("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 {
			response.RespondBadRequest(c, fmt.Errorf("invalid limit"))
			return
		}
		limit = min(n, maxNotificationPage)
	}
	rows, err := h.notifications.ListForUser(c.Request.Context(), userID, filter, limit)
	if err != nil {
		h.log.Error("ListForUser failed", "error", err, "user_id", userID)
		response.RespondServiceError(c, err)
		return
	}
	response.RespondOK(c, gin.H{"notifications": rows})
}

// PATCH /api/notifications/user/:userId/:id/read
func (h *NotificationHandler) MarkAsRead(c *gin.Context) {
	userID, id, ok := notificationIDs(c)
	if !ok {
		return
	}
	n, err := h.notifications.MarkAsRead(c.Request.Context(), id, userID)
	if err != nil {
		response.RespondServiceError(c, err)
		return
	}
	response.RespondOK(c, gin.H{"notification": n})
}

// PATCH /api/notifications/user/:userId/read
func (h *NotificationHandler) MarkAllAsRead(c *gin.Context) {
	userID, err := uuid.Parse(c.Param("userId"))
	if err != nil {
		response.RespondBadRequest(c, fmt.Errorf("invalid user id"))
		return
	}
	if err := h.notifications.MarkAllAsRead(c.Request.Context(), userID); err != nil {
		response.RespondServiceError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

// DELETE /api/notifications/user/:userId/:id
func (h *NotificationHandler) Delete(c *gin.Context) {
	userID, id, ok := notificationIDs(c)
	if !ok {
		return
	}
	if err := h.notifications.Delete(c.Request.Context(), id, userID); err != nil {
		response.RespondServiceError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

// DELETE /api/notifications/user/:userId?filter=read|unread
func (h *NotificationHandler) DeleteAll(c *gin.Context) {
	userID, err := uuid.Parse(c.Param("userId"))
	if err != nil {
		response.RespondBadRequest(c, fmt.Errorf("invalid user id"))
		return
	}
	filter, err := services.ParseNotificationFilter(c.Query("filter"))
	if err != nil {
		response.RespondServiceError(c, err)
		return
	}
	if err := h.notifications.DeleteAll(c.Request.Context(), userID, filter); err != nil {
		h.log.Error("DeleteAll failed", "error", err, "user_id", userID)
		response.RespondServiceError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func notificationIDs(c *gin.Context) (userID, id uuid.UUID, ok bool) {
	userID, err := uuid.Parse(c.Param("userId"))
	if err != nil {
		response.RespondBadRequest(c, fmt.Errorf("invalid user id"))
		return uuid.Nil, uuid.Nil, false
	}
	id, err = uuid.Parse(c.Param("id"))
	if err != nil {
		response.RespondBadRequest(c, fmt.Errorf("invalid notification id"))
		return uuid.Nil, uuid.Nil, false
	}
	return userID, id, true
}
