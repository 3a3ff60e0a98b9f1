package handlers

import (
	"fmt"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	types "github.com/yungbote/coursesync-backend/internal/domain"
	"github.com/yungbote/coursesync-backend/internal/http/response"
	"github.com/yungbote/coursesync-backend/internal/platform/logger"
	"github.com/yungbote/coursesync-backend/internal/services"
)

type CourseProgressHandler struct {
	log      *logger.Logger
	progress services.CourseProgressService
}

func NewCourseProgressHandler(log *logger.Logger, progress services.CourseProgressService) *CourseProgressHandler {
	return &CourseProgressHandler{
		log:      log.With("handler", "CourseProgressHandler"),
		progress: progress,
	}
}

type updateProgressRequest struct {
	UserID             string   `json:"user_id" binding:"omitempty,uuid"`
	CourseID           string   `json:"course_id" binding:"required"`
	ProgressPercentage *float64 `json:"progress_percentage" binding:"required,min=0,max=100"`
	IsCompleted        *bool    `json:"is_completed"`
	LastPosition       *float64 `json:"last_position" binding:"omitempty,min=0"`
}

// optionalUUID maps an absent id to uuid.Nil; the service decides whether it
// needs one.
func optionalUUID(raw string) (uuid.UUID, error) {
	if raw == "" {
		return uuid.Nil, nil
	}
	return uuid.Parse(raw)
}

func (r updateProgressRequest) input() (services.UpdateProgressInput, error) {
	userID, err := optionalUUID(r.UserID)
	if err != nil {
		return services.UpdateProgressInput{}, fmt.Errorf("invalid user_id")
	}
	courseID, err := uuid.Parse(r.CourseID)
	if err != nil {
		return services.UpdateProgressInput{}, fmt.Errorf("invalid course_id")
	}
	return services.UpdateProgressInput{
		UserID:             userID,
		CourseID:           courseID,
		ProgressPercentage: *r.ProgressPercentage,
		IsCompleted:        r.IsCompleted,
		LastPosition:       r.LastPosition,
	}, nil
}

// POST /api/courses/progress
func (h *CourseProgressHandler) UpdateProgress(c *gin.Context) {
	var req updateProgressRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.RespondBadRequest(c, err)
		return
	}
	in, err := req.input()
	if err != nil {
		response.RespondBadRequest(c, err)
		return
	}
	p, err := h.progress.UpdateProgress(c.Request.Context(), in)
	if err != nil {
		h.log.Warn("UpdateProgress failed", "error", err, "user_id", in.UserID, "course_id", in.CourseID)
		response.RespondServiceError(c, err)
		return
	}
	response.RespondOK(c, gin.H{"progress": p})
}

type downloadCourseRequest struct {
	UserID            string                      `json:"user_id" binding:"omitempty,uuid"`
	CourseID          string                      `json:"course_id" binding:"required"`
	DeviceInfo        types.DeviceInfo            `json:"device_info"`
	ClientStorageInfo *services.ClientStorageInfo `json:"storage_info"`
}

// POST /api/courses/download
func (h *CourseProgressHandler) DownloadCourse(c *gin.Context) {
	var req downloadCourseRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.RespondBadRequest(c, err)
		return
	}
	userID, err := optionalUUID(req.UserID)
	if err != nil {
		response.RespondBadRequest(c, fmt.Errorf("invalid user_id"))
		return
	}
	courseID, err := uuid.Parse(req.CourseID)
	if err != nil {
		response.RespondBadRequest(c, fmt.Errorf("invalid course_id"))
		return
	}
	res, err := h.progress.DownloadCourse(c.Request.Context(), services.DownloadCourseInput{
		UserID:            userID,
		CourseID:          courseID,
		DeviceInfo:        req.DeviceInfo,
		ClientStorageInfo: req.ClientStorageInfo,
	})
	if err != nil {
		h.log.Warn("DownloadCourse failed", "error", err, "user_id", userID, "course_id", courseID)
		response.RespondServiceError(c, err)
		return
	}
	response.RespondOK(c, res)
}

type syncOfflineProgressRequest struct {
	updateProgressRequest
	DeviceInfo          types.DeviceInfo `json:"device_info"`
	LastModifiedOffline *time.Time       `json:"last_modified_offline"`
}

// POST /api/courses/sync
func (h *CourseProgressHandler) SyncOfflineProgress(c *gin.Context) {
	var req syncOfflineProgressRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.RespondBadRequest(c, err)
		return
	}
	in, err := req.input()
	if err != nil {
		response.RespondBadRequest(c, err)
		return
	}
	sync := services.SyncOfflineProgressInput{UpdateProgressInput: in, DeviceInfo: req.DeviceInfo}
	if req.LastModifiedOffline != nil {
		sync.LastModifiedOffline = *req.LastModifiedOffline
	}
	p, err := h.progress.SyncOfflineProgress(c.Request.Context(), sync)
	if err != nil {
		h.log.Warn("SyncOfflineProgress failed", "error", err, "user_id", in.UserID, "course_id", in.CourseID)
		response.RespondServiceError(c, err)
		return
	}
	response.RespondOK(c, gin.H{"progress": p})
}

// GET /api/courses/:id/storage-estimate
func (h *CourseProgressHandler) EstimateCourseSize(c *gin.Context) {
	courseID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		response.RespondBadRequest(c, fmt.Errorf("invalid course id"))
		return
	}
	info, err := h.progress.EstimateCourseSize(c.Request.Context(), courseID)
	if err != nil {
		response.RespondServiceError(c, err)
		return
	}
	response.RespondOK(c, gin.H{"storage_info": info})
}

// GET /api/courses/progress/user/:userId
func (h *CourseProgressHandler) ListUserProgress(c *gin.Context) {
	userID, err := uuid.Parse(c.Param("userId"))
	if err != nil {
		response.RespondBadRequest(c, fmt.Errorf("invalid user id"))
		return
	}
	rows, err := h.progress.GetUserCourseProgress(c.Request.Context(), userID)
	if err != nil {
		h.log.Error("ListUserProgress failed", "error", err, "user_id", userID)
		response.RespondServiceError(c, err)
		return
	}
	response.RespondOK(c, gin.H{"progress": rows})
}

// GET /api/courses/progress/:courseId/user/:userId
func (h *CourseProgressHandler) GetUserCourseProgress(c *gin.Context) {
	courseID, err := uuid.Parse(c.Param("courseId"))
	if err != nil {
		response.RespondBadRequest(c, fmt.Errorf("invalid course id"))
		return
	}
	userID, err := uuid.Parse(c.Param("userId"))
	if err != nil {
		response.RespondBadRequest(c, fmt.Errorf("invalid user id"))
		return
	}
	p, err := h.progress.GetCourseProgressByUserAndCourse(c.Request.Context(), userID, courseID)
	if err != nil {
		response.RespondServiceError(c, err)
		return
	}
	response.RespondOK(c, gin.H{"progress": p})
}
