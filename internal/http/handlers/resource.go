package handlers

import (
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	types "github.com/yungbote/coursesync-backend/internal/domain"
	"github.com/yungbote/coursesync-backend/internal/http/response"
	"github.com/yungbote/coursesync-backend/internal/platform/logger"
	"github.com/yungbote/coursesync-backend/internal/services"
)

type ResourceHandler struct {
	log       *logger.Logger
	resources services.DownloadableResourceService
}

func NewResourceHandler(log *logger.Logger, resources services.DownloadableResourceService) *ResourceHandler {
	return &ResourceHandler{
		log:       log.With("handler", "ResourceHandler"),
		resources: resources,
	}
}

type addResourceRequest struct {
	Name string `json:"name" binding:"required"`
	URL  string `json:"url" binding:"required"`
	Type string `json:"type" binding:"required"`
	Size *int64 `json:"size" binding:"omitempty,min=0"`
}

// POST /api/courses/:id/resources
func (h *ResourceHandler) AddResource(c *gin.Context) {
	courseID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		response.RespondBadRequest(c, fmt.Errorf("invalid course id"))
		return
	}
	var req addResourceRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.RespondBadRequest(c, err)
		return
	}
	res, err := h.resources.AddResource(c.Request.Context(), services.AddResourceInput{
		CourseID: courseID,
		Name:     req.Name,
		URL:      req.URL,
		Type:     types.ResourceType(req.Type),
		Size:     req.Size,
	})
	if err != nil {
		h.log.Warn("AddResource failed", "error", err, "course_id", courseID)
		response.RespondServiceError(c, err)
		return
	}
	response.RespondCreated(c, gin.H{"resource": res})
}

// GET /api/courses/:id/resources
func (h *ResourceHandler) ListResources(c *gin.Context) {
	courseID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		response.RespondBadRequest(c, fmt.Errorf("invalid course id"))
		return
	}
	rows, err := h.resources.ListResources(c.Request.Context(), courseID)
	if err != nil {
		response.RespondServiceError(c, err)
		return
	}
	response.RespondOK(c, gin.H{"resources": rows})
}

type updateResourceRequest struct {
	Name *string `json:"name"`
	URL  *string `json:"url"`
	Type *string `json:"type"`
	Size *int64  `json:"size" binding:"omitempty,min=0"`
}

// PATCH /api/courses/resources/:id
func (h *ResourceHandler) UpdateResource(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		response.RespondBadRequest(c, fmt.Errorf("invalid resource id"))
		return
	}
	var req updateResourceRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.RespondBadRequest(c, err)
		return
	}
	in := services.UpdateResourceInput{Name: req.Name, URL: req.URL, Size: req.Size}
	if req.Type != nil {
		t := types.ResourceType(*req.Type)
		in.Type = &t
	}
	res, err := h.resources.UpdateResource(c.Request.Context(), id, in)
	if err != nil {
		h.log.Warn("UpdateResource failed", "error", err, "resource_id", id)
		response.RespondServiceError(c, err)
		return
	}
	response.RespondOK(c, gin.H{"resource": res})
}

// DELETE /api/courses/resources/:id
func (h *ResourceHandler) DeleteResource(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		response.RespondBadRequest(c, fmt.Errorf("invalid resource id"))
		return
	}
	if err := h.resources.DeleteResource(c.Request.Context(), id); err != nil {
		h.log.Warn("DeleteResource failed", "error", err, "resource_id", id)
		response.RespondServiceError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

// PATCH /api/courses/:id/offline-access
func (h *ResourceHandler) ToggleOfflineAccess(c *gin.Context) {
	courseID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		response.RespondBadRequest(c, fmt.Errorf("invalid course id"))
		return
	}
	out, err := h.resources.ToggleOfflineAccess(c.Request.Context(), courseID)
	if err != nil {
		response.RespondServiceError(c, err)
		return
	}
	response.RespondOK(c, out)
}
