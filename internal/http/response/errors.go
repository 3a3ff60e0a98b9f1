package response

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/yungbote/coursesync-backend/internal/platform/apierr"
)

// RespondServiceError renders err with the status and code carried by an
// *apierr.Error, or 500/internal_error for anything else.
func RespondServiceError(c *gin.Context, err error) {
	status := apierr.StatusOf(err)
	if status >= http.StatusInternalServerError {
		_ = c.Error(err)
	}
	RespondError(c, status, apierr.CodeOf(err), err)
}

func RespondBadRequest(c *gin.Context, err error) {
	RespondError(c, http.StatusBadRequest, apierr.CodeBadRequest, err)
}
