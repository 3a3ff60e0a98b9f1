package http

import (
	"github.com/gin-gonic/gin"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"

	httpH "github.com/yungbote/coursesync-backend/internal/http/handlers"
	httpMW "github.com/yungbote/coursesync-backend/internal/http/middleware"
	"github.com/yungbote/coursesync-backend/internal/observability"
	"github.com/yungbote/coursesync-backend/internal/platform/logger"
)

type RouterConfig struct {
	Log            *logger.Logger
	ServiceName    string
	AllowedOrigins []string
	Metrics        *observability.Metrics

	CourseProgressHandler *httpH.CourseProgressHandler
	ResourceHandler       *httpH.ResourceHandler
	NotificationHandler   *httpH.NotificationHandler
	RealtimeHandler       *httpH.RealtimeHandler

	HealthHandler *httpH.HealthHandler
}

func NewRouter(cfg RouterConfig) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())
	if cfg.ServiceName != "" {
		r.Use(otelgin.Middleware(cfg.ServiceName))
	}
	r.Use(httpMW.AttachTraceContext())
	r.Use(httpMW.RequestLogger(cfg.Log))
	r.Use(httpMW.Metrics(cfg.Metrics))
	r.Use(httpMW.CORS(cfg.AllowedOrigins))

	// Health
	if cfg.HealthHandler != nil {
		r.GET("/healthcheck", cfg.HealthHandler.HealthCheck)
	}
	if cfg.Metrics != nil {
		r.GET("/metrics", gin.WrapH(cfg.Metrics.Handler()))
	}

	api := r.Group("/api")
	{
		// Realtime (SSE)
		if cfg.RealtimeHandler != nil {
			api.GET("/sse/stream", cfg.RealtimeHandler.SSEStream)
		}

		// Course progress & offline
		if h := cfg.CourseProgressHandler; h != nil {
			api.POST("/courses/progress", h.UpdateProgress)
			api.POST("/courses/download", h.DownloadCourse)
			api.POST("/courses/sync", h.SyncOfflineProgress)
			api.GET("/courses/:id/storage-estimate", h.EstimateCourseSize)
			api.GET("/courses/progress/user/:userId", h.ListUserProgress)
			api.GET("/courses/progress/:courseId/user/:userId", h.GetUserCourseProgress)
		}

		// Downloadable resources
		if h := cfg.ResourceHandler; h != nil {
			api.PATCH("/courses/:id/offline-access", h.ToggleOfflineAccess)
			api.GET("/courses/:id/resources", h.ListResources)
			api.POST("/courses/:id/resources", h.AddResource)
			api.PATCH("/courses/resources/:id", h.UpdateResource)
			api.DELETE("/courses/resources/:id", h.DeleteResource)
		}

		// Notifications
		if h := cfg.NotificationHandler; h != nil {
			api.GET("/notifications/user/:userId", h.ListForUser)
			api.PATCH("/notifications/user/:userId/read", h.MarkAllAsRead)
			api.PATCH("/notifications/user/:userId/:id/read", h.MarkAsRead)
			api.DELETE("/notifications/user/:userId", h.DeleteAll)
			api.DELETE("/notifications/user/:userId/:id", h.Delete)
		}
	}

	return r
}
