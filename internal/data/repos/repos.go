package repos

import (
	"gorm.io/gorm"

	"github.com/yungbote/coursesync-backend/internal/data/repos/learning"
	"github.com/yungbote/coursesync-backend/internal/data/repos/notification"
	"github.com/yungbote/coursesync-backend/internal/data/repos/user"
	"github.com/yungbote/coursesync-backend/internal/platform/logger"
)

type UserRepo = user.UserRepo

type CourseRepo = learning.CourseRepo
type CourseProgressRepo = learning.CourseProgressRepo
type DownloadableResourceRepo = learning.DownloadableResourceRepo

type NotificationRepo = notification.NotificationRepo

func NewUserRepo(db *gorm.DB, log *logger.Logger) UserRepo { return user.NewUserRepo(db, log) }

func NewCourseRepo(db *gorm.DB, log *logger.Logger) CourseRepo {
	return learning.NewCourseRepo(db, log)
}

func NewCourseProgressRepo(db *gorm.DB, log *logger.Logger) CourseProgressRepo {
	return learning.NewCourseProgressRepo(db, log)
}

func NewDownloadableResourceRepo(db *gorm.DB, log *logger.Logger) DownloadableResourceRepo {
	return learning.NewDownloadableResourceRepo(db, log)
}

func NewNotificationRepo(db *gorm.DB, log *logger.Logger) NotificationRepo {
	return notification.NewNotificationRepo(db, log)
}
