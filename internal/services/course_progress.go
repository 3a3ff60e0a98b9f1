package services

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/singleflight"
	"gorm.io/gorm"

	"github.com/yungbote/coursesync-backend/internal/data/repos"
	types "github.com/yungbote/coursesync-backend/internal/domain"
	"github.com/yungbote/coursesync-backend/internal/modules/offline/sizing"
	"github.com/yungbote/coursesync-backend/internal/observability"
	"github.com/yungbote/coursesync-backend/internal/platform/apierr"
	"github.com/yungbote/coursesync-backend/internal/platform/keylock"
	"github.com/yungbote/coursesync-backend/internal/platform/logger"
	"github.com/yungbote/coursesync-backend/internal/realtime"
)

const (
	milestoneHalf          = 50.0
	milestoneThreeQuarters = 75.0
)

type SizeEstimator interface {
	Estimate(course *types.Course) (int64, error)
}

type UpdateProgressInput struct {
	UserID             uuid.UUID
	CourseID           uuid.UUID
	ProgressPercentage float64
	// IsCompleted and LastPosition are left untouched when nil.
	IsCompleted  *bool
	LastPosition *float64
}

type ClientStorageInfo struct {
	TotalStorageUsed  int64 `json:"total_storage_used"`
	MaxStorageAllowed int64 `json:"max_storage_allowed"`
	HasEnoughStorage  *bool `json:"has_enough_storage,omitempty"`
}

type DownloadCourseInput struct {
	UserID            uuid.UUID
	CourseID          uuid.UUID
	DeviceInfo        types.DeviceInfo
	ClientStorageInfo *ClientStorageInfo
}

type SyncOfflineProgressInput struct {
	UpdateProgressInput
	DeviceInfo          types.DeviceInfo
	LastModifiedOffline time.Time
}

type StorageInfo struct {
	EstimatedSize          int64  `json:"estimated_size"`
	EstimatedSizeFormatted string `json:"estimated_size_formatted"`
	TotalStorageUsed       int64  `json:"total_storage_used"`
	MaxStorageAllowed      int64  `json:"max_storage_allowed"`
	HasEnoughStorage       bool   `json:"has_enough_storage"`
}

type DownloadResult struct {
	Course      *types.Course         `json:"course"`
	Progress    *types.CourseProgress `json:"progress"`
	StorageInfo StorageInfo           `json:"storage_info"`
}

type CourseProgressService interface {
	UpdateProgress(ctx context.Context, in UpdateProgressInput) (*types.CourseProgress, error)
	DownloadCourse(ctx context.Context, in DownloadCourseInput) (*DownloadResult, error)
	EstimateCourseSize(ctx context.Context, courseID uuid.UUID) (*StorageInfo, error)
	SyncOfflineProgress(ctx context.Context, in SyncOfflineProgressInput) (*types.CourseProgress, error)
	GetUserCourseProgress(ctx context.Context, userID uuid.UUID) ([]*types.CourseProgress, error)
	GetCourseProgressByUserAndCourse(ctx context.Context, userID, courseID uuid.UUID) (*types.CourseProgress, error)
}

type courseProgressService struct {
	db           *gorm.DB
	log          *logger.Logger
	courseRepo   repos.CourseRepo
	userRepo     repos.UserRepo
	progressRepo repos.CourseProgressRepo
	estimator    SizeEstimator
	notify       NotificationSink
	emit         SSEEmitter
	locks        keylock.Locker
	now          func() time.Time
	estimates    singleflight.Group
}

func NewCourseProgressService(
	db *gorm.DB,
	baseLog *logger.Logger,
	courseRepo repos.CourseRepo,
	userRepo repos.UserRepo,
	progressRepo repos.CourseProgressRepo,
	estimator SizeEstimator,
	notify NotificationSink,
	emit SSEEmitter,
	locks keylock.Locker,
) CourseProgressService {
	if emit == nil {
		emit = noopEmitter{}
	}
	if locks == nil {
		locks = keylock.NewLocal()
	}
	return &courseProgressService{
		db:           db,
		log:          baseLog.With("service", "CourseProgressService"),
		courseRepo:   courseRepo,
		userRepo:     userRepo,
		progressRepo: progressRepo,
		estimator:    estimator,
		notify:       notify,
		emit:         emit,
		locks:        locks,
		now:          func() time.Time { return time.Now().UTC() },
	}
}

func (s *courseProgressService) UpdateProgress(ctx context.Context, in UpdateProgressInput) (progress *types.CourseProgress, err error) {
	ctx, span := s.startSpan(ctx, "CourseProgressService.UpdateProgress", in.UserID, in.CourseID)
	defer func() { endSpan(span, err) }()
	defer func() { observability.Current().IncProgressUpdate(outcome(err)) }()

	course, err := s.courseRepo.GetByID(ctx, s.db, in.CourseID)
	if err != nil {
		return nil, fmt.Errorf("load course: %w", err)
	}
	if course == nil {
		return nil, apierr.NotFound("Course with ID %s not found", in.CourseID)
	}

	var prevPct float64
	var wasCompleted bool
	err = s.withProgressLock(ctx, in.UserID, in.CourseID, func() error {
		return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
			p, err := s.progressRepo.GetOrCreate(ctx, tx, in.UserID, in.CourseID)
			if err != nil {
				return fmt.Errorf("get or create progress: %w", err)
			}
			prevPct, wasCompleted = p.ProgressPercentage, p.IsCompleted
			applyProgress(p, in)
			if err := s.progressRepo.Save(ctx, tx, p); err != nil {
				return fmt.Errorf("save progress: %w", err)
			}
			progress = p
			return nil
		})
	})
	if err != nil {
		return nil, err
	}

	if !wasCompleted && progress.IsCompleted {
		user, err := s.notificationRecipient(ctx, in.UserID)
		if err != nil {
			return nil, err
		}
		if _, err := s.notify.Create(ctx, CreateNotificationParams{
			RecipientID: in.UserID,
			Type:        types.NotificationTypeSMS,
			Title:       "Course Completed! 🎉",
			Content:     fmt.Sprintf("Congratulations %s! You've completed the course \"%s\". Keep up the great work!", user.FirstName, course.Title),
			PhoneNumber: user.PhoneNumber,
			Metadata: map[string]any{
				"courseId":    course.ID.String(),
				"courseName":  course.Title,
				"completedAt": s.now(),
			},
		}); err != nil {
			return nil, err
		}
	} else if milestone, ok := crossedMilestone(prevPct, in.ProgressPercentage); ok {
		user, err := s.notificationRecipient(ctx, in.UserID)
		if err != nil {
			return nil, err
		}
		if _, err := s.notify.Create(ctx, CreateNotificationParams{
			RecipientID: in.UserID,
			Type:        types.NotificationTypeSMS,
			Title:       fmt.Sprintf("Course Progress: %s! 🎯", milestone),
			Content:     fmt.Sprintf("Great progress, %s! You're %s through \"%s\". Keep going!", user.FirstName, milestone, course.Title),
			PhoneNumber: user.PhoneNumber,
			Metadata: map[string]any{
				"courseId":           course.ID.String(),
				"courseName":         course.Title,
				"milestone":          milestone,
				"progressPercentage": in.ProgressPercentage,
			},
		}); err != nil {
			return nil, err
		}
		observability.Current().IncMilestone(milestone)
	}

	s.emit.Emit(ctx, realtime.SSEMessage{
		Channel: realtime.UserChannel(in.UserID),
		Event:   realtime.SSEEventProgressUpdated,
		Data: map[string]any{
			"userId":             in.UserID,
			"courseId":           in.CourseID,
			"progressPercentage": in.ProgressPercentage,
			"isCompleted":        progress.IsCompleted,
		},
	})
	return progress, nil
}

func (s *courseProgressService) DownloadCourse(ctx context.Context, in DownloadCourseInput) (res *DownloadResult, err error) {
	ctx, span := s.startSpan(ctx, "CourseProgressService.DownloadCourse", in.UserID, in.CourseID)
	defer func() { endSpan(span, err) }()
	defer func() { observability.Current().IncDownload(outcome(err)) }()

	res, err = s.downloadCourse(ctx, in)
	if err != nil {
		if _, ok := apierr.As(err); ok {
			return nil, err
		}
		return nil, fmt.Errorf("failed to download course: %w", err)
	}
	return res, nil
}

func (s *courseProgressService) downloadCourse(ctx context.Context, in DownloadCourseInput) (*DownloadResult, error) {
	if in.UserID == uuid.Nil {
		return nil, apierr.Conflict("User ID is required to download a course")
	}
	course, err := s.courseRepo.GetByIDWithContents(ctx, s.db, in.CourseID)
	if err != nil {
		return nil, fmt.Errorf("load course: %w", err)
	}
	if course == nil {
		return nil, apierr.NotFound("Course with ID %s not found", in.CourseID)
	}
	user, err := s.userRepo.GetByID(ctx, s.db, in.UserID)
	if err != nil {
		return nil, fmt.Errorf("load user: %w", err)
	}
	if user == nil {
		return nil, apierr.NotFound("User with ID %s not found", in.UserID)
	}
	if !course.IsOfflineAccessible {
		return nil, apierr.BadRequest("This course is not available for offline access")
	}
	if c := in.ClientStorageInfo; c != nil && c.HasEnoughStorage != nil && !*c.HasEnoughStorage {
		return nil, apierr.BadRequest("Not enough storage space available on your device")
	}

	info, err := s.storageInfo(course, in.ClientStorageInfo)
	if err != nil {
		return nil, err
	}

	downloadedAt := s.now()
	var progress *types.CourseProgress
	err = s.withProgressLock(ctx, in.UserID, in.CourseID, func() error {
		return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
			p, err := s.progressRepo.GetOrCreate(ctx, tx, in.UserID, in.CourseID)
			if err != nil {
				return fmt.Errorf("get or create progress: %w", err)
			}
			p.IsDownloadedOffline = true
			p.AppendOfflineAccess(types.OfflineAccessEvent{
				DownloadedAt: downloadedAt,
				DeviceInfo:   in.DeviceInfo,
			})
			if err := s.courseRepo.IncrementDownloadCount(ctx, tx, course.ID); err != nil {
				return fmt.Errorf("increment download count: %w", err)
			}
			if err := s.progressRepo.Save(ctx, tx, p); err != nil {
				return fmt.Errorf("save progress: %w", err)
			}
			progress = p
			return nil
		})
	})
	if err != nil {
		return nil, err
	}
	course.DownloadCount++

	if _, err := s.notify.Create(ctx, CreateNotificationParams{
		RecipientID: in.UserID,
		Type:        types.NotificationTypeSMS,
		Title:       "Course Downloaded Successfully",
		Content:     fmt.Sprintf("Hi %s, \"%s\" has been downloaded for offline access. You can now learn even without an internet connection!", user.FirstName, course.Title),
		PhoneNumber: user.PhoneNumber,
		Metadata: map[string]any{
			"courseId":      course.ID.String(),
			"courseName":    course.Title,
			"deviceInfo":    in.DeviceInfo,
			"downloadedAt":  downloadedAt,
			"estimatedSize": info.EstimatedSizeFormatted,
		},
	}); err != nil {
		return nil, err
	}

	s.log.Info("course downloaded for offline access",
		"user_id", in.UserID,
		"course_id", course.ID,
		"estimated_size", info.EstimatedSize,
		"platform", in.DeviceInfo.Platform,
	)
	return &DownloadResult{Course: course, Progress: progress, StorageInfo: *info}, nil
}

// EstimateCourseSize coalesces concurrent calls for the same course. The
// shared load runs detached from any one caller; each caller stops waiting
// when its own ctx is done.
func (s *courseProgressService) EstimateCourseSize(ctx context.Context, courseID uuid.UUID) (info *StorageInfo, err error) {
	ctx, span := observability.Tracer().Start(ctx, "CourseProgressService.EstimateCourseSize",
		trace.WithAttributes(attribute.String("course.id", courseID.String())))
	defer func() { endSpan(span, err) }()
	defer func() { observability.Current().IncEstimate(outcome(err)) }()

	shared := context.WithoutCancel(ctx)
	ch := s.estimates.DoChan(courseID.String(), func() (any, error) {
		course, err := s.courseRepo.GetByIDWithContents(shared, s.db, courseID)
		if err != nil {
			return nil, fmt.Errorf("load course: %w", err)
		}
		if course == nil {
			return nil, apierr.NotFound("Course with ID %s not found", courseID)
		}
		return s.storageInfo(course, nil)
	})

	var res singleflight.Result
	select {
	case <-ctx.Done():
		return nil, fmt.Errorf("failed to estimate course size: %w", ctx.Err())
	case res = <-ch:
	}
	if res.Err != nil {
		if _, ok := apierr.As(res.Err); ok {
			return nil, res.Err
		}
		return nil, fmt.Errorf("failed to estimate course size: %w", res.Err)
	}
	out := *res.Val.(*StorageInfo)
	return &out, nil
}

func (s *courseProgressService) SyncOfflineProgress(ctx context.Context, in SyncOfflineProgressInput) (progress *types.CourseProgress, err error) {
	ctx, span := s.startSpan(ctx, "CourseProgressService.SyncOfflineProgress", in.UserID, in.CourseID)
	defer func() { endSpan(span, err) }()
	defer func() { observability.Current().IncSync(outcome(err)) }()

	course, err := s.courseRepo.GetByID(ctx, s.db, in.CourseID)
	if err != nil {
		return nil, fmt.Errorf("load course: %w", err)
	}
	if course == nil {
		return nil, apierr.NotFound("Course with ID %s not found", in.CourseID)
	}

	syncedAt := s.now()
	err = s.withProgressLock(ctx, in.UserID, in.CourseID, func() error {
		return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
			p, err := s.progressRepo.GetByUserAndCourse(ctx, tx, in.UserID, in.CourseID)
			if err != nil {
				return fmt.Errorf("load progress: %w", err)
			}
			if p == nil {
				return apierr.NotFound("No progress record found for user %s and course %s", in.UserID, in.CourseID)
			}
			// The client's values win regardless of LastModifiedOffline.
			s.log.Debug("applying offline progress",
				"user_id", in.UserID,
				"course_id", in.CourseID,
				"last_modified_offline", in.LastModifiedOffline,
				"server_updated_at", p.UpdatedAt,
			)
			applyProgress(p, in.UpdateProgressInput)
			p.TouchLastOfflineAccess(syncedAt, in.DeviceInfo)
			if err := s.courseRepo.SetLastSyncedAt(ctx, tx, course.ID, syncedAt); err != nil {
				return fmt.Errorf("set last synced: %w", err)
			}
			if err := s.progressRepo.Save(ctx, tx, p); err != nil {
				return fmt.Errorf("save progress: %w", err)
			}
			progress = p
			return nil
		})
	})
	if err != nil {
		return nil, err
	}
	course.LastSyncedAt = &syncedAt

	user, err := s.notificationRecipient(ctx, in.UserID)
	if err != nil {
		return nil, err
	}
	if _, err := s.notify.Create(ctx, CreateNotificationParams{
		RecipientID: in.UserID,
		Type:        types.NotificationTypeSMS,
		Title:       "Course Progress Synced",
		Content: fmt.Sprintf("Hi %s, your progress for \"%s\" has been successfully synced. You're at %s%% completion.",
			user.FirstName, course.Title, strconv.FormatFloat(in.ProgressPercentage, 'f', -1, 64)),
		PhoneNumber: user.PhoneNumber,
		Metadata: map[string]any{
			"courseId":           course.ID.String(),
			"courseName":         course.Title,
			"progressPercentage": in.ProgressPercentage,
			"deviceInfo":         in.DeviceInfo,
			"syncedAt":           syncedAt,
		},
	}); err != nil {
		return nil, err
	}

	s.emit.Emit(ctx, realtime.SSEMessage{
		Channel: realtime.UserChannel(in.UserID),
		Event:   realtime.SSEEventProgressSynced,
		Data: map[string]any{
			"userId":             in.UserID,
			"courseId":           in.CourseID,
			"progressPercentage": in.ProgressPercentage,
			"isCompleted":        progress.IsCompleted,
			"syncedAt":           syncedAt,
			"deviceInfo":         in.DeviceInfo,
		},
	})
	return progress, nil
}

func (s *courseProgressService) GetUserCourseProgress(ctx context.Context, userID uuid.UUID) ([]*types.CourseProgress, error) {
	rows, err := s.progressRepo.ListByUser(ctx, s.db, userID)
	if err != nil {
		return nil, fmt.Errorf("list progress: %w", err)
	}
	return rows, nil
}

func (s *courseProgressService) GetCourseProgressByUserAndCourse(ctx context.Context, userID, courseID uuid.UUID) (*types.CourseProgress, error) {
	p, err := s.progressRepo.GetByUserAndCourse(ctx, s.db, userID, courseID)
	if err != nil {
		return nil, fmt.Errorf("load progress: %w", err)
	}
	if p == nil {
		return nil, apierr.NotFound("No progress found for user %s and course %s", userID, courseID)
	}
	return p, nil
}

func (s *courseProgressService) storageInfo(course *types.Course, client *ClientStorageInfo) (*StorageInfo, error) {
	size, err := s.estimator.Estimate(course)
	if err != nil {
		return nil, err
	}
	observability.Current().ObserveEstimate(size)
	info := &StorageInfo{
		EstimatedSize:          size,
		EstimatedSizeFormatted: sizing.Format(size),
		HasEnoughStorage:       true,
	}
	if client != nil {
		info.TotalStorageUsed = client.TotalStorageUsed
		info.MaxStorageAllowed = client.MaxStorageAllowed
		if client.HasEnoughStorage != nil {
			info.HasEnoughStorage = *client.HasEnoughStorage
		}
	}
	return info, nil
}

func (s *courseProgressService) notificationRecipient(ctx context.Context, userID uuid.UUID) (*types.User, error) {
	if userID == uuid.Nil {
		return nil, apierr.Conflict("User ID is required to send notifications")
	}
	user, err := s.userRepo.GetByID(ctx, s.db, userID)
	if err != nil {
		return nil, fmt.Errorf("load user: %w", err)
	}
	if user == nil {
		return nil, apierr.NotFound("User with ID %s not found", userID)
	}
	return user, nil
}

// withProgressLock serializes read-modify-write on one (user, course) row.
// The lock is released before notifications go out.
func (s *courseProgressService) withProgressLock(ctx context.Context, userID, courseID uuid.UUID, fn func() error) error {
	started := time.Now()
	unlock, err := s.locks.Lock(ctx, "progress:"+userID.String()+":"+courseID.String())
	if err != nil {
		return fmt.Errorf("acquire progress lock: %w", err)
	}
	defer unlock()
	observability.Current().ObserveLockWait(time.Since(started))
	return fn()
}

func (s *courseProgressService) startSpan(ctx context.Context, name string, userID, courseID uuid.UUID) (context.Context, trace.Span) {
	return observability.Tracer().Start(ctx, name, trace.WithAttributes(
		attribute.String("user.id", userID.String()),
		attribute.String("course.id", courseID.String()),
	))
}

func endSpan(span trace.Span, err error) {
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	span.End()
}

func applyProgress(p *types.CourseProgress, in UpdateProgressInput) {
	p.ProgressPercentage = in.ProgressPercentage
	if in.IsCompleted != nil {
		p.IsCompleted = *in.IsCompleted
	}
	if in.LastPosition != nil {
		v := *in.LastPosition
		p.LastPosition = &v
	}
}

// crossedMilestone reports the highest milestone in (prev, next].
func crossedMilestone(prev, next float64) (string, bool) {
	switch {
	case prev < milestoneThreeQuarters && next >= milestoneThreeQuarters:
		return "75%", true
	case prev < milestoneHalf && next >= milestoneHalf:
		return "50%", true
	default:
		return "", false
	}
}

func outcome(err error) string {
	if err == nil {
		return "ok"
	}
	if ae, ok := apierr.As(err); ok {
		return ae.Code
	}
	return "error"
}
