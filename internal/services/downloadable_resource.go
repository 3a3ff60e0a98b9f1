package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/yungbote/coursesync-backend/internal/data/repos"
	types "github.com/yungbote/coursesync-backend/internal/domain"
	"github.com/yungbote/coursesync-backend/internal/domain/learning"
	"github.com/yungbote/coursesync-backend/internal/platform/apierr"
	"github.com/yungbote/coursesync-backend/internal/platform/gcp"
	"github.com/yungbote/coursesync-backend/internal/platform/logger"
	"github.com/yungbote/coursesync-backend/internal/realtime"
)

type AddResourceInput struct {
	CourseID uuid.UUID
	Name     string
	URL      string
	Type     types.ResourceType
	Size     *int64
}

// UpdateResourceInput changes only the non-nil fields.
type UpdateResourceInput struct {
	Name *string
	URL  *string
	Type *types.ResourceType
	Size *int64
}

type ToggleOfflineAccessResult struct {
	CourseID            uuid.UUID `json:"course_id"`
	IsOfflineAccessible bool      `json:"is_offline_accessible"`
	Message             string    `json:"message"`
}

type DownloadableResourceService interface {
	AddResource(ctx context.Context, in AddResourceInput) (*types.DownloadableResource, error)
	UpdateResource(ctx context.Context, id uuid.UUID, in UpdateResourceInput) (*types.DownloadableResource, error)
	DeleteResource(ctx context.Context, id uuid.UUID) error
	ListResources(ctx context.Context, courseID uuid.UUID) ([]*types.DownloadableResource, error)
	ToggleOfflineAccess(ctx context.Context, courseID uuid.UUID) (*ToggleOfflineAccessResult, error)
}

type downloadableResourceService struct {
	db           *gorm.DB
	log          *logger.Logger
	courseRepo   repos.CourseRepo
	resourceRepo repos.DownloadableResourceRepo
	bucket       gcp.ResourceBucket
	emit         SSEEmitter
	now          func() time.Time
}

// NewDownloadableResourceService builds the service. bucket may be nil, in
// which case sizes are never looked up from object storage.
func NewDownloadableResourceService(
	db *gorm.DB,
	baseLog *logger.Logger,
	courseRepo repos.CourseRepo,
	resourceRepo repos.DownloadableResourceRepo,
	bucket gcp.ResourceBucket,
	emit SSEEmitter,
) DownloadableResourceService {
	if emit == nil {
		emit = noopEmitter{}
	}
	return &downloadableResourceService{
		db:           db,
		log:          baseLog.With("service", "DownloadableResourceService"),
		courseRepo:   courseRepo,
		resourceRepo: resourceRepo,
		bucket:       bucket,
		emit:         emit,
		now:          func() time.Time { return time.Now().UTC() },
	}
}

func (s *downloadableResourceService) AddResource(ctx context.Context, in AddResourceInput) (*types.DownloadableResource, error) {
	if strings.TrimSpace(in.Name) == "" || strings.TrimSpace(in.URL) == "" {
		return nil, apierr.BadRequest("resource name and url are required")
	}
	kind, ok := learning.ParseResourceType(string(in.Type))
	if !ok {
		return nil, apierr.BadRequest("unknown resource type %q", in.Type)
	}
	if in.Size != nil && *in.Size < 0 {
		return nil, apierr.BadRequest("resource size must not be negative")
	}

	course, err := s.courseRepo.GetByID(ctx, s.db, in.CourseID)
	if err != nil {
		return nil, fmt.Errorf("load course: %w", err)
	}
	if course == nil {
		return nil, apierr.NotFound("Course with ID %s not found", in.CourseID)
	}

	res := &types.DownloadableResource{
		CourseID:     course.ID,
		Name:         strings.TrimSpace(in.Name),
		URL:          strings.TrimSpace(in.URL),
		Type:         kind,
		Size:         in.Size,
		LastModified: s.now(),
	}
	if res.Size == nil {
		res.Size = s.lookupSize(ctx, res.URL)
	}

	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if _, err := s.resourceRepo.Create(ctx, tx, res); err != nil {
			return fmt.Errorf("create resource: %w", err)
		}
		// a course with something to download is downloadable
		if err := s.courseRepo.SetOfflineAccessible(ctx, tx, course.ID, true); err != nil {
			return fmt.Errorf("mark course offline accessible: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.emit.Emit(ctx, realtime.SSEMessage{
		Channel: realtime.BroadcastChannel,
		Event:   realtime.SSEEventResourceAdded,
		Data:    map[string]any{"courseId": course.ID, "resourceId": res.ID},
	})
	return res, nil
}

func (s *downloadableResourceService) UpdateResource(ctx context.Context, id uuid.UUID, in UpdateResourceInput) (*types.DownloadableResource, error) {
	res, err := s.resourceRepo.GetByID(ctx, s.db, id)
	if err != nil {
		return nil, fmt.Errorf("load resource: %w", err)
	}
	if res == nil {
		return nil, apierr.NotFound("Downloadable resource with ID %s not found", id)
	}

	if in.Name != nil {
		if strings.TrimSpace(*in.Name) == "" {
			return nil, apierr.BadRequest("resource name must not be empty")
		}
		res.Name = strings.TrimSpace(*in.Name)
	}
	if in.Type != nil {
		kind, ok := learning.ParseResourceType(string(*in.Type))
		if !ok {
			return nil, apierr.BadRequest("unknown resource type %q", *in.Type)
		}
		res.Type = kind
	}
	if in.Size != nil {
		if *in.Size < 0 {
			return nil, apierr.BadRequest("resource size must not be negative")
		}
		v := *in.Size
		res.Size = &v
	}
	if in.URL != nil {
		u := strings.TrimSpace(*in.URL)
		if u == "" {
			return nil, apierr.BadRequest("resource url must not be empty")
		}
		if u != res.URL && in.Size == nil {
			res.Size = s.lookupSize(ctx, u)
		}
		res.URL = u
	}
	res.LastModified = s.now()

	if err := s.resourceRepo.Save(ctx, s.db, res); err != nil {
		return nil, fmt.Errorf("save resource: %w", err)
	}

	s.emit.Emit(ctx, realtime.SSEMessage{
		Channel: realtime.BroadcastChannel,
		Event:   realtime.SSEEventResourceUpdated,
		Data:    map[string]any{"courseId": res.CourseID, "resourceId": res.ID},
	})
	return res, nil
}

// DeleteResource removes the resource; a course left without resources stops
// being offline accessible.
func (s *downloadableResourceService) DeleteResource(ctx context.Context, id uuid.UUID) error {
	res, err := s.resourceRepo.GetByID(ctx, s.db, id)
	if err != nil {
		return fmt.Errorf("load resource: %w", err)
	}
	if res == nil {
		return apierr.NotFound("Downloadable resource with ID %s not found", id)
	}

	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := s.resourceRepo.DeleteByID(ctx, tx, id); err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return apierr.NotFound("Downloadable resource with ID %s not found", id)
			}
			return fmt.Errorf("delete resource: %w", err)
		}
		remaining, err := s.resourceRepo.ListByCourse(ctx, tx, res.CourseID)
		if err != nil {
			return fmt.Errorf("list remaining resources: %w", err)
		}
		if len(remaining) == 0 {
			if err := s.courseRepo.SetOfflineAccessible(ctx, tx, res.CourseID, false); err != nil && !errors.Is(err, gorm.ErrRecordNotFound) {
				return fmt.Errorf("mark course offline inaccessible: %w", err)
			}
		}
		return nil
	})
	if err != nil {
		return err
	}

	s.emit.Emit(ctx, realtime.SSEMessage{
		Channel: realtime.BroadcastChannel,
		Event:   realtime.SSEEventResourceDeleted,
		Data:    map[string]any{"courseId": res.CourseID, "resourceId": id},
	})
	return nil
}

func (s *downloadableResourceService) ListResources(ctx context.Context, courseID uuid.UUID) ([]*types.DownloadableResource, error) {
	rows, err := s.resourceRepo.ListByCourse(ctx, s.db, courseID)
	if err != nil {
		return nil, fmt.Errorf("list resources: %w", err)
	}
	return rows, nil
}

func (s *downloadableResourceService) ToggleOfflineAccess(ctx context.Context, courseID uuid.UUID) (*ToggleOfflineAccessResult, error) {
	if courseID == uuid.Nil {
		return nil, apierr.BadRequest("Course ID is required")
	}
	course, err := s.courseRepo.GetByID(ctx, s.db, courseID)
	if err != nil {
		return nil, fmt.Errorf("load course: %w", err)
	}
	if course == nil {
		return nil, apierr.NotFound("Course with ID %s not found", courseID)
	}

	accessible, err := s.courseRepo.ToggleOfflineAccessible(ctx, s.db, courseID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, apierr.NotFound("Course with ID %s not found", courseID)
		}
		return nil, fmt.Errorf("toggle offline access: %w", err)
	}

	msg := course.Title + " is offline inaccessible, and cannot be downloaded"
	if accessible {
		msg = course.Title + " is open to be downloaded"
	}
	out := &ToggleOfflineAccessResult{CourseID: courseID, IsOfflineAccessible: accessible, Message: msg}

	s.emit.Emit(ctx, realtime.SSEMessage{
		Channel: realtime.BroadcastChannel,
		Event:   realtime.SSEEventCourseDownloadStatus,
		Data:    out,
	})
	return out, nil
}

// lookupSize asks object storage for the size behind url. Failures only cost
// accuracy of the estimate, so they are logged and swallowed.
func (s *downloadableResourceService) lookupSize(ctx context.Context, url string) *int64 {
	if s.bucket == nil {
		return nil
	}
	key, ok := s.bucket.KeyFromURL(url)
	if !ok {
		return nil
	}

	var size int64
	if strings.HasSuffix(key, "/") {
		total, err := s.bucket.PrefixSize(ctx, key)
		if err != nil {
			s.log.Warn("resource prefix size lookup failed", "key", key, "error", err)
			return nil
		}
		size = total
	} else {
		attrs, err := s.bucket.GetObjectAttrs(ctx, key)
		if err != nil {
			if errors.Is(err, gcp.ErrObjectNotFound) {
				s.log.Warn("resource object not found in bucket", "key", key)
			} else {
				s.log.Warn("resource size lookup failed", "key", key, "error", err)
			}
			return nil
		}
		size = attrs.Size
	}
	return &size
}
