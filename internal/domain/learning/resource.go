package learning

import (
	"strings"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

type ResourceType string

const (
	ResourceTypePDF      ResourceType = "PDF"
	ResourceTypeImage    ResourceType = "IMAGE"
	ResourceTypeAudio    ResourceType = "AUDIO"
	ResourceTypeVideo    ResourceType = "VIDEO"
	ResourceTypeDocument ResourceType = "DOCUMENT"
	ResourceTypeLink     ResourceType = "LINK"
	ResourceTypeText     ResourceType = "TEXT"
)

// ParseResourceType normalizes s and reports whether it names a known type.
func ParseResourceType(s string) (ResourceType, bool) {
	t := ResourceType(strings.ToUpper(strings.TrimSpace(s)))
	switch t {
	case ResourceTypePDF, ResourceTypeImage, ResourceTypeAudio, ResourceTypeVideo,
		ResourceTypeDocument, ResourceTypeLink, ResourceTypeText:
		return t, true
	default:
		return "", false
	}
}

// AdditionalResource is supplementary course material. FileSize is nil when the
// uploader never declared one.
type AdditionalResource struct {
	ID          uuid.UUID    `gorm:"type:uuid;primaryKey" json:"id"`
	CourseID    uuid.UUID    `gorm:"type:uuid;not null;index" json:"course_id"`
	Title       string       `gorm:"column:title;not null" json:"title"`
	Description string       `gorm:"column:description;type:text" json:"description,omitempty"`
	Type        ResourceType `gorm:"column:type;not null;default:'LINK'" json:"type"`
	URL         string       `gorm:"column:url;not null" json:"url"`
	FileSize    *int64       `gorm:"column:file_size" json:"file_size,omitempty"`
	MimeType    string       `gorm:"column:mime_type" json:"mime_type,omitempty"`
	CreatedAt   time.Time    `gorm:"not null" json:"created_at"`
	UpdatedAt   time.Time    `gorm:"not null" json:"updated_at"`
}

func (AdditionalResource) TableName() string { return "additional_resources" }

func (r *AdditionalResource) BeforeCreate(tx *gorm.DB) error {
	if r.ID == uuid.Nil {
		r.ID = uuid.New()
	}
	return nil
}

type DownloadableResource struct {
	ID           uuid.UUID    `gorm:"type:uuid;primaryKey" json:"id"`
	CourseID     uuid.UUID    `gorm:"type:uuid;not null;index" json:"course_id"`
	Name         string       `gorm:"column:name;not null" json:"name"`
	URL          string       `gorm:"column:url;not null" json:"url"`
	Type         ResourceType `gorm:"column:type;not null" json:"type"`
	Size         *int64       `gorm:"column:size" json:"size,omitempty"`
	LastModified time.Time    `gorm:"column:last_modified;not null" json:"last_modified"`
	CreatedAt    time.Time    `gorm:"not null" json:"created_at"`
	UpdatedAt    time.Time    `gorm:"not null" json:"updated_at"`
}

func (DownloadableResource) TableName() string { return "downloadable_resources" }

func (r *DownloadableResource) BeforeCreate(tx *gorm.DB) error {
	if r.ID == uuid.Nil {
		r.ID = uuid.New()
	}
	if r.LastModified.IsZero() {
		r.LastModified = time.Now().UTC()
	}
	return nil
}
