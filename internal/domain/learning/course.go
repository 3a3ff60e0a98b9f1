package learning

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

type Course struct {
	ID          uuid.UUID `gorm:"type:uuid;primaryKey" json:"id"`
	Title       string    `gorm:"column:title;not null" json:"title"`
	Description string    `gorm:"column:description;type:text" json:"description"`
	VideoURL    string    `gorm:"column:video_url" json:"video_url"`

	// Duration is stored as entered by course authors ("HH:MM:SS", "MM:SS" or minutes).
	Duration string `gorm:"column:duration" json:"duration"`

	IsOfflineAccessible bool       `gorm:"column:is_offline_accessible;not null;default:false" json:"is_offline_accessible"`
	DownloadCount       int        `gorm:"column:download_count;not null;default:0" json:"download_count"`
	LastSyncedAt        *time.Time `gorm:"column:last_synced_at" json:"last_synced_at,omitempty"`

	AdditionalResources   []*AdditionalResource   `gorm:"foreignKey:CourseID;references:ID" json:"additional_resources,omitempty"`
	Quizzes               []*Quiz                 `gorm:"foreignKey:CourseID;references:ID" json:"quizzes,omitempty"`
	DownloadableResources []*DownloadableResource `gorm:"foreignKey:CourseID;references:ID" json:"downloadable_resources,omitempty"`

	CreatedAt time.Time      `gorm:"not null" json:"created_at"`
	UpdatedAt time.Time      `gorm:"not null" json:"updated_at"`
	DeletedAt gorm.DeletedAt `gorm:"index" json:"deleted_at,omitempty"`
}

func (Course) TableName() string { return "courses" }

func (c *Course) BeforeCreate(tx *gorm.DB) error {
	if c.ID == uuid.Nil {
		c.ID = uuid.New()
	}
	return nil
}

type Quiz struct {
	ID              uuid.UUID `gorm:"type:uuid;primaryKey" json:"id"`
	CourseID        uuid.UUID `gorm:"type:uuid;not null;index" json:"course_id"`
	Title           string    `gorm:"column:title;not null" json:"title"`
	Description     string    `gorm:"column:description;type:text" json:"description"`
	DurationMinutes int       `gorm:"column:duration_minutes;not null;default:0" json:"duration_minutes"`
	IsPublished     bool      `gorm:"column:is_published;not null;default:false" json:"is_published"`
	CreatedAt       time.Time `gorm:"not null" json:"created_at"`
	UpdatedAt       time.Time `gorm:"not null" json:"updated_at"`
}

func (Quiz) TableName() string { return "quizzes" }

func (q *Quiz) BeforeCreate(tx *gorm.DB) error {
	if q.ID == uuid.Nil {
		q.ID = uuid.New()
	}
	return nil
}
