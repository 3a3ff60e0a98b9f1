package learning

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

type DeviceInfo struct {
	Platform   string `json:"platform" binding:"required"`
	Browser    string `json:"browser" binding:"required"`
	Version    string `json:"version,omitempty"`
	ScreenSize string `json:"screen_size,omitempty"`
	Model      string `json:"model,omitempty"`
	OS         string `json:"os,omitempty"`
}

// OfflineAccessEvent records one download of a course bundle to a device.
type OfflineAccessEvent struct {
	DownloadedAt time.Time  `json:"downloaded_at"`
	SyncedAt     *time.Time `json:"synced_at,omitempty"`
	DeviceInfo   DeviceInfo `json:"device_info"`
}

// CourseProgress is the single tracking row for a (user, course) pair.
//
// OfflineAccessHistory is append-only. Only the most recent entry may change,
// and only through TouchLastOfflineAccess.
type CourseProgress struct {
	ID       uuid.UUID `gorm:"type:uuid;primaryKey" json:"id"`
	UserID   uuid.UUID `gorm:"type:uuid;not null;uniqueIndex:idx_course_progress_user_course,priority:1" json:"user_id"`
	CourseID uuid.UUID `gorm:"type:uuid;not null;uniqueIndex:idx_course_progress_user_course,priority:2;index" json:"course_id"`
	Course   *Course   `gorm:"constraint:OnDelete:CASCADE;foreignKey:CourseID;references:ID" json:"course,omitempty"`

	ProgressPercentage  float64 `gorm:"column:progress_percentage;not null;default:0" json:"progress_percentage"`
	IsCompleted         bool    `gorm:"column:is_completed;not null;default:false" json:"is_completed"`
	IsDownloadedOffline bool    `gorm:"column:is_downloaded_offline;not null;default:false" json:"is_downloaded_offline"`

	OfflineAccessHistory datatypes.JSONSlice[OfflineAccessEvent] `gorm:"column:offline_access_history" json:"offline_access_history"`
	LastPosition         *float64                                `gorm:"column:last_position" json:"last_position,omitempty"`

	CreatedAt time.Time `gorm:"not null" json:"created_at"`
	UpdatedAt time.Time `gorm:"not null" json:"updated_at"`
}

func (CourseProgress) TableName() string { return "course_progress" }

func (p *CourseProgress) BeforeCreate(tx *gorm.DB) error {
	if p.ID == uuid.Nil {
		p.ID = uuid.New()
	}
	return nil
}

func (p *CourseProgress) AppendOfflineAccess(ev OfflineAccessEvent) {
	if p.OfflineAccessHistory == nil {
		p.OfflineAccessHistory = datatypes.JSONSlice[OfflineAccessEvent]{}
	}
	p.OfflineAccessHistory = append(p.OfflineAccessHistory, ev)
}

// TouchLastOfflineAccess stamps the newest history entry with a sync time and
// the syncing device. It reports false when there is no history yet.
func (p *CourseProgress) TouchLastOfflineAccess(syncedAt time.Time, device DeviceInfo) bool {
	n := len(p.OfflineAccessHistory)
	if n == 0 {
		return false
	}
	at := syncedAt
	last := p.OfflineAccessHistory[n-1]
	last.SyncedAt = &at
	last.DeviceInfo = device
	p.OfflineAccessHistory[n-1] = last
	return true
}

// LastOfflineAccess returns the newest history entry, if any.
func (p *CourseProgress) LastOfflineAccess() (OfflineAccessEvent, bool) {
	n := len(p.OfflineAccessHistory)
	if n == 0 {
		return OfflineAccessEvent{}, false
	}
	return p.OfflineAccessHistory[n-1], true
}
