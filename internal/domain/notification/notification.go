package notification

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

type Type string

const (
	TypeSMS    Type = "SMS"
	TypeEmail  Type = "EMAIL"
	TypeSystem Type = "SYSTEM"
)

type Status string

const (
	StatusPending Status = "PENDING"
	StatusSent    Status = "SENT"
	StatusFailed  Status = "FAILED"
)

type Notification struct {
	ID          uuid.UUID         `gorm:"type:uuid;primaryKey" json:"id"`
	RecipientID uuid.UUID         `gorm:"type:uuid;not null;index" json:"recipient_id"`
	Type        Type              `gorm:"column:type;not null;default:'SYSTEM'" json:"type"`
	Title       string            `gorm:"column:title;not null" json:"title"`
	Content     string            `gorm:"column:content;type:text;not null" json:"content"`
	Status      Status            `gorm:"column:status;not null;default:'PENDING';index" json:"status"`
	PhoneNumber string            `gorm:"column:phone_number" json:"phone_number,omitempty"`
	Metadata    datatypes.JSONMap `gorm:"column:metadata" json:"metadata,omitempty"`
	IsRead      bool              `gorm:"column:is_read;not null;default:false" json:"is_read"`
	ReadAt      *time.Time        `gorm:"column:read_at" json:"read_at,omitempty"`
	SentAt      *time.Time        `gorm:"column:sent_at" json:"sent_at,omitempty"`
	CreatedAt   time.Time         `gorm:"not null;index" json:"created_at"`
	UpdatedAt   time.Time         `gorm:"not null" json:"updated_at"`
}

func (Notification) TableName() string { return "notifications" }

func (n *Notification) BeforeCreate(tx *gorm.DB) error {
	if n.ID == uuid.Nil {
		n.ID = uuid.New()
	}
	if n.Metadata == nil {
		n.Metadata = datatypes.JSONMap{}
	}
	return nil
}
