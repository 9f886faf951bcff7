package models

import (
	"time"

	"github.com/google/uuid"
)

// Notification is the business event that composed one or more outbound messages.
type Notification struct {
	ID        uuid.UUID  `gorm:"type:uuid;default:gen_random_uuid();primaryKey"`
	Kind      string     `gorm:"column:kind;type:text;not null"`
	LeadID    *uuid.UUID `gorm:"column:lead_id;type:uuid"`
	StudentID *uuid.UUID `gorm:"column:student_id;type:uuid"`
	CreatedAt time.Time  `gorm:"column:created_at;autoCreateTime"`
}

func (Notification) TableName() string {
	return "notifications"
}
