package models

import (
	"time"

	"github.com/google/uuid"

	"github.com/angelmondragon/outbound-dispatch/pkg/enums"
)

// OutboundMessage is a queued notification awaiting delivery to an external channel.
// Lease columns give a single worker run exclusive ownership until expiry.
type OutboundMessage struct {
	ID          uuid.UUID             `gorm:"column:id;type:uuid;default:gen_random_uuid();primaryKey"`
	Channel     enums.MessageChannel  `gorm:"column:channel;type:text;not null"`
	ToAddress   *string               `gorm:"column:to_address;type:text"`
	TemplateKey string                `gorm:"column:template_key;type:text;not null"`
	Body        string                `gorm:"column:body;type:text;not null"`
	Priority    enums.MessagePriority `gorm:"column:priority;type:text;not null;default:MEDIUM"`
	Status      enums.MessageStatus   `gorm:"column:status;type:text;not null;default:QUEUED"`

	LeadID         *uuid.UUID `gorm:"column:lead_id;type:uuid"`
	StudentID      *uuid.UUID `gorm:"column:student_id;type:uuid"`
	NotificationID *uuid.UUID `gorm:"column:notification_id;type:uuid"`

	LeaseID        *uuid.UUID `gorm:"column:lease_id;type:uuid"`
	LeaseExpiresAt *time.Time `gorm:"column:lease_expires_at"`

	RetryCount    int        `gorm:"column:retry_count;not null;default:0"`
	NextAttemptAt *time.Time `gorm:"column:next_attempt_at"`
	DispatchedAt  *time.Time `gorm:"column:dispatched_at"`
	SentAt        *time.Time `gorm:"column:sent_at"`
	Error         *string    `gorm:"column:error;type:text"`

	CreatedAt time.Time `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt time.Time `gorm:"column:updated_at;autoUpdateTime"`
}

func (OutboundMessage) TableName() string {
	return "outbound_messages"
}

// Leased reports whether a lease is still held at now.
func (m OutboundMessage) Leased(now time.Time) bool {
	return m.LeaseID != nil && m.LeaseExpiresAt != nil && m.LeaseExpiresAt.After(now)
}
