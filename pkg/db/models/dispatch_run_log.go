package models

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"

	"github.com/angelmondragon/outbound-dispatch/pkg/enums"
)

// DispatchRunLog is the append-only outcome record written after each run.
type DispatchRunLog struct {
	ID                  uuid.UUID       `gorm:"column:id;type:uuid;primaryKey"`
	Mode                enums.RunMode   `gorm:"column:mode;type:text;not null"`
	RequestedBy         string          `gorm:"column:requested_by;type:text;not null"`
	Processed           int             `gorm:"column:processed;not null"`
	Sent                int             `gorm:"column:sent;not null"`
	Failed              int             `gorm:"column:failed;not null"`
	Skipped             int             `gorm:"column:skipped;not null"`
	RateLimited         int             `gorm:"column:rate_limited;not null"`
	RemainingEstimate   int             `gorm:"column:remaining_estimate;not null"`
	BreakdownByPriority json.RawMessage `gorm:"column:breakdown_by_priority;type:jsonb;not null"`
	BreakdownByOwner    json.RawMessage `gorm:"column:breakdown_by_owner;type:jsonb;not null"`
	Warnings            json.RawMessage `gorm:"column:warnings;type:jsonb;not null"`
	ChannelConfigured   bool            `gorm:"column:channel_configured;not null"`
	StartedAt           time.Time       `gorm:"column:started_at;not null"`
	FinishedAt          time.Time       `gorm:"column:finished_at;not null"`
	CreatedAt           time.Time       `gorm:"column:created_at;autoCreateTime"`
}

func (DispatchRunLog) TableName() string {
	return "dispatch_run_logs"
}
