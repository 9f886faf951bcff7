package models

import (
	"time"

	"github.com/google/uuid"
)

// Lead is a prospect record; OwnerUserID is the staff member responsible for it.
type Lead struct {
	ID          uuid.UUID  `gorm:"type:uuid;default:gen_random_uuid();primaryKey"`
	FullName    string     `gorm:"column:full_name;not null"`
	OwnerUserID *uuid.UUID `gorm:"column:owner_user_id;type:uuid"`
	CreatedAt   time.Time  `gorm:"column:created_at;autoCreateTime"`
}

func (Lead) TableName() string {
	return "leads"
}

// Student is an enrolled lead.
type Student struct {
	ID        uuid.UUID  `gorm:"type:uuid;default:gen_random_uuid();primaryKey"`
	FullName  string     `gorm:"column:full_name;not null"`
	LeadID    *uuid.UUID `gorm:"column:lead_id;type:uuid"`
	CreatedAt time.Time  `gorm:"column:created_at;autoCreateTime"`
}

func (Student) TableName() string {
	return "students"
}
