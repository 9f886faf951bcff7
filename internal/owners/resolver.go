package owners

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/outbound-dispatch/internal/repo"
	"github.com/angelmondragon/outbound-dispatch/pkg/db/models"
)

const (
	EntityLead         = "lead"
	EntityStudent      = "student"
	EntityNotification = "notification"
)

// Info identifies the staff member a message is attributed to.
type Info struct {
	ID   string `json:"id"`
	Name string `json:"name,omitempty"`
}

// Ref returns the entity kind and id a message is looked up by. Lead wins over
// student, student over notification.
func Ref(msg models.OutboundMessage) (string, uuid.UUID, bool) {
	switch {
	case msg.LeadID != nil:
		return EntityLead, *msg.LeadID, true
	case msg.StudentID != nil:
		return EntityStudent, *msg.StudentID, true
	case msg.NotificationID != nil:
		return EntityNotification, *msg.NotificationID, true
	}
	return "", uuid.Nil, false
}

// DBResolver follows message references to the owning user.
type DBResolver struct {
	repo.Base
}

func NewDBResolver(db *gorm.DB) *DBResolver {
	return &DBResolver{Base: repo.NewBase(db)}
}

// Resolve returns nil without error when no owner can be determined.
func (r *DBResolver) Resolve(ctx context.Context, msg models.OutboundMessage) (*Info, error) {
	entity, id, ok := Ref(msg)
	if !ok {
		return nil, nil
	}
	return r.ResolveRef(ctx, entity, id)
}

// ResolveRef resolves one entity reference.
func (r *DBResolver) ResolveRef(ctx context.Context, entity string, id uuid.UUID) (*Info, error) {
	switch entity {
	case EntityLead:
		return r.fromLead(ctx, id)
	case EntityStudent:
		return r.fromStudent(ctx, id)
	case EntityNotification:
		return r.fromNotification(ctx, id)
	}
	return nil, fmt.Errorf("unknown owner entity %q", entity)
}

func (r *DBResolver) fromLead(ctx context.Context, leadID uuid.UUID) (*Info, error) {
	var lead models.Lead
	found, err := r.first(ctx, &lead, leadID)
	if err != nil || !found {
		return nil, err
	}
	if lead.OwnerUserID == nil {
		return nil, nil
	}
	info := &Info{ID: lead.OwnerUserID.String()}
	var user models.User
	found, err = r.first(ctx, &user, *lead.OwnerUserID)
	if err != nil {
		return nil, err
	}
	if found {
		info.Name = user.DisplayName()
	}
	return info, nil
}

func (r *DBResolver) fromStudent(ctx context.Context, studentID uuid.UUID) (*Info, error) {
	var student models.Student
	found, err := r.first(ctx, &student, studentID)
	if err != nil || !found || student.LeadID == nil {
		return nil, err
	}
	return r.fromLead(ctx, *student.LeadID)
}

func (r *DBResolver) fromNotification(ctx context.Context, notificationID uuid.UUID) (*Info, error) {
	var notification models.Notification
	found, err := r.first(ctx, &notification, notificationID)
	if err != nil || !found {
		return nil, err
	}
	switch {
	case notification.LeadID != nil:
		return r.fromLead(ctx, *notification.LeadID)
	case notification.StudentID != nil:
		return r.fromStudent(ctx, *notification.StudentID)
	}
	return nil, nil
}

func (r *DBResolver) first(ctx context.Context, dest any, id uuid.UUID) (bool, error) {
	err := r.DB(ctx).Where("id = ?", id).First(dest).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}
