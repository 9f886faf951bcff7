package dispatch

import (
	"io"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/angelmondragon/outbound-dispatch/internal/owners"
	"github.com/angelmondragon/outbound-dispatch/pkg/db/models"
	"github.com/angelmondragon/outbound-dispatch/pkg/enums"
	"github.com/angelmondragon/outbound-dispatch/pkg/logger"
)

var baseTime = time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC)

func quietLogger() *logger.Logger {
	return logger.New(logger.Options{ServiceName: "dispatch-test", Output: io.Discard})
}

type messageOpt func(*models.OutboundMessage)

func withStatus(status enums.MessageStatus) messageOpt {
	return func(m *models.OutboundMessage) { m.Status = status }
}

func withRetryCount(n int) messageOpt {
	return func(m *models.OutboundMessage) { m.RetryCount = n }
}

func withNextAttempt(t time.Time) messageOpt {
	return func(m *models.OutboundMessage) { m.NextAttemptAt = &t }
}

func withLease(id uuid.UUID, expires time.Time) messageOpt {
	return func(m *models.OutboundMessage) {
		m.LeaseID = &id
		m.LeaseExpiresAt = &expires
	}
}

func withDispatchedAt(t time.Time) messageOpt {
	return func(m *models.OutboundMessage) { m.DispatchedAt = &t }
}

func withLead(id uuid.UUID) messageOpt {
	return func(m *models.OutboundMessage) { m.LeadID = &id }
}

func newMessage(priority enums.MessagePriority, createdAt time.Time, opts ...messageOpt) models.OutboundMessage {
	to := "+84900000000"
	msg := models.OutboundMessage{
		ID:          uuid.New(),
		Channel:     enums.MessageChannelSMS,
		ToAddress:   &to,
		TemplateKey: "lesson_reminder",
		Body:        "See you at 18:00",
		Priority:    priority,
		Status:      enums.MessageStatusQueued,
		CreatedAt:   createdAt,
		UpdatedAt:   createdAt,
	}
	for _, opt := range opts {
		opt(&msg)
	}
	return msg
}

func insertMessages(t *testing.T, db *gorm.DB, msgs ...models.OutboundMessage) {
	t.Helper()
	for i := range msgs {
		require.NoError(t, db.Create(&msgs[i]).Error)
	}
}

func loadMessage(t *testing.T, db *gorm.DB, id uuid.UUID) models.OutboundMessage {
	t.Helper()
	var msg models.OutboundMessage
	require.NoError(t, db.Where("id = ?", id).First(&msg).Error)
	return msg
}

func candidatesOf(msgs ...models.OutboundMessage) []Candidate {
	out := make([]Candidate, 0, len(msgs))
	for _, msg := range msgs {
		out = append(out, Candidate{Message: msg})
	}
	return out
}

func ownedCandidate(msg models.OutboundMessage, ownerID string) Candidate {
	return Candidate{Message: msg, Owner: &owners.Info{ID: ownerID, Name: "Owner " + ownerID}}
}
