package dispatch

import (
	"context"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/outbound-dispatch/internal/repo"
	"github.com/angelmondragon/outbound-dispatch/pkg/db/models"
	"github.com/angelmondragon/outbound-dispatch/pkg/enums"
)

// Repository exposes persistence helpers for outbound messages.
type Repository interface {
	WithTx(tx *gorm.DB) Repository
	ListCandidates(ctx context.Context, q CandidateQuery) ([]models.OutboundMessage, error)
	CountEligible(ctx context.Context, q CandidateQuery) (int64, error)
	ListDispatchedSince(ctx context.Context, since time.Time) ([]models.OutboundMessage, error)
	ClaimLeases(ctx context.Context, ids []uuid.UUID, leaseID uuid.UUID, expiresAt time.Time, q CandidateQuery) ([]models.OutboundMessage, error)
	ReleaseLeases(ctx context.Context, ids []uuid.UUID) (int64, error)
	MarkSent(ctx context.Context, id, leaseID uuid.UUID, at time.Time) (bool, error)
	MarkHandedOff(ctx context.Context, id, leaseID uuid.UUID, at, nextAttemptAt time.Time) (bool, error)
	MarkFailed(ctx context.Context, id, leaseID uuid.UUID, update FailureUpdate) (bool, error)
	QueueStats(ctx context.Context, maxRetries int, now time.Time) (QueueStats, error)
}

// FailureUpdate carries the retry bookkeeping written after a failed attempt.
type FailureUpdate struct {
	RetryCount    int
	Error         string
	NextAttemptAt time.Time
	At            time.Time
}

type repositoryImpl struct {
	repo.Base
}

// NewRepository returns an outbound message repository bound to the provided database.
func NewRepository(db *gorm.DB) Repository {
	return &repositoryImpl{Base: repo.NewBase(db)}
}

func (r *repositoryImpl) WithTx(tx *gorm.DB) Repository {
	if tx == nil {
		return r
	}
	return &repositoryImpl{Base: repo.NewBase(tx)}
}

func (r *repositoryImpl) messages(ctx context.Context) *gorm.DB {
	return r.DB(ctx).Model(&models.OutboundMessage{})
}

// eligible applies the selection invariant: allowed status, under the retry
// ceiling, lease absent or expired and, unless forced, due.
func eligible(query *gorm.DB, q CandidateQuery) *gorm.DB {
	query = query.
		Where("status IN ?", statusStrings(q.Statuses)).
		Where("retry_count < ?", q.MaxRetries).
		Where("(lease_expires_at IS NULL OR lease_expires_at <= ?)", q.Now)
	if !q.Force {
		query = query.Where("(next_attempt_at IS NULL OR next_attempt_at <= ?)", q.Now)
	}
	return query
}

const priorityOrder = "CASE priority WHEN 'HIGH' THEN 0 WHEN 'MEDIUM' THEN 1 WHEN 'LOW' THEN 2 ELSE 3 END"

func (r *repositoryImpl) ListCandidates(ctx context.Context, q CandidateQuery) ([]models.OutboundMessage, error) {
	query := eligible(r.messages(ctx), q).
		Order(priorityOrder).
		Order("next_attempt_at IS NOT NULL").
		Order("next_attempt_at ASC").
		Order("created_at ASC")
	if q.Limit > 0 {
		query = query.Limit(q.Limit)
	}
	var rows []models.OutboundMessage
	if err := query.Find(&rows).Error; err != nil {
		return nil, err
	}
	return rows, nil
}

func (r *repositoryImpl) CountEligible(ctx context.Context, q CandidateQuery) (int64, error) {
	var count int64
	if err := eligible(r.messages(ctx), q).Count(&count).Error; err != nil {
		return 0, err
	}
	return count, nil
}

func (r *repositoryImpl) ListDispatchedSince(ctx context.Context, since time.Time) ([]models.OutboundMessage, error) {
	var rows []models.OutboundMessage
	err := r.messages(ctx).
		Select("id", "lead_id", "student_id", "notification_id", "dispatched_at").
		Where("dispatched_at IS NOT NULL AND dispatched_at >= ?", since).
		Find(&rows).Error
	if err != nil {
		return nil, err
	}
	return rows, nil
}

// ClaimLeases is a conditional update: rows whose lease is live, or which are
// no longer eligible, are left untouched. The claimed rows are read back by token.
func (r *repositoryImpl) ClaimLeases(ctx context.Context, ids []uuid.UUID, leaseID uuid.UUID, expiresAt time.Time, q CandidateQuery) ([]models.OutboundMessage, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	result := eligible(r.messages(ctx), q).
		Where("id IN ?", ids).
		UpdateColumns(map[string]any{
			"lease_id":         leaseID,
			"lease_expires_at": expiresAt,
		})
	if result.Error != nil {
		return nil, result.Error
	}
	if result.RowsAffected == 0 {
		return nil, nil
	}
	var claimed []models.OutboundMessage
	if err := r.messages(ctx).Where("lease_id = ?", leaseID).Find(&claimed).Error; err != nil {
		return nil, err
	}
	return claimed, nil
}

func (r *repositoryImpl) ReleaseLeases(ctx context.Context, ids []uuid.UUID) (int64, error) {
	if len(ids) == 0 {
		return 0, nil
	}
	result := r.messages(ctx).
		Where("id IN ?", ids).
		UpdateColumns(map[string]any{
			"lease_id":         nil,
			"lease_expires_at": nil,
		})
	return result.RowsAffected, result.Error
}

func (r *repositoryImpl) MarkSent(ctx context.Context, id, leaseID uuid.UUID, at time.Time) (bool, error) {
	return r.updateLeased(ctx, id, leaseID, map[string]any{
		"status":           enums.MessageStatusSent.String(),
		"lease_id":         nil,
		"lease_expires_at": nil,
		"next_attempt_at":  nil,
		"sent_at":          at,
		"dispatched_at":    at,
		"error":            nil,
		"updated_at":       at,
	})
}

func (r *repositoryImpl) MarkHandedOff(ctx context.Context, id, leaseID uuid.UUID, at, nextAttemptAt time.Time) (bool, error) {
	return r.updateLeased(ctx, id, leaseID, map[string]any{
		"status":           enums.MessageStatusQueued.String(),
		"lease_id":         nil,
		"lease_expires_at": nil,
		"next_attempt_at":  nextAttemptAt,
		"dispatched_at":    at,
		"error":            nil,
		"updated_at":       at,
	})
}

func (r *repositoryImpl) MarkFailed(ctx context.Context, id, leaseID uuid.UUID, update FailureUpdate) (bool, error) {
	return r.updateLeased(ctx, id, leaseID, map[string]any{
		"status":           enums.MessageStatusFailed.String(),
		"lease_id":         nil,
		"lease_expires_at": nil,
		"retry_count":      update.RetryCount,
		"error":            update.Error,
		"next_attempt_at":  update.NextAttemptAt,
		"updated_at":       update.At,
	})
}

// updateLeased only touches the row while our lease token is still on it.
func (r *repositoryImpl) updateLeased(ctx context.Context, id, leaseID uuid.UUID, values map[string]any) (bool, error) {
	result := r.messages(ctx).
		Where("id = ? AND lease_id = ?", id, leaseID).
		UpdateColumns(values)
	if result.Error != nil {
		return false, result.Error
	}
	return result.RowsAffected == 1, nil
}

type statusPriorityCount struct {
	Status   string
	Priority string
	Total    int64
}

func (r *repositoryImpl) QueueStats(ctx context.Context, maxRetries int, now time.Time) (QueueStats, error) {
	stats := QueueStats{
		ByStatus:         map[string]int64{},
		ByStatusPriority: map[string]map[string]int64{},
	}

	var rows []statusPriorityCount
	err := r.messages(ctx).
		Select("status, priority, COUNT(*) AS total").
		Group("status, priority").
		Scan(&rows).Error
	if err != nil {
		return QueueStats{}, err
	}
	for _, row := range rows {
		stats.ByStatus[row.Status] += row.Total
		if stats.ByStatusPriority[row.Status] == nil {
			stats.ByStatusPriority[row.Status] = map[string]int64{}
		}
		stats.ByStatusPriority[row.Status][row.Priority] = row.Total
	}

	if err := r.messages(ctx).Where("lease_expires_at > ?", now).Count(&stats.Leased).Error; err != nil {
		return QueueStats{}, err
	}
	err = r.messages(ctx).
		Where("status = ? AND retry_count >= ?", enums.MessageStatusFailed.String(), maxRetries).
		Count(&stats.RetryExhausted).Error
	if err != nil {
		return QueueStats{}, err
	}

	stats.EligibleNow, err = r.CountEligible(ctx, CandidateQuery{
		Statuses:   enums.SelectionNormal.Statuses(),
		MaxRetries: maxRetries,
		Now:        now,
	})
	if err != nil {
		return QueueStats{}, err
	}
	return stats, nil
}

func statusStrings(statuses []enums.MessageStatus) []string {
	out := make([]string, 0, len(statuses))
	for _, s := range statuses {
		out = append(out, s.String())
	}
	return out
}

func messageIDs(candidates []Candidate) []uuid.UUID {
	ids := make([]uuid.UUID, 0, len(candidates))
	for _, c := range candidates {
		ids = append(ids, c.Message.ID)
	}
	return ids
}
