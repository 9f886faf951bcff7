package dispatch

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/outbound-dispatch/internal/repo"
	"github.com/angelmondragon/outbound-dispatch/pkg/db/models"
	"github.com/angelmondragon/outbound-dispatch/pkg/pagination"
)

// RunLogSummary is the API view of a stored run log.
type RunLogSummary struct {
	RunID               uuid.UUID      `json:"runId"`
	Mode                string         `json:"mode"`
	RequestedBy         string         `json:"requestedBy"`
	Processed           int            `json:"processed"`
	Sent                int            `json:"sent"`
	Failed              int            `json:"failed"`
	Skipped             int            `json:"skipped"`
	RateLimited         int            `json:"rateLimited"`
	RemainingEstimate   int            `json:"remainingEstimate"`
	BreakdownByPriority map[string]int `json:"breakdownByPriority"`
	BreakdownByOwner    []OwnerCount   `json:"breakdownByOwner"`
	Warnings            []string       `json:"warnings"`
	ChannelConfigured   bool           `json:"channelConfigured"`
	StartedAt           time.Time      `json:"startedAt"`
	FinishedAt          time.Time      `json:"finishedAt"`
}

// RunLogPage is one page of run logs, newest first.
type RunLogPage struct {
	Runs       []RunLogSummary `json:"runs"`
	NextCursor string          `json:"nextCursor,omitempty"`
}

// RunLogRepository stores run outcomes in dispatch_run_logs. It is also the
// database RunSink.
type RunLogRepository struct {
	repo.Base
}

func NewRunLogRepository(db *gorm.DB) *RunLogRepository {
	return &RunLogRepository{Base: repo.NewBase(db)}
}

func (r *RunLogRepository) Name() string {
	return "run_log"
}

// Record inserts one row per run.
func (r *RunLogRepository) Record(ctx context.Context, outcome RunOutcome) error {
	row, err := runLogFromOutcome(outcome)
	if err != nil {
		return err
	}
	return r.DB(ctx).Create(&row).Error
}

// ListRecent pages through run logs ordered by created_at, id descending.
func (r *RunLogRepository) ListRecent(ctx context.Context, limit int, cursor *pagination.Cursor) (RunLogPage, error) {
	query := r.DB(ctx).Model(&models.DispatchRunLog{}).
		Order("created_at DESC").
		Order("id DESC").
		Limit(pagination.LimitWithBuffer(limit))
	if cursor != nil {
		query = query.Where("(created_at < ?) OR (created_at = ? AND id < ?)", cursor.CreatedAt, cursor.CreatedAt, cursor.ID)
	}

	var rows []models.DispatchRunLog
	if err := query.Find(&rows).Error; err != nil {
		return RunLogPage{}, err
	}
	rows, next := pagination.Trim(rows, limit, func(row models.DispatchRunLog) pagination.Cursor {
		return pagination.Cursor{CreatedAt: row.CreatedAt, ID: row.ID}
	})

	page := RunLogPage{Runs: make([]RunLogSummary, 0, len(rows))}
	for _, row := range rows {
		summary, err := summaryFromRunLog(row)
		if err != nil {
			return RunLogPage{}, err
		}
		page.Runs = append(page.Runs, summary)
	}
	if next != nil {
		page.NextCursor = pagination.EncodeCursor(*next)
	}
	return page, nil
}

// DeleteOlderThan removes logs created before cutoff.
func (r *RunLogRepository) DeleteOlderThan(ctx context.Context, cutoff time.Time) (int64, error) {
	result := r.DB(ctx).Where("created_at < ?", cutoff).Delete(&models.DispatchRunLog{})
	return result.RowsAffected, result.Error
}

func runLogFromOutcome(outcome RunOutcome) (models.DispatchRunLog, error) {
	byPriority, err := json.Marshal(nonNilMap(outcome.BreakdownByPriority))
	if err != nil {
		return models.DispatchRunLog{}, fmt.Errorf("encode priority breakdown: %w", err)
	}
	byOwner, err := json.Marshal(nonNilSlice(outcome.BreakdownByOwner))
	if err != nil {
		return models.DispatchRunLog{}, fmt.Errorf("encode owner breakdown: %w", err)
	}
	warnings, err := json.Marshal(nonNilSlice(outcome.Warnings))
	if err != nil {
		return models.DispatchRunLog{}, fmt.Errorf("encode warnings: %w", err)
	}
	return models.DispatchRunLog{
		ID:                  outcome.RunID,
		Mode:                outcome.Mode,
		RequestedBy:         outcome.RequestedBy,
		Processed:           outcome.Processed,
		Sent:                outcome.Sent,
		Failed:              outcome.Failed,
		Skipped:             outcome.Skipped,
		RateLimited:         outcome.RateLimited,
		RemainingEstimate:   outcome.RemainingEstimate,
		BreakdownByPriority: byPriority,
		BreakdownByOwner:    byOwner,
		Warnings:            warnings,
		ChannelConfigured:   outcome.ChannelConfigured,
		StartedAt:           outcome.StartedAt,
		FinishedAt:          outcome.FinishedAt,
		CreatedAt:           outcome.FinishedAt,
	}, nil
}

func summaryFromRunLog(row models.DispatchRunLog) (RunLogSummary, error) {
	summary := RunLogSummary{
		RunID:             row.ID,
		Mode:              row.Mode.String(),
		RequestedBy:       row.RequestedBy,
		Processed:         row.Processed,
		Sent:              row.Sent,
		Failed:            row.Failed,
		Skipped:           row.Skipped,
		RateLimited:       row.RateLimited,
		RemainingEstimate: row.RemainingEstimate,
		ChannelConfigured: row.ChannelConfigured,
		StartedAt:         row.StartedAt,
		FinishedAt:        row.FinishedAt,
	}
	if err := decodeColumn(row.BreakdownByPriority, &summary.BreakdownByPriority); err != nil {
		return RunLogSummary{}, fmt.Errorf("decode priority breakdown for run %s: %w", row.ID, err)
	}
	if err := decodeColumn(row.BreakdownByOwner, &summary.BreakdownByOwner); err != nil {
		return RunLogSummary{}, fmt.Errorf("decode owner breakdown for run %s: %w", row.ID, err)
	}
	if err := decodeColumn(row.Warnings, &summary.Warnings); err != nil {
		return RunLogSummary{}, fmt.Errorf("decode warnings for run %s: %w", row.ID, err)
	}
	return summary, nil
}

func decodeColumn(raw json.RawMessage, dest any) error {
	if len(raw) == 0 {
		return nil
	}
	return json.Unmarshal(raw, dest)
}

func nonNilMap(m map[string]int) map[string]int {
	if m == nil {
		return map[string]int{}
	}
	return m
}

func nonNilSlice[T any](s []T) []T {
	if s == nil {
		return []T{}
	}
	return s
}
