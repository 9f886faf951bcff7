package dispatch

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"cloud.google.com/go/bigquery"
)

type runOutcomeInserter interface {
	InsertRunOutcomes(ctx context.Context, rows []any) error
}

// bigQueryRunRow mirrors the dispatch_run_outcomes table.
type bigQueryRunRow struct {
	RunID               string    `bigquery:"run_id"`
	Mode                string    `bigquery:"mode"`
	RequestedBy         string    `bigquery:"requested_by"`
	Processed           int64     `bigquery:"processed"`
	Sent                int64     `bigquery:"sent"`
	Failed              int64     `bigquery:"failed"`
	Skipped             int64     `bigquery:"skipped"`
	RateLimited         int64     `bigquery:"rate_limited"`
	RemainingEstimate   int64     `bigquery:"remaining_estimate"`
	BreakdownByPriority string    `bigquery:"breakdown_by_priority"`
	BreakdownByOwner    string    `bigquery:"breakdown_by_owner"`
	Warnings            []string  `bigquery:"warnings"`
	ChannelConfigured   bool      `bigquery:"channel_configured"`
	StartedAt           time.Time `bigquery:"started_at"`
	FinishedAt          time.Time `bigquery:"finished_at"`
}

// BigQuerySink streams run outcomes to the analytics warehouse. The run id is
// the insert id so retried inserts are deduplicated.
type BigQuerySink struct {
	inserter runOutcomeInserter
}

func NewBigQuerySink(inserter runOutcomeInserter) *BigQuerySink {
	return &BigQuerySink{inserter: inserter}
}

func (s *BigQuerySink) Name() string {
	return "bigquery"
}

func (s *BigQuerySink) Record(ctx context.Context, outcome RunOutcome) error {
	row, err := newBigQueryRunRow(outcome)
	if err != nil {
		return err
	}
	saver := &bigquery.StructSaver{Struct: row, InsertID: row.RunID}
	return s.inserter.InsertRunOutcomes(ctx, []any{saver})
}

func newBigQueryRunRow(outcome RunOutcome) (bigQueryRunRow, error) {
	byPriority, err := json.Marshal(nonNilMap(outcome.BreakdownByPriority))
	if err != nil {
		return bigQueryRunRow{}, fmt.Errorf("encode priority breakdown: %w", err)
	}
	byOwner, err := json.Marshal(nonNilSlice(outcome.BreakdownByOwner))
	if err != nil {
		return bigQueryRunRow{}, fmt.Errorf("encode owner breakdown: %w", err)
	}
	return bigQueryRunRow{
		RunID:               outcome.RunID.String(),
		Mode:                outcome.Mode.String(),
		RequestedBy:         outcome.RequestedBy,
		Processed:           int64(outcome.Processed),
		Sent:                int64(outcome.Sent),
		Failed:              int64(outcome.Failed),
		Skipped:             int64(outcome.Skipped),
		RateLimited:         int64(outcome.RateLimited),
		RemainingEstimate:   int64(outcome.RemainingEstimate),
		BreakdownByPriority: string(byPriority),
		BreakdownByOwner:    string(byOwner),
		Warnings:            nonNilSlice(outcome.Warnings),
		ChannelConfigured:   outcome.ChannelConfigured,
		StartedAt:           outcome.StartedAt,
		FinishedAt:          outcome.FinishedAt,
	}, nil
}
