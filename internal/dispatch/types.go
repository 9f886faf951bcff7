package dispatch

import (
	"time"

	"github.com/google/uuid"

	"github.com/angelmondragon/outbound-dispatch/internal/owners"
	"github.com/angelmondragon/outbound-dispatch/pkg/db/models"
	"github.com/angelmondragon/outbound-dispatch/pkg/enums"
)

const (
	// rateWindow is the trailing span of dispatch timestamps counted against budgets.
	rateWindow = time.Minute
	// supersetFactor widens the store query so ranking sees more than one batch.
	supersetFactor = 3
	// maxErrorLength bounds the failure reason persisted on a message.
	maxErrorLength = 500
	// topOwnerLimit caps the owner breakdown in run results and run logs.
	topOwnerLimit = 10
)

// RunParams describes one dispatch invocation. Zero BatchSize and Concurrency
// fall back to configured defaults.
type RunParams struct {
	DryRun          bool
	BatchSize       int
	RetryFailedOnly bool
	IncludeFailed   bool
	Force           bool
	Concurrency     int
	RequestedBy     string
	LogRun          bool
}

// DefaultRunParams returns params with run logging enabled.
func DefaultRunParams(requestedBy string) RunParams {
	return RunParams{RequestedBy: requestedBy, LogRun: true}
}

// ScheduledRunParams returns the params used by periodic runs. FAILED rows
// under the retry ceiling are included so backoff-gated retries resume on
// their own once nextAttemptAt passes.
func ScheduledRunParams(requestedBy string) RunParams {
	params := DefaultRunParams(requestedBy)
	params.IncludeFailed = true
	return params
}

// SelectionMode maps the status flags onto the eligible status set.
func (p RunParams) SelectionMode() enums.SelectionMode {
	return enums.SelectionModeFor(p.RetryFailedOnly, p.IncludeFailed)
}

// RunResult is returned to the caller of a run.
type RunResult struct {
	RunID               string         `json:"runId"`
	OK                  bool           `json:"ok"`
	DryRun              bool           `json:"dryRun"`
	Processed           int            `json:"processed"`
	Sent                int            `json:"sent"`
	HandedOff           int            `json:"handedOff"`
	Failed              int            `json:"failed"`
	Skipped             int            `json:"skipped"`
	RateLimited         int            `json:"rateLimited"`
	RemainingEstimate   int            `json:"remainingEstimate"`
	BreakdownByPriority map[string]int `json:"breakdownByPriority"`
	BreakdownByOwner    []OwnerCount   `json:"breakdownByOwner"`
	ChannelConfigured   bool           `json:"channelConfigured"`
	Warnings            []string       `json:"warnings,omitempty"`
	StartedAt           time.Time      `json:"startedAt"`
	FinishedAt          time.Time      `json:"finishedAt"`
}

// OwnerCount is one row of the per-owner breakdown.
type OwnerCount struct {
	OwnerID   string `json:"ownerId"`
	OwnerName string `json:"ownerName,omitempty"`
	Count     int    `json:"count"`
}

// RunOutcome is the fixed-schema record handed to run sinks.
type RunOutcome struct {
	RunID               uuid.UUID
	Mode                enums.RunMode
	RequestedBy         string
	Processed           int
	Sent                int
	Failed              int
	Skipped             int
	RateLimited         int
	RemainingEstimate   int
	BreakdownByPriority map[string]int
	BreakdownByOwner    []OwnerCount
	ChannelConfigured   bool
	Warnings            []string
	StartedAt           time.Time
	FinishedAt          time.Time
}

// Candidate pairs a selected message with its resolved owner, if any.
type Candidate struct {
	Message models.OutboundMessage
	Owner   *owners.Info
}

// OwnerID returns the owner bucket key or "" when the message has no owner.
func (c Candidate) OwnerID() string {
	if c.Owner == nil {
		return ""
	}
	return c.Owner.ID
}

// CandidateQuery scopes the eligible set. Now is the instant leases and
// next_attempt_at are compared against.
type CandidateQuery struct {
	Statuses   []enums.MessageStatus
	MaxRetries int
	Force      bool
	Now        time.Time
	Limit      int
}

// QueueStats summarizes the message table for operators.
type QueueStats struct {
	ByStatus         map[string]int64            `json:"byStatus"`
	ByStatusPriority map[string]map[string]int64 `json:"byStatusPriority"`
	EligibleNow      int64                       `json:"eligibleNow"`
	Leased           int64                       `json:"leased"`
	RetryExhausted   int64                       `json:"retryExhausted"`
}
