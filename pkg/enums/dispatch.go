package enums

import "fmt"

// RunMode distinguishes planning runs from runs that mutate message state.
type RunMode string

const (
	RunModeDryRun RunMode = "dry_run"
	RunModeReal   RunMode = "real"
)

func (m RunMode) String() string {
	return string(m)
}

// SelectionMode decides which statuses are eligible for a run.
type SelectionMode string

const (
	SelectionNormal        SelectionMode = "normal"
	SelectionRetryOnly     SelectionMode = "retry_only"
	SelectionIncludeFailed SelectionMode = "include_failed"
)

func (m SelectionMode) String() string {
	return string(m)
}

// Statuses returns the status set eligible under the mode.
func (m SelectionMode) Statuses() []MessageStatus {
	switch m {
	case SelectionRetryOnly:
		return []MessageStatus{MessageStatusFailed}
	case SelectionIncludeFailed:
		return []MessageStatus{MessageStatusQueued, MessageStatusFailed}
	default:
		return []MessageStatus{MessageStatusQueued}
	}
}

// ParseSelectionMode converts raw input into SelectionMode.
func ParseSelectionMode(value string) (SelectionMode, error) {
	switch SelectionMode(value) {
	case SelectionNormal, SelectionRetryOnly, SelectionIncludeFailed:
		return SelectionMode(value), nil
	case "":
		return SelectionNormal, nil
	default:
		return "", fmt.Errorf("invalid selection mode %q", value)
	}
}

// SelectionModeFor maps the run flags onto a selection mode. retryFailedOnly
// wins when both flags are set.
func SelectionModeFor(retryFailedOnly, includeFailed bool) SelectionMode {
	switch {
	case retryFailedOnly:
		return SelectionRetryOnly
	case includeFailed:
		return SelectionIncludeFailed
	default:
		return SelectionNormal
	}
}

// DeliveryOutcome is the result of a single channel attempt.
type DeliveryOutcome string

const (
	DeliverySent           DeliveryOutcome = "SENT"
	DeliveryQueuedForRetry DeliveryOutcome = "QUEUED_FOR_RETRY"
	DeliveryFailed         DeliveryOutcome = "FAILED"
)

func (o DeliveryOutcome) String() string {
	return string(o)
}
