package enums

import (
	"fmt"
	"strings"
)

// MessageStatus maps to the status column of outbound_messages.
type MessageStatus string

const (
	MessageStatusQueued MessageStatus = "QUEUED"
	MessageStatusSent   MessageStatus = "SENT"
	MessageStatusFailed MessageStatus = "FAILED"
)

var validMessageStatuses = []MessageStatus{
	MessageStatusQueued,
	MessageStatusSent,
	MessageStatusFailed,
}

// IsValid reports whether the value is a known message status.
func (s MessageStatus) IsValid() bool {
	for _, candidate := range validMessageStatuses {
		if candidate == s {
			return true
		}
	}
	return false
}

func (s MessageStatus) String() string {
	return string(s)
}

// ParseMessageStatus converts raw input into MessageStatus.
func ParseMessageStatus(value string) (MessageStatus, error) {
	for _, candidate := range validMessageStatuses {
		if strings.EqualFold(string(candidate), strings.TrimSpace(value)) {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid message status %q", value)
}

// MessagePriority orders candidates during selection.
type MessagePriority string

const (
	MessagePriorityHigh   MessagePriority = "HIGH"
	MessagePriorityMedium MessagePriority = "MEDIUM"
	MessagePriorityLow    MessagePriority = "LOW"
)

// ValidMessagePriorities is ordered from most to least urgent.
var ValidMessagePriorities = []MessagePriority{
	MessagePriorityHigh,
	MessagePriorityMedium,
	MessagePriorityLow,
}

// Rank returns a larger number for more urgent priorities. Unknown values rank
// below LOW so malformed rows never jump the queue.
func (p MessagePriority) Rank() int {
	switch p {
	case MessagePriorityHigh:
		return 3
	case MessagePriorityMedium:
		return 2
	case MessagePriorityLow:
		return 1
	default:
		return 0
	}
}

func (p MessagePriority) IsValid() bool {
	return p.Rank() > 0
}

func (p MessagePriority) String() string {
	return string(p)
}

// ParseMessagePriority converts raw input into MessagePriority.
func ParseMessagePriority(value string) (MessagePriority, error) {
	for _, candidate := range ValidMessagePriorities {
		if strings.EqualFold(string(candidate), strings.TrimSpace(value)) {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid message priority %q", value)
}

// MessageChannel is the routing tag stored on each message.
type MessageChannel string

const (
	MessageChannelSMS     MessageChannel = "sms"
	MessageChannelZalo    MessageChannel = "zalo"
	MessageChannelWebhook MessageChannel = "webhook"
)

func (c MessageChannel) String() string {
	return string(c)
}
