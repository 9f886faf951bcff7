package dispatch

import (
	"context"
	"time"

	"github.com/angelmondragon/outbound-dispatch/pkg/db/models"
	"github.com/angelmondragon/outbound-dispatch/pkg/enums"
)

const defaultDeliveryTimeout = 15 * time.Second

// Channel performs one delivery attempt to an external sink.
type Channel interface {
	Name() string
	// Configured reports whether a live downstream endpoint is behind the channel.
	Configured() bool
	Deliver(ctx context.Context, envelope Envelope) error
}

// Envelope is the JSON body handed to external channels.
type Envelope struct {
	MessageID      string  `json:"messageId"`
	Channel        string  `json:"channel"`
	To             *string `json:"to,omitempty"`
	TemplateKey    string  `json:"templateKey"`
	Body           string  `json:"body"`
	Priority       string  `json:"priority"`
	RetryCount     int     `json:"retryCount"`
	LeadID         *string `json:"leadId,omitempty"`
	StudentID      *string `json:"studentId,omitempty"`
	NotificationID *string `json:"notificationId,omitempty"`
}

// NewEnvelope copies the routing and body fields of msg.
func NewEnvelope(msg models.OutboundMessage) Envelope {
	env := Envelope{
		MessageID:   msg.ID.String(),
		Channel:     msg.Channel.String(),
		To:          msg.ToAddress,
		TemplateKey: msg.TemplateKey,
		Body:        msg.Body,
		Priority:    msg.Priority.String(),
		RetryCount:  msg.RetryCount,
	}
	if msg.LeadID != nil {
		id := msg.LeadID.String()
		env.LeadID = &id
	}
	if msg.StudentID != nil {
		id := msg.StudentID.String()
		env.StudentID = &id
	}
	if msg.NotificationID != nil {
		id := msg.NotificationID.String()
		env.NotificationID = &id
	}
	return env
}

// Adapter turns a channel call into a delivery outcome.
type Adapter struct {
	channel Channel
	timeout time.Duration
}

// NewAdapter wraps channel; a nil channel behaves as an unconfigured one.
func NewAdapter(channel Channel, timeout time.Duration) *Adapter {
	if timeout <= 0 {
		timeout = defaultDeliveryTimeout
	}
	return &Adapter{channel: channel, timeout: timeout}
}

// Configured reports whether deliveries leave the process.
func (a *Adapter) Configured() bool {
	return a != nil && a.channel != nil && a.channel.Configured()
}

// ChannelName returns the configured channel name for logs.
func (a *Adapter) ChannelName() string {
	if a == nil || a.channel == nil {
		return "none"
	}
	return a.channel.Name()
}

// Dispatch performs one attempt. Without a configured endpoint the message is
// fulfilled locally; an accepted call hands the message off for async delivery.
func (a *Adapter) Dispatch(ctx context.Context, msg models.OutboundMessage) (enums.DeliveryOutcome, error) {
	if !a.Configured() {
		return enums.DeliverySent, nil
	}
	callCtx, cancel := context.WithTimeout(ctx, a.timeout)
	defer cancel()
	if err := a.channel.Deliver(callCtx, NewEnvelope(msg)); err != nil {
		return enums.DeliveryFailed, err
	}
	return enums.DeliveryQueuedForRetry, nil
}
