package channels

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	gcppubsub "cloud.google.com/go/pubsub/v2"

	"github.com/angelmondragon/outbound-dispatch/internal/dispatch"
)

type publisher interface {
	Publish(context.Context, *gcppubsub.Message) publishResult
}

type publishResult interface {
	Get(context.Context) (string, error)
}

// PubSub publishes the envelope to a topic; a downstream sender owns the
// actual carrier call. The publish is considered accepted once the server acks.
type PubSub struct {
	publisher publisher
}

// NewPubSub wraps a topic publisher from pkg/pubsub.
func NewPubSub(p *gcppubsub.Publisher) *PubSub {
	if p == nil {
		return &PubSub{}
	}
	return &PubSub{publisher: &gcpPublisher{Publisher: p}}
}

func (p *PubSub) Name() string     { return "pubsub" }
func (p *PubSub) Configured() bool { return p != nil && p.publisher != nil }

func (p *PubSub) Deliver(ctx context.Context, envelope dispatch.Envelope) error {
	if !p.Configured() {
		return errors.New("pubsub publisher not configured")
	}
	payload, err := json.Marshal(envelope)
	if err != nil {
		return fmt.Errorf("marshal pubsub envelope: %w", err)
	}
	msg := &gcppubsub.Message{
		Data: payload,
		Attributes: map[string]string{
			"message_id":   envelope.MessageID,
			"channel":      envelope.Channel,
			"priority":     envelope.Priority,
			"template_key": envelope.TemplateKey,
		},
	}
	result := p.publisher.Publish(ctx, msg)
	if result == nil {
		return errors.New("publisher returned nil result")
	}
	if _, err := result.Get(ctx); err != nil {
		return fmt.Errorf("publish message %s: %w", envelope.MessageID, err)
	}
	return nil
}

type gcpPublisher struct {
	*gcppubsub.Publisher
}

func (p *gcpPublisher) Publish(ctx context.Context, msg *gcppubsub.Message) publishResult {
	if p == nil || p.Publisher == nil {
		return nil
	}
	return &gcpPublishResult{PublishResult: p.Publisher.Publish(ctx, msg)}
}

type gcpPublishResult struct {
	*gcppubsub.PublishResult
}

func (r *gcpPublishResult) Get(ctx context.Context) (string, error) {
	if r == nil || r.PublishResult == nil {
		return "", errors.New("publish result is nil")
	}
	return r.PublishResult.Get(ctx)
}
