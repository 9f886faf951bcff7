// Package channels holds the external delivery sinks the dispatch adapter calls.
package channels

import (
	"context"
	"fmt"
	"io"

	"github.com/angelmondragon/outbound-dispatch/internal/dispatch"
	"github.com/angelmondragon/outbound-dispatch/pkg/config"
	"github.com/angelmondragon/outbound-dispatch/pkg/logger"
	"github.com/angelmondragon/outbound-dispatch/pkg/pubsub"
)

type nopCloser struct{}

func (nopCloser) Close() error { return nil }

// New builds the channel selected by cfg. The returned closer releases any
// client the channel holds.
func New(ctx context.Context, cfg config.ChannelConfig, gcpCfg config.GCPConfig, logg *logger.Logger) (dispatch.Channel, io.Closer, error) {
	kind := cfg.NormalizedKind()
	ctx = logg.WithField(ctx, "channel", kind)

	switch kind {
	case config.ChannelKindNoop:
		logg.Warn(ctx, "no delivery channel configured; messages will be marked sent locally")
		return Noop{}, nopCloser{}, nil
	case config.ChannelKindWebhook:
		ch, err := NewWebhook(cfg.WebhookURL, WithBearerToken(cfg.WebhookToken))
		if err != nil {
			return nil, nil, err
		}
		logg.Info(ctx, "webhook delivery channel configured")
		return ch, nopCloser{}, nil
	case config.ChannelKindPubSub:
		client, err := pubsub.NewClient(ctx, gcpCfg, cfg, logg)
		if err != nil {
			return nil, nil, fmt.Errorf("init pubsub channel: %w", err)
		}
		return NewPubSub(client.OutboundPublisher()), client, nil
	}
	return nil, nil, fmt.Errorf("unsupported channel kind %q", cfg.Kind)
}
