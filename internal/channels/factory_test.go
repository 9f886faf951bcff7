package channels

import (
	"context"
	"io"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/angelmondragon/outbound-dispatch/pkg/config"
	"github.com/angelmondragon/outbound-dispatch/pkg/logger"
)

func testLogger() *logger.Logger {
	return logger.New(logger.Options{ServiceName: "channels-test", Output: io.Discard})
}

func TestNewSelectsChannelByKind(t *testing.T) {
	ctx := context.Background()

	ch, closer, err := New(ctx, config.ChannelConfig{Kind: "noop"}, config.GCPConfig{}, testLogger())
	require.NoError(t, err)
	assert.Equal(t, "noop", ch.Name())
	assert.False(t, ch.Configured())
	require.NoError(t, closer.Close())

	ch, _, err = New(ctx, config.ChannelConfig{Kind: "Webhook", WebhookURL: "https://hooks.example.com/send", Timeout: time.Second}, config.GCPConfig{}, testLogger())
	require.NoError(t, err)
	assert.Equal(t, "webhook", ch.Name())
	assert.True(t, ch.Configured())
}

func TestNewRejectsIncompleteSettings(t *testing.T) {
	ctx := context.Background()

	_, _, err := New(ctx, config.ChannelConfig{Kind: "pubsub", PubSubTopic: "outbound"}, config.GCPConfig{}, testLogger())
	require.Error(t, err, "pubsub requires a project id")

	_, _, err = New(ctx, config.ChannelConfig{Kind: "fax"}, config.GCPConfig{}, testLogger())
	require.Error(t, err)
}
