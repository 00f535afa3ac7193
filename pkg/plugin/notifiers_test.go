package plugin

import (
	"bytes"
	"context"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNotifiersDispatchByChannel(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	set := DefaultNotifiers(zerolog.New(&buf))
	assert.Equal(t, []string{ChannelEmail, ChannelInApp}, set.Channels())

	err := set.Notify(context.Background(), Notification{
		ReminderID: 4,
		Channel:    ChannelInApp,
		TargetType: "task",
		TargetID:   "9",
		Message:    "escalate",
	})
	require.NoError(t, err)
	assert.Contains(t, buf.String(), `"channel":"in_app"`)
	assert.Contains(t, buf.String(), "escalate")
}

func TestNotifiersUnknownChannel(t *testing.T) {
	t.Parallel()

	set := NewNotifiers()
	err := set.Notify(context.Background(), Notification{Channel: "sms"})
	require.ErrorIs(t, err, ErrUnknownChannel)
	assert.False(t, set.Has("sms"))
}

func TestNotifiersInitAndRecipient(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	set := DefaultNotifiers(zerolog.New(&buf))
	require.NoError(t, set.Init(map[string]map[string]any{
		ChannelEmail: {"default_recipient": "ops@example.com"},
	}))

	ctx := context.Background()
	require.NoError(t, set.Notify(ctx, Notification{Channel: ChannelEmail, Message: "fallback"}))
	assert.Contains(t, buf.String(), `"recipient":"ops@example.com"`)

	buf.Reset()
	require.NoError(t, set.Notify(ctx, Notification{Channel: ChannelEmail, Recipient: "alice", Message: "owner"}))
	assert.Contains(t, buf.String(), `"recipient":"alice"`)

	buf.Reset()
	require.NoError(t, set.Notify(ctx, Notification{Channel: ChannelInApp, Message: "none"}))
	assert.Contains(t, buf.String(), `"recipient":""`)
}

func TestNotifiersInitRejectsBadBlocks(t *testing.T) {
	t.Parallel()

	set := DefaultNotifiers(zerolog.Nop())
	err := set.Init(map[string]map[string]any{"sms": {}})
	require.ErrorIs(t, err, ErrUnknownChannel)

	err = set.Init(map[string]map[string]any{ChannelEmail: {"default_recipient": 7}})
	require.Error(t, err)

	err = set.Init(map[string]map[string]any{ChannelInApp: {"smtp_host": "x"}})
	require.Error(t, err)
}
