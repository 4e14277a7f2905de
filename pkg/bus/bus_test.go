package bus

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPublishInbound_FillsTimestampAndSessionKey(t *testing.T) {
	b := NewMessageBus(10)
	ok := b.PublishInbound(InboundMessage{Channel: "telegram", ChatID: "c1"})
	require.True(t, ok)

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	msg, ok := b.ConsumeInbound(ctx)
	require.True(t, ok)
	assert.False(t, msg.Timestamp.IsZero())
	assert.Equal(t, "telegram:c1", msg.SessionKey)
}

func TestPublishInbound_DropsWhenFull(t *testing.T) {
	b := NewMessageBus(1)
	require.True(t, b.PublishInbound(InboundMessage{Channel: "a", ChatID: "1"}))
	assert.False(t, b.PublishInbound(InboundMessage{Channel: "a", ChatID: "2"}))

	stats := b.Stats()
	assert.Equal(t, int64(1), stats.InboundDropped)
}

func TestConsumeOutbound_UnblocksOnContextCancel(t *testing.T) {
	b := NewMessageBus(10)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, ok := b.ConsumeOutbound(ctx)
	assert.False(t, ok)
}

func TestClose_UnblocksPendingConsumers(t *testing.T) {
	b := NewMessageBus(10)
	done := make(chan bool, 1)
	go func() {
		_, ok := b.ConsumeInbound(context.Background())
		done <- ok
	}()

	time.Sleep(10 * time.Millisecond)
	b.Close()

	select {
	case ok := <-done:
		assert.False(t, ok)
	case <-time.After(time.Second):
		t.Fatal("Close did not unblock pending consumer")
	}
}

func TestPublishOutbound_FIFOOrder(t *testing.T) {
	b := NewMessageBus(10)
	require.True(t, b.PublishOutbound(OutboundMessage{Content: "first"}))
	require.True(t, b.PublishOutbound(OutboundMessage{Content: "second"}))

	ctx := context.Background()
	m1, _ := b.ConsumeOutbound(ctx)
	m2, _ := b.ConsumeOutbound(ctx)
	assert.Equal(t, "first", m1.Content)
	assert.Equal(t, "second", m2.Content)
}
