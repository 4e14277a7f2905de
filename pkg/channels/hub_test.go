package channels

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lowbank/agentcore/pkg/bus"
)

type fakeChannel struct {
	name      string
	startErr  error
	mu        sync.Mutex
	running   bool
	sent      []bus.OutboundMessage
	sendErr   error
}

func (c *fakeChannel) Name() string { return c.name }

func (c *fakeChannel) Start(ctx context.Context) error {
	if c.startErr != nil {
		return c.startErr
	}
	c.mu.Lock()
	c.running = true
	c.mu.Unlock()
	return nil
}

func (c *fakeChannel) Stop(ctx context.Context) error {
	c.mu.Lock()
	c.running = false
	c.mu.Unlock()
	return nil
}

func (c *fakeChannel) Send(ctx context.Context, msg bus.OutboundMessage) error {
	if c.sendErr != nil {
		return c.sendErr
	}
	c.mu.Lock()
	c.sent = append(c.sent, msg)
	c.mu.Unlock()
	return nil
}

func (c *fakeChannel) IsRunning() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.running
}

func TestHub_RegisterAndGet(t *testing.T) {
	h := NewHub(bus.NewMessageBus(10))
	tg := &fakeChannel{name: "telegram"}
	h.Register(tg)

	got, ok := h.Get("telegram")
	assert.True(t, ok)
	assert.Same(t, tg, got)

	_, ok = h.Get("nonexistent")
	assert.False(t, ok)

	assert.Len(t, h.All(), 1)
}

func TestHub_StartAll_ToleratesPerChannelFailure(t *testing.T) {
	h := NewHub(bus.NewMessageBus(10))
	good := &fakeChannel{name: "good"}
	bad := &fakeChannel{name: "bad", startErr: errors.New("boom")}
	h.Register(good)
	h.Register(bad)

	h.StartAll(context.Background())

	assert.True(t, good.IsRunning())
	assert.False(t, bad.IsRunning())
}

func TestHub_StopAll_OnlyStopsRunningChannels(t *testing.T) {
	h := NewHub(bus.NewMessageBus(10))
	running := &fakeChannel{name: "running", running: true}
	idle := &fakeChannel{name: "idle"}
	h.Register(running)
	h.Register(idle)

	h.StopAll(context.Background())

	assert.False(t, running.IsRunning())
	assert.False(t, idle.IsRunning())
}

func TestHub_Dispatch_RoutesToNamedChannel(t *testing.T) {
	b := bus.NewMessageBus(10)
	h := NewHub(b)
	tg := &fakeChannel{name: "telegram"}
	h.Register(tg)

	require.True(t, b.PublishOutbound(bus.OutboundMessage{Channel: "telegram", Content: "hello"}))
	b.Close()

	h.Dispatch(context.Background())

	tg.mu.Lock()
	defer tg.mu.Unlock()
	require.Len(t, tg.sent, 1)
	assert.Equal(t, "hello", tg.sent[0].Content)
}

func TestHub_Dispatch_DropsMessageForUnregisteredChannel(t *testing.T) {
	b := bus.NewMessageBus(10)
	h := NewHub(b)
	tg := &fakeChannel{name: "telegram"}
	h.Register(tg)

	require.True(t, b.PublishOutbound(bus.OutboundMessage{Channel: "discord", Content: "hello"}))
	b.Close()

	assert.NotPanics(t, func() {
		h.Dispatch(context.Background())
	})

	tg.mu.Lock()
	defer tg.mu.Unlock()
	assert.Empty(t, tg.sent)
}

func TestHub_Dispatch_StopsWhenBusClosed(t *testing.T) {
	b := bus.NewMessageBus(10)
	h := NewHub(b)

	done := make(chan struct{})
	go func() {
		h.Dispatch(context.Background())
		close(done)
	}()

	time.Sleep(10 * time.Millisecond)
	b.Close()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Dispatch did not return after bus closed")
	}
}
