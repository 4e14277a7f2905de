// Package channels adapts external chat transports (Discord, Telegram,
// Slack, Feishu, DingTalk, QQ, and a generic websocket) onto the message
// bus. Each adapter is thin by design (spec.md §6's "polymorphic
// provider/channel/tool" capability set: start/stop/send/isRunning) — no
// bot-command surface, no per-channel formatting beyond what the SDK
// requires to round-trip plain text and a handful of image attachments.
package channels

import (
	"context"

	"github.com/lowbank/agentcore/pkg/bus"
)

// Channel is the capability set every adapter implements, mirroring
// spec.md §6's `{start, stop, send, isRunning}` shape.
type Channel interface {
	Name() string
	Start(ctx context.Context) error
	Stop(ctx context.Context) error
	Send(ctx context.Context, msg bus.OutboundMessage) error
	IsRunning() bool
}

// Hub owns the set of registered channels and the outbound-dispatch
// goroutine that routes bus.OutboundMessage to the adapter named by its
// Channel field.
type Hub struct {
	bus      *bus.MessageBus
	channels map[string]Channel
}

// NewHub creates an empty hub bound to b.
func NewHub(b *bus.MessageBus) *Hub {
	return &Hub{bus: b, channels: make(map[string]Channel)}
}

// Register adds a channel. Call before StartAll.
func (h *Hub) Register(c Channel) {
	h.channels[c.Name()] = c
}

// Get returns the registered channel by name, if any.
func (h *Hub) Get(name string) (Channel, bool) {
	c, ok := h.channels[name]
	return c, ok
}

// All returns every registered channel.
func (h *Hub) All() []Channel {
	out := make([]Channel, 0, len(h.channels))
	for _, c := range h.channels {
		out = append(out, c)
	}
	return out
}
