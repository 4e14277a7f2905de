package channels

import (
	"context"

	"github.com/lowbank/agentcore/pkg/logger"
)

// StartAll starts every registered channel. A channel that fails to start
// is logged and skipped rather than aborting the others — one bad bot
// token shouldn't take every other transport down with it.
func (h *Hub) StartAll(ctx context.Context) {
	for _, c := range h.channels {
		if err := c.Start(ctx); err != nil {
			logger.ErrorCF("channels", "channel failed to start", map[string]interface{}{
				"channel": c.Name(), "error": err.Error(),
			})
			continue
		}
		logger.InfoCF("channels", "channel started", map[string]interface{}{"channel": c.Name()})
	}
}

// StopAll stops every registered channel, best-effort.
func (h *Hub) StopAll(ctx context.Context) {
	for _, c := range h.channels {
		if !c.IsRunning() {
			continue
		}
		if err := c.Stop(ctx); err != nil {
			logger.WarnCF("channels", "channel failed to stop cleanly", map[string]interface{}{
				"channel": c.Name(), "error": err.Error(),
			})
		}
	}
}

// Dispatch drains the bus's outbound queue and hands each message to the
// channel it names, until ctx is cancelled. Intended to run as its own
// goroutine (one role per goroutine, per spec.md §5).
func (h *Hub) Dispatch(ctx context.Context) {
	for {
		msg, ok := h.bus.ConsumeOutbound(ctx)
		if !ok {
			return
		}
		c, found := h.channels[msg.Channel]
		if !found {
			logger.WarnCF("channels", "outbound message for unregistered channel", map[string]interface{}{
				"channel": msg.Channel,
			})
			continue
		}
		if err := c.Send(ctx, msg); err != nil {
			logger.WarnCF("channels", "send failed", map[string]interface{}{
				"channel": msg.Channel, "error": err.Error(),
			})
		}
	}
}
