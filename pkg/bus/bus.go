// Package bus implements the two bounded FIFO queues — inbound and
// outbound — shared by channel producers and the agent executor.
package bus

import (
	"container/list"
	"context"
	"sync"
	"time"

	"github.com/lowbank/agentcore/pkg/media"
	"github.com/lowbank/agentcore/pkg/metrics"
)

// InboundMessage is a message arriving from a chat channel.
type InboundMessage struct {
	Channel    string
	SenderID   string
	ChatID     string
	Content    string
	Media      []media.ContentPart
	Timestamp  time.Time
	CurrentDir string
	Metadata   map[string]string
	SessionKey string
}

// OutboundMessage is a reply destined for a chat channel.
type OutboundMessage struct {
	Channel  string
	ChatID   string
	Content  string
	Media    []media.ContentPart
	Metadata map[string]string
}

// queue is a capacity-bounded FIFO. capacity <= 0 means unbounded; in that
// mode len(queue) crossing highWaterMark only bumps the advisory counter,
// it never blocks or drops.
type queue[T any] struct {
	mu         sync.Mutex
	cond       *sync.Cond
	items      *list.List
	capacity   int
	closed     bool
	dropped    int64
	highWater  int
	overHWMark int64
}

func newQueue[T any](capacity int) *queue[T] {
	q := &queue[T]{items: list.New(), capacity: capacity, highWater: advisoryHighWater(capacity)}
	q.cond = sync.NewCond(&q.mu)
	return q
}

func advisoryHighWater(capacity int) int {
	if capacity > 0 {
		return capacity * 9 / 10
	}
	return 1000 // advisory mark for the "default unbounded" mode
}

// publish enqueues an item. Returns false if the queue was full and the
// item was dropped (producers must tolerate this under backpressure).
func (q *queue[T]) publish(item T) bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.closed {
		return false
	}
	if q.capacity > 0 && q.items.Len() >= q.capacity {
		q.dropped++
		return false
	}
	q.items.PushBack(item)
	if q.items.Len() >= q.highWater {
		q.overHWMark++
	}
	q.cond.Signal()
	return true
}

// consume blocks until an item is available, the context is cancelled, or
// the queue is closed. ok is false only on cancellation/close with nothing
// left to drain.
func (q *queue[T]) consume(ctx context.Context) (item T, ok bool) {
	done := make(chan struct{})
	stop := context.AfterFunc(ctx, func() {
		close(done)
		q.mu.Lock()
		q.cond.Broadcast()
		q.mu.Unlock()
	})
	defer stop()

	q.mu.Lock()
	defer q.mu.Unlock()
	for q.items.Len() == 0 && !q.closed {
		select {
		case <-done:
			var zero T
			return zero, false
		default:
		}
		q.cond.Wait()
	}
	if q.items.Len() == 0 {
		var zero T
		return zero, false
	}
	front := q.items.Front()
	q.items.Remove(front)
	return front.Value.(T), true
}

func (q *queue[T]) close() {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.closed = true
	q.cond.Broadcast()
}

func (q *queue[T]) stats() (length int, dropped int64, overHighWater int64) {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.items.Len(), q.dropped, q.overHWMark
}

// MessageBus is the shared inbound/outbound transport between channel
// adapters and the agent executor. Delivery is at-least-once within the
// process; FIFO is preserved per (channel, chatId) because both queues are
// globally FIFO (a stricter guarantee than the spec requires).
type MessageBus struct {
	inbound  *queue[InboundMessage]
	outbound *queue[OutboundMessage]
}

// NewMessageBus creates a bus. capacity <= 0 means unbounded (advisory
// high-water mark only); this matches the spec's default.
func NewMessageBus(capacity int) *MessageBus {
	return &MessageBus{
		inbound:  newQueue[InboundMessage](capacity),
		outbound: newQueue[OutboundMessage](capacity),
	}
}

// PublishInbound enqueues a message from a channel. Returns false if the
// message was dropped due to backpressure.
func (b *MessageBus) PublishInbound(msg InboundMessage) bool {
	if msg.Timestamp.IsZero() {
		msg.Timestamp = time.Now()
	}
	if msg.SessionKey == "" {
		msg.SessionKey = msg.Channel + ":" + msg.ChatID
	}
	return b.inbound.publish(msg)
}

// ConsumeInbound blocks until a message is available or ctx is done.
func (b *MessageBus) ConsumeInbound(ctx context.Context) (InboundMessage, bool) {
	return b.inbound.consume(ctx)
}

// PublishOutbound enqueues a reply for delivery to a channel.
func (b *MessageBus) PublishOutbound(msg OutboundMessage) bool {
	return b.outbound.publish(msg)
}

// ConsumeOutbound blocks until a reply is available or ctx is done.
func (b *MessageBus) ConsumeOutbound(ctx context.Context) (OutboundMessage, bool) {
	return b.outbound.consume(ctx)
}

// Close stops both queues; pending consumers unblock with ok=false once
// drained.
func (b *MessageBus) Close() {
	b.inbound.close()
	b.outbound.close()
}

// Stats reports queue depth/drops for metrics export.
type Stats struct {
	InboundLen           int
	InboundDropped       int64
	InboundOverHighWater int64
	OutboundLen          int
	OutboundDropped      int64
}

func (b *MessageBus) Stats() Stats {
	il, id, ih := b.inbound.stats()
	ol, od, _ := b.outbound.stats()
	return Stats{InboundLen: il, InboundDropped: id, InboundOverHighWater: ih, OutboundLen: ol, OutboundDropped: od}
}

// ReportMetrics pushes current queue depths to the Prometheus gauges.
// Intended to be called on a ticker by cmd/agentd.
func (b *MessageBus) ReportMetrics() {
	stats := b.Stats()
	metrics.BusQueueDepth.WithLabelValues("inbound").Set(float64(stats.InboundLen))
	metrics.BusQueueDepth.WithLabelValues("outbound").Set(float64(stats.OutboundLen))
}
