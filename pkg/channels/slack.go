package channels

import (
	"context"
	"fmt"
	"sync/atomic"

	"github.com/lowbank/agentcore/pkg/bus"
	"github.com/lowbank/agentcore/pkg/logger"
	"github.com/slack-go/slack"
	"github.com/slack-go/slack/slackevents"
	"github.com/slack-go/slack/socketmode"
)

// SlackChannel wires slack-go/slack's Socket Mode client onto the bus.
// Grounded directly in haasonsaas-nexus's internal/channels/slack adapter:
// same Socket Mode event-loop shape, reduced to the single MessageEvent
// case the bus contract needs.
type SlackChannel struct {
	botToken, appToken string
	bus                *bus.MessageBus
	client             *slack.Client
	socket             *socketmode.Client
	cancel             context.CancelFunc
	running            atomic.Bool
}

func NewSlackChannel(botToken, appToken string, b *bus.MessageBus) *SlackChannel {
	return &SlackChannel{botToken: botToken, appToken: appToken, bus: b}
}

func (s *SlackChannel) Name() string { return "slack" }

func (s *SlackChannel) Start(ctx context.Context) error {
	s.client = slack.New(s.botToken, slack.OptionAppLevelToken(s.appToken))
	s.socket = socketmode.New(s.client)

	if _, err := s.client.AuthTestContext(ctx); err != nil {
		return fmt.Errorf("slack: auth test failed: %w", err)
	}

	runCtx, cancel := context.WithCancel(ctx)
	s.cancel = cancel

	go s.handleEvents(runCtx)
	go func() {
		if err := s.socket.Run(); err != nil && runCtx.Err() == nil {
			logger.WarnCF("channels", "slack socket mode exited", map[string]interface{}{"error": err.Error()})
		}
	}()

	s.running.Store(true)
	return nil
}

func (s *SlackChannel) Stop(ctx context.Context) error {
	s.running.Store(false)
	if s.cancel != nil {
		s.cancel()
	}
	return nil
}

func (s *SlackChannel) IsRunning() bool { return s.running.Load() }

func (s *SlackChannel) Send(ctx context.Context, msg bus.OutboundMessage) error {
	if s.client == nil {
		return fmt.Errorf("slack: client not started")
	}
	_, _, err := s.client.PostMessageContext(ctx, msg.ChatID, slack.MsgOptionText(msg.Content, false))
	return err
}

func (s *SlackChannel) handleEvents(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case evt, ok := <-s.socket.Events:
			if !ok {
				return
			}
			if evt.Type != socketmode.EventTypeEventsAPI {
				continue
			}
			apiEvent, ok := evt.Data.(slackevents.EventsAPIEvent)
			if !ok {
				continue
			}
			s.socket.Ack(*evt.Request)
			s.handleEventsAPI(apiEvent)
		}
	}
}

func (s *SlackChannel) handleEventsAPI(evt slackevents.EventsAPIEvent) {
	if evt.Type != slackevents.CallbackEvent {
		return
	}
	msg, ok := evt.InnerEvent.Data.(*slackevents.MessageEvent)
	if !ok || msg.BotID != "" {
		return
	}
	if msg.SubType != "" {
		return
	}

	s.bus.PublishInbound(bus.InboundMessage{
		Channel:  "slack",
		SenderID: msg.User,
		ChatID:   msg.Channel,
		Content:  msg.Text,
	})
}
