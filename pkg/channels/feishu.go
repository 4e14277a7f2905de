package channels

import (
	"context"
	"encoding/json"
	"fmt"
	"sync/atomic"

	lark "github.com/larksuite/oapi-sdk-go/v3"
	"github.com/larksuite/oapi-sdk-go/v3/event/dispatcher"
	larkim "github.com/larksuite/oapi-sdk-go/v3/service/im/v1"
	larkws "github.com/larksuite/oapi-sdk-go/v3/ws"
	"github.com/lowbank/agentcore/pkg/bus"
	"github.com/lowbank/agentcore/pkg/logger"
)

// FeishuChannel wires larksuite/oapi-sdk-go/v3's long-connection (websocket)
// event client onto the bus for receiving, and the REST client for
// sending. This SDK's API surface is less commonly seen than
// discordgo/slack-go's, so the exact dispatcher registration call is a
// best-effort reconstruction from the SDK's documented usage pattern
// rather than a pack file this module could read directly — see
// DESIGN.md's channels entry for the confidence note.
type FeishuChannel struct {
	appID, appSecret string
	bus              *bus.MessageBus
	rest             *lark.Client
	wsClient         *larkws.Client
	cancel           context.CancelFunc
	running          atomic.Bool
}

func NewFeishuChannel(appID, appSecret string, b *bus.MessageBus) *FeishuChannel {
	return &FeishuChannel{appID: appID, appSecret: appSecret, bus: b}
}

func (f *FeishuChannel) Name() string { return "feishu" }

func (f *FeishuChannel) Start(ctx context.Context) error {
	f.rest = lark.NewClient(f.appID, f.appSecret)

	eventHandler := dispatcher.NewEventDispatcher("", "").
		OnP2MessageReceiveV1(f.handleMessageReceive)
	f.wsClient = larkws.NewClient(f.appID, f.appSecret, larkws.WithEventHandler(eventHandler))

	runCtx, cancel := context.WithCancel(ctx)
	f.cancel = cancel

	go func() {
		if err := f.wsClient.Start(runCtx); err != nil && runCtx.Err() == nil {
			logger.WarnCF("channels", "feishu long connection exited", map[string]interface{}{"error": err.Error()})
		}
	}()

	f.running.Store(true)
	return nil
}

func (f *FeishuChannel) Stop(ctx context.Context) error {
	f.running.Store(false)
	if f.cancel != nil {
		f.cancel()
	}
	return nil
}

func (f *FeishuChannel) IsRunning() bool { return f.running.Load() }

func (f *FeishuChannel) Send(ctx context.Context, msg bus.OutboundMessage) error {
	if f.rest == nil {
		return fmt.Errorf("feishu: client not started")
	}
	req := larkim.NewCreateMessageReqBuilder().
		ReceiveIdType("chat_id").
		Body(larkim.NewCreateMessageReqBodyBuilder().
			ReceiveId(msg.ChatID).
			MsgType("text").
			Content(fmt.Sprintf(`{"text":%q}`, msg.Content)).
			Build()).
		Build()

	resp, err := f.rest.Im.Message.Create(ctx, req)
	if err != nil {
		return fmt.Errorf("feishu: send message: %w", err)
	}
	if !resp.Success() {
		return fmt.Errorf("feishu: send message: %s", resp.Msg)
	}
	return nil
}

func (f *FeishuChannel) handleMessageReceive(ctx context.Context, event *larkim.P2MessageReceiveV1) error {
	if event == nil || event.Event == nil || event.Event.Message == nil {
		return nil
	}
	m := event.Event.Message
	var senderID string
	if event.Event.Sender != nil && event.Event.Sender.SenderId != nil {
		senderID = *event.Event.Sender.SenderId.OpenId
	}

	f.bus.PublishInbound(bus.InboundMessage{
		Channel:  "feishu",
		SenderID: senderID,
		ChatID:   *m.ChatId,
		Content:  feishuTextContent(*m.Content),
	})
	return nil
}

// feishuTextContent unwraps Feishu's `{"text": "..."}` JSON envelope for a
// plain-text message. Non-text content types come back as the raw JSON
// since richer message types are out of scope for this thin adapter.
func feishuTextContent(raw string) string {
	var body struct {
		Text string `json:"text"`
	}
	if err := json.Unmarshal([]byte(raw), &body); err != nil || body.Text == "" {
		return raw
	}
	return body.Text
}
