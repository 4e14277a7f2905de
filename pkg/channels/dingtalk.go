package channels

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sync/atomic"

	"github.com/lowbank/agentcore/pkg/bus"
	"github.com/lowbank/agentcore/pkg/logger"
	dingtalk "github.com/open-dingtalk/dingtalk-stream-sdk-go/client"
	"github.com/open-dingtalk/dingtalk-stream-sdk-go/chatbot"
)

// DingTalkChannel wires open-dingtalk/dingtalk-stream-sdk-go's chatbot
// stream client onto the bus. Like the Feishu adapter, this SDK's surface
// is reconstructed from its documented stream-client/callback-router usage
// rather than a pack reference file; see DESIGN.md.
type DingTalkChannel struct {
	clientID, clientSecret string
	bus                    *bus.MessageBus
	client                 *dingtalk.StreamClient
	cancel                 context.CancelFunc
	running                atomic.Bool
}

func NewDingTalkChannel(clientID, clientSecret string, b *bus.MessageBus) *DingTalkChannel {
	return &DingTalkChannel{clientID: clientID, clientSecret: clientSecret, bus: b}
}

func (d *DingTalkChannel) Name() string { return "dingtalk" }

func (d *DingTalkChannel) Start(ctx context.Context) error {
	d.client = dingtalk.NewStreamClient(
		dingtalk.WithAppCredential(dingtalk.NewAppCredentialConfig(d.clientID, d.clientSecret)),
	)
	d.client.RegisterChatBotCallbackRouter(d.handleChatBotMessage)

	runCtx, cancel := context.WithCancel(ctx)
	d.cancel = cancel

	go func() {
		if err := d.client.Start(runCtx); err != nil && runCtx.Err() == nil {
			logger.WarnCF("channels", "dingtalk stream client exited", map[string]interface{}{"error": err.Error()})
		}
	}()

	d.running.Store(true)
	return nil
}

func (d *DingTalkChannel) Stop(ctx context.Context) error {
	d.running.Store(false)
	if d.cancel != nil {
		d.cancel()
	}
	if d.client != nil {
		d.client.Close()
	}
	return nil
}

func (d *DingTalkChannel) IsRunning() bool { return d.running.Load() }

// Send replies via the chatbot's sessionWebhook addressing scheme. DingTalk
// stream-mode bots reply through a per-message webhook URL rather than a
// standing send endpoint, so the webhook is threaded through via outbound
// metadata (populated from the inbound message that triggered the turn).
func (d *DingTalkChannel) Send(ctx context.Context, msg bus.OutboundMessage) error {
	webhook, ok := msg.Metadata["dingtalk_webhook"]
	if !ok || webhook == "" {
		return fmt.Errorf("dingtalk: outbound message missing session webhook")
	}

	body, err := json.Marshal(map[string]interface{}{
		"msgtype": "text",
		"text":    map[string]string{"content": msg.Content},
	})
	if err != nil {
		return fmt.Errorf("dingtalk: marshal reply: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, webhook, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("dingtalk: build reply request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return fmt.Errorf("dingtalk: send reply: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("dingtalk: reply webhook returned status %d", resp.StatusCode)
	}
	return nil
}

func (d *DingTalkChannel) handleChatBotMessage(ctx context.Context, data *chatbot.ChatBotMessage) ([]byte, error) {
	d.bus.PublishInbound(bus.InboundMessage{
		Channel:  "dingtalk",
		SenderID: data.SenderStaffId,
		ChatID:   data.ConversationId,
		Content:  data.Text.Content,
		Metadata: map[string]string{"dingtalk_webhook": data.SessionWebhook},
	})
	return []byte(""), nil
}
