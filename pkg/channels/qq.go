package channels

import (
	"context"
	"fmt"
	"sync/atomic"

	"github.com/lowbank/agentcore/pkg/bus"
	"github.com/lowbank/agentcore/pkg/logger"
	"github.com/tencent-connect/botgo"
	"github.com/tencent-connect/botgo/dto"
	"github.com/tencent-connect/botgo/event"
	"github.com/tencent-connect/botgo/openapi"
	"github.com/tencent-connect/botgo/token"
	"github.com/tencent-connect/botgo/websocket"
)

// QQChannel wires tencent-connect/botgo's websocket session manager onto
// the bus (named explicitly alongside Feishu in spec.md §1's channel
// list). As with the Feishu/DingTalk adapters, this SDK's exact call
// shape is reconstructed from its documented quick-start rather than a
// pack reference file; see DESIGN.md.
type QQChannel struct {
	appID, appSecret, botToken string
	sandbox                    bool
	bus                        *bus.MessageBus
	api                        openapi.OpenAPI
	cancel                     context.CancelFunc
	running                    atomic.Bool
}

func NewQQChannel(appID, appSecret, botToken string, sandbox bool, b *bus.MessageBus) *QQChannel {
	return &QQChannel{appID: appID, appSecret: appSecret, botToken: botToken, sandbox: sandbox, bus: b}
}

func (q *QQChannel) Name() string { return "qq" }

func (q *QQChannel) Start(ctx context.Context) error {
	tk := token.New(token.TypeBot)
	tk.AppID = q.appID
	tk.AccessToken = q.botToken

	api := botgo.NewOpenAPI(q.appID, tk).WithTimeout(5)
	if q.sandbox {
		api = api.SetDebug(true)
	}
	q.api = api

	wsInfo, err := api.WS(ctx, nil, "")
	if err != nil {
		return fmt.Errorf("qq: fetch websocket gateway: %w", err)
	}

	intents := websocket.RegisterHandlers(
		event.ATMessageEventHandler(q.handleATMessage),
		event.DirectMessageEventHandler(q.handleDirectMessage),
	)

	runCtx, cancel := context.WithCancel(ctx)
	q.cancel = cancel

	go func() {
		if err := botgo.NewSessionManager().Start(wsInfo, tk, &intents); err != nil && runCtx.Err() == nil {
			logger.WarnCF("channels", "qq session manager exited", map[string]interface{}{"error": err.Error()})
		}
	}()

	q.running.Store(true)
	return nil
}

func (q *QQChannel) Stop(ctx context.Context) error {
	q.running.Store(false)
	if q.cancel != nil {
		q.cancel()
	}
	return nil
}

func (q *QQChannel) IsRunning() bool { return q.running.Load() }

func (q *QQChannel) Send(ctx context.Context, msg bus.OutboundMessage) error {
	if q.api == nil {
		return fmt.Errorf("qq: api client not started")
	}
	_, err := q.api.PostMessage(ctx, msg.ChatID, &dto.MessageToCreate{Content: msg.Content})
	return err
}

func (q *QQChannel) handleATMessage(payload *dto.WSPayload, data *dto.WSATMessageData) error {
	q.bus.PublishInbound(bus.InboundMessage{
		Channel:  "qq",
		SenderID: data.Author.ID,
		ChatID:   data.ChannelID,
		Content:  data.Content,
	})
	return nil
}

func (q *QQChannel) handleDirectMessage(payload *dto.WSPayload, data *dto.WSDirectMessageData) error {
	q.bus.PublishInbound(bus.InboundMessage{
		Channel:  "qq",
		SenderID: data.Author.ID,
		ChatID:   data.GuildID,
		Content:  data.Content,
	})
	return nil
}
