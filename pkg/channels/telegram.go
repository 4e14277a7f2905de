package channels

import (
	"context"
	"fmt"
	"strconv"
	"sync/atomic"

	"github.com/lowbank/agentcore/pkg/bus"
	"github.com/lowbank/agentcore/pkg/logger"
	"github.com/lowbank/agentcore/pkg/media"
	"github.com/mymmrac/telego"
	tu "github.com/mymmrac/telego/telegoutil"
)

// TelegramChannel wires mymmrac/telego's long-polling bot onto the bus.
// The teacher already depends on telego for the forum-topic management
// tool (pkg/tools/telegram.go); this adapter is the first thing in the
// module to actually open a bot session with it.
type TelegramChannel struct {
	token   string
	bus     *bus.MessageBus
	bot     *telego.Bot
	cancel  context.CancelFunc
	running atomic.Bool
}

func NewTelegramChannel(token string, b *bus.MessageBus) *TelegramChannel {
	return &TelegramChannel{token: token, bus: b}
}

func (t *TelegramChannel) Name() string { return "telegram" }

// Bot exposes the underlying client for pkg/tools/telegram.go's forum-topic
// tool, which needs a *telego.Bot bound to the same session this adapter
// opened rather than constructing a second one.
func (t *TelegramChannel) Bot() *telego.Bot { return t.bot }

func (t *TelegramChannel) Start(ctx context.Context) error {
	bot, err := telego.NewBot(t.token)
	if err != nil {
		return fmt.Errorf("telegram: create bot: %w", err)
	}
	t.bot = bot

	updates, err := bot.UpdatesViaLongPolling(ctx, nil)
	if err != nil {
		return fmt.Errorf("telegram: start long polling: %w", err)
	}

	pollCtx, cancel := context.WithCancel(ctx)
	t.cancel = cancel
	t.running.Store(true)

	go func() {
		for {
			select {
			case <-pollCtx.Done():
				return
			case update, ok := <-updates:
				if !ok {
					return
				}
				t.handleUpdate(update)
			}
		}
	}()

	return nil
}

func (t *TelegramChannel) Stop(ctx context.Context) error {
	t.running.Store(false)
	if t.cancel != nil {
		t.cancel()
	}
	return nil
}

func (t *TelegramChannel) IsRunning() bool { return t.running.Load() }

func (t *TelegramChannel) Send(ctx context.Context, msg bus.OutboundMessage) error {
	if t.bot == nil {
		return fmt.Errorf("telegram: bot not started")
	}
	chatID, err := strconv.ParseInt(msg.ChatID, 10, 64)
	if err != nil {
		return fmt.Errorf("telegram: invalid chat id %q: %w", msg.ChatID, err)
	}
	_, err = t.bot.SendMessage(ctx, tu.Message(tu.ID(chatID), msg.Content))
	return err
}

func (t *TelegramChannel) handleUpdate(update telego.Update) {
	if update.Message == nil {
		return
	}
	m := update.Message

	var parts []media.ContentPart
	if len(m.Photo) > 0 {
		largest := m.Photo[len(m.Photo)-1]
		file, err := t.bot.GetFile(context.Background(), &telego.GetFileParams{FileID: largest.FileID})
		if err != nil {
			logger.WarnCF("channels", "telegram get file failed", map[string]interface{}{"error": err.Error()})
		} else if part, err := media.FetchURL(t.bot.FileDownloadURL(file.FilePath), largest.FileID+".jpg"); err == nil {
			parts = append(parts, *part)
		}
	}

	t.bus.PublishInbound(bus.InboundMessage{
		Channel:  "telegram",
		SenderID: strconv.FormatInt(m.From.ID, 10),
		ChatID:   strconv.FormatInt(m.Chat.ID, 10),
		Content:  m.Text,
		Media:    parts,
	})
}
