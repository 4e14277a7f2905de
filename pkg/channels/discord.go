package channels

import (
	"context"
	"fmt"
	"sync/atomic"

	"github.com/bwmarrin/discordgo"
	"github.com/lowbank/agentcore/pkg/bus"
	"github.com/lowbank/agentcore/pkg/logger"
	"github.com/lowbank/agentcore/pkg/media"
)

// DiscordChannel wires bwmarrin/discordgo's gateway session onto the bus.
// Grounded in haasonsaas-nexus's internal/channels/discord adapter for the
// session-lifecycle shape (AddHandler before Open, Close on Stop), reduced
// to the single MessageCreate handler spec.md's channel contract needs.
type DiscordChannel struct {
	token   string
	bus     *bus.MessageBus
	session *discordgo.Session
	running atomic.Bool
}

// NewDiscordChannel creates an adapter for a bot token. The session isn't
// opened until Start.
func NewDiscordChannel(token string, b *bus.MessageBus) *DiscordChannel {
	return &DiscordChannel{token: token, bus: b}
}

func (d *DiscordChannel) Name() string { return "discord" }

func (d *DiscordChannel) Start(ctx context.Context) error {
	session, err := discordgo.New("Bot " + d.token)
	if err != nil {
		return fmt.Errorf("discord: create session: %w", err)
	}
	session.Identify.Intents = discordgo.IntentsGuildMessages | discordgo.IntentsDirectMessages | discordgo.IntentMessageContent
	session.AddHandler(d.handleMessageCreate)

	if err := session.Open(); err != nil {
		return fmt.Errorf("discord: open session: %w", err)
	}
	d.session = session
	d.running.Store(true)
	return nil
}

func (d *DiscordChannel) Stop(ctx context.Context) error {
	d.running.Store(false)
	if d.session == nil {
		return nil
	}
	return d.session.Close()
}

func (d *DiscordChannel) IsRunning() bool { return d.running.Load() }

func (d *DiscordChannel) Send(ctx context.Context, msg bus.OutboundMessage) error {
	if d.session == nil {
		return fmt.Errorf("discord: session not started")
	}
	_, err := d.session.ChannelMessageSend(msg.ChatID, msg.Content)
	return err
}

func (d *DiscordChannel) handleMessageCreate(s *discordgo.Session, m *discordgo.MessageCreate) {
	if m.Author == nil || m.Author.Bot {
		return
	}

	var parts []media.ContentPart
	for _, att := range m.Attachments {
		part, err := media.FetchURL(att.URL, att.Filename)
		if err != nil {
			logger.WarnCF("channels", "discord attachment fetch failed", map[string]interface{}{"error": err.Error()})
			continue
		}
		parts = append(parts, *part)
	}

	d.bus.PublishInbound(bus.InboundMessage{
		Channel:  "discord",
		SenderID: m.Author.ID,
		ChatID:   m.ChannelID,
		Content:  m.Content,
		Media:    parts,
	})
}
