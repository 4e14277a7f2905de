package channels

import (
	"github.com/lowbank/agentcore/pkg/bus"
	"github.com/lowbank/agentcore/pkg/config"
)

// Build constructs and registers every channel enabled in cfg.Channels
// onto a fresh Hub. Channels whose Enabled flag is false (the default) are
// simply omitted rather than registered in a dormant state; credentials are
// not checked here.
func Build(cfg *config.Config, b *bus.MessageBus) *Hub {
	hub := NewHub(b)

	if cfg.Channels.Discord.Enabled {
		hub.Register(NewDiscordChannel(cfg.Channels.Discord.Token, b))
	}
	if cfg.Channels.Telegram.Enabled {
		hub.Register(NewTelegramChannel(cfg.Channels.Telegram.Token, b))
	}
	if cfg.Channels.Slack.Enabled {
		hub.Register(NewSlackChannel(cfg.Channels.Slack.BotToken, cfg.Channels.Slack.AppToken, b))
	}
	if cfg.Channels.Feishu.Enabled {
		hub.Register(NewFeishuChannel(cfg.Channels.Feishu.AppID, cfg.Channels.Feishu.AppSecret, b))
	}
	if cfg.Channels.DingTalk.Enabled {
		hub.Register(NewDingTalkChannel(cfg.Channels.DingTalk.ClientID, cfg.Channels.DingTalk.ClientSecret, b))
	}
	if cfg.Channels.QQ.Enabled {
		hub.Register(NewQQChannel(cfg.Channels.QQ.AppID, cfg.Channels.QQ.AppSecret, cfg.Channels.QQ.Token, cfg.Channels.QQ.Sandbox, b))
	}
	if cfg.Channels.WebSocket.Enabled {
		hub.Register(NewWebSocketChannel(cfg.Channels.WebSocket.Addr, cfg.Channels.WebSocket.Path, b))
	}

	return hub
}
