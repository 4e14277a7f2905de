// Package config defines the typed configuration surface the core runtime
// is wired from (spec section "Configuration (recognized options)"). The
// full user-facing settings system (skills, per-user files, hot reload) is
// an external collaborator; this package only has to produce one frozen
// Config value at startup.
package config

import (
	"fmt"
	"os"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/mitchellh/mapstructure"
	"gopkg.in/yaml.v3"
)

// ModelCapability mirrors the data-model entry of the same name.
type ModelCapability struct {
	ID                string  `yaml:"id" mapstructure:"id"`
	Provider          string  `yaml:"provider" mapstructure:"provider"`
	Level             string  `yaml:"level" mapstructure:"level"`
	Vision            bool    `yaml:"vision" mapstructure:"vision"`
	Think             bool    `yaml:"think" mapstructure:"think"`
	Tool              bool    `yaml:"tool" mapstructure:"tool"`
	MaxTokens         int     `yaml:"maxTokens,omitempty" mapstructure:"maxTokens"`
	Temperature       float64 `yaml:"temperature,omitempty" mapstructure:"temperature"`
	TopK              int     `yaml:"topK,omitempty" mapstructure:"topK"`
	TopP              float64 `yaml:"topP,omitempty" mapstructure:"topP"`
	FrequencyPenalty  float64 `yaml:"frequencyPenalty,omitempty" mapstructure:"frequencyPenalty"`
}

// ProviderConfig is one entry of the `providers.<name>` map.
type ProviderConfig struct {
	BaseURL  string            `yaml:"baseUrl"`
	APIKey   string            `yaml:"apiKey,omitempty" env:"API_KEY"`
	Priority int               `yaml:"priority"`
	// RawModels accepts either bare model-id strings or full ModelCapability
	// objects, matching `(string | ModelCapability)[]` from the spec.
	RawModels []interface{} `yaml:"models"`
}

// ResolveModels decodes RawModels into ModelCapability values, filling in
// Provider/ID for bare-string entries.
func (p ProviderConfig) ResolveModels(providerName string) ([]ModelCapability, error) {
	out := make([]ModelCapability, 0, len(p.RawModels))
	for _, raw := range p.RawModels {
		switch v := raw.(type) {
		case string:
			out = append(out, ModelCapability{ID: v, Provider: providerName, Level: "medium", Tool: true})
		case map[string]interface{}:
			var cap ModelCapability
			if err := mapstructure.Decode(v, &cap); err != nil {
				return nil, fmt.Errorf("decode model capability for provider %s: %w", providerName, err)
			}
			cap.Provider = providerName
			out = append(out, cap)
		default:
			return nil, fmt.Errorf("provider %s: unsupported model entry type %T", providerName, raw)
		}
	}
	return out, nil
}

// RoutingRule mirrors the data-model routing rule.
type RoutingRule struct {
	Keywords  []string `yaml:"keywords"`
	MinLength *int     `yaml:"minLength,omitempty"`
	MaxLength *int     `yaml:"maxLength,omitempty"`
	Level     string   `yaml:"level"`
	Priority  int      `yaml:"priority"`
}

// RoutingConfig is the `routing` top-level section.
type RoutingConfig struct {
	Enabled        bool          `yaml:"enabled" env:"ROUTING_ENABLED"`
	Rules          []RoutingRule `yaml:"rules"`
	BaseScore      int           `yaml:"baseScore" env:"ROUTING_BASE_SCORE" envDefault:"10"`
	LengthWeight   int           `yaml:"lengthWeight" env:"ROUTING_LENGTH_WEIGHT" envDefault:"1"`
	CodeBlockScore int           `yaml:"codeBlockScore" env:"ROUTING_CODE_BLOCK_SCORE" envDefault:"15"`
	ToolCallScore  int           `yaml:"toolCallScore" env:"ROUTING_TOOL_CALL_SCORE" envDefault:"10"`
	MultiTurnScore int           `yaml:"multiTurnScore" env:"ROUTING_MULTI_TURN_SCORE" envDefault:"2"`
}

// MultiEmbedConfig is `memory.multiEmbed`.
type MultiEmbedConfig struct {
	Enabled         bool          `yaml:"enabled" env:"MEMORY_MULTIEMBED_ENABLED"`
	MaxModels       int           `yaml:"maxModels" env:"MEMORY_MULTIEMBED_MAX_MODELS" envDefault:"5"`
	AutoMigrate     bool          `yaml:"autoMigrate" env:"MEMORY_MULTIEMBED_AUTO_MIGRATE"`
	BatchSize       int           `yaml:"batchSize" env:"MEMORY_MULTIEMBED_BATCH_SIZE" envDefault:"50"`
	MigrateInterval time.Duration `yaml:"migrateInterval" env:"MEMORY_MULTIEMBED_MIGRATE_INTERVAL"`
}

// MemoryConfig is the `memory` top-level section.
type MemoryConfig struct {
	Enabled                bool             `yaml:"enabled" env:"MEMORY_ENABLED"`
	StoragePath            string           `yaml:"storagePath" env:"MEMORY_STORAGE_PATH"`
	SearchLimit            int              `yaml:"searchLimit" env:"MEMORY_SEARCH_LIMIT" envDefault:"10"`
	ShortTermRetentionDays int              `yaml:"shortTermRetentionDays" env:"MEMORY_RETENTION_DAYS" envDefault:"30"`
	AutoSummarize          bool             `yaml:"autoSummarize" env:"MEMORY_AUTO_SUMMARIZE"`
	SummarizeThreshold     int              `yaml:"summarizeThreshold" env:"MEMORY_SUMMARIZE_THRESHOLD" envDefault:"20"`
	IdleTimeout            time.Duration    `yaml:"idleTimeout" env:"MEMORY_IDLE_TIMEOUT" envDefault:"10m"`
	// RetentionCron, when set, overrides the retention-sweep interval
	// (cmd/agentd takes it from multiEmbed.migrateInterval) with an exact
	// cron-form schedule (e.g. "0 */6 * * *"), evaluated by pkg/summarizer
	// via adhocore/gronx. The idle-summarization sweep is not affected.
	RetentionCron string           `yaml:"retentionCron" env:"MEMORY_RETENTION_CRON"`
	MultiEmbed    MultiEmbedConfig `yaml:"multiEmbed"`
}

// AgentModels is `agents.models`.
type AgentModels struct {
	Chat   string `yaml:"chat" env:"AGENTS_MODEL_CHAT"`
	Intent string `yaml:"intent" env:"AGENTS_MODEL_INTENT"`
	Vision string `yaml:"vision" env:"AGENTS_MODEL_VISION"`
	Embed  string `yaml:"embed" env:"AGENTS_MODEL_EMBED"`
	Coder  string `yaml:"coder" env:"AGENTS_MODEL_CODER"`
}

// AgentsConfig is the `agents` top-level section.
type AgentsConfig struct {
	Workspace         string      `yaml:"workspace" env:"AGENTS_WORKSPACE" envDefault:"./workspace"`
	Models            AgentModels `yaml:"models"`
	MaxTokens         int         `yaml:"maxTokens" env:"AGENTS_MAX_TOKENS" envDefault:"8192"`
	Temperature       float64     `yaml:"temperature" env:"AGENTS_TEMPERATURE" envDefault:"0.7"`
	TopK              int         `yaml:"topK" env:"AGENTS_TOP_K"`
	TopP              float64     `yaml:"topP" env:"AGENTS_TOP_P"`
	FrequencyPenalty  float64     `yaml:"frequencyPenalty" env:"AGENTS_FREQUENCY_PENALTY"`
	MaxToolIterations int         `yaml:"maxToolIterations" env:"AGENTS_MAX_TOOL_ITERATIONS" envDefault:"20"`
	Auto              bool        `yaml:"auto" env:"AGENTS_AUTO"`
	Max               bool        `yaml:"max" env:"AGENTS_MAX"`
}

// DiscordConfig is `channels.discord`.
type DiscordConfig struct {
	Enabled bool   `yaml:"enabled" env:"CHANNELS_DISCORD_ENABLED"`
	Token   string `yaml:"token" env:"CHANNELS_DISCORD_TOKEN"`
}

// TelegramConfig is `channels.telegram`.
type TelegramConfig struct {
	Enabled bool   `yaml:"enabled" env:"CHANNELS_TELEGRAM_ENABLED"`
	Token   string `yaml:"token" env:"CHANNELS_TELEGRAM_TOKEN"`
}

// SlackConfig is `channels.slack`.
type SlackConfig struct {
	Enabled  bool   `yaml:"enabled" env:"CHANNELS_SLACK_ENABLED"`
	BotToken string `yaml:"botToken" env:"CHANNELS_SLACK_BOT_TOKEN"`
	AppToken string `yaml:"appToken" env:"CHANNELS_SLACK_APP_TOKEN"`
}

// FeishuConfig is `channels.feishu` (named explicitly in spec.md §1).
type FeishuConfig struct {
	Enabled   bool   `yaml:"enabled" env:"CHANNELS_FEISHU_ENABLED"`
	AppID     string `yaml:"appId" env:"CHANNELS_FEISHU_APP_ID"`
	AppSecret string `yaml:"appSecret" env:"CHANNELS_FEISHU_APP_SECRET"`
}

// DingTalkConfig is `channels.dingtalk`.
type DingTalkConfig struct {
	Enabled      bool   `yaml:"enabled" env:"CHANNELS_DINGTALK_ENABLED"`
	ClientID     string `yaml:"clientId" env:"CHANNELS_DINGTALK_CLIENT_ID"`
	ClientSecret string `yaml:"clientSecret" env:"CHANNELS_DINGTALK_CLIENT_SECRET"`
}

// QQConfig is `channels.qq` (named explicitly in spec.md §1).
type QQConfig struct {
	Enabled   bool   `yaml:"enabled" env:"CHANNELS_QQ_ENABLED"`
	AppID     string `yaml:"appId" env:"CHANNELS_QQ_APP_ID"`
	AppSecret string `yaml:"appSecret" env:"CHANNELS_QQ_APP_SECRET"`
	Token     string `yaml:"token" env:"CHANNELS_QQ_TOKEN"`
	Sandbox   bool   `yaml:"sandbox" env:"CHANNELS_QQ_SANDBOX"`
}

// WebSocketConfig is `channels.websocket`, a generic bidirectional channel
// for clients that don't warrant a named SDK (internal tooling, tests).
type WebSocketConfig struct {
	Enabled bool   `yaml:"enabled" env:"CHANNELS_WEBSOCKET_ENABLED"`
	Addr    string `yaml:"addr" env:"CHANNELS_WEBSOCKET_ADDR" envDefault:":8090"`
	Path    string `yaml:"path" env:"CHANNELS_WEBSOCKET_PATH" envDefault:"/ws"`
}

// ChannelsConfig is the `channels` top-level section: one sub-section per
// adapter in pkg/channels, each independently enable-able.
type ChannelsConfig struct {
	Discord   DiscordConfig   `yaml:"discord"`
	Telegram  TelegramConfig  `yaml:"telegram"`
	Slack     SlackConfig     `yaml:"slack"`
	Feishu    FeishuConfig    `yaml:"feishu"`
	DingTalk  DingTalkConfig  `yaml:"dingtalk"`
	QQ        QQConfig        `yaml:"qq"`
	WebSocket WebSocketConfig `yaml:"websocket"`
}

// ServerConfig is the `server` top-level section: daemon-only settings
// that have no spec-level meaning (bus sizing, metrics exposition,
// on-disk session/migration state), as opposed to everything above which
// mirrors a named data-model or component from the spec.
type ServerConfig struct {
	BusCapacity int    `yaml:"busCapacity" env:"SERVER_BUS_CAPACITY" envDefault:"1000"`
	MetricsAddr string `yaml:"metricsAddr" env:"SERVER_METRICS_ADDR" envDefault:":9090"`
	SessionsDir string `yaml:"sessionsDir" env:"SERVER_SESSIONS_DIR" envDefault:"./data/sessions"`
}

// Config is the root, frozen configuration object.
type Config struct {
	Agents    AgentsConfig              `yaml:"agents"`
	Providers map[string]ProviderConfig `yaml:"providers"`
	Routing   RoutingConfig             `yaml:"routing"`
	Memory    MemoryConfig              `yaml:"memory"`
	Channels  ChannelsConfig            `yaml:"channels"`
	Server    ServerConfig              `yaml:"server"`
}

// WorkspacePath returns the resolved workspace directory.
func (c *Config) WorkspacePath() string {
	return c.Agents.Workspace
}

// Load reads a YAML file at path (if it exists) and overlays environment
// variables on top of it. The result is never mutated afterwards by the
// caller; config reload is explicitly out of scope for the core.
func Load(path string) (*Config, error) {
	cfg := &Config{}

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil && !os.IsNotExist(err) {
			return nil, fmt.Errorf("read config %s: %w", path, err)
		}
		if err == nil {
			if err := yaml.Unmarshal(data, cfg); err != nil {
				return nil, fmt.Errorf("parse config %s: %w", path, err)
			}
		}
	}

	if err := env.ParseWithOptions(&cfg.Agents, env.Options{Prefix: ""}); err != nil {
		return nil, fmt.Errorf("parse agents env overlay: %w", err)
	}
	if err := env.ParseWithOptions(&cfg.Routing, env.Options{Prefix: ""}); err != nil {
		return nil, fmt.Errorf("parse routing env overlay: %w", err)
	}
	if err := env.ParseWithOptions(&cfg.Memory, env.Options{Prefix: ""}); err != nil {
		return nil, fmt.Errorf("parse memory env overlay: %w", err)
	}
	if err := env.ParseWithOptions(&cfg.Memory.MultiEmbed, env.Options{Prefix: ""}); err != nil {
		return nil, fmt.Errorf("parse memory.multiEmbed env overlay: %w", err)
	}
	if err := env.ParseWithOptions(&cfg.Channels.Discord, env.Options{Prefix: ""}); err != nil {
		return nil, fmt.Errorf("parse channels.discord env overlay: %w", err)
	}
	if err := env.ParseWithOptions(&cfg.Channels.Telegram, env.Options{Prefix: ""}); err != nil {
		return nil, fmt.Errorf("parse channels.telegram env overlay: %w", err)
	}
	if err := env.ParseWithOptions(&cfg.Channels.Slack, env.Options{Prefix: ""}); err != nil {
		return nil, fmt.Errorf("parse channels.slack env overlay: %w", err)
	}
	if err := env.ParseWithOptions(&cfg.Channels.Feishu, env.Options{Prefix: ""}); err != nil {
		return nil, fmt.Errorf("parse channels.feishu env overlay: %w", err)
	}
	if err := env.ParseWithOptions(&cfg.Channels.DingTalk, env.Options{Prefix: ""}); err != nil {
		return nil, fmt.Errorf("parse channels.dingtalk env overlay: %w", err)
	}
	if err := env.ParseWithOptions(&cfg.Channels.QQ, env.Options{Prefix: ""}); err != nil {
		return nil, fmt.Errorf("parse channels.qq env overlay: %w", err)
	}
	if err := env.ParseWithOptions(&cfg.Channels.WebSocket, env.Options{Prefix: ""}); err != nil {
		return nil, fmt.Errorf("parse channels.websocket env overlay: %w", err)
	}
	if err := env.ParseWithOptions(&cfg.Server, env.Options{Prefix: ""}); err != nil {
		return nil, fmt.Errorf("parse server env overlay: %w", err)
	}

	return cfg, nil
}
