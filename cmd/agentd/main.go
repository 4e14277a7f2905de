// Command agentd is the daemon entrypoint: it loads configuration, wires
// every core package together, and runs until terminated by SIGINT/SIGTERM.
package main

import (
	"context"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/lowbank/agentcore/pkg/agent"
	"github.com/lowbank/agentcore/pkg/bootstrap"
	"github.com/lowbank/agentcore/pkg/bus"
	"github.com/lowbank/agentcore/pkg/channels"
	"github.com/lowbank/agentcore/pkg/config"
	"github.com/lowbank/agentcore/pkg/gateway"
	"github.com/lowbank/agentcore/pkg/logger"
	"github.com/lowbank/agentcore/pkg/memory"
	"github.com/lowbank/agentcore/pkg/metrics"
	"github.com/lowbank/agentcore/pkg/migration"
	"github.com/lowbank/agentcore/pkg/router"
	"github.com/lowbank/agentcore/pkg/session"
	"github.com/lowbank/agentcore/pkg/summarizer"
	"github.com/lowbank/agentcore/pkg/tools"
)

func main() {
	configPath := flag.String("config", "agentcore.yaml", "path to YAML configuration file")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "load config: %v\n", err)
		os.Exit(1)
	}

	gw, catalogue := bootstrap.BuildGateway(cfg)

	store, err := memory.NewStore(cfg.Memory.StoragePath, cfg.Agents.Models.Embed, cfg.Memory.MultiEmbed.MaxModels, cfg.Memory.SearchLimit)
	if err != nil {
		fmt.Fprintf(os.Stderr, "open memory store: %v\n", err)
		os.Exit(1)
	}
	wireEmbedders(store, gw, cfg)

	migrationEngine := migration.New(cfg.Memory.StoragePath, store, bootstrap.BuildEmbedder(gw, cfg.Agents.Models.Embed))
	if err := migrationEngine.Load(); err != nil {
		logger.WarnCF("agentd", "migration state load failed, starting fresh", map[string]interface{}{"error": err.Error()})
	}
	if migrationEngine.State().Status == migration.StatusCompleted {
		// A prior run finished a migration but the process exited before
		// anyone confirmed it; startup is the confirmation point here.
		if err := migrationEngine.Confirm(); err != nil {
			logger.WarnCF("agentd", "migration state confirmation failed", map[string]interface{}{"error": err.Error()})
		}
	}
	store.SetMigrationStatus(migrationEngine)

	b := bus.NewMessageBus(cfg.Server.BusCapacity)
	sessions := session.NewManager(cfg.Server.SessionsDir)
	rt := router.New(cfg, gw, catalogue)

	reg := tools.NewRegistry()
	registerTools(reg, store, b)

	ex := agent.New(b, cfg, rt, gw, reg, sessions)

	watcher := summarizer.New(summarizer.Config{
		MinMessages:    cfg.Memory.SummarizeThreshold,
		IdleTimeout:    cfg.Memory.IdleTimeout,
		Model:          cfg.Agents.Models.Chat,
		RetentionDays:  cfg.Memory.ShortTermRetentionDays,
		RetentionCron:  cfg.Memory.RetentionCron,
		RetentionEvery: cfg.Memory.MultiEmbed.MigrateInterval,
	}, sessions, store, gw)
	ex.SetSummarizer(watcher)

	hub := channels.Build(cfg, b)

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	var wg sync.WaitGroup
	runGoroutine(&wg, func() { ex.Run(ctx) })
	runGoroutine(&wg, func() { watcher.Run(ctx) })
	runGoroutine(&wg, func() { hub.Dispatch(ctx) })
	runGoroutine(&wg, func() { reportBusMetrics(ctx, b) })

	hub.StartAll(ctx)
	wireTelegramTool(reg, hub)

	metricsServer := &http.Server{Addr: cfg.Server.MetricsAddr, Handler: metrics.Handler()}
	runGoroutine(&wg, func() {
		if err := metricsServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.ErrorCF("agentd", "metrics server stopped", map[string]interface{}{"error": err.Error()})
		}
	})

	logger.InfoCF("agentd", "started", map[string]interface{}{"metricsAddr": cfg.Server.MetricsAddr})

	<-ctx.Done()
	logger.InfoCF("agentd", "shutting down", nil)

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	hub.StopAll(shutdownCtx)
	_ = metricsServer.Shutdown(shutdownCtx)
	b.Close()
	migrationEngine.Stop()

	wg.Wait()
}

func runGoroutine(wg *sync.WaitGroup, fn func()) {
	wg.Add(1)
	go func() {
		defer wg.Done()
		fn()
	}()
}

func reportBusMetrics(ctx context.Context, b *bus.MessageBus) {
	ticker := time.NewTicker(5 * time.Second)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			b.ReportMetrics()
		}
	}
}

// wireEmbedders registers the active embedding model with the store so
// writes and fulltext-fallback searches can embed content without the
// migration engine's explicit target-model flow.
func wireEmbedders(store *memory.Store, gw *gateway.Gateway, cfg *config.Config) {
	if cfg.Agents.Models.Embed == "" {
		return
	}
	embed := bootstrap.BuildEmbedder(gw, cfg.Agents.Models.Embed)
	store.RegisterEmbedder(cfg.Agents.Models.Embed, func(ctx context.Context, text string) ([]float32, error) {
		return embed(ctx, text)
	})
}

func registerTools(reg *tools.Registry, store *memory.Store, b *bus.MessageBus) {
	msgTool := tools.NewMessageTool()
	msgTool.SetSendCallback(func(channel, chatID, content string, metadata map[string]string) error {
		if !b.PublishOutbound(bus.OutboundMessage{Channel: channel, ChatID: chatID, Content: content, Metadata: metadata}) {
			return fmt.Errorf("outbound bus is full, message dropped")
		}
		return nil
	})

	for _, t := range []tools.Tool{
		tools.NewThinkTool(),
		msgTool,
		tools.NewMemorySearchTool(store),
	} {
		if err := reg.Register(t); err != nil {
			logger.ErrorCF("agentd", "tool registration failed", map[string]interface{}{"tool": t.Name(), "error": err.Error()})
		}
	}
}

// wireTelegramTool adds manage_telegram only once the Telegram channel is
// actually running, sharing its bot session rather than opening a second
// long-polling connection.
func wireTelegramTool(reg *tools.Registry, hub *channels.Hub) {
	ch, ok := hub.Get("telegram")
	if !ok || !ch.IsRunning() {
		return
	}
	tg, ok := ch.(*channels.TelegramChannel)
	if !ok {
		return
	}
	if err := reg.Register(tools.NewManageTelegramTool(tg.Bot())); err != nil {
		logger.ErrorCF("agentd", "manage_telegram registration failed", map[string]interface{}{"error": err.Error()})
	}
}
