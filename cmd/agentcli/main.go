// Command agentcli is a local readline REPL that exercises the agent
// executor directly over an in-process bus, without any channel adapter
// or network listener — a smoke-test client for the same Executor/Gateway
// wiring cmd/agentd runs in production.
package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"os"

	"github.com/chzyer/readline"

	"github.com/lowbank/agentcore/pkg/agent"
	"github.com/lowbank/agentcore/pkg/bootstrap"
	"github.com/lowbank/agentcore/pkg/bus"
	"github.com/lowbank/agentcore/pkg/config"
	"github.com/lowbank/agentcore/pkg/memory"
	"github.com/lowbank/agentcore/pkg/router"
	"github.com/lowbank/agentcore/pkg/session"
	"github.com/lowbank/agentcore/pkg/tools"
)

const replChannel, replChatID = "cli", "local"

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

	b := bus.NewMessageBus(cfg.Server.BusCapacity)
	sessions := session.NewManager("")
	rt := router.New(cfg, gw, catalogue)

	reg := tools.NewRegistry()
	msgTool := tools.NewMessageTool()
	msgTool.SetSendCallback(func(channel, chatID, content string, metadata map[string]string) error {
		return nil // the REPL prints the executor's direct reply; message-tool sends are discarded
	})
	for _, t := range []tools.Tool{tools.NewThinkTool(), msgTool, tools.NewMemorySearchTool(store)} {
		_ = reg.Register(t)
	}

	ex := agent.New(b, cfg, rt, gw, reg, sessions)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go ex.Run(ctx)
	go printReplies(ctx, b)

	rl, err := readline.NewEx(&readline.Config{
		Prompt:          "agent> ",
		HistoryFile:     "/tmp/agentcli_history",
		InterruptPrompt: "^C",
		EOFPrompt:       "exit",
	})
	if err != nil {
		fmt.Fprintf(os.Stderr, "readline init: %v\n", err)
		os.Exit(1)
	}
	defer rl.Close()

	for {
		line, err := rl.Readline()
		if err == readline.ErrInterrupt {
			continue
		}
		if err == io.EOF {
			return
		}
		if err != nil {
			fmt.Fprintf(os.Stderr, "readline: %v\n", err)
			return
		}
		if line == "" {
			continue
		}
		if line == "exit" || line == "quit" {
			return
		}
		b.PublishInbound(bus.InboundMessage{Channel: replChannel, ChatID: replChatID, SenderID: "local-user", Content: line})
	}
}

func printReplies(ctx context.Context, b *bus.MessageBus) {
	for {
		msg, ok := b.ConsumeOutbound(ctx)
		if !ok {
			return
		}
		fmt.Printf("\n%s\n\n", msg.Content)
	}
}
