// Package agent implements the ReAct executor loop: prompt assembly, model
// selection per iteration via pkg/router, tool dispatch via pkg/tools, and
// session-history maintenance via pkg/session. It is grounded in the
// teacher's pkg/agent/loop.go iteration/session/tool-dispatch structure,
// adapted from native function-calling to text ReAct parsing.
package agent

import (
	"context"
	"fmt"

	"github.com/lowbank/agentcore/pkg/bus"
	"github.com/lowbank/agentcore/pkg/config"
	"github.com/lowbank/agentcore/pkg/gateway"
	"github.com/lowbank/agentcore/pkg/logger"
	"github.com/lowbank/agentcore/pkg/media"
	"github.com/lowbank/agentcore/pkg/metrics"
	"github.com/lowbank/agentcore/pkg/providers"
	"github.com/lowbank/agentcore/pkg/redact"
	"github.com/lowbank/agentcore/pkg/router"
	"github.com/lowbank/agentcore/pkg/session"
	"github.com/lowbank/agentcore/pkg/tools"
)

// Touchable is implemented by the summarizer watcher; the executor touches
// it after every processed turn so idle-timeout tracking stays accurate.
type Touchable interface {
	Touch(sessionKey string)
}

// Executor runs the bounded ReAct loop against messages pulled off the bus.
type Executor struct {
	bus       *bus.MessageBus
	cfg       *config.Config
	router    *router.Router
	gateway   *gateway.Gateway
	tools     *tools.Registry
	sessions  *session.Manager
	summarize Touchable // optional
}

// New wires an Executor from its already-constructed dependencies.
func New(b *bus.MessageBus, cfg *config.Config, rt *router.Router, gw *gateway.Gateway, reg *tools.Registry, sessions *session.Manager) *Executor {
	return &Executor{bus: b, cfg: cfg, router: rt, gateway: gw, tools: reg, sessions: sessions}
}

// SetSummarizer wires the summarizer watcher for activity tracking.
func (ex *Executor) SetSummarizer(t Touchable) { ex.summarize = t }

// Run pulls inbound messages off the bus and processes them one at a time
// until ctx is cancelled. A single executor goroutine owns the session map
// per spec.md §5's "each shared resource is owned by exactly one component".
func (ex *Executor) Run(ctx context.Context) {
	for {
		msg, ok := ex.bus.ConsumeInbound(ctx)
		if !ok {
			return
		}
		reply := ex.processTurn(ctx, msg)
		ex.bus.PublishOutbound(bus.OutboundMessage{
			Channel:  msg.Channel,
			ChatID:   msg.ChatID,
			Content:  reply,
			Metadata: msg.Metadata,
		})
		if ex.summarize != nil {
			ex.summarize.Touch(msg.SessionKey)
		}
	}
}

// processTurn runs the bounded ReAct loop for one inbound message and
// returns the final reply text.
func (ex *Executor) processTurn(ctx context.Context, msg bus.InboundMessage) string {
	ex.tools.SetMetadataFor(toolMetadata(msg))

	history := ex.sessions.GetHistory(msg.SessionKey)
	summary := ex.sessions.GetSummary(msg.SessionKey)
	systemPrompt := withSummary(buildSystemPrompt(ex.cfg.WorkspacePath(), ex.tools), summary)

	working := make([]providers.Message, 0, len(history)+2)
	working = append(working, providers.Message{Role: "system", Content: systemPrompt})
	working = append(working, history...)
	working = append(working, userTurn(msg.Content, msg.Media))

	maxIter := ex.cfg.Agents.MaxToolIterations
	if maxIter <= 0 {
		maxIter = 20
	}

	var finalReply string
	exhausted := true
	iter := 1

	for ; iter <= maxIter; iter++ {
		decision, err := ex.router.Route(ctx, working, len(msg.Media) > 0, iter)
		if err != nil {
			logger.WarnCF("agent", "routing failed, apologizing", map[string]interface{}{"error": err.Error()})
			return "Sorry, I couldn't process that right now."
		}
		metrics.RouterDecisions.WithLabelValues(string(decision.Capability.Level), decision.Reason).Inc()

		genConfig := mergeGenConfig(ex.cfg.Agents, decision.Capability)
		callMessages := working
		if !decision.Capability.Vision {
			callMessages = stripMedia(working)
		}

		resp, err := ex.gateway.Chat(ctx, callMessages, nil, decision.Model, genConfig)
		if err != nil {
			logger.WarnCF("agent", "gateway exhausted all providers", map[string]interface{}{"error": err.Error()})
			metrics.ExecutorOutcomes.WithLabelValues("gateway_error").Inc()
			metrics.ExecutorIterations.Observe(float64(iter))
			return redact.String(fmt.Sprintf("Sorry, I ran into a problem and couldn't finish that: %v", err))
		}

		reply, ok := parseReact(resp.Content)
		if !ok {
			finalReply = resp.Content
			exhausted = false
			metrics.ExecutorOutcomes.WithLabelValues("malformed_reply").Inc()
			break
		}

		resolved := tools.Resolve(reply.Action)
		if resolved == "finish" {
			finalReply = actionInputString(reply.ActionInput)
			exhausted = false
			metrics.ExecutorOutcomes.WithLabelValues("finish").Inc()
			break
		}

		working = append(working, providers.Message{Role: "assistant", Content: resp.Content})

		if _, ok := ex.tools.Get(reply.Action); !ok {
			observation := fmt.Sprintf(`{"error": true, "resolvedTool": %q, "action": %q}`, resolved, reply.Action)
			working = append(working, providers.Message{Role: "user", Content: "Observation: " + observation})
			continue
		}

		result := ex.tools.Execute(ctx, reply.Action, actionInputMap(reply.ActionInput))
		observation := formatObservation(result)
		working = append(working, providers.Message{Role: "user", Content: "Observation: " + redact.String(observation)})
	}

	if exhausted {
		finalReply = "I wasn't able to finish that within my iteration budget — here's what I have so far. Ask me to continue if you'd like me to keep going."
		metrics.ExecutorOutcomes.WithLabelValues("exhausted").Inc()
	}
	metrics.ExecutorIterations.Observe(float64(iter))

	if !exhausted {
		ex.sessions.AddMessage(msg.SessionKey, "user", msg.Content)
		ex.sessions.AddMessage(msg.SessionKey, "assistant", finalReply)
	}

	return finalReply
}

// toolMetadata layers the channel/chatId a message arrived on underneath
// the channel's own metadata, so channel-specific tools (e.g.
// manage_telegram) can address the right chat without a bespoke setter.
func toolMetadata(msg bus.InboundMessage) map[string]string {
	out := make(map[string]string, len(msg.Metadata)+2)
	for k, v := range msg.Metadata {
		out[k] = v
	}
	out["channel"] = msg.Channel
	out["chat_id"] = msg.ChatID
	return out
}

func userTurn(content string, mediaParts []media.ContentPart) providers.Message {
	msg := providers.Message{Role: "user", Content: content}
	if len(mediaParts) > 0 {
		msg.ContentParts = mediaParts
	}
	return msg
}

// stripMedia replaces ContentParts with a textual placeholder on messages
// bound for a non-vision model.
func stripMedia(messages []providers.Message) []providers.Message {
	out := make([]providers.Message, len(messages))
	copy(out, messages)
	for i, m := range messages {
		if m.ContentParts != nil {
			parts, ok := m.ContentParts.([]media.ContentPart)
			if ok && len(parts) > 0 {
				out[i].Content = m.Content + fmt.Sprintf(" [%d media attachment(s) omitted: model has no vision support]", len(parts))
				out[i].ContentParts = nil
			}
		}
	}
	return out
}

// mergeGenConfig overlays the selected model's capability-level generation
// parameters over the global agent defaults.
func mergeGenConfig(agents config.AgentsConfig, cap config.ModelCapability) map[string]interface{} {
	cfg := map[string]interface{}{
		"max_tokens":        agents.MaxTokens,
		"temperature":       agents.Temperature,
		"top_k":             agents.TopK,
		"top_p":             agents.TopP,
		"frequency_penalty": agents.FrequencyPenalty,
	}
	if cap.MaxTokens > 0 {
		cfg["max_tokens"] = cap.MaxTokens
	}
	if cap.Temperature > 0 {
		cfg["temperature"] = cap.Temperature
	}
	if cap.TopK > 0 {
		cfg["top_k"] = cap.TopK
	}
	if cap.TopP > 0 {
		cfg["top_p"] = cap.TopP
	}
	if cap.FrequencyPenalty > 0 {
		cfg["frequency_penalty"] = cap.FrequencyPenalty
	}
	return cfg
}

func formatObservation(result *tools.ToolResult) string {
	if result.IsError {
		return fmt.Sprintf(`{"error": true, "message": %q}`, result.ForLLM)
	}
	return result.ForLLM
}
