package agent

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lowbank/agentcore/pkg/bus"
	"github.com/lowbank/agentcore/pkg/config"
	"github.com/lowbank/agentcore/pkg/gateway"
	"github.com/lowbank/agentcore/pkg/providers"
	"github.com/lowbank/agentcore/pkg/router"
	"github.com/lowbank/agentcore/pkg/session"
	"github.com/lowbank/agentcore/pkg/tools"
)

// loopingProvider always replies with a tool call that never resolves to
// "finish", forcing the executor to burn its whole iteration budget.
type loopingProvider struct{}

func (p *loopingProvider) Chat(ctx context.Context, messages []providers.Message, toolsDef []providers.ToolDefinition, model string, options map[string]interface{}) (*providers.LLMResponse, error) {
	return &providers.LLMResponse{Content: `{"thought":"keep going","action":"noop","action_input":{}}`}, nil
}
func (p *loopingProvider) GetDefaultModel() string { return "fake" }

func newExhaustingExecutor(t *testing.T) *Executor {
	t.Helper()
	cfg := &config.Config{
		Agents: config.AgentsConfig{
			MaxToolIterations: 2,
			Models:            config.AgentModels{Chat: "acme/chat-1"},
		},
	}

	gw := gateway.New()
	gw.Register(gateway.Entry{
		Name:     "acme",
		Provider: &loopingProvider{},
		Patterns: []string{"*"},
		Capabilities: map[string]config.ModelCapability{
			"chat-1": {Level: "medium"},
		},
	})

	rt := router.New(cfg, gw, []router.CatalogueEntry{
		{Provider: "acme", ModelID: "chat-1", Capability: config.ModelCapability{Level: "medium"}},
	})

	reg := tools.NewRegistry()
	sessions := session.NewManager("")
	b := bus.NewMessageBus(10)

	return New(b, cfg, rt, gw, reg, sessions)
}

func TestProcessTurn_Exhaustion_LeavesSessionHistoryUnchanged(t *testing.T) {
	ex := newExhaustingExecutor(t)

	before := ex.sessions.GetHistory("chan:chat1")
	require.Empty(t, before)

	reply := ex.processTurn(context.Background(), bus.InboundMessage{
		Channel:    "chan",
		ChatID:     "chat1",
		Content:    "do the thing",
		SessionKey: "chan:chat1",
	})

	assert.Contains(t, reply, "iteration budget")
	after := ex.sessions.GetHistory("chan:chat1")
	assert.Empty(t, after, "exhausted turn must not mutate session history")
}
