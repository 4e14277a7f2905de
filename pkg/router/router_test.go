package router

import (
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lowbank/agentcore/pkg/config"
	"github.com/lowbank/agentcore/pkg/gateway"
	"github.com/lowbank/agentcore/pkg/providers"
)

// fakeProvider is a minimal providers.LLMProvider stand-in, mirroring the
// teacher's own style of hand-rolled fakes in pkg/tools/message_test.go
// rather than a mocking framework.
type fakeProvider struct {
	reply string
	err   error
}

func (p *fakeProvider) Chat(ctx context.Context, messages []providers.Message, tools []providers.ToolDefinition, model string, options map[string]interface{}) (*providers.LLMResponse, error) {
	if p.err != nil {
		return nil, p.err
	}
	return &providers.LLMResponse{Content: p.reply}, nil
}

func (p *fakeProvider) GetDefaultModel() string { return "fake-default" }

func newTestGateway(catalogue []CatalogueEntry, impl providers.LLMProvider) *gateway.Gateway {
	gw := gateway.New()
	byProvider := map[string]map[string]config.ModelCapability{}
	for _, c := range catalogue {
		if byProvider[c.Provider] == nil {
			byProvider[c.Provider] = map[string]config.ModelCapability{}
		}
		byProvider[c.Provider][c.ModelID] = c.Capability
	}
	for name, caps := range byProvider {
		gw.Register(gateway.Entry{Name: name, Provider: impl, Patterns: []string{"*"}, Capabilities: caps})
	}
	return gw
}

func testCatalogue() []CatalogueEntry {
	return []CatalogueEntry{
		{Provider: "acme", ModelID: "fast-1", Capability: config.ModelCapability{ID: "fast-1", Level: "fast", Tool: true}},
		{Provider: "acme", ModelID: "low-1", Capability: config.ModelCapability{ID: "low-1", Level: "low", Tool: true}},
		{Provider: "acme", ModelID: "medium-1", Capability: config.ModelCapability{ID: "medium-1", Level: "medium", Tool: true}},
		{Provider: "acme", ModelID: "high-1", Capability: config.ModelCapability{ID: "high-1", Level: "high", Tool: true}},
		{Provider: "acme", ModelID: "ultra-1", Capability: config.ModelCapability{ID: "ultra-1", Level: "ultra", Tool: false, Vision: true}},
	}
}

func testConfig() *config.Config {
	return &config.Config{
		Agents: config.AgentsConfig{
			Models: config.AgentModels{Chat: "acme/medium-1"},
			Auto:   true,
		},
		Routing: config.RoutingConfig{
			Enabled:        true,
			BaseScore:      10,
			LengthWeight:   1,
			CodeBlockScore: 15,
			ToolCallScore:  10,
			MultiTurnScore: 2,
		},
	}
}

func TestRoute_AutoDisabled_UsesConfiguredChatModel(t *testing.T) {
	cfg := testConfig()
	cfg.Agents.Auto = false
	gw := newTestGateway(testCatalogue(), &fakeProvider{})
	r := New(cfg, gw, testCatalogue())

	d, err := r.Route(context.Background(), []providers.Message{{Role: "user", Content: "hello"}}, false, 1)
	require.NoError(t, err)
	assert.Equal(t, "acme/medium-1", d.Model)
}

func TestRoute_EmptyCatalogue_ReturnsErrorInsteadOfPanicking(t *testing.T) {
	cfg := testConfig()
	cfg.Agents.Auto = true
	gw := gateway.New()
	r := New(cfg, gw, nil)

	_, err := r.Route(context.Background(), []providers.Message{{Role: "user", Content: "hi"}}, false, 2)
	assert.Error(t, err)
}

func TestRoute_LowComplexityShortMessage_PicksFast(t *testing.T) {
	cfg := testConfig()
	gw := newTestGateway(testCatalogue(), &fakeProvider{})
	r := New(cfg, gw, testCatalogue())

	d, err := r.Route(context.Background(), []providers.Message{{Role: "user", Content: "hi"}}, false, 2)
	require.NoError(t, err)
	assert.Equal(t, "acme/fast-1", d.Model)
}

func TestRoute_CodeBlockRaisesComplexity(t *testing.T) {
	cfg := testConfig()
	gw := newTestGateway(testCatalogue(), &fakeProvider{})
	r := New(cfg, gw, testCatalogue())

	withCode := "```go\nfunc main() {}\n```"
	d, err := r.Route(context.Background(), []providers.Message{{Role: "user", Content: withCode}}, false, 2)
	require.NoError(t, err)
	assert.Greater(t, d.Complexity, 20)
}

func TestRoute_VisionOverride_RequiresVisionCapableModel(t *testing.T) {
	cfg := testConfig()
	gw := newTestGateway(testCatalogue(), &fakeProvider{})
	r := New(cfg, gw, testCatalogue())

	d, err := r.Route(context.Background(), []providers.Message{{Role: "user", Content: "what's in this picture"}}, true, 2)
	require.NoError(t, err)
	assert.Equal(t, "acme/ultra-1", d.Model)
	assert.True(t, strings.HasPrefix(d.Reason, "图片消息"), "vision override reason should lead with the bilingual prefix, got %q", d.Reason)
}

func TestRoute_MaxMode_ForcesUltra(t *testing.T) {
	cfg := testConfig()
	cfg.Agents.Max = true
	gw := newTestGateway(testCatalogue(), &fakeProvider{})
	r := New(cfg, gw, testCatalogue())

	d, err := r.Route(context.Background(), []providers.Message{{Role: "user", Content: "hi"}}, false, 2)
	require.NoError(t, err)
	assert.Equal(t, "acme/ultra-1", d.Model)
}

func TestRoute_ToolNeed_FiltersToToolCapableModels(t *testing.T) {
	cfg := testConfig()
	cfg.Agents.Max = true
	gw := newTestGateway(testCatalogue(), &fakeProvider{})
	r := New(cfg, gw, testCatalogue())

	// ultra-1 has Tool=false; "search" triggers NeedsTool, so the nearest
	// fallback must avoid ultra-1 despite max mode targeting ultra.
	d, err := r.Route(context.Background(), []providers.Message{{Role: "user", Content: "search for something"}}, false, 2)
	require.NoError(t, err)
	assert.NotEqual(t, "acme/ultra-1", d.Model)
}

func TestRoute_RuleMatch_OverridesComplexityLevel(t *testing.T) {
	cfg := testConfig()
	cfg.Routing.Rules = []RoutingRuleFixture().asConfig()
	gw := newTestGateway(testCatalogue(), &fakeProvider{})
	r := New(cfg, gw, testCatalogue())

	d, err := r.Route(context.Background(), []providers.Message{{Role: "user", Content: "please help urgent"}}, false, 2)
	require.NoError(t, err)
	assert.Equal(t, "acme/high-1", d.Model)
}

// RoutingRuleFixture is a tiny builder kept local to this test file so the
// rule-match test above stays readable.
type ruleFixture struct{}

func RoutingRuleFixture() ruleFixture { return ruleFixture{} }

func (ruleFixture) asConfig() []config.RoutingRule {
	return []config.RoutingRule{
		{Keywords: []string{"urgent"}, Level: "high", Priority: 10},
	}
}

func TestRoute_IntentPrePass_FirstIterationOnly(t *testing.T) {
	cfg := testConfig()
	cfg.Agents.Models.Intent = "acme/medium-1"
	gw := newTestGateway(testCatalogue(), &fakeProvider{reply: `{"model":"acme/high-1","reason":"needs reasoning"}`})
	r := New(cfg, gw, testCatalogue())

	d, err := r.Route(context.Background(), []providers.Message{{Role: "user", Content: "hi"}}, false, 1)
	require.NoError(t, err)
	assert.Equal(t, "acme/high-1", d.Model)
	assert.Equal(t, "needs reasoning", d.Reason)

	// later iterations skip the pre-pass and route deterministically.
	d, err = r.Route(context.Background(), []providers.Message{{Role: "user", Content: "hi"}}, false, 2)
	require.NoError(t, err)
	assert.Equal(t, "acme/fast-1", d.Model)
}

func TestRoute_IntentPrePass_FallsThroughOnBadReply(t *testing.T) {
	cfg := testConfig()
	cfg.Agents.Models.Intent = "acme/medium-1"
	gw := newTestGateway(testCatalogue(), &fakeProvider{reply: "not json at all"})
	r := New(cfg, gw, testCatalogue())

	d, err := r.Route(context.Background(), []providers.Message{{Role: "user", Content: "hi"}}, false, 1)
	require.NoError(t, err)
	// falls through to deterministic routing for a short low-complexity message.
	assert.Equal(t, "acme/fast-1", d.Model)
}

func TestParseLevel_AliasesResolve(t *testing.T) {
	l, ok := ParseLevel("flagship")
	require.True(t, ok)
	assert.Equal(t, LevelUltra, l)

	_, ok = ParseLevel("nonsense")
	assert.False(t, ok)
}

func TestBandForScore_Boundaries(t *testing.T) {
	assert.Equal(t, LevelFast, bandForScore(0))
	assert.Equal(t, LevelFast, bandForScore(19))
	assert.Equal(t, LevelLow, bandForScore(20))
	assert.Equal(t, LevelMedium, bandForScore(40))
	assert.Equal(t, LevelHigh, bandForScore(60))
	assert.Equal(t, LevelUltra, bandForScore(80))
	assert.Equal(t, LevelUltra, bandForScore(100))
}

func TestNeedsTool_BilingualKeywords(t *testing.T) {
	assert.True(t, NeedsTool("please search for the latest news"))
	assert.True(t, NeedsTool("帮我查询一下天气"))
	assert.False(t, NeedsTool("tell me a joke"))
}
