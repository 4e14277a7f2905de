package bootstrap

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lowbank/agentcore/pkg/config"
)

func TestBuildGateway_RegistersOneEntryPerProvider(t *testing.T) {
	cfg := &config.Config{
		Providers: map[string]config.ProviderConfig{
			"anthropic": {BaseURL: "https://api.anthropic.com", APIKey: "key", RawModels: []interface{}{"claude-x"}},
			"openai":    {BaseURL: "https://api.openai.com", APIKey: "key", RawModels: []interface{}{"gpt-x"}},
		},
	}

	gw, catalogue := BuildGateway(cfg)
	require.Len(t, catalogue, 2)

	_, ok := gw.Lookup("anthropic")
	assert.True(t, ok)
	_, ok = gw.Lookup("openai")
	assert.True(t, ok)
	_, ok = gw.Lookup("nonexistent")
	assert.False(t, ok)
}

func TestBuildGateway_SkipsProviderWithUnresolvableModels(t *testing.T) {
	cfg := &config.Config{
		Providers: map[string]config.ProviderConfig{
			"broken": {RawModels: []interface{}{42}}, // unsupported entry type
		},
	}

	gw, catalogue := BuildGateway(cfg)
	assert.Empty(t, catalogue)
	_, ok := gw.Lookup("broken")
	assert.False(t, ok)
}

func TestSplitModelKey(t *testing.T) {
	provider, model, ok := SplitModelKey("openai/text-embedding-3-small")
	require.True(t, ok)
	assert.Equal(t, "openai", provider)
	assert.Equal(t, "text-embedding-3-small", model)

	_, _, ok = SplitModelKey("no-slash-here")
	assert.False(t, ok)
}

func TestBuildEmbedder_ErrorsForNonEmbeddingProvider(t *testing.T) {
	cfg := &config.Config{
		Providers: map[string]config.ProviderConfig{
			"anthropic": {RawModels: []interface{}{"claude-x"}},
		},
	}
	gw, _ := BuildGateway(cfg)
	embed := BuildEmbedder(gw, "anthropic/claude-x")

	_, err := embed(context.Background(), "some text")
	assert.Error(t, err)
}

func TestBuildEmbedder_ErrorsForUnregisteredProvider(t *testing.T) {
	gw, _ := BuildGateway(&config.Config{})
	embed := BuildEmbedder(gw, "missing/model")

	_, err := embed(context.Background(), "text")
	assert.Error(t, err)
}

func TestBuildEmbedder_ErrorsForMalformedKey(t *testing.T) {
	gw, _ := BuildGateway(&config.Config{})
	embed := BuildEmbedder(gw, "not-a-valid-key")

	_, err := embed(context.Background(), "text")
	assert.Error(t, err)
}
