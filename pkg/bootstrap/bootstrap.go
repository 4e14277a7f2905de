// Package bootstrap builds the provider gateway and router catalogue from
// a loaded config.Config. It exists so cmd/agentd and cmd/agentcli — two
// separate main packages that cannot import one another — share exactly
// one implementation of "turn config.Providers into a wired Gateway".
package bootstrap

import (
	"context"
	"fmt"
	"strings"

	"github.com/lowbank/agentcore/pkg/config"
	"github.com/lowbank/agentcore/pkg/gateway"
	"github.com/lowbank/agentcore/pkg/logger"
	"github.com/lowbank/agentcore/pkg/migration"
	"github.com/lowbank/agentcore/pkg/providers"
	"github.com/lowbank/agentcore/pkg/router"
)

// BuildGateway registers one provider Entry per cfg.Providers key,
// dispatching on the key name to decide which LLMProvider implementation
// to construct, and returns the flattened router catalogue alongside it.
func BuildGateway(cfg *config.Config) (*gateway.Gateway, []router.CatalogueEntry) {
	gw := gateway.New()
	var catalogue []router.CatalogueEntry

	for name, pc := range cfg.Providers {
		caps, err := pc.ResolveModels(name)
		if err != nil {
			logger.ErrorCF("bootstrap", "skipping provider with unresolvable models", map[string]interface{}{"provider": name, "error": err.Error()})
			continue
		}
		capByID := make(map[string]config.ModelCapability, len(caps))
		patterns := make([]string, 0, len(caps))
		defaultModel := ""
		for _, c := range caps {
			capByID[c.ID] = c
			patterns = append(patterns, c.ID)
			if defaultModel == "" {
				defaultModel = c.ID
			}
			catalogue = append(catalogue, router.CatalogueEntry{Provider: name, ModelID: c.ID, Capability: c})
		}
		if len(patterns) == 0 {
			patterns = []string{"*"}
		}

		var impl providers.LLMProvider
		if isAnthropic(name) {
			impl = providers.NewClaudeProvider(pc.APIKey, pc.BaseURL, defaultModel)
		} else {
			impl = providers.NewOpenAIProvider(pc.APIKey, pc.BaseURL, defaultModel)
		}

		gw.Register(gateway.Entry{
			Name:         name,
			Provider:     impl,
			Patterns:     patterns,
			Priority:     pc.Priority,
			Capabilities: capByID,
		})
	}

	return gw, catalogue
}

func isAnthropic(providerName string) bool {
	n := strings.ToLower(providerName)
	return strings.Contains(n, "anthropic") || strings.Contains(n, "claude")
}

// embeddingProvider is implemented by provider adapters that expose a
// vector-embeddings endpoint alongside chat completions (currently just
// OpenAIProvider; Claude has no embeddings API).
type embeddingProvider interface {
	Embed(ctx context.Context, model, text string) ([]float32, error)
}

// BuildEmbedder resolves embedModelKey ("<provider>/<id>") against gw to a
// migration.Embedder, used by both the migration engine and the memory
// store's own write-path embedder registration.
func BuildEmbedder(gw *gateway.Gateway, embedModelKey string) migration.Embedder {
	return func(ctx context.Context, content string) ([]float32, error) {
		providerName, modelID, ok := SplitModelKey(embedModelKey)
		if !ok {
			return nil, fmt.Errorf("invalid embed model key %q, expected <provider>/<id>", embedModelKey)
		}
		entry, ok := gw.Lookup(providerName)
		if !ok {
			return nil, fmt.Errorf("embed provider %q not registered", providerName)
		}
		embedder, ok := entry.Provider.(embeddingProvider)
		if !ok {
			return nil, fmt.Errorf("provider %q does not support embeddings", providerName)
		}
		return embedder.Embed(ctx, modelID, content)
	}
}

// SplitModelKey splits a "<provider>/<id>" key into its two parts.
func SplitModelKey(key string) (providerName, modelID string, ok bool) {
	idx := strings.IndexByte(key, '/')
	if idx < 0 {
		return "", "", false
	}
	return key[:idx], key[idx+1:], true
}
