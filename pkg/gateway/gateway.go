// Package gateway resolves "<provider>/<model>" keys against a registry of
// named LLMProvider backends and fails over to the next priority-ordered,
// pattern-matching provider on transport trouble. It generalizes the
// teacher's two-provider FallbackProvider to N providers.
package gateway

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"path"
	"sort"
	"strings"

	"github.com/lowbank/agentcore/pkg/config"
	"github.com/lowbank/agentcore/pkg/logger"
	"github.com/lowbank/agentcore/pkg/metrics"
	"github.com/lowbank/agentcore/pkg/providers"
)

// Entry is one registered provider: its implementation, the model patterns
// it serves, its priority (lower = preferred), and its capability table
// keyed by bare model id.
type Entry struct {
	Name         string
	Provider     providers.LLMProvider
	Patterns     []string // "*" = catch-all, else exact or "prefix*" glob
	Priority     int
	Capabilities map[string]config.ModelCapability // modelID -> capability
}

func (e Entry) matches(modelID string) bool {
	for _, pat := range e.Patterns {
		if pat == "*" {
			return true
		}
		if ok, _ := path.Match(pat, modelID); ok {
			return true
		}
	}
	return false
}

// Response is the normalized result surfaced by Gateway.Chat.
type Response struct {
	Content      string
	ToolCalls    []providers.ToolCall
	HasToolCalls bool
	UsedProvider string
	UsedModel    string
	UsedLevel    string
	Usage        *providers.UsageInfo
}

// Gateway is the provider registry plus fallback resolution.
type Gateway struct {
	entries map[string]*Entry
}

// New creates an empty gateway.
func New() *Gateway {
	return &Gateway{entries: make(map[string]*Entry)}
}

// Register adds or replaces a named provider entry.
func (g *Gateway) Register(e Entry) {
	g.entries[e.Name] = &e
}

// Lookup returns the registered entry by name, if any.
func (g *Gateway) Lookup(name string) (*Entry, bool) {
	e, ok := g.entries[name]
	return e, ok
}

// Capability returns the capability row for "<provider>/<id>", if known.
func (g *Gateway) Capability(modelKey string) (config.ModelCapability, bool) {
	providerName, modelID, ok := splitModelKey(modelKey)
	if !ok {
		return config.ModelCapability{}, false
	}
	e, ok := g.entries[providerName]
	if !ok {
		return config.ModelCapability{}, false
	}
	cap, ok := e.Capabilities[modelID]
	return cap, ok
}

func splitModelKey(modelKey string) (providerName, modelID string, ok bool) {
	idx := strings.IndexByte(modelKey, '/')
	if idx < 0 {
		return "", "", false
	}
	return modelKey[:idx], modelKey[idx+1:], true
}

// candidatesFor returns every registered entry whose patterns match modelID,
// ordered by ascending priority (most preferred first), with the
// originally-requested provider (if it matches) moved to the front.
func (g *Gateway) candidatesFor(requestedProvider, modelID string) []*Entry {
	var out []*Entry
	for _, e := range g.entries {
		if e.matches(modelID) {
			out = append(out, e)
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].Name == requestedProvider {
			return true
		}
		if out[j].Name == requestedProvider {
			return false
		}
		return out[i].Priority < out[j].Priority
	})
	return out
}

// Chat resolves model = "<provider>/<id>", forwards the call, and on
// transport/5xx/timeout error tries the next pattern-matching provider in
// priority order. Tool parameters are only forwarded when the caller
// supplied a non-empty list and the resolved model's capability allows
// tool use.
func (g *Gateway) Chat(ctx context.Context, messages []providers.Message, tools []providers.ToolDefinition, model string, genConfig map[string]interface{}) (*Response, error) {
	providerName, modelID, ok := splitModelKey(model)
	if !ok {
		return nil, fmt.Errorf("gateway: model key %q is not \"<provider>/<id>\"", model)
	}

	candidates := g.candidatesFor(providerName, modelID)
	if len(candidates) == 0 {
		return nil, fmt.Errorf("gateway: no provider registered for model %q", model)
	}

	var lastErr error
	for i, e := range candidates {
		useTools := tools
		if cap, ok := e.Capabilities[modelID]; ok && !cap.Tool {
			useTools = nil
		}
		if len(tools) == 0 {
			useTools = nil
		}

		resp, err := e.Provider.Chat(ctx, messages, useTools, modelID, genConfig)
		if err == nil {
			level := ""
			if cap, ok := e.Capabilities[modelID]; ok {
				level = cap.Level
			}
			metrics.GatewayRequests.WithLabelValues(e.Name, "ok").Inc()
			if resp.Usage != nil {
				metrics.RecordTokens(modelID, resp.Usage.PromptTokens, resp.Usage.CompletionTokens)
			}
			return &Response{
				Content:      resp.Content,
				ToolCalls:    resp.ToolCalls,
				HasToolCalls: len(resp.ToolCalls) > 0,
				UsedProvider: e.Name,
				UsedModel:    modelID,
				UsedLevel:    level,
				Usage:        resp.Usage,
			}, nil
		}

		lastErr = err
		metrics.GatewayRequests.WithLabelValues(e.Name, "error").Inc()
		if !isRetryable(err) || i == len(candidates)-1 {
			break
		}
		next := candidates[i+1]
		metrics.GatewayFailovers.WithLabelValues(e.Name).Inc()
		logger.WarnCF("gateway", fmt.Sprintf("provider %s failed for %s, falling back to %s", e.Name, model, next.Name), map[string]interface{}{
			"error": err.Error(),
		})
	}

	return nil, fmt.Errorf("gateway: all providers failed for %s: %w", model, lastErr)
}

// isRetryable decides whether a failure should trigger fallback to the
// next provider: network errors, timeouts, and HTTP 5xx are retryable;
// anything else (bad request, auth, validation) is not, since switching
// providers wouldn't fix it.
func isRetryable(err error) bool {
	if err == nil {
		return false
	}
	var netErr net.Error
	if errors.As(err, &netErr) {
		return true
	}
	msg := err.Error()
	for _, code := range []string{"500", "502", "503", "504"} {
		if strings.Contains(msg, code) {
			return true
		}
	}
	return strings.Contains(msg, "timeout") || strings.Contains(msg, "connection refused") || strings.Contains(msg, "EOF")
}

// StatusError wraps an HTTP status for callers that need to classify it.
type StatusError struct {
	StatusCode int
	Err        error
}

func (e *StatusError) Error() string { return fmt.Sprintf("http %d: %v", e.StatusCode, e.Err) }
func (e *StatusError) Unwrap() error { return e.Err }

// IsServerError reports whether err represents an HTTP 5xx response.
func IsServerError(err error) bool {
	var se *StatusError
	if errors.As(err, &se) {
		return se.StatusCode >= http.StatusInternalServerError
	}
	return false
}
