// Package router picks a "<provider>/<model>" key for each LLM call: a
// fixed default in non-auto mode, or deterministic complexity/rule-based
// routing (with an optional intent pre-pass) in auto mode. The teacher has
// no router of its own — al.model is set once from config and only changed
// via a slash command — so this package is new, built in the teacher's
// idiom (sum-typed enums, bilingual keyword sets, one alias-resolution
// function per enum).
package router

import (
	"context"
	"encoding/json"
	"fmt"
	"math"
	"sort"
	"strings"

	"github.com/pkoukk/tiktoken-go"

	"github.com/lowbank/agentcore/pkg/config"
	"github.com/lowbank/agentcore/pkg/gateway"
	"github.com/lowbank/agentcore/pkg/providers"
)

// CatalogueEntry is one routable model, as exposed to the router and to
// the intent pre-pass prompt.
type CatalogueEntry struct {
	Provider   string
	ModelID    string
	Capability config.ModelCapability
}

// Key returns the gateway-addressable "<provider>/<id>" form.
func (c CatalogueEntry) Key() string { return c.Provider + "/" + c.ModelID }

// Decision is the router's output for one call.
type Decision struct {
	Model      string
	Capability config.ModelCapability
	Complexity int
	Reason     string
}

// Router resolves model choices against a fixed catalogue and the
// runtime's routing configuration.
type Router struct {
	cfg       *config.RoutingConfig
	agents    *config.AgentsConfig
	gw        *gateway.Gateway
	catalogue []CatalogueEntry
	enc       *tiktoken.Tiktoken
}

// New builds a Router. catalogue should be built once at startup from the
// resolved config providers; New sorts its copy by provider name then model
// id — Go maps have no stable iteration order, so that alphabetical sort
// stands in for the spec's "provider insertion order, then model insertion
// order".
func New(cfg *config.Config, gw *gateway.Gateway, catalogue []CatalogueEntry) *Router {
	sorted := append([]CatalogueEntry(nil), catalogue...)
	sort.SliceStable(sorted, func(i, j int) bool {
		if sorted[i].Provider != sorted[j].Provider {
			return sorted[i].Provider < sorted[j].Provider
		}
		return sorted[i].ModelID < sorted[j].ModelID
	})
	enc, err := tiktoken.GetEncoding("cl100k_base")
	if err != nil {
		enc = nil
	}
	return &Router{cfg: &cfg.Routing, agents: &cfg.Agents, gw: gw, catalogue: sorted, enc: enc}
}

func (r *Router) tokenLen(s string) int {
	if r.enc == nil {
		return len([]rune(s))
	}
	return len(r.enc.Encode(s, nil, nil))
}

// turnInput is what Route needs about the current call; hasImages and
// numTurns come from the assembled prompt, content is the current user
// turn's text.
type turnInput struct {
	content   string
	hasImages bool
	numTurns  int
	iteration int
	auto      bool
	max       bool
}

// Route picks a model key for one LLM call.
func (r *Router) Route(ctx context.Context, messages []providers.Message, hasImages bool, iteration int) (Decision, error) {
	content := lastUserContent(messages)
	in := turnInput{
		content:   content,
		hasImages: hasImages,
		numTurns:  len(messages),
		iteration: iteration,
		auto:      r.agents.Auto,
		max:       r.agents.Max,
	}

	if !in.auto {
		return r.defaultDecision("auto routing disabled, using configured chat model"), nil
	}

	if len(r.catalogue) == 0 {
		return Decision{}, fmt.Errorf("router: no models available to route to (empty catalogue)")
	}

	if in.iteration == 1 {
		if d, ok := r.intentPrePass(ctx, in); ok {
			return d, nil
		}
	}

	return r.deterministicRoute(in), nil
}

func (r *Router) defaultDecision(reason string) Decision {
	key := r.agents.Models.Chat
	cap, _ := r.gw.Capability(key)
	return Decision{Model: key, Capability: cap, Reason: reason}
}

func lastUserContent(messages []providers.Message) string {
	for i := len(messages) - 1; i >= 0; i-- {
		if messages[i].Role == "user" {
			return messages[i].Content
		}
	}
	return ""
}

// visionCatalogue returns catalogue entries with Vision=true.
func (r *Router) visionCatalogue() []CatalogueEntry {
	var out []CatalogueEntry
	for _, c := range r.catalogue {
		if c.Capability.Vision {
			out = append(out, c)
		}
	}
	return out
}

type intentReply struct {
	Model  string `json:"model"`
	Reason string `json:"reason"`
}

// intentPrePass asks the configured intent model to pick directly from the
// catalogue. Returns ok=false when there's no usable reply, so the caller
// falls through to deterministic routing.
func (r *Router) intentPrePass(ctx context.Context, in turnInput) (Decision, bool) {
	if r.agents.Models.Intent == "" || len(r.catalogue) == 0 {
		return Decision{}, false
	}

	candidates := r.catalogue
	if in.hasImages {
		candidates = r.visionCatalogue()
		if len(candidates) == 0 {
			return Decision{}, false
		}
	}

	prompt := buildIntentPrompt(candidates, in.content)
	resp, err := r.gw.Chat(ctx, []providers.Message{{Role: "user", Content: prompt}}, nil, r.agents.Models.Intent, map[string]interface{}{
		"max_tokens":  128,
		"temperature": 0.0,
	})
	if err != nil {
		return Decision{}, false
	}

	reply, ok := extractIntentReply(resp.Content)
	if !ok {
		return Decision{}, false
	}

	chosen, ok := findCatalogueEntry(candidates, reply.Model)
	if !ok {
		return Decision{}, false
	}
	if in.hasImages && !chosen.Capability.Vision {
		return Decision{}, false
	}

	reason := reply.Reason
	if reason == "" {
		reason = "intent pre-pass"
	}
	return Decision{Model: chosen.Key(), Capability: chosen.Capability, Reason: reason}, true
}

func buildIntentPrompt(candidates []CatalogueEntry, content string) string {
	var sb strings.Builder
	sb.WriteString("Pick the best model for this request from the catalogue below. ")
	sb.WriteString("Reply with a single JSON object: {\"model\": \"<provider>/<id>\", \"reason\": \"<short reason>\"}.\n\n")
	sb.WriteString("Catalogue:\n")
	for _, c := range candidates {
		sb.WriteString(fmt.Sprintf("- %s (level=%s, vision=%v, tool=%v)\n", c.Key(), c.Capability.Level, c.Capability.Vision, c.Capability.Tool))
	}
	sb.WriteString("\nRequest:\n")
	sb.WriteString(content)
	return sb.String()
}

// extractIntentReply pulls the first balanced {...} block out of free text
// and decodes it, tolerant of ```json fences — the same tolerant style the
// ReAct parser (pkg/agent) uses.
func extractIntentReply(text string) (intentReply, bool) {
	block, ok := firstJSONObject(text)
	if !ok {
		return intentReply{}, false
	}
	var reply intentReply
	if err := json.Unmarshal([]byte(block), &reply); err != nil {
		return intentReply{}, false
	}
	if reply.Model == "" {
		return intentReply{}, false
	}
	return reply, true
}

// firstJSONObject returns the first balanced {...} run in text.
func firstJSONObject(text string) (string, bool) {
	start := strings.IndexByte(text, '{')
	if start < 0 {
		return "", false
	}
	depth := 0
	inString := false
	escaped := false
	for i := start; i < len(text); i++ {
		c := text[i]
		if inString {
			if escaped {
				escaped = false
			} else if c == '\\' {
				escaped = true
			} else if c == '"' {
				inString = false
			}
			continue
		}
		switch c {
		case '"':
			inString = true
		case '{':
			depth++
		case '}':
			depth--
			if depth == 0 {
				return text[start : i+1], true
			}
		}
	}
	return "", false
}

func findCatalogueEntry(candidates []CatalogueEntry, key string) (CatalogueEntry, bool) {
	for _, c := range candidates {
		if c.Key() == key {
			return c, true
		}
	}
	return CatalogueEntry{}, false
}

// deterministicRoute implements spec steps 1-5: vision override, max mode,
// rule match, complexity scoring, tool-need heuristic, then
// selection-within-level with nearest-level fallback.
func (r *Router) deterministicRoute(in turnInput) Decision {
	score := r.complexityScore(in)
	target := bandForScore(score)
	reason := fmt.Sprintf("complexity score %d -> level %s", score, target)

	if in.hasImages {
		if vis := r.visionCatalogue(); len(vis) > 0 {
			chosen := nearest(vis, target, in.max)
			reason = fmt.Sprintf("图片消息 / image message (complexity level %s)", target)
			return Decision{Model: chosen.Key(), Capability: chosen.Capability, Complexity: score, Reason: reason}
		}
	}

	if in.max {
		target = LevelUltra
		reason = "max mode"
	} else if rule, ok := r.matchRule(in.content); ok {
		if lvl, ok := ParseLevel(rule.Level); ok {
			target = lvl
			reason = fmt.Sprintf("rule match (priority %d)", rule.Priority)
		}
	}

	requireTool := NeedsTool(in.content)

	candidates := r.filterLevel(target, requireTool)
	if len(candidates) > 0 {
		chosen := candidates[0]
		return Decision{Model: chosen.Key(), Capability: chosen.Capability, Complexity: score, Reason: reason}
	}

	pool := r.catalogue
	if requireTool {
		pool = filterTool(pool)
	}
	chosen := nearest(pool, target, in.max)
	return Decision{Model: chosen.Key(), Capability: chosen.Capability, Complexity: score, Reason: reason + " (nearest-level fallback)"}
}

func (r *Router) matchRule(content string) (config.RoutingRule, bool) {
	rules := append([]config.RoutingRule(nil), r.cfg.Rules...)
	sort.SliceStable(rules, func(i, j int) bool { return rules[i].Priority > rules[j].Priority })
	n := len([]rune(content))
	for _, rule := range rules {
		if !matchesKeywords(content, rule.Keywords) {
			continue
		}
		if rule.MinLength != nil && n < *rule.MinLength {
			continue
		}
		if rule.MaxLength != nil && n > *rule.MaxLength {
			continue
		}
		return rule, true
	}
	return config.RoutingRule{}, false
}

// complexityScore implements the spec.md §4.3 step 4 formula. lengthWeight
// is applied to token count (via tiktoken-go) rather than raw byte length,
// for accuracy across non-ASCII content.
func (r *Router) complexityScore(in turnInput) int {
	score := r.cfg.BaseScore
	tokens := r.tokenLen(in.content)
	score += int(math.Min(20, math.Floor(float64(tokens)/100)*float64(r.cfg.LengthWeight)))
	if containsCodeBlock(in.content) {
		score += r.cfg.CodeBlockScore
	}
	if NeedsTool(in.content) {
		score += r.cfg.ToolCallScore
	}
	score += int(math.Min(10, float64(in.numTurns)*float64(r.cfg.MultiTurnScore)))
	if score < 0 {
		score = 0
	}
	if score > 100 {
		score = 100
	}
	return score
}

func (r *Router) filterLevel(target Level, requireTool bool) []CatalogueEntry {
	var out []CatalogueEntry
	for _, c := range r.catalogue {
		if Level(c.Capability.Level) != target {
			continue
		}
		if requireTool && !c.Capability.Tool {
			continue
		}
		out = append(out, c)
	}
	return out
}

func filterTool(pool []CatalogueEntry) []CatalogueEntry {
	var out []CatalogueEntry
	for _, c := range pool {
		if c.Capability.Tool {
			out = append(out, c)
		}
	}
	if len(out) == 0 {
		return pool
	}
	return out
}

// nearest implements the nearest-level fallback policy: prefer diff >= 0
// (max=true) or diff <= 0 (max=false); among the preferred subset, pick
// the smallest |diff|; if the preferred subset is empty, pick the global
// extreme (highest for max=true, lowest for max=false).
func nearest(pool []CatalogueEntry, target Level, max bool) CatalogueEntry {
	targetP := priority(target)
	var preferred []CatalogueEntry
	for _, c := range pool {
		diff := priority(Level(c.Capability.Level)) - targetP
		if max && diff >= 0 {
			preferred = append(preferred, c)
		} else if !max && diff <= 0 {
			preferred = append(preferred, c)
		}
	}
	set := preferred
	if len(set) == 0 {
		set = pool
	}
	best := set[0]
	bestDiff := absInt(priority(Level(best.Capability.Level)) - targetP)
	bestPrio := priority(Level(best.Capability.Level))
	for _, c := range set[1:] {
		d := absInt(priority(Level(c.Capability.Level)) - targetP)
		p := priority(Level(c.Capability.Level))
		if len(preferred) == 0 {
			// no preferred subset: pick the global extreme
			if (max && p > bestPrio) || (!max && p < bestPrio) {
				best, bestPrio = c, p
			}
			continue
		}
		if d < bestDiff {
			best, bestDiff = c, d
		}
	}
	return best
}

func absInt(v int) int {
	if v < 0 {
		return -v
	}
	return v
}
