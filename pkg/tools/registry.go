package tools

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/santhosh-tekuri/jsonschema/v5"

	"github.com/lowbank/agentcore/pkg/providers"
)

// canonicalAliases maps case-insensitive aliases the model might emit for
// an action name onto the registry's canonical tool name.
var canonicalAliases = map[string]string{
	"exec":    "shell_exec",
	"run":     "shell_exec",
	"bash":    "shell_exec",
	"sh":      "shell_exec",
	"done":    "finish",
	"answer":  "finish",
	"ls":      "list_dir",
	"dir":     "list_dir",
	"cat":     "read_file",
	"read":    "read_file",
	"fetch":   "web_fetch",
	"curl":    "web_fetch",
	"get_url": "web_fetch",
}

// Registry owns the set of tools available to the executor, by canonical
// name, plus input-schema validators compiled at registration time.
type Registry struct {
	mu         sync.RWMutex
	tools      map[string]Tool
	validators map[string]*jsonschema.Schema
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{
		tools:      make(map[string]Tool),
		validators: make(map[string]*jsonschema.Schema),
	}
}

// Register adds t under its canonical Name(), compiling its Parameters()
// as a JSON Schema so malformed tool input is caught before Execute runs.
// A tool whose schema fails to compile is still registered — validation is
// a safety net, not a gate on availability.
func (r *Registry) Register(t Tool) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	name := t.Name()
	r.tools[name] = t

	schema, err := compileSchema(name, t.Parameters())
	if err != nil {
		return fmt.Errorf("tool %s: compiling input schema: %w", name, err)
	}
	if schema != nil {
		r.validators[name] = schema
	}
	return nil
}

func compileSchema(name string, params map[string]interface{}) (*jsonschema.Schema, error) {
	if len(params) == 0 {
		return nil, nil
	}
	raw, err := json.Marshal(params)
	if err != nil {
		return nil, err
	}
	c := jsonschema.NewCompiler()
	resource := "tool://" + name + "/schema.json"
	if err := c.AddResource(resource, strings.NewReader(string(raw))); err != nil {
		return nil, err
	}
	return c.Compile(resource)
}

// Resolve returns the canonical name for a (possibly aliased,
// case-insensitive) action name emitted by the model.
func Resolve(action string) string {
	lower := strings.ToLower(strings.TrimSpace(action))
	if canon, ok := canonicalAliases[lower]; ok {
		return canon
	}
	return lower
}

// Get looks up a tool by action name, resolving aliases first.
func (r *Registry) Get(action string) (Tool, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	t, ok := r.tools[Resolve(action)]
	if ok {
		return t, true
	}
	// fall back to exact, unresolved match for tools registered under a
	// name the alias table doesn't know about
	t, ok = r.tools[action]
	return t, ok
}

// Validate checks args against the tool's compiled input schema, if any.
func (r *Registry) Validate(action string, args map[string]interface{}) error {
	r.mu.RLock()
	schema, ok := r.validators[Resolve(action)]
	r.mu.RUnlock()
	if !ok {
		return nil
	}
	raw, err := json.Marshal(args)
	if err != nil {
		return fmt.Errorf("marshal args: %w", err)
	}
	var v interface{}
	if err := json.Unmarshal(raw, &v); err != nil {
		return fmt.Errorf("unmarshal args: %w", err)
	}
	return schema.Validate(v)
}

// Execute resolves, validates, and runs a tool call, returning a
// ToolResult in every case (never a bare Go error) so the executor can
// always append a uniform observation.
func (r *Registry) Execute(ctx context.Context, action string, args map[string]interface{}) *ToolResult {
	t, ok := r.Get(action)
	if !ok {
		return ErrorResult(fmt.Sprintf("unknown tool %q", action))
	}
	if mt, ok := t.(MetadataAwareTool); ok {
		_ = mt // metadata is set separately by SetMetadataFor before a round
	}
	if err := r.Validate(action, args); err != nil {
		return ErrorResult(fmt.Sprintf("invalid arguments for %s: %v", t.Name(), err))
	}
	return t.Execute(ctx, args)
}

// SetMetadataFor pushes inbound-message metadata to every registered tool
// that wants it, ahead of a processing round.
func (r *Registry) SetMetadataFor(metadata map[string]string) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, t := range r.tools {
		if mt, ok := t.(MetadataAwareTool); ok {
			mt.SetMetadata(metadata)
		}
	}
}

// Definitions returns the registered tools as provider ToolDefinitions, for
// callers that still need native function-calling (e.g. the router's
// intent pre-pass never uses this; it's here for tests and for any future
// native-tool mode).
func (r *Registry) Definitions() []providers.ToolDefinition {
	r.mu.RLock()
	defer r.mu.RUnlock()
	defs := make([]providers.ToolDefinition, 0, len(r.tools))
	for name, t := range r.tools {
		defs = append(defs, providers.ToolDefinition{
			Type: "function",
			Function: providers.FunctionDef{
				Name:        name,
				Description: t.Description(),
				Parameters:  t.Parameters(),
			},
		})
	}
	return defs
}

// Summaries renders one "- name: description" line per registered
// tool, sorted by name, for inlining into the ReAct system prompt.
func (r *Registry) Summaries() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.tools))
	for name := range r.tools {
		names = append(names, name)
	}
	sort.Strings(names)
	out := make([]string, 0, len(names))
	for _, name := range names {
		t := r.tools[name]
		out = append(out, fmt.Sprintf("- %s: %s", name, t.Description()))
	}
	return out
}

// Names returns every canonical tool name currently registered.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.tools))
	for name := range r.tools {
		names = append(names, name)
	}
	return names
}
