package agent

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/lowbank/agentcore/pkg/tools"
)

const reactInstructions = `You reason and act in a strict loop. Every reply you produce MUST be a single JSON object with exactly these fields:

{"thought": "<your reasoning>", "action": "<tool name or \"finish\">", "action_input": <string or object>}

Rules:
- "action" names one tool from the catalog below, or the literal "finish" when you have your final answer.
- When action is "finish", action_input is the text to return to the user.
- Emit nothing outside the JSON object. Do not wrap it in prose.
- After you call a tool, you will receive an "Observation:" turn with its result. Keep looping until you finish.`

// buildSystemPrompt assembles the ReAct system block: identity/bootstrap
// files, the tool catalog, and the ReAct format contract, mirroring the
// teacher's habit of composing a system prompt from on-disk bootstrap
// files plus a dynamically generated tools section.
func buildSystemPrompt(workspace string, registry *tools.Registry) string {
	var parts []string

	parts = append(parts, identityBlock(workspace))

	if bootstrap := loadBootstrapFiles(workspace); bootstrap != "" {
		parts = append(parts, bootstrap)
	}

	if registry != nil {
		summaries := registry.Summaries()
		if len(summaries) > 0 {
			parts = append(parts, "## Tools\n\n"+strings.Join(summaries, "\n"))
		}
	}

	parts = append(parts, "## Response Format\n\n"+reactInstructions)

	return strings.Join(parts, "\n\n---\n\n")
}

func identityBlock(workspace string) string {
	now := time.Now().Format("2006-01-02 15:04 (Monday)")
	abs, _ := filepath.Abs(workspace)
	return fmt.Sprintf(`# Identity

You are the agent running against the workspace at %s.

## Current Time
%s`, abs, now)
}

// loadBootstrapFiles concatenates any identity/behavior/user files the
// workspace carries, same pattern as the teacher's bootstrap loader.
func loadBootstrapFiles(workspace string) string {
	files := []string{"AGENTS.md", "SOUL.md", "USER.md", "IDENTITY.md"}
	var sb strings.Builder
	for _, name := range files {
		data, err := os.ReadFile(filepath.Join(workspace, name))
		if err != nil {
			continue
		}
		fmt.Fprintf(&sb, "## %s\n\n%s\n\n", name, string(data))
	}
	return strings.TrimSpace(sb.String())
}

// withSummary appends the session's rolling summary, if any, to the system
// prompt.
func withSummary(systemPrompt, summary string) string {
	if summary == "" {
		return systemPrompt
	}
	return systemPrompt + "\n\n## Summary of Earlier Conversation\n\n" + summary
}
