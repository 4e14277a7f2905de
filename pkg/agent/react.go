package agent

import (
	"regexp"
	"strings"

	"github.com/tidwall/gjson"
)

// thinkTagRe matches <think>...</think> reasoning blocks models sometimes
// prepend to their reply, mirroring the teacher's own stripThinkingTags.
var thinkTagRe = regexp.MustCompile(`(?s)<think>.*?</think>\s*`)

func stripThinkingTags(s string) string {
	return strings.TrimSpace(thinkTagRe.ReplaceAllString(s, ""))
}

// reactReply is the parsed {thought, action, action_input} object the ReAct
// loop expects each iteration.
type reactReply struct {
	Thought    string
	Action     string
	ActionInput gjson.Result
}

// parseReact extracts the first balanced {...} run from content (after
// stripping <think> blocks and optional ```json fences) and reads the
// thought/action/action_input fields out of it with gjson, tolerant of the
// model wrapping the object in prose or a fenced code block.
func parseReact(content string) (reactReply, bool) {
	content = stripThinkingTags(content)
	block, ok := firstJSONObject(content)
	if !ok {
		return reactReply{}, false
	}
	parsed := gjson.Parse(block)
	if !parsed.IsObject() {
		return reactReply{}, false
	}
	action := parsed.Get("action")
	if !action.Exists() || action.String() == "" {
		return reactReply{}, false
	}
	return reactReply{
		Thought:     parsed.Get("thought").String(),
		Action:      strings.TrimSpace(action.String()),
		ActionInput: parsed.Get("action_input"),
	}, true
}

// firstJSONObject scans for the first top-level balanced {...} run in s,
// tolerant of string escaping so braces inside quoted strings don't
// prematurely close the object. ```json fences are stripped first if
// present.
func firstJSONObject(s string) (string, bool) {
	s = stripCodeFence(s)

	start := strings.IndexByte(s, '{')
	if start == -1 {
		return "", false
	}

	depth := 0
	inString := false
	escaped := false
	for i := start; i < len(s); i++ {
		c := s[i]
		if inString {
			switch {
			case escaped:
				escaped = false
			case c == '\\':
				escaped = true
			case c == '"':
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
				return s[start : i+1], true
			}
		}
	}
	return "", false
}

func stripCodeFence(s string) string {
	trimmed := strings.TrimSpace(s)
	if !strings.HasPrefix(trimmed, "```") {
		return s
	}
	lines := strings.SplitN(trimmed, "\n", 2)
	if len(lines) < 2 {
		return s
	}
	rest := lines[1]
	if idx := strings.LastIndex(rest, "```"); idx != -1 {
		rest = rest[:idx]
	}
	return rest
}

// actionInputString renders action_input as text for tool args / finish
// replies regardless of whether the model emitted a string or an object.
func actionInputString(r gjson.Result) string {
	if !r.Exists() {
		return ""
	}
	if r.Type == gjson.String {
		return r.String()
	}
	return r.Raw
}

// actionInputMap renders action_input as a tool-arguments map. Non-object
// inputs are wrapped under "input" so single-value tools (e.g. a bare
// string path) still resolve to something dispatchable.
func actionInputMap(r gjson.Result) map[string]interface{} {
	if r.IsObject() {
		out := map[string]interface{}{}
		r.ForEach(func(key, value gjson.Result) bool {
			out[key.String()] = value.Value()
			return true
		})
		return out
	}
	if !r.Exists() {
		return map[string]interface{}{}
	}
	return map[string]interface{}{"input": r.Value()}
}
