package memory

import (
	"fmt"
	"strings"
)

// FormatResults renders search results as a compact numbered list for
// injection into a tool observation.
func FormatResults(entries []Entry) string {
	if len(entries) == 0 {
		return "No relevant memories found."
	}
	var sb strings.Builder
	for i, e := range entries {
		fmt.Fprintf(&sb, "%d. [%s] %s\n", i+1, e.CreatedAt.Format("2006-01-02"), truncate(e.Content, 300))
	}
	return sb.String()
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n]) + "..."
}
