package memory

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"
)

// appendMarkdown appends a human-readable, append-only entry to
// <dir>/sessions/YYYY-MM-DD.md. The file is never read back for retrieval
// — it exists purely for human audit.
func appendMarkdown(dir string, e Entry) error {
	mdDir := filepath.Join(dir, "sessions")
	if err := os.MkdirAll(mdDir, 0755); err != nil {
		return fmt.Errorf("create markdown dir: %w", err)
	}
	day := e.CreatedAt.UTC().Format("2006-01-02")
	path := filepath.Join(mdDir, day+".md")

	f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
	if err != nil {
		return fmt.Errorf("open markdown file: %w", err)
	}
	defer f.Close()

	header := headerFor(e.Type)
	ts := e.CreatedAt.UTC().Format(time.RFC3339)
	tags := tagsFor(e.Metadata)

	_, err = fmt.Fprintf(f, "%s\n\nid: %s\nsession: %s\ntimestamp: %s\ntags: %s\n\n%s\n\n---\n\n",
		header, e.ID, e.SessionID, ts, tags, e.Content)
	return err
}

func headerFor(entryType string) string {
	switch entryType {
	case "summary":
		return "## \U0001F4DD 摘要" // 📝 摘要
	case "entity":
		return "## \U0001F3F7️ 实体" // 🏷️ 实体
	default:
		return "## \U0001F4AC 对话" // 💬 对话
	}
}

func tagsFor(metadata map[string]interface{}) string {
	raw, ok := metadata["tags"]
	if !ok {
		return ""
	}
	switch v := raw.(type) {
	case []string:
		return strings.Join(v, ", ")
	case []interface{}:
		parts := make([]string, 0, len(v))
		for _, item := range v {
			parts = append(parts, fmt.Sprintf("%v", item))
		}
		return strings.Join(parts, ", ")
	case string:
		return v
	default:
		return ""
	}
}
