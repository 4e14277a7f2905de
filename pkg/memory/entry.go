// Package memory implements the single logical table of memory entries: a
// dynamic-schema store with one dense-vector column per embedding model
// (chromem-go only binds one embedding function per collection, so each
// spec "vector column" is modeled as its own chromem.Collection) plus an
// authoritative JSON row index owning every structured field, and a
// human-readable markdown mirror that is never read back for retrieval.
package memory

import (
	"strings"
	"time"
)

// Entry is the caller-facing view of one memory row: timestamps are
// calendar time, vector fields present-but-empty are reported as absent.
type Entry struct {
	ID            string
	Content       string
	Type          string // "conversation" | "summary" | "entity" | ...
	SessionID     string
	CreatedAt     time.Time
	UpdatedAt     time.Time
	Metadata      map[string]interface{}
	ActiveEmbed   string
	EmbedVersions map[string]time.Time
	Score         float32 // set on search results only
}

var columnReplacer = strings.NewReplacer(
	"/", "_s_",
	":", "_c_",
	".", "_d_",
	"-", "_h_",
)

var columnUnreplacer = strings.NewReplacer(
	"_s_", "/",
	"_c_", ":",
	"_d_", ".",
	"_h_", "-",
)

// EncodeColumn turns a fully-qualified embedding model id (e.g.
// "openai/text-embedding-3-small") into a filesystem-safe vector column
// name.
func EncodeColumn(modelFQID string) string {
	return "vector_" + columnReplacer.Replace(modelFQID)
}

// DecodeColumn recovers the fully-qualified model id from a column name
// produced by EncodeColumn. ok is false if column isn't a vector column.
func DecodeColumn(column string) (modelFQID string, ok bool) {
	const prefix = "vector_"
	if !strings.HasPrefix(column, prefix) {
		return "", false
	}
	return columnUnreplacer.Replace(strings.TrimPrefix(column, prefix)), true
}

// IsVectorColumn reports whether name looks like a vector column.
func IsVectorColumn(name string) bool {
	_, ok := DecodeColumn(name)
	return ok
}
