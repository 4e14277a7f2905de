package memory

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/lowbank/agentcore/pkg/logger"
	"github.com/lowbank/agentcore/pkg/metrics"
)

// SearchMode is the sum-typed read-path selector.
type SearchMode string

const (
	SearchFulltext SearchMode = "fulltext"
	SearchVector   SearchMode = "vector"
	SearchHybrid   SearchMode = "hybrid"
	SearchAuto     SearchMode = "auto"
)

// MigrationStatus lets Store consult a running migration without importing
// pkg/migration (which itself depends on this package for Table access).
type MigrationStatus interface {
	// Running reports whether a migration to fqid is in progress, and the
	// cursor (createdAt epoch-ms) it has migrated up through so far.
	Running(fqid string) (migratedUntilMs int64, running bool)
}

// SearchOptions configures Store.Search.
type SearchOptions struct {
	Mode      SearchMode
	Limit     int
	SessionID string
	Type      string
}

// Store is the facade the rest of the runtime (tools, summarizer,
// migration engine) talks to: Table plus embedding orchestration, the
// markdown mirror, and multiEmbed bookkeeping.
type Store struct {
	table         *Table
	dir           string
	activeModel   string // fully-qualified id of the currently configured embedding model
	maxModels     int
	maxSearch     int
	migration     MigrationStatus
}

// NewStore opens a Store rooted at dir.
func NewStore(dir, activeModel string, maxModels, maxSearchLimit int) (*Store, error) {
	t, err := OpenTable(dir)
	if err != nil {
		return nil, err
	}
	// "summaries/" is reserved for future rolled-up artefacts; summary
	// entries themselves live in the table as type:summary rows.
	if err := os.MkdirAll(filepath.Join(dir, "summaries"), 0755); err != nil {
		return nil, fmt.Errorf("create summaries dir: %w", err)
	}
	return &Store{table: t, dir: dir, activeModel: activeModel, maxModels: maxModels, maxSearch: maxSearchLimit}, nil
}

// ExpireOld deletes summary and entity entries older than retentionDays,
// resolving the open question of what shortTermRetentionDays governs:
// conversation entries are kept indefinitely (they are the system of
// record once summarized), while summary/entity rows — derived,
// regenerable artefacts — age out. A non-positive retentionDays disables
// the sweep.
func (s *Store) ExpireOld(ctx context.Context, retentionDays int) (int, error) {
	if retentionDays <= 0 {
		return 0, nil
	}
	cutoff := time.Now().AddDate(0, 0, -retentionDays)
	expired := 0
	for _, e := range s.table.AllForFulltext("", "summary", 0) {
		if e.CreatedAt.Before(cutoff) {
			if err := s.table.DeleteEntry(ctx, e.ID); err != nil {
				return expired, err
			}
			expired++
		}
	}
	for _, e := range s.table.AllForFulltext("", "entity", 0) {
		if e.CreatedAt.Before(cutoff) {
			if err := s.table.DeleteEntry(ctx, e.ID); err != nil {
				return expired, err
			}
			expired++
		}
	}
	if expired > 0 {
		logger.InfoCF("memory", "expired old summary/entity entries", map[string]interface{}{
			"count": expired, "retentionDays": retentionDays,
		})
	}
	return expired, nil
}

// RegisterEmbedder wires fqid's embedding function (used for both writes
// and query-time vector search on that column).
func (s *Store) RegisterEmbedder(fqid string, fn EmbedderFunc) {
	s.table.RegisterEmbedder(fqid, fn)
}

// SetMigrationStatus wires the migration engine for Auto-mode
// migration-aware hybrid search. Optional — nil disables the behavior.
func (s *Store) SetMigrationStatus(m MigrationStatus) {
	s.migration = m
}

// Table exposes the underlying table for the migration engine.
func (s *Store) Table() *Table { return s.table }

// StoreEntry is the write path (spec.md §4.5 "store"): embed content with
// the active model unless the caller supplied a vector or no embedder is
// registered, upsert the row, mirror to markdown, and enqueue cleanup if
// the column count has grown past maxModels.
func (s *Store) StoreEntry(ctx context.Context, content, typ, sessionID string, metadata map[string]interface{}, precomputed []float32) (string, error) {
	vector := precomputed
	activeModel := s.activeModel
	if len(vector) == 0 && activeModel != "" {
		if fn, ok := s.embedderFor(activeModel); ok {
			v, err := fn(ctx, content)
			if err != nil {
				logger.WarnCF("memory", "embedding failed, writing fulltext-only", map[string]interface{}{"error": err.Error()})
			} else {
				vector = v
			}
		}
	}

	id, err := s.table.Store(ctx, StoreInput{
		Content:     content,
		Type:        typ,
		SessionID:   sessionID,
		Metadata:    metadata,
		ActiveEmbed: activeModel,
		Vector:      vector,
	})
	if err != nil {
		return "", err
	}

	if e, ok := s.table.Get(id); ok {
		if err := appendMarkdown(s.dir, e); err != nil {
			logger.WarnCF("memory", "markdown mirror append failed", map[string]interface{}{"error": err.Error()})
		}
	}

	metrics.MemoryColumns.Set(float64(s.table.ColumnCount()))

	if s.maxModels > 0 && s.table.ColumnCount() > s.maxModels {
		go func() {
			if err := s.table.CleanupOldVectors(context.Background(), s.maxModels); err != nil {
				logger.WarnCF("memory", "vector column cleanup failed", map[string]interface{}{"error": err.Error()})
			}
		}()
	}

	return id, nil
}

func (s *Store) embedderFor(fqid string) (EmbedderFunc, bool) {
	fn, ok := s.table.embedders[fqid]
	return fn, ok
}

// Search implements spec.md §4.5's search modes.
func (s *Store) Search(ctx context.Context, query string, opts SearchOptions) ([]Entry, error) {
	limit := opts.Limit
	if limit <= 0 || limit > s.maxSearch {
		if s.maxSearch > 0 {
			limit = s.maxSearch
		}
	}
	if limit <= 0 {
		limit = 10
	}

	mode := opts.Mode
	if mode == "" {
		mode = SearchAuto
	}

	switch mode {
	case SearchFulltext:
		return fulltextSearch(s.table.AllForFulltext(opts.SessionID, opts.Type, 0), query, limit), nil
	case SearchVector:
		return s.table.VectorSearch(ctx, s.activeModel, query, limit, opts.SessionID, opts.Type)
	case SearchHybrid:
		return s.hybridSearch(ctx, query, limit, opts.SessionID, opts.Type, 0)
	case SearchAuto:
		return s.autoSearch(ctx, query, limit, opts)
	default:
		return nil, fmt.Errorf("memory: unknown search mode %q", mode)
	}
}

// hybridSearch fires the vector and fulltext sub-queries concurrently —
// they touch independent slices of the table and have no data dependency
// on each other — then joins before merging/deduplicating.
func (s *Store) hybridSearch(ctx context.Context, query string, limit int, sessionID, typ string, sinceMs int64) ([]Entry, error) {
	var vecResults, ftResults []Entry

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		res, err := s.table.VectorSearch(gctx, s.activeModel, query, limit, sessionID, typ)
		if err != nil {
			return err
		}
		vecResults = res
		return nil
	})
	g.Go(func() error {
		ftResults = fulltextSearch(s.table.AllForFulltext(sessionID, typ, sinceMs), query, limit)
		return nil
	})
	if err := g.Wait(); err != nil {
		return nil, err
	}

	seen := make(map[string]bool, len(vecResults))
	out := make([]Entry, 0, limit)
	for _, e := range vecResults {
		if !seen[e.ID] {
			seen[e.ID] = true
			out = append(out, e)
		}
	}
	for _, e := range ftResults {
		if len(out) >= limit {
			break
		}
		if !seen[e.ID] {
			seen[e.ID] = true
			out = append(out, e)
		}
	}
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

// autoSearch: migration-aware hybrid when a migration targeting the active
// model is running, else prefer vector, falling back to fulltext if empty.
func (s *Store) autoSearch(ctx context.Context, query string, limit int, opts SearchOptions) ([]Entry, error) {
	if s.migration != nil {
		if migratedUntil, running := s.migration.Running(s.activeModel); running {
			return s.hybridSearch(ctx, query, limit, opts.SessionID, opts.Type, migratedUntil)
		}
	}

	vecResults, err := s.table.VectorSearch(ctx, s.activeModel, query, limit, opts.SessionID, opts.Type)
	if err != nil {
		return nil, err
	}
	if len(vecResults) > 0 {
		return vecResults, nil
	}
	return fulltextSearch(s.table.AllForFulltext(opts.SessionID, opts.Type, 0), query, limit), nil
}
