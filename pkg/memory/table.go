package memory

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/philippgille/chromem-go"

	"github.com/lowbank/agentcore/pkg/logger"
)

// row is the JSON-index's on-disk representation of one entry. It is the
// single source of truth for structured fields; vector data itself lives
// in the per-column chromem collections, keyed by the same ID.
type row struct {
	ID            string                 `json:"id"`
	Content       string                 `json:"content"`
	Type          string                 `json:"type,omitempty"`
	SessionID     string                 `json:"sessionId,omitempty"`
	CreatedAt     int64                  `json:"createdAt"`
	UpdatedAt     int64                  `json:"updatedAt"`
	Metadata      map[string]interface{} `json:"metadata,omitempty"`
	ActiveEmbed   string                 `json:"activeEmbed,omitempty"`
	EmbedVersions map[string]int64       `json:"embedVersions,omitempty"`
	VectorColumns []string               `json:"vectorColumns,omitempty"`
}

func (r *row) toEntry() Entry {
	versions := make(map[string]time.Time, len(r.EmbedVersions))
	for k, v := range r.EmbedVersions {
		versions[k] = time.UnixMilli(v)
	}
	return Entry{
		ID:            r.ID,
		Content:       r.Content,
		Type:          r.Type,
		SessionID:     r.SessionID,
		CreatedAt:     time.UnixMilli(r.CreatedAt),
		UpdatedAt:     time.UnixMilli(r.UpdatedAt),
		Metadata:      r.Metadata,
		ActiveEmbed:   r.ActiveEmbed,
		EmbedVersions: versions,
	}
}

func (r *row) hasColumn(column string) bool {
	for _, c := range r.VectorColumns {
		if c == column {
			return true
		}
	}
	return false
}

func (r *row) addColumn(column string) {
	if !r.hasColumn(column) {
		r.VectorColumns = append(r.VectorColumns, column)
	}
}

func (r *row) removeColumn(column string) {
	out := r.VectorColumns[:0]
	for _, c := range r.VectorColumns {
		if c != column {
			out = append(out, c)
		}
	}
	r.VectorColumns = out
}

// EmbedderFunc computes an embedding for one piece of text with a
// specific model, used both by chromem (as the collection's query-time
// embedding function) and directly by the write path.
type EmbedderFunc func(ctx context.Context, text string) ([]float32, error)

// Table is the single logical memory table: JSON row index + one
// chromem.Collection per vector column.
type Table struct {
	mu          sync.RWMutex
	dir         string
	indexPath   string
	rows        map[string]*row
	order       []string // insertion order, oldest first; UpdateVector moves a row to the end
	db          *chromem.DB
	collections map[string]*chromem.Collection
	embedders   map[string]EmbedderFunc // fqid -> embedder, for lazily creating columns
}

// OpenTable opens (or creates) the table rooted at dir ("<storagePath>").
func OpenTable(dir string) (*Table, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("create memory dir: %w", err)
	}
	db, err := chromem.NewPersistentDB(filepath.Join(dir, "vectors"), false)
	if err != nil {
		return nil, fmt.Errorf("open vector db: %w", err)
	}

	t := &Table{
		dir:         dir,
		indexPath:   filepath.Join(dir, "index.json"),
		rows:        make(map[string]*row),
		db:          db,
		collections: make(map[string]*chromem.Collection),
		embedders:   make(map[string]EmbedderFunc),
	}
	if err := t.loadIndex(); err != nil {
		return nil, err
	}
	return t, nil
}

func (t *Table) loadIndex() error {
	data, err := os.ReadFile(t.indexPath)
	if os.IsNotExist(err) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("read memory index: %w", err)
	}
	var rows []*row
	if err := json.Unmarshal(data, &rows); err != nil {
		backupCorruptIndex(t.indexPath, data)
		return nil
	}
	for _, r := range rows {
		t.rows[r.ID] = r
		t.order = append(t.order, r.ID)
	}
	return nil
}

func backupCorruptIndex(path string, data []byte) {
	backup := fmt.Sprintf("%s.corrupt.%d", path, time.Now().UnixNano())
	_ = os.WriteFile(backup, data, 0644)
	logger.WarnCF("memory", "index file failed validation, backed up and starting fresh", map[string]interface{}{
		"path": path, "backup": backup,
	})
}

// saveIndexLocked writes the whole row index atomically (temp file + rename).
func (t *Table) saveIndexLocked() error {
	rows := make([]*row, 0, len(t.order))
	for _, id := range t.order {
		if r, ok := t.rows[id]; ok {
			rows = append(rows, r)
		}
	}
	data, err := json.Marshal(rows)
	if err != nil {
		return fmt.Errorf("marshal memory index: %w", err)
	}
	tmp := t.indexPath + ".tmp"
	if err := os.WriteFile(tmp, data, 0644); err != nil {
		return fmt.Errorf("write memory index tmp: %w", err)
	}
	if err := os.Rename(tmp, t.indexPath); err != nil {
		return fmt.Errorf("rename memory index: %w", err)
	}
	return nil
}

// RegisterEmbedder associates an embedding function with a fully-qualified
// model id, so its column can be created lazily on first use.
func (t *Table) RegisterEmbedder(fqid string, fn EmbedderFunc) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.embedders[fqid] = fn
}

func (t *Table) collectionFor(fqid string) (*chromem.Collection, error) {
	column := EncodeColumn(fqid)
	if c, ok := t.collections[column]; ok {
		return c, nil
	}
	embedder := t.embedders[fqid]
	chromemFn := func(ctx context.Context, text string) ([]float32, error) {
		if embedder == nil {
			return nil, fmt.Errorf("no embedder registered for %s", fqid)
		}
		return embedder(ctx, text)
	}
	c, err := t.db.GetOrCreateCollection(column, nil, chromemFn)
	if err != nil {
		return nil, fmt.Errorf("create vector column %s: %w", column, err)
	}
	t.collections[column] = c
	return c, nil
}

// ColumnCount returns how many distinct vector columns currently exist.
func (t *Table) ColumnCount() int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return len(t.collections)
}

// StoreInput is what Store needs to persist or update a row.
type StoreInput struct {
	ID           string // empty = generate
	Content      string
	Type         string
	SessionID    string
	Metadata     map[string]interface{}
	ActiveEmbed  string     // fully-qualified model id, e.g. "openai/text-embedding-3-small"
	Vector       []float32  // precomputed; empty means fulltext-only for this write
}

// Store upserts a row with all structured fields and, if a vector was
// supplied, writes it into ActiveEmbed's column. Returns the row id.
func (t *Table) Store(ctx context.Context, in StoreInput) (string, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	id := in.ID
	now := time.Now()
	existing, exists := t.rows[id]
	if id == "" || !exists {
		if id == "" {
			id = fmt.Sprintf("mem_%d_%s", now.UnixNano(), uuid.NewString()[:8])
		}
		existing = &row{ID: id, CreatedAt: now.UnixMilli()}
	}

	existing.Content = in.Content
	existing.Type = in.Type
	existing.SessionID = in.SessionID
	existing.Metadata = in.Metadata
	existing.UpdatedAt = now.UnixMilli()

	if in.ActiveEmbed != "" {
		existing.ActiveEmbed = in.ActiveEmbed
		if existing.EmbedVersions == nil {
			existing.EmbedVersions = make(map[string]int64)
		}
		existing.EmbedVersions[in.ActiveEmbed] = now.UnixMilli()
	}

	if !exists {
		t.rows[id] = existing
		t.order = append(t.order, id)
	}

	if len(in.Vector) > 0 && in.ActiveEmbed != "" {
		col, err := t.collectionFor(in.ActiveEmbed)
		if err != nil {
			return "", err
		}
		if err := col.AddDocument(ctx, chromem.Document{
			ID:        id,
			Content:   in.Content,
			Embedding: in.Vector,
			Metadata:  map[string]string{"sessionId": in.SessionID, "type": in.Type},
		}); err != nil {
			return "", fmt.Errorf("add vector document: %w", err)
		}
		existing.addColumn(EncodeColumn(in.ActiveEmbed))
	}

	if err := t.saveIndexLocked(); err != nil {
		return "", err
	}
	return id, nil
}

// UpdateVector implements the non-atomic update path from the spec:
// read, snapshot, delete by id, insert with the new vector, and on insert
// failure re-insert the snapshot and re-raise.
func (t *Table) UpdateVector(ctx context.Context, id, fqid string, vector []float32) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	r, ok := t.rows[id]
	if !ok {
		return fmt.Errorf("update vector: row %s not found", id)
	}
	snapshot := *r
	snapshotMeta := r.Metadata
	if r.EmbedVersions != nil {
		snapshot.EmbedVersions = make(map[string]int64, len(r.EmbedVersions))
		for k, v := range r.EmbedVersions {
			snapshot.EmbedVersions[k] = v
		}
	}
	snapshot.VectorColumns = append([]string(nil), r.VectorColumns...)

	col, err := t.collectionFor(fqid)
	if err != nil {
		return err
	}
	column := EncodeColumn(fqid)

	delete(t.rows, id)
	removeFromOrder(&t.order, id)
	_ = col.Delete(ctx, nil, nil, id)

	now := time.Now()
	r.UpdatedAt = now.UnixMilli()
	r.ActiveEmbed = fqid
	if r.EmbedVersions == nil {
		r.EmbedVersions = make(map[string]int64)
	}
	r.EmbedVersions[fqid] = now.UnixMilli()
	r.addColumn(column)

	insertErr := col.AddDocument(ctx, chromem.Document{
		ID:        id,
		Content:   r.Content,
		Embedding: vector,
		Metadata:  map[string]string{"sessionId": r.SessionID, "type": r.Type},
	})
	if insertErr != nil {
		// re-insert the snapshot and re-raise
		restored := snapshot
		restored.Metadata = snapshotMeta
		t.rows[id] = &restored
		t.order = append(t.order, id)
		return fmt.Errorf("update vector: re-insert failed, snapshot restored: %w", insertErr)
	}

	t.rows[id] = r
	t.order = append(t.order, id)
	return t.saveIndexLocked()
}

func removeFromOrder(order *[]string, id string) {
	out := (*order)[:0]
	for _, v := range *order {
		if v != id {
			out = append(out, v)
		}
	}
	*order = out
}

// Get returns one row by id, if present.
func (t *Table) Get(id string) (Entry, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	r, ok := t.rows[id]
	if !ok {
		return Entry{}, false
	}
	return r.toEntry(), true
}

// RowsNeedingColumn returns up to limit rows missing the vector column for
// fqid, optionally restricted to createdAt >= sinceMs, oldest first — the
// migration engine's fetchNextBatch. Rows created in the same millisecond
// as sinceMs stay eligible; rows that already have the column are skipped.
func (t *Table) RowsNeedingColumn(fqid string, sinceMs int64, limit int) []Entry {
	t.mu.RLock()
	defer t.mu.RUnlock()
	column := EncodeColumn(fqid)

	candidates := make([]*row, 0)
	for _, id := range t.order {
		r := t.rows[id]
		if r == nil || r.hasColumn(column) {
			continue
		}
		if sinceMs > 0 && r.CreatedAt < sinceMs {
			continue
		}
		candidates = append(candidates, r)
	}
	// Ascending, oldest-first: the migration engine's cursor (MigratedUntil)
	// is a monotonically increasing watermark, so each batch must advance
	// it from the oldest unmigrated row forward, not jump to the newest.
	sort.SliceStable(candidates, func(i, j int) bool { return candidates[i].CreatedAt < candidates[j].CreatedAt })
	if len(candidates) > limit {
		candidates = candidates[:limit]
	}
	out := make([]Entry, len(candidates))
	for i, r := range candidates {
		out[i] = r.toEntry()
	}
	return out
}

// TotalRows returns the row count, for migration progress percentage.
func (t *Table) TotalRows() int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return len(t.rows)
}

// VectorSearch runs an ANN query against fqid's column, applying optional
// sessionId/type equality filters.
func (t *Table) VectorSearch(ctx context.Context, fqid, query string, limit int, sessionID, typ string) ([]Entry, error) {
	t.mu.RLock()
	column := EncodeColumn(fqid)
	col, ok := t.collections[column]
	t.mu.RUnlock()
	if !ok {
		return nil, nil
	}
	if col.Count() == 0 {
		return nil, nil
	}
	n := limit
	if n > col.Count() {
		n = col.Count()
	}
	where := map[string]string{}
	if sessionID != "" {
		where["sessionId"] = sessionID
	}
	if typ != "" {
		where["type"] = typ
	}
	results, err := col.Query(ctx, query, n, where, nil)
	if err != nil {
		return nil, fmt.Errorf("vector search: %w", err)
	}
	out := make([]Entry, 0, len(results))
	t.mu.RLock()
	for _, res := range results {
		if r, ok := t.rows[res.ID]; ok {
			e := r.toEntry()
			e.Score = res.Similarity
			out = append(out, e)
		}
	}
	t.mu.RUnlock()
	return out, nil
}

// AllForFulltext returns every row, optionally filtered by sessionId/type
// and a minimum createdAt, for the fulltext scorer in fulltext.go.
func (t *Table) AllForFulltext(sessionID, typ string, sinceMs int64) []Entry {
	t.mu.RLock()
	defer t.mu.RUnlock()
	out := make([]Entry, 0, len(t.rows))
	for _, id := range t.order {
		r := t.rows[id]
		if r == nil {
			continue
		}
		if sessionID != "" && r.SessionID != sessionID {
			continue
		}
		if typ != "" && r.Type != typ {
			continue
		}
		if sinceMs > 0 && r.CreatedAt <= sinceMs {
			continue
		}
		out = append(out, r.toEntry())
	}
	return out
}

// HasColumn reports whether row id already has a vector in fqid's column.
func (t *Table) HasColumn(id, fqid string) bool {
	t.mu.RLock()
	defer t.mu.RUnlock()
	r, ok := t.rows[id]
	if !ok {
		return false
	}
	return r.hasColumn(EncodeColumn(fqid))
}

// DeleteEntry removes a row and its vectors from every column it appears
// in. Used by the retention sweep.
func (t *Table) DeleteEntry(ctx context.Context, id string) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	r, ok := t.rows[id]
	if !ok {
		return nil
	}
	for _, column := range r.VectorColumns {
		if c, ok := t.collections[column]; ok {
			_ = c.Delete(ctx, nil, nil, id)
		}
	}
	delete(t.rows, id)
	removeFromOrder(&t.order, id)
	return t.saveIndexLocked()
}

// CleanupOldVectors drops vector columns beyond keepNewest most-recently-
// used (by latest EmbedVersions timestamp across all rows), rebuilding the
// index to drop references and deleting the corresponding chromem
// collections. This is the implementation of the "enqueue a cleanup pass"
// intent the spec names but leaves unspecified in detail (Open Question 3):
// least-recently-used columns are reclaimed first.
func (t *Table) CleanupOldVectors(ctx context.Context, keepNewest int) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	lastUsed := map[string]int64{}
	for _, r := range t.rows {
		for model, ts := range r.EmbedVersions {
			col := EncodeColumn(model)
			if ts > lastUsed[col] {
				lastUsed[col] = ts
			}
		}
	}
	if len(lastUsed) <= keepNewest {
		return nil
	}

	type colTS struct {
		column string
		ts     int64
	}
	cols := make([]colTS, 0, len(lastUsed))
	for c, ts := range lastUsed {
		cols = append(cols, colTS{c, ts})
	}
	sort.Slice(cols, func(i, j int) bool { return cols[i].ts > cols[j].ts })

	toDrop := map[string]bool{}
	for _, c := range cols[keepNewest:] {
		toDrop[c.column] = true
	}

	for column := range toDrop {
		if _, ok := t.collections[column]; ok {
			_ = t.db.DeleteCollection(column)
			delete(t.collections, column)
		}
		for _, r := range t.rows {
			r.removeColumn(column)
			if model, ok := DecodeColumn(column); ok {
				delete(r.EmbedVersions, model)
			}
		}
	}
	logger.InfoCF("memory", "cleaned up old vector columns", map[string]interface{}{
		"dropped": len(toDrop),
	})
	return t.saveIndexLocked()
}
