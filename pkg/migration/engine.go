// Package migration runs the background re-embedding worker that moves a
// memory table's rows onto a new embedding model's vector column. State is
// persisted to a JSON file in the memory directory with the same
// temp-file-then-rename atomic-write idiom the teacher uses for its topic
// mapping state file; the temp file is fsync'd before the rename.
package migration

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/lowbank/agentcore/pkg/logger"
	"github.com/lowbank/agentcore/pkg/memory"
	"github.com/lowbank/agentcore/pkg/metrics"
)

// Status is the sum-typed migration lifecycle state.
type Status string

const (
	StatusIdle      Status = "idle"
	StatusRunning   Status = "running"
	StatusPaused    Status = "paused"
	StatusCompleted Status = "completed"
)

// FailedRecord is one record that failed to migrate.
type FailedRecord struct {
	ID        string    `json:"id"`
	Error     string    `json:"error"`
	Timestamp time.Time `json:"timestamp"`
}

// State is the on-disk, JSON-serialized migration state.
type State struct {
	TargetModel    string         `json:"targetModel"`
	Status         Status         `json:"status"`
	TotalRecords   int            `json:"totalRecords"`
	MigratedCount  int            `json:"migratedCount"`
	MigratedUntil  int64          `json:"migratedUntil,omitempty"` // epoch-ms cursor
	BatchSize      int            `json:"batchSize"`
	FailedRecords  []FailedRecord `json:"failedRecords"`
	StartedAt      time.Time      `json:"startedAt"`
	CompletedAt    time.Time      `json:"completedAt,omitempty"`
}

func (s State) valid() bool {
	if s.TargetModel == "" || s.BatchSize <= 0 {
		return false
	}
	switch s.Status {
	case StatusIdle, StatusRunning, StatusPaused, StatusCompleted:
	default:
		return false
	}
	return true
}

// Progress is emitted after each batch.
type Progress struct {
	MigratedCount int
	TotalRecords  int
	ProgressPct   float64
	BatchSize     int
	SuccessCount  int
	FailCount     int
}

// Embedder computes an embedding for content with the target model.
type Embedder func(ctx context.Context, content string) ([]float32, error)

// Engine drives one table's migration to a new embedding model.
type Engine struct {
	mu        sync.Mutex
	statePath string
	store     *memory.Store
	embed     Embedder
	pacer     *pacer
	state     State
	cancel    context.CancelFunc
	onProgress func(Progress)
}

// New creates an Engine for store's table, persisting state under dir.
func New(dir string, store *memory.Store, embed Embedder) *Engine {
	return &Engine{
		statePath: filepath.Join(dir, "migration-state.json"),
		store:     store,
		embed:     embed,
		pacer:     newPacer(),
		state:     State{Status: StatusIdle},
	}
}

// OnProgress registers a callback invoked after each batch.
func (e *Engine) OnProgress(fn func(Progress)) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.onProgress = fn
}

// Running implements memory.MigrationStatus.
func (e *Engine) Running(fqid string) (migratedUntilMs int64, running bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.state.Status == StatusRunning && e.state.TargetModel == fqid {
		return e.state.MigratedUntil, true
	}
	return 0, false
}

// Load reads persisted state, if any. A corrupt or invalid file is backed
// up (never deleted) and treated as idle.
func (e *Engine) Load() error {
	data, err := os.ReadFile(e.statePath)
	if os.IsNotExist(err) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("read migration state: %w", err)
	}
	var s State
	if err := json.Unmarshal(data, &s); err != nil || !s.valid() {
		backup := fmt.Sprintf("%s.corrupted.%s", e.statePath, time.Now().UTC().Format(time.RFC3339))
		_ = os.WriteFile(backup, data, 0644)
		logger.WarnCF("migration", "state file failed validation, backed up and reset to idle", map[string]interface{}{
			"backup": backup,
		})
		e.mu.Lock()
		e.state = State{Status: StatusIdle}
		e.mu.Unlock()
		return nil
	}
	e.mu.Lock()
	e.state = s
	e.mu.Unlock()
	return nil
}

func (e *Engine) saveLocked() error {
	data, err := json.Marshal(e.state)
	if err != nil {
		return fmt.Errorf("marshal migration state: %w", err)
	}
	tmp := e.statePath + ".tmp"
	f, err := os.OpenFile(tmp, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0644)
	if err != nil {
		return fmt.Errorf("write migration state tmp: %w", err)
	}
	if _, err := f.Write(data); err != nil {
		f.Close()
		return fmt.Errorf("write migration state tmp: %w", err)
	}
	if err := f.Sync(); err != nil {
		f.Close()
		return fmt.Errorf("sync migration state tmp: %w", err)
	}
	if err := f.Close(); err != nil {
		return fmt.Errorf("close migration state tmp: %w", err)
	}
	return os.Rename(tmp, e.statePath)
}

// Start begins migrating to targetModel with the given batch size,
// spawning the background worker. No-op if already running.
func (e *Engine) Start(ctx context.Context, targetModel string, batchSize int) error {
	e.mu.Lock()
	if e.state.Status == StatusRunning {
		e.mu.Unlock()
		return nil
	}
	if batchSize <= 0 {
		batchSize = 50
	}
	e.state = State{
		TargetModel:  targetModel,
		Status:       StatusRunning,
		TotalRecords: e.store.Table().TotalRows(),
		BatchSize:    batchSize,
		StartedAt:    time.Now(),
	}
	if err := e.saveLocked(); err != nil {
		e.mu.Unlock()
		return err
	}
	workerCtx, cancel := context.WithCancel(ctx)
	e.cancel = cancel
	e.mu.Unlock()

	go e.run(workerCtx)
	return nil
}

// Pause flips status to paused; the worker observes this and stops after
// its current batch.
func (e *Engine) Pause() {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.state.Status == StatusRunning {
		e.state.Status = StatusPaused
		_ = e.saveLocked()
	}
}

// Resume flips back to running and restarts the worker loop.
func (e *Engine) Resume(ctx context.Context) {
	e.mu.Lock()
	if e.state.Status != StatusPaused {
		e.mu.Unlock()
		return
	}
	e.state.Status = StatusRunning
	_ = e.saveLocked()
	workerCtx, cancel := context.WithCancel(ctx)
	e.cancel = cancel
	e.mu.Unlock()

	go e.run(workerCtx)
}

// Stop cancels the background worker without changing persisted status
// (used on process shutdown). A later Load restores that status but does
// not start a worker, and Start is a no-op while the status is running.
func (e *Engine) Stop() {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.cancel != nil {
		e.cancel()
	}
}

// State returns a snapshot of the current state.
func (e *Engine) State() State {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.state
}

// Confirm deletes the persisted migration state after a caller (e.g. an
// operator or cmd/agentd's startup check) has verified a completed
// migration's results. It is a no-op, returning an error, if the
// migration isn't in StatusCompleted — deletion is only ever a deliberate
// follow-up to completion, never automatic, so a crash between completion
// and confirmation always leaves state on disk to inspect or resume from.
func (e *Engine) Confirm() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.state.Status != StatusCompleted {
		return fmt.Errorf("migration: cannot confirm state in status %q", e.state.Status)
	}
	if err := os.Remove(e.statePath); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("migration: remove confirmed state: %w", err)
	}
	e.state = State{Status: StatusIdle}
	return nil
}

func (e *Engine) run(ctx context.Context) {
	for {
		e.mu.Lock()
		status := e.state.Status
		target := e.state.TargetModel
		batchSize := e.state.BatchSize
		cursor := e.state.MigratedUntil
		e.mu.Unlock()

		if status != StatusRunning {
			return
		}
		if ctx.Err() != nil {
			return
		}

		batch := e.store.Table().RowsNeedingColumn(target, cursor, batchSize)
		if len(batch) == 0 {
			e.mu.Lock()
			e.state.Status = StatusCompleted
			e.state.CompletedAt = time.Now()
			_ = e.saveLocked()
			e.mu.Unlock()
			logger.InfoCF("migration", "migration complete", map[string]interface{}{"target": target})
			return
		}

		start := time.Now()
		successCount, failCount := 0, 0
		for _, rec := range batch {
			vec, err := e.embed(ctx, rec.Content)
			if err != nil {
				e.recordFailure(rec.ID, err)
				failCount++
				metrics.MigrationFailures.WithLabelValues(target).Inc()
				continue
			}
			if err := e.store.Table().UpdateVector(ctx, rec.ID, target, vec); err != nil {
				e.recordFailure(rec.ID, err)
				failCount++
				metrics.MigrationFailures.WithLabelValues(target).Inc()
				continue
			}
			successCount++
			e.bumpProgress(rec)
		}
		elapsed := time.Since(start)
		avgPerRecord := elapsed / time.Duration(len(batch))

		e.mu.Lock()
		e.pacer.recordBatch(avgPerRecord, failCount > 0)
		interval := e.pacer.nextInterval()
		_ = e.saveLocked()
		progress := Progress{
			MigratedCount: e.state.MigratedCount,
			TotalRecords:  e.state.TotalRecords,
			BatchSize:     batchSize,
			SuccessCount:  successCount,
			FailCount:     failCount,
		}
		if progress.TotalRecords > 0 {
			progress.ProgressPct = float64(progress.MigratedCount) / float64(progress.TotalRecords) * 100
			metrics.MigrationProgress.WithLabelValues(target).Set(progress.ProgressPct / 100)
		}
		cb := e.onProgress
		e.mu.Unlock()

		if cb != nil {
			cb(progress)
		}

		select {
		case <-ctx.Done():
			return
		case <-time.After(interval):
		}
	}
}

func (e *Engine) recordFailure(id string, err error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.state.FailedRecords = append(e.state.FailedRecords, FailedRecord{ID: id, Error: err.Error(), Timestamp: time.Now()})
}

func (e *Engine) bumpProgress(rec memory.Entry) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.state.MigratedCount++
	ms := rec.CreatedAt.UnixMilli()
	if ms > e.state.MigratedUntil {
		e.state.MigratedUntil = ms
	}
}

// RetryFailed re-attempts selected (or all, if ids is empty) failed
// records; successes are removed from FailedRecords and bump MigratedCount.
func (e *Engine) RetryFailed(ctx context.Context, ids []string) error {
	e.mu.Lock()
	target := e.state.TargetModel
	toRetry := e.state.FailedRecords
	if len(ids) > 0 {
		wanted := make(map[string]bool, len(ids))
		for _, id := range ids {
			wanted[id] = true
		}
		var filtered []FailedRecord
		for _, f := range toRetry {
			if wanted[f.ID] {
				filtered = append(filtered, f)
			}
		}
		toRetry = filtered
	}
	e.mu.Unlock()

	var stillFailed []FailedRecord
	for _, f := range toRetry {
		entry, ok := e.store.Table().Get(f.ID)
		if !ok {
			continue
		}
		vec, err := e.embed(ctx, entry.Content)
		if err != nil {
			stillFailed = append(stillFailed, FailedRecord{ID: f.ID, Error: err.Error(), Timestamp: time.Now()})
			continue
		}
		if err := e.store.Table().UpdateVector(ctx, f.ID, target, vec); err != nil {
			stillFailed = append(stillFailed, FailedRecord{ID: f.ID, Error: err.Error(), Timestamp: time.Now()})
			continue
		}
		e.bumpProgress(entry)
	}

	e.mu.Lock()
	retried := make(map[string]bool, len(toRetry))
	for _, f := range toRetry {
		retried[f.ID] = true
	}
	var remaining []FailedRecord
	for _, f := range e.state.FailedRecords {
		if !retried[f.ID] {
			remaining = append(remaining, f)
		}
	}
	e.state.FailedRecords = append(remaining, stillFailed...)
	err := e.saveLocked()
	e.mu.Unlock()
	return err
}
