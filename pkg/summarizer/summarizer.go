// Package summarizer generalizes the teacher's inline maybeSummarize /
// summarizeSession / summarizeBatch trio (pkg/agent/loop.go) into a
// standalone background watcher keyed by session, triggered by either a
// message-count threshold or session idle time.
package summarizer

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/adhocore/gronx"

	"github.com/lowbank/agentcore/pkg/gateway"
	"github.com/lowbank/agentcore/pkg/logger"
	"github.com/lowbank/agentcore/pkg/memory"
	"github.com/lowbank/agentcore/pkg/providers"
	"github.com/lowbank/agentcore/pkg/session"
)

const defaultMaxLength = 2000

// Config tunes the watcher.
type Config struct {
	MinMessages    int
	IdleTimeout    time.Duration
	MaxLength      int
	Model          string // "<provider>/<id>" used to produce summaries
	TickEvery      time.Duration
	RetentionDays  int // shortTermRetentionDays: summary/entity rows older than this are expired
	RetentionEvery time.Duration

	// RetentionCron, if set, overrides RetentionEvery with a cron-form
	// schedule (e.g. "0 */6 * * *") evaluated each tick via adhocore/gronx.
	// Leave empty to keep the adaptive interval default.
	RetentionCron string
}

// Watcher periodically checks every known session against the trigger
// conditions and, when met, produces and stores a condensed summary.
type Watcher struct {
	cfg      Config
	sessions *session.Manager
	store    *memory.Store
	gw       *gateway.Gateway

	mu              sync.Mutex
	lastActive      map[string]time.Time
	lastChecked     map[string]int // message count at last summarization, to avoid redundant triggers
	lastExpireSwept time.Time
}

// New creates a Watcher.
func New(cfg Config, sessions *session.Manager, store *memory.Store, gw *gateway.Gateway) *Watcher {
	if cfg.MinMessages <= 0 {
		cfg.MinMessages = 20
	}
	if cfg.MaxLength <= 0 {
		cfg.MaxLength = defaultMaxLength
	}
	if cfg.TickEvery <= 0 {
		cfg.TickEvery = 30 * time.Second
	}
	if cfg.RetentionEvery <= 0 {
		cfg.RetentionEvery = time.Hour
	}
	return &Watcher{
		cfg:         cfg,
		sessions:    sessions,
		store:       store,
		gw:          gw,
		lastActive:  make(map[string]time.Time),
		lastChecked: make(map[string]int),
	}
}

// Touch records that sessionKey just had activity, for idle-timeout
// tracking. The executor calls this after every processed turn.
func (w *Watcher) Touch(sessionKey string) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.lastActive[sessionKey] = time.Now()
}

// Run blocks, ticking until ctx is cancelled. Intended to be run in its
// own goroutine by cmd/agentd.
func (w *Watcher) Run(ctx context.Context) {
	ticker := time.NewTicker(w.cfg.TickEvery)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			w.sweep(ctx)
		}
	}
}

func (w *Watcher) sweep(ctx context.Context) {
	for _, key := range w.sessions.Sessions() {
		if w.shouldSummarize(key) {
			if err := w.summarize(ctx, key); err != nil {
				logger.WarnCF("summarizer", "summarization failed, will retry on next trigger", map[string]interface{}{
					"session": key, "error": err.Error(),
				})
			}
		}
	}
	w.maybeExpire(ctx)
}

func (w *Watcher) maybeExpire(ctx context.Context) {
	if w.cfg.RetentionDays <= 0 {
		return
	}
	if !w.retentionDue() {
		return
	}
	if _, err := w.store.ExpireOld(ctx, w.cfg.RetentionDays); err != nil {
		logger.WarnCF("summarizer", "retention sweep failed", map[string]interface{}{"error": err.Error()})
	}
}

// retentionDue decides whether this tick should run the retention sweep.
// When cfg.RetentionCron is set it overrides the adaptive RetentionEvery
// interval with an exact cron-form schedule (e.g. "0 */6 * * *"),
// evaluated against wall-clock time via adhocore/gronx. A malformed cron
// expression falls back to the adaptive interval rather than never firing.
func (w *Watcher) retentionDue() bool {
	now := time.Now()
	if w.cfg.RetentionCron != "" {
		due, err := gronx.IsDue(w.cfg.RetentionCron, now)
		if err != nil {
			logger.WarnCF("summarizer", "invalid retention cron expression, falling back to adaptive interval", map[string]interface{}{
				"cron": w.cfg.RetentionCron, "error": err.Error(),
			})
		} else {
			return due
		}
	}

	w.mu.Lock()
	due := time.Since(w.lastExpireSwept) >= w.cfg.RetentionEvery
	if due {
		w.lastExpireSwept = now
	}
	w.mu.Unlock()
	return due
}

func (w *Watcher) shouldSummarize(key string) bool {
	n := w.sessions.Len(key)
	if n == 0 {
		return false
	}

	w.mu.Lock()
	lastChecked := w.lastChecked[key]
	lastActive, hasActivity := w.lastActive[key]
	w.mu.Unlock()

	if n == lastChecked {
		return false // nothing new since the last summary attempt
	}
	if n >= w.cfg.MinMessages {
		return true
	}
	if hasActivity && w.cfg.IdleTimeout > 0 && time.Since(lastActive) >= w.cfg.IdleTimeout {
		return true
	}
	return false
}

func (w *Watcher) summarize(ctx context.Context, sessionKey string) error {
	history := w.sessions.GetHistory(sessionKey)
	if len(history) == 0 {
		return nil
	}
	existing := w.sessions.GetSummary(sessionKey)

	prompt := buildSummaryPrompt(history, existing, w.cfg.MaxLength)
	resp, err := w.gw.Chat(ctx, []providers.Message{{Role: "user", Content: prompt}}, nil, w.cfg.Model, map[string]interface{}{
		"max_tokens":  512,
		"temperature": 0.2,
	})
	if err != nil {
		return fmt.Errorf("summarize session %s: %w", sessionKey, err)
	}

	summary := truncateRunes(resp.Content, w.cfg.MaxLength)

	if _, err := w.store.StoreEntry(ctx, summary, "summary", sessionKey, map[string]interface{}{
		"turnCount": len(history),
	}, nil); err != nil {
		return fmt.Errorf("store summary for %s: %w", sessionKey, err)
	}

	w.sessions.SetSummary(sessionKey, summary)
	w.sessions.TruncateHistory(sessionKey, 0)

	w.mu.Lock()
	w.lastChecked[sessionKey] = 0
	w.mu.Unlock()

	logger.InfoCF("summarizer", "session summarized", map[string]interface{}{
		"session": sessionKey, "turns": len(history),
	})
	return nil
}

func buildSummaryPrompt(history []providers.Message, existingSummary string, maxLength int) string {
	var sb []byte
	sb = append(sb, []byte(fmt.Sprintf("Condense the following conversation into a summary of at most %d characters, preserving key facts, decisions, and open threads.\n\n", maxLength))...)
	if existingSummary != "" {
		sb = append(sb, []byte("Existing summary so far:\n"+existingSummary+"\n\n")...)
	}
	sb = append(sb, []byte("Conversation:\n")...)
	for _, m := range history {
		sb = append(sb, []byte(fmt.Sprintf("%s: %s\n", m.Role, m.Content))...)
	}
	return string(sb)
}

func truncateRunes(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n])
}
