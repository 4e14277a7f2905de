// Package session owns the process-wide, bounded session-history map: at
// most 50 turns per session, at most 1000 sessions, LRU eviction on
// insert. System turns are never stored — they are re-assembled every
// turn by the context builder.
package session

import (
	"container/list"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/lowbank/agentcore/pkg/providers"
)

const (
	maxHistoryTurns = 50
	maxSessions     = 1000
)

type entry struct {
	key     string
	history []providers.Message
	summary string
	elem    *list.Element
}

// Manager is the single owner of session history and per-session rolling
// summaries. It is safe for concurrent use.
type Manager struct {
	mu       sync.Mutex
	dir      string
	sessions map[string]*entry
	lru      *list.List // front = most recently touched
}

// NewManager creates a session manager backed by dir for crash-recovery
// snapshots (dir may be empty to disable persistence).
func NewManager(dir string) *Manager {
	if dir != "" {
		os.MkdirAll(dir, 0755)
	}
	return &Manager{
		dir:      dir,
		sessions: make(map[string]*entry),
		lru:      list.New(),
	}
}

func (m *Manager) touch(e *entry) {
	if e.elem != nil {
		m.lru.MoveToFront(e.elem)
		return
	}
	e.elem = m.lru.PushFront(e.key)
}

func (m *Manager) getOrCreateLocked(key string) *entry {
	e, ok := m.sessions[key]
	if !ok {
		e = &entry{key: key}
		m.sessions[key] = e
		m.evictIfNeededLocked()
	}
	m.touch(e)
	return e
}

// evictIfNeededLocked drops the least-recently-touched session once the
// process-wide count would exceed maxSessions.
func (m *Manager) evictIfNeededLocked() {
	for len(m.sessions) > maxSessions {
		back := m.lru.Back()
		if back == nil {
			return
		}
		key := back.Value.(string)
		m.lru.Remove(back)
		delete(m.sessions, key)
	}
}

// AddMessage appends a plain (role, content) turn. System turns are
// rejected — they must be assembled fresh each call by the context builder.
func (m *Manager) AddMessage(key, role, content string) {
	if role == "system" {
		return
	}
	m.AddFullMessage(key, providers.Message{Role: role, Content: content})
}

// AddFullMessage appends a turn carrying tool calls / tool-call IDs.
func (m *Manager) AddFullMessage(key string, msg providers.Message) {
	if msg.Role == "system" {
		return
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	e := m.getOrCreateLocked(key)
	e.history = append(e.history, msg)
	if len(e.history) > maxHistoryTurns {
		e.history = e.history[len(e.history)-maxHistoryTurns:]
	}
}

// GetHistory returns a copy of the session's turns, oldest first.
func (m *Manager) GetHistory(key string) []providers.Message {
	m.mu.Lock()
	defer m.mu.Unlock()
	e, ok := m.sessions[key]
	if !ok {
		return nil
	}
	m.touch(e)
	out := make([]providers.Message, len(e.history))
	copy(out, e.history)
	return out
}

// TruncateHistory keeps only the most recent `keep` turns, used by the
// summarizer after it rolls older turns into a summary.
func (m *Manager) TruncateHistory(key string, keep int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	e, ok := m.sessions[key]
	if !ok {
		return
	}
	if keep < 0 {
		keep = 0
	}
	if len(e.history) > keep {
		e.history = e.history[len(e.history)-keep:]
	}
}

// GetSummary returns the session's rolling summary, if any.
func (m *Manager) GetSummary(key string) string {
	m.mu.Lock()
	defer m.mu.Unlock()
	e, ok := m.sessions[key]
	if !ok {
		return ""
	}
	return e.summary
}

// SetSummary replaces the session's rolling summary.
func (m *Manager) SetSummary(key, summary string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	e := m.getOrCreateLocked(key)
	e.summary = summary
}

// Len returns the current turn count for key (for summarizer thresholds).
func (m *Manager) Len(key string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	e, ok := m.sessions[key]
	if !ok {
		return 0
	}
	return len(e.history)
}

// Sessions returns a snapshot of all known session keys.
func (m *Manager) Sessions() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	keys := make([]string, 0, len(m.sessions))
	for k := range m.sessions {
		keys = append(keys, k)
	}
	return keys
}

// Count returns the number of live sessions (bounded by maxSessions).
func (m *Manager) Count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.sessions)
}

type snapshot struct {
	History []providers.Message `json:"history"`
	Summary string               `json:"summary"`
}

// Save writes a crash-recovery snapshot of key's history+summary to disk.
func (m *Manager) Save(key string) error {
	if m.dir == "" {
		return nil
	}
	m.mu.Lock()
	e, ok := m.sessions[key]
	var snap snapshot
	if ok {
		snap = snapshot{History: append([]providers.Message(nil), e.history...), Summary: e.summary}
	}
	m.mu.Unlock()
	if !ok {
		return nil
	}
	data, err := json.Marshal(snap)
	if err != nil {
		return fmt.Errorf("marshal session %s: %w", key, err)
	}
	path := filepath.Join(m.dir, safeFileName(key)+".json")
	return os.WriteFile(path, data, 0644)
}

func safeFileName(key string) string {
	out := make([]byte, 0, len(key))
	for i := 0; i < len(key); i++ {
		c := key[i]
		switch {
		case c >= 'a' && c <= 'z', c >= 'A' && c <= 'Z', c >= '0' && c <= '9', c == '-', c == '_':
			out = append(out, c)
		default:
			out = append(out, '_')
		}
	}
	return string(out)
}
