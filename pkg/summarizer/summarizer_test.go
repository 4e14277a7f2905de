package summarizer

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lowbank/agentcore/pkg/gateway"
	"github.com/lowbank/agentcore/pkg/memory"
	"github.com/lowbank/agentcore/pkg/providers"
	"github.com/lowbank/agentcore/pkg/session"
)

type fakeProvider struct{ reply string }

func (p *fakeProvider) Chat(ctx context.Context, messages []providers.Message, tools []providers.ToolDefinition, model string, options map[string]interface{}) (*providers.LLMResponse, error) {
	return &providers.LLMResponse{Content: p.reply}, nil
}
func (p *fakeProvider) GetDefaultModel() string { return "fake" }

func newTestWatcher(t *testing.T, cfg Config) (*Watcher, *session.Manager, *memory.Store) {
	t.Helper()
	sessions := session.NewManager("")
	store, err := memory.NewStore(t.TempDir(), "", 5, 10)
	require.NoError(t, err)
	gw := gateway.New()
	gw.Register(gateway.Entry{Name: "acme", Provider: &fakeProvider{reply: "condensed summary"}, Patterns: []string{"*"}})
	if cfg.Model == "" {
		cfg.Model = "acme/chat-1"
	}
	return New(cfg, sessions, store, gw), sessions, store
}

func TestShouldSummarize_MessageCountThreshold(t *testing.T) {
	w, sessions, _ := newTestWatcher(t, Config{MinMessages: 3})
	for i := 0; i < 2; i++ {
		sessions.AddMessage("s1", "user", "hi")
	}
	assert.False(t, w.shouldSummarize("s1"))

	sessions.AddMessage("s1", "user", "one more")
	assert.True(t, w.shouldSummarize("s1"))
}

func TestShouldSummarize_IdleTimeout(t *testing.T) {
	w, sessions, _ := newTestWatcher(t, Config{MinMessages: 100, IdleTimeout: 10 * time.Millisecond})
	sessions.AddMessage("s1", "user", "hi")
	w.Touch("s1")

	assert.False(t, w.shouldSummarize("s1"))
	time.Sleep(20 * time.Millisecond)
	assert.True(t, w.shouldSummarize("s1"))
}

func TestShouldSummarize_EmptySession(t *testing.T) {
	w, _, _ := newTestWatcher(t, Config{MinMessages: 3})
	assert.False(t, w.shouldSummarize("nonexistent"))
}

func TestSummarize_StoresEntryAndTruncatesHistory(t *testing.T) {
	w, sessions, store := newTestWatcher(t, Config{MinMessages: 3, MaxLength: 100})
	sessions.AddMessage("s1", "user", "hello")
	sessions.AddMessage("s1", "assistant", "hi there")

	require.NoError(t, w.summarize(context.Background(), "s1"))

	assert.Equal(t, "condensed summary", sessions.GetSummary("s1"))
	assert.Equal(t, 0, sessions.Len("s1"))

	results, err := store.Search(context.Background(), "condensed", memory.SearchOptions{Mode: memory.SearchFulltext, SessionID: "s1"})
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, "summary", results[0].Type)
}

func TestRetentionDue_AdaptiveInterval(t *testing.T) {
	w, _, _ := newTestWatcher(t, Config{RetentionEvery: 10 * time.Millisecond})
	assert.True(t, w.retentionDue(), "first check should always be due")
	assert.False(t, w.retentionDue(), "immediately re-checking should not be due yet")
	time.Sleep(15 * time.Millisecond)
	assert.True(t, w.retentionDue())
}

func TestRetentionDue_CronOverride(t *testing.T) {
	w, _, _ := newTestWatcher(t, Config{RetentionCron: "* * * * *"})
	// "every minute" always matches, regardless of reference time.
	assert.True(t, w.retentionDue())
	assert.True(t, w.retentionDue(), "cron override doesn't track lastExpireSwept")
}

func TestRetentionDue_MalformedCronFallsBackToAdaptive(t *testing.T) {
	w, _, _ := newTestWatcher(t, Config{RetentionCron: "not a cron expression", RetentionEvery: time.Hour})
	assert.True(t, w.retentionDue(), "first adaptive check should fire despite the bad cron expression")
}
