package progress

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"deepdive/api/internal/catalog"
)

const testCatalog = `
modules:
  - id: intro
    order: 1
    topics:
      - {id: a, title: A, order: 1, duration: 5}
      - {id: b, title: B, order: 2, duration: 3}
      - {id: c, title: C, order: 3, duration: 2}
  - id: deep
    order: 2
    topics:
      - {id: d, title: D, order: 1, duration: 7}
  - id: empty
    order: 3
`

func loadCatalog(t *testing.T) *catalog.Catalog {
	t.Helper()
	cat, err := catalog.Parse([]byte(testCatalog))
	require.NoError(t, err)
	return cat
}

func topic(t *testing.T, cat *catalog.Catalog, id string) catalog.Topic {
	t.Helper()
	tp, _, ok := cat.Topic(id)
	require.True(t, ok)
	return tp
}

func TestNewStateStartsAtFirstTopic(t *testing.T) {
	state := NewState(loadCatalog(t))
	assert.Equal(t, "intro", state.Progress.CurrentModule)
	require.NotNil(t, state.Progress.CurrentTopic)
	assert.Equal(t, "a", *state.Progress.CurrentTopic)
	assert.Empty(t, state.Progress.CompletedTopics)
}

func TestModuleProgressRounds(t *testing.T) {
	cat := loadCatalog(t)
	completed := TopicSet{"a": {}, "d": {}}

	got := ModuleProgress(cat, completed)
	assert.Equal(t, map[string]int{"intro": 33, "deep": 100, "empty": 0}, got)

	completed["b"] = struct{}{}
	assert.Equal(t, 67, ModuleProgress(cat, completed)["intro"])
	assert.Equal(t, 2, RemainingMinutes(cat, "intro", completed))
	assert.Equal(t, 0, RemainingMinutes(cat, "missing", completed))
}

func TestVisitAndEnterModule(t *testing.T) {
	cat := loadCatalog(t)
	state := NewState(cat)
	now := time.Date(2025, 3, 1, 9, 0, 0, 0, time.UTC)

	state.Visit(topic(t, cat, "d"), now)
	assert.Equal(t, "deep", state.Progress.CurrentModule)
	assert.Equal(t, "d", *state.Progress.CurrentTopic)
	assert.True(t, state.Progress.CompletedTopics.Has("d"))
	assert.Equal(t, now, state.Progress.LastAccessed)

	module, ok := cat.Module("empty")
	require.True(t, ok)
	state.EnterModule(module, now)
	assert.Equal(t, "empty", state.Progress.CurrentModule)
	assert.Nil(t, state.Progress.CurrentTopic)
}

func TestBookmarkToggleCarriesNote(t *testing.T) {
	cat := loadCatalog(t)
	state := NewState(cat)
	now := time.Date(2025, 3, 1, 9, 0, 0, 0, time.UTC)

	state.SetNote("b", "ask about pricing")
	assert.True(t, state.ToggleBookmark(topic(t, cat, "b"), now))
	require.Len(t, state.Bookmarks, 1)
	assert.Equal(t, Bookmark{TopicID: "b", ModuleID: "intro", Title: "B", AddedAt: now, Note: "ask about pricing"}, state.Bookmarks[0])

	state.SetNote("b", "updated")
	assert.Equal(t, "updated", state.Bookmarks[0].Note)

	assert.False(t, state.ToggleBookmark(topic(t, cat, "b"), now))
	assert.Empty(t, state.Bookmarks)
	assert.False(t, state.IsBookmarked("b"))

	state.SetNote("b", "")
	assert.NotContains(t, state.Progress.Notes, "b")
}

func TestProgressJSONMatchesBrowserShape(t *testing.T) {
	topicID := "b"
	p := Progress{
		CurrentModule:   "intro",
		CurrentTopic:    &topicID,
		CompletedTopics: TopicSet{"b": {}, "a": {}},
		Notes:           map[string]string{"a": "note"},
		LastAccessed:    time.Date(2025, 3, 1, 9, 0, 0, 0, time.UTC),
	}
	raw, err := json.Marshal(p)
	require.NoError(t, err)
	assert.JSONEq(t, `{
		"currentModule": "intro",
		"currentTopic": "b",
		"completedTopics": ["a", "b"],
		"notes": {"a": "note"},
		"lastAccessed": "2025-03-01T09:00:00Z"
	}`, string(raw))

	var decoded Progress
	require.NoError(t, json.Unmarshal([]byte(`{"currentModule":"intro","currentTopic":null,"completedTopics":["x","x","y"]}`), &decoded))
	assert.Nil(t, decoded.CurrentTopic)
	assert.Equal(t, []string{"x", "y"}, decoded.CompletedTopics.Sorted())
}
