package search

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"deepdive/api/internal/catalog"
	"deepdive/api/internal/content"
)

type fakeEngine struct {
	mu        sync.Mutex
	healthy   bool
	results   []Result
	searchErr error
	indexed   []TopicRecord
	deleted   []string
	calls     chan struct{}
}

func newFakeEngine(healthy bool) *fakeEngine {
	return &fakeEngine{healthy: healthy, calls: make(chan struct{}, 8)}
}

func (f *fakeEngine) Healthy() bool { return f.healthy }

func (f *fakeEngine) Search(Query) ([]Result, int, error) {
	if f.searchErr != nil {
		return nil, 0, f.searchErr
	}
	return f.results, len(f.results), nil
}

func (f *fakeEngine) IndexTopics(records []TopicRecord) error {
	f.mu.Lock()
	f.indexed = append(f.indexed, records...)
	f.mu.Unlock()
	f.calls <- struct{}{}
	return nil
}

func (f *fakeEngine) DeleteTopic(id string) error {
	f.mu.Lock()
	f.deleted = append(f.deleted, id)
	f.mu.Unlock()
	f.calls <- struct{}{}
	return nil
}

func (f *fakeEngine) wait(t *testing.T) {
	t.Helper()
	select {
	case <-f.calls:
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for engine call")
	}
}

type fakeContent struct {
	revisions []content.Revision
	err       error
}

func (f fakeContent) SearchLatest(_ context.Context, query string, _ int) ([]content.Revision, error) {
	if f.err != nil {
		return nil, f.err
	}
	var out []content.Revision
	for _, rev := range f.revisions {
		if strings.Contains(strings.ToLower(rev.Content), query) {
			out = append(out, rev)
		}
	}
	return out, nil
}

type fakeLatest map[string]string

func (f fakeLatest) LatestPerTopic(context.Context) (map[string]string, error) { return f, nil }

func loadCatalog(t *testing.T) *catalog.Catalog {
	t.Helper()
	cat, err := catalog.Load()
	require.NoError(t, err)
	return cat
}

func TestFallbackRanksTitleOverTagOverContent(t *testing.T) {
	cat := loadCatalog(t)
	fb := NewFallback(cat, fakeContent{revisions: []content.Revision{
		{TopicID: "saas-gen3", Content: "Grail replaces the offline store."},
	}})

	results, err := fb.Search(context.Background(), Query{Text: "Offline"})
	require.NoError(t, err)
	require.NotEmpty(t, results)

	assert.Equal(t, "managed-offline", results[0].TopicID)
	assert.Equal(t, relevanceTitle, results[0].Relevance)
	assert.Equal(t, "architectures", results[0].ModuleID)

	last := results[len(results)-1]
	assert.Equal(t, "saas-gen3", last.TopicID)
	assert.Equal(t, relevanceContent, last.Relevance)
	assert.Equal(t, "Dynatrace SaaS Gen3", last.Title)
	assert.Contains(t, last.Excerpt, "offline store")
}

func TestFallbackKeepsBestRelevancePerTopic(t *testing.T) {
	cat := loadCatalog(t)
	fb := NewFallback(cat, fakeContent{revisions: []content.Revision{
		{TopicID: "managed-offline", Content: "All about offline clusters."},
	}})

	results, err := fb.Search(context.Background(), Query{Text: "offline", ModuleID: "architectures"})
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, relevanceTitle, results[0].Relevance)
	assert.Equal(t, "All about offline clusters.", results[0].Excerpt)
}

func TestFallbackUnknownTopicUsesID(t *testing.T) {
	fb := NewFallback(loadCatalog(t), fakeContent{revisions: []content.Revision{
		{TopicID: "scratch", Content: "zebra notes"},
	}})

	results, err := fb.Search(context.Background(), Query{Text: "zebra"})
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, Result{TopicID: "scratch", Title: "scratch", Excerpt: "zebra notes", Relevance: relevanceContent}, results[0])
}

func TestFallbackEmptyQuery(t *testing.T) {
	results, err := NewFallback(loadCatalog(t), nil).Search(context.Background(), Query{Text: "   "})
	require.NoError(t, err)
	assert.Empty(t, results)
}

func TestFallbackLimit(t *testing.T) {
	results, err := NewFallback(loadCatalog(t), nil).Search(context.Background(), Query{Text: "a", Limit: 3})
	require.NoError(t, err)
	assert.Len(t, results, 3)
}

func TestServiceUsesEngineWhenHealthy(t *testing.T) {
	engine := newFakeEngine(true)
	engine.results = []Result{{TopicID: "academy", Relevance: 0.9}}
	svc := NewService(engine, NewFallback(loadCatalog(t), nil), loadCatalog(t), zerolog.Nop())

	resp := svc.Search(context.Background(), Query{Text: "academy"})
	assert.Equal(t, EngineMeili, resp.Engine)
	assert.Equal(t, 1, resp.Total)
	assert.Equal(t, "academy", resp.Results[0].TopicID)
}

func TestServiceFallsBack(t *testing.T) {
	cat := loadCatalog(t)
	cases := map[string]Engine{
		"not configured": nil,
		"unhealthy":      newFakeEngine(false),
		"search error":   &fakeEngine{healthy: true, searchErr: errors.New("boom")},
	}
	for name, engine := range cases {
		t.Run(name, func(t *testing.T) {
			svc := NewService(engine, NewFallback(cat, nil), cat, zerolog.Nop())
			resp := svc.Search(context.Background(), Query{Text: "Shell"})
			assert.Equal(t, EngineFallback, resp.Engine)
			require.NotEmpty(t, resp.Results)
			assert.Equal(t, "shell", resp.Results[0].TopicID)
		})
	}
}

func TestServiceContentErrorStillReturnsCatalogHits(t *testing.T) {
	cat := loadCatalog(t)
	svc := NewService(nil, NewFallback(cat, fakeContent{err: errors.New("db down")}), cat, zerolog.Nop())

	resp := svc.Search(context.Background(), Query{Text: "Shell"})
	require.NotEmpty(t, resp.Results)
	assert.Equal(t, "shell", resp.Results[0].TopicID)
}

func TestServiceIndexAndDeleteTopic(t *testing.T) {
	cat := loadCatalog(t)
	engine := newFakeEngine(true)
	svc := NewService(engine, NewFallback(cat, nil), cat, zerolog.Nop())

	svc.IndexTopic("academy", "# Academy")
	engine.wait(t)
	svc.DeleteTopic("academy")
	engine.wait(t)

	engine.mu.Lock()
	defer engine.mu.Unlock()
	require.Len(t, engine.indexed, 1)
	assert.Equal(t, "challenges", engine.indexed[0].ModuleID)
	assert.Equal(t, "# Academy", engine.indexed[0].Content)
	assert.Equal(t, []string{"academy"}, engine.deleted)
}

func TestServiceSkipsIndexingWhenUnhealthy(t *testing.T) {
	cat := loadCatalog(t)
	engine := newFakeEngine(false)
	svc := NewService(engine, NewFallback(cat, nil), cat, zerolog.Nop())

	svc.IndexTopic("academy", "x")
	svc.DeleteTopic("academy")
	assert.Equal(t, 0, svc.Reindex(context.Background(), fakeLatest{}))
	assert.Empty(t, engine.calls)
}

func TestServiceReindex(t *testing.T) {
	cat := loadCatalog(t)
	engine := newFakeEngine(true)
	svc := NewService(engine, NewFallback(cat, nil), cat, zerolog.Nop())

	n := svc.Reindex(context.Background(), fakeLatest{"shell": "finops", "orphan": "draft"})
	assert.Equal(t, len(cat.AllTopics())+1, n)

	engine.mu.Lock()
	defer engine.mu.Unlock()
	byID := map[string]TopicRecord{}
	for _, r := range engine.indexed {
		byID[r.ID] = r
	}
	assert.Equal(t, "finops", byID["shell"].Content)
	assert.Equal(t, "orphan", byID["orphan"].Title)
	assert.Empty(t, byID["academy"].Content)
}

func TestExcerpt(t *testing.T) {
	long := strings.Repeat("lorem ", 40) + "NEEDLE" + strings.Repeat(" ipsum", 40)
	got := Excerpt(long, "needle")
	assert.True(t, strings.HasPrefix(got, "…"))
	assert.True(t, strings.HasSuffix(got, "…"))
	assert.Contains(t, got, "NEEDLE")

	assert.Equal(t, "short text", Excerpt("short \n text", "zzz"))
}
