package search

import (
	"context"
	"sort"
	"strings"
	"unicode/utf8"

	"deepdive/api/internal/catalog"
	"deepdive/api/internal/content"
)

const (
	relevanceTitle   = 1.0
	relevanceTag     = 0.8
	relevanceContent = 0.5

	excerptRadius = 80
)

// ContentSearcher matches text against the newest revision of every topic.
type ContentSearcher interface {
	SearchLatest(ctx context.Context, query string, limit int) ([]content.Revision, error)
}

// Fallback answers queries from the catalog and, when available, the
// content log. It is used whenever Meilisearch is down or not configured.
type Fallback struct {
	catalog *catalog.Catalog
	content ContentSearcher
}

func NewFallback(cat *catalog.Catalog, contentSearcher ContentSearcher) *Fallback {
	return &Fallback{catalog: cat, content: contentSearcher}
}

func (f *Fallback) Search(ctx context.Context, q Query) ([]Result, error) {
	text := strings.ToLower(strings.TrimSpace(q.Text))
	if text == "" {
		return []Result{}, nil
	}

	hits := map[string]Result{}
	keep := func(r Result) {
		if q.ModuleID != "" && r.ModuleID != q.ModuleID {
			return
		}
		if prev, ok := hits[r.TopicID]; ok {
			if prev.Relevance >= r.Relevance {
				if prev.Excerpt == "" {
					prev.Excerpt = r.Excerpt
					hits[r.TopicID] = prev
				}
				return
			}
			if r.Excerpt == "" {
				r.Excerpt = prev.Excerpt
			}
		}
		hits[r.TopicID] = r
	}

	for _, topic := range f.catalog.AllTopics() {
		r := Result{TopicID: topic.ID, ModuleID: topic.ModuleID, Title: topic.Title}
		switch {
		case strings.Contains(strings.ToLower(topic.Title), text):
			r.Relevance = relevanceTitle
		case hasTag(topic.Tags, text):
			r.Relevance = relevanceTag
		default:
			continue
		}
		keep(r)
	}

	var contentErr error
	if f.content != nil {
		revisions, err := f.content.SearchLatest(ctx, text, limitOf(q))
		if err != nil {
			contentErr = err
		}
		for _, rev := range revisions {
			r := Result{TopicID: rev.TopicID, Title: rev.TopicID, Relevance: relevanceContent, Excerpt: Excerpt(rev.Content, text)}
			if topic, _, ok := f.catalog.Topic(rev.TopicID); ok {
				r.ModuleID = topic.ModuleID
				r.Title = topic.Title
			}
			keep(r)
		}
	}

	results := make([]Result, 0, len(hits))
	for _, r := range hits {
		results = append(results, r)
	}
	sort.Slice(results, func(i, j int) bool {
		if results[i].Relevance != results[j].Relevance {
			return results[i].Relevance > results[j].Relevance
		}
		return results[i].TopicID < results[j].TopicID
	})
	if limit := limitOf(q); len(results) > limit {
		results = results[:limit]
	}
	return results, contentErr
}

func hasTag(tags []string, text string) bool {
	for _, tag := range tags {
		if strings.Contains(strings.ToLower(tag), text) {
			return true
		}
	}
	return false
}

// Excerpt returns the text around the first case-insensitive match of
// query, trimmed to whole runes and marked with ellipses where cut.
func Excerpt(text, query string) string {
	lower := strings.ToLower(text)
	idx := strings.Index(lower, strings.ToLower(query))
	// ToLower can change byte lengths; only trust the offset if it still
	// lines up with the original text.
	if idx < 0 || len(lower) != len(text) {
		idx = 0
	}

	start := idx - excerptRadius
	if start < 0 {
		start = 0
	}
	end := idx + len(query) + excerptRadius
	if end > len(text) {
		end = len(text)
	}
	for start > 0 && !utf8.RuneStart(text[start]) {
		start--
	}
	for end < len(text) && !utf8.RuneStart(text[end]) {
		end++
	}

	out := strings.Join(strings.Fields(text[start:end]), " ")
	if start > 0 {
		out = "…" + out
	}
	if end < len(text) {
		out += "…"
	}
	return out
}
