package search

import (
	"context"

	"github.com/rs/zerolog"

	"deepdive/api/internal/catalog"
)

const (
	EngineMeili    = "meilisearch"
	EngineFallback = "fallback"
)

// Service is the facade that tries Meilisearch first and falls back to the
// catalog and content log.
type Service struct {
	engine   Engine
	fallback *Fallback
	catalog  *catalog.Catalog
	log      zerolog.Logger
}

// NewService creates a search service. engine may be nil if Meilisearch is not configured.
func NewService(engine Engine, fallback *Fallback, cat *catalog.Catalog, log zerolog.Logger) *Service {
	return &Service{engine: engine, fallback: fallback, catalog: cat, log: log}
}

func (s *Service) Search(ctx context.Context, q Query) Response {
	if s.engine != nil && s.engine.Healthy() {
		results, total, err := s.engine.Search(q)
		if err == nil {
			return Response{Results: nonNil(results), Total: total, Query: q.Text, Engine: EngineMeili}
		}
		s.log.Warn().Err(err).Msg("meilisearch error, falling back")
	}

	results, err := s.fallback.Search(ctx, q)
	if err != nil {
		s.log.Warn().Err(err).Msg("content log search failed, returning catalog matches only")
	}
	results = nonNil(results)
	return Response{Results: results, Total: len(results), Query: q.Text, Engine: EngineFallback}
}

// IndexTopic indexes uploaded content (fire-and-forget to Meilisearch).
func (s *Service) IndexTopic(topicID, text string) {
	if s.engine == nil || !s.engine.Healthy() {
		return
	}
	record := s.record(topicID, text)
	go func() {
		if err := s.engine.IndexTopics([]TopicRecord{record}); err != nil {
			s.log.Warn().Err(err).Str("topic", topicID).Msg("index topic")
		}
	}()
}

// DeleteTopic removes a topic from the search index (fire-and-forget).
func (s *Service) DeleteTopic(topicID string) {
	if s.engine == nil || !s.engine.Healthy() {
		return
	}
	go func() {
		if err := s.engine.DeleteTopic(topicID); err != nil {
			s.log.Warn().Err(err).Str("topic", topicID).Msg("delete topic from index")
		}
	}()
}

// LatestSource lists the newest content of every topic.
type LatestSource interface {
	LatestPerTopic(ctx context.Context) (map[string]string, error)
}

// Reindex pushes every catalog topic, with its latest logged content, into
// Meilisearch. It returns the number of records sent.
func (s *Service) Reindex(ctx context.Context, src LatestSource) int {
	if s.engine == nil || !s.engine.Healthy() {
		return 0
	}
	latest := map[string]string{}
	if src != nil {
		loaded, err := src.LatestPerTopic(ctx)
		if err != nil {
			s.log.Warn().Err(err).Msg("reindex: load latest content")
		} else {
			latest = loaded
		}
	}

	records := make([]TopicRecord, 0, len(latest))
	seen := map[string]bool{}
	for _, topic := range s.catalog.AllTopics() {
		records = append(records, s.record(topic.ID, latest[topic.ID]))
		seen[topic.ID] = true
	}
	for topicID, text := range latest {
		if !seen[topicID] {
			records = append(records, s.record(topicID, text))
		}
	}
	if err := s.engine.IndexTopics(records); err != nil {
		s.log.Warn().Err(err).Msg("reindex topics")
		return 0
	}
	s.log.Info().Int("topics", len(records)).Msg("search index rebuilt")
	return len(records)
}

func (s *Service) record(topicID, text string) TopicRecord {
	record := TopicRecord{ID: topicID, Title: topicID, Content: text, Tags: []string{}}
	if topic, _, ok := s.catalog.Topic(topicID); ok {
		record.ModuleID = topic.ModuleID
		record.Title = topic.Title
		if topic.Tags != nil {
			record.Tags = topic.Tags
		}
	}
	return record
}

func nonNil(r []Result) []Result {
	if r == nil {
		return []Result{}
	}
	return r
}
