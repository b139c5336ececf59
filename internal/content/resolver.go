package content

import (
	"context"
	"errors"
	"sync"
	"time"
	"unicode/utf8"

	"github.com/rs/zerolog"

	"deepdive/api/internal/metrics"
)

// Resolver is the single entry point for reading and writing topic content.
// Any tier may be nil, in which case it is skipped on both paths.
type Resolver struct {
	cache    *Cache
	blob     BlobTier
	backup   BackupTier
	log      LogTier
	registry VersionRegistry
	indexer  Indexer
	logger   zerolog.Logger
	now      func() time.Time

	lockTopics bool
	lockMu     sync.Mutex
	locks      map[string]*sync.Mutex
}

type Option func(*Resolver)

func WithLogger(logger zerolog.Logger) Option {
	return func(r *Resolver) { r.logger = logger }
}

// WithIndexer forwards every successful write to idx.
func WithIndexer(idx Indexer) Option {
	return func(r *Resolver) { r.indexer = idx }
}

// WithTopicLocks serializes concurrent writes to the same topic within this process.
func WithTopicLocks() Option {
	return func(r *Resolver) { r.lockTopics = true }
}

func WithClock(now func() time.Time) Option {
	return func(r *Resolver) { r.now = now }
}

func NewResolver(cache *Cache, blob BlobTier, backup BackupTier, log LogTier, registry VersionRegistry, opts ...Option) *Resolver {
	r := &Resolver{
		cache:    cache,
		blob:     blob,
		backup:   backup,
		log:      log,
		registry: registry,
		logger:   zerolog.Nop(),
		now:      time.Now,
		locks:    make(map[string]*sync.Mutex),
	}
	for _, opt := range opts {
		opt(r)
	}
	if r.cache == nil {
		r.cache = NewCache(time.Hour, r.now)
	}
	return r
}

// Cache exposes the memory tier so callers can Reset it.
func (r *Resolver) Cache() *Cache {
	return r.cache
}

// Read returns the content of a topic or ErrNotFound when every tier misses.
func (r *Resolver) Read(ctx context.Context, topicID string) (string, error) {
	found, err := r.Lookup(ctx, topicID)
	if err != nil {
		return "", err
	}
	return found.Content, nil
}

// Lookup is Read with the answering tier and revision attached. Tier failures
// are logged and treated as misses; only ErrNotFound and ErrInvalidTopic are returned.
func (r *Resolver) Lookup(ctx context.Context, topicID string) (Lookup, error) {
	if topicID == "" {
		return Lookup{}, ErrInvalidTopic
	}
	started := time.Now()

	if entry, ok := r.cache.Get(topicID); ok {
		metrics.TierLookups.WithLabelValues(string(TierMemory), metrics.ResultHit).Inc()
		return r.found(started, Lookup{TopicID: topicID, Content: entry.Content, RevisionID: entry.RevisionID, Source: TierMemory}), nil
	}
	metrics.TierLookups.WithLabelValues(string(TierMemory), metrics.ResultMiss).Inc()

	if r.blob != nil {
		text, err := r.blob.Get(ctx, topicID)
		if r.observe(TierBlob, topicID, err) {
			revisionID := r.currentRevision(ctx, topicID)
			r.cache.Set(topicID, text, revisionID)
			return r.found(started, Lookup{TopicID: topicID, Content: text, RevisionID: revisionID, Source: TierBlob}), nil
		}
	}

	if r.backup != nil {
		rev, err := r.backup.Get(ctx, topicID)
		if r.observe(TierBackup, topicID, err) {
			r.cache.Set(topicID, rev.Content, rev.RevisionID)
			return r.found(started, Lookup{TopicID: topicID, Content: rev.Content, RevisionID: rev.RevisionID, Source: TierBackup}), nil
		}
	}

	if r.log != nil {
		rev, err := r.log.Latest(ctx, topicID, r.currentRevision(ctx, topicID))
		if r.observe(TierLog, topicID, err) {
			r.cache.Set(topicID, rev.Content, rev.RevisionID)
			return r.found(started, Lookup{TopicID: topicID, Content: rev.Content, RevisionID: rev.RevisionID, Source: TierLog}), nil
		}
	}

	metrics.ReadDuration.WithLabelValues("none").Observe(time.Since(started).Seconds())
	r.logger.Debug().Str("topic", topicID).Msg("no content in any tier")
	return Lookup{}, ErrNotFound
}

// currentRevision is the registry's revision for topicID, or "" when unknown.
func (r *Resolver) currentRevision(ctx context.Context, topicID string) string {
	if r.registry == nil {
		return ""
	}
	current, ok := r.registry.Current(ctx, topicID)
	if !ok {
		return ""
	}
	return current
}

func (r *Resolver) found(started time.Time, l Lookup) Lookup {
	metrics.ReadDuration.WithLabelValues(string(l.Source)).Observe(time.Since(started).Seconds())
	r.logger.Debug().
		Str("topic", l.TopicID).
		Str("tier", string(l.Source)).
		Str("revision", l.RevisionID).
		Int("chars", utf8.RuneCountInString(l.Content)).
		Msg("content resolved")
	return l
}

// observe records a tier lookup and reports whether it was a hit.
func (r *Resolver) observe(tier Tier, topicID string, err error) bool {
	switch {
	case err == nil:
		metrics.TierLookups.WithLabelValues(string(tier), metrics.ResultHit).Inc()
		return true
	case errors.Is(err, ErrNotFound):
		metrics.TierLookups.WithLabelValues(string(tier), metrics.ResultMiss).Inc()
		r.logger.Debug().Str("topic", topicID).Str("tier", string(tier)).Msg("tier miss")
	default:
		metrics.TierLookups.WithLabelValues(string(tier), metrics.ResultError).Inc()
		r.logger.Warn().Err(err).Str("topic", topicID).Str("tier", string(tier)).Msg("tier unavailable, trying next")
	}
	return false
}

// Write stores content under a new revision in every tier. The memory write
// cannot fail, so the returned result always names a readable revision;
// failures of the other tiers are reported in the result, not as an error.
func (r *Resolver) Write(ctx context.Context, topicID, content string) (WriteResult, error) {
	if topicID == "" {
		return WriteResult{}, ErrInvalidTopic
	}
	if r.lockTopics {
		lock := r.topicLock(topicID)
		lock.Lock()
		defer lock.Unlock()
	}

	revisionID := NewRevisionID()
	result := newWriteResult(topicID, revisionID)

	r.cache.Set(topicID, content, revisionID)
	result.Tiers[TierMemory] = nil

	if r.blob != nil {
		result.Tiers[TierBlob] = r.blob.Put(ctx, topicID, content)
	}
	if r.backup != nil {
		result.Tiers[TierBackup] = r.backup.Put(ctx, topicID, revisionID, content)
	}
	if r.log != nil {
		err := r.log.Append(ctx, Revision{
			TopicID:    topicID,
			RevisionID: revisionID,
			Content:    content,
			CreatedAt:  r.now().UTC(),
		})
		result.Tiers[TierLog] = err
		// The registry must not point at a revision the log does not hold.
		if err == nil && r.registry != nil {
			result.Registry = r.registry.Set(ctx, topicID, revisionID)
		}
	}

	for _, tier := range result.Failed() {
		metrics.TierWriteFailures.WithLabelValues(string(tier)).Inc()
		r.logger.Warn().Err(result.Tiers[tier]).Str("topic", topicID).Str("revision", revisionID).Str("tier", string(tier)).Msg("tier write failed")
	}
	if result.Registry != nil {
		metrics.TierWriteFailures.WithLabelValues("registry").Inc()
		r.logger.Warn().Err(result.Registry).Str("topic", topicID).Str("revision", revisionID).Msg("version registry update failed")
	}

	if r.indexer != nil {
		r.indexer.IndexTopic(topicID, content)
	}

	r.logger.Info().
		Str("topic", topicID).
		Str("revision", revisionID).
		Int("chars", utf8.RuneCountInString(content)).
		Int("failed_tiers", len(result.Failed())).
		Msg("content written")
	return result, nil
}

// Delete removes a topic from the memory, backup and blob tiers. The log is
// append-only, so the last logged revision stays readable afterwards and is
// what the indexer is given; the topic leaves the index only when the log
// has nothing for it.
func (r *Resolver) Delete(ctx context.Context, topicID string) (DeleteResult, error) {
	if topicID == "" {
		return DeleteResult{}, ErrInvalidTopic
	}
	if r.lockTopics {
		lock := r.topicLock(topicID)
		lock.Lock()
		defer lock.Unlock()
	}

	result := DeleteResult{TopicID: topicID, Tiers: make(map[Tier]error, 3)}
	r.cache.Delete(topicID)
	result.Tiers[TierMemory] = nil
	if r.blob != nil {
		result.Tiers[TierBlob] = r.blob.Delete(ctx, topicID)
	}
	if r.backup != nil {
		result.Tiers[TierBackup] = r.backup.Delete(ctx, topicID)
	}
	if r.indexer != nil {
		r.reindexAfterDelete(ctx, topicID)
	}
	if err := result.Err(); err != nil {
		r.logger.Warn().Err(err).Str("topic", topicID).Msg("content delete incomplete")
	} else {
		r.logger.Info().Str("topic", topicID).Msg("content deleted")
	}
	return result, nil
}

func (r *Resolver) reindexAfterDelete(ctx context.Context, topicID string) {
	if r.log != nil {
		rev, err := r.log.Latest(ctx, topicID, r.currentRevision(ctx, topicID))
		if err == nil {
			r.indexer.IndexTopic(topicID, rev.Content)
			return
		}
		if !errors.Is(err, ErrNotFound) {
			r.logger.Warn().Err(err).Str("topic", topicID).Msg("log unavailable, dropping topic from index")
		}
	}
	r.indexer.DeleteTopic(topicID)
}

func (r *Resolver) topicLock(topicID string) *sync.Mutex {
	r.lockMu.Lock()
	defer r.lockMu.Unlock()
	lock, ok := r.locks[topicID]
	if ok {
		return lock
	}
	lock = &sync.Mutex{}
	r.locks[topicID] = lock
	return lock
}
