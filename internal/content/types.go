// Package content resolves topic content across the storage tiers.
//
// Reads consult the tiers in a fixed order (memory, blob, backup, log) and
// return the first hit. Writes go to every tier independently; a failing tier
// is recorded in the WriteResult and never fails the write as a whole.
package content

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
)

// Tier names one backing store of the pipeline.
type Tier string

const (
	TierMemory Tier = "memory"
	TierBlob   Tier = "blob"
	TierBackup Tier = "backup"
	TierLog    Tier = "log"
)

// Tiers lists every tier in read priority order.
var Tiers = []Tier{TierMemory, TierBlob, TierBackup, TierLog}

var (
	// ErrNotFound reports that a tier (or the whole pipeline) has no content for a topic.
	ErrNotFound = errors.New("content not found")
	// ErrInvalidTopic is returned for an empty topic id.
	ErrInvalidTopic = errors.New("invalid topic id")
)

// Revision is one uploaded version of a topic's content.
type Revision struct {
	TopicID    string
	RevisionID string
	Content    string
	CreatedAt  time.Time
}

// Lookup is the outcome of a successful read.
type Lookup struct {
	TopicID    string
	Content    string
	RevisionID string
	Source     Tier
}

// NewRevisionID returns a fresh revision identifier.
func NewRevisionID() string {
	return uuid.NewString()
}

// BlobTier is the persistent document store.
type BlobTier interface {
	Put(ctx context.Context, topicID, content string) error
	Get(ctx context.Context, topicID string) (string, error)
	Delete(ctx context.Context, topicID string) error
}

// BackupTier is the session-scoped copy of uploaded content.
type BackupTier interface {
	Put(ctx context.Context, topicID, revisionID, content string) error
	Get(ctx context.Context, topicID string) (Revision, error)
	Delete(ctx context.Context, topicID string) error
}

// LogTier is the append-only legacy log. Latest with an empty revisionID
// returns the newest entry for the topic.
type LogTier interface {
	Append(ctx context.Context, rev Revision) error
	Latest(ctx context.Context, topicID, revisionID string) (Revision, error)
}

// VersionRegistry tracks the current revision id per topic.
type VersionRegistry interface {
	Current(ctx context.Context, topicID string) (string, bool)
	Set(ctx context.Context, topicID, revisionID string) error
}

// Indexer receives content after a write, e.g. a search index.
type Indexer interface {
	IndexTopic(topicID, content string)
	DeleteTopic(topicID string)
}
