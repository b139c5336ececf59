package session

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"deepdive/api/internal/content"
)

const (
	backupPrefix     = "content-backup:"
	defaultBackupTTL = 12 * time.Hour
)

// backupRecord is the JSON value stored per topic.
type backupRecord struct {
	TopicID    string    `json:"topicId"`
	RevisionID string    `json:"revisionId"`
	Content    string    `json:"content"`
	StoredAt   time.Time `json:"storedAt"`
}

// BackupStore keeps a copy of the last uploaded content per topic for the
// lifetime of a session. Entries expire with the session TTL.
type BackupStore struct {
	client *redis.Client
	prefix string
	ttl    time.Duration
	now    func() time.Time
}

func NewBackupStore(client *redis.Client, ttl time.Duration) *BackupStore {
	if ttl <= 0 {
		ttl = defaultBackupTTL
	}
	return &BackupStore{
		client: client,
		prefix: backupPrefix,
		ttl:    ttl,
		now:    time.Now,
	}
}

func (s *BackupStore) key(topicID string) string {
	return s.prefix + topicID
}

func (s *BackupStore) Put(ctx context.Context, topicID, revisionID, text string) error {
	data, err := json.Marshal(backupRecord{
		TopicID:    topicID,
		RevisionID: revisionID,
		Content:    text,
		StoredAt:   s.now().UTC(),
	})
	if err != nil {
		return fmt.Errorf("marshal backup: %w", err)
	}
	if err := s.client.Set(ctx, s.key(topicID), data, s.ttl).Err(); err != nil {
		return fmt.Errorf("save backup %s: %w", topicID, err)
	}
	return nil
}

func (s *BackupStore) Get(ctx context.Context, topicID string) (content.Revision, error) {
	raw, err := s.client.Get(ctx, s.key(topicID)).Bytes()
	if errors.Is(err, redis.Nil) {
		return content.Revision{}, fmt.Errorf("backup %s: %w", topicID, content.ErrNotFound)
	}
	if err != nil {
		return content.Revision{}, fmt.Errorf("lookup backup %s: %w", topicID, err)
	}

	var rec backupRecord
	if err := json.Unmarshal(raw, &rec); err != nil {
		return content.Revision{}, fmt.Errorf("unmarshal backup %s: %w", topicID, err)
	}
	return content.Revision{
		TopicID:    rec.TopicID,
		RevisionID: rec.RevisionID,
		Content:    rec.Content,
		CreatedAt:  rec.StoredAt,
	}, nil
}

func (s *BackupStore) Delete(ctx context.Context, topicID string) error {
	if err := s.client.Del(ctx, s.key(topicID)).Err(); err != nil {
		return fmt.Errorf("delete backup %s: %w", topicID, err)
	}
	return nil
}

func (s *BackupStore) Ping(ctx context.Context) error {
	return s.client.Ping(ctx).Err()
}
