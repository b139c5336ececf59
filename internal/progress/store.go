package progress

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/redis/go-redis/v9"
)

// RedisStore keeps each viewer's progress and bookmarks under the same key
// names the browser uses, suffixed with the viewer id.
type RedisStore struct {
	client *redis.Client
}

func NewRedisStore(client *redis.Client) *RedisStore {
	return &RedisStore{client: client}
}

func progressKey(viewerID string) string  { return StorageKey + ":" + viewerID }
func bookmarksKey(viewerID string) string { return BookmarksKey + ":" + viewerID }

// Load returns the stored state and whether anything was stored.
func (s *RedisStore) Load(ctx context.Context, viewerID string) (State, bool, error) {
	values, err := s.client.MGet(ctx, progressKey(viewerID), bookmarksKey(viewerID)).Result()
	if err != nil {
		return State{}, false, fmt.Errorf("load progress: %w", err)
	}

	var state State
	found := false
	if raw, ok := values[0].(string); ok {
		found = true
		if err := json.Unmarshal([]byte(raw), &state.Progress); err != nil {
			return State{}, false, fmt.Errorf("decode progress: %w", err)
		}
	}
	if raw, ok := values[1].(string); ok {
		found = true
		if err := json.Unmarshal([]byte(raw), &state.Bookmarks); err != nil {
			return State{}, false, fmt.Errorf("decode bookmarks: %w", err)
		}
	}
	state.normalize()
	return state, found, nil
}

func (s *RedisStore) Save(ctx context.Context, viewerID string, state State) error {
	state.normalize()
	progressJSON, err := json.Marshal(state.Progress)
	if err != nil {
		return fmt.Errorf("encode progress: %w", err)
	}
	bookmarksJSON, err := json.Marshal(state.Bookmarks)
	if err != nil {
		return fmt.Errorf("encode bookmarks: %w", err)
	}

	_, err = s.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Set(ctx, progressKey(viewerID), progressJSON, 0)
		pipe.Set(ctx, bookmarksKey(viewerID), bookmarksJSON, 0)
		return nil
	})
	if err != nil {
		return fmt.Errorf("save progress: %w", err)
	}
	return nil
}

func (s *RedisStore) Delete(ctx context.Context, viewerID string) error {
	if err := s.client.Del(ctx, progressKey(viewerID), bookmarksKey(viewerID)).Err(); err != nil {
		return fmt.Errorf("delete progress: %w", err)
	}
	return nil
}
