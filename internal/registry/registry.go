// Package registry tracks the current revision id of each topic.
//
// The in-process map is a cache of the registry, not its source of truth;
// the config log holds every assignment and its newest entry wins.
package registry

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/rs/zerolog"

	"deepdive/api/internal/store"
)

const configPrefix = "content-version-"

// ConfigLog is the durable secondary store.
type ConfigLog interface {
	AppendConfig(ctx context.Context, entry store.ConfigEntry) error
	LatestConfig(ctx context.Context, configID string) (store.ConfigEntry, error)
}

type Registry struct {
	mu        sync.RWMutex
	primary   map[string]string
	secondary ConfigLog
	log       zerolog.Logger
}

// New returns a registry; secondary may be nil.
func New(secondary ConfigLog, log zerolog.Logger) *Registry {
	return &Registry{
		primary:   make(map[string]string),
		secondary: secondary,
		log:       log,
	}
}

func ConfigID(topicID string) string {
	return configPrefix + topicID
}

// Current returns the revision id last set for topicID, checking the
// in-process map before the config log.
func (r *Registry) Current(ctx context.Context, topicID string) (string, bool) {
	r.mu.RLock()
	id, ok := r.primary[topicID]
	r.mu.RUnlock()
	if ok {
		return id, true
	}
	if r.secondary == nil {
		return "", false
	}

	entry, err := r.secondary.LatestConfig(ctx, ConfigID(topicID))
	if err != nil {
		if !errors.Is(err, store.ErrNotFound) {
			r.log.Warn().Err(err).Str("topic", topicID).Msg("registry: config log lookup failed")
		}
		return "", false
	}

	r.mu.Lock()
	if _, set := r.primary[topicID]; !set {
		r.primary[topicID] = entry.Value
	}
	id = r.primary[topicID]
	r.mu.Unlock()
	return id, true
}

// Set records revisionID as current. The in-process map is always updated;
// the returned error reports a failed config log append.
func (r *Registry) Set(ctx context.Context, topicID, revisionID string) error {
	r.mu.Lock()
	r.primary[topicID] = revisionID
	r.mu.Unlock()

	if r.secondary == nil {
		return nil
	}
	err := r.secondary.AppendConfig(ctx, store.ConfigEntry{
		ConfigID:   ConfigID(topicID),
		ConfigType: store.ConfigTypeContentVersion,
		TopicID:    topicID,
		Value:      revisionID,
	})
	if err != nil {
		return fmt.Errorf("record version of %s: %w", topicID, err)
	}
	return nil
}

// Forget drops the cached entry for topicID.
func (r *Registry) Forget(topicID string) {
	r.mu.Lock()
	delete(r.primary, topicID)
	r.mu.Unlock()
}
