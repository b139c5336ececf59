package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"
)

// Config entry types.
const (
	ConfigTypeContentVersion = "content-version"
	ConfigTypeTheme          = "theme"
)

// ConfigEntry is one record of the append-only config log. The current
// value of a config id is its newest entry.
type ConfigEntry struct {
	ID         int64     `json:"id"`
	ConfigID   string    `json:"configId"`
	ConfigType string    `json:"configType"`
	TopicID    string    `json:"topicId,omitempty"`
	Value      string    `json:"value"`
	SetBy      string    `json:"setBy,omitempty"`
	CreatedAt  time.Time `json:"createdAt"`
}

type ConfigLog struct {
	db *sql.DB
}

func NewConfigLog(db *sql.DB) *ConfigLog {
	return &ConfigLog{db: db}
}

func (l *ConfigLog) AppendConfig(ctx context.Context, entry ConfigEntry) error {
	createdAt := entry.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now().UTC()
	}
	_, err := l.db.ExecContext(ctx, `
		INSERT INTO config_log (config_id, config_type, topic_id, value, set_by, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)
	`, entry.ConfigID, entry.ConfigType, entry.TopicID, entry.Value, entry.SetBy, createdAt)
	if err != nil {
		return fmt.Errorf("insert config %s: %w", entry.ConfigID, err)
	}
	return nil
}

func (l *ConfigLog) LatestConfig(ctx context.Context, configID string) (ConfigEntry, error) {
	var entry ConfigEntry
	err := l.db.QueryRowContext(ctx, `
		SELECT id, config_id, config_type, topic_id, value, set_by, created_at
		FROM config_log
		WHERE config_id = $1
		ORDER BY id DESC
		LIMIT 1
	`, configID).Scan(&entry.ID, &entry.ConfigID, &entry.ConfigType, &entry.TopicID, &entry.Value, &entry.SetBy, &entry.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return ConfigEntry{}, fmt.Errorf("config %s: %w", configID, ErrNotFound)
	}
	if err != nil {
		return ConfigEntry{}, fmt.Errorf("read config %s: %w", configID, err)
	}
	return entry, nil
}
