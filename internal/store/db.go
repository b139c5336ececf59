// Package store implements the append-only content and config logs on PostgreSQL.
package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"

	"deepdive/api/internal/content"
)

// ErrNotFound is returned when a log holds no matching entry. Content log
// misses also match content.ErrNotFound.
var ErrNotFound = errors.New("log entry not found")

func Open(ctx context.Context, databaseURL string) (*sql.DB, error) {
	db, err := sql.Open("pgx", databaseURL)
	if err != nil {
		return nil, fmt.Errorf("open db: %w", err)
	}
	db.SetConnMaxIdleTime(5 * time.Minute)
	db.SetConnMaxLifetime(30 * time.Minute)
	db.SetMaxIdleConns(5)
	db.SetMaxOpenConns(10)

	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping db: %w", err)
	}
	return db, nil
}

func contentNotFound(topicID string) error {
	return fmt.Errorf("content log %s: %w: %w", topicID, content.ErrNotFound, ErrNotFound)
}
