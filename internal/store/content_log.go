package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"deepdive/api/internal/content"
)

// RevisionSummary describes one logged revision without its body.
type RevisionSummary struct {
	Offset     int64     `json:"offset"`
	TopicID    string    `json:"topicId"`
	RevisionID string    `json:"revisionId"`
	Chars      int       `json:"chars"`
	CreatedAt  time.Time `json:"createdAt"`
}

// ContentLog is the append-only revision log. Rows are never updated or
// deleted; content_revision_index maps a revision id to its log offset.
type ContentLog struct {
	db *sql.DB
}

func NewContentLog(db *sql.DB) *ContentLog {
	return &ContentLog{db: db}
}

func (l *ContentLog) Append(ctx context.Context, rev content.Revision) error {
	tx, err := l.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin content append: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	createdAt := rev.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now().UTC()
	}
	var offset int64
	err = tx.QueryRowContext(ctx, `
		INSERT INTO content_log (topic_id, revision_id, content, created_at)
		VALUES ($1, $2, $3, $4)
		RETURNING id
	`, rev.TopicID, rev.RevisionID, rev.Content, createdAt).Scan(&offset)
	if err != nil {
		return fmt.Errorf("insert content log: %w", err)
	}
	if _, err := tx.ExecContext(ctx, `
		INSERT INTO content_revision_index (revision_id, topic_id, log_offset)
		VALUES ($1, $2, $3)
	`, rev.RevisionID, rev.TopicID, offset); err != nil {
		return fmt.Errorf("index revision %s: %w", rev.RevisionID, err)
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit content append: %w", err)
	}
	return nil
}

// Latest returns the revision named by revisionID, or the newest logged
// revision of the topic when revisionID is empty.
func (l *ContentLog) Latest(ctx context.Context, topicID, revisionID string) (content.Revision, error) {
	var row *sql.Row
	if revisionID != "" {
		row = l.db.QueryRowContext(ctx, `
			SELECT c.topic_id, c.revision_id, c.content, c.created_at
			FROM content_revision_index i
			JOIN content_log c ON c.id = i.log_offset
			WHERE i.revision_id = $1 AND i.topic_id = $2
		`, revisionID, topicID)
	} else {
		row = l.db.QueryRowContext(ctx, `
			SELECT topic_id, revision_id, content, created_at
			FROM content_log
			WHERE topic_id = $1
			ORDER BY id DESC
			LIMIT 1
		`, topicID)
	}

	var rev content.Revision
	err := row.Scan(&rev.TopicID, &rev.RevisionID, &rev.Content, &rev.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return content.Revision{}, contentNotFound(topicID)
	}
	if err != nil {
		return content.Revision{}, fmt.Errorf("read content log %s: %w", topicID, err)
	}
	return rev, nil
}

func (l *ContentLog) History(ctx context.Context, topicID string, limit int) ([]RevisionSummary, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := l.db.QueryContext(ctx, `
		SELECT id, topic_id, revision_id, char_length(content), created_at
		FROM content_log
		WHERE topic_id = $1
		ORDER BY id DESC
		LIMIT $2
	`, topicID, limit)
	if err != nil {
		return nil, fmt.Errorf("list content history: %w", err)
	}
	defer rows.Close()

	items := make([]RevisionSummary, 0)
	for rows.Next() {
		var item RevisionSummary
		if err := rows.Scan(&item.Offset, &item.TopicID, &item.RevisionID, &item.Chars, &item.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan content history: %w", err)
		}
		items = append(items, item)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate content history: %w", err)
	}
	return items, nil
}

// LatestPerTopic returns the newest logged content of every topic.
func (l *ContentLog) LatestPerTopic(ctx context.Context) (map[string]string, error) {
	rows, err := l.db.QueryContext(ctx, `
		SELECT DISTINCT ON (topic_id) topic_id, content
		FROM content_log
		ORDER BY topic_id, id DESC
	`)
	if err != nil {
		return nil, fmt.Errorf("list latest content: %w", err)
	}
	defer rows.Close()

	out := make(map[string]string)
	for rows.Next() {
		var topicID, text string
		if err := rows.Scan(&topicID, &text); err != nil {
			return nil, fmt.Errorf("scan latest content: %w", err)
		}
		out[topicID] = text
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate latest content: %w", err)
	}
	return out, nil
}

// SearchLatest matches query case-insensitively against the newest revision
// of each topic.
func (l *ContentLog) SearchLatest(ctx context.Context, query string, limit int) ([]content.Revision, error) {
	query = strings.TrimSpace(query)
	if query == "" {
		return []content.Revision{}, nil
	}
	if limit <= 0 {
		limit = 20
	}
	rows, err := l.db.QueryContext(ctx, `
		SELECT topic_id, revision_id, content, created_at
		FROM (
			SELECT DISTINCT ON (topic_id) topic_id, revision_id, content, created_at
			FROM content_log
			ORDER BY topic_id, id DESC
		) latest
		WHERE content ILIKE '%' || $1 || '%'
		ORDER BY created_at DESC
		LIMIT $2
	`, query, limit)
	if err != nil {
		return nil, fmt.Errorf("search content log: %w", err)
	}
	defer rows.Close()

	items := make([]content.Revision, 0)
	for rows.Next() {
		var rev content.Revision
		if err := rows.Scan(&rev.TopicID, &rev.RevisionID, &rev.Content, &rev.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan content search: %w", err)
		}
		items = append(items, rev)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate content search: %w", err)
	}
	return items, nil
}

func (l *ContentLog) Ping(ctx context.Context) error {
	return l.db.PingContext(ctx)
}
