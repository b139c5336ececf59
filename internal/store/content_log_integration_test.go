package store

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgconn"

	"deepdive/api/internal/content"
)

func TestContentLogLatest(t *testing.T) {
	conn := testDB(t)
	ctx := context.Background()
	log := NewContentLog(conn)
	base := time.Date(2025, 3, 1, 9, 0, 0, 0, time.UTC)

	for i, rev := range []content.Revision{
		{TopicID: "t1", RevisionID: "rev-a", Content: "first", CreatedAt: base},
		{TopicID: "t2", RevisionID: "rev-b", Content: "other topic", CreatedAt: base.Add(time.Minute)},
		{TopicID: "t1", RevisionID: "rev-c", Content: "second", CreatedAt: base.Add(2 * time.Minute)},
	} {
		if err := log.Append(ctx, rev); err != nil {
			t.Fatalf("append %d: %v", i, err)
		}
	}

	latest, err := log.Latest(ctx, "t1", "")
	if err != nil {
		t.Fatalf("latest: %v", err)
	}
	if latest.RevisionID != "rev-c" || latest.Content != "second" {
		t.Fatalf("expected newest revision rev-c, got %+v", latest)
	}

	pinned, err := log.Latest(ctx, "t1", "rev-a")
	if err != nil {
		t.Fatalf("latest by revision: %v", err)
	}
	if pinned.Content != "first" {
		t.Fatalf("expected pinned revision content, got %q", pinned.Content)
	}

	if _, err := log.Latest(ctx, "t1", "rev-b"); !errors.Is(err, content.ErrNotFound) {
		t.Fatalf("expected revision of another topic to miss, got %v", err)
	}
	if _, err := log.Latest(ctx, "missing", ""); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}

	history, err := log.History(ctx, "t1", 10)
	if err != nil {
		t.Fatalf("history: %v", err)
	}
	if len(history) != 2 || history[0].RevisionID != "rev-c" || history[0].Chars != len("second") {
		t.Fatalf("unexpected history: %+v", history)
	}

	all, err := log.LatestPerTopic(ctx)
	if err != nil {
		t.Fatalf("latest per topic: %v", err)
	}
	if all["t1"] != "second" || all["t2"] != "other topic" {
		t.Fatalf("unexpected latest per topic: %v", all)
	}

	matches, err := log.SearchLatest(ctx, "FIRST", 10)
	if err != nil {
		t.Fatalf("search: %v", err)
	}
	if len(matches) != 0 {
		t.Fatalf("superseded revisions must not match, got %+v", matches)
	}
	matches, err = log.SearchLatest(ctx, "SECOND", 10)
	if err != nil {
		t.Fatalf("search: %v", err)
	}
	if len(matches) != 1 || matches[0].TopicID != "t1" {
		t.Fatalf("unexpected search result: %+v", matches)
	}
}

func TestContentLogRejectsDuplicateRevision(t *testing.T) {
	conn := testDB(t)
	ctx := context.Background()
	log := NewContentLog(conn)

	rev := content.Revision{TopicID: "t1", RevisionID: "rev-a", Content: "x"}
	if err := log.Append(ctx, rev); err != nil {
		t.Fatalf("append: %v", err)
	}
	if err := log.Append(ctx, rev); err == nil {
		t.Fatal("expected duplicate revision id to fail")
	}

	history, err := log.History(ctx, "t1", 10)
	if err != nil {
		t.Fatalf("history: %v", err)
	}
	if len(history) != 1 {
		t.Fatalf("failed append must roll back the log row, got %d rows", len(history))
	}
}

func TestContentLogIsAppendOnly(t *testing.T) {
	conn := testDB(t)
	ctx := context.Background()
	if err := NewContentLog(conn).Append(ctx, content.Revision{TopicID: "t1", RevisionID: "rev-a", Content: "x"}); err != nil {
		t.Fatalf("append: %v", err)
	}

	for _, stmt := range []string{
		`UPDATE content_log SET content = 'changed'`,
		`DELETE FROM content_log`,
	} {
		_, err := conn.ExecContext(ctx, stmt)
		var pgErr *pgconn.PgError
		if !errors.As(err, &pgErr) {
			t.Fatalf("%s: expected PostgreSQL error, got %v", stmt, err)
		}
		if pgErr.SQLState() != "55000" {
			t.Fatalf("%s: expected SQLSTATE 55000, got %s", stmt, pgErr.SQLState())
		}
	}
}

func TestConfigLogLatestWins(t *testing.T) {
	conn := testDB(t)
	ctx := context.Background()
	log := NewConfigLog(conn)

	if _, err := log.LatestConfig(ctx, "global-theme-config"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
	for _, value := range []string{"classic", "academic"} {
		if err := log.AppendConfig(ctx, ConfigEntry{ConfigID: "global-theme-config", ConfigType: ConfigTypeTheme, Value: value, SetBy: "admin"}); err != nil {
			t.Fatalf("append config: %v", err)
		}
	}
	entry, err := log.LatestConfig(ctx, "global-theme-config")
	if err != nil {
		t.Fatalf("latest config: %v", err)
	}
	if entry.Value != "academic" || entry.SetBy != "admin" || entry.ConfigType != ConfigTypeTheme {
		t.Fatalf("unexpected entry: %+v", entry)
	}
}
