package session

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"

	"deepdive/api/internal/content"
)

func setupTestRedis(t *testing.T) (*redis.Client, *miniredis.Miniredis) {
	t.Helper()
	s := miniredis.RunT(t)
	client, err := Connect(context.Background(), "redis://"+s.Addr())
	if err != nil {
		t.Fatalf("connect: %v", err)
	}
	t.Cleanup(func() { _ = client.Close() })
	return client, s
}

func TestConnectRejectsBadURL(t *testing.T) {
	if _, err := Connect(context.Background(), "not-a-url"); err == nil {
		t.Fatal("expected error for invalid redis url")
	}
}

func TestBackupPutAndGet(t *testing.T) {
	client, s := setupTestRedis(t)
	backups := NewBackupStore(client, time.Hour)
	ctx := context.Background()

	if err := backups.Put(ctx, "t1", "rev-1", "# Hello"); err != nil {
		t.Fatalf("Put failed: %v", err)
	}
	if err := backups.Put(ctx, "t1", "rev-2", "# Hello again"); err != nil {
		t.Fatalf("Put failed: %v", err)
	}

	rev, err := backups.Get(ctx, "t1")
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if rev.RevisionID != "rev-2" || rev.Content != "# Hello again" || rev.TopicID != "t1" {
		t.Errorf("unexpected backup: %+v", rev)
	}
	if ttl := s.TTL("content-backup:t1"); ttl != time.Hour {
		t.Errorf("expected 1h TTL, got %v", ttl)
	}
}

func TestBackupMissAndExpiry(t *testing.T) {
	client, s := setupTestRedis(t)
	backups := NewBackupStore(client, time.Minute)
	ctx := context.Background()

	if _, err := backups.Get(ctx, "missing"); !errors.Is(err, content.ErrNotFound) {
		t.Fatalf("expected content.ErrNotFound, got %v", err)
	}

	if err := backups.Put(ctx, "t1", "rev-1", "body"); err != nil {
		t.Fatalf("Put failed: %v", err)
	}
	s.FastForward(2 * time.Minute)
	if _, err := backups.Get(ctx, "t1"); !errors.Is(err, content.ErrNotFound) {
		t.Fatalf("expected expired backup to miss, got %v", err)
	}
}

func TestBackupDelete(t *testing.T) {
	client, _ := setupTestRedis(t)
	backups := NewBackupStore(client, 0)
	ctx := context.Background()

	if err := backups.Put(ctx, "t1", "rev-1", "a"); err != nil {
		t.Fatalf("Put failed: %v", err)
	}
	if err := backups.Put(ctx, "t2", "rev-2", "b"); err != nil {
		t.Fatalf("Put failed: %v", err)
	}
	if err := backups.Delete(ctx, "t1"); err != nil {
		t.Fatalf("Delete failed: %v", err)
	}
	if err := backups.Delete(ctx, "never-stored"); err != nil {
		t.Fatalf("Delete of missing key failed: %v", err)
	}

	if _, err := backups.Get(ctx, "t1"); !errors.Is(err, content.ErrNotFound) {
		t.Errorf("expected t1 to be gone, got %v", err)
	}
	if rev, err := backups.Get(ctx, "t2"); err != nil || rev.Content != "b" {
		t.Errorf("expected t2 to survive, got %+v %v", rev, err)
	}
}

func TestBackupUnavailable(t *testing.T) {
	client, s := setupTestRedis(t)
	backups := NewBackupStore(client, time.Hour)
	s.Close()

	_, err := backups.Get(context.Background(), "t1")
	if err == nil {
		t.Fatal("expected error with redis down")
	}
	if errors.Is(err, content.ErrNotFound) {
		t.Fatal("an unreachable tier must not look like a miss")
	}
	if err := backups.Ping(context.Background()); err == nil {
		t.Fatal("expected ping to fail")
	}
}

func TestRevocations(t *testing.T) {
	client, s := setupTestRedis(t)
	revocations := NewRevocations(client)
	ctx := context.Background()

	if revoked, err := revocations.IsRevoked(ctx, "jti-1"); err != nil || revoked {
		t.Fatalf("expected fresh jti to be valid, got %v %v", revoked, err)
	}
	if err := revocations.Revoke(ctx, "jti-1", time.Now().Add(time.Hour)); err != nil {
		t.Fatalf("Revoke failed: %v", err)
	}
	if revoked, err := revocations.IsRevoked(ctx, "jti-1"); err != nil || !revoked {
		t.Fatalf("expected jti to be revoked, got %v %v", revoked, err)
	}

	s.FastForward(2 * time.Hour)
	if revoked, _ := revocations.IsRevoked(ctx, "jti-1"); revoked {
		t.Fatal("revocation should expire with the token")
	}

	if err := revocations.Revoke(ctx, "jti-2", time.Now().Add(-time.Minute)); err != nil {
		t.Fatalf("Revoke of expired token failed: %v", err)
	}
	if revoked, _ := revocations.IsRevoked(ctx, "jti-2"); revoked {
		t.Fatal("already expired token needs no revocation entry")
	}
}
