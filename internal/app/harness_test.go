package app

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"golang.org/x/crypto/bcrypt"

	"deepdive/api/internal/auth"
	"deepdive/api/internal/authpw"
	"deepdive/api/internal/catalog"
	"deepdive/api/internal/content"
	"deepdive/api/internal/progress"
	"deepdive/api/internal/search"
	"deepdive/api/internal/session"
	"deepdive/api/internal/store"
	"deepdive/api/internal/theme"
)

const (
	viewerPassword = "viewer-pass"
	adminPassword  = "admin-pass"
)

type fakeConfigLog struct {
	mu      sync.Mutex
	entries []store.ConfigEntry
}

func (f *fakeConfigLog) AppendConfig(_ context.Context, entry store.ConfigEntry) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.entries = append(f.entries, entry)
	return nil
}

func (f *fakeConfigLog) LatestConfig(_ context.Context, configID string) (store.ConfigEntry, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for i := len(f.entries) - 1; i >= 0; i-- {
		if f.entries[i].ConfigID == configID {
			return f.entries[i], nil
		}
	}
	return store.ConfigEntry{}, store.ErrNotFound
}

type fakeHistory struct {
	items []store.RevisionSummary
	err   error
}

func (f fakeHistory) History(_ context.Context, topicID string, limit int) ([]store.RevisionSummary, error) {
	if f.err != nil {
		return nil, f.err
	}
	out := []store.RevisionSummary{}
	for _, item := range f.items {
		if item.TopicID == topicID && len(out) < limit {
			out = append(out, item)
		}
	}
	return out, nil
}

type fakeBlobs []string

func (f fakeBlobs) List(context.Context) ([]string, error) { return f, nil }

type fakeSearcher struct {
	lastQuery search.Query
}

func (f *fakeSearcher) Search(_ context.Context, q search.Query) search.Response {
	f.lastQuery = q
	return search.Response{Results: []search.Result{{TopicID: "shell", Title: "Case Study: Shell FinOps"}}, Total: 1, Query: q.Text, Engine: search.EngineFallback}
}

type harness struct {
	t        *testing.T
	server   http.Handler
	service  *Service
	resolver *content.Resolver
	configs  *fakeConfigLog
	searcher *fakeSearcher
	redis    *miniredis.Miniredis
	checks   map[string]error
}

func newHarness(t *testing.T) *harness {
	t.Helper()

	cat, err := catalog.Load()
	if err != nil {
		t.Fatalf("load catalog: %v", err)
	}
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	gate, err := authpw.NewGate(hashPassword(t, viewerPassword), hashPassword(t, adminPassword))
	if err != nil {
		t.Fatalf("new gate: %v", err)
	}

	h := &harness{
		t:        t,
		configs:  &fakeConfigLog{},
		searcher: &fakeSearcher{},
		redis:    mr,
		checks:   map[string]error{},
	}
	h.resolver = content.NewResolver(content.NewCache(time.Hour, time.Now), nil, session.NewBackupStore(client, time.Hour), nil, nil)
	h.service = New(Deps{
		Resolver: h.resolver,
		Blobs:    fakeBlobs{"academy", "shell"},
		History: fakeHistory{items: []store.RevisionSummary{
			{Offset: 2, TopicID: "shell", RevisionID: "rev-2", Chars: 10},
			{Offset: 1, TopicID: "shell", RevisionID: "rev-1", Chars: 5},
		}},
		Themes:      theme.NewService(h.configs, zerolog.Nop()),
		Catalog:     cat,
		Progress:    progress.NewService(progress.NewRedisStore(client), cat, zerolog.Nop()),
		Search:      h.searcher,
		Gate:        gate,
		Signer:      auth.NewSigner("test-secret", time.Hour),
		Revocations: session.NewRevocations(client),
		Checks: []ReadyCheck{
			{Name: "database", Ping: func(context.Context) error { return h.checks["database"] }},
			{Name: "redis", Ping: func(ctx context.Context) error { return client.Ping(ctx).Err() }},
		},
		Logger: zerolog.Nop(),
	})
	h.server = NewHTTPServer(h.service, "*", zerolog.Nop()).Handler()
	return h
}

func hashPassword(t *testing.T, password string) string {
	t.Helper()
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.MinCost)
	if err != nil {
		t.Fatalf("hash password: %v", err)
	}
	return string(hash)
}

func (h *harness) login(password, name string) string {
	h.t.Helper()
	body, _ := json.Marshal(map[string]string{"password": password, "name": name})
	rr := h.do(http.MethodPost, "/api/session/login", "", bytes.NewReader(body), nil)
	if rr.Code != http.StatusOK {
		h.t.Fatalf("login: status %d body=%s", rr.Code, rr.Body.String())
	}
	var payload map[string]any
	decode(h.t, rr, &payload)
	token, _ := payload["token"].(string)
	if token == "" {
		h.t.Fatalf("login: expected token in %v", payload)
	}
	return token
}

func (h *harness) do(method, path, token string, body io.Reader, header map[string]string) *httptest.ResponseRecorder {
	h.t.Helper()
	req := httptest.NewRequest(method, path, body)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	for k, v := range header {
		req.Header.Set(k, v)
	}
	rr := httptest.NewRecorder()
	h.server.ServeHTTP(rr, req)
	return rr
}

func (h *harness) doJSON(method, path, token string, payload any) *httptest.ResponseRecorder {
	h.t.Helper()
	body, err := json.Marshal(payload)
	if err != nil {
		h.t.Fatalf("marshal body: %v", err)
	}
	return h.do(method, path, token, bytes.NewReader(body), map[string]string{"Content-Type": "application/json"})
}

func decode(t *testing.T, rr *httptest.ResponseRecorder, target any) {
	t.Helper()
	if err := json.Unmarshal(rr.Body.Bytes(), target); err != nil {
		t.Fatalf("parse response: %v body=%s", err, rr.Body.String())
	}
}

func errorCode(t *testing.T, rr *httptest.ResponseRecorder) string {
	t.Helper()
	var payload map[string]any
	decode(t, rr, &payload)
	code, _ := payload["code"].(string)
	return code
}
