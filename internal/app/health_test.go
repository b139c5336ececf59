package app

import (
	"errors"
	"net/http"
	"testing"
)

func TestHealthEndpoint(t *testing.T) {
	h := newHarness(t)
	rr := h.do(http.MethodGet, "/api/health", "", nil, nil)

	if rr.Code != http.StatusOK {
		t.Errorf("expected status 200, got %d", rr.Code)
	}
	var response map[string]any
	decode(t, rr, &response)
	if ok, exists := response["ok"]; !exists || ok != true {
		t.Errorf("expected ok=true, got %v", ok)
	}
	if rr.Header().Get("X-Request-ID") == "" {
		t.Error("expected X-Request-ID header")
	}
}

func TestReadyEndpoint_Success(t *testing.T) {
	h := newHarness(t)
	rr := h.do(http.MethodGet, "/api/ready", "", nil, nil)

	if rr.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d body=%s", rr.Code, rr.Body.String())
	}
	var response map[string]any
	decode(t, rr, &response)
	if status := response["status"]; status != "ready" {
		t.Errorf("expected status=ready, got %v", status)
	}
	checks, ok := response["checks"].(map[string]any)
	if !ok {
		t.Fatalf("expected checks object, got %v", response["checks"])
	}
	for _, name := range []string{"database", "redis"} {
		check, _ := checks[name].(map[string]any)
		if check["status"] != "ok" {
			t.Errorf("expected %s status=ok, got %v", name, checks[name])
		}
	}
}

func TestReadyEndpoint_DependencyFailure(t *testing.T) {
	h := newHarness(t)
	h.checks["database"] = errors.New("connection refused")

	rr := h.do(http.MethodGet, "/api/ready", "", nil, nil)
	if rr.Code != http.StatusServiceUnavailable {
		t.Fatalf("expected status 503, got %d", rr.Code)
	}
	var response map[string]any
	decode(t, rr, &response)
	if response["ok"] != false || response["status"] != "not_ready" {
		t.Fatalf("unexpected response %v", response)
	}
	checks := response["checks"].(map[string]any)
	db := checks["database"].(map[string]any)
	if db["status"] != "error" || db["error"] != "connection refused" {
		t.Fatalf("unexpected database check %v", db)
	}
}

func TestMetricsEndpoint(t *testing.T) {
	h := newHarness(t)
	rr := h.do(http.MethodGet, "/metrics", "", nil, nil)
	if rr.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d", rr.Code)
	}
}

func TestPreflight(t *testing.T) {
	h := newHarness(t)
	rr := h.do(http.MethodOptions, "/api/topics/shell/content", "", nil, nil)
	if rr.Code != http.StatusNoContent {
		t.Fatalf("expected status 204, got %d", rr.Code)
	}
	if got := rr.Header().Get("Access-Control-Allow-Headers"); got == "" {
		t.Fatal("expected CORS headers")
	}
}
