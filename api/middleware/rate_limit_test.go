package middleware

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	pkgerrors "github.com/angelmondragon/catalogsync-backend/pkg/errors"
)

func TestRateLimit_AllowsUnderLimit(t *testing.T) {
	store := newFakeRateStore()
	policy := NewRateLimitPolicy("sync", time.Hour, 2)
	handler := RateLimit(policy, store, nil)(okHandler())

	for i := 0; i < 2; i++ {
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, triggerRequest("ops@example.com", "/v1/admin/sync/categories/cos_1"))
		if rec.Code != http.StatusOK {
			t.Fatalf("request %d: expected 200, got %d", i, rec.Code)
		}
	}
}

func TestRateLimit_BlocksOverLimit(t *testing.T) {
	store := newFakeRateStore()
	policy := NewRateLimitPolicy("sync", time.Hour, 1)
	handler := RateLimit(policy, store, nil)(okHandler())

	handler.ServeHTTP(httptest.NewRecorder(), triggerRequest("ops@example.com", "/v1/admin/sync/categories/cos_1"))

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, triggerRequest("ops@example.com", "/v1/admin/sync/categories/cos_1"))
	if rec.Code != http.StatusTooManyRequests {
		t.Fatalf("expected 429, got %d", rec.Code)
	}
	if rec.Header().Get("Retry-After") != "3600" {
		t.Fatalf("unexpected Retry-After %q", rec.Header().Get("Retry-After"))
	}
	if rec.Header().Get(HeaderRateLimitRemaining) != "0" {
		t.Fatalf("unexpected remaining %q", rec.Header().Get(HeaderRateLimitRemaining))
	}
	var payload struct {
		Error struct {
			Code string `json:"code"`
		} `json:"error"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &payload); err != nil {
		t.Fatalf("decode error: %v", err)
	}
	if payload.Error.Code != string(pkgerrors.CodeRateLimit) {
		t.Fatalf("unexpected code: %s", payload.Error.Code)
	}
}

func TestRateLimit_ReportsRemaining(t *testing.T) {
	handler := RateLimit(NewRateLimitPolicy("sync", time.Minute, 3), newFakeRateStore(), nil)(okHandler())

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, triggerRequest("ops@example.com", "/v1/admin/audits/zero-price"))
	if rec.Header().Get(HeaderRateLimit) != "3" || rec.Header().Get(HeaderRateLimitRemaining) != "2" {
		t.Fatalf("unexpected headers limit=%q remaining=%q", rec.Header().Get(HeaderRateLimit), rec.Header().Get(HeaderRateLimitRemaining))
	}
}

func TestRateLimit_AnonymousCallersKeyedByAddress(t *testing.T) {
	store := newFakeRateStore()
	handler := RateLimit(NewRateLimitPolicy("sync", time.Hour, 1), store, nil)(okHandler())

	handler.ServeHTTP(httptest.NewRecorder(), triggerRequest("", "/v1/admin/audits/zero-price"))
	if store.counts["sync:ip:10.0.0.1:/v1/admin/audits/zero-price"] != 1 {
		t.Fatalf("unexpected buckets %v", store.counts)
	}
}

func TestRateLimit_CountsCategoriesSeparately(t *testing.T) {
	store := newFakeRateStore()
	policy := NewRateLimitPolicy("sync", time.Hour, 1)
	handler := RateLimit(policy, store, nil)(okHandler())

	handler.ServeHTTP(httptest.NewRecorder(), triggerRequest("ops@example.com", "/v1/admin/sync/categories/cos_1"))

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, triggerRequest("ops@example.com", "/v1/admin/sync/categories/cos_2"))
	if rec.Code != http.StatusOK {
		t.Fatalf("expected other category to pass, got %d", rec.Code)
	}
}

func TestRateLimit_StoreFailure(t *testing.T) {
	store := newFakeRateStore()
	store.err = errors.New("redis down")
	handler := RateLimit(NewRateLimitPolicy("sync", time.Hour, 5), store, nil)(okHandler())

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, triggerRequest("ops@example.com", "/v1/admin/sync/categories/cos_1"))
	if rec.Code == http.StatusOK {
		t.Fatal("expected failure when the counter store is unavailable")
	}
}

func TestRateLimit_DisabledPolicyPassesThrough(t *testing.T) {
	handler := RateLimit(NewRateLimitPolicy("sync", 0, 0), nil, nil)(okHandler())

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, triggerRequest("", "/v1/admin/sync/categories/cos_1"))
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
}

func okHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
}

func triggerRequest(subject, path string) *http.Request {
	req := httptest.NewRequest(http.MethodPost, path, nil)
	req.RemoteAddr = "10.0.0.1:5678"
	if subject != "" {
		req = req.WithContext(WithActor(req.Context(), subject, "operator"))
	}
	return req
}

type fakeRateStore struct {
	mu     sync.Mutex
	counts map[string]int64
	err    error
}

func newFakeRateStore() *fakeRateStore {
	return &fakeRateStore{counts: make(map[string]int64)}
}

func (f *fakeRateStore) FixedWindowAllow(_ context.Context, scope string, limit int64, _ time.Duration) (bool, int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return false, 0, f.err
	}
	f.counts[scope]++
	count := f.counts[scope]
	return count <= limit, count, nil
}
