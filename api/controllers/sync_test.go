package controllers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/angelmondragon/catalogsync-backend/internal/catalogsync"
	"github.com/angelmondragon/catalogsync-backend/pkg/config"
	pkgerrors "github.com/angelmondragon/catalogsync-backend/pkg/errors"
)

var testTargets = []catalogsync.Target{
	{Code: "SpecialPriceOffers", Name: "스페셜 할인"},
	{Code: "cos_1.2", Name: "가전제품", URL: "/c/cos_1.2"},
	{Code: "cos_9", Name: "가격 추적", PriceOnly: true},
}

func TestAdminTriggerCategorySync(t *testing.T) {
	t.Run("full mode", func(t *testing.T) {
		svc := &stubSyncer{stats: catalogsync.SyncStats{New: 3, Updated: 2}}
		req := withRouteParam(httptest.NewRequest(http.MethodPost, "/v1/admin/sync/categories/cos_1.2", nil), "code", "cos_1.2")
		rec := httptest.NewRecorder()
		AdminTriggerCategorySync(svc, testTargets, nil, testLogger()).ServeHTTP(rec, req)
		if rec.Code != http.StatusOK {
			t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
		}
		if svc.fullCalls != 1 || svc.priceCalls != 0 {
			t.Fatalf("unexpected calls full=%d price=%d", svc.fullCalls, svc.priceCalls)
		}
		var body struct {
			Data catalogsync.SyncStats `json:"data"`
		}
		if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
			t.Fatalf("decode: %v", err)
		}
		if body.Data.New != 3 || body.Data.Updated != 2 {
			t.Fatalf("unexpected stats %+v", body.Data)
		}
	})

	t.Run("price mode", func(t *testing.T) {
		svc := &stubSyncer{}
		req := withRouteParam(httptest.NewRequest(http.MethodPost, "/v1/admin/sync/categories/cos_9?mode=price", nil), "code", "cos_9")
		rec := httptest.NewRecorder()
		AdminTriggerCategorySync(svc, testTargets, nil, testLogger()).ServeHTTP(rec, req)
		if rec.Code != http.StatusOK {
			t.Fatalf("expected 200, got %d", rec.Code)
		}
		if svc.priceCalls != 1 {
			t.Fatalf("expected price sync, got %d calls", svc.priceCalls)
		}
	})

	t.Run("price only target refuses full mode", func(t *testing.T) {
		svc := &stubSyncer{}
		req := withRouteParam(httptest.NewRequest(http.MethodPost, "/v1/admin/sync/categories/cos_9", nil), "code", "cos_9")
		rec := httptest.NewRecorder()
		AdminTriggerCategorySync(svc, testTargets, nil, testLogger()).ServeHTTP(rec, req)
		if rec.Code != http.StatusUnprocessableEntity {
			t.Fatalf("expected 422, got %d", rec.Code)
		}
		if svc.fullCalls != 0 {
			t.Fatal("sync must not run")
		}
	})

	t.Run("unknown category", func(t *testing.T) {
		req := withRouteParam(httptest.NewRequest(http.MethodPost, "/v1/admin/sync/categories/nope", nil), "code", "nope")
		rec := httptest.NewRecorder()
		AdminTriggerCategorySync(&stubSyncer{}, testTargets, nil, testLogger()).ServeHTTP(rec, req)
		if rec.Code != http.StatusNotFound {
			t.Fatalf("expected 404, got %d", rec.Code)
		}
	})

	t.Run("bad mode", func(t *testing.T) {
		req := withRouteParam(httptest.NewRequest(http.MethodPost, "/v1/admin/sync/categories/cos_1.2?mode=fast", nil), "code", "cos_1.2")
		rec := httptest.NewRecorder()
		AdminTriggerCategorySync(&stubSyncer{}, testTargets, nil, testLogger()).ServeHTTP(rec, req)
		if rec.Code != http.StatusBadRequest {
			t.Fatalf("expected 400, got %d", rec.Code)
		}
	})

	t.Run("run in progress", func(t *testing.T) {
		svc := &stubSyncer{}
		lock := &stubLock{busy: true}
		req := withRouteParam(httptest.NewRequest(http.MethodPost, "/v1/admin/sync/categories/cos_1.2", nil), "code", "cos_1.2")
		rec := httptest.NewRecorder()
		AdminTriggerCategorySync(svc, testTargets, lock.factory, testLogger()).ServeHTTP(rec, req)
		if rec.Code != http.StatusConflict {
			t.Fatalf("expected 409, got %d", rec.Code)
		}
		if svc.fullCalls != 0 {
			t.Fatal("sync must not run while locked")
		}
		if lock.name != "sync:cos_1.2" {
			t.Fatalf("unexpected lock name %q", lock.name)
		}
	})

	t.Run("lock released after run", func(t *testing.T) {
		lock := &stubLock{}
		req := withRouteParam(httptest.NewRequest(http.MethodPost, "/v1/admin/sync/categories/cos_1.2", nil), "code", "cos_1.2")
		AdminTriggerCategorySync(&stubSyncer{}, testTargets, lock.factory, testLogger()).ServeHTTP(httptest.NewRecorder(), req)
		if !lock.released {
			t.Fatal("expected lock release")
		}
	})

	t.Run("store failure", func(t *testing.T) {
		svc := &stubSyncer{err: errors.New("db down")}
		req := withRouteParam(httptest.NewRequest(http.MethodPost, "/v1/admin/sync/categories/cos_1.2", nil), "code", "cos_1.2")
		rec := httptest.NewRecorder()
		AdminTriggerCategorySync(svc, testTargets, nil, testLogger()).ServeHTTP(rec, req)
		if rec.Code != http.StatusServiceUnavailable {
			t.Fatalf("expected 503, got %d", rec.Code)
		}
	})
}

func TestAdminTriggerZeroPriceAudit(t *testing.T) {
	t.Run("success", func(t *testing.T) {
		auditor := &stubAuditor{stats: catalogsync.AuditStats{Candidates: 4, Fixed: 2, Skipped: 2, ManualLocks: 1, Flagged: 1}}
		rec := httptest.NewRecorder()
		AdminTriggerZeroPriceAudit(auditor, nil, testLogger()).ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/v1/admin/audits/zero-price", nil))
		if rec.Code != http.StatusOK {
			t.Fatalf("expected 200, got %d", rec.Code)
		}
		var body struct {
			Data struct {
				Stats catalogsync.AuditStats `json:"stats"`
				Error string                 `json:"error"`
			} `json:"data"`
		}
		if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
			t.Fatalf("decode: %v", err)
		}
		if body.Data.Stats.Fixed != 2 || body.Data.Error != "" {
			t.Fatalf("unexpected payload %+v", body.Data)
		}
	})

	t.Run("partial failure keeps stats", func(t *testing.T) {
		auditor := &stubAuditor{stats: catalogsync.AuditStats{Candidates: 2, Fixed: 1}, err: errors.New("650123: write failed")}
		rec := httptest.NewRecorder()
		AdminTriggerZeroPriceAudit(auditor, nil, testLogger()).ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/v1/admin/audits/zero-price", nil))
		if rec.Code != http.StatusOK {
			t.Fatalf("expected 200, got %d", rec.Code)
		}
	})

	t.Run("limit query", func(t *testing.T) {
		auditor := &stubAuditor{stats: catalogsync.AuditStats{Candidates: 1}}
		rec := httptest.NewRecorder()
		AdminTriggerZeroPriceAudit(auditor, nil, testLogger()).ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/v1/admin/audits/zero-price?limit=10", nil))
		if rec.Code != http.StatusOK {
			t.Fatalf("expected 200, got %d", rec.Code)
		}
		if auditor.limit != 10 {
			t.Fatalf("expected limit 10 passed through, got %d", auditor.limit)
		}
	})

	t.Run("limit out of range", func(t *testing.T) {
		auditor := &stubAuditor{}
		rec := httptest.NewRecorder()
		AdminTriggerZeroPriceAudit(auditor, nil, testLogger()).ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/v1/admin/audits/zero-price?limit=5000", nil))
		if rec.Code != http.StatusBadRequest {
			t.Fatalf("expected 400, got %d", rec.Code)
		}
		if auditor.calls != 0 {
			t.Fatalf("auditor should not run on a bad limit")
		}
	})

	t.Run("listing failure", func(t *testing.T) {
		auditor := &stubAuditor{err: errors.New("db down")}
		rec := httptest.NewRecorder()
		AdminTriggerZeroPriceAudit(auditor, nil, testLogger()).ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/v1/admin/audits/zero-price", nil))
		if rec.Code != http.StatusServiceUnavailable {
			t.Fatalf("expected 503, got %d", rec.Code)
		}
	})
}

func TestAdminSyncStatus(t *testing.T) {
	board := &stubStatusBoard{statuses: map[string]catalogsync.SyncStatus{
		"cos_1.2": {Category: "cos_1.2", State: catalogsync.StateCompleted},
	}}

	t.Run("all targets", func(t *testing.T) {
		rec := httptest.NewRecorder()
		AdminSyncStatus(board, testTargets, testLogger()).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/v1/admin/sync/status", nil))
		if rec.Code != http.StatusOK {
			t.Fatalf("expected 200, got %d", rec.Code)
		}
		if len(board.asked) != len(testTargets) {
			t.Fatalf("expected every target to be listed, got %v", board.asked)
		}
	})

	t.Run("filtered", func(t *testing.T) {
		rec := httptest.NewRecorder()
		AdminSyncStatus(board, testTargets, testLogger()).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/v1/admin/sync/status?category=cos_1.2,%20", nil))
		if len(board.asked) != 1 || board.asked[0] != "cos_1.2" {
			t.Fatalf("unexpected categories %v", board.asked)
		}
		var body struct {
			Data []catalogsync.SyncStatus `json:"data"`
		}
		if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
			t.Fatalf("decode: %v", err)
		}
		if len(body.Data) != 1 || body.Data[0].State != catalogsync.StateCompleted {
			t.Fatalf("unexpected statuses %+v", body.Data)
		}
	})

	t.Run("no board", func(t *testing.T) {
		rec := httptest.NewRecorder()
		AdminSyncStatus(nil, testTargets, testLogger()).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/v1/admin/sync/status", nil))
		if rec.Code != http.StatusServiceUnavailable {
			t.Fatalf("expected 503, got %d", rec.Code)
		}
	})
}

func TestHealthReady(t *testing.T) {
	cfg := &config.Config{App: config.AppConfig{Env: "test"}}

	rec := httptest.NewRecorder()
	HealthReady(cfg, testLogger(), map[string]Pinger{"db": stubPinger{}, "redis": stubPinger{}}).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health/ready", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}

	rec = httptest.NewRecorder()
	HealthReady(cfg, testLogger(), map[string]Pinger{
		"db":    stubPinger{},
		"redis": stubPinger{err: errors.New("refused")},
	}).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health/ready", nil))
	if rec.Code != http.StatusServiceUnavailable {
		t.Fatalf("expected 503, got %d", rec.Code)
	}
	var body struct {
		Error struct {
			Code    string `json:"code"`
			Details struct {
				Failed []string          `json:"failed"`
				Checks map[string]string `json:"checks"`
			} `json:"details"`
		} `json:"error"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if body.Error.Code != string(pkgerrors.CodeDependency) {
		t.Fatalf("unexpected code %s", body.Error.Code)
	}
	if len(body.Error.Details.Failed) != 1 || body.Error.Details.Failed[0] != "redis" {
		t.Fatalf("unexpected failed list %v", body.Error.Details.Failed)
	}
	if body.Error.Details.Checks["db"] != "ok" {
		t.Fatalf("healthy dependency not reported: %v", body.Error.Details.Checks)
	}
}

type stubSyncer struct {
	stats      catalogsync.SyncStats
	err        error
	fullCalls  int
	priceCalls int
}

func (s *stubSyncer) RunCategorySync(_ context.Context, target catalogsync.Target) (catalogsync.SyncStats, error) {
	s.fullCalls++
	stats := s.stats
	stats.Category = target.Code
	return stats, s.err
}

func (s *stubSyncer) RunPriceSync(_ context.Context, target catalogsync.Target) (catalogsync.SyncStats, error) {
	s.priceCalls++
	stats := s.stats
	stats.Category = target.Code
	stats.Mode = catalogsync.ModePrice
	return stats, s.err
}

type stubAuditor struct {
	stats catalogsync.AuditStats
	err   error
	limit int
	calls int
}

func (s *stubAuditor) RunLimit(_ context.Context, limit int) (catalogsync.AuditStats, error) {
	s.calls++
	s.limit = limit
	return s.stats, s.err
}

type stubStatusBoard struct {
	statuses map[string]catalogsync.SyncStatus
	asked    []string
}

func (s *stubStatusBoard) List(_ context.Context, categories []string) ([]catalogsync.SyncStatus, error) {
	s.asked = categories
	var out []catalogsync.SyncStatus
	for _, code := range categories {
		if status, ok := s.statuses[code]; ok {
			out = append(out, status)
		}
	}
	return out, nil
}

type stubLock struct {
	busy     bool
	released bool
	name     string
}

func (l *stubLock) factory(name string) (Lock, error) {
	l.name = name
	return l, nil
}

func (l *stubLock) Acquire(context.Context) (bool, error) { return !l.busy, nil }

func (l *stubLock) Release(context.Context) error {
	l.released = true
	return nil
}

type stubPinger struct{ err error }

func (p stubPinger) Ping(context.Context) error { return p.err }
