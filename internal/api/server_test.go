package api

import (
	"context"
	"database/sql"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	_ "modernc.org/sqlite"

	"github.com/jimsug/mtg-signal-bot/internal/storage"
)

func setupServer(t *testing.T) (*Server, *storage.UsageStore, *storage.CacheStore) {
	t.Helper()

	sqlDB, err := sql.Open("sqlite", ":memory:")
	if err != nil {
		t.Fatalf("Failed to open test database: %v", err)
	}
	// Each in-memory connection is its own database; pin the pool to one.
	sqlDB.SetMaxOpenConns(1)
	_, err = sqlDB.Exec(`
		CREATE TABLE card_cache (
			cache_key TEXT PRIMARY KEY,
			data TEXT NOT NULL,
			cached_at INTEGER NOT NULL
		);
		CREATE TABLE usage_log (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			user_uuid TEXT NOT NULL,
			query TEXT NOT NULL,
			timestamp INTEGER NOT NULL
		);
		CREATE TABLE banned_users (
			user_uuid TEXT PRIMARY KEY,
			banned_at INTEGER NOT NULL,
			reason TEXT
		);
	`)
	if err != nil {
		t.Fatalf("Failed to create tables: %v", err)
	}
	t.Cleanup(func() { _ = sqlDB.Close() })

	db := storage.NewTestDB(sqlDB)
	usage := storage.NewUsageStore(db)
	cache := storage.NewCacheStore(db, storage.DefaultCacheTTL)

	return NewServer(nil, usage, cache, nil), usage, cache
}

func doJSON(t *testing.T, s *Server, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	var req *http.Request
	if body != "" {
		req = httptest.NewRequest(method, path, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	} else {
		req = httptest.NewRequest(method, path, nil)
	}
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, req)
	return rec
}

func TestHealthCheck(t *testing.T) {
	s, _, _ := setupServer(t)

	rec := doJSON(t, s, http.MethodGet, "/health", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("health = %d, want 200", rec.Code)
	}

	var body map[string]string
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode health response: %v", err)
	}
	if body["status"] != "healthy" {
		t.Errorf("status = %q", body["status"])
	}
}

func TestBanLifecycle(t *testing.T) {
	s, _, _ := setupServer(t)

	rec := doJSON(t, s, http.MethodPost, "/api/v1/bans", `{"user_id":"user-1","reason":"spam"}`)
	if rec.Code != http.StatusCreated {
		t.Fatalf("ban = %d, want 201: %s", rec.Code, rec.Body.String())
	}

	rec = doJSON(t, s, http.MethodGet, "/api/v1/bans", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("list bans = %d, want 200", rec.Code)
	}
	var listResp struct {
		Data []storage.BanRecord `json:"data"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &listResp); err != nil {
		t.Fatalf("decode bans: %v", err)
	}
	if len(listResp.Data) != 1 || listResp.Data[0].UserID != "user-1" {
		t.Errorf("bans = %+v", listResp.Data)
	}
	if listResp.Data[0].Reason != "spam" {
		t.Errorf("reason = %q", listResp.Data[0].Reason)
	}

	rec = doJSON(t, s, http.MethodDelete, "/api/v1/bans/user-1", "")
	if rec.Code != http.StatusNoContent {
		t.Fatalf("unban = %d, want 204", rec.Code)
	}

	// A second unban finds nothing.
	rec = doJSON(t, s, http.MethodDelete, "/api/v1/bans/user-1", "")
	if rec.Code != http.StatusNotFound {
		t.Fatalf("double unban = %d, want 404", rec.Code)
	}
}

func TestBanRequiresUserID(t *testing.T) {
	s, _, _ := setupServer(t)

	rec := doJSON(t, s, http.MethodPost, "/api/v1/bans", `{"reason":"spam"}`)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("ban without user_id = %d, want 400", rec.Code)
	}
}

func TestBanRejectsWrongContentType(t *testing.T) {
	s, _, _ := setupServer(t)

	req := httptest.NewRequest(http.MethodPost, "/api/v1/bans", strings.NewReader(`{"user_id":"u"}`))
	req.Header.Set("Content-Type", "text/plain")
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, req)

	if rec.Code != http.StatusUnsupportedMediaType {
		t.Fatalf("wrong content type = %d, want 415", rec.Code)
	}
}

func TestUsageLogPagination(t *testing.T) {
	s, usage, _ := setupServer(t)
	ctx := context.Background()
	now := time.Now()

	for i := 0; i < 5; i++ {
		if err := usage.Record(ctx, "user-1", "named:bolt::", now); err != nil {
			t.Fatalf("Record failed: %v", err)
		}
	}
	if err := usage.Record(ctx, "user-2", "named:lotus::", now); err != nil {
		t.Fatalf("Record failed: %v", err)
	}

	rec := doJSON(t, s, http.MethodGet, "/api/v1/usage?user=user-1&page=1&page_size=3", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("usage = %d, want 200", rec.Code)
	}

	var resp struct {
		Data       []storage.UsageEvent `json:"data"`
		Page       int                  `json:"page"`
		PageSize   int                  `json:"page_size"`
		TotalCount int                  `json:"total_count"`
		TotalPages int                  `json:"total_pages"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode usage: %v", err)
	}
	if len(resp.Data) != 3 {
		t.Errorf("page entries = %d, want 3", len(resp.Data))
	}
	if resp.TotalCount != 5 {
		t.Errorf("total = %d, want only user-1 rows", resp.TotalCount)
	}
	if resp.TotalPages != 2 {
		t.Errorf("pages = %d, want 2", resp.TotalPages)
	}
}

func TestSuspiciousUsers(t *testing.T) {
	s, usage, _ := setupServer(t)
	ctx := context.Background()
	now := time.Now()

	for i := 0; i < 25; i++ {
		_ = usage.Record(ctx, "burst-user", "named:bolt::", now)
	}
	_ = usage.Record(ctx, "quiet-user", "named:bolt::", now)

	rec := doJSON(t, s, http.MethodGet, "/api/v1/usage/suspicious", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("suspicious = %d, want 200", rec.Code)
	}

	var resp struct {
		Data []storage.SuspiciousUser `json:"data"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode suspicious: %v", err)
	}
	if len(resp.Data) != 1 || resp.Data[0].UserID != "burst-user" {
		t.Errorf("suspicious = %+v", resp.Data)
	}
}

func TestCacheEndpoints(t *testing.T) {
	s, _, cache := setupServer(t)
	ctx := context.Background()
	now := time.Now()

	if err := cache.Put(ctx, "named:bolt::", []byte(`{"name":"Bolt"}`), now); err != nil {
		t.Fatalf("Put failed: %v", err)
	}
	if err := cache.Put(ctx, "named:old::", []byte(`{"name":"Old"}`), now.Add(-25*time.Hour)); err != nil {
		t.Fatalf("Put failed: %v", err)
	}

	rec := doJSON(t, s, http.MethodGet, "/api/v1/cache/stats", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("cache stats = %d, want 200", rec.Code)
	}
	var statsResp struct {
		Data storage.CacheStats `json:"data"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &statsResp); err != nil {
		t.Fatalf("decode stats: %v", err)
	}
	if statsResp.Data.Total != 2 || statsResp.Data.Expired != 1 {
		t.Errorf("stats = %+v", statsResp.Data)
	}

	// Sweep drops only the expired entry.
	rec = doJSON(t, s, http.MethodPost, "/api/v1/cache/purge", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("purge = %d, want 200", rec.Code)
	}

	rec = doJSON(t, s, http.MethodDelete, "/api/v1/cache/named:bolt::", "")
	if rec.Code != http.StatusNoContent {
		t.Fatalf("purge one = %d, want 204: %s", rec.Code, rec.Body.String())
	}
	rec = doJSON(t, s, http.MethodDelete, "/api/v1/cache/named:bolt::", "")
	if rec.Code != http.StatusNotFound {
		t.Fatalf("purge missing = %d, want 404", rec.Code)
	}
}

func TestOverviewStats(t *testing.T) {
	s, usage, cache := setupServer(t)
	ctx := context.Background()
	now := time.Now()

	_ = usage.Record(ctx, "user-1", "named:bolt::", now)
	_ = usage.Record(ctx, "user-2", "named:lotus::", now)
	_ = usage.Ban(ctx, "user-3", "spam", now)
	_ = cache.Put(ctx, "named:bolt::", []byte(`{}`), now)

	rec := doJSON(t, s, http.MethodGet, "/api/v1/stats", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("stats = %d, want 200", rec.Code)
	}

	var resp struct {
		Data struct {
			LookupsToday int64              `json:"lookups_today"`
			Cache        storage.CacheStats `json:"cache"`
			BannedUsers  int                `json:"banned_users"`
		} `json:"data"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode stats: %v", err)
	}
	if resp.Data.LookupsToday != 2 {
		t.Errorf("lookups today = %d, want 2", resp.Data.LookupsToday)
	}
	if resp.Data.Cache.Total != 1 {
		t.Errorf("cache entries = %d, want 1", resp.Data.Cache.Total)
	}
	if resp.Data.BannedUsers != 1 {
		t.Errorf("banned users = %d, want 1", resp.Data.BannedUsers)
	}
}

func TestDefaultConfigAddr(t *testing.T) {
	s, _, _ := setupServer(t)
	if s.Addr() != ":8081" {
		t.Errorf("addr = %q, want :8081", s.Addr())
	}
}
