package http

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"testing/fstest"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"fintrack/internal/core"
	"fintrack/internal/services"
	"fintrack/internal/storage"
)

type testServer struct {
	*Server
	repo *storage.SQLiteRepository
}

func newTestServer(t *testing.T, opts Options) *testServer {
	t.Helper()
	repo, err := storage.NewSQLiteRepository(filepath.Join(t.TempDir(), "api.db"))
	require.NoError(t, err)
	t.Cleanup(func() { repo.Close() })

	reports := services.NewReportService(repo, time.Minute)
	svc := Services{
		Categories:   services.NewCategoryService(repo, nil, reports),
		Transactions: services.NewTransactionService(repo, nil, reports),
		Budgets:      services.NewBudgetService(repo, nil, reports),
		Reports:      reports,
	}
	if opts.DB == nil {
		opts.DB = repo
	}
	if opts.RateLimitPerMinute == 0 {
		opts.RateLimitPerMinute = 10000
	}
	srv := NewServer(svc, opts)
	t.Cleanup(func() { srv.Shutdown(context.Background()) })
	return &testServer{Server: srv, repo: repo}
}

// do sends a request through the full middleware chain. body may be a
// string (sent as is) or any value (JSON encoded).
func (ts *testServer) do(t *testing.T, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	switch b := body.(type) {
	case nil:
	case string:
		buf.WriteString(b)
	default:
		require.NoError(t, json.NewEncoder(&buf).Encode(b))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	rr := httptest.NewRecorder()
	ts.Handler.ServeHTTP(rr, req)
	return rr
}

func decode[T any](t *testing.T, rr *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &v), rr.Body.String())
	return v
}

func (ts *testServer) createCategory(t *testing.T, name, typ string) int64 {
	t.Helper()
	rr := ts.do(t, http.MethodPost, "/api/categories", map[string]any{"name": name, "type": typ})
	require.Equal(t, http.StatusCreated, rr.Code, rr.Body.String())
	return decode[core.Category](t, rr).ID
}

func (ts *testServer) createTransaction(t *testing.T, body map[string]any) core.Transaction {
	t.Helper()
	rr := ts.do(t, http.MethodPost, "/api/transactions", body)
	require.Equal(t, http.StatusCreated, rr.Code, rr.Body.String())
	return decode[core.Transaction](t, rr)
}

func TestHealthAndReady(t *testing.T) {
	ts := newTestServer(t, Options{})

	rr := ts.do(t, http.MethodGet, "/healthz", nil)
	assert.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, "ok", decode[map[string]any](t, rr)["status"])

	rr = ts.do(t, http.MethodGet, "/readyz", nil)
	assert.Equal(t, http.StatusOK, rr.Code)
	body := decode[map[string]any](t, rr)
	assert.Equal(t, "ready", body["status"])
	checks := body["checks"].(map[string]any)
	schema := checks["schema"].(map[string]any)
	assert.Equal(t, "ok", schema["status"])
	assert.Equal(t, schema["latest"], schema["version"])
}

// staleSchemaDB answers pings but reports a migration behind the latest.
type staleSchemaDB struct{}

func (staleSchemaDB) Ping(context.Context) error { return nil }

func (staleSchemaDB) SchemaStatus(context.Context) (storage.SchemaStatus, error) {
	return storage.SchemaStatus{Version: 1, Latest: 2}, nil
}

func TestReadyReportsOutdatedSchema(t *testing.T) {
	ts := newTestServer(t, Options{DB: staleSchemaDB{}})

	rr := ts.do(t, http.MethodGet, "/readyz", nil)
	assert.Equal(t, http.StatusServiceUnavailable, rr.Code)
	body := decode[map[string]any](t, rr)
	assert.Equal(t, "not_ready", body["status"])
	schema := body["checks"].(map[string]any)["schema"].(map[string]any)
	assert.Equal(t, "outdated", schema["status"])
}

type downDB struct{}

func (downDB) Ping(context.Context) error { return errors.New("database is locked") }

func TestReadyReportsDatabaseFailure(t *testing.T) {
	ts := newTestServer(t, Options{DB: downDB{}})

	rr := ts.do(t, http.MethodGet, "/readyz", nil)
	assert.Equal(t, http.StatusServiceUnavailable, rr.Code)
	body := decode[map[string]any](t, rr)
	assert.Equal(t, "not_ready", body["status"])
	assert.NotContains(t, rr.Body.String(), "locked")
}

func TestMiddlewareHeaders(t *testing.T) {
	ts := newTestServer(t, Options{})

	req := httptest.NewRequest(http.MethodGet, "/api/categories", nil)
	req.Header.Set("X-Request-ID", "abc-123")
	rr := httptest.NewRecorder()
	ts.Handler.ServeHTTP(rr, req)

	assert.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, "abc-123", rr.Header().Get("X-Request-ID"))
	assert.Equal(t, "nosniff", rr.Header().Get("X-Content-Type-Options"))
	assert.Equal(t, "DENY", rr.Header().Get("X-Frame-Options"))
	assert.Contains(t, rr.Header().Get("Content-Type"), "application/json")

	rr = ts.do(t, http.MethodGet, "/api/categories", nil)
	assert.True(t, strings.HasPrefix(rr.Header().Get("X-Request-ID"), "req_"))
}

func TestRateLimit(t *testing.T) {
	ts := newTestServer(t, Options{RateLimitPerMinute: 2})

	for i := 0; i < 2; i++ {
		rr := ts.do(t, http.MethodGet, "/api/categories", nil)
		require.Equal(t, http.StatusOK, rr.Code)
	}
	rr := ts.do(t, http.MethodGet, "/api/categories", nil)
	assert.Equal(t, http.StatusTooManyRequests, rr.Code)
	assert.NotEmpty(t, rr.Header().Get("Retry-After"))
	assert.Equal(t, "rate limit exceeded", decode[errorBody](t, rr).Error)
}

func TestMetrics(t *testing.T) {
	ts := newTestServer(t, Options{})
	ts.do(t, http.MethodGet, "/api/summary", nil)
	ts.do(t, http.MethodGet, "/api/summary", nil)

	rr := ts.do(t, http.MethodGet, "/metrics", nil)
	require.Equal(t, http.StatusOK, rr.Code)
	body := rr.Body.String()
	assert.Contains(t, body, "http_requests_total 2")
	assert.Contains(t, body, "report_cache_hits_total 1")
	assert.Contains(t, body, "report_cache_misses_total 1")
	assert.Contains(t, body, "rate_limit_active_clients 1")
}

func TestMetricsExportGauges(t *testing.T) {
	ts := newTestServer(t, Options{})
	ctx := context.Background()

	a := ts.createTransaction(t, map[string]any{"description": "a", "amount": 1, "type": "expense", "date": "2024-05-01"})
	b := ts.createTransaction(t, map[string]any{"description": "b", "amount": 2, "type": "expense", "date": "2024-05-02"})
	ts.createTransaction(t, map[string]any{"description": "c", "amount": 3, "type": "expense", "date": "2024-05-03"})
	require.NoError(t, ts.repo.MarkExported(ctx, a.ID, a.Version, "ref"))
	require.NoError(t, ts.repo.MarkExportError(ctx, b.ID, b.Version, errors.New("quota")))

	rr := ts.do(t, http.MethodGet, "/metrics", nil)
	require.Equal(t, http.StatusOK, rr.Code)
	body := rr.Body.String()
	assert.Contains(t, body, "exports_synced 1\n")
	assert.Contains(t, body, "exports_errored 1\n")
	assert.Contains(t, body, "exports_pending 2\n")
}

func TestStaticPage(t *testing.T) {
	static := fstest.MapFS{"index.html": {Data: []byte("<h1>fintrack</h1>")}}
	ts := newTestServer(t, Options{Static: static})

	rr := ts.do(t, http.MethodGet, "/", nil)
	assert.Equal(t, http.StatusOK, rr.Code)
	assert.Contains(t, rr.Body.String(), "fintrack")
	assert.Equal(t, "public, max-age=3600", rr.Header().Get("Cache-Control"))

	rr = ts.do(t, http.MethodPost, "/", nil)
	assert.Equal(t, http.StatusMethodNotAllowed, rr.Code)

	rr = ts.do(t, http.MethodGet, "/api/nope", nil)
	assert.Equal(t, http.StatusNotFound, rr.Code)
	assert.Equal(t, "not found", decode[errorBody](t, rr).Error)
}

func TestErrorStatus(t *testing.T) {
	tests := []struct {
		err  error
		want int
		msg  string
	}{
		{core.Invalid("name", "is required"), http.StatusBadRequest, "name: is required"},
		{fmt.Errorf("wrap: %w", core.ErrCategoryInUse), http.StatusBadRequest, core.ErrCategoryInUse.Error()},
		{core.ErrInvalidAmount, http.StatusBadRequest, "invalid amount"},
		{fmt.Errorf("category 4: %w", core.ErrNotFound), http.StatusNotFound, "category 4: not found"},
		{fmt.Errorf("name taken: %w", core.ErrConflict), http.StatusConflict, "name taken: conflict"},
		{errors.New("disk I/O error"), http.StatusInternalServerError, "internal server error"},
	}
	for _, tt := range tests {
		t.Run(tt.err.Error(), func(t *testing.T) {
			status, msg := errorStatus(tt.err)
			assert.Equal(t, tt.want, status)
			assert.Equal(t, tt.msg, msg)
		})
	}
}

func TestDecodeJSON(t *testing.T) {
	ts := newTestServer(t, Options{})

	tests := []struct {
		name string
		body string
		want string
	}{
		{"empty", "", "request body is required"},
		{"malformed", "{", "malformed JSON"},
		{"wrong type", `{"name": 5, "type": "expense"}`, "has the wrong type"},
		{"too large", `{"name": "` + strings.Repeat("x", maxBodyBytes) + `"}`, "request body too large"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rr := ts.do(t, http.MethodPost, "/api/categories", tt.body)
			assert.Equal(t, http.StatusBadRequest, rr.Code)
			assert.Contains(t, decode[errorBody](t, rr).Error, tt.want)
		})
	}

	rr := ts.do(t, http.MethodPost, "/api/transactions", `{"description":"x","amount":"abc","type":"expense","date":"2024-05-01"}`)
	assert.Equal(t, http.StatusBadRequest, rr.Code)
	assert.Contains(t, decode[errorBody](t, rr).Error, "amount")
}
