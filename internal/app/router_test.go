package app

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/odyssey-erp/odyssey-ledger/internal/accounting/journals"
	"github.com/odyssey-erp/odyssey-ledger/internal/observability"
	"github.com/odyssey-erp/odyssey-ledger/internal/shared"
)

type stubPinger struct{ err error }

func (p stubPinger) Ping(context.Context) error { return p.err }

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestHealthz(t *testing.T) {
	cfg := &Config{AppEnv: "test", RateLimitPerMinute: 100}

	router := NewRouter(RouterParams{Logger: testLogger(), Config: cfg, DB: stubPinger{}})
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	require.Equal(t, http.StatusOK, rr.Code)
	assert.Contains(t, rr.Body.String(), `"ok"`)
	assert.Equal(t, "nosniff", rr.Header().Get("X-Content-Type-Options"))

	router = NewRouter(RouterParams{Logger: testLogger(), Config: cfg, DB: stubPinger{err: errors.New("down")}})
	rr = httptest.NewRecorder()
	router.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	assert.Equal(t, http.StatusServiceUnavailable, rr.Code)
}

func TestMetricsEndpointCountsRequests(t *testing.T) {
	metrics := observability.NewMetrics()
	router := NewRouter(RouterParams{Logger: testLogger(), Config: &Config{}, Metrics: metrics})

	router.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/healthz", nil))

	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.Equal(t, http.StatusOK, rr.Code)
	assert.True(t, strings.Contains(rr.Body.String(), "odyssey_http_requests_total"))
}

func TestJournalRoutesRequireIdentity(t *testing.T) {
	router := NewRouter(RouterParams{
		Logger:          testLogger(),
		Config:          &Config{RateLimitPerMinute: 100},
		JournalsHandler: journals.NewHandler(testLogger(), nil),
	})

	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/api/v1/journals", nil))
	assert.Equal(t, http.StatusUnauthorized, rr.Code)
	assert.Equal(t, "application/problem+json", rr.Header().Get("Content-Type"))
}

func TestIdentityMiddleware(t *testing.T) {
	var got shared.Identity
	var found bool
	h := IdentityMiddleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		got, found = shared.IdentityFromContext(r.Context())
	}))

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set(TenantHeader, " tenant-a ")
	req.Header.Set(UserHeader, "user-9")
	h.ServeHTTP(httptest.NewRecorder(), req)
	require.True(t, found)
	assert.Equal(t, shared.Identity{TenantID: "tenant-a", UserID: "user-9"}, got)

	h.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/", nil))
	assert.False(t, found)
}

func TestRateLimitPerTenant(t *testing.T) {
	router := NewRouter(RouterParams{Logger: testLogger(), Config: &Config{RateLimitPerMinute: 2}})

	send := func(tenantID string) int {
		req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
		req.Header.Set(TenantHeader, tenantID)
		rr := httptest.NewRecorder()
		router.ServeHTTP(rr, req)
		return rr.Code
	}

	assert.Equal(t, http.StatusOK, send("tenant-a"))
	assert.Equal(t, http.StatusOK, send("tenant-a"))
	assert.Equal(t, http.StatusTooManyRequests, send("tenant-a"))
	assert.Equal(t, http.StatusOK, send("tenant-b"))
}
