package app

import (
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mms-dairy/mms/internal/observability"
	"github.com/mms-dairy/mms/internal/shared"
	_ "github.com/mms-dairy/mms/testing"
)

func TestLoadConfigDefaults(t *testing.T) {
	t.Setenv("APP_ENV", "development")
	t.Setenv("PG_DSN", "postgres://mms:mms@db:5432/mms")
	t.Setenv("LEDGER_LOCK_TIMEOUT", "3s")

	cfg, err := LoadConfig()
	require.NoError(t, err)
	assert.Equal(t, "postgres://mms:mms@db:5432/mms", cfg.PGDSN)
	assert.Equal(t, 3*time.Second, cfg.LedgerLockTimeout)
	assert.Positive(t, cfg.KeyRetention)
	assert.NotEmpty(t, cfg.SubscriptionCron)
	assert.False(t, cfg.IsProduction())
	assert.Equal(t, 3*time.Second, cfg.TxConfig().LockTimeout)
}

func TestLoadConfigRejectsNonPositiveRateLimit(t *testing.T) {
	t.Setenv("RATE_LIMIT_PER_MINUTE", "0")

	_, err := LoadConfig()
	require.Error(t, err)
}

func TestActorMiddleware(t *testing.T) {
	var seen int64
	h := ActorMiddleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen = shared.ActorFromContext(r.Context())
		w.WriteHeader(http.StatusNoContent)
	}))

	cases := []struct {
		name   string
		header string
		status int
		actor  int64
	}{
		{name: "anonymous", status: http.StatusNoContent},
		{name: "actor", header: "42", status: http.StatusNoContent, actor: 42},
		{name: "negative", header: "-3", status: http.StatusBadRequest},
		{name: "garbage", header: "abc", status: http.StatusBadRequest},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			seen = 0
			req := httptest.NewRequest(http.MethodGet, "/", nil)
			if tc.header != "" {
				req.Header.Set(ActorHeader, tc.header)
			}
			rec := httptest.NewRecorder()
			h.ServeHTTP(rec, req)
			assert.Equal(t, tc.status, rec.Code)
			assert.Equal(t, tc.actor, seen)
		})
	}
}

func TestRouterHealthAndMetrics(t *testing.T) {
	router := NewRouter(RouterParams{
		Logger:  slog.New(slog.NewTextHandler(io.Discard, nil)),
		Config:  &Config{AppEnv: "development", RateLimitPerMinute: 100, AppRequestTimeout: time.Second},
		Metrics: observability.NewMetrics(),
	})

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"status":"ok"}`, rec.Body.String())
	assert.Equal(t, "nosniff", rec.Header().Get("X-Content-Type-Options"))

	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "mms_http_requests_total")
}

func TestRouterUnknownRoute(t *testing.T) {
	router := NewRouter(RouterParams{Logger: slog.New(slog.NewTextHandler(io.Discard, nil))})

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/v1/inventory/stock", nil))
	assert.Equal(t, http.StatusNotFound, rec.Code)
}
