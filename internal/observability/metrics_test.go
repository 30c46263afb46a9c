package observability

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
)

func scrape(t *testing.T, metrics *Metrics) string {
	t.Helper()
	rr := httptest.NewRecorder()
	metrics.Handler().ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	if rr.Code != http.StatusOK {
		t.Fatalf("unexpected status: %d", rr.Code)
	}
	return rr.Body.String()
}

func TestMetricsMiddlewareRecordsRequest(t *testing.T) {
	metrics := NewMetrics()

	handler := metrics.Middleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTeapot)
	}))

	routeCtx := chi.NewRouteContext()
	routeCtx.RoutePatterns = append(routeCtx.RoutePatterns, "/test")

	req := httptest.NewRequest(http.MethodGet, "/test", nil)
	ctx := context.WithValue(req.Context(), chi.RouteCtxKey, routeCtx)
	req = req.WithContext(ctx)

	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, req)

	if rr.Code != http.StatusTeapot {
		t.Fatalf("expected status %d, got %d", http.StatusTeapot, rr.Code)
	}

	body := scrape(t, metrics)
	if !strings.Contains(body, `mms_http_requests_total{code="418",route="/test"} 1`) {
		t.Fatalf("expected metrics to record request, got: %s", body)
	}
	if !strings.Contains(body, `mms_http_request_duration_seconds_bucket{route="/test"`) {
		t.Fatalf("expected duration histogram to be present, got: %s", body)
	}
}

func TestObserveLedgerOp(t *testing.T) {
	metrics := NewMetrics()

	metrics.ObserveLedgerOp("sales.retail", "ok", 3*time.Millisecond)
	metrics.ObserveLedgerOp("sales.retail", "insufficient_stock", time.Millisecond)
	metrics.ObserveLedgerOp("sales.retail", "ok", time.Millisecond)

	body := scrape(t, metrics)
	if !strings.Contains(body, `mms_ledger_operations_total{op="sales.retail",outcome="ok"} 2`) {
		t.Fatalf("expected ok counter, got: %s", body)
	}
	if !strings.Contains(body, `mms_ledger_operations_total{op="sales.retail",outcome="insufficient_stock"} 1`) {
		t.Fatalf("expected shortage counter, got: %s", body)
	}
	if !strings.Contains(body, `mms_ledger_operation_duration_seconds_count{op="sales.retail"} 3`) {
		t.Fatalf("expected duration count, got: %s", body)
	}
}

func TestNilMetricsAreSafe(t *testing.T) {
	var metrics *Metrics
	metrics.ObserveLedgerOp("inventory.purchase", "ok", time.Second)

	rr := httptest.NewRecorder()
	metrics.Handler().ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	if rr.Code != http.StatusServiceUnavailable {
		t.Fatalf("expected 503, got %d", rr.Code)
	}
}
