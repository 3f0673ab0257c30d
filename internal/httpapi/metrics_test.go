package httpapi

import (
	"bytes"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

// TestMetricsMiddleware_EmitsRequestCounters verifies that wrapping a handler
// with MetricsMiddleware results in request metrics being exposed via the
// Prometheus /metrics handler.
func TestMetricsMiddleware_EmitsRequestCounters(t *testing.T) {
	next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})

	rr := httptest.NewRecorder()
	MetricsMiddleware(next).ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/test", nil))
	if rr.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d", rr.Code)
	}

	mrr := httptest.NewRecorder()
	promhttp.Handler().ServeHTTP(mrr, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	if mrr.Code != http.StatusOK {
		t.Fatalf("/metrics status=%d", mrr.Code)
	}
	body := mrr.Body.Bytes()
	if !bytes.Contains(body, []byte("vattn_http_requests_total")) {
		previewLen := len(body)
		if previewLen > 200 {
			previewLen = 200
		}
		t.Fatalf("expected to find vattn_http_requests_total in metrics; got: %q", string(body[:previewLen]))
	}
}

// Routed requests are labelled with the chi pattern, not the raw path.
func TestMetricsMiddleware_UsesRoutePattern(t *testing.T) {
	r := NewMux(&mockService{})
	before := testutil.ToFloat64(httpRequestsTotal.WithLabelValues("/status", http.MethodGet, "200"))
	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/status?x=1", nil))
	after := testutil.ToFloat64(httpRequestsTotal.WithLabelValues("/status", http.MethodGet, "200"))
	if after-before != 1 {
		t.Fatalf("counter delta=%v", after-before)
	}
}

func TestMetricsMiddleware_RecordsErrorStatus(t *testing.T) {
	r := NewMux(&mockService{})
	before := testutil.ToFloat64(httpRequestsTotal.WithLabelValues("/mappings", http.MethodGet, "400"))
	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/mappings?request_id=x", nil))
	after := testutil.ToFloat64(httpRequestsTotal.WithLabelValues("/mappings", http.MethodGet, "400"))
	if after-before != 1 {
		t.Fatalf("counter delta=%v", after-before)
	}
}
