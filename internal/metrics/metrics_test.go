package metrics

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestMetricsCountersAndHandler(t *testing.T) {
	m := New()
	m.Outcome("login", "success")
	m.Outcome("login", "success")
	m.AuditFailure()
	m.Purged(3)
	m.Purged(0)

	if got := testutil.ToFloat64(m.AuthOutcomes.WithLabelValues("login", "success")); got != 2 {
		t.Fatalf("expected 2 login successes, got %v", got)
	}
	if got := testutil.ToFloat64(m.TokensPurged); got != 3 {
		t.Fatalf("expected 3 purged tokens, got %v", got)
	}

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), "bakubin_audit_write_failures_total 1") {
		t.Fatalf("expected audit failure counter in exposition")
	}
}

func TestNilMetricsIsSafe(t *testing.T) {
	var m *Metrics
	m.Outcome("login", "success")
	m.AuditFailure()
	m.AuditDrop()
	m.AuditRetry()
	m.HashRejected()
	m.RateLimited("login")
	m.Purged(1)
}
