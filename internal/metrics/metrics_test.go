package metrics

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestObserve(t *testing.T) {
	m := New()
	m.ObserveAPI("GET", "/workspaces/", "200", 10*time.Millisecond)
	m.ObserveGateway("gemini", "timeout", time.Second)
	m.ObserveChatCreated("created")
	m.ObserveChatCreated("created")

	if got := testutil.ToFloat64(m.apiRequests.WithLabelValues("GET", "/workspaces/", "200")); got != 1 {
		t.Fatalf("api requests = %v", got)
	}
	if got := testutil.ToFloat64(m.gatewayCalls.WithLabelValues("gemini", "timeout")); got != 1 {
		t.Fatalf("gateway calls = %v", got)
	}
	if got := testutil.ToFloat64(m.branches.WithLabelValues("created")); got != 2 {
		t.Fatalf("branches = %v", got)
	}

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	if !strings.Contains(rec.Body.String(), "canvas_chat_creations_total") {
		t.Fatalf("exposition missing branch counter")
	}
}

func TestNilMetricsIsNoop(t *testing.T) {
	var m *Metrics
	m.ObserveAPI("GET", "/", "200", time.Millisecond)
	m.ObserveGateway("x", "ok", time.Millisecond)
	m.ObserveChatCreated("none")
	m.ObserveJob("succeeded")
	m.ApiInflightInc()
	m.ApiInflightDec()
}
