package metrics

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"
)

func TestHandler_nilMetrics(t *testing.T) {
	var m *Metrics
	rr := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/metrics", nil)

	m.Handler().ServeHTTP(rr, req)

	if rr.Code != http.StatusServiceUnavailable {
		t.Fatalf("expected 503, got %d", rr.Code)
	}
	if got := rr.Body.String(); !strings.Contains(got, "metrics unavailable") {
		t.Fatalf("expected body to mention metrics unavailable, got %q", got)
	}

	// Nil receivers are no-ops.
	m.ObserveEditorOperation("line.create", "ok")
	m.IncSplitterRejection()
	m.SetActiveWorkspaces(3)
	m.ObserveSaveDuration(time.Second)
}

func TestHandler_exposesRegisteredMetrics(t *testing.T) {
	m := New()
	m.ObserveHTTPRequest(http.MethodGet, "/readyz", http.StatusOK, 12*time.Millisecond)
	m.ObserveEditorOperation("vertex.move", "rejected")
	m.IncSplitterRejection()
	m.SetActiveWorkspaces(2)
	m.ObserveSaveDuration(20 * time.Millisecond)

	rr := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/metrics", nil)

	m.Handler().ServeHTTP(rr, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rr.Code, rr.Body.String())
	}

	body := rr.Body.String()
	if !strings.Contains(body, "fibermap_http_requests_total{method=\"GET\",path=\"/readyz\",status=\"200\"} 1") {
		t.Fatalf("expected labeled request counter to be incremented; body=%s", body)
	}
	if !strings.Contains(body, "fibermap_editor_operations_total{op=\"vertex.move\",result=\"rejected\"} 1") {
		t.Fatalf("expected editor operation counter; body=%s", body)
	}
	if !strings.Contains(body, "fibermap_splitter_limit_rejections_total 1") {
		t.Fatalf("expected splitter rejection counter; body=%s", body)
	}
	if !strings.Contains(body, "fibermap_active_workspaces 2") {
		t.Fatalf("expected active workspace gauge; body=%s", body)
	}
	if !strings.Contains(body, "fibermap_save_duration_seconds_count 1") {
		t.Fatalf("expected save histogram to have one observation; body=%s", body)
	}
}
