package httpapi

import (
	"bufio"
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"

	"pentagon/internal/blobstore"
	"pentagon/internal/metrics"
	"pentagon/internal/pipeline"
	"pentagon/internal/sandbox"
)

type fakeSandbox struct{}

func (fakeSandbox) Run(_ context.Context, _ sandbox.RunSpec) (sandbox.RunResult, error) {
	return sandbox.RunResult{ExitCode: 0, Stdout: []byte("ok")}, nil
}

func newTestServer(t *testing.T) *Server {
	t.Helper()
	gin.SetMode(gin.TestMode)

	reg := prometheus.NewRegistry()
	sink := metrics.NewRegistry(reg)
	blobs := blobstore.NewMemoryStore()
	eng := pipeline.New(t.TempDir(), fakeSandbox{}, blobs, sink)
	return New(eng, sink, reg)
}

func TestHealthz(t *testing.T) {
	s := newTestServer(t)
	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
}

func TestMetricsEndpointServesPrometheusFormat(t *testing.T) {
	s := newTestServer(t)
	req := httptest.NewRequest(http.MethodGet, "/metrics", nil)
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), "requests_total") {
		t.Fatalf("expected requests_total metric in output, got: %s", rec.Body.String())
	}
}

func TestExecuteStreamsSSEResult(t *testing.T) {
	s := newTestServer(t)

	body := `{"executions":[{"program":"/bin/echo","args":["hi"],"return_files":[{"type":"stdout"}]}],"files":[]}`
	req := httptest.NewRequest(http.MethodPost, "/execute", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()

	s.Handler().ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d, body=%s", rec.Code, rec.Body.String())
	}
	if ct := rec.Header().Get("Content-Type"); ct != "text/event-stream" {
		t.Fatalf("expected SSE content type, got %q", ct)
	}

	scanner := bufio.NewScanner(rec.Body)
	var sawResult bool
	for scanner.Scan() {
		line := scanner.Text()
		if strings.HasPrefix(line, "event:result") || strings.Contains(line, "event: result") {
			sawResult = true
		}
	}
	if !sawResult {
		t.Fatalf("expected a result event in the SSE stream, got: %s", rec.Body.String())
	}
}

func TestExecuteRejectsMalformedJSON(t *testing.T) {
	s := newTestServer(t)
	req := httptest.NewRequest(http.MethodPost, "/execute", strings.NewReader("{not json"))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()

	s.Handler().ServeHTTP(rec, req)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rec.Code)
	}
}

func TestExecuteRejectsMissingContentType(t *testing.T) {
	s := newTestServer(t)
	body := `{"executions":[],"files":[]}`
	req := httptest.NewRequest(http.MethodPost, "/execute", strings.NewReader(body))
	rec := httptest.NewRecorder()

	s.Handler().ServeHTTP(rec, req)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for missing content-type, got %d", rec.Code)
	}
}

func TestExecuteRejectsWrongContentType(t *testing.T) {
	s := newTestServer(t)
	body := `{"executions":[],"files":[]}`
	req := httptest.NewRequest(http.MethodPost, "/execute", strings.NewReader(body))
	req.Header.Set("Content-Type", "text/plain")
	rec := httptest.NewRecorder()

	s.Handler().ServeHTTP(rec, req)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for wrong content-type, got %d", rec.Code)
	}
}
