package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/hitoshi/postdeck/internal/metrics"
	"github.com/hitoshi/postdeck/internal/middleware"
	"github.com/hitoshi/postdeck/internal/model"
)

// --- モック定義 ---

type mockPinger struct {
	pingFn func(ctx context.Context) error
}

func (m *mockPinger) PingContext(ctx context.Context) error {
	if m.pingFn != nil {
		return m.pingFn(ctx)
	}
	return nil
}

func newTestRouter(pinger Pinger, gatherer prometheus.Gatherer) http.Handler {
	return NewOpsRouter(&OpsDeps{
		Pinger:   pinger,
		Gatherer: gatherer,
		Logger:   slog.New(slog.NewJSONHandler(io.Discard, nil)),
	})
}

func TestHealth_OK(t *testing.T) {
	router := newTestRouter(&mockPinger{}, nil)

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("GET /health status = %d, want %d", w.Code, http.StatusOK)
	}
	var body map[string]string
	if err := json.NewDecoder(w.Body).Decode(&body); err != nil {
		t.Fatalf("failed to decode response body: %v", err)
	}
	if body["status"] != "ok" {
		t.Errorf("status = %q, want ok", body["status"])
	}
	if got := w.Header().Get("Cache-Control"); got != "no-store" {
		t.Errorf("Cache-Control = %q, want no-store", got)
	}
}

func TestHealth_DatabaseUnavailable(t *testing.T) {
	router := newTestRouter(&mockPinger{pingFn: func(ctx context.Context) error {
		return errors.New("connection refused")
	}}, nil)

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	if w.Code != http.StatusServiceUnavailable {
		t.Fatalf("GET /health status = %d, want %d", w.Code, http.StatusServiceUnavailable)
	}
	var body middleware.ErrorResponseBody
	if err := json.NewDecoder(w.Body).Decode(&body); err != nil {
		t.Fatalf("failed to decode response body: %v", err)
	}
	if body.Code != model.ErrCodeStorageFailure {
		t.Errorf("code = %q, want %q", body.Code, model.ErrCodeStorageFailure)
	}
}

// ヘルスチェックのDB疎通確認にはタイムアウトが設定される
func TestHealth_PingHasDeadline(t *testing.T) {
	var hasDeadline bool
	pinger := &mockPinger{pingFn: func(ctx context.Context) error {
		_, hasDeadline = ctx.Deadline()
		return nil
	}}
	h := NewHealthHandler(pinger, time.Second, nil)

	w := httptest.NewRecorder()
	h.Health(w, httptest.NewRequest(http.MethodGet, "/health", nil))

	if !hasDeadline {
		t.Error("expected ping context to have a deadline")
	}
}

func TestMetrics_ExposesRegisteredCollectors(t *testing.T) {
	reg := prometheus.NewRegistry()
	c := metrics.NewCollector(reg)
	c.RecordSetDefault(metrics.ResultOK)

	router := newTestRouter(&mockPinger{}, reg)

	req := httptest.NewRequest(http.MethodGet, "/metrics", nil)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("GET /metrics status = %d, want %d", w.Code, http.StatusOK)
	}
	if !strings.Contains(w.Body.String(), `postdeck_set_default_total{result="ok"} 1`) {
		t.Errorf("metrics output missing set_default counter:\n%s", w.Body.String())
	}
}

func TestMetrics_NotMountedWithoutGatherer(t *testing.T) {
	router := newTestRouter(&mockPinger{}, nil)

	req := httptest.NewRequest(http.MethodGet, "/metrics", nil)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	if w.Code != http.StatusNotFound {
		t.Errorf("GET /metrics status = %d, want %d", w.Code, http.StatusNotFound)
	}
}

// panicはリカバリーミドルウェアで500に変換される
func TestOpsRouter_RecoversPanic(t *testing.T) {
	var buf bytes.Buffer
	router := NewOpsRouter(&OpsDeps{
		Pinger: &mockPinger{pingFn: func(ctx context.Context) error { panic("boom") }},
		Logger: slog.New(slog.NewJSONHandler(&buf, nil)),
	})

	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/health", nil))

	if w.Code != http.StatusInternalServerError {
		t.Errorf("status = %d, want %d", w.Code, http.StatusInternalServerError)
	}
	if !strings.Contains(buf.String(), "panic recovered") {
		t.Errorf("expected panic to be logged, got %s", buf.String())
	}
}
