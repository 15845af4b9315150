// Package handler は運用向けHTTPエンドポイントを提供する。
package handler

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/hitoshi/postdeck/internal/metrics"
	"github.com/hitoshi/postdeck/internal/middleware"
	"github.com/hitoshi/postdeck/internal/model"
)

// defaultPingTimeout はヘルスチェック時のDB疎通確認のタイムアウト。
const defaultPingTimeout = 2 * time.Second

// Pinger はDB疎通確認のインターフェース。*sql.DBが満たす。
type Pinger interface {
	PingContext(ctx context.Context) error
}

// OpsDeps はNewOpsRouterに必要な依存関係をまとめた構造体。
type OpsDeps struct {
	Pinger      Pinger
	Gatherer    prometheus.Gatherer
	Logger      *slog.Logger
	PingTimeout time.Duration
}

// HealthHandler はヘルスチェックエンドポイントのハンドラー。
type HealthHandler struct {
	pinger  Pinger
	timeout time.Duration
	logger  *slog.Logger
}

// NewHealthHandler は新しいHealthHandlerを生成する。
func NewHealthHandler(pinger Pinger, timeout time.Duration, logger *slog.Logger) *HealthHandler {
	if timeout <= 0 {
		timeout = defaultPingTimeout
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &HealthHandler{pinger: pinger, timeout: timeout, logger: logger}
}

// Health はGET /health を処理する。
// DBに到達できれば200、できなければ503を返す。
func (h *HealthHandler) Health(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	if err := h.pinger.PingContext(ctx); err != nil {
		h.logger.Warn("health check failed", slog.String("error", err.Error()))
		middleware.WriteErrorResponse(w, http.StatusServiceUnavailable,
			model.NewStorageFailureError("health check", err))
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	json.NewEncoder(w).Encode(map[string]string{"status": "ok"})
}

// NewOpsRouter は運用エンドポイントのルーティングを構成したchi.Routerを返す。
//
// ミドルウェアスタックの実行順序:
//
//	RequestID → Recovery → Logging → NoStore
func NewOpsRouter(deps *OpsDeps) http.Handler {
	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}

	r := chi.NewRouter()
	r.Use(chimw.RequestID)
	r.Use(middleware.NewRecoveryMiddleware(logger))
	r.Use(middleware.NewLoggingMiddleware(logger))
	r.Use(middleware.NewNoStoreMiddleware())

	health := NewHealthHandler(deps.Pinger, deps.PingTimeout, logger)
	r.Get("/health", health.Health)

	if deps.Gatherer != nil {
		r.Method(http.MethodGet, "/metrics", metrics.Handler(deps.Gatherer))
	}

	return r
}
