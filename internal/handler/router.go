package handler

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/hitoshi/eventrsvp/internal/metrics"
	"github.com/hitoshi/eventrsvp/internal/middleware"
	"github.com/hitoshi/eventrsvp/internal/model"
)

// RouterDeps はNewRouterに必要な依存関係をまとめた構造体。
type RouterDeps struct {
	Logger *slog.Logger

	// CF-Connecting-IP / X-Forwarded-For を信頼する
	TrustProxyHeaders bool

	// ミドルウェア依存
	Origins     *middleware.OriginPolicy
	RateLimiter *middleware.RateLimiter
	Metrics     metrics.MetricsCollector
	Gatherer    prometheus.Gatherer

	// 受付
	RSVPService RSVPSubmitter

	// カレンダー再配信
	ICSFilename string

	// エクスポート
	Lister      RSVPLister
	ExportToken string

	// ヘルスチェック
	DB Pinger
}

// NewRouter は全エンドポイントのルーティングとミドルウェアチェーンを構成したchi.Routerを返す。
//
// ミドルウェアスタックの実行順序:
//
//	RequestID → (TrustedProxy) → Recovery → Logging → SecurityHeaders
//
// TrustedProxy は TrustProxyHeaders が有効な場合のみ組み込む。
// /api/rsvp にはさらに CORS → RateLimit(POSTのみ) を適用する。
func NewRouter(deps *RouterDeps) http.Handler {
	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}
	mc := deps.Metrics
	if mc == nil {
		mc = metrics.Nop{}
	}
	origins := deps.Origins
	if origins == nil {
		origins = middleware.NewOriginPolicy(nil)
	}

	r := chi.NewRouter()
	r.Use(chimw.RequestID)
	if deps.TrustProxyHeaders {
		r.Use(middleware.NewTrustedProxyMiddleware())
	}
	r.Use(middleware.NewRecoveryMiddleware(logger))
	r.Use(middleware.NewLoggingMiddleware(logger, mc))
	r.Use(middleware.NewSecurityHeadersMiddleware())

	rsvpHandler := NewRSVPHandler(deps.RSVPService, origins, logger)
	icsHandler := NewICSHandler(deps.ICSFilename, logger)
	exportHandler := NewExportHandler(deps.Lister, deps.ExportToken, mc, logger)
	healthHandler := NewHealthHandler(deps.DB, logger)

	// 出欠回答受付
	r.Route("/api/rsvp", func(r chi.Router) {
		r.Use(middleware.NewCORSMiddleware(origins))

		post := http.HandlerFunc(rsvpHandler.Submit)
		if deps.RateLimiter != nil {
			r.With(deps.RateLimiter.Middleware()).Post("/", post)
		} else {
			r.Post("/", post)
		}
		r.MethodNotAllowed(rsvpHandler.MethodNotAllowed)
	})

	// カレンダーファイル
	r.Get("/api/ics/{file}", icsHandler.Download)

	// 管理者向けエクスポート
	r.Get("/admin/export", exportHandler.Export)

	// 運用
	r.Get("/health", healthHandler.Health)
	if deps.Gatherer != nil {
		r.Handle("/metrics", metrics.Handler(deps.Gatherer))
	}

	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		middleware.WriteErrorResponse(w, model.NewNotFoundError())
	})

	return r
}
