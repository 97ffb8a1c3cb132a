package handler

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/hitoshi/bbs/internal/metrics"
	"github.com/hitoshi/bbs/internal/middleware"
)

// RouterDeps はNewRouterに必要な依存関係をまとめた構造体。
type RouterDeps struct {
	// ミドルウェア依存
	Logger        *slog.Logger
	SessionStore  middleware.SessionStore
	SessionConfig middleware.SessionConfig
	RateLimiter   *middleware.RateLimiter

	// 運用
	HealthChecker    HealthChecker
	MetricsCollector metrics.MetricsCollector
	MetricsGatherer  prometheus.Gatherer

	// 画面
	Renderer Renderer

	// 投稿
	PostService   PostServiceInterface
	PostConfig    PostHandlerConfig
	FeedbackPosts FeedbackServiceInterface

	// 過去ログ
	LogService LogServiceInterface

	// Atomフィード
	BaseURL string
}

// NewRouter は全エンドポイントのルーティングとミドルウェアチェーンを構成したchi.Routerを返す。
//
// ミドルウェアスタックの実行順序:
//
//	Recovery → Logging → Metrics → SecurityHeaders → Session → RateLimit(General) → CSRF
//
// 運用ルート（/health, /metrics）とAtomフィードはセッションの外に配置する。
func NewRouter(deps *RouterDeps) http.Handler {
	r := chi.NewRouter()

	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}

	r.Use(middleware.NewRecoveryMiddleware())
	r.Use(middleware.NewLoggingMiddleware(logger))
	r.Use(middleware.NewMetricsMiddleware(deps.MetricsCollector))
	r.Use(middleware.NewSecurityHeadersMiddleware())

	postHandler := NewPostHandler(deps.PostService, deps.Renderer, deps.MetricsCollector, deps.PostConfig)
	logHandler := NewLogHandler(deps.LogService, deps.Renderer)
	pageHandler := NewPageHandler(deps.FeedbackPosts, deps.Renderer)
	feedHandler := NewFeedHandler(deps.PostService, deps.BaseURL)

	// --- セッション不要のルート ---
	r.Get("/health", NewHealthHandler(deps.HealthChecker))
	if deps.MetricsGatherer != nil {
		r.Handle("/metrics", metrics.Handler(deps.MetricsGatherer))
	}
	r.Get("/feed.atom", feedHandler.Atom)

	// --- 画面ルート ---
	// ミドルウェアスタック: Session → RateLimit(General) → CSRF
	r.Group(func(r chi.Router) {
		r.Use(middleware.NewSessionMiddleware(deps.SessionStore, deps.SessionConfig))
		r.Use(deps.RateLimiter.GeneralMiddleware())
		r.Use(middleware.NewCSRFMiddleware(deps.MetricsCollector))

		posting := deps.RateLimiter.PostingMiddleware()

		r.Get("/", postHandler.Index)
		r.Get("/press", pageHandler.Press)

		r.Route("/posts", func(r chi.Router) {
			r.Get("/", postHandler.Index)
			r.With(posting).Post("/", postHandler.Store)
			r.Get("/create", postHandler.Create)
			r.Get("/thread/{id}", postHandler.Thread)

			r.Route("/{id}", func(r chi.Router) {
				r.Get("/edit", postHandler.Edit)
				r.With(posting).Post("/update", postHandler.Update)
				r.With(posting).Post("/delete", postHandler.Delete)
				r.With(posting).Post("/like", postHandler.ToggleLike)
			})
		})

		r.Route("/logs", func(r chi.Router) {
			r.Get("/", logHandler.Index)
			r.Get("/download", logHandler.Download)
		})
	})

	return r
}
