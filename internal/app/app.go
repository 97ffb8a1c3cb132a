package app

import (
	"context"
	"database/sql"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/redis/go-redis/v9"

	"github.com/hitoshi/bbs/internal/config"
	"github.com/hitoshi/bbs/internal/database"
	"github.com/hitoshi/bbs/internal/handler"
	"github.com/hitoshi/bbs/internal/logger"
	"github.com/hitoshi/bbs/internal/logs"
	"github.com/hitoshi/bbs/internal/metrics"
	"github.com/hitoshi/bbs/internal/middleware"
	"github.com/hitoshi/bbs/internal/post"
	"github.com/hitoshi/bbs/internal/repository"
	"github.com/hitoshi/bbs/internal/security"
	"github.com/hitoshi/bbs/internal/view"
	"github.com/hitoshi/bbs/internal/worker/cleanup"
)

// pingTimeout は起動時のデータストア疎通確認のタイムアウト。
const pingTimeout = 5 * time.Second

// Init はアプリケーションの初期化を行う。
// 環境変数からConfigを読み込み、JSON構造化ログをセットアップする。
// writerが指定された場合はログ出力先としてそのwriterを使用する。
func Init(w io.Writer) (*config.Config, error) {
	// 1. ログの初期化（設定読み込み前にログを使えるようにする）
	logger.SetupDefault(w)

	// 2. 環境変数から設定を読み込む
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}

	// 3. 設定されたログレベルで再構成する
	logger.SetupDefault(w, logger.ParseLevel(cfg.LogLevel))

	return cfg, nil
}

// Run はアプリケーションのメインエントリーポイント。
// コマンドライン引数からサブコマンドを解析し、対応するモードで起動する。
// argsにはos.Args[1:]を渡す。
func Run(w io.Writer, args []string) error {
	cmd := ParseCommand(args)

	// healthcheck は軽量サブコマンドのため、フル初期化をスキップする
	if cmd == CommandHealthcheck {
		port := os.Getenv("SERVER_PORT")
		if port == "" {
			port = "8080"
		}
		return runHealthcheck(port)
	}

	cfg, err := Init(w)
	if err != nil {
		return fmt.Errorf("initialization failed: %w", err)
	}

	slog.Info("starting application",
		slog.String("app", cfg.AppName),
		slog.String("command", string(cmd)),
		slog.String("port", cfg.ServerPort),
		slog.String("base_url", cfg.BaseURL),
		slog.String("store_driver", cfg.StoreDriver),
		slog.String("session_store", cfg.SessionStore),
	)

	switch cmd {
	case CommandServe:
		return runServe(cfg)
	case CommandWorker:
		return runWorker(cfg)
	case CommandMigrate:
		steps, err := ParseRollbackSteps(args)
		if err != nil {
			return err
		}
		return runMigrate(cfg, steps)
	default:
		return runServe(cfg)
	}
}

// stores は設定に応じて構成したデータストアをまとめたもの。
type stores struct {
	db       *sql.DB
	redis    *redis.Client
	posts    repository.PostRepository
	sessions repository.SessionRepository
	// expired はTTLで自動失効しないセッションストアのみ設定される
	expired repository.ExpiredSessionDeleter
}

// Close は開いている接続を閉じる。
func (s *stores) Close() {
	if s.redis != nil {
		_ = s.redis.Close()
	}
	if s.db != nil {
		_ = s.db.Close()
	}
}

// healthChecker はルーターに渡すヘルスチェック対象を返す。
func (s *stores) healthChecker() handler.HealthChecker {
	if s.db == nil {
		return nil
	}
	return s.db
}

// openStores はSTORE_DRIVERとSESSION_STOREに従ってリポジトリを構成する。
func openStores(ctx context.Context, cfg *config.Config) (*stores, error) {
	st := &stores{}

	if cfg.StoreDriver == config.DriverPostgres || cfg.SessionStore == config.DriverPostgres {
		db, err := database.Open(cfg.DatabaseURL)
		if err != nil {
			return nil, fmt.Errorf("failed to open database: %w", err)
		}
		st.db = db
		if err := database.Ping(ctx, db, pingTimeout); err != nil {
			st.Close()
			return nil, fmt.Errorf("failed to connect to database: %w", err)
		}
		slog.Info("database connection established")
	}

	switch cfg.StoreDriver {
	case config.DriverMemory:
		st.posts = repository.NewMemoryPostRepo(cfg.Location())
		slog.Warn("using in-memory post store; posts are lost on restart")
	default:
		st.posts = repository.NewPostgresPostRepo(st.db, cfg.Timezone)
	}

	switch cfg.SessionStore {
	case config.DriverRedis:
		client := repository.NewRedisClient(cfg.RedisURL)
		st.redis = client
		pingCtx, cancel := context.WithTimeout(ctx, pingTimeout)
		defer cancel()
		if err := client.Ping(pingCtx).Err(); err != nil {
			st.Close()
			return nil, fmt.Errorf("failed to connect to redis: %w", err)
		}
		st.sessions = repository.NewRedisSessionRepo(client)
		slog.Info("redis connection established")
	case config.DriverMemory:
		mem := repository.NewMemorySessionRepo()
		st.sessions = mem
		st.expired = mem
	default:
		pg := repository.NewPostgresSessionRepo(st.db)
		st.sessions = pg
		st.expired = pg
	}

	return st, nil
}

// newRegistry はアプリケーションのメトリクスとランタイムのメトリクスを登録したレジストリを返す。
func newRegistry() (*prometheus.Registry, *metrics.Collector) {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return reg, metrics.NewCollector(reg)
}

// buildRouter は設定とデータストアから全依存関係をワイヤリングしたルーターを構築する。
// 戻り値の関数はバックグラウンド処理を停止する。
func buildRouter(cfg *config.Config, st *stores, reg *prometheus.Registry, collector *metrics.Collector) (http.Handler, func(), error) {
	loc := cfg.Location()

	// 1. ドメインサービスの初期化
	postService := post.NewPostService(st.posts, post.BoardOptions{
		LatestLimit: cfg.BoardLatestLimit,
		WindowDays:  cfg.BoardWindowDays,
		Location:    loc,
	})
	logService := logs.NewLogService(st.posts, loc)

	// 2. 画面の初期化
	renderer, err := view.New(security.NewTextFormatter("/posts"), loc)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to load templates: %w", err)
	}

	// 3. ルーターの構築
	// configのレート制限はreq/min単位
	rateLimiter := middleware.NewRateLimiter(
		middleware.NewRateLimiterConfig(cfg.RateLimitGeneral, cfg.RateLimitPosting),
		collector,
	)

	deps := &handler.RouterDeps{
		Logger:       slog.Default(),
		SessionStore: st.sessions,
		SessionConfig: middleware.SessionConfig{
			TTL:          cfg.SessionTTL(),
			CookieSecure: cfg.CookieSecure,
		},
		RateLimiter: rateLimiter,

		HealthChecker:    st.healthChecker(),
		MetricsCollector: collector,
		MetricsGatherer:  reg,

		Renderer: renderer,

		PostService: postService,
		PostConfig: handler.PostHandlerConfig{
			TagWindowDays: cfg.TagWindowDays,
			TagLimit:      cfg.TagLimit,
		},
		FeedbackPosts: postService,

		LogService: logService,

		BaseURL: cfg.BaseURL,
	}

	return handler.NewRouter(deps), rateLimiter.Stop, nil
}

// runServe はHTTPサーバーモードで起動する。
// データストアを開き、全依存関係をワイヤリングし、HTTPサーバーを起動する。
// SIGINTまたはSIGTERMシグナルを受信するとグレースフルシャットダウンを行う。
func runServe(cfg *config.Config) error {
	ctx, stopSignals := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stopSignals()

	// 1. データストア
	st, err := openStores(ctx, cfg)
	if err != nil {
		return err
	}
	defer st.Close()

	// 2. メトリクスとルーター
	reg, collector := newRegistry()
	router, stopBackground, err := buildRouter(cfg, st, reg, collector)
	if err != nil {
		return err
	}
	defer stopBackground()

	// 3. メモリストアは別プロセスのworkerから掃除できないため、同じプロセスで動かす
	if cfg.SessionStore == config.DriverMemory {
		if err := startCleanup(ctx, cfg, st, collector); err != nil {
			return err
		}
	}

	// 4. HTTPサーバーの起動
	server := &http.Server{
		Addr:         ":" + cfg.ServerPort,
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		slog.Info("HTTP server starting",
			slog.String("addr", server.Addr),
		)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return fmt.Errorf("server listen error: %w", err)
	case <-ctx.Done():
	}
	slog.Info("shutting down HTTP server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server shutdown failed: %w", err)
	}

	slog.Info("HTTP server stopped gracefully")
	return nil
}

// startCleanup はセッションクリーンアップのスケジューラをバックグラウンドで起動する。
func startCleanup(ctx context.Context, cfg *config.Config, st *stores, recorder cleanup.CleanedRecorder) error {
	job := cleanup.NewCleanupJob(st.expired, slog.Default(), recorder)
	job.Timeout = cfg.CleanupTimeout

	scheduler, err := cleanup.NewScheduler(job, cfg.CleanupSchedule, cfg.Location(), slog.Default())
	if err != nil {
		return fmt.Errorf("failed to create cleanup scheduler: %w", err)
	}
	go scheduler.Start(ctx)
	return nil
}

// runWorker はワーカーモードで起動する。
// PostgreSQLのセッションストアに対して期限切れセッションの定期削除を行う。
// SIGINTまたはSIGTERMシグナルを受信するとシャットダウンする。
func runWorker(cfg *config.Config) error {
	if cfg.SessionStore != config.DriverPostgres {
		// Redisはキーの有効期限、メモリストアはserveプロセス内で削除する
		slog.Info("worker has nothing to do for this session store",
			slog.String("session_store", cfg.SessionStore),
		)
		return nil
	}

	ctx, stopSignals := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stopSignals()

	db, err := database.Open(cfg.DatabaseURL)
	if err != nil {
		return fmt.Errorf("failed to open database: %w", err)
	}
	defer db.Close()

	if err := database.Ping(ctx, db, pingTimeout); err != nil {
		return fmt.Errorf("failed to connect to database: %w", err)
	}

	slog.Info("database connection established (worker)")

	sessionRepo := repository.NewPostgresSessionRepo(db)
	job := cleanup.NewCleanupJob(sessionRepo, slog.Default(), nil)
	job.Timeout = cfg.CleanupTimeout

	scheduler, err := cleanup.NewScheduler(job, cfg.CleanupSchedule, cfg.Location(), slog.Default())
	if err != nil {
		return fmt.Errorf("failed to create cleanup scheduler: %w", err)
	}

	slog.Info("worker starting",
		slog.String("cleanup_schedule", cfg.CleanupSchedule),
		slog.Duration("cleanup_timeout", cfg.CleanupTimeout),
	)

	// シグナルを受信するまでブロックする
	scheduler.Start(ctx)

	slog.Info("worker stopped gracefully")
	return nil
}

// runMigrate はデータベースマイグレーションを実行する。
// stepsが0ならすべての未適用マイグレーションを順番に適用し、正ならその段数だけ戻す。
func runMigrate(cfg *config.Config, steps int) error {
	if cfg.DatabaseURL == "" {
		return fmt.Errorf("migration requires DATABASE_URL")
	}

	if steps > 0 {
		slog.Info("rolling back database migrations",
			slog.String("database_url", maskDatabaseURL(cfg.DatabaseURL)),
			slog.Int("steps", steps),
		)
		if err := database.RollbackMigrations(cfg.DatabaseURL, steps); err != nil {
			return fmt.Errorf("rollback failed: %w", err)
		}
		slog.Info("database rollback completed")
		return nil
	}

	slog.Info("running database migrations",
		slog.String("database_url", maskDatabaseURL(cfg.DatabaseURL)),
	)

	version, err := database.RunMigrations(cfg.DatabaseURL)
	if err != nil {
		return fmt.Errorf("migration failed: %w", err)
	}

	slog.Info("database migrations completed successfully",
		slog.Uint64("version", uint64(version)),
	)
	return nil
}

// runHealthcheck はヘルスチェックを実行する。
// distroless環境でのDockerヘルスチェック用サブコマンド。
// /health エンドポイントにHTTPリクエストを送り、結果を返す。
func runHealthcheck(port string) error {
	url := fmt.Sprintf("http://localhost:%s/health", port)
	client := &http.Client{Timeout: 5 * time.Second}

	resp, err := client.Get(url)
	if err != nil {
		return fmt.Errorf("health check failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("health check returned status %d", resp.StatusCode)
	}

	return nil
}

// maskDatabaseURL はデータベースURLの認証情報をマスクする。
func maskDatabaseURL(url string) string {
	if len(url) > 20 {
		return url[:12] + "***@..."
	}
	return "***"
}
