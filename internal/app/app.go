package app

import (
	"context"
	"database/sql"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"github.com/hitoshi/eventrsvp/internal/calendar"
	"github.com/hitoshi/eventrsvp/internal/captcha"
	"github.com/hitoshi/eventrsvp/internal/config"
	"github.com/hitoshi/eventrsvp/internal/database"
	"github.com/hitoshi/eventrsvp/internal/handler"
	"github.com/hitoshi/eventrsvp/internal/logger"
	"github.com/hitoshi/eventrsvp/internal/metrics"
	"github.com/hitoshi/eventrsvp/internal/middleware"
	"github.com/hitoshi/eventrsvp/internal/notify"
	"github.com/hitoshi/eventrsvp/internal/repository"
	"github.com/hitoshi/eventrsvp/internal/rsvp"
	"github.com/hitoshi/eventrsvp/internal/security"
)

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

	// 3. ログレベルの反映
	if err := logger.SetLevel(cfg.LogLevel); err != nil {
		slog.Warn("invalid LOG_LEVEL, falling back to info", slog.String("error", err.Error()))
	}

	return cfg, nil
}

// Run はアプリケーションのメインエントリーポイント。
// コマンドライン引数からサブコマンドを解析し、対応するモードで起動する。
// argsにはos.Args[1:]を渡す。
func Run(w io.Writer, args []string) error {
	cmd, err := ParseCommand(args)
	if err != nil {
		fmt.Fprint(w, Usage)
		return err
	}
	if cmd == CommandHelp {
		fmt.Fprint(w, Usage)
		return nil
	}

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
		slog.String("command", string(cmd)),
		slog.String("port", cfg.ServerPort),
		slog.String("event_slug", cfg.Event.Slug),
		slog.Bool("captcha_enabled", cfg.CaptchaEnabled()),
		slog.Bool("email_enabled", cfg.EmailEnabled()),
	)

	switch cmd {
	case CommandMigrate:
		return runMigrate(cfg)
	default:
		return runServe(cfg)
	}
}

// runServe はAPIサーバーモードで起動する。
// DB接続を開き、全依存関係をワイヤリングし、HTTPサーバーを起動する。
// SIGINTまたはSIGTERMシグナルを受信するとグレースフルシャットダウンを行う。
func runServe(cfg *config.Config) error {
	// 1. DB接続（SQLiteは起動時にスキーマを用意する）
	dialect, err := database.DialectFor(cfg.DatabaseURL)
	if err != nil {
		return fmt.Errorf("failed to open database: %w", err)
	}
	if dialect == database.DialectSQLite {
		if err := database.RunMigrations(cfg.DatabaseURL); err != nil {
			return fmt.Errorf("migration failed: %w", err)
		}
	}

	db, dialect, err := database.Open(cfg.DatabaseURL)
	if err != nil {
		return fmt.Errorf("failed to open database: %w", err)
	}
	defer db.Close()

	if err := db.Ping(); err != nil {
		return fmt.Errorf("failed to connect to database: %w", err)
	}

	slog.Info("database connection established", slog.String("dialect", string(dialect)))

	// 2. 依存関係の構築
	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	router, closeFn := NewHandler(cfg, db, dialect, reg, slog.Default())
	defer closeFn()

	// 3. HTTPサーバーの起動
	server := &http.Server{
		Addr:         ":" + cfg.ServerPort,
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// グレースフルシャットダウンのためのシグナルハンドリング
	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)

	serveErr := make(chan error, 1)
	go func() {
		slog.Info("API server starting",
			slog.String("addr", server.Addr),
		)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			serveErr <- err
		}
	}()

	select {
	case <-stop:
	case err := <-serveErr:
		return fmt.Errorf("server listen error: %w", err)
	}
	slog.Info("shutting down API server...")

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(ctx); err != nil {
		return fmt.Errorf("server shutdown failed: %w", err)
	}

	slog.Info("API server stopped gracefully")
	return nil
}

// NewHandler は設定とDB接続から全コンポーネントを組み立て、ルーターを返す。
// 戻り値の関数はバックグラウンド処理（レートリミッターのクリーンアップ）を停止する。
func NewHandler(cfg *config.Config, db *sql.DB, dialect database.Dialect, reg *prometheus.Registry, log *slog.Logger) (http.Handler, func()) {
	// 1. リポジトリ
	repo := repository.NewSQLRSVPRepo(db, dialect)

	// 2. メトリクス
	collector := metrics.NewCollector(reg)

	// 3. 外部通信（SSRF対策済みクライアント）
	guard := security.NewOutboundGuard()

	verifier := captcha.NewClient(
		guard.NewSafeClient(cfg.CaptchaTimeout),
		log,
		cfg.TurnstileSecret,
		cfg.CaptchaTimeout,
	)

	// SENDGRID_API_KEY 未設定時はMailerをnilのまま渡し、送信を無効にする
	var mailer notify.Mailer
	if cfg.EmailEnabled() {
		mailer = notify.NewSendGridClient(guard.NewSafeClient(cfg.EmailTimeout), log, cfg.SendGridAPIKey)
	}
	dispatcher := notify.NewDispatcher(mailer, security.NewEmailSanitizer(), guard, collector, log, notify.Options{
		FromEmail:  cfg.FromEmail,
		FromName:   cfg.FromName,
		InternalTo: cfg.InternalNotifyTo,
		Timeout:    cfg.EmailTimeout,
		Event:      cfg.Event,
	})

	// 4. カレンダー
	builder := calendar.NewBuilder(calendar.Event{
		Title:     cfg.Event.Title,
		Details:   cfg.Event.Details,
		Location:  cfg.Event.Location,
		Start:     cfg.Event.Start,
		End:       cfg.Event.End,
		UIDDomain: cfg.Event.UIDDomain,
		ProductID: cfg.Event.ProductID,
	})

	// 5. 受付サービス
	service := rsvp.NewService(rsvp.Deps{
		Repository:    repo,
		Verifier:      verifier,
		Notifier:      dispatcher,
		Calendar:      builder,
		Metrics:       collector,
		Logger:        log,
		EventSlug:     cfg.Event.Slug,
		PublicBaseURL: cfg.PublicBaseURL,
	})

	// 6. ルーター
	limiter := middleware.NewRateLimiter(middleware.DefaultRateLimiterConfig(cfg.RateLimitRSVP), log)

	router := handler.NewRouter(&handler.RouterDeps{
		Logger:            log,
		TrustProxyHeaders: cfg.TrustProxyHeaders,
		Origins:           middleware.NewOriginPolicy(cfg.AllowedOrigins),
		RateLimiter:       limiter,
		Metrics:           collector,
		Gatherer:          reg,
		RSVPService:       service,
		ICSFilename:       cfg.Event.ICSFilename,
		Lister:            repo,
		ExportToken:       cfg.ExportToken,
		DB:                db,
	})
	return router, limiter.Stop
}

// runMigrate はデータベースマイグレーションを実行する。
// すべての未適用マイグレーションを順番に適用する。
func runMigrate(cfg *config.Config) error {
	slog.Info("running database migrations",
		slog.String("database_url", maskDatabaseURL(cfg.DatabaseURL)),
	)

	if err := database.RunMigrations(cfg.DatabaseURL); err != nil {
		return fmt.Errorf("migration failed: %w", err)
	}

	slog.Info("database migrations completed successfully")
	return nil
}

// runHealthcheck はヘルスチェックを実行する。
// distroless環境でのDockerヘルスチェック用サブコマンド。
// /health エンドポイントにHTTPリクエストを送り、結果を返す。
func runHealthcheck(port string) error {
	target := fmt.Sprintf("http://localhost:%s/health", port)
	client := &http.Client{Timeout: 5 * time.Second}

	resp, err := client.Get(target)
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
func maskDatabaseURL(raw string) string {
	u, err := url.Parse(raw)
	if err != nil {
		return "***"
	}
	if u.User != nil {
		u.User = url.User("***")
	}
	return u.Redacted()
}
