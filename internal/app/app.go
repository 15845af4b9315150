package app

import (
	"context"
	"database/sql"
	"errors"
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

	"github.com/hitoshi/postdeck/internal/account"
	"github.com/hitoshi/postdeck/internal/config"
	"github.com/hitoshi/postdeck/internal/database"
	"github.com/hitoshi/postdeck/internal/handler"
	"github.com/hitoshi/postdeck/internal/logger"
	"github.com/hitoshi/postdeck/internal/metrics"
	"github.com/hitoshi/postdeck/internal/repository"
	"github.com/hitoshi/postdeck/internal/worker/cleanup"
	"github.com/hitoshi/postdeck/internal/worker/reconcile"
)

const (
	defaultOpsPort  = "9090"
	shutdownTimeout = 30 * time.Second
	cleanupInterval = 24 * time.Hour
)

var errFlagPair = errors.New("--user and --platform must be given together")

// Init はアプリケーションの初期化を行う。
// JSON構造化ログをセットアップし、環境変数からConfigを読み込む。
// 読み込み後はLOG_LEVELに従ってロガーを再設定する。
func Init(w io.Writer) (*config.Config, error) {
	// 1. ログの初期化（設定読み込み前にログを使えるようにする）
	logger.SetupDefault(w, slog.LevelInfo)

	// 2. 環境変数から設定を読み込む
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}

	level, err := logger.ParseLevel(cfg.LogLevel)
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	logger.SetupDefault(w, level)

	return cfg, nil
}

// Run はアプリケーションのメインエントリーポイント。
// argsにはos.Args[1:]を渡す。wはログの出力先。
func Run(w io.Writer, args []string) error {
	root := NewRootCommand(w)
	root.SetArgs(args)
	return root.ExecuteContext(context.Background())
}

// components はDB接続とそれに依存するサービス群をまとめる。
type components struct {
	db       *sql.DB
	cfg      *config.Config
	registry *prometheus.Registry
	accounts *repository.SQLAccountRepo
	enforcer *account.DefaultEnforcer
	service  *account.Service
}

// openComponents はDB接続を開き、全依存関係をワイヤリングする。
func openComponents(ctx context.Context, cfg *config.Config) (*components, error) {
	// 1. DB接続
	db, err := database.Open(cfg.Driver, cfg.DatabaseURL)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	db.SetMaxOpenConns(cfg.DBMaxOpenConns)

	pingCtx, cancel := context.WithTimeout(ctx, cfg.OperationTimeout)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	slog.Info("database connection established",
		slog.String("driver", string(cfg.Driver)),
	)

	// 2. メトリクス
	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewDBStatsCollector(db, "postdeck"),
	)
	collector := metrics.NewCollector(registry)

	// 3. リポジトリとドメインサービスの初期化
	userRepo := repository.NewSQLUserRepo(db)
	accountRepo := repository.NewSQLAccountRepo(db, cfg.Driver)

	enforcer := account.NewDefaultEnforcer(accountRepo, collector, slog.Default(), account.SweepConfig{
		Concurrency:   cfg.ReconcileConcurrency,
		RatePerSecond: cfg.ReconcileRatePerSec,
	})
	service := account.NewService(userRepo, accountRepo, enforcer, slog.Default())

	return &components{
		db:       db,
		cfg:      cfg,
		registry: registry,
		accounts: accountRepo,
		enforcer: enforcer,
		service:  service,
	}, nil
}

// Close はDB接続を閉じる。
func (c *components) Close() error {
	return c.db.Close()
}

// runWorker はワーカーモードで起動する。
// 整合処理を起動直後とRECONCILE_INTERVALごとに実行し、OPS_PORTで /health と /metrics を公開する。
// SIGINTまたはSIGTERMシグナルを受信するとグレースフルシャットダウンを行う。
func runWorker(cfg *config.Config) error {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	c, err := openComponents(ctx, cfg)
	if err != nil {
		return err
	}
	defer c.Close()

	server := &http.Server{
		Addr: ":" + cfg.OpsPort,
		Handler: handler.NewOpsRouter(&handler.OpsDeps{
			Pinger:   c.db,
			Gatherer: c.registry,
			Logger:   slog.Default(),
		}),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// グレースフルシャットダウンのためのシグナルハンドリング
	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(stop)

	serverErr := make(chan error, 1)
	go func() {
		slog.Info("ops server starting", slog.String("addr", server.Addr))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErr <- err
		}
	}()

	runner := reconcile.NewRunner(c.enforcer, slog.Default(), 0)
	runnerDone := make(chan struct{})
	go func() {
		defer close(runnerDone)
		runner.Start(ctx, cfg.ReconcileInterval)
	}()

	// 論理削除済みアカウントのクリーンアップを日次でバックグラウンド実行
	cleanupJob := cleanup.NewCleanupJob(c.accounts, slog.Default(), cfg.DeletedAccountRetention)
	cleanupDone := make(chan struct{})
	go func() {
		defer close(cleanupDone)
		cleanupJob.Start(ctx, cleanupInterval)
	}()

	slog.Info("worker starting",
		slog.Duration("reconcile_interval", cfg.ReconcileInterval),
		slog.Int("concurrency", cfg.ReconcileConcurrency),
		slog.Float64("rate_per_sec", cfg.ReconcileRatePerSec),
	)

	var runErr error
	select {
	case <-stop:
		slog.Info("shutting down worker...")
	case err := <-serverErr:
		runErr = fmt.Errorf("ops server failed: %w", err)
	}

	cancel()
	<-runnerDone
	<-cleanupDone

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer shutdownCancel()
	if err := server.Shutdown(shutdownCtx); err != nil && runErr == nil {
		runErr = fmt.Errorf("server shutdown failed: %w", err)
	}

	if runErr == nil {
		slog.Info("worker stopped gracefully")
	}
	return runErr
}

// runMigrate はデータベースマイグレーションを実行する。
// すべての未適用マイグレーションを順番に適用する。
func runMigrate(cfg *config.Config) error {
	slog.Info("running database migrations",
		slog.String("driver", string(cfg.Driver)),
		slog.String("database_url", maskDatabaseURL(cfg.DatabaseURL)),
	)

	if err := database.RunMigrations(cfg.Driver, cfg.DatabaseURL); err != nil {
		return fmt.Errorf("migration failed: %w", err)
	}

	slog.Info("database migrations completed successfully")
	return nil
}

func healthcheckURL() string {
	port := os.Getenv("OPS_PORT")
	if port == "" {
		port = defaultOpsPort
	}
	return fmt.Sprintf("http://localhost:%s/health", port)
}

// runHealthcheck はヘルスチェックを実行する。
// distroless環境でのDockerヘルスチェック用サブコマンド。
// /health エンドポイントにHTTPリクエストを送り、結果を返す。
func runHealthcheck(url string) error {
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
