// Package app はアプリケーションの初期化とサブコマンドごとの起動処理を提供する。
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

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/hitoshi/feedscan/internal/config"
	"github.com/hitoshi/feedscan/internal/database"
	"github.com/hitoshi/feedscan/internal/discovery"
	"github.com/hitoshi/feedscan/internal/feedconf"
	"github.com/hitoshi/feedscan/internal/logger"
	"github.com/hitoshi/feedscan/internal/metrics"
	"github.com/hitoshi/feedscan/internal/repository"
	"github.com/hitoshi/feedscan/internal/scanner"
	"github.com/hitoshi/feedscan/internal/security"
)

// Init はアプリケーションの初期化を行う。
// 環境変数からConfigを読み込み、JSON構造化ログをセットアップする。
// writerが指定された場合はログ出力先としてそのwriterを使用する。
func Init(w io.Writer) (*config.Config, error) {
	// 1. ログの初期化（設定読み込み前にログを使えるようにする）
	logger.SetupDefault(w, slog.LevelInfo)

	// 2. 環境変数から設定を読み込む
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}

	// 3. 設定されたログレベルでロガーを再設定する
	logger.SetupDefault(w, cfg.LogLevel)

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
		slog.String("command", string(cmd)),
		slog.String("port", cfg.ServerPort),
		slog.String("feeds_file", cfg.FeedsFile),
	)

	switch cmd {
	case CommandScan:
		return runScan(cfg)
	case CommandMigrate:
		return runMigrate(cfg)
	default:
		return runWorker(cfg)
	}
}

// buildRunner はスキャンに必要な依存関係をワイヤリングする。
// worker/scan両モードで共通のため切り出している。
func buildRunner(cfg *config.Config, db *sql.DB, reg *prometheus.Registry) (*scanner.Runner, repository.ItemSeenRepository, error) {
	// 1. リポジトリの初期化
	feedRepo := repository.NewPostgresFeedRepo(db)
	seenRepo := repository.NewPostgresItemSeenRepo(db)
	writer := repository.NewPostgresScanWriter(db)

	// 2. セキュリティサービスの初期化
	guard := security.NewFetchGuard()

	// 3. feeds.ymlの内容をデータベースへ同期する
	file, err := feedconf.Load(cfg.FeedsFile)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to load feeds file: %w", err)
	}
	resolver := discovery.NewResolver(guard, cfg.FetchTimeout)
	syncer := feedconf.NewSyncer(feedRepo, resolver, slog.Default())

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()
	if err := syncer.Sync(ctx, file); err != nil {
		return nil, nil, fmt.Errorf("failed to sync feeds: %w", err)
	}

	// 4. スキャナーの初期化
	collector := metrics.NewCollector(reg)
	fetcher := scanner.NewFetcher(
		guard, slog.Default(),
		cfg.FetchTimeout, cfg.FetchMaxSize, cfg.FetchMaxAttempts, cfg.FetchHostDelay,
	)
	scan := scanner.NewScanner(
		feedRepo, seenRepo, writer, fetcher, collector, slog.Default(),
		scanner.LookbackPolicy{DefaultHours: cfg.LookbackHours, Grace: cfg.LookbackGrace},
		cfg.OrderSampleSize,
	)

	runner := scanner.NewRunner(feedRepo, scan, slog.Default(), cfg.ScanMaxConcurrent)
	return runner, seenRepo, nil
}

// runWorker はワーカーモードで起動する。
// DB接続を開き、スキャンランナーと運用用HTTPサーバー（/healthz, /metrics）を起動する。
// SIGINTまたはSIGTERMシグナルを受信するとシャットダウンする。
func runWorker(cfg *config.Config) error {
	// 1. DB接続
	db, err := database.Open(cfg.DatabaseURL)
	if err != nil {
		return fmt.Errorf("failed to open database: %w", err)
	}
	defer db.Close()

	if err := db.Ping(); err != nil {
		return fmt.Errorf("failed to connect to database: %w", err)
	}

	slog.Info("database connection established (worker)")

	// 2. 依存関係のワイヤリング
	reg := prometheus.NewRegistry()
	runner, seenRepo, err := buildRunner(cfg, db, reg)
	if err != nil {
		return err
	}

	// 3. 運用用HTTPサーバーの構築
	router := chi.NewRouter()
	router.Use(chimiddleware.Recoverer)
	router.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		if err := db.PingContext(r.Context()); err != nil {
			http.Error(w, "database unreachable", http.StatusServiceUnavailable)
			return
		}
		w.Header().Set("Content-Type", "text/plain; charset=utf-8")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	router.Method(http.MethodGet, "/metrics", metrics.Handler(reg))

	server := &http.Server{
		Addr:         ":" + cfg.ServerPort,
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// グレースフルシャットダウンのためのシグナルハンドリング
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		<-stop
		slog.Info("shutting down worker...")
		cancel()
	}()

	go func() {
		slog.Info("ops server starting", slog.String("addr", server.Addr))
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			slog.Error("ops server listen error", slog.String("error", err.Error()))
		}
	}()

	// 保持期間を過ぎた既知アイテムの掃除を日次でバックグラウンド実行
	go func() {
		retention := time.Duration(cfg.SeenRetentionDays) * 24 * time.Hour
		sweep := func() {
			deleted, err := seenRepo.DeleteOlderThan(ctx, time.Now().UTC().Add(-retention))
			if err != nil {
				slog.Error("retention sweep failed", slog.String("error", err.Error()))
				return
			}
			slog.Info("retention sweep completed", slog.Int64("deleted", deleted))
		}

		// 起動直後に1回実行
		sweep()

		ticker := time.NewTicker(24 * time.Hour)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				sweep()
			}
		}
	}()

	slog.Info("worker starting",
		slog.Duration("scan_interval", cfg.ScanInterval),
		slog.Int("max_concurrent", cfg.ScanMaxConcurrent),
	)

	// スキャンランナーをメインgoroutineで実行（ブロッキング）
	runErr := runner.Start(ctx, cfg.ScanInterval)

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		slog.Error("ops server shutdown failed", slog.String("error", err.Error()))
	}

	if runErr != nil {
		return fmt.Errorf("scan runner aborted: %w", runErr)
	}

	slog.Info("worker stopped gracefully")
	return nil
}

// runScan はスキャンランを1回だけ実行して終了する。
// cronなど外部スケジューラからの利用を想定している。
func runScan(cfg *config.Config) error {
	db, err := database.Open(cfg.DatabaseURL)
	if err != nil {
		return fmt.Errorf("failed to open database: %w", err)
	}
	defer db.Close()

	if err := db.Ping(); err != nil {
		return fmt.Errorf("failed to connect to database: %w", err)
	}

	reg := prometheus.NewRegistry()
	runner, _, err := buildRunner(cfg, db, reg)
	if err != nil {
		return err
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-stop
		cancel()
	}()

	if _, err := runner.RunOnce(ctx); err != nil {
		return fmt.Errorf("scan run aborted: %w", err)
	}
	return nil
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
// /healthz エンドポイントにHTTPリクエストを送り、結果を返す。
func runHealthcheck(port string) error {
	url := fmt.Sprintf("http://localhost:%s/healthz", port)
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
