package app

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"golang.org/x/sync/errgroup"

	"github.com/hitoshi/donormatch/internal/application"
	"github.com/hitoshi/donormatch/internal/auth"
	"github.com/hitoshi/donormatch/internal/bloodrequest"
	"github.com/hitoshi/donormatch/internal/config"
	"github.com/hitoshi/donormatch/internal/dashboard"
	"github.com/hitoshi/donormatch/internal/database"
	"github.com/hitoshi/donormatch/internal/handler"
	"github.com/hitoshi/donormatch/internal/logger"
	"github.com/hitoshi/donormatch/internal/metrics"
	"github.com/hitoshi/donormatch/internal/middleware"
	"github.com/hitoshi/donormatch/internal/profile"
	"github.com/hitoshi/donormatch/internal/repository"
	"github.com/hitoshi/donormatch/internal/security"
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

	// 3. 設定されたログレベルで再初期化する
	logger.SetupDefault(w, logger.ParseLevel(cfg.LogLevel))

	return cfg, nil
}

// Run はアプリケーションのメインエントリーポイント。
// コマンドライン引数からサブコマンドを解析し、対応するモードで起動する。
// argsにはos.Args[1:]を渡す。
func Run(w io.Writer, args []string) error {
	cmd, rest, err := ParseCommand(args)
	if err != nil {
		if w != nil {
			Usage(w)
		}
		return err
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
		slog.String("store_driver", cfg.StoreDriver),
	)

	switch cmd {
	case CommandMigrate:
		return runMigrate(cfg, rest)
	default:
		ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()
		return runServe(ctx, cfg)
	}
}

// storage はSTORE_DRIVERに応じて選択したリポジトリ群。
type storage struct {
	users      repository.UserRepository
	donors     repository.DonorProfileRepository
	requesters repository.RequesterProfileRepository
	requests   repository.RequestRepository
	apps       repository.ApplicationRepository
	health     handler.HealthChecker
	close      func() error
}

// openStorage はストレージを開く。postgresの場合は接続確認まで行う。
func openStorage(ctx context.Context, cfg *config.Config) (*storage, error) {
	if cfg.StoreDriver == config.StoreDriverMemory {
		slog.Warn("using in-memory store; data is lost on restart")
		return memoryStorage(repository.NewMemoryStore()), nil
	}

	db, err := database.Open(cfg.DatabaseURL, database.PoolConfig{
		MaxOpenConns:    cfg.DBMaxOpenConns,
		MaxIdleConns:    cfg.DBMaxIdleConns,
		ConnMaxLifetime: cfg.DBConnMaxLifetime,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	slog.Info("database connection established",
		slog.String("database_url", maskDatabaseURL(cfg.DatabaseURL)),
	)
	return postgresStorage(db), nil
}

func memoryStorage(store *repository.MemoryStore) *storage {
	return &storage{
		users:      store.Users(),
		donors:     store.DonorProfiles(),
		requesters: store.RequesterProfiles(),
		requests:   store.Requests(),
		apps:       store.Applications(),
		health:     store,
		close:      func() error { return nil },
	}
}

func postgresStorage(db *sql.DB) *storage {
	return &storage{
		users:      repository.NewPostgresUserRepo(db),
		donors:     repository.NewPostgresDonorProfileRepo(db),
		requesters: repository.NewPostgresRequesterProfileRepo(db),
		requests:   repository.NewPostgresRequestRepo(db),
		apps:       repository.NewPostgresApplicationRepo(db),
		health:     db,
		close:      db.Close,
	}
}

// newHandler は全依存関係をワイヤリングしたHTTPハンドラーを返す。
// 返される関数はバックグラウンドのリソースを解放する。
func newHandler(cfg *config.Config, st *storage, reg *prometheus.Registry) (http.Handler, func()) {
	collector := metrics.NewCollector(reg)
	sanitizer := security.NewTextSanitizer()

	tokens := auth.NewTokenService(cfg.JWTSecret, cfg.TokenTTL)
	authService := auth.NewService(st.users, tokens, auth.ServiceConfig{BcryptCost: cfg.BcryptCost})
	profileService := profile.NewService(st.users, st.donors, st.requesters, sanitizer)
	applicationService := application.NewService(st.donors, st.requests, st.apps, collector)
	requestService := bloodrequest.NewService(st.requesters, st.requests, st.apps, sanitizer, collector)
	dashboardService := dashboard.NewService(st.donors, st.requesters, st.requests, st.apps)

	// configのレート制限はreq/min単位
	limiter := middleware.NewRateLimiter(
		middleware.PerMinuteRateLimiterConfig(cfg.RateLimitGeneral, cfg.RateLimitApply),
	)

	headers := middleware.DefaultSecurityHeadersConfig()
	headers.HSTSMaxAge = cfg.HSTSMaxAge

	router := handler.NewRouter(&handler.RouterDeps{
		Logger:             slog.Default(),
		TokenVerifier:      tokens,
		CORSAllowedOrigins: middleware.ParseAllowedOrigins(cfg.CORSAllowedOrigin),
		RateLimiter:        limiter,
		Metrics:            collector,
		SecurityHeaders:    &headers,
		HealthChecker:      st.health,
		MetricsHandler:     metrics.Handler(reg),

		AuthService:        authService,
		ProfileService:     profileService,
		ApplicationService: applicationService,
		RequestService:     requestService,
		DashboardService:   dashboardService,
	})

	return router, limiter.Stop
}

// runServe はAPIサーバーモードで起動する。
// ストレージを開き、全依存関係をワイヤリングし、HTTPサーバーを起動する。
// ctxがキャンセルされるとグレースフルシャットダウンを行う。
func runServe(ctx context.Context, cfg *config.Config) error {
	st, err := openStorage(ctx, cfg)
	if err != nil {
		return err
	}
	defer st.close()

	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	router, release := newHandler(cfg, st, reg)
	defer release()

	server := &http.Server{
		Addr:         ":" + cfg.ServerPort,
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		slog.Info("API server starting", slog.String("addr", server.Addr))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("server listen error: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		slog.Info("shutting down API server...")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("server shutdown failed: %w", err)
		}
		return nil
	})

	if err := g.Wait(); err != nil {
		return err
	}

	slog.Info("API server stopped gracefully")
	return nil
}

// runMigrate はデータベースマイグレーションを実行する。
// 引数なしまたは "up" で未適用のマイグレーションをすべて適用し、
// "down [n]" で直近n件（既定1件）を取り消し、"version" で適用済みバージョンを表示する。
func runMigrate(cfg *config.Config, args []string) error {
	if cfg.StoreDriver != config.StoreDriverPostgres {
		return fmt.Errorf("migrate requires STORE_DRIVER=%s", config.StoreDriverPostgres)
	}

	action := "up"
	if len(args) > 0 {
		action = args[0]
	}

	slog.Info("running database migrations",
		slog.String("action", action),
		slog.String("database_url", maskDatabaseURL(cfg.DatabaseURL)),
	)

	switch action {
	case "up":
		if err := database.RunMigrations(cfg.DatabaseURL); err != nil {
			return fmt.Errorf("migration failed: %w", err)
		}
	case "down":
		steps := 1
		if len(args) > 1 {
			n, err := strconv.Atoi(args[1])
			if err != nil {
				return fmt.Errorf("invalid step count %q: %w", args[1], err)
			}
			steps = n
		}
		if err := database.RollbackMigrations(cfg.DatabaseURL, steps); err != nil {
			return fmt.Errorf("rollback failed: %w", err)
		}
	case "version":
		version, dirty, err := database.MigrationVersion(cfg.DatabaseURL)
		if err != nil {
			return err
		}
		slog.Info("migration version", slog.Uint64("version", uint64(version)), slog.Bool("dirty", dirty))
		return nil
	default:
		return fmt.Errorf("unknown migrate action %q (want up, down or version)", action)
	}

	slog.Info("database migrations completed successfully")
	return nil
}

// runHealthcheck はヘルスチェックを実行する。
// distroless環境でのDockerヘルスチェック用サブコマンド。
// /health エンドポイントにHTTPリクエストを送り、結果を返す。
func runHealthcheck(port string) error {
	endpoint := fmt.Sprintf("http://localhost:%s/health", port)
	client := &http.Client{Timeout: 5 * time.Second}

	resp, err := client.Get(endpoint)
	if err != nil {
		return fmt.Errorf("health check failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("health check returned status %d", resp.StatusCode)
	}

	return nil
}

// maskDatabaseURL はデータベースURLのパスワードをマスクする。
func maskDatabaseURL(raw string) string {
	u, err := url.Parse(raw)
	if err != nil || u.Host == "" {
		return "***"
	}
	return u.Redacted()
}
