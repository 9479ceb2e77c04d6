package app

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/redis/go-redis/v9"
	"golang.org/x/time/rate"

	"github.com/hitoshi/chirp/internal/account"
	"github.com/hitoshi/chirp/internal/auth"
	"github.com/hitoshi/chirp/internal/blob"
	"github.com/hitoshi/chirp/internal/cache"
	"github.com/hitoshi/chirp/internal/config"
	"github.com/hitoshi/chirp/internal/database"
	"github.com/hitoshi/chirp/internal/engagement"
	"github.com/hitoshi/chirp/internal/handler"
	"github.com/hitoshi/chirp/internal/logger"
	"github.com/hitoshi/chirp/internal/metrics"
	"github.com/hitoshi/chirp/internal/middleware"
	"github.com/hitoshi/chirp/internal/post"
	"github.com/hitoshi/chirp/internal/repository"
	"github.com/hitoshi/chirp/internal/search"
	"github.com/hitoshi/chirp/internal/security"
	"github.com/hitoshi/chirp/internal/timeline"
	"github.com/hitoshi/chirp/internal/worker/repair"
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
		slog.String("base_url", cfg.BaseURL),
	)

	switch cmd {
	case CommandServe:
		return runServe(cfg)
	case CommandWorker:
		return runWorker(cfg)
	case CommandMigrate:
		return runMigrate(cfg)
	default:
		return runServe(cfg)
	}
}

// openFollowingCache はREDIS_URLが設定されている場合にフォロー先キャッシュを
// 初期化する。未設定の場合は(nil, nil, nil)を返し、キャッシュなしで動作する。
func openFollowingCache(cfg *config.Config) (*redis.Client, *cache.FollowingCache, error) {
	if cfg.RedisURL == "" {
		return nil, nil, nil
	}

	opt, err := redis.ParseURL(cfg.RedisURL)
	if err != nil {
		return nil, nil, fmt.Errorf("invalid REDIS_URL: %w", err)
	}

	client := redis.NewClient(opt)
	return client, cache.NewFollowingCache(client, cfg.FollowCacheTTL, slog.Default()), nil
}

// runServe はAPIサーバーモードで起動する。
// DB接続を開き、全依存関係をワイヤリングし、HTTPサーバーを起動する。
// SIGINTまたはSIGTERMシグナルを受信するとグレースフルシャットダウンを行う。
func runServe(cfg *config.Config) error {
	// 1. DB接続
	db, err := database.Open(cfg.DatabaseURL)
	if err != nil {
		return fmt.Errorf("failed to open database: %w", err)
	}
	defer db.Close()

	if err := db.Ping(); err != nil {
		return fmt.Errorf("failed to connect to database: %w", err)
	}

	slog.Info("database connection established")

	// 2. リポジトリの初期化
	accountRepo := repository.NewPostgresAccountRepo(db)
	postRepo := repository.NewPostgresPostRepo(db)
	replyRepo := repository.NewPostgresReplyRepo(db)
	sessionRepo := repository.NewPostgresSessionRepo(db)
	repairRepo := repository.NewPostgresFollowRepairRepo(db)

	// 3. フォロー先キャッシュ（REDIS_URL未設定の場合はなしで動作）
	redisClient, followCache, err := openFollowingCache(cfg)
	if err != nil {
		return err
	}
	if redisClient != nil {
		defer redisClient.Close()
		slog.Info("following cache enabled",
			slog.Duration("ttl", cfg.FollowCacheTTL),
		)
	}

	// typed nilをインターフェースに入れないよう、キャッシュ有効時のみ代入する
	var feedCache timeline.FollowingCache
	var mutationCache engagement.FollowingInvalidator
	if followCache != nil {
		feedCache = followCache
		mutationCache = followCache
	}

	// 4. ブロブストアとサニタイザの初期化
	blobStore, err := blob.NewFileStore(cfg.UploadDir)
	if err != nil {
		return fmt.Errorf("failed to init blob store: %w", err)
	}
	sanitizer := security.NewTextSanitizer()

	// 5. メトリクスの初期化
	registry := prometheus.NewRegistry()
	collector := metrics.NewCollector(registry)

	// 6. ドメインサービスの初期化
	authService := auth.NewService(accountRepo, sessionRepo,
		auth.ServiceConfig{SessionMaxAge: cfg.SessionMaxAge},
	)
	accountService := account.NewService(accountRepo, blobStore, sanitizer)
	postService := post.NewService(postRepo, replyRepo, accountRepo, blobStore, sanitizer)
	searchService := search.NewService(accountRepo)

	assembler := timeline.NewAssembler(accountRepo, postRepo, feedCache, collector, cfg.StoreTimeout)
	coordinator := engagement.NewCoordinator(
		postRepo, accountRepo, repairRepo, mutationCache,
		slog.Default(), cfg.StoreTimeout,
	)

	// 7. レートリミッターの構築（configのレートはreq/min単位なのでreq/secに変換）
	rateLimiter := middleware.NewRateLimiter(middleware.RateLimiterConfig{
		GeneralRate:     rate.Limit(float64(cfg.RateLimitGeneral) / 60.0),
		GeneralBurst:    cfg.RateLimitGeneral,
		PostCreateRate:  rate.Limit(float64(cfg.RateLimitPost) / 60.0),
		PostCreateBurst: cfg.RateLimitPost,
		CleanupInterval: 5 * time.Minute,
	})
	defer rateLimiter.Stop()

	// 8. ルーターの構築
	deps := &handler.RouterDeps{
		SessionFinder:     sessionRepo,
		CORSAllowedOrigin: cfg.CORSAllowedOrigin,
		RateLimiter:       rateLimiter,
		CookieSecure:      cfg.CookieSecure,
		Logger:            slog.Default(),

		AuthService:   authService,
		SignupService: accountService,
		AuthConfig: handler.AuthHandlerConfig{
			CookieDomain:  cfg.CookieDomain,
			CookieSecure:  cfg.CookieSecure,
			SessionMaxAge: cfg.SessionMaxAge,
		},

		TimelineService: assembler,
		FeedPageSize:    cfg.FeedPageSize,

		PostService:           postService,
		EngagementCoordinator: coordinator,

		AccountService:    accountService,
		AccountPosts:      postService,
		FollowCoordinator: coordinator,

		SearchService: searchService,

		UploadDir:      cfg.UploadDir,
		MetricsHandler: metrics.Handler(registry),
	}

	router := handler.NewRouter(deps)

	// 9. HTTPサーバーの起動
	server := &http.Server{
		Addr:         ":" + cfg.ServerPort,
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// グレースフルシャットダウンのためのシグナルハンドリング
	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		slog.Info("API server starting",
			slog.String("addr", server.Addr),
		)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			slog.Error("server listen error", slog.String("error", err.Error()))
		}
	}()

	<-stop
	slog.Info("shutting down API server...")

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(ctx); err != nil {
		return fmt.Errorf("server shutdown failed: %w", err)
	}

	slog.Info("API server stopped gracefully")
	return nil
}

// runWorker はワーカーモードで起動する。
// DB接続を開き、フォロー修復ワーカーを起動する。
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

	// 2. リポジトリの初期化
	accountRepo := repository.NewPostgresAccountRepo(db)
	repairRepo := repository.NewPostgresFollowRepairRepo(db)

	// 3. フォロー先キャッシュ（修復で収束した関係を読み直させるため）
	redisClient, followCache, err := openFollowingCache(cfg)
	if err != nil {
		return err
	}
	if redisClient != nil {
		defer redisClient.Close()
	}

	var invalidator repair.FollowingInvalidator
	if followCache != nil {
		invalidator = followCache
	}

	// 4. メトリクスの初期化
	registry := prometheus.NewRegistry()
	collector := metrics.NewCollector(registry)

	// 5. 修復ワーカーの初期化
	worker := repair.NewWorker(
		repairRepo, accountRepo, invalidator, collector,
		slog.Default(), cfg.RepairBatchSize, cfg.RepairMaxConcurrent,
	)

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

	slog.Info("worker starting",
		slog.Duration("repair_interval", cfg.RepairInterval),
		slog.Int("max_concurrent", cfg.RepairMaxConcurrent),
		slog.Int("batch_size", cfg.RepairBatchSize),
	)

	// 修復ワーカーをメインgoroutineで実行（ブロッキング）
	worker.Start(ctx, cfg.RepairInterval)

	slog.Info("worker stopped gracefully")
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
