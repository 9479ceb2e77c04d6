package handler

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/hitoshi/chirp/internal/middleware"
)

// RouterDeps はNewRouterに必要な依存関係をまとめた構造体。
type RouterDeps struct {
	// ミドルウェア依存
	SessionFinder     middleware.SessionFinder
	CORSAllowedOrigin string
	RateLimiter       *middleware.RateLimiter
	CookieSecure      bool
	Logger            *slog.Logger

	// 認証
	AuthService   AuthServiceInterface
	SignupService SignupServiceInterface
	AuthConfig    AuthHandlerConfig

	// タイムライン
	TimelineService TimelineServiceInterface
	FeedPageSize    int

	// ポストとエンゲージメント
	PostService           PostServiceInterface
	EngagementCoordinator EngagementCoordinatorInterface

	// アカウントとフォロー
	AccountService    AccountServiceInterface
	AccountPosts      AccountPostsLister
	FollowCoordinator FollowCoordinatorInterface

	// 検索
	SearchService SearchServiceInterface

	// 画像配信ディレクトリ（空の場合は配信しない）
	UploadDir string

	// メトリクス公開ハンドラー（nilの場合は公開しない）
	MetricsHandler http.Handler
}

// NewRouter は全APIエンドポイントのルーティングとミドルウェアチェーンを構成したchi.Routerを返す。
//
// ミドルウェアスタックの実行順序:
//
//	Recovery → Logging → SecurityHeaders → CORS → Session → CSRF → RateLimit(General)
//
// 認証ルート（/api/auth/*）とヘルスチェックはセッションミドルウェアの外に配置する。
func NewRouter(deps *RouterDeps) http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.NewRecoveryMiddleware())
	if deps.Logger != nil {
		r.Use(middleware.NewLoggingMiddleware(deps.Logger))
	}
	r.Use(middleware.NewSecurityHeadersMiddleware())
	r.Use(middleware.NewCORSMiddleware(deps.CORSAllowedOrigin))

	authHandler := NewAuthHandler(deps.AuthService, deps.SignupService, deps.AuthConfig)
	timelineHandler := NewTimelineHandler(deps.TimelineService, deps.FeedPageSize)
	postHandler := NewPostHandler(deps.PostService, deps.EngagementCoordinator)
	accountHandler := NewAccountHandler(deps.AccountService, deps.AccountPosts, deps.FollowCoordinator)
	searchHandler := NewSearchHandler(deps.SearchService)

	csrfConfig := middleware.CSRFConfig{CookieSecure: deps.CookieSecure}

	// --- 認証不要のルート ---

	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("ok"))
	})

	r.Get("/api/csrf-token", middleware.NewCSRFTokenHandler(csrfConfig).ServeHTTP)

	r.Route("/api/auth", func(r chi.Router) {
		r.Post("/signup", authHandler.Signup)
		r.Post("/login", authHandler.Login)
		r.Post("/logout", authHandler.Logout)
		r.Get("/me", authHandler.Me)
	})

	// アップロード画像の配信
	if deps.UploadDir != "" {
		fileServer := http.StripPrefix("/uploads/", http.FileServer(http.Dir(deps.UploadDir)))
		r.Get("/uploads/*", fileServer.ServeHTTP)
	}

	if deps.MetricsHandler != nil {
		r.Handle("/metrics", deps.MetricsHandler)
	}

	// --- 認証が必要なルート ---
	// ミドルウェアスタック: Session → CSRF → RateLimit(General)
	r.Group(func(r chi.Router) {
		r.Use(middleware.NewSessionMiddleware(deps.SessionFinder))
		r.Use(middleware.NewCSRFMiddleware(csrfConfig))
		r.Use(deps.RateLimiter.GeneralMiddleware())

		// ホームタイムライン
		r.Get("/api/timeline", timelineHandler.GetTimeline)

		// ポスト管理
		r.Route("/api/posts", func(r chi.Router) {
			// POST /api/posts - ポスト作成（作成専用レート制限を追加）
			r.With(deps.RateLimiter.PostCreateMiddleware()).Post("/", postHandler.CreatePost)

			r.Route("/{id}", func(r chi.Router) {
				r.Get("/", postHandler.GetPost)
				r.Post("/replies", postHandler.CreateReply)
				r.Post("/like", postHandler.ToggleLike)
				r.Post("/retweet", postHandler.ToggleRetweet)
			})
		})

		// アカウント管理
		r.Route("/api/accounts", func(r chi.Router) {
			r.Patch("/me", accountHandler.UpdateProfile)
			r.Get("/username/{username}", accountHandler.GetProfile)

			r.Route("/{id}", func(r chi.Router) {
				r.Post("/follow", accountHandler.ToggleFollow)
				r.Get("/following", accountHandler.ListFollowing)
				r.Get("/followers", accountHandler.ListFollowers)
				r.Get("/posts", accountHandler.ListPosts)
			})
		})

		// アカウント検索
		r.Get("/api/search/accounts", searchHandler.SearchAccounts)
	})

	return r
}
