package handler

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"

	"github.com/hitoshi/emerald/internal/middleware"
)

// RouterDeps はNewRouterに必要な依存関係をまとめた構造体。
type RouterDeps struct {
	// ミドルウェア依存
	Logger            *slog.Logger
	StatusObserver    middleware.StatusObserver
	SessionFinder     middleware.SessionFinder
	CSRF              middleware.CSRFConfig
	CORSAllowedOrigin string
	RateLimiter       *middleware.RateLimiter
	MaxRequestBytes   int64

	// 描画
	Renderer *Renderer
	Static   *StaticHandler
	Metrics  http.Handler

	// 認証
	AuthService   AuthServiceInterface
	Invites       InviteValidator
	LoginRecorder LoginRecorder
	AuthConfig    AuthHandlerConfig

	// プロフィール
	ProfileService ProfileServiceInterface
	ProfileConfig  ProfileHandlerConfig

	// メンバー
	MemberService MemberServiceInterface
	Users         UserFinder
}

// NewRouter は全エンドポイントのルーティングとミドルウェアチェーンを構成したchi.Routerを返す。
//
// ミドルウェアスタックの実行順序:
//
//	RealIP → Recovery → SecurityHeaders → Logging → RequestSize → HTMX → CSRF
//
// ページはRequireLogin → NoCache、JSON APIはCORS → Session → RateLimit(General)を追加で通る。
func NewRouter(deps *RouterDeps) http.Handler {
	r := chi.NewRouter()

	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}
	var observers []middleware.StatusObserver
	if deps.StatusObserver != nil {
		observers = append(observers, deps.StatusObserver)
	}

	r.Use(chimw.RealIP)
	r.Use(middleware.NewRecoveryMiddleware(logger))
	r.Use(middleware.NewSecurityHeadersMiddleware())
	r.Use(middleware.NewLoggingMiddleware(logger, observers...))
	if deps.MaxRequestBytes > 0 {
		r.Use(chimw.RequestSize(deps.MaxRequestBytes))
	}
	r.Use(middleware.NewHTMXMiddleware())
	r.Use(middleware.NewCSRFMiddleware(deps.CSRF))

	authHandler := NewAuthHandler(deps.AuthService, deps.Invites, deps.Renderer, deps.LoginRecorder, deps.AuthConfig)
	profileHandler := NewProfileHandler(deps.ProfileService, deps.Users, deps.Renderer, deps.ProfileConfig)
	memberHandler := NewMemberHandler(deps.MemberService, deps.Users, deps.Renderer)
	apiHandler := NewAPIHandler(deps.MemberService, deps.Users)

	// --- 認証不要のルート ---
	r.Get("/robots.txt", deps.Static.Robots)
	r.Get("/ai.txt", deps.Static.AITxt)
	r.Get("/sitemap.xml", deps.Static.Sitemap)
	r.Get("/health", deps.Static.Health)
	if deps.Metrics != nil {
		r.Handle("/metrics", deps.Metrics)
	}

	r.Route("/auth", func(r chi.Router) {
		r.Use(middleware.NewNoCacheMiddleware())

		r.Get("/login/", authHandler.LoginPage)
		r.With(deps.RateLimiter.LoginMiddleware()).Post("/login/", authHandler.Login)
		r.Get("/logout/", authHandler.Logout)
		r.Post("/logout/", authHandler.Logout)
		r.Get("/register/", authHandler.RegisterPage)
		r.Post("/register/", authHandler.Register)
	})

	// --- ログインが必要なページ ---
	r.Group(func(r chi.Router) {
		r.Use(middleware.NewRequireLoginMiddleware(deps.SessionFinder))
		r.Use(middleware.NewNoCacheMiddleware())

		r.Get("/", profileHandler.Home)

		r.Route("/profile", func(r chi.Router) {
			r.Get("/", profileHandler.Show)
			r.Get("/edit/", profileHandler.EditPage)
			r.Post("/edit/", profileHandler.Edit)
			r.Get("/location/new/", profileHandler.NewLocationPage)
			r.Post("/location/new/", profileHandler.NewLocation)
			r.Post("/location/{id}/delete/", profileHandler.DeleteLocation)
			r.Post("/avatar/", profileHandler.Avatar)
			r.Post("/withdraw/", profileHandler.Withdraw)
		})

		r.Route("/members", func(r chi.Router) {
			r.Get("/search/", memberHandler.Search)
			r.Post("/search/", memberHandler.Search)
			r.Get("/{id}/", memberHandler.Detail)
			r.Get("/{id}/avatar", memberHandler.Avatar)
		})
	})

	// --- JSON API ---
	// ミドルウェアスタック: CORS → Session → RateLimit(General)
	r.Route("/api", func(r chi.Router) {
		r.Use(middleware.NewCORSMiddleware(deps.CORSAllowedOrigin))
		r.Use(middleware.NewSessionMiddleware(deps.SessionFinder))
		r.Use(deps.RateLimiter.GeneralMiddleware())

		r.Get("/me", apiHandler.Me)
		r.Get("/members/nearby", apiHandler.Nearby)
		r.Handle("/csrf-token", middleware.NewCSRFTokenHandler(deps.CSRF))
	})

	return r
}
