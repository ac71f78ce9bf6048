package handler

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/hitoshi/donormatch/internal/metrics"
	"github.com/hitoshi/donormatch/internal/middleware"
	"github.com/hitoshi/donormatch/internal/model"
)

// HealthChecker はストレージの疎通確認に使うインターフェース。
type HealthChecker interface {
	PingContext(ctx context.Context) error
}

// RouterDeps はNewRouterに必要な依存関係をまとめた構造体。
type RouterDeps struct {
	// ミドルウェア依存
	Logger             *slog.Logger
	TokenVerifier      middleware.TokenVerifier
	CORSAllowedOrigins []string
	RateLimiter        *middleware.RateLimiter
	Metrics            metrics.MetricsCollector
	// nilの場合はDefaultSecurityHeadersConfig
	SecurityHeaders *middleware.SecurityHeadersConfig

	// 運用エンドポイント。nilの場合はDBの疎通確認、/metricsを省略する。
	HealthChecker  HealthChecker
	MetricsHandler http.Handler

	AuthService        AuthServiceInterface
	ProfileService     ProfileServiceInterface
	ApplicationService ApplicationServiceInterface
	RequestService     RequestServiceInterface
	DashboardService   DashboardServiceInterface
}

// NewRouter は全APIエンドポイントのルーティングとミドルウェアチェーンを構成したchi.Routerを返す。
//
// ミドルウェアスタックの実行順序:
//
//	RequestID → Recovery → SecurityHeaders → Logging → Metrics → CORS
//	  /auth/*: → RateLimit(General, クライアントIP単位)
//	  認証が必要なルート: → Auth → RateLimit(General, ユーザー単位)
//	  応募: → RateLimit(Apply)
func NewRouter(deps *RouterDeps) http.Handler {
	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}
	collector := deps.Metrics
	if collector == nil {
		collector = metrics.Nop{}
	}

	headers := middleware.DefaultSecurityHeadersConfig()
	if deps.SecurityHeaders != nil {
		headers = *deps.SecurityHeaders
	}

	r := chi.NewRouter()
	r.Use(middleware.NewRequestIDMiddleware())
	r.Use(middleware.NewRecoveryMiddleware(logger))
	r.Use(middleware.NewSecurityHeadersMiddleware(headers))
	r.Use(middleware.NewLoggingMiddleware(logger))
	r.Use(middleware.NewMetricsMiddleware(collector))
	r.Use(middleware.NewCORSMiddleware(deps.CORSAllowedOrigins...))

	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		middleware.WriteAPIError(w, &model.APIError{
			Code:     "ROUTE_NOT_FOUND",
			Message:  "Route not found",
			Category: model.CategoryNotFound,
		})
	})

	authHandler := NewAuthHandler(deps.AuthService)
	profileHandler := NewProfileHandler(deps.ProfileService)
	donorHandler := NewDonorHandler(deps.ApplicationService)
	requestHandler := NewRequestHandler(deps.RequestService)
	dashboardHandler := NewDashboardHandler(deps.DashboardService)

	// --- 認証不要のルート ---
	r.Get("/health", healthHandler(deps.HealthChecker))
	if deps.MetricsHandler != nil {
		r.Handle("/metrics", deps.MetricsHandler)
	}

	r.Route("/auth", func(r chi.Router) {
		// 未認証のためクライアントIP単位で制限する
		r.Use(deps.RateLimiter.GeneralMiddleware())
		r.Post("/signup", authHandler.Signup)
		r.Post("/login", authHandler.Login)
	})

	// --- 認証が必要なルート ---
	r.Group(func(r chi.Router) {
		r.Use(middleware.NewAuthMiddleware(deps.TokenVerifier))
		r.Use(deps.RateLimiter.GeneralMiddleware())

		r.Route("/me/profile", func(r chi.Router) {
			r.Get("/", profileHandler.Get)
			r.Post("/", profileHandler.Create)
			r.Put("/", profileHandler.Update)
		})

		r.Route("/requests", func(r chi.Router) {
			r.Get("/", donorHandler.ListMatching)
			r.Post("/", requestHandler.Create)

			r.Get("/donor-dashboard", dashboardHandler.Donor)
			r.Get("/requester-dashboard", dashboardHandler.Requester)
			r.Post("/last-donation", profileHandler.SetLastDonationDate)
			r.Get("/my/applications", donorHandler.ListMyApplications)
			r.Get("/my/requests", requestHandler.ListMine)
			r.Post("/applications/{id}/withdraw", donorHandler.Withdraw)

			r.Route("/{id}", func(r chi.Router) {
				r.Get("/", requestHandler.Get)
				r.Patch("/", requestHandler.Update)
				r.With(deps.RateLimiter.ApplyMiddleware()).Post("/apply", donorHandler.Apply)
				r.Get("/applicants", requestHandler.ListApplicants)
			})
		})
	})

	return r
}

type healthResponse struct {
	Status   string `json:"status"`
	Database string `json:"database,omitempty"`
}

// healthHandler は死活監視用のハンドラーを返す。
// checkerがある場合はストレージへの疎通も確認し、失敗時は503を返す。
func healthHandler(checker HealthChecker) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if checker == nil {
			writeJSON(w, http.StatusOK, healthResponse{Status: "ok"})
			return
		}

		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()
		if err := checker.PingContext(ctx); err != nil {
			slog.Error("health check failed", slog.String("error", err.Error()))
			writeJSON(w, http.StatusServiceUnavailable, healthResponse{Status: "unavailable", Database: "down"})
			return
		}
		writeJSON(w, http.StatusOK, healthResponse{Status: "ok", Database: "up"})
	}
}
