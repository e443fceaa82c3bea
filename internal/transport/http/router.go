package http

import (
	"context"
	"net/http"

	"github.com/go-auth-nosql/internal/application/ratelimit"
	"github.com/go-auth-nosql/internal/config"
	"github.com/go-auth-nosql/internal/domain"
	"github.com/go-auth-nosql/internal/transport/http/handler"
	appmiddleware "github.com/go-auth-nosql/internal/transport/http/middleware"
	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"golang.org/x/time/rate"
)

// NewRouter builds and returns the application router. ctx bounds the
// background sweeps of in-process limiters.
func NewRouter(ctx context.Context, cfg *config.Config, deps *Deps) http.Handler {
	r := chi.NewRouter()
	r.Use(chimiddleware.RequestID)
	r.Use(appmiddleware.RealIP(cfg.TrustedProxies))
	r.Use(chimiddleware.Logger)
	r.Use(chimiddleware.Recoverer)
	if deps.Metrics != nil {
		r.Use(deps.Metrics.Instrument)
	}
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   cfg.AllowedOrigins,
		AllowedMethods:   []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", appmiddleware.CSRFHeader},
		ExposedHeaders:   []string{"Retry-After"},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	var rec appmiddleware.RejectionRecorder
	var outcomes handler.Outcomes
	if deps.Metrics != nil {
		rec, outcomes = deps.Metrics, deps.Metrics
	}
	quota := func(p ratelimit.Policy) func(http.Handler) http.Handler {
		return appmiddleware.Quota(deps.Limiter, p, rec)
	}
	burst := appmiddleware.NewBurstLimiter(ctx, rate.Limit(cfg.BurstRate), cfg.BurstSize)

	auth := func(typ domain.TokenType, fresh bool) func(http.Handler) http.Handler {
		return appmiddleware.Authenticate(deps.Tokens, appmiddleware.AuthOptions{
			Locations:    cfg.TokenLocations,
			Type:         typ,
			RequireFresh: fresh,
			CSRFProtect:  cfg.CookieCSRFProtect,
		})
	}

	cookies := handler.NewCookies(cfg)
	healthH := handler.NewHealthHandler(deps.Stores...)
	regH := handler.NewRegistrationHandler(deps.Registration, deps.Sessions, cookies, outcomes)
	sessionH := handler.NewSessionHandler(deps.Sessions, cookies, outcomes)
	resetH := handler.NewPasswordResetHandler(deps.Passwords, outcomes)

	r.Get("/health-check/{action}", healthH.Ping)
	if deps.Metrics != nil {
		r.Handle("/metrics", deps.Metrics.Handler())
	}

	r.Route("/auth", func(r chi.Router) {
		r.Use(quota(deps.Policies.Default))

		// ── Public routes (no auth) ──────────────────────────────────────────
		r.With(burst.Limit, quota(deps.Policies.Register)).Post("/register", regH.Start)
		r.With(burst.Limit, quota(deps.Policies.VerifyOTP)).Post("/verify-otp", regH.VerifyOTP)
		r.With(burst.Limit, quota(deps.Policies.Complete)).Post("/complete-registration", regH.Complete)
		r.With(burst.Limit, quota(deps.Policies.Login)).Post("/login", sessionH.Login)
		r.With(burst.Limit, quota(deps.Policies.ForgotPassword)).Post("/forgot-password", resetH.Forgot)
		r.Group(func(r chi.Router) {
			r.Use(burst.Limit, quota(deps.Policies.ResetPassword))
			r.Get("/reset-password/{token}", resetH.Check)
			r.Post("/reset-password/{token}", resetH.Reset)
		})

		// ── Token-authenticated routes ───────────────────────────────────────
		r.With(auth(domain.TokenRefresh, false)).Post("/refresh", sessionH.Refresh)
		r.Group(func(r chi.Router) {
			r.Use(auth(domain.TokenAccess, false))

			r.Get("/me", sessionH.Me)
			r.Post("/logout", sessionH.Logout)
		})
		// Revoking another user's session needs a token from a recent login.
		r.With(auth(domain.TokenAccess, true), appmiddleware.RequireRole(domain.RoleEmployer)).
			Post("/revoke", sessionH.Revoke)
	})

	return r
}
