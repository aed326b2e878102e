package routes

import (
	"github.com/go-chi/chi/v5"
	"github.com/mercatohq/bastion/internal/auth"
	"github.com/mercatohq/bastion/internal/handlers"
	"github.com/mercatohq/bastion/internal/middleware"
)

// RegisterRoutes registers all application routes
func RegisterRoutes(
	router chi.Router,
	authHandler *handlers.AuthHandler,
	passwordHandler *handlers.PasswordHandler,
	twoFactorHandler *handlers.TwoFactorHandler,
) {
	// Per-IP edge ceiling in front of the identity-keyed limiter
	rateLimitConfig := middleware.DefaultEdgeRateLimit()

	// Public routes - the login pipeline does its own per-identity limiting
	router.Group(func(r chi.Router) {
		r.Use(middleware.RateLimitByIP(rateLimitConfig))

		r.Post("/v1/auth/login", authHandler.Login)
		r.Post("/v1/auth/2fa/verify", authHandler.VerifyTwoFactor)
		r.Post("/v1/password/assess", passwordHandler.Assess)
	})

	// Two-factor management - requires gateway identity headers
	router.Group(func(r chi.Router) {
		r.Use(auth.RequireIdentity())

		r.Post("/v1/2fa/setup", twoFactorHandler.BeginSetup)
		r.Post("/v1/2fa/setup/confirm", twoFactorHandler.ConfirmSetup)
		r.Post("/v1/2fa/backup-codes", twoFactorHandler.RegenerateBackupCodes)
		r.Post("/v1/2fa/disable", twoFactorHandler.Disable)
		r.Get("/v1/2fa/status", twoFactorHandler.Status)
	})
}
