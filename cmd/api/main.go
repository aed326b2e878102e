package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/mercatohq/bastion/internal/auth"
	"github.com/mercatohq/bastion/internal/background"
	"github.com/mercatohq/bastion/internal/config"
	"github.com/mercatohq/bastion/internal/database"
	"github.com/mercatohq/bastion/internal/handlers"
	middlewareCustom "github.com/mercatohq/bastion/internal/middleware"
	"github.com/mercatohq/bastion/internal/repositories"
	"github.com/mercatohq/bastion/internal/routes"
	"github.com/mercatohq/bastion/internal/security"
	"github.com/mercatohq/bastion/internal/services"
	"github.com/mercatohq/bastion/internal/store"
	pkghttp "github.com/mercatohq/bastion/pkg/http"
	pkglogger "github.com/mercatohq/bastion/pkg/logger"
)

func main() {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, nil))
	slog.SetDefault(logger)

	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		logger.Error("failed to load configuration", slog.Any("error", err))
		os.Exit(1)
	}

	logger.Info("configuration loaded", slog.String("env", cfg.Server.Env))

	// Initialize database
	db, err := database.NewConnection(&cfg.Database, logger)
	if err != nil {
		logger.Error("failed to connect to database", slog.Any("error", err))
		os.Exit(1)
	}
	defer db.Close()

	// Counter store: Redis when configured, otherwise in-process
	var kv store.Store
	var pruner store.Pruner
	if cfg.Redis.URL != "" {
		dialCtx, dialCancel := context.WithTimeout(context.Background(), 5*time.Second)
		redisStore, err := store.DialRedis(dialCtx, cfg.Redis.URL)
		dialCancel()
		if err != nil {
			logger.Error("failed to connect to redis", slog.Any("error", err))
			os.Exit(1)
		}
		kv = redisStore
		logger.Info("using redis store")
	} else {
		memStore := store.NewMemoryStore()
		kv = memStore
		pruner = memStore
		logger.Warn("REDIS_URL not set, using in-process store; counters are per-instance")
	}

	// Initialize repositories
	accountRepo := repositories.NewAccountRepository(db)
	credRepo := repositories.NewTwoFactorRepository(db)

	// Security core
	lockoutController := security.NewLockoutController(kv, security.LockoutConfig{
		MaxAttempts:     cfg.Security.MaxLoginAttempts,
		LockoutDuration: cfg.Security.LockoutDuration,
		AttemptTTL:      cfg.Security.AttemptTTL,
	}, logger)

	rateLimiter := security.NewRateLimiter(kv, security.RateLimiterConfig{
		Login:         security.RateLimitRule{Ceiling: cfg.Security.LoginRateCeiling, Window: cfg.Security.LoginRateWindow},
		Register:      security.RateLimitRule{Ceiling: cfg.Security.RegisterRateCeiling, Window: cfg.Security.RegisterRateWindow},
		PasswordReset: security.RateLimitRule{Ceiling: cfg.Security.ResetRateCeiling, Window: cfg.Security.ResetRateWindow},
		Default:       security.DefaultRateLimiterConfig().Default,
	}, logger)

	passwordPolicy := security.NewPasswordPolicy()

	// Two-factor plumbing
	totpManager, err := auth.NewTOTPManager(cfg.TwoFactor.EncryptionKey, cfg.TwoFactor.Issuer)
	if err != nil {
		logger.Error("failed to initialize TOTP manager", slog.Any("error", err))
		os.Exit(1)
	}

	challengeManager := auth.NewChallengeTokenManager(cfg.TwoFactor.ChallengeSecret, cfg.TwoFactor.ChallengeExpiry)

	timingDelay := auth.NewTimingDelay(auth.TimingConfig{
		BaseDelayMs:   cfg.Security.BaseDelayMs,
		RandomDelayMs: cfg.Security.RandomDelayMs,
	})

	auditLogger := pkglogger.NewAuditLogger(logger)

	// Security alerts over SES, or dropped when email is disabled
	var alertService services.AlertService
	if cfg.Email.Enabled {
		sesAlerts, err := services.NewAWSSESAlertService(cfg.Email.AWSRegion, cfg.Email.FromEmail, logger)
		if err != nil {
			logger.Error("failed to initialize alert service", slog.Any("error", err))
			os.Exit(1)
		}
		alertService = sesAlerts
	} else {
		alertService = services.NoopAlertService{}
	}

	// Initialize services
	twoFactorService := services.NewTwoFactorService(
		credRepo,
		accountRepo,
		totpManager,
		kv,
		alertService,
		logger,
		services.TwoFactorConfig{
			SetupTTL:        cfg.TwoFactor.SetupTTL,
			BackupCodeCount: cfg.TwoFactor.BackupCodeCount,
		},
	)

	loginService := services.NewLoginService(
		accountRepo,
		lockoutController,
		rateLimiter,
		twoFactorService,
		challengeManager,
		timingDelay,
		alertService,
		auditLogger,
		logger,
	)

	// Initialize handlers
	authHandler := handlers.NewAuthHandler(loginService)
	passwordHandler := handlers.NewPasswordHandler(passwordPolicy)
	twoFactorHandler := handlers.NewTwoFactorHandler(twoFactorService, cfg.TwoFactor.SetupTTL)

	// Setup CORS middleware
	corsConfig := middlewareCustom.DefaultCORSConfig(cfg.Server.AllowedOrigins)

	ipConfig := &pkghttp.IPConfig{
		TrustedProxies: []string{"10.0.0.0/8", "172.16.0.0/12", "192.168.0.0/16"},
	}

	// Setup router
	router := chi.NewRouter()
	router.Use(middleware.RequestID)
	router.Use(middleware.RealIP)
	router.Use(middlewareCustom.SecurityHeaders(middlewareCustom.SecurityHeadersConfig{Env: cfg.Server.Env}))
	router.Use(middlewareCustom.CORS(corsConfig))
	router.Use(middlewareCustom.SecureLogger(logger, ipConfig))
	router.Use(middleware.Recoverer)
	router.Use(middleware.Timeout(60 * time.Second))

	// Register routes
	routes.RegisterRoutes(router, authHandler, passwordHandler, twoFactorHandler)

	// Health check with database
	router.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()

		if err := db.HealthCheck(ctx); err != nil {
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusServiceUnavailable)
			w.Write([]byte(`{"status":"unhealthy","database":"down"}`))
			return
		}

		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		w.Write([]byte(`{"status":"healthy","database":"up"}`))
	})

	// Create server
	server := &http.Server{
		Addr:         ":" + cfg.Server.Port,
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// Expiry sweep for the in-process store; Redis expires keys natively
	var cleanupManager *background.CleanupManager
	cleanupCtx, cleanupCancel := context.WithCancel(context.Background())
	defer cleanupCancel()

	if pruner != nil {
		cleanupManager = background.NewCleanupManager(pruner, logger, cfg.Security.StoreCleanupInterval)
		go cleanupManager.Start(cleanupCtx)
	}

	// Start server
	go func() {
		logger.Info("starting server", slog.String("addr", server.Addr))
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("server error", slog.Any("error", err))
			os.Exit(1)
		}
	}()

	// Graceful shutdown
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	<-sigChan

	logger.Info("shutdown signal received")

	cleanupCancel()
	if cleanupManager != nil {
		cleanupManager.Stop()
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("server shutdown error", slog.Any("error", err))
		os.Exit(1)
	}

	logger.Info("server stopped gracefully")
}
