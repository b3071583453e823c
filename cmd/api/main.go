package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"adecis_backend/internal/billing"
	"adecis_backend/internal/cache"
	"adecis_backend/internal/events"
	apphttp "adecis_backend/internal/http"
	"adecis_backend/internal/http/router"
	"adecis_backend/internal/ingestion"
	"adecis_backend/internal/installations"
	"adecis_backend/internal/leads"
	"adecis_backend/internal/notifier"
	"adecis_backend/internal/profiles"
	"adecis_backend/internal/scoring"
	"adecis_backend/internal/slack"
	"adecis_backend/platform/config"
	"adecis_backend/platform/db"
	"adecis_backend/platform/logger"
	"adecis_backend/platform/validator"

	"github.com/jackc/pgx/v5/pgxpool"
	"google.golang.org/genai"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		panic("failed to load config: " + err.Error())
	}

	// Initialize structured logger
	log := logger.New(cfg.Env)
	log.Info("starting server", "env", cfg.Env, "addr", cfg.HTTPAddr)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// ========================================================================
	// Infrastructure Layer
	// ========================================================================

	if err := withRetry(ctx, log, "database migrations", 5, 2*time.Second, func() error {
		return db.RunMigrations(ctx, cfg, "migrations")
	}); err != nil {
		log.Error("failed to run database migrations", "error", err)
		panic("failed to run database migrations: " + err.Error())
	}
	log.Info("database migrations complete")

	var pool *pgxpool.Pool
	if err := withRetry(ctx, log, "database connection", 5, 2*time.Second, func() error {
		p, err := db.NewPool(ctx, cfg)
		if err != nil {
			return err
		}
		pool = p
		return nil
	}); err != nil {
		log.Error("failed to connect to database", "error", err)
		panic("failed to connect to database: " + err.Error())
	}
	defer pool.Close()
	log.Info("database connection established")

	// Redis backs event dedup and webhook rate limiting. Both fail open, so
	// a missing REDIS_URL degrades to "everything allowed" rather than a
	// startup failure.
	redisClient, err := cache.NewRedisClient(cfg)
	if err != nil {
		log.Error("failed to configure redis", "error", err)
		panic("failed to configure redis: " + err.Error())
	}
	if redisClient != nil {
		defer func() { _ = redisClient.Close() }()
		log.Info("redis cache configured")
	} else {
		log.Warn("REDIS_URL not configured; dedup and rate limiting disabled")
	}
	limiter := cache.NewLimiter(redisClient, log)

	// Event bus for decoupled communication between modules
	eventBus := events.NewInMemoryBus(log)

	// Shared validator instance for dependency injection
	val := validator.New()

	genaiClient, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  cfg.GetGeminiAPIKey(),
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		log.Error("failed to initialize gemini client", "error", err)
		panic("failed to initialize gemini client: " + err.Error())
	}

	// ========================================================================
	// Domain Modules (Composition Root)
	// ========================================================================

	profileRepo := profiles.NewRepository(pool)
	installRepo := installations.NewRepository(pool)

	oauthClient := slack.NewOAuthClient(
		cfg.GetSlackAPIBaseURL(), cfg.GetSlackClientID(), cfg.GetSlackClientSecret(),
		cfg.TokenRefreshTimeout,
	)
	tokens := installations.NewTokenManager(installRepo, oauthClient, cfg.TokenRefreshTimeout, log)

	verifier := slack.NewVerifier(cfg.GetSlackSigningSecret())
	scorer := scoring.NewScorer(genaiClient, cfg.GetScoringModel(), log)
	guard := billing.NewGuard(profileRepo)

	leadsModule := leads.NewModule(pool, val, guard, tokens,
		func(token string) leads.MessagePoster {
			return slack.NewClient(cfg.GetSlackAPIBaseURL(), token, log)
		},
		profileRepo, installRepo, eventBus, log)

	orchestrator := ingestion.NewOrchestrator(installRepo, profileRepo, guard, limiter, scorer, leadsModule.Repo,
		func(token string) ingestion.ChatClient {
			return slack.NewClient(cfg.GetSlackAPIBaseURL(), token, log)
		},
		eventBus, log)
	ingestionModule := ingestion.NewModule(orchestrator, installRepo, leadsModule.Repo, verifier,
		cfg.GetSlackAPIBaseURL(), limiter, log)

	// Notifier subscribes to scored-lead events (not HTTP-facing)
	notifier.NewService(eventBus, installRepo,
		func(token string) notifier.MessagePoster {
			return slack.NewClient(cfg.GetSlackAPIBaseURL(), token, log)
		},
		log)

	// ========================================================================
	// HTTP Layer
	// ========================================================================

	engine := router.New(&router.App{
		Config: cfg,
		Logger: log,
		Modules: []apphttp.Module{
			leadsModule,
			ingestionModule,
		},
	})

	srv := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           engine,
		ReadHeaderTimeout: 10 * time.Second,
	}

	srvErr := make(chan error, 1)
	go func() {
		log.Info("server listening", "addr", cfg.HTTPAddr)
		srvErr <- srv.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		log.Info("shutdown signal received, gracefully shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			log.Error("graceful shutdown failed", "error", err)
		}
	case err := <-srvErr:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error("server error", "error", err)
			panic("server error: " + err.Error())
		}
	}
}

func withRetry(ctx context.Context, log *logger.Logger, name string, attempts int, baseDelay time.Duration, fn func() error) error {
	if attempts < 1 {
		return fmt.Errorf("%s: invalid retry attempts", name)
	}

	var lastErr error
	for attempt := 1; attempt <= attempts; attempt++ {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if err := fn(); err == nil {
			return nil
		} else {
			lastErr = err
			log.Warn("retryable operation failed", "operation", name, "attempt", attempt, "error", err)
		}

		if attempt < attempts {
			delay := time.Duration(attempt*attempt) * baseDelay
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(delay):
			}
		}
	}
	return fmt.Errorf("%s: %w", name, lastErr)
}
