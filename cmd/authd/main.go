package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/hibiken/asynq"
	"github.com/jonboulle/clockwork"

	"github.com/tasklane/tasklane/internal/app"
	"github.com/tasklane/tasklane/internal/auth"
	"github.com/tasklane/tasklane/internal/observability"
	"github.com/tasklane/tasklane/internal/platform/cache"
	"github.com/tasklane/tasklane/internal/platform/db"
	"github.com/tasklane/tasklane/internal/principal"
	"github.com/tasklane/tasklane/internal/shared"
	"github.com/tasklane/tasklane/jobs"
)

func main() {
	if app.InTestMode() {
		slog.Default().Info("test mode detected, skipping runtime startup")
		return
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, err := app.LoadConfig()
	if err != nil {
		slog.Default().Error("load config", slog.Any("error", err))
		os.Exit(1)
	}

	logger := app.NewLogger(cfg)

	dbpool, err := db.New(ctx, cfg.PGDSN)
	if err != nil {
		logger.Error("connect postgres", slog.Any("error", err))
		os.Exit(1)
	}
	defer dbpool.Close()

	redisClient, err := cache.New(ctx, cfg.RedisAddr)
	if err != nil {
		logger.Error("connect redis", slog.Any("error", err))
		os.Exit(1)
	}
	defer func() {
		if err := redisClient.Close(); err != nil {
			logger.Warn("redis close", slog.Any("error", err))
		}
	}()

	sessions := make([]*shared.SessionManager, 0, 3)
	for _, role := range principal.Roles() {
		sessions = append(sessions, shared.NewSessionManager(redisClient, role.Key(), cfg.SessionSecret, cfg.SessionTTL, cfg.IsProduction()))
	}

	queueOpts := asynq.RedisClientOpt{Addr: cfg.RedisAddr}
	jobClient, err := jobs.NewClient(queueOpts)
	if err != nil {
		logger.Error("init job client", slog.Any("error", err))
		os.Exit(1)
	}
	defer func() {
		if err := jobClient.Close(); err != nil {
			logger.Warn("job client close", slog.Any("error", err))
		}
	}()

	codes := auth.NewVerificationStore(redisClient, shared.NewCodeSigner(cfg.CodeSecret), cfg.CodeTTL)
	authService := auth.NewService(auth.ServiceConfig{
		Repo:       auth.NewRepository(dbpool),
		Codes:      codes,
		Dispatcher: jobClient,
		Auditor:    shared.NewAuditLogger(dbpool),
		Clock:      clockwork.NewRealClock(),
		Logger:     logger,
	})

	metrics := observability.NewMetrics()
	authHandler := auth.NewHandler(auth.HandlerConfig{
		Logger:    logger,
		Service:   authService,
		Sessions:  sessions,
		Metrics:   metrics,
		RateLimit: cfg.AuthRate,
	})

	inspector := asynq.NewInspector(queueOpts)
	defer func() {
		if err := inspector.Close(); err != nil {
			logger.Warn("inspector close", slog.Any("error", err))
		}
	}()
	jobHandler := jobs.NewHandler(inspector, logger)

	router := app.NewRouter(app.RouterParams{
		Logger:      logger,
		Config:      cfg,
		Sessions:    sessions,
		AuthHandler: authHandler,
		JobHandler:  jobHandler,
		Metrics:     metrics,
	})

	server := &http.Server{
		Addr:         cfg.AppAddr,
		Handler:      router,
		ReadTimeout:  cfg.AppReadTimeout,
		WriteTimeout: cfg.AppWriteTimeout,
	}

	go func() {
		logger.Info("starting auth api", slog.String("addr", cfg.AppAddr))
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("http server", slog.Any("error", err))
			stop()
		}
	}()

	<-ctx.Done()
	logger.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("graceful shutdown", slog.Any("error", err))
	}
}
