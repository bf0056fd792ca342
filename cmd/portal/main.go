package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jonboulle/clockwork"

	"github.com/tasklane/tasklane/internal/app"
	"github.com/tasklane/tasklane/internal/authclient"
	"github.com/tasklane/tasklane/internal/observability"
	"github.com/tasklane/tasklane/internal/portal"
	"github.com/tasklane/tasklane/internal/retry"
)

func main() {
	if app.InTestMode() {
		slog.Default().Info("test mode detected, skipping portal startup")
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
	clock := clockwork.NewRealClock()

	client, err := authclient.New(cfg.APIBaseURL,
		authclient.WithLogger(logger),
		authclient.WithMarkerPolicy(retry.Policy{
			MaxAttempts: cfg.MarkerRetryAttempts,
			Backoff:     cfg.MarkerRetryBackoff,
			Clock:       clock,
		}),
	)
	if err != nil {
		logger.Error("init auth client", slog.Any("error", err))
		os.Exit(1)
	}

	metrics := observability.NewMetrics()
	handler := portal.NewHandler(portal.Config{
		Client:      client,
		UserTimeout: cfg.GuardTimeout,
		Warmup:      cfg.GuardWarmup,
		Clock:       clock,
		Logger:      logger,
		Metrics:     metrics,
	})

	server := &http.Server{
		Addr: cfg.PortalAddr,
		Handler: app.NewPortalRouter(app.PortalRouterParams{
			Logger:  logger,
			Config:  cfg,
			Portal:  handler,
			Metrics: metrics,
		}),
		ReadTimeout:  cfg.AppReadTimeout,
		WriteTimeout: cfg.AppWriteTimeout,
	}

	go func() {
		logger.Info("starting portal", slog.String("addr", cfg.PortalAddr), slog.String("api", cfg.APIBaseURL))
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
