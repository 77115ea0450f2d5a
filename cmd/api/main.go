package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/saturnino-fabrica-de-software/findperson/internal/api"
	"github.com/saturnino-fabrica-de-software/findperson/internal/audit"
	"github.com/saturnino-fabrica-de-software/findperson/internal/cache"
	"github.com/saturnino-fabrica-de-software/findperson/internal/config"
	"github.com/saturnino-fabrica-de-software/findperson/internal/database"
	"github.com/saturnino-fabrica-de-software/findperson/internal/face"
	"github.com/saturnino-fabrica-de-software/findperson/internal/metrics"
	"github.com/saturnino-fabrica-de-software/findperson/internal/ratelimit"
	"github.com/saturnino-fabrica-de-software/findperson/internal/repository"
	"github.com/saturnino-fabrica-de-software/findperson/internal/service"
	"github.com/saturnino-fabrica-de-software/findperson/internal/video"
	"github.com/saturnino-fabrica-de-software/findperson/internal/webhook"
	"github.com/saturnino-fabrica-de-software/findperson/internal/ws"
)

const (
	shutdownTimeout = 10 * time.Second
	cleanupInterval = 5 * time.Minute
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	logger := cfg.Logger(os.Stdout)
	slog.SetDefault(logger)

	logger.Info("starting FindPerson API",
		slog.String("environment", cfg.Environment),
		slog.Int("port", cfg.Port),
		slog.String("face_provider", cfg.FaceProvider),
	)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := database.MigrateUp(ctx, cfg.DatabaseURL, database.WithMigrationLogger(logger)); err != nil {
		return fmt.Errorf("failed to run migrations: %w", err)
	}

	pool, err := database.NewPool(ctx, database.DefaultPoolConfig(cfg.DatabaseURL))
	if err != nil {
		return fmt.Errorf("failed to connect to database: %w", err)
	}
	defer pool.Close()

	auditLogger := audit.NewSlogLogger(logger)

	faceProvider, err := face.NewFaceProvider(ctx, &cfg.Engine, face.WithAuditLogger(auditLogger))
	if err != nil {
		return fmt.Errorf("failed to create face provider: %w", err)
	}
	if closer, ok := faceProvider.(io.Closer); ok {
		defer closer.Close()
	}

	pgCache := cache.NewPGCache(pool)
	references := service.NewReferenceService(
		repository.NewReferenceRepository(pool),
		faceProvider,
		service.WithEmbeddingCache(cache.NewEmbeddingCache(pgCache)),
		service.WithReferenceAudit(auditLogger),
		service.WithReferenceLogger(logger),
	)

	hub := ws.NewHub()
	webhooks := webhook.NewService(pool, webhook.WithDefaultSecret(cfg.WebhookSecret))
	dispatcher := webhook.NewDispatcher(webhooks, logger, 0)
	retries := webhook.NewWorker(pool, webhooks, logger, 0)

	metricsRepo := metrics.NewRepository(pool)
	collector := metrics.NewCollector()
	aggregator := metrics.NewAggregator(metricsRepo, collector, logger, time.Minute)

	limiter := ratelimit.NewRateLimiter(pool, time.Minute)

	sessions := service.NewSessionManager(service.SessionDeps{
		References: repository.NewReferenceRepository(pool),
		Sessions:   repository.NewSessionRepository(pool),
		Detections: repository.NewDetectionRepository(pool),
		Snapshots:  repository.NewSnapshotRepository(pool),
		Provider:   faceProvider,
		Matchers:   face.NewMatcher,
		Media:      video.NewMedia(cfg.FrameMaxWidth),
		Limiter:    limiter,
		Hub:        hub,
		Webhooks:   dispatcher,
		Metrics:    collector,
		Audit:      auditLogger,
		Logger:     logger,
	}, service.SessionConfig{
		Threshold:            cfg.MatchThreshold,
		DetectInterval:       cfg.DetectInterval,
		Tracker:              cfg.Tracker,
		MaxSessions:          cfg.MaxSessions,
		StartsPerMinute:      cfg.SessionStartsPerMinute,
		MaxConsecutiveErrors: 10,
	})

	if _, err := sessions.Recover(ctx); err != nil {
		return err
	}

	// Workers outlive the signal context so they can drain after the server stops
	workerCtx, cancelWorkers := context.WithCancel(context.WithoutCancel(ctx))
	defer cancelWorkers()

	g, gctx := errgroup.WithContext(workerCtx)
	g.Go(func() error { hub.Run(gctx); return nil })

	// the dispatcher drains its queue on Close, so it is not tied to gctx
	dispatched := make(chan struct{})
	go func() {
		defer close(dispatched)
		dispatcher.Run(workerCtx)
	}()
	g.Go(func() error { retries.Run(gctx); return nil })
	g.Go(func() error { aggregator.Start(gctx); return nil })
	g.Go(func() error {
		cleanup(gctx, logger, pgCache, limiter, retries)
		return nil
	})

	router := api.NewRouter(logger, &api.Dependencies{
		References:   references,
		Sessions:     sessions,
		Webhooks:     webhooks,
		Metrics:      metricsRepo,
		Hub:          hub,
		DB:           pool,
		APIKeyHashes: cfg.APIKeyHashes,
	})
	router.Setup()

	errChan := make(chan error, 1)
	go func() {
		addr := fmt.Sprintf(":%d", cfg.Port)
		logger.Info("server listening", slog.String("addr", addr))
		if err := router.Listen(addr); err != nil {
			errChan <- err
		}
	}()

	var serveErr error
	select {
	case <-ctx.Done():
		logger.Info("shutdown signal received")
	case err := <-errChan:
		serveErr = fmt.Errorf("server error: %w", err)
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	logger.Info("shutting down server...")
	if err := router.Shutdown(); err != nil {
		logger.Error("shutdown error", slog.Any("error", err))
	}
	if err := sessions.Shutdown(shutdownCtx); err != nil {
		logger.Error("failed to stop sessions", slog.Any("error", err))
	}

	dispatcher.Close()
	select {
	case <-dispatched:
	case <-shutdownCtx.Done():
		logger.Warn("webhook events left undelivered", slog.Int("queued", dispatcher.Pending()))
	}
	retries.Stop()
	aggregator.Stop()
	cancelWorkers()
	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		logger.Error("worker error", slog.Any("error", err))
	}

	logger.Info("server stopped")
	return serveErr
}

type expirer interface {
	CleanupExpired(ctx context.Context) (int64, error)
}

// cleanup purges expired cache entries, stale rate limit counters and old
// webhook jobs
func cleanup(ctx context.Context, logger *slog.Logger, targets ...expirer) {
	ticker := time.NewTicker(cleanupInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			for _, t := range targets {
				n, err := t.CleanupExpired(ctx)
				if err != nil {
					logger.Error("cleanup failed", slog.Any("error", err))
					continue
				}
				if n > 0 {
					logger.Debug("expired rows removed", slog.Int64("count", n))
				}
			}
		}
	}
}
