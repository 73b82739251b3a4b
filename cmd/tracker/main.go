package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"golang.org/x/sync/errgroup"

	"github.com/rickgao/pump-tracker/internal/buffer"
	"github.com/rickgao/pump-tracker/internal/config"
	"github.com/rickgao/pump-tracker/internal/database"
	"github.com/rickgao/pump-tracker/internal/health"
	"github.com/rickgao/pump-tracker/internal/metrics"
	"github.com/rickgao/pump-tracker/internal/registry"
	"github.com/rickgao/pump-tracker/internal/track"
	"github.com/rickgao/pump-tracker/internal/upstream"
	"github.com/rickgao/pump-tracker/internal/version"
	"github.com/rickgao/pump-tracker/internal/writer"
)

func main() {
	configPath := flag.String("config", "", "path to optional YAML config file")
	flag.Parse()

	// Set up structured logging
	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelDebug,
	}))
	slog.SetDefault(logger)

	logger.Info("starting tracker",
		"version", version.Version,
		"commit", version.Commit,
		"config", *configPath,
	)

	// Load configuration
	cfg, err := config.LoadAndValidate(*configPath)
	if err != nil {
		logger.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	logger.Info("configuration loaded",
		"instance_id", cfg.Instance.ID,
		"ws_uri", cfg.Upstream.URI,
		"refresh_interval", cfg.Database.RefreshInterval,
		"buffer_window", cfg.Tracking.BufferWindow,
		"whale_threshold", cfg.Tracking.WhaleThreshold,
		"age_offset", cfg.Tracking.AgeOffset,
		"health_port", cfg.Health.Port,
	)

	// Create context with cancellation
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Handle shutdown signals
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-sigCh
		logger.Info("received shutdown signal", "signal", sig)
		cancel()
	}()

	reg := metrics.NewRegistry(nil)
	startedAt := time.Now()

	// Connect to database, retrying until shutdown
	pool := connectDB(ctx, cfg, reg, logger)
	if pool == nil {
		return
	}
	defer pool.Close()
	reg.DBConnected.Set(1)
	logger.Info("database connected")

	// Assemble components
	store := registry.NewStore(pool, reg, logger)
	buf := buffer.NewRolling()
	metricsWriter := writer.NewMetricsWriter(pool, reg, logger)

	tracker := track.NewTracker(track.Config{
		SolReservesFull: cfg.Tracking.SolReservesFull,
		WhaleThreshold:  cfg.Tracking.WhaleThreshold,
		AgeOffset:       cfg.Tracking.AgeOffset,
		BufferWindow:    cfg.Tracking.BufferWindow,
	}, store, metricsWriter, buf, reg, logger)

	mgrCfg := upstream.DefaultManagerConfig()
	mgrCfg.URI = cfg.Upstream.URI
	mgrCfg.RetryDelay = cfg.Upstream.RetryDelay
	mgrCfg.MaxRetryDelay = cfg.Upstream.MaxRetryDelay
	mgrCfg.PingInterval = cfg.Upstream.PingInterval
	mgrCfg.PingTimeout = cfg.Upstream.PingTimeout
	mgrCfg.ConnectionTimeout = cfg.Upstream.ConnectionTimeout
	manager := upstream.NewManager(mgrCfg, reg, logger)

	manager.SetTokenSource(tracker)
	tracker.SetSubscriber(manager)

	if err := loadPhases(ctx, tracker, cfg, logger); err != nil {
		return
	}

	// Populate the watchlist before the first connect so the bulk
	// subscribe covers the current active set.
	if err := tracker.Refresh(ctx, time.Now()); err != nil {
		logger.Warn("initial registry refresh failed", "error", err)
	}

	// Health server starts early so probes pass during warmup
	healthServer := &http.Server{
		Addr: fmt.Sprintf(":%d", cfg.Health.Port),
		Handler: health.NewRouter(health.Deps{
			Logger:   logger,
			Metrics:  reg,
			DB:       pool,
			Upstream: manager,
			Tracker:  tracker,
			Buffer:   buf,
			Writer:   metricsWriter,
			Reload: func() (map[string]any, error) {
				if err := cfg.ApplyOverrideFile(config.OverridePath); err != nil {
					return nil, err
				}
				return cfg.Snapshot(), nil
			},
			StartedAt: startedAt,
		}),
	}
	go func() {
		logger.Info("starting health server", "port", cfg.Health.Port)
		if err := healthServer.ListenAndServe(); err != http.ErrServerClosed {
			logger.Error("health server error", "error", err)
		}
	}()

	g, gctx := errgroup.WithContext(ctx)

	// Both WebSocket streams with their reconnect loops
	g.Go(func() error {
		return manager.Run(gctx)
	})

	// Trade fan-in: every parsed trade lands in the rolling buffer, and in
	// the open window when its token is tracked.
	g.Go(func() error {
		for ev := range manager.Trades() {
			buf.Append(ev)
			reg.BufferTradesTotal.Inc()
			tracker.Apply(ev)
		}
		return nil
	})

	// Registry refresher
	g.Go(func() error {
		ticker := time.NewTicker(cfg.Database.RefreshInterval)
		defer ticker.Stop()
		for {
			select {
			case <-gctx.Done():
				return nil
			case <-ticker.C:
				if err := tracker.Refresh(gctx, time.Now()); err != nil {
					logger.Warn("registry refresh failed", "error", err)
					reg.DBConnected.Set(0)
				} else {
					reg.DBConnected.Set(1)
				}
			}
		}
	})

	// Lifecycle tick driver
	g.Go(func() error {
		ticker := time.NewTicker(time.Second)
		defer ticker.Stop()
		for {
			select {
			case <-gctx.Done():
				return nil
			case <-ticker.C:
				tracker.Tick(gctx, time.Now())
			}
		}
	})

	// Rolling buffer evictor
	g.Go(func() error {
		ticker := time.NewTicker(10 * time.Second)
		defer ticker.Stop()
		for {
			select {
			case <-gctx.Done():
				return nil
			case <-ticker.C:
				removed := buf.EvictOlderThan(time.Now().Add(-cfg.Tracking.BufferWindow))
				reg.BufferSize.Set(float64(buf.Len()))
				if removed > 0 {
					logger.Debug("buffer cleanup", "removed", removed)
				}
			}
		}
	})

	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		logger.Error("tracker terminated", "error", err)
	}

	logger.Info("shutting down...")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	healthServer.Shutdown(shutdownCtx)

	logger.Info("tracker stopped")
}

// connectDB retries until the pool is up or shutdown is requested.
func connectDB(ctx context.Context, cfg *config.TrackerConfig, reg *metrics.Registry, logger *slog.Logger) *pgxpool.Pool {
	for {
		pool, err := database.Connect(ctx, cfg.Database)
		if err == nil {
			return pool
		}
		reg.DBConnected.Set(0)
		reg.DBErrors.WithLabelValues("connect").Inc()
		logger.Error("database connection failed",
			"error", err,
			"retry_in", cfg.Database.RetryDelay,
		)
		select {
		case <-ctx.Done():
			return nil
		case <-time.After(cfg.Database.RetryDelay):
		}
	}
}

// loadPhases retries the phase table read; tracking cannot start without it.
func loadPhases(ctx context.Context, tracker *track.Tracker, cfg *config.TrackerConfig, logger *slog.Logger) error {
	for {
		err := tracker.LoadPhases(ctx)
		if err == nil {
			return nil
		}
		logger.Error("loading phases failed",
			"error", err,
			"retry_in", cfg.Database.RetryDelay,
		)
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(cfg.Database.RetryDelay):
		}
	}
}
