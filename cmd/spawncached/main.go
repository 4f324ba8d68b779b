package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/udisondev/spawntrack/internal/config"
	"github.com/udisondev/spawntrack/internal/db"
	"github.com/udisondev/spawntrack/internal/elevation"
	"github.com/udisondev/spawntrack/internal/registry"
	"github.com/udisondev/spawntrack/internal/snapshot"
)

const ConfigPath = "config/spawncached.yaml"

func main() {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-sigCh
		slog.Info("shutting down", "signal", sig)
		cancel()
	}()

	if err := run(ctx); err != nil {
		slog.Error("fatal", "err", err)
		os.Exit(1)
	}
}

func run(ctx context.Context) error {
	cfgPath := ConfigPath
	if p := os.Getenv("SPAWNTRACK_CONFIG"); p != "" {
		cfgPath = p
	}
	cfg, err := config.LoadServer(cfgPath)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{
		Level: parseLogLevel(cfg.LogLevel),
	})))

	slog.Info("spawncached starting", "log_level", cfg.LogLevel)

	boundary, err := cfg.Bounds.Boundary()
	if err != nil {
		return fmt.Errorf("building boundary: %w", err)
	}

	// Connect to database
	database, err := db.New(ctx, cfg.Database.DSN())
	if err != nil {
		return fmt.Errorf("connecting to database: %w", err)
	}
	defer database.Close()
	slog.Info("database connected")

	// Run migrations
	if err := db.RunMigrations(ctx, cfg.Database.DSN()); err != nil {
		return fmt.Errorf("running migrations: %w", err)
	}
	slog.Info("database migrations applied")

	blobs, err := snapshot.Open(cfg.Snapshot.Path)
	if err != nil {
		return fmt.Errorf("opening snapshot store: %w", err)
	}
	defer blobs.Close()

	altitudes := registry.NewAltitudeCache(
		elevation.NewHTTPService(cfg.Elevation.URL, cfg.Elevation.Timeout()),
		registry.AltitudeOptions{
			Precision: cfg.Elevation.Precision,
			RandomMin: cfg.Elevation.RandomMin,
			RandomMax: cfg.Elevation.RandomMax,
		},
	)

	reg := registry.New(
		db.NewSpawnpointRepository(database.Pool()),
		altitudes,
		registry.Options{
			Boundary:         boundary,
			LastMigration:    cfg.Cache.LastMigration,
			TrackProvisional: cfg.Cache.TrackProvisional,
			StoreFingerprint: db.Fingerprint(cfg.Database.DSN()),
		},
	)

	// A matching snapshot makes the startup reconcile unnecessary.
	if !reg.RestoreSnapshot(ctx, blobs, cfg.Snapshot.Key) {
		if err := reg.Reconcile(ctx); err != nil {
			return fmt.Errorf("initial reconcile: %w", err)
		}
		if err := reg.SaveSnapshot(blobs, cfg.Snapshot.Key); err != nil {
			slog.Error("writing initial snapshot", "err", err)
		}
	}

	slog.Info("spawn registry ready",
		"known", reg.Len(),
		"tracked", reg.TotalTracked(),
		"altitudes", reg.Altitudes().Len())

	g, gctx := errgroup.WithContext(ctx)

	if interval := cfg.Cache.ReconcileInterval(); interval > 0 {
		g.Go(func() error {
			return reconcileLoop(gctx, reg, interval)
		})
	}
	if interval := cfg.Snapshot.Interval(); interval > 0 {
		g.Go(func() error {
			return snapshotLoop(gctx, reg, blobs, cfg.Snapshot.Key, interval)
		})
	}

	if err := g.Wait(); err != nil && ctx.Err() == nil {
		return err
	}

	// Final snapshot so the next start skips the store entirely.
	if err := reg.SaveSnapshot(blobs, cfg.Snapshot.Key); err != nil {
		return fmt.Errorf("writing final snapshot: %w", err)
	}
	slog.Info("spawncached stopped")
	return nil
}

// reconcileLoop refreshes the registry from the store on a fixed
// interval. A failed refresh keeps the current cache and retries on the
// next tick.
func reconcileLoop(ctx context.Context, reg *registry.Registry, interval time.Duration) error {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			if err := reg.Reconcile(ctx); err != nil {
				slog.Error("periodic reconcile failed, keeping cached state", "err", err)
			}
		}
	}
}

// snapshotLoop checkpoints the registry on a fixed interval.
func snapshotLoop(ctx context.Context, reg *registry.Registry, blobs *snapshot.Store, key string, interval time.Duration) error {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			if err := reg.SaveSnapshot(blobs, key); err != nil {
				slog.Error("periodic snapshot failed", "err", err)
			}
		}
	}
}

// parseLogLevel converts string log level to slog.Level.
// Defaults to Info if invalid or empty.
func parseLogLevel(level string) slog.Level {
	switch level {
	case "debug":
		return slog.LevelDebug
	case "info":
		return slog.LevelInfo
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
