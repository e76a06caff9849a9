package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/ota-api/notes/internal/config"
	"github.com/ota-api/notes/internal/database"
	"github.com/ota-api/notes/internal/logger"
	"github.com/ota-api/notes/internal/server"
	"github.com/ota-api/notes/internal/storage"
	"github.com/ota-api/notes/internal/telemetry"
)

const shutdownTimeout = 15 * time.Second

func main() {
	zerolog.TimeFieldFormat = time.RFC3339Nano

	cfg, err := config.LoadConfig()
	if err != nil {
		fmt.Fprintf(os.Stderr, "config: %v\n", err)
		os.Exit(1)
	}
	l := logger.New(cfg.Observability)

	if err := run(cfg, l); err != nil {
		l.Fatal().Err(err).Msg("notes exited")
	}
}

func run(cfg *config.Config, l zerolog.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	nr, err := telemetry.NewRelic(cfg.Observability, l)
	if err != nil {
		return err
	}
	defer telemetry.ShutdownNewRelic(nr, shutdownTimeout)

	if err := database.RunMigrations(ctx, cfg.Database.URL(), l); err != nil {
		return fmt.Errorf("migrations: %w", err)
	}
	pool, err := database.NewPool(ctx, cfg.Database, l, nr != nil)
	if err != nil {
		return fmt.Errorf("database pool: %w", err)
	}
	defer pool.Close()

	var o3 *config.O3Config
	if cfg.Storage != nil {
		o3 = cfg.Storage.O3
	}
	archive, err := storage.NewArchive(o3, cfg.Observability.ServiceName)
	if err != nil {
		return fmt.Errorf("o3 archive: %w", err)
	}
	if err := archive.EnsureBucket(ctx); err != nil {
		l.Warn().Err(err).Msg("o3 bucket check failed, uploads may fail")
	}

	srv, err := server.NewFromPool(cfg, l, pool, archive, nr)
	if err != nil {
		return err
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(srv.Start)
	g.Go(func() error {
		<-gctx.Done()
		l.Info().Msg("shutting down")
		sctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		return srv.Shutdown(sctx)
	})

	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	l.Info().Msg("stopped")
	return nil
}
