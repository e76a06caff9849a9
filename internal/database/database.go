package database

import (
	"context"
	"embed"
	"fmt"
	"io/fs"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/multitracer"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/jackc/tern/v2/migrate"
	"github.com/newrelic/go-agent/v3/integrations/nrpgx5"
	"github.com/rs/zerolog"

	"github.com/ota-api/notes/internal/config"
	"github.com/ota-api/notes/internal/logger"
)

//go:embed migrations/*.sql
var migrationFiles embed.FS

const versionTable = "schema_version"

// RunMigrations applies the embedded SQL migrations on a dedicated
// connection.
func RunMigrations(ctx context.Context, databaseURL string, l zerolog.Logger) error {
	conn, err := pgx.Connect(ctx, databaseURL)
	if err != nil {
		return fmt.Errorf("connect: %w", err)
	}
	defer conn.Close(ctx)

	m, err := migrate.NewMigrator(ctx, conn, versionTable)
	if err != nil {
		return fmt.Errorf("migrator: %w", err)
	}
	sub, err := fs.Sub(migrationFiles, "migrations")
	if err != nil {
		return err
	}
	if err := m.LoadMigrations(sub); err != nil {
		return fmt.Errorf("load migrations: %w", err)
	}
	m.OnStart = func(seq int32, name, direction, _ string) {
		l.Info().Int32("sequence", seq).Str("name", name).Str("direction", direction).Msg("migrating")
	}
	if err := m.Migrate(ctx); err != nil {
		return fmt.Errorf("migrate: %w", err)
	}

	version, err := m.GetCurrentVersion(ctx)
	if err != nil {
		return fmt.Errorf("current version: %w", err)
	}
	l.Info().Int32("version", version).Msg("database schema up to date")
	return nil
}

// NewPool opens the pgx pool. Queries are logged through zerolog and, when
// APM is on, reported as New Relic datastore segments.
func NewPool(ctx context.Context, cfg config.DatabaseConfig, l zerolog.Logger, withAPM bool) (*pgxpool.Pool, error) {
	poolCfg, err := pgxpool.ParseConfig(cfg.URL())
	if err != nil {
		return nil, fmt.Errorf("parse database url: %w", err)
	}
	poolCfg.MaxConns = int32(cfg.MaxOpenConns)
	poolCfg.MinConns = int32(cfg.MaxIdleConns)
	poolCfg.MaxConnLifetime = cfg.ConnMaxLifetime
	poolCfg.MaxConnIdleTime = cfg.ConnMaxIdleTime

	if withAPM {
		poolCfg.ConnConfig.Tracer = multitracer.New(logger.PgxTracer(l), nrpgx5.NewTracer())
	} else {
		poolCfg.ConnConfig.Tracer = logger.PgxTracer(l)
	}

	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("open pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping: %w", err)
	}
	return pool, nil
}
