package main

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"strings"

	"github.com/golang-migrate/migrate/v4"
	_ "github.com/golang-migrate/migrate/v4/database/pgx/v5"
	"github.com/golang-migrate/migrate/v4/source/iofs"

	"github.com/shopsight/analytics-relay/internal/config"
	"github.com/shopsight/analytics-relay/internal/sink"
	"github.com/shopsight/analytics-relay/migrations"
	"github.com/shopsight/analytics-relay/pkg/infra"
)

// Bootstraps both ends of the pipeline: the outbox_events table in
// Postgres and the events table in ClickHouse. Safe to re-run.
func main() {
	cfg := config.Load()
	logger := infra.SetupLogger(cfg.LogLevel, cfg.LogFormat)
	slog.SetDefault(logger)

	if err := cfg.Validate(); err != nil {
		slog.Error("FATAL: invalid configuration", "error", err)
		os.Exit(1)
	}

	if err := migrateOutbox(cfg.DatabaseURL); err != nil {
		slog.Error("FATAL: outbox migration failed", "error", err)
		os.Exit(1)
	}
	slog.Info("✅ Postgres outbox schema up to date")

	ctx := context.Background()
	chSink, err := sink.NewClickHouseSink(ctx, sink.Config{
		URL:      cfg.ClickHouse.URL,
		Username: cfg.ClickHouse.User,
		Password: cfg.ClickHouse.Password,
		Database: cfg.ClickHouse.Database,
	}, logger)
	if err != nil {
		slog.Error("FATAL: failed to connect to ClickHouse", "error", err)
		os.Exit(1)
	}
	defer chSink.Close()

	if err := chSink.EnsureSchema(ctx, cfg.ClickHouse.Database); err != nil {
		slog.Error("FATAL: ClickHouse schema setup failed", "error", err)
		os.Exit(1)
	}
	slog.Info("✅ ClickHouse analytics schema up to date")
}

func migrateOutbox(databaseURL string) error {
	src, err := iofs.New(migrations.FS, ".")
	if err != nil {
		return err
	}

	m, err := migrate.NewWithSourceInstance("iofs", src, pgxURL(databaseURL))
	if err != nil {
		return err
	}
	defer m.Close()

	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return err
	}
	return nil
}

// pgxURL rewrites a standard postgres:// DSN into the scheme the
// golang-migrate pgx/v5 driver registers under.
func pgxURL(dsn string) string {
	for _, scheme := range []string{"postgres://", "postgresql://"} {
		if strings.HasPrefix(dsn, scheme) {
			return "pgx5://" + strings.TrimPrefix(dsn, scheme)
		}
	}
	return dsn
}
