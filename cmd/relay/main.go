package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/shopsight/analytics-relay/internal/config"
	"github.com/shopsight/analytics-relay/internal/db"
	"github.com/shopsight/analytics-relay/internal/mapper"
	"github.com/shopsight/analytics-relay/internal/service"
	"github.com/shopsight/analytics-relay/internal/sink"
	"github.com/shopsight/analytics-relay/pkg/infra"
	"github.com/shopsight/analytics-relay/pkg/metrics"
)

func main() {
	cfg := config.Load()
	logger := infra.SetupLogger(cfg.LogLevel, cfg.LogFormat)
	slog.SetDefault(logger)

	if err := cfg.Validate(); err != nil {
		slog.Error("FATAL: invalid configuration", "error", err)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	postgres, err := db.NewPostgresRepository(ctx, cfg.DatabaseURL)
	if err != nil {
		slog.Error("FATAL: failed to connect to Postgres", "error", err)
		os.Exit(1)
	}
	defer postgres.Close()

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

	obsDone := make(chan struct{})
	go startObservabilityServer(ctx, cfg.MetricsPort, logger, obsDone)

	backlogDone := make(chan struct{})
	go runBacklogMonitor(ctx, postgres, cfg.BacklogInterval, backlogDone)

	relay := service.NewRelayService(postgres, chSink, mapper.NewRowBuilder(), logger)

	slog.Info("🚀 Analytics relay started", "pid", os.Getpid(), "batch_size", cfg.BatchSize)

	// Blocks until the signal context is canceled.
	relay.Run(ctx, cfg.BatchSize, cfg.PollInterval)

	<-backlogDone
	<-obsDone
	slog.Info("✅ Relay shut down cleanly")
}

// runBacklogMonitor periodically refreshes the backlog gauge so lag is
// visible even while the relay idles.
func runBacklogMonitor(ctx context.Context, repo *db.PostgresRepository, interval time.Duration, done chan struct{}) {
	defer close(done)
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			count, err := repo.CountBacklog(ctx)
			if err != nil {
				slog.Error("Backlog check failed", "error", err)
				continue
			}
			metrics.OutboxBacklog.Set(float64(count))
			if count > 0 {
				slog.Debug("Outbox backlog", "pending", count)
			}
		case <-ctx.Done():
			return
		}
	}
}

func startObservabilityServer(ctx context.Context, port string, logger *slog.Logger, done chan struct{}) {
	defer close(done)

	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())

	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("RELAY ALIVE"))
	})

	server := &http.Server{
		Addr:         ":" + port,
		Handler:      mux,
		ReadTimeout:  5 * time.Second,
		WriteTimeout: 10 * time.Second,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			logger.Error("Observability server shutdown failed", "error", err)
		}
	}()

	logger.Info("📊 Observability server online", "url", "http://localhost:"+port+"/metrics")
	if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		logger.Error("Observability server failed", "error", err)
	}
}
