package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/shopsight/analytics-relay/internal/mapper"
	"github.com/shopsight/analytics-relay/internal/models"
	"github.com/shopsight/analytics-relay/pkg/infra"
	"github.com/shopsight/analytics-relay/pkg/metrics"
)

const (
	MaxBatchMemoryThresholdMB = 20

	// Error backoff ceiling. The floor is derived from the poll
	// interval when Run builds its Backoff.
	maxErrorBackoff = 60 * time.Second
)

// Repository defines the contract for the Event Log Store
type Repository interface {
	FetchUnsent(ctx context.Context, limit int) ([]models.OutboxEvent, error)
	MarkSent(ctx context.Context, ids []int64) error
	MarkFailed(ctx context.Context, ids []int64, reason string) error
}

// Sink defines the contract for the analytics store: one bulk insert
// per batch, no partial-success reporting.
type Sink interface {
	Insert(ctx context.Context, rows []models.AnalyticsRow) error
}

type quarantinedEvent struct {
	id     int64
	reason string
}

// RelayService drains undelivered outbox events into the analytics
// sink: fetch the oldest unsent batch, transform, bulk insert, mark
// delivered. Marking is the sole commit point, so a crash mid-cycle
// redelivers a batch but never loses one.
type RelayService struct {
	repo    Repository
	sink    Sink
	builder *mapper.RowBuilder
	logger  *slog.Logger
}

func NewRelayService(r Repository, s Sink, b *mapper.RowBuilder, l *slog.Logger) *RelayService {
	return &RelayService{
		repo:    r,
		sink:    s,
		builder: b,
		logger:  l,
	}
}

// Run is the worker loop. It blocks until the context is canceled and
// never returns on a cycle error: failed cycles are retried after a
// jittered backoff, a full batch triggers an immediate next fetch to
// drain backlog, and an empty fetch idles for one poll interval.
func (s *RelayService) Run(ctx context.Context, batchSize int, pollInterval time.Duration) {
	backoff := infra.NewBackoff(2*pollInterval, maxErrorBackoff, 2.0)

	s.logger.Info("Relay loop started", "batch_size", batchSize, "poll_interval", pollInterval)

	for {
		if ctx.Err() != nil {
			s.logger.Info("Relay loop shutting down")
			return
		}

		processed, err := s.ProcessNextBatch(ctx, batchSize)
		switch {
		case err != nil:
			if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
				s.logger.Info("Relay loop shutting down mid-cycle")
				return
			}

			metrics.HealthStatus.Set(0)
			wait := backoff.Next()
			s.logger.Error("Relay cycle failed, backing off", "retry_in", wait, "error", err)
			if !sleepCtx(ctx, wait) {
				return
			}

		case processed == 0:
			metrics.HealthStatus.Set(1)
			backoff.Reset()
			if !sleepCtx(ctx, pollInterval) {
				return
			}

		default:
			// Batch delivered: fetch again immediately to drain
			// the backlog as fast as the sink allows.
			metrics.HealthStatus.Set(1)
			backoff.Reset()
		}
	}
}

// ProcessNextBatch executes a single relay cycle and reports how many
// events it consumed from the outbox (delivered or quarantined). A
// returned error means nothing was marked sent this cycle.
func (s *RelayService) ProcessNextBatch(ctx context.Context, batchSize int) (int, error) {
	start := time.Now()

	events, err := s.repo.FetchUnsent(ctx, batchSize)
	if err != nil {
		return 0, fmt.Errorf("fetch failure: %w", err)
	}
	if len(events) == 0 {
		return 0, nil
	}

	metrics.BatchSize.Observe(float64(len(events)))

	defer func() {
		metrics.BatchDuration.Observe(time.Since(start).Seconds())
		s.logger.Info("Batch cycle telemetry",
			"count", len(events),
			"duration_ms", time.Since(start).Milliseconds(),
		)
	}()

	var batchBytes int
	for _, ev := range events {
		batchBytes += ev.EstimateBytes()
	}
	if batchMB := batchBytes / (1024 * 1024); batchMB > MaxBatchMemoryThresholdMB {
		s.logger.Warn("Heavy batch detected: memory pressure risk",
			"size_mb", batchMB,
			"threshold_mb", MaxBatchMemoryThresholdMB,
			"count", len(events),
		)
	}

	// Transform. A malformed payload quarantines its own record and
	// never stalls the rest of the batch.
	rows := make([]models.AnalyticsRow, 0, len(events))
	deliveredIDs := make([]int64, 0, len(events))
	var poisoned []quarantinedEvent

	for _, ev := range events {
		row, err := s.builder.Build(ev)
		if err != nil {
			s.logger.Error("Quarantining malformed event",
				"event_id", ev.EventID,
				"event_type", ev.EventType,
				"error", err,
			)
			poisoned = append(poisoned, quarantinedEvent{id: ev.ID, reason: err.Error()})
			metrics.EventsRelayed.WithLabelValues("quarantined", ev.EventType).Inc()
			continue
		}
		rows = append(rows, row)
		deliveredIDs = append(deliveredIDs, ev.ID)
	}

	// Each record keeps its own diagnosis; poison is rare, so the
	// extra round trips do not matter.
	for _, q := range poisoned {
		if err := s.repo.MarkFailed(ctx, []int64{q.id}, q.reason); err != nil {
			return 0, fmt.Errorf("quarantine failure: %w", err)
		}
	}

	if len(rows) == 0 {
		// Entire batch was poison. Still progress: the rows are
		// quarantined and the next fetch will see fresh ones.
		return len(events), nil
	}

	// Bulk insert. One call for the whole batch; on error nothing is
	// marked and the batch is retried next cycle.
	insertStart := time.Now()
	if err := s.sink.Insert(ctx, rows); err != nil {
		for _, row := range rows {
			metrics.EventsRelayed.WithLabelValues("error", row.EventType).Inc()
		}
		return 0, fmt.Errorf("sink insert failure: %w", err)
	}
	metrics.SinkInsertDuration.Observe(time.Since(insertStart).Seconds())

	// Final checkpoint. Failing here redelivers the batch next cycle,
	// which the sink's replacing merge semantics absorb.
	if err := s.repo.MarkSent(ctx, deliveredIDs); err != nil {
		return 0, fmt.Errorf("db checkpoint failure: %w", err)
	}

	for _, row := range rows {
		metrics.EventsRelayed.WithLabelValues("sent", row.EventType).Inc()
	}

	return len(events), nil
}

// sleepCtx waits for d or the context, whichever ends first. Returns
// false when the context won.
func sleepCtx(ctx context.Context, d time.Duration) bool {
	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return false
	case <-timer.C:
		return true
	}
}
