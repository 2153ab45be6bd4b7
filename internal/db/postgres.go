package db

import (
	"context"
	"fmt"

	"github.com/shopsight/analytics-relay/internal/models"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

// PostgresRepository is the relay's handle on the Event Log Store. It is
// a long-lived, single-owner handle: the relay is the only consumer of
// the outbox table, so no row claiming or locking is performed.
type PostgresRepository struct {
	pool *pgxpool.Pool
}

func NewPostgresRepository(ctx context.Context, connString string) (*PostgresRepository, error) {
	config, err := pgxpool.ParseConfig(connString)
	if err != nil {
		return nil, fmt.Errorf("parse postgres config: %w", err)
	}

	p, err := pgxpool.NewWithConfig(ctx, config)
	if err != nil {
		return nil, fmt.Errorf("create postgres pool: %w", err)
	}

	if err := p.Ping(ctx); err != nil {
		p.Close()
		return nil, fmt.Errorf("no response from postgres: %w", err)
	}

	return &PostgresRepository{pool: p}, nil
}

// FetchUnsent selects the oldest undelivered batch. Quarantined rows
// (failed = true) are skipped so one poison payload cannot stall the
// pipeline forever.
func (r *PostgresRepository) FetchUnsent(ctx context.Context, limit int) ([]models.OutboxEvent, error) {
	query := `
		SELECT id, event_id, event_type, payload, created_at
		FROM outbox_events
		WHERE sent = false AND failed = false
		ORDER BY created_at ASC
		LIMIT $1
	`

	rows, err := r.pool.Query(ctx, query, limit)
	if err != nil {
		return nil, fmt.Errorf("fetch unsent events: %w", err)
	}
	defer rows.Close()

	var events []models.OutboxEvent
	for rows.Next() {
		var ev models.OutboxEvent
		if err := rows.Scan(&ev.ID, &ev.EventID, &ev.EventType, &ev.Payload, &ev.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan outbox row: %w", err)
		}
		events = append(events, ev)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate outbox rows: %w", err)
	}

	return events, nil
}

// MarkSent flips the delivery flag for a whole batch in one statement.
// This is the relay's sole commit point: rows are delivered once this
// update is durable, not when the sink acknowledges the insert.
func (r *PostgresRepository) MarkSent(ctx context.Context, ids []int64) error {
	if len(ids) == 0 {
		return nil
	}

	query := `
		UPDATE outbox_events
		SET sent = true, sent_at = now()
		WHERE id = ANY($1)
	`
	if _, err := r.pool.Exec(ctx, query, ids); err != nil {
		return fmt.Errorf("mark events sent: %w", err)
	}
	return nil
}

// MarkFailed quarantines rows whose payloads cannot be transformed.
// They stay in the table for operator inspection but are excluded from
// future fetches.
func (r *PostgresRepository) MarkFailed(ctx context.Context, ids []int64, reason string) error {
	if len(ids) == 0 {
		return nil
	}

	query := `
		UPDATE outbox_events
		SET failed = true, error_log = $2
		WHERE id = ANY($1)
	`
	if _, err := r.pool.Exec(ctx, query, ids, reason); err != nil {
		return fmt.Errorf("quarantine events: %w", err)
	}
	return nil
}

// CountBacklog returns the number of rows still awaiting delivery.
// Feeds the backlog gauge; the primary lag indicator for operators.
func (r *PostgresRepository) CountBacklog(ctx context.Context) (int64, error) {
	var count int64
	query := `SELECT count(*) FROM outbox_events WHERE sent = false AND failed = false`
	if err := r.pool.QueryRow(ctx, query).Scan(&count); err != nil {
		return 0, fmt.Errorf("count backlog: %w", err)
	}
	return count, nil
}

// Execer is the slice of pgx.Tx that EnqueueTx needs. Narrowed so
// producer-side tests can run without a database.
type Execer interface {
	Exec(ctx context.Context, sql string, arguments ...any) (pgconn.CommandTag, error)
}

// EnqueueTx inserts an outbox row inside the caller's transaction. This
// is the outbox pattern proper: the business mutation and its event
// record commit or roll back together.
func EnqueueTx(ctx context.Context, tx Execer, eventID, eventType string, payload []byte) error {
	query := `
		INSERT INTO outbox_events (event_id, event_type, payload)
		VALUES ($1, $2, $3)
	`
	if _, err := tx.Exec(ctx, query, eventID, eventType, payload); err != nil {
		return fmt.Errorf("enqueue outbox event: %w", err)
	}
	return nil
}

// Pool exposes the underlying pool for producers that need to open
// their own transactions around EnqueueTx.
func (r *PostgresRepository) Pool() *pgxpool.Pool {
	return r.pool
}

func (r *PostgresRepository) Close() {
	r.pool.Close()
}
