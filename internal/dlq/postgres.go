package dlq

import (
	"context"
	"encoding/json"

	"github.com/jackc/pgx/v5/pgxpool"
)

// PostgresArchive is a long-term archive sink for DLQ entries older than
// the in-memory cleanup age, grounded on store/postgres.go's pgxpool usage.
type PostgresArchive struct {
	pool *pgxpool.Pool
}

// NewPostgresArchive opens a pool against connString and ensures the
// dlq_entries table exists.
func NewPostgresArchive(ctx context.Context, connString string) (*PostgresArchive, error) {
	pool, err := pgxpool.New(ctx, connString)
	if err != nil {
		return nil, err
	}
	if err := pool.Ping(ctx); err != nil {
		return nil, err
	}

	const schema = `
		CREATE TABLE IF NOT EXISTS dlq_entries (
			entry_id TEXT PRIMARY KEY,
			job_id TEXT NOT NULL,
			task_id TEXT NOT NULL,
			task_name TEXT NOT NULL,
			queue_name TEXT NOT NULL,
			payload JSONB,
			failure_reason TEXT,
			last_error TEXT,
			attempts_made INT,
			enqueued_at TIMESTAMPTZ,
			resolution TEXT,
			resolved_by TEXT,
			archived_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
		)
	`
	if _, err := pool.Exec(ctx, schema); err != nil {
		pool.Close()
		return nil, err
	}

	return &PostgresArchive{pool: pool}, nil
}

// Close releases the underlying connection pool.
func (a *PostgresArchive) Close() { a.pool.Close() }

// Archive appends-only inserts entries into dlq_entries.
func (a *PostgresArchive) Archive(entries []*Entry) error {
	ctx := context.Background()
	const stmt = `
		INSERT INTO dlq_entries
			(entry_id, job_id, task_id, task_name, queue_name, payload, failure_reason,
			 last_error, attempts_made, enqueued_at, resolution, resolved_by)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12)
		ON CONFLICT (entry_id) DO NOTHING
	`
	for _, e := range entries {
		payload, err := json.Marshal(e.Payload)
		if err != nil {
			return err
		}
		var resolution, resolvedBy string
		if e.Resolution != nil {
			resolution = string(*e.Resolution)
		}
		resolvedBy = e.ResolvedBy

		if _, err := a.pool.Exec(ctx, stmt,
			e.EntryID, e.JobID, e.TaskID, e.TaskName, e.Queue, payload, e.FailureReason,
			e.LastError, e.AttemptsMade, e.EnqueuedAt, resolution, resolvedBy,
		); err != nil {
			return err
		}
	}
	return nil
}
