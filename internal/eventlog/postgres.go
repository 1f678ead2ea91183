package eventlog

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
)

// Channel is the Postgres NOTIFY channel the dashboard's listener
// subscribes to; payload is just the stream_id and kind so listeners
// re-query the log rather than trusting an out-of-band copy of the
// event.
const Channel = "onebar_events"

// Store is the durable, append-only event log backed by Postgres. It
// satisfies runner.EventLog.
type Store struct {
	pool *pgxpool.Pool
}

// Open connects to Postgres and ensures the events table exists.
func Open(ctx context.Context, connStr string) (*Store, error) {
	if connStr == "" {
		return nil, fmt.Errorf("eventlog: connection string is required")
	}
	pool, err := pgxpool.New(ctx, connStr)
	if err != nil {
		return nil, fmt.Errorf("eventlog: connect: %w", err)
	}
	s := &Store{pool: pool}
	if err := s.ensureSchema(ctx); err != nil {
		pool.Close()
		return nil, err
	}
	return s, nil
}

func (s *Store) ensureSchema(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, `
		CREATE TABLE IF NOT EXISTS events (
			id         BIGSERIAL PRIMARY KEY,
			stream_id  TEXT NOT NULL,
			kind       TEXT NOT NULL,
			payload    JSONB NOT NULL,
			created_at TIMESTAMPTZ NOT NULL DEFAULT now()
		);
		CREATE INDEX IF NOT EXISTS events_stream_id_idx ON events (stream_id, created_at);
	`)
	if err != nil {
		return fmt.Errorf("eventlog: ensure schema: %w", err)
	}
	return nil
}

// Append writes one event and fires a NOTIFY so live dashboard
// listeners pick it up without polling. eventType is a string rather
// than Kind so callers outside this package (the runner) don't need to
// import eventlog.Kind for every call site.
func (s *Store) Append(ctx context.Context, streamID, eventType string, payload interface{}) error {
	data, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("eventlog: marshal payload: %w", err)
	}

	var id int64
	err = s.pool.QueryRow(ctx,
		`INSERT INTO events (stream_id, kind, payload) VALUES ($1, $2, $3) RETURNING id`,
		streamID, eventType, data,
	).Scan(&id)
	if err != nil {
		return fmt.Errorf("eventlog: insert: %w", err)
	}

	notifyPayload, _ := json.Marshal(map[string]string{"stream_id": streamID, "kind": eventType})
	if _, err := s.pool.Exec(ctx, `SELECT pg_notify($1, $2)`, Channel, string(notifyPayload)); err != nil {
		return fmt.Errorf("eventlog: notify: %w", err)
	}
	return nil
}

// Since returns every event in a stream at or after t, oldest first —
// the replay primitive used by the dashboard's backfill and by offline
// analysis tooling.
func (s *Store) Since(ctx context.Context, streamID string, t time.Time) ([]Event, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT id, stream_id, kind, payload, created_at FROM events
		 WHERE stream_id = $1 AND created_at >= $2 ORDER BY created_at ASC`,
		streamID, t,
	)
	if err != nil {
		return nil, fmt.Errorf("eventlog: query: %w", err)
	}
	defer rows.Close()

	var events []Event
	for rows.Next() {
		var e Event
		if err := rows.Scan(&e.ID, &e.StreamID, &e.Kind, &e.Payload, &e.CreatedAt); err != nil {
			return nil, fmt.Errorf("eventlog: scan: %w", err)
		}
		events = append(events, e)
	}
	return events, rows.Err()
}

// Close releases the connection pool.
func (s *Store) Close() { s.pool.Close() }
