package audit

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
)

// PostgresSink writes session events to a PostgreSQL table via pgx. It is
// the production Sink: construct with NewPostgresSink, then pass it
// wherever a Sink is expected.
type PostgresSink struct {
	pool *pgxpool.Pool
}

// NewPostgresSink connects to dsn and returns a PostgresSink. Callers should
// run RunMigrations against the same dsn before accepting traffic.
func NewPostgresSink(ctx context.Context, dsn string) (*PostgresSink, error) {
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, fmt.Errorf("connecting to audit database: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("pinging audit database: %w", err)
	}
	return &PostgresSink{pool: pool}, nil
}

// Close releases the underlying connection pool.
func (s *PostgresSink) Close() {
	s.pool.Close()
}

// Record inserts rec asynchronously with a bounded timeout. A write failure
// is logged and otherwise ignored — the audit trail is advisory, never a
// condition the core blocks or fails on.
func (s *PostgresSink) Record(rec Record) {
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()

		_, err := s.pool.Exec(ctx,
			`INSERT INTO session_events (client_id, player_name, event, occurred_at)
			 VALUES ($1, $2, $3, $4)`,
			rec.ClientID, rec.PlayerName, string(rec.Event), rec.OccurredAt,
		)
		if err != nil {
			slog.Warn("audit: failed to record session event", "client_id", rec.ClientID, "event", rec.Event, "err", err)
		}
	}()
}
