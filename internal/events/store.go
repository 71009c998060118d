package events

import (
	"context"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog"
)

// PGStore writes events to the domain_events table.
type PGStore struct {
	Pool *pgxpool.Pool
}

// Insert implements Store.
func (s PGStore) Insert(ctx context.Context, ev Event) (Event, error) {
	err := s.Pool.QueryRow(ctx, `
INSERT INTO domain_events (topic, aggregate_id, payload)
VALUES ($1, $2, $3)
RETURNING id, occurred_at`, ev.Topic, ev.AggregateID, []byte(ev.Payload)).Scan(&ev.ID, &ev.OccurredAt)
	return ev, err
}

// LogNotifier writes every event to the structured log.
type LogNotifier struct {
	Logger zerolog.Logger
}

// Notify implements Notifier.
func (n LogNotifier) Notify(_ context.Context, ev Event) error {
	n.Logger.Info().
		Str("event_id", ev.ID.String()).
		Str("topic", ev.Topic).
		Str("aggregate_id", ev.AggregateID.String()).
		RawJSON("payload", ev.Payload).
		Msg("domain event")
	return nil
}
