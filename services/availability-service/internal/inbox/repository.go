package inbox

import (
	"context"

	"github.com/brightsmile/dentalbook/libs/db"
	otelx "github.com/brightsmile/dentalbook/libs/otel"
)

// Repository remembers consumed change events so redelivered messages are skipped.
type Repository struct {
	pool db.Querier
}

func NewRepository(pool db.Querier) *Repository {
	return &Repository{pool: pool}
}

func (r *Repository) EnsureSchema(ctx context.Context) error {
	_, err := r.pool.Exec(ctx, `
		CREATE TABLE IF NOT EXISTS availability_inbox_events (
			event_id TEXT PRIMARY KEY,
			event_type TEXT NOT NULL,
			traceparent TEXT NOT NULL DEFAULT '',
			tracestate TEXT NOT NULL DEFAULT '',
			received_at TIMESTAMPTZ NOT NULL DEFAULT now()
		)
	`)
	return err
}

// Record returns false when the event was already recorded. The trace context of ctx is
// stored with the event.
func (r *Repository) Record(ctx context.Context, eventID string, eventType string) (bool, error) {
	traceparent, tracestate := otelx.TraceContextStrings(ctx)
	_, err := r.pool.Exec(ctx, `
		INSERT INTO availability_inbox_events (event_id, event_type, traceparent, tracestate)
		VALUES ($1, $2, $3, $4)
	`, eventID, eventType, traceparent, tracestate)
	if err == nil {
		return true, nil
	}
	if db.IsUniqueViolation(err) {
		return false, nil
	}
	return false, err
}
