package sql

import (
	"context"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/jimbomcb/wow-minimaps/errs"
	"github.com/jimbomcb/wow-minimaps/eventlog"
)

// EventStore persists eventlog.Event rows into the events table,
// implementing eventlog.Sink.
type EventStore struct {
	pool *pgxpool.Pool
}

func NewEventStore(pool *pgxpool.Pool) *EventStore { return &EventStore{pool: pool} }

// Append inserts ev. Event ids are UUIDs generated by the caller, so
// this is a plain insert, not an upsert.
func (s *EventStore) Append(ctx context.Context, ev eventlog.Event) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO events (id, kind, at, product_id, detail)
		VALUES ($1, $2, $3, $4, $5)
	`, ev.ID, string(ev.Kind), ev.At, ev.ProductID, ev.Detail)
	if err != nil {
		return errs.WrapFmt(err, "sql: appending event %s", ev.Kind)
	}
	return nil
}
