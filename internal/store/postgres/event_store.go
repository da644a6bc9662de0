package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/alanyoungcy/dscengine/internal/domain"
)

// EventStore implements domain.EventStore on the engine_events table.
type EventStore struct {
	pool *pgxpool.Pool
}

// NewEventStore creates an EventStore backed by pool.
func NewEventStore(pool *pgxpool.Pool) *EventStore {
	return &EventStore{pool: pool}
}

const eventSelectCols = `id::text, kind, user_address, from_address, to_address, asset, amount::text, occurred_at`

// Append inserts ev. Re-appending the same id is a no-op.
func (s *EventStore) Append(ctx context.Context, ev domain.Event) error {
	const query = `
		INSERT INTO engine_events (id, kind, user_address, from_address, to_address, asset, amount, occurred_at)
		VALUES ($1::uuid, $2, $3, $4, $5, $6, $7::numeric, $8)
		ON CONFLICT (id) DO NOTHING`

	rec := ev.Record()
	_, err := s.pool.Exec(ctx, query,
		rec.ID, string(rec.Kind),
		nullable(rec.User), nullable(rec.From), nullable(rec.To),
		rec.Asset, rec.Amount, ev.At,
	)
	if err != nil {
		return fmt.Errorf("postgres: append event %s: %w", ev.ID, err)
	}
	return nil
}

// List returns events newest first.
func (s *EventStore) List(ctx context.Context, opts domain.ListOpts) ([]domain.Event, error) {
	query := `SELECT ` + eventSelectCols + ` FROM engine_events WHERE 1=1`
	args := []any{}
	argIdx := 1

	if opts.Since != nil {
		query += fmt.Sprintf(" AND occurred_at >= $%d", argIdx)
		args = append(args, *opts.Since)
		argIdx++
	}
	if opts.Until != nil {
		query += fmt.Sprintf(" AND occurred_at <= $%d", argIdx)
		args = append(args, *opts.Until)
		argIdx++
	}
	query += " ORDER BY occurred_at DESC, id"
	if opts.Limit > 0 {
		query += fmt.Sprintf(" LIMIT $%d", argIdx)
		args = append(args, opts.Limit)
		argIdx++
	}
	if opts.Offset > 0 {
		query += fmt.Sprintf(" OFFSET $%d", argIdx)
		args = append(args, opts.Offset)
	}

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("postgres: list events: %w", err)
	}
	defer rows.Close()
	return scanEventRows(rows)
}

// ListBefore returns events strictly older than before, oldest first.
func (s *EventStore) ListBefore(ctx context.Context, before time.Time) ([]domain.Event, error) {
	query := `SELECT ` + eventSelectCols + ` FROM engine_events WHERE occurred_at < $1 ORDER BY occurred_at ASC`
	rows, err := s.pool.Query(ctx, query, before)
	if err != nil {
		return nil, fmt.Errorf("postgres: list events before: %w", err)
	}
	defer rows.Close()
	return scanEventRows(rows)
}

func scanEventRows(rows pgx.Rows) ([]domain.Event, error) {
	var events []domain.Event
	for rows.Next() {
		var (
			ev               domain.Event
			kind, asset, amt string
			user, from, to   *string
		)
		if err := rows.Scan(&ev.ID, &kind, &user, &from, &to, &asset, &amt, &ev.At); err != nil {
			return nil, fmt.Errorf("postgres: scan event: %w", err)
		}
		amount, err := parseAmount(amt)
		if err != nil {
			return nil, err
		}
		ev.Kind = domain.EventKind(kind)
		ev.Asset = common.HexToAddress(asset)
		ev.Amount = amount
		ev.User = address(user)
		ev.From = address(from)
		ev.To = address(to)
		events = append(events, ev)
	}
	return events, rows.Err()
}

func nullable(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

func address(s *string) common.Address {
	if s == nil {
		return common.Address{}
	}
	return common.HexToAddress(*s)
}

var _ domain.EventStore = (*EventStore)(nil)
