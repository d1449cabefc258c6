package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/gatherhall/server/internal/domain/events"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/jackc/pgx/v5/pgxpool"
)

var _ events.Repository = (*EventRepository)(nil)

// EventRepository implements events.Repository against Postgres.
type EventRepository struct {
	pool *pgxpool.Pool
	tx   pgx.Tx
}

func NewEventRepository(pool *pgxpool.Pool) *EventRepository {
	return &EventRepository{pool: pool}
}

// queryer abstracts pool vs. transaction execution.
type queryer interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

func (r *EventRepository) queryer() queryer {
	if r.tx != nil {
		return r.tx
	}
	return r.pool
}

const eventColumns = `id, code, name, description, status, capacity,
       organizer_id::text, starts_at, ends_at, location, created_at, updated_at`

func (r *EventRepository) Create(ctx context.Context, event events.Event) error {
	_, err := r.queryer().Exec(ctx, `
INSERT INTO events (id, code, name, description, status, capacity, organizer_id,
                    starts_at, ends_at, location, created_at, updated_at)
VALUES ($1, $2, $3, $4, $5, $6, $7::uuid, $8, $9, $10, $11, $12)
`,
		event.ID,
		event.Code,
		event.Name,
		event.Description,
		string(event.Status),
		event.Capacity,
		event.OrganizerID,
		nullableTime(event.StartsAt),
		nullableTime(event.EndsAt),
		event.Location,
		event.CreatedAt,
		event.UpdatedAt,
	)
	if err != nil {
		if isUniqueViolation(err, "events_code_key") {
			return events.ErrCodeTaken
		}
		return fmt.Errorf("insert event: %w", err)
	}
	return nil
}

func (r *EventRepository) GetByID(ctx context.Context, id string) (*events.Event, error) {
	row := r.queryer().QueryRow(ctx, `SELECT `+eventColumns+` FROM events WHERE id = $1`, id)
	return scanEvent(row)
}

func (r *EventRepository) GetByCode(ctx context.Context, code string) (*events.Event, error) {
	row := r.queryer().QueryRow(ctx, `SELECT `+eventColumns+` FROM events WHERE code = $1`, code)
	return scanEvent(row)
}

func (r *EventRepository) CodeExists(ctx context.Context, code string) (bool, error) {
	var exists bool
	err := r.queryer().QueryRow(ctx,
		`SELECT EXISTS (SELECT 1 FROM events WHERE code = $1)`, code,
	).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("probe event code: %w", err)
	}
	return exists, nil
}

func (r *EventRepository) UpdateStatus(ctx context.Context, id string, status events.Status) error {
	tag, err := r.queryer().Exec(ctx,
		`UPDATE events SET status = $2, updated_at = now() WHERE id = $1`,
		id, string(status),
	)
	if err != nil {
		return fmt.Errorf("update event status: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return events.ErrEventNotFound
	}
	return nil
}

func (r *EventRepository) ListByOrganizer(ctx context.Context, organizerID string) ([]events.Event, error) {
	rows, err := r.queryer().Query(ctx,
		`SELECT `+eventColumns+` FROM events WHERE organizer_id = $1::uuid ORDER BY created_at DESC`,
		organizerID,
	)
	if err != nil {
		return nil, fmt.Errorf("list events: %w", err)
	}
	defer rows.Close()

	var out []events.Event
	for rows.Next() {
		event, err := scanEventRow(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *event)
	}
	return out, rows.Err()
}

func scanEvent(row pgx.Row) (*events.Event, error) {
	event, err := scanEventRow(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, events.ErrEventNotFound
		}
		return nil, err
	}
	return event, nil
}

func scanEventRow(row pgx.Row) (*events.Event, error) {
	var (
		event    events.Event
		status   string
		startsAt pgtype.Timestamptz
		endsAt   pgtype.Timestamptz
	)
	err := row.Scan(
		&event.ID,
		&event.Code,
		&event.Name,
		&event.Description,
		&status,
		&event.Capacity,
		&event.OrganizerID,
		&startsAt,
		&endsAt,
		&event.Location,
		&event.CreatedAt,
		&event.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("scan event: %w", err)
	}
	event.Status = events.Status(status)
	if startsAt.Valid {
		event.StartsAt = startsAt.Time
	}
	if endsAt.Valid {
		event.EndsAt = endsAt.Time
	}
	return &event, nil
}
