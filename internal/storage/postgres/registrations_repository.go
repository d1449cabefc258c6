package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/gatherhall/server/internal/domain/events"
	"github.com/gatherhall/server/internal/domain/registrations"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

var (
	_ registrations.Store      = (*RegistrationStore)(nil)
	_ registrations.Repository = (*RegistrationRepository)(nil)
)

// RegistrationStore implements registrations.Store. WithTx hands the closure
// a transaction-bound repository; every statement inside shares one unit of
// work, which is what lets LockEvent's row lock serialize admissions.
type RegistrationStore struct {
	pool *pgxpool.Pool
}

func NewRegistrationStore(pool *pgxpool.Pool) *RegistrationStore {
	return &RegistrationStore{pool: pool}
}

func (s *RegistrationStore) WithTx(ctx context.Context, fn func(ctx context.Context, repo registrations.Repository) error) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}

	if err := fn(ctx, &RegistrationRepository{pool: s.pool, tx: tx}); err != nil {
		_ = tx.Rollback(ctx)
		return err
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit tx: %w", err)
	}
	return nil
}

func (s *RegistrationStore) Repo() registrations.Repository {
	return &RegistrationRepository{pool: s.pool}
}

// RegistrationRepository runs registration statements against the pool or,
// inside WithTx, a transaction.
type RegistrationRepository struct {
	pool *pgxpool.Pool
	tx   pgx.Tx
}

func (r *RegistrationRepository) queryer() queryer {
	if r.tx != nil {
		return r.tx
	}
	return r.pool
}

// LockEvent reads the event row. Inside a transaction it takes a row-level
// exclusive lock (SELECT ... FOR UPDATE), so concurrent admissions for the
// same event queue up behind each other and the count-then-write sequence
// never interleaves.
func (r *RegistrationRepository) LockEvent(ctx context.Context, eventID string) (*events.Event, error) {
	query := `SELECT ` + eventColumns + ` FROM events WHERE id = $1`
	if r.tx != nil {
		query += ` FOR UPDATE`
	}
	return scanEvent(r.queryer().QueryRow(ctx, query, eventID))
}

func (r *RegistrationRepository) CountActive(ctx context.Context, eventID string) (int64, error) {
	var count int64
	err := r.queryer().QueryRow(ctx, `
SELECT count(*) FROM registrations
 WHERE event_id = $1 AND status IN ('registered', 'attended')
`, eventID).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("count active registrations: %w", err)
	}
	return count, nil
}

const registrationColumns = `id, event_id, user_id::text, status, answers,
       registered_at, created_at, updated_at`

func (r *RegistrationRepository) GetByEventAndUser(ctx context.Context, eventID, userID string) (*registrations.Registration, error) {
	row := r.queryer().QueryRow(ctx,
		`SELECT `+registrationColumns+` FROM registrations WHERE event_id = $1 AND user_id = $2::uuid`,
		eventID, userID,
	)
	reg, err := scanRegistration(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	return reg, err
}

func (r *RegistrationRepository) GetByID(ctx context.Context, id string) (*registrations.Registration, error) {
	row := r.queryer().QueryRow(ctx,
		`SELECT `+registrationColumns+` FROM registrations WHERE id = $1`, id,
	)
	reg, err := scanRegistration(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, registrations.ErrRegistrationNotFound
	}
	return reg, err
}

func (r *RegistrationRepository) Insert(ctx context.Context, reg registrations.Registration) error {
	answers, err := marshalAnswers(reg.Answers)
	if err != nil {
		return err
	}

	_, err = r.queryer().Exec(ctx, `
INSERT INTO registrations (id, event_id, user_id, status, answers, registered_at, created_at, updated_at)
VALUES ($1, $2, $3::uuid, $4, $5, $6, $7, $8)
`,
		reg.ID,
		reg.EventID,
		reg.UserID,
		string(reg.Status),
		answers,
		reg.RegisteredAt,
		reg.CreatedAt,
		reg.UpdatedAt,
	)
	if err != nil {
		if isUniqueViolation(err, "registrations_event_user_key") {
			return registrations.ErrAlreadyRegistered
		}
		return fmt.Errorf("insert registration: %w", err)
	}
	return nil
}

func (r *RegistrationRepository) Reactivate(ctx context.Context, reg registrations.Registration) error {
	answers, err := marshalAnswers(reg.Answers)
	if err != nil {
		return err
	}

	tag, err := r.queryer().Exec(ctx, `
UPDATE registrations
   SET status = 'registered', answers = $2, registered_at = $3, updated_at = now()
 WHERE id = $1 AND status = 'cancelled'
`, reg.ID, answers, reg.RegisteredAt)
	if err != nil {
		return fmt.Errorf("reactivate registration: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return registrations.ErrRegistrationNotFound
	}
	return nil
}

func (r *RegistrationRepository) UpdateStatus(ctx context.Context, id string, status registrations.Status) error {
	tag, err := r.queryer().Exec(ctx,
		`UPDATE registrations SET status = $2, updated_at = now() WHERE id = $1`,
		id, string(status),
	)
	if err != nil {
		return fmt.Errorf("update registration status: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return registrations.ErrRegistrationNotFound
	}
	return nil
}

func (r *RegistrationRepository) ListByEvent(ctx context.Context, eventID string) ([]registrations.Registration, error) {
	return r.list(ctx,
		`SELECT `+registrationColumns+` FROM registrations WHERE event_id = $1 ORDER BY registered_at ASC`,
		eventID,
	)
}

func (r *RegistrationRepository) ListByUser(ctx context.Context, userID string) ([]registrations.Registration, error) {
	return r.list(ctx,
		`SELECT `+registrationColumns+` FROM registrations WHERE user_id = $1::uuid ORDER BY registered_at DESC`,
		userID,
	)
}

func (r *RegistrationRepository) list(ctx context.Context, query string, arg any) ([]registrations.Registration, error) {
	rows, err := r.queryer().Query(ctx, query, arg)
	if err != nil {
		return nil, fmt.Errorf("list registrations: %w", err)
	}
	defer rows.Close()

	var out []registrations.Registration
	for rows.Next() {
		reg, err := scanRegistration(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *reg)
	}
	return out, rows.Err()
}

func scanRegistration(row pgx.Row) (*registrations.Registration, error) {
	var (
		reg     registrations.Registration
		status  string
		answers []byte
	)
	err := row.Scan(
		&reg.ID,
		&reg.EventID,
		&reg.UserID,
		&status,
		&answers,
		&reg.RegisteredAt,
		&reg.CreatedAt,
		&reg.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("scan registration: %w", err)
	}
	reg.Status = registrations.Status(status)
	if len(answers) > 0 {
		if err := json.Unmarshal(answers, &reg.Answers); err != nil {
			return nil, fmt.Errorf("decode registration answers: %w", err)
		}
	}
	return &reg, nil
}

func marshalAnswers(answers map[string]any) ([]byte, error) {
	if answers == nil {
		return []byte("{}"), nil
	}
	data, err := json.Marshal(answers)
	if err != nil {
		return nil, fmt.Errorf("encode registration answers: %w", err)
	}
	return data, nil
}
