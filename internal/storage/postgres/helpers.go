package postgres

import (
	"time"

	"github.com/jackc/pgx/v5/pgtype"
)

// nullableTime maps Go zero times to SQL NULL.
func nullableTime(t time.Time) pgtype.Timestamptz {
	if t.IsZero() {
		return pgtype.Timestamptz{}
	}
	return pgtype.Timestamptz{Time: t, Valid: true}
}
