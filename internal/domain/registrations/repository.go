package registrations

import (
	"context"

	"github.com/gatherhall/server/internal/domain/events"
)

// Store opens the transaction every admission runs inside. The Repository
// passed to fn is bound to that transaction; all reads and writes through it
// share one unit of work, so the capacity check and the insert cannot be
// separated by a concurrent admission.
type Store interface {
	WithTx(ctx context.Context, fn func(ctx context.Context, repo Repository) error) error
	// Repo returns a non-transactional repository for single-statement reads.
	Repo() Repository
}

// Repository is the persistence surface for registrations. Implementations
// back every method with store-level constraints: a unique index on
// (event_id, user_id) is the second safety net behind the locked capacity
// check, and insert maps its violation to ErrAlreadyRegistered.
type Repository interface {
	// LockEvent reads the event row and, inside a transaction, acquires a
	// row-level exclusive lock on it (SELECT ... FOR UPDATE). Concurrent
	// admissions for the same event serialize on this lock, so the
	// count-then-write sequence below cannot interleave.
	LockEvent(ctx context.Context, eventID string) (*events.Event, error)

	// CountActive counts rows with status registered or attended.
	CountActive(ctx context.Context, eventID string) (int64, error)

	GetByEventAndUser(ctx context.Context, eventID, userID string) (*Registration, error)
	GetByID(ctx context.Context, id string) (*Registration, error)

	// Insert creates a new row. Returns ErrAlreadyRegistered on a
	// (event_id, user_id) unique violation.
	Insert(ctx context.Context, reg Registration) error

	// Reactivate flips a cancelled row back to registered in place,
	// overwriting answers and the registration timestamp. The row id is
	// preserved.
	Reactivate(ctx context.Context, reg Registration) error

	UpdateStatus(ctx context.Context, id string, status Status) error

	ListByEvent(ctx context.Context, eventID string) ([]Registration, error)
	ListByUser(ctx context.Context, userID string) ([]Registration, error)
}

// ProfileSource reports which required profile fields a user has not filled
// in yet. An empty slice means the profile is complete.
type ProfileSource interface {
	MissingProfileFields(ctx context.Context, userID string) ([]string, error)
}

// Notifier delivers best-effort side effects after a registration change has
// committed. Implementations log failures and never return them: a lost
// notification must not fail the operation that triggered it.
type Notifier interface {
	RegistrationConfirmed(ctx context.Context, reg Registration)
	RegistrationCancelled(ctx context.Context, reg Registration)
}

// NopNotifier discards all notifications.
type NopNotifier struct{}

func (NopNotifier) RegistrationConfirmed(context.Context, Registration) {}
func (NopNotifier) RegistrationCancelled(context.Context, Registration) {}
