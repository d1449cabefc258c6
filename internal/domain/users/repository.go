package users

import "context"

// Store opens the transaction role changes and deletions run inside, so the
// admin count the guard reads and the write it protects share one unit of
// work.
type Store interface {
	WithTx(ctx context.Context, fn func(ctx context.Context, repo Repository) error) error
	Repo() Repository
}

// Repository is the persistence surface for user accounts.
type Repository interface {
	GetByID(ctx context.Context, id string) (*User, error)
	GetByUsername(ctx context.Context, username string) (*User, error)
	// CountAdmins counts non-deleted users with the admin role. The guard
	// calls this fresh at decision time; the value is never cached.
	CountAdmins(ctx context.Context) (int64, error)
	Create(ctx context.Context, user User) error
	UpdateRole(ctx context.Context, id string, role Role) error
	// Delete soft-deletes the account.
	Delete(ctx context.Context, id string) error
	List(ctx context.Context, limit, offset int32) ([]User, error)
}

// Notifier delivers best-effort side effects after an account change has
// committed. Failures are logged by the implementation, never returned.
type Notifier interface {
	RoleChanged(ctx context.Context, user User, from, to Role)
	AccountDeleted(ctx context.Context, user User)
}

// NopNotifier discards all notifications.
type NopNotifier struct{}

func (NopNotifier) RoleChanged(context.Context, User, Role, Role) {}
func (NopNotifier) AccountDeleted(context.Context, User)          {}
