package users

import (
	"context"
	"errors"
	"fmt"
)

var (
	ErrUserNotFound = errors.New("user not found")

	// ErrSelfModification means an admin tried to change their own role or
	// delete their own account. Checked before anything else.
	ErrSelfModification = errors.New("cannot change your own role or delete your own account")

	// ErrLastAdmin means the change would leave the platform with zero
	// admins.
	ErrLastAdmin = errors.New("cannot remove the last remaining admin")
)

// Guard validates that a proposed role change or account deletion will not
// strand the platform without an admin. It is purely advisory: it persists
// nothing, and the caller applies the write only on a nil return.
//
// The admin count is read through the repository the guard was built with.
// Callers that need the decision and the write to be atomic construct the
// guard over a transaction-bound repository and apply the write inside the
// same transaction.
type Guard struct {
	repo Repository
}

func NewGuard(repo Repository) *Guard {
	return &Guard{repo: repo}
}

// CheckRoleChange validates changing targetID's role to newRole on behalf of
// actingID.
func (g *Guard) CheckRoleChange(ctx context.Context, targetID string, newRole Role, actingID string) error {
	if !newRole.IsValid() {
		return fmt.Errorf("unknown role %q", newRole)
	}
	if targetID == actingID {
		return ErrSelfModification
	}

	target, err := g.repo.GetByID(ctx, targetID)
	if err != nil {
		return err
	}
	if target.Role != RoleAdmin || newRole == RoleAdmin {
		return nil
	}
	return g.checkNotLastAdmin(ctx)
}

// CheckDelete validates deleting targetID's account on behalf of actingID.
func (g *Guard) CheckDelete(ctx context.Context, targetID, actingID string) error {
	if targetID == actingID {
		return ErrSelfModification
	}

	target, err := g.repo.GetByID(ctx, targetID)
	if err != nil {
		return err
	}
	if target.Role != RoleAdmin {
		return nil
	}
	return g.checkNotLastAdmin(ctx)
}

func (g *Guard) checkNotLastAdmin(ctx context.Context) error {
	count, err := g.repo.CountAdmins(ctx)
	if err != nil {
		return fmt.Errorf("count admins: %w", err)
	}
	if count <= 1 {
		return ErrLastAdmin
	}
	return nil
}
