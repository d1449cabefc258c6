package users

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

type fakeStore struct {
	mu    sync.Mutex
	users map[string]*User
}

func newFakeStore() *fakeStore {
	return &fakeStore{users: make(map[string]*User)}
}

func (s *fakeStore) WithTx(ctx context.Context, fn func(ctx context.Context, repo Repository) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return fn(ctx, &fakeUserRepo{store: s})
}

func (s *fakeStore) Repo() Repository {
	return &fakeUserRepo{store: s, locking: true}
}

func (s *fakeStore) add(id string, role Role) *User {
	user := &User{
		ID:       id,
		Username: id,
		Email:    id + "@example.com",
		FullName: "User " + id,
		Phone:    "555-0100",
		Role:     role,
		IsActive: true,
	}
	s.users[id] = user
	return user
}

type fakeUserRepo struct {
	store   *fakeStore
	locking bool
}

func (r *fakeUserRepo) lock() func() {
	if !r.locking {
		return func() {}
	}
	r.store.mu.Lock()
	return r.store.mu.Unlock
}

func (r *fakeUserRepo) GetByID(ctx context.Context, id string) (*User, error) {
	defer r.lock()()
	user, ok := r.store.users[id]
	if !ok {
		return nil, ErrUserNotFound
	}
	copied := *user
	return &copied, nil
}

func (r *fakeUserRepo) GetByUsername(ctx context.Context, username string) (*User, error) {
	defer r.lock()()
	for _, user := range r.store.users {
		if user.Username == username {
			copied := *user
			return &copied, nil
		}
	}
	return nil, ErrUserNotFound
}

func (r *fakeUserRepo) CountAdmins(ctx context.Context) (int64, error) {
	defer r.lock()()
	var n int64
	for _, user := range r.store.users {
		if user.Role == RoleAdmin {
			n++
		}
	}
	return n, nil
}

func (r *fakeUserRepo) Create(ctx context.Context, user User) error {
	defer r.lock()()
	stored := user
	r.store.users[user.ID] = &stored
	return nil
}

func (r *fakeUserRepo) UpdateRole(ctx context.Context, id string, role Role) error {
	defer r.lock()()
	user, ok := r.store.users[id]
	if !ok {
		return ErrUserNotFound
	}
	user.Role = role
	user.UpdatedAt = time.Now().UTC()
	return nil
}

func (r *fakeUserRepo) Delete(ctx context.Context, id string) error {
	defer r.lock()()
	if _, ok := r.store.users[id]; !ok {
		return ErrUserNotFound
	}
	delete(r.store.users, id)
	return nil
}

func (r *fakeUserRepo) List(ctx context.Context, limit, offset int32) ([]User, error) {
	defer r.lock()()
	var out []User
	for _, user := range r.store.users {
		out = append(out, *user)
	}
	return out, nil
}

func TestGuardRejectsSelfRoleChange(t *testing.T) {
	store := newFakeStore()
	store.add("admin-1", RoleAdmin)
	store.add("admin-2", RoleAdmin)
	guard := NewGuard(store.Repo())

	// self-modification is rejected regardless of how many admins exist
	err := guard.CheckRoleChange(context.Background(), "admin-1", RoleParticipant, "admin-1")
	require.ErrorIs(t, err, ErrSelfModification)

	err = guard.CheckRoleChange(context.Background(), "admin-1", RoleAdmin, "admin-1")
	require.ErrorIs(t, err, ErrSelfModification)
}

func TestGuardRejectsSelfDelete(t *testing.T) {
	store := newFakeStore()
	store.add("user-1", RoleParticipant)
	guard := NewGuard(store.Repo())

	err := guard.CheckDelete(context.Background(), "user-1", "user-1")
	require.ErrorIs(t, err, ErrSelfModification)
}

func TestGuardLastAdminDemotion(t *testing.T) {
	store := newFakeStore()
	store.add("admin-1", RoleAdmin)
	store.add("other", RoleOrganizer)
	guard := NewGuard(store.Repo())

	err := guard.CheckRoleChange(context.Background(), "admin-1", RoleParticipant, "other")
	require.ErrorIs(t, err, ErrLastAdmin)

	err = guard.CheckDelete(context.Background(), "admin-1", "other")
	require.ErrorIs(t, err, ErrLastAdmin)
}

func TestGuardAllowsDemotionWithTwoAdmins(t *testing.T) {
	store := newFakeStore()
	store.add("admin-1", RoleAdmin)
	store.add("admin-2", RoleAdmin)
	guard := NewGuard(store.Repo())

	require.NoError(t, guard.CheckRoleChange(context.Background(), "admin-1", RoleParticipant, "admin-2"))
	require.NoError(t, guard.CheckDelete(context.Background(), "admin-1", "admin-2"))
}

func TestGuardAdminToAdminIsNotADemotion(t *testing.T) {
	store := newFakeStore()
	store.add("admin-1", RoleAdmin)
	store.add("other", RoleParticipant)
	guard := NewGuard(store.Repo())

	require.NoError(t, guard.CheckRoleChange(context.Background(), "admin-1", RoleAdmin, "other"))
}

func TestGuardNonAdminTargetSkipsCount(t *testing.T) {
	store := newFakeStore()
	store.add("admin-1", RoleAdmin)
	store.add("user-1", RoleParticipant)
	guard := NewGuard(store.Repo())

	require.NoError(t, guard.CheckRoleChange(context.Background(), "user-1", RoleOrganizer, "admin-1"))
	require.NoError(t, guard.CheckDelete(context.Background(), "user-1", "admin-1"))
}

func TestGuardUnknownTarget(t *testing.T) {
	store := newFakeStore()
	store.add("admin-1", RoleAdmin)
	guard := NewGuard(store.Repo())

	err := guard.CheckRoleChange(context.Background(), "ghost", RoleOrganizer, "admin-1")
	require.ErrorIs(t, err, ErrUserNotFound)
}

func TestGuardRejectsUnknownRole(t *testing.T) {
	store := newFakeStore()
	store.add("admin-1", RoleAdmin)
	store.add("user-1", RoleParticipant)
	guard := NewGuard(store.Repo())

	err := guard.CheckRoleChange(context.Background(), "user-1", Role("superuser"), "admin-1")
	require.Error(t, err)
}
