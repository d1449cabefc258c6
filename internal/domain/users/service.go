package users

import (
	"context"
	"errors"
	"fmt"
	"reflect"
	"time"

	"github.com/gatherhall/server/internal/audit"
	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"golang.org/x/crypto/bcrypt"
)

// BcryptCost is the cost factor for bcrypt password hashing.
const BcryptCost = 12

// Service handles account management. Role changes and deletions run the
// invariant guard inside the same transaction as the write, so the admin
// count cannot go stale between decision and application.
type Service struct {
	store       Store
	auditLogger *audit.Logger
	notifier    Notifier
	validate    *validator.Validate
	logger      zerolog.Logger
}

func NewService(store Store, auditLogger *audit.Logger, notifier Notifier, logger zerolog.Logger) *Service {
	if notifier == nil {
		notifier = NopNotifier{}
	}
	validate := validator.New()
	validate.RegisterTagNameFunc(func(field reflect.StructField) string {
		if name := field.Tag.Get("profile"); name != "" {
			return name
		}
		return field.Name
	})
	return &Service{
		store:       store,
		auditLogger: auditLogger,
		notifier:    notifier,
		validate:    validate,
		logger:      logger.With().Str("component", "users").Logger(),
	}
}

// CheckRoleChange answers whether actingID may change targetID's role,
// without applying anything. The authoritative check re-runs inside
// ChangeRole's transaction.
func (s *Service) CheckRoleChange(ctx context.Context, targetID string, newRole Role, actingID string) error {
	return NewGuard(s.store.Repo()).CheckRoleChange(ctx, targetID, newRole, actingID)
}

// CheckDelete answers whether actingID may delete targetID's account,
// without applying anything.
func (s *Service) CheckDelete(ctx context.Context, targetID, actingID string) error {
	return NewGuard(s.store.Repo()).CheckDelete(ctx, targetID, actingID)
}

// ChangeRole sets targetID's role to newRole after the guard passes. Guard
// and write share one transaction.
func (s *Service) ChangeRole(ctx context.Context, targetID string, newRole Role, actingID string) (*User, error) {
	var (
		updated User
		from    Role
	)

	err := s.store.WithTx(ctx, func(ctx context.Context, repo Repository) error {
		if err := NewGuard(repo).CheckRoleChange(ctx, targetID, newRole, actingID); err != nil {
			return err
		}

		target, err := repo.GetByID(ctx, targetID)
		if err != nil {
			return err
		}
		from = target.Role
		if from == newRole {
			updated = *target
			return nil
		}

		if err := repo.UpdateRole(ctx, targetID, newRole); err != nil {
			return fmt.Errorf("update role: %w", err)
		}
		updated = *target
		updated.Role = newRole
		updated.UpdatedAt = time.Now().UTC()
		return nil
	})
	if err != nil {
		return nil, err
	}

	if from != newRole {
		s.auditLogger.LogSuccess("user.role_changed", actingID, "user", targetID, "", map[string]string{
			"from": string(from),
			"to":   string(newRole),
		})
		s.notifier.RoleChanged(ctx, updated, from, newRole)
	}
	return &updated, nil
}

// Delete soft-deletes targetID's account after the guard passes.
func (s *Service) Delete(ctx context.Context, targetID, actingID string) error {
	var deleted User

	err := s.store.WithTx(ctx, func(ctx context.Context, repo Repository) error {
		if err := NewGuard(repo).CheckDelete(ctx, targetID, actingID); err != nil {
			return err
		}

		target, err := repo.GetByID(ctx, targetID)
		if err != nil {
			return err
		}
		deleted = *target

		if err := repo.Delete(ctx, targetID); err != nil {
			return fmt.Errorf("delete user: %w", err)
		}
		return nil
	})
	if err != nil {
		return err
	}

	s.auditLogger.LogSuccess("user.deleted", actingID, "user", targetID, "", map[string]string{
		"username": deleted.Username,
	})
	s.notifier.AccountDeleted(ctx, deleted)
	return nil
}

func (s *Service) Get(ctx context.Context, id string) (*User, error) {
	return s.store.Repo().GetByID(ctx, id)
}

func (s *Service) List(ctx context.Context, limit, offset int32) ([]User, error) {
	if limit <= 0 {
		limit = 50
	}
	return s.store.Repo().List(ctx, limit, offset)
}

// profileProbe is the fixed completeness predicate for registration: these
// fields must be non-empty before a user may register for an event.
type profileProbe struct {
	FullName string `validate:"required" profile:"full_name"`
	Email    string `validate:"required,email" profile:"email"`
	Phone    string `validate:"required" profile:"phone"`
}

// MissingProfileFields implements the admission controller's profile
// completeness source. It returns the names of required fields the user has
// not filled in; an empty result means the profile is complete.
func (s *Service) MissingProfileFields(ctx context.Context, userID string) ([]string, error) {
	user, err := s.store.Repo().GetByID(ctx, userID)
	if err != nil {
		return nil, err
	}

	probe := profileProbe{
		FullName: user.FullName,
		Email:    user.Email,
		Phone:    user.Phone,
	}
	err = s.validate.Struct(probe)
	if err == nil {
		return nil, nil
	}

	var validationErrs validator.ValidationErrors
	if !errors.As(err, &validationErrs) {
		return nil, fmt.Errorf("validate profile: %w", err)
	}

	missing := make([]string, 0, len(validationErrs))
	for _, fieldErr := range validationErrs {
		missing = append(missing, fieldErr.Field())
	}
	return missing, nil
}

// ErrInvalidCredentials is returned for a bad username or password. The two
// cases are deliberately indistinguishable to callers.
var ErrInvalidCredentials = errors.New("invalid credentials")

// Authenticate verifies a username/password pair and returns the account.
func (s *Service) Authenticate(ctx context.Context, username, password string) (*User, error) {
	user, err := s.store.Repo().GetByUsername(ctx, username)
	if err != nil {
		if errors.Is(err, ErrUserNotFound) {
			// Burn a comparison anyway so response timing does not leak
			// whether the username exists.
			_ = bcrypt.CompareHashAndPassword([]byte("$2a$12$000000000000000000000uGztGYdtac3ujO3gYUBGYACFCQleyYZ2"), []byte(password))
			return nil, ErrInvalidCredentials
		}
		return nil, fmt.Errorf("look up user: %w", err)
	}
	if !user.IsActive {
		return nil, ErrInvalidCredentials
	}
	if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(password)); err != nil {
		return nil, ErrInvalidCredentials
	}
	return user, nil
}

// BootstrapAdmin ensures an admin account exists on first boot. It is a no-op
// when the username is already taken.
func (s *Service) BootstrapAdmin(ctx context.Context, username, email, password string) error {
	existing, err := s.store.Repo().GetByUsername(ctx, username)
	if err != nil && !errors.Is(err, ErrUserNotFound) {
		return fmt.Errorf("look up bootstrap admin: %w", err)
	}
	if existing != nil {
		s.logger.Debug().Str("username", username).Msg("bootstrap admin already exists")
		return nil
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(password), BcryptCost)
	if err != nil {
		return fmt.Errorf("hash bootstrap password: %w", err)
	}

	now := time.Now().UTC()
	user := User{
		ID:           uuid.New().String(),
		Username:     username,
		Email:        email,
		PasswordHash: string(hash),
		Role:         RoleAdmin,
		IsActive:     true,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	if err := s.store.Repo().Create(ctx, user); err != nil {
		return fmt.Errorf("create bootstrap admin: %w", err)
	}

	s.logger.Info().Str("username", username).Msg("bootstrap admin created")
	return nil
}
