package registrations

import (
	"context"
	"fmt"
	"time"

	"github.com/gatherhall/server/internal/domain/events"
	"github.com/gatherhall/server/internal/domain/ids"
	"github.com/rs/zerolog"
)

// Service is the admission controller. Every decision that touches shared
// state runs inside one store transaction; the only application-level
// concurrency control is the row lock the repository takes on the event.
type Service struct {
	store    Store
	profiles ProfileSource
	notifier Notifier
	logger   zerolog.Logger
}

func NewService(store Store, profiles ProfileSource, notifier Notifier, logger zerolog.Logger) *Service {
	if notifier == nil {
		notifier = NopNotifier{}
	}
	return &Service{
		store:    store,
		profiles: profiles,
		notifier: notifier,
		logger:   logger.With().Str("component", "registrations").Logger(),
	}
}

// Admit registers userID for eventID, or reactivates their cancelled row.
//
// Preconditions run in order inside one transaction: the event must be
// published, the caller's profile must be complete, the active-registration
// count must be below capacity, and the caller must not already hold an
// active row. Locking the event row up front serializes concurrent
// admissions, so when one slot remains exactly one of two racing calls
// succeeds; the (event_id, user_id) unique index backs the duplicate check
// independently.
func (s *Service) Admit(ctx context.Context, eventID, userID string, answers map[string]any) (*Registration, error) {
	var admitted Registration

	err := s.store.WithTx(ctx, func(ctx context.Context, repo Repository) error {
		event, err := repo.LockEvent(ctx, eventID)
		if err != nil {
			return err
		}
		if event.Status != events.StatusPublished {
			return ErrNotOpen
		}

		missing, err := s.profiles.MissingProfileFields(ctx, userID)
		if err != nil {
			return fmt.Errorf("check profile completeness: %w", err)
		}
		if len(missing) > 0 {
			return IncompleteProfileError{MissingFields: missing}
		}

		if event.Capacity != nil {
			active, err := repo.CountActive(ctx, eventID)
			if err != nil {
				return fmt.Errorf("count active registrations: %w", err)
			}
			if active >= int64(*event.Capacity) {
				return ErrCapacityExceeded
			}
		}

		existing, err := repo.GetByEventAndUser(ctx, eventID, userID)
		if err != nil {
			return fmt.Errorf("look up existing registration: %w", err)
		}

		now := time.Now().UTC()
		switch {
		case existing == nil:
			id, err := ids.NewULID()
			if err != nil {
				return fmt.Errorf("generate registration id: %w", err)
			}
			admitted = Registration{
				ID:           id,
				EventID:      eventID,
				UserID:       userID,
				Status:       StatusRegistered,
				Answers:      answers,
				RegisteredAt: now,
				CreatedAt:    now,
				UpdatedAt:    now,
			}
			return repo.Insert(ctx, admitted)

		case existing.Status == StatusCancelled:
			admitted = *existing
			admitted.Status = StatusRegistered
			admitted.Answers = answers
			admitted.RegisteredAt = now
			admitted.UpdatedAt = now
			return repo.Reactivate(ctx, admitted)

		default:
			return ErrAlreadyRegistered
		}
	})
	if err != nil {
		return nil, err
	}

	// Side effects run strictly after commit and never fail the admission.
	s.notifier.RegistrationConfirmed(ctx, admitted)
	s.logger.Info().
		Str("event_id", eventID).
		Str("user_id", userID).
		Str("registration_id", admitted.ID).
		Msg("registration admitted")
	return &admitted, nil
}

// SetStatus applies an organizer-driven status change. Allowed transitions:
// registered->attended, registered->cancelled, attended->cancelled. Repeating
// a cancellation is a no-op success. Capacity is not re-checked: cancelling
// frees a slot and marking attended does not change the active count.
func (s *Service) SetStatus(ctx context.Context, registrationID string, to Status, actingUserID string) (*Registration, error) {
	if !to.IsValid() {
		return nil, InvalidTransitionError{To: to}
	}

	var (
		updated  Registration
		wasNoop  bool
		notifyAt bool
	)

	err := s.store.WithTx(ctx, func(ctx context.Context, repo Repository) error {
		reg, err := repo.GetByID(ctx, registrationID)
		if err != nil {
			return err
		}

		event, err := repo.LockEvent(ctx, reg.EventID)
		if err != nil {
			return err
		}
		if event.OrganizerID != actingUserID {
			return ErrNotPermitted
		}

		if reg.Status == to {
			updated = *reg
			wasNoop = true
			return nil
		}
		if !CanTransition(reg.Status, to) {
			return InvalidTransitionError{From: reg.Status, To: to}
		}

		if err := repo.UpdateStatus(ctx, registrationID, to); err != nil {
			return fmt.Errorf("update registration status: %w", err)
		}
		updated = *reg
		updated.Status = to
		updated.UpdatedAt = time.Now().UTC()
		notifyAt = to == StatusCancelled
		return nil
	})
	if err != nil {
		return nil, err
	}

	if notifyAt {
		s.notifier.RegistrationCancelled(ctx, updated)
	}
	if !wasNoop {
		s.logger.Info().
			Str("registration_id", registrationID).
			Str("status", string(to)).
			Msg("registration status changed")
	}
	return &updated, nil
}

// Cancel sets the registration to cancelled. The registrant may cancel their
// own row; the event organizer may cancel any row for their event. Cancelling
// an already-cancelled row is a no-op success.
func (s *Service) Cancel(ctx context.Context, registrationID, actingUserID string) error {
	var (
		cancelled Registration
		wasNoop   bool
	)

	err := s.store.WithTx(ctx, func(ctx context.Context, repo Repository) error {
		reg, err := repo.GetByID(ctx, registrationID)
		if err != nil {
			return err
		}
		if reg.Status == StatusCancelled {
			wasNoop = true
			return nil
		}

		event, err := repo.LockEvent(ctx, reg.EventID)
		if err != nil {
			return err
		}
		if actingUserID != reg.UserID && actingUserID != event.OrganizerID {
			return ErrNotPermitted
		}

		if err := repo.UpdateStatus(ctx, registrationID, StatusCancelled); err != nil {
			return fmt.Errorf("cancel registration: %w", err)
		}
		cancelled = *reg
		cancelled.Status = StatusCancelled
		return nil
	})
	if err != nil {
		return err
	}

	if !wasNoop {
		s.notifier.RegistrationCancelled(ctx, cancelled)
		s.logger.Info().
			Str("registration_id", registrationID).
			Str("acting_user_id", actingUserID).
			Msg("registration cancelled")
	}
	return nil
}

// Get returns a single registration.
func (s *Service) Get(ctx context.Context, registrationID string) (*Registration, error) {
	return s.store.Repo().GetByID(ctx, registrationID)
}

// ListByEvent returns all registrations for an event, organizer-only.
func (s *Service) ListByEvent(ctx context.Context, eventID, actingUserID string) ([]Registration, error) {
	repo := s.store.Repo()
	event, err := repo.LockEvent(ctx, eventID)
	if err != nil {
		return nil, err
	}
	if event.OrganizerID != actingUserID {
		return nil, ErrNotPermitted
	}
	return repo.ListByEvent(ctx, eventID)
}

// ListByUser returns the caller's own registrations.
func (s *Service) ListByUser(ctx context.Context, userID string) ([]Registration, error) {
	return s.store.Repo().ListByUser(ctx, userID)
}
