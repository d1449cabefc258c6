package jobs

import (
	"context"
	"errors"
	"fmt"

	"github.com/gatherhall/server/internal/domain/events"
	"github.com/gatherhall/server/internal/domain/users"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/riverqueue/river"
)

// EmailSender sends the rendered notification emails.
type EmailSender interface {
	SendRegistrationConfirmed(ctx context.Context, to, eventName, eventCode string) error
	SendRegistrationCancelled(ctx context.Context, to, eventName, eventCode string) error
	SendRoleChanged(ctx context.Context, to, newRole string) error
}

// UserDirectory resolves a user at work time, not enqueue time, so a retry
// sends to the address current when the job finally runs.
type UserDirectory interface {
	GetByID(ctx context.Context, id string) (*users.User, error)
}

// EventDirectory resolves an event at work time.
type EventDirectory interface {
	GetByID(ctx context.Context, id string) (*events.Event, error)
}

type RegistrationConfirmedArgs struct {
	RegistrationID string `json:"registration_id"`
	EventID        string `json:"event_id"`
	UserID         string `json:"user_id"`
}

func (RegistrationConfirmedArgs) Kind() string { return JobKindRegistrationConfirmedEmail }

type RegistrationCancelledArgs struct {
	RegistrationID string `json:"registration_id"`
	EventID        string `json:"event_id"`
	UserID         string `json:"user_id"`
}

func (RegistrationCancelledArgs) Kind() string { return JobKindRegistrationCancelledEmail }

type RoleChangedArgs struct {
	UserID  string `json:"user_id"`
	NewRole string `json:"new_role"`
}

func (RoleChangedArgs) Kind() string { return JobKindRoleChangedEmail }

// RegistrationConfirmedWorker emails a registrant after their admission commits.
type RegistrationConfirmedWorker struct {
	river.WorkerDefaults[RegistrationConfirmedArgs]
	Users  UserDirectory
	Events EventDirectory
	Email  EmailSender
}

func (RegistrationConfirmedWorker) Kind() string { return JobKindRegistrationConfirmedEmail }

func (w RegistrationConfirmedWorker) Work(ctx context.Context, job *river.Job[RegistrationConfirmedArgs]) error {
	if job == nil {
		return fmt.Errorf("registration confirmed job missing")
	}
	user, event, err := resolveRecipient(ctx, w.Users, w.Events, job.Args.UserID, job.Args.EventID)
	if err != nil {
		return err
	}
	return w.Email.SendRegistrationConfirmed(ctx, user.Email, event.Name, event.Code)
}

// RegistrationCancelledWorker emails a registrant after a cancellation commits.
type RegistrationCancelledWorker struct {
	river.WorkerDefaults[RegistrationCancelledArgs]
	Users  UserDirectory
	Events EventDirectory
	Email  EmailSender
}

func (RegistrationCancelledWorker) Kind() string { return JobKindRegistrationCancelledEmail }

func (w RegistrationCancelledWorker) Work(ctx context.Context, job *river.Job[RegistrationCancelledArgs]) error {
	if job == nil {
		return fmt.Errorf("registration cancelled job missing")
	}
	user, event, err := resolveRecipient(ctx, w.Users, w.Events, job.Args.UserID, job.Args.EventID)
	if err != nil {
		return err
	}
	return w.Email.SendRegistrationCancelled(ctx, user.Email, event.Name, event.Code)
}

// RoleChangedWorker emails a user after an admin changes their role.
type RoleChangedWorker struct {
	river.WorkerDefaults[RoleChangedArgs]
	Users UserDirectory
	Email EmailSender
}

func (RoleChangedWorker) Kind() string { return JobKindRoleChangedEmail }

func (w RoleChangedWorker) Work(ctx context.Context, job *river.Job[RoleChangedArgs]) error {
	if job == nil {
		return fmt.Errorf("role changed job missing")
	}
	if w.Users == nil || w.Email == nil {
		return fmt.Errorf("role changed worker not configured")
	}
	user, err := w.Users.GetByID(ctx, job.Args.UserID)
	if err != nil {
		if errors.Is(err, users.ErrUserNotFound) {
			// Account removed before the job ran; nothing to send.
			return river.JobCancel(err)
		}
		return fmt.Errorf("resolve user %s: %w", job.Args.UserID, err)
	}
	return w.Email.SendRoleChanged(ctx, user.Email, job.Args.NewRole)
}

func resolveRecipient(ctx context.Context, dir UserDirectory, events EventDirectory, userID, eventID string) (*users.User, *eventRef, error) {
	if dir == nil || events == nil {
		return nil, nil, fmt.Errorf("notification worker not configured")
	}
	user, err := dir.GetByID(ctx, userID)
	if err != nil {
		if errors.Is(err, users.ErrUserNotFound) {
			return nil, nil, river.JobCancel(err)
		}
		return nil, nil, fmt.Errorf("resolve user %s: %w", userID, err)
	}
	event, err := events.GetByID(ctx, eventID)
	if err != nil {
		return nil, nil, fmt.Errorf("resolve event %s: %w", eventID, err)
	}
	return user, &eventRef{Name: event.Name, Code: event.Code}, nil
}

type eventRef struct {
	Name string
	Code string
}

// EventCompletionSweepArgs defines the periodic sweep that closes out events
// whose end time has passed.
type EventCompletionSweepArgs struct{}

func (EventCompletionSweepArgs) Kind() string { return JobKindEventCompletionSweep }

type EventCompletionSweepWorker struct {
	river.WorkerDefaults[EventCompletionSweepArgs]
	Pool *pgxpool.Pool
}

func (EventCompletionSweepWorker) Kind() string { return JobKindEventCompletionSweep }

func (w EventCompletionSweepWorker) Work(ctx context.Context, job *river.Job[EventCompletionSweepArgs]) error {
	if w.Pool == nil {
		return fmt.Errorf("database pool not configured")
	}

	const sweepQuery = `
UPDATE events SET status = 'completed', updated_at = now()
 WHERE status = 'published' AND ends_at IS NOT NULL AND ends_at <= now()`
	if _, err := w.Pool.Exec(ctx, sweepQuery); err != nil {
		return fmt.Errorf("sweep completed events: %w", err)
	}
	return nil
}

// DeletedUserPurgeArgs defines the periodic purge of soft-deleted accounts
// past the retention window.
type DeletedUserPurgeArgs struct{}

func (DeletedUserPurgeArgs) Kind() string { return JobKindDeletedUserPurge }

// deletedUserRetention is how long a soft-deleted account is kept before the
// row is removed for good.
const deletedUserRetention = "90 days"

type DeletedUserPurgeWorker struct {
	river.WorkerDefaults[DeletedUserPurgeArgs]
	Pool *pgxpool.Pool
}

func (DeletedUserPurgeWorker) Kind() string { return JobKindDeletedUserPurge }

func (w DeletedUserPurgeWorker) Work(ctx context.Context, job *river.Job[DeletedUserPurgeArgs]) error {
	if w.Pool == nil {
		return fmt.Errorf("database pool not configured")
	}

	const purgeQuery = `DELETE FROM users WHERE deleted_at IS NOT NULL AND deleted_at <= now() - $1::interval`
	if _, err := w.Pool.Exec(ctx, purgeQuery, deletedUserRetention); err != nil {
		return fmt.Errorf("purge deleted users: %w", err)
	}
	return nil
}

// NewWorkers registers the notification workers.
func NewWorkers(userDir UserDirectory, eventDir EventDirectory, email EmailSender) *river.Workers {
	workers := river.NewWorkers()
	river.AddWorker[RegistrationConfirmedArgs](workers, RegistrationConfirmedWorker{Users: userDir, Events: eventDir, Email: email})
	river.AddWorker[RegistrationCancelledArgs](workers, RegistrationCancelledWorker{Users: userDir, Events: eventDir, Email: email})
	river.AddWorker[RoleChangedArgs](workers, RoleChangedWorker{Users: userDir, Email: email})
	return workers
}

// NewWorkersWithPool adds the periodic maintenance jobs that need DB access.
func NewWorkersWithPool(pool *pgxpool.Pool, userDir UserDirectory, eventDir EventDirectory, email EmailSender) *river.Workers {
	workers := NewWorkers(userDir, eventDir, email)
	river.AddWorker[EventCompletionSweepArgs](workers, EventCompletionSweepWorker{Pool: pool})
	river.AddWorker[DeletedUserPurgeArgs](workers, DeletedUserPurgeWorker{Pool: pool})
	return workers
}
