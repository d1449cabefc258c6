package jobs

import (
	"context"

	"github.com/gatherhall/server/internal/domain/registrations"
	"github.com/gatherhall/server/internal/domain/users"
	"github.com/jackc/pgx/v5"
	"github.com/riverqueue/river"
	"github.com/rs/zerolog"
)

var (
	_ registrations.Notifier = (*Notifier)(nil)
	_ users.Notifier         = (*Notifier)(nil)
)

// Notifier turns domain notifications into queued jobs. Services call it
// after their transaction commits; a failed enqueue is logged and dropped,
// never surfaced, because the admission or role change already happened.
type Notifier struct {
	client *river.Client[pgx.Tx]
	logger zerolog.Logger
}

func NewNotifier(client *river.Client[pgx.Tx], logger zerolog.Logger) *Notifier {
	return &Notifier{
		client: client,
		logger: logger.With().Str("component", "notifier").Logger(),
	}
}

func (n *Notifier) RegistrationConfirmed(ctx context.Context, reg registrations.Registration) {
	n.enqueue(ctx, RegistrationConfirmedArgs{
		RegistrationID: reg.ID,
		EventID:        reg.EventID,
		UserID:         reg.UserID,
	})
}

func (n *Notifier) RegistrationCancelled(ctx context.Context, reg registrations.Registration) {
	n.enqueue(ctx, RegistrationCancelledArgs{
		RegistrationID: reg.ID,
		EventID:        reg.EventID,
		UserID:         reg.UserID,
	})
}

func (n *Notifier) RoleChanged(ctx context.Context, user users.User, from, to users.Role) {
	n.enqueue(ctx, RoleChangedArgs{
		UserID:  user.ID,
		NewRole: string(to),
	})
}

// AccountDeleted has no email: the address belongs to a removed account.
func (n *Notifier) AccountDeleted(ctx context.Context, user users.User) {
	n.logger.Debug().Str("user_id", user.ID).Msg("account deleted, no notification queued")
}

func (n *Notifier) enqueue(ctx context.Context, args river.JobArgs) {
	opts := InsertOptsForKind(args.Kind())
	if _, err := n.client.Insert(ctx, args, &opts); err != nil {
		n.logger.Error().
			Err(err).
			Str("kind", args.Kind()).
			Msg("failed to enqueue notification job")
	}
}
