package events

import "context"

// Repository is the persistence surface for events.
type Repository interface {
	// Create inserts the event. Returns ErrCodeTaken when the code unique
	// constraint rejects the row.
	Create(ctx context.Context, event Event) error
	GetByID(ctx context.Context, id string) (*Event, error)
	GetByCode(ctx context.Context, code string) (*Event, error)
	CodeExists(ctx context.Context, code string) (bool, error)
	UpdateStatus(ctx context.Context, id string, status Status) error
	ListByOrganizer(ctx context.Context, organizerID string) ([]Event, error)
}
