package events

import "time"

// Status is the lifecycle state of an event.
type Status string

const (
	StatusDraft     Status = "draft"
	StatusPublished Status = "published"
	StatusCancelled Status = "cancelled"
	StatusCompleted Status = "completed"
)

// IsValid reports whether s is a known lifecycle state.
func (s Status) IsValid() bool {
	switch s {
	case StatusDraft, StatusPublished, StatusCancelled, StatusCompleted:
		return true
	}
	return false
}

// Event is a scheduled gathering owned by an organizer. Code is the short
// human-shareable identifier minted by the ids issuer; ID is the internal ULID.
type Event struct {
	ID          string
	Code        string
	Name        string
	Description string
	Status      Status
	// Capacity bounds the number of active registrations. Nil means unbounded.
	Capacity    *int32
	OrganizerID string
	StartsAt    time.Time
	EndsAt      time.Time
	Location    string
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// CreateParams carries the organizer-supplied fields for a new event.
type CreateParams struct {
	Name        string `validate:"required,max=200"`
	Description string `validate:"max=5000"`
	Capacity    *int32 `validate:"omitempty,gt=0"`
	OrganizerID string `validate:"required"`
	StartsAt    time.Time
	EndsAt      time.Time
	Location    string `validate:"max=500"`
}
