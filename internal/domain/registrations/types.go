package registrations

import "time"

// Status is the state of a registration row.
type Status string

const (
	StatusRegistered Status = "registered"
	StatusAttended   Status = "attended"
	StatusCancelled  Status = "cancelled"
)

// IsValid reports whether s is a known registration status.
func (s Status) IsValid() bool {
	switch s {
	case StatusRegistered, StatusAttended, StatusCancelled:
		return true
	}
	return false
}

// IsActive reports whether a registration in this status counts against
// event capacity.
func (s Status) IsActive() bool {
	return s == StatusRegistered || s == StatusAttended
}

// transitions enumerates the legal organizer-driven status changes.
// Reactivation (cancelled -> registered) is not listed: it is only reachable
// through Admit, which re-runs the capacity check.
var transitions = map[Status][]Status{
	StatusRegistered: {StatusAttended, StatusCancelled},
	StatusAttended:   {StatusCancelled},
}

// CanTransition reports whether an organizer may move a registration from one
// status to another via SetStatus.
func CanTransition(from, to Status) bool {
	for _, next := range transitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

// Registration is one (event, user) pair. The pair is unique among all rows:
// re-registration after cancellation mutates this row in place rather than
// inserting a new one, so the ID is stable across reactivations.
type Registration struct {
	ID      string
	EventID string
	UserID  string
	Status  Status
	// Answers holds the registrant's responses to the event's custom form.
	Answers map[string]any
	// RegisteredAt is overwritten on each (re)admission.
	RegisteredAt time.Time
	CreatedAt    time.Time
	UpdatedAt    time.Time
}
