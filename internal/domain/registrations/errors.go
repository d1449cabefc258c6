package registrations

import (
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrNotOpen means the event is not accepting registrations (draft,
	// cancelled, or completed).
	ErrNotOpen = errors.New("event is not open for registration")

	// ErrCapacityExceeded means the event has no free slot. Not retryable by
	// the same request.
	ErrCapacityExceeded = errors.New("event is at capacity")

	// ErrAlreadyRegistered means the caller already holds an active
	// registration for the event.
	ErrAlreadyRegistered = errors.New("already registered for this event")

	ErrRegistrationNotFound = errors.New("registration not found")

	// ErrNotPermitted means the acting user is neither the registrant nor the
	// event organizer.
	ErrNotPermitted = errors.New("not permitted to modify this registration")
)

// IncompleteProfileError names the profile fields the caller must fill in
// before registering. Surfaced as an actionable message, never a generic 500.
type IncompleteProfileError struct {
	MissingFields []string
}

func (e IncompleteProfileError) Error() string {
	return fmt.Sprintf("profile incomplete: missing %s", strings.Join(e.MissingFields, ", "))
}

// InvalidTransitionError reports an illegal registration status change.
type InvalidTransitionError struct {
	From Status
	To   Status
}

func (e InvalidTransitionError) Error() string {
	return fmt.Sprintf("cannot change registration status from %s to %s", e.From, e.To)
}
