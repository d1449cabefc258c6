package events

import (
	"errors"
	"fmt"
)

var (
	ErrEventNotFound = errors.New("event not found")

	// ErrCodeTaken is returned by the repository when an insert loses the
	// residual race between the issuer's probe and the owning insert. The
	// service retries issuance from scratch; the colliding candidate is
	// never reused.
	ErrCodeTaken = errors.New("event code already assigned")
)

// InvalidLifecycleError reports an illegal event status change.
type InvalidLifecycleError struct {
	From Status
	To   Status
}

func (e InvalidLifecycleError) Error() string {
	return fmt.Sprintf("cannot change event status from %s to %s", e.From, e.To)
}
