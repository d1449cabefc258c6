package users

import "time"

// Role is a user's single platform role.
type Role string

const (
	RoleParticipant Role = "participant"
	RoleOrganizer   Role = "organizer"
	RoleAdmin       Role = "admin"
)

// IsValid reports whether r is a known role.
func (r Role) IsValid() bool {
	switch r {
	case RoleParticipant, RoleOrganizer, RoleAdmin:
		return true
	}
	return false
}

// User is a platform account. Profile fields beyond the completeness
// predicate are plain CRUD and live outside this subsystem.
type User struct {
	ID           string
	Username     string
	Email        string
	PasswordHash string
	Role         Role
	FullName     string
	Phone        string
	IsActive     bool
	CreatedAt    time.Time
	UpdatedAt    time.Time
}
