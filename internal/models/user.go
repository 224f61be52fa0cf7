package models

import "time"

// Roles a user can carry platform-wide.
const (
	RoleStudent = "student"
	RoleFaculty = "faculty"
	RoleAdmin   = "admin"
)

// User mirrors the identity resolved from a bearer token. The identity
// provider owns users; this table is a denormalized directory kept fresh on
// every authenticated request so display fields resolve locally.
type User struct {
	ID        int       `db:"id" json:"id"`
	Name      string    `db:"name" json:"name"`
	Email     string    `db:"email" json:"email"`
	Role      string    `db:"role" json:"role"`
	UpdatedAt time.Time `db:"updated_at" json:"-"`
}

// IsStaff reports whether the user holds a faculty or admin role.
func (u User) IsStaff() bool {
	return u.Role == RoleFaculty || u.Role == RoleAdmin
}
