package model

import "time"

// Role is the closed set of roles a user can hold.  Role checks are exact
// membership tests; there is no hierarchy between roles.
type Role string

const (
	RoleAdmin  Role = "admin"  // full access
	RoleWorker Role = "worker" // regular account
)

// Valid reports whether r is one of the known roles.
func (r Role) Valid() bool {
	return r == RoleAdmin || r == RoleWorker
}

// User mirrors a row of the `users` table.
//
// Fields:
//  ID           – opaque stable identifier (e.g. "admin-1").
//  Email        – unique, lower-cased login identifier.
//  PasswordHash – bcrypt digest; the plain password is never stored.
//  Role         – admin or worker.
//  CreatedAt    – set once when the row is inserted.
type User struct {
	ID           string    // users.id
	Email        string    // users.email
	PasswordHash string    // users.password_hash
	Role         Role      // users.role
	CreatedAt    time.Time // users.created_at
}

// Identity returns the public projection of the user that is embedded in
// access tokens and returned to clients.
func (u User) Identity() Identity {
	return Identity{ID: u.ID, Email: u.Email, Role: u.Role}
}

// Identity is the caller-safe view of a user: what a verified access token
// proves about its bearer.
type Identity struct {
	ID    string `json:"id"`
	Email string `json:"email"`
	Role  Role   `json:"role"`
}

// HasRole reports whether the identity's role is one of roles.
func (i Identity) HasRole(roles ...Role) bool {
	for _, r := range roles {
		if i.Role == r {
			return true
		}
	}
	return false
}
