package auth

import "time"

// Roles recognised by the access-control checks. Admins may manage users and
// chats and read or send in any chat without an explicit membership.
const (
	RoleAdmin = "admin"
	RoleUser  = "user"
)

// User is a stored account. PasswordHash is a bcrypt hash and never leaves the
// process.
type User struct {
	ID           string    `json:"id"`
	Username     string    `json:"username"`
	Email        string    `json:"email"`
	Role         string    `json:"role"`
	PasswordHash string    `json:"-"`
	Active       bool      `json:"active"`
	CreatedAt    time.Time `json:"created_at"`
}

// Principal is the authenticated identity attached to a request or connection.
// It is immutable for the lifetime of the connection it was resolved for.
type Principal struct {
	UserID   string `json:"user_id"`
	Username string `json:"username"`
	Role     string `json:"role"`
}

// IsAdmin reports whether the principal holds the admin role.
func (p Principal) IsAdmin() bool { return p.Role == RoleAdmin }
