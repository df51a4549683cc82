// Package users authenticates operators with bcrypt passwords, signed access
// tokens and optional OIDC ID tokens.
package users

import (
	"time"

	"github.com/google/uuid"
)

const (
	RoleAdmin  = "admin"
	RoleViewer = "viewer"
)

// User is an operator account.
type User struct {
	ID           uuid.UUID `json:"id"`
	Username     string    `json:"username"`
	Email        string    `json:"email"`
	PasswordHash string    `json:"-"`
	Role         string    `json:"role"`
	IsActive     bool      `json:"is_active"`
	CreatedAt    time.Time `json:"created_at"`
}

// IsAdmin reports whether u holds the admin role.
func (u *User) IsAdmin() bool {
	return u.Role == RoleAdmin
}

// CreateCommand contains the fields for creating a user.
type CreateCommand struct {
	Username string
	Email    string
	Password string
	Role     string
}
