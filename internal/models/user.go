package models

import "time"

// Roles a user account can hold.
const (
	RoleAdmin  = "admin"
	RoleMember = "member"
)

// User represents a user account in the system.
type User struct {
	ID           int64     `json:"id"`
	Username     string    `json:"username"`
	Email        string    `json:"email"`
	FirstName    string    `json:"firstName"`
	LastName     string    `json:"lastName"`
	PasswordHash string    `json:"-"` // Never expose this to the client
	Role         string    `json:"role"`
	CreatedAt    time.Time `json:"createdAt"`
}

// IsAdmin reports whether the account carries the admin role. A nil user is anonymous.
func (u *User) IsAdmin() bool {
	return u != nil && u.Role == RoleAdmin
}
