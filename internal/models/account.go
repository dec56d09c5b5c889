package models

import "time"

// Roles a user account can hold.
const (
	RoleUser   = "user"
	RoleClinic = "clinic"
)

// User is an account row. PasswordHash never leaves the server.
type User struct {
	ID           string     `json:"id"`
	Email        string     `json:"email"`
	PasswordHash string     `json:"-"`
	Role         string     `json:"role"`
	FirstName    string     `json:"first_name"`
	LastName     string     `json:"last_name"`
	Gender       *string    `json:"gender"`
	Address      *string    `json:"address"`
	Phone        *string    `json:"phone"`
	Birth        *time.Time `json:"birth"`
	Conditions   []string   `json:"conditions"`
	Pregnant     bool       `json:"pregnant"`
	CreatedAt    time.Time  `json:"created_at"`
}
