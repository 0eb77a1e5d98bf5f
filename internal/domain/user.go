package domain

import "time"

// User statuses. BANNED users can never authenticate by any path.
const (
	UserStatusActive  = "ACTIVE"
	UserStatusPending = "PENDING"
	UserStatusBanned  = "BANNED"
)

// User is the identity record. PasswordHash is a random placeholder for
// accounts created through social login; the placeholder is never
// disclosed, so those accounts cannot log in with a password.
type User struct {
	ID            int64
	Email         string
	EmailVerified bool
	PasswordHash  string
	Name          string
	Birthdate     string
	Phone         string
	PhoneVerified bool
	Status        string
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

// SafeUser is a User with the password hash stripped. Every value that
// crosses the service boundary uses this shape.
type SafeUser struct {
	ID            int64     `json:"id"`
	Email         string    `json:"email"`
	EmailVerified bool      `json:"emailVerified"`
	Name          string    `json:"name,omitempty"`
	Birthdate     string    `json:"birthdate,omitempty"`
	Phone         string    `json:"phone,omitempty"`
	PhoneVerified bool      `json:"phoneVerified"`
	Status        string    `json:"status"`
	CreatedAt     time.Time `json:"createdAt"`
}

// Safe strips the password hash.
func (u User) Safe() SafeUser {
	return SafeUser{
		ID:            u.ID,
		Email:         u.Email,
		EmailVerified: u.EmailVerified,
		Name:          u.Name,
		Birthdate:     u.Birthdate,
		Phone:         u.Phone,
		PhoneVerified: u.PhoneVerified,
		Status:        u.Status,
		CreatedAt:     u.CreatedAt,
	}
}
