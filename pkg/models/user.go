package models

import "time"

// Role is the access level of a back-office user.
type Role string

const (
	RoleAdmin Role = "admin"
	RoleTeam  Role = "team"
)

// UserStatus marks a team member as enabled or soft-disabled.
type UserStatus string

const (
	UserActive   UserStatus = "active"
	UserInactive UserStatus = "inactive"
)

// User is a team member. Users own leads through leads.assigned_to.
type User struct {
	ID            int        `json:"id"`
	Name          string     `json:"name"`
	Email         string     `json:"email"`
	Phone         string     `json:"phone,omitempty"`
	Role          Role       `json:"role"`
	Status        UserStatus `json:"status"`
	Level         int        `json:"level"`
	ReferralToken string     `json:"referral_token"`
	PasswordHash  string     `json:"-"`
	LeadCount     int        `json:"lead_count"`
	CreatedAt     time.Time  `json:"created_at"`
	UpdatedAt     time.Time  `json:"updated_at"`
}

// IsAdmin reports whether the user holds the admin role.
func (u *User) IsAdmin() bool {
	return u.Role == RoleAdmin
}

// IsActive reports whether the user may log in and receive leads.
func (u *User) IsActive() bool {
	return u.Status == UserActive
}

// LoginRequest represents a login request
type LoginRequest struct {
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required"`
}

// AuthResponse represents an authentication response
type AuthResponse struct {
	Token     string    `json:"token"`
	ExpiresAt time.Time `json:"expires_at"`
	User      *User     `json:"user"`
}

// ErrorResponse represents an error response
type ErrorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message,omitempty"`
}

// SuccessResponse represents a success response
type SuccessResponse struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
}
