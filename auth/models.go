package auth

import "time"

type Role string

const (
	RoleAdmin       Role = "admin"
	RoleUser        Role = "user"
	RoleSalesperson Role = "salesperson"
)

// User is the domain representation of an authenticated user.
// It mirrors the users table and should not include JSON annotations so it
// can be reused by different presentation layers.
type User struct {
	ID           string
	Username     string
	Email        string
	Mobile       string
	Role         Role
	PasswordHash string
	// RefreshToken is the single live refresh token; empty after logout.
	RefreshToken string
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// RegisterRequest contains user registration data supplied by callers.
type RegisterRequest struct {
	Username string `json:"username"`
	Email    string `json:"email"`
	Mobile   string `json:"mobile"`
	Password string `json:"password"`
	Role     Role   `json:"role"`
}

// LoginRequest contains user login credentials.
type LoginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

// Principal is what a verified access token says about its bearer.
type Principal struct {
	UserID   string
	Username string
	Role     Role
}
