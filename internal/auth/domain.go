package auth

import (
	"errors"
	"time"
)

// User represents an authenticated user account.
type User struct {
	ID           string
	Email        string
	DisplayName  string
	PasswordHash string
	IsActive     bool
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// LoginResult is returned after a successful login.
type LoginResult struct {
	Token     string    `json:"token"`
	UserID    string    `json:"user_id"`
	ExpiresAt time.Time `json:"expires_at"`
}

// ErrUserExists indicates the email or id is already registered.
var ErrUserExists = errors.New("auth: user already exists")

// NewAccount describes an account created by an operator.
type NewAccount struct {
	ID          string `validate:"required,max=64"`
	Email       string `validate:"required,email"`
	DisplayName string `validate:"max=128"`
	Password    string `validate:"required,min=8"`
}
