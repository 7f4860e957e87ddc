package auth

import (
	"context"
	"fmt"
	"strings"

	"github.com/go-playground/validator/v10"
	"golang.org/x/crypto/bcrypt"

	"github.com/campusflow/campusflow/internal/shared"
)

// SessionIssuer creates and revokes bearer sessions.
type SessionIssuer interface {
	Issue(ctx context.Context, userID string) (string, shared.Session, error)
	Revoke(ctx context.Context, token string) error
}

// Service wraps authentication business rules.
type Service struct {
	repo     Repository
	sessions SessionIssuer
}

// NewService constructs a new Service.
func NewService(repo Repository, sessions SessionIssuer) *Service {
	return &Service{repo: repo, sessions: sessions}
}

// Authenticate validates email/password credentials.
func (s *Service) Authenticate(ctx context.Context, email, password string) (*User, error) {
	user, err := s.repo.FindByEmail(ctx, strings.TrimSpace(email))
	if err != nil {
		return nil, shared.ErrInvalidCredentials
	}
	if !user.IsActive {
		return nil, shared.ErrInvalidCredentials
	}
	if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(password)); err != nil {
		return nil, shared.ErrInvalidCredentials
	}
	return user, nil
}

// Login authenticates and issues a bearer token.
func (s *Service) Login(ctx context.Context, email, password string) (LoginResult, error) {
	user, err := s.Authenticate(ctx, email, password)
	if err != nil {
		return LoginResult{}, err
	}
	token, sess, err := s.sessions.Issue(ctx, user.ID)
	if err != nil {
		return LoginResult{}, fmt.Errorf("auth: issue session: %w", err)
	}
	return LoginResult{Token: token, UserID: user.ID, ExpiresAt: sess.ExpiresAt}, nil
}

// Logout revokes the bearer token.
func (s *Service) Logout(ctx context.Context, token string) error {
	return s.sessions.Revoke(ctx, token)
}

// HashPassword returns the bcrypt hash stored for a password.
func HashPassword(password string) (string, error) {
	hashed, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return "", err
	}
	return string(hashed), nil
}

// CreateAccount validates, hashes and stores a new active account.
func CreateAccount(ctx context.Context, store UserStore, in NewAccount) (User, error) {
	in.ID = strings.TrimSpace(in.ID)
	in.Email = strings.TrimSpace(in.Email)
	if err := validator.New().Struct(in); err != nil {
		return User{}, fmt.Errorf("auth: invalid account: %w", err)
	}
	hash, err := HashPassword(in.Password)
	if err != nil {
		return User{}, err
	}
	user := User{ID: in.ID, Email: in.Email, DisplayName: in.DisplayName, PasswordHash: hash, IsActive: true}
	if err := store.CreateUser(ctx, user); err != nil {
		return User{}, err
	}
	return user, nil
}
