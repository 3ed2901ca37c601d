// Package auth resolves bearer tokens to principals and manages accounts.
package auth

import (
	"context"
	"errors"
	"strings"
	"time"
)

// Service verifies credentials and tokens against the user store.
type Service struct {
	store  UserStore
	tokens *TokenManager
}

// NewService constructs the auth service.
func NewService(store UserStore, tokens *TokenManager) *Service {
	return &Service{store: store, tokens: tokens}
}

// Tokens exposes the token manager, mainly for tests and the admin CLI.
func (s *Service) Tokens() *TokenManager { return s.tokens }

// Login checks username/password credentials and issues an access token.
func (s *Service) Login(ctx context.Context, username, password string) (string, time.Time, error) {
	username = strings.TrimSpace(strings.ToLower(username))
	if username == "" || password == "" {
		return "", time.Time{}, ErrUnauthorized
	}
	user, err := s.store.FindUserByUsername(ctx, username)
	if err != nil {
		return "", time.Time{}, ErrUnauthorized
	}
	if !user.Active {
		return "", time.Time{}, ErrUnauthorized
	}
	if err := VerifyPassword(user.PasswordHash, password); err != nil {
		return "", time.Time{}, ErrUnauthorized
	}
	token, err := s.tokens.Generate(user)
	if err != nil {
		return "", time.Time{}, err
	}
	return token, time.Now().UTC().Add(s.tokens.TTL()), nil
}

// Authenticate resolves a bearer token to a principal. The role comes from the
// stored user, not the token, so role changes take effect on the next request.
func (s *Service) Authenticate(ctx context.Context, token string) (Principal, error) {
	claims, err := s.tokens.Verify(token)
	if err != nil {
		return Principal{}, ErrInvalidToken
	}
	user, err := s.store.FindUser(ctx, claims.Subject)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return Principal{}, ErrInvalidToken
		}
		return Principal{}, err
	}
	if !user.Active {
		return Principal{}, ErrInvalidToken
	}
	return Principal{UserID: user.ID, Username: user.Username, Role: user.Role}, nil
}

// CreateUser validates and stores a new account with a hashed password.
func (s *Service) CreateUser(ctx context.Context, username, email, password, role string) (*User, error) {
	username = strings.TrimSpace(strings.ToLower(username))
	if username == "" {
		return nil, ErrInvalidInput
	}
	switch role {
	case RoleAdmin, RoleUser:
	case "":
		role = RoleUser
	default:
		return nil, ErrInvalidInput
	}
	hash, err := HashPassword(password)
	if err != nil {
		return nil, ErrInvalidInput
	}
	user := &User{
		Username:     username,
		Email:        strings.TrimSpace(email),
		Role:         role,
		PasswordHash: hash,
		Active:       true,
	}
	if err := s.store.CreateUser(ctx, user); err != nil {
		return nil, err
	}
	return user, nil
}

// ListUsers returns all accounts. Callers enforce the admin-only policy.
func (s *Service) ListUsers(ctx context.Context) ([]*User, error) {
	return s.store.ListUsers(ctx)
}
