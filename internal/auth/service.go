package auth

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/gosuda/taskgate/internal/domain"
)

// Sentinel errors for the auth package. They wrap the domain sentinels so
// command replies get the matching codes.
var (
	ErrInvalidCredentials = fmt.Errorf("auth: invalid credentials: %w", domain.ErrUnauthorized)
	ErrUserAlreadyExists  = fmt.Errorf("auth: user already exists: %w", domain.ErrConflict)
)

// Service owns user credentials. It backs the user service patterns
// (create_user, validate_user, get_user, findAllUsers); token issuance
// happens at the gateway.
type Service struct {
	userRepo domain.UserRepository
	now      func() time.Time
}

// NewService creates a new auth service.
func NewService(userRepo domain.UserRepository) *Service {
	return &Service{userRepo: userRepo, now: time.Now}
}

// Register creates a new user with email/password. Returns the created user.
// The password is hashed with argon2id before storage.
func (s *Service) Register(ctx context.Context, email, password, name string) (*domain.User, error) {
	email = strings.ToLower(strings.TrimSpace(email))

	existing, err := s.userRepo.GetByEmail(ctx, email)
	if err == nil && existing != nil {
		return nil, fmt.Errorf("auth.Register: %w", ErrUserAlreadyExists)
	}
	if err != nil && !errors.Is(err, domain.ErrNotFound) {
		return nil, fmt.Errorf("auth.Register: %w", err)
	}

	hash, err := HashPassword(password)
	if err != nil {
		return nil, fmt.Errorf("auth.Register: %w", err)
	}

	now := s.now()
	user := &domain.User{
		ID:           uuid.New(),
		Email:        email,
		PasswordHash: hash,
		Name:         name,
		CreatedAt:    now,
		UpdatedAt:    now,
	}

	if err := s.userRepo.Create(ctx, user); err != nil {
		return nil, fmt.Errorf("auth.Register: %w", err)
	}

	return user, nil
}

// Authenticate validates email/password and returns the user. Unknown
// email and wrong password are indistinguishable to the caller.
func (s *Service) Authenticate(ctx context.Context, email, password string) (*domain.User, error) {
	user, err := s.userRepo.GetByEmail(ctx, strings.ToLower(strings.TrimSpace(email)))
	if err != nil {
		return nil, fmt.Errorf("auth.Authenticate: %w", ErrInvalidCredentials)
	}

	if !VerifyPassword(password, user.PasswordHash) {
		return nil, fmt.Errorf("auth.Authenticate: %w", ErrInvalidCredentials)
	}

	return user, nil
}

// GetUser returns a user by ID.
func (s *Service) GetUser(ctx context.Context, userID uuid.UUID) (*domain.User, error) {
	user, err := s.userRepo.GetByID(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("auth.GetUser: %w", err)
	}

	return user, nil
}

// ListUsers returns every user.
func (s *Service) ListUsers(ctx context.Context) ([]*domain.User, error) {
	users, err := s.userRepo.List(ctx)
	if err != nil {
		return nil, fmt.Errorf("auth.ListUsers: %w", err)
	}
	return users, nil
}
