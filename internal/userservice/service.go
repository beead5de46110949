// Package userservice serves the user patterns on top of auth.Service.
// validate_user is also the AUTH_SERVICE contract: the gateway checks
// credentials here and issues its own tokens.
package userservice

import (
	"context"
	"errors"
	"fmt"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"

	"github.com/gosuda/taskgate/internal/codec"
	"github.com/gosuda/taskgate/internal/command"
	"github.com/gosuda/taskgate/internal/domain"
)

// Accounts is the credential store. *auth.Service implements it.
type Accounts interface {
	Register(ctx context.Context, email, password, name string) (*domain.User, error)
	Authenticate(ctx context.Context, email, password string) (*domain.User, error)
	GetUser(ctx context.Context, userID uuid.UUID) (*domain.User, error)
	ListUsers(ctx context.Context) ([]*domain.User, error)
}

type Service struct {
	accounts Accounts
	validate *validator.Validate
}

func New(accounts Accounts) *Service {
	return &Service{accounts: accounts, validate: validator.New()}
}

// Router returns a command router serving every user pattern.
func (s *Service) Router() (*command.Router, error) {
	r := command.NewRouter("user")
	handlers := map[string]command.HandlerFunc{
		command.PatternValidateUser: s.validateUser,
		command.PatternGetUser:      s.getUser,
		command.PatternFindAllUsers: s.findAll,
		command.PatternCreateUser:   s.createUser,
	}
	for pattern, h := range handlers {
		if err := r.Handle(pattern, h); err != nil {
			return nil, fmt.Errorf("userservice.Router: %w", err)
		}
	}
	if err := r.Require(command.UserPatterns()...); err != nil {
		return nil, fmt.Errorf("userservice.Router: %w", err)
	}
	return r, nil
}

func (s *Service) decode(payload codec.RawMessage, v any) error {
	if err := command.Decode(payload, v); err != nil {
		return err
	}
	if err := s.validate.Struct(v); err != nil {
		return command.Errorf(command.CodeValidation, "%v", err)
	}
	return nil
}

// validateUser answers UNAUTHORIZED for unknown email and wrong password
// alike.
func (s *Service) validateUser(ctx context.Context, payload codec.RawMessage) (any, error) {
	var req command.ValidateUserRequest
	if err := command.Decode(payload, &req); err != nil {
		return nil, err
	}
	if req.Email == "" || req.Password == "" {
		return nil, command.Errorf(command.CodeUnauthorized, "invalid email or password")
	}

	user, err := s.accounts.Authenticate(ctx, req.Email, req.Password)
	if errors.Is(err, domain.ErrUnauthorized) {
		return nil, command.Errorf(command.CodeUnauthorized, "invalid email or password")
	}
	if err != nil {
		return nil, fmt.Errorf("userservice.validateUser: %w", err)
	}
	return user, nil
}

func (s *Service) getUser(ctx context.Context, payload codec.RawMessage) (any, error) {
	var req command.GetUserRequest
	if err := command.Decode(payload, &req); err != nil {
		return nil, err
	}
	id, err := uuid.Parse(req.UserID)
	if err != nil {
		return nil, command.Errorf(command.CodeNotFound, "user %s not found", req.UserID)
	}

	user, err := s.accounts.GetUser(ctx, id)
	if errors.Is(err, domain.ErrNotFound) {
		return nil, command.Errorf(command.CodeNotFound, "user %s not found", req.UserID)
	}
	if err != nil {
		return nil, fmt.Errorf("userservice.getUser: %w", err)
	}
	return user, nil
}

func (s *Service) findAll(ctx context.Context, _ codec.RawMessage) (any, error) {
	users, err := s.accounts.ListUsers(ctx)
	if err != nil {
		return nil, fmt.Errorf("userservice.findAll: %w", err)
	}
	if users == nil {
		users = []*domain.User{}
	}
	return users, nil
}

func (s *Service) createUser(ctx context.Context, payload codec.RawMessage) (any, error) {
	var req command.CreateUserRequest
	if err := s.decode(payload, &req); err != nil {
		return nil, err
	}

	user, err := s.accounts.Register(ctx, req.Email, req.Password, req.Name)
	if err != nil {
		// ErrUserAlreadyExists wraps domain.ErrConflict and replies CONFLICT.
		return nil, fmt.Errorf("userservice.createUser: %w", err)
	}
	return user, nil
}
