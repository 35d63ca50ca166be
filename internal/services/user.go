package services

import (
	"context"
	"errors"
	"strings"

	"github.com/google/uuid"
	"github.com/tasknest/apiserver/internal/apperr"
	"github.com/tasknest/apiserver/internal/auth"
	"github.com/tasknest/apiserver/internal/store"
	"github.com/tasknest/apiserver/internal/validation"
	"github.com/tasknest/apiserver/types"
)

const (
	msgInvalidCredentials = "Invalid credentials"
	msgUserExists         = "User already exists"
	msgUserNotFound       = "Authenticated user not found"
	msgPasswordTooLong    = "Password cannot exceed 72 bytes"
)

// UserRepository defines persistence operations for users.
type UserRepository interface {
	GetByID(ctx context.Context, id uuid.UUID) (types.User, error)
	GetByEmail(ctx context.Context, email string) (types.User, error)
	Create(ctx context.Context, user types.User) (types.User, error)
}

// TokenIssuer signs session tokens.
type TokenIssuer interface {
	Issue(ownerID uuid.UUID) (string, error)
}

// UserService encapsulates registration, login and identity resolution.
type UserService struct {
	repo   UserRepository
	tokens TokenIssuer
}

func NewUserService(repo UserRepository, tokens TokenIssuer) *UserService {
	return &UserService{repo: repo, tokens: tokens}
}

// RegisterInput is the payload of a registration.
type RegisterInput struct {
	Name     string `json:"name" validate:"required"`
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required,min=6"`
}

var registerMessages = validation.Messages{
	"Name.required":     "Name is required",
	"Email.required":    "Email is required",
	"Email.email":       "Please provide a valid email address",
	"Password.required": "Password is required",
	"Password.min":      "Password must be at least 6 characters long",
}

// LoginInput is the payload of a login.
type LoginInput struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

// LoginResult carries the issued token and the public profile.
type LoginResult struct {
	Token string
	User  types.Profile
}

// NormalizeEmail trims and lowercases an email address.
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

// Register creates a new account. The password is stored only as a bcrypt hash.
func (s *UserService) Register(ctx context.Context, in RegisterInput) (types.Profile, error) {
	in.Name = strings.TrimSpace(in.Name)
	in.Email = NormalizeEmail(in.Email)
	if err := validation.Struct(in, registerMessages); err != nil {
		return types.Profile{}, err
	}
	if len(in.Password) > auth.MaxPasswordBytes {
		return types.Profile{}, apperr.Validation(msgPasswordTooLong)
	}

	if _, err := s.repo.GetByEmail(ctx, in.Email); err == nil {
		return types.Profile{}, apperr.Conflict(msgUserExists)
	} else if !errors.Is(err, store.ErrNotFound) {
		return types.Profile{}, apperr.Wrap(err, "failed to check user")
	}

	hashed, err := auth.HashPassword(in.Password)
	if err != nil {
		return types.Profile{}, apperr.Wrap(err, "failed to create user")
	}

	user, err := s.repo.Create(ctx, types.User{
		Name:         in.Name,
		Email:        in.Email,
		PasswordHash: hashed,
	})
	if err != nil {
		if errors.Is(err, store.ErrConflict) {
			return types.Profile{}, apperr.Conflict(msgUserExists)
		}
		return types.Profile{}, apperr.Wrap(err, "failed to create user")
	}
	return user.Profile(), nil
}

// Login checks credentials and issues a session token. Unknown emails and
// wrong passwords fail identically.
func (s *UserService) Login(ctx context.Context, in LoginInput) (LoginResult, error) {
	email := NormalizeEmail(in.Email)
	if email == "" || in.Password == "" {
		return LoginResult{}, apperr.InvalidCredentials(msgInvalidCredentials)
	}

	user, err := s.repo.GetByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return LoginResult{}, apperr.InvalidCredentials(msgInvalidCredentials)
		}
		return LoginResult{}, apperr.Wrap(err, "failed to authenticate")
	}

	if !auth.ComparePassword(user.PasswordHash, in.Password) {
		return LoginResult{}, apperr.InvalidCredentials(msgInvalidCredentials)
	}

	token, err := s.tokens.Issue(user.ID)
	if err != nil {
		return LoginResult{}, apperr.Wrap(err, "failed to create token")
	}

	return LoginResult{Token: token, User: user.Profile()}, nil
}

// Resolve loads the account a verified token points at.
func (s *UserService) Resolve(ctx context.Context, id uuid.UUID) (types.Profile, error) {
	user, err := s.repo.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return types.Profile{}, apperr.NotFound(msgUserNotFound)
		}
		return types.Profile{}, apperr.Wrap(err, "failed to load user")
	}
	return user.Profile(), nil
}
