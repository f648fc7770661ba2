// Package service provides business logic implementations.
package service

import (
	"context"
	"fmt"
	"time"

	"github.com/go-playground/validator/v10"
	"golang.org/x/crypto/bcrypt"

	"github.com/microauthx/microauthx/internal/middleware"
	"github.com/microauthx/microauthx/internal/models"
	apierrors "github.com/microauthx/microauthx/internal/pkg/errors"
	"github.com/microauthx/microauthx/internal/repository"
)

// Login failure reasons. Recorded in metrics only; the API response is
// identical for both so accounts cannot be enumerated.
const (
	FailureUserNotFound    = "user_not_found"
	FailureInvalidPassword = "invalid_password"
)

// SignupRequest is the credential set required to create an account.
type SignupRequest struct {
	Username string `json:"username" validate:"required"`
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required"`
}

// LoginRequest is the credential set required to authenticate.
type LoginRequest struct {
	Email    string `json:"email" validate:"required"`
	Password string `json:"password" validate:"required"`
}

// Stats summarizes the user population.
type Stats struct {
	TotalUsers       int64 `json:"totalUsers"`
	NewUsersLast7Day int64 `json:"newUsersLast7Days"`
}

// AuthService defines credential verification and account creation.
type AuthService interface {
	// Signup creates a new user. Returns ErrValidation for incomplete
	// payloads, ErrConflict when the username or email is taken.
	Signup(ctx context.Context, req SignupRequest) (models.Identity, error)

	// Login verifies credentials and returns the identity to put in a
	// session, with its last-login timestamp freshly updated.
	Login(ctx context.Context, req LoginRequest) (models.Identity, error)

	// Stats returns aggregate user counts.
	Stats(ctx context.Context) (Stats, error)

	// UserCount returns the total number of users (used by health checks).
	UserCount(ctx context.Context) (int64, error)
}

// Config holds tunables for the auth service.
type Config struct {
	BcryptCost        int
	MinPasswordLength int
}

type authService struct {
	users    repository.UserRepository
	validate *validator.Validate
	cfg      Config
}

// NewAuthService creates the credential-verification service.
func NewAuthService(users repository.UserRepository, cfg Config) AuthService {
	if cfg.BcryptCost < bcrypt.MinCost {
		cfg.BcryptCost = bcrypt.DefaultCost
	}
	if cfg.MinPasswordLength <= 0 {
		cfg.MinPasswordLength = 6
	}
	return &authService{
		users:    users,
		validate: validator.New(validator.WithRequiredStructEnabled()),
		cfg:      cfg,
	}
}

func (s *authService) Signup(ctx context.Context, req SignupRequest) (models.Identity, error) {
	req.Username = models.NormalizeUsername(req.Username)
	req.Email = models.NormalizeEmail(req.Email)

	if err := s.validate.Struct(req); err != nil {
		return models.Identity{}, apierrors.NewValidationError("username, email, and password are required")
	}
	if len(req.Password) < s.cfg.MinPasswordLength {
		return models.Identity{}, apierrors.NewValidationError(
			fmt.Sprintf("password must be at least %d characters", s.cfg.MinPasswordLength))
	}

	// Pre-check gives a friendly message, but the unique index remains the
	// authoritative conflict signal: a concurrent insert between this check
	// and ours still comes back as ErrDuplicate below.
	existing, err := s.users.FindByEmailOrUsername(ctx, req.Email, req.Username)
	if err != nil {
		return models.Identity{}, err
	}
	if existing != nil {
		return models.Identity{}, apierrors.NewConflictError("A user with this email or username already exists")
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(req.Password), s.cfg.BcryptCost)
	if err != nil {
		return models.Identity{}, fmt.Errorf("failed to hash password: %w", err)
	}

	user := &models.User{
		Username:     req.Username,
		Email:        req.Email,
		PasswordHash: string(hash),
		CreatedAt:    time.Now().UTC(),
	}
	if err := s.users.Insert(ctx, user); err != nil {
		if err == repository.ErrDuplicate {
			return models.Identity{}, apierrors.NewConflictError("A user with this email or username already exists")
		}
		return models.Identity{}, err
	}

	middleware.IncrementRegistrations()
	return user.Identity(), nil
}

func (s *authService) Login(ctx context.Context, req LoginRequest) (models.Identity, error) {
	req.Email = models.NormalizeEmail(req.Email)

	if err := s.validate.Struct(req); err != nil {
		return models.Identity{}, apierrors.NewValidationError("email and password are required")
	}

	user, err := s.users.FindByEmail(ctx, req.Email)
	if err != nil {
		return models.Identity{}, err
	}
	if user == nil {
		middleware.IncrementLoginFailures(FailureUserNotFound)
		return models.Identity{}, apierrors.ErrAuthentication
	}

	if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(req.Password)); err != nil {
		middleware.IncrementLoginFailures(FailureInvalidPassword)
		return models.Identity{}, apierrors.ErrAuthentication
	}

	now := time.Now().UTC()
	if err := s.users.UpdateLastLogin(ctx, user.ID, now); err != nil {
		return models.Identity{}, err
	}
	user.LastLoginAt = &now

	middleware.IncrementLogins()
	return user.Identity(), nil
}

func (s *authService) Stats(ctx context.Context) (Stats, error) {
	total, err := s.users.Count(ctx)
	if err != nil {
		return Stats{}, err
	}
	recent, err := s.users.CountCreatedSince(ctx, time.Now().UTC().AddDate(0, 0, -7))
	if err != nil {
		return Stats{}, err
	}
	return Stats{TotalUsers: total, NewUsersLast7Day: recent}, nil
}

func (s *authService) UserCount(ctx context.Context) (int64, error) {
	return s.users.Count(ctx)
}
