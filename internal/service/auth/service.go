package auth

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/mail"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"

	"github.com/mohitnawani/taskdeck/internal/config"
	"github.com/mohitnawani/taskdeck/internal/domain"
	"github.com/mohitnawani/taskdeck/internal/repository"
	"github.com/mohitnawani/taskdeck/pkg/crypto"
	jwtpkg "github.com/mohitnawani/taskdeck/pkg/jwt"
)

const (
	maxNameLength     = 100
	minPasswordLength = 6
	maxPasswordLength = 72 // bcrypt input cap
)

// Service handles registration, login and token authorization.
type Service struct {
	users  repository.UserRepository
	logger *slog.Logger
	cfg    config.Config
}

// New constructs a Service.
func New(users repository.UserRepository, logger *slog.Logger, cfg config.Config) Service {
	return Service{users: users, logger: logger, cfg: cfg}
}

// RegisterInput is the registration payload.
type RegisterInput struct {
	Name     string `json:"name"`
	Email    string `json:"email"`
	Password string `json:"password"`
}

// Validate collects every field problem in one pass.
func (in *RegisterInput) Validate() error {
	var fields []domain.FieldError
	in.Name = strings.TrimSpace(in.Name)
	if in.Name == "" {
		fields = append(fields, domain.FieldError{Field: "name", Message: "name is required"})
	} else if utf8.RuneCountInString(in.Name) > maxNameLength {
		fields = append(fields, domain.FieldError{Field: "name", Message: fmt.Sprintf("name must be at most %d characters", maxNameLength)})
	}
	fields = append(fields, validateEmail(in.Email)...)
	fields = append(fields, validatePassword("password", in.Password)...)
	return domain.NewValidationError(fields)
}

// LoginInput is the login payload.
type LoginInput struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

// Validate checks that both credentials are present.
func (in *LoginInput) Validate() error {
	var fields []domain.FieldError
	if strings.TrimSpace(in.Email) == "" {
		fields = append(fields, domain.FieldError{Field: "email", Message: "email is required"})
	}
	if in.Password == "" {
		fields = append(fields, domain.FieldError{Field: "password", Message: "password is required"})
	}
	return domain.NewValidationError(fields)
}

func validateEmail(email string) []domain.FieldError {
	trimmed := strings.TrimSpace(email)
	if trimmed == "" {
		return []domain.FieldError{{Field: "email", Message: "email is required"}}
	}
	if _, err := mail.ParseAddress(trimmed); err != nil {
		return []domain.FieldError{{Field: "email", Message: "email is not a valid address"}}
	}
	return nil
}

func validatePassword(field, password string) []domain.FieldError {
	if utf8.RuneCountInString(password) < minPasswordLength {
		return []domain.FieldError{{Field: field, Message: fmt.Sprintf("%s must be at least %d characters", field, minPasswordLength)}}
	}
	// The upper bound stays byte-based to match what bcrypt accepts.
	if len(password) > maxPasswordLength {
		return []domain.FieldError{{Field: field, Message: fmt.Sprintf("%s must be at most %d characters", field, maxPasswordLength)}}
	}
	return nil
}

// NormalizeEmail lower-cases and trims an address so uniqueness is
// case-insensitive.
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

// Register creates a new account and issues its first token.
func (s Service) Register(ctx context.Context, in RegisterInput) (*domain.User, string, error) {
	if err := in.Validate(); err != nil {
		return nil, "", err
	}
	hash, err := crypto.HashPassword(in.Password)
	if err != nil {
		return nil, "", fmt.Errorf("hash password: %w", err)
	}
	now := time.Now().UTC()
	user := &domain.User{
		ID:           uuid.NewString(),
		Name:         in.Name,
		Email:        NormalizeEmail(in.Email),
		PasswordHash: hash,
		Role:         domain.RoleUser,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	if err := s.users.CreateUser(ctx, user); err != nil {
		return nil, "", err
	}
	token, err := s.issueToken(user.ID)
	if err != nil {
		return nil, "", err
	}
	s.logger.Info("user registered", "user_id", user.ID)
	return user, token, nil
}

// Login verifies credentials and issues a token. A missing account and a
// wrong password are reported identically.
func (s Service) Login(ctx context.Context, in LoginInput) (*domain.User, string, error) {
	if err := in.Validate(); err != nil {
		return nil, "", err
	}
	user, err := s.users.GetUserByEmail(ctx, NormalizeEmail(in.Email))
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, "", domain.ErrInvalidCredentials
		}
		return nil, "", err
	}
	if err := crypto.ComparePassword(user.PasswordHash, in.Password); err != nil {
		return nil, "", domain.ErrInvalidCredentials
	}
	token, err := s.issueToken(user.ID)
	if err != nil {
		return nil, "", err
	}
	s.logger.Info("user logged in", "user_id", user.ID)
	return user, token, nil
}

// Authorize resolves a bearer token to the account it was issued for. The
// token may be valid while the account no longer exists; that also fails.
func (s Service) Authorize(ctx context.Context, token string) (*domain.User, error) {
	trimmed := strings.TrimSpace(token)
	if trimmed == "" {
		return nil, errors.New("token required")
	}
	claims, err := jwtpkg.Parse(trimmed, s.cfg.JWTSecret)
	if err != nil {
		return nil, err
	}
	user, err := s.users.GetUserByID(ctx, claims.UserID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, fmt.Errorf("user no longer exists: %w", err)
		}
		return nil, err
	}
	return user, nil
}

func (s Service) issueToken(userID string) (string, error) {
	token, err := jwtpkg.Generate(userID, s.cfg.JWTSecret, s.cfg.TokenTTL)
	if err != nil {
		return "", fmt.Errorf("issue token: %w", err)
	}
	return token, nil
}
