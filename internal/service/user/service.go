package user

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"unicode/utf8"

	"github.com/mohitnawani/taskdeck/internal/domain"
	"github.com/mohitnawani/taskdeck/internal/repository"
	"github.com/mohitnawani/taskdeck/pkg/crypto"
)

const (
	maxNameLength     = 100
	maxBioLength      = 500
	minPasswordLength = 6
	maxPasswordLength = 72
)

// Service handles profile and password management for authenticated users.
type Service struct {
	users  repository.UserRepository
	logger *slog.Logger
}

// New constructs a Service.
func New(users repository.UserRepository, logger *slog.Logger) Service {
	return Service{users: users, logger: logger}
}

// ProfileInput is a partial profile update; nil fields are untouched.
type ProfileInput struct {
	Name *string `json:"name"`
	Bio  *string `json:"bio"`
}

// Validate checks length constraints on supplied fields only.
func (in *ProfileInput) Validate() error {
	var fields []domain.FieldError
	if in.Name != nil {
		trimmed := strings.TrimSpace(*in.Name)
		*in.Name = trimmed
		if trimmed == "" {
			fields = append(fields, domain.FieldError{Field: "name", Message: "name cannot be empty"})
		} else if utf8.RuneCountInString(trimmed) > maxNameLength {
			fields = append(fields, domain.FieldError{Field: "name", Message: fmt.Sprintf("name must be at most %d characters", maxNameLength)})
		}
	}
	if in.Bio != nil && utf8.RuneCountInString(*in.Bio) > maxBioLength {
		fields = append(fields, domain.FieldError{Field: "bio", Message: fmt.Sprintf("bio must be at most %d characters", maxBioLength)})
	}
	return domain.NewValidationError(fields)
}

// PasswordInput carries a password change request.
type PasswordInput struct {
	CurrentPassword string `json:"currentPassword"`
	NewPassword     string `json:"newPassword"`
}

// Validate checks both passwords are present and the new one is acceptable.
func (in *PasswordInput) Validate() error {
	var fields []domain.FieldError
	if in.CurrentPassword == "" {
		fields = append(fields, domain.FieldError{Field: "currentPassword", Message: "current password is required"})
	}
	if utf8.RuneCountInString(in.NewPassword) < minPasswordLength {
		fields = append(fields, domain.FieldError{Field: "newPassword", Message: fmt.Sprintf("new password must be at least %d characters", minPasswordLength)})
	} else if len(in.NewPassword) > maxPasswordLength {
		fields = append(fields, domain.FieldError{Field: "newPassword", Message: fmt.Sprintf("new password must be at most %d characters", maxPasswordLength)})
	}
	return domain.NewValidationError(fields)
}

// Get returns the account for the given id.
func (s Service) Get(ctx context.Context, id string) (*domain.User, error) {
	return s.users.GetUserByID(ctx, id)
}

// UpdateProfile applies a partial update to name and bio.
func (s Service) UpdateProfile(ctx context.Context, id string, in ProfileInput) (*domain.User, error) {
	if err := in.Validate(); err != nil {
		return nil, err
	}
	user, err := s.users.UpdateUserProfile(ctx, id, in.Name, in.Bio)
	if err != nil {
		return nil, err
	}
	s.logger.Info("profile updated", "user_id", id)
	return user, nil
}

// ChangePassword verifies the current password before storing a new hash.
// A mismatch leaves the stored credential untouched.
func (s Service) ChangePassword(ctx context.Context, id string, in PasswordInput) error {
	if err := in.Validate(); err != nil {
		return err
	}
	user, err := s.users.GetUserByID(ctx, id)
	if err != nil {
		return err
	}
	if err := crypto.ComparePassword(user.PasswordHash, in.CurrentPassword); err != nil {
		return domain.ErrInvalidCredentials
	}
	hash, err := crypto.HashPassword(in.NewPassword)
	if err != nil {
		return fmt.Errorf("hash password: %w", err)
	}
	if err := s.users.UpdateUserPassword(ctx, id, hash); err != nil {
		return err
	}
	s.logger.Info("password changed", "user_id", id)
	return nil
}
