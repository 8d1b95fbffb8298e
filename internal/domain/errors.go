package domain

import (
	"errors"
	"strings"
)

// ErrInvalidCredentials signals a wrong email/password pair or a wrong
// current password on a password change.
var ErrInvalidCredentials = errors.New("invalid credentials")

// FieldError describes a single validation failure on a named input field.
type FieldError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

// ValidationError aggregates field errors collected in one validation pass
// over a request payload. No mutation happens once one is raised.
type ValidationError struct {
	Fields []FieldError
}

func (e *ValidationError) Error() string {
	if len(e.Fields) == 0 {
		return "validation failed"
	}
	parts := make([]string, 0, len(e.Fields))
	for _, f := range e.Fields {
		parts = append(parts, f.Field+": "+f.Message)
	}
	return "validation failed: " + strings.Join(parts, "; ")
}

// NewValidationError wraps field errors, returning nil when there are none.
func NewValidationError(fields []FieldError) error {
	if len(fields) == 0 {
		return nil
	}
	return &ValidationError{Fields: fields}
}
