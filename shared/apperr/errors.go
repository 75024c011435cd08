// Package apperr defines the error kinds shared by the account service, its
// repositories and the HTTP layer. Callers match them with errors.Is / errors.As.
package apperr

import (
	"errors"
	"strings"
)

var (
	// ErrValidation is the kind for missing, malformed or duplicate input.
	ErrValidation = errors.New("validation failed")
	// ErrUnauthorized covers bad credentials, bad OTPs and missing/invalid/revoked tokens.
	ErrUnauthorized = errors.New("unauthorized")
	// ErrNotFound is returned by stores when no record matches.
	ErrNotFound = errors.New("not found")
	// ErrNotificationFailed is returned when an OTP could not be delivered.
	ErrNotificationFailed = errors.New("notification failed")

	// Store-level uniqueness violations. The service turns them into a ValidationError.
	ErrDuplicateEmail  = errors.New("email already exists")
	ErrDuplicateMobile = errors.New("mobile already exists")
)

// FieldError describes one offending input field.
type FieldError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
	Type    string `json:"type"`
}

// ValidationError carries field-level detail and unwraps to ErrValidation.
type ValidationError struct {
	Fields []FieldError
}

func (e *ValidationError) Error() string {
	if len(e.Fields) == 0 {
		return ErrValidation.Error()
	}
	parts := make([]string, 0, len(e.Fields))
	for _, f := range e.Fields {
		parts = append(parts, f.Field+": "+f.Message)
	}
	return ErrValidation.Error() + ": " + strings.Join(parts, "; ")
}

func (e *ValidationError) Unwrap() error {
	return ErrValidation
}

// NewValidationError builds a ValidationError for a single field.
func NewValidationError(field, tag, message string) *ValidationError {
	return &ValidationError{Fields: []FieldError{{Field: field, Message: message, Type: tag}}}
}

// Append adds a field error to e and returns it, so errors can be accumulated
// starting from a nil *ValidationError.
func (e *ValidationError) Append(field, tag, message string) *ValidationError {
	if e == nil {
		return NewValidationError(field, tag, message)
	}
	e.Fields = append(e.Fields, FieldError{Field: field, Message: message, Type: tag})
	return e
}
