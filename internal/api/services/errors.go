package services

import (
	"fmt"
	"strings"

	"github.com/janovincze/idbroker/internal/api/models"
)

// ValidationError represents field-level and general validation failures.
// General failures use models.NonFieldErrorsKey as their field.
type ValidationError struct {
	Errors []models.FieldError
}

func (e *ValidationError) Error() string {
	msgs := make([]string, 0, len(e.Errors))
	for _, fe := range e.Errors {
		msgs = append(msgs, fe.Field+": "+fe.Message)
	}
	return "validation error: " + strings.Join(msgs, "; ")
}

// fieldError returns a ValidationError for a single field.
func fieldError(field, message string) *ValidationError {
	return &ValidationError{Errors: []models.FieldError{{Field: field, Message: message}}}
}

// NotFoundError represents a not found error.
type NotFoundError struct {
	Resource string
	ID       string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s not found: %s", e.Resource, e.ID)
}

// ConflictError represents a conflict error.
type ConflictError struct {
	Field   string
	Message string
}

func (e *ConflictError) Error() string {
	return e.Message
}
