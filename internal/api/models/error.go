// Package models provides API request and response types.
package models

import (
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"
)

// NonFieldErrorsKey is the field name used for errors that are not tied to a
// single attribute.
const NonFieldErrorsKey = "non_field_errors"

// ProblemDetails represents an RFC 7807 problem details response.
type ProblemDetails struct {
	// Type is a URI reference identifying the problem type.
	Type string `json:"type"`

	// Title is a short, human-readable summary of the problem type.
	Title string `json:"title"`

	// Status is the HTTP status code.
	Status int `json:"status"`

	// Detail is a human-readable explanation specific to this occurrence.
	Detail string `json:"detail,omitempty"`

	// Instance is a URI reference identifying the specific occurrence.
	Instance string `json:"instance,omitempty"`

	// Errors contains field-level validation errors.
	Errors []FieldError `json:"errors,omitempty"`
}

// FieldError represents a validation error for a specific field.
type FieldError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

// Error implements the error interface.
func (p *ProblemDetails) Error() string {
	return fmt.Sprintf("%s: %s", p.Title, p.Detail)
}

// FieldMessages groups the field errors by field name.
func (p *ProblemDetails) FieldMessages() map[string][]string {
	out := make(map[string][]string, len(p.Errors))
	for _, e := range p.Errors {
		out[e.Field] = append(out[e.Field], e.Message)
	}
	return out
}

// Problem types.
const (
	ErrorTypeValidation   = "https://idbroker.dev/errors/validation-error"
	ErrorTypeNotFound     = "https://idbroker.dev/errors/not-found"
	ErrorTypeInternal     = "https://idbroker.dev/errors/internal-error"
	ErrorTypeBadRequest   = "https://idbroker.dev/errors/bad-request"
	ErrorTypeRateLimited  = "https://idbroker.dev/errors/rate-limited"
	ErrorTypeConflict     = "https://idbroker.dev/errors/conflict"
	ErrorTypeUnauthorized = "https://idbroker.dev/errors/unauthorized"
	ErrorTypeForbidden    = "https://idbroker.dev/errors/forbidden"
)

func newProblem(problemType, title string, status int, instance, detail string) *ProblemDetails {
	return &ProblemDetails{
		Type:     problemType,
		Title:    title,
		Status:   status,
		Detail:   detail,
		Instance: instance,
	}
}

// NewValidationError creates a validation error with field errors.
func NewValidationError(instance string, errors []FieldError) *ProblemDetails {
	p := newProblem(ErrorTypeValidation, "Validation Error", http.StatusBadRequest,
		instance, "The request contains invalid fields")
	p.Errors = errors
	return p
}

// NewNotFoundError creates a not found error.
func NewNotFoundError(instance, detail string) *ProblemDetails {
	return newProblem(ErrorTypeNotFound, "Not Found", http.StatusNotFound, instance, detail)
}

// NewInternalError creates an internal server error.
func NewInternalError(instance, detail string) *ProblemDetails {
	return newProblem(ErrorTypeInternal, "Internal Server Error", http.StatusInternalServerError, instance, detail)
}

// NewBadRequestError creates a bad request error.
func NewBadRequestError(instance, detail string) *ProblemDetails {
	return newProblem(ErrorTypeBadRequest, "Bad Request", http.StatusBadRequest, instance, detail)
}

// NewRateLimitedError creates a rate limited error.
func NewRateLimitedError(instance string) *ProblemDetails {
	return newProblem(ErrorTypeRateLimited, "Too Many Requests", http.StatusTooManyRequests,
		instance, "Rate limit exceeded. Please try again later.")
}

// NewConflictError creates a conflict error.
func NewConflictError(instance, detail string) *ProblemDetails {
	return newProblem(ErrorTypeConflict, "Conflict", http.StatusConflict, instance, detail)
}

// NewUnauthorizedError creates an unauthorized error.
func NewUnauthorizedError(instance, detail string) *ProblemDetails {
	return newProblem(ErrorTypeUnauthorized, "Unauthorized", http.StatusUnauthorized, instance, detail)
}

// NewForbiddenError creates a forbidden error.
func NewForbiddenError(instance, detail string) *ProblemDetails {
	return newProblem(ErrorTypeForbidden, "Forbidden", http.StatusForbidden, instance, detail)
}

// RespondWithError sends a ProblemDetails error response.
func RespondWithError(c *gin.Context, err *ProblemDetails) {
	c.Header("Content-Type", "application/problem+json")
	c.JSON(err.Status, err)
}
