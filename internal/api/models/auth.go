package models

import (
	"slices"

	"github.com/golang-jwt/jwt/v5"
)

// Permission constants for admin API access.
const (
	PermissionSourcesRead  = "sources:read"
	PermissionSourcesWrite = "sources:write"
)

// AllPermissions lists every permission an admin token may carry.
var AllPermissions = []string{
	PermissionSourcesRead,
	PermissionSourcesWrite,
}

// AdminClaims are the claims of an admin API bearer token.
type AdminClaims struct {
	jwt.RegisteredClaims
	Permissions []string `json:"permissions,omitempty"`
}

// AuthContext holds authentication context for a request.
type AuthContext struct {
	Subject     string
	Permissions []string
}

// HasPermission checks if the auth context has a specific permission.
func (a *AuthContext) HasPermission(permission string) bool {
	return slices.Contains(a.Permissions, permission)
}

// IssueTokenRequest asks for an admin token; used by the CLI.
type IssueTokenRequest struct {
	Subject     string   `json:"subject"`
	Permissions []string `json:"permissions,omitempty"`
}

// Validate validates the token request.
func (r *IssueTokenRequest) Validate() []FieldError {
	var errors []FieldError
	if r.Subject == "" {
		errors = append(errors, FieldError{Field: "subject", Message: "subject is required"})
	}
	for _, p := range r.Permissions {
		if !slices.Contains(AllPermissions, p) {
			errors = append(errors, FieldError{Field: "permissions", Message: "unknown permission " + p})
		}
	}
	return errors
}

// ApplyDefaults grants every permission when none is requested.
func (r *IssueTokenRequest) ApplyDefaults() {
	if len(r.Permissions) == 0 {
		r.Permissions = slices.Clone(AllPermissions)
	}
}
