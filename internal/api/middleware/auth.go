// Package middleware provides HTTP middleware for the API server.
package middleware

import (
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/janovincze/idbroker/internal/api/models"
)

// AuthContextKey is the gin context key holding the *models.AuthContext.
const AuthContextKey = "auth_context"

// TokenVerifier validates admin bearer tokens.
type TokenVerifier interface {
	Verify(token string) (*models.AdminClaims, error)
}

// AuthConfig holds authentication middleware configuration.
type AuthConfig struct {
	// Enabled requires a bearer token on protected routes
	Enabled bool

	// Verifier validates bearer tokens
	Verifier TokenVerifier
}

// Authenticate returns a middleware that extracts a bearer token and sets the
// auth context. It does not reject unauthenticated requests.
func Authenticate(cfg AuthConfig) gin.HandlerFunc {
	return func(c *gin.Context) {
		if !cfg.Enabled || cfg.Verifier == nil {
			c.Next()
			return
		}

		token := bearerToken(c.GetHeader("Authorization"))
		if token == "" {
			c.Next()
			return
		}

		claims, err := cfg.Verifier.Verify(token)
		if err == nil {
			c.Set(AuthContextKey, &models.AuthContext{
				Subject:     claims.Subject,
				Permissions: claims.Permissions,
			})
		}

		c.Next()
	}
}

// RequireAuth returns a middleware that requires authentication.
// Must be used after Authenticate middleware.
func RequireAuth(cfg AuthConfig) gin.HandlerFunc {
	return func(c *gin.Context) {
		if !cfg.Enabled {
			c.Next()
			return
		}

		if GetAuthContext(c) == nil {
			c.Header("WWW-Authenticate", `Bearer realm="idbroker"`)
			models.RespondWithError(c, models.NewUnauthorizedError(
				c.Request.URL.Path,
				"Authentication required",
			))
			c.Abort()
			return
		}

		c.Next()
	}
}

// RequirePermission returns a middleware that requires a specific permission.
// Must be used after RequireAuth.
func RequirePermission(cfg AuthConfig, permission string) gin.HandlerFunc {
	return func(c *gin.Context) {
		if !cfg.Enabled {
			c.Next()
			return
		}

		authContext := GetAuthContext(c)
		if authContext == nil || !authContext.HasPermission(permission) {
			models.RespondWithError(c, models.NewForbiddenError(
				c.Request.URL.Path,
				"Insufficient permissions",
			))
			c.Abort()
			return
		}

		c.Next()
	}
}

// GetAuthContext retrieves the auth context from a Gin context.
func GetAuthContext(c *gin.Context) *models.AuthContext {
	value, exists := c.Get(AuthContextKey)
	if !exists {
		return nil
	}
	authContext, ok := value.(*models.AuthContext)
	if !ok {
		return nil
	}
	return authContext
}

// bearerToken extracts the credential of a "Bearer" Authorization header.
func bearerToken(header string) string {
	scheme, credential, ok := strings.Cut(header, " ")
	if !ok || !strings.EqualFold(scheme, "bearer") {
		return ""
	}
	return strings.TrimSpace(credential)
}
