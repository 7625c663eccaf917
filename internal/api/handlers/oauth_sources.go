// Package handlers provides HTTP handlers for API endpoints.
package handlers

import (
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/janovincze/idbroker/internal/api/models"
	"github.com/janovincze/idbroker/internal/api/services"
)

// OAuthSourceHandler handles OAuth source HTTP requests.
type OAuthSourceHandler struct {
	service *services.OAuthSourceService
}

// NewOAuthSourceHandler creates a new OAuthSourceHandler.
func NewOAuthSourceHandler(service *services.OAuthSourceService) *OAuthSourceHandler {
	return &OAuthSourceHandler{service: service}
}

// SourceTypes lists provider types, optionally narrowed by ?name=.
// GET /api/v1/sources/oauth/source_types
func (h *OAuthSourceHandler) SourceTypes(c *gin.Context) {
	c.JSON(http.StatusOK, h.service.SourceTypes(c.Query("name")))
}

// Discover previews discovery for a candidate configuration.
// POST /api/v1/sources/oauth/discover
func (h *OAuthSourceHandler) Discover(c *gin.Context) {
	var req models.DiscoverRequest
	if !bindJSON(c, &req) {
		return
	}

	resp, err := h.service.Discover(c.Request.Context(), &req)
	if err != nil {
		respondWithServiceError(c, err)
		return
	}

	c.JSON(http.StatusOK, resp)
}

// Create registers a new source.
// POST /api/v1/sources/oauth
func (h *OAuthSourceHandler) Create(c *gin.Context) {
	var req models.CreateOAuthSourceRequest
	if !bindJSON(c, &req) {
		return
	}

	src, err := h.service.Create(c.Request.Context(), &req)
	if err != nil {
		respondWithServiceError(c, err)
		return
	}

	c.JSON(http.StatusCreated, src)
}

// List lists sources.
// GET /api/v1/sources/oauth
func (h *OAuthSourceHandler) List(c *gin.Context) {
	filter, fieldErrors := parseOAuthSourceFilter(c)
	if len(fieldErrors) > 0 {
		models.RespondWithError(c, models.NewValidationError(c.Request.URL.Path, fieldErrors))
		return
	}

	resp, err := h.service.List(c.Request.Context(), filter)
	if err != nil {
		respondWithServiceError(c, err)
		return
	}

	c.JSON(http.StatusOK, resp)
}

// Get retrieves a source by slug.
// GET /api/v1/sources/oauth/:slug
func (h *OAuthSourceHandler) Get(c *gin.Context) {
	src, err := h.service.GetBySlug(c.Request.Context(), c.Param("slug"))
	if err != nil {
		respondWithServiceError(c, err)
		return
	}

	c.JSON(http.StatusOK, src)
}

// GetByID retrieves a source by its primary key.
// GET /api/v1/sources/oauth/by-id/:id
func (h *OAuthSourceHandler) GetByID(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		models.RespondWithError(c, models.NewBadRequestError(
			c.Request.URL.Path,
			"invalid source ID format",
		))
		return
	}

	src, err := h.service.Get(c.Request.Context(), id)
	if err != nil {
		respondWithServiceError(c, err)
		return
	}

	c.JSON(http.StatusOK, src)
}

// Update replaces a source.
// PUT /api/v1/sources/oauth/:slug
func (h *OAuthSourceHandler) Update(c *gin.Context) {
	h.update(c, true)
}

// Patch partially updates a source.
// PATCH /api/v1/sources/oauth/:slug
func (h *OAuthSourceHandler) Patch(c *gin.Context) {
	h.update(c, false)
}

func (h *OAuthSourceHandler) update(c *gin.Context, full bool) {
	var req models.UpdateOAuthSourceRequest
	if !bindJSON(c, &req) {
		return
	}

	src, err := h.service.Update(c.Request.Context(), c.Param("slug"), &req, full)
	if err != nil {
		respondWithServiceError(c, err)
		return
	}

	c.JSON(http.StatusOK, src)
}

// Delete deletes a source.
// DELETE /api/v1/sources/oauth/:slug
func (h *OAuthSourceHandler) Delete(c *gin.Context) {
	if err := h.service.Delete(c.Request.Context(), c.Param("slug")); err != nil {
		respondWithServiceError(c, err)
		return
	}

	c.Status(http.StatusNoContent)
}

func bindJSON(c *gin.Context, dst any) bool {
	if err := c.ShouldBindJSON(dst); err != nil {
		models.RespondWithError(c, models.NewBadRequestError(
			c.Request.URL.Path,
			"invalid request body: "+err.Error(),
		))
		return false
	}
	return true
}

// parseOAuthSourceFilter reads list query parameters.
func parseOAuthSourceFilter(c *gin.Context) (models.OAuthSourceFilter, []models.FieldError) {
	var (
		filter      models.OAuthSourceFilter
		fieldErrors []models.FieldError
	)

	filter.Search = c.Query("search")
	filter.Name = c.Query("name")
	filter.Slug = c.Query("slug")
	for _, v := range c.QueryArray("provider_type") {
		for _, p := range strings.Split(v, ",") {
			if p = strings.TrimSpace(p); p != "" {
				filter.ProviderTypes = append(filter.ProviderTypes, p)
			}
		}
	}

	parseBool := func(key string) *bool {
		raw, ok := c.GetQuery(key)
		if !ok || raw == "" {
			return nil
		}
		b, err := strconv.ParseBool(raw)
		if err != nil {
			fieldErrors = append(fieldErrors, models.FieldError{Field: key, Message: key + " must be a boolean"})
			return nil
		}
		return &b
	}
	filter.Enabled = parseBool("enabled")
	filter.HasJWKS = parseBool("has_jwks")

	parseInt := func(key string) int {
		raw := c.Query(key)
		if raw == "" {
			return 0
		}
		n, err := strconv.Atoi(raw)
		if err != nil || n < 0 {
			fieldErrors = append(fieldErrors, models.FieldError{Field: key, Message: key + " must be a non-negative integer"})
			return 0
		}
		return n
	}
	filter.Limit = parseInt("limit")
	filter.Offset = parseInt("offset")

	return filter, fieldErrors
}

// respondWithServiceError converts service errors to HTTP responses.
func respondWithServiceError(c *gin.Context, err error) {
	var validationErr *services.ValidationError
	var notFoundErr *services.NotFoundError
	var conflictErr *services.ConflictError

	switch {
	case errors.As(err, &validationErr):
		models.RespondWithError(c, models.NewValidationError(
			c.Request.URL.Path,
			validationErr.Errors,
		))
	case errors.As(err, &notFoundErr):
		models.RespondWithError(c, models.NewNotFoundError(
			c.Request.URL.Path,
			notFoundErr.Error(),
		))
	case errors.As(err, &conflictErr):
		problem := models.NewConflictError(c.Request.URL.Path, conflictErr.Message)
		if conflictErr.Field != "" {
			problem.Errors = []models.FieldError{{Field: conflictErr.Field, Message: conflictErr.Message}}
		}
		models.RespondWithError(c, problem)
	default:
		models.RespondWithError(c, models.NewInternalError(
			c.Request.URL.Path,
			"an unexpected error occurred",
		))
	}
}
