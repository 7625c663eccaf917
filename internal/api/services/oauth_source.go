// Package services provides business logic for API resources.
package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/google/uuid"

	"github.com/janovincze/idbroker/internal/api/models"
	"github.com/janovincze/idbroker/internal/api/repositories"
	"github.com/janovincze/idbroker/internal/oidc"
	"github.com/janovincze/idbroker/internal/oidc/providers"
)

// OAuthSourceStore persists OAuth sources.
type OAuthSourceStore interface {
	Create(ctx context.Context, src *models.OAuthSource, consumerSecret string) (*models.OAuthSource, error)
	GetByID(ctx context.Context, id uuid.UUID) (*models.OAuthSource, error)
	GetBySlug(ctx context.Context, slug string) (*models.OAuthSource, error)
	List(ctx context.Context, filter models.OAuthSourceFilter) ([]models.OAuthSource, int, error)
	Update(ctx context.Context, src *models.OAuthSource, consumerSecret *string) (*models.OAuthSource, error)
	Delete(ctx context.Context, id uuid.UUID) error
}

// OAuthSourceService provides business logic for OAuth source operations.
type OAuthSourceService struct {
	store     OAuthSourceStore
	registry  *providers.Registry
	validator *SourceConfigValidator
	baseURL   string
	logger    *slog.Logger
}

// NewOAuthSourceService creates a new OAuthSourceService. baseURL prefixes
// callback URLs; when empty they are relative.
func NewOAuthSourceService(
	store OAuthSourceStore,
	registry *providers.Registry,
	validator *SourceConfigValidator,
	baseURL string,
	logger *slog.Logger,
) *OAuthSourceService {
	return &OAuthSourceService{
		store:     store,
		registry:  registry,
		validator: validator,
		baseURL:   strings.TrimRight(baseURL, "/"),
		logger:    logger.With("component", "oauth-source-service"),
	}
}

// SourceTypes lists provider types. With a name, at most the one matching
// type is returned; unknown names and the placeholder yield an empty list.
func (s *OAuthSourceService) SourceTypes(name string) []models.SourceTypeResponse {
	if name != "" {
		t, ok := s.registry.Lookup(name)
		if !ok || t.Name == providers.DefaultTypeName {
			return []models.SourceTypeResponse{}
		}
		return []models.SourceTypeResponse{*models.NewSourceTypeResponse(t)}
	}

	types := s.registry.List()
	out := make([]models.SourceTypeResponse, 0, len(types))
	for _, t := range types {
		if t.Name == providers.DefaultTypeName {
			continue
		}
		out = append(out, *models.NewSourceTypeResponse(t))
	}
	return out
}

// Discover runs discovery for a candidate configuration without storing it.
func (s *OAuthSourceService) Discover(ctx context.Context, req *models.DiscoverRequest) (*models.DiscoverResponse, error) {
	fieldErrors := req.Validate()
	fieldErrors = append(fieldErrors, s.checkProviderType(req.ProviderType)...)
	if len(fieldErrors) > 0 {
		return nil, &ValidationError{Errors: fieldErrors}
	}

	cfg, err := s.validator.Validate(ctx, req.Config())
	if err != nil {
		return nil, err
	}

	resp := &models.DiscoverResponse{
		OAuthSourceConfig: cfg,
		Type:              models.NewSourceTypeResponse(s.registry.Find(cfg.ProviderType)),
		Keys:              []models.JWKSKey{},
	}
	if len(cfg.OIDCJWKS) > 0 {
		keys, err := oidc.InspectJWKS(cfg.OIDCJWKS)
		if err != nil {
			s.logger.Warn("discovered key set could not be parsed", "url", cfg.OIDCJWKSURL, "error", err)
		}
		for _, k := range keys {
			resp.Keys = append(resp.Keys, models.JWKSKey{
				KeyID:     k.KeyID,
				KeyType:   k.KeyType,
				Algorithm: k.Algorithm,
				Use:       k.Use,
			})
		}
	}
	return resp, nil
}

// Create validates and stores a new source.
func (s *OAuthSourceService) Create(ctx context.Context, req *models.CreateOAuthSourceRequest) (*models.OAuthSource, error) {
	req.ApplyDefaults()

	fieldErrors := req.Validate()
	if req.ProviderType != "" {
		fieldErrors = append(fieldErrors, s.checkProviderType(req.ProviderType)...)
	}
	if len(fieldErrors) > 0 {
		return nil, &ValidationError{Errors: fieldErrors}
	}

	src := req.ToSource()
	cfg, err := s.validator.Validate(ctx, src.Config())
	if err != nil {
		return nil, err
	}
	src.ApplyConfig(cfg)

	created, err := s.store.Create(ctx, src, req.ConsumerSecret)
	if err != nil {
		if conflict := conflictError(err); conflict != nil {
			return nil, conflict
		}
		s.logger.Error("failed to create oauth source", "error", err)
		return nil, fmt.Errorf("failed to create oauth source: %w", err)
	}

	s.logger.Info("oauth source created",
		"id", created.ID,
		"slug", created.Slug,
		"provider_type", created.ProviderType,
	)
	return s.decorate(created), nil
}

// Get retrieves a source by ID.
func (s *OAuthSourceService) Get(ctx context.Context, id uuid.UUID) (*models.OAuthSource, error) {
	src, err := s.store.GetByID(ctx, id)
	if err != nil {
		return nil, s.lookupError(err, id.String())
	}
	return s.decorate(src), nil
}

// GetBySlug retrieves a source by slug.
func (s *OAuthSourceService) GetBySlug(ctx context.Context, slug string) (*models.OAuthSource, error) {
	src, err := s.store.GetBySlug(ctx, slug)
	if err != nil {
		return nil, s.lookupError(err, slug)
	}
	return s.decorate(src), nil
}

// List retrieves sources matching the filter.
func (s *OAuthSourceService) List(ctx context.Context, filter models.OAuthSourceFilter) (*models.OAuthSourceListResponse, error) {
	filter.Normalize()

	sources, total, err := s.store.List(ctx, filter)
	if err != nil {
		return nil, fmt.Errorf("failed to list oauth sources: %w", err)
	}
	if sources == nil {
		sources = []models.OAuthSource{}
	}
	for i := range sources {
		s.decorate(&sources[i])
	}

	return &models.OAuthSourceListResponse{
		Sources:    sources,
		TotalCount: total,
		Limit:      filter.Limit,
		Offset:     filter.Offset,
	}, nil
}

// Update applies a full or partial update to the source with the given slug
// and re-runs validation over the merged configuration.
func (s *OAuthSourceService) Update(ctx context.Context, slug string, req *models.UpdateOAuthSourceRequest, full bool) (*models.OAuthSource, error) {
	fieldErrors := req.Validate(full)
	if req.ProviderType != nil && *req.ProviderType != "" {
		fieldErrors = append(fieldErrors, s.checkProviderType(*req.ProviderType)...)
	}
	if len(fieldErrors) > 0 {
		return nil, &ValidationError{Errors: fieldErrors}
	}

	current, err := s.store.GetBySlug(ctx, slug)
	if err != nil {
		return nil, s.lookupError(err, slug)
	}

	src := req.ApplyTo(current)
	cfg, err := s.validator.Validate(ctx, src.Config())
	if err != nil {
		return nil, err
	}
	src.ApplyConfig(cfg)

	updated, err := s.store.Update(ctx, src, req.ConsumerSecret)
	if err != nil {
		if conflict := conflictError(err); conflict != nil {
			return nil, conflict
		}
		if errors.Is(err, repositories.ErrOAuthSourceNotFound) {
			return nil, &NotFoundError{Resource: "oauth source", ID: slug}
		}
		return nil, fmt.Errorf("failed to update oauth source: %w", err)
	}

	s.logger.Info("oauth source updated",
		"id", updated.ID,
		"slug", updated.Slug,
		"discovery_changed", req.ChangesDiscovery(current),
	)
	return s.decorate(updated), nil
}

// Delete deletes the source with the given slug.
func (s *OAuthSourceService) Delete(ctx context.Context, slug string) error {
	src, err := s.store.GetBySlug(ctx, slug)
	if err != nil {
		return s.lookupError(err, slug)
	}
	if err := s.store.Delete(ctx, src.ID); err != nil {
		return s.lookupError(err, slug)
	}

	s.logger.Info("oauth source deleted", "id", src.ID, "slug", slug)
	return nil
}

// CallbackURL returns the OAuth redirect URL for a source slug.
func (s *OAuthSourceService) CallbackURL(slug string) string {
	return s.baseURL + models.CallbackPath(slug)
}

func (s *OAuthSourceService) decorate(src *models.OAuthSource) *models.OAuthSource {
	src.CallbackURL = s.CallbackURL(src.Slug)
	src.Type = models.NewSourceTypeResponse(s.registry.Find(src.ProviderType))
	if src.OIDCJWKS == nil {
		src.OIDCJWKS = map[string]any{}
	}
	return src
}

func (s *OAuthSourceService) checkProviderType(name string) []models.FieldError {
	if name == "" || s.registry.Has(name) {
		return nil
	}
	return []models.FieldError{{Field: models.FieldProviderType, Message: "invalid provider_type"}}
}

func (s *OAuthSourceService) lookupError(err error, id string) error {
	if errors.Is(err, repositories.ErrOAuthSourceNotFound) {
		return &NotFoundError{Resource: "oauth source", ID: id}
	}
	return fmt.Errorf("failed to get oauth source: %w", err)
}

func conflictError(err error) error {
	switch {
	case errors.Is(err, repositories.ErrOAuthSourceSlugExists):
		return &ConflictError{Field: models.FieldSlug, Message: "oauth source with this slug already exists"}
	case errors.Is(err, repositories.ErrOAuthSourceNameExists):
		return &ConflictError{Field: models.FieldName, Message: "oauth source with this name already exists"}
	}
	return nil
}
