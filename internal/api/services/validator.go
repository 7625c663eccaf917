package services

import (
	"context"
	"errors"
	"log/slog"

	"github.com/janovincze/idbroker/internal/api/models"
	"github.com/janovincze/idbroker/internal/metrics"
	"github.com/janovincze/idbroker/internal/oidc"
	"github.com/janovincze/idbroker/internal/oidc/providers"
)

// MessageInvalidWellKnown is reported when a well-known document has no issuer.
const MessageInvalidWellKnown = "Invalid well-known configuration"

// Validation results used as metric labels.
const (
	resultValid      = "valid"
	resultFetchError = "fetch_error"
	resultInvalid    = "invalid"
	resultIncomplete = "incomplete"
)

// DocumentFetcher retrieves a remote JSON object.
type DocumentFetcher interface {
	FetchJSON(ctx context.Context, url string) (map[string]any, error)
}

// SourceConfigValidator resolves discovery for a candidate source
// configuration, merges the results and checks that the provider type ends
// up with a usable set of endpoints.
type SourceConfigValidator struct {
	registry *providers.Registry
	fetcher  DocumentFetcher
	logger   *slog.Logger
}

// NewSourceConfigValidator creates a new SourceConfigValidator.
func NewSourceConfigValidator(registry *providers.Registry, fetcher DocumentFetcher, logger *slog.Logger) *SourceConfigValidator {
	return &SourceConfigValidator{
		registry: registry,
		fetcher:  fetcher,
		logger:   logger.With("component", "source-validator"),
	}
}

// endpointMapping maps discovery keys onto source fields, in check order.
var endpointMapping = []struct {
	field string
	key   string
	get   func(*models.OAuthSourceConfig) *string
	def   func(providers.SourceType) *string
}{
	{
		field: models.FieldAuthorizationURL,
		key:   oidc.KeyAuthorizationEndpoint,
		get:   func(c *models.OAuthSourceConfig) *string { return &c.AuthorizationURL },
		def:   func(t providers.SourceType) *string { return t.AuthorizationURL },
	},
	{
		field: models.FieldAccessTokenURL,
		key:   oidc.KeyTokenEndpoint,
		get:   func(c *models.OAuthSourceConfig) *string { return &c.AccessTokenURL },
		def:   func(t providers.SourceType) *string { return t.AccessTokenURL },
	},
	{
		field: models.FieldProfileURL,
		key:   oidc.KeyUserInfoEndpoint,
		get:   func(c *models.OAuthSourceConfig) *string { return &c.ProfileURL },
		def:   func(t providers.SourceType) *string { return t.ProfileURL },
	},
}

// Validate returns the merged configuration, or a *ValidationError. The
// input is not modified. Non-empty values in the input are treated as
// explicit and are never overwritten by discovery.
func (v *SourceConfigValidator) Validate(ctx context.Context, candidate models.OAuthSourceConfig) (models.OAuthSourceConfig, error) {
	out := candidate
	if out.OIDCJWKS == nil {
		out.OIDCJWKS = map[string]any{}
	}

	sourceType := v.registry.Find(out.ProviderType)
	logger := v.logger.With("provider_type", out.ProviderType)

	inferredJWKSURL := ""
	wellKnownURL := firstNonEmpty(out.OIDCWellKnownURL, deref(sourceType.OIDCWellKnownURL))
	if wellKnownURL != "" {
		doc, err := v.fetcher.FetchJSON(ctx, wellKnownURL)
		if err != nil {
			v.record(out.ProviderType, resultFetchError)
			return candidate, fetchFieldError(models.FieldOIDCWellKnownURL, err)
		}
		if !oidc.HasIssuer(doc) {
			v.record(out.ProviderType, resultInvalid)
			return candidate, fieldError(models.FieldOIDCWellKnownURL, MessageInvalidWellKnown)
		}

		// Absent keys blank the field even when the type has a default.
		for _, m := range endpointMapping {
			if target := m.get(&out); *target == "" {
				*target = oidc.StringValue(doc, m.key)
			}
		}
		discovered := oidc.ParseDiscoveryConfig(doc)
		inferredJWKSURL = discovered.JWKSURI
		logger.Debug("applied well-known configuration",
			"url", wellKnownURL,
			"issuer", discovered.Issuer,
			"scopes_supported", discovered.ScopesSupported,
		)
	}

	jwksURL := firstNonEmpty(out.OIDCJWKSURL, inferredJWKSURL, deref(sourceType.OIDCJWKSURL))
	if jwksURL != "" {
		out.OIDCJWKSURL = jwksURL
		jwks, err := v.fetcher.FetchJSON(ctx, jwksURL)
		if err != nil {
			v.record(out.ProviderType, resultFetchError)
			return candidate, fetchFieldError(models.FieldOIDCJWKSURL, err)
		}
		out.OIDCJWKS = jwks

		if keys, err := oidc.InspectJWKS(jwks); err != nil {
			logger.Warn("fetched key set could not be parsed", "url", jwksURL, "error", err)
		} else {
			logger.Debug("fetched key set", "url", jwksURL, "keys", len(keys))
		}
	}

	sourceType = v.registry.Find(out.ProviderType)
	var missing []models.FieldError
	for _, m := range endpointMapping {
		if m.def(sourceType) == nil && *m.get(&out) == "" {
			missing = append(missing, models.FieldError{
				Field:   models.NonFieldErrorsKey,
				Message: m.field + " is required for provider " + sourceType.VerboseName,
			})
		}
	}
	if len(missing) > 0 {
		v.record(out.ProviderType, resultIncomplete)
		return candidate, &ValidationError{Errors: missing}
	}

	v.record(out.ProviderType, resultValid)
	return out, nil
}

func (v *SourceConfigValidator) record(providerType, result string) {
	metrics.SourceValidationsTotal.WithLabelValues(providerType, result).Inc()
}

// fetchFieldError surfaces the remote detail of a failed fetch on field.
func fetchFieldError(field string, err error) *ValidationError {
	var fetchErr *oidc.FetchError
	if errors.As(err, &fetchErr) {
		return fieldError(field, fetchErr.Detail)
	}
	return fieldError(field, err.Error())
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
