package models

import (
	"net/url"
	"regexp"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/gosimple/slug"
)

// AuthorizationCodeAuthMethod controls how the client authenticates at the
// token endpoint during the authorization code exchange.
type AuthorizationCodeAuthMethod string

const (
	AuthMethodBasicAuth AuthorizationCodeAuthMethod = "basic_auth"
	AuthMethodPostBody  AuthorizationCodeAuthMethod = "post_body"
)

// UserMatchingMode controls how incoming identities are matched to users.
type UserMatchingMode string

const (
	UserMatchingIdentifier   UserMatchingMode = "identifier"
	UserMatchingEmailLink    UserMatchingMode = "email_link"
	UserMatchingEmailDeny    UserMatchingMode = "email_deny"
	UserMatchingUsernameLink UserMatchingMode = "username_link"
	UserMatchingUsernameDeny UserMatchingMode = "username_deny"
)

// GroupMatchingMode controls how incoming groups are matched to groups.
type GroupMatchingMode string

const (
	GroupMatchingIdentifier GroupMatchingMode = "identifier"
	GroupMatchingNameLink   GroupMatchingMode = "name_link"
	GroupMatchingNameDeny   GroupMatchingMode = "name_deny"
)

// PolicyEngineMode controls whether all or any bound policies must pass.
type PolicyEngineMode string

const (
	PolicyEngineAll PolicyEngineMode = "all"
	PolicyEngineAny PolicyEngineMode = "any"
)

var (
	validAuthMethods = map[AuthorizationCodeAuthMethod]bool{
		AuthMethodBasicAuth: true, AuthMethodPostBody: true,
	}
	validUserMatchingModes = map[UserMatchingMode]bool{
		UserMatchingIdentifier: true, UserMatchingEmailLink: true, UserMatchingEmailDeny: true,
		UserMatchingUsernameLink: true, UserMatchingUsernameDeny: true,
	}
	validGroupMatchingModes = map[GroupMatchingMode]bool{
		GroupMatchingIdentifier: true, GroupMatchingNameLink: true, GroupMatchingNameDeny: true,
	}
	validPolicyEngineModes = map[PolicyEngineMode]bool{
		PolicyEngineAll: true, PolicyEngineAny: true,
	}

	slugPattern = regexp.MustCompile(`^[-a-zA-Z0-9_]+$`)
)

// Field names shared by requests, validation errors and filters.
const (
	FieldName                        = "name"
	FieldSlug                        = "slug"
	FieldProviderType                = "provider_type"
	FieldRequestTokenURL             = "request_token_url"
	FieldAuthorizationURL            = "authorization_url"
	FieldAccessTokenURL              = "access_token_url"
	FieldProfileURL                  = "profile_url"
	FieldConsumerKey                 = "consumer_key"
	FieldConsumerSecret              = "consumer_secret"
	FieldOIDCWellKnownURL            = "oidc_well_known_url"
	FieldOIDCJWKSURL                 = "oidc_jwks_url"
	FieldOIDCJWKS                    = "oidc_jwks"
	FieldAuthorizationCodeAuthMethod = "authorization_code_auth_method"
	FieldUserMatchingMode            = "user_matching_mode"
	FieldGroupMatchingMode           = "group_matching_mode"
	FieldPolicyEngineMode            = "policy_engine_mode"
)

// OAuthSourceConfig is the subset of a source that discovery reads and
// writes. Empty strings mean "not set".
type OAuthSourceConfig struct {
	ProviderType     string         `json:"provider_type"`
	AuthorizationURL string         `json:"authorization_url"`
	AccessTokenURL   string         `json:"access_token_url"`
	ProfileURL       string         `json:"profile_url"`
	OIDCWellKnownURL string         `json:"oidc_well_known_url"`
	OIDCJWKSURL      string         `json:"oidc_jwks_url"`
	OIDCJWKS         map[string]any `json:"oidc_jwks"`
}

// OAuthSource is an external OAuth/OIDC identity provider registration. The
// consumer secret is write-only and never part of this model.
type OAuthSource struct {
	ID                          uuid.UUID                   `json:"pk"`
	Name                        string                      `json:"name"`
	Slug                        string                      `json:"slug"`
	Enabled                     bool                        `json:"enabled"`
	ProviderType                string                      `json:"provider_type"`
	RequestTokenURL             string                      `json:"request_token_url"`
	AuthorizationURL            string                      `json:"authorization_url"`
	AccessTokenURL              string                      `json:"access_token_url"`
	ProfileURL                  string                      `json:"profile_url"`
	ConsumerKey                 string                      `json:"consumer_key"`
	AdditionalScopes            string                      `json:"additional_scopes"`
	OIDCWellKnownURL            string                      `json:"oidc_well_known_url"`
	OIDCJWKSURL                 string                      `json:"oidc_jwks_url"`
	OIDCJWKS                    map[string]any              `json:"oidc_jwks"`
	AuthorizationCodeAuthMethod AuthorizationCodeAuthMethod `json:"authorization_code_auth_method"`
	UserMatchingMode            UserMatchingMode            `json:"user_matching_mode"`
	GroupMatchingMode           GroupMatchingMode           `json:"group_matching_mode"`
	PolicyEngineMode            PolicyEngineMode            `json:"policy_engine_mode"`
	CallbackURL                 string                      `json:"callback_url"`
	Type                        *SourceTypeResponse         `json:"type"`
	JWKSRefreshedAt             *time.Time                  `json:"jwks_refreshed_at,omitempty"`
	CreatedAt                   time.Time                   `json:"created_at"`
	UpdatedAt                   time.Time                   `json:"updated_at"`
}

// Config returns the discovery-relevant attributes of the source.
func (s *OAuthSource) Config() OAuthSourceConfig {
	return OAuthSourceConfig{
		ProviderType:     s.ProviderType,
		AuthorizationURL: s.AuthorizationURL,
		AccessTokenURL:   s.AccessTokenURL,
		ProfileURL:       s.ProfileURL,
		OIDCWellKnownURL: s.OIDCWellKnownURL,
		OIDCJWKSURL:      s.OIDCJWKSURL,
		OIDCJWKS:         s.OIDCJWKS,
	}
}

// ApplyConfig copies validated attributes back onto the source.
func (s *OAuthSource) ApplyConfig(cfg OAuthSourceConfig) {
	s.ProviderType = cfg.ProviderType
	s.AuthorizationURL = cfg.AuthorizationURL
	s.AccessTokenURL = cfg.AccessTokenURL
	s.ProfileURL = cfg.ProfileURL
	s.OIDCWellKnownURL = cfg.OIDCWellKnownURL
	s.OIDCJWKSURL = cfg.OIDCJWKSURL
	s.OIDCJWKS = cfg.OIDCJWKS
	if s.OIDCJWKS == nil {
		s.OIDCJWKS = map[string]any{}
	}
}

// HasJWKS reports whether a key set document is stored.
func (s *OAuthSource) HasJWKS() bool {
	return len(s.OIDCJWKS) > 0
}

// CallbackPath returns the OAuth redirect path for a source slug.
func CallbackPath(sourceSlug string) string {
	return "/source/oauth/callback/" + sourceSlug + "/"
}

// CreateOAuthSourceRequest represents a request to register a source.
type CreateOAuthSourceRequest struct {
	Name                        string                      `json:"name"`
	Slug                        string                      `json:"slug,omitempty"`
	Enabled                     *bool                       `json:"enabled,omitempty"`
	ProviderType                string                      `json:"provider_type"`
	RequestTokenURL             string                      `json:"request_token_url,omitempty"`
	AuthorizationURL            string                      `json:"authorization_url,omitempty"`
	AccessTokenURL              string                      `json:"access_token_url,omitempty"`
	ProfileURL                  string                      `json:"profile_url,omitempty"`
	ConsumerKey                 string                      `json:"consumer_key"`
	ConsumerSecret              string                      `json:"consumer_secret"`
	AdditionalScopes            string                      `json:"additional_scopes,omitempty"`
	OIDCWellKnownURL            string                      `json:"oidc_well_known_url,omitempty"`
	OIDCJWKSURL                 string                      `json:"oidc_jwks_url,omitempty"`
	OIDCJWKS                    map[string]any              `json:"oidc_jwks,omitempty"`
	AuthorizationCodeAuthMethod AuthorizationCodeAuthMethod `json:"authorization_code_auth_method,omitempty"`
	UserMatchingMode            UserMatchingMode            `json:"user_matching_mode,omitempty"`
	GroupMatchingMode           GroupMatchingMode           `json:"group_matching_mode,omitempty"`
	PolicyEngineMode            PolicyEngineMode            `json:"policy_engine_mode,omitempty"`
}

// ApplyDefaults fills optional fields. The slug is derived from the name
// when omitted.
func (r *CreateOAuthSourceRequest) ApplyDefaults() {
	r.Name = strings.TrimSpace(r.Name)
	if r.Slug == "" && r.Name != "" {
		r.Slug = slug.Make(r.Name)
	}
	if r.Enabled == nil {
		enabled := true
		r.Enabled = &enabled
	}
	if r.AuthorizationCodeAuthMethod == "" {
		r.AuthorizationCodeAuthMethod = AuthMethodBasicAuth
	}
	if r.UserMatchingMode == "" {
		r.UserMatchingMode = UserMatchingIdentifier
	}
	if r.GroupMatchingMode == "" {
		r.GroupMatchingMode = GroupMatchingIdentifier
	}
	if r.PolicyEngineMode == "" {
		r.PolicyEngineMode = PolicyEngineAny
	}
	if r.OIDCJWKS == nil {
		r.OIDCJWKS = map[string]any{}
	}
}

// Validate checks the request shape. Provider type membership and remote
// discovery are checked by the service.
func (r *CreateOAuthSourceRequest) Validate() []FieldError {
	var errors []FieldError

	if r.Name == "" {
		errors = append(errors, FieldError{Field: FieldName, Message: "name is required"})
	} else if len(r.Name) > 255 {
		errors = append(errors, FieldError{Field: FieldName, Message: "name must be at most 255 characters"})
	}
	errors = append(errors, validateSlug(r.Slug)...)
	if r.ProviderType == "" {
		errors = append(errors, FieldError{Field: FieldProviderType, Message: "provider_type is required"})
	}
	if r.ConsumerKey == "" {
		errors = append(errors, FieldError{Field: FieldConsumerKey, Message: "consumer_key is required"})
	}
	if r.ConsumerSecret == "" {
		errors = append(errors, FieldError{Field: FieldConsumerSecret, Message: "consumer_secret is required"})
	}

	errors = append(errors, validateURLs(map[string]string{
		FieldRequestTokenURL:  r.RequestTokenURL,
		FieldAuthorizationURL: r.AuthorizationURL,
		FieldAccessTokenURL:   r.AccessTokenURL,
		FieldProfileURL:       r.ProfileURL,
		FieldOIDCWellKnownURL: r.OIDCWellKnownURL,
		FieldOIDCJWKSURL:      r.OIDCJWKSURL,
	})...)
	errors = append(errors, validateModes(r.AuthorizationCodeAuthMethod, r.UserMatchingMode, r.GroupMatchingMode, r.PolicyEngineMode)...)

	return errors
}

// ToSource builds the source model from a defaulted request.
func (r *CreateOAuthSourceRequest) ToSource() *OAuthSource {
	enabled := true
	if r.Enabled != nil {
		enabled = *r.Enabled
	}
	return &OAuthSource{
		Name:                        r.Name,
		Slug:                        r.Slug,
		Enabled:                     enabled,
		ProviderType:                r.ProviderType,
		RequestTokenURL:             r.RequestTokenURL,
		AuthorizationURL:            r.AuthorizationURL,
		AccessTokenURL:              r.AccessTokenURL,
		ProfileURL:                  r.ProfileURL,
		ConsumerKey:                 r.ConsumerKey,
		AdditionalScopes:            r.AdditionalScopes,
		OIDCWellKnownURL:            r.OIDCWellKnownURL,
		OIDCJWKSURL:                 r.OIDCJWKSURL,
		OIDCJWKS:                    r.OIDCJWKS,
		AuthorizationCodeAuthMethod: r.AuthorizationCodeAuthMethod,
		UserMatchingMode:            r.UserMatchingMode,
		GroupMatchingMode:           r.GroupMatchingMode,
		PolicyEngineMode:            r.PolicyEngineMode,
	}
}

// UpdateOAuthSourceRequest represents a full (PUT) or partial (PATCH) update.
// Nil fields keep the stored value; an omitted consumer_secret keeps the
// stored secret.
type UpdateOAuthSourceRequest struct {
	Name                        *string                      `json:"name,omitempty"`
	Slug                        *string                      `json:"slug,omitempty"`
	Enabled                     *bool                        `json:"enabled,omitempty"`
	ProviderType                *string                      `json:"provider_type,omitempty"`
	RequestTokenURL             *string                      `json:"request_token_url,omitempty"`
	AuthorizationURL            *string                      `json:"authorization_url,omitempty"`
	AccessTokenURL              *string                      `json:"access_token_url,omitempty"`
	ProfileURL                  *string                      `json:"profile_url,omitempty"`
	ConsumerKey                 *string                      `json:"consumer_key,omitempty"`
	ConsumerSecret              *string                      `json:"consumer_secret,omitempty"`
	AdditionalScopes            *string                      `json:"additional_scopes,omitempty"`
	OIDCWellKnownURL            *string                      `json:"oidc_well_known_url,omitempty"`
	OIDCJWKSURL                 *string                      `json:"oidc_jwks_url,omitempty"`
	OIDCJWKS                    map[string]any               `json:"oidc_jwks,omitempty"`
	AuthorizationCodeAuthMethod *AuthorizationCodeAuthMethod `json:"authorization_code_auth_method,omitempty"`
	UserMatchingMode            *UserMatchingMode            `json:"user_matching_mode,omitempty"`
	GroupMatchingMode           *GroupMatchingMode           `json:"group_matching_mode,omitempty"`
	PolicyEngineMode            *PolicyEngineMode            `json:"policy_engine_mode,omitempty"`
}

// Validate checks the request shape. A full update requires the same fields
// as a create, except the write-only secret.
func (r *UpdateOAuthSourceRequest) Validate(full bool) []FieldError {
	var errors []FieldError

	required := []struct {
		field string
		value *string
	}{
		{FieldName, r.Name},
		{FieldProviderType, r.ProviderType},
		{FieldConsumerKey, r.ConsumerKey},
	}
	for _, f := range required {
		switch {
		case f.value == nil && full:
			errors = append(errors, FieldError{Field: f.field, Message: f.field + " is required"})
		case f.value != nil && strings.TrimSpace(*f.value) == "":
			errors = append(errors, FieldError{Field: f.field, Message: f.field + " cannot be empty"})
		}
	}
	if r.Name != nil && len(*r.Name) > 255 {
		errors = append(errors, FieldError{Field: FieldName, Message: "name must be at most 255 characters"})
	}
	if r.Slug != nil {
		errors = append(errors, validateSlug(*r.Slug)...)
	}
	if r.ConsumerSecret != nil && *r.ConsumerSecret == "" {
		errors = append(errors, FieldError{Field: FieldConsumerSecret, Message: "consumer_secret cannot be empty"})
	}

	errors = append(errors, validateURLs(map[string]string{
		FieldRequestTokenURL:  deref(r.RequestTokenURL),
		FieldAuthorizationURL: deref(r.AuthorizationURL),
		FieldAccessTokenURL:   deref(r.AccessTokenURL),
		FieldProfileURL:       deref(r.ProfileURL),
		FieldOIDCWellKnownURL: deref(r.OIDCWellKnownURL),
		FieldOIDCJWKSURL:      deref(r.OIDCJWKSURL),
	})...)

	var (
		authMethod AuthorizationCodeAuthMethod
		userMode   UserMatchingMode
		groupMode  GroupMatchingMode
		policyMode PolicyEngineMode
	)
	if r.AuthorizationCodeAuthMethod != nil {
		authMethod = *r.AuthorizationCodeAuthMethod
	}
	if r.UserMatchingMode != nil {
		userMode = *r.UserMatchingMode
	}
	if r.GroupMatchingMode != nil {
		groupMode = *r.GroupMatchingMode
	}
	if r.PolicyEngineMode != nil {
		policyMode = *r.PolicyEngineMode
	}
	errors = append(errors, validateModes(authMethod, userMode, groupMode, policyMode)...)

	return errors
}

// ChangesDiscovery reports whether the update points discovery at a
// different well-known document.
func (r *UpdateOAuthSourceRequest) ChangesDiscovery(current *OAuthSource) bool {
	return r.OIDCWellKnownURL != nil && *r.OIDCWellKnownURL != current.OIDCWellKnownURL
}

// ApplyTo overlays the set fields onto a copy of src and returns it.
func (r *UpdateOAuthSourceRequest) ApplyTo(src *OAuthSource) *OAuthSource {
	out := *src

	// Attributes inferred from the previous well-known document are dropped
	// when it changes, unless the request sets them explicitly.
	if r.ChangesDiscovery(src) {
		out.AuthorizationURL = ""
		out.AccessTokenURL = ""
		out.ProfileURL = ""
		out.OIDCJWKSURL = ""
		out.OIDCJWKS = map[string]any{}
	}

	setString(&out.Name, r.Name)
	setString(&out.Slug, r.Slug)
	setString(&out.ProviderType, r.ProviderType)
	setString(&out.RequestTokenURL, r.RequestTokenURL)
	setString(&out.AuthorizationURL, r.AuthorizationURL)
	setString(&out.AccessTokenURL, r.AccessTokenURL)
	setString(&out.ProfileURL, r.ProfileURL)
	setString(&out.ConsumerKey, r.ConsumerKey)
	setString(&out.AdditionalScopes, r.AdditionalScopes)
	setString(&out.OIDCWellKnownURL, r.OIDCWellKnownURL)
	setString(&out.OIDCJWKSURL, r.OIDCJWKSURL)

	if r.Enabled != nil {
		out.Enabled = *r.Enabled
	}
	if r.OIDCJWKS != nil {
		out.OIDCJWKS = r.OIDCJWKS
	}
	if r.AuthorizationCodeAuthMethod != nil {
		out.AuthorizationCodeAuthMethod = *r.AuthorizationCodeAuthMethod
	}
	if r.UserMatchingMode != nil {
		out.UserMatchingMode = *r.UserMatchingMode
	}
	if r.GroupMatchingMode != nil {
		out.GroupMatchingMode = *r.GroupMatchingMode
	}
	if r.PolicyEngineMode != nil {
		out.PolicyEngineMode = *r.PolicyEngineMode
	}

	out.Type = nil
	out.CallbackURL = ""
	return &out
}

// OAuthSourceFilter holds list query parameters.
type OAuthSourceFilter struct {
	Search        string
	Name          string
	Slug          string
	Enabled       *bool
	ProviderTypes []string
	HasJWKS       *bool
	Limit         int
	Offset        int
}

// Pagination bounds for source listing.
const (
	DefaultListLimit = 100
	MaxListLimit     = 1000
)

// Normalize clamps pagination values.
func (f *OAuthSourceFilter) Normalize() {
	if f.Limit <= 0 {
		f.Limit = DefaultListLimit
	}
	if f.Limit > MaxListLimit {
		f.Limit = MaxListLimit
	}
	if f.Offset < 0 {
		f.Offset = 0
	}
}

// OAuthSourceListResponse is a page of sources.
type OAuthSourceListResponse struct {
	Sources    []OAuthSource `json:"results"`
	TotalCount int           `json:"total_count"`
	Limit      int           `json:"limit"`
	Offset     int           `json:"offset"`
}

// DiscoverRequest asks for a discovery preview without persisting anything.
type DiscoverRequest struct {
	ProviderType     string `json:"provider_type"`
	AuthorizationURL string `json:"authorization_url,omitempty"`
	AccessTokenURL   string `json:"access_token_url,omitempty"`
	ProfileURL       string `json:"profile_url,omitempty"`
	OIDCWellKnownURL string `json:"oidc_well_known_url,omitempty"`
	OIDCJWKSURL      string `json:"oidc_jwks_url,omitempty"`
}

// Validate validates the discover request.
func (r *DiscoverRequest) Validate() []FieldError {
	var errors []FieldError
	if r.ProviderType == "" {
		errors = append(errors, FieldError{Field: FieldProviderType, Message: "provider_type is required"})
	}
	errors = append(errors, validateURLs(map[string]string{
		FieldAuthorizationURL: r.AuthorizationURL,
		FieldAccessTokenURL:   r.AccessTokenURL,
		FieldProfileURL:       r.ProfileURL,
		FieldOIDCWellKnownURL: r.OIDCWellKnownURL,
		FieldOIDCJWKSURL:      r.OIDCJWKSURL,
	})...)
	return errors
}

// Config converts the request to a validator candidate.
func (r *DiscoverRequest) Config() OAuthSourceConfig {
	return OAuthSourceConfig{
		ProviderType:     r.ProviderType,
		AuthorizationURL: r.AuthorizationURL,
		AccessTokenURL:   r.AccessTokenURL,
		ProfileURL:       r.ProfileURL,
		OIDCWellKnownURL: r.OIDCWellKnownURL,
		OIDCJWKSURL:      r.OIDCJWKSURL,
		OIDCJWKS:         map[string]any{},
	}
}

// JWKSKey summarizes one key of a fetched key set.
type JWKSKey struct {
	KeyID     string `json:"kid,omitempty"`
	KeyType   string `json:"kty"`
	Algorithm string `json:"alg,omitempty"`
	Use       string `json:"use,omitempty"`
}

// DiscoverResponse is the merged configuration a create would store.
type DiscoverResponse struct {
	OAuthSourceConfig
	Type *SourceTypeResponse `json:"type"`
	Keys []JWKSKey           `json:"keys"`
}

func validateSlug(s string) []FieldError {
	switch {
	case s == "":
		return []FieldError{{Field: FieldSlug, Message: "slug is required"}}
	case len(s) > 50:
		return []FieldError{{Field: FieldSlug, Message: "slug must be at most 50 characters"}}
	case !slugPattern.MatchString(s):
		return []FieldError{{Field: FieldSlug, Message: "slug must contain only letters, numbers, underscores or hyphens"}}
	}
	return nil
}

// validateURLs checks that every non-empty value is an absolute http(s) URL.
// Fields are reported in a fixed order.
func validateURLs(values map[string]string) []FieldError {
	var errors []FieldError
	for _, field := range []string{
		FieldRequestTokenURL, FieldAuthorizationURL, FieldAccessTokenURL,
		FieldProfileURL, FieldOIDCWellKnownURL, FieldOIDCJWKSURL,
	} {
		v, ok := values[field]
		if !ok || v == "" {
			continue
		}
		if !isHTTPURL(v) {
			errors = append(errors, FieldError{Field: field, Message: field + " must be a valid http or https URL"})
		}
	}
	return errors
}

func isHTTPURL(raw string) bool {
	u, err := url.ParseRequestURI(raw)
	if err != nil {
		return false
	}
	return (u.Scheme == "http" || u.Scheme == "https") && u.Host != ""
}

func validateModes(auth AuthorizationCodeAuthMethod, user UserMatchingMode, group GroupMatchingMode, policy PolicyEngineMode) []FieldError {
	var errors []FieldError
	if auth != "" && !validAuthMethods[auth] {
		errors = append(errors, FieldError{Field: FieldAuthorizationCodeAuthMethod, Message: "invalid authorization_code_auth_method"})
	}
	if user != "" && !validUserMatchingModes[user] {
		errors = append(errors, FieldError{Field: FieldUserMatchingMode, Message: "invalid user_matching_mode"})
	}
	if group != "" && !validGroupMatchingModes[group] {
		errors = append(errors, FieldError{Field: FieldGroupMatchingMode, Message: "invalid group_matching_mode"})
	}
	if policy != "" && !validPolicyEngineModes[policy] {
		errors = append(errors, FieldError{Field: FieldPolicyEngineMode, Message: "invalid policy_engine_mode"})
	}
	return errors
}

func setString(dst *string, v *string) {
	if v != nil {
		*dst = *v
	}
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
