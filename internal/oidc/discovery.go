package oidc

import "fmt"

// Well-known discovery document keys.
const (
	KeyIssuer                = "issuer"
	KeyAuthorizationEndpoint = "authorization_endpoint"
	KeyTokenEndpoint         = "token_endpoint"
	KeyUserInfoEndpoint      = "userinfo_endpoint"
	KeyJWKSURI               = "jwks_uri"
	KeyScopesSupported       = "scopes_supported"
)

// DiscoveryConfig is the typed subset of a well-known document.
type DiscoveryConfig struct {
	Issuer                string   `json:"issuer"`
	AuthorizationEndpoint string   `json:"authorization_endpoint"`
	TokenEndpoint         string   `json:"token_endpoint"`
	UserInfoEndpoint      string   `json:"userinfo_endpoint"`
	JWKSURI               string   `json:"jwks_uri"`
	ScopesSupported       []string `json:"scopes_supported,omitempty"`
}

// HasIssuer reports whether doc carries an issuer key, which distinguishes a
// discovery document from unrelated JSON.
func HasIssuer(doc map[string]any) bool {
	_, ok := doc[KeyIssuer]
	return ok
}

// StringValue returns the value at key as a string. Absent and null values
// yield the empty string.
func StringValue(doc map[string]any, key string) string {
	v, ok := doc[key]
	if !ok || v == nil {
		return ""
	}
	if s, ok := v.(string); ok {
		return s
	}
	return fmt.Sprint(v)
}

// ParseDiscoveryConfig extracts the typed fields from a raw well-known document.
func ParseDiscoveryConfig(doc map[string]any) DiscoveryConfig {
	cfg := DiscoveryConfig{
		Issuer:                StringValue(doc, KeyIssuer),
		AuthorizationEndpoint: StringValue(doc, KeyAuthorizationEndpoint),
		TokenEndpoint:         StringValue(doc, KeyTokenEndpoint),
		UserInfoEndpoint:      StringValue(doc, KeyUserInfoEndpoint),
		JWKSURI:               StringValue(doc, KeyJWKSURI),
	}

	if scopes, ok := doc[KeyScopesSupported].([]any); ok {
		for _, s := range scopes {
			if str, ok := s.(string); ok {
				cfg.ScopesSupported = append(cfg.ScopesSupported, str)
			}
		}
	}

	return cfg
}
