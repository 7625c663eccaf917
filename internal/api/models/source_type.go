package models

import "github.com/janovincze/idbroker/internal/oidc/providers"

// SourceTypeResponse is the wire form of a provider type descriptor. Nil URLs
// serialize as null, meaning the value must be configured explicitly.
type SourceTypeResponse struct {
	Name             string  `json:"name"`
	VerboseName      string  `json:"verbose_name"`
	URLsCustomizable bool    `json:"urls_customizable"`
	RequestTokenURL  *string `json:"request_token_url"`
	AuthorizationURL *string `json:"authorization_url"`
	AccessTokenURL   *string `json:"access_token_url"`
	ProfileURL       *string `json:"profile_url"`
	OIDCWellKnownURL *string `json:"oidc_well_known_url"`
	OIDCJWKSURL      *string `json:"oidc_jwks_url"`
}

// NewSourceTypeResponse converts a registry descriptor.
func NewSourceTypeResponse(t providers.SourceType) *SourceTypeResponse {
	return &SourceTypeResponse{
		Name:             t.Name,
		VerboseName:      t.VerboseName,
		URLsCustomizable: t.URLsCustomizable,
		RequestTokenURL:  t.RequestTokenURL,
		AuthorizationURL: t.AuthorizationURL,
		AccessTokenURL:   t.AccessTokenURL,
		ProfileURL:       t.ProfileURL,
		OIDCWellKnownURL: t.OIDCWellKnownURL,
		OIDCJWKSURL:      t.OIDCJWKSURL,
	}
}
