// Package providers defines the OAuth/OIDC source types an administrator can configure.
package providers

// AzureAD returns the multi-tenant Azure AD type.
func AzureAD() SourceType {
	return SourceType{
		Name:             "azuread",
		VerboseName:      "Azure AD",
		URLsCustomizable: true,
		AuthorizationURL: url("https://login.microsoftonline.com/common/oauth2/v2.0/authorize"),
		AccessTokenURL:   url("https://login.microsoftonline.com/common/oauth2/v2.0/token"),
		ProfileURL:       url("https://graph.microsoft.com/v1.0/me"),
		OIDCWellKnownURL: url("https://login.microsoftonline.com/common/.well-known/openid-configuration"),
		OIDCJWKSURL:      url("https://login.microsoftonline.com/common/discovery/v2.0/keys"),
	}
}

// EntraID returns the Microsoft Entra ID type. It shares the Azure AD
// endpoints but uses the OIDC userinfo endpoint for profiles.
func EntraID() SourceType {
	return SourceType{
		Name:             "entraid",
		VerboseName:      "Entra ID",
		URLsCustomizable: true,
		AuthorizationURL: url("https://login.microsoftonline.com/common/oauth2/v2.0/authorize"),
		AccessTokenURL:   url("https://login.microsoftonline.com/common/oauth2/v2.0/token"),
		ProfileURL:       url("https://graph.microsoft.com/oidc/userinfo"),
		OIDCWellKnownURL: url("https://login.microsoftonline.com/common/v2.0/.well-known/openid-configuration"),
		OIDCJWKSURL:      url("https://login.microsoftonline.com/common/discovery/v2.0/keys"),
	}
}
