// Package providers defines the OAuth/OIDC source types an administrator can configure.
package providers

// GenericOIDC returns a fully customizable OpenID Connect type. Endpoints come
// from discovery or explicit configuration.
func GenericOIDC() SourceType {
	return SourceType{
		Name:             "generic-oidc",
		VerboseName:      "OpenID Connect",
		URLsCustomizable: true,
	}
}

// Keycloak returns the Keycloak type. Realms are deployment specific.
func Keycloak() SourceType {
	return SourceType{
		Name:             "keycloak",
		VerboseName:      "Keycloak",
		URLsCustomizable: true,
	}
}

// Mailcow returns the self-hosted mailcow type.
func Mailcow() SourceType {
	return SourceType{
		Name:             "mailcow",
		VerboseName:      "Mailcow",
		URLsCustomizable: true,
	}
}
