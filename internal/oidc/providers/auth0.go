package providers

// Auth0 returns the Auth0 type. Tenants live under https://<tenant>.auth0.com.
func Auth0() SourceType {
	return SourceType{
		Name:             "auth0",
		VerboseName:      "Auth0",
		URLsCustomizable: true,
	}
}
