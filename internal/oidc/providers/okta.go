package providers

// Okta returns the Okta type. Okta requires a tenant-specific URL such as
// https://your-domain.okta.com, so no endpoints are defaulted.
func Okta() SourceType {
	return SourceType{
		Name:             "okta",
		VerboseName:      "Okta",
		URLsCustomizable: true,
	}
}
