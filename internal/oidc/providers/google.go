package providers

// Google returns the Google type.
func Google() SourceType {
	return SourceType{
		Name:             "google",
		VerboseName:      "Google",
		AuthorizationURL: url("https://accounts.google.com/o/oauth2/auth"),
		AccessTokenURL:   url("https://oauth2.googleapis.com/token"),
		ProfileURL:       url("https://www.googleapis.com/oauth2/v1/userinfo"),
	}
}
