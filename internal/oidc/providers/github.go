package providers

// GitHub returns the GitHub type. URLs stay customizable for GitHub Enterprise.
func GitHub() SourceType {
	return SourceType{
		Name:             "github",
		VerboseName:      "GitHub",
		URLsCustomizable: true,
		AuthorizationURL: url("https://github.com/login/oauth/authorize"),
		AccessTokenURL:   url("https://github.com/login/oauth/access_token"),
		ProfileURL:       url("https://api.github.com/user"),
	}
}

// GitLab returns the GitLab type, defaulting to gitlab.com.
func GitLab() SourceType {
	return SourceType{
		Name:             "gitlab",
		VerboseName:      "GitLab",
		URLsCustomizable: true,
		AuthorizationURL: url("https://gitlab.com/oauth/authorize"),
		AccessTokenURL:   url("https://gitlab.com/oauth/token"),
		ProfileURL:       url("https://gitlab.com/oauth/userinfo"),
		OIDCWellKnownURL: url("https://gitlab.com/.well-known/openid-configuration"),
		OIDCJWKSURL:      url("https://gitlab.com/oauth/discovery/keys"),
	}
}
