package providers

// Discord returns the Discord type.
func Discord() SourceType {
	return SourceType{
		Name:             "discord",
		VerboseName:      "Discord",
		AuthorizationURL: url("https://discord.com/api/oauth2/authorize"),
		AccessTokenURL:   url("https://discord.com/api/oauth2/token"),
		ProfileURL:       url("https://discord.com/api/users/@me"),
	}
}

// Facebook returns the Facebook type.
func Facebook() SourceType {
	return SourceType{
		Name:             "facebook",
		VerboseName:      "Facebook",
		AuthorizationURL: url("https://www.facebook.com/v7.0/dialog/oauth"),
		AccessTokenURL:   url("https://graph.facebook.com/v7.0/oauth/access_token"),
		ProfileURL:       url("https://graph.facebook.com/v7.0/me?fields=id,name,email"),
	}
}

// Twitter returns the Twitter type (OAuth 2.0 with PKCE).
func Twitter() SourceType {
	return SourceType{
		Name:             "twitter",
		VerboseName:      "Twitter",
		AuthorizationURL: url("https://twitter.com/i/oauth2/authorize"),
		AccessTokenURL:   url("https://api.twitter.com/2/oauth2/token"),
		ProfileURL:       url("https://api.twitter.com/2/users/me"),
	}
}

// Reddit returns the Reddit type.
func Reddit() SourceType {
	return SourceType{
		Name:             "reddit",
		VerboseName:      "Reddit",
		AuthorizationURL: url("https://www.reddit.com/api/v1/authorize"),
		AccessTokenURL:   url("https://www.reddit.com/api/v1/access_token"),
		ProfileURL:       url("https://oauth.reddit.com/api/v1/me"),
	}
}

// Twitch returns the Twitch type.
func Twitch() SourceType {
	return SourceType{
		Name:             "twitch",
		VerboseName:      "Twitch",
		AuthorizationURL: url("https://id.twitch.tv/oauth2/authorize"),
		AccessTokenURL:   url("https://id.twitch.tv/oauth2/token"),
		ProfileURL:       url("https://id.twitch.tv/oauth2/userinfo"),
	}
}

// Patreon returns the Patreon type.
func Patreon() SourceType {
	return SourceType{
		Name:             "patreon",
		VerboseName:      "Patreon",
		AuthorizationURL: url("https://www.patreon.com/oauth2/authorize"),
		AccessTokenURL:   url("https://www.patreon.com/api/oauth2/token"),
		ProfileURL:       url("https://www.patreon.com/api/oauth2/v2/identity"),
	}
}
