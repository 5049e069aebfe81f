package oauth

import (
	"strings"

	"golang.org/x/oauth2"
)

// Provider describes an authorization endpoint that returns its result in
// the URL fragment.
type Provider struct {
	// Name identifies the provider ("google", "apple").
	Name string

	// Endpoint is the provider's authorization endpoint.
	Endpoint oauth2.Endpoint

	// Scopes requested by default.
	Scopes []string

	// ResponseType is sent as response_type.
	ResponseType string

	// ResponseMode is sent as response_mode when set.
	ResponseMode string

	// Credentials lists the redirect parameters that mean success.
	Credentials []string
}

// Google returns the Google implicit-flow provider. It asks for both an ID
// token and an access token.
func Google() Provider {
	return Provider{
		Name: "google",
		Endpoint: oauth2.Endpoint{
			AuthURL:  "https://accounts.google.com/o/oauth2/v2/auth",
			TokenURL: "https://oauth2.googleapis.com/token",
		},
		Scopes:       []string{"openid", "email", "profile"},
		ResponseType: "id_token token",
		Credentials:  []string{ParamIDToken, ParamAccessToken},
	}
}

// Apple returns the Sign in with Apple provider, requesting an
// authorization code posted back to the redirect URI.
func Apple() Provider {
	return Provider{
		Name: "apple",
		Endpoint: oauth2.Endpoint{
			AuthURL:  "https://appleid.apple.com/auth/authorize",
			TokenURL: "https://appleid.apple.com/auth/token",
		},
		Scopes:       []string{"name", "email"},
		ResponseType: "code",
		ResponseMode: "form_post",
		Credentials:  []string{ParamCode, ParamIDToken},
	}
}

// Lookup returns the preset provider called name.
func Lookup(name string) (Provider, bool) {
	switch strings.ToLower(name) {
	case "google":
		return Google(), true
	case "apple":
		return Apple(), true
	}
	return Provider{}, false
}
