package oauth

import (
	"crypto/rand"
	"encoding/hex"

	"golang.org/x/oauth2"
)

// NewNonce returns 16 random bytes as lowercase hex.
func NewNonce() (string, error) {
	var b [16]byte
	if _, err := rand.Read(b[:]); err != nil {
		return "", err
	}
	return hex.EncodeToString(b[:]), nil
}

// Request holds the per-login parameters of an authorization URL.
type Request struct {
	ClientID    string
	RedirectURI string
	Nonce       string

	// State is sent when non-empty.
	State string

	// Scopes replace the provider's default scopes when non-empty.
	Scopes []string

	// ResponseType replaces the provider's response type when non-empty.
	ResponseType string
}

// AuthURL builds the authorization URL for p.
func AuthURL(p Provider, req Request) string {
	scopes := p.Scopes
	if len(req.Scopes) > 0 {
		scopes = req.Scopes
	}
	responseType := p.ResponseType
	if req.ResponseType != "" {
		responseType = req.ResponseType
	}

	cfg := oauth2.Config{
		ClientID:    req.ClientID,
		Endpoint:    p.Endpoint,
		RedirectURL: req.RedirectURI,
		Scopes:      scopes,
	}

	opts := []oauth2.AuthCodeOption{
		oauth2.SetAuthURLParam("response_type", responseType),
	}
	if req.Nonce != "" {
		opts = append(opts, oauth2.SetAuthURLParam("nonce", req.Nonce))
	}
	if p.ResponseMode != "" {
		opts = append(opts, oauth2.SetAuthURLParam("response_mode", p.ResponseMode))
	}
	return cfg.AuthCodeURL(req.State, opts...)
}
