package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/vango-go/hashstate/internal/errors"
	"github.com/vango-go/hashstate/pkg/oauth"
)

func authURLCmd(configPath *string) *cobra.Command {
	var (
		provider    string
		clientID    string
		redirectURI string
		state       string
		nonce       string
		scopes      []string
	)

	cmd := &cobra.Command{
		Use:   "auth-url",
		Short: "Build an OAuth authorization URL",
		Long: `Build an OAuth authorization URL for Google or Apple sign-in.

Unset flags fall back to the oauth section of the config. A fresh nonce
is generated unless --nonce is given; it is printed after the URL so the
returned ID token can be checked against it.

Examples:
  hashstate auth-url --provider=google --client-id=123.apps.googleusercontent.com --redirect-uri=https://app.example.com
  hashstate auth-url --provider=apple --state=xyz`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(*configPath)
			if err != nil {
				return err
			}
			if provider == "" {
				provider = cfg.OAuth.Provider
			}
			if clientID == "" {
				clientID = cfg.OAuth.ClientID
			}
			if redirectURI == "" {
				redirectURI = cfg.OAuth.RedirectURI
			}

			p, ok := oauth.Lookup(provider)
			if !ok {
				return errors.New("H401").
					WithDetail(fmt.Sprintf("unknown provider %q", provider)).
					WithSuggestion("Use --provider=google or --provider=apple")
			}
			if clientID == "" {
				return errors.New("H402").
					WithSuggestion("Pass --client-id or set oauth.clientId in the config")
			}
			if nonce == "" {
				nonce, err = oauth.NewNonce()
				if err != nil {
					return errors.New("H403").Wrap(err)
				}
			}

			out := cmd.OutOrStdout()
			fmt.Fprintln(out, oauth.AuthURL(p, oauth.Request{
				ClientID:    clientID,
				RedirectURI: redirectURI,
				Nonce:       nonce,
				State:       state,
				Scopes:      scopes,
			}))
			fmt.Fprintf(out, "nonce: %s\n", nonce)
			return nil
		},
	}

	cmd.Flags().StringVar(&provider, "provider", "", "Provider (google, apple)")
	cmd.Flags().StringVar(&clientID, "client-id", "", "OAuth client ID")
	cmd.Flags().StringVar(&redirectURI, "redirect-uri", "", "Redirect URI registered with the provider")
	cmd.Flags().StringVar(&state, "state", "", "Opaque state echoed back in the redirect")
	cmd.Flags().StringVar(&nonce, "nonce", "", "Nonce to send (default: random)")
	cmd.Flags().StringSliceVar(&scopes, "scope", nil, "Scopes to request (default: the provider's)")

	return cmd
}
