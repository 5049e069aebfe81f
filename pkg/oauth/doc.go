// Package oauth implements browser login flows whose result comes back in the
// URL fragment (OAuth 2.0 implicit grant, Sign in with Apple).
//
// A Flow is built over the same fragment.Store a hashstate binding uses:
//
//	flow := oauth.NewFlow(oauth.Google(), fragment.New(conn), oauth.Callbacks{
//	    OnSuccess: func(r oauth.Redirect) { verify(r.IDToken) },
//	    OnError:   func(code string) { log.Println("login failed:", code) },
//	}, nil)
//
//	flow.Consume() // on page load, handles a redirect back from the provider
//
//	// later, on a login click
//	flow.Login(conn, oauth.Request{ClientID: clientID, RedirectURI: origin})
//
// Authorization URLs are built with golang.org/x/oauth2.
package oauth
