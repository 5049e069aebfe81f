package oauth

import "github.com/vango-go/hashstate/pkg/fragment"

// Fragment parameters a provider may redirect back with.
const (
	ParamCode        = "code"
	ParamIDToken     = "id_token"
	ParamAccessToken = "access_token"
	ParamError       = "error"
	ParamState       = "state"
)

// Redirect is the result a provider left in the fragment.
type Redirect struct {
	Code        string
	IDToken     string
	AccessToken string
	State       string
	Error       string
}

// ParseRedirect reads the provider's result from a parsed fragment.
func ParseRedirect(values fragment.Values) Redirect {
	get := func(key string) string {
		v, _ := values.Get(key)
		return v
	}
	return Redirect{
		Code:        get(ParamCode),
		IDToken:     get(ParamIDToken),
		AccessToken: get(ParamAccessToken),
		State:       get(ParamState),
		Error:       get(ParamError),
	}
}

// Empty reports whether the fragment held no result at all.
func (r Redirect) Empty() bool {
	return r.Code == "" && r.IDToken == "" && r.AccessToken == "" && r.Error == ""
}

// Succeeded reports whether r carries one of p's credentials and no error.
func (r Redirect) Succeeded(p Provider) bool {
	if r.Error != "" {
		return false
	}
	creds := p.Credentials
	if len(creds) == 0 {
		creds = []string{ParamCode, ParamIDToken, ParamAccessToken}
	}
	for _, c := range creds {
		if r.param(c) != "" {
			return true
		}
	}
	return false
}

func (r Redirect) param(name string) string {
	switch name {
	case ParamCode:
		return r.Code
	case ParamIDToken:
		return r.IDToken
	case ParamAccessToken:
		return r.AccessToken
	}
	return ""
}
