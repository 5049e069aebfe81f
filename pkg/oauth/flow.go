package oauth

import (
	"log/slog"
	"sync"

	"github.com/vango-go/hashstate/pkg/fragment"
)

// State is the progress of a login flow.
type State int

const (
	Idle State = iota
	Loading
	Done
	Failed
)

func (s State) String() string {
	switch s {
	case Idle:
		return "idle"
	case Loading:
		return "loading"
	case Done:
		return "done"
	case Failed:
		return "failed"
	}
	return "unknown"
}

// ErrStateMismatch is reported to OnError when the redirect's state does not
// match the one sent by Login.
const ErrStateMismatch = "state_mismatch"

// Callbacks receive the outcome of Consume.
type Callbacks struct {
	OnSuccess func(r Redirect)
	OnError   func(code string)
}

// Flow drives one login: Login sends the tab to the provider, and Consume
// picks up the result the provider left in the fragment.
type Flow struct {
	provider Provider
	store    *fragment.Store
	cb       Callbacks
	logger   *slog.Logger

	mu            sync.Mutex
	state         State
	nonce         string
	expectedState string
}

// NewFlow creates a flow for p over the fragment in store. A nil logger
// uses slog.Default().
func NewFlow(p Provider, store *fragment.Store, cb Callbacks, logger *slog.Logger) *Flow {
	if logger == nil {
		logger = slog.Default()
	}
	return &Flow{
		provider: p,
		store:    store,
		cb:       cb,
		logger:   logger.With("component", "oauth", "provider", p.Name),
	}
}

// State returns the current state.
func (f *Flow) State() State {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.state
}

// Nonce returns the nonce sent by the last Login.
func (f *Flow) Nonce() string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.nonce
}

// Login builds the authorization URL for req, generating a nonce when req
// has none, and navigates there. It returns the URL.
func (f *Flow) Login(nav fragment.Navigator, req Request) (string, error) {
	if req.Nonce == "" {
		nonce, err := NewNonce()
		if err != nil {
			return "", err
		}
		req.Nonce = nonce
	}

	f.mu.Lock()
	f.nonce = req.Nonce
	f.expectedState = req.State
	f.mu.Unlock()

	url := AuthURL(f.provider, req)
	return url, f.Begin(nav, url)
}

// Begin marks the flow Loading and navigates to url. If navigation fails
// the flow returns to Idle.
func (f *Flow) Begin(nav fragment.Navigator, url string) error {
	f.setState(Loading)
	if err := nav.Navigate(url); err != nil {
		f.setState(Idle)
		return err
	}
	return nil
}

// Consume reads the fragment once. An error parameter goes to OnError. A
// credential goes to OnSuccess, after which the fragment is dropped from the
// URL with a new history entry. A fragment with neither leaves the flow
// untouched.
func (f *Flow) Consume() Redirect {
	r := ParseRedirect(f.store.Snapshot())

	f.mu.Lock()
	expected := f.expectedState
	f.mu.Unlock()

	switch {
	case r.Error != "":
		f.fail(r.Error)
	case r.Succeeded(f.provider):
		if expected != "" && r.State != expected {
			f.fail(ErrStateMismatch)
			return r
		}
		f.setState(Loading)
		if f.cb.OnSuccess != nil {
			f.cb.OnSuccess(r)
		}
		if err := f.store.Clear(); err != nil {
			f.logger.Warn("clear fragment failed", "error", err)
		}
		f.setState(Done)
	}
	return r
}

func (f *Flow) fail(code string) {
	f.logger.Info("login failed", "error", code)
	f.setState(Failed)
	if f.cb.OnError != nil {
		f.cb.OnError(code)
	}
}

func (f *Flow) setState(s State) {
	f.mu.Lock()
	f.state = s
	f.mu.Unlock()
}
