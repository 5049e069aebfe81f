package fragment

// Location is the document location a fragment lives in. It is shared,
// process-wide state: other code may change it between any two calls, so
// callers re-read Hash instead of caching it.
type Location interface {
	// Hash returns the fragment without the leading '#'.
	Hash() string

	// SetHash replaces the fragment, adding a history entry. The host
	// reports the change to OnHashChange listeners asynchronously.
	SetHash(hash string) error

	// ClearHash drops the fragment entirely (no dangling '#') by pushing a
	// history entry for the path and query alone. No change notification
	// follows.
	ClearHash() error

	// OnHashChange registers fn for hashchange notifications and returns a
	// function that removes it.
	OnHashChange(fn func()) (cancel func())
}

// Navigator sends the document to another URL.
type Navigator interface {
	Navigate(url string) error
}
