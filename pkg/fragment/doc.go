// Package fragment treats the URL fragment as an ordered key/value store.
//
// A fragment such as "#tab=inbox&q=go+modules" is encoded exactly like a
// query string. Values parses and serializes it while keeping pair order;
// Store reads and writes single keys of a Location's fragment, re-parsing
// the live fragment on every call because other code may change it at any
// time.
//
// Location abstracts the document: MemoryLocation is an in-process
// implementation with history and queued hashchange events, and the bridge
// package provides one backed by a real browser tab.
//
//	loc := fragment.NewMemoryLocation("https://app.example/inbox")
//	store := fragment.New(loc)
//	store.Write("tab", "unread")   // https://app.example/inbox#tab=unread
//	store.Remove("tab")            // https://app.example/inbox
package fragment
