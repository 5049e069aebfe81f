// Package hashstate binds a typed value to one key of the URL fragment.
//
// A Binding keeps three sources of truth in step: the in-memory value, the
// fragment (the part of the URL after '#', encoded like a query string), and
// an optional session-scoped mirror store. Reads consult the mirror first,
// then the fragment, then the configured initial value. Writes go to the
// fragment and the mirror before the in-memory value changes, optionally
// coalesced through a debounce window.
//
// Example:
//
//	loc := fragment.NewMemoryLocation("https://app.example/inbox")
//	tab := hashstate.Bind("tab", fragment.New(loc), hashstate.Options[string]{
//	    Initial:  hashstate.Some("all"),
//	    Debounce: 300 * time.Millisecond,
//	    OnChange: func(next, prev hashstate.Optional[string]) {
//	        slog.Info("tab changed", "from", prev, "to", next)
//	    },
//	})
//	defer tab.Close()
//
//	tab.Set("unread") // fragment becomes #tab=unread after 300ms
//
// # Absent values
//
// Optional[T] models a value that is not there at all. An absent value is
// never written: SetOptional(None[T]()) is a no-op, and a binding without an
// initial value resolves to None when neither store holds the key.
//
// # Errors
//
// Nothing in this package panics or returns an error to the caller of Set,
// Clear or the change listener. Decode failures (*DecodeError), failed store
// reads (*ReadError) and failed encodes or writes (*WriteError) are routed to
// the binding's ErrorSink, which logs through slog by default. A failed
// decode falls back to the next source; a failed write leaves the in-memory
// value untouched.
//
// # Concurrency
//
// A Binding is safe for concurrent use. Store access, debounce expiry and
// change handling are serialized per binding, so two resolutions never
// interleave. OnChange and the ErrorSink run after that serialization is
// released and may call back into the binding.
package hashstate
