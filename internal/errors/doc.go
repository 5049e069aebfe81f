// Package errors provides coded, actionable errors for the hashstate CLI and
// config loader.
//
// Each code (e.g., "H101") maps to a registered template with a category,
// a short message, a longer explanation and a documentation URL:
//   - H1xx: config
//   - H2xx: transport
//   - H3xx: codec
//   - H4xx: oauth
//   - H5xx: cli
//
// # Usage
//
//	err := errors.New("H102").
//	    WithLocation("hashstate.toml", 7, 0).
//	    WithSuggestion("Durations are strings, e.g. debounce = \"250ms\"")
//
//	fmt.Println(err.Format())
//	// Output:
//	// ERROR H102: Invalid config file
//	//
//	//   hashstate.toml:7
//	//
//	//        5 │ [[bindings]]
//	//        6 │ key = "page"
//	//   →    7 │ debounce = 250
//	//        8 │
//	//
//	//   Hint: Durations are strings, e.g. debounce = "250ms"
//
// The engine in pkg/hashstate does not use this package; its errors are
// plain typed errors that callers match with errors.As.
package errors
