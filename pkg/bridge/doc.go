// Package bridge connects browser tabs to server-side hashstate bindings.
//
// A tab loads "<prefix>/client.js", which opens a websocket to
// "<prefix>/ws" and reports its fragment. Each tab becomes a *Conn, which
// implements fragment.Location:
//
//	srv := bridge.New(bridge.Config{
//	    OnConnect: func(ctx context.Context, c *bridge.Conn) {
//	        page := hashstate.Bind("page", fragment.New(c), hashstate.Options[int]{
//	            Initial: hashstate.Some(1),
//	        })
//	        go func() {
//	            <-ctx.Done()
//	            page.Close()
//	        }()
//	    },
//	})
//	http.ListenAndServe(":8080", srv)
//
// Wire format: JSON text frames of type Message. The tab sends "hello" once
// and "hashchange" whenever its fragment changes; the server sends "set",
// "clear" and "navigate".
package bridge
