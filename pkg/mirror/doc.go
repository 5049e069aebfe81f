// Package mirror provides session-scoped stores that a hashstate binding can
// keep in step with the URL fragment.
//
// Every store here satisfies hashstate.MirrorStore: Read, Write and Remove on
// string keys holding the same encoded strings the fragment holds. A store
// belongs to one session, the way a browser's sessionStorage belongs to one
// tab.
//
//   - Memory: in-process map, the default
//   - Sessions: hands out one Memory per session id and sweeps idle ones
//   - Redis: shared across servers, entries expire after a TTL
//   - S3: one object per key under prefix/session/
//
// Example:
//
//	sessions := mirror.NewSessions(mirror.WithIdleTimeout(time.Hour))
//	defer sessions.Close()
//
//	b := hashstate.Bind("filter", frag, hashstate.Options[string]{
//	    Mirror:     sessions.Scope(sessionID),
//	    SyncMirror: true,
//	})
package mirror
