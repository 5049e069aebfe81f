package fragment

import (
	"slices"
	"strings"
	"sync"
)

// maxDispatchRounds bounds Dispatch when listeners keep changing the hash.
const maxDispatchRounds = 64

// MemoryLocation is an in-process Location with a session history. Like a
// browser it queues a hashchange event whenever the fragment changes through
// SetHash, Navigate or history traversal, and like pushState ClearHash
// queues nothing. Queued events are delivered by Dispatch, which stands in
// for the host's event loop.
type MemoryLocation struct {
	mu        sync.Mutex
	history   []entry
	index     int
	listeners map[uint64]func()
	nextID    uint64
	queued    int
	left      []string
}

type entry struct {
	base    string // scheme, host and path
	search  string // without '?'
	hash    string // without '#'
	hasHash bool
}

func (e entry) href() string {
	var b strings.Builder
	b.WriteString(e.base)
	if e.search != "" {
		b.WriteByte('?')
		b.WriteString(e.search)
	}
	if e.hasHash {
		b.WriteByte('#')
		b.WriteString(e.hash)
	}
	return b.String()
}

func parseEntry(rawURL string) entry {
	rest, hash, hasHash := strings.Cut(rawURL, "#")
	base, search, _ := strings.Cut(rest, "?")
	return entry{base: base, search: search, hash: hash, hasHash: hasHash}
}

// NewMemoryLocation returns a location positioned at rawURL.
func NewMemoryLocation(rawURL string) *MemoryLocation {
	return &MemoryLocation{
		history:   []entry{parseEntry(rawURL)},
		listeners: make(map[uint64]func()),
	}
}

// Hash returns the current fragment without '#'.
func (l *MemoryLocation) Hash() string {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.history[l.index].hash
}

// HasFragment reports whether the URL carries a '#', even an empty one.
func (l *MemoryLocation) HasFragment() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.history[l.index].hasHash
}

// Href returns the full current URL.
func (l *MemoryLocation) Href() string {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.history[l.index].href()
}

// SetHash sets the fragment. Setting the fragment it already has is a no-op.
func (l *MemoryLocation) SetHash(hash string) error {
	hash = strings.TrimPrefix(hash, "#")

	l.mu.Lock()
	defer l.mu.Unlock()

	cur := l.history[l.index]
	if cur.hasHash && cur.hash == hash {
		return nil
	}
	l.pushLocked(entry{base: cur.base, search: cur.search, hash: hash, hasHash: true})
	l.queued++
	return nil
}

// ClearHash pushes the current path and query without a fragment.
func (l *MemoryLocation) ClearHash() error {
	l.mu.Lock()
	defer l.mu.Unlock()

	cur := l.history[l.index]
	l.pushLocked(entry{base: cur.base, search: cur.search})
	return nil
}

// Navigate follows ref. A ref starting with '#', or a URL that differs
// from the current one only in its fragment, stays in the document and
// behaves like SetHash. Any other URL leaves the document; it is recorded
// for Navigations and becomes the current entry without a hashchange.
func (l *MemoryLocation) Navigate(ref string) error {
	if strings.HasPrefix(ref, "#") {
		return l.SetHash(ref)
	}

	next := parseEntry(ref)

	l.mu.Lock()
	defer l.mu.Unlock()

	cur := l.history[l.index]
	if next.base == cur.base && next.search == cur.search {
		if next.hasHash == cur.hasHash && next.hash == cur.hash {
			return nil
		}
		l.pushLocked(next)
		if next.hash != cur.hash {
			l.queued++
		}
		return nil
	}

	l.left = append(l.left, ref)
	l.pushLocked(next)
	return nil
}

// Navigations returns every URL Navigate left the document for.
func (l *MemoryLocation) Navigations() []string {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]string(nil), l.left...)
}

// Back moves one entry back in history. It reports false at the start.
func (l *MemoryLocation) Back() bool {
	return l.traverse(-1)
}

// Forward moves one entry forward in history. It reports false at the end.
func (l *MemoryLocation) Forward() bool {
	return l.traverse(1)
}

func (l *MemoryLocation) traverse(delta int) bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	target := l.index + delta
	if target < 0 || target >= len(l.history) {
		return false
	}
	from, to := l.history[l.index], l.history[target]
	l.index = target
	if from.base == to.base && from.search == to.search && from.hash != to.hash {
		l.queued++
	}
	return true
}

// HistoryLen returns the number of history entries.
func (l *MemoryLocation) HistoryLen() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.history)
}

// OnHashChange registers fn.
func (l *MemoryLocation) OnHashChange(fn func()) (cancel func()) {
	l.mu.Lock()
	defer l.mu.Unlock()

	l.nextID++
	id := l.nextID
	l.listeners[id] = fn
	return func() {
		l.mu.Lock()
		defer l.mu.Unlock()
		delete(l.listeners, id)
	}
}

// Pending returns the number of queued hashchange events.
func (l *MemoryLocation) Pending() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.queued
}

// Dispatch delivers queued hashchange events to the listeners registered at
// delivery time, including events queued by the listeners themselves. It
// returns the number of events delivered.
func (l *MemoryLocation) Dispatch() int {
	delivered := 0
	for round := 0; round < maxDispatchRounds; round++ {
		l.mu.Lock()
		n := l.queued
		l.queued = 0
		ids := make([]uint64, 0, len(l.listeners))
		for id := range l.listeners {
			ids = append(ids, id)
		}
		l.mu.Unlock()

		if n == 0 {
			return delivered
		}
		slices.Sort(ids)
		for i := 0; i < n; i++ {
			for _, id := range ids {
				// A listener may remove another one mid-dispatch.
				l.mu.Lock()
				fn, ok := l.listeners[id]
				l.mu.Unlock()
				if ok {
					fn()
				}
			}
			delivered++
		}
	}
	return delivered
}

func (l *MemoryLocation) pushLocked(e entry) {
	l.history = append(l.history[:l.index+1], e)
	l.index = len(l.history) - 1
}
