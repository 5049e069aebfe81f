package fragment

// Store reads and writes individual keys of a Location's fragment. It holds
// no snapshot: every call parses the live fragment.
type Store struct {
	loc Location
}

// New returns a Store over loc.
func New(loc Location) *Store {
	return &Store{loc: loc}
}

// Location returns the underlying location.
func (s *Store) Location() Location {
	return s.loc
}

// Snapshot parses the current fragment.
func (s *Store) Snapshot() Values {
	return Parse(s.loc.Hash())
}

// Read returns the value stored under key. It never fails.
func (s *Store) Read(key string) (string, bool, error) {
	v, ok := s.Snapshot().Get(key)
	return v, ok, nil
}

// Write stores encoded under key. The location is only touched when the
// serialized fragment actually changes.
func (s *Store) Write(key, encoded string) error {
	current := s.loc.Hash()
	values := Parse(current)
	values.Set(key, encoded)

	next := values.Encode()
	if next == current {
		return nil
	}
	return s.loc.SetHash(next)
}

// Remove deletes key. When no pairs remain the fragment is cleared
// entirely rather than left as a bare '#'.
func (s *Store) Remove(key string) error {
	current := s.loc.Hash()
	values := Parse(current)
	values.Delete(key)

	if values.Len() == 0 {
		return s.loc.ClearHash()
	}
	next := values.Encode()
	if next == current {
		return nil
	}
	return s.loc.SetHash(next)
}

// Clear drops the whole fragment.
func (s *Store) Clear() error {
	return s.loc.ClearHash()
}

// Subscribe registers fn for the location's hashchange notifications.
func (s *Store) Subscribe(fn func()) (cancel func()) {
	return s.loc.OnHashChange(fn)
}
