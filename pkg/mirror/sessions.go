package mirror

import (
	"sync"
	"time"
)

// Sessions hands out one Memory store per session id and forgets sessions
// that have been idle longer than the idle timeout.
type Sessions struct {
	mu      sync.Mutex
	scopes  map[string]*scope
	idle    time.Duration
	closed  bool
	done    chan struct{}
	nowFunc func() time.Time
}

type scope struct {
	store    *Memory
	lastUsed time.Time
}

// SessionsOption configures Sessions.
type SessionsOption func(*sessionsConfig)

type sessionsConfig struct {
	idleTimeout     time.Duration
	cleanupInterval time.Duration
}

// WithIdleTimeout sets how long an unused session is kept.
// Default: 30 minutes.
func WithIdleTimeout(d time.Duration) SessionsOption {
	return func(c *sessionsConfig) {
		c.idleTimeout = d
	}
}

// WithCleanupInterval sets how often idle sessions are swept.
// Default: 1 minute.
func WithCleanupInterval(d time.Duration) SessionsOption {
	return func(c *sessionsConfig) {
		c.cleanupInterval = d
	}
}

// NewSessions creates a session registry and starts its sweeper.
func NewSessions(opts ...SessionsOption) *Sessions {
	cfg := &sessionsConfig{
		idleTimeout:     30 * time.Minute,
		cleanupInterval: 1 * time.Minute,
	}
	for _, opt := range opts {
		opt(cfg)
	}

	s := &Sessions{
		scopes:  make(map[string]*scope),
		idle:    cfg.idleTimeout,
		done:    make(chan struct{}),
		nowFunc: time.Now,
	}
	go s.cleanupLoop(cfg.cleanupInterval)
	return s
}

// Scope returns the store for session id, creating it on first use. After
// Close it returns a fresh store that is not tracked.
func (s *Sessions) Scope(id string) *Memory {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return NewMemory()
	}
	sc, ok := s.scopes[id]
	if !ok {
		sc = &scope{store: NewMemory()}
		s.scopes[id] = sc
	}
	sc.lastUsed = s.nowFunc()
	return sc.store
}

// Drop forgets session id.
func (s *Sessions) Drop(id string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.scopes, id)
}

// Len returns the number of live sessions.
func (s *Sessions) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.scopes)
}

// Close stops the sweeper and forgets every session.
func (s *Sessions) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return nil
	}
	s.closed = true
	close(s.done)
	s.scopes = nil
	return nil
}

func (s *Sessions) cleanupLoop(interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			s.cleanup()
		case <-s.done:
			return
		}
	}
}

// cleanup drops sessions idle for longer than the idle timeout.
func (s *Sessions) cleanup() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return
	}
	cutoff := s.nowFunc().Add(-s.idle)
	for id, sc := range s.scopes {
		if sc.lastUsed.Before(cutoff) {
			delete(s.scopes, id)
		}
	}
}
