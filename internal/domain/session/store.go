package session

import (
	"context"
	"sync"
	"time"
)

const defaultIdleTTL = 30 * time.Minute

// StoreOption configures a Store.
type StoreOption func(*Store)

// WithIdleTTL sets how long an untouched session is kept.
func WithIdleTTL(ttl time.Duration) StoreOption {
	return func(st *Store) {
		if ttl > 0 {
			st.ttl = ttl
		}
	}
}

// WithNow replaces the store's time source.
func WithNow(now func() time.Time) StoreOption {
	return func(st *Store) {
		if now != nil {
			st.now = now
		}
	}
}

// WithEvictHook is called for every session removed by the janitor.
func WithEvictHook(f func(*Session)) StoreOption {
	return func(st *Store) { st.onEvict = f }
}

// Store keeps live sessions in memory and evicts idle ones.
type Store struct {
	mu       sync.RWMutex
	sessions map[string]*Session
	ttl      time.Duration
	now      func() time.Time
	onEvict  func(*Session)
}

// NewStore creates an empty store.
func NewStore(opts ...StoreOption) *Store {
	st := &Store{
		sessions: make(map[string]*Session),
		ttl:      defaultIdleTTL,
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(st)
	}
	return st
}

// Put adds or replaces a session.
func (st *Store) Put(s *Session) {
	st.mu.Lock()
	old := st.sessions[s.ID()]
	st.sessions[s.ID()] = s
	st.mu.Unlock()
	if old != nil && old != s {
		old.Close()
	}
}

// Get returns the session and marks it active.
func (st *Store) Get(id string) (*Session, error) {
	st.mu.RLock()
	s, ok := st.sessions[id]
	st.mu.RUnlock()
	if !ok {
		return nil, ErrNotFound
	}
	s.Touch(st.now())
	return s, nil
}

// Delete closes and removes a session. It reports whether it existed.
func (st *Store) Delete(id string) bool {
	st.mu.Lock()
	s, ok := st.sessions[id]
	delete(st.sessions, id)
	st.mu.Unlock()
	if ok {
		s.Close()
	}
	return ok
}

// Len is the number of live sessions.
func (st *Store) Len() int {
	st.mu.RLock()
	defer st.mu.RUnlock()
	return len(st.sessions)
}

// Sweep evicts sessions idle for longer than the TTL and returns how many
// were removed.
func (st *Store) Sweep() int {
	cutoff := st.now().Add(-st.ttl)

	st.mu.Lock()
	var evicted []*Session
	for id, s := range st.sessions {
		if s.LastActive().Before(cutoff) {
			evicted = append(evicted, s)
			delete(st.sessions, id)
		}
	}
	st.mu.Unlock()

	for _, s := range evicted {
		s.Close()
		if st.onEvict != nil {
			st.onEvict(s)
		}
	}
	return len(evicted)
}

// Run sweeps every interval until ctx is done. interval <= 0 uses half the TTL.
func (st *Store) Run(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		interval = st.ttl / 2
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			st.Sweep()
		}
	}
}

// CloseAll tears down every session. Used on shutdown.
func (st *Store) CloseAll() {
	st.mu.Lock()
	all := st.sessions
	st.sessions = make(map[string]*Session)
	st.mu.Unlock()
	for _, s := range all {
		s.Close()
	}
}
