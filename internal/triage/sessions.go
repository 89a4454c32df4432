package triage

import (
	"sync"
	"time"
)

// Sessions keeps review sessions per browser, keyed by a cookie value.
type Sessions struct {
	mu     sync.Mutex
	maxAge time.Duration
	byKey  map[string]*sessionEntry
}

type sessionEntry struct {
	session  *Session
	lastSeen time.Time
}

func NewSessions(maxAge time.Duration) *Sessions {
	return &Sessions{
		maxAge: maxAge,
		byKey:  make(map[string]*sessionEntry),
	}
}

// Put replaces the session for key, dropping stale ones on the way.
func (r *Sessions) Put(key string, s *Session) {
	r.mu.Lock()
	defer r.mu.Unlock()
	now := time.Now()
	r.sweep(now)
	r.byKey[key] = &sessionEntry{session: s, lastSeen: now}
}

func (r *Sessions) Get(key string) (*Session, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	e, ok := r.byKey[key]
	if !ok {
		return nil, false
	}
	if r.maxAge > 0 && time.Since(e.lastSeen) > r.maxAge {
		delete(r.byKey, key)
		return nil, false
	}
	e.lastSeen = time.Now()
	return e.session, true
}

func (r *Sessions) Delete(key string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.byKey, key)
}

func (r *Sessions) sweep(now time.Time) {
	if r.maxAge <= 0 {
		return
	}
	for k, e := range r.byKey {
		if now.Sub(e.lastSeen) > r.maxAge {
			delete(r.byKey, k)
		}
	}
}
