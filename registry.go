package panellink

import (
	"sync"

	"github.com/opd-ai/panellink/perr"
	"github.com/opd-ai/panellink/session"
)

// Registry maps session identifiers (the integration ID carried in the
// TLink header) to live sessions.
type Registry struct {
	mu       sync.RWMutex
	sessions map[string]*session.Session
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{sessions: make(map[string]*session.Session)}
}

// Add registers a connected session under its ID. A prior session with
// the same ID is returned so the caller can dispose it.
func (r *Registry) Add(s *session.Session) *session.Session {
	r.mu.Lock()
	defer r.mu.Unlock()
	prev := r.sessions[s.SessionID()]
	r.sessions[s.SessionID()] = s
	return prev
}

// Get looks a session up by ID.
func (r *Registry) Get(sessionID string) (*session.Session, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	s, ok := r.sessions[sessionID]
	if !ok {
		return nil, perr.New(perr.SessionNotFound, "no session %q", sessionID)
	}
	return s, nil
}

// Remove drops a session, but only if it is still the registered one for
// its ID.
func (r *Registry) Remove(s *session.Session) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.sessions[s.SessionID()] == s {
		delete(r.sessions, s.SessionID())
	}
}

// Range calls fn for every live session.
func (r *Registry) Range(fn func(*session.Session)) {
	r.mu.RLock()
	snapshot := make([]*session.Session, 0, len(r.sessions))
	for _, s := range r.sessions {
		snapshot = append(snapshot, s)
	}
	r.mu.RUnlock()
	for _, s := range snapshot {
		fn(s)
	}
}

// Len reports the number of live sessions.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.sessions)
}
