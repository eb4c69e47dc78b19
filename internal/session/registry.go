package session

import (
	"log/slog"
	"sync"
	"time"
)

// Registry is the shared directory of live client sessions.
type Registry interface {
	// Add registers a session under its ClientID, replacing any existing
	// session with the same ID. A session arriving without a ClientID is
	// assigned a generated one.
	Add(s *Session)

	// Remove deletes a session. Returns false if no such session exists.
	Remove(clientID string) bool

	// Get returns the session for clientID, or nil if absent.
	Get(clientID string) *Session

	// Touch refreshes the session's last-activity time. No-op for
	// unknown clients.
	Touch(clientID string)

	// All returns a snapshot of every registered session.
	All() []*Session

	// CountActive returns the number of registered sessions.
	CountActive() int

	// Stale returns the client IDs of non-synthetic sessions idle for
	// longer than maxIdle.
	Stale(maxIdle time.Duration) []string

	// CleanupStale removes every non-synthetic session idle for longer
	// than maxIdle and returns the number removed. Subscriptions are not
	// touched; callers unsubscribe first when that matters.
	CleanupStale(maxIdle time.Duration) int
}

// registryImpl implements the Registry interface.
type registryImpl struct {
	logger *slog.Logger

	mu       sync.RWMutex
	sessions map[string]*Session
}

// NewRegistry creates an empty session registry.
func NewRegistry(logger *slog.Logger) Registry {
	if logger == nil {
		logger = slog.Default()
	}

	return &registryImpl{
		logger:   logger,
		sessions: make(map[string]*Session),
	}
}

func (r *registryImpl) Add(s *Session) {
	if s.ClientID == "" {
		s.ClientID = NewClientID()
	}
	if s.ConnectedAt.IsZero() {
		s.ConnectedAt = time.Now()
	}

	r.mu.Lock()
	r.sessions[s.ClientID] = s
	r.mu.Unlock()

	r.logger.Debug("session added",
		"client_id", s.ClientID,
		"owner_id", s.OwnerID,
		"synthetic", s.Synthetic,
	)
}

func (r *registryImpl) Remove(clientID string) bool {
	r.mu.Lock()
	_, ok := r.sessions[clientID]
	delete(r.sessions, clientID)
	r.mu.Unlock()

	if ok {
		r.logger.Debug("session removed", "client_id", clientID)
	}
	return ok
}

func (r *registryImpl) Get(clientID string) *Session {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.sessions[clientID]
}

func (r *registryImpl) Touch(clientID string) {
	r.mu.Lock()
	if s, ok := r.sessions[clientID]; ok {
		s.lastActivity = time.Now()
	}
	r.mu.Unlock()
}

func (r *registryImpl) All() []*Session {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]*Session, 0, len(r.sessions))
	for _, s := range r.sessions {
		out = append(out, s)
	}
	return out
}

func (r *registryImpl) CountActive() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.sessions)
}

func (r *registryImpl) Stale(maxIdle time.Duration) []string {
	cutoff := time.Now().Add(-maxIdle)

	r.mu.RLock()
	defer r.mu.RUnlock()

	var out []string
	for id, s := range r.sessions {
		if s.Synthetic {
			continue
		}
		if s.LastActivity().Before(cutoff) {
			out = append(out, id)
		}
	}
	return out
}

func (r *registryImpl) CleanupStale(maxIdle time.Duration) int {
	cutoff := time.Now().Add(-maxIdle)

	r.mu.Lock()
	removed := 0
	for id, s := range r.sessions {
		if s.Synthetic {
			continue
		}
		if s.LastActivity().Before(cutoff) {
			delete(r.sessions, id)
			removed++
		}
	}
	r.mu.Unlock()

	if removed > 0 {
		r.logger.Info("stale sessions removed", "count", removed, "max_idle", maxIdle)
	}
	return removed
}
