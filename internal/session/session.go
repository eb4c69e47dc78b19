package session

import (
	"time"

	"github.com/google/uuid"
)

// Sink delivers one named event with a JSON-serializable payload to a
// client. Real sessions wrap a transport handle; synthetic sessions write
// to storage instead.
type Sink interface {
	Send(event string, payload any) error
}

// Session is one connected downstream client.
type Session struct {
	ClientID    string
	OwnerID     string
	Sink        Sink
	ConnectedAt time.Time

	// Synthetic marks internally-owned sessions such as the ticker
	// activity monitor. They follow the same subscribe path as real
	// clients but are exempt from idle cleanup.
	Synthetic bool

	lastActivity time.Time
}

// LastActivity returns the most recent activity time, falling back to the
// connection time if the session was never touched.
func (s *Session) LastActivity() time.Time {
	if s.lastActivity.IsZero() {
		return s.ConnectedAt
	}
	return s.lastActivity
}

// NewClientID generates a unique client identifier.
func NewClientID() string {
	return uuid.NewString()
}
