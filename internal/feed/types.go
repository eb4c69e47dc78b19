package feed

import (
	"errors"
	"time"
)

// Errors
var (
	ErrNotConnected     = errors.New("not connected")
	ErrStaleConnection  = errors.New("connection stale (no heartbeat ack)")
	ErrAlreadyClosed    = errors.New("already closed")
	ErrRetriesExhausted = errors.New("reconnect attempts exhausted")
)

// State is the connector's upstream connection state.
type State string

const (
	StateDisconnected State = "disconnected"
	StateConnecting   State = "connecting"
	StateConnected    State = "connected"

	// StateFailed is terminal: the attempt ceiling was reached and a fresh
	// explicit Connect call is required to resume.
	StateFailed State = "failed"
)

// TimestampedMessage wraps raw message data with receive timestamp.
type TimestampedMessage struct {
	Data       []byte    // Raw message bytes from WebSocket
	ReceivedAt time.Time // Local timestamp when ReadMessage() returned
}

// command is the upstream subscribe/unsubscribe wire format.
type command struct {
	Action  string   `json:"action"` // "subscribe" or "unsubscribe"
	Symbols []string `json:"symbols"`
}

// tickWire is the upstream tick wire format. Pointer fields distinguish
// absent from zero so malformed payloads can be rejected.
type tickWire struct {
	Symbol *string  `json:"s"`
	Ask    *float64 `json:"a"`
	Bid    *float64 `json:"b"`
	Ts     int64    `json:"t"` // ms since epoch
}

// ClientConfig configures a WebSocket client.
type ClientConfig struct {
	URL               string        // WebSocket URL (e.g., wss://feed.example.com/stream)
	APIKey            string        // Bearer token for the handshake (empty = no auth)
	HeartbeatInterval time.Duration // Ping cadence while connected
	WriteTimeout      time.Duration // Write deadline for sends
	BufferSize        int           // Message channel buffer size
}

// DefaultClientConfig returns sensible defaults.
func DefaultClientConfig() ClientConfig {
	return ClientConfig{
		HeartbeatInterval: 30 * time.Second,
		WriteTimeout:      5 * time.Second,
		BufferSize:        10000,
	}
}

// Config configures the Connector.
type Config struct {
	URL                  string        // Upstream WebSocket URL
	APIKey               string        // Bearer token (empty = no auth)
	HeartbeatInterval    time.Duration // Ping cadence while connected
	WriteTimeout         time.Duration // Write deadline for sends
	ReconnectDelay       time.Duration // Fixed wait between reconnect attempts
	MaxReconnectAttempts int           // Attempt ceiling before StateFailed
	BufferSize           int           // Inbound message channel buffer size
}

// DefaultConfig returns sensible defaults.
func DefaultConfig() Config {
	return Config{
		HeartbeatInterval:    30 * time.Second,
		WriteTimeout:         5 * time.Second,
		ReconnectDelay:       5 * time.Second,
		MaxReconnectAttempts: 10,
		BufferSize:           10000,
	}
}

func (c Config) clientConfig() ClientConfig {
	return ClientConfig{
		URL:               c.URL,
		APIKey:            c.APIKey,
		HeartbeatInterval: c.HeartbeatInterval,
		WriteTimeout:      c.WriteTimeout,
		BufferSize:        c.BufferSize,
	}
}
