package connection

import (
	"context"
	"errors"
	"time"

	"github.com/rickgao/boss-relay/internal/model"
)

// Errors
var (
	ErrNotConnected    = errors.New("not connected")
	ErrStaleConnection = errors.New("connection stale (no frames)")
	ErrAlreadyClosed   = errors.New("already closed")
	ErrSessionStarted  = errors.New("session already started")

	// Causes passed to a Session's run loop.
	ErrStopRequested = errors.New("stop requested")
	ErrSessionClosed = errors.New("session closed")
)

// TimestampedMessage wraps raw message data with receive timestamp.
type TimestampedMessage struct {
	Data       []byte    // Raw message bytes from WebSocket
	ReceivedAt time.Time // Local timestamp when ReadMessage() returned
}

// ClientConfig configures a WebSocket client.
type ClientConfig struct {
	URL          string        // e.g. wss://host/socket.io/?EIO=4&transport=websocket
	Origin       string        // Optional Origin header
	PingTimeout  time.Duration // Max time without an inbound frame before the connection is stale
	WriteTimeout time.Duration // Write deadline for sends
	BufferSize   int           // Message channel buffer size
}

// DefaultClientConfig returns sensible defaults.
func DefaultClientConfig() ClientConfig {
	return ClientConfig{
		PingTimeout:  60 * time.Second,
		WriteTimeout: 5 * time.Second,
		BufferSize:   256,
	}
}

// SessionConfig configures a Session.
type SessionConfig struct {
	Client          ClientConfig
	JoinDelay       time.Duration // Delay between auth and the first join
	JoinInterval    time.Duration // Join resend interval
	StoreTimeout    time.Duration // Deadline for each store write
	HistoryCapacity int           // Size of the since-last-drained buffers
}

// DefaultSessionConfig returns sensible defaults.
func DefaultSessionConfig() SessionConfig {
	return SessionConfig{
		Client:          DefaultClientConfig(),
		JoinDelay:       1 * time.Second,
		JoinInterval:    30 * time.Second,
		StoreTimeout:    5 * time.Second,
		HistoryCapacity: model.HistoryCapacity,
	}
}

// State is a Session's position in its lifecycle.
type State int

const (
	StateDisconnected State = iota
	StateConnecting
	StateAuthenticated
	StateActive
)

func (s State) String() string {
	switch s {
	case StateDisconnected:
		return "disconnected"
	case StateConnecting:
		return "connecting"
	case StateAuthenticated:
		return "authenticated"
	case StateActive:
		return "active"
	default:
		return "unknown"
	}
}

// Archiver receives battle steps for long-term storage. Implementations
// must not block.
type Archiver interface {
	Archive(accountID, bossID string, e model.Event)
}

// storeContext bounds one store write.
func storeContext(d time.Duration) (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.Background(), d)
}
