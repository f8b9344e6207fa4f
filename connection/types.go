package connection

import (
	"errors"
	"fmt"
	"time"
)

// Errors
var (
	// ErrAuthorizationFailed means the node rejected the password during the
	// handshake. It is never retried: credentials do not become valid by
	// waiting.
	ErrAuthorizationFailed = errors.New("authorization failed")

	// ErrSessionClosed means the node claimed to resume a session this client
	// never asked to resume. The buffered command queue is cleared and the
	// connection is retried from scratch.
	ErrSessionClosed = errors.New("session resumed without being requested")

	ErrNotConnected = errors.New("not connected")
	ErrClosed       = errors.New("session shut down")
)

// Status is the connection state of a session.
type Status int32

const (
	StatusDisconnected Status = iota
	StatusConnecting
	StatusConnected
)

func (s Status) String() string {
	switch s {
	case StatusDisconnected:
		return "disconnected"
	case StatusConnecting:
		return "connecting"
	case StatusConnected:
		return "connected"
	default:
		return fmt.Sprintf("status(%d)", int32(s))
	}
}

// InboundFrame wraps one raw WebSocket message with its receive timestamp.
type InboundFrame struct {
	Data       []byte
	ReceivedAt time.Time
}

// Config configures a session against one node.
type Config struct {
	Host     string
	Port     int
	Password string
	Secure   bool

	// Identity sent during the handshake.
	UserID     string
	ShardCount int

	// ResumeTimeout > 0 enables session resume; the node keeps the session
	// alive that long after a disconnect. ResumeKey may be left empty, in
	// which case one is generated.
	ResumeKey      string
	ResumeTimeout  time.Duration
	PayloadTimeout time.Duration // max age for replayed buffered commands

	BackoffBase      time.Duration
	BackoffMax       time.Duration
	HandshakeTimeout time.Duration
	WriteTimeout     time.Duration
	FrameBufferSize  int
}

// DefaultConfig returns sensible defaults; Host, Password, and UserID still
// need to be set.
func DefaultConfig() Config {
	return Config{
		Port:             2333,
		ShardCount:       1,
		ResumeTimeout:    60 * time.Second,
		PayloadTimeout:   10 * time.Second,
		BackoffBase:      time.Second,
		BackoffMax:       3 * time.Minute,
		HandshakeTimeout: 10 * time.Second,
		WriteTimeout:     5 * time.Second,
		FrameBufferSize:  512,
	}
}

func (c Config) applyDefaults() Config {
	d := DefaultConfig()
	if c.Port == 0 {
		c.Port = d.Port
	}
	if c.ShardCount == 0 {
		c.ShardCount = d.ShardCount
	}
	if c.PayloadTimeout == 0 {
		c.PayloadTimeout = d.PayloadTimeout
	}
	if c.BackoffBase == 0 {
		c.BackoffBase = d.BackoffBase
	}
	if c.BackoffMax == 0 {
		c.BackoffMax = d.BackoffMax
	}
	if c.HandshakeTimeout == 0 {
		c.HandshakeTimeout = d.HandshakeTimeout
	}
	if c.WriteTimeout == 0 {
		c.WriteTimeout = d.WriteTimeout
	}
	if c.FrameBufferSize == 0 {
		c.FrameBufferSize = d.FrameBufferSize
	}
	return c
}

// URL builds the WebSocket endpoint from host, port, and the secure flag.
func (c Config) URL() string {
	scheme := "ws"
	if c.Secure {
		scheme = "wss"
	}
	return fmt.Sprintf("%s://%s:%d", scheme, c.Host, c.Port)
}

// resumeEnabled reports whether this session buffers and resumes.
func (c Config) resumeEnabled() bool {
	return c.ResumeTimeout > 0
}
