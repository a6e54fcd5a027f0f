package stream

import (
	"log/slog"
	"time"

	"github.com/omochice/quill/internal/transport"
	"github.com/omochice/quill/internal/transport/ws"
	"github.com/omochice/quill/pkg/protocol"
)

const (
	DefaultReconnectInterval    = 3 * time.Second
	DefaultMaxReconnectAttempts = 5
	DefaultHeartbeatInterval    = 30 * time.Second
	DefaultDialTimeout          = 10 * time.Second
	DefaultWriteTimeout         = 10 * time.Second
)

// Options configures a Client.
type Options struct {
	// BaseURL is the conversation endpoint. The session ID is appended as
	// the last path segment.
	BaseURL   string
	SessionID string
	Dialer    transport.Dialer

	ReconnectInterval time.Duration
	// MaxReconnectAttempts of zero means DefaultMaxReconnectAttempts. Use
	// NoReconnect to disable automatic reconnects.
	MaxReconnectAttempts int
	// HeartbeatInterval of zero means DefaultHeartbeatInterval. Use
	// NoHeartbeat to disable heartbeats.
	HeartbeatInterval time.Duration
	// Backoff overrides ReconnectInterval when set.
	Backoff Backoff

	DialTimeout  time.Duration
	WriteTimeout time.Duration
	Logger       *slog.Logger
}

// NoHeartbeat disables the heartbeat loop when used as HeartbeatInterval.
const NoHeartbeat time.Duration = -1

// NoReconnect disables automatic reconnects when used as
// MaxReconnectAttempts. The first lost connection reports exhaustion.
const NoReconnect = -1

// DefaultOptions returns options with the reference defaults.
func DefaultOptions() Options {
	return Options{
		ReconnectInterval:    DefaultReconnectInterval,
		MaxReconnectAttempts: DefaultMaxReconnectAttempts,
		HeartbeatInterval:    DefaultHeartbeatInterval,
		DialTimeout:          DefaultDialTimeout,
		WriteTimeout:         DefaultWriteTimeout,
	}
}

func (o Options) withDefaults() Options {
	if o.ReconnectInterval <= 0 {
		o.ReconnectInterval = DefaultReconnectInterval
	}
	if o.MaxReconnectAttempts == 0 {
		o.MaxReconnectAttempts = DefaultMaxReconnectAttempts
	}
	if o.MaxReconnectAttempts < 0 {
		o.MaxReconnectAttempts = 0
	}
	if o.HeartbeatInterval == 0 {
		o.HeartbeatInterval = DefaultHeartbeatInterval
	}
	if o.HeartbeatInterval < 0 {
		o.HeartbeatInterval = 0
	}
	if o.DialTimeout <= 0 {
		o.DialTimeout = DefaultDialTimeout
	}
	if o.WriteTimeout <= 0 {
		o.WriteTimeout = DefaultWriteTimeout
	}
	if o.Logger == nil {
		o.Logger = slog.Default()
	}
	if o.Dialer == nil {
		o.Dialer = &ws.Dialer{Timeout: o.DialTimeout}
	}
	if o.SessionID == "" {
		o.SessionID = NewSessionID()
	}
	return o
}

// Callbacks receive client events. All are optional. They are invoked one
// at a time, in order, on a goroutine owned by the client, so they must not
// block for long. Calling back into the Client from a callback is allowed.
type Callbacks struct {
	OnOpen               func()
	OnClose              func(err error)
	OnError              func(err error)
	OnMessage            func(env protocol.Envelope)
	OnReconnectAttempt   func(attempt int)
	OnReconnectExhausted func()
}
