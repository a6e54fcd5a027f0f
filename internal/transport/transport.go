// Package transport defines the frame-oriented connection used by the
// streaming session client.
package transport

import (
	"context"
	"net/http"
)

// Conn abstracts a bidirectional, frame-oriented connection.
// Implementations exist for WebSocket and SSE-over-HTTP.
type Conn interface {
	// Read reads a single frame. Returns io.EOF or a close error when the
	// peer goes away.
	Read(ctx context.Context) ([]byte, error)

	// Write sends a single frame.
	Write(ctx context.Context, data []byte) error

	// Close closes the connection. Safe to call more than once.
	Close() error

	// RemoteAddr returns the remote address for logging.
	RemoteAddr() string
}

// Dialer opens a new Conn. Every call returns a fresh handle.
type Dialer interface {
	Dial(ctx context.Context, url string) (Conn, error)
}

// DialerFunc adapts a function to the Dialer interface.
type DialerFunc func(ctx context.Context, url string) (Conn, error)

// Dial implements Dialer.
func (f DialerFunc) Dial(ctx context.Context, url string) (Conn, error) {
	return f(ctx, url)
}

// AuthHeader returns request headers carrying a bearer token, or nil when
// the token is empty.
func AuthHeader(token string) http.Header {
	if token == "" {
		return nil
	}
	h := http.Header{}
	h.Set("Authorization", "Bearer "+token)
	return h
}
