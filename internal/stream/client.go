// Package stream implements the streaming session client: one logical
// connection to a conversational backend that reconnects on transport
// failure, keeps itself alive with heartbeats and delivers decoded
// envelopes to its caller.
package stream

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/omochice/quill/internal/transport"
	"github.com/omochice/quill/pkg/protocol"
)

// Client owns a single transport handle at a time. Public methods never
// block on the network and never return transport errors; outcomes are
// reported through Callbacks.
type Client struct {
	opts   Options
	cb     Callbacks
	url    string
	log    *slog.Logger
	events *dispatcher

	state atomic.Int32

	mu          sync.Mutex
	conn        transport.Conn
	gen         uint64
	attempts    int
	exhausted   bool
	intentional bool
	closed      bool
	dialCancel  context.CancelFunc
	heartbeat   *time.Timer
	reconnect   *time.Timer
}

// New creates a Client. It does not connect.
func New(opts Options, cb Callbacks) *Client {
	opts = opts.withDefaults()
	url := SessionURL(opts.BaseURL, opts.SessionID)
	return &Client{
		opts:   opts,
		cb:     cb,
		url:    url,
		log:    opts.Logger.With("session_id", opts.SessionID),
		events: newDispatcher(),
	}
}

// SessionID returns the session this client talks to.
func (c *Client) SessionID() string {
	return c.opts.SessionID
}

// URL returns the endpoint the client dials.
func (c *Client) URL() string {
	return c.url
}

// State returns the current connection state.
func (c *Client) State() State {
	return State(c.state.Load())
}

// IsConnected reports whether the client is connected.
func (c *Client) IsConnected() bool {
	return c.State() == StateConnected
}

// Attempts returns the number of reconnect attempts since the last
// successful connection.
func (c *Client) Attempts() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.attempts
}

// Connect opens the transport. It is a no-op while connecting or connected.
// A caller-initiated Connect starts a fresh reconnect budget.
func (c *Client) Connect() {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed || c.State() != StateDisconnected {
		return
	}
	c.intentional = false
	c.attempts = 0
	c.exhausted = false
	c.stopReconnectLocked()
	c.connectLocked()
}

// Disconnect closes the transport and suppresses automatic reconnects.
// Pending heartbeat and reconnect timers are cancelled before the transport
// is torn down. Idempotent.
func (c *Client) Disconnect() {
	c.mu.Lock()
	c.intentional = true
	c.stopReconnectLocked()
	c.stopHeartbeatLocked()
	if c.dialCancel != nil {
		c.dialCancel()
		c.dialCancel = nil
	}
	// invalidate readers and dials of the current generation
	c.gen++
	conn := c.conn
	c.conn = nil
	c.setState(StateDisconnected)
	if conn != nil {
		c.log.Info("disconnected", "url", c.url)
		c.emitClose(nil)
	}
	c.mu.Unlock()

	if conn != nil {
		_ = conn.Close()
	}
}

// Close disconnects and releases the client. The client cannot be reused.
func (c *Client) Close() {
	c.Disconnect()
	c.mu.Lock()
	c.closed = true
	c.mu.Unlock()
	c.events.stop()
}

// Send sends a user message. When not connected it logs a warning and
// returns false without side effects.
func (c *Client) Send(content string) bool {
	env := protocol.NewMessage(content, c.opts.SessionID)
	data, err := env.Encode()
	if err != nil {
		c.log.Warn("failed to encode message", "error", err)
		return false
	}
	return c.write(data, "message")
}

// SendRaw sends an arbitrary structured payload, such as a control message.
// Same precondition as Send.
func (c *Client) SendRaw(record map[string]any) bool {
	data, err := protocol.EncodeRecord(record)
	if err != nil {
		c.log.Warn("failed to encode record", "error", err)
		return false
	}
	return c.write(data, "raw")
}

// ClearHistory asks the backend to drop the session history. Local state is
// reset only when the backend acknowledges with history_cleared.
func (c *Client) ClearHistory() bool {
	env := protocol.NewClearHistory(c.opts.SessionID)
	data, err := env.Encode()
	if err != nil {
		c.log.Warn("failed to encode clear_history", "error", err)
		return false
	}
	return c.write(data, "clear_history")
}

func (c *Client) write(data []byte, what string) bool {
	c.mu.Lock()
	if c.State() != StateConnected || c.conn == nil {
		c.mu.Unlock()
		c.log.Warn("cannot send while not connected", "kind", what, "state", c.State().String())
		return false
	}
	conn := c.conn
	gen := c.gen
	c.mu.Unlock()

	ctx, cancel := context.WithTimeout(context.Background(), c.opts.WriteTimeout)
	defer cancel()
	if err := conn.Write(ctx, data); err != nil {
		c.log.Warn("failed to send", "kind", what, "error", err)
		c.mu.Lock()
		if gen == c.gen {
			c.emitError(err)
		}
		c.mu.Unlock()
		return false
	}
	return true
}

// connectLocked starts a dial for a new generation. c.mu must be held.
func (c *Client) connectLocked() {
	c.gen++
	gen := c.gen
	c.setState(StateConnecting)

	ctx, cancel := context.WithTimeout(context.Background(), c.opts.DialTimeout)
	c.dialCancel = cancel

	c.log.Debug("connecting", "url", c.url, "attempt", c.attempts)
	go c.dial(ctx, cancel, gen)
}

func (c *Client) dial(ctx context.Context, cancel context.CancelFunc, gen uint64) {
	defer cancel()
	conn, err := c.opts.Dialer.Dial(ctx, c.url)

	c.mu.Lock()
	if gen != c.gen || c.State() != StateConnecting {
		// superseded by Disconnect or a newer Connect
		c.mu.Unlock()
		if conn != nil {
			_ = conn.Close()
		}
		return
	}
	c.dialCancel = nil

	if err != nil {
		c.setState(StateDisconnected)
		c.log.Warn("connection failed", "url", c.url, "error", err)
		c.emitError(err)
		c.scheduleReconnectLocked()
		c.mu.Unlock()
		return
	}

	c.conn = conn
	c.attempts = 0
	c.exhausted = false
	c.setState(StateConnected)
	c.startHeartbeatLocked(gen)
	c.log.Info("connected", "url", c.url, "remote", conn.RemoteAddr())
	c.emit(c.cb.OnOpen)
	c.mu.Unlock()

	go c.readLoop(conn, gen)
}

func (c *Client) readLoop(conn transport.Conn, gen uint64) {
	for {
		data, err := conn.Read(context.Background())
		if err != nil {
			c.connectionLost(gen, err)
			return
		}
		c.handleFrame(gen, data)
	}
}

func (c *Client) handleFrame(gen uint64, data []byte) {
	var env protocol.Envelope
	if err := env.Decode(data); err != nil {
		c.log.Warn("dropping malformed frame", "error", err)
		return
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if gen != c.gen {
		return
	}

	switch {
	case env.Type == protocol.KindPong:
		c.log.Debug("heartbeat acknowledged")
		return
	case !env.Type.Known():
		c.log.Debug("unrecognized envelope kind", "type", env.Type.String())
	case env.Type == protocol.KindConnection:
		c.log.Debug("connection acknowledged", "content", env.Content)
	}

	if c.cb.OnMessage != nil {
		fn := c.cb.OnMessage
		c.events.enqueue(func() { fn(env) })
	}
}

func (c *Client) connectionLost(gen uint64, err error) {
	c.mu.Lock()
	if gen != c.gen || c.State() != StateConnected {
		c.mu.Unlock()
		return
	}
	conn := c.conn
	c.conn = nil
	c.stopHeartbeatLocked()
	c.setState(StateDisconnected)

	if errors.Is(err, io.EOF) {
		c.log.Info("connection closed by server")
		err = nil
	} else {
		c.log.Warn("connection lost", "error", err)
		c.emitError(err)
	}
	c.emitClose(err)
	if !c.intentional {
		c.scheduleReconnectLocked()
	}
	c.mu.Unlock()

	_ = conn.Close()
}

// scheduleReconnectLocked arms the reconnect timer or reports exhaustion.
// c.mu must be held.
func (c *Client) scheduleReconnectLocked() {
	if c.intentional || c.closed {
		return
	}
	if c.attempts >= c.opts.MaxReconnectAttempts {
		if !c.exhausted {
			c.exhausted = true
			c.log.Error("reconnect attempts exhausted", "attempts", c.attempts)
			c.emit(c.cb.OnReconnectExhausted)
		}
		return
	}

	delay := c.opts.ReconnectInterval
	if c.opts.Backoff != nil {
		delay = c.opts.Backoff.Delay(c.attempts + 1)
	}
	gen := c.gen
	c.reconnect = time.AfterFunc(delay, func() { c.fireReconnect(gen) })
}

func (c *Client) fireReconnect(gen uint64) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if gen != c.gen || c.intentional || c.closed || c.State() != StateDisconnected {
		return
	}
	c.reconnect = nil
	c.attempts++
	attempt := c.attempts
	c.log.Info("reconnecting", "attempt", attempt, "max", c.opts.MaxReconnectAttempts)
	if c.cb.OnReconnectAttempt != nil {
		fn := c.cb.OnReconnectAttempt
		c.events.enqueue(func() { fn(attempt) })
	}
	c.connectLocked()
}

func (c *Client) startHeartbeatLocked(gen uint64) {
	if c.opts.HeartbeatInterval <= 0 {
		return
	}
	c.heartbeat = time.AfterFunc(c.opts.HeartbeatInterval, func() { c.beat(gen) })
}

func (c *Client) beat(gen uint64) {
	c.mu.Lock()
	if gen != c.gen || c.State() != StateConnected {
		// the loop ends with the connection it was started for
		c.mu.Unlock()
		return
	}
	c.startHeartbeatLocked(gen)
	c.mu.Unlock()

	ping := protocol.NewPing()
	data, err := ping.Encode()
	if err != nil {
		return
	}
	c.write(data, "ping")
}

func (c *Client) stopHeartbeatLocked() {
	if c.heartbeat != nil {
		c.heartbeat.Stop()
		c.heartbeat = nil
	}
}

func (c *Client) stopReconnectLocked() {
	if c.reconnect != nil {
		c.reconnect.Stop()
		c.reconnect = nil
	}
}

func (c *Client) setState(s State) {
	c.state.Store(int32(s))
}

func (c *Client) emit(fn func()) {
	if fn != nil {
		c.events.enqueue(fn)
	}
}

func (c *Client) emitError(err error) {
	if fn := c.cb.OnError; fn != nil {
		c.events.enqueue(func() { fn(err) })
	}
}

func (c *Client) emitClose(err error) {
	if fn := c.cb.OnClose; fn != nil {
		c.events.enqueue(func() { fn(err) })
	}
}
