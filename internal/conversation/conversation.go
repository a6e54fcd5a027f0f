// Package conversation accumulates streamed envelopes into an ordered list
// of conversation turns.
package conversation

import (
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/omochice/quill/pkg/protocol"
)

// Role identifies who authored a turn.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// Turn is one entry in the conversation.
type Turn struct {
	Role        Role       `json:"role" yaml:"role"`
	Content     string     `json:"content" yaml:"content"`
	CompletedAt *time.Time `json:"completed_at,omitempty" yaml:"completed_at,omitempty"`
}

// Open reports whether the turn is an assistant turn still being streamed.
func (t Turn) Open() bool {
	return t.Role == RoleAssistant && t.CompletedAt == nil
}

// ErrTurnOpen is returned by SubmitUser while the assistant is still
// answering.
var ErrTurnOpen = errors.New("assistant turn still open")

// Conversation is the subscriber side of a stream: feed it every envelope
// with Apply. At most one assistant turn is open at any time.
type Conversation struct {
	mu        sync.Mutex
	turns     []Turn
	open      int
	errMsg    string
	observers []func([]Turn)

	now func() time.Time
	log *slog.Logger
}

// Option configures a Conversation.
type Option func(*Conversation)

// WithClock sets the clock used for completion times when the envelope
// carries no timestamp.
func WithClock(now func() time.Time) Option {
	return func(c *Conversation) { c.now = now }
}

// WithLogger sets the logger.
func WithLogger(log *slog.Logger) Option {
	return func(c *Conversation) { c.log = log }
}

// New creates an empty conversation.
func New(opts ...Option) *Conversation {
	c := &Conversation{
		open: -1,
		now:  time.Now,
		log:  slog.Default(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Apply updates the conversation from one received envelope.
func (c *Conversation) Apply(env protocol.Envelope) {
	c.mu.Lock()
	changed := true

	switch env.Type {
	case protocol.KindConnection:
		c.log.Info("session connected", "content", env.Content)
		changed = false
	case protocol.KindProcessingStart:
		if c.open < 0 {
			c.openLocked("")
		} else {
			changed = false
		}
	case protocol.KindStream:
		if c.open < 0 {
			c.openLocked(env.Content)
		} else {
			c.turns[c.open].Content += env.Content
		}
	case protocol.KindComplete:
		if c.open < 0 {
			changed = false
			break
		}
		at := env.Time()
		if at.IsZero() {
			at = c.now()
		}
		c.closeLocked(at)
	case protocol.KindError:
		c.errMsg = env.Content
		c.log.Warn("backend reported an error", "content", env.Content)
	case protocol.KindHistoryCleared:
		c.turns = nil
		c.open = -1
		c.errMsg = ""
	case protocol.KindPong:
		changed = false
	default:
		c.log.Debug("ignoring envelope", "type", env.Type.String())
		changed = false
	}

	c.notifyLocked(changed)
}

// SubmitUser appends a user turn. It fails with ErrTurnOpen while an
// assistant turn is open.
func (c *Conversation) SubmitUser(content string) error {
	c.mu.Lock()
	if c.open >= 0 {
		c.mu.Unlock()
		return ErrTurnOpen
	}
	c.errMsg = ""
	c.turns = append(c.turns, Turn{Role: RoleUser, Content: content})
	c.notifyLocked(true)
	return nil
}

// Cancel closes the open assistant turn locally so the next submission is
// accepted. Chunks that still arrive for it start a new turn. It reports
// whether a turn was open.
func (c *Conversation) Cancel() bool {
	c.mu.Lock()
	if c.open < 0 {
		c.mu.Unlock()
		return false
	}
	c.closeLocked(c.now())
	c.notifyLocked(true)
	return true
}

// Turns returns a copy of the turn list.
func (c *Conversation) Turns() []Turn {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.snapshotLocked()
}

// Err returns the last backend-reported error, or "".
func (c *Conversation) Err() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.errMsg
}

// HasOpenTurn reports whether the assistant is still answering.
func (c *Conversation) HasOpenTurn() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.open >= 0
}

// OnChange registers an observer called with a snapshot after every change.
// Observers run synchronously on the goroutine that caused the change.
func (c *Conversation) OnChange(fn func([]Turn)) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.observers = append(c.observers, fn)
}

func (c *Conversation) openLocked(content string) {
	c.turns = append(c.turns, Turn{Role: RoleAssistant, Content: content})
	c.open = len(c.turns) - 1
}

func (c *Conversation) closeLocked(at time.Time) {
	at = at.UTC()
	c.turns[c.open].CompletedAt = &at
	c.open = -1
}

func (c *Conversation) snapshotLocked() []Turn {
	out := make([]Turn, len(c.turns))
	copy(out, c.turns)
	return out
}

// notifyLocked releases c.mu and runs observers when changed.
func (c *Conversation) notifyLocked(changed bool) {
	if !changed || len(c.observers) == 0 {
		c.mu.Unlock()
		return
	}
	snapshot := c.snapshotLocked()
	observers := append([]func([]Turn){}, c.observers...)
	c.mu.Unlock()

	for _, fn := range observers {
		fn(snapshot)
	}
}
