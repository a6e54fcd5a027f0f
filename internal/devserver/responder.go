package devserver

import (
	"context"
	"fmt"
	"strings"
)

// Responder produces the assistant reply to a message, already split into
// the chunks to stream.
type Responder interface {
	Respond(ctx context.Context, history []Message, message string) ([]string, error)
}

// ResponderFunc adapts a function to Responder.
type ResponderFunc func(ctx context.Context, history []Message, message string) ([]string, error)

// Respond implements Responder.
func (f ResponderFunc) Respond(ctx context.Context, history []Message, message string) ([]string, error) {
	return f(ctx, history, message)
}

// EchoResponder repeats the message back word by word, numbered by the
// user messages seen so far in the session.
type EchoResponder struct{}

// Respond implements Responder.
func (EchoResponder) Respond(ctx context.Context, history []Message, message string) ([]string, error) {
	turn := 0
	for _, m := range history {
		if m.Role == roleUser {
			turn++
		}
	}
	return Chunk(fmt.Sprintf("(%d) You said: %s", turn, message)), nil
}

// Chunk splits text after each space, so joining the chunks yields text.
func Chunk(text string) []string {
	if text == "" {
		return nil
	}
	return strings.SplitAfter(text, " ")
}
