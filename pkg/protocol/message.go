// Package protocol defines the JSON envelope exchanged with the conversational backend.
package protocol

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"google.golang.org/protobuf/encoding/protojson"
	"google.golang.org/protobuf/types/known/structpb"
)

// Kind is the value of an envelope's "type" field.
type Kind string

// Outbound kinds.
const (
	KindMessage      Kind = "message"
	KindPing         Kind = "ping"
	KindClearHistory Kind = "clear_history"
)

// Inbound kinds.
const (
	KindConnection      Kind = "connection"
	KindPong            Kind = "pong"
	KindStream          Kind = "stream"
	KindComplete        Kind = "complete"
	KindError           Kind = "error"
	KindProcessingStart Kind = "processing_start"
	KindHistoryCleared  Kind = "history_cleared"
)

// Known reports whether the kind is part of the protocol. Unknown kinds
// must be tolerated by receivers.
func (k Kind) Known() bool {
	switch k {
	case KindMessage, KindPing, KindClearHistory,
		KindConnection, KindPong, KindStream, KindComplete,
		KindError, KindProcessingStart, KindHistoryCleared:
		return true
	default:
		return false
	}
}

// String returns the wire representation of the kind.
func (k Kind) String() string {
	return string(k)
}

// ErrMissingKind is returned by Decode when a frame has no "type".
var ErrMissingKind = errors.New("envelope has no type")

// Envelope is a single frame on the wire.
type Envelope struct {
	Type      Kind           `json:"type"`
	Content   string         `json:"content"`
	Timestamp *Timestamp     `json:"timestamp,omitempty"`
	SessionID string         `json:"session_id,omitempty"`
	Metadata  map[string]any `json:"metadata,omitempty"`
}

// Encode encodes the envelope as a single JSON object.
func (e *Envelope) Encode() ([]byte, error) {
	data, err := json.Marshal(e)
	if err != nil {
		return nil, fmt.Errorf("failed to encode envelope: %w", err)
	}
	return data, nil
}

// Decode decodes a JSON frame into the envelope.
func (e *Envelope) Decode(data []byte) error {
	var decoded Envelope
	if err := json.Unmarshal(data, &decoded); err != nil {
		return fmt.Errorf("failed to decode envelope: %w", err)
	}
	if decoded.Type == "" {
		return fmt.Errorf("failed to decode envelope: %w", ErrMissingKind)
	}
	*e = decoded
	return nil
}

// Time returns the envelope timestamp, or the zero time when absent.
func (e *Envelope) Time() time.Time {
	if e.Timestamp == nil {
		return time.Time{}
	}
	return e.Timestamp.Time
}

// NewMessage builds an outbound user message.
func NewMessage(content, sessionID string) Envelope {
	return Envelope{
		Type:      KindMessage,
		Content:   content,
		Timestamp: Now(),
		SessionID: sessionID,
	}
}

// NewPing builds a heartbeat envelope.
func NewPing() Envelope {
	return Envelope{Type: KindPing, Timestamp: Now()}
}

// NewClearHistory builds the control envelope asking the backend to drop
// the session history.
func NewClearHistory(sessionID string) Envelope {
	return Envelope{Type: KindClearHistory, SessionID: sessionID, Timestamp: Now()}
}

// EncodeRecord serializes an arbitrary structured payload. The record must
// only hold JSON-representable values (nil, bool, numbers, strings, slices
// and maps of those); anything else is rejected.
func EncodeRecord(record map[string]any) ([]byte, error) {
	s, err := structpb.NewStruct(record)
	if err != nil {
		return nil, fmt.Errorf("failed to encode record: %w", err)
	}
	data, err := protojson.MarshalOptions{UseProtoNames: true}.Marshal(s)
	if err != nil {
		return nil, fmt.Errorf("failed to encode record: %w", err)
	}
	return data, nil
}

// Timestamp is an ISO 8601 instant. Decoding accepts RFC 3339 and the
// zone-less forms some backends emit; an unparseable value decodes as the
// zero time instead of failing the whole frame.
type Timestamp struct {
	time.Time
}

// Now returns the current time as a Timestamp.
func Now() *Timestamp {
	return &Timestamp{Time: time.Now().UTC()}
}

var timestampLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05.999999999",
	"2006-01-02 15:04:05.999999999",
	"2006-01-02T15:04:05",
}

// MarshalJSON implements json.Marshaler.
func (t Timestamp) MarshalJSON() ([]byte, error) {
	return json.Marshal(t.Time.Format(time.RFC3339Nano))
}

// UnmarshalJSON implements json.Unmarshaler.
func (t *Timestamp) UnmarshalJSON(data []byte) error {
	var raw string
	if err := json.Unmarshal(data, &raw); err != nil {
		// numbers and other shapes are ignored
		t.Time = time.Time{}
		return nil
	}
	raw = strings.TrimSpace(raw)
	for _, layout := range timestampLayouts {
		if parsed, err := time.Parse(layout, raw); err == nil {
			t.Time = parsed
			return nil
		}
	}
	t.Time = time.Time{}
	return nil
}
