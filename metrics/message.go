package metrics

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"
)

// Message type constants for the metrics stream.
const (
	// MessageTypeSnapshot carries a MetricsSnapshot.
	MessageTypeSnapshot = "metrics_snapshot"

	// MessageTypePing is an application-level keep-alive.
	MessageTypePing = "ping"

	// MessageTypeError reports a server-side problem to the client.
	MessageTypeError = "error"
)

// ErrUnknownMessageType is returned by DecodeMessage for a type it does not know.
var ErrUnknownMessageType = errors.New("unknown message type")

// Message is one of SnapshotMessage, PingMessage or ErrorMessage.
// The set is closed; switch on the concrete type after DecodeMessage.
type Message interface {
	// Type returns the wire type tag.
	Type() string
	// SentAt returns the envelope timestamp.
	SentAt() time.Time

	isMessage()
}

// SnapshotMessage delivers one snapshot.
type SnapshotMessage struct {
	Timestamp time.Time
	Snapshot  MetricsSnapshot
}

// PingMessage is a keep-alive with no payload.
type PingMessage struct {
	Timestamp time.Time
}

// ErrorMessage reports an error with an application code.
type ErrorMessage struct {
	Timestamp time.Time
	Code      string
	Message   string
}

func (SnapshotMessage) Type() string { return MessageTypeSnapshot }
func (PingMessage) Type() string     { return MessageTypePing }
func (ErrorMessage) Type() string    { return MessageTypeError }

func (m SnapshotMessage) SentAt() time.Time { return m.Timestamp }
func (m PingMessage) SentAt() time.Time     { return m.Timestamp }
func (m ErrorMessage) SentAt() time.Time    { return m.Timestamp }

func (SnapshotMessage) isMessage() {}
func (PingMessage) isMessage()     {}
func (ErrorMessage) isMessage()    {}

// envelope is the JSON form shared by every message:
//
//	{"type":"metrics_snapshot","timestamp":"...","data":{...}}
type envelope struct {
	Type      string          `json:"type"`
	Timestamp time.Time       `json:"timestamp"`
	Data      json.RawMessage `json:"data,omitempty"`
}

type errorData struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// NewSnapshotMessage wraps a snapshot stamped with the current time.
func NewSnapshotMessage(snapshot MetricsSnapshot) SnapshotMessage {
	return SnapshotMessage{Timestamp: time.Now(), Snapshot: snapshot}
}

// NewPingMessage creates a ping stamped with the current time.
func NewPingMessage() PingMessage {
	return PingMessage{Timestamp: time.Now()}
}

// NewErrorMessage creates an error message stamped with the current time.
func NewErrorMessage(code, message string) ErrorMessage {
	return ErrorMessage{Timestamp: time.Now(), Code: code, Message: message}
}

// EncodeMessage serializes a message into its wire envelope. Messages are
// passed by value; pointers are rejected with ErrUnknownMessageType.
func EncodeMessage(msg Message) ([]byte, error) {
	var data interface{}
	switch m := msg.(type) {
	case SnapshotMessage:
		data = m.Snapshot
	case PingMessage:
		data = nil
	case ErrorMessage:
		data = errorData{Code: m.Code, Message: m.Message}
	default:
		return nil, fmt.Errorf("encode %T: %w", msg, ErrUnknownMessageType)
	}

	env := envelope{Type: msg.Type(), Timestamp: msg.SentAt()}
	if data != nil {
		raw, err := json.Marshal(data)
		if err != nil {
			return nil, fmt.Errorf("encode %s payload: %w", msg.Type(), err)
		}
		env.Data = raw
	}
	return json.Marshal(env)
}

// DecodeMessage parses a wire envelope into its concrete message type.
// Unknown types return an error wrapping ErrUnknownMessageType.
func DecodeMessage(raw []byte) (Message, error) {
	var env envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return nil, fmt.Errorf("decode envelope: %w", err)
	}

	switch env.Type {
	case MessageTypeSnapshot:
		if len(env.Data) == 0 || string(env.Data) == "null" {
			return nil, fmt.Errorf("decode %s: missing data", env.Type)
		}
		var snapshot MetricsSnapshot
		if err := json.Unmarshal(env.Data, &snapshot); err != nil {
			return nil, fmt.Errorf("decode %s: %w", env.Type, err)
		}
		return SnapshotMessage{Timestamp: env.Timestamp, Snapshot: snapshot}, nil

	case MessageTypePing:
		return PingMessage{Timestamp: env.Timestamp}, nil

	case MessageTypeError:
		var data errorData
		if len(env.Data) > 0 {
			if err := json.Unmarshal(env.Data, &data); err != nil {
				return nil, fmt.Errorf("decode %s: %w", env.Type, err)
			}
		}
		return ErrorMessage{Timestamp: env.Timestamp, Code: data.Code, Message: data.Message}, nil

	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownMessageType, env.Type)
	}
}
