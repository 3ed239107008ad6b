package metrics

import (
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
)

func TestEncodeMessage_SnapshotEnvelope(t *testing.T) {
	ts := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	msg := SnapshotMessage{
		Timestamp: ts,
		Snapshot:  MetricsSnapshot{Timestamp: ts, System: SystemMetrics{CPUPercent: 12.5}},
	}

	raw, err := EncodeMessage(msg)
	if err != nil {
		t.Fatalf("EncodeMessage() error = %v", err)
	}

	var parsed map[string]interface{}
	if err := json.Unmarshal(raw, &parsed); err != nil {
		t.Fatalf("result is not valid JSON: %v", err)
	}
	if parsed["type"] != MessageTypeSnapshot {
		t.Errorf("type = %v, want %q", parsed["type"], MessageTypeSnapshot)
	}
	data, ok := parsed["data"].(map[string]interface{})
	if !ok {
		t.Fatalf("data = %T, want object", parsed["data"])
	}
	system := data["system"].(map[string]interface{})
	if system["cpu_percent"] != 12.5 {
		t.Errorf("data.system.cpu_percent = %v, want 12.5", system["cpu_percent"])
	}
}

func TestDecodeMessage_Variants(t *testing.T) {
	ts := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	snapshot := MetricsSnapshot{
		Timestamp: ts,
		RAG:       RAGMetrics{Requests: 4, LatencyMS: LatencyPercentiles{P50: 80, P95: 200}},
	}

	tests := []struct {
		name string
		msg  Message
	}{
		{"snapshot", SnapshotMessage{Timestamp: ts, Snapshot: snapshot}},
		{"ping", PingMessage{Timestamp: ts}},
		{"error", ErrorMessage{Timestamp: ts, Code: "overloaded", Message: "try later"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			raw, err := EncodeMessage(tt.msg)
			if err != nil {
				t.Fatalf("EncodeMessage() error = %v", err)
			}
			got, err := DecodeMessage(raw)
			if err != nil {
				t.Fatalf("DecodeMessage() error = %v", err)
			}
			if diff := cmp.Diff(tt.msg, got); diff != "" {
				t.Errorf("DecodeMessage() mismatch (-want +got):\n%s", diff)
			}
		})
	}
}

func TestDecodeMessage_Errors(t *testing.T) {
	tests := []struct {
		name        string
		raw         string
		wantUnknown bool
	}{
		{"malformed json", `{"type":`, false},
		{"unknown type", `{"type":"chat_token","data":{}}`, true},
		{"missing type", `{"data":{}}`, true},
		{"snapshot without data", `{"type":"metrics_snapshot"}`, false},
		{"snapshot with bad data", `{"type":"metrics_snapshot","data":[1,2]}`, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := DecodeMessage([]byte(tt.raw))
			if err == nil {
				t.Fatal("DecodeMessage() error = nil, want error")
			}
			if got := errors.Is(err, ErrUnknownMessageType); got != tt.wantUnknown {
				t.Errorf("errors.Is(err, ErrUnknownMessageType) = %v, want %v (err: %v)", got, tt.wantUnknown, err)
			}
		})
	}
}

func TestEncodeMessage_RejectsPointersAndNil(t *testing.T) {
	tests := []struct {
		name string
		msg  Message
	}{
		{"nil", nil},
		{"nil snapshot pointer", (*SnapshotMessage)(nil)},
		{"nil ping pointer", (*PingMessage)(nil)},
		{"nil error pointer", (*ErrorMessage)(nil)},
		{"snapshot pointer", &SnapshotMessage{}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			raw, err := EncodeMessage(tt.msg)
			if !errors.Is(err, ErrUnknownMessageType) {
				t.Errorf("EncodeMessage() error = %v, want ErrUnknownMessageType", err)
			}
			if raw != nil {
				t.Errorf("EncodeMessage() = %s, want nil", raw)
			}
		})
	}
}

func TestNewMessages_Timestamped(t *testing.T) {
	before := time.Now()
	msgs := []Message{
		NewSnapshotMessage(MetricsSnapshot{}),
		NewPingMessage(),
		NewErrorMessage("code", "message"),
	}
	after := time.Now()

	for _, msg := range msgs {
		if msg.SentAt().Before(before) || msg.SentAt().After(after) {
			t.Errorf("%s timestamp %v outside [%v, %v]", msg.Type(), msg.SentAt(), before, after)
		}
	}
}
