package webui

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"go.uber.org/zap"

	"ragmetrics/metrics"
)

// maxEventsBody caps the size of a POST /metrics/events body.
const maxEventsBody = 1 << 20

// Event types accepted by POST /metrics/events.
const (
	EventRAGQuery       = "rag_query"
	EventCacheLookup    = "cache_lookup"
	EventLLMUsage       = "llm_usage"
	EventChatConnection = "chat_connection"
)

// Event is one entry of an events batch. Type selects which of the other
// fields are read:
//   - rag_query:       duration_ms, error
//   - cache_lookup:    cache, hit
//   - llm_usage:       model, usage
//   - chat_connection: state ("opened" or "closed")
type Event struct {
	Type       string         `json:"type"`
	DurationMS float64        `json:"duration_ms,omitempty"`
	Error      string         `json:"error,omitempty"`
	Cache      string         `json:"cache,omitempty"`
	Hit        bool           `json:"hit,omitempty"`
	Model      string         `json:"model,omitempty"`
	Usage      *metrics.Usage `json:"usage,omitempty"`
	State      string         `json:"state,omitempty"`
}

// EventsRequest is the JSON body of POST /metrics/events.
type EventsRequest struct {
	Events []Event `json:"events"`
}

// EventsResponse acknowledges a recorded batch.
type EventsResponse struct {
	Accepted int `json:"accepted"`
}

func (e Event) validate() error {
	switch e.Type {
	case EventRAGQuery:
		if e.DurationMS < 0 {
			return errors.New("duration_ms must not be negative")
		}
	case EventCacheLookup:
		if e.Cache == "" {
			return errors.New("cache is required")
		}
	case EventLLMUsage:
		if e.Model == "" {
			return errors.New("model is required")
		}
		if e.Usage == nil {
			return errors.New("usage is required")
		}
		if e.Usage.PromptTokens < 0 || e.Usage.CompletionTokens < 0 || e.Usage.TotalTokens < 0 {
			return errors.New("token counts must not be negative")
		}
	case EventChatConnection:
		if e.State != "opened" && e.State != "closed" {
			return errors.New(`state must be "opened" or "closed"`)
		}
	case "":
		return errors.New("type is required")
	default:
		return fmt.Errorf("unknown event type %q", e.Type)
	}
	return nil
}

func (e Event) record(r metrics.Recorder) {
	switch e.Type {
	case EventRAGQuery:
		var err error
		if e.Error != "" {
			err = errors.New(e.Error)
		}
		r.RecordRAGQuery(time.Duration(e.DurationMS*float64(time.Millisecond)), err)
	case EventCacheLookup:
		r.RecordCacheLookup(e.Cache, e.Hit)
	case EventLLMUsage:
		r.RecordLLMUsage(e.Model, *e.Usage)
	case EventChatConnection:
		if e.State == "opened" {
			r.ConnectionOpened(metrics.ConnectionChat)
		} else {
			r.ConnectionClosed(metrics.ConnectionChat)
		}
	}
}

// HandleEvents handles POST /metrics/events. The whole batch is validated
// before any event is recorded, so a 400 leaves the counters untouched.
func (api *SnapshotAPI) HandleEvents(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		WriteError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	if api.recorder == nil {
		WriteError(w, http.StatusNotFound, "event ingestion disabled")
		return
	}

	var req EventsRequest
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxEventsBody))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&req); err != nil {
		WriteError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	if len(req.Events) == 0 {
		WriteError(w, http.StatusBadRequest, "events must not be empty")
		return
	}
	for i, event := range req.Events {
		if err := event.validate(); err != nil {
			WriteError(w, http.StatusBadRequest, fmt.Sprintf("event %d: %v", i, err))
			return
		}
	}

	for _, event := range req.Events {
		event.record(api.recorder)
	}

	api.logger.Debug("metrics events recorded",
		zap.String("request_id", RequestIDFromContext(r.Context())),
		zap.String("identity", IdentityFromContext(r.Context())),
		zap.Int("count", len(req.Events)),
	)
	writeJSON(w, http.StatusAccepted, EventsResponse{Accepted: len(req.Events)})
}
