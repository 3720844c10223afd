package llm

import (
	"encoding/json"
	"fmt"
)

// SSE event type constants
const (
	SSEEventStreamStart = "stream_start" // Stream attached (originator or resumer)
	SSEEventTextDelta   = "text_delta"   // Incremental assistant text
	SSEEventMessage     = "message"      // Full persisted message (resume fallback)
	SSEEventFinish      = "finish"       // Stream ended normally
	SSEEventError       = "error"        // Stream ended abnormally, partial text stays
)

// StreamStartEvent tells the client which stream it is attached to
type StreamStartEvent struct {
	StreamID  string `json:"stream_id"`
	ChatID    string `json:"chat_id"`
	Resumed   bool   `json:"resumed"`
	SkipChars int    `json:"skip_chars,omitempty"`
}

// TextDeltaEvent carries one delta exactly as produced by the generation source
type TextDeltaEvent struct {
	Delta string `json:"delta"`
}

// MessageEvent replays a persisted message when live streaming is over
type MessageEvent struct {
	Message *Message `json:"message"`
}

// FinishEvent closes a stream that ended normally
type FinishEvent struct {
	StreamID string `json:"stream_id"`
}

// ErrorEvent is the in-band terminal error for a stream that already started
type ErrorEvent struct {
	StreamID string `json:"stream_id,omitempty"`
	Status   int    `json:"status"`
	Message  string `json:"message"`
}

// FormatSSE formats an SSE event for transmission
// Returns a string in SSE format:
//
//	event: event_name
//	data: {"field": "value"}
//	\n
func FormatSSE(eventType string, data interface{}) (string, error) {
	jsonData, err := json.Marshal(data)
	if err != nil {
		return "", fmt.Errorf("failed to marshal SSE event data: %w", err)
	}

	return fmt.Sprintf("event: %s\ndata: %s\n\n", eventType, string(jsonData)), nil
}
