package llm

import (
	"strings"
	"time"
)

// Message roles
const (
	RoleUser      = "user"
	RoleAssistant = "assistant"
	RoleSystem    = "system"
)

// Part types
const (
	PartTypeText = "text"
	PartTypeFile = "file"
)

// Message is one persisted entry of a conversation history
type Message struct {
	ID        string           `json:"id" db:"id"`
	ChatID    string           `json:"chat_id" db:"chat_id"`
	Role      string           `json:"role" db:"role"`
	Parts     []Part           `json:"parts" db:"parts"` // JSONB
	Metadata  *MessageMetadata `json:"metadata,omitempty" db:"metadata"`
	CreatedAt time.Time        `json:"created_at" db:"created_at"`
}

// Part is one piece of message content
type Part struct {
	Type      string `json:"type"`
	Text      string `json:"text,omitempty"`
	URL       string `json:"url,omitempty"`        // file parts
	MediaType string `json:"media_type,omitempty"` // file parts
}

// MessageMetadata is the usage recorded with an assistant message
type MessageMetadata struct {
	ModelID      string    `json:"model_id"`
	InputTokens  int       `json:"input_tokens"`
	OutputTokens int       `json:"output_tokens"`
	StopReason   string    `json:"stop_reason,omitempty"`
	StartedAt    time.Time `json:"started_at"`
	DurationMS   int64     `json:"duration_ms"`
	StreamID     string    `json:"stream_id,omitempty"`
}

// Text concatenates all text parts of the message
func (m *Message) Text() string {
	var sb strings.Builder
	for _, p := range m.Parts {
		if p.Type == PartTypeText {
			sb.WriteString(p.Text)
		}
	}
	return sb.String()
}

// MessageIDs returns the ids of messages in order
func MessageIDs(messages []Message) []string {
	ids := make([]string, len(messages))
	for i := range messages {
		ids[i] = messages[i].ID
	}
	return ids
}
