package llm

// Turn triggers
const (
	TriggerSubmitMessage     = "submit-message"
	TriggerRegenerateMessage = "regenerate-message"
)

// Turn is one user-initiated request to advance a conversation.
// Submit turns carry Message; regenerate turns carry MessageID.
type Turn struct {
	ChatID    string   `json:"id"`
	UserID    string   `json:"-"` // Set by handler from auth context
	Trigger   string   `json:"trigger"`
	ModelID   string   `json:"modelId"`
	Message   *Message `json:"message,omitempty"`
	MessageID string   `json:"messageId,omitempty"`
}

// IsRegenerate reports whether the turn replaces an existing reply
func (t *Turn) IsRegenerate() bool {
	return t.Trigger == TriggerRegenerateMessage
}
