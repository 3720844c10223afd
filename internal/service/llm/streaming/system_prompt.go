package streaming

import (
	"fmt"
	"time"
)

// BuildSystemPrompt names the model and pins the current time so the assistant can
// answer date questions without a tool
func BuildSystemPrompt(modelName string, now time.Time) string {
	return fmt.Sprintf(
		"You are a helpful assistant powered by %s.\nThe current date and time is %s.\nAnswer in Markdown when formatting helps.",
		modelName,
		now.UTC().Format("Monday, January 2, 2006 15:04 MST"),
	)
}
