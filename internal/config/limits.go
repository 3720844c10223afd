package config

const (
	// MaxChatTitleLength is the maximum length for chat titles.
	// Limited to 255 to fit in PostgreSQL VARCHAR(255).
	MaxChatTitleLength = 255

	// DerivedTitleLength is how many characters of the first message
	// become the title of a chat created on first submit.
	DerivedTitleLength = 80

	// MaxMessageTextLength is the maximum length of a single text part.
	MaxMessageTextLength = 32000

	// MaxMessageParts is the maximum number of parts in one user message.
	MaxMessageParts = 20

	// MaxModelIDLength bounds the model identifier accepted from clients.
	MaxModelIDLength = 128

	// MaxIDLength bounds client-generated chat and message ids.
	MaxIDLength = 128
)
