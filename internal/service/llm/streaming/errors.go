package streaming

import (
	"errors"
	"net/http"
	"strings"

	"turnstream/internal/domain"
)

// classification rules, checked in order against the lowercased error text
var providerErrorRules = []struct {
	needles []string
	status  int
	message string
}{
	{
		needles: []string{"rate limit", "rate_limit", "ratelimit", "quota", "too many requests"},
		status:  http.StatusTooManyRequests,
		message: "Rate limit exceeded. Please try again in a moment.",
	},
	{
		needles: []string{"authentication", "invalid api key", "invalid_api_key", "invalid x-api-key", "api key"},
		status:  http.StatusUnauthorized,
		message: "The model provider rejected our credentials.",
	},
	{
		needles: []string{"model", "not found", "not_found"},
		status:  http.StatusServiceUnavailable,
		message: "The selected model is currently unavailable.",
	},
}

// ClassifyError maps a generation failure to the status and message shown to the user.
// It never changes whether anything is retried.
func ClassifyError(err error) *domain.ProviderError {
	var classified *domain.ProviderError
	if errors.As(err, &classified) {
		return classified
	}

	text := strings.ToLower(err.Error())
	for _, rule := range providerErrorRules {
		for _, needle := range rule.needles {
			if strings.Contains(text, needle) {
				return &domain.ProviderError{Status: rule.status, Message: rule.message, Cause: err}
			}
		}
	}

	return &domain.ProviderError{
		Status:  http.StatusInternalServerError,
		Message: "Something went wrong while generating the response.",
		Cause:   err,
	}
}
