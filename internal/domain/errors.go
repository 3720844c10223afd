package domain

import (
	"errors"
	"net/http"
)

// HTTPError defines errors that can be mapped to HTTP status codes.
type HTTPError interface {
	error
	StatusCode() int
}

// Sentinel errors - use with errors.Is()
var (
	ErrNotFound     = errors.New("not found")
	ErrConflict     = errors.New("already exists")
	ErrValidation   = errors.New("validation failed")
	ErrUnauthorized = errors.New("unauthorized")
	ErrForbidden    = errors.New("forbidden")

	// ErrStoreUnavailable means the chunk store could not be reached.
	// Durability of the stream cannot be guaranteed, so callers treat it as fatal.
	ErrStoreUnavailable = errors.New("chunk store unavailable")
)

// ProviderError is a Generation Source failure classified for the client.
// Classification only picks the status and message; nothing is retried.
type ProviderError struct {
	Status  int    // 429, 401, 503 or 500
	Message string // Safe, human-readable text
	Cause   error
}

func (e *ProviderError) Error() string { return e.Message }

// StatusCode implements the HTTPError interface
func (e *ProviderError) StatusCode() int { return e.Status }

func (e *ProviderError) Unwrap() error { return e.Cause }

// ConflictError represents a resource conflict with details about the existing resource
type ConflictError struct {
	Message      string // Human-readable error message
	ResourceType string // Type of resource (chat, message)
	ResourceID   string // ID of the existing/conflicting resource
}

// Error implements the error interface
func (e *ConflictError) Error() string {
	return e.Message
}

// StatusCode implements the HTTPError interface
func (e *ConflictError) StatusCode() int {
	return http.StatusConflict
}

// Is allows errors.Is() to match against ErrConflict
func (e *ConflictError) Is(target error) bool {
	return target == ErrConflict
}
