package sse

import (
	"errors"
	"fmt"
	"io"
	"net/http"
	"sync"

	llmModels "turnstream/internal/domain/models/llm"
)

// ErrStreamingUnsupported means the ResponseWriter cannot flush
var ErrStreamingUnsupported = errors.New("streaming unsupported by response writer")

// Writer frames events on an SSE response. Writes are serialized so the
// keep-alive goroutine and the event loop can share one connection.
type Writer struct {
	mu      sync.Mutex
	w       io.Writer
	flusher http.Flusher
}

// NewWriter sets the SSE headers and sends the 200 status line
func NewWriter(w http.ResponseWriter) (*Writer, error) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		return nil, ErrStreamingUnsupported
	}

	h := w.Header()
	h.Set("Content-Type", "text/event-stream")
	h.Set("Cache-Control", "no-cache")
	h.Set("Connection", "keep-alive")
	h.Set("X-Accel-Buffering", "no") // Disable nginx buffering
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	return &Writer{w: w, flusher: flusher}, nil
}

// WriteEvent marshals data as JSON and writes one named event
func (s *Writer) WriteEvent(eventType string, data interface{}) error {
	frame, err := llmModels.FormatSSE(eventType, data)
	if err != nil {
		return err
	}
	return s.write(frame)
}

// WriteKeepAlive writes an SSE comment, which clients ignore
func (s *Writer) WriteKeepAlive() error {
	return s.write(": keepalive\n\n")
}

func (s *Writer) write(frame string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, err := io.WriteString(s.w, frame); err != nil {
		return fmt.Errorf("write sse frame: %w", err)
	}
	s.flusher.Flush()
	return nil
}
