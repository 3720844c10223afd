package sse

import (
	"context"
	"log/slog"
	"time"
)

// KeepAliveWriter abstracts the mechanism for writing keep-alive messages
// so the loop can be tested without a real connection
type KeepAliveWriter interface {
	// WriteKeepAlive writes an SSE comment line
	WriteKeepAlive() error
}

// KeepAlive writes a comment every interval until ctx ends or a write fails.
// It blocks; run it on its own goroutine.
func KeepAlive(ctx context.Context, w KeepAliveWriter, interval time.Duration, logger *slog.Logger) {
	if interval <= 0 {
		return
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := w.WriteKeepAlive(); err != nil {
				// Connection dropped; the stream loop notices on its next write
				logger.Debug("keep-alive write failed, stopping", "error", err)
				return
			}
		}
	}
}
