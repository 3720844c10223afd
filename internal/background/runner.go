// Package background runs named tasks that must outlive the request that started them,
// such as a generation that keeps going after the client disconnected.
package background

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"runtime/debug"
	"sync"
	"time"
)

// ErrClosed is returned by Go once Shutdown has started
var ErrClosed = errors.New("background runner is shutting down")

// Runner tracks detached tasks so the process can drain them before exiting.
type Runner struct {
	logger  *slog.Logger
	timeout time.Duration

	mu     sync.Mutex
	closed bool
	wg     sync.WaitGroup

	// base is cancelled only when Shutdown gives up waiting
	base   context.Context
	cancel context.CancelFunc
}

// New creates a runner. timeout bounds every task; zero means no bound.
func New(logger *slog.Logger, timeout time.Duration) *Runner {
	base, cancel := context.WithCancel(context.Background())
	return &Runner{
		logger:  logger,
		timeout: timeout,
		base:    base,
		cancel:  cancel,
	}
}

// Go starts fn on its own goroutine.
// The task context keeps the values of parent but not its cancellation, so a finished
// HTTP request does not stop the task. It ends on the runner timeout or a forced shutdown.
func (r *Runner) Go(parent context.Context, name string, fn func(ctx context.Context)) error {
	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return fmt.Errorf("start %s: %w", name, ErrClosed)
	}
	r.wg.Add(1)
	r.mu.Unlock()

	var (
		ctx    context.Context
		cancel context.CancelFunc
	)
	if r.timeout > 0 {
		ctx, cancel = context.WithTimeout(context.WithoutCancel(parent), r.timeout)
	} else {
		ctx, cancel = context.WithCancel(context.WithoutCancel(parent))
	}
	stop := context.AfterFunc(r.base, cancel)

	go func() {
		defer r.wg.Done()
		defer stop()
		defer cancel()
		defer func() {
			if rec := recover(); rec != nil {
				r.logger.Error("background task panicked",
					"task", name,
					"panic", rec,
					"stack", string(debug.Stack()),
				)
			}
		}()

		start := time.Now()
		fn(ctx)

		if err := ctx.Err(); errors.Is(err, context.DeadlineExceeded) {
			r.logger.Warn("background task hit its timeout", "task", name, "timeout", r.timeout)
		}
		r.logger.Debug("background task finished", "task", name, "duration_ms", time.Since(start).Milliseconds())
	}()

	return nil
}

// Shutdown stops accepting tasks and waits for running ones.
// If ctx ends first, running tasks are cancelled and ctx.Err() is returned.
func (r *Runner) Shutdown(ctx context.Context) error {
	r.mu.Lock()
	r.closed = true
	r.mu.Unlock()

	done := make(chan struct{})
	go func() {
		r.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		r.cancel()
		return nil
	case <-ctx.Done():
		r.cancel()
		<-done
		return ctx.Err()
	}
}
