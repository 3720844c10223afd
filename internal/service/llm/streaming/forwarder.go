package streaming

import (
	"context"
	"errors"
	"iter"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	mstream "github.com/haowjy/meridian-stream-go"

	"turnstream/internal/domain"
	llmModels "turnstream/internal/domain/models/llm"
)

// pumpClientID is the client the runner task holds to learn when the stream's hooks ran
const pumpClientID = "pump"

// forwarder runs one generation as an mstream.Stream inside the originating process.
//
// Client channels are only used as wake-ups: mstream drops an event for a client whose
// channel is full, so followers read deltas back from the stream buffer by event id.
// Nothing here is visible to other processes; they coordinate through the chunk store.
type forwarder struct {
	stream    *mstream.Stream
	commitCtx context.Context
}

// newForwarder wraps makeStream in a stream. onComplete receives the full text and runs
// only after the source was exhausted without error.
func newForwarder(streamID string, makeStream MakeStream, timeout time.Duration, onComplete func(ctx context.Context, text string), onError func(err error)) *forwarder {
	f := &forwarder{commitCtx: context.Background()}

	opts := []mstream.StreamOption{
		// Ids make GetEventsSince usable for followers
		mstream.WithEventIDs(true),
		mstream.WithOnComplete(func(string) {
			onComplete(f.commitCtx, f.text())
		}),
		mstream.WithOnError(func(_ string, err error) {
			onError(err)
		}),
	}
	if timeout > 0 {
		opts = append(opts, mstream.WithTimeout(timeout))
	}

	f.stream = mstream.NewStream(streamID, func(ctx context.Context, send func(mstream.Event)) error {
		seq, err := makeStream(ctx)
		if err != nil {
			return interruptedError(err)
		}
		for delta, err := range seq {
			if err != nil {
				return interruptedError(err)
			}
			send(mstream.NewEvent([]byte(delta)).WithType(llmModels.SSEEventTextDelta))
		}
		// A source that stops quietly on cancellation must not be committed as complete
		if err := ctx.Err(); err != nil {
			return interruptedError(err)
		}
		return nil
	}, opts...)

	return f
}

// run starts the stream and blocks until it ended and its hooks returned.
// Cancelling ctx cancels the generation.
func (f *forwarder) run(ctx context.Context) {
	f.commitCtx = ctx
	stop := context.AfterFunc(ctx, f.stream.Cancel)
	defer stop()

	done := f.stream.AddClient(pumpClientID)
	f.stream.Start()
	// mstream closes client channels after the completion hooks
	for range done {
	}
}

// follow yields every delta from the first one, in order, until the stream ends.
// When ctx ends the follower stops with ctx.Err(); the generation keeps going.
func (f *forwarder) follow(ctx context.Context) iter.Seq2[string, error] {
	return func(yield func(string, error) bool) {
		clientID := uuid.NewString()
		wake := f.stream.AddClient(clientID)
		defer f.stream.RemoveClient(clientID)

		lastID := ""
		for {
			// Status before buffer: once terminal, the buffer holds every event
			finished := isTerminal(f.stream.Status())

			var events []mstream.Event
			if lastID == "" {
				events = f.stream.GetCatchupEvents("")
			} else {
				events = f.stream.GetEventsSince(lastID)
			}
			for _, ev := range events {
				lastID = ev.ID
				if !yield(string(ev.Data), nil) {
					return
				}
			}

			if finished {
				if err := f.err(); err != nil {
					yield("", err)
				}
				return
			}
			if len(events) > 0 {
				continue
			}

			select {
			case <-wake:
			case <-ctx.Done():
				yield("", ctx.Err())
				return
			}
		}
	}
}

// text joins every delta sent so far
func (f *forwarder) text() string {
	var sb strings.Builder
	for _, ev := range f.stream.SnapshotBuffer() {
		sb.Write(ev.Data)
	}
	return sb.String()
}

// err is the terminal error of a finished stream
func (f *forwarder) err() error {
	switch f.stream.Status() {
	case mstream.StatusComplete:
		return nil
	case mstream.StatusError:
		return f.stream.Error()
	default:
		return interruptedError(context.Canceled)
	}
}

func isTerminal(status mstream.Status) bool {
	switch status {
	case mstream.StatusComplete, mstream.StatusError, mstream.StatusCancelled:
		return true
	default:
		return false
	}
}

// interruptedError turns a context error raised on the generation side into a classified
// failure, so it cannot be mistaken for the client going away
func interruptedError(err error) error {
	var classified *domain.ProviderError
	if errors.As(err, &classified) {
		return err
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return &domain.ProviderError{
			Status:  http.StatusServiceUnavailable,
			Message: "The response was interrupted before it finished. Please try again.",
			Cause:   err,
		}
	}
	return err
}
