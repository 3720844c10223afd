package streaming

import (
	"context"
	"fmt"
	"iter"
	"log/slog"
	"time"
	"unicode/utf8"

	"turnstream/internal/background"
	"turnstream/internal/domain"
	llmModels "turnstream/internal/domain/models/llm"
	llmRepo "turnstream/internal/domain/repositories/llm"
)

// MakeStream opens the underlying generation. It is called at most once per stream id,
// by the originator, with a context that outlives the originating request.
type MakeStream func(ctx context.Context) (iter.Seq2[string, error], error)

// CoordinatorConfig holds the chunk store layout
type CoordinatorConfig struct {
	KeyPrefix string        // e.g. "resumable-stream"
	TTL       time.Duration // applies to the status slot and the text blob
	// GenerationTimeout bounds one generation; zero leaves only the runner timeout
	GenerationTimeout time.Duration
}

// Coordinator makes a generation resumable across requests and processes.
//
// The first caller for a stream id (count 1) becomes the originator: it runs the
// generation and, once the source is exhausted, writes the full text and then the done
// sentinel. Later callers (count > 1) are resumers and get the committed text. All
// coordination goes through the chunk store; nothing is shared in memory across requests.
type Coordinator struct {
	store  llmRepo.ChunkStore
	runner *background.Runner
	config CoordinatorConfig
	logger *slog.Logger
}

// NewCoordinator creates a coordinator
func NewCoordinator(store llmRepo.ChunkStore, runner *background.Runner, cfg CoordinatorConfig, logger *slog.Logger) *Coordinator {
	return &Coordinator{
		store:  store,
		runner: runner,
		config: cfg,
		logger: logger,
	}
}

func (c *Coordinator) statusKey(streamID string) string {
	return fmt.Sprintf("%s:status:%s", c.config.KeyPrefix, streamID)
}

func (c *Coordinator) chunksKey(streamID string) string {
	return fmt.Sprintf("%s:chunks:%s", c.config.KeyPrefix, streamID)
}

// ResumableStream returns the deltas of streamID, or nil if there is nothing to attach to
// (the stream finished, or a resumer arrived before the text was committed).
//
// skipChars is the number of characters (runes) the caller already has. It must be 0 for
// the originator.
func (c *Coordinator) ResumableStream(ctx context.Context, streamID string, makeStream MakeStream, skipChars int) (iter.Seq2[string, error], error) {
	if skipChars < 0 {
		return nil, fmt.Errorf("%w: skip must not be negative", domain.ErrValidation)
	}

	statusKey := c.statusKey(streamID)

	// Fast path: finished streams never touch the counter
	raw, present, err := c.store.Get(ctx, statusKey)
	if err != nil {
		return nil, fmt.Errorf("read stream status: %w", err)
	}
	state, err := llmModels.ParseStreamState(raw, present)
	if err != nil {
		return nil, err
	}
	if state.IsDone() {
		c.logger.Debug("stream already done", "stream_id", streamID)
		return nil, nil
	}

	state, err = c.store.Advance(ctx, statusKey, c.config.TTL)
	if err != nil {
		return nil, fmt.Errorf("advance stream status: %w", err)
	}

	switch {
	case state.IsDone():
		// Completion landed between the read and the advance
		return nil, nil
	case state.IsOriginator():
		if skipChars != 0 {
			return nil, fmt.Errorf("%w: skip must be 0 when starting stream %s", domain.ErrValidation, streamID)
		}
		return c.originate(ctx, streamID, makeStream)
	default:
		return c.resume(ctx, streamID, state, skipChars)
	}
}

// ResumeExisting attaches to a stream that some other request started. It never
// originates: an unseen or expired record yields nil instead of a new generation.
func (c *Coordinator) ResumeExisting(ctx context.Context, streamID string, skipChars int) (iter.Seq2[string, error], error) {
	if skipChars < 0 {
		return nil, fmt.Errorf("%w: skip must not be negative", domain.ErrValidation)
	}

	statusKey := c.statusKey(streamID)
	raw, present, err := c.store.Get(ctx, statusKey)
	if err != nil {
		return nil, fmt.Errorf("read stream status: %w", err)
	}
	state, err := llmModels.ParseStreamState(raw, present)
	if err != nil {
		return nil, err
	}
	if state.Phase != llmModels.StreamCounting {
		return nil, nil
	}

	state, err = c.store.Advance(ctx, statusKey, c.config.TTL)
	if err != nil {
		return nil, fmt.Errorf("advance stream status: %w", err)
	}
	// Count 1 means the record expired between the read and the advance
	if state.IsDone() || state.IsOriginator() {
		return nil, nil
	}
	return c.resume(ctx, streamID, state, skipChars)
}

func (c *Coordinator) resume(ctx context.Context, streamID string, state llmModels.StreamState, skipChars int) (iter.Seq2[string, error], error) {
	blob, present, err := c.store.Get(ctx, c.chunksKey(streamID))
	if err != nil {
		return nil, fmt.Errorf("read stream text: %w", err)
	}
	if !present {
		c.logger.Debug("resumer found no committed text",
			"stream_id", streamID,
			"count", state.Count,
		)
		return nil, nil
	}

	suffix := skipRunes(blob, skipChars)
	c.logger.Debug("resuming stream",
		"stream_id", streamID,
		"count", state.Count,
		"skip_chars", skipChars,
		"suffix_len", len(suffix),
	)

	return func(yield func(string, error) bool) {
		yield(suffix, nil)
	}, nil
}

// originate runs the generation on the background runner and returns a follower of it.
// The follower stops when ctx ends; the generation does not.
func (c *Coordinator) originate(ctx context.Context, streamID string, makeStream MakeStream) (iter.Seq2[string, error], error) {
	f := newForwarder(streamID, makeStream, c.config.GenerationTimeout,
		func(commitCtx context.Context, text string) {
			c.commit(commitCtx, streamID, text)
		},
		func(err error) {
			// The slot stays counting until it expires
			c.logger.Warn("stream source failed, leaving record uncommitted",
				"stream_id", streamID,
				"error", err,
			)
		},
	)

	if err := c.runner.Go(ctx, "stream:"+streamID, f.run); err != nil {
		return nil, fmt.Errorf("start stream %s: %w", streamID, err)
	}

	c.logger.Info("stream originated", "stream_id", streamID)
	return f.follow(ctx), nil
}

// commit writes the text before the sentinel so a reader that sees DONE can rely on the blob
func (c *Coordinator) commit(ctx context.Context, streamID, text string) {
	if err := c.store.Set(ctx, c.chunksKey(streamID), text, c.config.TTL); err != nil {
		c.logger.Error("failed to commit stream text", "stream_id", streamID, "error", err)
		return
	}
	if err := c.store.Set(ctx, c.statusKey(streamID), llmModels.StreamDoneSentinel, c.config.TTL); err != nil {
		c.logger.Error("failed to commit stream sentinel", "stream_id", streamID, "error", err)
		return
	}
	c.logger.Info("stream committed", "stream_id", streamID, "text_len", utf8.RuneCountInString(text))
}

// Inspection is a read-only view of a stream record
type Inspection struct {
	StreamID    string
	State       llmModels.StreamState
	TextPresent bool
	TextChars   int
}

// Inspect reads a stream record without advancing it
func (c *Coordinator) Inspect(ctx context.Context, streamID string) (*Inspection, error) {
	raw, present, err := c.store.Get(ctx, c.statusKey(streamID))
	if err != nil {
		return nil, fmt.Errorf("read stream status: %w", err)
	}
	state, err := llmModels.ParseStreamState(raw, present)
	if err != nil {
		return nil, err
	}

	blob, blobPresent, err := c.store.Get(ctx, c.chunksKey(streamID))
	if err != nil {
		return nil, fmt.Errorf("read stream text: %w", err)
	}

	return &Inspection{
		StreamID:    streamID,
		State:       state,
		TextPresent: blobPresent,
		TextChars:   utf8.RuneCountInString(blob),
	}, nil
}

// skipRunes drops the first n characters of s
func skipRunes(s string, n int) string {
	for i := range s {
		if n == 0 {
			return s[i:]
		}
		n--
	}
	return ""
}
