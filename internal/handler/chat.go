package handler

import (
	"context"
	"errors"
	"iter"
	"log/slog"
	"net/http"
	"strconv"

	"turnstream/internal/domain"
	llmModels "turnstream/internal/domain/models/llm"
	llmSvc "turnstream/internal/domain/services/llm"
	"turnstream/internal/handler/sse"
	"turnstream/internal/httputil"
)

// ChatHandler serves the turn endpoint and its resume endpoint.
// Handlers only talk to services, never to repositories or the chunk store.
type ChatHandler struct {
	streamingService llmSvc.StreamingService
	sseConfig        *sse.Config
	logger           *slog.Logger
}

// NewChatHandler creates a new chat handler
func NewChatHandler(streamingService llmSvc.StreamingService, sseConfig *sse.Config, logger *slog.Logger) *ChatHandler {
	if sseConfig == nil {
		sseConfig = sse.DefaultConfig()
	}
	return &ChatHandler{
		streamingService: streamingService,
		sseConfig:        sseConfig,
		logger:           logger,
	}
}

// PostChat starts a turn and streams the reply
// POST /api/chat
//
// Failures before the first delta are plain JSON errors. Once the SSE response has
// started, a failure becomes an in-band "error" event and the text already sent stays valid.
func (h *ChatHandler) PostChat(w http.ResponseWriter, r *http.Request) {
	var turn llmModels.Turn
	if err := httputil.ParseJSON(w, r, &turn); err != nil {
		httputil.RespondError(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	turn.UserID = httputil.GetUserID(r)
	if turn.Message != nil && turn.Message.Role == "" {
		turn.Message.Role = llmModels.RoleUser
	}

	stream, err := h.streamingService.StartTurn(r.Context(), &turn)
	if err != nil {
		h.logger.Debug("turn rejected", "chat_id", turn.ChatID, "error", err)
		handleError(w, err)
		return
	}

	next, stop := iter.Pull2(stream.Deltas)
	defer stop()

	// Peek so a provider that fails immediately still gets a real HTTP status.
	// Nothing is written until the first delta or error, keep-alive included, so a slow
	// first token can hit a proxy idle timeout. The stream id is committed already and
	// GET /api/chat/{id}/stream recovers the reply in that case.
	first, err, ok := next()
	if ok && err != nil {
		if isDisconnect(err) {
			return
		}
		h.logger.Warn("generation failed before first delta",
			"chat_id", stream.ChatID,
			"stream_id", stream.StreamID,
			"error", err,
		)
		handleError(w, err)
		return
	}

	sw, err := sse.NewWriter(w)
	if err != nil {
		handleError(w, err)
		return
	}
	stopKeepAlive := h.startKeepAlive(r.Context(), sw)
	defer stopKeepAlive()

	if err := sw.WriteEvent(llmModels.SSEEventStreamStart, llmModels.StreamStartEvent{
		StreamID: stream.StreamID,
		ChatID:   stream.ChatID,
	}); err != nil {
		h.logDisconnect(stream.StreamID, err)
		return
	}

	if ok {
		if err := sw.WriteEvent(llmModels.SSEEventTextDelta, llmModels.TextDeltaEvent{Delta: first}); err != nil {
			h.logDisconnect(stream.StreamID, err)
			return
		}
	}

	h.relay(sw, stream.StreamID, func(yield func(string, error) bool) {
		for {
			delta, err, ok := next()
			if !ok || !yield(delta, err) {
				return
			}
		}
	})
}

// ResumeStream re-attaches a client to the chat's latest generation
// GET /api/chat/{id}/stream?skip=N
//
// 204 means there is nothing to attach to: no generation ran, or it is in flight but not
// yet committed and no finished reply can stand in for it.
func (h *ChatHandler) ResumeStream(w http.ResponseWriter, r *http.Request) {
	chatID, ok := PathParam(w, r, "id", "Chat ID")
	if !ok {
		return
	}

	skip := 0
	if raw := r.URL.Query().Get("skip"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 0 {
			httputil.RespondError(w, http.StatusBadRequest, "skip must be a non-negative integer")
			return
		}
		skip = n
	}

	result, err := h.streamingService.ResumeTurn(r.Context(), chatID, httputil.GetUserID(r), skip)
	if err != nil {
		handleError(w, err)
		return
	}

	if result.Deltas == nil && result.Message == nil {
		w.WriteHeader(http.StatusNoContent)
		return
	}

	sw, err := sse.NewWriter(w)
	if err != nil {
		handleError(w, err)
		return
	}

	if result.Deltas == nil {
		if err := sw.WriteEvent(llmModels.SSEEventMessage, llmModels.MessageEvent{Message: result.Message}); err != nil {
			h.logDisconnect(result.StreamID, err)
		}
		return
	}

	stopKeepAlive := h.startKeepAlive(r.Context(), sw)
	defer stopKeepAlive()

	if err := sw.WriteEvent(llmModels.SSEEventStreamStart, llmModels.StreamStartEvent{
		StreamID:  result.StreamID,
		ChatID:    chatID,
		Resumed:   true,
		SkipChars: skip,
	}); err != nil {
		h.logDisconnect(result.StreamID, err)
		return
	}

	h.relay(sw, result.StreamID, result.Deltas)
}

// relay writes deltas as text_delta events and closes the stream with finish or error
func (h *ChatHandler) relay(sw *sse.Writer, streamID string, deltas iter.Seq2[string, error]) {
	for delta, err := range deltas {
		if err != nil {
			if isDisconnect(err) {
				h.logger.Info("client disconnected, generation continues", "stream_id", streamID)
				return
			}
			h.logger.Warn("stream ended with error", "stream_id", streamID, "error", err)
			if werr := sw.WriteEvent(llmModels.SSEEventError, errorEvent(streamID, err)); werr != nil {
				h.logDisconnect(streamID, werr)
			}
			return
		}

		if err := sw.WriteEvent(llmModels.SSEEventTextDelta, llmModels.TextDeltaEvent{Delta: delta}); err != nil {
			h.logDisconnect(streamID, err)
			return
		}
	}

	if err := sw.WriteEvent(llmModels.SSEEventFinish, llmModels.FinishEvent{StreamID: streamID}); err != nil {
		h.logDisconnect(streamID, err)
	}
}

// startKeepAlive runs keep-alives until the returned stop is called.
// stop waits for the goroutine so nothing writes after the handler returns.
func (h *ChatHandler) startKeepAlive(ctx context.Context, sw *sse.Writer) (stop func()) {
	ctx, cancel := context.WithCancel(ctx)
	done := make(chan struct{})
	go func() {
		defer close(done)
		sse.KeepAlive(ctx, sw, h.sseConfig.KeepAliveInterval, h.logger)
	}()
	return func() {
		cancel()
		<-done
	}
}

func (h *ChatHandler) logDisconnect(streamID string, err error) {
	h.logger.Info("client disconnected during write", "stream_id", streamID, "error", err)
}

// errorEvent builds the in-band error; provider errors keep their classified status
func errorEvent(streamID string, err error) llmModels.ErrorEvent {
	event := llmModels.ErrorEvent{
		StreamID: streamID,
		Status:   http.StatusInternalServerError,
		Message:  "internal server error",
	}
	var httpErr domain.HTTPError
	if errors.As(err, &httpErr) {
		event.Status = httpErr.StatusCode()
		event.Message = httpErr.Error()
	}
	return event
}

// isDisconnect reports the request context ending. A classified error is a failure to
// report even when it wraps a context error.
func isDisconnect(err error) bool {
	var httpErr domain.HTTPError
	if errors.As(err, &httpErr) {
		return false
	}
	return errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded)
}
