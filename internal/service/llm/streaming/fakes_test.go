package streaming

import (
	"context"
	"fmt"
	"io"
	"iter"
	"log/slog"
	"slices"
	"sync"
	"testing"
	"time"

	"turnstream/internal/background"
	"turnstream/internal/capabilities"
	"turnstream/internal/config"
	"turnstream/internal/domain"
	llmModels "turnstream/internal/domain/models/llm"
	llmSvc "turnstream/internal/domain/services/llm"
	"turnstream/internal/repository/memory"
)

type fakeMessageRepo struct {
	mu        sync.Mutex
	messages  map[string][]llmModels.Message
	streams   map[string][]string
	deleted   [][]string
	deleteErr error
	appendErr error
}

func newFakeMessageRepo() *fakeMessageRepo {
	return &fakeMessageRepo{
		messages: map[string][]llmModels.Message{},
		streams:  map[string][]string{},
	}
}

func (r *fakeMessageRepo) ListMessagesByChat(ctx context.Context, chatID string) ([]llmModels.Message, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return slices.Clone(r.messages[chatID]), nil
}

func (r *fakeMessageRepo) AppendMessages(ctx context.Context, messages []llmModels.Message) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.appendErr != nil {
		return r.appendErr
	}
	for _, m := range messages {
		r.messages[m.ChatID] = append(r.messages[m.ChatID], m)
	}
	return nil
}

func (r *fakeMessageRepo) DeleteMessagesByIDs(ctx context.Context, chatID string, ids []string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.deleted = append(r.deleted, slices.Clone(ids))
	if r.deleteErr != nil {
		return r.deleteErr
	}
	r.messages[chatID] = slices.DeleteFunc(r.messages[chatID], func(m llmModels.Message) bool {
		return slices.Contains(ids, m.ID)
	})
	return nil
}

func (r *fakeMessageRepo) CreateStreamID(ctx context.Context, record *llmModels.StreamRecord) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.streams[record.ChatID] = append(r.streams[record.ChatID], record.ID)
	return nil
}

func (r *fakeMessageRepo) GetLatestStreamID(ctx context.Context, chatID string) (string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	ids := r.streams[chatID]
	if len(ids) == 0 {
		return "", domain.ErrNotFound
	}
	return ids[len(ids)-1], nil
}

func (r *fakeMessageRepo) history(chatID string) []llmModels.Message {
	r.mu.Lock()
	defer r.mu.Unlock()
	return slices.Clone(r.messages[chatID])
}

type fakeChatService struct {
	mu       sync.Mutex
	owners   map[string]string
	messages *fakeMessageRepo
}

func (s *fakeChatService) AppendMessages(ctx context.Context, chatID string, messages []llmModels.Message) error {
	return s.messages.AppendMessages(ctx, messages)
}

func (s *fakeChatService) EnsureChat(ctx context.Context, chatID, userID string, first *llmModels.Message) (*llmModels.Chat, error) {
	s.mu.Lock()
	if _, ok := s.owners[chatID]; !ok {
		s.owners[chatID] = userID
	}
	s.mu.Unlock()
	return s.GetChat(ctx, chatID, userID)
}

func (s *fakeChatService) GetChat(ctx context.Context, chatID, userID string) (*llmModels.Chat, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	owner, ok := s.owners[chatID]
	if !ok {
		return nil, fmt.Errorf("chat %s: %w", chatID, domain.ErrNotFound)
	}
	if owner != userID {
		return nil, fmt.Errorf("chat %s: %w", chatID, domain.ErrForbidden)
	}
	return &llmModels.Chat{ID: chatID, UserID: owner}, nil
}

// fakeSource replays scripted deltas and records every request
type fakeSource struct {
	mu       sync.Mutex
	deltas   []llmSvc.Delta
	err      error
	requests []*llmSvc.GenerateRequest
}

func (s *fakeSource) Generate(ctx context.Context, req *llmSvc.GenerateRequest) iter.Seq2[llmSvc.Delta, error] {
	s.mu.Lock()
	s.requests = append(s.requests, req)
	deltas, err := s.deltas, s.err
	s.mu.Unlock()

	return func(yield func(llmSvc.Delta, error) bool) {
		for _, d := range deltas {
			if !yield(d, nil) {
				return
			}
		}
		if err != nil {
			yield(llmSvc.Delta{}, err)
		}
	}
}

func (s *fakeSource) calls() []*llmSvc.GenerateRequest {
	s.mu.Lock()
	defer s.mu.Unlock()
	return slices.Clone(s.requests)
}

type fakeCatalog map[string]*capabilities.ModelCapabilities

func (c fakeCatalog) GetModel(id string) (*capabilities.ModelCapabilities, error) {
	m, ok := c[id]
	if !ok {
		return nil, fmt.Errorf("unknown model: %s", id)
	}
	return m, nil
}

func (c fakeCatalog) HasModel(id string) bool {
	_, ok := c[id]
	return ok
}

type serviceFixture struct {
	service  *Service
	messages *fakeMessageRepo
	chats    *fakeChatService
	source   *fakeSource
	store    *memory.ChunkStore
	runner   *background.Runner
}

var fixedNow = time.Date(2025, 3, 14, 9, 26, 0, 0, time.UTC)

func newServiceFixture(t *testing.T) *serviceFixture {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	store := memory.NewChunkStore()
	runner := background.New(logger, time.Minute)
	t.Cleanup(func() { _ = store.Close() })

	messages := newFakeMessageRepo()
	f := &serviceFixture{
		messages: messages,
		chats:    &fakeChatService{owners: map[string]string{}, messages: messages},
		source:   &fakeSource{},
		store:    store,
		runner:   runner,
	}

	coordinator := NewCoordinator(store, runner, CoordinatorConfig{KeyPrefix: "test", TTL: time.Hour}, logger)
	catalog := fakeCatalog{
		"m1": {ID: "m1", DisplayName: "Model One", ProviderModel: "lorem-fast", MaxOutput: 1024},
	}
	cfg := &config.Config{DefaultModel: "m1"}

	f.service = NewService(f.chats, f.messages, f.source, catalog, coordinator, cfg, logger)
	f.service.now = func() time.Time { return fixedNow }

	var seq int
	var mu sync.Mutex
	f.service.newID = func() string {
		mu.Lock()
		defer mu.Unlock()
		seq++
		return fmt.Sprintf("id-%d", seq)
	}
	return f
}

func (f *serviceFixture) drain(t *testing.T) {
	t.Helper()
	if err := f.runner.Shutdown(context.Background()); err != nil {
		t.Fatalf("drain background tasks: %v", err)
	}
}

func msg(id, chatID, role, text string) llmModels.Message {
	return llmModels.Message{
		ID:     id,
		ChatID: chatID,
		Role:   role,
		Parts:  []llmModels.Part{{Type: llmModels.PartTypeText, Text: text}},
	}
}
