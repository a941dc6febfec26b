package knowledgebase

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"strings"
	"sync"
	"testing"

	"github.com/deskmate/internal/llm"
	"github.com/deskmate/internal/store"
	"github.com/deskmate/pkg/models"
)

// keywordEmbedder maps text onto four axes: ticket, password, billing and
// everything else.
type keywordEmbedder struct {
	mu     sync.Mutex
	calls  int
	failOn string
	err    error
}

func (e *keywordEmbedder) Embed(_ context.Context, text string) ([]float32, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.calls++
	if e.err != nil {
		return nil, e.err
	}
	lower := strings.ToLower(text)
	if e.failOn != "" && strings.Contains(lower, e.failOn) {
		return nil, errors.New("embedding service unavailable")
	}

	vec := make([]float32, 4)
	if strings.Contains(lower, "ticket") {
		vec[0] = 1
	}
	if strings.Contains(lower, "password") {
		vec[1] = 1
	}
	if strings.Contains(lower, "billing") || strings.Contains(lower, "invoice") {
		vec[2] = 1
	}
	if vec[0]+vec[1]+vec[2] == 0 {
		vec[3] = 1
	}
	return vec, nil
}

func (e *keywordEmbedder) Model() string { return "test-embedding" }

type fakeChat struct {
	reply string
	err   error
	calls int
	last  llm.ChatRequest
}

func (c *fakeChat) ChatModel() string { return "test-chat" }

func (c *fakeChat) Chat(_ context.Context, req llm.ChatRequest) (string, error) {
	c.calls++
	c.last = req
	return c.reply, c.err
}

// flakyStore fails inserts for chunks whose title contains failTitle
type flakyStore struct {
	*store.MemoryStore
	failTitle string
}

func (f *flakyStore) CreateChunk(ctx context.Context, c *models.KnowledgeChunk) error {
	if f.failTitle != "" && strings.Contains(c.Title, f.failTitle) {
		return errors.New("connection reset")
	}
	return f.MemoryStore.CreateChunk(ctx, c)
}

type failingLogger struct{}

func (failingLogger) LogInteraction(context.Context, *models.AIInteraction) error {
	return errors.New("audit table unavailable")
}

type recordingPublisher struct {
	events []models.KnowledgeEvent
}

func (p *recordingPublisher) PublishKnowledgeEvent(_ context.Context, e models.KnowledgeEvent) error {
	p.events = append(p.events, e)
	return nil
}

type fixture struct {
	svc      *Service
	store    *store.MemoryStore
	embedder *keywordEmbedder
	chat     *fakeChat
	events   *recordingPublisher
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	f := &fixture{
		store:    store.NewMemoryStore(),
		embedder: &keywordEmbedder{},
		chat:     &fakeChat{reply: "Use the reset link on the sign in page."},
		events:   &recordingPublisher{},
	}
	f.svc = newTestService(Dependencies{
		Chunks:       f.store,
		Vectors:      f.store,
		Interactions: f.store,
		Events:       f.events,
		Embedder:     f.embedder,
		Chat:         f.chat,
	})
	return f
}

func newTestService(deps Dependencies) *Service {
	return NewService(deps, DefaultConfig(), slog.New(slog.NewTextHandler(io.Discard, nil)))
}

func (f *fixture) addChunk(t *testing.T, title, content string) models.KnowledgeChunk {
	t.Helper()
	c, err := f.svc.CreateChunk(context.Background(), NewChunk(title, content, nil), "admin")
	if err != nil {
		t.Fatalf("create chunk: %v", err)
	}
	return *c
}
