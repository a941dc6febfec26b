package audit

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/deskmate/internal/kafka"
	"github.com/deskmate/internal/store"
	"github.com/deskmate/pkg/models"
)

type sent struct {
	topic   string
	key     string
	value   []byte
	headers map[string]string
}

type fakeProducer struct {
	messages []sent
	err      error
}

func (p *fakeProducer) Send(_ context.Context, topic string, key, value []byte, headers map[string]string) error {
	if p.err != nil {
		return p.err
	}
	p.messages = append(p.messages, sent{topic: topic, key: string(key), value: value, headers: headers})
	return nil
}

func (p *fakeProducer) Close() error { return nil }

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func answerInteraction() *models.AIInteraction {
	return &models.AIInteraction{
		ID:         "i-1",
		SessionID:  "s-1",
		InputText:  "How do I reset my password?",
		AIResponse: models.FallbackAnswer,
		Metadata: models.InteractionMetadata{
			Kind:   models.InteractionRAGAnswer,
			Answer: &models.AnswerMetadata{UsedFallback: true},
		},
		CreatedAt: time.Now().UTC(),
	}
}

func TestLogInteraction_StoresAndStreams(t *testing.T) {
	mem := store.NewMemoryStore()
	producer := &fakeProducer{}
	r := NewRecorder(mem, producer, kafka.Config{}, quietLogger())

	if err := r.LogInteraction(context.Background(), answerInteraction()); err != nil {
		t.Fatal(err)
	}
	if len(mem.Interactions()) != 1 {
		t.Fatalf("interaction not stored")
	}
	if len(producer.messages) != 1 {
		t.Fatalf("expected 1 message, got %d", len(producer.messages))
	}
	msg := producer.messages[0]
	if msg.topic != kafka.TopicAIInteractions || msg.key != "s-1" || msg.headers["kind"] != "rag_answer" {
		t.Errorf("unexpected message %+v", msg)
	}
}

func TestLogInteraction_StreamFailureIsNotFatal(t *testing.T) {
	mem := store.NewMemoryStore()
	r := NewRecorder(mem, &fakeProducer{err: errors.New("broker down")}, kafka.Config{}, quietLogger())

	if err := r.LogInteraction(context.Background(), answerInteraction()); err != nil {
		t.Fatalf("stream failure surfaced: %v", err)
	}
	if len(mem.Interactions()) != 1 {
		t.Error("interaction not stored")
	}
}

func TestLogInteraction_RejectsInconsistentMetadata(t *testing.T) {
	mem := store.NewMemoryStore()
	r := NewRecorder(mem, nil, kafka.Config{}, quietLogger())

	bad := answerInteraction()
	bad.Metadata.Ingest = &models.IngestMetadata{Filename: "faq.pdf"}
	if err := r.LogInteraction(context.Background(), bad); err == nil {
		t.Fatal("expected error for metadata with two variants")
	}
	if len(mem.Interactions()) != 0 {
		t.Error("inconsistent interaction stored")
	}
}

func TestPublishKnowledgeEvent(t *testing.T) {
	producer := &fakeProducer{}
	r := NewRecorder(nil, producer, kafka.Config{KnowledgeTopic: "kb-events"}, quietLogger())

	event := models.KnowledgeEvent{ID: "e-1", Type: models.EventTypeEmbeddingFailed, ChunkID: "c-1"}
	if err := r.PublishKnowledgeEvent(context.Background(), event); err != nil {
		t.Fatal(err)
	}
	msg := producer.messages[0]
	if msg.topic != "kb-events" || msg.key != "c-1" || msg.headers["event_type"] != string(models.EventTypeEmbeddingFailed) {
		t.Errorf("unexpected message %+v", msg)
	}

	decoded, err := DecodeKnowledgeEvent(kafka.Message{Value: msg.value})
	if err != nil {
		t.Fatal(err)
	}
	if decoded.ChunkID != "c-1" || decoded.Type != models.EventTypeEmbeddingFailed {
		t.Errorf("unexpected decoded event %+v", decoded)
	}

	if err := NewRecorder(nil, nil, kafka.Config{}, nil).PublishKnowledgeEvent(context.Background(), event); err != nil {
		t.Errorf("disabled recorder returned %v", err)
	}
}
