package kafka

import (
	"context"
	"errors"
	"testing"

	"github.com/segmentio/kafka-go"
)

func TestNewProducer_NoBrokers(t *testing.T) {
	if _, err := NewProducer(Config{}, nil); !errors.Is(err, ErrInvalidBrokers) {
		t.Fatalf("expected ErrInvalidBrokers, got %v", err)
	}
	if _, err := NewConsumer(Config{}, TopicKnowledgeChunks, nil); !errors.Is(err, ErrInvalidBrokers) {
		t.Fatalf("expected ErrInvalidBrokers, got %v", err)
	}
}

func TestProducer_SendValidation(t *testing.T) {
	p, err := NewProducer(Config{Brokers: []string{"localhost:9092"}}, nil)
	if err != nil {
		t.Fatal(err)
	}
	if err := p.Send(context.Background(), "", nil, []byte("{}"), nil); !errors.Is(err, ErrInvalidTopic) {
		t.Errorf("expected ErrInvalidTopic, got %v", err)
	}

	if err := p.Close(); err != nil {
		t.Fatal(err)
	}
	if err := p.Close(); err != nil {
		t.Errorf("second close: %v", err)
	}
	if err := p.Send(context.Background(), TopicAIInteractions, nil, []byte("{}"), nil); !errors.Is(err, ErrProducerClosed) {
		t.Errorf("expected ErrProducerClosed, got %v", err)
	}
}

func TestTopics(t *testing.T) {
	names := TopicNames()
	if len(names) != 2 || names[0] != TopicAIInteractions || names[1] != TopicKnowledgeChunks {
		t.Fatalf("unexpected topics %v", names)
	}
	cfg, err := GetTopicConfig(TopicKnowledgeChunks)
	if err != nil || cfg.KeyField != "chunk_id" {
		t.Errorf("unexpected config %+v, %v", cfg, err)
	}
	if _, err := GetTopicConfig("alerts"); !errors.Is(err, ErrUnknownTopic) {
		t.Errorf("expected ErrUnknownTopic, got %v", err)
	}
}

func TestCompressionCodec(t *testing.T) {
	tests := map[string]kafka.Compression{
		"gzip":    kafka.Gzip,
		"snappy":  kafka.Snappy,
		"lz4":     kafka.Lz4,
		"zstd":    kafka.Zstd,
		"unknown": kafka.Gzip,
		"none":    0,
	}
	for name, want := range tests {
		if got := compressionCodec(name); got != want {
			t.Errorf("compressionCodec(%q) = %v, want %v", name, got, want)
		}
	}
}
