// Package kafka publishes interaction and knowledge events and consumes
// them for background workers.
package kafka

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/segmentio/kafka-go"
)

// Config is the broker and topic configuration
type Config struct {
	Enabled           bool          `yaml:"enabled"`
	Brokers           []string      `yaml:"brokers"`
	ClientID          string        `yaml:"client_id"`
	ConsumerGroup     string        `yaml:"consumer_group"`
	Compression       string        `yaml:"compression"`
	BatchTimeout      time.Duration `yaml:"batch_timeout"`
	CreateTopics      bool          `yaml:"create_topics"`
	InteractionsTopic string        `yaml:"interactions_topic"`
	KnowledgeTopic    string        `yaml:"knowledge_topic"`
}

// DefaultConfig returns the settings used when the config file omits them
func DefaultConfig() Config {
	return Config{
		ClientID:          "deskmate",
		ConsumerGroup:     "deskmate-sweeper",
		Compression:       "gzip",
		BatchTimeout:      10 * time.Millisecond,
		InteractionsTopic: TopicAIInteractions,
		KnowledgeTopic:    TopicKnowledgeChunks,
	}
}

// Producer defines the interface for Kafka message production
type Producer interface {
	Send(ctx context.Context, topic string, key []byte, value []byte, headers map[string]string) error
	Close() error
}

// kafkaProducer implements the Producer interface
type kafkaProducer struct {
	writer *kafka.Writer
	logger *slog.Logger
	mu     sync.Mutex
	closed bool
}

// NewProducer creates a producer writing to the configured brokers. Every
// message names its own topic.
func NewProducer(cfg Config, logger *slog.Logger) (Producer, error) {
	if len(cfg.Brokers) == 0 {
		return nil, ErrInvalidBrokers
	}
	if logger == nil {
		logger = slog.Default()
	}

	batchTimeout := cfg.BatchTimeout
	if batchTimeout <= 0 {
		batchTimeout = 10 * time.Millisecond
	}

	writer := &kafka.Writer{
		Addr:                   kafka.TCP(cfg.Brokers...),
		Balancer:               &kafka.Hash{},
		Compression:            compressionCodec(cfg.Compression),
		RequiredAcks:           kafka.RequireAll,
		BatchTimeout:           batchTimeout,
		AllowAutoTopicCreation: !cfg.CreateTopics,
		Transport:              &kafka.Transport{ClientID: cfg.ClientID},
	}

	return &kafkaProducer{
		writer: writer,
		logger: logger.With("component", "kafka-producer"),
	}, nil
}

// Send sends a message to Kafka
func (p *kafkaProducer) Send(ctx context.Context, topic string, key []byte, value []byte, headers map[string]string) error {
	if topic == "" {
		return ErrInvalidTopic
	}

	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return ErrProducerClosed
	}
	p.mu.Unlock()

	message := kafka.Message{
		Topic: topic,
		Key:   key,
		Value: value,
		Time:  time.Now(),
	}
	for k, v := range headers {
		message.Headers = append(message.Headers, kafka.Header{Key: k, Value: []byte(v)})
	}

	if err := p.writer.WriteMessages(ctx, message); err != nil {
		return fmt.Errorf("write to %s: %w", topic, err)
	}
	return nil
}

// Close closes the producer
func (p *kafkaProducer) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.closed {
		return nil
	}

	p.closed = true
	p.logger.Info("closing kafka producer")
	return p.writer.Close()
}

// Ping dials the first reachable broker
func Ping(ctx context.Context, brokers []string) error {
	if len(brokers) == 0 {
		return ErrInvalidBrokers
	}
	var lastErr error
	for _, broker := range brokers {
		conn, err := kafka.DialContext(ctx, "tcp", broker)
		if err != nil {
			lastErr = err
			continue
		}
		return conn.Close()
	}
	return fmt.Errorf("no kafka broker reachable: %w", lastErr)
}

func compressionCodec(name string) kafka.Compression {
	switch name {
	case "snappy":
		return kafka.Snappy
	case "lz4":
		return kafka.Lz4
	case "zstd":
		return kafka.Zstd
	case "none", "":
		return 0
	}
	return kafka.Gzip
}
