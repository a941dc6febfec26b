package kafka

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/segmentio/kafka-go"
)

// Message is a consumed record
type Message struct {
	Topic   string
	Key     []byte
	Value   []byte
	Headers map[string]string
}

// HandlerFunc processes one message. Returned errors are logged and the
// message is still committed.
type HandlerFunc func(ctx context.Context, msg Message) error

// Consumer reads a topic as part of a consumer group
type Consumer struct {
	reader *kafka.Reader
	logger *slog.Logger
}

func NewConsumer(cfg Config, topic string, logger *slog.Logger) (*Consumer, error) {
	if len(cfg.Brokers) == 0 {
		return nil, ErrInvalidBrokers
	}
	if topic == "" {
		return nil, ErrInvalidTopic
	}
	if logger == nil {
		logger = slog.Default()
	}

	reader := kafka.NewReader(kafka.ReaderConfig{
		Brokers:        cfg.Brokers,
		GroupID:        cfg.ConsumerGroup,
		Topic:          topic,
		MinBytes:       1,
		MaxBytes:       1e6,
		MaxWait:        500 * time.Millisecond,
		ReadBackoffMin: 100 * time.Millisecond,
		ReadBackoffMax: time.Second,
		StartOffset:    kafka.LastOffset,
		CommitInterval: time.Second,
	})

	return &Consumer{
		reader: reader,
		logger: logger.With("component", "kafka-consumer", "topic", topic),
	}, nil
}

// Run reads until ctx is cancelled or the reader is closed
func (c *Consumer) Run(ctx context.Context, handle HandlerFunc) error {
	for {
		m, err := c.reader.ReadMessage(ctx)
		if err != nil {
			if ctx.Err() != nil || errors.Is(err, context.Canceled) {
				return nil
			}
			c.logger.Error("error reading message", "error", err)
			select {
			case <-ctx.Done():
				return nil
			case <-time.After(time.Second):
			}
			continue
		}

		msg := Message{Topic: m.Topic, Key: m.Key, Value: m.Value, Headers: make(map[string]string, len(m.Headers))}
		for _, h := range m.Headers {
			msg.Headers[h.Key] = string(h.Value)
		}
		if err := handle(ctx, msg); err != nil {
			c.logger.Warn("error handling message", "key", string(m.Key), "error", err)
		}
	}
}

func (c *Consumer) Close() error {
	return c.reader.Close()
}
