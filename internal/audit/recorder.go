// Package audit records AI interactions and knowledge events. Records go to
// the store first; the Kafka copy is best effort.
package audit

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strconv"

	"github.com/deskmate/internal/kafka"
	"github.com/deskmate/pkg/models"
)

// InteractionStore is the durable interaction log
type InteractionStore interface {
	LogInteraction(ctx context.Context, interaction *models.AIInteraction) error
}

// Recorder implements the knowledge base's interaction logger and event
// publisher.
type Recorder struct {
	store             InteractionStore
	producer          kafka.Producer
	interactionsTopic string
	knowledgeTopic    string
	logger            *slog.Logger
}

// NewRecorder builds a recorder. A nil producer disables streaming.
func NewRecorder(store InteractionStore, producer kafka.Producer, cfg kafka.Config, logger *slog.Logger) *Recorder {
	if logger == nil {
		logger = slog.Default()
	}
	interactions, knowledge := cfg.InteractionsTopic, cfg.KnowledgeTopic
	if interactions == "" {
		interactions = kafka.TopicAIInteractions
	}
	if knowledge == "" {
		knowledge = kafka.TopicKnowledgeChunks
	}
	return &Recorder{
		store:             store,
		producer:          producer,
		interactionsTopic: interactions,
		knowledgeTopic:    knowledge,
		logger:            logger.With("component", "audit"),
	}
}

// LogInteraction persists the interaction, then streams it. Only the store
// write can fail the call.
func (r *Recorder) LogInteraction(ctx context.Context, interaction *models.AIInteraction) error {
	if !interaction.Metadata.Validate() {
		return fmt.Errorf("interaction %s has metadata inconsistent with kind %q", interaction.ID, interaction.Metadata.Kind)
	}
	if r.store != nil {
		if err := r.store.LogInteraction(ctx, interaction); err != nil {
			return err
		}
	}
	if r.producer == nil {
		return nil
	}

	payload, err := json.Marshal(interaction)
	if err != nil {
		r.logger.Warn("failed to marshal interaction", "id", interaction.ID, "error", err)
		return nil
	}
	headers := map[string]string{
		"kind":       string(interaction.Metadata.Kind),
		"confidence": strconv.FormatFloat(interaction.ConfidenceScore, 'f', 3, 64),
	}
	if err := r.producer.Send(ctx, r.interactionsTopic, []byte(interaction.SessionID), payload, headers); err != nil {
		r.logger.Warn("failed to stream interaction", "id", interaction.ID, "topic", r.interactionsTopic, "error", err)
	}
	return nil
}

// PublishKnowledgeEvent streams a chunk lifecycle event keyed by chunk id
func (r *Recorder) PublishKnowledgeEvent(ctx context.Context, event models.KnowledgeEvent) error {
	if r.producer == nil {
		return nil
	}
	payload, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("marshal knowledge event: %w", err)
	}
	headers := map[string]string{"event_type": string(event.Type)}
	return r.producer.Send(ctx, r.knowledgeTopic, []byte(event.ChunkID), payload, headers)
}

// DecodeKnowledgeEvent parses a message written by PublishKnowledgeEvent
func DecodeKnowledgeEvent(msg kafka.Message) (models.KnowledgeEvent, error) {
	var event models.KnowledgeEvent
	if err := json.Unmarshal(msg.Value, &event); err != nil {
		return event, fmt.Errorf("decode knowledge event: %w", err)
	}
	return event, nil
}
