package models

import (
	"time"
)

// EventType represents the type of knowledge base event
type EventType string

const (
	EventTypeChunkCreated     EventType = "chunk.created"
	EventTypeChunkUpdated     EventType = "chunk.updated"
	EventTypeChunkDeactivated EventType = "chunk.deactivated"
	EventTypeChunkEmbedded    EventType = "chunk.embedded"
	EventTypeEmbeddingFailed  EventType = "chunk.embedding_failed"
)

// KnowledgeEvent announces a change to a knowledge chunk
type KnowledgeEvent struct {
	ID        string          `json:"id"`
	Type      EventType       `json:"type"`
	ChunkID   string          `json:"chunkId"`
	Title     string          `json:"title,omitempty"`
	Category  Category        `json:"category,omitempty"`
	Status    EmbeddingStatus `json:"embeddingStatus,omitempty"`
	Actor     string          `json:"actor,omitempty"`
	Source    string          `json:"source,omitempty"`
	Timestamp time.Time       `json:"timestamp"`
}
