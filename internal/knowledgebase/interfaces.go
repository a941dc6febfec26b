package knowledgebase

import (
	"context"

	"github.com/deskmate/internal/llm"
	"github.com/deskmate/pkg/models"
)

// ChunkStore persists knowledge chunk records
type ChunkStore interface {
	CreateChunk(ctx context.Context, chunk *models.KnowledgeChunk) error
	GetChunk(ctx context.Context, id string) (*models.KnowledgeChunk, error)
	UpdateChunk(ctx context.Context, chunk *models.KnowledgeChunk) error
	ListChunks(ctx context.Context, filter models.ChunkFilter) ([]models.KnowledgeChunk, error)
	DeactivateChunk(ctx context.Context, id string) error
	IncrementUsage(ctx context.Context, ids []string) error
	// ListUnembedded returns active chunks whose embedding is missing,
	// failed, or produced by a model other than model.
	ListUnembedded(ctx context.Context, model string, limit int) ([]models.KnowledgeChunk, error)
}

// VectorStore holds one embedding per chunk and answers similarity queries
type VectorStore interface {
	StoreEmbedding(ctx context.Context, chunkID string, embedding []float32, model string) error
	MarkEmbeddingFailed(ctx context.Context, chunkID string) error
	// SearchSimilar returns active embedded chunks with similarity >=
	// threshold, most similar first.
	SearchSimilar(ctx context.Context, embedding []float32, threshold float64, limit int) ([]models.ScoredChunk, error)
}

// InteractionLogger appends audit records
type InteractionLogger interface {
	LogInteraction(ctx context.Context, interaction *models.AIInteraction) error
}

// EventPublisher announces knowledge base changes
type EventPublisher interface {
	PublishKnowledgeEvent(ctx context.Context, event models.KnowledgeEvent) error
}

// Embedder turns text into a vector. The same model must serve chunks and
// queries.
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
	Model() string
}

// ChatModel runs chat completions
type ChatModel interface {
	Chat(ctx context.Context, req llm.ChatRequest) (string, error)
}

// namedChatModel is implemented by chat models that report their model name
type namedChatModel interface {
	ChatModel() string
}

// Dependencies are the collaborators of a Service. Events is optional.
type Dependencies struct {
	Chunks       ChunkStore
	Vectors      VectorStore
	Interactions InteractionLogger
	Events       EventPublisher
	Embedder     Embedder
	Chat         ChatModel
}
