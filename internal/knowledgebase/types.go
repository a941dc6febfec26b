package knowledgebase

import (
	"errors"

	"github.com/deskmate/pkg/models"
)

var (
	// ErrInvalidInput marks client-fixable request errors
	ErrInvalidInput = errors.New("invalid input")
	// ErrNotFound is returned for unknown or inactive chunks
	ErrNotFound = models.ErrNotFound
)

// Config controls retrieval and answer composition
type Config struct {
	SimilarityThreshold float64 `yaml:"similarity_threshold"`
	StrictThreshold     float64 `yaml:"strict_threshold"`
	MaxResults          int     `yaml:"max_results"`
	BroadContextLimit   int     `yaml:"broad_context_limit"`
	MaxSources          int     `yaml:"max_sources"`
	HistoryWindow       int     `yaml:"history_window"`
	Temperature         float32 `yaml:"temperature"`
	MaxAnswerTokens     int     `yaml:"max_answer_tokens"`
	SweepBatchSize      int     `yaml:"sweep_batch_size"`

	// set from the extraction section
	MinTextLength   int  `yaml:"-"`
	LLMSegmentation bool `yaml:"-"`
}

// DefaultConfig returns the standard retrieval settings
func DefaultConfig() Config {
	return Config{
		SimilarityThreshold: 0.6,
		StrictThreshold:     0.65,
		MaxResults:          8,
		BroadContextLimit:   5,
		MaxSources:          3,
		HistoryWindow:       5,
		Temperature:         0.2,
		MaxAnswerTokens:     600,
		SweepBatchSize:      100,
	}
}

// AskRequest is a question to answer from the knowledge base
type AskRequest struct {
	Question            string                    `json:"question"`
	SessionID           string                    `json:"sessionId"`
	UserID              string                    `json:"userId"`
	ConversationHistory []models.ConversationTurn `json:"conversationHistory,omitempty"`
}

// Source attributes an answer to a knowledge chunk
type Source struct {
	ID         string          `json:"id"`
	Title      string          `json:"title"`
	Category   models.Category `json:"category"`
	Similarity float64         `json:"similarity"`
}

// Answer is the reply to an AskRequest
type Answer struct {
	Answer       string   `json:"answer"`
	Confidence   float64  `json:"confidence"`
	Sources      []Source `json:"sources"`
	SessionID    string   `json:"sessionId"`
	UsedFallback bool     `json:"usedFallback"`
	Reasoning    string   `json:"reasoning,omitempty"`
}

// IngestRequest is an uploaded PDF
type IngestRequest struct {
	Data     []byte
	Filename string
	UserID   string
	AutoAdd  bool
}

// IngestResult is the preview (and optional persistence report) of a PDF
type IngestResult struct {
	Chunks           []models.KnowledgeChunk `json:"chunks"`
	ExtractionMethod string                  `json:"extractionMethod"`
	SegmentMethod    string                  `json:"segmentMethod"`
	TextSample       string                  `json:"extractedTextSample"`
	Persisted        *PersistReport          `json:"persisted,omitempty"`
}

// ProcessingMethod names the extraction and segmentation tiers used
func (r *IngestResult) ProcessingMethod() string {
	return r.ExtractionMethod + "/" + r.SegmentMethod
}

// PersistReport counts the outcome of a chunk-by-chunk insert
type PersistReport struct {
	Inserted    int      `json:"inserted"`
	Embedded    int      `json:"embedded"`
	Failed      int      `json:"failed"`
	EmbedFailed int      `json:"embedFailed"`
	ChunkIDs    []string `json:"chunkIds"`
	Errors      []string `json:"errors,omitempty"`
}

// SweepReport counts the outcome of a re-embed sweep
type SweepReport struct {
	Scanned  int `json:"scanned"`
	Embedded int `json:"embedded"`
	Failed   int `json:"failed"`
}

// ChunkUpdate is a partial edit; nil fields are left unchanged
type ChunkUpdate struct {
	Title    *string          `json:"title,omitempty"`
	Content  *string          `json:"content,omitempty"`
	Category *models.Category `json:"category,omitempty"`
	Tags     []string         `json:"tags,omitempty"`
	IsActive *bool            `json:"isActive,omitempty"`
}

// TicketDraft is a ticket being written, used to suggest articles
type TicketDraft struct {
	Subject     string `json:"subject"`
	Description string `json:"description"`
	Category    string `json:"category"`
	UserID      string `json:"userId"`
}

// Suggestion is a knowledge chunk proposed for a ticket draft
type Suggestion struct {
	Source
	Relevance string `json:"relevance"` // exact, high, medium, low
	Snippet   string `json:"snippet"`
}
