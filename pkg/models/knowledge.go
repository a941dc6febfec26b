package models

import (
	"time"
)

// Category classifies a knowledge chunk
type Category string

const (
	CategoryFAQ             Category = "FAQ"
	CategoryTechnical       Category = "Technical"
	CategoryBilling         Category = "Billing"
	CategoryGeneral         Category = "General"
	CategoryTroubleshooting Category = "Troubleshooting"
	CategoryAuthentication  Category = "Authentication"
	CategorySupport         Category = "Support"
	CategoryAccount         Category = "Account"
	CategoryFeatures        Category = "Features"
)

// Categories lists every valid category
var Categories = []Category{
	CategoryFAQ,
	CategoryTechnical,
	CategoryBilling,
	CategoryGeneral,
	CategoryTroubleshooting,
	CategoryAuthentication,
	CategorySupport,
	CategoryAccount,
	CategoryFeatures,
}

// Valid reports whether c is one of the known categories
func (c Category) Valid() bool {
	for _, known := range Categories {
		if c == known {
			return true
		}
	}
	return false
}

// EmbeddingStatus tracks the second phase of chunk persistence
type EmbeddingStatus string

const (
	EmbeddingPending  EmbeddingStatus = "pending"
	EmbeddingEmbedded EmbeddingStatus = "embedded"
	EmbeddingFailed   EmbeddingStatus = "failed"
)

// KnowledgeChunk is the unit of retrieval
type KnowledgeChunk struct {
	ID              string          `json:"id"`
	Title           string          `json:"title"`
	Content         string          `json:"content"`
	Category        Category        `json:"category"`
	Tags            []string        `json:"tags"`
	Confidence      *float64        `json:"confidence,omitempty"`
	Source          string          `json:"source,omitempty"`
	CreatedBy       string          `json:"createdBy,omitempty"`
	IsActive        bool            `json:"isActive"`
	UsageCount      int64           `json:"usageCount"`
	EmbeddingStatus EmbeddingStatus `json:"embeddingStatus,omitempty"`
	EmbeddingModel  string          `json:"embeddingModel,omitempty"`
	CreatedAt       time.Time       `json:"createdAt"`
	UpdatedAt       time.Time       `json:"updatedAt"`
}

// ScoredChunk is a retrieval hit
type ScoredChunk struct {
	Chunk      KnowledgeChunk `json:"chunk"`
	Similarity float64        `json:"similarity"`
}

// QAPair is a question/answer candidate produced by segmentation
type QAPair struct {
	Question   string  `json:"question"`
	Answer     string  `json:"answer"`
	Confidence float64 `json:"confidence"`
	Pattern    string  `json:"pattern"`
}

// ChunkFilter narrows a chunk listing
type ChunkFilter struct {
	Category   Category
	ActiveOnly bool
	Limit      int
	Offset     int
}
