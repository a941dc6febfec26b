package models

import (
	"time"
)

// FallbackAnswer is the fixed reply used when no grounded answer exists.
// Detection compares against this exact string after trimming whitespace.
const FallbackAnswer = "I am unable to answer this question with the available information."

// InteractionKind identifies which metadata variant an interaction carries
type InteractionKind string

const (
	InteractionRAGAnswer     InteractionKind = "rag_answer"
	InteractionPDFIngest     InteractionKind = "pdf_ingest"
	InteractionTicketSuggest InteractionKind = "ticket_suggest"
)

// AIInteraction is an append-only audit record of one AI exchange
type AIInteraction struct {
	ID              string              `json:"id"`
	SessionID       string              `json:"sessionId"`
	UserID          string              `json:"userId"`
	InputText       string              `json:"inputText"`
	AIResponse      string              `json:"aiResponse"`
	ConfidenceScore float64             `json:"confidenceScore"`
	KnowledgeBaseID *string             `json:"knowledgeBaseId,omitempty"`
	Metadata        InteractionMetadata `json:"metadata"`
	CreatedAt       time.Time           `json:"createdAt"`
}

// InteractionMetadata is a tagged union; exactly one variant is set and
// Kind names it.
type InteractionMetadata struct {
	Kind    InteractionKind  `json:"kind"`
	Answer  *AnswerMetadata  `json:"answer,omitempty"`
	Ingest  *IngestMetadata  `json:"ingest,omitempty"`
	Suggest *SuggestMetadata `json:"suggest,omitempty"`
}

// AnswerMetadata describes a RAG answer
type AnswerMetadata struct {
	ContextChunks    int      `json:"contextChunks"`
	SourceIDs        []string `json:"sourceIds"`
	UsedFallback     bool     `json:"usedFallback"`
	HistoryExchanges int      `json:"historyExchanges"`
	Model            string   `json:"model,omitempty"`
}

// IngestMetadata describes a PDF ingestion
type IngestMetadata struct {
	Filename         string `json:"filename"`
	FileSize         int    `json:"fileSize"`
	ExtractionMethod string `json:"extractionMethod,omitempty"`
	SegmentMethod    string `json:"segmentMethod,omitempty"`
	ChunksCreated    int    `json:"chunksCreated"`
	Persisted        bool   `json:"persisted"`
	Error            string `json:"error,omitempty"`
}

// SuggestMetadata describes a ticket suggestion lookup
type SuggestMetadata struct {
	TicketCategory string   `json:"ticketCategory,omitempty"`
	SuggestionIDs  []string `json:"suggestionIds"`
}

// Validate checks the union invariant
func (m InteractionMetadata) Validate() bool {
	set := 0
	if m.Answer != nil {
		set++
	}
	if m.Ingest != nil {
		set++
	}
	if m.Suggest != nil {
		set++
	}
	if set != 1 {
		return false
	}
	switch m.Kind {
	case InteractionRAGAnswer:
		return m.Answer != nil
	case InteractionPDFIngest:
		return m.Ingest != nil
	case InteractionTicketSuggest:
		return m.Suggest != nil
	}
	return false
}

// ConversationTurn is one exchange of prior conversation
type ConversationTurn struct {
	Question string `json:"question"`
	Answer   string `json:"answer"`
}
