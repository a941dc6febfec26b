package knowledgebase

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"

	"github.com/deskmate/internal/llm"
	"github.com/deskmate/internal/qa"
	"github.com/deskmate/internal/telemetry"
	"github.com/deskmate/pkg/models"
)

// Ask answers a question from the knowledge base. When no chunk clears the
// similarity threshold the fixed fallback answer is returned without
// calling the language model. Embedding, search and model errors are
// returned as is; nothing is retried.
func (s *Service) Ask(ctx context.Context, req AskRequest) (*Answer, error) {
	question := strings.TrimSpace(req.Question)
	if question == "" {
		return nil, fmt.Errorf("%w: question is required", ErrInvalidInput)
	}
	sessionID := strings.TrimSpace(req.SessionID)
	if sessionID == "" {
		sessionID = uuid.NewString()
	}

	ctx, span := telemetry.StartSpan(ctx, "knowledgebase.Ask")
	defer span.End()

	embedding, err := s.embedder.Embed(ctx, question)
	if err != nil {
		telemetry.RecordSpanError(span, err, map[string]string{"stage": "embed"})
		return nil, fmt.Errorf("failed to generate embedding: %w", err)
	}

	hits, err := s.vectors.SearchSimilar(ctx, embedding, s.config.SimilarityThreshold, s.config.MaxResults)
	if err != nil {
		telemetry.RecordSpanError(span, err, map[string]string{"stage": "retrieve"})
		return nil, fmt.Errorf("failed to search knowledge base: %w", err)
	}
	selected := s.selectContext(hits)
	history := lastExchanges(req.ConversationHistory, s.config.HistoryWindow)

	answer := &Answer{SessionID: sessionID, Sources: []Source{}}
	meta := &models.AnswerMetadata{
		ContextChunks:    len(selected),
		SourceIDs:        []string{},
		HistoryExchanges: len(history),
	}

	if len(selected) == 0 {
		answer.Answer = models.FallbackAnswer
		answer.UsedFallback = true
		answer.Reasoning = fmt.Sprintf("No knowledge base entry reached the %.0f%% similarity threshold.", s.config.SimilarityThreshold*100)
	} else {
		reply, err := s.chat.Chat(ctx, llm.ChatRequest{
			Messages:    buildMessages(question, selected, history),
			Temperature: s.config.Temperature,
			MaxTokens:   s.config.MaxAnswerTokens,
		})
		if err != nil {
			telemetry.RecordSpanError(span, err, map[string]string{"stage": "compose"})
			return nil, fmt.Errorf("failed to generate answer: %w", err)
		}
		if named, ok := s.chat.(namedChatModel); ok {
			meta.Model = named.ChatModel()
		}

		if IsFallback(reply) {
			answer.Answer = models.FallbackAnswer
			answer.UsedFallback = true
			answer.Reasoning = fmt.Sprintf("The %d retrieved entries did not contain the answer.", len(selected))
		} else {
			answer.Answer = strings.TrimSpace(reply)
			answer.Confidence = qa.Clamp(hits[0].Similarity)
			for i, hit := range selected {
				if i == s.config.MaxSources {
					break
				}
				answer.Sources = append(answer.Sources, sourceOf(hit))
				meta.SourceIDs = append(meta.SourceIDs, hit.Chunk.ID)
			}
			answer.Reasoning = fmt.Sprintf("Answered from %d knowledge base entries; best match %.0f%% similar.",
				len(selected), answer.Confidence*100)
			s.incrementUsage(ctx, meta.SourceIDs)
		}
	}
	meta.UsedFallback = answer.UsedFallback

	span.SetAttributes(
		attribute.Int("kb.context_chunks", len(selected)),
		attribute.Bool("kb.used_fallback", answer.UsedFallback),
		attribute.Float64("kb.confidence", answer.Confidence),
	)

	interaction := &models.AIInteraction{
		SessionID:       sessionID,
		UserID:          req.UserID,
		InputText:       question,
		AIResponse:      answer.Answer,
		ConfidenceScore: answer.Confidence,
		Metadata:        models.InteractionMetadata{Kind: models.InteractionRAGAnswer, Answer: meta},
	}
	if len(answer.Sources) > 0 {
		id := answer.Sources[0].ID
		interaction.KnowledgeBaseID = &id
	}
	s.logInteraction(ctx, interaction)

	s.logger.Info("question answered",
		"session_id", sessionID,
		"context_chunks", len(selected),
		"used_fallback", answer.UsedFallback,
		"confidence", answer.Confidence)
	return answer, nil
}

// IsFallback reports whether a model reply is the canonical fallback
// sentence. Only an exact match counts; paraphrases are not detected.
func IsFallback(reply string) bool {
	return strings.TrimSpace(reply) == models.FallbackAnswer
}

// selectContext prefers hits above the strict threshold and otherwise
// keeps the best few of the broader set.
func (s *Service) selectContext(hits []models.ScoredChunk) []models.ScoredChunk {
	var strict []models.ScoredChunk
	for _, hit := range hits {
		if hit.Similarity >= s.config.StrictThreshold {
			strict = append(strict, hit)
		}
	}
	if len(strict) > 0 {
		return strict
	}
	if len(hits) > s.config.BroadContextLimit {
		return hits[:s.config.BroadContextLimit]
	}
	return hits
}

func (s *Service) incrementUsage(ctx context.Context, ids []string) {
	if len(ids) == 0 {
		return
	}
	if err := s.chunks.IncrementUsage(ctx, ids); err != nil {
		s.logger.Warn("failed to increment usage counts", "chunks", len(ids), "error", err)
	}
}

func lastExchanges(history []models.ConversationTurn, n int) []models.ConversationTurn {
	if n <= 0 {
		return nil
	}
	if len(history) > n {
		return history[len(history)-n:]
	}
	return history
}

func buildMessages(question string, chunks []models.ScoredChunk, history []models.ConversationTurn) []llm.Message {
	var b strings.Builder
	b.WriteString("You are a helpdesk assistant. Answer the user's question using ONLY the knowledge base entries below.\n")
	b.WriteString("Do not use outside knowledge and do not guess.\n")
	b.WriteString("If the entries do not contain the answer, reply with exactly this sentence and nothing else:\n")
	b.WriteString(models.FallbackAnswer)
	b.WriteString("\n\nKnowledge base entries:\n")
	for i, c := range chunks {
		fmt.Fprintf(&b, "\n[%d] %s\nCategory: %s\nRelevance: %.0f%%\n%s\n",
			i+1, c.Chunk.Title, c.Chunk.Category, c.Similarity*100, c.Chunk.Content)
	}

	messages := make([]llm.Message, 0, 2+2*len(history))
	messages = append(messages, llm.Message{Role: llm.RoleSystem, Content: b.String()})
	for _, turn := range history {
		messages = append(messages,
			llm.Message{Role: llm.RoleUser, Content: turn.Question},
			llm.Message{Role: llm.RoleAssistant, Content: turn.Answer},
		)
	}
	return append(messages, llm.Message{Role: llm.RoleUser, Content: question})
}
