package knowledgebase

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/deskmate/internal/pdfextract"
	"github.com/deskmate/internal/qa"
	"github.com/deskmate/internal/telemetry"
	"github.com/deskmate/pkg/models"
)

// Service ingests documents into the knowledge base, maintains chunks and
// their embeddings, and answers questions from them.
type Service struct {
	chunks       ChunkStore
	vectors      VectorStore
	interactions InteractionLogger
	events       EventPublisher
	embedder     Embedder
	chat         ChatModel
	extractor    *pdfextract.Extractor
	segmenter    *qa.Segmenter
	config       Config
	logger       *slog.Logger
}

func NewService(deps Dependencies, config Config, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	logger = logger.With("component", "knowledgebase")

	extractOpts := []pdfextract.Option{pdfextract.WithLogger(logger)}
	if config.MinTextLength > 0 {
		extractOpts = append(extractOpts, pdfextract.WithMinTextLength(config.MinTextLength))
	}

	segOpts := []qa.Option{qa.WithLogger(logger)}
	if config.LLMSegmentation && deps.Chat != nil {
		segOpts = append(segOpts, qa.WithCompleter(deps.Chat))
	}

	return &Service{
		chunks:       deps.Chunks,
		vectors:      deps.Vectors,
		interactions: deps.Interactions,
		events:       deps.Events,
		embedder:     deps.Embedder,
		chat:         deps.Chat,
		extractor:    pdfextract.New(extractOpts...),
		segmenter:    qa.NewSegmenter(segOpts...),
		config:       config,
		logger:       logger,
	}
}

// ProcessPDF extracts and segments a PDF into chunks. Nothing is written to
// the knowledge store unless AutoAdd is set and extraction succeeded.
func (s *Service) ProcessPDF(ctx context.Context, req IngestRequest) (*IngestResult, error) {
	if len(req.Data) == 0 {
		return nil, fmt.Errorf("%w: no PDF file provided", ErrInvalidInput)
	}

	ctx, span := telemetry.StartSpan(ctx, "knowledgebase.ProcessPDF")
	defer span.End()

	meta := &models.IngestMetadata{Filename: req.Filename, FileSize: len(req.Data)}

	extracted, err := s.extractor.Extract(req.Data)
	if err != nil {
		meta.Error = err.Error()
		s.logIngest(ctx, req, meta, "")
		telemetry.RecordSpanError(span, err, map[string]string{"stage": "extract"})
		return nil, fmt.Errorf("extract text: %w", err)
	}
	meta.ExtractionMethod = extracted.Method

	seg, err := s.segmenter.Segment(ctx, qa.Normalize(extracted.Text))
	if err != nil {
		meta.Error = err.Error()
		s.logIngest(ctx, req, meta, "")
		telemetry.RecordSpanError(span, err, map[string]string{"stage": "segment"})
		return nil, fmt.Errorf("segment text: %w", err)
	}
	meta.SegmentMethod = seg.Method

	result := &IngestResult{
		Chunks:           BuildChunks(seg, req.Filename),
		ExtractionMethod: extracted.Method,
		SegmentMethod:    seg.Method,
		TextSample:       extracted.Sample(),
	}
	meta.ChunksCreated = len(result.Chunks)

	s.logger.Info("pdf processed",
		"filename", req.Filename,
		"bytes", len(req.Data),
		"extraction", extracted.Method,
		"segmentation", seg.Method,
		"chunks", len(result.Chunks))

	if req.AutoAdd {
		report, err := s.AddChunks(ctx, result.Chunks, req.UserID)
		if err != nil {
			return nil, err
		}
		result.Persisted = report
		meta.Persisted = true
	}

	s.logIngest(ctx, req, meta, fmt.Sprintf("%d chunks via %s", len(result.Chunks), result.ProcessingMethod()))
	return result, nil
}

// AddChunks persists chunks one at a time in two phases: the record is
// inserted as pending, then embedded. A failure on one chunk is counted and
// the rest continue. The slice is updated with ids and statuses.
func (s *Service) AddChunks(ctx context.Context, chunks []models.KnowledgeChunk, userID string) (*PersistReport, error) {
	report := &PersistReport{ChunkIDs: make([]string, 0, len(chunks))}

	for i := range chunks {
		if err := ctx.Err(); err != nil {
			return report, err
		}

		chunk := &chunks[i]
		if err := prepareChunk(chunk, userID); err != nil {
			report.Failed++
			report.Errors = append(report.Errors, fmt.Sprintf("chunk %d: %v", i, err))
			continue
		}

		if err := s.chunks.CreateChunk(ctx, chunk); err != nil {
			s.logger.Warn("failed to insert chunk", "index", i, "title", chunk.Title, "error", err)
			report.Failed++
			report.Errors = append(report.Errors, fmt.Sprintf("chunk %d: insert: %v", i, err))
			continue
		}
		report.Inserted++
		report.ChunkIDs = append(report.ChunkIDs, chunk.ID)
		s.publish(ctx, models.EventTypeChunkCreated, chunk, userID)

		if err := s.embedChunk(ctx, chunk); err != nil {
			report.EmbedFailed++
			report.Errors = append(report.Errors, fmt.Sprintf("chunk %d: embed: %v", i, err))
			continue
		}
		report.Embedded++
	}

	s.logger.Info("chunks persisted",
		"inserted", report.Inserted,
		"embedded", report.Embedded,
		"failed", report.Failed,
		"embed_failed", report.EmbedFailed)
	return report, nil
}

// CreateChunk stores a single chunk and embeds it. An embedding failure
// leaves the chunk in the failed state for the sweep to retry.
func (s *Service) CreateChunk(ctx context.Context, chunk models.KnowledgeChunk, userID string) (*models.KnowledgeChunk, error) {
	if err := prepareChunk(&chunk, userID); err != nil {
		return nil, err
	}
	if err := s.chunks.CreateChunk(ctx, &chunk); err != nil {
		return nil, fmt.Errorf("create chunk: %w", err)
	}
	s.publish(ctx, models.EventTypeChunkCreated, &chunk, userID)

	if err := s.embedChunk(ctx, &chunk); err != nil {
		s.logger.Warn("chunk stored without embedding", "chunk_id", chunk.ID, "error", err)
	}
	return &chunk, nil
}

func (s *Service) GetChunk(ctx context.Context, id string) (*models.KnowledgeChunk, error) {
	if err := checkChunkID(id); err != nil {
		return nil, err
	}
	return s.chunks.GetChunk(ctx, id)
}

func (s *Service) ListChunks(ctx context.Context, filter models.ChunkFilter) ([]models.KnowledgeChunk, error) {
	if filter.Category != "" && !filter.Category.Valid() {
		return nil, fmt.Errorf("%w: unknown category %q", ErrInvalidInput, filter.Category)
	}
	return s.chunks.ListChunks(ctx, filter)
}

// UpdateChunk applies an edit and regenerates the embedding when the text
// changed.
func (s *Service) UpdateChunk(ctx context.Context, id string, update ChunkUpdate, userID string) (*models.KnowledgeChunk, error) {
	if err := checkChunkID(id); err != nil {
		return nil, err
	}
	chunk, err := s.chunks.GetChunk(ctx, id)
	if err != nil {
		return nil, err
	}

	textChanged := false
	if update.Title != nil {
		if title := Truncate(strings.TrimSpace(*update.Title), maxTitleLength); title != chunk.Title {
			chunk.Title = title
			textChanged = true
		}
	}
	if update.Content != nil && strings.TrimSpace(*update.Content) != chunk.Content {
		chunk.Content = strings.TrimSpace(*update.Content)
		textChanged = true
	}
	if update.Category != nil {
		chunk.Category = *update.Category
	}
	if update.Tags != nil {
		chunk.Tags = update.Tags
	}
	if update.IsActive != nil {
		chunk.IsActive = *update.IsActive
	}
	if err := validateChunk(chunk); err != nil {
		return nil, err
	}

	if textChanged {
		chunk.EmbeddingStatus = models.EmbeddingPending
	}
	chunk.UpdatedAt = time.Now().UTC()
	if err := s.chunks.UpdateChunk(ctx, chunk); err != nil {
		return nil, fmt.Errorf("update chunk: %w", err)
	}
	s.publish(ctx, models.EventTypeChunkUpdated, chunk, userID)

	if textChanged {
		if err := s.embedChunk(ctx, chunk); err != nil {
			s.logger.Warn("chunk updated without embedding", "chunk_id", chunk.ID, "error", err)
		}
	}
	return chunk, nil
}

// DeleteChunk deactivates a chunk; records are never removed
func (s *Service) DeleteChunk(ctx context.Context, id string, userID string) error {
	if err := checkChunkID(id); err != nil {
		return err
	}
	chunk, err := s.chunks.GetChunk(ctx, id)
	if err != nil {
		return err
	}
	if err := s.chunks.DeactivateChunk(ctx, id); err != nil {
		return fmt.Errorf("deactivate chunk: %w", err)
	}
	chunk.IsActive = false
	s.publish(ctx, models.EventTypeChunkDeactivated, chunk, userID)
	return nil
}

// Reembed embeds chunks left pending or failed, or embedded with another
// model. Running it again after success is a no-op.
func (s *Service) Reembed(ctx context.Context, limit int) (*SweepReport, error) {
	if limit <= 0 {
		limit = s.config.SweepBatchSize
	}

	ctx, span := telemetry.StartSpan(ctx, "knowledgebase.Reembed")
	defer span.End()

	pending, err := s.chunks.ListUnembedded(ctx, s.embedder.Model(), limit)
	if err != nil {
		telemetry.RecordSpanError(span, err, nil)
		return nil, fmt.Errorf("list unembedded chunks: %w", err)
	}

	report := &SweepReport{Scanned: len(pending)}
	for i := range pending {
		if err := ctx.Err(); err != nil {
			return report, err
		}
		if err := s.embedChunk(ctx, &pending[i]); err != nil {
			report.Failed++
			continue
		}
		report.Embedded++
	}

	if report.Scanned > 0 {
		s.logger.Info("re-embed sweep finished",
			"scanned", report.Scanned,
			"embedded", report.Embedded,
			"failed", report.Failed)
	}
	return report, nil
}

// SuggestForTicket proposes knowledge chunks for a ticket being written
func (s *Service) SuggestForTicket(ctx context.Context, draft TicketDraft) ([]Suggestion, error) {
	query := strings.TrimSpace(strings.Join([]string{draft.Subject, draft.Description, draft.Category}, "\n"))
	if query == "" {
		return nil, fmt.Errorf("%w: ticket subject or description is required", ErrInvalidInput)
	}

	ctx, span := telemetry.StartSpan(ctx, "knowledgebase.SuggestForTicket")
	defer span.End()

	embedding, err := s.embedder.Embed(ctx, query)
	if err != nil {
		telemetry.RecordSpanError(span, err, map[string]string{"stage": "embed"})
		return nil, fmt.Errorf("failed to generate embedding: %w", err)
	}
	hits, err := s.vectors.SearchSimilar(ctx, embedding, s.config.SimilarityThreshold, s.config.MaxSources)
	if err != nil {
		telemetry.RecordSpanError(span, err, map[string]string{"stage": "search"})
		return nil, fmt.Errorf("failed to search vectors: %w", err)
	}

	suggestions := make([]Suggestion, 0, len(hits))
	ids := make([]string, 0, len(hits))
	for _, hit := range hits {
		suggestions = append(suggestions, Suggestion{
			Source:    sourceOf(hit),
			Relevance: determineRelevance(hit.Similarity),
			Snippet:   Truncate(hit.Chunk.Content, 200),
		})
		ids = append(ids, hit.Chunk.ID)
	}

	interaction := &models.AIInteraction{
		UserID:    draft.UserID,
		InputText: query,
		Metadata: models.InteractionMetadata{
			Kind:    models.InteractionTicketSuggest,
			Suggest: &models.SuggestMetadata{TicketCategory: draft.Category, SuggestionIDs: ids},
		},
	}
	if len(hits) > 0 {
		interaction.ConfidenceScore = qa.Clamp(hits[0].Similarity)
		interaction.AIResponse = fmt.Sprintf("%d suggestions", len(hits))
	}
	s.logInteraction(ctx, interaction)

	return suggestions, nil
}

func (s *Service) embedChunk(ctx context.Context, chunk *models.KnowledgeChunk) error {
	embedding, err := s.embedder.Embed(ctx, chunk.Title+"\n\n"+chunk.Content)
	if err == nil {
		err = s.vectors.StoreEmbedding(ctx, chunk.ID, embedding, s.embedder.Model())
	}
	if err != nil {
		s.logger.Warn("failed to embed chunk", "chunk_id", chunk.ID, "error", err)
		if markErr := s.vectors.MarkEmbeddingFailed(ctx, chunk.ID); markErr != nil {
			s.logger.Warn("failed to mark embedding failure", "chunk_id", chunk.ID, "error", markErr)
		}
		chunk.EmbeddingStatus = models.EmbeddingFailed
		s.publish(ctx, models.EventTypeEmbeddingFailed, chunk, "")
		return err
	}

	chunk.EmbeddingStatus = models.EmbeddingEmbedded
	chunk.EmbeddingModel = s.embedder.Model()
	s.publish(ctx, models.EventTypeChunkEmbedded, chunk, "")
	return nil
}

func (s *Service) publish(ctx context.Context, eventType models.EventType, chunk *models.KnowledgeChunk, actor string) {
	if s.events == nil {
		return
	}
	event := models.KnowledgeEvent{
		ID:        uuid.NewString(),
		Type:      eventType,
		ChunkID:   chunk.ID,
		Title:     chunk.Title,
		Category:  chunk.Category,
		Status:    chunk.EmbeddingStatus,
		Actor:     actor,
		Source:    chunk.Source,
		Timestamp: time.Now().UTC(),
	}
	if err := s.events.PublishKnowledgeEvent(ctx, event); err != nil {
		s.logger.Warn("failed to publish knowledge event", "type", eventType, "chunk_id", chunk.ID, "error", err)
	}
}

func (s *Service) logIngest(ctx context.Context, req IngestRequest, meta *models.IngestMetadata, response string) {
	s.logInteraction(ctx, &models.AIInteraction{
		UserID:     req.UserID,
		InputText:  req.Filename,
		AIResponse: response,
		Metadata:   models.InteractionMetadata{Kind: models.InteractionPDFIngest, Ingest: meta},
	})
}

// logInteraction fills ids and timestamps and appends the record. Failures
// are logged, never returned.
func (s *Service) logInteraction(ctx context.Context, interaction *models.AIInteraction) {
	if s.interactions == nil {
		return
	}
	if interaction.ID == "" {
		interaction.ID = uuid.NewString()
	}
	if interaction.SessionID == "" {
		interaction.SessionID = uuid.NewString()
	}
	interaction.CreatedAt = time.Now().UTC()

	if err := s.interactions.LogInteraction(ctx, interaction); err != nil {
		s.logger.Warn("failed to log ai interaction",
			"kind", interaction.Metadata.Kind,
			"session_id", interaction.SessionID,
			"error", err)
	}
}

// checkChunkID rejects ids that cannot name a chunk; every chunk id is a UUID
func checkChunkID(id string) error {
	if _, err := uuid.Parse(id); err != nil {
		return ErrNotFound
	}
	return nil
}

func prepareChunk(chunk *models.KnowledgeChunk, userID string) error {
	chunk.Title = Truncate(strings.TrimSpace(chunk.Title), maxTitleLength)
	chunk.Content = strings.TrimSpace(chunk.Content)
	if chunk.Category == "" {
		chunk.Category = Classify(chunk.Title + " " + chunk.Content)
	}
	if chunk.Tags == nil {
		chunk.Tags = ExtractTags(chunk.Title + " " + chunk.Content)
	}
	if err := validateChunk(chunk); err != nil {
		return err
	}

	now := time.Now().UTC()
	chunk.ID = uuid.NewString()
	chunk.IsActive = true
	chunk.UsageCount = 0
	chunk.EmbeddingStatus = models.EmbeddingPending
	chunk.EmbeddingModel = ""
	if chunk.CreatedBy == "" {
		chunk.CreatedBy = userID
	}
	chunk.CreatedAt = now
	chunk.UpdatedAt = now
	return nil
}

func validateChunk(chunk *models.KnowledgeChunk) error {
	switch {
	case strings.TrimSpace(chunk.Title) == "":
		return fmt.Errorf("%w: title is required", ErrInvalidInput)
	case strings.TrimSpace(chunk.Content) == "":
		return fmt.Errorf("%w: content is required", ErrInvalidInput)
	case !chunk.Category.Valid():
		return fmt.Errorf("%w: unknown category %q", ErrInvalidInput, chunk.Category)
	case chunk.Confidence != nil && (*chunk.Confidence < 0 || *chunk.Confidence > 1):
		return fmt.Errorf("%w: confidence must be within [0,1]", ErrInvalidInput)
	}
	return nil
}

func sourceOf(hit models.ScoredChunk) Source {
	return Source{
		ID:         hit.Chunk.ID,
		Title:      hit.Chunk.Title,
		Category:   hit.Chunk.Category,
		Similarity: hit.Similarity,
	}
}

func determineRelevance(score float64) string {
	switch {
	case score > 0.9:
		return "exact"
	case score > 0.7:
		return "high"
	case score > 0.5:
		return "medium"
	}
	return "low"
}

// IsInputError reports whether err is a client-fixable error
func IsInputError(err error) bool {
	return errors.Is(err, ErrInvalidInput)
}
