package api

import (
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gorilla/mux"

	"github.com/deskmate/internal/feature"
	"github.com/deskmate/internal/knowledgebase"
	"github.com/deskmate/internal/pdfextract"
	"github.com/deskmate/internal/qa"
	"github.com/deskmate/internal/security"
	"github.com/deskmate/pkg/models"
)

const (
	// multipart parts beyond this are spooled to disk
	multipartMemory = 10 << 20

	defaultListLimit = 50
	maxListLimit     = 500

	imageBasedHint = "The PDF may be image-based (scanned) or have no extractable text. Try a text-based PDF or run OCR first."
)

// IngestResponse is the reply to a PDF upload
type IngestResponse struct {
	Success             bool                         `json:"success"`
	Chunks              []models.KnowledgeChunk      `json:"chunks"`
	Message             string                       `json:"message"`
	ExtractedTextSample string                       `json:"extractedTextSample,omitempty"`
	ProcessingMethod    string                       `json:"processingMethod,omitempty"`
	Persisted           *knowledgebase.PersistReport `json:"persisted,omitempty"`
	Error               string                       `json:"error,omitempty"`
	Details             string                       `json:"details,omitempty"`
}

// ChunkRequest creates a knowledge chunk
type ChunkRequest struct {
	Title      string          `json:"title"`
	Content    string          `json:"content"`
	Category   models.Category `json:"category"`
	Tags       []string        `json:"tags"`
	Confidence *float64        `json:"confidence,omitempty"`
	Source     string          `json:"source,omitempty"`
	UserID     string          `json:"userId"`
}

func (c ChunkRequest) toChunk() models.KnowledgeChunk {
	return models.KnowledgeChunk{
		Title:      c.Title,
		Content:    c.Content,
		Category:   c.Category,
		Tags:       c.Tags,
		Confidence: c.Confidence,
		Source:     c.Source,
	}
}

// BulkChunkRequest persists previewed chunks
type BulkChunkRequest struct {
	Chunks []ChunkRequest `json:"chunks"`
	UserID string         `json:"userId"`
}

// UpdateChunkRequest edits a chunk; omitted fields are unchanged
type UpdateChunkRequest struct {
	knowledgebase.ChunkUpdate
	UserID string `json:"userId"`
}

type ReembedRequest struct {
	Limit int `json:"limit"`
}

// Knowledge ingestion

func (g *Gateway) handleIngestPDF(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseMultipartForm(multipartMemory); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			writeErrorResponse(w, http.StatusRequestEntityTooLarge,
				fmt.Sprintf("PDF exceeds the %d byte upload limit", tooLarge.Limit))
			return
		}
		writeErrorResponse(w, http.StatusBadRequest, "expected a multipart/form-data upload")
		return
	}
	defer r.MultipartForm.RemoveAll()

	file, header, err := r.FormFile("pdf")
	if err != nil {
		writeErrorResponse(w, http.StatusBadRequest, "No PDF file provided")
		return
	}
	defer file.Close()

	if ct := header.Header.Get("Content-Type"); ct != "" && ct != "application/pdf" && ct != "application/octet-stream" {
		writeErrorResponse(w, http.StatusBadRequest, "Only PDF files are allowed")
		return
	}

	data, err := io.ReadAll(file)
	if err != nil {
		writeErrorResponse(w, http.StatusBadRequest, "failed to read uploaded file")
		return
	}

	userID := r.FormValue("userId")
	autoAdd, _ := strconv.ParseBool(r.FormValue("autoAdd"))
	if autoAdd && !g.featureEnabled(r.Context(), feature.FlagPDFAutoAdd, userID) {
		g.logger.Info("auto-add not enabled for user, returning preview only", "user_id", userID)
		autoAdd = false
	}
	result, err := g.service.ProcessPDF(r.Context(), knowledgebase.IngestRequest{
		Data:     data,
		Filename: header.Filename,
		UserID:   userID,
		AutoAdd:  autoAdd,
	})
	if err != nil {
		if errors.Is(err, pdfextract.ErrInsufficientText) || errors.Is(err, qa.ErrNoPairs) {
			writeJSONResponse(w, http.StatusUnprocessableEntity, IngestResponse{
				Success: false,
				Chunks:  []models.KnowledgeChunk{},
				Message: "No knowledge could be extracted from " + header.Filename,
				Error:   err.Error(),
				Details: imageBasedHint,
			})
			return
		}
		g.writeServiceError(w, r, "failed to process PDF", err)
		return
	}

	message := fmt.Sprintf("Extracted %d knowledge chunks from %s", len(result.Chunks), header.Filename)
	if result.Persisted != nil {
		message += fmt.Sprintf("; %d saved, %d failed", result.Persisted.Inserted, result.Persisted.Failed)
	}
	writeJSONResponse(w, http.StatusOK, IngestResponse{
		Success:             true,
		Chunks:              result.Chunks,
		Message:             message,
		ExtractedTextSample: result.TextSample,
		ProcessingMethod:    result.ProcessingMethod(),
		Persisted:           result.Persisted,
	})
}

// Question answering

func (g *Gateway) handleAsk(w http.ResponseWriter, r *http.Request) {
	var req knowledgebase.AskRequest
	if err := parseRequestBody(r, &req); err != nil {
		writeErrorResponse(w, http.StatusBadRequest, err.Error())
		return
	}

	answer, err := g.service.Ask(r.Context(), req)
	if err != nil {
		g.writeServiceError(w, r, "failed to answer question", err)
		return
	}
	writeJSONResponse(w, http.StatusOK, answer)
}

func (g *Gateway) handleSuggest(w http.ResponseWriter, r *http.Request) {
	var draft knowledgebase.TicketDraft
	if err := parseRequestBody(r, &draft); err != nil {
		writeErrorResponse(w, http.StatusBadRequest, err.Error())
		return
	}
	if !g.featureEnabled(r.Context(), feature.FlagTicketSuggestions, draft.UserID) {
		writeErrorResponse(w, http.StatusNotFound, "ticket suggestions are disabled")
		return
	}

	suggestions, err := g.service.SuggestForTicket(r.Context(), draft)
	if err != nil {
		g.writeServiceError(w, r, "failed to suggest articles", err)
		return
	}
	if suggestions == nil {
		suggestions = []knowledgebase.Suggestion{}
	}
	writeJSONResponse(w, http.StatusOK, map[string]interface{}{"suggestions": suggestions})
}

// Knowledge management

func (g *Gateway) handleListKnowledge(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query()
	filter := models.ChunkFilter{
		Category:   models.Category(query.Get("category")),
		ActiveOnly: true,
		Limit:      defaultListLimit,
	}

	if v := query.Get("active"); v != "" {
		active, err := strconv.ParseBool(v)
		if err != nil {
			writeErrorResponse(w, http.StatusBadRequest, "active must be true or false")
			return
		}
		filter.ActiveOnly = active
	}
	if v := query.Get("limit"); v != "" {
		limit, err := strconv.Atoi(v)
		if err != nil || limit <= 0 {
			writeErrorResponse(w, http.StatusBadRequest, "limit must be a positive integer")
			return
		}
		filter.Limit = min(limit, maxListLimit)
	}
	if v := query.Get("offset"); v != "" {
		offset, err := strconv.Atoi(v)
		if err != nil || offset < 0 {
			writeErrorResponse(w, http.StatusBadRequest, "offset must be a non-negative integer")
			return
		}
		filter.Offset = offset
	}

	chunks, err := g.service.ListChunks(r.Context(), filter)
	if err != nil {
		g.writeServiceError(w, r, "failed to list knowledge", err)
		return
	}
	if chunks == nil {
		chunks = []models.KnowledgeChunk{}
	}
	writeJSONResponse(w, http.StatusOK, map[string]interface{}{
		"chunks": chunks,
		"count":  len(chunks),
		"limit":  filter.Limit,
		"offset": filter.Offset,
	})
}

func (g *Gateway) handleCreateKnowledge(w http.ResponseWriter, r *http.Request) {
	var req ChunkRequest
	if err := parseRequestBody(r, &req); err != nil {
		writeErrorResponse(w, http.StatusBadRequest, err.Error())
		return
	}

	chunk, err := g.service.CreateChunk(r.Context(), req.toChunk(), req.UserID)
	if err != nil {
		g.writeServiceError(w, r, "failed to create knowledge chunk", err)
		return
	}
	writeJSONResponse(w, http.StatusCreated, chunk)
}

func (g *Gateway) handleBulkKnowledge(w http.ResponseWriter, r *http.Request) {
	var req BulkChunkRequest
	if err := parseRequestBody(r, &req); err != nil {
		writeErrorResponse(w, http.StatusBadRequest, err.Error())
		return
	}
	if len(req.Chunks) == 0 {
		writeErrorResponse(w, http.StatusBadRequest, "chunks must not be empty")
		return
	}

	chunks := make([]models.KnowledgeChunk, len(req.Chunks))
	for i, c := range req.Chunks {
		chunks[i] = c.toChunk()
	}

	report, err := g.service.AddChunks(r.Context(), chunks, req.UserID)
	if err != nil {
		g.writeServiceError(w, r, "failed to add knowledge chunks", err)
		return
	}

	status := http.StatusOK
	if report.Inserted == 0 {
		status = http.StatusUnprocessableEntity
	}
	writeJSONResponse(w, status, report)
}

func (g *Gateway) handleGetKnowledge(w http.ResponseWriter, r *http.Request) {
	chunk, err := g.service.GetChunk(r.Context(), mux.Vars(r)["id"])
	if err != nil {
		g.writeServiceError(w, r, "failed to get knowledge chunk", err)
		return
	}
	writeJSONResponse(w, http.StatusOK, chunk)
}

func (g *Gateway) handleUpdateKnowledge(w http.ResponseWriter, r *http.Request) {
	var req UpdateChunkRequest
	if err := parseRequestBody(r, &req); err != nil {
		writeErrorResponse(w, http.StatusBadRequest, err.Error())
		return
	}

	chunk, err := g.service.UpdateChunk(r.Context(), mux.Vars(r)["id"], req.ChunkUpdate, req.UserID)
	if err != nil {
		g.writeServiceError(w, r, "failed to update knowledge chunk", err)
		return
	}
	writeJSONResponse(w, http.StatusOK, chunk)
}

func (g *Gateway) handleDeleteKnowledge(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	if err := g.service.DeleteChunk(r.Context(), id, r.URL.Query().Get("userId")); err != nil {
		g.writeServiceError(w, r, "failed to delete knowledge chunk", err)
		return
	}
	writeJSONResponse(w, http.StatusOK, map[string]interface{}{"success": true, "id": id})
}

func (g *Gateway) handleReembed(w http.ResponseWriter, r *http.Request) {
	var req ReembedRequest
	if r.ContentLength > 0 {
		if err := parseRequestBody(r, &req); err != nil {
			writeErrorResponse(w, http.StatusBadRequest, err.Error())
			return
		}
	}

	report, err := g.service.Reembed(r.Context(), req.Limit)
	if err != nil {
		g.writeServiceError(w, r, "re-embed sweep failed", err)
		return
	}
	writeJSONResponse(w, http.StatusOK, report)
}

// System

func (g *Gateway) handleHealth(w http.ResponseWriter, r *http.Request) {
	if g.health != nil {
		g.health.HTTPHandler()(w, r)
		return
	}
	writeJSONResponse(w, http.StatusOK, map[string]interface{}{
		"status":    "healthy",
		"timestamp": time.Now().UTC().Format(time.RFC3339),
	})
}

func (g *Gateway) handleMetrics(w http.ResponseWriter, r *http.Request) {
	metrics := map[string]interface{}{
		"gateway": g.Metrics(),
	}
	for name, fn := range g.stats {
		metrics[name] = fn()
	}
	writeJSONResponse(w, http.StatusOK, metrics)
}

// writeServiceError maps knowledge base errors to status codes. Upstream
// failures surface their message so operators can see quota or key problems.
func (g *Gateway) writeServiceError(w http.ResponseWriter, r *http.Request, message string, err error) {
	switch {
	case knowledgebase.IsInputError(err):
		writeErrorResponse(w, http.StatusBadRequest, strings.TrimPrefix(err.Error(), knowledgebase.ErrInvalidInput.Error()+": "))
	case errors.Is(err, knowledgebase.ErrNotFound):
		writeErrorResponse(w, http.StatusNotFound, "knowledge chunk not found")
	default:
		g.logger.Error(message,
			"error", err,
			"method", r.Method,
			"path", r.URL.Path,
			"request_id", security.RequestID(r.Context()))
		writeJSONResponse(w, http.StatusInternalServerError, ErrorResponse{Error: message, Details: err.Error()})
	}
}
