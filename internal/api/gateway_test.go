package api

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"net/textproto"
	"strings"
	"testing"

	"github.com/deskmate/internal/config"
	"github.com/deskmate/internal/feature"
	"github.com/deskmate/internal/knowledgebase"
	"github.com/deskmate/internal/llm"
	"github.com/deskmate/internal/pdfextract/pdftest"
	"github.com/deskmate/internal/security"
	"github.com/deskmate/internal/store"
	"github.com/deskmate/pkg/models"
)

type stubEmbedder struct{}

func (stubEmbedder) Embed(_ context.Context, text string) ([]float32, error) {
	if strings.Contains(strings.ToLower(text), "ticket") {
		return []float32{1, 0}, nil
	}
	return []float32{0, 1}, nil
}

func (stubEmbedder) Model() string { return "stub" }

type countingChat struct {
	calls int
}

func (c *countingChat) Chat(context.Context, llm.ChatRequest) (string, error) {
	c.calls++
	return "A ticket is a digital record of your request.", nil
}

type testServer struct {
	gateway *Gateway
	store   *store.MemoryStore
	chat    *countingChat
}

func newTestServer(t *testing.T, opts ...Option) *testServer {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	ts := &testServer{store: store.NewMemoryStore(), chat: &countingChat{}}
	svc := knowledgebase.NewService(knowledgebase.Dependencies{
		Chunks:       ts.store,
		Vectors:      ts.store,
		Interactions: ts.store,
		Embedder:     stubEmbedder{},
		Chat:         ts.chat,
	}, knowledgebase.DefaultConfig(), logger)
	opts = append([]Option{
		WithLogger(logger),
		WithStats("cache", func() interface{} { return map[string]int{"hits": 3} }),
	}, opts...)
	ts.gateway = NewGateway(config.Default().API, svc, opts...)
	return ts
}

func (ts *testServer) do(t *testing.T, req *http.Request) *httptest.ResponseRecorder {
	t.Helper()
	rec := httptest.NewRecorder()
	ts.gateway.Handler().ServeHTTP(rec, req)
	return rec
}

func (ts *testServer) doJSON(t *testing.T, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	return ts.do(t, req)
}

func uploadRequest(t *testing.T, filename string, pdf []byte, fields map[string]string) *http.Request {
	t.Helper()
	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	for k, v := range fields {
		if err := mw.WriteField(k, v); err != nil {
			t.Fatal(err)
		}
	}
	h := make(textproto.MIMEHeader)
	h.Set("Content-Disposition", `form-data; name="pdf"; filename="`+filename+`"`)
	h.Set("Content-Type", "application/pdf")
	part, err := mw.CreatePart(h)
	if err != nil {
		t.Fatal(err)
	}
	part.Write(pdf)
	mw.Close()

	req := httptest.NewRequest(http.MethodPost, "/api/v1/pdf/ingest", &body)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	return req
}

func decode(t *testing.T, rec *httptest.ResponseRecorder, v interface{}) {
	t.Helper()
	if err := json.Unmarshal(rec.Body.Bytes(), v); err != nil {
		t.Fatalf("decode %q: %v", rec.Body.String(), err)
	}
}

func TestIngestPDF_Preview(t *testing.T) {
	ts := newTestServer(t)
	pdf := pdftest.TextPDF("1. What is a ticket?", "A ticket is a digital record of your request.")

	rec := ts.do(t, uploadRequest(t, "faq.pdf", pdf, map[string]string{"userId": "user-1"}))
	if rec.Code != http.StatusOK {
		t.Fatalf("status %d: %s", rec.Code, rec.Body.String())
	}

	var resp IngestResponse
	decode(t, rec, &resp)
	if !resp.Success || len(resp.Chunks) != 1 {
		t.Fatalf("unexpected response %+v", resp)
	}
	if !strings.HasPrefix(resp.Chunks[0].Title, "What is a ticket?") {
		t.Errorf("title = %q", resp.Chunks[0].Title)
	}
	if resp.ProcessingMethod == "" || resp.ExtractedTextSample == "" {
		t.Errorf("missing processing details: %+v", resp)
	}
	if ts.store.ChunkCount() != 0 {
		t.Error("preview persisted chunks")
	}
}

func TestIngestPDF_AutoAdd(t *testing.T) {
	ts := newTestServer(t)
	pdf := pdftest.TextPDF("1. What is a ticket?", "A ticket is a digital record of your request.")

	rec := ts.do(t, uploadRequest(t, "faq.pdf", pdf, map[string]string{"userId": "user-1", "autoAdd": "true"}))
	if rec.Code != http.StatusOK {
		t.Fatalf("status %d: %s", rec.Code, rec.Body.String())
	}
	var resp IngestResponse
	decode(t, rec, &resp)
	if resp.Persisted == nil || resp.Persisted.Inserted != 1 {
		t.Fatalf("unexpected persist report %+v", resp.Persisted)
	}
	if ts.store.ChunkCount() != 1 {
		t.Errorf("stored %d chunks", ts.store.ChunkCount())
	}
}

func TestIngestPDF_ImageOnly(t *testing.T) {
	ts := newTestServer(t)

	rec := ts.do(t, uploadRequest(t, "scan.pdf", pdftest.ImageOnlyPDF(), map[string]string{"autoAdd": "true"}))
	if rec.Code != http.StatusUnprocessableEntity {
		t.Fatalf("status %d: %s", rec.Code, rec.Body.String())
	}
	var resp IngestResponse
	decode(t, rec, &resp)
	if resp.Success || resp.Error == "" || !strings.Contains(resp.Details, "image-based") {
		t.Errorf("unexpected response %+v", resp)
	}
	if resp.Chunks == nil || len(resp.Chunks) != 0 {
		t.Errorf("chunks = %v", resp.Chunks)
	}
	if ts.store.ChunkCount() != 0 {
		t.Error("image-only PDF produced chunks")
	}
}

func TestIngestPDF_MissingFile(t *testing.T) {
	ts := newTestServer(t)
	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	mw.WriteField("userId", "user-1")
	mw.Close()
	req := httptest.NewRequest(http.MethodPost, "/api/v1/pdf/ingest", &body)
	req.Header.Set("Content-Type", mw.FormDataContentType())

	rec := ts.do(t, req)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status %d", rec.Code)
	}
	var resp ErrorResponse
	decode(t, rec, &resp)
	if resp.Error != "No PDF file provided" {
		t.Errorf("error = %q", resp.Error)
	}
}

func TestAsk_EmptyQuestion(t *testing.T) {
	ts := newTestServer(t)
	rec := ts.doJSON(t, http.MethodPost, "/api/v1/ask", `{"question":"   ","sessionId":"s1","userId":"u1"}`)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status %d: %s", rec.Code, rec.Body.String())
	}
	var resp ErrorResponse
	decode(t, rec, &resp)
	if resp.Error == "" {
		t.Error("expected an error message")
	}

	for _, method := range []string{http.MethodPut, http.MethodDelete} {
		rec = ts.doJSON(t, method, "/api/v1/knowledge/12345", `{"content":"new text"}`)
		if rec.Code != http.StatusNotFound {
			t.Errorf("%s malformed id: status %d", method, rec.Code)
		}
	}
}

func TestAsk_MalformedBody(t *testing.T) {
	ts := newTestServer(t)
	rec := ts.doJSON(t, http.MethodPost, "/api/v1/ask", `{"question":`)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status %d", rec.Code)
	}
}

func TestAsk_FallbackOnEmptyKnowledgeBase(t *testing.T) {
	ts := newTestServer(t)
	rec := ts.doJSON(t, http.MethodPost, "/api/v1/ask", `{"question":"How do I change my billing address?","sessionId":"s1","userId":"u1"}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("status %d: %s", rec.Code, rec.Body.String())
	}
	var answer knowledgebase.Answer
	decode(t, rec, &answer)
	if !answer.UsedFallback || answer.Confidence != 0 || len(answer.Sources) != 0 {
		t.Errorf("unexpected answer %+v", answer)
	}
	if answer.SessionID != "s1" {
		t.Errorf("session = %q", answer.SessionID)
	}
	if ts.chat.calls != 0 {
		t.Errorf("chat model called %d times", ts.chat.calls)
	}
}

func TestAsk_Grounded(t *testing.T) {
	ts := newTestServer(t)
	rec := ts.doJSON(t, http.MethodPost, "/api/v1/knowledge",
		`{"title":"What is a ticket?","content":"A ticket is a digital record of your request.","userId":"admin"}`)
	if rec.Code != http.StatusCreated {
		t.Fatalf("create status %d: %s", rec.Code, rec.Body.String())
	}

	rec = ts.doJSON(t, http.MethodPost, "/api/v1/ask", `{"question":"What is a ticket?","sessionId":"s2"}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("status %d: %s", rec.Code, rec.Body.String())
	}
	var answer knowledgebase.Answer
	decode(t, rec, &answer)
	if answer.UsedFallback || len(answer.Sources) != 1 || ts.chat.calls != 1 {
		t.Errorf("unexpected answer %+v (chat calls %d)", answer, ts.chat.calls)
	}
}

func TestKnowledgeLifecycle(t *testing.T) {
	ts := newTestServer(t)

	rec := ts.doJSON(t, http.MethodPost, "/api/v1/knowledge",
		`{"title":"Reset password","content":"Use the reset link on the sign in page.","userId":"admin"}`)
	if rec.Code != http.StatusCreated {
		t.Fatalf("create status %d: %s", rec.Code, rec.Body.String())
	}
	var created models.KnowledgeChunk
	decode(t, rec, &created)
	if created.ID == "" || created.Category == "" || created.EmbeddingStatus != models.EmbeddingEmbedded {
		t.Fatalf("unexpected chunk %+v", created)
	}

	rec = ts.doJSON(t, http.MethodGet, "/api/v1/knowledge/"+created.ID, "")
	if rec.Code != http.StatusOK {
		t.Fatalf("get status %d", rec.Code)
	}

	rec = ts.doJSON(t, http.MethodPut, "/api/v1/knowledge/"+created.ID, `{"title":"Resetting your password","userId":"admin"}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("update status %d: %s", rec.Code, rec.Body.String())
	}
	var updated models.KnowledgeChunk
	decode(t, rec, &updated)
	if updated.Title != "Resetting your password" {
		t.Errorf("title = %q", updated.Title)
	}

	rec = ts.doJSON(t, http.MethodGet, "/api/v1/knowledge?limit=10", "")
	var list struct {
		Chunks []models.KnowledgeChunk `json:"chunks"`
		Count  int                     `json:"count"`
	}
	decode(t, rec, &list)
	if list.Count != 1 {
		t.Errorf("listed %d chunks", list.Count)
	}

	rec = ts.doJSON(t, http.MethodDelete, "/api/v1/knowledge/"+created.ID+"?userId=admin", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("delete status %d", rec.Code)
	}
	rec = ts.doJSON(t, http.MethodGet, "/api/v1/knowledge", "")
	decode(t, rec, &list)
	if list.Count != 0 {
		t.Errorf("deactivated chunk still listed")
	}
}

func TestKnowledge_NotFound(t *testing.T) {
	ts := newTestServer(t)
	rec := ts.doJSON(t, http.MethodGet, "/api/v1/knowledge/does-not-exist", "")
	if rec.Code != http.StatusNotFound {
		t.Fatalf("status %d", rec.Code)
	}
	var resp ErrorResponse
	decode(t, rec, &resp)
	if resp.Error == "" {
		t.Error("expected an error message")
	}
}

func TestKnowledge_InvalidListParams(t *testing.T) {
	ts := newTestServer(t)
	for _, q := range []string{"limit=0", "limit=abc", "offset=-1", "active=maybe"} {
		rec := ts.doJSON(t, http.MethodGet, "/api/v1/knowledge?"+q, "")
		if rec.Code != http.StatusBadRequest {
			t.Errorf("%s: status %d", q, rec.Code)
		}
	}
}

func TestBulkKnowledge(t *testing.T) {
	ts := newTestServer(t)
	body := `{"userId":"admin","chunks":[
		{"title":"What is a ticket?","content":"A digital record of your request."},
		{"title":"","content":"missing title"}
	]}`
	rec := ts.doJSON(t, http.MethodPost, "/api/v1/knowledge/bulk", body)
	if rec.Code != http.StatusOK {
		t.Fatalf("status %d: %s", rec.Code, rec.Body.String())
	}
	var report knowledgebase.PersistReport
	decode(t, rec, &report)
	if report.Inserted != 1 || report.Failed != 1 || report.Embedded != 1 {
		t.Errorf("unexpected report %+v", report)
	}

	rec = ts.doJSON(t, http.MethodPost, "/api/v1/knowledge/bulk", `{"chunks":[]}`)
	if rec.Code != http.StatusBadRequest {
		t.Errorf("empty bulk status %d", rec.Code)
	}
}

func TestReembed(t *testing.T) {
	ts := newTestServer(t)
	rec := ts.doJSON(t, http.MethodPost, "/api/v1/knowledge/reembed", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("status %d: %s", rec.Code, rec.Body.String())
	}
	var report knowledgebase.SweepReport
	decode(t, rec, &report)
	if report.Scanned != 0 {
		t.Errorf("unexpected report %+v", report)
	}
}

func TestSuggestForTicket(t *testing.T) {
	ts := newTestServer(t)
	ts.doJSON(t, http.MethodPost, "/api/v1/knowledge",
		`{"title":"What is a ticket?","content":"A ticket is a digital record of your request."}`)

	rec := ts.doJSON(t, http.MethodPost, "/api/v1/tickets/suggest", `{"subject":"ticket question","description":"how do tickets work"}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("status %d: %s", rec.Code, rec.Body.String())
	}
	var resp struct {
		Suggestions []knowledgebase.Suggestion `json:"suggestions"`
	}
	decode(t, rec, &resp)
	if len(resp.Suggestions) != 1 {
		t.Errorf("got %d suggestions", len(resp.Suggestions))
	}
}

func TestFeatureFlags(t *testing.T) {
	flags := feature.NewManager(feature.NewStaticBackend(map[string]feature.Flag{
		feature.FlagTicketSuggestions: {Enabled: false},
		feature.FlagPDFAutoAdd:        {Enabled: true, Type: feature.TypeUser, Users: []string{"admin"}},
	}), "test", nil)
	ts := newTestServer(t, WithFeatureFlags(flags))

	rec := ts.doJSON(t, http.MethodPost, "/api/v1/tickets/suggest", `{"subject":"ticket question"}`)
	if rec.Code != http.StatusNotFound {
		t.Errorf("suggest status %d", rec.Code)
	}

	pdf := pdftest.TextPDF("1. What is a ticket?", "A ticket is a digital record of your request.")
	rec = ts.do(t, uploadRequest(t, "faq.pdf", pdf, map[string]string{"userId": "agent", "autoAdd": "true"}))
	var resp IngestResponse
	decode(t, rec, &resp)
	if !resp.Success || resp.Persisted != nil || ts.store.ChunkCount() != 0 {
		t.Errorf("auto-add should fall back to preview: %+v", resp)
	}

	rec = ts.do(t, uploadRequest(t, "faq.pdf", pdf, map[string]string{"userId": "admin", "autoAdd": "true"}))
	decode(t, rec, &resp)
	if resp.Persisted == nil || ts.store.ChunkCount() != 1 {
		t.Errorf("admin auto-add not persisted: %+v", resp)
	}
}

func TestOptionsReturnsEmptyOK(t *testing.T) {
	ts := newTestServer(t)

	rec := ts.do(t, httptest.NewRequest(http.MethodOptions, "/api/v1/ask", nil))
	if rec.Code != http.StatusOK || rec.Body.Len() != 0 {
		t.Errorf("bare OPTIONS: status %d body %q", rec.Code, rec.Body.String())
	}

	req := httptest.NewRequest(http.MethodOptions, "/api/v1/ask", nil)
	req.Header.Set("Origin", "https://helpdesk.example.com")
	req.Header.Set("Access-Control-Request-Method", http.MethodPost)
	rec = ts.do(t, req)
	if rec.Code != http.StatusOK || rec.Body.Len() != 0 {
		t.Errorf("preflight: status %d body %q", rec.Code, rec.Body.String())
	}
	if rec.Header().Get("Access-Control-Allow-Origin") == "" {
		t.Error("preflight missing CORS headers")
	}
}

func TestSecurityHeadersAndRequestID(t *testing.T) {
	ts := newTestServer(t)

	rec := ts.doJSON(t, http.MethodGet, "/api/v1/health", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("status %d", rec.Code)
	}
	if rec.Header().Get("X-Content-Type-Options") != "nosniff" {
		t.Error("missing security headers")
	}
	if rec.Header().Get(security.RequestIDHeader) == "" {
		t.Error("missing request id")
	}

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	req.Header.Set(security.RequestIDHeader, "req-42")
	rec = ts.do(t, req)
	if got := rec.Header().Get(security.RequestIDHeader); got != "req-42" {
		t.Errorf("request id = %q", got)
	}
}

func TestUnknownRoute(t *testing.T) {
	ts := newTestServer(t)
	rec := ts.doJSON(t, http.MethodGet, "/api/v1/nope", "")
	if rec.Code != http.StatusNotFound {
		t.Fatalf("status %d", rec.Code)
	}
}

func TestMetrics(t *testing.T) {
	ts := newTestServer(t)
	ts.doJSON(t, http.MethodGet, "/api/v1/knowledge/missing", "")
	ts.doJSON(t, http.MethodGet, "/api/v1/knowledge/other", "")

	rec := ts.doJSON(t, http.MethodGet, "/metrics", "")
	var resp struct {
		Gateway MetricsSnapshot `json:"gateway"`
		Cache   map[string]int  `json:"cache"`
	}
	decode(t, rec, &resp)
	if resp.Gateway.RequestsByPath["GET /api/v1/knowledge/{id}"] != 2 {
		t.Errorf("by path = %v", resp.Gateway.RequestsByPath)
	}
	if resp.Gateway.RequestsByStatus["404"] != 2 || resp.Gateway.ErrorRequests != 2 {
		t.Errorf("unexpected counters %+v", resp.Gateway)
	}
	if resp.Cache["hits"] != 3 {
		t.Errorf("cache stats = %v", resp.Cache)
	}
}
