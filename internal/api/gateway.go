package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/mux"
	"github.com/rs/cors"

	"github.com/deskmate/internal/config"
	"github.com/deskmate/internal/feature"
	"github.com/deskmate/internal/health"
	"github.com/deskmate/internal/knowledgebase"
	"github.com/deskmate/internal/security"
	"github.com/deskmate/pkg/models"
)

const ingestRoute = "pdf-ingest"

// KnowledgeService is the knowledge base as seen by the HTTP layer
type KnowledgeService interface {
	ProcessPDF(ctx context.Context, req knowledgebase.IngestRequest) (*knowledgebase.IngestResult, error)
	Ask(ctx context.Context, req knowledgebase.AskRequest) (*knowledgebase.Answer, error)
	AddChunks(ctx context.Context, chunks []models.KnowledgeChunk, userID string) (*knowledgebase.PersistReport, error)
	CreateChunk(ctx context.Context, chunk models.KnowledgeChunk, userID string) (*models.KnowledgeChunk, error)
	GetChunk(ctx context.Context, id string) (*models.KnowledgeChunk, error)
	ListChunks(ctx context.Context, filter models.ChunkFilter) ([]models.KnowledgeChunk, error)
	UpdateChunk(ctx context.Context, id string, update knowledgebase.ChunkUpdate, userID string) (*models.KnowledgeChunk, error)
	DeleteChunk(ctx context.Context, id string, userID string) error
	Reembed(ctx context.Context, limit int) (*knowledgebase.SweepReport, error)
	SuggestForTicket(ctx context.Context, draft knowledgebase.TicketDraft) ([]knowledgebase.Suggestion, error)
}

// StatsFunc reports component statistics for the metrics endpoint
type StatsFunc func() interface{}

// Gateway serves the helpdesk API
type Gateway struct {
	server  *http.Server
	router  *mux.Router
	handler http.Handler
	config  config.APIConfig
	service KnowledgeService
	health  *health.HealthChecker
	flags   *feature.Manager
	stats   map[string]StatsFunc
	metrics *GatewayMetrics
	logger  *slog.Logger
}

// GatewayMetrics counts requests handled since start
type GatewayMetrics struct {
	mu               sync.Mutex
	totalRequests    int64
	errorRequests    int64
	totalLatency     time.Duration
	requestsByPath   map[string]int64
	requestsByStatus map[string]int64
	activeRequests   atomic.Int64
}

// MetricsSnapshot is a point-in-time copy of GatewayMetrics
type MetricsSnapshot struct {
	TotalRequests    int64            `json:"totalRequests"`
	ErrorRequests    int64            `json:"errorRequests"`
	ActiveRequests   int64            `json:"activeRequests"`
	AverageLatencyMs float64          `json:"averageLatencyMs"`
	RequestsByPath   map[string]int64 `json:"requestsByPath"`
	RequestsByStatus map[string]int64 `json:"requestsByStatus"`
}

type Option func(*Gateway)

func WithHealthChecker(hc *health.HealthChecker) Option {
	return func(g *Gateway) { g.health = hc }
}

// WithFeatureFlags gates optional endpoints; without it every feature is on
func WithFeatureFlags(m *feature.Manager) Option {
	return func(g *Gateway) { g.flags = m }
}

// WithStats adds a named section to the metrics response
func WithStats(name string, fn StatsFunc) Option {
	return func(g *Gateway) { g.stats[name] = fn }
}

func WithLogger(logger *slog.Logger) Option {
	return func(g *Gateway) { g.logger = logger }
}

func NewGateway(cfg config.APIConfig, service KnowledgeService, opts ...Option) *Gateway {
	g := &Gateway{
		router:  mux.NewRouter(),
		config:  cfg,
		service: service,
		stats:   make(map[string]StatsFunc),
		metrics: &GatewayMetrics{
			requestsByPath:   make(map[string]int64),
			requestsByStatus: make(map[string]int64),
		},
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(g)
	}

	g.setupRoutes()
	g.setupMiddleware()

	g.server = &http.Server{
		Addr:         cfg.Addr(),
		Handler:      g.handler,
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
		IdleTimeout:  cfg.IdleTimeout,
	}
	return g
}

func (g *Gateway) setupRoutes() {
	api := g.router.PathPrefix("/api/v1").Subrouter()

	api.HandleFunc("/pdf/ingest", g.handleIngestPDF).Methods(http.MethodPost).Name(ingestRoute)
	api.HandleFunc("/ask", g.handleAsk).Methods(http.MethodPost)

	api.HandleFunc("/knowledge", g.handleListKnowledge).Methods(http.MethodGet)
	api.HandleFunc("/knowledge", g.handleCreateKnowledge).Methods(http.MethodPost)
	api.HandleFunc("/knowledge/bulk", g.handleBulkKnowledge).Methods(http.MethodPost)
	api.HandleFunc("/knowledge/reembed", g.handleReembed).Methods(http.MethodPost)
	api.HandleFunc("/knowledge/{id}", g.handleGetKnowledge).Methods(http.MethodGet)
	api.HandleFunc("/knowledge/{id}", g.handleUpdateKnowledge).Methods(http.MethodPut)
	api.HandleFunc("/knowledge/{id}", g.handleDeleteKnowledge).Methods(http.MethodDelete)

	api.HandleFunc("/tickets/suggest", g.handleSuggest).Methods(http.MethodPost)

	api.HandleFunc("/health", g.handleHealth).Methods(http.MethodGet)
	api.HandleFunc("/metrics", g.handleMetrics).Methods(http.MethodGet)
	g.router.HandleFunc("/health", g.handleHealth).Methods(http.MethodGet)
	g.router.HandleFunc("/metrics", g.handleMetrics).Methods(http.MethodGet)

	g.router.NotFoundHandler = http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		writeErrorResponse(w, http.StatusNotFound, "route not found")
	})
	g.router.MethodNotAllowedHandler = http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		writeErrorResponse(w, http.StatusMethodNotAllowed, "method not allowed")
	})
}

func (g *Gateway) setupMiddleware() {
	g.router.Use(g.metricsMiddleware)
	g.router.Use(g.bodyLimitMiddleware)

	origins := g.config.AllowedOrigins
	if len(origins) == 0 {
		origins = []string{"*"}
	}
	c := cors.New(cors.Options{
		AllowedOrigins:       origins,
		AllowedMethods:       []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodDelete, http.MethodOptions},
		AllowedHeaders:       []string{"*"},
		ExposedHeaders:       []string{security.RequestIDHeader},
		MaxAge:               86400,
		OptionsPassthrough:   false,
		OptionsSuccessStatus: http.StatusOK,
	})

	g.handler = security.SecurityMiddleware(c.Handler(optionsMiddleware(g.router)))
}

// optionsMiddleware answers OPTIONS requests that are not CORS preflights
// with an empty 200
func optionsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusOK)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (g *Gateway) featureEnabled(ctx context.Context, name, userID string) bool {
	if g.flags == nil {
		return true
	}
	return g.flags.IsEnabled(ctx, name, feature.UserContext{ID: userID})
}

// Handler returns the fully wrapped HTTP handler
func (g *Gateway) Handler() http.Handler {
	return g.handler
}

func (g *Gateway) Start() error {
	tlsConfig, err := security.ConfigureTLS(g.config.TLS)
	if err != nil {
		return err
	}

	g.logger.Info("starting API gateway", "addr", g.server.Addr, "tls", tlsConfig != nil)

	if tlsConfig != nil {
		g.server.TLSConfig = tlsConfig
		err = g.server.ListenAndServeTLS("", "")
	} else {
		err = g.server.ListenAndServe()
	}
	if errors.Is(err, http.ErrServerClosed) {
		return nil
	}
	return err
}

func (g *Gateway) Stop(ctx context.Context) error {
	g.logger.Info("stopping API gateway")
	return g.server.Shutdown(ctx)
}

// Metrics returns a snapshot of the request counters
func (g *Gateway) Metrics() MetricsSnapshot {
	m := g.metrics
	m.mu.Lock()
	defer m.mu.Unlock()

	snap := MetricsSnapshot{
		TotalRequests:    m.totalRequests,
		ErrorRequests:    m.errorRequests,
		ActiveRequests:   m.activeRequests.Load(),
		RequestsByPath:   make(map[string]int64, len(m.requestsByPath)),
		RequestsByStatus: make(map[string]int64, len(m.requestsByStatus)),
	}
	if m.totalRequests > 0 {
		snap.AverageLatencyMs = float64(m.totalLatency.Milliseconds()) / float64(m.totalRequests)
	}
	for k, v := range m.requestsByPath {
		snap.RequestsByPath[k] = v
	}
	for k, v := range m.requestsByStatus {
		snap.RequestsByStatus[k] = v
	}
	return snap
}

func (g *Gateway) metricsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		g.metrics.activeRequests.Add(1)
		defer g.metrics.activeRequests.Add(-1)

		wrapped := &responseWriter{ResponseWriter: w, statusCode: http.StatusOK}
		next.ServeHTTP(wrapped, r)

		// route templates keep ids out of the path counters
		path := r.URL.Path
		if route := mux.CurrentRoute(r); route != nil {
			if tpl, err := route.GetPathTemplate(); err == nil {
				path = tpl
			}
		}
		g.recordRequest(r.Method+" "+path, wrapped.statusCode, time.Since(start))
	})
}

func (g *Gateway) recordRequest(key string, status int, latency time.Duration) {
	m := g.metrics
	m.mu.Lock()
	defer m.mu.Unlock()

	m.totalRequests++
	m.totalLatency += latency
	m.requestsByPath[key]++
	m.requestsByStatus[strconv.Itoa(status)]++
	if status >= 400 {
		m.errorRequests++
	}
}

// bodyLimitMiddleware caps request bodies; PDF uploads get the larger limit
func (g *Gateway) bodyLimitMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		limit := g.config.MaxRequestSize
		if route := mux.CurrentRoute(r); route != nil && route.GetName() == ingestRoute {
			limit = g.config.MaxUploadSize
		}
		if limit > 0 && r.Body != nil {
			r.Body = http.MaxBytesReader(w, r.Body, limit)
		}
		next.ServeHTTP(w, r)
	})
}

type responseWriter struct {
	http.ResponseWriter
	statusCode int
}

func (rw *responseWriter) WriteHeader(code int) {
	rw.statusCode = code
	rw.ResponseWriter.WriteHeader(code)
}

// ErrorResponse is the body of every non-2xx reply
type ErrorResponse struct {
	Error   string `json:"error"`
	Details string `json:"details,omitempty"`
}

func writeJSONResponse(w http.ResponseWriter, statusCode int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		slog.Error("failed to encode response", "error", err)
	}
}

func writeErrorResponse(w http.ResponseWriter, statusCode int, message string) {
	writeJSONResponse(w, statusCode, ErrorResponse{Error: message})
}

// parseRequestBody decodes a JSON body, rejecting unknown trailing data
func parseRequestBody(r *http.Request, target interface{}) error {
	if r.Body == nil {
		return errors.New("request body is empty")
	}
	decoder := json.NewDecoder(r.Body)
	if err := decoder.Decode(target); err != nil {
		return fmt.Errorf("invalid JSON body: %w", err)
	}
	if decoder.More() {
		return errors.New("request body must contain a single JSON object")
	}
	return nil
}
