// Package app wires configuration into the running knowledge base: store,
// embedding cache, language model client, event stream and health checks.
package app

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/deskmate/internal/audit"
	"github.com/deskmate/internal/cache"
	"github.com/deskmate/internal/config"
	"github.com/deskmate/internal/feature"
	"github.com/deskmate/internal/health"
	"github.com/deskmate/internal/kafka"
	"github.com/deskmate/internal/knowledgebase"
	"github.com/deskmate/internal/llm"
	"github.com/deskmate/internal/store"
)

const startupPingTimeout = 5 * time.Second

// Store is a backend holding chunks, embeddings and interactions
type Store interface {
	knowledgebase.ChunkStore
	knowledgebase.VectorStore
	audit.InteractionStore
	Ping(ctx context.Context) error
	Close()
}

// App holds the shared components of the server and the workers
type App struct {
	Config   *config.Config
	Service  *knowledgebase.Service
	Store    Store
	Embedder *cache.CachedEmbedder
	Redis    *cache.RedisCache
	Producer kafka.Producer
	Health   *health.HealthChecker
	Features *feature.Manager

	logger *slog.Logger
}

// New connects every configured backend. Redis and Kafka failures at
// startup are logged; the store must be reachable.
func New(ctx context.Context, cfg *config.Config, version string, logger *slog.Logger) (*App, error) {
	if logger == nil {
		logger = slog.Default()
	}
	a := &App{
		Config:   cfg,
		Health:   health.NewHealthChecker(version),
		Features: feature.NewManager(feature.NewStaticBackend(cfg.Features), cfg.Tracing.Environment, logger),
		logger:   logger,
	}

	st, err := openStore(ctx, cfg, logger)
	if err != nil {
		return nil, err
	}
	a.Store = st
	a.Health.Register(health.DatabaseCheck(st.Ping))

	embedOpts := []cache.Option{cache.WithLogger(logger)}
	if cfg.Redis.Enabled {
		a.Redis = cache.NewRedisCache(cfg.Redis)
		pingCtx, cancel := context.WithTimeout(ctx, startupPingTimeout)
		if err := a.Redis.Ping(pingCtx); err != nil {
			logger.Warn("redis unavailable, embedding cache is process-local until it recovers", "addr", cfg.Redis.Addr, "error", err)
		}
		cancel()
		embedOpts = append(embedOpts, cache.WithRedis(a.Redis))
		a.Health.Register(health.RedisCheck(a.Redis.Ping))
	}

	client := llm.NewClient(cfg.LLM, logger)
	a.Embedder = cache.NewCachedEmbedder(client, embedOpts...)

	if cfg.Kafka.Enabled {
		producer, err := kafka.NewProducer(cfg.Kafka, logger)
		if err != nil {
			a.Close()
			return nil, fmt.Errorf("failed to create kafka producer: %w", err)
		}
		a.Producer = producer
		if cfg.Kafka.CreateTopics {
			if err := kafka.NewTopicManager(cfg.Kafka.Brokers, logger).CreateTopics(); err != nil {
				logger.Warn("failed to create kafka topics", "error", err)
			}
		}
		brokers := cfg.Kafka.Brokers
		a.Health.Register(health.KafkaCheck(func(ctx context.Context) error {
			return kafka.Ping(ctx, brokers)
		}))
	}

	recorder := audit.NewRecorder(st, a.Producer, cfg.Kafka, logger)

	a.Service = knowledgebase.NewService(knowledgebase.Dependencies{
		Chunks:       st,
		Vectors:      st,
		Interactions: recorder,
		Events:       recorder,
		Embedder:     a.Embedder,
		Chat:         client,
	}, cfg.KnowledgeConfig(), logger)

	logger.Info("knowledge base ready",
		"storage", cfg.Storage,
		"embedding_model", client.Model(),
		"chat_model", client.ChatModel(),
		"redis", cfg.Redis.Enabled,
		"kafka", cfg.Kafka.Enabled)
	return a, nil
}

// CacheStats reports embedding cache counters for the metrics endpoint
func (a *App) CacheStats() interface{} {
	return a.Embedder.Stats()
}

// Close releases connections in reverse order of creation
func (a *App) Close() {
	if a.Producer != nil {
		if err := a.Producer.Close(); err != nil {
			a.logger.Warn("failed to close kafka producer", "error", err)
		}
	}
	if a.Redis != nil {
		if err := a.Redis.Close(); err != nil {
			a.logger.Warn("failed to close redis client", "error", err)
		}
	}
	if a.Store != nil {
		a.Store.Close()
	}
}

func openStore(ctx context.Context, cfg *config.Config, logger *slog.Logger) (Store, error) {
	if cfg.Storage == config.StorageMemory {
		logger.Warn("using in-memory storage; knowledge is lost on restart")
		return store.NewMemoryStore(), nil
	}

	pg, err := store.NewPostgresStore(ctx, cfg.Database)
	if err != nil {
		return nil, err
	}
	pingCtx, cancel := context.WithTimeout(ctx, startupPingTimeout)
	defer cancel()
	if err := pg.Ping(pingCtx); err != nil {
		pg.Close()
		return nil, fmt.Errorf("database unreachable: %w", err)
	}
	return pg, nil
}
