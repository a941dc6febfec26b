// Package cache memoizes embeddings in process and, optionally, in Redis.
package cache

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"log/slog"
	"sync/atomic"
	"time"

	gocache "github.com/patrickmn/go-cache"
)

const (
	defaultLocalTTL = 30 * time.Minute
	cleanupInterval = 10 * time.Minute
)

// Embedder is the wrapped embedding source
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
	Model() string
}

// Stats counts lookups since start
type Stats struct {
	LocalHits  int64 `json:"localHits"`
	RemoteHits int64 `json:"remoteHits"`
	Misses     int64 `json:"misses"`
	Errors     int64 `json:"errors"`
}

// CachedEmbedder checks a local cache, then Redis, then the wrapped
// embedder. Redis errors are logged and treated as misses.
type CachedEmbedder struct {
	next   Embedder
	local  *gocache.Cache
	remote *RedisCache
	logger *slog.Logger

	localHits  atomic.Int64
	remoteHits atomic.Int64
	misses     atomic.Int64
	errors     atomic.Int64
}

type Option func(*CachedEmbedder)

// WithRedis adds a shared second-level cache
func WithRedis(rc *RedisCache) Option {
	return func(c *CachedEmbedder) { c.remote = rc }
}

func WithLocalTTL(ttl time.Duration) Option {
	return func(c *CachedEmbedder) { c.local = gocache.New(ttl, cleanupInterval) }
}

func WithLogger(logger *slog.Logger) Option {
	return func(c *CachedEmbedder) { c.logger = logger }
}

func NewCachedEmbedder(next Embedder, opts ...Option) *CachedEmbedder {
	c := &CachedEmbedder{
		next:   next,
		local:  gocache.New(defaultLocalTTL, cleanupInterval),
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

func (c *CachedEmbedder) Model() string { return c.next.Model() }

func (c *CachedEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	key := embeddingKey(c.next.Model(), text)

	if v, found := c.local.Get(key); found {
		c.localHits.Add(1)
		return copyVector(v.([]float32)), nil
	}

	if c.remote != nil {
		var vec []float32
		found, err := c.remote.Get(ctx, key, &vec)
		if err != nil {
			c.errors.Add(1)
			c.logger.Warn("embedding cache read failed", "error", err)
		} else if found && len(vec) > 0 {
			c.remoteHits.Add(1)
			c.local.Set(key, vec, gocache.DefaultExpiration)
			return copyVector(vec), nil
		}
	}

	c.misses.Add(1)
	vec, err := c.next.Embed(ctx, text)
	if err != nil {
		return nil, err
	}

	c.local.Set(key, copyVector(vec), gocache.DefaultExpiration)
	if c.remote != nil {
		if err := c.remote.Set(ctx, key, vec, 0); err != nil {
			c.errors.Add(1)
			c.logger.Warn("embedding cache write failed", "error", err)
		}
	}
	return vec, nil
}

func (c *CachedEmbedder) Stats() Stats {
	return Stats{
		LocalHits:  c.localHits.Load(),
		RemoteHits: c.remoteHits.Load(),
		Misses:     c.misses.Load(),
		Errors:     c.errors.Load(),
	}
}

// embeddingKey scopes entries to the model so a model change never serves
// stale vectors
func embeddingKey(model, text string) string {
	sum := sha256.Sum256([]byte(model + ":" + text))
	return "emb:" + hex.EncodeToString(sum[:])
}

func copyVector(v []float32) []float32 {
	return append([]float32(nil), v...)
}
