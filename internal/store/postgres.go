// Package store persists knowledge chunks, their embeddings and the AI
// interaction log.
package store

import (
	"context"
	_ "embed"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/pgvector/pgvector-go"

	"github.com/deskmate/pkg/models"
)

//go:embed schema.sql
var schema string

type PostgresConfig struct {
	URL             string        `yaml:"url"`
	MaxConns        int32         `yaml:"max_conns"`
	MinConns        int32         `yaml:"min_conns"`
	MaxConnLifetime time.Duration `yaml:"max_conn_lifetime"`
	MigrateOnStart  bool          `yaml:"migrate_on_start"`
}

// PostgresStore implements the chunk, vector and interaction stores on
// Postgres with pgvector.
type PostgresStore struct {
	pool *pgxpool.Pool
}

func NewPostgresStore(ctx context.Context, config PostgresConfig) (*PostgresStore, error) {
	poolConfig, err := pgxpool.ParseConfig(config.URL)
	if err != nil {
		return nil, fmt.Errorf("invalid database url: %w", err)
	}
	if config.MaxConns > 0 {
		poolConfig.MaxConns = config.MaxConns
	}
	if config.MinConns > 0 {
		poolConfig.MinConns = config.MinConns
	}
	if config.MaxConnLifetime > 0 {
		poolConfig.MaxConnLifetime = config.MaxConnLifetime
	}

	pool, err := pgxpool.NewWithConfig(ctx, poolConfig)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to postgres: %w", err)
	}
	s := &PostgresStore{pool: pool}

	if config.MigrateOnStart {
		if err := s.CreateSchema(ctx); err != nil {
			pool.Close()
			return nil, err
		}
	}
	return s, nil
}

// CreateSchema creates the tables and the vector extension if missing
func (s *PostgresStore) CreateSchema(ctx context.Context) error {
	if _, err := s.pool.Exec(ctx, schema); err != nil {
		return fmt.Errorf("failed to execute schema: %w", err)
	}
	return nil
}

func (s *PostgresStore) Ping(ctx context.Context) error {
	return s.pool.Ping(ctx)
}

func (s *PostgresStore) Close() {
	s.pool.Close()
}

const chunkColumns = `id, title, content, category, tags, confidence, source, created_by,
	is_active, usage_count, embedding_status, embedding_model, created_at, updated_at`

func (s *PostgresStore) CreateChunk(ctx context.Context, c *models.KnowledgeChunk) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO knowledge_chunks (`+chunkColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)`,
		c.ID, c.Title, c.Content, string(c.Category), tagsOrEmpty(c.Tags), c.Confidence, c.Source, c.CreatedBy,
		c.IsActive, c.UsageCount, string(c.EmbeddingStatus), c.EmbeddingModel, c.CreatedAt, c.UpdatedAt)
	if err != nil {
		return fmt.Errorf("insert chunk: %w", err)
	}
	return nil
}

func (s *PostgresStore) GetChunk(ctx context.Context, id string) (*models.KnowledgeChunk, error) {
	row := s.pool.QueryRow(ctx, `SELECT `+chunkColumns+` FROM knowledge_chunks WHERE id = $1`, id)
	c, err := scanChunk(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, models.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get chunk: %w", err)
	}
	return c, nil
}

// UpdateChunk writes the editable fields. A pending status clears the
// stored embedding so it cannot be served for the new text.
func (s *PostgresStore) UpdateChunk(ctx context.Context, c *models.KnowledgeChunk) error {
	tag, err := s.pool.Exec(ctx, `
		UPDATE knowledge_chunks
		SET title = $2, content = $3, category = $4, tags = $5, confidence = $6,
		    is_active = $7, embedding_status = $8, updated_at = $9,
		    embedding = CASE WHEN $8 = 'pending' THEN NULL ELSE embedding END
		WHERE id = $1`,
		c.ID, c.Title, c.Content, string(c.Category), tagsOrEmpty(c.Tags), c.Confidence,
		c.IsActive, string(c.EmbeddingStatus), c.UpdatedAt)
	if err != nil {
		return fmt.Errorf("update chunk: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return models.ErrNotFound
	}
	return nil
}

func (s *PostgresStore) ListChunks(ctx context.Context, filter models.ChunkFilter) ([]models.KnowledgeChunk, error) {
	limit := filter.Limit
	if limit <= 0 {
		limit = 100
	}
	rows, err := s.pool.Query(ctx, `
		SELECT `+chunkColumns+` FROM knowledge_chunks
		WHERE ($1 = '' OR category = $1) AND (NOT $2 OR is_active)
		ORDER BY created_at DESC
		LIMIT $3 OFFSET $4`,
		string(filter.Category), filter.ActiveOnly, limit, filter.Offset)
	if err != nil {
		return nil, fmt.Errorf("list chunks: %w", err)
	}
	return collectChunks(rows)
}

func (s *PostgresStore) DeactivateChunk(ctx context.Context, id string) error {
	tag, err := s.pool.Exec(ctx,
		`UPDATE knowledge_chunks SET is_active = FALSE, updated_at = now() WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("deactivate chunk: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return models.ErrNotFound
	}
	return nil
}

func (s *PostgresStore) IncrementUsage(ctx context.Context, ids []string) error {
	_, err := s.pool.Exec(ctx,
		`UPDATE knowledge_chunks SET usage_count = usage_count + 1 WHERE id::text = ANY($1::text[])`, ids)
	if err != nil {
		return fmt.Errorf("increment usage: %w", err)
	}
	return nil
}

func (s *PostgresStore) ListUnembedded(ctx context.Context, model string, limit int) ([]models.KnowledgeChunk, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT `+chunkColumns+` FROM knowledge_chunks
		WHERE is_active AND (embedding_status <> 'embedded' OR embedding_model <> $1 OR embedding IS NULL)
		ORDER BY embedding_attempted_at NULLS FIRST, updated_at
		LIMIT $2`, model, limit)
	if err != nil {
		return nil, fmt.Errorf("list unembedded chunks: %w", err)
	}
	return collectChunks(rows)
}

func (s *PostgresStore) StoreEmbedding(ctx context.Context, chunkID string, embedding []float32, model string) error {
	tag, err := s.pool.Exec(ctx, `
		UPDATE knowledge_chunks
		SET embedding = $2::vector, embedding_status = 'embedded', embedding_model = $3,
		    embedding_attempted_at = now()
		WHERE id = $1`,
		chunkID, pgvector.NewVector(embedding), model)
	if err != nil {
		return fmt.Errorf("store embedding: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return models.ErrNotFound
	}
	return nil
}

func (s *PostgresStore) MarkEmbeddingFailed(ctx context.Context, chunkID string) error {
	_, err := s.pool.Exec(ctx, `
		UPDATE knowledge_chunks
		SET embedding = NULL, embedding_status = 'failed', embedding_attempted_at = now()
		WHERE id = $1`, chunkID)
	if err != nil {
		return fmt.Errorf("mark embedding failed: %w", err)
	}
	return nil
}

// SearchSimilar ranks by cosine distance; similarity is 1 - distance and
// the threshold is inclusive.
func (s *PostgresStore) SearchSimilar(ctx context.Context, embedding []float32, threshold float64, limit int) ([]models.ScoredChunk, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT `+chunkColumns+`, 1 - (embedding <=> $1::vector) AS similarity
		FROM knowledge_chunks
		WHERE is_active AND embedding_status = 'embedded' AND embedding IS NOT NULL
		  AND 1 - (embedding <=> $1::vector) >= $2
		ORDER BY embedding <=> $1::vector
		LIMIT $3`,
		pgvector.NewVector(embedding), threshold, limit)
	if err != nil {
		return nil, fmt.Errorf("search similar chunks: %w", err)
	}
	defer rows.Close()

	var out []models.ScoredChunk
	for rows.Next() {
		var sc models.ScoredChunk
		c, err := scanChunk(rows, &sc.Similarity)
		if err != nil {
			return nil, fmt.Errorf("scan chunk: %w", err)
		}
		sc.Chunk = *c
		out = append(out, sc)
	}
	return out, rows.Err()
}

func (s *PostgresStore) LogInteraction(ctx context.Context, i *models.AIInteraction) error {
	metadata, err := json.Marshal(i.Metadata)
	if err != nil {
		return fmt.Errorf("marshal interaction metadata: %w", err)
	}
	_, err = s.pool.Exec(ctx, `
		INSERT INTO ai_interactions
			(id, session_id, user_id, input_text, ai_response, confidence_score, knowledge_base_id, metadata, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8::jsonb, $9)`,
		i.ID, i.SessionID, i.UserID, i.InputText, i.AIResponse, i.ConfidenceScore, i.KnowledgeBaseID, string(metadata), i.CreatedAt)
	if err != nil {
		return fmt.Errorf("insert interaction: %w", err)
	}
	return nil
}

func scanChunk(row pgx.Row, extra ...any) (*models.KnowledgeChunk, error) {
	var (
		c                models.KnowledgeChunk
		category, status string
	)
	dest := []any{
		&c.ID, &c.Title, &c.Content, &category, &c.Tags, &c.Confidence, &c.Source, &c.CreatedBy,
		&c.IsActive, &c.UsageCount, &status, &c.EmbeddingModel, &c.CreatedAt, &c.UpdatedAt,
	}
	if err := row.Scan(append(dest, extra...)...); err != nil {
		return nil, err
	}
	c.Category = models.Category(category)
	c.EmbeddingStatus = models.EmbeddingStatus(status)
	return &c, nil
}

func collectChunks(rows pgx.Rows) ([]models.KnowledgeChunk, error) {
	defer rows.Close()
	var out []models.KnowledgeChunk
	for rows.Next() {
		c, err := scanChunk(rows)
		if err != nil {
			return nil, fmt.Errorf("scan chunk: %w", err)
		}
		out = append(out, *c)
	}
	return out, rows.Err()
}

func tagsOrEmpty(tags []string) []string {
	if tags == nil {
		return []string{}
	}
	return tags
}
