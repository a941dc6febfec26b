package store

import (
	"context"
	"math"
	"sort"
	"sync"
	"time"

	"github.com/deskmate/pkg/models"
)

// MemoryStore keeps chunks, embeddings and interactions in process. It is
// used by tests and by the pdf-extract tool.
type MemoryStore struct {
	mu           sync.RWMutex
	chunks       map[string]*models.KnowledgeChunk
	order        []string
	embeddings   map[string][]float32
	interactions []models.AIInteraction

	// embedding attempt sequence per chunk; zero means never attempted
	attempts   map[string]uint64
	attemptSeq uint64
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		chunks:     make(map[string]*models.KnowledgeChunk),
		embeddings: make(map[string][]float32),
		attempts:   make(map[string]uint64),
	}
}

func (m *MemoryStore) CreateChunk(_ context.Context, chunk *models.KnowledgeChunk) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	c := cloneChunk(*chunk)
	if _, exists := m.chunks[c.ID]; !exists {
		m.order = append(m.order, c.ID)
	}
	m.chunks[c.ID] = &c
	return nil
}

func (m *MemoryStore) GetChunk(_ context.Context, id string) (*models.KnowledgeChunk, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	c, ok := m.chunks[id]
	if !ok {
		return nil, models.ErrNotFound
	}
	out := cloneChunk(*c)
	return &out, nil
}

func (m *MemoryStore) UpdateChunk(_ context.Context, chunk *models.KnowledgeChunk) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.chunks[chunk.ID]; !ok {
		return models.ErrNotFound
	}
	c := cloneChunk(*chunk)
	m.chunks[c.ID] = &c
	if c.EmbeddingStatus == models.EmbeddingPending {
		delete(m.embeddings, c.ID)
	}
	return nil
}

func (m *MemoryStore) ListChunks(_ context.Context, filter models.ChunkFilter) ([]models.KnowledgeChunk, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var out []models.KnowledgeChunk
	skipped := 0
	for i := len(m.order) - 1; i >= 0; i-- {
		c := m.chunks[m.order[i]]
		if filter.ActiveOnly && !c.IsActive {
			continue
		}
		if filter.Category != "" && c.Category != filter.Category {
			continue
		}
		if skipped < filter.Offset {
			skipped++
			continue
		}
		out = append(out, cloneChunk(*c))
		if filter.Limit > 0 && len(out) == filter.Limit {
			break
		}
	}
	return out, nil
}

func (m *MemoryStore) DeactivateChunk(_ context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	c, ok := m.chunks[id]
	if !ok {
		return models.ErrNotFound
	}
	c.IsActive = false
	c.UpdatedAt = time.Now().UTC()
	return nil
}

func (m *MemoryStore) IncrementUsage(_ context.Context, ids []string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, id := range ids {
		if c, ok := m.chunks[id]; ok {
			c.UsageCount++
		}
	}
	return nil
}

// ListUnembedded returns never-attempted chunks first, then the ones whose
// last embedding attempt is oldest, so chunks that keep failing rotate to
// the back.
func (m *MemoryStore) ListUnembedded(_ context.Context, model string, limit int) ([]models.KnowledgeChunk, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var out []models.KnowledgeChunk
	for _, id := range m.order {
		c := m.chunks[id]
		if !c.IsActive {
			continue
		}
		if c.EmbeddingStatus == models.EmbeddingEmbedded && c.EmbeddingModel == model {
			continue
		}
		out = append(out, cloneChunk(*c))
	}
	sort.SliceStable(out, func(i, j int) bool {
		return m.attempts[out[i].ID] < m.attempts[out[j].ID]
	})
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (m *MemoryStore) StoreEmbedding(_ context.Context, chunkID string, embedding []float32, model string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	c, ok := m.chunks[chunkID]
	if !ok {
		return models.ErrNotFound
	}
	m.embeddings[chunkID] = append([]float32(nil), embedding...)
	m.recordAttempt(chunkID)
	c.EmbeddingStatus = models.EmbeddingEmbedded
	c.EmbeddingModel = model
	return nil
}

func (m *MemoryStore) MarkEmbeddingFailed(_ context.Context, chunkID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	c, ok := m.chunks[chunkID]
	if !ok {
		return models.ErrNotFound
	}
	delete(m.embeddings, chunkID)
	m.recordAttempt(chunkID)
	c.EmbeddingStatus = models.EmbeddingFailed
	return nil
}

// recordAttempt must be called with mu held
func (m *MemoryStore) recordAttempt(chunkID string) {
	m.attemptSeq++
	m.attempts[chunkID] = m.attemptSeq
}

func (m *MemoryStore) SearchSimilar(_ context.Context, embedding []float32, threshold float64, limit int) ([]models.ScoredChunk, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var out []models.ScoredChunk
	for _, id := range m.order {
		c := m.chunks[id]
		vec, ok := m.embeddings[id]
		if !ok || !c.IsActive || c.EmbeddingStatus != models.EmbeddingEmbedded {
			continue
		}
		sim := CosineSimilarity(embedding, vec)
		if sim < threshold {
			continue
		}
		out = append(out, models.ScoredChunk{Chunk: cloneChunk(*c), Similarity: sim})
	}

	sort.SliceStable(out, func(i, j int) bool { return out[i].Similarity > out[j].Similarity })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (m *MemoryStore) LogInteraction(_ context.Context, interaction *models.AIInteraction) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.interactions = append(m.interactions, *interaction)
	return nil
}

// Interactions returns a copy of the logged interactions
func (m *MemoryStore) Interactions() []models.AIInteraction {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return append([]models.AIInteraction(nil), m.interactions...)
}

// ChunkCount returns the number of stored chunks, active or not
func (m *MemoryStore) ChunkCount() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.chunks)
}

func (m *MemoryStore) Ping(context.Context) error { return nil }

func (m *MemoryStore) Close() {}

// CosineSimilarity returns the cosine of the angle between a and b, or 0
// when the lengths differ or either vector is zero.
func CosineSimilarity(a, b []float32) float64 {
	if len(a) != len(b) || len(a) == 0 {
		return 0
	}
	var dot, na, nb float64
	for i := range a {
		x, y := float64(a[i]), float64(b[i])
		dot += x * y
		na += x * x
		nb += y * y
	}
	if na == 0 || nb == 0 {
		return 0
	}
	return dot / (math.Sqrt(na) * math.Sqrt(nb))
}

func cloneChunk(c models.KnowledgeChunk) models.KnowledgeChunk {
	c.Tags = append([]string(nil), c.Tags...)
	if c.Confidence != nil {
		v := *c.Confidence
		c.Confidence = &v
	}
	return c
}
