package store

import (
	"context"
	"errors"
	"testing"

	"github.com/deskmate/pkg/models"
)

func addEmbedded(t *testing.T, s *MemoryStore, id string, vec []float32) {
	t.Helper()
	ctx := context.Background()
	chunk := &models.KnowledgeChunk{
		ID:              id,
		Title:           "title " + id,
		Content:         "content " + id,
		Category:        models.CategoryGeneral,
		IsActive:        true,
		EmbeddingStatus: models.EmbeddingPending,
	}
	if err := s.CreateChunk(ctx, chunk); err != nil {
		t.Fatal(err)
	}
	if err := s.StoreEmbedding(ctx, id, vec, "test-model"); err != nil {
		t.Fatal(err)
	}
}

func TestSearchSimilar_ThresholdInclusive(t *testing.T) {
	s := NewMemoryStore()
	addEmbedded(t, s, "exact", []float32{3, 4})    // cosine 0.6 against {1,0}
	addEmbedded(t, s, "below", []float32{3, 4.01}) // cosine ~0.599
	addEmbedded(t, s, "close", []float32{1, 0.1})

	hits, err := s.SearchSimilar(context.Background(), []float32{1, 0}, 0.6, 8)
	if err != nil {
		t.Fatal(err)
	}
	if len(hits) != 2 {
		t.Fatalf("expected 2 hits, got %+v", hits)
	}
	if hits[0].Chunk.ID != "close" || hits[1].Chunk.ID != "exact" {
		t.Errorf("unexpected order: %s, %s", hits[0].Chunk.ID, hits[1].Chunk.ID)
	}
	if hits[1].Similarity != 0.6 {
		t.Errorf("boundary similarity = %v, want 0.6", hits[1].Similarity)
	}
}

func TestSearchSimilar_SkipsInactiveAndUnembedded(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()
	addEmbedded(t, s, "active", []float32{1, 0})
	addEmbedded(t, s, "inactive", []float32{1, 0})
	addEmbedded(t, s, "failed", []float32{1, 0})

	if err := s.DeactivateChunk(ctx, "inactive"); err != nil {
		t.Fatal(err)
	}
	if err := s.MarkEmbeddingFailed(ctx, "failed"); err != nil {
		t.Fatal(err)
	}

	hits, err := s.SearchSimilar(ctx, []float32{1, 0}, 0.5, 8)
	if err != nil {
		t.Fatal(err)
	}
	if len(hits) != 1 || hits[0].Chunk.ID != "active" {
		t.Fatalf("expected only the active chunk, got %+v", hits)
	}
}

func TestSearchSimilar_Limit(t *testing.T) {
	s := NewMemoryStore()
	for _, id := range []string{"a", "b", "c", "d"} {
		addEmbedded(t, s, id, []float32{1, 0})
	}
	hits, _ := s.SearchSimilar(context.Background(), []float32{1, 0}, 0.1, 3)
	if len(hits) != 3 {
		t.Fatalf("expected 3 hits, got %d", len(hits))
	}
}

func TestListUnembedded(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()
	addEmbedded(t, s, "done", []float32{1, 0})
	addEmbedded(t, s, "old-model", []float32{1, 0})
	if err := s.StoreEmbedding(ctx, "old-model", []float32{1, 0}, "previous-model"); err != nil {
		t.Fatal(err)
	}
	if err := s.CreateChunk(ctx, &models.KnowledgeChunk{ID: "pending", IsActive: true, EmbeddingStatus: models.EmbeddingPending}); err != nil {
		t.Fatal(err)
	}

	got, err := s.ListUnembedded(ctx, "test-model", 10)
	if err != nil {
		t.Fatal(err)
	}
	ids := map[string]bool{}
	for _, c := range got {
		ids[c.ID] = true
	}
	if len(got) != 2 || !ids["old-model"] || !ids["pending"] {
		t.Fatalf("unexpected unembedded set %v", ids)
	}
}

func TestListUnembedded_FailedRotateToBack(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()
	for _, id := range []string{"bad-1", "bad-2", "fresh"} {
		if err := s.CreateChunk(ctx, &models.KnowledgeChunk{ID: id, IsActive: true, EmbeddingStatus: models.EmbeddingPending}); err != nil {
			t.Fatal(err)
		}
	}
	for _, id := range []string{"bad-1", "bad-2"} {
		if err := s.MarkEmbeddingFailed(ctx, id); err != nil {
			t.Fatal(err)
		}
	}

	got, err := s.ListUnembedded(ctx, "test-model", 2)
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 2 || got[0].ID != "fresh" || got[1].ID != "bad-1" {
		t.Fatalf("unexpected order %+v", got)
	}

	if err := s.MarkEmbeddingFailed(ctx, "bad-1"); err != nil {
		t.Fatal(err)
	}
	got, _ = s.ListUnembedded(ctx, "test-model", 3)
	if got[1].ID != "bad-2" || got[2].ID != "bad-1" {
		t.Fatalf("retried chunk should move to the back: %+v", got)
	}
}

func TestUpdateChunk_PendingDropsEmbedding(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()
	addEmbedded(t, s, "a", []float32{1, 0})

	c, _ := s.GetChunk(ctx, "a")
	c.Content = "edited"
	c.EmbeddingStatus = models.EmbeddingPending
	if err := s.UpdateChunk(ctx, c); err != nil {
		t.Fatal(err)
	}

	hits, _ := s.SearchSimilar(ctx, []float32{1, 0}, 0.1, 8)
	if len(hits) != 0 {
		t.Fatalf("edited chunk still searchable: %+v", hits)
	}
}

func TestGetChunk_NotFound(t *testing.T) {
	_, err := NewMemoryStore().GetChunk(context.Background(), "missing")
	if !errors.Is(err, models.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestCosineSimilarity(t *testing.T) {
	tests := []struct {
		a, b []float32
		want float64
	}{
		{[]float32{1, 0}, []float32{1, 0}, 1},
		{[]float32{1, 0}, []float32{0, 1}, 0},
		{[]float32{1, 0}, []float32{-1, 0}, -1},
		{[]float32{1, 0}, []float32{1}, 0},
		{[]float32{0, 0}, []float32{1, 0}, 0},
	}
	for _, tt := range tests {
		if got := CosineSimilarity(tt.a, tt.b); got != tt.want {
			t.Errorf("CosineSimilarity(%v, %v) = %v, want %v", tt.a, tt.b, got, tt.want)
		}
	}
}
