// ABOUTME: Tests for embedding index and vector storage
// ABOUTME: Verifies vector round-trips, similarity ordering and stable ties
package sqlite

import (
	"context"
	"math"
	"testing"

	"github.com/harper/mediaindex/internal/models"
)

func setupIndexed(t *testing.T, vectors map[string][]float64, order []string) (*DB, *models.EmbeddingIndex) {
	t.Helper()
	db := newTestDB(t)
	ctx := context.Background()
	s := db.Stores()

	_ = s.Catalog.Create(ctx, &models.TableInfo{
		Name:    "doc_index.kb_chunks",
		Kind:    models.KindTable,
		Columns: []models.Column{{Name: "text", Type: models.TypeString}},
	})
	idx := &models.EmbeddingIndex{Table: "doc_index.kb_chunks", Column: "text", Model: "text-embedding-3-small"}
	if err := s.Embeddings.CreateIndex(ctx, idx); err != nil {
		t.Fatalf("CreateIndex() error = %v", err)
	}

	for _, id := range order {
		if err := s.Rows.Insert(ctx, "doc_index.kb_chunks", models.NewRow(id)); err != nil {
			t.Fatal(err)
		}
		if err := s.Embeddings.Save(ctx, &models.Embedding{IndexID: idx.ID, RowID: id, Vector: vectors[id]}); err != nil {
			t.Fatalf("Save() error = %v", err)
		}
	}
	return db, idx
}

func TestEmbeddingRoundTrip(t *testing.T) {
	vector := make([]float64, 1536)
	for i := range vector {
		vector[i] = float64(i) / 1536.0
	}
	db, idx := setupIndexed(t, map[string][]float64{"chunk_1": vector}, []string{"chunk_1"})
	ctx := context.Background()
	store := db.Stores().Embeddings

	decoded := blobToVector(vectorToBlob(vector))
	for i, v := range decoded {
		if math.Abs(v-vector[i]) > 1e-10 {
			t.Fatalf("Vector[%d] = %v, want %v", i, v, vector[i])
		}
	}

	n, err := store.Count(ctx, idx.ID)
	if err != nil || n != 1 {
		t.Fatalf("Count() = %d, %v; want 1", n, err)
	}

	// The stored vector matches itself exactly
	results, err := store.SearchSimilar(ctx, idx.ID, vector, 1)
	if err != nil {
		t.Fatalf("SearchSimilar() error = %v", err)
	}
	if len(results) != 1 || results[0].RowID != "chunk_1" || math.Abs(results[0].SimilarityScore-1) > 1e-9 {
		t.Errorf("results = %+v", results)
	}

	// Saving again replaces the vector
	flipped := make([]float64, len(vector))
	for i, v := range vector {
		flipped[i] = -v
	}
	if err := store.Save(ctx, &models.Embedding{IndexID: idx.ID, RowID: "chunk_1", Vector: flipped}); err != nil {
		t.Fatalf("Save() error = %v", err)
	}
	results, _ = store.SearchSimilar(ctx, idx.ID, vector, 1)
	if n, _ := store.Count(ctx, idx.ID); n != 1 || len(results) != 1 || results[0].SimilarityScore > -0.99 {
		t.Errorf("after replace: count = %d, results = %+v", n, results)
	}
}

func TestEmbeddingSave_RejectsEmpty(t *testing.T) {
	db, idx := setupIndexed(t, nil, nil)
	err := db.Stores().Embeddings.Save(context.Background(), &models.Embedding{IndexID: idx.ID, RowID: "x"})
	if err == nil {
		t.Error("expected error for empty vector")
	}
}

func TestSearchSimilar_Ordering(t *testing.T) {
	vectors := map[string][]float64{
		"far":    {0, 1, 0},
		"close":  {0.9, 0.1, 0},
		"exact":  {1, 0, 0},
		"tied_a": {0.5, 0.5, 0},
		"tied_b": {0.5, 0.5, 0},
	}
	order := []string{"far", "tied_a", "close", "tied_b", "exact"}
	db, idx := setupIndexed(t, vectors, order)

	results, err := db.Stores().Embeddings.SearchSimilar(context.Background(), idx.ID, []float64{1, 0, 0}, 10)
	if err != nil {
		t.Fatalf("SearchSimilar() error = %v", err)
	}
	want := []string{"exact", "close", "tied_a", "tied_b", "far"}
	if len(results) != len(want) {
		t.Fatalf("got %d results, want %d", len(results), len(want))
	}
	for i, id := range want {
		if results[i].RowID != id {
			t.Errorf("result %d = %s, want %s", i, results[i].RowID, id)
		}
	}
	for i := 1; i < len(results); i++ {
		if results[i].SimilarityScore > results[i-1].SimilarityScore {
			t.Error("results not sorted by similarity")
		}
	}

	top, _ := db.Stores().Embeddings.SearchSimilar(context.Background(), idx.ID, []float64{1, 0, 0}, 2)
	if len(top) != 2 {
		t.Errorf("limit 2 returned %d results", len(top))
	}
}

func TestGetIndex(t *testing.T) {
	db, idx := setupIndexed(t, nil, nil)
	ctx := context.Background()
	store := db.Stores().Embeddings

	got, err := store.GetIndex(ctx, "doc_index.kb_chunks", "")
	if err != nil || got.ID != idx.ID {
		t.Errorf("GetIndex(only) = %+v, %v", got, err)
	}
	got, err = store.GetIndex(ctx, "doc_index.kb_chunks", "text")
	if err != nil || got.Model != "text-embedding-3-small" {
		t.Errorf("GetIndex(text) = %+v, %v", got, err)
	}
	if _, err := store.GetIndex(ctx, "doc_index.kb_chunks", "title"); !models.IsNotFound(err) {
		t.Errorf("GetIndex(missing column) error = %v, want not found", err)
	}

	dup := &models.EmbeddingIndex{Table: "doc_index.kb_chunks", Column: "text", Model: "m"}
	if err := store.CreateIndex(ctx, dup); models.KindOf(err) != models.KindConflict {
		t.Errorf("duplicate CreateIndex() error = %v, want state conflict", err)
	}
}

func TestCosineSimilarity(t *testing.T) {
	tests := []struct {
		name string
		a, b []float64
		want float64
	}{
		{"identical", []float64{1, 2, 3}, []float64{1, 2, 3}, 1},
		{"orthogonal", []float64{1, 0}, []float64{0, 1}, 0},
		{"opposite", []float64{1, 0}, []float64{-1, 0}, -1},
		{"length mismatch", []float64{1, 0}, []float64{1, 0, 0}, 0},
		{"zero vector", []float64{0, 0}, []float64{1, 0}, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := CosineSimilarity(tt.a, tt.b)
			if math.Abs(got-tt.want) > 1e-9 {
				t.Errorf("CosineSimilarity() = %v, want %v", got, tt.want)
			}
		})
	}
}
