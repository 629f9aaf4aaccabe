// ABOUTME: Tests for embedding indexes and similarity search over engine tables
// ABOUTME: Uses bag-of-words fake embeddings so identical text scores exactly 1

package core

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/harper/mediaindex/internal/models"
)

func setupSearchTable(t *testing.T, env *testEnv, texts ...string) {
	t.Helper()
	ctx := context.Background()
	if _, err := env.engine.CreateTable(ctx, "demo.docs", map[string]string{"text": "string", "n": "int"}, models.IfExistsError); err != nil {
		t.Fatalf("CreateTable() error = %v", err)
	}
	for i, text := range texts {
		if _, err := env.engine.Insert(ctx, "demo.docs", []map[string]interface{}{{"text": text, "n": i}}); err != nil {
			t.Fatalf("Insert() error = %v", err)
		}
	}
}

func TestCreateEmbeddingIndex_Backfill(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	setupSearchTable(t, env, "red apples", "green pears", "")

	res, err := env.engine.CreateEmbeddingIndex(ctx, "demo.docs", "text", "")
	if err != nil {
		t.Fatalf("CreateEmbeddingIndex() error = %v", err)
	}
	if res.Embedded != 2 {
		t.Errorf("Embedded = %d, want 2 (empty text skipped)", res.Embedded)
	}
	if res.Index.Model != "fake-embed" {
		t.Errorf("Model = %q, want client default", res.Index.Model)
	}

	// Rows inserted after the index are embedded before commit
	r, err := env.engine.Insert(ctx, "demo.docs", []map[string]interface{}{{"text": "yellow bananas"}})
	if err != nil {
		t.Fatalf("Insert() error = %v", err)
	}
	if r.Embedded != 1 {
		t.Errorf("insert Embedded = %d, want 1", r.Embedded)
	}

	tests := []struct {
		name   string
		table  string
		column string
		kind   models.ErrorKind
	}{
		{"duplicate", "demo.docs", "text", models.KindConflict},
		{"non-string column", "demo.docs", "n", models.KindInvalidArgument},
		{"missing column", "demo.docs", "body", models.KindNotFound},
		{"missing table", "demo.none", "text", models.KindNotFound},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := env.engine.CreateEmbeddingIndex(ctx, tt.table, tt.column, "")
			if models.KindOf(err) != tt.kind {
				t.Errorf("CreateEmbeddingIndex() error = %v, want %v", err, tt.kind)
			}
		})
	}
}

func TestCreateEmbeddingIndex_NoCredential(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	setupSearchTable(t, env, "a")

	bare := env.engine.WithModels(nil)
	_, err := bare.CreateEmbeddingIndex(ctx, "demo.docs", "text", "")
	if models.KindOf(err) != models.KindInvalidArgument {
		t.Errorf("error = %v, want invalid argument for missing credential", err)
	}
}

func TestSimilaritySearch_Ordering(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	setupSearchTable(t, env, "cats purr", "dogs bark loudly", "cats purr", "birds sing")
	if _, err := env.engine.CreateEmbeddingIndex(ctx, "demo.docs", "text", ""); err != nil {
		t.Fatalf("CreateEmbeddingIndex() error = %v", err)
	}

	results, err := env.engine.SimilaritySearch(ctx, SearchRequest{Table: "demo.docs", Text: "cats purr", TopK: 3})
	if err != nil {
		t.Fatalf("SimilaritySearch() error = %v", err)
	}
	if len(results) != 3 {
		t.Fatalf("got %d results, want 3", len(results))
	}
	// Equal scores keep insertion order
	if results[0].Values["n"] != int64(0) || results[1].Values["n"] != int64(2) {
		t.Errorf("tie order = %v, %v; want n=0 then n=2", results[0].Values["n"], results[1].Values["n"])
	}
	for i, r := range results {
		if r.Rank != i+1 {
			t.Errorf("result %d rank = %d", i, r.Rank)
		}
		if i > 0 && r.Score > results[i-1].Score {
			t.Errorf("scores not descending: %v > %v", r.Score, results[i-1].Score)
		}
	}
	if results[0].Score < 0.999 {
		t.Errorf("identical text score = %v, want 1", results[0].Score)
	}

	// then_by reverses the tie
	results, err = env.engine.SimilaritySearch(ctx, SearchRequest{Table: "demo.docs", Text: "cats purr", TopK: 2, ThenBy: "n"})
	if err != nil {
		t.Fatalf("SimilaritySearch(then_by) error = %v", err)
	}
	if len(results) != 2 || results[0].Values["n"] != int64(2) {
		t.Errorf("then_by n: first = %v, want n=2", results[0].Values)
	}
}

func TestSimilaritySearch_Bounds(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	var texts []string
	for i := range MaxTopK + 5 {
		texts = append(texts, fmt.Sprintf("note %d", i))
	}
	setupSearchTable(t, env, texts...)
	if _, err := env.engine.CreateEmbeddingIndex(ctx, "demo.docs", "text", ""); err != nil {
		t.Fatalf("CreateEmbeddingIndex() error = %v", err)
	}

	results, err := env.engine.SimilaritySearch(ctx, SearchRequest{Table: "demo.docs", Text: "note", TopK: 1000})
	if err != nil {
		t.Fatalf("SimilaritySearch() error = %v", err)
	}
	if len(results) != MaxTopK {
		t.Errorf("got %d results, want cap %d", len(results), MaxTopK)
	}

	tests := []struct {
		name string
		req  SearchRequest
		kind models.ErrorKind
	}{
		{"zero top_k", SearchRequest{Table: "demo.docs", Text: "note", TopK: 0}, models.KindInvalidArgument},
		{"negative top_k", SearchRequest{Table: "demo.docs", Text: "note", TopK: -3}, models.KindInvalidArgument},
		{"empty text", SearchRequest{Table: "demo.docs", Text: "  ", TopK: 3}, models.KindInvalidArgument},
		{"no index", SearchRequest{Table: "demo.docs", Column: "n", Text: "note", TopK: 3}, models.KindNotFound},
		{"missing table", SearchRequest{Table: "demo.none", Text: "note", TopK: 3}, models.KindNotFound},
		{"unknown then_by", SearchRequest{Table: "demo.docs", Text: "note", TopK: 3, ThenBy: "nope"}, models.KindNotFound},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := env.engine.SimilaritySearch(ctx, tt.req)
			if models.KindOf(err) != tt.kind {
				t.Errorf("SimilaritySearch() error = %v, want %v", err, tt.kind)
			}
		})
	}
}

func TestInsert_EmbeddingFailureIsRecorded(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	setupSearchTable(t, env)
	if _, err := env.engine.CreateEmbeddingIndex(ctx, "demo.docs", "text", ""); err != nil {
		t.Fatalf("CreateEmbeddingIndex() error = %v", err)
	}

	env.models.embedErr = errors.New("rate limited")
	r, err := env.engine.Insert(ctx, "demo.docs", []map[string]interface{}{{"text": "hello"}})
	if err != nil {
		t.Fatalf("Insert() error = %v", err)
	}
	if r.Embedded != 0 || len(r.Errors) != 1 || r.Errors[0].Column != "embedding(text)" {
		t.Errorf("result = %+v, want one embedding(text) error", r)
	}
	if mustCount(t, env.engine, "demo.docs") != 1 {
		t.Error("row must be stored even when embedding fails")
	}
}
