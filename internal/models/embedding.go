// ABOUTME: Embedding index and similarity search result models
// ABOUTME: Defines EmbeddingIndex, Embedding and SearchResult structures
package models

import (
	"fmt"
	"time"
)

// EmbeddingIndex registers a similarity index on a table column
type EmbeddingIndex struct {
	ID        string    `json:"id"`
	Table     string    `json:"table"`
	Column    string    `json:"column"`
	Model     string    `json:"model"`
	CreatedAt time.Time `json:"created_at"`
}

// Embedding is a stored vector for one row of an indexed column
type Embedding struct {
	IndexID   string    `json:"index_id"`
	RowID     string    `json:"row_id"`
	Seq       int64     `json:"seq"`
	Vector    []float64 `json:"vector"`
	CreatedAt time.Time `json:"created_at"`
}

// ValidateDimension checks the vector is non-empty and has the expected size.
// expectedDim <= 0 accepts any non-empty vector.
func (e Embedding) ValidateDimension(expectedDim int) error {
	if len(e.Vector) == 0 {
		return fmt.Errorf("embedding vector for row %s cannot be empty", e.RowID)
	}
	if expectedDim > 0 && len(e.Vector) != expectedDim {
		return fmt.Errorf("invalid embedding dimension for row %s: expected %d, got %d", e.RowID, expectedDim, len(e.Vector))
	}
	return nil
}

// VectorSearchResult is a scored row reference from the embedding store
type VectorSearchResult struct {
	RowID           string  `json:"row_id"`
	Seq             int64   `json:"seq"`
	SimilarityScore float64 `json:"similarity_score"`
}

// SearchResult is a ranked row with its similarity score
type SearchResult struct {
	Rank   int                    `json:"rank"`
	Score  float64                `json:"score"`
	RowID  string                 `json:"row_id"`
	Values map[string]interface{} `json:"values"`
}
