// ABOUTME: Embedding index and vector storage operations for SQLite
// ABOUTME: Implements vector storage as BLOB and cosine similarity search
package sqlite

import (
	"context"
	"database/sql"
	"encoding/binary"
	"errors"
	"fmt"
	"math"
	"sort"
	"time"

	"github.com/google/uuid"

	"github.com/harper/mediaindex/internal/models"
)

// EmbeddingStore handles embedding index and vector persistence
type EmbeddingStore struct {
	q Querier
}

// NewEmbeddingStore creates a new EmbeddingStore
func NewEmbeddingStore(q Querier) *EmbeddingStore {
	return &EmbeddingStore{q: q}
}

// CreateIndex registers an embedding index on a table column
func (s *EmbeddingStore) CreateIndex(ctx context.Context, idx *models.EmbeddingIndex) error {
	if idx.ID == "" {
		idx.ID = "idx_" + uuid.New().String()
	}
	if idx.CreatedAt.IsZero() {
		idx.CreatedAt = time.Now().UTC()
	}
	_, err := s.q.ExecContext(ctx, `
		INSERT INTO embedding_indexes (id, table_name, column_name, model, created_at)
		VALUES (?, ?, ?, ?, ?)
	`, idx.ID, idx.Table, idx.Column, idx.Model, idx.CreatedAt)
	if err != nil {
		if isConstraintError(err) {
			return models.Conflict(idx.Table, fmt.Sprintf("an embedding index on %s.%s already exists", idx.Table, idx.Column))
		}
		return fmt.Errorf("failed to create embedding index: %w", err)
	}
	return nil
}

// ListIndexes returns the embedding indexes of a table, oldest first
func (s *EmbeddingStore) ListIndexes(ctx context.Context, table string) ([]*models.EmbeddingIndex, error) {
	rows, err := s.q.QueryContext(ctx, `
		SELECT id, table_name, column_name, model, created_at
		FROM embedding_indexes
		WHERE table_name = ?
		ORDER BY created_at ASC, column_name ASC
	`, table)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	var out []*models.EmbeddingIndex
	for rows.Next() {
		var idx models.EmbeddingIndex
		if err := rows.Scan(&idx.ID, &idx.Table, &idx.Column, &idx.Model, &idx.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, &idx)
	}
	return out, rows.Err()
}

// GetIndex finds the index on table.column. An empty column selects the
// table's only index and is ambiguous when there are several.
func (s *EmbeddingStore) GetIndex(ctx context.Context, table, column string) (*models.EmbeddingIndex, error) {
	if column == "" {
		indexes, err := s.ListIndexes(ctx, table)
		if err != nil {
			return nil, err
		}
		switch len(indexes) {
		case 0:
			return nil, models.NotFound(table, "no embedding index on %s", table)
		case 1:
			return indexes[0], nil
		}
		return nil, models.InvalidArgument("column", fmt.Sprintf("%s has %d embedding indexes; specify the column", table, len(indexes)))
	}

	var idx models.EmbeddingIndex
	err := s.q.QueryRowContext(ctx, `
		SELECT id, table_name, column_name, model, created_at
		FROM embedding_indexes
		WHERE table_name = ? AND column_name = ?
	`, table, column).Scan(&idx.ID, &idx.Table, &idx.Column, &idx.Model, &idx.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, models.NotFound(column, "no embedding index on %s.%s", table, column)
	}
	if err != nil {
		return nil, err
	}
	return &idx, nil
}

// Save stores the vector of one row, replacing any previous one
func (s *EmbeddingStore) Save(ctx context.Context, emb *models.Embedding) error {
	if err := emb.ValidateDimension(0); err != nil {
		return err
	}
	_, err := s.q.ExecContext(ctx, `
		INSERT INTO embeddings (index_id, row_id, vector, created_at)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(index_id, row_id) DO UPDATE SET
			vector = excluded.vector,
			created_at = excluded.created_at
	`, emb.IndexID, emb.RowID, vectorToBlob(emb.Vector), time.Now().UTC())
	return err
}

// Count returns the number of vectors stored for an index
func (s *EmbeddingStore) Count(ctx context.Context, indexID string) (int, error) {
	var n int
	err := s.q.QueryRowContext(ctx, "SELECT COUNT(*) FROM embeddings WHERE index_id = ?", indexID).Scan(&n)
	return n, err
}

// SearchSimilar performs cosine similarity search over one index. Results are
// ordered by similarity descending, then insertion order ascending.
func (s *EmbeddingStore) SearchSimilar(ctx context.Context, indexID string, queryVector []float64, maxResults int) ([]models.VectorSearchResult, error) {
	rows, err := s.q.QueryContext(ctx, `
		SELECT e.row_id, r.seq, e.vector
		FROM embeddings e JOIN table_rows r ON r.id = e.row_id
		WHERE e.index_id = ?
	`, indexID)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	var results []models.VectorSearchResult

	for rows.Next() {
		var (
			result models.VectorSearchResult
			blob   []byte
		)
		if err := rows.Scan(&result.RowID, &result.Seq, &blob); err != nil {
			return nil, err
		}
		result.SimilarityScore = CosineSimilarity(queryVector, blobToVector(blob))
		results = append(results, result)
	}

	if err := rows.Err(); err != nil {
		return nil, err
	}

	sort.SliceStable(results, func(i, j int) bool {
		if results[i].SimilarityScore != results[j].SimilarityScore {
			return results[i].SimilarityScore > results[j].SimilarityScore
		}
		return results[i].Seq < results[j].Seq
	})

	// Limit results
	if maxResults >= 0 && len(results) > maxResults {
		results = results[:maxResults]
	}

	return results, nil
}

// vectorToBlob converts a float64 slice to binary blob
func vectorToBlob(vector []float64) []byte {
	blob := make([]byte, len(vector)*8)
	for i, v := range vector {
		binary.LittleEndian.PutUint64(blob[i*8:], math.Float64bits(v))
	}
	return blob
}

// blobToVector converts a binary blob to float64 slice
func blobToVector(blob []byte) []float64 {
	count := len(blob) / 8
	vector := make([]float64, count)
	for i := 0; i < count; i++ {
		bits := binary.LittleEndian.Uint64(blob[i*8:])
		vector[i] = math.Float64frombits(bits)
	}
	return vector
}

// CosineSimilarity calculates cosine similarity between two vectors
func CosineSimilarity(a, b []float64) float64 {
	if len(a) != len(b) {
		return 0.0
	}

	var dotProduct, normA, normB float64
	for i := range a {
		dotProduct += a[i] * b[i]
		normA += a[i] * a[i]
		normB += b[i] * b[i]
	}

	if normA == 0 || normB == 0 {
		return 0.0
	}

	return dotProduct / (math.Sqrt(normA) * math.Sqrt(normB))
}
