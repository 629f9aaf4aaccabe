// ABOUTME: Filtered row queries and embedding similarity search
// ABOUTME: Search ranks by cosine similarity, then an optional secondary column, then insertion order
package core

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/harper/mediaindex/internal/expr"
	"github.com/harper/mediaindex/internal/models"
)

// QueryOptions narrows a table query
type QueryOptions struct {
	Filter  string
	Columns []string
	// Limit caps returned rows; zero or less returns every match
	Limit int
}

// QueryResult holds matching rows and the column order they were selected in
type QueryResult struct {
	Table   string                   `json:"table"`
	Columns []string                 `json:"columns"`
	Rows    []map[string]interface{} `json:"rows"`
}

// Query returns rows of a table or view in insertion order
func (e *Engine) Query(ctx context.Context, table string, opts QueryOptions) (*QueryResult, error) {
	info, err := e.Describe(ctx, table)
	if err != nil {
		return nil, err
	}
	columns, err := selectColumns(info, opts.Columns)
	if err != nil {
		return nil, err
	}

	var filter expr.Node
	if strings.TrimSpace(opts.Filter) != "" {
		if filter, err = expr.Compile(opts.Filter, info.ColumnTypeMap()); err != nil {
			return nil, err
		}
		if expr.UsesModels(filter) {
			return nil, models.InvalidArgument("filter", fmt.Sprintf("filter %q calls a model-backed function; filters may only use columns and pure functions", opts.Filter))
		}
		if t := expr.InferType(filter, info.ColumnTypeMap()); t != models.TypeBool && t != models.TypeJSON {
			return nil, models.InvalidArgument("filter", fmt.Sprintf("filter %q must be a boolean expression, got %s", opts.Filter, t))
		}
	}

	rows, err := e.loadRows(ctx, info)
	if err != nil {
		return nil, err
	}

	result := &QueryResult{Table: table, Columns: columns, Rows: []map[string]interface{}{}}
	for _, row := range rows {
		if filter != nil {
			ok, err := expr.EvalBool(ctx, filter, row, nil)
			if err != nil {
				return nil, models.InvalidArgument("filter", fmt.Sprintf("filter failed on row %s: %v", row.ID, err))
			}
			if !ok {
				continue
			}
		}
		result.Rows = append(result.Rows, outputRow(row, columns))
		if opts.Limit > 0 && len(result.Rows) >= opts.Limit {
			break
		}
	}
	return result, nil
}

func selectColumns(info *models.TableInfo, requested []string) ([]string, error) {
	if len(requested) == 0 {
		return info.ColumnNames(), nil
	}
	out := make([]string, 0, len(requested))
	for _, c := range requested {
		c = strings.TrimSpace(c)
		if c == "" {
			continue
		}
		if _, ok := info.Column(c); !ok && c != models.ColRowID {
			return nil, models.NotFound(c, "column %q not found in %s; available columns: %s", c, info.Name, strings.Join(info.ColumnNames(), ", "))
		}
		out = append(out, c)
	}
	return out, nil
}

// SearchRequest describes a similarity query
type SearchRequest struct {
	Table string
	// Column selects the index when the table has more than one
	Column string
	Text   string
	TopK   int
	// ThenBy orders equal scores by this column, newest or largest first
	ThenBy string
}

// SimilaritySearch embeds the query text with the index's model and returns
// the top rows by descending cosine similarity
func (e *Engine) SimilaritySearch(ctx context.Context, req SearchRequest) ([]models.SearchResult, error) {
	if req.TopK <= 0 {
		return nil, models.InvalidArgument("top_k", fmt.Sprintf("top_k must be positive, got %d", req.TopK))
	}
	topK := min(req.TopK, MaxTopK)
	if strings.TrimSpace(req.Text) == "" {
		return nil, models.InvalidArgument("query_text", "query text cannot be empty")
	}

	info, err := e.Describe(ctx, req.Table)
	if err != nil {
		return nil, err
	}
	if req.ThenBy != "" {
		if _, ok := info.Column(req.ThenBy); !ok {
			return nil, models.NotFound(req.ThenBy, "column %q not found in %s", req.ThenBy, req.Table)
		}
	}
	stores := e.db.Stores()
	idx, err := stores.Embeddings.GetIndex(ctx, req.Table, req.Column)
	if err != nil {
		return nil, err
	}
	if e.models == nil {
		return nil, errNoModels
	}

	vectors, err := e.models.Embed(ctx, []string{req.Text}, idx.Model)
	if err != nil {
		return nil, err
	}
	if len(vectors) != 1 {
		return nil, models.Upstream("embedding", fmt.Errorf("expected 1 embedding, got %d", len(vectors)))
	}

	limit := topK
	if req.ThenBy != "" {
		limit = -1
	}
	hits, err := stores.Embeddings.SearchSimilar(ctx, idx.ID, vectors[0], limit)
	if err != nil {
		return nil, fmt.Errorf("similarity search on %s failed: %w", req.Table, err)
	}

	ids := make([]string, len(hits))
	for i, h := range hits {
		ids[i] = h.RowID
	}
	rows, err := stores.Rows.GetMany(ctx, ids)
	if err != nil {
		return nil, err
	}
	for _, row := range rows {
		decodeRow(info, row)
	}

	if req.ThenBy != "" {
		sort.SliceStable(hits, func(i, j int) bool {
			if hits[i].SimilarityScore != hits[j].SimilarityScore {
				return hits[i].SimilarityScore > hits[j].SimilarityScore
			}
			return after(rows[hits[i].RowID].Get(req.ThenBy), rows[hits[j].RowID].Get(req.ThenBy))
		})
		if len(hits) > topK {
			hits = hits[:topK]
		}
	}

	columns := info.ColumnNames()
	results := make([]models.SearchResult, len(hits))
	for i, h := range hits {
		results[i] = models.SearchResult{
			Rank:   i + 1,
			Score:  h.SimilarityScore,
			RowID:  h.RowID,
			Values: outputRow(rows[h.RowID], columns),
		}
	}
	return results, nil
}

// after reports whether a sorts strictly before b in descending order; nulls sort last
func after(a, b interface{}) bool {
	switch {
	case a == nil:
		return false
	case b == nil:
		return true
	}
	gt, err := expr.Greater(a, b)
	return err == nil && gt
}
