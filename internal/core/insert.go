// ABOUTME: Row insertion with type coercion and propagation through dependent views
// ABOUTME: All derived rows and their vectors commit together or not at all
package core

import (
	"context"
	"fmt"
	"strings"

	"github.com/harper/mediaindex/internal/metrics"
	"github.com/harper/mediaindex/internal/models"
	"github.com/harper/mediaindex/internal/storage/sqlite"
)

// InsertResult summarizes one insert call
type InsertResult struct {
	Table  string
	RowIDs []string
	// Derived counts rows written to each dependent view
	Derived map[string]int
	// Embedded counts vectors written
	Embedded int
	// Errors lists per-row, per-column failures recorded during derivation
	Errors []RowError
}

// RowError is a failure recorded on one row without aborting the insert
type RowError struct {
	Table  string `json:"table"`
	RowID  string `json:"row_id"`
	Column string `json:"column"`
	Error  string `json:"error"`
}

// Summary renders a one-line status message
func (r *InsertResult) Summary() string {
	var b strings.Builder
	fmt.Fprintf(&b, "Inserted %d row(s) into %s", len(r.RowIDs), r.Table)
	if len(r.Derived) > 0 {
		parts := make([]string, 0, len(r.Derived))
		for _, name := range sortedNames(r.Derived) {
			parts = append(parts, fmt.Sprintf("%s: %d", name, r.Derived[name]))
		}
		fmt.Fprintf(&b, " (derived %s)", strings.Join(parts, ", "))
	}
	if r.Embedded > 0 {
		fmt.Fprintf(&b, "; embedded %d", r.Embedded)
	}
	if len(r.Errors) > 0 {
		fmt.Fprintf(&b, "; %d error(s) recorded", len(r.Errors))
	}
	return b.String() + "."
}

// Insert validates and stores rows in a base table, then derives their view
// rows, computed values and embeddings before committing everything at once.
func (e *Engine) Insert(ctx context.Context, table string, data []map[string]interface{}) (*InsertResult, error) {
	if len(data) == 0 {
		return nil, models.InvalidArgument("data", "no rows to insert")
	}

	unlock, err := e.lockTrees(ctx, false, table)
	if err != nil {
		return nil, err
	}
	defer unlock()

	tree, err := e.loadTree(ctx, e.db.Stores(), table, nil)
	if err != nil {
		return nil, err
	}
	if tree.info.Kind == models.KindView {
		return nil, models.InvalidArgument(table, fmt.Sprintf("cannot insert into view %s; insert into its base table %s", table, tree.info.Base))
	}

	rows := make([]*models.Row, len(data))
	for i, values := range data {
		if rows[i], err = buildRow(tree.info, values); err != nil {
			if len(data) > 1 {
				return nil, fmt.Errorf("row %d: %w", i, err)
			}
			return nil, err
		}
	}

	fns := e.functions()
	var all []derived
	for _, row := range rows {
		d, err := e.derive(ctx, tree, row, fns)
		if err != nil {
			return nil, err
		}
		all = append(all, d...)
	}
	vectors := e.embedRows(ctx, all)

	if err := e.commit(ctx, all, vectors); err != nil {
		return nil, err
	}

	result := &InsertResult{Table: table, Derived: map[string]int{}, Embedded: len(vectors)}
	counts := map[string]int{}
	for _, d := range all {
		name := d.node.info.Name
		counts[name]++
		if name == table {
			result.RowIDs = append(result.RowIDs, d.row.ID)
		} else {
			result.Derived[name]++
		}
	}
	result.Errors = collectErrors(all)
	for name, n := range counts {
		metrics.AddRows(name, n)
	}
	return result, nil
}

func (e *Engine) commit(ctx context.Context, rows []derived, vectors []*models.Embedding) error {
	e.writeMu.Lock()
	defer e.writeMu.Unlock()
	return e.db.InTx(ctx, func(s *sqlite.Stores) error {
		for _, d := range rows {
			if err := s.Rows.Insert(ctx, d.node.info.Name, d.row); err != nil {
				return err
			}
		}
		for _, v := range vectors {
			if err := s.Embeddings.Save(ctx, v); err != nil {
				return err
			}
		}
		return nil
	})
}

// buildRow checks input values against the table schema and coerces them
func buildRow(info *models.TableInfo, values map[string]interface{}) (*models.Row, error) {
	row := models.NewRow(newRowID())
	for name, v := range values {
		col, ok := info.Column(name)
		if !ok {
			return nil, models.InvalidArgument(name, fmt.Sprintf("column %q not found in %s; available columns: %s", name, info.Name, strings.Join(info.ColumnNames(), ", ")))
		}
		if col.IsComputed() {
			return nil, models.InvalidArgument(name, fmt.Sprintf("column %q of %s is computed and cannot be inserted", name, info.Name))
		}
		cv, err := models.CoerceValue(col.Type, v)
		if err != nil {
			return nil, models.InvalidArgument(name, fmt.Sprintf("column %q (%s): %v", name, col.Type, err))
		}
		if cv != nil {
			row.Values[name] = cv
		}
	}
	for _, col := range info.Columns {
		if col.Required && row.Values[col.Name] == nil {
			return nil, models.InvalidArgument(col.Name, fmt.Sprintf("column %q of %s is required", col.Name, info.Name))
		}
	}
	return row, nil
}
