// ABOUTME: Loads a table with its dependent views and derives rows through them
// ABOUTME: Computed columns, view expansion and embeddings run here before commit
package core

import (
	"context"
	"fmt"
	"log"

	"golang.org/x/sync/errgroup"

	"github.com/harper/mediaindex/internal/expr"
	"github.com/harper/mediaindex/internal/models"
	"github.com/harper/mediaindex/internal/storage/sqlite"
)

// tableNode is a catalog snapshot of one table and everything derived from it
type tableNode struct {
	info     *models.TableInfo
	iter     Iterator
	computed []computedColumn
	indexes  []*models.EmbeddingIndex
	views    []*tableNode
}

type computedColumn struct {
	col  models.Column
	node expr.Node
}

// derived is a row ready to be written to its table
type derived struct {
	node *tableNode
	row  *models.Row
}

func (e *Engine) loadTree(ctx context.Context, s *sqlite.Stores, name string, base *models.TableInfo) (*tableNode, error) {
	info, err := s.Catalog.Get(ctx, name)
	if err != nil {
		return nil, err
	}
	n := &tableNode{info: info}

	types := info.ColumnTypeMap()
	for _, c := range info.Columns {
		if !c.IsComputed() {
			continue
		}
		node, err := expr.Compile(c.Computed, types)
		if err != nil {
			return nil, fmt.Errorf("computed column %s.%s: %w", name, c.Name, err)
		}
		n.computed = append(n.computed, computedColumn{col: c, node: node})
	}

	if info.Iterator != nil && base != nil {
		if n.iter, err = newIterator(info.Iterator, base, e.env()); err != nil {
			return nil, fmt.Errorf("view %s: %w", name, err)
		}
	}

	if n.indexes, err = s.Embeddings.ListIndexes(ctx, name); err != nil {
		return nil, err
	}

	deps, err := s.Catalog.Dependents(ctx, name)
	if err != nil {
		return nil, err
	}
	for _, d := range deps {
		child, err := e.loadTree(ctx, s, d, info)
		if err != nil {
			return nil, err
		}
		n.views = append(n.views, child)
	}
	return n, nil
}

// derive computes row's computed columns and expands it through every
// dependent view. The row comes first in the result, followed by its
// descendants in view and position order.
func (e *Engine) derive(ctx context.Context, n *tableNode, row *models.Row, fns expr.Functions) ([]derived, error) {
	e.computeColumns(ctx, n, n.computed, row, fns)

	out := []derived{{node: n, row: row}}
	for _, v := range n.views {
		children, err := e.expandInto(ctx, v, row, fns)
		if err != nil {
			return nil, err
		}
		out = append(out, children...)
	}
	return out, nil
}

// expandInto produces the rows of view v derived from parent. Each child is
// derived independently, at most Workers at a time. Segmentation failures
// other than a bad or missing asset are recorded on the parent row.
func (e *Engine) expandInto(ctx context.Context, v *tableNode, parent *models.Row, fns expr.Functions) ([]derived, error) {
	children, err := e.expand(ctx, v, parent)
	if err != nil {
		if isCallerError(err) || ctx.Err() != nil {
			return nil, err
		}
		parent.SetError(v.info.Name, err.Error())
		log.Printf("Warning: failed to expand row %s into %s: %v", parent.ID, v.info.Name, err)
		return nil, nil
	}

	results := make([][]derived, len(children))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(e.opts.Workers)
	for i, child := range children {
		g.Go(func() error {
			d, err := e.derive(gctx, v, child, fns)
			if err != nil {
				return err
			}
			results[i] = d
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	var out []derived
	for _, d := range results {
		out = append(out, d...)
	}
	return out, nil
}

func (e *Engine) expand(ctx context.Context, v *tableNode, parent *models.Row) ([]*models.Row, error) {
	if v.iter == nil {
		return []*models.Row{childRow(v.info, parent, nil, -1)}, nil
	}
	outputs, err := v.iter.Expand(ctx, parent)
	if err != nil {
		return nil, err
	}
	rows := make([]*models.Row, len(outputs))
	for i, o := range outputs {
		rows[i] = childRow(v.info, parent, o, i)
	}
	return rows, nil
}

// childRow builds a view row inheriting the parent's base columns. pos < 0
// marks a projection row without a position.
func childRow(view *models.TableInfo, parent *models.Row, values map[string]interface{}, pos int) *models.Row {
	row := models.NewRow(newRowID())
	row.ParentID = parent.ID
	for _, c := range view.Columns {
		switch {
		case c.FromBase:
			if v, ok := parent.Values[c.Name]; ok {
				row.Values[c.Name] = v
			}
		case c.FromSource:
			if v, ok := values[c.Name]; ok && v != nil {
				cv, err := models.CoerceValue(c.Type, v)
				if err != nil {
					row.SetError(c.Name, err.Error())
					continue
				}
				row.Values[c.Name] = cv
			}
		}
	}
	if errs, ok := values[models.ColErrors].(map[string]string); ok {
		for col, msg := range errs {
			row.SetError(col, msg)
		}
	}
	if pos >= 0 {
		row.Values[models.ColPos] = int64(pos)
	}
	return row
}

// computeColumns evaluates cols in order, recording failures per row and column
func (e *Engine) computeColumns(ctx context.Context, n *tableNode, cols []computedColumn, row *models.Row, fns expr.Functions) {
	for _, cc := range cols {
		name := cc.col.Name
		v, err := expr.Eval(ctx, cc.node, row, fns)
		if err == nil && v != nil {
			v, err = models.CoerceValue(cc.col.Type, v)
		}
		if err != nil {
			delete(row.Values, name)
			row.SetError(name, err.Error())
			log.Printf("Warning: %s row %s: failed to compute %s: %v", n.info.Name, row.ID, name, err)
			continue
		}
		if v == nil {
			delete(row.Values, name)
			continue
		}
		row.Values[name] = v
	}
}

// embedRows computes vectors for every indexed column of the given rows. Rows
// whose embedding fails keep an error note and get no vector.
func (e *Engine) embedRows(ctx context.Context, rows []derived) []*models.Embedding {
	type target struct {
		idx  *models.EmbeddingIndex
		rows []*models.Row
	}
	var targets []*target
	byIndex := map[string]*target{}
	for _, d := range rows {
		for _, idx := range d.node.indexes {
			text, ok := d.row.Values[idx.Column].(string)
			if !ok || text == "" {
				continue
			}
			t, ok := byIndex[idx.ID]
			if !ok {
				t = &target{idx: idx}
				byIndex[idx.ID] = t
				targets = append(targets, t)
			}
			t.rows = append(t.rows, d.row)
		}
	}

	var out []*models.Embedding
	for _, t := range targets {
		out = append(out, e.embedIndex(ctx, t.idx, t.rows)...)
	}
	return out
}

func (e *Engine) embedIndex(ctx context.Context, idx *models.EmbeddingIndex, rows []*models.Row) []*models.Embedding {
	if len(rows) == 0 {
		return nil
	}
	texts := make([]string, len(rows))
	for i, r := range rows {
		texts[i], _ = r.Values[idx.Column].(string)
	}

	var err error
	var vectors [][]float64
	if e.models == nil {
		err = errNoModels
	} else {
		vectors, err = e.models.Embed(ctx, texts, idx.Model)
		if err == nil && len(vectors) != len(rows) {
			err = fmt.Errorf("expected %d embeddings, got %d", len(rows), len(vectors))
		}
	}
	if err != nil {
		for _, r := range rows {
			r.SetError(embeddingErrorKey(idx.Column), err.Error())
		}
		log.Printf("Warning: failed to embed %d rows of %s.%s: %v", len(rows), idx.Table, idx.Column, err)
		return nil
	}

	out := make([]*models.Embedding, len(rows))
	for i, r := range rows {
		out[i] = &models.Embedding{IndexID: idx.ID, RowID: r.ID, Vector: vectors[i]}
	}
	return out
}

func embeddingErrorKey(column string) string {
	return "embedding(" + column + ")"
}

// isCallerError reports failures caused by the request rather than a model or tool
func isCallerError(err error) bool {
	switch models.KindOf(err) {
	case models.KindNotFound, models.KindInvalidArgument:
		return true
	}
	return false
}
