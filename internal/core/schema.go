// ABOUTME: Schema changes that backfill existing rows: views, computed columns, embedding indexes
// ABOUTME: Each change computes its backfill first and commits catalog and rows together
package core

import (
	"context"
	"fmt"
	"log"
	"strings"

	"golang.org/x/sync/errgroup"

	"github.com/harper/mediaindex/internal/expr"
	"github.com/harper/mediaindex/internal/metrics"
	"github.com/harper/mediaindex/internal/models"
	"github.com/harper/mediaindex/internal/storage/sqlite"
)

// BackfillResult reports what a schema change did to existing rows
type BackfillResult struct {
	Created bool
	Rows    int
	Errors  []RowError
}

// CreateView derives a view from base. A nil iterator makes a 1:1 projection.
func (e *Engine) CreateView(ctx context.Context, name, base string, iter *models.IteratorSpec, ifExists models.IfExists) (*BackfillResult, error) {
	if err := validateTableName(name); err != nil {
		return nil, err
	}

	unlock, err := e.lockTrees(ctx, true, base, name)
	if err != nil {
		return nil, err
	}
	defer unlock()

	baseInfo, err := e.db.Stores().Catalog.Get(ctx, base)
	if err != nil {
		return nil, err
	}

	existing, err := e.db.Stores().Catalog.Exists(ctx, name)
	if err != nil {
		return nil, err
	}
	if existing {
		switch ifExists {
		case models.IfExistsIgnore:
			return &BackfillResult{}, nil
		case models.IfExistsReplace:
		default:
			return nil, models.Conflict(name, fmt.Sprintf("table %s already exists", name))
		}
	}

	view := &tableNode{info: &models.TableInfo{Name: name, Kind: models.KindView, Base: base}}
	var produced []models.Column
	if iter != nil && iter.Kind != "" {
		if view.iter, err = newIterator(iter, baseInfo, e.env()); err != nil {
			return nil, err
		}
		view.info.Iterator = view.iter.Spec()
		produced = append([]models.Column{{Name: models.ColPos, Type: models.TypeInt, FromSource: true}}, view.iter.Columns()...)
	}
	for _, c := range baseInfo.Columns {
		// A view's own position shadows the one it inherits
		if c.Name == models.ColPos && view.iter != nil {
			continue
		}
		view.info.Columns = append(view.info.Columns, models.Column{Name: c.Name, Type: c.Type, FromBase: true})
	}
	for _, c := range produced {
		if c.Name != models.ColPos {
			if _, clash := baseInfo.Column(c.Name); clash {
				return nil, models.InvalidArgument(c.Name, fmt.Sprintf("iterator column %q collides with a column of %s", c.Name, base))
			}
		}
		view.info.Columns = append(view.info.Columns, c)
	}

	// Backfill from existing base rows
	parents, err := e.loadRows(ctx, baseInfo)
	if err != nil {
		return nil, err
	}
	fns := e.functions()
	var rows []derived
	var touched []*models.Row
	for _, parent := range parents {
		before := len(parent.Errors)
		children, err := e.expandInto(ctx, view, parent, fns)
		if err != nil {
			if !isCallerError(err) {
				return nil, err
			}
			parent.SetError(name, err.Error())
			log.Printf("Warning: skipping row %s while backfilling %s: %v", parent.ID, name, err)
		}
		if len(parent.Errors) != before {
			touched = append(touched, parent)
		}
		rows = append(rows, children...)
	}

	created, err := e.createEntry(ctx, view.info, ifExists, func(s *sqlite.Stores) error {
		for _, d := range rows {
			if err := s.Rows.Insert(ctx, name, d.row); err != nil {
				return err
			}
		}
		for _, p := range touched {
			if err := s.Rows.Update(ctx, p); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	if len(rows) > 0 {
		metrics.AddRows(name, len(rows))
	}
	errs := collectErrors(rows)
	for _, p := range touched {
		errs = append(errs, RowError{Table: base, RowID: p.ID, Column: name, Error: p.Errors[name]})
	}
	return &BackfillResult{Created: created, Rows: len(rows), Errors: errs}, nil
}

// AddComputedColumn adds a column whose value is computed by expression for
// existing rows now and for every future row on insert
func (e *Engine) AddComputedColumn(ctx context.Context, table, column, expression string) (*BackfillResult, error) {
	if err := models.ValidateColumnName(column); err != nil {
		return nil, err
	}

	unlock, err := e.lockTrees(ctx, true, table)
	if err != nil {
		return nil, err
	}
	defer unlock()

	info, err := e.db.Stores().Catalog.Get(ctx, table)
	if err != nil {
		return nil, err
	}
	if _, exists := info.Column(column); exists {
		return nil, models.Conflict(column, fmt.Sprintf("column %q already exists in %s", column, table))
	}
	types := info.ColumnTypeMap()
	node, err := expr.Compile(expression, types)
	if err != nil {
		return nil, err
	}
	ct := expr.InferType(node, types)
	if !ct.Valid() {
		ct = models.TypeJSON
	}
	col := models.Column{Name: column, Type: ct, Computed: strings.TrimSpace(expression), Position: len(info.Columns)}
	n := &tableNode{info: info}
	cols := []computedColumn{{col: col, node: node}}

	rows, err := e.loadRows(ctx, info)
	if err != nil {
		return nil, err
	}
	fns := e.functions()
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(e.opts.Workers)
	for _, row := range rows {
		g.Go(func() error {
			e.computeColumns(gctx, n, cols, row, fns)
			return gctx.Err()
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	e.writeMu.Lock()
	defer e.writeMu.Unlock()
	err = e.db.InTx(ctx, func(s *sqlite.Stores) error {
		if err := s.Catalog.AddColumn(ctx, table, col); err != nil {
			return err
		}
		for _, row := range rows {
			if err := s.Rows.Update(ctx, row); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	var errs []RowError
	for _, row := range rows {
		if msg, ok := row.Errors[column]; ok {
			errs = append(errs, RowError{Table: table, RowID: row.ID, Column: column, Error: msg})
		}
	}
	return &BackfillResult{Created: true, Rows: len(rows), Errors: errs}, nil
}

// IndexResult reports a new embedding index and its backfill
type IndexResult struct {
	Index    *models.EmbeddingIndex
	Embedded int
	Errors   []RowError
}

// CreateEmbeddingIndex registers a similarity index on a string column and
// embeds the existing rows. An empty model uses the client default.
func (e *Engine) CreateEmbeddingIndex(ctx context.Context, table, column, model string) (*IndexResult, error) {
	if e.models == nil {
		return nil, errNoModels
	}

	unlock, err := e.lockTrees(ctx, true, table)
	if err != nil {
		return nil, err
	}
	defer unlock()

	info, err := e.db.Stores().Catalog.Get(ctx, table)
	if err != nil {
		return nil, err
	}
	col, ok := info.Column(column)
	if !ok {
		return nil, models.NotFound(column, "column %q not found in %s; available columns: %s", column, table, strings.Join(info.ColumnNames(), ", "))
	}
	if col.Type != models.TypeString {
		return nil, models.InvalidArgument(column, fmt.Sprintf("column %q has type %s; embedding indexes need a string column", column, col.Type))
	}
	if _, err := e.db.Stores().Embeddings.GetIndex(ctx, table, column); err == nil {
		return nil, models.Conflict(column, fmt.Sprintf("an embedding index on %s.%s already exists", table, column))
	}
	if model == "" {
		model = e.models.EmbeddingModel()
	}

	idx := &models.EmbeddingIndex{Table: table, Column: column, Model: model}
	rows, err := e.loadRows(ctx, info)
	if err != nil {
		return nil, err
	}

	// Vectors get the index id once CreateIndex assigns it
	var targets []*models.Row
	for _, r := range rows {
		if text, ok := r.Values[column].(string); ok && text != "" {
			targets = append(targets, r)
		}
	}
	vectors := e.embedIndex(ctx, idx, targets)

	var failed []*models.Row
	var errs []RowError
	for _, r := range targets {
		if msg, bad := r.Errors[embeddingErrorKey(column)]; bad {
			failed = append(failed, r)
			errs = append(errs, RowError{Table: table, RowID: r.ID, Column: embeddingErrorKey(column), Error: msg})
		}
	}

	e.writeMu.Lock()
	defer e.writeMu.Unlock()
	err = e.db.InTx(ctx, func(s *sqlite.Stores) error {
		if err := s.Embeddings.CreateIndex(ctx, idx); err != nil {
			return err
		}
		for _, v := range vectors {
			v.IndexID = idx.ID
			if err := s.Embeddings.Save(ctx, v); err != nil {
				return err
			}
		}
		for _, r := range failed {
			if err := s.Rows.Update(ctx, r); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &IndexResult{Index: idx, Embedded: len(vectors), Errors: errs}, nil
}

// HasIndex reports whether table has an embedding index on column
func (e *Engine) HasIndex(ctx context.Context, table, column string) (bool, error) {
	_, err := e.db.Stores().Embeddings.GetIndex(ctx, table, column)
	if models.IsNotFound(err) {
		return false, nil
	}
	return err == nil, err
}

func (e *Engine) loadRows(ctx context.Context, info *models.TableInfo) ([]*models.Row, error) {
	rows, err := e.db.Stores().Rows.List(ctx, info.Name)
	if err != nil {
		return nil, err
	}
	for _, r := range rows {
		decodeRow(info, r)
	}
	return rows, nil
}

func collectErrors(rows []derived) []RowError {
	var out []RowError
	for _, d := range rows {
		for col, msg := range d.row.Errors {
			out = append(out, RowError{Table: d.node.info.Name, RowID: d.row.ID, Column: col, Error: msg})
		}
	}
	return out
}
