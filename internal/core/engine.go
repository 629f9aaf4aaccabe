// ABOUTME: Engine is the typed table store: tables, views, computed columns and embedding indexes
// ABOUTME: Derivation runs outside the database; each write commits in one short transaction
package core

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/google/uuid"

	"github.com/harper/mediaindex/internal/models"
	"github.com/harper/mediaindex/internal/storage/sqlite"
)

// MaxTopK caps the number of similarity results per query
const MaxTopK = 100

// EngineOptions configures an Engine
type EngineOptions struct {
	// Workers bounds parallel per-chunk derivation
	Workers int
	// ChunkDefaults fills audio_splitter parameters left unset
	ChunkDefaults models.ChunkParams
}

// Engine owns the catalog and rows of every table
type Engine struct {
	db        *sqlite.DB
	models    Models
	media     Media
	segmenter *TextSegmenter
	opts      EngineOptions

	// locks is held shared by inserts and exclusively by schema changes,
	// per view tree
	locks *treeLocks
	// writeMu serializes commit transactions
	writeMu *sync.Mutex
}

// NewEngine creates an engine over db. m may be nil when no credential is configured.
func NewEngine(db *sqlite.DB, m Models, md Media, opts EngineOptions) *Engine {
	if opts.Workers < 1 {
		opts.Workers = 1
	}
	if opts.ChunkDefaults == (models.ChunkParams{}) {
		opts.ChunkDefaults = models.DefaultChunkParams()
	}
	return &Engine{
		db:        db,
		models:    m,
		media:     md,
		segmenter: NewTextSegmenter(),
		opts:      opts,
		locks:     newTreeLocks(),
		writeMu:   &sync.Mutex{},
	}
}

// WithModels returns an engine sharing storage and locks but calling m for model work
func (e *Engine) WithModels(m Models) *Engine {
	c := *e
	c.models = m
	return &c
}

// Models returns the bound model client, which may be nil
func (e *Engine) Models() Models {
	return e.models
}

func (e *Engine) env() iteratorEnv {
	return iteratorEnv{media: e.media, segmenter: e.segmenter, defaults: e.opts.ChunkDefaults}
}

func (e *Engine) functions() modelFunctions {
	return modelFunctions{models: e.models, media: e.media}
}

// CreateTable creates a base table from a column → type-name mapping.
// It reports whether a new table was created.
func (e *Engine) CreateTable(ctx context.Context, name string, columns map[string]string, ifExists models.IfExists) (bool, error) {
	if err := validateTableName(name); err != nil {
		return false, err
	}
	specs, err := models.ParseSchema(columns)
	if err != nil {
		return false, err
	}
	if len(specs) == 0 {
		return false, models.InvalidArgument("columns", "a table needs at least one column")
	}

	info := &models.TableInfo{Name: name, Kind: models.KindTable}
	for _, s := range specs {
		info.Columns = append(info.Columns, models.Column{Name: s.Name, Type: s.Type, Required: s.Required})
	}

	unlock, err := e.lockTrees(ctx, true, name)
	if err != nil {
		return false, err
	}
	defer unlock()
	return e.createEntry(ctx, info, ifExists, nil)
}

// createEntry stores a catalog entry honoring ifExists, then runs fill inside
// the same transaction. Callers hold the tree locks of info.Name.
func (e *Engine) createEntry(ctx context.Context, info *models.TableInfo, ifExists models.IfExists, fill func(s *sqlite.Stores) error) (bool, error) {
	exists, err := e.db.Stores().Catalog.Exists(ctx, info.Name)
	if err != nil {
		return false, fmt.Errorf("failed to check %s: %w", info.Name, err)
	}
	if exists {
		switch ifExists {
		case models.IfExistsIgnore:
			return false, nil
		case models.IfExistsReplace:
			if err := e.dropLocked(ctx, info.Name, true); err != nil {
				return false, err
			}
		default:
			return false, models.Conflict(info.Name, fmt.Sprintf("table %s already exists", info.Name))
		}
	}

	e.writeMu.Lock()
	defer e.writeMu.Unlock()
	err = e.db.InTx(ctx, func(s *sqlite.Stores) error {
		if err := s.Catalog.Create(ctx, info); err != nil {
			return err
		}
		if fill != nil {
			return fill(s)
		}
		return nil
	})
	if err != nil {
		return false, err
	}
	return true, nil
}

// DropTable removes a table or view with its rows and indexes. Dependent
// views are dropped first when force is set; otherwise they block the drop.
func (e *Engine) DropTable(ctx context.Context, name string, force bool) error {
	unlock, err := e.lockTrees(ctx, true, name)
	if err != nil {
		return err
	}
	defer unlock()
	return e.dropLocked(ctx, name, force)
}

func (e *Engine) dropLocked(ctx context.Context, name string, force bool) error {
	stores := e.db.Stores()
	if _, err := stores.Catalog.Get(ctx, name); err != nil {
		return err
	}

	// Children before parents so foreign keys never block
	var order []string
	var walk func(string) error
	walk = func(table string) error {
		deps, err := stores.Catalog.Dependents(ctx, table)
		if err != nil {
			return err
		}
		if len(deps) > 0 && !force {
			return models.Conflict(table, fmt.Sprintf("table %s has dependent views: %s; use force to drop them too", table, strings.Join(deps, ", ")))
		}
		for _, d := range deps {
			if err := walk(d); err != nil {
				return err
			}
		}
		order = append(order, table)
		return nil
	}
	if err := walk(name); err != nil {
		return err
	}

	e.writeMu.Lock()
	defer e.writeMu.Unlock()
	return e.db.InTx(ctx, func(s *sqlite.Stores) error {
		for _, table := range order {
			if err := s.Catalog.Delete(ctx, table); err != nil {
				return err
			}
		}
		return nil
	})
}

// Describe returns the catalog entry of a table or view
func (e *Engine) Describe(ctx context.Context, name string) (*models.TableInfo, error) {
	return e.db.Stores().Catalog.Get(ctx, name)
}

// Exists reports whether a table or view is registered
func (e *Engine) Exists(ctx context.Context, name string) (bool, error) {
	return e.db.Stores().Catalog.Exists(ctx, name)
}

// ListTables returns tables and views whose name starts with prefix, sorted by name
func (e *Engine) ListTables(ctx context.Context, prefix string) ([]*models.TableInfo, error) {
	return e.db.Stores().Catalog.List(ctx, prefix)
}

// Indexes returns the embedding indexes of a table
func (e *Engine) Indexes(ctx context.Context, table string) ([]*models.EmbeddingIndex, error) {
	return e.db.Stores().Embeddings.ListIndexes(ctx, table)
}

// Count returns the number of rows stored in a table or view
func (e *Engine) Count(ctx context.Context, table string) (int, error) {
	if _, err := e.Describe(ctx, table); err != nil {
		return 0, err
	}
	return e.db.Stores().Rows.Count(ctx, table)
}

// Export collects the schema, indexes and rows of a table for serialization
func (e *Engine) Export(ctx context.Context, table string) (*sqlite.ExportData, error) {
	return sqlite.Export(ctx, e.db.Stores(), table)
}

// validateTableName accepts dotted paths of identifiers such as audio_index.podcasts
func validateTableName(name string) error {
	if strings.TrimSpace(name) == "" {
		return models.InvalidArgument("table_name", "table name cannot be empty")
	}
	for _, part := range strings.Split(name, ".") {
		if err := models.ValidateColumnName(part); err != nil {
			return models.InvalidArgument(name, fmt.Sprintf("invalid table name %q: use dot-separated identifiers of letters, digits and underscores", name))
		}
	}
	return nil
}

func newRowID() string {
	return "row_" + uuid.New().String()
}

// decodeRow coerces JSON-decoded storage values back into column types
func decodeRow(info *models.TableInfo, row *models.Row) *models.Row {
	for _, c := range info.Columns {
		v, ok := row.Values[c.Name]
		if !ok || v == nil {
			continue
		}
		if cv, err := models.CoerceValue(c.Type, v); err == nil {
			row.Values[c.Name] = cv
		}
	}
	return row
}

// outputRow formats the selected columns of a row for callers
func outputRow(row *models.Row, columns []string) map[string]interface{} {
	out := make(map[string]interface{}, len(columns)+1)
	for _, c := range columns {
		out[c] = models.FormatValue(row.Get(c))
	}
	if len(row.Errors) > 0 {
		errs := make(map[string]interface{}, len(row.Errors))
		for k, v := range row.Errors {
			errs[k] = v
		}
		out[models.ColErrors] = errs
	}
	return out
}

func sortedNames(m map[string]int) []string {
	names := make([]string, 0, len(m))
	for n := range m {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}
