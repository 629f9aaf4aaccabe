// ABOUTME: Catalog storage for tables, views and their column definitions
// ABOUTME: Directories are implicit: a table name's dotted prefix
package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/harper/mediaindex/internal/models"
)

// CatalogStore handles table and column metadata
type CatalogStore struct {
	q Querier
}

// NewCatalogStore creates a new CatalogStore
func NewCatalogStore(q Querier) *CatalogStore {
	return &CatalogStore{q: q}
}

// Create saves a table or view with its columns
func (s *CatalogStore) Create(ctx context.Context, info *models.TableInfo) error {
	var iterator sql.NullString
	if info.Iterator != nil {
		data, err := json.Marshal(info.Iterator)
		if err != nil {
			return fmt.Errorf("failed to encode iterator: %w", err)
		}
		iterator = sql.NullString{String: string(data), Valid: true}
	}
	if info.CreatedAt.IsZero() {
		info.CreatedAt = time.Now().UTC()
	}

	_, err := s.q.ExecContext(ctx, `
		INSERT INTO catalog_tables (name, kind, base, iterator, created_at)
		VALUES (?, ?, ?, ?, ?)
	`, info.Name, string(info.Kind), nullString(info.Base), iterator, info.CreatedAt)
	if err != nil {
		if isConstraintError(err) {
			return models.Conflict(info.Name, fmt.Sprintf("table %s already exists", info.Name))
		}
		return fmt.Errorf("failed to create table %s: %w", info.Name, err)
	}

	for i := range info.Columns {
		info.Columns[i].Position = i
		if err := s.AddColumn(ctx, info.Name, info.Columns[i]); err != nil {
			return err
		}
	}
	return nil
}

// AddColumn appends a column definition
func (s *CatalogStore) AddColumn(ctx context.Context, table string, col models.Column) error {
	_, err := s.q.ExecContext(ctx, `
		INSERT INTO catalog_columns (table_name, name, type, required, computed, position, from_base, from_source)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`, table, col.Name, string(col.Type), col.Required, nullString(col.Computed), col.Position, col.FromBase, col.FromSource)
	if err != nil {
		if isConstraintError(err) {
			return models.Conflict(col.Name, fmt.Sprintf("column %s already exists in %s", col.Name, table))
		}
		return fmt.Errorf("failed to add column %s to %s: %w", col.Name, table, err)
	}
	return nil
}

// Get loads a table or view by name
func (s *CatalogStore) Get(ctx context.Context, name string) (*models.TableInfo, error) {
	var (
		info     models.TableInfo
		kind     string
		base     sql.NullString
		iterator sql.NullString
	)
	err := s.q.QueryRowContext(ctx, `
		SELECT name, kind, base, iterator, created_at
		FROM catalog_tables
		WHERE name = ?
	`, name).Scan(&info.Name, &kind, &base, &iterator, &info.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, models.NotFound(name, "table %s not found", name)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load table %s: %w", name, err)
	}

	info.Kind = models.TableKind(kind)
	if base.Valid {
		info.Base = base.String
	}
	if iterator.Valid {
		var spec models.IteratorSpec
		if err := json.Unmarshal([]byte(iterator.String), &spec); err != nil {
			return nil, fmt.Errorf("failed to decode iterator of %s: %w", name, err)
		}
		info.Iterator = &spec
	}

	cols, err := s.columns(ctx, name)
	if err != nil {
		return nil, err
	}
	info.Columns = cols
	return &info, nil
}

// Exists reports whether a table or view with this name exists
func (s *CatalogStore) Exists(ctx context.Context, name string) (bool, error) {
	var n int
	err := s.q.QueryRowContext(ctx, "SELECT COUNT(*) FROM catalog_tables WHERE name = ?", name).Scan(&n)
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

func (s *CatalogStore) columns(ctx context.Context, table string) ([]models.Column, error) {
	rows, err := s.q.QueryContext(ctx, `
		SELECT name, type, required, computed, position, from_base, from_source
		FROM catalog_columns
		WHERE table_name = ?
		ORDER BY position ASC
	`, table)
	if err != nil {
		return nil, fmt.Errorf("failed to load columns of %s: %w", table, err)
	}
	defer func() { _ = rows.Close() }()

	var cols []models.Column
	for rows.Next() {
		var (
			c        models.Column
			ct       string
			computed sql.NullString
		)
		if err := rows.Scan(&c.Name, &ct, &c.Required, &computed, &c.Position, &c.FromBase, &c.FromSource); err != nil {
			return nil, err
		}
		c.Type = models.ColumnType(ct)
		if computed.Valid {
			c.Computed = computed.String
		}
		cols = append(cols, c)
	}
	return cols, rows.Err()
}

// List returns every table and view whose name starts with prefix, by name
func (s *CatalogStore) List(ctx context.Context, prefix string) ([]*models.TableInfo, error) {
	rows, err := s.q.QueryContext(ctx, `
		SELECT name FROM catalog_tables
		WHERE name LIKE ? ESCAPE '\'
		ORDER BY name ASC
	`, escapeLike(prefix)+"%")
	if err != nil {
		return nil, fmt.Errorf("failed to list tables: %w", err)
	}

	var names []string
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			_ = rows.Close()
			return nil, err
		}
		names = append(names, name)
	}
	_ = rows.Close()
	if err := rows.Err(); err != nil {
		return nil, err
	}

	tables := make([]*models.TableInfo, 0, len(names))
	for _, name := range names {
		info, err := s.Get(ctx, name)
		if err != nil {
			return nil, err
		}
		tables = append(tables, info)
	}
	return tables, nil
}

// Dependents returns the names of views whose base is table
func (s *CatalogStore) Dependents(ctx context.Context, table string) ([]string, error) {
	rows, err := s.q.QueryContext(ctx, "SELECT name FROM catalog_tables WHERE base = ? ORDER BY created_at ASC, name ASC", table)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	var names []string
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, err
		}
		names = append(names, name)
	}
	return names, rows.Err()
}

// Delete removes a table or view. Rows, columns and embedding indexes cascade.
func (s *CatalogStore) Delete(ctx context.Context, name string) error {
	res, err := s.q.ExecContext(ctx, "DELETE FROM catalog_tables WHERE name = ?", name)
	if err != nil {
		if isConstraintError(err) {
			return models.Conflict(name, fmt.Sprintf("table %s still has dependent views", name))
		}
		return fmt.Errorf("failed to drop %s: %w", name, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return models.NotFound(name, "table %s not found", name)
	}
	return nil
}

// nullString converts empty string to sql.NullString
func nullString(s string) sql.NullString {
	if s == "" {
		return sql.NullString{}
	}
	return sql.NullString{String: s, Valid: true}
}

func escapeLike(s string) string {
	r := strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)
	return r.Replace(s)
}

func isConstraintError(err error) bool {
	return err != nil && strings.Contains(err.Error(), "constraint failed")
}
