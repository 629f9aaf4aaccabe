// ABOUTME: Row storage for tables and views as JSON payloads
// ABOUTME: Rows keep insertion order and an optional parent row for derived views
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

// RowStore handles row persistence
type RowStore struct {
	q Querier
}

// NewRowStore creates a new RowStore
func NewRowStore(q Querier) *RowStore {
	return &RowStore{q: q}
}

// Insert saves a new row and sets its Seq
func (s *RowStore) Insert(ctx context.Context, table string, row *models.Row) error {
	data, errs, err := encodeRow(row)
	if err != nil {
		return err
	}
	res, err := s.q.ExecContext(ctx, `
		INSERT INTO table_rows (id, table_name, parent_id, data, errors, created_at)
		VALUES (?, ?, ?, ?, ?, ?)
	`, row.ID, table, nullString(row.ParentID), data, errs, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("failed to insert row into %s: %w", table, err)
	}
	seq, err := res.LastInsertId()
	if err != nil {
		return err
	}
	row.Seq = seq
	return nil
}

// Update replaces the values and errors of an existing row
func (s *RowStore) Update(ctx context.Context, row *models.Row) error {
	data, errs, err := encodeRow(row)
	if err != nil {
		return err
	}
	res, err := s.q.ExecContext(ctx, "UPDATE table_rows SET data = ?, errors = ? WHERE id = ?", data, errs, row.ID)
	if err != nil {
		return fmt.Errorf("failed to update row %s: %w", row.ID, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return models.NotFound(row.ID, "row %s not found", row.ID)
	}
	return nil
}

// Get loads one row by id
func (s *RowStore) Get(ctx context.Context, id string) (*models.Row, error) {
	row, err := scanRow(s.q.QueryRowContext(ctx, `
		SELECT seq, id, parent_id, data, errors FROM table_rows WHERE id = ?
	`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, models.NotFound(id, "row %s not found", id)
	}
	return row, err
}

// List returns every row of table in insertion order. Values are raw
// JSON-decoded; callers coerce them to column types.
func (s *RowStore) List(ctx context.Context, table string) ([]*models.Row, error) {
	rows, err := s.q.QueryContext(ctx, `
		SELECT seq, id, parent_id, data, errors
		FROM table_rows
		WHERE table_name = ?
		ORDER BY seq ASC
	`, table)
	if err != nil {
		return nil, fmt.Errorf("failed to scan %s: %w", table, err)
	}
	defer func() { _ = rows.Close() }()

	var out []*models.Row
	for rows.Next() {
		row, err := scanRow(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, row)
	}
	return out, rows.Err()
}

// GetMany loads the given rows keyed by id in one query. Any missing id is
// reported as not found.
func (s *RowStore) GetMany(ctx context.Context, ids []string) (map[string]*models.Row, error) {
	out := make(map[string]*models.Row, len(ids))
	if len(ids) == 0 {
		return out, nil
	}
	args := make([]interface{}, len(ids))
	for i, id := range ids {
		args[i] = id
	}
	rows, err := s.q.QueryContext(ctx, `
		SELECT seq, id, parent_id, data, errors
		FROM table_rows
		WHERE id IN (?`+strings.Repeat(", ?", len(ids)-1)+`)
	`, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to load rows: %w", err)
	}
	defer func() { _ = rows.Close() }()

	for rows.Next() {
		row, err := scanRow(rows)
		if err != nil {
			return nil, err
		}
		out[row.ID] = row
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	for _, id := range ids {
		if _, ok := out[id]; !ok {
			return nil, models.NotFound(id, "row %s not found", id)
		}
	}
	return out, nil
}

// Count returns the number of rows in table
func (s *RowStore) Count(ctx context.Context, table string) (int, error) {
	var n int
	err := s.q.QueryRowContext(ctx, "SELECT COUNT(*) FROM table_rows WHERE table_name = ?", table).Scan(&n)
	return n, err
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanRow(sc rowScanner) (*models.Row, error) {
	var (
		row    models.Row
		parent sql.NullString
		data   string
		errs   sql.NullString
	)
	if err := sc.Scan(&row.Seq, &row.ID, &parent, &data, &errs); err != nil {
		return nil, err
	}
	if parent.Valid {
		row.ParentID = parent.String
	}
	if err := json.Unmarshal([]byte(data), &row.Values); err != nil {
		return nil, fmt.Errorf("failed to decode row %s: %w", row.ID, err)
	}
	if row.Values == nil {
		row.Values = map[string]interface{}{}
	}
	if errs.Valid && errs.String != "" {
		if err := json.Unmarshal([]byte(errs.String), &row.Errors); err != nil {
			return nil, fmt.Errorf("failed to decode errors of row %s: %w", row.ID, err)
		}
	}
	return &row, nil
}

func encodeRow(row *models.Row) (string, sql.NullString, error) {
	data, err := json.Marshal(row.Values)
	if err != nil {
		return "", sql.NullString{}, fmt.Errorf("failed to encode row %s: %w", row.ID, err)
	}
	var errs sql.NullString
	if len(row.Errors) > 0 {
		b, err := json.Marshal(row.Errors)
		if err != nil {
			return "", sql.NullString{}, err
		}
		errs = sql.NullString{String: string(b), Valid: true}
	}
	return string(data), errs, nil
}
