// ABOUTME: Table, view, column and row metadata for the typed table store
// ABOUTME: Views derive rows from a base table through an iterator
package models

import (
	"strings"
	"time"
)

// System column names
const (
	ColRowID  = "_rowid"
	ColErrors = "_errors"
	ColPos    = "pos"
)

// TableKind distinguishes base tables from derived views
type TableKind string

const (
	KindTable TableKind = "table"
	KindView  TableKind = "view"
)

// IfExists controls creation behavior when the name is already taken
type IfExists string

const (
	IfExistsError   IfExists = "error"
	IfExistsIgnore  IfExists = "ignore"
	IfExistsReplace IfExists = "replace"
)

// ParseIfExists maps a user-supplied policy, defaulting to error
func ParseIfExists(s string) (IfExists, error) {
	switch IfExists(strings.ToLower(strings.TrimSpace(s))) {
	case "", IfExistsError:
		return IfExistsError, nil
	case IfExistsIgnore:
		return IfExistsIgnore, nil
	case IfExistsReplace:
		return IfExistsReplace, nil
	}
	return "", InvalidArgument("if_exists", "if_exists must be one of: error, ignore, replace")
}

// Column describes a stored or computed column
type Column struct {
	Name       string     `json:"name"`
	Type       ColumnType `json:"type"`
	Required   bool       `json:"required"`
	Computed   string     `json:"computed,omitempty"` // expression source for computed columns
	Position   int        `json:"position"`
	FromBase   bool       `json:"from_base,omitempty"`   // inherited from the base table of a view
	FromSource bool       `json:"from_source,omitempty"` // produced by the view iterator
}

// IsComputed reports whether the column value is derived by an expression
func (c Column) IsComputed() bool {
	return c.Computed != ""
}

// IteratorSpec declares how a view derives its rows from the base table
type IteratorSpec struct {
	Kind   string                 `json:"kind"`
	Params map[string]interface{} `json:"params,omitempty"`
}

// TableInfo is the catalog entry for a table or view
type TableInfo struct {
	Name      string        `json:"name"`
	Kind      TableKind     `json:"kind"`
	Base      string        `json:"base,omitempty"`
	Iterator  *IteratorSpec `json:"iterator,omitempty"`
	Columns   []Column      `json:"columns"`
	CreatedAt time.Time     `json:"created_at"`
}

// Column returns the named column
func (t *TableInfo) Column(name string) (Column, bool) {
	for _, c := range t.Columns {
		if c.Name == name {
			return c, true
		}
	}
	return Column{}, false
}

// ColumnNames returns the column names in position order
func (t *TableInfo) ColumnNames() []string {
	names := make([]string, len(t.Columns))
	for i, c := range t.Columns {
		names[i] = c.Name
	}
	return names
}

// ColumnTypeMap returns name → type for every column
func (t *TableInfo) ColumnTypeMap() map[string]ColumnType {
	m := make(map[string]ColumnType, len(t.Columns))
	for _, c := range t.Columns {
		m[c.Name] = c.Type
	}
	return m
}

// Dir returns the directory part of a dotted table name
func (t *TableInfo) Dir() string {
	return TableDir(t.Name)
}

// TableDir returns everything before the last dot of a table path
func TableDir(name string) string {
	if i := strings.LastIndex(name, "."); i >= 0 {
		return name[:i]
	}
	return ""
}

// Row is a single stored record
type Row struct {
	ID       string                 `json:"_rowid"`
	Seq      int64                  `json:"-"`
	ParentID string                 `json:"-"`
	Values   map[string]interface{} `json:"values"`
	Errors   map[string]string      `json:"_errors,omitempty"`
}

// NewRow creates a row with an empty value map
func NewRow(id string) *Row {
	return &Row{ID: id, Values: map[string]interface{}{}}
}

// Get returns a column value, nil when absent
func (r *Row) Get(name string) interface{} {
	if name == ColRowID {
		return r.ID
	}
	return r.Values[name]
}

// SetError records a per-column failure without aborting the row
func (r *Row) SetError(column, message string) {
	if r.Errors == nil {
		r.Errors = map[string]string{}
	}
	r.Errors[column] = message
}

// Clone returns a shallow copy with independent maps
func (r *Row) Clone() *Row {
	c := &Row{ID: r.ID, Seq: r.Seq, ParentID: r.ParentID, Values: make(map[string]interface{}, len(r.Values))}
	for k, v := range r.Values {
		c.Values[k] = v
	}
	for k, v := range r.Errors {
		c.SetError(k, v)
	}
	return c
}
