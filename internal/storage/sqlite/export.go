// ABOUTME: Export of one table or view with its schema, indexes and rows
// ABOUTME: Supports YAML and Markdown export formats
package sqlite

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// ExportData represents the complete exportable data structure
type ExportData struct {
	Version    string        `yaml:"version" json:"version"`
	ExportedAt string        `yaml:"exported_at" json:"exported_at"`
	Tool       string        `yaml:"tool" json:"tool"`
	Table      ExportTable   `yaml:"table" json:"table"`
	Indexes    []ExportIndex `yaml:"embedding_indexes,omitempty" json:"embedding_indexes,omitempty"`
	Rows       []ExportRow   `yaml:"rows" json:"rows"`
}

// ExportTable represents table metadata for export
type ExportTable struct {
	Name     string         `yaml:"name" json:"name"`
	Kind     string         `yaml:"kind" json:"kind"`
	Base     string         `yaml:"base,omitempty" json:"base,omitempty"`
	Iterator string         `yaml:"iterator,omitempty" json:"iterator,omitempty"`
	Columns  []ExportColumn `yaml:"columns" json:"columns"`
}

// ExportColumn represents a column definition for export
type ExportColumn struct {
	Name     string `yaml:"name" json:"name"`
	Type     string `yaml:"type" json:"type"`
	Computed string `yaml:"computed,omitempty" json:"computed,omitempty"`
}

// ExportIndex represents an embedding index for export
type ExportIndex struct {
	Column  string `yaml:"column" json:"column"`
	Model   string `yaml:"model" json:"model"`
	Vectors int    `yaml:"vectors" json:"vectors"`
}

// ExportRow represents a row for export
type ExportRow struct {
	RowID    string                 `yaml:"row_id" json:"row_id"`
	ParentID string                 `yaml:"parent_id,omitempty" json:"parent_id,omitempty"`
	Values   map[string]interface{} `yaml:"values" json:"values"`
	Errors   map[string]string      `yaml:"errors,omitempty" json:"errors,omitempty"`
}

// Export collects a table's schema, indexes and rows
func Export(ctx context.Context, s *Stores, table string) (*ExportData, error) {
	info, err := s.Catalog.Get(ctx, table)
	if err != nil {
		return nil, err
	}

	data := &ExportData{
		Version:    "1.0",
		ExportedAt: time.Now().Format(time.RFC3339),
		Tool:       "mediaindex",
		Table: ExportTable{
			Name: info.Name,
			Kind: string(info.Kind),
			Base: info.Base,
		},
	}
	if info.Iterator != nil {
		data.Table.Iterator = info.Iterator.Kind
	}
	for _, c := range info.Columns {
		tag := string(c.Type)
		if c.Required {
			tag = "required:" + tag
		}
		data.Table.Columns = append(data.Table.Columns, ExportColumn{Name: c.Name, Type: tag, Computed: c.Computed})
	}

	indexes, err := s.Embeddings.ListIndexes(ctx, table)
	if err != nil {
		return nil, fmt.Errorf("failed to list embedding indexes: %w", err)
	}
	for _, idx := range indexes {
		n, err := s.Embeddings.Count(ctx, idx.ID)
		if err != nil {
			return nil, err
		}
		data.Indexes = append(data.Indexes, ExportIndex{Column: idx.Column, Model: idx.Model, Vectors: n})
	}

	rows, err := s.Rows.List(ctx, table)
	if err != nil {
		return nil, fmt.Errorf("failed to list rows: %w", err)
	}
	data.Rows = make([]ExportRow, 0, len(rows))
	for _, r := range rows {
		data.Rows = append(data.Rows, ExportRow{RowID: r.ID, ParentID: r.ParentID, Values: r.Values, Errors: r.Errors})
	}

	return data, nil
}

// WriteYAML encodes export data as YAML
func WriteYAML(w io.Writer, data *ExportData) error {
	encoder := yaml.NewEncoder(w)
	encoder.SetIndent(2)
	if err := encoder.Encode(data); err != nil {
		return fmt.Errorf("failed to encode YAML: %w", err)
	}
	return encoder.Close()
}

// WriteJSON encodes export data as indented JSON
func WriteJSON(w io.Writer, data *ExportData) error {
	encoder := json.NewEncoder(w)
	encoder.SetIndent("", "  ")
	if err := encoder.Encode(data); err != nil {
		return fmt.Errorf("failed to encode JSON: %w", err)
	}
	return nil
}

// WriteMarkdown renders export data as a Markdown document
func WriteMarkdown(w io.Writer, data *ExportData) error {
	_, _ = fmt.Fprintf(w, "# %s - %s\n\n", data.Table.Name, data.Table.Kind)
	_, _ = fmt.Fprintf(w, "Generated: %s\n\n", data.ExportedAt)
	if data.Table.Base != "" {
		_, _ = fmt.Fprintf(w, "Derived from `%s` via `%s`\n\n", data.Table.Base, data.Table.Iterator)
	}

	_, _ = fmt.Fprintln(w, "## Columns")
	_, _ = fmt.Fprintln(w)
	_, _ = fmt.Fprintln(w, "| Name | Type | Computed |")
	_, _ = fmt.Fprintln(w, "|------|------|----------|")
	for _, c := range data.Table.Columns {
		_, _ = fmt.Fprintf(w, "| %s | %s | %s |\n", c.Name, c.Type, c.Computed)
	}
	_, _ = fmt.Fprintln(w)

	if len(data.Indexes) > 0 {
		_, _ = fmt.Fprintln(w, "## Embedding Indexes")
		_, _ = fmt.Fprintln(w)
		for _, idx := range data.Indexes {
			_, _ = fmt.Fprintf(w, "- **%s** (%s): %d vectors\n", idx.Column, idx.Model, idx.Vectors)
		}
		_, _ = fmt.Fprintln(w)
	}

	_, _ = fmt.Fprintf(w, "## Rows (%d)\n\n", len(data.Rows))
	for _, r := range data.Rows {
		_, _ = fmt.Fprintf(w, "### %s\n\n", r.RowID)
		keys := make([]string, 0, len(r.Values))
		for k := range r.Values {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		for _, k := range keys {
			_, _ = fmt.Fprintf(w, "- **%s:** %s\n", k, formatMarkdownValue(r.Values[k]))
		}
		for col, msg := range r.Errors {
			_, _ = fmt.Fprintf(w, "- *error in %s:* %s\n", col, msg)
		}
		_, _ = fmt.Fprintln(w)
	}
	return nil
}

// ExportToFile writes export data to path in the given format (yaml, json or markdown)
func ExportToFile(data *ExportData, path, format string) error {
	// Ensure directory exists
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("failed to create output directory: %w", err)
	}

	file, err := os.Create(path) // #nosec G304
	if err != nil {
		return fmt.Errorf("failed to create output file: %w", err)
	}
	defer func() { _ = file.Close() }()

	switch strings.ToLower(format) {
	case "yaml", "yml", "":
		return WriteYAML(file, data)
	case "json":
		return WriteJSON(file, data)
	case "markdown", "md":
		return WriteMarkdown(file, data)
	}
	return fmt.Errorf("unknown export format %q: use yaml, json or markdown", format)
}

func formatMarkdownValue(v interface{}) string {
	switch t := v.(type) {
	case nil:
		return "_null_"
	case string:
		return t
	case map[string]interface{}, []interface{}:
		b, err := json.Marshal(t)
		if err != nil {
			return fmt.Sprint(t)
		}
		s := string(b)
		if len(s) > 200 {
			s = s[:200] + "..."
		}
		return "`" + s + "`"
	}
	return fmt.Sprint(v)
}
