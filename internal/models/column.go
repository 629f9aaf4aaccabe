// ABOUTME: Column type tags for the typed table store
// ABOUTME: Maps user-supplied type names onto a closed set of column types
package models

import (
	"fmt"
	"sort"
	"strings"
)

// ColumnType is the enumerated type tag of a table column
type ColumnType string

const (
	TypeArray     ColumnType = "array"
	TypeAudio     ColumnType = "audio"
	TypeBool      ColumnType = "bool"
	TypeDocument  ColumnType = "document"
	TypeFloat     ColumnType = "float"
	TypeImage     ColumnType = "image"
	TypeInt       ColumnType = "int"
	TypeJSON      ColumnType = "json"
	TypeString    ColumnType = "string"
	TypeTimestamp ColumnType = "timestamp"
	TypeVideo     ColumnType = "video"
)

// RequiredPrefix marks a column as non-nullable, e.g. "required:string"
const RequiredPrefix = "required:"

// ColumnTypes lists every valid type tag in display order
var ColumnTypes = []ColumnType{
	TypeArray,
	TypeAudio,
	TypeBool,
	TypeDocument,
	TypeFloat,
	TypeImage,
	TypeInt,
	TypeJSON,
	TypeString,
	TypeTimestamp,
	TypeVideo,
}

// IsMedia reports whether values of this type are asset locations
func (t ColumnType) IsMedia() bool {
	switch t {
	case TypeAudio, TypeVideo, TypeImage, TypeDocument:
		return true
	}
	return false
}

// Valid reports whether t is one of the known tags
func (t ColumnType) Valid() bool {
	for _, ct := range ColumnTypes {
		if ct == t {
			return true
		}
	}
	return false
}

// ColumnSpec is a parsed column declaration
type ColumnSpec struct {
	Name     string     `json:"name"`
	Type     ColumnType `json:"type"`
	Required bool       `json:"required"`
}

// String renders the declaration back into its tag form
func (c ColumnSpec) String() string {
	if c.Required {
		return RequiredPrefix + string(c.Type)
	}
	return string(c.Type)
}

// ParseColumnType maps a type name (case-insensitive, optional "required:" prefix)
// to a column type. Unknown names yield an invalid-argument error listing valid types.
func ParseColumnType(name string) (ColumnType, bool, error) {
	tag := strings.ToLower(strings.TrimSpace(name))
	required := false
	if strings.HasPrefix(tag, RequiredPrefix) {
		required = true
		tag = strings.TrimSpace(strings.TrimPrefix(tag, RequiredPrefix))
	}

	ct := ColumnType(tag)
	if !ct.Valid() {
		return "", false, InvalidArgument(name,
			fmt.Sprintf("Invalid column type: %s. Valid types are: %s (prefix with %q for non-nullable columns)",
				name, ValidTypeNames(), RequiredPrefix))
	}
	return ct, required, nil
}

// ValidTypeNames returns the comma-separated list of valid type tags
func ValidTypeNames() string {
	names := make([]string, len(ColumnTypes))
	for i, ct := range ColumnTypes {
		names[i] = string(ct)
	}
	return strings.Join(names, ", ")
}

// ParseSchema converts a name → type-name mapping into ordered column specs.
// Columns are ordered by name so the resulting schema is deterministic.
func ParseSchema(columns map[string]string) ([]ColumnSpec, error) {
	if len(columns) == 0 {
		return nil, InvalidArgument("columns", "at least one column is required")
	}

	names := sortedKeys(columns)
	specs := make([]ColumnSpec, 0, len(columns))
	for _, name := range names {
		if err := ValidateColumnName(name); err != nil {
			return nil, err
		}
		ct, required, err := ParseColumnType(columns[name])
		if err != nil {
			return nil, err
		}
		specs = append(specs, ColumnSpec{Name: name, Type: ct, Required: required})
	}
	return specs, nil
}

// ValidateColumnName checks that a column name is a plain identifier
func ValidateColumnName(name string) error {
	if name == "" {
		return InvalidArgument("column", "column name cannot be empty")
	}
	for i, r := range name {
		isLetter := r == '_' || (r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z')
		isDigit := r >= '0' && r <= '9'
		if !isLetter && !(isDigit && i > 0) {
			return InvalidArgument(name, fmt.Sprintf("invalid column name %q: use letters, digits and underscores", name))
		}
	}
	if IsReservedColumn(name) {
		return InvalidArgument(name, fmt.Sprintf("column name %q is reserved", name))
	}
	return nil
}

// IsReservedColumn reports whether name collides with a system column
func IsReservedColumn(name string) bool {
	switch name {
	case ColRowID, ColErrors:
		return true
	}
	return false
}

func sortedKeys(m map[string]string) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
