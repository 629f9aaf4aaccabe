// ABOUTME: Binds parsed expressions to a table schema and infers result types
// ABOUTME: Rejects unknown columns, unknown functions and bad arity before evaluation
package expr

import (
	"fmt"
	"sort"
	"strings"

	"github.com/harper/mediaindex/internal/models"
)

type funcSig struct {
	minArgs int
	maxArgs int // -1 for variadic
	kwargs  []string
	argType models.ColumnType // required type of the first argument, if any
	result  models.ColumnType
	model   bool
}

var builtins = map[string]funcSig{
	"lower":         {minArgs: 1, maxArgs: 1, result: models.TypeString},
	"upper":         {minArgs: 1, maxArgs: 1, result: models.TypeString},
	"len":           {minArgs: 1, maxArgs: 1, result: models.TypeInt},
	"contains":      {minArgs: 2, maxArgs: 2, result: models.TypeBool},
	"concat":        {minArgs: 1, maxArgs: -1, result: models.TypeString},
	"coalesce":      {minArgs: 1, maxArgs: -1},
	"json_get":      {minArgs: 2, maxArgs: 2, result: models.TypeJSON},
	"transcribe":    {minArgs: 1, maxArgs: 1, kwargs: []string{"model"}, argType: models.TypeAudio, result: models.TypeJSON, model: true},
	"extract_audio": {minArgs: 1, maxArgs: 1, kwargs: []string{"format"}, argType: models.TypeVideo, result: models.TypeAudio, model: true},
	"caption":       {minArgs: 1, maxArgs: 1, kwargs: []string{"model"}, argType: models.TypeImage, result: models.TypeString, model: true},
	"document_text": {minArgs: 1, maxArgs: 1, argType: models.TypeDocument, result: models.TypeString, model: true},
}

// Compile parses src and binds it to the given columns
func Compile(src string, columns map[string]models.ColumnType) (Node, error) {
	node, err := Parse(src)
	if err != nil {
		return nil, err
	}
	if err := Validate(node, columns); err != nil {
		return nil, err
	}
	return node, nil
}

// Validate checks column references and function calls against a schema
func Validate(node Node, columns map[string]models.ColumnType) error {
	switch n := node.(type) {
	case *Literal:
		return nil
	case *Ref:
		if n.Column == models.ColRowID {
			return nil
		}
		ct, ok := columns[n.Column]
		if !ok {
			return models.NotFound(n.Column, "column %q not found; available columns: %s", n.Column, strings.Join(sortedColumns(columns), ", "))
		}
		if len(n.Path) > 0 && ct != models.TypeJSON {
			return models.InvalidArgument(n.Column, fmt.Sprintf("column %q has type %s; only json columns support field access", n.Column, ct))
		}
		return nil
	case *Unary:
		return Validate(n.X, columns)
	case *Binary:
		if err := Validate(n.L, columns); err != nil {
			return err
		}
		return Validate(n.R, columns)
	case *Call:
		return validateCall(n, columns)
	}
	return models.InvalidArgument(node.String(), fmt.Sprintf("unsupported expression %s", node))
}

func validateCall(c *Call, columns map[string]models.ColumnType) error {
	sig, ok := builtins[c.Name]
	if !ok {
		return models.InvalidArgument(c.Name, fmt.Sprintf("unknown function %q; available functions: %s", c.Name, strings.Join(FunctionNames(), ", ")))
	}
	if len(c.Args) < sig.minArgs || (sig.maxArgs >= 0 && len(c.Args) > sig.maxArgs) {
		return models.InvalidArgument(c.Name, fmt.Sprintf("%s() takes %s, got %d", c.Name, arity(sig), len(c.Args)))
	}
	for _, kw := range c.Kwargs {
		if !contains(sig.kwargs, kw.Name) {
			return models.InvalidArgument(c.Name, fmt.Sprintf("%s() got unexpected keyword argument %q", c.Name, kw.Name))
		}
		if _, ok := kw.Value.(*Literal); !ok {
			return models.InvalidArgument(c.Name, fmt.Sprintf("%s() keyword argument %q must be a literal", c.Name, kw.Name))
		}
	}
	for _, a := range c.Args {
		if err := Validate(a, columns); err != nil {
			return err
		}
	}
	if sig.argType != "" {
		if got := InferType(c.Args[0], columns); got != sig.argType {
			return models.InvalidArgument(c.Name, fmt.Sprintf("%s() expects a %s argument, got %s", c.Name, sig.argType, got))
		}
	}
	return nil
}

func arity(sig funcSig) string {
	switch {
	case sig.maxArgs < 0:
		return fmt.Sprintf("at least %d argument(s)", sig.minArgs)
	case sig.minArgs == sig.maxArgs:
		return fmt.Sprintf("%d argument(s)", sig.minArgs)
	}
	return fmt.Sprintf("%d to %d arguments", sig.minArgs, sig.maxArgs)
}

// InferType returns the column type an expression produces
func InferType(node Node, columns map[string]models.ColumnType) models.ColumnType {
	switch n := node.(type) {
	case *Literal:
		if n.Value == nil {
			return models.TypeJSON
		}
		return models.TypeOfValue(n.Value)
	case *Ref:
		if n.Column == models.ColRowID {
			return models.TypeString
		}
		if len(n.Path) > 0 {
			return models.TypeJSON
		}
		return columns[n.Column]
	case *Unary:
		if n.Op == "not" {
			return models.TypeBool
		}
		return InferType(n.X, columns)
	case *Binary:
		switch n.Op {
		case "and", "or", "==", "!=", "<", "<=", ">", ">=":
			return models.TypeBool
		}
		l, r := InferType(n.L, columns), InferType(n.R, columns)
		switch {
		case n.Op == "+" && l == models.TypeString:
			return models.TypeString
		case n.Op == "/" || l == models.TypeFloat || r == models.TypeFloat:
			return models.TypeFloat
		case l == models.TypeInt && r == models.TypeInt:
			return models.TypeInt
		}
		return models.TypeFloat
	case *Call:
		sig := builtins[n.Name]
		if sig.result != "" {
			return sig.result
		}
		if len(n.Args) > 0 {
			return InferType(n.Args[0], columns)
		}
	}
	return models.TypeJSON
}

// UsesModels reports whether evaluating the expression calls an external model
func UsesModels(node Node) bool {
	found := false
	var walk func(Node)
	walk = func(n Node) {
		switch t := n.(type) {
		case *Call:
			if builtins[t.Name].model {
				found = true
			}
			for _, a := range t.Args {
				walk(a)
			}
		case *Unary:
			walk(t.X)
		case *Binary:
			walk(t.L)
			walk(t.R)
		}
	}
	walk(node)
	return found
}

// FunctionNames lists the builtin function names in sorted order
func FunctionNames() []string {
	names := make([]string, 0, len(builtins))
	for name := range builtins {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

func sortedColumns(columns map[string]models.ColumnType) []string {
	names := make([]string, 0, len(columns))
	for name := range columns {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

func contains(list []string, s string) bool {
	for _, item := range list {
		if item == s {
			return true
		}
	}
	return false
}
