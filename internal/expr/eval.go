// ABOUTME: Evaluator for parsed expressions over a single row
// ABOUTME: Pure builtins run inline, model-backed builtins go through Functions
package expr

import (
	"context"
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/harper/mediaindex/internal/models"
)

// Functions performs the model-backed builtins. Implementations carry their
// own credentials, timeouts and retries.
type Functions interface {
	Transcribe(ctx context.Context, location, model string) (*models.Transcript, error)
	ExtractAudio(ctx context.Context, location, format string) (string, error)
	Caption(ctx context.Context, location, model string) (string, error)
	DocumentText(ctx context.Context, location string) (string, error)
}

// Row supplies column values to the evaluator
type Row interface {
	Get(name string) interface{}
}

// MapRow adapts a plain map to Row
type MapRow map[string]interface{}

func (m MapRow) Get(name string) interface{} {
	return m[name]
}

// Eval evaluates node against a row. fns may be nil when the expression
// has no model-backed calls.
func Eval(ctx context.Context, node Node, row Row, fns Functions) (interface{}, error) {
	e := &evaluator{ctx: ctx, row: row, fns: fns}
	return e.eval(node)
}

// EvalBool evaluates a filter. Null counts as false; any other non-bool result
// is an error.
func EvalBool(ctx context.Context, node Node, row Row, fns Functions) (bool, error) {
	v, err := Eval(ctx, node, row, fns)
	if err != nil {
		return false, err
	}
	switch b := v.(type) {
	case nil:
		return false, nil
	case bool:
		return b, nil
	}
	return false, fmt.Errorf("filter %s must evaluate to bool, got %T", node, v)
}

type evaluator struct {
	ctx context.Context
	row Row
	fns Functions
}

func (e *evaluator) eval(node Node) (interface{}, error) {
	switch n := node.(type) {
	case *Literal:
		return n.Value, nil
	case *Ref:
		v := e.row.Get(n.Column)
		if len(n.Path) == 0 {
			return v, nil
		}
		return lookupPath(v, n.Path), nil
	case *Unary:
		return e.evalUnary(n)
	case *Binary:
		return e.evalBinary(n)
	case *Call:
		return e.evalCall(n)
	}
	return nil, fmt.Errorf("unsupported expression node %T", node)
}

func (e *evaluator) evalUnary(n *Unary) (interface{}, error) {
	x, err := e.eval(n.X)
	if err != nil {
		return nil, err
	}
	switch n.Op {
	case "not":
		if x == nil {
			return true, nil
		}
		b, ok := x.(bool)
		if !ok {
			return nil, fmt.Errorf("not: expected bool, got %T", x)
		}
		return !b, nil
	case "-":
		switch v := x.(type) {
		case int64:
			return -v, nil
		case float64:
			return -v, nil
		case nil:
			return nil, nil
		}
		return nil, fmt.Errorf("unary minus: expected number, got %T", x)
	}
	return nil, fmt.Errorf("unknown operator %q", n.Op)
}

func (e *evaluator) evalBinary(n *Binary) (interface{}, error) {
	if n.Op == "and" || n.Op == "or" {
		return e.evalLogical(n)
	}

	l, err := e.eval(n.L)
	if err != nil {
		return nil, err
	}
	r, err := e.eval(n.R)
	if err != nil {
		return nil, err
	}

	switch n.Op {
	case "==", "!=", "<", "<=", ">", ">=":
		return compare(n.Op, l, r)
	case "+", "-", "*", "/", "%":
		return arithmetic(n.Op, l, r)
	}
	return nil, fmt.Errorf("unknown operator %q", n.Op)
}

func (e *evaluator) evalLogical(n *Binary) (interface{}, error) {
	l, err := e.eval(n.L)
	if err != nil {
		return nil, err
	}
	lb, err := truth(n.Op, l)
	if err != nil {
		return nil, err
	}
	if n.Op == "and" && !lb {
		return false, nil
	}
	if n.Op == "or" && lb {
		return true, nil
	}
	r, err := e.eval(n.R)
	if err != nil {
		return nil, err
	}
	return truth(n.Op, r)
}

func truth(op string, v interface{}) (bool, error) {
	switch b := v.(type) {
	case nil:
		return false, nil
	case bool:
		return b, nil
	}
	return false, fmt.Errorf("%s: expected bool, got %T", op, v)
}

func compare(op string, l, r interface{}) (interface{}, error) {
	if l == nil || r == nil {
		switch op {
		case "==":
			return l == nil && r == nil, nil
		case "!=":
			return !(l == nil && r == nil), nil
		}
		return false, nil
	}

	var c int
	switch lv := l.(type) {
	case int64, float64:
		lf, _ := toNumber(lv)
		rf, ok := toNumber(r)
		if !ok {
			return nil, fmt.Errorf("cannot compare %T with %T", l, r)
		}
		c = cmpFloat(lf, rf)
	case string:
		rs, ok := r.(string)
		if !ok {
			return nil, fmt.Errorf("cannot compare string with %T", r)
		}
		c = strings.Compare(lv, rs)
	case bool:
		rb, ok := r.(bool)
		if !ok {
			return nil, fmt.Errorf("cannot compare bool with %T", r)
		}
		if op != "==" && op != "!=" {
			return nil, fmt.Errorf("operator %s is not defined for bool", op)
		}
		if lv == rb {
			c = 0
		} else {
			c = 1
		}
	case time.Time:
		rt, err := models.CoerceValue(models.TypeTimestamp, r)
		if err != nil {
			return nil, fmt.Errorf("cannot compare timestamp: %w", err)
		}
		c = lv.Compare(rt.(time.Time))
	default:
		if op != "==" && op != "!=" {
			return nil, fmt.Errorf("operator %s is not defined for %T", op, l)
		}
		if fmt.Sprint(l) == fmt.Sprint(r) {
			c = 0
		} else {
			c = 1
		}
	}

	switch op {
	case "==":
		return c == 0, nil
	case "!=":
		return c != 0, nil
	case "<":
		return c < 0, nil
	case "<=":
		return c <= 0, nil
	case ">":
		return c > 0, nil
	}
	return c >= 0, nil
}

// Greater reports whether a > b under the comparison rules of expressions.
// Values of incomparable types are an error.
func Greater(a, b interface{}) (bool, error) {
	v, err := compare(">", a, b)
	if err != nil {
		return false, err
	}
	gt, _ := v.(bool)
	return gt, nil
}

func cmpFloat(a, b float64) int {
	switch {
	case a < b:
		return -1
	case a > b:
		return 1
	}
	return 0
}

func toNumber(v interface{}) (float64, bool) {
	switch n := v.(type) {
	case int64:
		return float64(n), true
	case float64:
		return n, true
	case int:
		return float64(n), true
	}
	return 0, false
}

func arithmetic(op string, l, r interface{}) (interface{}, error) {
	if l == nil || r == nil {
		return nil, nil
	}

	if ls, ok := l.(string); ok && op == "+" {
		rs, ok := r.(string)
		if !ok {
			return nil, fmt.Errorf("cannot add string and %T", r)
		}
		return ls + rs, nil
	}

	li, lInt := l.(int64)
	ri, rInt := r.(int64)
	if lInt && rInt && op != "/" {
		switch op {
		case "+":
			return li + ri, nil
		case "-":
			return li - ri, nil
		case "*":
			return li * ri, nil
		case "%":
			if ri == 0 {
				return nil, fmt.Errorf("modulo by zero")
			}
			return li % ri, nil
		}
	}

	lf, ok := toNumber(l)
	if !ok {
		return nil, fmt.Errorf("operator %s: expected number, got %T", op, l)
	}
	rf, ok := toNumber(r)
	if !ok {
		return nil, fmt.Errorf("operator %s: expected number, got %T", op, r)
	}
	switch op {
	case "+":
		return lf + rf, nil
	case "-":
		return lf - rf, nil
	case "*":
		return lf * rf, nil
	case "/":
		if rf == 0 {
			return nil, fmt.Errorf("division by zero")
		}
		return lf / rf, nil
	case "%":
		if rf == 0 {
			return nil, fmt.Errorf("modulo by zero")
		}
		return math.Mod(lf, rf), nil
	}
	return nil, fmt.Errorf("unknown operator %q", op)
}

func (e *evaluator) evalCall(c *Call) (interface{}, error) {
	args := make([]interface{}, len(c.Args))
	for i, a := range c.Args {
		v, err := e.eval(a)
		if err != nil {
			return nil, err
		}
		args[i] = v
	}
	kwargs := make(map[string]string, len(c.Kwargs))
	for _, kw := range c.Kwargs {
		v, err := e.eval(kw.Value)
		if err != nil {
			return nil, err
		}
		kwargs[kw.Name] = fmt.Sprint(v)
	}

	switch c.Name {
	case "lower", "upper":
		if args[0] == nil {
			return nil, nil
		}
		s, ok := args[0].(string)
		if !ok {
			return nil, fmt.Errorf("%s: expected string, got %T", c.Name, args[0])
		}
		if c.Name == "lower" {
			return strings.ToLower(s), nil
		}
		return strings.ToUpper(s), nil

	case "len":
		switch v := args[0].(type) {
		case nil:
			return int64(0), nil
		case string:
			return int64(len([]rune(v))), nil
		case []interface{}:
			return int64(len(v)), nil
		case map[string]interface{}:
			return int64(len(v)), nil
		}
		return nil, fmt.Errorf("len: unsupported type %T", args[0])

	case "contains":
		switch h := args[0].(type) {
		case nil:
			return false, nil
		case string:
			needle, ok := args[1].(string)
			if !ok {
				return nil, fmt.Errorf("contains: expected string needle, got %T", args[1])
			}
			return strings.Contains(h, needle), nil
		case []interface{}:
			for _, item := range h {
				if eq, _ := compare("==", item, args[1]); eq == true {
					return true, nil
				}
			}
			return false, nil
		}
		return nil, fmt.Errorf("contains: unsupported type %T", args[0])

	case "concat":
		var b strings.Builder
		for _, a := range args {
			if a != nil {
				b.WriteString(fmt.Sprint(models.FormatValue(a)))
			}
		}
		return b.String(), nil

	case "coalesce":
		for _, a := range args {
			if a != nil {
				return a, nil
			}
		}
		return nil, nil

	case "json_get":
		path, ok := args[1].(string)
		if !ok {
			return nil, fmt.Errorf("json_get: path must be a string")
		}
		return lookupPath(args[0], strings.Split(path, ".")), nil
	}

	return e.callModel(c.Name, args, kwargs)
}

func (e *evaluator) callModel(name string, args []interface{}, kwargs map[string]string) (interface{}, error) {
	if e.fns == nil {
		return nil, fmt.Errorf("%s is not available in this context", name)
	}
	if args[0] == nil {
		return nil, nil
	}
	location, ok := args[0].(string)
	if !ok {
		return nil, fmt.Errorf("%s: expected asset location, got %T", name, args[0])
	}

	switch name {
	case "transcribe":
		t, err := e.fns.Transcribe(e.ctx, location, kwargs["model"])
		if err != nil {
			return nil, err
		}
		return t.AsJSON(), nil
	case "extract_audio":
		return e.fns.ExtractAudio(e.ctx, location, kwargs["format"])
	case "caption":
		return e.fns.Caption(e.ctx, location, kwargs["model"])
	case "document_text":
		return e.fns.DocumentText(e.ctx, location)
	}
	return nil, fmt.Errorf("unknown function %q", name)
}

// lookupPath descends through nested JSON objects; missing keys yield nil
func lookupPath(v interface{}, path []string) interface{} {
	for _, key := range path {
		m, ok := v.(map[string]interface{})
		if !ok {
			return nil
		}
		v = m[key]
	}
	return v
}
