// ABOUTME: Recursive-descent parser for column expressions
// ABOUTME: Supports comparison, boolean and arithmetic operators, paths and calls
package expr

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/harper/mediaindex/internal/models"
)

// Node is a parsed expression
type Node interface {
	String() string
}

// Literal is a constant value: int64, float64, string, bool or nil
type Literal struct {
	Value interface{}
}

// Ref references a column, optionally descending into JSON fields
type Ref struct {
	Column string
	Path   []string
}

// Unary is a prefix operator application
type Unary struct {
	Op string
	X  Node
}

// Binary is an infix operator application
type Binary struct {
	Op   string
	L, R Node
}

// KwArg is a named call argument
type KwArg struct {
	Name  string
	Value Node
}

// Call is a function application
type Call struct {
	Name   string
	Args   []Node
	Kwargs []KwArg
}

func (l *Literal) String() string {
	switch v := l.Value.(type) {
	case nil:
		return "null"
	case string:
		return strconv.Quote(v)
	}
	return fmt.Sprint(l.Value)
}

func (r *Ref) String() string {
	if len(r.Path) == 0 {
		return r.Column
	}
	return r.Column + "." + strings.Join(r.Path, ".")
}

func (u *Unary) String() string {
	return fmt.Sprintf("(%s %s)", u.Op, u.X)
}

func (b *Binary) String() string {
	return fmt.Sprintf("(%s %s %s)", b.L, b.Op, b.R)
}

func (c *Call) String() string {
	parts := make([]string, 0, len(c.Args)+len(c.Kwargs))
	for _, a := range c.Args {
		parts = append(parts, a.String())
	}
	for _, kw := range c.Kwargs {
		parts = append(parts, kw.Name+"="+kw.Value.String())
	}
	return fmt.Sprintf("%s(%s)", c.Name, strings.Join(parts, ", "))
}

// Parse turns expression source into an AST. Errors are invalid-argument
// errors naming the offending expression.
func Parse(src string) (Node, error) {
	if strings.TrimSpace(src) == "" {
		return nil, models.InvalidArgument("expression", "expression cannot be empty")
	}
	tokens, err := tokenize(src)
	if err != nil {
		return nil, models.InvalidArgument(src, fmt.Sprintf("malformed expression %q: %v", src, err))
	}

	p := &parser{tokens: tokens}
	node, err := p.parseOr()
	if err == nil && p.peek().kind != tokEOF {
		err = fmt.Errorf("unexpected %s at position %d", p.peek(), p.peek().pos)
	}
	if err != nil {
		return nil, models.InvalidArgument(src, fmt.Sprintf("malformed expression %q: %v", src, err))
	}
	return node, nil
}

type parser struct {
	tokens []token
	pos    int
}

func (p *parser) peek() token {
	return p.tokens[p.pos]
}

func (p *parser) peekAt(offset int) token {
	if p.pos+offset >= len(p.tokens) {
		return p.tokens[len(p.tokens)-1]
	}
	return p.tokens[p.pos+offset]
}

func (p *parser) next() token {
	t := p.tokens[p.pos]
	if t.kind != tokEOF {
		p.pos++
	}
	return t
}

// isOp matches an operator token or one of its keyword spellings
func (p *parser) isOp(ops ...string) (string, bool) {
	t := p.peek()
	for _, op := range ops {
		if t.kind == tokOp && t.text == op {
			return op, true
		}
		if t.kind == tokIdent && strings.EqualFold(t.text, op) {
			return strings.ToLower(op), true
		}
	}
	return "", false
}

func (p *parser) parseOr() (Node, error) {
	left, err := p.parseAnd()
	if err != nil {
		return nil, err
	}
	for {
		if _, ok := p.isOp("||", "or"); !ok {
			return left, nil
		}
		p.next()
		right, err := p.parseAnd()
		if err != nil {
			return nil, err
		}
		left = &Binary{Op: "or", L: left, R: right}
	}
}

func (p *parser) parseAnd() (Node, error) {
	left, err := p.parseNot()
	if err != nil {
		return nil, err
	}
	for {
		if _, ok := p.isOp("&&", "and"); !ok {
			return left, nil
		}
		p.next()
		right, err := p.parseNot()
		if err != nil {
			return nil, err
		}
		left = &Binary{Op: "and", L: left, R: right}
	}
}

func (p *parser) parseNot() (Node, error) {
	if _, ok := p.isOp("!", "not"); ok {
		p.next()
		x, err := p.parseNot()
		if err != nil {
			return nil, err
		}
		return &Unary{Op: "not", X: x}, nil
	}
	return p.parseComparison()
}

func (p *parser) parseComparison() (Node, error) {
	left, err := p.parseAdditive()
	if err != nil {
		return nil, err
	}
	if op, ok := p.isOp("==", "!=", "<=", ">=", "<", ">"); ok {
		p.next()
		right, err := p.parseAdditive()
		if err != nil {
			return nil, err
		}
		return &Binary{Op: op, L: left, R: right}, nil
	}
	if p.peek().kind == tokOp && p.peek().text == "=" {
		return nil, fmt.Errorf("use == for comparison at position %d", p.peek().pos)
	}
	return left, nil
}

func (p *parser) parseAdditive() (Node, error) {
	left, err := p.parseMultiplicative()
	if err != nil {
		return nil, err
	}
	for {
		op, ok := p.isOp("+", "-")
		if !ok {
			return left, nil
		}
		p.next()
		right, err := p.parseMultiplicative()
		if err != nil {
			return nil, err
		}
		left = &Binary{Op: op, L: left, R: right}
	}
}

func (p *parser) parseMultiplicative() (Node, error) {
	left, err := p.parseUnary()
	if err != nil {
		return nil, err
	}
	for {
		op, ok := p.isOp("*", "/", "%")
		if !ok {
			return left, nil
		}
		p.next()
		right, err := p.parseUnary()
		if err != nil {
			return nil, err
		}
		left = &Binary{Op: op, L: left, R: right}
	}
}

func (p *parser) parseUnary() (Node, error) {
	if _, ok := p.isOp("-"); ok {
		p.next()
		x, err := p.parseUnary()
		if err != nil {
			return nil, err
		}
		return &Unary{Op: "-", X: x}, nil
	}
	return p.parsePrimary()
}

func (p *parser) parsePrimary() (Node, error) {
	t := p.next()
	switch t.kind {
	case tokNumber:
		if strings.Contains(t.text, ".") {
			f, err := strconv.ParseFloat(t.text, 64)
			if err != nil {
				return nil, fmt.Errorf("invalid number %q", t.text)
			}
			return &Literal{Value: f}, nil
		}
		i, err := strconv.ParseInt(t.text, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("invalid number %q", t.text)
		}
		return &Literal{Value: i}, nil

	case tokString:
		return &Literal{Value: t.text}, nil

	case tokLParen:
		node, err := p.parseOr()
		if err != nil {
			return nil, err
		}
		if p.next().kind != tokRParen {
			return nil, fmt.Errorf("missing closing parenthesis")
		}
		return node, nil

	case tokIdent:
		switch strings.ToLower(t.text) {
		case "true":
			return &Literal{Value: true}, nil
		case "false":
			return &Literal{Value: false}, nil
		case "null", "none":
			return &Literal{Value: nil}, nil
		case "and", "or", "not":
			return nil, fmt.Errorf("unexpected keyword %q at position %d", t.text, t.pos)
		}
		if p.peek().kind == tokLParen {
			p.next()
			return p.parseCall(t.text)
		}
		ref := &Ref{Column: t.text}
		for p.peek().kind == tokDot {
			p.next()
			field := p.next()
			if field.kind != tokIdent {
				return nil, fmt.Errorf("expected field name after '.' at position %d", field.pos)
			}
			ref.Path = append(ref.Path, field.text)
		}
		return ref, nil
	}
	return nil, fmt.Errorf("unexpected %s at position %d", t, t.pos)
}

func (p *parser) parseCall(name string) (Node, error) {
	call := &Call{Name: strings.ToLower(name)}
	if p.peek().kind == tokRParen {
		p.next()
		return call, nil
	}
	for {
		if p.peek().kind == tokIdent && p.peekAt(1).kind == tokOp && p.peekAt(1).text == "=" {
			kwName := p.next().text
			p.next()
			value, err := p.parseOr()
			if err != nil {
				return nil, err
			}
			call.Kwargs = append(call.Kwargs, KwArg{Name: kwName, Value: value})
		} else {
			if len(call.Kwargs) > 0 {
				return nil, fmt.Errorf("positional argument after keyword argument in %s()", name)
			}
			arg, err := p.parseOr()
			if err != nil {
				return nil, err
			}
			call.Args = append(call.Args, arg)
		}

		switch p.next().kind {
		case tokComma:
			continue
		case tokRParen:
			return call, nil
		default:
			return nil, fmt.Errorf("expected ',' or ')' in call to %s()", name)
		}
	}
}
