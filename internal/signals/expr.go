package signals

import (
	"fmt"
	"strconv"
	"unicode"
)

// SyntaxError reports a transform expression that could not be parsed or
// that uses an operation outside the restricted arithmetic subset. It is a
// configuration problem scoped to one transform, never a process failure.
type SyntaxError struct {
	Expression string
	Pos        int
	Msg        string
}

func (e *SyntaxError) Error() string {
	return fmt.Sprintf("invalid transform expression %q at offset %d: %s", e.Expression, e.Pos, e.Msg)
}

// UnknownFieldError reports an expression referencing a raw_data field the
// event does not carry. The factory treats it as "transform does not apply
// to this event".
type UnknownFieldError struct {
	Field string
}

func (e *UnknownFieldError) Error() string {
	return fmt.Sprintf("field %q not present in event raw_data", e.Field)
}

// EvalError reports an arithmetic failure during evaluation, currently
// only division by zero.
type EvalError struct {
	Msg string
}

func (e *EvalError) Error() string { return e.Msg }

// node is one node of the parsed expression tree. Only literals, field
// references and binary/unary arithmetic exist; the type set is closed.
type node interface {
	eval(fields map[string]float64) (float64, error)
}

type literalNode float64

func (n literalNode) eval(map[string]float64) (float64, error) { return float64(n), nil }

type fieldNode string

func (n fieldNode) eval(fields map[string]float64) (float64, error) {
	v, ok := fields[string(n)]
	if !ok {
		return 0, &UnknownFieldError{Field: string(n)}
	}
	return v, nil
}

type negateNode struct {
	operand node
}

func (n negateNode) eval(fields map[string]float64) (float64, error) {
	v, err := n.operand.eval(fields)
	if err != nil {
		return 0, err
	}
	return -v, nil
}

type binaryNode struct {
	op          byte // one of + - * /
	left, right node
}

func (n binaryNode) eval(fields map[string]float64) (float64, error) {
	l, err := n.left.eval(fields)
	if err != nil {
		return 0, err
	}
	r, err := n.right.eval(fields)
	if err != nil {
		return 0, err
	}
	switch n.op {
	case '+':
		return l + r, nil
	case '-':
		return l - r, nil
	case '*':
		return l * r, nil
	case '/':
		if r == 0 {
			return 0, &EvalError{Msg: "division by zero"}
		}
		return l / r, nil
	}
	return 0, &EvalError{Msg: fmt.Sprintf("unknown operator %q", n.op)}
}

// Expression is a parsed, reusable transform expression. Parsing happens
// once per evaluation pass; evaluation binds only the fields it is given.
type Expression struct {
	src  string
	root node
}

// Fields returns the field names the expression references, in first-use
// order. Useful for diagnostics when a transform never matches.
func (e *Expression) Fields() []string {
	var out []string
	seen := make(map[string]bool)
	var walk func(n node)
	walk = func(n node) {
		switch t := n.(type) {
		case fieldNode:
			if !seen[string(t)] {
				seen[string(t)] = true
				out = append(out, string(t))
			}
		case negateNode:
			walk(t.operand)
		case binaryNode:
			walk(t.left)
			walk(t.right)
		}
	}
	walk(e.root)
	return out
}

// String returns the source text the expression was parsed from.
func (e *Expression) String() string { return e.src }

// Evaluate computes the expression against the given field values.
func (e *Expression) Evaluate(fields map[string]float64) (float64, error) {
	return e.root.eval(fields)
}

// ParseExpression parses src with a recursive-descent parser covering
// exactly: decimal literals, field identifiers, unary minus, parentheses
// and the four binary arithmetic operators with usual precedence.
func ParseExpression(src string) (*Expression, error) {
	p := &parser{src: src}
	root, err := p.parseAddSub()
	if err != nil {
		return nil, err
	}
	p.skipSpace()
	if p.pos < len(p.src) {
		return nil, p.errorf("unexpected character %q", p.src[p.pos])
	}
	return &Expression{src: src, root: root}, nil
}

type parser struct {
	src string
	pos int
}

func (p *parser) errorf(format string, args ...any) error {
	return &SyntaxError{Expression: p.src, Pos: p.pos, Msg: fmt.Sprintf(format, args...)}
}

func (p *parser) skipSpace() {
	for p.pos < len(p.src) && (p.src[p.pos] == ' ' || p.src[p.pos] == '\t') {
		p.pos++
	}
}

func (p *parser) peek() (byte, bool) {
	p.skipSpace()
	if p.pos >= len(p.src) {
		return 0, false
	}
	return p.src[p.pos], true
}

// parseAddSub handles the lowest precedence level: addition and
// subtraction, left-associative.
func (p *parser) parseAddSub() (node, error) {
	left, err := p.parseMulDiv()
	if err != nil {
		return nil, err
	}
	for {
		c, ok := p.peek()
		if !ok || (c != '+' && c != '-') {
			return left, nil
		}
		p.pos++
		right, err := p.parseMulDiv()
		if err != nil {
			return nil, err
		}
		left = binaryNode{op: c, left: left, right: right}
	}
}

func (p *parser) parseMulDiv() (node, error) {
	left, err := p.parseUnary()
	if err != nil {
		return nil, err
	}
	for {
		c, ok := p.peek()
		if !ok || (c != '*' && c != '/') {
			return left, nil
		}
		p.pos++
		right, err := p.parseUnary()
		if err != nil {
			return nil, err
		}
		left = binaryNode{op: c, left: left, right: right}
	}
}

func (p *parser) parseUnary() (node, error) {
	c, ok := p.peek()
	if ok && c == '-' {
		p.pos++
		operand, err := p.parseUnary()
		if err != nil {
			return nil, err
		}
		return negateNode{operand: operand}, nil
	}
	if ok && c == '+' {
		p.pos++
		return p.parseUnary()
	}
	return p.parsePrimary()
}

func (p *parser) parsePrimary() (node, error) {
	c, ok := p.peek()
	if !ok {
		return nil, p.errorf("unexpected end of expression")
	}
	switch {
	case c == '(':
		p.pos++
		inner, err := p.parseAddSub()
		if err != nil {
			return nil, err
		}
		c, ok = p.peek()
		if !ok || c != ')' {
			return nil, p.errorf("missing closing parenthesis")
		}
		p.pos++
		return inner, nil
	case c >= '0' && c <= '9' || c == '.':
		return p.parseNumber()
	case isIdentStart(rune(c)):
		return p.parseField()
	default:
		return nil, p.errorf("unexpected character %q", c)
	}
}

func (p *parser) parseNumber() (node, error) {
	start := p.pos
	for p.pos < len(p.src) && (p.src[p.pos] >= '0' && p.src[p.pos] <= '9' || p.src[p.pos] == '.') {
		p.pos++
	}
	text := p.src[start:p.pos]
	v, err := strconv.ParseFloat(text, 64)
	if err != nil {
		p.pos = start
		return nil, p.errorf("invalid numeric literal %q", text)
	}
	return literalNode(v), nil
}

func (p *parser) parseField() (node, error) {
	start := p.pos
	for p.pos < len(p.src) && isIdentPart(rune(p.src[p.pos])) {
		p.pos++
	}
	name := p.src[start:p.pos]
	// Attribute access and function calls are outside the subset: a dot or
	// open paren directly after an identifier is rejected, not ignored.
	if p.pos < len(p.src) && (p.src[p.pos] == '.' || p.src[p.pos] == '(') {
		return nil, p.errorf("disallowed operation after identifier %q", name)
	}
	return fieldNode(name), nil
}

func isIdentStart(r rune) bool {
	return r == '_' || unicode.IsLetter(r)
}

func isIdentPart(r rune) bool {
	return r == '_' || unicode.IsLetter(r) || unicode.IsDigit(r)
}
