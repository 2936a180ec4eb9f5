// Package expr implements the expression language used in ruleflow formulas:
// numeric and string literals, variable references (with or without the "$"
// prefix), the binary operators + - * / and ** with conventional precedence,
// unary minus, parentheses, and function calls with expression arguments.
//
// Parse produces an AST that can be evaluated repeatedly with Eval without
// re-parsing. EvalString is a convenience for one-shot evaluation.
package expr

import (
	"fmt"
	"strconv"
)

// Node is an element of a parsed expression tree.
type Node interface {
	node()
}

// NumberNode is a numeric literal.
type NumberNode struct {
	Value float64
}

// StringNode is a quoted string literal.
type StringNode struct {
	Value string
}

// VarNode is a variable reference. Name never carries the "$" prefix; the
// lexer strips it so both spellings resolve identically.
type VarNode struct {
	Name string
}

// UnaryNode is a unary operation; the only operator is "-".
type UnaryNode struct {
	Op      string
	Operand Node
}

// BinaryNode is a binary operation: + - * / or **.
type BinaryNode struct {
	Op    string
	Left  Node
	Right Node
}

// CallNode is a function call with positionally evaluated arguments.
type CallNode struct {
	Name string
	Args []Node
}

func (NumberNode) node() {}
func (StringNode) node() {}
func (VarNode) node()    {}
func (UnaryNode) node()  {}
func (BinaryNode) node() {}
func (CallNode) node()   {}

// Parse converts an expression string into an AST. The returned tree is
// immutable and safe to evaluate concurrently.
func Parse(input string) (Node, error) {
	tokens, err := lex(input)
	if err != nil {
		return nil, err
	}
	p := &parser{tokens: tokens}
	n, err := p.parseAdditive()
	if err != nil {
		return nil, err
	}
	if p.peek().kind != tokenEOF {
		t := p.peek()
		return nil, fmt.Errorf("%w: unexpected %s %q at position %d", ErrSyntax, t.kind, t.text, t.pos)
	}
	return n, nil
}

type parser struct {
	tokens []token
	cur    int
}

func (p *parser) peek() token {
	return p.tokens[p.cur]
}

func (p *parser) next() token {
	t := p.tokens[p.cur]
	if p.cur < len(p.tokens)-1 {
		p.cur++
	}
	return t
}

// parseAdditive handles + and -, the lowest precedence level,
// left-associative.
func (p *parser) parseAdditive() (Node, error) {
	left, err := p.parseMultiplicative()
	if err != nil {
		return nil, err
	}
	for {
		t := p.peek()
		if t.kind != tokenOperator || (t.text != "+" && t.text != "-") {
			return left, nil
		}
		p.next()
		right, err := p.parseMultiplicative()
		if err != nil {
			return nil, err
		}
		left = BinaryNode{Op: t.text, Left: left, Right: right}
	}
}

// parseMultiplicative handles * and /, left-associative.
func (p *parser) parseMultiplicative() (Node, error) {
	left, err := p.parseUnary()
	if err != nil {
		return nil, err
	}
	for {
		t := p.peek()
		if t.kind != tokenOperator || (t.text != "*" && t.text != "/") {
			return left, nil
		}
		p.next()
		right, err := p.parseUnary()
		if err != nil {
			return nil, err
		}
		left = BinaryNode{Op: t.text, Left: left, Right: right}
	}
}

// parseUnary handles unary minus. -2 ** 2 parses as -(2 ** 2).
func (p *parser) parseUnary() (Node, error) {
	t := p.peek()
	if t.kind == tokenOperator && t.text == "-" {
		p.next()
		operand, err := p.parseUnary()
		if err != nil {
			return nil, err
		}
		return UnaryNode{Op: "-", Operand: operand}, nil
	}
	return p.parsePower()
}

// parsePower handles **, the highest-precedence operator,
// right-associative. The exponent may itself carry a unary minus.
func (p *parser) parsePower() (Node, error) {
	base, err := p.parsePrimary()
	if err != nil {
		return nil, err
	}
	t := p.peek()
	if t.kind == tokenOperator && t.text == "**" {
		p.next()
		exp, err := p.parseUnary()
		if err != nil {
			return nil, err
		}
		return BinaryNode{Op: "**", Left: base, Right: exp}, nil
	}
	return base, nil
}

func (p *parser) parsePrimary() (Node, error) {
	t := p.next()
	switch t.kind {
	case tokenNumber:
		v, err := strconv.ParseFloat(t.text, 64)
		if err != nil {
			return nil, fmt.Errorf("%w: malformed number %q at position %d", ErrSyntax, t.text, t.pos)
		}
		return NumberNode{Value: v}, nil
	case tokenString:
		return StringNode{Value: t.text}, nil
	case tokenIdent:
		if p.peek().kind == tokenLeftParen {
			p.next()
			return p.parseCall(t)
		}
		return VarNode{Name: t.text}, nil
	case tokenLeftParen:
		inner, err := p.parseAdditive()
		if err != nil {
			return nil, err
		}
		if p.peek().kind != tokenRightParen {
			return nil, fmt.Errorf("%w: missing ')' at position %d", ErrSyntax, p.peek().pos)
		}
		p.next()
		return inner, nil
	default:
		return nil, fmt.Errorf("%w: unexpected %s at position %d", ErrSyntax, t.kind, t.pos)
	}
}

func (p *parser) parseCall(name token) (Node, error) {
	call := CallNode{Name: name.text}
	if p.peek().kind == tokenRightParen {
		p.next()
		return call, nil
	}
	for {
		arg, err := p.parseAdditive()
		if err != nil {
			return nil, err
		}
		call.Args = append(call.Args, arg)
		switch p.peek().kind {
		case tokenComma:
			p.next()
		case tokenRightParen:
			p.next()
			return call, nil
		default:
			return nil, fmt.Errorf("%w: missing ')' in call to %s at position %d", ErrSyntax, name.text, p.peek().pos)
		}
	}
}

// Variables returns the names of all variables referenced anywhere in the
// tree, in first-appearance order without duplicates. The static validator
// and the code generator both use this to reason about data flow.
func Variables(n Node) []string {
	var names []string
	seen := map[string]bool{}
	walkVariables(n, seen, &names)
	return names
}

func walkVariables(n Node, seen map[string]bool, names *[]string) {
	switch t := n.(type) {
	case VarNode:
		if !seen[t.Name] {
			seen[t.Name] = true
			*names = append(*names, t.Name)
		}
	case UnaryNode:
		walkVariables(t.Operand, seen, names)
	case BinaryNode:
		walkVariables(t.Left, seen, names)
		walkVariables(t.Right, seen, names)
	case CallNode:
		for _, a := range t.Args {
			walkVariables(a, seen, names)
		}
	}
}
