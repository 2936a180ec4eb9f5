package expr

import (
	"errors"
	"fmt"
	"math"
)

// Errors returned by parsing and evaluation. Test with errors.Is; the
// wrapped message names the offending token, variable or value.
var (
	// ErrSyntax is returned by Parse when the expression text is
	// malformed: unbalanced parentheses, a dangling operator, or trailing
	// tokens that cannot be consumed.
	ErrSyntax = errors.New("syntax error")

	// ErrUnresolvedVariable is returned by Eval when an identifier is not
	// bound in the variable map. Evaluation never defaults a missing
	// variable to zero.
	ErrUnresolvedVariable = errors.New("unresolved variable")

	// ErrDivisionByZero is returned by Eval when a divisor evaluates to
	// exactly zero. Eval never produces Inf or NaN from a division.
	ErrDivisionByZero = errors.New("division by zero")
)

// Functions dispatches named function calls. The registry package provides
// the standard implementation; Eval only needs this one method.
type Functions interface {
	Call(name string, args []any) (any, error)
}

// Eval evaluates a parsed expression against the variable map. Arithmetic
// is performed in float64; a bare variable reference passes its bound value
// through unchanged, so string-valued variables survive evaluation. funcs
// may be nil if the expression contains no function calls.
func Eval(n Node, vars map[string]any, funcs Functions) (any, error) {
	switch t := n.(type) {
	case NumberNode:
		return t.Value, nil
	case StringNode:
		return t.Value, nil
	case VarNode:
		v, ok := vars[t.Name]
		if !ok {
			return nil, fmt.Errorf("%w: %s", ErrUnresolvedVariable, t.Name)
		}
		return v, nil
	case UnaryNode:
		v, err := Eval(t.Operand, vars, funcs)
		if err != nil {
			return nil, err
		}
		f, ok := Number(v)
		if !ok {
			return nil, fmt.Errorf("unary %q requires a numeric operand, got %T", t.Op, v)
		}
		return -f, nil
	case BinaryNode:
		return evalBinary(t, vars, funcs)
	case CallNode:
		if funcs == nil {
			return nil, fmt.Errorf("no function registry available for call to %s", t.Name)
		}
		args := make([]any, len(t.Args))
		for i, a := range t.Args {
			v, err := Eval(a, vars, funcs)
			if err != nil {
				return nil, err
			}
			args[i] = v
		}
		return funcs.Call(t.Name, args)
	default:
		return nil, fmt.Errorf("unknown node type %T", n)
	}
}

// EvalString parses and evaluates in one step. Callers that evaluate the
// same expression repeatedly should Parse once and Eval the cached tree.
func EvalString(input string, vars map[string]any, funcs Functions) (any, error) {
	n, err := Parse(input)
	if err != nil {
		return nil, err
	}
	return Eval(n, vars, funcs)
}

func evalBinary(b BinaryNode, vars map[string]any, funcs Functions) (any, error) {
	lv, err := Eval(b.Left, vars, funcs)
	if err != nil {
		return nil, err
	}
	rv, err := Eval(b.Right, vars, funcs)
	if err != nil {
		return nil, err
	}
	l, lok := Number(lv)
	r, rok := Number(rv)
	if !lok || !rok {
		return nil, fmt.Errorf("operator %q requires numeric operands, got %T and %T", b.Op, lv, rv)
	}
	switch b.Op {
	case "+":
		return l + r, nil
	case "-":
		return l - r, nil
	case "*":
		return l * r, nil
	case "/":
		if r == 0 {
			return nil, fmt.Errorf("%w: %v / 0", ErrDivisionByZero, l)
		}
		return l / r, nil
	case "**":
		return math.Pow(l, r), nil
	default:
		return nil, fmt.Errorf("unknown operator %q", b.Op)
	}
}

// Number reports v as a float64 if it holds any numeric Go type. Values
// decoded from JSON arrive as float64; values constructed in Go may be any
// integer or float kind.
func Number(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int8:
		return float64(n), true
	case int16:
		return float64(n), true
	case int32:
		return float64(n), true
	case int64:
		return float64(n), true
	case uint:
		return float64(n), true
	case uint8:
		return float64(n), true
	case uint16:
		return float64(n), true
	case uint32:
		return float64(n), true
	case uint64:
		return float64(n), true
	default:
		return 0, false
	}
}
