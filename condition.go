package ruleflow

import (
	"fmt"
	"reflect"
	"strconv"
	"strings"

	"github.com/Jedsadha1777/RuleFlow-sub002/expr"
)

// evalCondition evaluates a condition tree against the context and returns
// whether it matched. subject is the enclosing construct's subject value
// (the switch variable or the scoring rule's variable); a leaf with an
// empty Var tests it directly.
//
// Missing-variable policy: a leaf whose subject variable is not bound
// evaluates to false rather than erroring, so conditions can probe optional
// inputs. A "$"-prefixed comparison value that is not bound is always a
// hard error. This asymmetry is deliberate; expression evaluation stays
// strict.
func evalCondition(c *Condition, subject any, hasSubject bool, ctx map[string]any, funcs expr.Functions) (bool, error) {
	switch {
	case len(c.And) > 0:
		for _, child := range c.And {
			ok, err := evalCondition(child, subject, hasSubject, ctx, funcs)
			if err != nil {
				return false, err
			}
			if !ok {
				return false, nil
			}
		}
		return true, nil
	case len(c.Or) > 0:
		for _, child := range c.Or {
			ok, err := evalCondition(child, subject, hasSubject, ctx, funcs)
			if err != nil {
				return false, err
			}
			if ok {
				return true, nil
			}
		}
		return false, nil
	case c.Op != "":
		return evalLeaf(c, subject, hasSubject, ctx, funcs)
	default:
		return false, fmt.Errorf("%w: condition is neither a predicate nor an and/or composite", ErrInvalidConfiguration)
	}
}

func evalLeaf(c *Condition, subject any, hasSubject bool, ctx map[string]any, funcs expr.Functions) (bool, error) {
	left := subject
	if c.Var != "" {
		v, ok := ctx[CanonicalName(c.Var)]
		if !ok {
			// Missing subject: the predicate simply does not match.
			return false, nil
		}
		left = v
	} else if !hasSubject {
		return false, fmt.Errorf("%w: condition has no variable and no enclosing subject", ErrInvalidConfiguration)
	}

	if c.Op == "function" {
		return evalFunctionPredicate(c, left, ctx, funcs)
	}

	right, err := resolveConditionValue(c.Value, ctx)
	if err != nil {
		return false, err
	}

	switch c.Op {
	case "==":
		return equalValues(left, right), nil
	case "!=":
		return !equalValues(left, right), nil
	case ">", ">=", "<", "<=":
		cmp, ok := compareValues(left, right)
		if !ok {
			return false, nil
		}
		switch c.Op {
		case ">":
			return cmp > 0, nil
		case ">=":
			return cmp >= 0, nil
		case "<":
			return cmp < 0, nil
		default:
			return cmp <= 0, nil
		}
	case "between":
		pair, ok := asPair(right)
		if !ok {
			return false, fmt.Errorf("%w: between requires a [low, high] pair, got %T", ErrInvalidOperatorUsage, c.Value)
		}
		v, ok := expr.Number(left)
		if !ok {
			return false, nil
		}
		return v >= pair[0] && v <= pair[1], nil
	case "in", "not_in":
		coll, ok := asCollection(right)
		if !ok {
			return false, fmt.Errorf("%w: %s requires a collection, got %T", ErrInvalidOperatorUsage, c.Op, c.Value)
		}
		found := false
		for _, item := range coll {
			if equalValues(left, item) {
				found = true
				break
			}
		}
		if c.Op == "in" {
			return found, nil
		}
		return !found, nil
	case "contains":
		return strings.Contains(stringValue(left), stringValue(right)), nil
	case "starts_with":
		return strings.HasPrefix(stringValue(left), stringValue(right)), nil
	case "ends_with":
		return strings.HasSuffix(stringValue(left), stringValue(right)), nil
	default:
		return false, fmt.Errorf("%w: unknown operator %q", ErrInvalidConfiguration, c.Op)
	}
}

func evalFunctionPredicate(c *Condition, subject any, ctx map[string]any, funcs expr.Functions) (bool, error) {
	args := make([]any, 0, len(c.Params)+1)
	args = append(args, subject)
	for _, p := range c.Params {
		if name, ok := Reference(p); ok {
			v, bound := ctx[name]
			if !bound {
				return false, fmt.Errorf("%w: %s", ErrConditionVariableNotFound, name)
			}
			args = append(args, v)
			continue
		}
		args = append(args, p)
	}
	result, err := funcs.Call(c.Function, args)
	if err != nil {
		return false, err
	}
	return truthy(result), nil
}

// resolveConditionValue looks up a "$"-prefixed comparison value in the
// context. A missing reference is fatal, unlike a missing subject.
func resolveConditionValue(v any, ctx map[string]any) (any, error) {
	name, ok := Reference(v)
	if !ok {
		return v, nil
	}
	resolved, bound := ctx[name]
	if !bound {
		return nil, fmt.Errorf("%w: %s", ErrConditionVariableNotFound, name)
	}
	return resolved, nil
}

// equalValues compares by value: numbers numerically regardless of Go
// kind, everything else with deep equality.
func equalValues(a, b any) bool {
	an, aok := expr.Number(a)
	bn, bok := expr.Number(b)
	if aok && bok {
		return an == bn
	}
	if aok != bok {
		return false
	}
	return reflect.DeepEqual(a, b)
}

// compareValues orders two values: numerically when both are numeric,
// lexically when both are strings. Mixed shapes are not comparable and the
// predicate evaluates false.
func compareValues(a, b any) (int, bool) {
	an, aok := expr.Number(a)
	bn, bok := expr.Number(b)
	if aok && bok {
		switch {
		case an < bn:
			return -1, true
		case an > bn:
			return 1, true
		default:
			return 0, true
		}
	}
	as, aok := a.(string)
	bs, bok := b.(string)
	if aok && bok {
		return strings.Compare(as, bs), true
	}
	return 0, false
}

func asPair(v any) ([2]float64, bool) {
	switch p := v.(type) {
	case []any:
		if len(p) != 2 {
			return [2]float64{}, false
		}
		lo, ok1 := expr.Number(p[0])
		hi, ok2 := expr.Number(p[1])
		if !ok1 || !ok2 {
			return [2]float64{}, false
		}
		return [2]float64{lo, hi}, true
	case []float64:
		if len(p) != 2 {
			return [2]float64{}, false
		}
		return [2]float64{p[0], p[1]}, true
	default:
		return [2]float64{}, false
	}
}

func asCollection(v any) ([]any, bool) {
	switch c := v.(type) {
	case []any:
		return c, true
	case []string:
		out := make([]any, len(c))
		for i, s := range c {
			out[i] = s
		}
		return out, true
	case []float64:
		out := make([]any, len(c))
		for i, f := range c {
			out[i] = f
		}
		return out, true
	default:
		return nil, false
	}
}

// stringValue renders a value for the string operators. Floats that are
// whole numbers print without a fractional part, so a numeric input and
// its string form compare consistently.
func stringValue(v any) string {
	if f, ok := expr.Number(v); ok {
		return strconv.FormatFloat(f, 'f', -1, 64)
	}
	if s, ok := v.(string); ok {
		return s
	}
	return fmt.Sprintf("%v", v)
}

func truthy(v any) bool {
	switch t := v.(type) {
	case bool:
		return t
	case string:
		return t != ""
	case nil:
		return false
	default:
		if f, ok := expr.Number(v); ok {
			return f != 0
		}
		return true
	}
}
