package codegen

import (
	"fmt"
	"sort"
	"strconv"
	"strings"

	"github.com/pkg/errors"

	ruleflow "github.com/Jedsadha1777/RuleFlow-sub002"
	"github.com/Jedsadha1777/RuleFlow-sub002/expr"
)

func (g *generator) emitExpression(i int, f *ruleflow.Formula) error {
	ast, err := expr.Parse(f.Formula)
	if err != nil {
		return err
	}

	goName := fmt.Sprintf("v%d", i)
	numeric := true
	var rhs string
	switch n := ast.(type) {
	case expr.VarNode:
		// A bare variable passes its value through unchanged, whatever
		// its type.
		rhs = g.anyRead(n.Name)
		numeric = false
	case expr.StringNode:
		rhs = strconv.Quote(n.Value)
		numeric = false
	default:
		rhs = g.exprGo(ast)
	}

	g.linef(1, "%s := %s", goName, rhs)
	g.linef(1, "out[%q] = %s", f.ID, goName)
	g.locals[f.ID] = local{goName: goName, numeric: numeric}
	if f.As != "" {
		alias := ruleflow.CanonicalName(f.As)
		g.linef(1, "out[%q] = %s", alias, goName)
		g.locals[alias] = local{goName: goName, numeric: numeric}
	}
	return nil
}

func (g *generator) emitSwitch(i int, f *ruleflow.Formula) error {
	subject := ruleflow.CanonicalName(f.Switch)

	for j, w := range f.When {
		cond, err := g.condGo(w.If, subject)
		if err != nil {
			return err
		}
		if j == 0 {
			g.linef(1, "if %s {", cond)
		} else {
			g.linef(1, "} else if %s {", cond)
		}
		if err := g.emitResult(2, f.ID, w.Result); err != nil {
			return err
		}
		if err := g.emitVars(2, w.SetVars); err != nil {
			return err
		}
	}

	if len(f.When) > 0 {
		g.linef(1, "} else {")
		if err := g.emitResult(2, f.ID, f.Default); err != nil {
			return err
		}
		if err := g.emitVars(2, f.DefaultVars); err != nil {
			return err
		}
		g.linef(1, "}")
	} else {
		if err := g.emitResult(1, f.ID, f.Default); err != nil {
			return err
		}
		if err := g.emitVars(1, f.DefaultVars); err != nil {
			return err
		}
	}

	if f.As != "" {
		g.linef(1, "out[%q] = out[%q]", ruleflow.CanonicalName(f.As), f.ID)
	}
	return nil
}

func (g *generator) emitRules(i int, f *ruleflow.Formula) error {
	acc := fmt.Sprintf("score%d", i)
	g.linef(1, "%s := 0.0", acc)

	for _, r := range f.Rules {
		subject := ruleflow.CanonicalName(r.Var)
		weight := r.Weight
		if weight == 0 {
			weight = 1
		}

		if len(r.Ranges) > 0 {
			for j, rn := range r.Ranges {
				cond, err := g.condGo(rn.If, subject)
				if err != nil {
					return err
				}
				if j == 0 {
					g.linef(1, "if %s {", cond)
				} else {
					g.linef(1, "} else if %s {", cond)
				}
				g.linef(2, "%s += %s", acc, floatLit(rn.Score*weight))
				g.emitExtras(2, f.ID, rn.Extra)
				if err := g.emitVars(2, rn.SetVars); err != nil {
					return err
				}
			}
			g.linef(1, "}")
			continue
		}

		cond, err := g.condGo(r.If, subject)
		if err != nil {
			return err
		}
		g.linef(1, "if %s {", cond)
		g.linef(2, "%s += %s", acc, floatLit(r.Score*weight))
		if err := g.emitVars(2, r.SetVars); err != nil {
			return err
		}
		g.linef(1, "}")
	}

	g.linef(1, "out[%q] = %s", f.ID, acc)
	g.locals[f.ID] = local{goName: acc, numeric: true}
	if f.As != "" {
		alias := ruleflow.CanonicalName(f.As)
		g.linef(1, "out[%q] = %s", alias, acc)
		g.locals[alias] = local{goName: acc, numeric: true}
	}
	return nil
}

func (g *generator) emitScoring(i int, f *ruleflow.Formula) error {
	ifs := f.Scoring.Ifs
	if ifs == nil || len(ifs.Vars) != 2 {
		return errors.Wrap(ruleflow.ErrInvalidConfiguration, "scoring requires ifs with exactly two vars")
	}
	outerVar := ruleflow.CanonicalName(ifs.Vars[0])
	innerVar := ruleflow.CanonicalName(ifs.Vars[1])
	matched := fmt.Sprintf("matched%d", i)
	g.linef(1, "%s := false", matched)

	for j, tn := range ifs.Tree {
		cond, err := g.condGo(tn.If, outerVar)
		if err != nil {
			return err
		}
		if j == 0 {
			g.linef(1, "if %s {", cond)
		} else {
			g.linef(1, "} else if %s {", cond)
		}
		for k, rn := range tn.Ranges {
			inner, err := g.condGo(rn.If, innerVar)
			if err != nil {
				return err
			}
			if k == 0 {
				g.linef(2, "if %s {", inner)
			} else {
				g.linef(2, "} else if %s {", inner)
			}
			g.linef(3, "out[%q] = %s", f.ID, floatLit(rn.Score))
			g.emitExtras(3, f.ID, rn.Extra)
			if err := g.emitVars(3, rn.SetVars); err != nil {
				return err
			}
			g.linef(3, "%s = true", matched)
		}
		if len(tn.Ranges) > 0 {
			g.linef(2, "}")
		}
	}
	if len(ifs.Tree) > 0 {
		g.linef(1, "}")
	}

	g.linef(1, "if !%s {", matched)
	g.linef(2, "out[%q] = 0.0", f.ID)
	g.linef(1, "}")
	if f.As != "" {
		g.linef(1, "out[%q] = out[%q]", ruleflow.CanonicalName(f.As), f.ID)
	}
	return nil
}

// emitResult assigns a when-clause result or switch default: a function
// call descriptor becomes an ordinary call, a "$"-reference a context read,
// anything else a literal.
func (g *generator) emitResult(indent int, id string, v any) error {
	if fc, ok := ruleflow.AsFunctionCall(v); ok {
		args := make([]string, 0, len(fc.Params))
		for _, p := range fc.Params {
			if name, isRef := ruleflow.Reference(p); isRef {
				args = append(args, g.anyRead(name))
				continue
			}
			lit, err := literalGo(p)
			if err != nil {
				return err
			}
			args = append(args, lit)
		}
		g.linef(indent, "out[%q] = %s(%s)", id, goFuncName(fc.Function), strings.Join(args, ", "))
		return nil
	}
	if name, ok := ruleflow.Reference(v); ok {
		g.linef(indent, "out[%q] = %s", id, g.anyRead(name))
		return nil
	}
	lit, err := literalGo(v)
	if err != nil {
		return err
	}
	g.linef(indent, "out[%q] = %s", id, lit)
	return nil
}

// emitVars emits a set_vars / default_vars clause in sorted key order.
func (g *generator) emitVars(indent int, vars map[string]any) error {
	if len(vars) == 0 {
		return nil
	}
	keys := make([]string, 0, len(vars))
	for k := range vars {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	for _, k := range keys {
		name := ruleflow.CanonicalName(k)
		v := vars[k]
		if s, ok := v.(string); ok {
			if ref, isRef := ruleflow.Reference(s); isRef && isIdent(ref) {
				g.linef(indent, "out[%q] = %s", name, g.anyRead(ref))
				continue
			}
			if strings.Contains(s, "$") {
				ast, err := expr.Parse(s)
				if err != nil {
					return err
				}
				g.linef(indent, "out[%q] = %s", name, g.exprGo(ast))
				continue
			}
		}
		lit, err := literalGo(v)
		if err != nil {
			return err
		}
		g.linef(indent, "out[%q] = %s", name, lit)
	}
	return nil
}

func (g *generator) emitExtras(indent int, id string, extra map[string]any) {
	if len(extra) == 0 {
		return
	}
	keys := make([]string, 0, len(extra))
	for k := range extra {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		lit, err := literalGo(extra[k])
		if err != nil {
			// Extra properties come from JSON, so every value is
			// representable; fall back to a nil binding if not.
			lit = "nil"
		}
		g.linef(indent, "out[%q] = %s", id+"_"+k, lit)
	}
}

// anyRead is a context read yielding any; aliased formula outputs read
// their Go local instead of the map.
func (g *generator) anyRead(name string) string {
	name = ruleflow.CanonicalName(name)
	if l, ok := g.locals[name]; ok {
		return l.goName
	}
	return fmt.Sprintf("out[%q]", name)
}

// numRead is a context read coerced to float64, for expression positions
// where the interpreter coerces too.
func (g *generator) numRead(name string) string {
	name = ruleflow.CanonicalName(name)
	if l, ok := g.locals[name]; ok && l.numeric {
		return l.goName
	}
	g.need("num")
	return fmt.Sprintf("num(%s)", g.anyRead(name))
}

// exprGo translates an expression AST into a float64-valued Go expression,
// mirroring the interpreter's precedence exactly.
func (g *generator) exprGo(n expr.Node) string {
	switch t := n.(type) {
	case expr.NumberNode:
		return floatLit(t.Value)
	case expr.StringNode:
		return strconv.Quote(t.Value)
	case expr.VarNode:
		return g.numRead(t.Name)
	case expr.UnaryNode:
		return "-(" + g.exprGo(t.Operand) + ")"
	case expr.BinaryNode:
		if t.Op == "**" {
			g.needMath = true
			return fmt.Sprintf("math.Pow(%s, %s)", g.exprGo(t.Left), g.exprGo(t.Right))
		}
		return fmt.Sprintf("(%s %s %s)", g.exprGo(t.Left), t.Op, g.exprGo(t.Right))
	case expr.CallNode:
		return g.callGo(t)
	default:
		return "0.0"
	}
}

// mathIntrinsics maps single-argument builtins straight to the math
// package.
var mathIntrinsics = map[string]string{
	"abs":   "math.Abs",
	"sqrt":  "math.Sqrt",
	"floor": "math.Floor",
	"ceil":  "math.Ceil",
	"log":   "math.Log",
	"exp":   "math.Exp",
}

func (g *generator) callGo(c expr.CallNode) string {
	args := make([]string, len(c.Args))
	for i, a := range c.Args {
		args[i] = g.exprGo(a)
	}

	if fn, ok := mathIntrinsics[c.Name]; ok && len(args) == 1 {
		g.needMath = true
		return fmt.Sprintf("%s(%s)", fn, args[0])
	}
	switch c.Name {
	case "pow":
		if len(args) == 2 {
			g.needMath = true
			return fmt.Sprintf("math.Pow(%s, %s)", args[0], args[1])
		}
	case "round":
		g.needMath = true
		if len(args) == 1 {
			return fmt.Sprintf("math.Round(%s)", args[0])
		}
		if len(args) == 2 {
			return fmt.Sprintf("(math.Round((%s)*math.Pow(10, %s)) / math.Pow(10, %s))", args[0], args[1], args[1])
		}
	case "min", "max":
		if len(args) >= 1 {
			g.needMath = true
			fn := "math.Min"
			if c.Name == "max" {
				fn = "math.Max"
			}
			acc := args[len(args)-1]
			for i := len(args) - 2; i >= 0; i-- {
				acc = fmt.Sprintf("%s(%s, %s)", fn, args[i], acc)
			}
			return acc
		}
	case "sum":
		if len(args) > 0 {
			return "(" + strings.Join(args, " + ") + ")"
		}
		return "0.0"
	case "avg":
		if len(args) > 0 {
			return fmt.Sprintf("((%s) / %s)", strings.Join(args, " + "), floatLit(float64(len(args))))
		}
		return "0.0"
	case "count":
		return floatLit(float64(len(args)))
	case "clamp":
		if len(args) == 3 {
			g.needMath = true
			return fmt.Sprintf("math.Min(math.Max(%s, %s), %s)", args[0], args[1], args[2])
		}
	}
	return fmt.Sprintf("%s(%s)", goFuncName(c.Name), strings.Join(args, ", "))
}

// condGo translates a condition tree into a bool-valued Go expression.
// subject is the canonical name of the enclosing construct's variable; a
// leaf with its own var reads that instead.
func (g *generator) condGo(c *ruleflow.Condition, subject string) (string, error) {
	if c == nil {
		return "", errors.Wrap(ruleflow.ErrInvalidConfiguration, "missing condition")
	}
	if len(c.And) > 0 {
		parts := make([]string, len(c.And))
		for i, child := range c.And {
			p, err := g.condGo(child, subject)
			if err != nil {
				return "", err
			}
			parts[i] = p
		}
		return "(" + strings.Join(parts, " && ") + ")", nil
	}
	if len(c.Or) > 0 {
		parts := make([]string, len(c.Or))
		for i, child := range c.Or {
			p, err := g.condGo(child, subject)
			if err != nil {
				return "", err
			}
			parts[i] = p
		}
		return "(" + strings.Join(parts, " || ") + ")", nil
	}
	return g.leafGo(c, subject)
}

// leafGo lowers a single predicate leaf. The lowering keeps the
// interpreter's leniency rules: a leaf naming its own variable evaluates
// false when that variable is unbound, and a comparison whose operand kinds
// do not line up evaluates false instead of coercing. Leaves testing the
// enclosing construct's subject see the subject's value as-is, absent or
// not, exactly as the interpreter does.
func (g *generator) leafGo(c *ruleflow.Condition, subject string) (string, error) {
	explicit := c.Var != ""
	varName := subject
	if explicit {
		varName = ruleflow.CanonicalName(c.Var)
	}
	left := g.anyRead(varName)

	if c.Op == "function" {
		args := make([]string, 0, len(c.Params))
		for _, p := range c.Params {
			if name, ok := ruleflow.Reference(p); ok {
				args = append(args, g.anyRead(name))
				continue
			}
			lit, err := literalGo(p)
			if err != nil {
				return "", err
			}
			args = append(args, lit)
		}
		rest := ""
		if len(args) > 0 {
			rest = ", " + strings.Join(args, ", ")
		}
		if explicit {
			return fmt.Sprintf("func() bool { v, ok := out[%q]; return ok && %s(v%s) }()",
				varName, goFuncName(c.Function), rest), nil
		}
		return fmt.Sprintf("%s(%s%s)", goFuncName(c.Function), left, rest), nil
	}

	refName, isRef := ruleflow.Reference(c.Value)

	switch c.Op {
	case "==", "!=":
		want := c.Op == "=="
		val, err := g.anyValue(c.Value)
		if err != nil {
			return "", err
		}
		if explicit {
			g.need("eqK")
			return fmt.Sprintf("eqK(out, %q, %s, %t)", varName, val, want), nil
		}
		g.need("eq")
		e := fmt.Sprintf("eq(%s, %s)", left, val)
		if !want {
			e = "!" + e
		}
		return e, nil

	case ">", ">=", "<", "<=":
		if isRef {
			g.need("cmpOrd")
			return fmt.Sprintf("cmpOrd(%s, %s, %q)", left, g.anyRead(refName), c.Op), nil
		}
		if s, ok := c.Value.(string); ok {
			g.need("ordStr")
			return fmt.Sprintf("ordStr(%s, %q, %s)", left, c.Op, strconv.Quote(s)), nil
		}
		f, ok := expr.Number(c.Value)
		if !ok {
			return "", errors.Wrapf(ruleflow.ErrInvalidOperatorUsage, "ordering comparison against %T", c.Value)
		}
		g.need("ordNum")
		return fmt.Sprintf("ordNum(%s, %q, %s)", left, c.Op, floatLit(f)), nil

	case "between":
		if isRef {
			g.need("btwRef")
			return fmt.Sprintf("btwRef(%s, %s)", left, g.anyRead(refName)), nil
		}
		pair, ok := asFloatPair(c.Value)
		if !ok {
			return "", errors.Wrapf(ruleflow.ErrInvalidOperatorUsage, "between requires a [low, high] pair, got %T", c.Value)
		}
		g.need("btw")
		return fmt.Sprintf("btw(%s, %s, %s)", left, floatLit(pair[0]), floatLit(pair[1])), nil

	case "in", "not_in":
		want := c.Op == "in"
		if isRef {
			if explicit {
				g.need("inRefK")
				return fmt.Sprintf("inRefK(out, %q, %s, %t)", varName, g.anyRead(refName), want), nil
			}
			g.need("inRef")
			e := fmt.Sprintf("inRef(%s, %s)", left, g.anyRead(refName))
			if !want {
				e = "!" + e
			}
			return e, nil
		}
		items, ok := asAnySlice(c.Value)
		if !ok {
			return "", errors.Wrapf(ruleflow.ErrInvalidOperatorUsage, "%s requires a collection, got %T", c.Op, c.Value)
		}
		lits := make([]string, len(items))
		for i, item := range items {
			lit, err := literalGo(item)
			if err != nil {
				return "", err
			}
			lits[i] = lit
		}
		if explicit {
			g.need("inK")
			rest := ""
			if len(lits) > 0 {
				rest = ", " + strings.Join(lits, ", ")
			}
			return fmt.Sprintf("inK(out, %q, %t%s)", varName, want, rest), nil
		}
		g.need("eq")
		parts := make([]string, len(lits))
		for i, lit := range lits {
			parts[i] = fmt.Sprintf("eq(%s, %s)", left, lit)
		}
		e := "(" + strings.Join(parts, " || ") + ")"
		if len(parts) == 0 {
			e = "false"
		}
		if !want {
			e = "!" + e
		}
		return e, nil

	case "contains", "starts_with", "ends_with":
		g.needStrings = true
		fn := map[string]string{
			"contains":    "strings.Contains",
			"starts_with": "strings.HasPrefix",
			"ends_with":   "strings.HasSuffix",
		}[c.Op]
		var val string
		if isRef {
			g.need("str")
			val = fmt.Sprintf("str(%s)", g.anyRead(refName))
		} else if s, ok := c.Value.(string); ok {
			val = strconv.Quote(s)
		} else {
			g.need("str")
			lit, err := literalGo(c.Value)
			if err != nil {
				return "", err
			}
			val = fmt.Sprintf("str(%s)", lit)
		}
		if explicit {
			g.need("strOpK")
			return fmt.Sprintf("strOpK(out, %q, %s, %s)", varName, fn, val), nil
		}
		g.need("str")
		return fmt.Sprintf("%s(str(%s), %s)", fn, left, val), nil

	default:
		return "", errors.Wrapf(ruleflow.ErrInvalidConfiguration, "unknown operator %q", c.Op)
	}
}

// anyValue renders a comparison operand as an any-typed Go expression.
func (g *generator) anyValue(v any) (string, error) {
	if name, ok := ruleflow.Reference(v); ok {
		return g.anyRead(name), nil
	}
	return literalGo(v)
}

// literalGo renders a JSON-shaped value as a Go literal. Numbers become
// float64 so generated comparisons match the interpreter's coercion.
func literalGo(v any) (string, error) {
	switch t := v.(type) {
	case nil:
		return "nil", nil
	case string:
		return strconv.Quote(t), nil
	case bool:
		return strconv.FormatBool(t), nil
	case []any:
		parts := make([]string, len(t))
		for i, item := range t {
			p, err := literalGo(item)
			if err != nil {
				return "", err
			}
			parts[i] = p
		}
		return "[]any{" + strings.Join(parts, ", ") + "}", nil
	case map[string]any:
		keys := make([]string, 0, len(t))
		for k := range t {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		parts := make([]string, len(keys))
		for i, k := range keys {
			p, err := literalGo(t[k])
			if err != nil {
				return "", err
			}
			parts[i] = fmt.Sprintf("%q: %s", k, p)
		}
		return "map[string]any{" + strings.Join(parts, ", ") + "}", nil
	default:
		if f, ok := expr.Number(v); ok {
			return floatLit(f), nil
		}
		return "", errors.Wrapf(ruleflow.ErrInvalidConfiguration, "value %T has no Go literal form", v)
	}
}

// floatLit formats a float64 as a Go literal that stays a float64, so
// constant folding in the generated code matches interpreted results.
func floatLit(f float64) string {
	s := strconv.FormatFloat(f, 'g', -1, 64)
	if !strings.ContainsAny(s, ".eE") {
		s += ".0"
	}
	return s
}

func asFloatPair(v any) ([2]float64, bool) {
	items, ok := asAnySlice(v)
	if !ok || len(items) != 2 {
		return [2]float64{}, false
	}
	lo, ok1 := expr.Number(items[0])
	hi, ok2 := expr.Number(items[1])
	if !ok1 || !ok2 {
		return [2]float64{}, false
	}
	return [2]float64{lo, hi}, true
}

func asAnySlice(v any) ([]any, bool) {
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

// goFuncName converts a snake_case function name into the lowerCamel Go
// identifier the enclosing package is expected to provide.
func goFuncName(name string) string {
	parts := strings.Split(name, "_")
	var b strings.Builder
	for i, p := range parts {
		if p == "" {
			continue
		}
		if i == 0 {
			b.WriteString(p)
			continue
		}
		b.WriteString(strings.ToUpper(p[:1]))
		b.WriteString(p[1:])
	}
	return b.String()
}

func isIdent(s string) bool {
	if s == "" {
		return false
	}
	for i, c := range s {
		ok := c >= 'a' && c <= 'z' || c >= 'A' && c <= 'Z' || c == '_' || (i > 0 && c >= '0' && c <= '9')
		if !ok {
			return false
		}
	}
	return true
}
