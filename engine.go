package ruleflow

import (
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/Jedsadha1777/RuleFlow-sub002/expr"
	"github.com/Jedsadha1777/RuleFlow-sub002/registry"
)

// Engine evaluates specifications. An Engine is safe for concurrent use;
// each Evaluate call threads its own context.
type Engine struct {
	funcs expr.Functions

	// Parsed expression cache, keyed by source text. Expressions inside a
	// spec are evaluated on every call but parsed only once.
	mu   sync.RWMutex
	asts map[string]expr.Node
}

// EngineOptions configure a new Engine. See the functional options below.
type EngineOptions struct {
	Functions expr.Functions
}

type EngineOption func(o *EngineOptions)

// WithFunctions replaces the default function registry. Use this to supply
// a registry carrying custom registered functions.
func WithFunctions(f expr.Functions) EngineOption {
	return func(o *EngineOptions) {
		o.Functions = f
	}
}

// NewEngine initializes an engine. Without options it uses a fresh registry
// preloaded with the builtin function catalog.
func NewEngine(opts ...EngineOption) *Engine {
	o := EngineOptions{}
	for _, opt := range opts {
		opt(&o)
	}
	if o.Functions == nil {
		o.Functions = registry.New()
	}
	return &Engine{
		funcs: o.Functions,
		asts:  make(map[string]expr.Node),
	}
}

// Evaluate runs every formula in declaration order against the inputs and
// returns the resulting context: the inputs, each formula's output under
// its ID and alias, and any set_vars or extra-property bindings.
//
// Before any formula runs, every expression formula's declared inputs are
// checked for presence; a missing one fails with ErrMissingInput.
func (e *Engine) Evaluate(spec *Spec, inputs map[string]any) (map[string]any, error) {
	return e.evaluate(spec, inputs, nil)
}

// EvaluateTraced is Evaluate plus a step-by-step trace of the pipeline,
// for debugging and the CLI. The trace records one step per input and per
// formula, including which branch matched.
func (e *Engine) EvaluateTraced(spec *Spec, inputs map[string]any) (map[string]any, *Trace, error) {
	t := &Trace{}
	result, err := e.evaluate(spec, inputs, t)
	if err != nil {
		return nil, t, err
	}
	return result, t, nil
}

func (e *Engine) evaluate(spec *Spec, inputs map[string]any, trace *Trace) (map[string]any, error) {
	if spec == nil || len(spec.Formulas) == 0 {
		return nil, fmt.Errorf("%w: spec has no formulas", ErrInvalidConfiguration)
	}

	if err := checkInputs(spec, inputs); err != nil {
		return nil, err
	}

	ctx := make(map[string]any, len(inputs)+len(spec.Formulas))
	for k, v := range inputs {
		ctx[k] = v
	}

	if trace != nil {
		for _, k := range SortedKeys(inputs) {
			trace.add(TraceStep{Name: k, Value: inputs[k], Source: Input})
		}
	}

	for _, f := range spec.Formulas {
		var err error
		switch f.kind() {
		case kindExpression:
			err = e.evalExpression(f, ctx, trace)
		case kindSwitch:
			err = e.evalSwitch(f, ctx, trace)
		case kindRules:
			err = e.evalRules(f, ctx, trace)
		case kindScoring:
			err = e.evalScoring(f, ctx, trace)
		default:
			err = fmt.Errorf("%w: formula %s has no recognizable shape", ErrInvalidConfiguration, f.ID)
		}
		if err != nil {
			return nil, fmt.Errorf("formula %s: %w", f.ID, err)
		}
	}
	return ctx, nil
}

// checkInputs is the pre-flight input-completeness pass: every formula's
// declared inputs must be satisfiable from the caller's inputs or from a
// formula declared earlier.
func checkInputs(spec *Spec, inputs map[string]any) error {
	known := make(map[string]bool, len(inputs))
	for k := range inputs {
		known[k] = true
	}
	for _, f := range spec.Formulas {
		for _, in := range f.Inputs {
			if !known[CanonicalName(in)] {
				return fmt.Errorf("%w: %s (required by formula %s)", ErrMissingInput, CanonicalName(in), f.ID)
			}
		}
		bindProducedNames(f, known)
	}
	return nil
}

// bindProducedNames marks every name the formula can bind: its ID, its
// alias, and any set_vars / default_vars keys on any branch.
func bindProducedNames(f *Formula, known map[string]bool) {
	known[f.ID] = true
	if f.As != "" {
		known[CanonicalName(f.As)] = true
	}
	markVars := func(vars map[string]any) {
		for k := range vars {
			known[CanonicalName(k)] = true
		}
	}
	for _, w := range f.When {
		markVars(w.SetVars)
	}
	markVars(f.DefaultVars)
	for _, r := range f.Rules {
		markVars(r.SetVars)
		for _, rn := range r.Ranges {
			markVars(rn.SetVars)
		}
	}
	if f.Scoring != nil && f.Scoring.Ifs != nil {
		for _, tn := range f.Scoring.Ifs.Tree {
			for _, rn := range tn.Ranges {
				markVars(rn.SetVars)
			}
		}
	}
}

func (e *Engine) evalExpression(f *Formula, ctx map[string]any, trace *Trace) error {
	ast, err := e.compile(f.Formula)
	if err != nil {
		return err
	}
	val, err := expr.Eval(ast, ctx, e.funcs)
	if err != nil {
		return err
	}
	bindResult(f, ctx, val)
	if trace != nil {
		trace.add(TraceStep{Name: f.ID, Shape: f.shapeName(), Branch: f.Formula, Value: val, Source: Evaluated})
	}
	return nil
}

func (e *Engine) evalSwitch(f *Formula, ctx map[string]any, trace *Trace) error {
	// An unbound switch variable is not an error: every leaf predicate
	// simply fails to match and the default applies.
	subject := ctx[CanonicalName(f.Switch)]

	for i, w := range f.When {
		if w.If == nil {
			return fmt.Errorf("%w: when clause %d has no condition", ErrInvalidConfiguration, i)
		}
		matched, err := evalCondition(w.If, subject, true, ctx, e.funcs)
		if err != nil {
			return err
		}
		if !matched {
			continue
		}
		val, err := e.resolveResult(w.Result, ctx)
		if err != nil {
			return err
		}
		bindResult(f, ctx, val)
		if err := e.applyVars(ctx, w.SetVars); err != nil {
			return err
		}
		if trace != nil {
			trace.add(TraceStep{Name: f.ID, Shape: f.shapeName(), Branch: fmt.Sprintf("when[%d]", i), Value: val, Source: Evaluated})
		}
		return nil
	}

	val, err := e.resolveResult(f.Default, ctx)
	if err != nil {
		return err
	}
	bindResult(f, ctx, val)
	if err := e.applyVars(ctx, f.DefaultVars); err != nil {
		return err
	}
	if trace != nil {
		trace.add(TraceStep{Name: f.ID, Shape: f.shapeName(), Branch: "default", Value: val, Source: Evaluated})
	}
	return nil
}

func (e *Engine) evalRules(f *Formula, ctx map[string]any, trace *Trace) error {
	total := 0.0
	var matchedBranches []string

	for i, r := range f.Rules {
		if r.Var == "" {
			return fmt.Errorf("%w: rule %d has no variable", ErrInvalidConfiguration, i)
		}
		subject := ctx[CanonicalName(r.Var)]
		weight := r.Weight
		if weight == 0 {
			weight = 1
		}

		if len(r.Ranges) > 0 {
			for j, rn := range r.Ranges {
				matched, err := evalCondition(rn.If, subject, true, ctx, e.funcs)
				if err != nil {
					return err
				}
				if !matched {
					continue
				}
				total += rn.Score * weight
				copyExtras(f.ID, rn.Extra, ctx)
				if err := e.applyVars(ctx, rn.SetVars); err != nil {
					return err
				}
				matchedBranches = append(matchedBranches, fmt.Sprintf("%s[%d]", CanonicalName(r.Var), j))
				break
			}
			continue
		}

		if r.If == nil {
			return fmt.Errorf("%w: rule for %s has neither a condition nor ranges", ErrInvalidConfiguration, r.Var)
		}
		matched, err := evalCondition(r.If, subject, true, ctx, e.funcs)
		if err != nil {
			return err
		}
		if matched {
			total += r.Score * weight
			if err := e.applyVars(ctx, r.SetVars); err != nil {
				return err
			}
			matchedBranches = append(matchedBranches, CanonicalName(r.Var))
		}
	}

	bindResult(f, ctx, total)
	if trace != nil {
		trace.add(TraceStep{Name: f.ID, Shape: f.shapeName(), Branch: strings.Join(matchedBranches, ", "), Value: total, Source: Evaluated})
	}
	return nil
}

func (e *Engine) evalScoring(f *Formula, ctx map[string]any, trace *Trace) error {
	ifs := f.Scoring.Ifs
	if ifs == nil || len(ifs.Vars) != 2 {
		return fmt.Errorf("%w: scoring requires ifs with exactly two vars", ErrInvalidConfiguration)
	}
	outer := ctx[CanonicalName(ifs.Vars[0])]
	inner := ctx[CanonicalName(ifs.Vars[1])]

	for i, node := range ifs.Tree {
		matched, err := evalCondition(node.If, outer, true, ctx, e.funcs)
		if err != nil {
			return err
		}
		if !matched {
			continue
		}
		for j, rn := range node.Ranges {
			matched, err := evalCondition(rn.If, inner, true, ctx, e.funcs)
			if err != nil {
				return err
			}
			if !matched {
				continue
			}
			bindResult(f, ctx, rn.Score)
			copyExtras(f.ID, rn.Extra, ctx)
			if err := e.applyVars(ctx, rn.SetVars); err != nil {
				return err
			}
			if trace != nil {
				trace.add(TraceStep{Name: f.ID, Shape: f.shapeName(), Branch: fmt.Sprintf("tree[%d].ranges[%d]", i, j), Value: rn.Score, Source: Evaluated})
			}
			return nil
		}
		// First matching outer node decides; the walk does not fall
		// through to later outer nodes when no inner range matches.
		break
	}

	bindResult(f, ctx, 0.0)
	if trace != nil {
		trace.add(TraceStep{Name: f.ID, Shape: f.shapeName(), Branch: "no match", Value: 0.0, Source: Evaluated})
	}
	return nil
}

// resolveResult turns a when-clause result or switch default into a value:
// a FunctionCall descriptor is invoked immediately with resolved
// parameters, a "$"-reference is copied from the context, anything else is
// a literal.
func (e *Engine) resolveResult(v any, ctx map[string]any) (any, error) {
	if fc, ok := AsFunctionCall(v); ok {
		args := make([]any, 0, len(fc.Params))
		for _, p := range fc.Params {
			if name, ok := Reference(p); ok {
				pv, bound := ctx[name]
				if !bound {
					return nil, fmt.Errorf("%w: %s", ErrReferenceVariableNotFound, name)
				}
				args = append(args, pv)
				continue
			}
			args = append(args, p)
		}
		return e.funcs.Call(fc.Function, args)
	}
	if name, ok := Reference(v); ok {
		rv, bound := ctx[name]
		if !bound {
			return nil, fmt.Errorf("%w: %s", ErrReferenceVariableNotFound, name)
		}
		return rv, nil
	}
	return v, nil
}

// applyVars evaluates a set_vars / default_vars clause against the context
// as it stands at this point in the pipeline. Each value is a literal, a
// plain "$name" copy (type preserved exactly), or an expression containing
// "$"-references. Any other string containing "$" is still parsed as an
// expression, never demoted to a literal, so a malformed one fails with the
// parser's syntax error instead of binding silently. Keys are applied in
// sorted order so the pass is deterministic.
func (e *Engine) applyVars(ctx map[string]any, vars map[string]any) error {
	if len(vars) == 0 {
		return nil
	}
	keys := make([]string, 0, len(vars))
	for k := range vars {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	for _, k := range keys {
		name := CanonicalName(k)
		v := vars[k]

		s, isString := v.(string)
		switch {
		case isString && isSimpleRef(s):
			ref := CanonicalName(s)
			rv, bound := ctx[ref]
			if !bound {
				return fmt.Errorf("%w: %s", ErrReferenceVariableNotFound, ref)
			}
			ctx[name] = rv
		case isString && strings.Contains(s, "$"):
			ast, err := e.compile(s)
			if err != nil {
				return err
			}
			for _, ref := range expr.Variables(ast) {
				if _, bound := ctx[ref]; !bound {
					return fmt.Errorf("%w: %s", ErrReferenceVariableNotFound, ref)
				}
			}
			rv, err := expr.Eval(ast, ctx, e.funcs)
			if err != nil {
				return err
			}
			ctx[name] = rv
		default:
			ctx[name] = v
		}
	}
	return nil
}

// isSimpleRef reports whether s is exactly "$name": a bare reference that
// must be copied without evaluation, preserving the referenced value's
// type.
func isSimpleRef(s string) bool {
	if len(s) < 2 || s[0] != '$' {
		return false
	}
	for i := 1; i < len(s); i++ {
		c := s[i]
		ok := c >= 'a' && c <= 'z' || c >= 'A' && c <= 'Z' || c >= '0' && c <= '9' || c == '_'
		if !ok {
			return false
		}
	}
	return true
}

func bindResult(f *Formula, ctx map[string]any, val any) {
	ctx[f.ID] = val
	if f.As != "" {
		ctx[CanonicalName(f.As)] = val
	}
}

// copyExtras flattens a matched node's extra properties into the context
// under formulaID_property keys, in sorted order.
func copyExtras(formulaID string, extra map[string]any, ctx map[string]any) {
	if len(extra) == 0 {
		return
	}
	keys := make([]string, 0, len(extra))
	for k := range extra {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		ctx[formulaID+"_"+k] = extra[k]
	}
}

// compile parses an expression, caching the tree by source text.
func (e *Engine) compile(src string) (expr.Node, error) {
	e.mu.RLock()
	ast, ok := e.asts[src]
	e.mu.RUnlock()
	if ok {
		return ast, nil
	}
	ast, err := expr.Parse(src)
	if err != nil {
		return nil, err
	}
	e.mu.Lock()
	e.asts[src] = ast
	e.mu.Unlock()
	return ast, nil
}
