package ruleflow

import (
	"fmt"

	"github.com/Jedsadha1777/RuleFlow-sub002/expr"
)

// Validate performs the static-analysis pass over a specification:
// structural checks and declaration-order dependency analysis. Run it once
// when a spec is loaded; evaluation re-checks only input completeness.
//
// Structural problems (no formulas, duplicate or missing IDs, a formula
// with zero or several shapes, malformed conditions, unparseable
// expressions) return ErrInvalidConfiguration or the parser's syntax error.
// A formula that requires a value first produced by itself or by a later
// formula returns ErrForwardReference.
func Validate(spec *Spec) error {
	if spec == nil || len(spec.Formulas) == 0 {
		return fmt.Errorf("%w: spec has no formulas", ErrInvalidConfiguration)
	}

	seen := map[string]bool{}
	for _, f := range spec.Formulas {
		if f.ID == "" {
			return fmt.Errorf("%w: formula without an id", ErrInvalidConfiguration)
		}
		if seen[f.ID] {
			return fmt.Errorf("%w: duplicate formula id %s", ErrInvalidConfiguration, f.ID)
		}
		seen[f.ID] = true
		if err := validateShape(f); err != nil {
			return fmt.Errorf("formula %s: %w", f.ID, err)
		}
	}

	return checkReferences(spec)
}

func validateShape(f *Formula) error {
	if f.kind() == kindInvalid {
		return fmt.Errorf("%w: exactly one of formula, switch, rules or scoring must be set", ErrInvalidConfiguration)
	}
	switch f.kind() {
	case kindExpression:
		if _, err := expr.Parse(f.Formula); err != nil {
			return err
		}
	case kindSwitch:
		for i, w := range f.When {
			if w.If == nil {
				return fmt.Errorf("%w: when clause %d has no condition", ErrInvalidConfiguration, i)
			}
			if err := validateCondition(w.If); err != nil {
				return err
			}
		}
	case kindRules:
		for i, r := range f.Rules {
			if r.Var == "" {
				return fmt.Errorf("%w: rule %d has no variable", ErrInvalidConfiguration, i)
			}
			if r.If == nil && len(r.Ranges) == 0 {
				return fmt.Errorf("%w: rule for %s has neither a condition nor ranges", ErrInvalidConfiguration, r.Var)
			}
			if r.If != nil {
				if err := validateCondition(r.If); err != nil {
					return err
				}
			}
			for _, rn := range r.Ranges {
				if rn.If == nil {
					return fmt.Errorf("%w: range without a condition in rule for %s", ErrInvalidConfiguration, r.Var)
				}
				if err := validateCondition(rn.If); err != nil {
					return err
				}
			}
		}
	case kindScoring:
		ifs := f.Scoring.Ifs
		if ifs == nil || len(ifs.Vars) != 2 {
			return fmt.Errorf("%w: scoring requires ifs with exactly two vars", ErrInvalidConfiguration)
		}
		for _, tn := range ifs.Tree {
			if tn.If == nil {
				return fmt.Errorf("%w: tree node without a condition", ErrInvalidConfiguration)
			}
			if err := validateCondition(tn.If); err != nil {
				return err
			}
			for _, rn := range tn.Ranges {
				if rn.If == nil {
					return fmt.Errorf("%w: range without a condition", ErrInvalidConfiguration)
				}
				if err := validateCondition(rn.If); err != nil {
					return err
				}
			}
		}
	}
	return nil
}

var knownOperators = map[string]bool{
	">": true, ">=": true, "<": true, "<=": true,
	"==": true, "!=": true,
	"between": true, "in": true, "not_in": true,
	"contains": true, "starts_with": true, "ends_with": true,
	"function": true,
}

func validateCondition(c *Condition) error {
	composite := 0
	if len(c.And) > 0 {
		composite++
	}
	if len(c.Or) > 0 {
		composite++
	}
	if composite > 1 || (composite == 1 && c.Op != "") {
		return fmt.Errorf("%w: condition mixes and/or/predicate forms", ErrInvalidConfiguration)
	}
	if composite == 1 {
		for _, child := range c.And {
			if err := validateCondition(child); err != nil {
				return err
			}
		}
		for _, child := range c.Or {
			if err := validateCondition(child); err != nil {
				return err
			}
		}
		return nil
	}
	if c.Op == "" {
		return fmt.Errorf("%w: condition is neither a predicate nor an and/or composite", ErrInvalidConfiguration)
	}
	if !knownOperators[c.Op] {
		return fmt.Errorf("%w: unknown operator %q", ErrInvalidConfiguration, c.Op)
	}
	if c.Op == "function" && c.Function == "" {
		return fmt.Errorf("%w: function operator without a function name", ErrInvalidConfiguration)
	}
	// Literal operand shapes can be checked statically; "$"-references are
	// late-bound and checked at evaluation time.
	if _, isRef := Reference(c.Value); !isRef && c.Value != nil {
		switch c.Op {
		case "between":
			if _, ok := asPair(c.Value); !ok {
				return fmt.Errorf("%w: between requires a [low, high] pair, got %T", ErrInvalidOperatorUsage, c.Value)
			}
		case "in", "not_in":
			if _, ok := asCollection(c.Value); !ok {
				return fmt.Errorf("%w: %s requires a collection, got %T", ErrInvalidOperatorUsage, c.Op, c.Value)
			}
		}
	}
	return nil
}

// checkReferences flags values consumed before they are produced. A name
// produced only by a later formula's output cannot be available when the
// formula runs; declaration order is the dependency order. A formula's own
// output is available to its post-binding clauses (switch and decision-tree
// set_vars), which the engine applies after the result is bound, but not to
// anything evaluated earlier.
func checkReferences(spec *Spec) error {
	// Index where each name becomes a formula output (id or alias).
	outputAt := map[string]int{}
	// Earliest index where a set_vars / default_vars clause can bind the
	// name. Same-formula uses are legal because clauses apply in pipeline
	// order within the pass.
	varAt := map[string]int{}

	for i, f := range spec.Formulas {
		if _, ok := outputAt[f.ID]; !ok {
			outputAt[f.ID] = i
		}
		if f.As != "" {
			name := CanonicalName(f.As)
			if _, ok := outputAt[name]; !ok {
				outputAt[name] = i
			}
		}
		produced := map[string]bool{}
		bindProducedNames(f, produced)
		for name := range produced {
			if name == f.ID || (f.As != "" && name == CanonicalName(f.As)) {
				continue
			}
			if _, ok := varAt[name]; !ok {
				varAt[name] = i
			}
		}
	}

	for i, f := range spec.Formulas {
		own := map[string]bool{f.ID: true}
		if f.As != "" {
			own[CanonicalName(f.As)] = true
		}
		check := func(names []string, allowOwn bool) error {
			for _, name := range names {
				if allowOwn && own[name] {
					continue
				}
				if j, ok := outputAt[name]; ok && j >= i {
					return fmt.Errorf("%w: formula %s requires %s, produced by formula %s", ErrForwardReference, f.ID, name, spec.Formulas[j].ID)
				}
				if j, ok := varAt[name]; ok && j > i {
					if _, isOutput := outputAt[name]; !isOutput {
						return fmt.Errorf("%w: formula %s requires %s, bound by formula %s", ErrForwardReference, f.ID, name, spec.Formulas[j].ID)
					}
				}
			}
			return nil
		}
		pre, post := requiredNames(f)
		if err := check(pre, false); err != nil {
			return err
		}
		if err := check(post, true); err != nil {
			return err
		}
	}
	return nil
}

// requiredNames collects every name a formula reads, split by when the read
// happens relative to binding the formula's own result. Pre-binding reads
// (declared inputs, expression variables, subject variables,
// "$"-references in condition values, parameters and results, and
// accumulative rules' set_vars, which apply while the total is still being
// built) can never legally see the formula's own output. Post-binding reads
// (switch and decision-tree set_vars / default_vars, which the engine
// applies after the result is bound) may reference it.
func requiredNames(f *Formula) (pre, post []string) {
	seenPre := map[string]bool{}
	seenPost := map[string]bool{}
	addPre := func(name string) {
		name = CanonicalName(name)
		if name != "" && !seenPre[name] {
			seenPre[name] = true
			pre = append(pre, name)
		}
	}
	addPost := func(name string) {
		name = CanonicalName(name)
		if name != "" && !seenPost[name] {
			seenPost[name] = true
			post = append(post, name)
		}
	}
	addValue := func(v any) {
		if name, ok := Reference(v); ok {
			addPre(name)
		}
	}
	addVars := func(vars map[string]any, add func(string)) {
		for _, v := range vars {
			s, ok := v.(string)
			if !ok {
				continue
			}
			if isSimpleRef(s) {
				add(CanonicalName(s))
				continue
			}
			if ast, err := expr.Parse(s); err == nil {
				for _, n := range expr.Variables(ast) {
					add(n)
				}
			}
		}
	}
	var addCondition func(c *Condition)
	addCondition = func(c *Condition) {
		if c == nil {
			return
		}
		addPre(c.Var)
		addValue(c.Value)
		for _, p := range c.Params {
			addValue(p)
		}
		for _, child := range c.And {
			addCondition(child)
		}
		for _, child := range c.Or {
			addCondition(child)
		}
	}

	for _, in := range f.Inputs {
		addPre(in)
	}
	switch f.kind() {
	case kindExpression:
		if ast, err := expr.Parse(f.Formula); err == nil {
			for _, n := range expr.Variables(ast) {
				addPre(n)
			}
		}
	case kindSwitch:
		addPre(f.Switch)
		for _, w := range f.When {
			addCondition(w.If)
			addValue(w.Result)
			if fc, ok := AsFunctionCall(w.Result); ok {
				for _, p := range fc.Params {
					addValue(p)
				}
			}
			addVars(w.SetVars, addPost)
		}
		addValue(f.Default)
		if fc, ok := AsFunctionCall(f.Default); ok {
			for _, p := range fc.Params {
				addValue(p)
			}
		}
		addVars(f.DefaultVars, addPost)
	case kindRules:
		for _, r := range f.Rules {
			addPre(r.Var)
			addCondition(r.If)
			addVars(r.SetVars, addPre)
			for _, rn := range r.Ranges {
				addCondition(rn.If)
				addVars(rn.SetVars, addPre)
			}
		}
	case kindScoring:
		if f.Scoring.Ifs != nil {
			for _, v := range f.Scoring.Ifs.Vars {
				addPre(v)
			}
			for _, tn := range f.Scoring.Ifs.Tree {
				addCondition(tn.If)
				for _, rn := range tn.Ranges {
					addCondition(rn.If)
					addVars(rn.SetVars, addPost)
				}
			}
		}
	}
	return pre, post
}
