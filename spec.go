package ruleflow

import (
	"encoding/json"
	"fmt"
	"sort"
	"strings"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/jedib0t/go-pretty/v6/text"
)

// A Spec is an ordered sequence of formula definitions. Formula IDs must be
// unique and evaluation order is declaration order; a formula may only
// reference values produced by formulas declared before it.
//
// A Spec is immutable for the duration of an evaluation and may be shared
// across concurrent evaluations.
type Spec struct {
	Formulas []*Formula `json:"formulas"`
}

// Formula is one named unit of computation. Exactly one of the four shapes
// must be present:
//
//	expression:  Formula (an expression string), with Inputs and optional As
//	switch:      Switch naming the subject variable, When clauses, Default
//	rules:       Rules, a list of accumulative scoring rules
//	scoring:     Scoring, a two-level decision tree
type Formula struct {
	// A formula identifier, unique within the spec. (required)
	ID string `json:"id"`

	// The expression to evaluate, for expression formulas.
	Formula string `json:"formula,omitempty"`

	// Names of the inputs the expression requires. Checked before any
	// formula runs; a missing one fails the whole evaluation.
	Inputs []string `json:"inputs,omitempty"`

	// Optional alias. The formula's output is bound under the ID and,
	// additionally, under this name (without the "$" marker).
	As string `json:"as,omitempty"`

	// The variable a switch formula branches on. May be "$"-prefixed.
	Switch string `json:"switch,omitempty"`

	// Ordered when-clauses; the first whose condition matches wins.
	When []*WhenClause `json:"when,omitempty"`

	// Result bound when no when-clause matches. May be a literal or a
	// FunctionCall descriptor.
	Default any `json:"default,omitempty"`

	// Variable assignments applied when no when-clause matches.
	DefaultVars map[string]any `json:"default_vars,omitempty"`

	// Accumulative scoring rules. Matched scores, multiplied by each
	// rule's weight, sum into the formula's numeric result.
	Rules []*ScoreRule `json:"rules,omitempty"`

	// Multi-dimensional scoring decision tree.
	Scoring *Scoring `json:"scoring,omitempty"`
}

// WhenClause is one guarded branch of a switch formula.
type WhenClause struct {
	If      *Condition     `json:"if"`
	Result  any            `json:"result"`
	SetVars map[string]any `json:"set_vars,omitempty"`
}

// Condition is a tagged union: either a leaf predicate (Op and friends) or
// a composite (And or Or). Composites evaluate their children left to right
// and short-circuit.
//
// Leaf operators: > >= < <= == != between in not_in contains starts_with
// ends_with function. A leaf with an empty Var tests the enclosing
// construct's subject (the switch variable, or the scoring rule's variable).
// A Value that is a "$"-prefixed string is resolved in the context before
// the comparison.
type Condition struct {
	Op       string       `json:"op,omitempty"`
	Var      string       `json:"var,omitempty"`
	Value    any          `json:"value,omitempty"`
	Function string       `json:"function,omitempty"`
	Params   []any        `json:"params,omitempty"`
	And      []*Condition `json:"and,omitempty"`
	Or       []*Condition `json:"or,omitempty"`
}

// FunctionCall describes a registry call used as a when-clause result or a
// switch default. Params may contain "$"-references, resolved at the moment
// the clause matches.
type FunctionCall struct {
	Function string `json:"function"`
	Params   []any  `json:"params,omitempty"`
}

// ScoreRule ties one variable to a score. Either If+Score (a single
// condition) or Ranges (an ordered list, first match wins) must be set.
type ScoreRule struct {
	Var     string         `json:"var"`
	If      *Condition     `json:"if,omitempty"`
	Score   float64        `json:"score,omitempty"`
	SetVars map[string]any `json:"set_vars,omitempty"`
	Ranges  []*RangeNode   `json:"ranges,omitempty"`

	// Weight multiplies the matched score. Zero means the default of 1.
	Weight float64 `json:"weight,omitempty"`
}

// RangeNode is one condition+score pair inside a scoring rule or a decision
// tree. Any JSON properties beyond the known keys are preserved in Extra
// and copied verbatim into the result, namespaced under the formula ID.
type RangeNode struct {
	If      *Condition     `json:"if"`
	Score   float64        `json:"score"`
	SetVars map[string]any `json:"set_vars,omitempty"`

	// Extra holds the node's additional named properties ("grade",
	// "decision", ...). Populated from unrecognized JSON keys.
	Extra map[string]any `json:"-"`
}

// Scoring is the multi-dimensional formula shape.
type Scoring struct {
	Ifs *ScoringIfs `json:"ifs"`
}

// ScoringIfs names the two tree variables and holds the outer nodes.
// Vars[0] is the subject of the outer node conditions, Vars[1] the subject
// of the inner range conditions.
type ScoringIfs struct {
	Vars []string    `json:"vars"`
	Tree []*TreeNode `json:"tree"`
}

// TreeNode is an outer decision-tree node.
type TreeNode struct {
	If     *Condition   `json:"if"`
	Ranges []*RangeNode `json:"ranges"`
}

func (r *RangeNode) UnmarshalJSON(b []byte) error {
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(b, &raw); err != nil {
		return err
	}
	type known struct {
		If      *Condition     `json:"if"`
		Score   float64        `json:"score"`
		SetVars map[string]any `json:"set_vars"`
	}
	var k known
	if err := json.Unmarshal(b, &k); err != nil {
		return err
	}
	r.If = k.If
	r.Score = k.Score
	r.SetVars = k.SetVars
	for key, val := range raw {
		switch key {
		case "if", "score", "set_vars":
			continue
		}
		var v any
		if err := json.Unmarshal(val, &v); err != nil {
			return err
		}
		if r.Extra == nil {
			r.Extra = map[string]any{}
		}
		r.Extra[key] = v
	}
	return nil
}

func (r *RangeNode) MarshalJSON() ([]byte, error) {
	out := map[string]any{}
	for k, v := range r.Extra {
		out[k] = v
	}
	if r.If != nil {
		out["if"] = r.If
	}
	out["score"] = r.Score
	if r.SetVars != nil {
		out["set_vars"] = r.SetVars
	}
	return json.Marshal(out)
}

// CanonicalName strips the "$" namespace marker from a variable reference.
// Both spellings of a name resolve to the same context slot, so the prefix
// is removed once, at the reference site.
func CanonicalName(ref string) string {
	return strings.TrimPrefix(ref, "$")
}

// Reference reports whether v is a "$"-prefixed string reference, and if
// so, the bare name it refers to.
func Reference(v any) (string, bool) {
	s, ok := v.(string)
	if !ok || len(s) < 2 || s[0] != '$' {
		return "", false
	}
	return s[1:], true
}

type formulaKind int

const (
	kindInvalid formulaKind = iota
	kindExpression
	kindSwitch
	kindRules
	kindScoring
)

// kind reports the formula's shape, or kindInvalid when zero or more than
// one shape is declared.
func (f *Formula) kind() formulaKind {
	k := kindInvalid
	n := 0
	if f.Formula != "" {
		k = kindExpression
		n++
	}
	if f.Switch != "" {
		k = kindSwitch
		n++
	}
	if len(f.Rules) > 0 {
		k = kindRules
		n++
	}
	if f.Scoring != nil {
		k = kindScoring
		n++
	}
	if n != 1 {
		return kindInvalid
	}
	return k
}

func (f *Formula) shapeName() string {
	switch f.kind() {
	case kindExpression:
		return "expression"
	case kindSwitch:
		return "switch"
	case kindRules:
		return "rules"
	case kindScoring:
		return "scoring"
	default:
		return "invalid"
	}
}

// String returns a table of the spec's formulas in declaration order.
func (s *Spec) String() string {
	tw := table.NewWriter()
	tw.SetTitle("\nRULEFLOW SPEC\n")
	tw.AppendHeader(table.Row{"\nFormula", "\nShape", "\nDetail", "\nAlias"})

	maxWidthOfDetailColumn := 48
	maxDetailLength := 0
	for _, f := range s.Formulas {
		detail := f.detail()
		if len(detail) > maxDetailLength {
			maxDetailLength = len(detail)
		}
		tw.AppendRow(table.Row{f.ID, f.shapeName(), detail, f.As})
	}

	tw.SetColumnConfigs([]table.ColumnConfig{
		{Number: 1},
		{Number: 2},
		{Number: 3, WidthMax: maxWidthOfDetailColumn},
		{Number: 4},
	})

	style := table.StyleLight
	style.Format.Header = text.FormatDefault
	if maxDetailLength > maxWidthOfDetailColumn {
		style.Options.SeparateRows = true
	}
	tw.SetStyle(style)
	return tw.Render()
}

func (f *Formula) detail() string {
	switch f.kind() {
	case kindExpression:
		return f.Formula
	case kindSwitch:
		return fmt.Sprintf("on %s, %d clause(s)", f.Switch, len(f.When))
	case kindRules:
		vars := make([]string, 0, len(f.Rules))
		for _, r := range f.Rules {
			vars = append(vars, CanonicalName(r.Var))
		}
		return strings.Join(vars, ", ")
	case kindScoring:
		if f.Scoring.Ifs != nil {
			return strings.Join(f.Scoring.Ifs.Vars, " x ")
		}
		return ""
	default:
		return ""
	}
}

// Tree returns a tree representation of a condition using box-drawing
// characters. Composite nodes show AND/OR; leaves show the predicate.
//
// Example output:
//
//	AND
//	├── age > 25
//	├── OR
//	│   ├── income > 30000
//	│   └── has_collateral == true
//	└── status != "blacklist"
func (c *Condition) Tree() string {
	if c == nil {
		return ""
	}
	var sb strings.Builder
	sb.WriteString(c.label())
	sb.WriteString("\n")
	c.buildTree(&sb, "", 0)
	return sb.String()
}

func (c *Condition) label() string {
	switch {
	case len(c.And) > 0:
		return "AND"
	case len(c.Or) > 0:
		return "OR"
	case c.Op == "function":
		return fmt.Sprintf("%s(%s, ...)", c.Function, subjectOrVar(c.Var))
	default:
		v, _ := json.Marshal(c.Value)
		return fmt.Sprintf("%s %s %s", subjectOrVar(c.Var), c.Op, string(v))
	}
}

func subjectOrVar(v string) string {
	if v == "" {
		return "<subject>"
	}
	return CanonicalName(v)
}

// buildTree recursively renders children with the tree characters
// (├──, └──, │). Recursion is limited to a depth of 20 levels.
func (c *Condition) buildTree(sb *strings.Builder, prefix string, depth int) {
	if depth >= 20 {
		return
	}
	children := c.And
	if len(children) == 0 {
		children = c.Or
	}
	for i, child := range children {
		isLast := i == len(children)-1
		var connector, childPrefix string
		if isLast {
			connector = "└── "
			childPrefix = "    "
		} else {
			connector = "├── "
			childPrefix = "│   "
		}
		sb.WriteString(prefix)
		sb.WriteString(connector)
		sb.WriteString(child.label())
		sb.WriteString("\n")
		child.buildTree(sb, prefix+childPrefix, depth+1)
	}
}

// SortedKeys returns the result map's keys in sorted order, for stable
// display of evaluation output.
func SortedKeys(result map[string]any) []string {
	keys := make([]string, 0, len(result))
	for k := range result {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// AsFunctionCall recognizes a function-call result descriptor in any of the
// forms it can arrive in: a FunctionCall value, a pointer to one, or the
// map shape produced by decoding JSON into any.
func AsFunctionCall(v any) (*FunctionCall, bool) {
	switch t := v.(type) {
	case FunctionCall:
		return &t, true
	case *FunctionCall:
		return t, true
	case map[string]any:
		name, ok := t["function"].(string)
		if !ok {
			return nil, false
		}
		fc := &FunctionCall{Function: name}
		if params, ok := t["params"].([]any); ok {
			fc.Params = params
		}
		return fc, true
	default:
		return nil, false
	}
}
